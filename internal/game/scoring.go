// Package game holds the pure scoring and progression rules of a live quiz.
// Nothing here performs I/O; stores call into it inside their atomic sections.
package game

import (
	"math"
	"time"

	"live-quiz-service/internal/domain"
)

// Verdict is the outcome of scoring one submission.
type Verdict struct {
	Correct      bool
	CorrectRatio float64
	Points       int
}

// ClampElapsed bounds elapsed to [0, timeLimit] so late or clock-skewed
// submissions cannot produce a bonus outside [0,1].
func ClampElapsed(timeLimit int, elapsed float64) float64 {
	if elapsed < 0 || math.IsNaN(elapsed) {
		return 0
	}
	if limit := float64(timeLimit); elapsed > limit {
		return limit
	}
	return elapsed
}

// TimeBonus is 1 for an instant answer and decays linearly to 0 at the time limit.
func TimeBonus(timeLimit int, elapsed float64) float64 {
	if timeLimit <= 0 {
		return 0
	}
	limit := float64(timeLimit)
	bonus := (limit - ClampElapsed(timeLimit, elapsed)) / limit
	return math.Max(0, math.Min(1, bonus))
}

// Score judges a submission against a question answered elapsed seconds after
// it opened.
func Score(q domain.Question, sub domain.AnswerSubmission, elapsed float64) Verdict {
	var v Verdict
	switch q.Kind {
	case domain.QuestionOrdering:
		v.CorrectRatio = orderingRatio(q, sub.Order)
		v.Correct = v.CorrectRatio == 1
	default:
		for _, a := range q.Answers {
			if a.ID == sub.AnswerID {
				v.Correct = a.Correct
				break
			}
		}
		if v.Correct {
			v.CorrectRatio = 1
		}
	}

	multiplier := 0.5 + 0.5*TimeBonus(q.TimeLimit, elapsed)
	v.Points = int(math.Round(float64(q.Points) * v.CorrectRatio * multiplier))
	return v
}

// orderingRatio is the share of positions where the submitted id matches the
// canonical id at that index.
func orderingRatio(q domain.Question, order []string) float64 {
	canonical := q.CanonicalOrder()
	if len(canonical) == 0 {
		return 0
	}
	matches := 0
	for i, id := range canonical {
		if i < len(order) && order[i] == id {
			matches++
		}
	}
	return float64(matches) / float64(len(canonical))
}

// Apply folds a verdict into the player's running totals. Partial ordering
// credit adds points but only an exact answer extends the streak.
func Apply(p domain.Player, v Verdict, at time.Time) domain.Player {
	if v.Points > 0 {
		p.Score += v.Points
		p.LastScoredAt = at
	}
	if v.Correct {
		p.Streak++
	} else {
		p.Streak = 0
	}
	return p
}

// CheckSubmission rejects malformed submissions for q before scoring. An
// unknown multiple-choice answer id is not malformed; it scores as incorrect.
func CheckSubmission(q domain.Question, sub domain.AnswerSubmission) error {
	if q.Kind != domain.QuestionOrdering {
		if sub.AnswerID == "" {
			return domain.ErrInvalidSubmission
		}
		return nil
	}
	if len(sub.Order) != len(q.Answers) {
		return domain.ErrInvalidSubmission
	}
	known := make(map[string]bool, len(q.Answers))
	for _, a := range q.Answers {
		known[a.ID] = false
	}
	for _, id := range sub.Order {
		used, ok := known[id]
		if !ok || used {
			return domain.ErrInvalidSubmission
		}
		known[id] = true
	}
	return nil
}
