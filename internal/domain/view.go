package domain

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"time"
)

// PublicAnswer is an answer without its correctness data.
type PublicAnswer struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion is what players see while a question is open.
type PublicQuestion struct {
	ID        string         `json:"id"`
	Kind      QuestionKind   `json:"kind"`
	Prompt    string         `json:"prompt"`
	MediaURL  string         `json:"mediaUrl,omitempty"`
	TimeLimit int            `json:"timeLimit"`
	Points    int            `json:"points"`
	Answers   []PublicAnswer `json:"answers"`
}

// Reveal carries the solution once a question is closed.
type Reveal struct {
	CorrectAnswerIDs []string `json:"correctAnswerIds,omitempty"`
	CorrectOrder     []string `json:"correctOrder,omitempty"`
}

// SessionView is the client-facing snapshot of a session.
type SessionView struct {
	SessionID     string          `json:"sessionId"`
	JoinCode      string          `json:"joinCode"`
	QuizTitle     string          `json:"quizTitle"`
	Phase         Phase           `json:"phase"`
	Status        string          `json:"status"`
	QuestionIndex int             `json:"questionIndex"`
	QuestionCount int             `json:"questionCount"`
	Question      *PublicQuestion `json:"question,omitempty"`
	Reveal        *Reveal         `json:"reveal,omitempty"`
	Remaining     int             `json:"remaining"`
	PlayerCount   int             `json:"playerCount"`
	Version       int64           `json:"version"`
	StartedAt     *time.Time      `json:"startedAt,omitempty"`
	EndedAt       *time.Time      `json:"endedAt,omitempty"`
}

// Public strips correctness data. Ordering answers are shuffled with a seed
// derived from the question id so every client sees the same order.
func (q Question) Public() PublicQuestion {
	answers := make([]PublicAnswer, len(q.Answers))
	for i, a := range q.Answers {
		answers[i] = PublicAnswer{ID: a.ID, Text: a.Text}
	}
	if q.Kind == QuestionOrdering {
		h := fnv.New64a()
		_, _ = h.Write([]byte(q.ID))
		rnd := rand.New(rand.NewSource(int64(h.Sum64())))
		rnd.Shuffle(len(answers), func(i, j int) { answers[i], answers[j] = answers[j], answers[i] })
	}
	return PublicQuestion{
		ID:        q.ID,
		Kind:      q.Kind,
		Prompt:    q.Prompt,
		MediaURL:  q.MediaURL,
		TimeLimit: q.TimeLimit,
		Points:    q.Points,
		Answers:   answers,
	}
}

// CanonicalOrder returns answer ids sorted by target position.
func (q Question) CanonicalOrder() []string {
	sorted := make([]Answer, len(q.Answers))
	copy(sorted, q.Answers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	ids := make([]string, len(sorted))
	for i, a := range sorted {
		ids[i] = a.ID
	}
	return ids
}

// Reveal returns the solution of the question.
func (q Question) Reveal() Reveal {
	if q.Kind == QuestionOrdering {
		return Reveal{CorrectOrder: q.CanonicalOrder()}
	}
	var ids []string
	for _, a := range q.Answers {
		if a.Correct {
			ids = append(ids, a.ID)
		}
	}
	return Reveal{CorrectAnswerIDs: ids}
}
