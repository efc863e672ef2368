package game

import (
	"math"
	"time"

	"live-quiz-service/internal/domain"
)

// Start moves a session out of the lobby onto its first question.
func Start(s *domain.Session, now time.Time) error {
	if s.Phase == domain.PhaseFinished {
		return domain.ErrSessionFinished
	}
	if s.Phase != domain.PhaseLobby {
		return domain.ErrInvalidTransition
	}
	if len(s.Quiz.Questions) == 0 {
		return domain.ErrEmptyQuiz
	}
	if s.PlayerCount == 0 {
		return domain.ErrNoPlayers
	}
	started := now
	s.StartedAt = &started
	openQuestion(s, 0, now)
	return nil
}

// CloseQuestion ends answering time for the current question, either because
// the timer ran out or because the host closed it.
func CloseQuestion(s *domain.Session) error {
	if s.Phase == domain.PhaseFinished {
		return domain.ErrSessionFinished
	}
	if s.Phase != domain.PhaseQuestion {
		return domain.ErrInvalidTransition
	}
	s.Phase = domain.PhaseResults
	return nil
}

// ShowLeaderboard moves from the results of a question to the standings.
func ShowLeaderboard(s *domain.Session) error {
	if s.Phase == domain.PhaseFinished {
		return domain.ErrSessionFinished
	}
	if s.Phase != domain.PhaseResults {
		return domain.ErrInvalidTransition
	}
	s.Phase = domain.PhaseLeaderboard
	return nil
}

// Next opens the following question, or finishes the session after the last one.
func Next(s *domain.Session, now time.Time) error {
	if s.Phase == domain.PhaseFinished {
		return domain.ErrSessionFinished
	}
	if s.Phase != domain.PhaseResults && s.Phase != domain.PhaseLeaderboard {
		return domain.ErrInvalidTransition
	}
	next := s.QuestionIndex + 1
	if next >= len(s.Quiz.Questions) {
		finish(s, now)
		return nil
	}
	openQuestion(s, next, now)
	return nil
}

// End finishes the session immediately from any live phase.
func End(s *domain.Session, now time.Time) error {
	if s.Phase == domain.PhaseFinished {
		return domain.ErrSessionFinished
	}
	finish(s, now)
	return nil
}

func openQuestion(s *domain.Session, index int, now time.Time) {
	s.Phase = domain.PhaseQuestion
	s.QuestionIndex = index
	s.QuestionStartedAt = now
}

// finish marks the session terminal. The index moves past the last question
// so it never decreases.
func finish(s *domain.Session, now time.Time) {
	ended := now
	s.Phase = domain.PhaseFinished
	s.QuestionIndex = len(s.Quiz.Questions)
	s.EndedAt = &ended
}

// AcceptsAnswers reports whether a submission for questionIndex may be
// recorded right now.
func AcceptsAnswers(s domain.Session, questionIndex int) error {
	switch s.Phase {
	case domain.PhaseFinished:
		return domain.ErrSessionFinished
	case domain.PhaseQuestion, domain.PhaseResults:
		if questionIndex != s.QuestionIndex {
			return domain.ErrStaleQuestion
		}
		return nil
	default:
		return domain.ErrStaleQuestion
	}
}

// Elapsed is the authoritative time since the current question opened.
func Elapsed(s domain.Session, now time.Time) float64 {
	return now.Sub(s.QuestionStartedAt).Seconds()
}

// Remaining is the whole seconds left on the current question, never negative.
func Remaining(s domain.Session, now time.Time) int {
	if s.Phase != domain.PhaseQuestion {
		return 0
	}
	q, ok := s.CurrentQuestion()
	if !ok {
		return 0
	}
	left := q.TimeLimit - int(math.Floor(Elapsed(s, now)))
	if left < 0 {
		return 0
	}
	if left > q.TimeLimit {
		return q.TimeLimit
	}
	return left
}

// Deadline is when the current question's answering time runs out.
func Deadline(s domain.Session) (time.Time, bool) {
	if s.Phase != domain.PhaseQuestion {
		return time.Time{}, false
	}
	q, ok := s.CurrentQuestion()
	if !ok {
		return time.Time{}, false
	}
	return s.QuestionStartedAt.Add(time.Duration(q.TimeLimit) * time.Second), true
}

// AcceptingPhase reports whether submissions for the current index are open.
func AcceptingPhase(p domain.Phase) bool {
	return p == domain.PhaseQuestion || p == domain.PhaseResults
}
