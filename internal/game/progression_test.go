package game_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/game"
)

func lobbySession(questions int) domain.Session {
	quiz := domain.Quiz{ID: "quiz-1", Title: "Demo"}
	for i := 0; i < questions; i++ {
		q := mcQuestion()
		q.ID = string(rune('a'+i)) + "-q"
		quiz.Questions = append(quiz.Questions, q)
	}
	return domain.Session{
		ID:            "s1",
		Quiz:          quiz,
		Phase:         domain.PhaseLobby,
		QuestionIndex: domain.LobbyIndex,
		PlayerCount:   1,
	}
}

func TestStartRequirements(t *testing.T) {
	now := time.Now()

	s := lobbySession(0)
	require.ErrorIs(t, game.Start(&s, now), domain.ErrEmptyQuiz)
	require.Equal(t, domain.PhaseLobby, s.Phase)

	s = lobbySession(2)
	s.PlayerCount = 0
	require.ErrorIs(t, game.Start(&s, now), domain.ErrNoPlayers)
	require.Equal(t, domain.LobbyIndex, s.QuestionIndex)

	s = lobbySession(2)
	require.NoError(t, game.Start(&s, now))
	require.Equal(t, domain.PhaseQuestion, s.Phase)
	require.Equal(t, 0, s.QuestionIndex)
	require.Equal(t, now, s.QuestionStartedAt)
	require.NotNil(t, s.StartedAt)
	require.Equal(t, 20, game.Remaining(s, now))

	require.ErrorIs(t, game.Start(&s, now), domain.ErrInvalidTransition)
}

func TestFullProgression(t *testing.T) {
	const questions = 3
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := lobbySession(questions)
	require.NoError(t, game.Start(&s, now))

	seen := []int{s.QuestionIndex}
	for {
		require.NoError(t, game.CloseQuestion(&s))
		require.Equal(t, domain.PhaseResults, s.Phase)
		if s.QuestionIndex%2 == 0 {
			require.NoError(t, game.ShowLeaderboard(&s))
			require.Equal(t, domain.PhaseLeaderboard, s.Phase)
		}
		prev := s.QuestionIndex
		now = now.Add(time.Minute)
		require.NoError(t, game.Next(&s, now))
		if s.Phase == domain.PhaseFinished {
			require.Equal(t, questions-1, prev, "finished only after the last question")
			break
		}
		require.Equal(t, prev+1, s.QuestionIndex)
		require.Equal(t, now, s.QuestionStartedAt)
		seen = append(seen, s.QuestionIndex)
	}
	require.Equal(t, []int{0, 1, 2}, seen)
	require.NotNil(t, s.EndedAt)
	require.False(t, s.Active())

	require.ErrorIs(t, game.Next(&s, now), domain.ErrSessionFinished)
	require.ErrorIs(t, game.CloseQuestion(&s), domain.ErrSessionFinished)
	require.ErrorIs(t, game.ShowLeaderboard(&s), domain.ErrSessionFinished)
	require.ErrorIs(t, game.End(&s, now), domain.ErrSessionFinished)
	require.ErrorIs(t, game.Start(&s, now), domain.ErrSessionFinished)
	require.Equal(t, domain.PhaseFinished, s.Phase)
}

func TestInvalidTransitions(t *testing.T) {
	now := time.Now()
	s := lobbySession(2)
	require.ErrorIs(t, game.CloseQuestion(&s), domain.ErrInvalidTransition)
	require.ErrorIs(t, game.Next(&s, now), domain.ErrInvalidTransition)
	require.ErrorIs(t, game.ShowLeaderboard(&s), domain.ErrInvalidTransition)

	require.NoError(t, game.Start(&s, now))
	require.ErrorIs(t, game.Next(&s, now), domain.ErrInvalidTransition, "cannot skip an open question")
	require.ErrorIs(t, game.ShowLeaderboard(&s), domain.ErrInvalidTransition)
}

func TestEndFromAnyPhase(t *testing.T) {
	now := time.Now()

	s := lobbySession(2)
	require.NoError(t, game.End(&s, now))
	require.Equal(t, domain.PhaseFinished, s.Phase)

	s = lobbySession(2)
	require.NoError(t, game.Start(&s, now))
	require.NoError(t, game.End(&s, now))
	require.Equal(t, domain.PhaseFinished, s.Phase)
	require.ErrorIs(t, game.AcceptsAnswers(s, 0), domain.ErrSessionFinished)
}

func TestAcceptsAnswers(t *testing.T) {
	now := time.Now()
	s := lobbySession(3)
	require.ErrorIs(t, game.AcceptsAnswers(s, 0), domain.ErrStaleQuestion)

	require.NoError(t, game.Start(&s, now))
	require.NoError(t, game.AcceptsAnswers(s, 0))
	require.ErrorIs(t, game.AcceptsAnswers(s, 1), domain.ErrStaleQuestion)

	require.NoError(t, game.CloseQuestion(&s))
	require.NoError(t, game.AcceptsAnswers(s, 0))

	require.NoError(t, game.ShowLeaderboard(&s))
	require.ErrorIs(t, game.AcceptsAnswers(s, 0), domain.ErrStaleQuestion)

	require.NoError(t, game.Next(&s, now))
	require.ErrorIs(t, game.AcceptsAnswers(s, 0), domain.ErrStaleQuestion)
	require.NoError(t, game.AcceptsAnswers(s, 1))
}

func TestRemainingCountdown(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := lobbySession(1)
	require.NoError(t, game.Start(&s, start))

	require.Equal(t, 20, game.Remaining(s, start.Add(-2*time.Second)), "clock skew never adds time")
	require.Equal(t, 20, game.Remaining(s, start.Add(900*time.Millisecond)))
	require.Equal(t, 19, game.Remaining(s, start.Add(time.Second)))
	require.Equal(t, 1, game.Remaining(s, start.Add(19500*time.Millisecond)))
	require.Equal(t, 0, game.Remaining(s, start.Add(20*time.Second)))
	require.Equal(t, 0, game.Remaining(s, start.Add(time.Hour)))

	deadline, ok := game.Deadline(s)
	require.True(t, ok)
	require.Equal(t, start.Add(20*time.Second), deadline)

	require.NoError(t, game.CloseQuestion(&s))
	require.Equal(t, 0, game.Remaining(s, start))
	_, ok = game.Deadline(s)
	require.False(t, ok)
}
