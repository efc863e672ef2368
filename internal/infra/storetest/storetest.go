// Package storetest holds behaviour tests shared by every app.SessionStore
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/game"
)

// Factory returns an empty store for one test.
type Factory func(t *testing.T) app.SessionStore

// Run executes the shared suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("CodeUniqueAmongActive", func(t *testing.T) { testCodeUniqueAmongActive(t, newStore(t)) })
	t.Run("UpdateBumpsVersion", func(t *testing.T) { testUpdateBumpsVersion(t, newStore(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
	t.Run("AddPlayer", func(t *testing.T) { testAddPlayer(t, newStore(t)) })
	t.Run("RecordSubmissionOnce", func(t *testing.T) { testRecordSubmissionOnce(t, newStore(t)) })
	t.Run("ConcurrentDuplicateSubmissions", func(t *testing.T) { testConcurrentDuplicateSubmissions(t, newStore(t)) })
	t.Run("RecordSubmissionRechecksSession", func(t *testing.T) { testRecordSubmissionRechecksSession(t, newStore(t)) })
	t.Run("ResetAbsentStreaks", func(t *testing.T) { testResetAbsentStreaks(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
}

// Quiz returns a two-question quiz used across the suite.
func Quiz() domain.Quiz {
	return domain.Quiz{
		ID:      "quiz-1",
		OwnerID: "admin-1",
		Title:   "Capitals",
		Questions: []domain.Question{
			{
				ID:        "q1",
				Kind:      domain.QuestionMultipleChoice,
				Prompt:    "Capital of France?",
				TimeLimit: 20,
				Points:    1000,
				Answers: []domain.Answer{
					{ID: "a1", Text: "Paris", Correct: true},
					{ID: "a2", Text: "Lyon"},
				},
			},
			{
				ID:        "q2",
				Kind:      domain.QuestionOrdering,
				Prompt:    "Order by population",
				TimeLimit: 30,
				Points:    500,
				Answers: []domain.Answer{
					{ID: "b1", Text: "Tokyo", Position: 0},
					{ID: "b2", Text: "Delhi", Position: 1},
					{ID: "b3", Text: "Paris", Position: 2},
				},
			},
		},
	}
}

func lobby(id, code string) domain.Session {
	return domain.Session{
		ID:            id,
		JoinCode:      code,
		HostID:        "admin-1",
		Quiz:          Quiz(),
		Phase:         domain.PhaseLobby,
		QuestionIndex: domain.LobbyIndex,
		CreatedAt:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Version:       1,
	}
}

func addPlayer(t *testing.T, store app.SessionStore, sessionID, playerID, nickname string) domain.Player {
	t.Helper()
	player, _, err := store.AddPlayer(context.Background(), sessionID, func(s domain.Session, _ []domain.Player) (domain.Player, error) {
		return domain.Player{ID: playerID, SessionID: s.ID, Nickname: nickname, JoinedAt: s.CreatedAt}, nil
	})
	require.NoError(t, err)
	return player
}

func startSession(t *testing.T, store app.SessionStore, sessionID string) domain.Session {
	t.Helper()
	s, err := store.Update(context.Background(), sessionID, func(s *domain.Session) error {
		return game.Start(s, s.CreatedAt)
	})
	require.NoError(t, err)
	return s
}

// fixedScore awards points for correct answers without looking at timing.
func fixedScore(correct bool, points int) app.ScoreFunc {
	return func(s domain.Session, p domain.Player) (domain.Submission, domain.Player, error) {
		if err := game.AcceptsAnswers(s, s.QuestionIndex); err != nil {
			return domain.Submission{}, domain.Player{}, err
		}
		q, _ := s.CurrentQuestion()
		verdict := game.Verdict{Correct: correct, Points: points}
		if correct {
			verdict.CorrectRatio = 1
		}
		at := s.QuestionStartedAt.Add(time.Second)
		return domain.Submission{
			PlayerID:      p.ID,
			QuestionID:    q.ID,
			QuestionIndex: s.QuestionIndex,
			Correct:       verdict.Correct,
			CorrectRatio:  verdict.CorrectRatio,
			Points:        verdict.Points,
			SubmittedAt:   at,
		}, game.Apply(p, verdict, at), nil
	}
}

func testCreateAndGet(t *testing.T, store app.SessionStore) {
	ctx := context.Background()
	session := lobby("s1", "ABC234")
	require.NoError(t, store.Create(ctx, session))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, session.JoinCode, got.JoinCode)
	require.Equal(t, domain.PhaseLobby, got.Phase)
	require.Equal(t, domain.LobbyIndex, got.QuestionIndex)
	require.Len(t, got.Quiz.Questions, 2)

	byCode, err := store.GetByCode(ctx, "ABC234")
	require.NoError(t, err)
	require.Equal(t, "s1", byCode.ID)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = store.GetByCode(ctx, "ZZZZZZ")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func testCodeUniqueAmongActive(t *testing.T, store app.SessionStore) {
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, lobby("s1", "ABC234")))
	require.ErrorIs(t, store.Create(ctx, lobby("s2", "ABC234")), domain.ErrCodeTaken)

	_, err := store.Update(ctx, "s1", func(s *domain.Session) error {
		return game.End(s, s.CreatedAt)
	})
	require.NoError(t, err)

	_, err = store.GetByCode(ctx, "ABC234")
	require.ErrorIs(t, err, domain.ErrSessionNotFound, "finished sessions release their code")
	require.NoError(t, store.Create(ctx, lobby("s2", "ABC234")))

	got, err := store.GetByCode(ctx, "ABC234")
	require.NoError(t, err)
	require.Equal(t, "s2", got.ID)
}

func testUpdateBumpsVersion(t *testing.T, store app.SessionStore) {
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, lobby("s1", "ABC234")))
	addPlayer(t, store, "s1", "p1", "Ada")

	before, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	after := startSession(t, store, "s1")
	require.Equal(t, before.Version+1, after.Version)
	require.Equal(t, domain.PhaseQuestion, after.Phase)

	boom := errors.New("boom")
	_, err = store.Update(ctx, "s1", func(s *domain.Session) error {
		s.Phase = domain.PhaseFinished
		return boom
	})
	require.ErrorIs(t, err, boom)

	unchanged, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, after.Version, unchanged.Version)
	require.Equal(t, domain.PhaseQuestion, unchanged.Phase)

	_, err = store.Update(ctx, "missing", func(*domain.Session) error { return nil })
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func testConcurrentUpdates(t *testing.T, store app.SessionStore) {
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, lobby("s1", "ABC234")))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "s1", func(*domain.Session) error { return nil })
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(1+writers), got.Version, "no update may be lost")
}

func testAddPlayer(t *testing.T, store app.SessionStore) {
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, lobby("s1", "ABC234")))

	addPlayer(t, store, "s1", "p1", "Ada")
	player, session, err := store.AddPlayer(ctx, "s1", func(s domain.Session, roster []domain.Player) (domain.Player, error) {
		require.Len(t, roster, 1)
		require.Equal(t, "Ada", roster[0].Nickname)
		return domain.Player{ID: "p2", SessionID: s.ID, Nickname: "Grace"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "p2", player.ID)
	require.Equal(t, 2, session.PlayerCount)
	require.Equal(t, int64(3), session.Version)

	_, _, err = store.AddPlayer(ctx, "s1", func(domain.Session, []domain.Player) (domain.Player, error) {
		return domain.Player{}, domain.ErrNicknameTaken
	})
	require.ErrorIs(t, err, domain.ErrNicknameTaken)

	players, err := store.Players(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, players, 2)
	require.Equal(t, []string{"p1", "p2"}, []string{players[0].ID, players[1].ID})

	got, err := store.Player(ctx, "s1", "p2")
	require.NoError(t, err)
	require.Equal(t, "Grace", got.Nickname)
	_, err = store.Player(ctx, "s1", "nobody")
	require.ErrorIs(t, err, domain.ErrPlayerNotFound)

	_, _, err = store.AddPlayer(ctx, "missing", func(domain.Session, []domain.Player) (domain.Player, error) {
		return domain.Player{ID: "x"}, nil
	})
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func testRecordSubmissionOnce(t *testing.T, store app.SessionStore) {
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, lobby("s1", "ABC234")))
	addPlayer(t, store, "s1", "p1", "Ada")
	startSession(t, store, "s1")

	first, err := store.RecordSubmission(ctx, "s1", "p1", "q1", fixedScore(true, 875))
	require.NoError(t, err)
	require.True(t, first.Recorded)
	require.Equal(t, 875, first.Submission.Points)
	require.Equal(t, 875, first.Player.Score)
	require.Equal(t, 1, first.Player.Streak)

	called := false
	second, err := store.RecordSubmission(ctx, "s1", "p1", "q1", func(domain.Session, domain.Player) (domain.Submission, domain.Player, error) {
		called = true
		return domain.Submission{}, domain.Player{}, nil
	})
	require.NoError(t, err)
	require.False(t, called, "a second submission is never scored")
	require.False(t, second.Recorded)
	require.Equal(t, first.Submission.Points, second.Submission.Points)
	require.Equal(t, 875, second.Player.Score)

	subs, err := store.Submissions(ctx, "s1", "q1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	empty, err := store.Submissions(ctx, "s1", "q2")
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = store.RecordSubmission(ctx, "s1", "ghost", "q1", fixedScore(true, 1))
	require.ErrorIs(t, err, domain.ErrPlayerNotFound)
	_, err = store.RecordSubmission(ctx, "missing", "p1", "q1", fixedScore(true, 1))
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func testConcurrentDuplicateSubmissions(t *testing.T, store app.SessionStore) {
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, lobby("s1", "ABC234")))
	const players = 4
	for i := 0; i < players; i++ {
		addPlayer(t, store, "s1", fmt.Sprintf("p%d", i), fmt.Sprintf("Player%d", i))
	}
	startSession(t, store, "s1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	recorded := make(map[string]int)
	for i := 0; i < players; i++ {
		for attempt := 0; attempt < 3; attempt++ {
			wg.Add(1)
			go func(playerID string) {
				defer wg.Done()
				outcome, err := store.RecordSubmission(ctx, "s1", playerID, "q1", fixedScore(true, 100))
				if err != nil {
					t.Errorf("record %s: %v", playerID, err)
					return
				}
				if outcome.Recorded {
					mu.Lock()
					recorded[playerID]++
					mu.Unlock()
				}
			}(fmt.Sprintf("p%d", i))
		}
	}
	wg.Wait()

	for i := 0; i < players; i++ {
		id := fmt.Sprintf("p%d", i)
		require.Equal(t, 1, recorded[id], "player %s scored more than once", id)
		p, err := store.Player(ctx, "s1", id)
		require.NoError(t, err)
		require.Equal(t, 100, p.Score)
	}
}

func testRecordSubmissionRechecksSession(t *testing.T, store app.SessionStore) {
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, lobby("s1", "ABC234")))
	addPlayer(t, store, "s1", "p1", "Ada")
	startSession(t, store, "s1")

	_, err := store.Update(ctx, "s1", func(s *domain.Session) error { return game.End(s, s.CreatedAt) })
	require.NoError(t, err)

	_, err = store.RecordSubmission(ctx, "s1", "p1", "q1", fixedScore(true, 100))
	require.ErrorIs(t, err, domain.ErrSessionFinished)

	p, err := store.Player(ctx, "s1", "p1")
	require.NoError(t, err)
	require.Zero(t, p.Score)
}

func testResetAbsentStreaks(t *testing.T, store app.SessionStore) {
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, lobby("s1", "ABC234")))
	addPlayer(t, store, "s1", "p1", "Ada")
	addPlayer(t, store, "s1", "p2", "Grace")
	startSession(t, store, "s1")

	_, err := store.RecordSubmission(ctx, "s1", "p1", "q1", fixedScore(true, 100))
	require.NoError(t, err)
	_, err = store.RecordSubmission(ctx, "s1", "p2", "q1", fixedScore(true, 100))
	require.NoError(t, err)

	_, err = store.Update(ctx, "s1", func(s *domain.Session) error {
		if err := game.CloseQuestion(s); err != nil {
			return err
		}
		return game.Next(s, s.CreatedAt.Add(time.Minute))
	})
	require.NoError(t, err)

	_, err = store.RecordSubmission(ctx, "s1", "p1", "q2", fixedScore(true, 50))
	require.NoError(t, err)
	require.NoError(t, store.ResetAbsentStreaks(ctx, "s1", "q2"))

	p1, err := store.Player(ctx, "s1", "p1")
	require.NoError(t, err)
	require.Equal(t, 2, p1.Streak)
	require.Equal(t, 150, p1.Score)

	p2, err := store.Player(ctx, "s1", "p2")
	require.NoError(t, err)
	require.Zero(t, p2.Streak, "missing an answer breaks the streak")
	require.Equal(t, 100, p2.Score, "score is kept")
}

func testDelete(t *testing.T, store app.SessionStore) {
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, lobby("s1", "ABC234")))
	addPlayer(t, store, "s1", "p1", "Ada")

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err := store.Get(ctx, "s1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = store.GetByCode(ctx, "ABC234")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = store.Players(ctx, "s1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, store.Delete(ctx, "s1"), "deleting twice is not an error")
}
