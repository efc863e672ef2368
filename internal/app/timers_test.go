package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/storetest"
)

type fakeTimer struct {
	d       time.Duration
	fire    func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) after(d time.Duration, fire func()) app.Stopper {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{d: d, fire: fire}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) last(t *testing.T) *fakeTimer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timers) == 0 {
		t.Fatalf("no timer scheduled")
	}
	return f.timers[len(f.timers)-1]
}

func newTimedService(t *testing.T) (*app.GameService, *fakeTimers, *testClock) {
	t.Helper()
	timers := &fakeTimers{}
	clock := newTestClock()
	quizzes := memory.NewQuizRepository(memory.NewQuizStore(storetest.Quiz()), time.Minute)
	service := app.NewGameService(memory.NewSessionStore(), memory.NewFeed(), quizzes,
		app.WithClock(clock.Now),
		app.WithAfterFunc(timers.after),
	)
	t.Cleanup(service.Close)
	return service, timers, clock
}

func TestQuestionTimerClosesQuestion(t *testing.T) {
	service, timers, clock := newTimedService(t)
	ctx := context.Background()

	session, err := service.CreateSession(ctx, "quiz-1", "admin-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.JoinSession(ctx, session.JoinCode, "Ada"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.StartQuiz(ctx, session.ID, "admin-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	timer := timers.last(t)
	if timer.d != 20*time.Second {
		t.Fatalf("expected 20s timer, got %v", timer.d)
	}

	clock.Advance(20 * time.Second)
	timer.fire()

	got, err := service.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phase != domain.PhaseResults || got.QuestionIndex != 0 {
		t.Fatalf("timer should close question 0, got %s/%d", got.Phase, got.QuestionIndex)
	}
}

func TestStaleTimerIsIgnored(t *testing.T) {
	service, timers, _ := newTimedService(t)
	ctx := context.Background()

	session, err := service.CreateSession(ctx, "quiz-1", "admin-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.JoinSession(ctx, session.JoinCode, "Ada"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.StartQuiz(ctx, session.ID, "admin-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := timers.last(t)

	if _, err := service.CloseQuestion(ctx, session.ID, "admin-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !first.stopped {
		t.Fatalf("closing the question should stop its timer")
	}
	opened, err := service.NextQuestion(ctx, session.ID, "admin-1")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	second := timers.last(t)
	if second == first || second.d != 30*time.Second {
		t.Fatalf("expected a fresh 30s timer, got %v", second.d)
	}

	// A timer armed for question 0 must not close question 1.
	first.fire()
	got, err := service.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phase != domain.PhaseQuestion || got.QuestionIndex != 1 || got.Version != opened.Version {
		t.Fatalf("stale timer changed the session: %s/%d v%d", got.Phase, got.QuestionIndex, got.Version)
	}

	if _, err := service.EndSession(ctx, session.ID, "admin-1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if !second.stopped {
		t.Fatalf("ending the session should stop the pending timer")
	}
	second.fire()
	got, err = service.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phase != domain.PhaseFinished {
		t.Fatalf("expected finished, got %s", got.Phase)
	}
}
