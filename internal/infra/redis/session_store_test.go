package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/storetest"
)

func TestSessionStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) app.SessionStore {
		mr := miniredis.RunT(t)
		return NewSessionStore(newClient(t, mr), time.Hour)
	})
}

func TestSessionStoreKeysAndCleanup(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(t, mr), time.Minute)
	ctx := context.Background()

	session := domain.Session{
		ID:            "s1",
		JoinCode:      "ABC234",
		Quiz:          storetest.Quiz(),
		Phase:         domain.PhaseLobby,
		QuestionIndex: domain.LobbyIndex,
		Version:       1,
	}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _, err := store.AddPlayer(ctx, "s1", func(s domain.Session, _ []domain.Player) (domain.Player, error) {
		return domain.Player{ID: "p1", SessionID: s.ID, Nickname: "Ada"}, nil
	})
	if err != nil {
		t.Fatalf("add player: %v", err)
	}

	for _, key := range []string{"quiz:session:s1", "quiz:code:ABC234", "quiz:session:s1:roster", "quiz:session:s1:player:p1"} {
		if !mr.Exists(key) {
			t.Fatalf("expected redis key %s to be set", key)
		}
	}
	if ttl := mr.TTL("quiz:session:s1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected session ttl within a minute, got %v", ttl)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected all keys removed, got %v", keys)
	}
}

func TestFeedDeliversAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	publisher := NewFeed(newClient(t, mr), nil)
	subscriber := NewFeed(newClient(t, mr), nil)

	ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCtx()
	events, cancel, err := subscriber.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for v := int64(1); v <= 3; v++ {
		err := publisher.Publish(ctx, domain.Event{Type: domain.EventPhaseChanged, SessionID: "s1", Version: v, Phase: domain.PhaseQuestion})
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	for want := int64(1); want <= 3; want++ {
		select {
		case ev := <-events:
			if ev.Version != want || ev.Type != domain.EventPhaseChanged {
				t.Fatalf("expected phaseChanged v%d, got %+v", want, ev)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for event v%d", want)
		}
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func newClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}
