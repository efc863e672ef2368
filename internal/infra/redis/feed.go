package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

const subscriberBuffer = 32

// Feed fans session events out through Redis Pub/Sub so websocket clients
// connected to any instance see every change.
type Feed struct {
	client *redis.Client
	logger *zap.Logger
}

func NewFeed(client *redis.Client, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{client: client, logger: logger}
}

func (f *Feed) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return f.client.Publish(ctx, eventsChannel(event.SessionID), data).Err()
}

// Subscribe returns once the subscription is confirmed, so a snapshot read
// afterwards cannot miss an event.
func (f *Feed) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	pubsub := f.client.Subscribe(ctx, eventsChannel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to session events: %w", err)
	}

	out := make(chan domain.Event, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					f.logger.Warn("drop malformed event", zap.String("session_id", sessionID), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				default:
					select {
					case <-out:
					default:
					}
					out <- event
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func eventsChannel(sessionID string) string {
	return "quiz:session:" + sessionID + ":events"
}
