package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

const subscriberBuffer = 32

// Feed broadcasts session events to in-process subscribers.
type Feed struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Event]struct{}
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[string]map[chan domain.Event]struct{})}
}

// Publish never blocks: a subscriber that fell behind loses its oldest
// buffered event.
func (f *Feed) Publish(_ context.Context, event domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[event.SessionID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, subscriberBuffer)

	f.mu.Lock()
	subs, ok := f.subscribers[sessionID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		f.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			subs := f.subscribers[sessionID]
			delete(subs, ch)
			if len(subs) == 0 {
				delete(f.subscribers, sessionID)
			}
			close(ch)
		})
	}
	stop := context.AfterFunc(ctx, release)
	return ch, func() {
		stop()
		release()
	}, nil
}

// Subscribers reports how many subscribers a session has.
func (f *Feed) Subscribers(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[sessionID])
}
