package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// maxTxRetries bounds optimistic transaction retries before giving up with
// domain.ErrConcurrentUpdate.
const maxTxRetries = 16

// SessionStore keeps live sessions in Redis so any instance can serve them.
// Layout:
//
//	quiz:session:{id}                      session JSON
//	quiz:code:{code}                       session id, while the session is active
//	quiz:session:{id}:roster               list of player ids in join order
//	quiz:session:{id}:player:{pid}         player JSON
//	quiz:session:{id}:answer:{qid}:{pid}   submission JSON
//
// Every write runs in a WATCH/MULTI transaction over the keys it read, so a
// callback never commits against state that changed underneath it.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, codeKey(session.JoinCode), session.ID, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve join code: %w", err)
	}
	if !ok {
		return domain.ErrCodeTaken
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		_ = s.client.Del(ctx, codeKey(session.JoinCode)).Err()
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	return loadSession(ctx, s.client, sessionID)
}

func (s *SessionStore) GetByCode(ctx context.Context, code string) (domain.Session, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve join code: %w", err)
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.Active() {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) Update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	var updated domain.Session
	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		next := current
		if err := fn(&next); err != nil {
			return err
		}
		next.Version = current.Version + 1
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(sessionID), data, s.ttl)
			if current.Active() && !next.Active() {
				pipe.Del(ctx, codeKey(next.JoinCode))
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	}, sessionKey(sessionID))
	if err != nil {
		return domain.Session{}, err
	}
	return updated, nil
}

func (s *SessionStore) AddPlayer(ctx context.Context, sessionID string, build func(domain.Session, []domain.Player) (domain.Player, error)) (domain.Player, domain.Session, error) {
	var (
		added   domain.Player
		updated domain.Session
	)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		roster, err := s.loadPlayers(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		player, err := build(current, roster)
		if err != nil {
			return err
		}
		next := current
		next.PlayerCount = len(roster) + 1
		next.Version = current.Version + 1

		sessionData, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		playerData, err := json.Marshal(player)
		if err != nil {
			return fmt.Errorf("marshal player: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, playerKey(sessionID, player.ID), playerData, s.ttl)
			pipe.RPush(ctx, rosterKey(sessionID), player.ID)
			if s.ttl > 0 {
				pipe.Expire(ctx, rosterKey(sessionID), s.ttl)
			}
			pipe.Set(ctx, sessionKey(sessionID), sessionData, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		added, updated = player, next
		return nil
	}, sessionKey(sessionID), rosterKey(sessionID))
	if err != nil {
		return domain.Player{}, domain.Session{}, err
	}
	return added, updated, nil
}

func (s *SessionStore) Player(ctx context.Context, sessionID, playerID string) (domain.Player, error) {
	player, err := loadPlayer(ctx, s.client, sessionID, playerID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		if _, serr := s.Get(ctx, sessionID); serr != nil {
			return domain.Player{}, serr
		}
	}
	return player, err
}

func (s *SessionStore) Players(ctx context.Context, sessionID string) ([]domain.Player, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.loadPlayers(ctx, s.client, sessionID)
}

func (s *SessionStore) RecordSubmission(ctx context.Context, sessionID, playerID, questionID string, score app.ScoreFunc) (app.SubmissionOutcome, error) {
	pKey := playerKey(sessionID, playerID)
	aKey := answerKey(sessionID, questionID, playerID)

	var outcome app.SubmissionOutcome
	err := s.watch(ctx, func(tx *redis.Tx) error {
		session, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		player, err := loadPlayer(ctx, tx, sessionID, playerID)
		if err != nil {
			return err
		}

		raw, err := tx.Get(ctx, aKey).Bytes()
		switch {
		case err == nil:
			var existing domain.Submission
			if err := json.Unmarshal(raw, &existing); err != nil {
				return fmt.Errorf("unmarshal submission: %w", err)
			}
			outcome = app.SubmissionOutcome{Submission: existing, Player: player}
			return nil
		case !errors.Is(err, redis.Nil):
			return fmt.Errorf("load submission: %w", err)
		}

		sub, updated, err := score(session, player)
		if err != nil {
			return err
		}
		subData, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("marshal submission: %w", err)
		}
		playerData, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("marshal player: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, aKey, subData, s.ttl)
			pipe.Set(ctx, pKey, playerData, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		outcome = app.SubmissionOutcome{Submission: sub, Player: updated, Recorded: true}
		return nil
	}, sessionKey(sessionID), pKey, aKey)
	if err != nil {
		return app.SubmissionOutcome{}, err
	}
	return outcome, nil
}

func (s *SessionStore) Submissions(ctx context.Context, sessionID, questionID string) ([]domain.Submission, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	ids, err := s.client.LRange(ctx, rosterKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	subs := make([]domain.Submission, 0, len(ids))
	if len(ids) == 0 {
		return subs, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = answerKey(sessionID, questionID, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var sub domain.Submission
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("unmarshal submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *SessionStore) ResetAbsentStreaks(ctx context.Context, sessionID, questionID string) error {
	ids, err := s.client.LRange(ctx, rosterKey(sessionID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	for _, id := range ids {
		pKey := playerKey(sessionID, id)
		aKey := answerKey(sessionID, questionID, id)
		err := s.watch(ctx, func(tx *redis.Tx) error {
			answered, err := tx.Exists(ctx, aKey).Result()
			if err != nil {
				return err
			}
			if answered > 0 {
				return nil
			}
			player, err := loadPlayer(ctx, tx, sessionID, id)
			if err != nil {
				return err
			}
			if player.Streak == 0 {
				return nil
			}
			player.Streak = 0
			data, err := json.Marshal(player)
			if err != nil {
				return fmt.Errorf("marshal player: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, pKey, data, s.ttl)
				return nil
			})
			return err
		}, pKey, aKey)
		if err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
			return err
		}
	}
	return nil
}

// Delete removes the session, its roster and every player and answer key.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	keys := []string{sessionKey(sessionID), rosterKey(sessionID)}

	session, err := s.Get(ctx, sessionID)
	switch {
	case err == nil:
		if owner, _ := s.client.Get(ctx, codeKey(session.JoinCode)).Result(); owner == sessionID {
			keys = append(keys, codeKey(session.JoinCode))
		}
	case !errors.Is(err, domain.ErrSessionNotFound):
		return err
	}

	pattern := fmt.Sprintf("quiz:session:%s:*", sessionID)
	var cursor uint64
	for {
		matched, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan session keys: %w", err)
		}
		keys = append(keys, matched...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *SessionStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return domain.ErrConcurrentUpdate
}

func (s *SessionStore) requireSession(ctx context.Context, sessionID string) error {
	n, err := s.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

type rosterReader interface {
	getter
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (s *SessionStore) loadPlayers(ctx context.Context, r rosterReader, sessionID string) ([]domain.Player, error) {
	ids, err := r.LRange(ctx, rosterKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	players := make([]domain.Player, 0, len(ids))
	if len(ids) == 0 {
		return players, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = playerKey(sessionID, id)
	}
	values, err := r.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var p domain.Player
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal player: %w", err)
		}
		players = append(players, p)
	}
	return players, nil
}

func loadSession(ctx context.Context, g getter, sessionID string) (domain.Session, error) {
	raw, err := g.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func loadPlayer(ctx context.Context, g getter, sessionID, playerID string) (domain.Player, error) {
	raw, err := g.Get(ctx, playerKey(sessionID, playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("load player: %w", err)
	}
	var p domain.Player
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Player{}, fmt.Errorf("unmarshal player: %w", err)
	}
	return p, nil
}

func sessionKey(id string) string {
	return "quiz:session:" + id
}

func codeKey(code string) string {
	return "quiz:code:" + code
}

func rosterKey(id string) string {
	return "quiz:session:" + id + ":roster"
}

func playerKey(sessionID, playerID string) string {
	return "quiz:session:" + sessionID + ":player:" + playerID
}

func answerKey(sessionID, questionID, playerID string) string {
	return "quiz:session:" + sessionID + ":answer:" + questionID + ":" + playerID
}
