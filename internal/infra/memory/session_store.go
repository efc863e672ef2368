package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. A single
// mutex serializes every read-modify-write.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionRecord
	codes    map[string]string
}

type sessionRecord struct {
	session domain.Session
	roster  []string
	players map[string]domain.Player
	answers map[answerKey]domain.Submission
}

type answerKey struct {
	questionID string
	playerID   string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionRecord),
		codes:    make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[session.JoinCode]; ok {
		return domain.ErrCodeTaken
	}
	s.sessions[session.ID] = &sessionRecord{
		session: session,
		players: make(map[string]domain.Player),
		answers: make(map[answerKey]domain.Submission),
	}
	if session.Active() {
		s.codes[session.JoinCode] = session.ID
	}
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return rec.session, nil
}

func (s *SessionStore) GetByCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	rec, ok := s.sessions[id]
	if !ok || !rec.session.Active() {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return rec.session, nil
}

func (s *SessionStore) Update(_ context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	next := rec.session
	if err := fn(&next); err != nil {
		return domain.Session{}, err
	}
	next.Version = rec.session.Version + 1
	rec.session = next
	if !next.Active() && s.codes[next.JoinCode] == next.ID {
		delete(s.codes, next.JoinCode)
	}
	return next, nil
}

func (s *SessionStore) AddPlayer(_ context.Context, sessionID string, build func(domain.Session, []domain.Player) (domain.Player, error)) (domain.Player, domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return domain.Player{}, domain.Session{}, domain.ErrSessionNotFound
	}
	player, err := build(rec.session, rec.playerList())
	if err != nil {
		return domain.Player{}, domain.Session{}, err
	}
	rec.players[player.ID] = player
	rec.roster = append(rec.roster, player.ID)
	rec.session.PlayerCount = len(rec.roster)
	rec.session.Version++
	return player, rec.session, nil
}

func (s *SessionStore) Player(_ context.Context, sessionID, playerID string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return domain.Player{}, domain.ErrSessionNotFound
	}
	player, ok := rec.players[playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (s *SessionStore) Players(_ context.Context, sessionID string) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return rec.playerList(), nil
}

func (s *SessionStore) RecordSubmission(_ context.Context, sessionID, playerID, questionID string, score app.ScoreFunc) (app.SubmissionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return app.SubmissionOutcome{}, domain.ErrSessionNotFound
	}
	player, ok := rec.players[playerID]
	if !ok {
		return app.SubmissionOutcome{}, domain.ErrPlayerNotFound
	}
	key := answerKey{questionID: questionID, playerID: playerID}
	if existing, ok := rec.answers[key]; ok {
		return app.SubmissionOutcome{Submission: existing, Player: player}, nil
	}

	sub, updated, err := score(rec.session, player)
	if err != nil {
		return app.SubmissionOutcome{}, err
	}
	rec.answers[key] = sub
	rec.players[playerID] = updated
	return app.SubmissionOutcome{Submission: sub, Player: updated, Recorded: true}, nil
}

func (s *SessionStore) Submissions(_ context.Context, sessionID, questionID string) ([]domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	subs := make([]domain.Submission, 0, len(rec.roster))
	for _, id := range rec.roster {
		if sub, ok := rec.answers[answerKey{questionID: questionID, playerID: id}]; ok {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *SessionStore) ResetAbsentStreaks(_ context.Context, sessionID, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	for id, player := range rec.players {
		if _, answered := rec.answers[answerKey{questionID: questionID, playerID: id}]; answered {
			continue
		}
		player.Streak = 0
		rec.players[id] = player
	}
	return nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if s.codes[rec.session.JoinCode] == sessionID {
		delete(s.codes, rec.session.JoinCode)
	}
	delete(s.sessions, sessionID)
	return nil
}

func (r *sessionRecord) playerList() []domain.Player {
	players := make([]domain.Player, 0, len(r.roster))
	for _, id := range r.roster {
		players = append(players, r.players[id])
	}
	return players
}
