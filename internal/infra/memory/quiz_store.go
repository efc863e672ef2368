package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// QuizStore keeps authored quizzes in a map. It is the default content
// source when no database is configured, and also serves as a QuizLoader.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizStore(seed ...domain.Quiz) *QuizStore {
	s := &QuizStore{quizzes: make(map[string]domain.Quiz, len(seed))}
	for _, quiz := range seed {
		s.quizzes[quiz.ID] = quiz
	}
	return s
}

func (s *QuizStore) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *QuizStore) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.GetQuiz(ctx, quizID)
}

// ListQuizzes returns the owner's quizzes, most recently updated first.
func (s *QuizStore) ListQuizzes(_ context.Context, ownerID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quizzes := make([]domain.Quiz, 0)
	for _, quiz := range s.quizzes {
		if quiz.OwnerID == ownerID {
			quizzes = append(quizzes, quiz)
		}
	}
	sort.Slice(quizzes, func(i, j int) bool {
		if !quizzes[i].UpdatedAt.Equal(quizzes[j].UpdatedAt) {
			return quizzes[i].UpdatedAt.After(quizzes[j].UpdatedAt)
		}
		return quizzes[i].ID < quizzes[j].ID
	})
	return quizzes, nil
}

func (s *QuizStore) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	return nil
}

// SessionArchive keeps finished session summaries in memory.
type SessionArchive struct {
	mu        sync.RWMutex
	summaries map[string][]domain.SessionSummary
}

func NewSessionArchive() *SessionArchive {
	return &SessionArchive{summaries: make(map[string][]domain.SessionSummary)}
}

func (a *SessionArchive) SaveSummary(_ context.Context, summary domain.SessionSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing := a.summaries[summary.QuizID]
	for i := range existing {
		if existing[i].SessionID == summary.SessionID {
			existing[i] = summary
			return nil
		}
	}
	a.summaries[summary.QuizID] = append(existing, summary)
	return nil
}

// ListSummaries returns the newest sessions first.
func (a *SessionArchive) ListSummaries(_ context.Context, quizID string) ([]domain.SessionSummary, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	summaries := append([]domain.SessionSummary(nil), a.summaries[quizID]...)
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].EndedAt.After(summaries[j].EndedAt)
	})
	if summaries == nil {
		summaries = []domain.SessionSummary{}
	}
	return summaries, nil
}
