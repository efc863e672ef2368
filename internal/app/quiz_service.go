package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

// QuizService contains the quiz authoring use cases.
type QuizService struct {
	store   QuizStore
	cache   CacheInvalidator
	archive SessionArchive
	logger  *zap.Logger
	now     func() time.Time
}

func NewQuizService(store QuizStore, cache CacheInvalidator, archive SessionArchive, logger *zap.Logger) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{store: store, cache: cache, archive: archive, logger: logger, now: time.Now}
}

// SaveQuiz creates a quiz, or replaces one the owner already has. Missing
// question and answer ids are generated.
func (s *QuizService) SaveQuiz(ctx context.Context, ownerID string, quiz domain.Quiz) (domain.Quiz, error) {
	if ownerID == "" {
		return domain.Quiz{}, domain.ErrNotOwner
	}
	now := s.now()
	quiz.OwnerID = ownerID
	quiz.Title = strings.TrimSpace(quiz.Title)
	quiz.CreatedAt = now

	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	} else {
		existing, err := s.store.GetQuiz(ctx, quiz.ID)
		switch {
		case err == nil:
			if existing.OwnerID != ownerID {
				return domain.Quiz{}, domain.ErrNotOwner
			}
			quiz.CreatedAt = existing.CreatedAt
		case domain.KindOf(err) != domain.KindNotFound:
			return domain.Quiz{}, err
		}
	}
	quiz.UpdatedAt = now
	assignIDs(&quiz)

	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	if err := s.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	s.invalidate(ctx, quiz.ID)
	s.logger.Info("quiz saved", zap.String("quiz_id", quiz.ID), zap.String("owner_id", ownerID), zap.Int("questions", len(quiz.Questions)))
	return quiz, nil
}

func assignIDs(quiz *domain.Quiz) {
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Kind == "" {
			q.Kind = domain.QuestionMultipleChoice
		}
		for j := range q.Answers {
			if q.Answers[j].ID == "" {
				q.Answers[j].ID = uuid.NewString()
			}
		}
	}
}

func (s *QuizService) GetQuiz(ctx context.Context, ownerID, quizID string) (domain.Quiz, error) {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.OwnerID != ownerID {
		return domain.Quiz{}, domain.ErrNotOwner
	}
	return quiz, nil
}

func (s *QuizService) ListQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	if ownerID == "" {
		return nil, domain.ErrNotOwner
	}
	return s.store.ListQuizzes(ctx, ownerID)
}

// DeleteQuiz removes authored content. Sessions already running keep their
// own snapshot of it.
func (s *QuizService) DeleteQuiz(ctx context.Context, ownerID, quizID string) error {
	if _, err := s.GetQuiz(ctx, ownerID, quizID); err != nil {
		return err
	}
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return err
	}
	s.invalidate(ctx, quizID)
	s.logger.Info("quiz deleted", zap.String("quiz_id", quizID), zap.String("owner_id", ownerID))
	return nil
}

// Results lists archived final standings of a quiz's finished sessions.
func (s *QuizService) Results(ctx context.Context, ownerID, quizID string) ([]domain.SessionSummary, error) {
	if _, err := s.GetQuiz(ctx, ownerID, quizID); err != nil {
		return nil, err
	}
	if s.archive == nil {
		return []domain.SessionSummary{}, nil
	}
	return s.archive.ListSummaries(ctx, quizID)
}

func (s *QuizService) invalidate(ctx context.Context, quizID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, quizID); err != nil {
		s.logger.Warn("invalidate quiz cache failed", zap.String("quiz_id", quizID), zap.Error(err))
	}
}
