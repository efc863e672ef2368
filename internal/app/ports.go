package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// SessionStore persists live sessions and their players. Implementations make
// Update, AddPlayer and RecordSubmission atomic: the callback runs against the
// committed state and its result is stored only if nothing changed underneath.
type SessionStore interface {
	// Create stores a new session. It fails with domain.ErrCodeTaken when an
	// active session already owns the join code.
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	// GetByCode resolves the active session owning a join code.
	GetByCode(ctx context.Context, code string) (domain.Session, error)
	// Update applies fn to the session and bumps its version.
	Update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error)
	// AddPlayer appends the player built by fn to the roster, increments the
	// player count and bumps the session version.
	AddPlayer(ctx context.Context, sessionID string, build func(domain.Session, []domain.Player) (domain.Player, error)) (domain.Player, domain.Session, error)
	Player(ctx context.Context, sessionID, playerID string) (domain.Player, error)
	Players(ctx context.Context, sessionID string) ([]domain.Player, error)
	// RecordSubmission stores at most one submission per player and question.
	// When one exists it is returned with Recorded false and score is not called.
	RecordSubmission(ctx context.Context, sessionID, playerID, questionID string, score ScoreFunc) (SubmissionOutcome, error)
	Submissions(ctx context.Context, sessionID, questionID string) ([]domain.Submission, error)
	// ResetAbsentStreaks zeroes the streak of every player without a
	// submission for questionID.
	ResetAbsentStreaks(ctx context.Context, sessionID, questionID string) error
	Delete(ctx context.Context, sessionID string) error
}

// ScoreFunc judges a submission against the committed session and player and
// returns what to store.
type ScoreFunc func(session domain.Session, player domain.Player) (domain.Submission, domain.Player, error)

// SubmissionOutcome is the stored submission together with the player after it
// was applied.
type SubmissionOutcome struct {
	Submission domain.Submission
	Player     domain.Player
	Recorded   bool
}

// Feed carries session change events to subscribers, possibly on other
// instances.
type Feed interface {
	Publish(ctx context.Context, event domain.Event) error
	// Subscribe returns a channel of events for one session. The caller must
	// invoke the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// CacheInvalidator drops cached quiz content after it was edited.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, quizID string) error
}

// QuizStore is the authoring store for quizzes.
type QuizStore interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error)
	DeleteQuiz(ctx context.Context, quizID string) error
}

// SessionArchive keeps the final standings of finished sessions.
type SessionArchive interface {
	SaveSummary(ctx context.Context, summary domain.SessionSummary) error
	ListSummaries(ctx context.Context, quizID string) ([]domain.SessionSummary, error)
}

// EventPublisher forwards lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LifecycleEvent) error
}
