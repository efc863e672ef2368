package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no active session matches an id or join code.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrSessionStarted is returned when joining a session that left the lobby.
	ErrSessionStarted = errors.New("game already started")
	// ErrSessionFinished is returned for any action on a finished session.
	ErrSessionFinished = errors.New("game is over")
	// ErrStaleQuestion is returned when a submission targets a question that is not current.
	ErrStaleQuestion = errors.New("question is no longer active")
	// ErrInvalidTransition is returned when a host action does not apply to the current phase.
	ErrInvalidTransition = errors.New("action not allowed in the current phase")
	// ErrConcurrentUpdate is returned when a session record kept changing underneath an update.
	ErrConcurrentUpdate = errors.New("session changed concurrently")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in game")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrCodeTaken is returned by stores when a join code is already used by an active session.
	ErrCodeTaken = errors.New("join code already in use")

	ErrInvalidNickname   = errors.New("nickname must be between 2 and 15 characters")
	ErrNicknameTaken     = errors.New("nickname already taken in this game")
	ErrInvalidCode       = errors.New("invalid join code")
	ErrEmptyQuiz         = errors.New("quiz has no questions")
	ErrInvalidQuiz       = errors.New("invalid quiz")
	ErrInvalidQuestion   = errors.New("invalid question")
	ErrInvalidSubmission = errors.New("invalid answer submission")
	ErrNoPlayers         = errors.New("no players have joined")

	ErrNotHost  = errors.New("only the host can control this game")
	ErrNotOwner = errors.New("quiz belongs to another admin")
)

// ErrorKind groups errors by how they are surfaced to users.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindStale
	KindForbidden
)

var kinds = []struct {
	kind ErrorKind
	errs []error
}{
	{KindValidation, []error{ErrInvalidNickname, ErrNicknameTaken, ErrInvalidCode, ErrEmptyQuiz, ErrInvalidQuiz, ErrInvalidQuestion, ErrInvalidSubmission, ErrNoPlayers}},
	{KindNotFound, []error{ErrSessionNotFound, ErrPlayerNotFound, ErrQuizNotFound}},
	{KindStale, []error{ErrSessionStarted, ErrSessionFinished, ErrStaleQuestion, ErrInvalidTransition, ErrConcurrentUpdate}},
	{KindForbidden, []error{ErrNotHost, ErrNotOwner}},
}

// KindOf classifies err. Anything unknown is a collaborator failure.
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStale:
		return "stale"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}
