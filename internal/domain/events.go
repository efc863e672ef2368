package domain

import "time"

// EventType names a change published on a session's feed.
type EventType string

const (
	EventPlayerJoined   EventType = "playerJoined"
	EventPhaseChanged   EventType = "phaseChanged"
	EventAnswerReceived EventType = "answerReceived"
)

// Event is one entry of a session's change feed. Version is the session
// version at the time of the change; clients drop phase changes older than
// the last one they applied.
type Event struct {
	Type          EventType    `json:"type"`
	SessionID     string       `json:"sessionId"`
	Version       int64        `json:"version"`
	Phase         Phase        `json:"phase"`
	QuestionIndex int          `json:"questionIndex"`
	Player        *Player      `json:"player,omitempty"`
	Leaderboard   *Leaderboard `json:"leaderboard,omitempty"`
	At            time.Time    `json:"at"`
}

// LifecycleType names an event published to downstream consumers.
type LifecycleType string

const (
	LifecycleSessionStarted  LifecycleType = "session.started"
	LifecycleSessionFinished LifecycleType = "session.finished"
)

// LifecycleEvent is published outside the service when a session starts or
// finishes.
type LifecycleEvent struct {
	Type      LifecycleType   `json:"type"`
	SessionID string          `json:"sessionId"`
	QuizID    string          `json:"quizId"`
	HostID    string          `json:"hostId"`
	Players   int             `json:"players"`
	Summary   *SessionSummary `json:"summary,omitempty"`
	At        time.Time       `json:"at"`
}
