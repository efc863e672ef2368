package domain

import "time"

// QuestionKind selects how a question is answered and scored.
type QuestionKind string

const (
	QuestionMultipleChoice QuestionKind = "multiple-choice"
	QuestionOrdering       QuestionKind = "ordering"
)

// Answer is one option of a question. Correct is only meaningful for
// multiple-choice questions, Position only for ordering questions.
type Answer struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Correct  bool   `json:"correct,omitempty"`
	Position int    `json:"position"`
}

// Question is a single unit of play.
type Question struct {
	ID        string       `json:"id"`
	Kind      QuestionKind `json:"kind"`
	Prompt    string       `json:"prompt"`
	MediaURL  string       `json:"mediaUrl,omitempty"`
	TimeLimit int          `json:"timeLimit"` // seconds
	Points    int          `json:"points"`
	Answers   []Answer     `json:"answers"`
}

// Quiz is authored content owned by one admin.
type Quiz struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Phase is the progression state of a live session.
type Phase string

const (
	PhaseLobby       Phase = "lobby"
	PhaseQuestion    Phase = "question"
	PhaseResults     Phase = "results"
	PhaseLeaderboard Phase = "leaderboard"
	PhaseFinished    Phase = "finished"
)

// LobbyIndex is the question index of a session that has not started.
const LobbyIndex = -1

// Session is the authoritative record of one live run of a quiz. Quiz is a
// snapshot taken when the session was created.
type Session struct {
	ID                string     `json:"id"`
	JoinCode          string     `json:"joinCode"`
	HostID            string     `json:"hostId"`
	Quiz              Quiz       `json:"quiz"`
	Phase             Phase      `json:"phase"`
	QuestionIndex     int        `json:"questionIndex"`
	QuestionStartedAt time.Time  `json:"questionStartedAt"`
	PlayerCount       int        `json:"playerCount"`
	CreatedAt         time.Time  `json:"createdAt"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	EndedAt           *time.Time `json:"endedAt,omitempty"`
	Version           int64      `json:"version"`
}

// Active reports whether the session still accepts host actions.
func (s Session) Active() bool {
	return s.Phase != PhaseFinished
}

// Status is the coarse active/finished state.
func (s Session) Status() string {
	if s.Active() {
		return "active"
	}
	return "finished"
}

// CurrentQuestion returns the question at the current index, if any.
func (s Session) CurrentQuestion() (Question, bool) {
	if s.QuestionIndex < 0 || s.QuestionIndex >= len(s.Quiz.Questions) {
		return Question{}, false
	}
	return s.Quiz.Questions[s.QuestionIndex], true
}

// Player is a participant scoped to one session.
type Player struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	Nickname     string    `json:"nickname"`
	Score        int       `json:"score"`
	Streak       int       `json:"streak"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastScoredAt time.Time `json:"lastScoredAt"`
}

// AnswerSubmission is what a player sends for the active question. AnswerID is
// used by multiple-choice questions, Order by ordering questions.
type AnswerSubmission struct {
	QuestionIndex int      `json:"questionIndex"`
	QuestionID    string   `json:"questionId"`
	AnswerID      string   `json:"answerId,omitempty"`
	Order         []string `json:"order,omitempty"`
}

// Submission is the stored, scored outcome of one AnswerSubmission.
type Submission struct {
	PlayerID       string    `json:"playerId"`
	QuestionID     string    `json:"questionId"`
	QuestionIndex  int       `json:"questionIndex"`
	AnswerID       string    `json:"answerId,omitempty"`
	Order          []string  `json:"order,omitempty"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	Correct        bool      `json:"correct"`
	CorrectRatio   float64   `json:"correctRatio"`
	Points         int       `json:"points"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// AnswerResult summarizes the outcome of a submission for a single player.
type AnswerResult struct {
	QuestionID      string  `json:"questionId"`
	QuestionIndex   int     `json:"questionIndex"`
	Correct         bool    `json:"correct"`
	CorrectRatio    float64 `json:"correctRatio"`
	Awarded         int     `json:"awarded"`
	TotalScore      int     `json:"totalScore"`
	Streak          int     `json:"streak"`
	AlreadyAnswered bool    `json:"alreadyAnswered"`
}

// LeaderboardEntry is a snapshot-friendly view of a player.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Streak   int    `json:"streak"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SessionSummary is the archived result of a finished session.
type SessionSummary struct {
	SessionID string             `json:"sessionId"`
	QuizID    string             `json:"quizId"`
	QuizTitle string             `json:"quizTitle"`
	HostID    string             `json:"hostId"`
	JoinCode  string             `json:"joinCode"`
	StartedAt *time.Time         `json:"startedAt,omitempty"`
	EndedAt   time.Time          `json:"endedAt"`
	Standings []LeaderboardEntry `json:"standings"`
}
