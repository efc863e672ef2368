package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/game"
	"live-quiz-service/internal/metrics"
)

const backgroundTimeout = 5 * time.Second

var errTimerStale = errors.New("question timer is stale")

// GameService contains the live session use cases: creating and joining
// sessions, answering, and host-driven progression.
type GameService struct {
	sessions  SessionStore
	feed      Feed
	quizzes   QuizRepository
	archive   SessionArchive
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
	codes     CodeGenerator
	autoClose bool
	timers    *questionTimers
}

// Option customizes a GameService.
type Option func(*GameService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *GameService) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *GameService) { s.metrics = m }
}

// WithArchive stores final standings when a session finishes.
func WithArchive(archive SessionArchive) Option {
	return func(s *GameService) { s.archive = archive }
}

// WithPublisher forwards session started/finished events.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *GameService) { s.publisher = publisher }
}

func WithCodeGenerator(codes CodeGenerator) Option {
	return func(s *GameService) { s.codes = codes }
}

// WithoutAutoClose disables the server-side question timer; questions then
// close only when the host closes them.
func WithoutAutoClose() Option {
	return func(s *GameService) { s.autoClose = false }
}

// WithAfterFunc replaces time.AfterFunc for question timers; test-only.
func WithAfterFunc(after AfterFunc) Option {
	return func(s *GameService) { s.timers = newQuestionTimers(after) }
}

func NewGameService(sessions SessionStore, feed Feed, quizzes QuizRepository, opts ...Option) *GameService {
	s := &GameService{
		sessions:  sessions,
		feed:      feed,
		quizzes:   quizzes,
		logger:    zap.NewNop(),
		now:       time.Now,
		codes:     RandomCodes(defaultCodeLength),
		autoClose: true,
		timers:    newQuestionTimers(realAfterFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close stops pending question timers.
func (s *GameService) Close() {
	s.timers.stopAll()
}

// CreateSession snapshots a quiz into a new lobby with a unique join code.
func (s *GameService) CreateSession(ctx context.Context, quizID, hostID string) (domain.Session, error) {
	if hostID == "" {
		return domain.Session{}, domain.ErrNotHost
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Session{}, err
	}
	if quiz.OwnerID != "" && quiz.OwnerID != hostID {
		return domain.Session{}, domain.ErrNotOwner
	}
	if err := quiz.Validate(); err != nil && !errors.Is(err, domain.ErrEmptyQuiz) {
		return domain.Session{}, err
	}

	now := s.now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return domain.Session{}, err
		}
		session := domain.Session{
			ID:            uuid.NewString(),
			JoinCode:      code,
			HostID:        hostID,
			Quiz:          quiz,
			Phase:         domain.PhaseLobby,
			QuestionIndex: domain.LobbyIndex,
			CreatedAt:     now,
			Version:       1,
		}
		err = s.sessions.Create(ctx, session)
		if errors.Is(err, domain.ErrCodeTaken) {
			s.logger.Debug("join code collision", zap.String("join_code", code), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return domain.Session{}, fmt.Errorf("create session: %w", err)
		}
		s.metrics.SessionCreated()
		s.logger.Info("session created",
			zap.String("session_id", session.ID),
			zap.String("quiz_id", quiz.ID),
			zap.String("join_code", code),
		)
		return session, nil
	}
	return domain.Session{}, fmt.Errorf("allocate join code after %d attempts: %w", maxCodeAttempts, domain.ErrCodeTaken)
}

// JoinSession adds a player to the lobby of the active session owning code.
func (s *GameService) JoinSession(ctx context.Context, code, nickname string) (domain.Player, error) {
	code, err := domain.NormalizeCode(code)
	if err != nil {
		return domain.Player{}, err
	}
	nickname, err = domain.NormalizeNickname(nickname)
	if err != nil {
		return domain.Player{}, err
	}
	found, err := s.sessions.GetByCode(ctx, code)
	if err != nil {
		return domain.Player{}, err
	}

	now := s.now()
	player, session, err := s.sessions.AddPlayer(ctx, found.ID, func(current domain.Session, roster []domain.Player) (domain.Player, error) {
		if !current.Active() {
			return domain.Player{}, domain.ErrSessionNotFound
		}
		if current.Phase != domain.PhaseLobby {
			return domain.Player{}, domain.ErrSessionStarted
		}
		for _, p := range roster {
			if strings.EqualFold(p.Nickname, nickname) {
				return domain.Player{}, domain.ErrNicknameTaken
			}
		}
		return domain.Player{
			ID:        uuid.NewString(),
			SessionID: current.ID,
			Nickname:  nickname,
			JoinedAt:  now,
		}, nil
	})
	if err != nil {
		return domain.Player{}, err
	}

	s.metrics.PlayerJoined()
	s.publish(ctx, domain.Event{
		Type:          domain.EventPlayerJoined,
		SessionID:     session.ID,
		Version:       session.Version,
		Phase:         session.Phase,
		QuestionIndex: session.QuestionIndex,
		Player:        &player,
		At:            now,
	})
	s.logger.Info("player joined",
		zap.String("session_id", session.ID),
		zap.String("player_id", player.ID),
		zap.Int("players", session.PlayerCount),
	)
	return player, nil
}

// SubmitAnswer scores a player's answer for the current question. A repeated
// submission returns the first result with AlreadyAnswered set.
func (s *GameService) SubmitAnswer(ctx context.Context, sessionID, playerID string, submission domain.AnswerSubmission) (domain.AnswerResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if err := game.AcceptsAnswers(session, submission.QuestionIndex); err != nil {
		s.metrics.Answer("rejected")
		return domain.AnswerResult{}, err
	}
	question, _ := session.CurrentQuestion()
	if submission.QuestionID != question.ID {
		s.metrics.Answer("rejected")
		return domain.AnswerResult{}, domain.ErrStaleQuestion
	}
	if err := game.CheckSubmission(question, submission); err != nil {
		s.metrics.Answer("rejected")
		return domain.AnswerResult{}, err
	}

	outcome, err := s.sessions.RecordSubmission(ctx, sessionID, playerID, question.ID,
		func(current domain.Session, player domain.Player) (domain.Submission, domain.Player, error) {
			if err := game.AcceptsAnswers(current, submission.QuestionIndex); err != nil {
				return domain.Submission{}, domain.Player{}, err
			}
			at := s.now()
			elapsed := game.ClampElapsed(question.TimeLimit, game.Elapsed(current, at))
			verdict := game.Score(question, submission, elapsed)
			return domain.Submission{
				PlayerID:       player.ID,
				QuestionID:     question.ID,
				QuestionIndex:  submission.QuestionIndex,
				AnswerID:       submission.AnswerID,
				Order:          submission.Order,
				ElapsedSeconds: elapsed,
				Correct:        verdict.Correct,
				CorrectRatio:   verdict.CorrectRatio,
				Points:         verdict.Points,
				SubmittedAt:    at,
			}, game.Apply(player, verdict, at), nil
		})
	if err != nil {
		if domain.KindOf(err) != domain.KindInternal {
			s.metrics.Answer("rejected")
		}
		return domain.AnswerResult{}, err
	}

	recorded := outcome.Submission
	result := domain.AnswerResult{
		QuestionID:      recorded.QuestionID,
		QuestionIndex:   recorded.QuestionIndex,
		Correct:         recorded.Correct,
		CorrectRatio:    recorded.CorrectRatio,
		Awarded:         recorded.Points,
		TotalScore:      outcome.Player.Score,
		Streak:          outcome.Player.Streak,
		AlreadyAnswered: !outcome.Recorded,
	}
	if !outcome.Recorded {
		s.metrics.Answer("duplicate")
		return result, nil
	}

	s.metrics.Answer(answerOutcome(recorded))
	s.publish(ctx, domain.Event{
		Type:          domain.EventAnswerReceived,
		SessionID:     session.ID,
		Version:       session.Version,
		Phase:         session.Phase,
		QuestionIndex: recorded.QuestionIndex,
		At:            recorded.SubmittedAt,
	})
	return result, nil
}

func answerOutcome(sub domain.Submission) string {
	switch {
	case sub.Correct:
		return "correct"
	case sub.CorrectRatio > 0:
		return "partial"
	default:
		return "incorrect"
	}
}

// StartQuiz opens the first question.
func (s *GameService) StartQuiz(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, hostID, func(session *domain.Session, now time.Time) error {
		return game.Start(session, now)
	})
}

// CloseQuestion ends answering time for the current question early.
func (s *GameService) CloseQuestion(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, hostID, func(session *domain.Session, _ time.Time) error {
		return game.CloseQuestion(session)
	})
}

func (s *GameService) ShowLeaderboard(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, hostID, func(session *domain.Session, _ time.Time) error {
		return game.ShowLeaderboard(session)
	})
}

// NextQuestion opens the following question, or finishes after the last one.
func (s *GameService) NextQuestion(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, hostID, game.Next)
}

// EndSession finishes the session from any live phase.
func (s *GameService) EndSession(ctx context.Context, sessionID, hostID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, hostID, game.End)
}

// DeleteSession drops a session and its players. Only the host may do this.
func (s *GameService) DeleteSession(ctx context.Context, sessionID, hostID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.HostID != hostID {
		return domain.ErrNotHost
	}
	s.timers.cancel(sessionID)
	if session.Active() {
		s.metrics.SessionFinished()
	}
	return s.sessions.Delete(ctx, sessionID)
}

func (s *GameService) transition(ctx context.Context, sessionID, hostID string, step func(*domain.Session, time.Time) error) (domain.Session, error) {
	var before domain.Session
	updated, err := s.sessions.Update(ctx, sessionID, func(session *domain.Session) error {
		if session.HostID != hostID {
			return domain.ErrNotHost
		}
		before = *session
		return step(session, s.now())
	})
	if err != nil {
		return domain.Session{}, err
	}
	s.afterTransition(ctx, before, updated)
	return updated, nil
}

// afterTransition runs the side effects of a committed phase change.
// Failures are logged; the transition itself already happened.
func (s *GameService) afterTransition(ctx context.Context, before, after domain.Session) {
	stillAccepting := game.AcceptingPhase(after.Phase) && after.QuestionIndex == before.QuestionIndex
	if game.AcceptingPhase(before.Phase) && !stillAccepting {
		if q, ok := before.CurrentQuestion(); ok {
			if err := s.sessions.ResetAbsentStreaks(ctx, after.ID, q.ID); err != nil {
				s.logger.Error("reset streaks failed", zap.String("session_id", after.ID), zap.Error(err))
			}
		}
	}
	s.scheduleClose(after)

	event := domain.Event{
		Type:          domain.EventPhaseChanged,
		SessionID:     after.ID,
		Version:       after.Version,
		Phase:         after.Phase,
		QuestionIndex: after.QuestionIndex,
		At:            s.now(),
	}
	switch after.Phase {
	case domain.PhaseResults, domain.PhaseLeaderboard, domain.PhaseFinished:
		lb, err := s.Leaderboard(ctx, after.ID)
		if err != nil {
			s.logger.Error("build leaderboard failed", zap.String("session_id", after.ID), zap.Error(err))
			break
		}
		event.Leaderboard = &lb
	}
	s.publish(ctx, event)
	s.metrics.Transition(string(after.Phase))
	s.logger.Info("phase changed",
		zap.String("session_id", after.ID),
		zap.String("from", string(before.Phase)),
		zap.String("to", string(after.Phase)),
		zap.Int("question_index", after.QuestionIndex),
		zap.Int64("version", after.Version),
	)

	if before.Phase == domain.PhaseLobby && after.Phase == domain.PhaseQuestion {
		s.publishLifecycle(ctx, domain.LifecycleEvent{
			Type:      domain.LifecycleSessionStarted,
			SessionID: after.ID,
			QuizID:    after.Quiz.ID,
			HostID:    after.HostID,
			Players:   after.PlayerCount,
			At:        event.At,
		})
	}
	if after.Phase == domain.PhaseFinished {
		s.finish(ctx, after, event.Leaderboard)
	}
}

func (s *GameService) finish(ctx context.Context, session domain.Session, lb *domain.Leaderboard) {
	s.timers.cancel(session.ID)
	s.metrics.SessionFinished()

	summary := domain.SessionSummary{
		SessionID: session.ID,
		QuizID:    session.Quiz.ID,
		QuizTitle: session.Quiz.Title,
		HostID:    session.HostID,
		JoinCode:  session.JoinCode,
		StartedAt: session.StartedAt,
		EndedAt:   s.now(),
		Standings: []domain.LeaderboardEntry{},
	}
	if session.EndedAt != nil {
		summary.EndedAt = *session.EndedAt
	}
	if lb != nil {
		summary.Standings = lb.Entries
	}
	if s.archive != nil {
		if err := s.archive.SaveSummary(ctx, summary); err != nil {
			s.logger.Error("archive session failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	s.publishLifecycle(ctx, domain.LifecycleEvent{
		Type:      domain.LifecycleSessionFinished,
		SessionID: session.ID,
		QuizID:    session.Quiz.ID,
		HostID:    session.HostID,
		Players:   session.PlayerCount,
		Summary:   &summary,
		At:        summary.EndedAt,
	})
}

// scheduleClose arms the question timer for an open question and disarms it
// otherwise. The timer only closes the exact question version it was armed for.
func (s *GameService) scheduleClose(session domain.Session) {
	deadline, ok := game.Deadline(session)
	if !ok || !s.autoClose {
		s.timers.cancel(session.ID)
		return
	}
	sessionID, index, version := session.ID, session.QuestionIndex, session.Version
	s.timers.schedule(sessionID, deadline.Sub(s.now()), func() {
		s.closeExpired(sessionID, index, version)
	})
}

func (s *GameService) closeExpired(sessionID string, index int, version int64) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	var before domain.Session
	updated, err := s.sessions.Update(ctx, sessionID, func(session *domain.Session) error {
		if session.Phase != domain.PhaseQuestion || session.QuestionIndex != index || session.Version != version {
			return errTimerStale
		}
		before = *session
		return game.CloseQuestion(session)
	})
	if errors.Is(err, errTimerStale) || errors.Is(err, domain.ErrSessionNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("auto close failed", zap.String("session_id", sessionID), zap.Int("question_index", index), zap.Error(err))
		return
	}
	s.logger.Debug("question timed out", zap.String("session_id", sessionID), zap.Int("question_index", index))
	s.afterTransition(ctx, before, updated)
}

// Leaderboard ranks players by score, then by who reached it first, then by
// nickname.
func (s *GameService) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	players, err := s.sessions.Players(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return buildLeaderboard(sessionID, players, s.now()), nil
}

func buildLeaderboard(sessionID string, players []domain.Player, now time.Time) domain.Leaderboard {
	ranked := make([]domain.Player, len(players))
	copy(ranked, players)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].LastScoredAt.Equal(ranked[j].LastScoredAt) {
			return ranked[i].LastScoredAt.Before(ranked[j].LastScoredAt)
		}
		if ranked[i].Nickname != ranked[j].Nickname {
			return ranked[i].Nickname < ranked[j].Nickname
		}
		return ranked[i].ID < ranked[j].ID
	})

	entries := make([]domain.LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		entries[i] = domain.LeaderboardEntry{
			Rank:     i + 1,
			PlayerID: p.ID,
			Nickname: p.Nickname,
			Score:    p.Score,
			Streak:   p.Streak,
		}
	}
	return domain.Leaderboard{SessionID: sessionID, Entries: entries, UpdatedAt: now}
}

// Snapshot is the client view of a session. Solutions are included only
// after the question closed.
func (s *GameService) Snapshot(ctx context.Context, sessionID string) (domain.SessionView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return s.view(session), nil
}

func (s *GameService) view(session domain.Session) domain.SessionView {
	v := domain.SessionView{
		SessionID:     session.ID,
		JoinCode:      session.JoinCode,
		QuizTitle:     session.Quiz.Title,
		Phase:         session.Phase,
		Status:        session.Status(),
		QuestionIndex: session.QuestionIndex,
		QuestionCount: len(session.Quiz.Questions),
		Remaining:     game.Remaining(session, s.now()),
		PlayerCount:   session.PlayerCount,
		Version:       session.Version,
		StartedAt:     session.StartedAt,
		EndedAt:       session.EndedAt,
	}
	q, ok := session.CurrentQuestion()
	if !ok {
		return v
	}
	switch session.Phase {
	case domain.PhaseQuestion:
		public := q.Public()
		v.Question = &public
	case domain.PhaseResults, domain.PhaseLeaderboard:
		public := q.Public()
		reveal := q.Reveal()
		v.Question = &public
		v.Reveal = &reveal
	}
	return v
}

// AnswerProgress tells the host how many players answered the current question.
type AnswerProgress struct {
	QuestionIndex int `json:"questionIndex"`
	Answered      int `json:"answered"`
	Players       int `json:"players"`
}

func (s *GameService) Progress(ctx context.Context, sessionID string) (AnswerProgress, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return AnswerProgress{}, err
	}
	progress := AnswerProgress{QuestionIndex: session.QuestionIndex, Players: session.PlayerCount}
	q, ok := session.CurrentQuestion()
	if !ok {
		return progress, nil
	}
	subs, err := s.sessions.Submissions(ctx, sessionID, q.ID)
	if err != nil {
		return AnswerProgress{}, err
	}
	progress.Answered = len(subs)
	return progress, nil
}

// Subscribe returns the change feed of a session. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *GameService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, nil, err
	}
	return s.feed.Subscribe(ctx, sessionID)
}

func (s *GameService) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

func (s *GameService) Player(ctx context.Context, sessionID, playerID string) (domain.Player, error) {
	return s.sessions.Player(ctx, sessionID, playerID)
}

func (s *GameService) Players(ctx context.Context, sessionID string) ([]domain.Player, error) {
	return s.sessions.Players(ctx, sessionID)
}

func (s *GameService) publish(ctx context.Context, event domain.Event) {
	if err := s.feed.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("session_id", event.SessionID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

func (s *GameService) publishLifecycle(ctx context.Context, event domain.LifecycleEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish lifecycle event failed",
			zap.String("session_id", event.SessionID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
