package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

type WSHandler struct {
	games    *app.GameService
	tickets  *auth.Issuer
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(games *app.GameService, tickets *auth.Issuer, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		games:   games,
		tickets: tickets,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type snapshotPayload struct {
	Role     auth.Role          `json:"role"`
	PlayerID string             `json:"playerId,omitempty"`
	Session  domain.SessionView `json:"session"`
}

// ServeWS upgrades a ticket holder to a websocket. The first message is a
// snapshot of the session, followed by feed events newer than that snapshot.
// Players send answers; the host sends progression commands.
func (h *WSHandler) ServeWS(c *gin.Context) {
	raw := ticketFromRequest(c.Request)
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing ticket"})
		return
	}
	claims, err := h.tickets.Parse(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	ctx, cancelCtx := context.WithCancel(c.Request.Context())
	defer cancelCtx()

	// Subscribe before taking the snapshot so no change falls in between.
	updates, unsubscribe, err := h.games.Subscribe(ctx, claims.SessionID)
	if err != nil {
		payload := payloadFor(err)
		c.AbortWithStatusJSON(statusFor(domain.KindOf(err)), gin.H{"error": payload.Message, "kind": payload.Kind})
		return
	}
	defer unsubscribe()

	if claims.Role == auth.RolePlayer {
		if _, err := h.games.Player(ctx, claims.SessionID, claims.Subject); err != nil {
			payload := payloadFor(err)
			c.AbortWithStatusJSON(statusFor(domain.KindOf(err)), gin.H{"error": payload.Message, "kind": payload.Kind})
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(
		zap.String("session_id", claims.SessionID),
		zap.String("subject", claims.Subject),
		zap.String("role", string(claims.Role)),
	)

	view, err := h.games.Snapshot(ctx, claims.SessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: payloadFor(err)})
		return
	}

	send := make(chan outboundMessage[any], sendBuffer)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches the connection for writes.
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					logger.Debug("ws write error", zap.Error(err))
					cancelCtx()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancelCtx()
					return
				}
			}
		}
	}()

	send <- outboundMessage[any]{Type: "snapshot", Payload: snapshotPayload{
		Role:     claims.Role,
		PlayerID: playerID(claims),
		Session:  view,
	}}

	go func() {
		defer close(updatesDone)
		gate := newFeedGate(view.Version)
		for {
			select {
			case event, ok := <-updates:
				if !ok {
					return
				}
				if !gate.admit(event) {
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: event}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	logger.Debug("ws connected")
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply := h.handle(ctx, claims, inbound)
		select {
		case send <- reply:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	logger.Debug("ws disconnected")
}

func (h *WSHandler) handle(ctx context.Context, claims auth.Claims, inbound inboundMessage) outboundMessage[any] {
	if claims.Role == auth.RolePlayer {
		if inbound.Type != "answer" {
			return errorMessage("unsupported message type", domain.KindValidation)
		}
		var submission domain.AnswerSubmission
		if err := json.Unmarshal(inbound.Payload, &submission); err != nil {
			return errorMessage("invalid answer payload", domain.KindValidation)
		}
		result, err := h.games.SubmitAnswer(ctx, claims.SessionID, claims.Subject, submission)
		if err != nil {
			return outboundMessage[any]{Type: "error", Payload: payloadFor(err)}
		}
		return outboundMessage[any]{Type: "answerResult", Payload: result}
	}

	var step func(context.Context, string, string) (domain.Session, error)
	switch inbound.Type {
	case "start":
		step = h.games.StartQuiz
	case "close":
		step = h.games.CloseQuestion
	case "leaderboard":
		step = h.games.ShowLeaderboard
	case "next":
		step = h.games.NextQuestion
	case "end":
		step = h.games.EndSession
	default:
		return errorMessage("unsupported message type", domain.KindValidation)
	}
	session, err := step(ctx, claims.SessionID, claims.Subject)
	if err != nil {
		return outboundMessage[any]{Type: "error", Payload: payloadFor(err)}
	}
	return outboundMessage[any]{Type: "ack", Payload: gin.H{
		"command":       inbound.Type,
		"phase":         session.Phase,
		"questionIndex": session.QuestionIndex,
		"version":       session.Version,
	}}
}

// feedGate filters the feed of one connection. Transitions publish after they
// commit, so two of them racing on a session can reach the feed in reverse
// order: phase changes must only move forward from the last one forwarded.
// Joins and answers only add to what the client knows; they are dropped only
// when the snapshot already covers them.
type feedGate struct {
	snapshot  int64
	lastPhase int64
}

func newFeedGate(snapshot int64) *feedGate {
	return &feedGate{snapshot: snapshot, lastPhase: snapshot}
}

// admit reports whether event should be forwarded. Answer events carry the
// version they were recorded at without bumping it.
func (g *feedGate) admit(event domain.Event) bool {
	switch event.Type {
	case domain.EventPhaseChanged:
		if event.Version <= g.lastPhase {
			return false
		}
		g.lastPhase = event.Version
		return true
	case domain.EventAnswerReceived:
		return event.Version >= g.snapshot
	default:
		return event.Version > g.snapshot
	}
}

func playerID(claims auth.Claims) string {
	if claims.Role == auth.RolePlayer {
		return claims.Subject
	}
	return ""
}

func errorMessage(message string, kind domain.ErrorKind) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message, Kind: kind.String()}}
}
