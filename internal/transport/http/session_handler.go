package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
)

type createSessionRequest struct {
	QuizID string `json:"quizId" binding:"required"`
}

type createSessionResponse struct {
	Session    domain.SessionView `json:"session"`
	HostTicket string             `json:"hostTicket"`
}

type joinRequest struct {
	Code     string `json:"code" binding:"required"`
	Nickname string `json:"nickname" binding:"required"`
}

type joinResponse struct {
	Player domain.Player `json:"player"`
	Ticket string        `json:"ticket"`
}

func (h *handlers) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "quizId is required"})
		return
	}
	ctx := c.Request.Context()
	hostID := adminID(c)
	session, err := h.games.CreateSession(ctx, req.QuizID, hostID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ticket, err := h.tickets.Issue(session.ID, hostID, auth.RoleHost)
	if err != nil {
		h.fail(c, err)
		return
	}
	view, err := h.games.Snapshot(ctx, session.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, createSessionResponse{Session: view, HostTicket: ticket})
}

func (h *handlers) joinSession(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "code and nickname are required"})
		return
	}
	player, err := h.games.JoinSession(c.Request.Context(), req.Code, req.Nickname)
	if err != nil {
		h.fail(c, err)
		return
	}
	ticket, err := h.tickets.Issue(player.SessionID, player.ID, auth.RolePlayer)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, joinResponse{Player: player, Ticket: ticket})
}

func (h *handlers) snapshot(c *gin.Context) {
	view, err := h.games.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) leaderboard(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if _, err := h.games.GetSession(ctx, sessionID); err != nil {
		h.fail(c, err)
		return
	}
	lb, err := h.games.Leaderboard(ctx, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (h *handlers) progress(c *gin.Context) {
	progress, err := h.games.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

type hostStep func(ctx context.Context, sessionID, hostID string) (domain.Session, error)

// hostAction runs one progression step for the ticket holder and answers with
// the resulting snapshot.
func (h *handlers) hostAction(step hostStep) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		claims := ticketClaims(c)
		session, err := step(ctx, claims.SessionID, claims.Subject)
		if err != nil {
			h.fail(c, err)
			return
		}
		view, err := h.games.Snapshot(ctx, session.ID)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func (h *handlers) deleteSession(c *gin.Context) {
	claims := ticketClaims(c)
	if err := h.games.DeleteSession(c.Request.Context(), claims.SessionID, claims.Subject); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
