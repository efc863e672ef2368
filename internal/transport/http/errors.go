package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindStale:
		return http.StatusConflict
	case domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// payloadFor hides collaborator failures from clients.
func payloadFor(err error) errorPayload {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		return errorPayload{Message: "internal error", Kind: kind.String()}
	}
	return errorPayload{Message: err.Error(), Kind: kind.String()}
}

func (h *handlers) fail(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	payload := payloadFor(err)
	c.AbortWithStatusJSON(statusFor(kind), gin.H{"error": payload.Message, "kind": payload.Kind})
}
