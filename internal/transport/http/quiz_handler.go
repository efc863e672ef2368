package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"live-quiz-service/internal/domain"
)

func (h *handlers) saveQuiz(c *gin.Context) {
	var quiz domain.Quiz
	if err := c.ShouldBindJSON(&quiz); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid quiz body"})
		return
	}
	status := http.StatusCreated
	if id := c.Param("id"); id != "" {
		quiz.ID = id
		status = http.StatusOK
	}
	saved, err := h.quizzes.SaveQuiz(c.Request.Context(), adminID(c), quiz)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, saved)
}

func (h *handlers) listQuizzes(c *gin.Context) {
	quizzes, err := h.quizzes.ListQuizzes(c.Request.Context(), adminID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": quizzes})
}

func (h *handlers) getQuiz(c *gin.Context) {
	quiz, err := h.quizzes.GetQuiz(c.Request.Context(), adminID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *handlers) deleteQuiz(c *gin.Context) {
	if err := h.quizzes.DeleteQuiz(c.Request.Context(), adminID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// quizResults lists archived standings of finished sessions of a quiz.
func (h *handlers) quizResults(c *gin.Context) {
	results, err := h.quizzes.Results(c.Request.Context(), adminID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
