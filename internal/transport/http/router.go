package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/metrics"
)

// Deps are the collaborators the HTTP surface needs. Metrics may be nil.
type Deps struct {
	Games          *app.GameService
	Quizzes        *app.QuizService
	Tickets        *auth.Issuer
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	JoinRateLimit  int
	JoinRateWindow time.Duration
}

type handlers struct {
	games   *app.GameService
	quizzes *app.QuizService
	tickets *auth.Issuer
	logger  *zap.Logger
}

// NewRouter wires REST routes, the websocket endpoint, health and metrics.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{games: d.Games, quizzes: d.Quizzes, tickets: d.Tickets, logger: logger}
	ws := NewWSHandler(d.Games, d.Tickets, logger)

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger), d.Metrics.Middleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	router.GET("/ws", ws.ServeWS)

	api := router.Group("/api")

	quizzes := api.Group("/quizzes", RequireAdmin())
	{
		quizzes.POST("", h.saveQuiz)
		quizzes.GET("", h.listQuizzes)
		quizzes.GET("/:id", h.getQuiz)
		quizzes.PUT("/:id", h.saveQuiz)
		quizzes.DELETE("/:id", h.deleteQuiz)
		quizzes.GET("/:id/results", h.quizResults)
	}

	api.POST("/join", RateLimiter(d.JoinRateLimit, d.JoinRateWindow), h.joinSession)
	api.POST("/sessions", RequireAdmin(), h.createSession)

	sessions := api.Group("/sessions/:id")
	{
		sessions.GET("", h.snapshot)
		sessions.GET("/leaderboard", h.leaderboard)

		host := sessions.Group("", RequireTicket(d.Tickets, auth.RoleHost))
		host.GET("/progress", h.progress)
		host.POST("/start", h.hostAction(d.Games.StartQuiz))
		host.POST("/close", h.hostAction(d.Games.CloseQuestion))
		host.POST("/leaderboard", h.hostAction(d.Games.ShowLeaderboard))
		host.POST("/next", h.hostAction(d.Games.NextQuestion))
		host.POST("/end", h.hostAction(d.Games.EndSession))
		host.DELETE("", h.deleteSession)
	}
	return router
}
