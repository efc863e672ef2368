package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SessionCreated()
	m.SessionCreated()
	m.SessionFinished()
	m.PlayerJoined()
	m.Answer("correct")
	m.Answer("correct")
	m.Answer("duplicate")
	m.Transition("question")

	require.Equal(t, 2.0, testutil.ToFloat64(m.sessionsCreated))
	require.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	require.Equal(t, 1.0, testutil.ToFloat64(m.playersJoined))
	require.Equal(t, 2.0, testutil.ToFloat64(m.answers.WithLabelValues("correct")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.answers.WithLabelValues("duplicate")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("question")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SessionCreated()
	m.Answer("correct")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/api/sessions/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/sessions/:id", "200")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}
