package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	"live-quiz-service/internal/infra/rabbit"
	redisstore "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
	"live-quiz-service/internal/metrics"
	transport "live-quiz-service/internal/transport/http"
)

const shutdownTimeout = 5 * time.Second

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// quizBackend is what the authoring service and the session cache read from.
type quizBackend interface {
	app.QuizStore
	memory.QuizLoader
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	// Authored quizzes and archived results.
	var (
		quizzes quizBackend        = memory.NewQuizStore(sampleQuizzes()...)
		archive app.SessionArchive = memory.NewSessionArchive()
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
		db := postgres.Open(cfg.Postgres.URL)
		defer db.Close()
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store := postgres.NewQuizStore(db)
		quizzes = pgQuizzes{QuizStore: store, QuizLoader: postgres.NewQuizLoader(pool)}
		archive = postgres.NewSessionArchive(db)
		logger.Info("using postgres for quizzes and results")
	} else {
		logger.Warn("postgres not configured, serving sample quizzes from memory")
	}

	// Live sessions, their change feed and the quiz cache.
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		sessions app.SessionStore
		feed     app.Feed
		cache    interface {
			app.QuizRepository
			app.CacheInvalidator
		}
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		sessions = redisstore.NewSessionStore(client, config.TTLDuration(cfg.Redis.TTL, 6*time.Hour))
		feed = redisstore.NewFeed(client, logger)
		cache = redisstore.NewQuizRepository(client, quizzes, quizTTL, logger)
		logger.Info("using redis for sessions", zap.String("addr", cfg.Redis.Addr))
	} else {
		sessions = memory.NewSessionStore()
		feed = memory.NewFeed()
		cache = memory.NewQuizRepository(quizzes, quizTTL)
		logger.Warn("redis not configured, sessions are kept in memory on this instance")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithMetrics(m),
		app.WithArchive(archive),
		app.WithCodeGenerator(app.RandomCodes(cfg.Game.CodeLength)),
	}
	if !*cfg.Game.AutoClose {
		opts = append(opts, app.WithoutAutoClose())
	}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbit.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithPublisher(publisher))
		logger.Info("publishing lifecycle events", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}

	games := app.NewGameService(sessions, feed, cache, opts...)
	defer games.Close()

	secret := cfg.Game.TicketSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		logger.Warn("ticket secret not configured, tickets will not survive a restart")
	}

	gin.SetMode(gin.ReleaseMode)
	router := transport.NewRouter(transport.Deps{
		Games:          games,
		Quizzes:        app.NewQuizService(quizzes, cache, archive, logger),
		Tickets:        auth.NewIssuer(secret, config.TTLDuration(cfg.Game.TicketTTL, 6*time.Hour)),
		Metrics:        m,
		Logger:         logger,
		JoinRateLimit:  cfg.Server.JoinRateLimit,
		JoinRateWindow: config.TTLDuration(cfg.Server.JoinRateWindow, time.Minute),
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// pgQuizzes serves authoring through bun and session loads through pgx.
type pgQuizzes struct {
	*postgres.QuizStore
	*postgres.QuizLoader
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// sampleQuizzes seeds the in-memory store when no database is configured.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			ID:    "sample-capitals",
			Title: "World capitals",
			Questions: []domain.Question{
				{
					ID:        "q1",
					Kind:      domain.QuestionMultipleChoice,
					Prompt:    "What is the capital of Australia?",
					TimeLimit: 20,
					Points:    1000,
					Answers: []domain.Answer{
						{ID: "a1", Text: "Sydney"},
						{ID: "a2", Text: "Canberra", Correct: true},
						{ID: "a3", Text: "Melbourne"},
						{ID: "a4", Text: "Perth"},
					},
				},
				{
					ID:        "q2",
					Kind:      domain.QuestionOrdering,
					Prompt:    "Order these cities from north to south",
					TimeLimit: 30,
					Points:    1000,
					Answers: []domain.Answer{
						{ID: "b1", Text: "Oslo", Position: 0},
						{ID: "b2", Text: "Berlin", Position: 1},
						{ID: "b3", Text: "Rome", Position: 2},
						{ID: "b4", Text: "Valletta", Position: 3},
					},
				},
			},
		},
	}
}
