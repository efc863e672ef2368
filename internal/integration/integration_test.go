package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v4/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/postgres"
	"live-quiz-service/internal/infra/rabbit"
	infraredis "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/infra/storetest"
)

const exchange = "quiz.events.test"

func TestSessionStoreAgainstRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL := startRedis(t, ctx)
	storetest.Run(t, func(t *testing.T) app.SessionStore {
		client := redisClientFromURL(t, redisURL)
		require.NoError(t, client.FlushDB(ctx).Err())
		return infraredis.NewSessionStore(client, time.Hour)
	})
}

func TestLiveSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	redisURL := startRedis(t, ctx)
	amqpURL := startRabbit(t, ctx)

	db := postgres.Open(pgURL)
	t.Cleanup(func() { db.Close() })
	_, err := postgres.Migrate(ctx, db)
	require.NoError(t, err)

	pool, err := pgxpool.Connect(ctx, pgURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	client := redisClientFromURL(t, redisURL)
	cache := infraredis.NewQuizRepository(client, postgres.NewQuizLoader(pool), 5*time.Minute, nil)
	archive := postgres.NewSessionArchive(db)
	quizzes := app.NewQuizService(postgres.NewQuizStore(db), cache, archive, nil)

	publisher, err := rabbit.NewPublisher(amqpURL, exchange)
	require.NoError(t, err)
	t.Cleanup(func() { publisher.Close() })
	lifecycle := consumeLifecycle(t, amqpURL)

	games := app.NewGameService(
		infraredis.NewSessionStore(client, 5*time.Minute),
		infraredis.NewFeed(client, nil),
		cache,
		app.WithArchive(archive),
		app.WithPublisher(publisher),
		app.WithoutAutoClose(),
	)
	t.Cleanup(games.Close)

	quiz, err := quizzes.SaveQuiz(ctx, "admin-1", sampleQuiz())
	require.NoError(t, err)

	session, err := games.CreateSession(ctx, quiz.ID, "admin-1")
	require.NoError(t, err)

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()
	events, unsubscribe, err := games.Subscribe(feedCtx, session.ID)
	require.NoError(t, err)
	defer unsubscribe()

	alice, err := games.JoinSession(ctx, strings.ToLower(session.JoinCode), "Alice")
	require.NoError(t, err)
	bob, err := games.JoinSession(ctx, session.JoinCode, "Bob")
	require.NoError(t, err)

	_, err = games.StartQuiz(ctx, session.ID, "admin-1")
	require.NoError(t, err)

	q := quiz.Questions[0]
	var correct, wrong string
	for _, a := range q.Answers {
		if a.Correct {
			correct = a.ID
		} else {
			wrong = a.ID
		}
	}
	res, err := games.SubmitAnswer(ctx, session.ID, bob.ID, domain.AnswerSubmission{QuestionIndex: 0, QuestionID: q.ID, AnswerID: correct})
	require.NoError(t, err)
	require.True(t, res.Correct)
	require.Positive(t, res.Awarded)

	dup, err := games.SubmitAnswer(ctx, session.ID, bob.ID, domain.AnswerSubmission{QuestionIndex: 0, QuestionID: q.ID, AnswerID: wrong})
	require.NoError(t, err)
	require.True(t, dup.AlreadyAnswered)
	require.Equal(t, res.TotalScore, dup.TotalScore)

	_, err = games.SubmitAnswer(ctx, session.ID, alice.ID, domain.AnswerSubmission{QuestionIndex: 0, QuestionID: q.ID, AnswerID: wrong})
	require.NoError(t, err)

	_, err = games.CloseQuestion(ctx, session.ID, "admin-1")
	require.NoError(t, err)
	finished, err := games.NextQuestion(ctx, session.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseFinished, finished.Phase)

	lb, err := games.Leaderboard(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 2)
	require.Equal(t, "Bob", lb.Entries[0].Nickname)

	waitForPhase(t, events, domain.PhaseFinished)

	results, err := quizzes.Results(ctx, "admin-1", quiz.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, session.ID, results[0].SessionID)
	require.Equal(t, "Bob", results[0].Standings[0].Nickname)

	require.Equal(t, domain.LifecycleSessionStarted, nextLifecycle(t, lifecycle).Type)
	last := nextLifecycle(t, lifecycle)
	require.Equal(t, domain.LifecycleSessionFinished, last.Type)
	require.NotNil(t, last.Summary)
	require.Equal(t, 2, last.Players)
}

func waitForPhase(t *testing.T, events <-chan domain.Event, phase domain.Phase) {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "feed closed before %s", phase)
			if ev.Type == domain.EventPhaseChanged && ev.Phase == phase {
				return
			}
		case <-timeout:
			t.Fatalf("no %s event on the feed", phase)
		}
	}
}

func consumeLifecycle(t *testing.T, url string) <-chan amqp.Delivery {
	t.Helper()
	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ch, err := conn.Channel()
	require.NoError(t, err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "session.#", exchange, false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)
	return deliveries
}

func nextLifecycle(t *testing.T, deliveries <-chan amqp.Delivery) domain.LifecycleEvent {
	t.Helper()
	select {
	case d := <-deliveries:
		var event domain.LifecycleEvent
		require.NoError(t, json.Unmarshal(d.Body, &event))
		require.Equal(t, string(event.Type), d.RoutingKey)
		return event
	case <-time.After(10 * time.Second):
		t.Fatalf("no lifecycle message received")
	}
	return domain.LifecycleEvent{}
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest) tc.Container {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })
	return container
}

func endpoint(t *testing.T, ctx context.Context, container tc.Container, port nat.Port) (string, string) {
	t.Helper()
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return host, mapped.Port()
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	container := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	})
	host, port := endpoint(t, ctx, container, "5432/tcp")
	return fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port)
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	container := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	})
	host, port := endpoint(t, ctx, container, "6379/tcp")
	return fmt.Sprintf("redis://%s:%s", host, port)
}

func startRabbit(t *testing.T, ctx context.Context) string {
	t.Helper()
	container := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(90 * time.Second),
	})
	host, port := endpoint(t, ctx, container, "5672/tcp")
	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				Prompt:    "What is 2 + 2?",
				TimeLimit: 20,
				Points:    1000,
				Answers: []domain.Answer{
					{Text: "3"},
					{Text: "4", Correct: true},
				},
			},
		},
	}
}

func redisClientFromURL(t *testing.T, url string) *goredis.Client {
	t.Helper()
	opts, err := goredis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := goredis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return client
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration tests skipped in short mode")
	}
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
