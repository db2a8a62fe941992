package cli

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/ElegantFalcon/Quizzy/internal/app"
	"github.com/ElegantFalcon/Quizzy/internal/config"
	"github.com/ElegantFalcon/Quizzy/internal/domain"
	"github.com/ElegantFalcon/Quizzy/internal/infra/memory"
	pginfra "github.com/ElegantFalcon/Quizzy/internal/infra/postgres"
	redisinfra "github.com/ElegantFalcon/Quizzy/internal/infra/redis"
	transport "github.com/ElegantFalcon/Quizzy/internal/transport/http"
)

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

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var quizzes app.QuizStore
	var keyLoader memory.AnswerKeyLoader
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		quizzes = pginfra.NewQuizStore(db)
		keyLoader = pginfra.NewAnswerLoader(pool)
	} else {
		store := memory.NewQuizStore()
		store.Seed(demoQuiz())
		quizzes = store
		keyLoader = memory.NewStoreKeyLoader(store)
	}

	answerTTL := config.TTLDuration(cfg.Quiz.AnswerKeyTTL, 10*time.Minute)
	var keys app.AnswerKeyRepository
	if redisClient != nil {
		keys = redisinfra.NewAnswerKeys(redisClient, keyLoader, answerTTL)
	} else {
		keys = memory.NewAnswerKeys(keyLoader, answerTTL)
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	opts := []app.Option{
		app.WithQuestionInterval(config.TTLDuration(cfg.Quiz.QuestionInterval, app.DefaultQuestionInterval)),
	}
	if cfg.Quiz.RoomCodeLength > 0 {
		opts = append(opts, app.WithRoomCodeLength(cfg.Quiz.RoomCodeLength))
	}
	if redisClient != nil {
		opts = append(opts, app.WithScoreFeed(redisinfra.NewScoreFeed(redisClient)))
	}

	service := app.NewQuizService(quizzes, sessions, keys, opts...)
	wsHandler := transport.NewWSHandler(service, logger)
	apiHandler := transport.NewAPIHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// demoQuiz seeds the in-memory store so the service is playable without a
// database.
func demoQuiz() domain.Quiz {
	now := time.Now()
	return domain.Quiz{
		ID:       "demo-quiz",
		OwnerID:  "demo-owner",
		Title:    "Warmup Trivia",
		Category: "general",
		RoomCode: "DEMO42",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectOption: 1},
			{Text: "Which planet is closest to the sun?", Options: []string{"Venus", "Earth", "Mercury"}, CorrectOption: 2},
		},
		Settings:  domain.Settings{TimeLimit: 15 * time.Second, ShowResults: true, LeaderboardEnabled: true},
		Status:    domain.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
