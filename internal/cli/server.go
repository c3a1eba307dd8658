package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"reading-fluency-service/internal/align"
	"reading-fluency-service/internal/app"
	"reading-fluency-service/internal/config"
	"reading-fluency-service/internal/domain"
	"reading-fluency-service/internal/infra/memory"
	pgstore "reading-fluency-service/internal/infra/postgres"
	redisinfra "reading-fluency-service/internal/infra/redis"
	"reading-fluency-service/internal/scoring"
	transport "reading-fluency-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the reading fluency server",
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.TaskLoader = memory.NewStaticTaskLoader(sampleTasks())
	if pool != nil {
		loader = pgstore.NewTaskLoader(pool)
	}

	taskTTL := config.TTLDuration(cfg.Task.TTL, 10*time.Minute)
	var tasks app.TaskRepository
	if redisClient != nil {
		tasks = redisinfra.NewTaskRepository(redisClient, loader, taskTTL)
	} else {
		tasks = memory.NewTaskRepository(loader, taskTTL)
	}

	var store app.SessionStore
	if pool != nil {
		store = pgstore.NewSessionStore(pool)
	} else {
		store = memory.NewSessionStore()
	}

	var testScores app.TestScoreProvider
	if pool != nil {
		testScores = pgstore.NewTestScores(pool)
	} else {
		testScores = memory.NewStaticTestScores(nil)
	}

	// The speech-to-text collaborator lives outside this service; voice
	// recordings surface as unavailable until one is wired in.
	var stt app.Transcriber

	sessions := app.NewSessionService(store, tasks, stt, app.SessionOptions{
		Weights: scoring.Weights{
			Completion: cfg.Scoring.CompletionWeight,
			Words:      cfg.Scoring.WordsWeight,
			Time:       cfg.Scoring.TimeWeight,
			Questions:  cfg.Scoring.QuestionsWeight,
		},
		Align: align.Options{
			Lookahead:      cfg.Reading.Lookahead,
			MatchThreshold: cfg.Reading.MatchThreshold,
		},
		BaselineWPM:        cfg.BaselineWPM,
		GracePeriod:        config.TTLDuration(cfg.Session.GracePeriod, 2*time.Minute),
		TranscribeAttempts: cfg.Transcriber.MaxAttempts,
		TranscribeBackoff:  config.TTLDuration(cfg.Transcriber.InitialBackoff, 500*time.Millisecond),
	})

	var leaderboard app.Aggregator = app.NewLeaderboardService(store, testScores)
	if redisClient != nil {
		cacheTTL := config.TTLDuration(cfg.Leaderboard.CacheTTL, 30*time.Second)
		leaderboard = redisinfra.NewLeaderboardCache(redisClient, leaderboard, cacheTTL)
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sweeper := app.NewSweeper(store, config.TTLDuration(cfg.Session.SweepInterval, time.Minute))
	go sweeper.Run(sweepCtx)

	wsHandler := transport.NewWSHandler(sessions)
	readHandler := transport.NewReadHandler(sessions, leaderboard)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/leaderboard", readHandler.ServeLeaderboard)
	mux.HandleFunc("/results", readHandler.ServeResults)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting reading fluency service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTasks provides minimal demo content; production loads tasks from
// Postgres.
func sampleTasks() map[string]domain.ReadingTask {
	return map[string]domain.ReadingTask{
		"task-1": {
			ID:               "task-1",
			CompetitionID:    "week-1",
			Day:              "mon",
			Title:            "The Fox and the Field",
			ReferenceText:    "The little fox ran across the quiet green field before the sun went down.",
			TotalWordCount:   14,
			Language:         "en",
			Difficulty:       "grade2",
			TimeLimitSeconds: 120,
			Questions: []domain.Question{
				{
					Prompt:        "Who ran across the field?",
					Options:       []string{"a dog", "a fox", "a rabbit"},
					CorrectOption: 1,
				},
				{
					Prompt:        "When did the fox run?",
					Options:       []string{"before sunset", "at midnight"},
					CorrectOption: 0,
				},
			},
		},
	}
}
