package cli

import (
	"context"
	"database/sql"
	"log"
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

	"github.com/KelkeFranvin/coco-quiz/internal/app"
	"github.com/KelkeFranvin/coco-quiz/internal/config"
	"github.com/KelkeFranvin/coco-quiz/internal/infra/memory"
	"github.com/KelkeFranvin/coco-quiz/internal/infra/postgres"
	"github.com/KelkeFranvin/coco-quiz/internal/relay"
	transport "github.com/KelkeFranvin/coco-quiz/internal/transport/http"
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

	ctx, stopServices := context.WithCancel(ctx)
	defer stopServices()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		submissionRepo app.SubmissionRepository
		buzzerRepo     app.BuzzerRepository
		boardRepo      app.LeaderboardRepository
		modeRepo       app.ModeRepository
		feed           transport.ChangeFeed
	)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgFeed := postgres.NewFeed(pool)
		go func() {
			if err := pgFeed.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("change feed stopped: %v", err)
			}
		}()

		submissions := postgres.NewSubmissionRepository(db)
		board := postgres.NewBoardRepository(db)
		submissionRepo, buzzerRepo, boardRepo, modeRepo, feed = submissions, board, board, board, pgFeed
	} else {
		log.Printf("no postgres configured, using in-memory store")
		store := memory.NewStore()
		submissionRepo, buzzerRepo, boardRepo, modeRepo, feed = store, store, store, store, store
	}

	var bus relay.Relay = relay.NewHub()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		bus = relay.NewRedisRelay(redisClient, cfg.Relay.Channel)
	}

	submissionService := app.NewSubmissionService(submissionRepo, bus)
	boardService := app.NewBoardService(buzzerRepo, boardRepo, modeRepo)

	poll := config.Duration(cfg.View.Poll, 30*time.Second)
	handler := transport.NewHandler(submissionService, boardService, bus, feed, poll)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting coco-quiz on :%s", finalPort)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
