package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/KelkeFranvin/coco-quiz/internal/app"
	"github.com/KelkeFranvin/coco-quiz/internal/domain"
	"github.com/KelkeFranvin/coco-quiz/internal/infra/postgres"
	pgmigrations "github.com/KelkeFranvin/coco-quiz/internal/infra/postgres/migrations"
	"github.com/KelkeFranvin/coco-quiz/internal/relay"
)

func TestSubmissionLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	bus := relay.NewRedisRelay(redisClient, "coco-quiz:relay")

	feed := postgres.NewFeed(pool)
	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	go func() { _ = feed.Run(feedCtx) }()
	// Give the listener time to attach before the first NOTIFY fires.
	time.Sleep(time.Second)

	changes, cancelChanges, err := feed.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe feed: %v", err)
	}
	defer cancelChanges()

	events, cancelEvents, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe relay: %v", err)
	}
	defer cancelEvents()

	submissionRepo := postgres.NewSubmissionRepository(db)
	service := app.NewSubmissionService(submissionRepo, bus)

	// Submit and verify the active set.
	created, err := service.Submit(ctx, "Alice", "42")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected store-assigned id, got %+v", created)
	}
	sets, err := service.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sets.Active) != 1 || sets.Active[0].Username != "Alice" || sets.Active[0].Answer != "42" {
		t.Fatalf("expected Alice's answer in the active set, got %+v", sets.Active)
	}

	// Both notification paths fire for the submit.
	waitForTable(t, changes, domain.TableAnswers)
	select {
	case event := <-events:
		if _, ok := event.(domain.SubmissionCreated); !ok {
			t.Fatalf("expected SubmissionCreated on relay, got %T", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("relay event never arrived")
	}

	// The UNIQUE constraint backs the invariant even past the service's
	// keyed lock.
	if _, err := submissionRepo.InsertActive(ctx, "Alice", "43", time.Now()); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected unique violation mapped to duplicate error, got %v", err)
	}

	// Reset moves Alice out of the active set atomically.
	moved, err := service.ResetUser(ctx, "Alice")
	if err != nil || moved != 1 {
		t.Fatalf("reset: moved=%d err=%v", moved, err)
	}
	sets, _ = service.List(ctx)
	if len(sets.Active) != 0 || len(sets.Reset) != 1 || sets.Reset[0].ResetAt == nil {
		t.Fatalf("expected Alice in reset set with timestamp, got %+v", sets)
	}

	// Purge archives the reset record with both timestamps.
	purged, err := service.PurgeResets(ctx)
	if err != nil || purged != 1 {
		t.Fatalf("purge: purged=%d err=%v", purged, err)
	}
	archive, err := service.ListPurged(ctx)
	if err != nil {
		t.Fatalf("list purged: %v", err)
	}
	if len(archive) != 1 || archive[0].ResetAt == nil || archive[0].PurgedAt == nil {
		t.Fatalf("expected archived record with both timestamps, got %+v", archive)
	}

	// Purge again: idempotent.
	if purged, err := service.PurgeResets(ctx); err != nil || purged != 0 {
		t.Fatalf("second purge: purged=%d err=%v", purged, err)
	}
}

func TestBoardEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()

	boardRepo := postgres.NewBoardRepository(db)
	board := app.NewBoardService(boardRepo, boardRepo, boardRepo)

	for _, user := range []string{"alice", "alice", "bob"} {
		if _, err := board.Buzz(ctx, user); err != nil {
			t.Fatalf("buzz: %v", err)
		}
	}
	buzzers, err := board.Buzzers(ctx)
	if err != nil {
		t.Fatalf("buzzers: %v", err)
	}
	if len(buzzers) != 2 {
		t.Fatalf("expected first-per-user collapse, got %+v", buzzers)
	}

	entry, err := board.AddLeaderboardEntry(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if _, err := board.SetScore(ctx, entry.ID, 7); err != nil {
		t.Fatalf("set score: %v", err)
	}
	entries, _ := board.Leaderboard(ctx)
	if len(entries) != 1 || entries[0].Score != 7 {
		t.Fatalf("expected updated score, got %+v", entries)
	}

	// The migration seeds the singleton mode row.
	mode, err := board.Mode(ctx)
	if err != nil {
		t.Fatalf("mode: %v", err)
	}
	if mode != domain.ModeNone {
		t.Fatalf("expected seeded mode none, got %q", mode)
	}
	if err := board.SetMode(ctx, domain.ModeMultipleChoice); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if mode, _ := board.Mode(ctx); mode != domain.ModeMultipleChoice {
		t.Fatalf("expected multiplechoice, got %q", mode)
	}
}

func waitForTable(t *testing.T, changes <-chan domain.ChangeEvent, table string) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case event := <-changes:
			if event.Table == table {
				return
			}
		case <-deadline:
			t.Fatalf("change event for %s never arrived", table)
		}
	}
}

func openBun(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
