package app

import (
	"context"
	"time"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

// SubmissionRepository abstracts the three submission lifecycle sets
// (active, reset, purged) in the record store. Move operations must be
// observably atomic: a reader never sees a record in both sets or in
// neither.
type SubmissionRepository interface {
	// InsertActive creates an active submission. Implementations that
	// enforce username uniqueness return domain.ErrDuplicateSubmission
	// on conflict.
	InsertActive(ctx context.Context, username, answer string, at time.Time) (domain.Submission, error)
	ActiveByUsername(ctx context.Context, username string) ([]domain.Submission, error)
	ListActive(ctx context.Context) ([]domain.Submission, error)
	ListReset(ctx context.Context) ([]domain.Submission, error)
	ListPurged(ctx context.Context) ([]domain.Submission, error)
	// MoveActiveToReset moves every active submission for username into
	// the reset set, stamping resetAt. Returns how many rows moved.
	MoveActiveToReset(ctx context.Context, username string, at time.Time) (int, error)
	MoveAllActiveToReset(ctx context.Context, at time.Time) (int, error)
	// MoveResetToPurged moves every reset submission into the
	// reset-of-reset archive, stamping the second timestamp.
	MoveResetToPurged(ctx context.Context, at time.Time) (int, error)
}

// BuzzerRepository stores buzz-in presses. Inserts keep every press;
// first-per-user collapsing happens in the service.
type BuzzerRepository interface {
	InsertPress(ctx context.Context, username string, at time.Time) (domain.BuzzerPress, error)
	ListPresses(ctx context.Context) ([]domain.BuzzerPress, error)
	DeletePressesByUsername(ctx context.Context, username string) (int, error)
	DeleteAllPresses(ctx context.Context) (int, error)
}

// LeaderboardRepository stores score rows keyed by store-assigned id.
type LeaderboardRepository interface {
	ListEntries(ctx context.Context) ([]domain.LeaderboardEntry, error)
	InsertEntry(ctx context.Context, username string, score int) (domain.LeaderboardEntry, error)
	// UpdateScore returns domain.ErrNotFound for an unknown id.
	UpdateScore(ctx context.Context, id int64, score int) (domain.LeaderboardEntry, error)
}

// ModeRepository holds the question-mode singleton row.
type ModeRepository interface {
	Mode(ctx context.Context) (domain.QuestionMode, error)
	SetMode(ctx context.Context, mode domain.QuestionMode) error
}

// EventPublisher is the outbound side of the realtime relay. Publishing
// is a redundant, best-effort notification path next to the record
// store's change feed.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.RelayEvent) error
}
