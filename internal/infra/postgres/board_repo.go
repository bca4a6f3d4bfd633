package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

// BoardRepository covers the non-lifecycle tables: buzzers, leaderboard,
// and the question-mode singleton.
type BoardRepository struct {
	db *bun.DB
}

func NewBoardRepository(db *bun.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

func (r *BoardRepository) InsertPress(ctx context.Context, username string, at time.Time) (domain.BuzzerPress, error) {
	row := buzzerRow{Username: username, PressedAt: at}
	if _, err := r.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return domain.BuzzerPress{}, fmt.Errorf("insert buzzer press: %w", err)
	}
	return domain.BuzzerPress{ID: row.ID, Username: row.Username, PressedAt: row.PressedAt}, nil
}

func (r *BoardRepository) ListPresses(ctx context.Context) ([]domain.BuzzerPress, error) {
	var rows []buzzerRow
	if err := r.db.NewSelect().Model(&rows).Order("pressed_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select buzzer presses: %w", err)
	}
	out := make([]domain.BuzzerPress, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.BuzzerPress{ID: row.ID, Username: row.Username, PressedAt: row.PressedAt})
	}
	return out, nil
}

func (r *BoardRepository) DeletePressesByUsername(ctx context.Context, username string) (int, error) {
	res, err := r.db.NewDelete().Model((*buzzerRow)(nil)).Where("username = ?", username).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete buzzer presses: %w", err)
	}
	return rowsAffected(res)
}

func (r *BoardRepository) DeleteAllPresses(ctx context.Context) (int, error) {
	res, err := r.db.NewDelete().Model((*buzzerRow)(nil)).Where("TRUE").Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete all buzzer presses: %w", err)
	}
	return rowsAffected(res)
}

func (r *BoardRepository) ListEntries(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var rows []leaderboardRow
	if err := r.db.NewSelect().Model(&rows).Order("score DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	out := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.LeaderboardEntry{ID: row.ID, Username: row.Username, Score: row.Score})
	}
	return out, nil
}

func (r *BoardRepository) InsertEntry(ctx context.Context, username string, score int) (domain.LeaderboardEntry, error) {
	row := leaderboardRow{Username: username, Score: score}
	if _, err := r.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("insert leaderboard entry: %w", err)
	}
	return domain.LeaderboardEntry{ID: row.ID, Username: row.Username, Score: row.Score}, nil
}

func (r *BoardRepository) UpdateScore(ctx context.Context, id int64, score int) (domain.LeaderboardEntry, error) {
	var row leaderboardRow
	err := r.db.NewSelect().Model(&row).Where("l.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LeaderboardEntry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("select leaderboard entry: %w", err)
	}

	row.Score = score
	if _, err := r.db.NewUpdate().Model(&row).Column("score").WherePK().Exec(ctx); err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("update score: %w", err)
	}
	return domain.LeaderboardEntry{ID: row.ID, Username: row.Username, Score: row.Score}, nil
}

func (r *BoardRepository) Mode(ctx context.Context) (domain.QuestionMode, error) {
	var row questionModeRow
	if err := r.db.NewSelect().Model(&row).Where("qm.id = 1").Scan(ctx); err != nil {
		return "", fmt.Errorf("select question mode: %w", err)
	}
	return domain.QuestionMode(row.Mode), nil
}

func (r *BoardRepository) SetMode(ctx context.Context, mode domain.QuestionMode) error {
	if _, err := r.db.NewUpdate().
		Model((*questionModeRow)(nil)).
		Set("mode = ?", string(mode)).
		Where("id = 1").
		Exec(ctx); err != nil {
		return fmt.Errorf("update question mode: %w", err)
	}
	return nil
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
