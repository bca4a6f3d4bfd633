package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

const pgUniqueViolation = "23505"

// SubmissionRepository stores the submission lifecycle in three tables.
// The active table carries a UNIQUE constraint on username, so the
// one-active-per-user invariant holds even across concurrent processes;
// constraint violations surface as domain.ErrDuplicateSubmission.
type SubmissionRepository struct {
	db *bun.DB
}

func NewSubmissionRepository(db *bun.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) InsertActive(ctx context.Context, username, answer string, at time.Time) (domain.Submission, error) {
	row := answerRow{Username: username, Answer: answer, SubmittedAt: at}
	if _, err := r.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Submission{}, domain.ErrDuplicateSubmission
		}
		return domain.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	return row.toDomain(), nil
}

func (r *SubmissionRepository) ActiveByUsername(ctx context.Context, username string) ([]domain.Submission, error) {
	var rows []answerRow
	if err := r.db.NewSelect().Model(&rows).Where("username = ?", username).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select active by username: %w", err)
	}
	return answersToDomain(rows), nil
}

func (r *SubmissionRepository) ListActive(ctx context.Context) ([]domain.Submission, error) {
	var rows []answerRow
	if err := r.db.NewSelect().Model(&rows).Order("submitted_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select active: %w", err)
	}
	return answersToDomain(rows), nil
}

func (r *SubmissionRepository) ListReset(ctx context.Context) ([]domain.Submission, error) {
	var rows []resetAnswerRow
	if err := r.db.NewSelect().Model(&rows).Order("reset_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select reset: %w", err)
	}
	out := make([]domain.Submission, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *SubmissionRepository) ListPurged(ctx context.Context) ([]domain.Submission, error) {
	var rows []purgedAnswerRow
	if err := r.db.NewSelect().Model(&rows).Order("reset_reset_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select purged: %w", err)
	}
	out := make([]domain.Submission, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *SubmissionRepository) MoveActiveToReset(ctx context.Context, username string, at time.Time) (int, error) {
	return r.moveActive(ctx, at, "WHERE username = ?", username)
}

func (r *SubmissionRepository) MoveAllActiveToReset(ctx context.Context, at time.Time) (int, error) {
	return r.moveActive(ctx, at, "")
}

// moveActive runs the insert+delete pair in one transaction, so readers
// see the move as atomic.
func (r *SubmissionRepository) moveActive(ctx context.Context, at time.Time, where string, args ...interface{}) (int, error) {
	moved := 0
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		insertArgs := append([]interface{}{at}, args...)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reset_answers (id, username, answer, submitted_at, reset_at)
			 SELECT id, username, answer, submitted_at, ? FROM answers `+where,
			insertArgs...); err != nil {
			return fmt.Errorf("copy to reset set: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM answers `+where, args...)
		if err != nil {
			return fmt.Errorf("delete from active set: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		moved = int(affected)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

func (r *SubmissionRepository) MoveResetToPurged(ctx context.Context, at time.Time) (int, error) {
	moved := 0
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reset_reset_answers (id, username, answer, submitted_at, reset_at, reset_reset_at)
			 SELECT id, username, answer, submitted_at, reset_at, ? FROM reset_answers`, at); err != nil {
			return fmt.Errorf("copy to purged set: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM reset_answers`)
		if err != nil {
			return fmt.Errorf("delete from reset set: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		moved = int(affected)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

func answersToDomain(rows []answerRow) []domain.Submission {
	out := make([]domain.Submission, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == pgUniqueViolation
	}
	return false
}
