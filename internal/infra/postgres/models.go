package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Username    string    `bun:"username,notnull"`
	Answer      string    `bun:"answer,notnull"`
	SubmittedAt time.Time `bun:"submitted_at,notnull"`
}

type resetAnswerRow struct {
	bun.BaseModel `bun:"table:reset_answers,alias:ra"`

	ID          int64     `bun:"id,pk"`
	Username    string    `bun:"username,notnull"`
	Answer      string    `bun:"answer,notnull"`
	SubmittedAt time.Time `bun:"submitted_at,notnull"`
	ResetAt     time.Time `bun:"reset_at,notnull"`
}

type purgedAnswerRow struct {
	bun.BaseModel `bun:"table:reset_reset_answers,alias:rra"`

	ID          int64     `bun:"id,pk"`
	Username    string    `bun:"username,notnull"`
	Answer      string    `bun:"answer,notnull"`
	SubmittedAt time.Time `bun:"submitted_at,notnull"`
	ResetAt     time.Time `bun:"reset_at,notnull"`
	PurgedAt    time.Time `bun:"reset_reset_at,notnull"`
}

type buzzerRow struct {
	bun.BaseModel `bun:"table:buzzers,alias:b"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Username  string    `bun:"username,notnull"`
	PressedAt time.Time `bun:"pressed_at,notnull"`
}

type leaderboardRow struct {
	bun.BaseModel `bun:"table:leaderboard,alias:l"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Username string `bun:"username,notnull"`
	Score    int    `bun:"score,notnull"`
}

type questionModeRow struct {
	bun.BaseModel `bun:"table:question_mode,alias:qm"`

	ID   int64  `bun:"id,pk"`
	Mode string `bun:"mode,notnull"`
}

func (r answerRow) toDomain() domain.Submission {
	return domain.Submission{
		ID:          r.ID,
		Username:    r.Username,
		Answer:      r.Answer,
		SubmittedAt: r.SubmittedAt,
	}
}

func (r resetAnswerRow) toDomain() domain.Submission {
	resetAt := r.ResetAt
	return domain.Submission{
		ID:          r.ID,
		Username:    r.Username,
		Answer:      r.Answer,
		SubmittedAt: r.SubmittedAt,
		ResetAt:     &resetAt,
	}
}

func (r purgedAnswerRow) toDomain() domain.Submission {
	resetAt := r.ResetAt
	purgedAt := r.PurgedAt
	return domain.Submission{
		ID:          r.ID,
		Username:    r.Username,
		Answer:      r.Answer,
		SubmittedAt: r.SubmittedAt,
		ResetAt:     &resetAt,
		PurgedAt:    &purgedAt,
	}
}
