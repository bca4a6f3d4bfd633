package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_quiz_tables.sql
var createQuizTablesSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createQuizTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS answers;
				DROP TABLE IF EXISTS reset_answers;
				DROP TABLE IF EXISTS reset_reset_answers;
				DROP TABLE IF EXISTS buzzers;
				DROP TABLE IF EXISTS leaderboard;
				DROP TABLE IF EXISTS question_mode;
				DROP FUNCTION IF EXISTS coco_quiz_notify_change;
			`)
			return err
		},
	)
}
