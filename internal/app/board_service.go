package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

// BoardService covers the side channels that have no lifecycle of their
// own: buzzer presses, leaderboard rows, and the question-mode singleton.
type BoardService struct {
	buzzers     BuzzerRepository
	leaderboard LeaderboardRepository
	modes       ModeRepository
	now         func() time.Time
}

func NewBoardService(buzzers BuzzerRepository, leaderboard LeaderboardRepository, modes ModeRepository) *BoardService {
	return &BoardService{
		buzzers:     buzzers,
		leaderboard: leaderboard,
		modes:       modes,
		now:         time.Now,
	}
}

// Buzz records a buzz-in press. Repeat presses are stored as-is; reads
// collapse them to the first press per user.
func (s *BoardService) Buzz(ctx context.Context, username string) (domain.BuzzerPress, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.BuzzerPress{}, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	return s.buzzers.InsertPress(ctx, username, s.now())
}

// Buzzers returns the first press per username, earliest first.
func (s *BoardService) Buzzers(ctx context.Context) ([]domain.BuzzerPress, error) {
	presses, err := s.buzzers.ListPresses(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(presses))
	first := make([]domain.BuzzerPress, 0, len(presses))
	for _, press := range presses {
		if _, ok := seen[press.Username]; ok {
			continue
		}
		seen[press.Username] = struct{}{}
		first = append(first, press)
	}
	return first, nil
}

// ResetBuzzer removes every press for username.
func (s *BoardService) ResetBuzzer(ctx context.Context, username string) (int, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	return s.buzzers.DeletePressesByUsername(ctx, username)
}

// ResetAllBuzzers removes every stored press.
func (s *BoardService) ResetAllBuzzers(ctx context.Context) (int, error) {
	return s.buzzers.DeleteAllPresses(ctx)
}

// Leaderboard returns entries ordered by score, highest first.
func (s *BoardService) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	return s.leaderboard.ListEntries(ctx)
}

// AddLeaderboardEntry creates a score row.
func (s *BoardService) AddLeaderboardEntry(ctx context.Context, username string, score int) (domain.LeaderboardEntry, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.LeaderboardEntry{}, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	if score < 0 {
		return domain.LeaderboardEntry{}, fmt.Errorf("%w: score must not be negative", domain.ErrValidation)
	}
	return s.leaderboard.InsertEntry(ctx, username, score)
}

// SetScore overwrites an entry's score, last write wins.
func (s *BoardService) SetScore(ctx context.Context, id int64, score int) (domain.LeaderboardEntry, error) {
	if score < 0 {
		return domain.LeaderboardEntry{}, fmt.Errorf("%w: score must not be negative", domain.ErrValidation)
	}
	return s.leaderboard.UpdateScore(ctx, id, score)
}

// Mode returns the current question mode.
func (s *BoardService) Mode(ctx context.Context) (domain.QuestionMode, error) {
	return s.modes.Mode(ctx)
}

// SetMode updates the singleton question-mode row. All clients learn of
// the change through the record store's feed.
func (s *BoardService) SetMode(ctx context.Context, mode domain.QuestionMode) error {
	if !domain.ValidMode(mode) {
		return fmt.Errorf("%w: unknown question mode %q", domain.ErrValidation, mode)
	}
	return s.modes.SetMode(ctx, mode)
}
