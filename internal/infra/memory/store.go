// Package memory provides a lock-guarded in-process record store with a
// synchronous change feed. It backs tests and no-database development
// runs with the same semantics the Postgres store enforces: username
// uniqueness inside the active set and atomic moves between sets.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

type Store struct {
	mu     sync.Mutex
	nextID int64
	active []domain.Submission
	reset  []domain.Submission
	purged []domain.Submission

	buzzers     []domain.BuzzerPress
	leaderboard []domain.LeaderboardEntry
	mode        domain.QuestionMode

	feedMu   sync.RWMutex
	feedSubs map[chan domain.ChangeEvent]struct{}
}

func NewStore() *Store {
	return &Store{
		nextID:   1,
		mode:     domain.ModeNone,
		feedSubs: make(map[chan domain.ChangeEvent]struct{}),
	}
}

// Subscribe implements the change feed: one ChangeEvent per mutating
// statement, payload-free wakeups only.
func (s *Store) Subscribe(_ context.Context) (<-chan domain.ChangeEvent, func(), error) {
	ch := make(chan domain.ChangeEvent, 16)

	s.feedMu.Lock()
	s.feedSubs[ch] = struct{}{}
	s.feedMu.Unlock()

	cancel := func() {
		s.feedMu.Lock()
		if _, ok := s.feedSubs[ch]; ok {
			delete(s.feedSubs, ch)
			close(ch)
		}
		s.feedMu.Unlock()
	}
	return ch, cancel, nil
}

func (s *Store) notify(table, op string) {
	event := domain.ChangeEvent{Table: table, Op: op}
	s.feedMu.RLock()
	defer s.feedMu.RUnlock()
	for ch := range s.feedSubs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// --- SubmissionRepository ---

func (s *Store) InsertActive(_ context.Context, username, answer string, at time.Time) (domain.Submission, error) {
	s.mu.Lock()
	for _, submission := range s.active {
		if submission.Username == username {
			s.mu.Unlock()
			return domain.Submission{}, domain.ErrDuplicateSubmission
		}
	}
	submission := domain.Submission{
		ID:          s.nextID,
		Username:    username,
		Answer:      answer,
		SubmittedAt: at,
	}
	s.nextID++
	s.active = append(s.active, submission)
	s.mu.Unlock()

	s.notify(domain.TableAnswers, "INSERT")
	return submission, nil
}

func (s *Store) ActiveByUsername(_ context.Context, username string) ([]domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []domain.Submission
	for _, submission := range s.active {
		if submission.Username == username {
			matches = append(matches, submission)
		}
	}
	return matches, nil
}

func (s *Store) ListActive(_ context.Context) ([]domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Submission, len(s.active))
	copy(out, s.active)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (s *Store) ListReset(_ context.Context) ([]domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Submission, len(s.reset))
	copy(out, s.reset)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ResetAt.After(*out[j].ResetAt) })
	return out, nil
}

func (s *Store) ListPurged(_ context.Context) ([]domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Submission, len(s.purged))
	copy(out, s.purged)
	return out, nil
}

func (s *Store) MoveActiveToReset(_ context.Context, username string, at time.Time) (int, error) {
	s.mu.Lock()
	moved := s.moveActiveLocked(func(sub domain.Submission) bool { return sub.Username == username }, at)
	s.mu.Unlock()

	if moved > 0 {
		s.notify(domain.TableAnswers, "DELETE")
		s.notify(domain.TableResetAnswers, "INSERT")
	}
	return moved, nil
}

func (s *Store) MoveAllActiveToReset(_ context.Context, at time.Time) (int, error) {
	s.mu.Lock()
	moved := s.moveActiveLocked(func(domain.Submission) bool { return true }, at)
	s.mu.Unlock()

	if moved > 0 {
		s.notify(domain.TableAnswers, "DELETE")
		s.notify(domain.TableResetAnswers, "INSERT")
	}
	return moved, nil
}

// moveActiveLocked performs the set move under the store lock so readers
// never observe a record in both sets or in neither.
func (s *Store) moveActiveLocked(match func(domain.Submission) bool, at time.Time) int {
	var remaining []domain.Submission
	moved := 0
	for _, submission := range s.active {
		if !match(submission) {
			remaining = append(remaining, submission)
			continue
		}
		resetAt := at
		submission.ResetAt = &resetAt
		s.reset = append(s.reset, submission)
		moved++
	}
	s.active = remaining
	return moved
}

func (s *Store) MoveResetToPurged(_ context.Context, at time.Time) (int, error) {
	s.mu.Lock()
	moved := len(s.reset)
	for _, submission := range s.reset {
		purgedAt := at
		submission.PurgedAt = &purgedAt
		s.purged = append(s.purged, submission)
	}
	s.reset = nil
	s.mu.Unlock()

	if moved > 0 {
		s.notify(domain.TableResetAnswers, "DELETE")
		s.notify(domain.TablePurged, "INSERT")
	}
	return moved, nil
}

// --- BuzzerRepository ---

func (s *Store) InsertPress(_ context.Context, username string, at time.Time) (domain.BuzzerPress, error) {
	s.mu.Lock()
	press := domain.BuzzerPress{ID: s.nextID, Username: username, PressedAt: at}
	s.nextID++
	s.buzzers = append(s.buzzers, press)
	s.mu.Unlock()

	s.notify(domain.TableBuzzers, "INSERT")
	return press, nil
}

func (s *Store) ListPresses(_ context.Context) ([]domain.BuzzerPress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BuzzerPress, len(s.buzzers))
	copy(out, s.buzzers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PressedAt.Before(out[j].PressedAt) })
	return out, nil
}

func (s *Store) DeletePressesByUsername(_ context.Context, username string) (int, error) {
	s.mu.Lock()
	var remaining []domain.BuzzerPress
	deleted := 0
	for _, press := range s.buzzers {
		if press.Username == username {
			deleted++
			continue
		}
		remaining = append(remaining, press)
	}
	s.buzzers = remaining
	s.mu.Unlock()

	if deleted > 0 {
		s.notify(domain.TableBuzzers, "DELETE")
	}
	return deleted, nil
}

func (s *Store) DeleteAllPresses(_ context.Context) (int, error) {
	s.mu.Lock()
	deleted := len(s.buzzers)
	s.buzzers = nil
	s.mu.Unlock()

	if deleted > 0 {
		s.notify(domain.TableBuzzers, "DELETE")
	}
	return deleted, nil
}

// --- LeaderboardRepository ---

func (s *Store) ListEntries(_ context.Context) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LeaderboardEntry, len(s.leaderboard))
	copy(out, s.leaderboard)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *Store) InsertEntry(_ context.Context, username string, score int) (domain.LeaderboardEntry, error) {
	s.mu.Lock()
	entry := domain.LeaderboardEntry{ID: s.nextID, Username: username, Score: score}
	s.nextID++
	s.leaderboard = append(s.leaderboard, entry)
	s.mu.Unlock()

	s.notify(domain.TableLeaderboard, "INSERT")
	return entry, nil
}

func (s *Store) UpdateScore(_ context.Context, id int64, score int) (domain.LeaderboardEntry, error) {
	s.mu.Lock()
	for i := range s.leaderboard {
		if s.leaderboard[i].ID == id {
			s.leaderboard[i].Score = score
			entry := s.leaderboard[i]
			s.mu.Unlock()
			s.notify(domain.TableLeaderboard, "UPDATE")
			return entry, nil
		}
	}
	s.mu.Unlock()
	return domain.LeaderboardEntry{}, domain.ErrNotFound
}

// --- ModeRepository ---

func (s *Store) Mode(_ context.Context) (domain.QuestionMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, nil
}

func (s *Store) SetMode(_ context.Context, mode domain.QuestionMode) error {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	s.notify(domain.TableQuestionMode, "UPDATE")
	return nil
}
