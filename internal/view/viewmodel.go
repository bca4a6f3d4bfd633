// Package view holds the per-client projection of quiz state. Two
// independent, unordered notification streams (the record store's change
// feed and the realtime relay) drive it, so an incoming event is only
// ever a wakeup: the model refetches the affected collection from the
// store instead of applying the event as a delta. Duplicate deliveries
// cost at most one redundant refetch.
package view

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

// Collection names one independently refetchable slice of quiz state.
type Collection string

const (
	CollectionSubmissions Collection = "submissions"
	CollectionBuzzers     Collection = "buzzers"
	CollectionLeaderboard Collection = "leaderboard"
	CollectionMode        Collection = "mode"
)

// Fetcher performs the authoritative full reads backing each collection.
type Fetcher interface {
	Submissions(ctx context.Context) (domain.SubmissionSets, error)
	Buzzers(ctx context.Context) ([]domain.BuzzerPress, error)
	Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
	Mode(ctx context.Context) (domain.QuestionMode, error)
}

// Snapshot is what a client renders from.
type Snapshot struct {
	Username            string                    `json:"username,omitempty"`
	HasActiveSubmission bool                      `json:"hasActiveSubmission"`
	Submissions         domain.SubmissionSets     `json:"submissions"`
	SubmissionCount     int                       `json:"submissionCount"`
	Buzzers             []domain.BuzzerPress      `json:"buzzers"`
	BuzzerCount         int                       `json:"buzzerCount"`
	Leaderboard         []domain.LeaderboardEntry `json:"leaderboard"`
	Mode                domain.QuestionMode       `json:"mode"`
}

// CollectionForTable maps a change-feed table to the collection it
// invalidates. All three submission lifecycle tables map to the same
// collection, since the read view spans them.
func CollectionForTable(table string) (Collection, bool) {
	switch table {
	case domain.TableAnswers, domain.TableResetAnswers, domain.TablePurged:
		return CollectionSubmissions, true
	case domain.TableBuzzers:
		return CollectionBuzzers, true
	case domain.TableLeaderboard:
		return CollectionLeaderboard, true
	case domain.TableQuestionMode:
		return CollectionMode, true
	}
	return "", false
}

// CollectionForEvent maps a relay event to the collection it invalidates.
func CollectionForEvent(event domain.RelayEvent) (Collection, bool) {
	switch event.(type) {
	case domain.SubmissionCreated, domain.QuizReset:
		return CollectionSubmissions, true
	}
	return "", false
}

// Model merges full-state reads with wakeup signals into one snapshot.
type Model struct {
	fetcher  Fetcher
	username string

	sf singleflight.Group

	mu          sync.RWMutex
	snapshot    Snapshot
	subscribers map[chan Snapshot]struct{}
}

// New builds a model projecting state for username ("" for an anonymous
// observer such as the admin page).
func New(fetcher Fetcher, username string) *Model {
	return &Model{
		fetcher:     fetcher,
		username:    username,
		snapshot:    Snapshot{Username: username, Mode: domain.ModeNone},
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// RefreshAll refetches every collection, used on connect and on the
// periodic poll tick.
func (m *Model) RefreshAll(ctx context.Context) error {
	var firstErr error
	for _, c := range []Collection{CollectionSubmissions, CollectionBuzzers, CollectionLeaderboard, CollectionMode} {
		if err := m.Signal(ctx, c); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Signal triggers a full refetch of the given collection. Concurrent
// signals for the same collection collapse into one read; a failed read
// leaves the previous snapshot standing and is healed by the next signal
// or poll tick.
func (m *Model) Signal(ctx context.Context, collection Collection) error {
	_, err, _ := m.sf.Do(string(collection), func() (interface{}, error) {
		return nil, m.refetch(ctx, collection)
	})
	return err
}

// Snapshot returns the current projection.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// SubscribeSnapshots returns a channel receiving a snapshot after every
// successful refetch. The caller must invoke cancel to avoid leaks. Slow
// consumers have stale snapshots dropped in favor of the newest one.
func (m *Model) SubscribeSnapshots() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// Run pumps both notification streams (and an optional poll ticker) into
// refetches until ctx is done. Either channel may be nil.
func (m *Model) Run(ctx context.Context, changes <-chan domain.ChangeEvent, events <-chan domain.RelayEvent, poll time.Duration) {
	var tick <-chan time.Time
	if poll > 0 {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if collection, relevant := CollectionForTable(change.Table); relevant {
				if err := m.Signal(ctx, collection); err != nil {
					log.Printf("view: refetch %s after change feed: %v", collection, err)
				}
			}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if collection, relevant := CollectionForEvent(event); relevant {
				if err := m.Signal(ctx, collection); err != nil {
					log.Printf("view: refetch %s after relay event: %v", collection, err)
				}
			}
		case <-tick:
			if err := m.RefreshAll(ctx); err != nil {
				log.Printf("view: poll refresh: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Model) refetch(ctx context.Context, collection Collection) error {
	switch collection {
	case CollectionSubmissions:
		sets, err := m.fetcher.Submissions(ctx)
		if err != nil {
			return err
		}
		hasActive := false
		if m.username != "" {
			for _, submission := range sets.Active {
				if submission.Username == m.username {
					hasActive = true
					break
				}
			}
		}
		m.update(func(s *Snapshot) {
			s.Submissions = sets
			s.SubmissionCount = len(sets.Active)
			s.HasActiveSubmission = hasActive
		})
	case CollectionBuzzers:
		buzzers, err := m.fetcher.Buzzers(ctx)
		if err != nil {
			return err
		}
		m.update(func(s *Snapshot) {
			s.Buzzers = buzzers
			s.BuzzerCount = len(buzzers)
		})
	case CollectionLeaderboard:
		entries, err := m.fetcher.Leaderboard(ctx)
		if err != nil {
			return err
		}
		m.update(func(s *Snapshot) { s.Leaderboard = entries })
	case CollectionMode:
		mode, err := m.fetcher.Mode(ctx)
		if err != nil {
			return err
		}
		m.update(func(s *Snapshot) { s.Mode = mode })
	}
	return nil
}

func (m *Model) update(apply func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.snapshot)
	for ch := range m.subscribers {
		select {
		case ch <- m.snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- m.snapshot:
			default:
			}
		}
	}
}
