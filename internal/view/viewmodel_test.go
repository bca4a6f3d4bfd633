package view

import (
	"context"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

type countingFetcher struct {
	submissions atomic.Int64
	buzzers     atomic.Int64
	leaderboard atomic.Int64
	modes       atomic.Int64

	sets    domain.SubmissionSets
	presses []domain.BuzzerPress
	entries []domain.LeaderboardEntry
	mode    domain.QuestionMode
}

func (f *countingFetcher) Submissions(context.Context) (domain.SubmissionSets, error) {
	f.submissions.Add(1)
	return f.sets, nil
}

func (f *countingFetcher) Buzzers(context.Context) ([]domain.BuzzerPress, error) {
	f.buzzers.Add(1)
	return f.presses, nil
}

func (f *countingFetcher) Leaderboard(context.Context) ([]domain.LeaderboardEntry, error) {
	f.leaderboard.Add(1)
	return f.entries, nil
}

func (f *countingFetcher) Mode(context.Context) (domain.QuestionMode, error) {
	f.modes.Add(1)
	return f.mode, nil
}

func TestSignalRefetchesCollection(t *testing.T) {
	ctx := context.Background()
	fetcher := &countingFetcher{
		sets: domain.SubmissionSets{Active: []domain.Submission{{ID: 1, Username: "alice", Answer: "42"}}},
		mode: domain.ModeFreeText,
	}
	model := New(fetcher, "alice")

	if err := model.Signal(ctx, CollectionSubmissions); err != nil {
		t.Fatalf("signal: %v", err)
	}

	snapshot := model.Snapshot()
	if !snapshot.HasActiveSubmission {
		t.Fatalf("expected local user flagged as submitted")
	}
	if snapshot.SubmissionCount != 1 {
		t.Fatalf("expected submission count 1, got %d", snapshot.SubmissionCount)
	}
	if fetcher.submissions.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", fetcher.submissions.Load())
	}
	if fetcher.buzzers.Load() != 0 {
		t.Fatalf("submissions signal must not refetch buzzers")
	}
}

func TestDuplicateSignalsAreHarmless(t *testing.T) {
	ctx := context.Background()
	fetcher := &countingFetcher{
		sets: domain.SubmissionSets{Active: []domain.Submission{{ID: 1, Username: "alice", Answer: "42"}}},
	}
	model := New(fetcher, "alice")

	if err := model.Signal(ctx, CollectionSubmissions); err != nil {
		t.Fatalf("signal: %v", err)
	}
	after1 := model.Snapshot()

	for i := 0; i < 5; i++ {
		if err := model.Signal(ctx, CollectionSubmissions); err != nil {
			t.Fatalf("duplicate signal: %v", err)
		}
	}
	afterN := model.Snapshot()

	if !reflect.DeepEqual(after1, afterN) {
		t.Fatalf("duplicate deliveries changed the view: %+v vs %+v", after1, afterN)
	}
}

func TestRunReactsToBothStreams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &countingFetcher{mode: domain.ModeBuzzer}
	model := New(fetcher, "")

	changes := make(chan domain.ChangeEvent)
	events := make(chan domain.RelayEvent)
	go model.Run(ctx, changes, events, 0)

	snapshots, cancelSnapshots := model.SubscribeSnapshots()
	defer cancelSnapshots()

	changes <- domain.ChangeEvent{Table: domain.TableQuestionMode, Op: "UPDATE"}
	waitSnapshot(t, snapshots)
	if model.Snapshot().Mode != domain.ModeBuzzer {
		t.Fatalf("expected mode refetched from change feed")
	}

	events <- domain.RelayEvent(domain.SubmissionCreated{EventID: "e1", Username: "alice", Answer: "42"})
	waitSnapshot(t, snapshots)
	if fetcher.submissions.Load() == 0 {
		t.Fatalf("expected relay event to trigger a submissions refetch")
	}
}

func TestRunIgnoresIrrelevantTables(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &countingFetcher{}
	model := New(fetcher, "")

	changes := make(chan domain.ChangeEvent)
	go model.Run(ctx, changes, nil, 0)

	changes <- domain.ChangeEvent{Table: "bun_migrations", Op: "INSERT"}
	changes <- domain.ChangeEvent{Table: domain.TableBuzzers, Op: "INSERT"}

	deadline := time.Now().Add(time.Second)
	for fetcher.buzzers.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected buzzer refetch")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if fetcher.submissions.Load() != 0 {
		t.Fatalf("unknown table must not trigger a refetch, got %d", fetcher.submissions.Load())
	}
}

func TestCollectionMappings(t *testing.T) {
	tables := map[string]Collection{
		domain.TableAnswers:      CollectionSubmissions,
		domain.TableResetAnswers: CollectionSubmissions,
		domain.TablePurged:       CollectionSubmissions,
		domain.TableBuzzers:      CollectionBuzzers,
		domain.TableLeaderboard:  CollectionLeaderboard,
		domain.TableQuestionMode: CollectionMode,
	}
	for table, want := range tables {
		got, ok := CollectionForTable(table)
		if !ok || got != want {
			t.Fatalf("table %s: expected %s, got %s (%v)", table, want, got, ok)
		}
	}
	if _, ok := CollectionForTable("unknown"); ok {
		t.Fatalf("unknown table must not map to a collection")
	}

	if c, ok := CollectionForEvent(domain.QuizReset{ResetAll: true}); !ok || c != CollectionSubmissions {
		t.Fatalf("quiz-reset must invalidate submissions")
	}
}

func waitSnapshot(t *testing.T, snapshots <-chan Snapshot) {
	t.Helper()
	select {
	case <-snapshots:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
}
