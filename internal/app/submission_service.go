package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

// SubmissionService is the reconciler for the submission lifecycle. It
// owns the one-active-submission-per-user invariant and the set moves
// for reset and purge.
//
// Submit is a check-then-insert across two store calls, so the service
// serializes submits per username through a keyed mutex. Stores that can
// enforce uniqueness themselves (the Postgres repository does, via a
// UNIQUE constraint) report domain.ErrDuplicateSubmission from the
// insert, which closes the race even across processes.
type SubmissionService struct {
	repo   SubmissionRepository
	events EventPublisher
	now    func() time.Time

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewSubmissionService(repo SubmissionRepository, events EventPublisher) *SubmissionService {
	return &SubmissionService{
		repo:      repo,
		events:    events,
		now:       time.Now,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// NewSubmissionServiceWithClock is test-only for deterministic timestamps.
func NewSubmissionServiceWithClock(repo SubmissionRepository, events EventPublisher, now func() time.Time) *SubmissionService {
	s := NewSubmissionService(repo, events)
	s.now = now
	return s
}

// Submit records a one-shot answer for username. It fails with
// domain.ErrDuplicateSubmission while the user has an active submission
// and with domain.ErrValidation on empty input. On success the event is
// also published on the relay as the secondary notification path.
func (s *SubmissionService) Submit(ctx context.Context, username, answer string) (domain.Submission, error) {
	username = strings.TrimSpace(username)
	answer = strings.TrimSpace(answer)
	if username == "" || answer == "" {
		return domain.Submission{}, fmt.Errorf("%w: username and answer are required", domain.ErrValidation)
	}

	unlock := s.lockUser(username)
	defer unlock()

	existing, err := s.repo.ActiveByUsername(ctx, username)
	if err != nil {
		return domain.Submission{}, err
	}
	if len(existing) > 0 {
		return domain.Submission{}, domain.ErrDuplicateSubmission
	}

	submission, err := s.repo.InsertActive(ctx, username, answer, s.now())
	if err != nil {
		return domain.Submission{}, err
	}

	s.publish(ctx, domain.SubmissionCreated{
		EventID:  uuid.NewString(),
		Username: submission.Username,
		Answer:   submission.Answer,
	})
	return submission, nil
}

// HasActiveSubmission reports whether username currently has a standing
// answer.
func (s *SubmissionService) HasActiveSubmission(ctx context.Context, username string) (bool, error) {
	existing, err := s.repo.ActiveByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}

// List returns the active and reset sets.
func (s *SubmissionService) List(ctx context.Context) (domain.SubmissionSets, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return domain.SubmissionSets{}, err
	}
	reset, err := s.repo.ListReset(ctx)
	if err != nil {
		return domain.SubmissionSets{}, err
	}
	return domain.SubmissionSets{Active: active, Reset: reset}, nil
}

// ListPurged returns the reset-of-reset archive.
func (s *SubmissionService) ListPurged(ctx context.Context) ([]domain.Submission, error) {
	return s.repo.ListPurged(ctx)
}

// ResetUser moves every active submission for username (normally one,
// defensively more) into the reset set. It fails with
// domain.ErrNothingToReset when the user has no active submission.
func (s *SubmissionService) ResetUser(ctx context.Context, username string) (int, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}

	moved, err := s.repo.MoveActiveToReset(ctx, username, s.now())
	if err != nil {
		return 0, err
	}
	if moved == 0 {
		return 0, domain.ErrNothingToReset
	}

	s.publish(ctx, domain.QuizReset{EventID: uuid.NewString(), Username: username})
	return moved, nil
}

// ResetAll moves every active submission into the reset set. Moving
// nothing is a plain no-op success.
func (s *SubmissionService) ResetAll(ctx context.Context) (int, error) {
	moved, err := s.repo.MoveAllActiveToReset(ctx, s.now())
	if err != nil {
		return 0, err
	}

	s.publish(ctx, domain.QuizReset{EventID: uuid.NewString(), ResetAll: true})
	return moved, nil
}

// PurgeResets moves every reset submission into the reset-of-reset
// archive. Calling it again with no intervening reset moves nothing.
func (s *SubmissionService) PurgeResets(ctx context.Context) (int, error) {
	return s.repo.MoveResetToPurged(ctx, s.now())
}

// publish is best effort: the change feed is the authoritative wakeup
// path, so a relay failure must not fail the mutation that succeeded.
func (s *SubmissionService) publish(ctx context.Context, event domain.RelayEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("relay publish failed: %v", err)
	}
}

func (s *SubmissionService) lockUser(username string) func() {
	s.mu.Lock()
	lock, ok := s.userLocks[username]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[username] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
