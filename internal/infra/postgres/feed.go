package postgres

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

// ChannelName is the Postgres NOTIFY channel the migration triggers
// publish on.
const ChannelName = "coco_quiz_changes"

// Feed turns Postgres LISTEN/NOTIFY into the record store's change feed.
// One dedicated connection listens; events fan out to in-process
// subscribers. Delivery is wakeup-grade: slow subscribers lose stale
// events, and a dropped connection is retried, so consumers must refetch
// rather than count notifications.
type Feed struct {
	pool *pgxpool.Pool

	mu   sync.RWMutex
	subs map[chan domain.ChangeEvent]struct{}
}

func NewFeed(pool *pgxpool.Pool) *Feed {
	return &Feed{pool: pool, subs: make(map[chan domain.ChangeEvent]struct{})}
}

// Run listens until ctx is done, reconnecting after errors.
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := f.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("change feed: listener error, reconnecting: %v", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (f *Feed) listen(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChannelName); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var event domain.ChangeEvent
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			log.Printf("change feed: bad payload %q: %v", notification.Payload, err)
			continue
		}
		f.broadcast(event)
	}
}

// Subscribe returns a wakeup channel plus a cancel function.
func (f *Feed) Subscribe(_ context.Context) (<-chan domain.ChangeEvent, func(), error) {
	ch := make(chan domain.ChangeEvent, 16)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

func (f *Feed) broadcast(event domain.ChangeEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subs {
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
