package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
	"github.com/KelkeFranvin/coco-quiz/internal/view"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// serviceFetcher adapts the app services to view.Fetcher.
type serviceFetcher struct {
	h *Handler
}

func (f serviceFetcher) Submissions(ctx context.Context) (domain.SubmissionSets, error) {
	return f.h.submissions.List(ctx)
}

func (f serviceFetcher) Buzzers(ctx context.Context) ([]domain.BuzzerPress, error) {
	return f.h.board.Buzzers(ctx)
}

func (f serviceFetcher) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	return f.h.board.Leaderboard(ctx)
}

func (f serviceFetcher) Mode(ctx context.Context) (domain.QuestionMode, error) {
	return f.h.board.Mode(ctx)
}

// serveWS upgrades the connection and streams view snapshots to the
// browser. Every wakeup from either notification path produces a fresh
// snapshot push; inbound messages are republished on the relay as the
// redundant client-driven notification path.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	changes, cancelChanges, err := h.feed.Subscribe(ctx)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancelChanges()

	events, cancelEvents, err := h.relay.Subscribe(ctx)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancelEvents()

	model := view.New(serviceFetcher{h: h}, username)
	if err := model.RefreshAll(ctx); err != nil {
		log.Printf("ws initial refresh: %v", err)
	}

	snapshots, cancelSnapshots := model.SubscribeSnapshots()
	defer cancelSnapshots()

	go model.Run(ctx, changes, events, h.poll)

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	snapshotsDone := make(chan struct{})
	go func() {
		defer close(snapshotsDone)
		for {
			select {
			case snapshot, ok := <-snapshots:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "snapshot", Payload: snapshot}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	send <- outboundMessage{Type: "snapshot", Payload: model.Snapshot()}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.republish(ctx, inbound); err != nil {
			select {
			case send <- outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}}:
			case <-ctx.Done():
			}
		}
	}

	cancel()
	<-snapshotsDone
	close(send)
	<-writerDone
}

// republish forwards a client-side domain event onto the relay. The
// relay broadcasts to every subscriber including the sender, mirroring
// the change feed's behavior so both paths stay symmetric.
func (h *Handler) republish(ctx context.Context, inbound inboundMessage) error {
	switch inbound.Type {
	case "submit-answer":
		var payload struct {
			Username string `json:"username"`
			Answer   string `json:"answer"`
		}
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		return h.relay.Publish(ctx, domain.SubmissionCreated{
			EventID:  uuid.NewString(),
			Username: payload.Username,
			Answer:   payload.Answer,
		})
	case "quiz-reset":
		var payload struct {
			Username string `json:"username"`
			ResetAll bool   `json:"resetAll"`
		}
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		return h.relay.Publish(ctx, domain.QuizReset{
			EventID:  uuid.NewString(),
			Username: payload.Username,
			ResetAll: payload.ResetAll,
		})
	default:
		return errUnsupportedMessage
	}
}

var (
	errInvalidPayload     = jsonError("invalid message payload")
	errUnsupportedMessage = jsonError("unsupported message type")
)

type jsonError string

func (e jsonError) Error() string { return string(e) }
