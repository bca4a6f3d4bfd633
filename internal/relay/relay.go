package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

// Relay is a best-effort, unordered, at-least-once fan-out bus. Every
// subscriber receives every published event, including the publisher's
// own subscriptions.
type Relay interface {
	Publish(ctx context.Context, event domain.RelayEvent) error
	// Subscribe returns a channel of events plus a cancel function the
	// caller must invoke to avoid leaks.
	Subscribe(ctx context.Context) (<-chan domain.RelayEvent, func(), error)
}

const (
	typeSubmissionCreated = "submission-created"
	typeQuizReset         = "quiz-reset"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes a relay event into its wire envelope.
func Encode(event domain.RelayEvent) ([]byte, error) {
	var typ string
	switch event.(type) {
	case domain.SubmissionCreated:
		typ = typeSubmissionCreated
	case domain.QuizReset:
		typ = typeQuizReset
	default:
		return nil, fmt.Errorf("unknown relay event %T", event)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: typ, Payload: payload})
}

// Decode parses a wire envelope back into a relay event. Unknown types
// are an error: the event set is closed.
func Decode(data []byte) (domain.RelayEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode relay envelope: %w", err)
	}
	switch env.Type {
	case typeSubmissionCreated:
		var event domain.SubmissionCreated
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		return event, nil
	case typeQuizReset:
		var event domain.QuizReset
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		return event, nil
	default:
		return nil, fmt.Errorf("unknown relay event type %q", env.Type)
	}
}
