package domain

// RelayEvent is the closed set of messages carried on the realtime relay.
// The relay is at-least-once and unordered, so events are wakeup signals
// only; consumers refetch state instead of trusting the payload.
type RelayEvent interface {
	relayEvent()
}

// SubmissionCreated announces that a user submitted an answer.
type SubmissionCreated struct {
	EventID  string `json:"eventId"`
	Username string `json:"username"`
	Answer   string `json:"answer"`
}

func (SubmissionCreated) relayEvent() {}

// QuizReset announces that an admin reset one user or everyone.
type QuizReset struct {
	EventID  string `json:"eventId"`
	Username string `json:"username,omitempty"`
	ResetAll bool   `json:"resetAll,omitempty"`
}

func (QuizReset) relayEvent() {}
