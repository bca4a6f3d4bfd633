package domain

import "time"

// Submission is one user's standing answer to the current prompt.
// Lifecycle state is expressed by set membership: a submission lives in
// exactly one of the active, reset, or purged (reset-of-reset) sets.
type Submission struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Answer      string     `json:"answer"`
	SubmittedAt time.Time  `json:"submittedAt"`
	ResetAt     *time.Time `json:"resetAt,omitempty"`
	PurgedAt    *time.Time `json:"purgedAt,omitempty"`
}

// SubmissionSets is the read view over the submission lifecycle.
type SubmissionSets struct {
	Active []Submission `json:"active"`
	Reset  []Submission `json:"reset"`
}

// BuzzerPress records one buzz-in. Storage keeps every press; reads
// collapse to the first press per username.
type BuzzerPress struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	PressedAt time.Time `json:"pressedAt"`
}

// LeaderboardEntry is a manually managed score row. Concurrent score
// edits are last-write-wins.
type LeaderboardEntry struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// QuestionMode selects which interaction type clients should render.
type QuestionMode string

const (
	ModeNone           QuestionMode = "none"
	ModeBuzzer         QuestionMode = "buzzer"
	ModeFreeText       QuestionMode = "freetext"
	ModeMultipleChoice QuestionMode = "multiplechoice"
)

// ValidMode reports whether m is a known question mode.
func ValidMode(m QuestionMode) bool {
	switch m {
	case ModeNone, ModeBuzzer, ModeFreeText, ModeMultipleChoice:
		return true
	}
	return false
}

// Logical table names, shared by the store and the change feed.
const (
	TableAnswers      = "answers"
	TableResetAnswers = "reset_answers"
	TablePurged       = "reset_reset_answers"
	TableBuzzers      = "buzzers"
	TableLeaderboard  = "leaderboard"
	TableQuestionMode = "question_mode"
)

// ChangeEvent is a row-change notification from the record store. It
// carries no row payload on purpose: consumers treat it as a wakeup and
// refetch, never as a delta.
type ChangeEvent struct {
	Table string `json:"table"`
	Op    string `json:"op"`
}
