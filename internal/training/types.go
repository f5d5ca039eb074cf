// Package training implements the scoring engine: grading answer
// submissions, recording immutable attempts, and deciding when a training
// session is complete.
package training

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artioladoli/security-awareness-training/internal/catalog"
)

// ErrUnauthorized is returned when a caller targets a session they do not
// own or a topic outside their role's assignment.
var ErrUnauthorized = errors.New("unauthorized")

// Session is the lifetime container for a user's training. CompletedAt is
// nil while any assigned topic still lacks a passing attempt.
type Session struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Attempt is one graded submission for a single topic. Attempts are
// append-only: retakes add rows, they never update earlier ones.
type Attempt struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	TopicID     int64     `json:"topic_id"`
	SessionID   int64     `json:"session_id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Score       int       `json:"score"`
	Passed      bool      `json:"passed"`
}

// AnswerSheet maps question ids to the option ids the learner selected.
type AnswerSheet map[int64][]int64

// SubmitRequest carries one grading submission. TopicID zero means the
// user's full assigned topic set (initial attempt); non-zero scopes the
// submission to a single topic (retake).
type SubmitRequest struct {
	SessionID int64
	UserID    int64
	TopicID   int64
	Answers   AnswerSheet
}

// TopicResult is the graded outcome for one topic in a submission.
type TopicResult struct {
	TopicID       int64  `json:"topic_id"`
	TopicName     string `json:"topic_name"`
	Score         int    `json:"score"`
	RequiredScore int    `json:"required_score"`
	Passed        bool   `json:"passed"`
}

// SubmitResult is the outcome of one submission.
type SubmitResult struct {
	Results          []TopicResult `json:"results"`
	SessionCompleted bool          `json:"session_completed"`
}

// TopicStatus is one row of the session status view.
type TopicStatus struct {
	Topic           catalog.Topic `json:"topic"`
	Attempted       bool          `json:"attempted"`
	Score           int           `json:"score"`
	Passed          bool          `json:"passed"`
	CompletedAt     *time.Time    `json:"completed_at"`
	RetakeAvailable bool          `json:"retake_available"`
}

// SessionStatus reports per-topic progress for a session. AllPassed is true
// iff every assigned topic's latest attempt passed.
type SessionStatus struct {
	Session   Session       `json:"session"`
	Topics    []TopicStatus `json:"topics"`
	AllPassed bool          `json:"all_passed"`
}

// QuestionError describes why one question's answer set was rejected.
type QuestionError struct {
	QuestionID int64  `json:"question_id"`
	Reason     string `json:"reason"`
}

// ValidationError rejects a whole submission before grading, carrying one
// entry per offending question.
type ValidationError struct {
	Questions []QuestionError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid submission:")
	for _, q := range e.Questions {
		fmt.Fprintf(&b, " question %d: %s;", q.QuestionID, q.Reason)
	}
	return strings.TrimSuffix(b.String(), ";")
}
