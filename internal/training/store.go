package training

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/artioladoli/security-awareness-training/internal/catalog"
)

// AttemptRecord pairs a graded attempt with the option ids to persist as its
// answer audit trail.
type AttemptRecord struct {
	Attempt   Attempt
	OptionIDs []int64
}

// Submission is the atomic write unit of one grading pass: the attempts (and
// their answer rows) for every graded topic, plus the data needed for the
// completion check.
type Submission struct {
	SessionID        int64
	UserID           int64
	CompletedAt      time.Time
	AssignedTopicIDs []int64
	Records          []AttemptRecord
}

// Store persists sessions, attempts and answers. RecordSubmission must be
// atomic: either every attempt, every answer row, and the completion check
// are applied, or none are.
type Store interface {
	CreateSession(ctx context.Context, userID int64, startedAt time.Time) (Session, error)
	GetSession(ctx context.Context, id int64) (Session, error)

	// LatestSession returns the user's most recent session or
	// catalog.ErrNotFound.
	LatestSession(ctx context.Context, userID int64) (Session, error)

	// LatestAttempts returns, per topic, the attempt with the latest
	// completed_at in the session.
	LatestAttempts(ctx context.Context, sessionID int64) (map[int64]Attempt, error)

	// AttemptCount reports the total number of attempt rows in the session.
	AttemptCount(ctx context.Context, sessionID int64) (int, error)

	// RecordSubmission appends the submission's attempts and answers, then
	// recomputes the pending topic set and, when it is empty, latches the
	// session's completed_at (only if currently unset). It reports whether
	// the session is complete after this submission.
	RecordSubmission(ctx context.Context, sub Submission) (sessionComplete bool, err error)
}

// MemoryStore is an in-memory Store used in tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]Session
	attempts map[int64][]Attempt // session id -> attempts, append order
	answers  map[int64][]int64   // attempt id -> option ids
	nextID   int64
}

// NewMemoryStore creates an empty in-memory training store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]Session),
		attempts: make(map[int64][]Attempt),
		answers:  make(map[int64][]int64),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, userID int64, startedAt time.Time) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sess := Session{ID: s.nextID, UserID: userID, StartedAt: startedAt}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *MemoryStore) GetSession(_ context.Context, id int64) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("session %d: %w", id, catalog.ErrNotFound)
	}
	return sess, nil
}

func (s *MemoryStore) LatestSession(_ context.Context, userID int64) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest Session
	found := false
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		if !found || sess.ID > latest.ID {
			latest = sess
			found = true
		}
	}
	if !found {
		return Session{}, fmt.Errorf("session for user %d: %w", userID, catalog.ErrNotFound)
	}
	return latest, nil
}

func (s *MemoryStore) LatestAttempts(_ context.Context, sessionID int64) (map[int64]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[int64]Attempt)
	for _, a := range s.attempts[sessionID] {
		cur, ok := latest[a.TopicID]
		if !ok || a.CompletedAt.After(cur.CompletedAt) ||
			(a.CompletedAt.Equal(cur.CompletedAt) && a.ID > cur.ID) {
			latest[a.TopicID] = a
		}
	}
	return latest, nil
}

func (s *MemoryStore) AttemptCount(_ context.Context, sessionID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts[sessionID]), nil
}

func (s *MemoryStore) RecordSubmission(_ context.Context, sub Submission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sub.SessionID]
	if !ok {
		return false, fmt.Errorf("session %d: %w", sub.SessionID, catalog.ErrNotFound)
	}

	for _, rec := range sub.Records {
		s.nextID++
		a := rec.Attempt
		a.ID = s.nextID
		s.attempts[sub.SessionID] = append(s.attempts[sub.SessionID], a)
		s.answers[a.ID] = append([]int64(nil), rec.OptionIDs...)
	}

	passed := make(map[int64]bool)
	for _, a := range s.attempts[sub.SessionID] {
		if a.Passed {
			passed[a.TopicID] = true
		}
	}
	pending := 0
	for _, topicID := range sub.AssignedTopicIDs {
		if !passed[topicID] {
			pending++
		}
	}

	if pending == 0 && sess.CompletedAt == nil {
		completedAt := sub.CompletedAt
		sess.CompletedAt = &completedAt
		s.sessions[sub.SessionID] = sess
	}
	return pending == 0, nil
}

// AnswersForAttempt returns the recorded option ids for an attempt, sorted.
// Test helper mirroring the answers audit table.
func (s *MemoryStore) AnswersForAttempt(attemptID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]int64(nil), s.answers[attemptID]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AttemptsForSession returns every attempt row for a session in insert
// order. Test helper.
func (s *MemoryStore) AttemptsForSession(sessionID int64) []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.attempts[sessionID]...)
}
