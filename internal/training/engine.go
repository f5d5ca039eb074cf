package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artioladoli/security-awareness-training/internal/catalog"
)

// EngineConfig holds the engine's dependencies.
type EngineConfig struct {
	Catalog catalog.Store
	Store   Store
	Now     func() time.Time // defaults to time.Now
}

// Engine grades submissions and maintains session completion. It is the only
// component with behavioural logic; the catalog and store are lookups and
// persistence.
type Engine struct {
	catalog catalog.Store
	store   Store
	now     func() time.Time
}

// NewEngine creates a scoring engine.
func NewEngine(cfg EngineConfig) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		catalog: cfg.Catalog,
		store:   cfg.Store,
		now:     now,
	}
}

// StartOrGetSession returns the user's most recent session, creating one
// lazily on first access.
func (e *Engine) StartOrGetSession(ctx context.Context, userID int64) (Session, error) {
	if _, err := e.catalog.GetUser(ctx, userID); err != nil {
		return Session{}, err
	}

	sess, err := e.store.LatestSession(ctx, userID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return Session{}, err
	}

	sess, err = e.store.CreateSession(ctx, userID, e.now())
	if err != nil {
		return Session{}, err
	}
	slog.Info("training session started", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// AssignedTopics returns the topics the user's role requires, ordered by
// name.
func (e *Engine) AssignedTopics(ctx context.Context, userID int64) ([]catalog.Topic, error) {
	user, err := e.catalog.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.catalog.TopicsForRole(ctx, user.RoleID)
}

// SubmitAnswers grades a submission. The target is either the user's full
// assigned topic set or, for a retake, the single topic in req.TopicID. All
// writes and the completion check happen atomically; a rejected submission
// leaves no rows behind.
func (e *Engine) SubmitAnswers(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	sess, err := e.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != req.UserID {
		return nil, fmt.Errorf("session %d not owned by user %d: %w",
			req.SessionID, req.UserID, ErrUnauthorized)
	}

	assigned, err := e.AssignedTopics(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	targets := assigned
	if req.TopicID != 0 {
		var target *catalog.Topic
		for i := range assigned {
			if assigned[i].ID == req.TopicID {
				target = &assigned[i]
				break
			}
		}
		if target == nil {
			return nil, fmt.Errorf("topic %d not assigned to user %d: %w",
				req.TopicID, req.UserID, ErrUnauthorized)
		}
		targets = []catalog.Topic{*target}
	}

	targetIDs := topicIDs(targets)
	questions, err := e.catalog.QuestionsForTopics(ctx, targetIDs)
	if err != nil {
		return nil, err
	}

	if err := validateSubmission(questions, req.Answers); err != nil {
		return nil, err
	}

	now := e.now()
	byTopic := make(map[int64][]catalog.Question)
	for _, q := range questions {
		byTopic[q.TopicID] = append(byTopic[q.TopicID], q)
	}

	sub := Submission{
		SessionID:        req.SessionID,
		UserID:           req.UserID,
		CompletedAt:      now,
		AssignedTopicIDs: topicIDs(assigned),
	}
	result := &SubmitResult{}

	for _, topic := range targets {
		topicQuestions := byTopic[topic.ID]
		score := gradeTopic(topicQuestions, req.Answers)
		passed := score >= topic.RequiredScore

		var selected []int64
		for _, q := range topicQuestions {
			selected = append(selected, normalizeSelection(req.Answers[q.ID])...)
		}

		sub.Records = append(sub.Records, AttemptRecord{
			Attempt: Attempt{
				UserID:      req.UserID,
				TopicID:     topic.ID,
				SessionID:   req.SessionID,
				StartedAt:   now,
				CompletedAt: now,
				Score:       score,
				Passed:      passed,
			},
			OptionIDs: selected,
		})
		result.Results = append(result.Results, TopicResult{
			TopicID:       topic.ID,
			TopicName:     topic.Name,
			Score:         score,
			RequiredScore: topic.RequiredScore,
			Passed:        passed,
		})
	}

	complete, err := e.store.RecordSubmission(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("recording submission: %w", err)
	}
	result.SessionCompleted = complete

	slog.Info("submission graded",
		"session_id", req.SessionID,
		"user_id", req.UserID,
		"topics", len(targets),
		"session_completed", complete,
	)
	return result, nil
}

// SessionStatus reports per-topic progress for the session: the latest
// attempt per assigned topic, whether a retake is available, and whether
// every assigned topic's latest attempt passed.
func (e *Engine) SessionStatus(ctx context.Context, sessionID, userID int64) (*SessionStatus, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, fmt.Errorf("session %d not owned by user %d: %w",
			sessionID, userID, ErrUnauthorized)
	}

	assigned, err := e.AssignedTopics(ctx, userID)
	if err != nil {
		return nil, err
	}
	latest, err := e.store.LatestAttempts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Vacuously true for a role with no assigned topics, matching the
	// completion check in the stores.
	status := &SessionStatus{Session: sess, AllPassed: true}
	for _, topic := range assigned {
		ts := TopicStatus{Topic: topic, RetakeAvailable: true}
		if a, ok := latest[topic.ID]; ok {
			ts.Attempted = true
			ts.Score = a.Score
			ts.Passed = a.Passed
			completedAt := a.CompletedAt
			ts.CompletedAt = &completedAt
			ts.RetakeAvailable = !a.Passed
		}
		if !ts.Passed {
			status.AllPassed = false
		}
		status.Topics = append(status.Topics, ts)
	}
	return status, nil
}

// validateSubmission applies the upstream request rules: every question of
// the target topics needs a non-empty answer set, and every submitted option
// must belong to the question it is submitted for. Failures are collected
// per question and reject the submission as a whole.
func validateSubmission(questions []catalog.Question, sheet AnswerSheet) error {
	var errs []QuestionError
	for _, q := range questions {
		selected, ok := sheet[q.ID]
		if !ok || len(selected) == 0 {
			errs = append(errs, QuestionError{
				QuestionID: q.ID,
				Reason:     "answer is required",
			})
			continue
		}
		for _, id := range selected {
			if !q.HasOption(id) {
				errs = append(errs, QuestionError{
					QuestionID: q.ID,
					Reason:     fmt.Sprintf("option %d does not belong to this question", id),
				})
				break
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Questions: errs}
	}
	return nil
}

func topicIDs(topics []catalog.Topic) []int64 {
	ids := make([]int64, 0, len(topics))
	for _, t := range topics {
		ids = append(ids, t.ID)
	}
	return ids
}
