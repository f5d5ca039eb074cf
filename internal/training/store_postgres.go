package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/artioladoli/security-awareness-training/internal/catalog"
	"github.com/artioladoli/security-awareness-training/internal/platform/database"
)

// PostgresStore is the PostgreSQL-backed Store. RecordSubmission runs in a
// serializable transaction so concurrent submissions for the same session
// cannot interleave with the completion check.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a Postgres-backed training store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateSession(ctx context.Context, userID int64, startedAt time.Time) (Session, error) {
	sess := Session{UserID: userID, StartedAt: startedAt}
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO training_sessions (user_id, started_at) VALUES ($1, $2) RETURNING id`,
		userID, startedAt,
	).Scan(&sess.ID)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id int64) (Session, error) {
	var sess Session
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, user_id, started_at, completed_at FROM training_sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.UserID, &sess.StartedAt, &sess.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, fmt.Errorf("session %d: %w", id, catalog.ErrNotFound)
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) LatestSession(ctx context.Context, userID int64) (Session, error) {
	var sess Session
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, user_id, started_at, completed_at
		 FROM training_sessions
		 WHERE user_id = $1
		 ORDER BY started_at DESC, id DESC
		 LIMIT 1`,
		userID,
	).Scan(&sess.ID, &sess.UserID, &sess.StartedAt, &sess.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, fmt.Errorf("session for user %d: %w", userID, catalog.ErrNotFound)
		}
		return Session{}, fmt.Errorf("latest session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) LatestAttempts(ctx context.Context, sessionID int64) (map[int64]Attempt, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT DISTINCT ON (topic_id)
		        id, user_id, topic_id, training_session_id, started_at, completed_at, score, passed
		 FROM attempts
		 WHERE training_session_id = $1
		 ORDER BY topic_id, completed_at DESC, id DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query latest attempts: %w", err)
	}
	defer rows.Close()

	latest := make(map[int64]Attempt)
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.TopicID, &a.SessionID,
			&a.StartedAt, &a.CompletedAt, &a.Score, &a.Passed); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		latest[a.TopicID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return latest, nil
}

func (s *PostgresStore) AttemptCount(ctx context.Context, sessionID int64) (int, error) {
	var n int
	err := s.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE training_session_id = $1`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) RecordSubmission(ctx context.Context, sub Submission) (bool, error) {
	var complete bool
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		for _, rec := range sub.Records {
			a := rec.Attempt
			var attemptID int64
			err := tx.QueryRow(ctx,
				`INSERT INTO attempts
				   (user_id, topic_id, training_session_id, started_at, completed_at, score, passed)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 RETURNING id`,
				a.UserID, a.TopicID, a.SessionID, a.StartedAt, a.CompletedAt, a.Score, a.Passed,
			).Scan(&attemptID)
			if err != nil {
				return fmt.Errorf("insert attempt: %w", err)
			}

			for _, optionID := range rec.OptionIDs {
				if _, err := tx.Exec(ctx,
					`INSERT INTO answers (attempt_id, option_id) VALUES ($1, $2)`,
					attemptID, optionID,
				); err != nil {
					return fmt.Errorf("insert answer: %w", err)
				}
			}
		}

		var pending int
		err := tx.QueryRow(ctx,
			`SELECT COUNT(*)
			 FROM unnest($1::bigint[]) AS assigned(topic_id)
			 WHERE assigned.topic_id NOT IN (
			   SELECT topic_id FROM attempts
			   WHERE training_session_id = $2 AND passed
			 )`,
			sub.AssignedTopicIDs, sub.SessionID,
		).Scan(&pending)
		if err != nil {
			return fmt.Errorf("compute pending topics: %w", err)
		}

		complete = pending == 0
		if complete {
			// Latch only: a completed session is never re-stamped.
			if _, err := tx.Exec(ctx,
				`UPDATE training_sessions
				 SET completed_at = $2
				 WHERE id = $1 AND completed_at IS NULL`,
				sub.SessionID, sub.CompletedAt,
			); err != nil {
				return fmt.Errorf("complete session: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return complete, nil
}
