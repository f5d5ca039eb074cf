package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/artioladoli/security-awareness-training/internal/platform/database"
)

// PostgresStore is the PostgreSQL-backed catalog implementation.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a Postgres-backed catalog store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetRole(ctx context.Context, id int64) (Role, error) {
	var r Role
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, name FROM roles WHERE id = $1`, id,
	).Scan(&r.ID, &r.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("role %d: %w", id, ErrNotFound)
		}
		return Role{}, fmt.Errorf("get role: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, role_id, name, email, password_hash FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.RoleID, &u.Name, &u.Email, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, role_id, name, email, password_hash FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.RoleID, &u.Name, &u.Email, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
		}
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, id int64) (Topic, error) {
	var t Topic
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, name, description, video_url, required_score FROM topics WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Description, &t.VideoURL, &t.RequiredScore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Topic{}, fmt.Errorf("topic %d: %w", id, ErrNotFound)
		}
		return Topic{}, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) TopicsForRole(ctx context.Context, roleID int64) ([]Topic, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT t.id, t.name, t.description, t.video_url, t.required_score
		 FROM topics t
		 JOIN role_topic rt ON rt.topic_id = t.id
		 WHERE rt.role_id = $1
		 ORDER BY t.name ASC`,
		roleID,
	)
	if err != nil {
		return nil, fmt.Errorf("query topics for role: %w", err)
	}
	defer rows.Close()

	topics := []Topic{}
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.VideoURL, &t.RequiredScore); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

func (s *PostgresStore) QuestionsForTopics(ctx context.Context, topicIDs []int64) ([]Question, error) {
	if len(topicIDs) == 0 {
		return []Question{}, nil
	}

	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, topic_id, text FROM questions WHERE topic_id = ANY($1) ORDER BY id ASC`,
		topicIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	index := map[int64]int{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.TopicID, &q.Text); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	questionIDs := make([]int64, 0, len(questions))
	for _, q := range questions {
		questionIDs = append(questionIDs, q.ID)
	}

	optRows, err := s.db.Pool.Query(ctx,
		`SELECT id, question_id, text, is_correct FROM options WHERE question_id = ANY($1) ORDER BY id ASC`,
		questionIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var o Option
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate options: %w", err)
	}

	return questions, nil
}

func (s *PostgresStore) HasRoles(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check roles: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateRole(ctx context.Context, name string) (Role, error) {
	r := Role{Name: name}
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO roles (name) VALUES ($1) RETURNING id`, name,
	).Scan(&r.ID)
	if err != nil {
		return Role{}, fmt.Errorf("create role: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) (User, error) {
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO users (role_id, name, email, password_hash)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		u.RoleID, u.Name, u.Email, u.PasswordHash,
	).Scan(&u.ID)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateTopic(ctx context.Context, t Topic) (Topic, error) {
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO topics (name, description, video_url, required_score)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		t.Name, t.Description, t.VideoURL, t.RequiredScore,
	).Scan(&t.ID)
	if err != nil {
		return Topic{}, fmt.Errorf("create topic: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, topicID int64, text string) (Question, error) {
	q := Question{TopicID: topicID, Text: text}
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO questions (topic_id, text) VALUES ($1, $2) RETURNING id`,
		topicID, text,
	).Scan(&q.ID)
	if err != nil {
		return Question{}, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) CreateOption(ctx context.Context, questionID int64, text string, correct bool) (Option, error) {
	o := Option{QuestionID: questionID, Text: text, IsCorrect: correct}
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO options (question_id, text, is_correct) VALUES ($1, $2, $3) RETURNING id`,
		questionID, text, correct,
	).Scan(&o.ID)
	if err != nil {
		return Option{}, fmt.Errorf("create option: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) AssignTopic(ctx context.Context, roleID, topicID int64) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO role_topic (role_id, topic_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roleID, topicID,
	)
	if err != nil {
		return fmt.Errorf("assign topic: %w", err)
	}
	return nil
}
