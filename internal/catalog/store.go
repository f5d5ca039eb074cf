package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store provides read access to the catalog and role assignments. Lookups
// that target a set return an empty slice when nothing matches; single-entity
// lookups return ErrNotFound.
type Store interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	GetUser(ctx context.Context, id int64) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	GetTopic(ctx context.Context, id int64) (Topic, error)

	// TopicsForRole returns the role's assigned topics ordered by name.
	TopicsForRole(ctx context.Context, roleID int64) ([]Topic, error)

	// QuestionsForTopics returns all questions of the given topics with
	// nested options.
	QuestionsForTopics(ctx context.Context, topicIDs []int64) ([]Question, error)
}

// Writer is the mutation surface used by the seeder.
type Writer interface {
	HasRoles(ctx context.Context) (bool, error)
	CreateRole(ctx context.Context, name string) (Role, error)
	CreateUser(ctx context.Context, u User) (User, error)
	CreateTopic(ctx context.Context, t Topic) (Topic, error)
	CreateQuestion(ctx context.Context, topicID int64, text string) (Question, error)
	CreateOption(ctx context.Context, questionID int64, text string, correct bool) (Option, error)
	AssignTopic(ctx context.Context, roleID, topicID int64) error
}

// MemoryStore is an in-memory catalog used in tests and local development.
type MemoryStore struct {
	mu         sync.RWMutex
	roles      map[int64]Role
	users      map[int64]User
	topics     map[int64]Topic
	questions  map[int64]Question
	assignment map[int64][]int64 // role id -> topic ids
	nextID     int64
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:      make(map[int64]Role),
		users:      make(map[int64]User),
		topics:     make(map[int64]Topic),
		questions:  make(map[int64]Question),
		assignment: make(map[int64][]int64),
	}
}

func (s *MemoryStore) GetRole(_ context.Context, id int64) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("role %d: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
}

func (s *MemoryStore) GetTopic(_ context.Context, id int64) (Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[id]
	if !ok {
		return Topic{}, fmt.Errorf("topic %d: %w", id, ErrNotFound)
	}
	return t, nil
}

func (s *MemoryStore) TopicsForRole(_ context.Context, roleID int64) ([]Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := make([]Topic, 0, len(s.assignment[roleID]))
	for _, id := range s.assignment[roleID] {
		if t, ok := s.topics[id]; ok {
			topics = append(topics, t)
		}
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics, nil
}

func (s *MemoryStore) QuestionsForTopics(_ context.Context, topicIDs []int64) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[int64]bool, len(topicIDs))
	for _, id := range topicIDs {
		wanted[id] = true
	}
	var questions []Question
	for _, q := range s.questions {
		if wanted[q.TopicID] {
			questions = append(questions, q)
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	return questions, nil
}

func (s *MemoryStore) HasRoles(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roles) > 0, nil
}

func (s *MemoryStore) CreateRole(_ context.Context, name string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Role{ID: s.allocID(), Name: name}
	s.roles[r.ID] = r
	return r, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.allocID()
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) CreateTopic(_ context.Context, t Topic) (Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.allocID()
	s.topics[t.ID] = t
	return t, nil
}

func (s *MemoryStore) CreateQuestion(_ context.Context, topicID int64, text string) (Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[topicID]; !ok {
		return Question{}, fmt.Errorf("topic %d: %w", topicID, ErrNotFound)
	}
	q := Question{ID: s.allocID(), TopicID: topicID, Text: text}
	s.questions[q.ID] = q
	return q, nil
}

func (s *MemoryStore) CreateOption(_ context.Context, questionID int64, text string, correct bool) (Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok {
		return Option{}, fmt.Errorf("question %d: %w", questionID, ErrNotFound)
	}
	o := Option{ID: s.allocID(), QuestionID: questionID, Text: text, IsCorrect: correct}
	q.Options = append(q.Options, o)
	s.questions[questionID] = q
	return o, nil
}

func (s *MemoryStore) AssignTopic(_ context.Context, roleID, topicID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if _, ok := s.topics[topicID]; !ok {
		return fmt.Errorf("topic %d: %w", topicID, ErrNotFound)
	}
	s.assignment[roleID] = append(s.assignment[roleID], topicID)
	return nil
}

func (s *MemoryStore) allocID() int64 {
	s.nextID++
	return s.nextID
}
