package catalog

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_Lookups(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.GetTopic(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTopic() error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetUser(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser() error = %v, want ErrNotFound", err)
	}
	if _, err := store.UserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByEmail() error = %v, want ErrNotFound", err)
	}

	topic, err := store.CreateTopic(ctx, Topic{Name: "Phishing", RequiredScore: 75})
	if err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	got, err := store.GetTopic(ctx, topic.ID)
	if err != nil {
		t.Fatalf("GetTopic() error = %v", err)
	}
	if got.Name != "Phishing" || got.RequiredScore != 75 {
		t.Errorf("GetTopic() = %+v", got)
	}
}

func TestMemoryStore_TopicsForRole_NameOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	role, _ := store.CreateRole(ctx, "Engineering")
	for _, name := range []string{"Zebra", "Alpha", "Middle"} {
		topic, err := store.CreateTopic(ctx, Topic{Name: name, RequiredScore: 50})
		if err != nil {
			t.Fatalf("CreateTopic(%q) error = %v", name, err)
		}
		if err := store.AssignTopic(ctx, role.ID, topic.ID); err != nil {
			t.Fatalf("AssignTopic() error = %v", err)
		}
	}

	topics, err := store.TopicsForRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("TopicsForRole() error = %v", err)
	}
	want := []string{"Alpha", "Middle", "Zebra"}
	if len(topics) != len(want) {
		t.Fatalf("got %d topics, want %d", len(topics), len(want))
	}
	for i, name := range want {
		if topics[i].Name != name {
			t.Errorf("topics[%d].Name = %q, want %q", i, topics[i].Name, name)
		}
	}
}

func TestMemoryStore_TopicsForRole_Unassigned(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	topics, err := store.TopicsForRole(ctx, 404)
	if err != nil {
		t.Fatalf("TopicsForRole() error = %v", err)
	}
	if len(topics) != 0 {
		t.Errorf("got %d topics for unknown role, want empty result (not an error)", len(topics))
	}
}

func TestMemoryStore_QuestionsForTopics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	topic, _ := store.CreateTopic(ctx, Topic{Name: "Phishing", RequiredScore: 75})
	other, _ := store.CreateTopic(ctx, Topic{Name: "Passwords", RequiredScore: 75})

	q, _ := store.CreateQuestion(ctx, topic.ID, "Spot the phish")
	if _, err := store.CreateOption(ctx, q.ID, "urgent wire transfer", true); err != nil {
		t.Fatalf("CreateOption() error = %v", err)
	}
	if _, err := store.CreateOption(ctx, q.ID, "a newsletter", false); err != nil {
		t.Fatalf("CreateOption() error = %v", err)
	}
	if _, err := store.CreateQuestion(ctx, other.ID, "Strong passwords"); err != nil {
		t.Fatalf("CreateQuestion() error = %v", err)
	}

	questions, err := store.QuestionsForTopics(ctx, []int64{topic.ID})
	if err != nil {
		t.Fatalf("QuestionsForTopics() error = %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("got %d questions, want 1 (scoped to topic)", len(questions))
	}
	if len(questions[0].Options) != 2 {
		t.Errorf("got %d options, want 2", len(questions[0].Options))
	}

	correct := questions[0].CorrectOptionIDs()
	if len(correct) != 1 {
		t.Errorf("CorrectOptionIDs() = %v, want one id", correct)
	}
}

func TestQuestion_HasOption(t *testing.T) {
	q := Question{Options: []Option{{ID: 5}, {ID: 9}}}
	if !q.HasOption(5) || !q.HasOption(9) {
		t.Error("HasOption() should report existing options")
	}
	if q.HasOption(7) {
		t.Error("HasOption(7) = true, want false")
	}
}
