package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/artioladoli/security-awareness-training/internal/catalog"
	"github.com/artioladoli/security-awareness-training/internal/training"
)

type testEnv struct {
	handler *Handler
	server  http.Handler
	user    catalog.User
	topics  []catalog.Topic
	store   *training.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	cat := catalog.NewMemoryStore()

	role, err := cat.CreateRole(ctx, "Engineering")
	if err != nil {
		t.Fatalf("CreateRole() error = %v", err)
	}

	for _, name := range []string{"Phishing", "Passwords"} {
		topic, err := cat.CreateTopic(ctx, catalog.Topic{
			Name: name, RequiredScore: 75, VideoURL: "https://example.com/" + name + ".mp4",
		})
		if err != nil {
			t.Fatalf("CreateTopic() error = %v", err)
		}
		q, err := cat.CreateQuestion(ctx, topic.ID, "question about "+name)
		if err != nil {
			t.Fatalf("CreateQuestion() error = %v", err)
		}
		if _, err := cat.CreateOption(ctx, q.ID, "right", true); err != nil {
			t.Fatalf("CreateOption() error = %v", err)
		}
		if _, err := cat.CreateOption(ctx, q.ID, "wrong", false); err != nil {
			t.Fatalf("CreateOption() error = %v", err)
		}
		if err := cat.AssignTopic(ctx, role.ID, topic.ID); err != nil {
			t.Fatalf("AssignTopic() error = %v", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error = %v", err)
	}
	user, err := cat.CreateUser(ctx, catalog.User{
		RoleID: role.ID, Name: "Dev", Email: "dev@example.com", PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	store := training.NewMemoryStore()
	engine := training.NewEngine(training.EngineConfig{Catalog: cat, Store: store})

	handler := NewHandler(HandlerConfig{
		Engine:    engine,
		Catalog:   cat,
		JWTSecret: []byte("test-secret"),
		TokenTTL:  time.Hour,
	})

	assigned, err := cat.TopicsForRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("TopicsForRole() error = %v", err)
	}

	return &testEnv{
		handler: handler,
		server:  handler.Router(),
		user:    user,
		topics:  assigned,
		store:   store,
	}
}

func (env *testEnv) token(t *testing.T) string {
	t.Helper()
	token, err := env.handler.issueToken(env.user.ID, time.Now())
	if err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

// correctSheet answers every question of the env's topics correctly.
func (env *testEnv) correctSheet(t *testing.T) map[int64][]int64 {
	t.Helper()
	ctx := context.Background()
	cat := env.handler.catalog
	var ids []int64
	for _, topic := range env.topics {
		ids = append(ids, topic.ID)
	}
	questions, err := cat.QuestionsForTopics(ctx, ids)
	if err != nil {
		t.Fatalf("QuestionsForTopics() error = %v", err)
	}
	sheet := map[int64][]int64{}
	for _, q := range questions {
		sheet[q.ID] = q.CorrectOptionIDs()
	}
	return sheet
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		email      string
		password   string
		wantStatus int
	}{
		{"valid credentials", "dev@example.com", "hunter2", http.StatusOK},
		{"wrong password", "dev@example.com", "nope", http.StatusUnauthorized},
		{"unknown user", "ghost@example.com", "hunter2", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/login", "", map[string]string{
				"email": tt.email, "password": tt.password,
			})
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				var resp struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("decoding response: %v", err)
				}
				if resp.Token == "" {
					t.Error("login response missing token")
				}
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{
		"/api/training/session",
		"/api/training/questions",
		"/api/training/sessions/1",
	}
	for _, path := range paths {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status = %d, want 401", path, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/training/session", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", rec.Code)
	}
}

func TestQuestions_NeverExposeCorrectness(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	rec := env.do(t, http.MethodGet, "/api/training/questions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	if strings.Contains(body, "is_correct") || strings.Contains(body, "IsCorrect") {
		t.Error("question payload leaks correctness flags")
	}

	var resp questionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Topics) != 2 {
		t.Errorf("got %d topics, want 2", len(resp.Topics))
	}
	if len(resp.Questions) != 2 {
		t.Errorf("got %d questions, want 2", len(resp.Questions))
	}
	for _, q := range resp.Questions {
		if len(q.Options) != 2 {
			t.Errorf("question %d has %d options, want 2", q.ID, len(q.Options))
		}
	}
}

func TestQuestions_TopicScoping(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	rec := env.do(t, http.MethodGet,
		fmt.Sprintf("/api/training/questions?topic=%d", env.topics[0].ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp questionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Questions) != 1 {
		t.Errorf("got %d questions for one topic, want 1", len(resp.Questions))
	}

	rec = env.do(t, http.MethodGet, "/api/training/questions?topic=999", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("unassigned topic: status = %d, want 403", rec.Code)
	}
}

func TestSubmitFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	rec := env.do(t, http.MethodGet, "/api/training/session", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session: status = %d: %s", rec.Code, rec.Body.String())
	}
	var sess training.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decoding session: %v", err)
	}

	rec = env.do(t, http.MethodPost,
		fmt.Sprintf("/api/training/sessions/%d/submit", sess.ID), token,
		map[string]any{"answers": env.correctSheet(t)})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status = %d: %s", rec.Code, rec.Body.String())
	}
	var result training.SubmitResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(result.Results))
	}
	for _, r := range result.Results {
		if r.Score != 100 || !r.Passed {
			t.Errorf("topic %q = %+v, want 100 passed", r.TopicName, r)
		}
	}
	if !result.SessionCompleted {
		t.Error("session should be complete after passing everything")
	}

	rec = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/training/sessions/%d", sess.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status view: status = %d: %s", rec.Code, rec.Body.String())
	}
	var status training.SessionStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if !status.AllPassed {
		t.Error("AllPassed should be true")
	}
	if status.Session.CompletedAt == nil {
		t.Error("session CompletedAt should be set")
	}
}

func TestSubmit_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	rec := env.do(t, http.MethodGet, "/api/training/session", token, nil)
	var sess training.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decoding session: %v", err)
	}

	// Empty answer map: every question is missing.
	rec = env.do(t, http.MethodPost,
		fmt.Sprintf("/api/training/sessions/%d/submit", sess.ID), token,
		map[string]any{"answers": map[int64][]int64{}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Errors []training.QuestionError `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Errors) != 2 {
		t.Errorf("got %d question errors, want 2", len(resp.Errors))
	}
}

func TestSubmit_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	rec := env.do(t, http.MethodPost, "/api/training/sessions/999/submit", token,
		map[string]any{"answers": env.correctSheet(t)})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestTutorial(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	rec := env.do(t, http.MethodGet,
		fmt.Sprintf("/api/training/topics/%d/tutorial", env.topics[0].ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var view topicView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if view.VideoURL == "" {
		t.Error("tutorial response missing video URL")
	}

	rec = env.do(t, http.MethodGet, "/api/training/topics/999/tutorial", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("unassigned topic: status = %d, want 403", rec.Code)
	}
}

func TestReportDownload(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	rec := env.do(t, http.MethodGet, "/api/training/session", token, nil)
	var sess training.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decoding session: %v", err)
	}

	rec = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/training/sessions/%d/report", sess.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q, want xlsx", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("report body is empty")
	}
	// The workbook is rendered in full before the response starts, so the
	// length is known up front and the body is never a truncated file.
	if cl := rec.Header().Get("Content-Length"); cl != strconv.Itoa(rec.Body.Len()) {
		t.Errorf("Content-Length = %q, want %d", cl, rec.Body.Len())
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}
}

func TestReadyz_FailingCheck(t *testing.T) {
	env := newTestEnv(t)
	env.handler.readyChecks = []ReadyCheck{{
		Name:  "database",
		Check: func(context.Context) error { return errors.New("down") },
	}}

	rec := env.do(t, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", rec.Code)
	}
}
