// Package api exposes the training core over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/artioladoli/security-awareness-training/internal/catalog"
	"github.com/artioladoli/security-awareness-training/internal/platform/cache"
	"github.com/artioladoli/security-awareness-training/internal/training"
	"github.com/artioladoli/security-awareness-training/internal/training/report"
)

// HandlerConfig holds the API's dependencies.
type HandlerConfig struct {
	Engine      *training.Engine
	Catalog     catalog.Store
	Cache       *cache.Cache // optional; nil disables question caching
	QuestionTTL time.Duration
	JWTSecret   []byte
	TokenTTL    time.Duration
	ReadyChecks []ReadyCheck
}

// ReadyCheck is a named dependency probe for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler carries the HTTP handlers for the training API.
type Handler struct {
	engine      *training.Engine
	catalog     catalog.Store
	cache       *cache.Cache
	questionTTL time.Duration
	jwtSecret   []byte
	tokenTTL    time.Duration
	readyChecks []ReadyCheck
}

// NewHandler creates the API handler set.
func NewHandler(cfg HandlerConfig) *Handler {
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return &Handler{
		engine:      cfg.Engine,
		catalog:     cfg.Catalog,
		cache:       cfg.Cache,
		questionTTL: cfg.QuestionTTL,
		jwtSecret:   cfg.JWTSecret,
		tokenTTL:    ttl,
		readyChecks: cfg.ReadyChecks,
	}
}

// optionView is the learner-facing option shape. Correctness is never
// serialized to clients.
type optionView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type questionView struct {
	ID      int64        `json:"id"`
	TopicID int64        `json:"topic_id"`
	Text    string       `json:"text"`
	Options []optionView `json:"options"`
}

type topicView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	VideoURL    string `json:"video_url"`
}

type questionsResponse struct {
	Topics    []topicView    `json:"topics"`
	Questions []questionView `json:"questions"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.catalog.UserByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response as a wrong password; no account probing.
		respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.issueToken(user.ID, time.Now())
	if err != nil {
		slog.Error("signing token", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Could not issue token")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
	})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	sess, err := h.engine.StartOrGetSession(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	assigned, err := h.engine.AssignedTopics(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	topics := assigned
	singleTopic := false
	if raw := r.URL.Query().Get("topic"); raw != "" {
		topicID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid topic id")
			return
		}
		topics = nil
		for _, t := range assigned {
			if t.ID == topicID {
				topics = []catalog.Topic{t}
				break
			}
		}
		if topics == nil {
			respondWithError(w, http.StatusForbidden, "Cannot access that topic")
			return
		}
		singleTopic = true
	}

	// The full assigned set is the hot path and identical for every user of
	// the role, so it is cached per role.
	var cacheKey string
	if h.cache != nil && !singleTopic {
		user, err := h.catalog.GetUser(r.Context(), userID)
		if err == nil {
			cacheKey = fmt.Sprintf("questions:role:%d", user.RoleID)
			var cached questionsResponse
			hit, err := h.cache.GetJSON(r.Context(), cacheKey, &cached)
			if err != nil {
				slog.Warn("question cache read failed", "error", err)
			} else if hit {
				respondWithJSON(w, http.StatusOK, cached)
				return
			}
		}
	}

	ids := make([]int64, 0, len(topics))
	views := make([]topicView, 0, len(topics))
	for _, t := range topics {
		ids = append(ids, t.ID)
		views = append(views, topicView{
			ID: t.ID, Name: t.Name, Description: t.Description, VideoURL: t.VideoURL,
		})
	}

	questions, err := h.catalog.QuestionsForTopics(r.Context(), ids)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := questionsResponse{Topics: views, Questions: make([]questionView, 0, len(questions))}
	for _, q := range questions {
		qv := questionView{ID: q.ID, TopicID: q.TopicID, Text: q.Text}
		for _, o := range q.Options {
			qv.Options = append(qv.Options, optionView{ID: o.ID, Text: o.Text})
		}
		resp.Questions = append(resp.Questions, qv)
	}

	if cacheKey != "" {
		if err := h.cache.SetJSON(r.Context(), cacheKey, resp, h.questionTTL); err != nil {
			slog.Warn("question cache write failed", "error", err)
		}
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	sessionID, err := pathID(r, "session_id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	var req struct {
		Answers training.AnswerSheet `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var topicID int64
	if raw := r.URL.Query().Get("topic"); raw != "" {
		topicID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid topic id")
			return
		}
	}

	result, err := h.engine.SubmitAnswers(r.Context(), training.SubmitRequest{
		SessionID: sessionID,
		UserID:    userID,
		TopicID:   topicID,
		Answers:   req.Answers,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	sessionID, err := pathID(r, "session_id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	status, err := h.engine.SessionStatus(r.Context(), sessionID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	sessionID, err := pathID(r, "session_id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	status, err := h.engine.SessionStatus(r.Context(), sessionID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.catalog.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Render fully before touching the response so a failed render can
	// still return an error status instead of a truncated workbook.
	var buf bytes.Buffer
	if err := report.WriteSession(&buf, user, status); err != nil {
		slog.Error("writing session report", "error", err, "session_id", sessionID)
		respondWithError(w, http.StatusServiceUnavailable, "Could not generate report")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="training-session-%d.xlsx"`, sessionID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("sending session report", "error", err, "session_id", sessionID)
	}
}

func (h *Handler) handleTutorial(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	topicID, err := pathID(r, "topic_id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid topic id")
		return
	}

	assigned, err := h.engine.AssignedTopics(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	for _, t := range assigned {
		if t.ID == topicID {
			respondWithJSON(w, http.StatusOK, topicView{
				ID: t.ID, Name: t.Name, Description: t.Description, VideoURL: t.VideoURL,
			})
			return
		}
	}
	respondWithError(w, http.StatusForbidden, "Cannot access that topic")
}

// writeError maps engine errors onto HTTP responses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *training.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "invalid submission",
			"errors": verr.Questions,
		})
	case errors.Is(err, training.ErrUnauthorized):
		respondWithError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, catalog.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found")
	default:
		slog.Error("request failed", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Temporarily unavailable, please retry")
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
