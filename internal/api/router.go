package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Router builds the HTTP routing table: health probes, login, and the
// authenticated training surface, wrapped with CORS.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.handleReadyz).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/login", h.handleLogin).Methods(http.MethodPost)

	authed := apiRouter.PathPrefix("/training").Subrouter()
	authed.Use(h.authMiddleware)
	authed.HandleFunc("/session", h.handleSession).Methods(http.MethodGet)
	authed.HandleFunc("/questions", h.handleQuestions).Methods(http.MethodGet)
	authed.HandleFunc("/sessions/{session_id:[0-9]+}/submit", h.handleSubmit).Methods(http.MethodPost)
	authed.HandleFunc("/sessions/{session_id:[0-9]+}", h.handleStatus).Methods(http.MethodGet)
	authed.HandleFunc("/sessions/{session_id:[0-9]+}/report", h.handleReport).Methods(http.MethodGet)
	authed.HandleFunc("/topics/{topic_id:[0-9]+}/tutorial", h.handleTutorial).Methods(http.MethodGet)

	return cors.Default().Handler(r)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, rc := range h.readyChecks {
		if err := rc.Check(r.Context()); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"check":  rc.Name,
			})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
