package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// chatLineJSON is the admin view of one chat line.
type chatLineJSON struct {
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	SenderID uint16    `json:"sender_id,omitempty"`
	Username string    `json:"username,omitempty"`
	Text     string    `json:"text"`
}

// AdminRouter returns a read-only HTTP view of the server:
//
//	GET /healthz   liveness and whether the transport is open
//	GET /peers     connected peers
//	GET /chat      chat history, oldest first; ?limit=N keeps the newest N
//	GET /stats     Stats
//	GET /metrics   Prometheus exposition
func (s *Server) AdminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/peers", s.handlePeers)
	r.Get("/chat", s.handleChat)
	r.Get("/stats", s.handleStats)
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	addr := s.Addr()
	status := http.StatusOK
	if addr == "" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"instance": s.id.String(),
		"open":     addr != "",
		"addr":     addr,
	})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Peers())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	lines := s.ChatTranscript()
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n < len(lines) {
			lines = lines[len(lines)-n:]
		}
	}

	out := make([]chatLineJSON, len(lines))
	for i, l := range lines {
		out[i] = chatLineJSON{
			Time:     l.Timestamp,
			Source:   l.Value.Source.String(),
			SenderID: l.Value.SenderID,
			Username: l.Value.Username,
			Text:     l.Value.Text,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
