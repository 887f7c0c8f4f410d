// Package http is an optional chi-based HTTP/SSE binding over the
// query core's <-chan model.ResponseChunk stream. Grounded on teacher
// internal/daemon/sse.go (writeSSEEvent, heartbeat ticker) and
// internal/daemon/handlers.go (chi routing); outside the core's scope,
// kept as a convenience demonstration binding only.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
	"github.com/hybridrag/queryengine/internal/query/router"
)

// Server exposes the hybrid router over HTTP.
type Server struct {
	router *router.Router
	logger zerolog.Logger
}

// NewServer builds a Server.
func NewServer(r *router.Router, logger zerolog.Logger) *Server {
	return &Server{router: r, logger: logger.With().Str("component", "transport.http").Logger()}
}

// Routes returns the chi router mounting the query endpoint.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/v1/query", s.handleQuery)
	return r
}

type queryRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	TopK      int    `json:"top_k"`
}

// handleQuery streams a query's response chunks as Server-Sent Events.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	callerKey := req.SessionID
	if callerKey == "" {
		callerKey = r.RemoteAddr
	}

	q := model.Query{
		Text:      req.Text,
		SessionID: req.SessionID,
		Mode:      model.QueryMode(req.Mode),
		TopK:      req.TopK,
	}

	chunks := s.router.ProcessQuery(r.Context(), q, callerKey)
	for chunk := range chunks {
		if err := writeSSEChunk(w, flusher, chunk); err != nil {
			s.logger.Debug().Err(err).Msg("failed to write SSE chunk, client likely disconnected")
			return
		}
	}
}

func writeSSEChunk(w http.ResponseWriter, flusher http.Flusher, chunk model.ResponseChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", chunk.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
