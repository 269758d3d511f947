package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/knolqueue/internal/scheduler"
)

// maxBodyBytes bounds the rate request body.
const maxBodyBytes = 1 << 16

// Deck is the part of a scheduler the HTTP layer needs.
type Deck interface {
	NextCard() scheduler.Projection
	RateCard(ctx context.Context, id int, rating string) (scheduler.Projection, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	decks       map[string]Deck
	defaultDeck string
	router      *http.ServeMux
	handler     http.Handler
	validate    *validator.Validate
	limiter     *Limiter
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Server)

// WithLimiter rate limits card ratings per client.
func WithLimiter(l *Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates and configures a new server. Requests naming an unknown
// deck are served by defaultDeck, which must be present in decks.
func NewServer(decks map[string]Deck, defaultDeck string, opts ...Option) (*Server, error) {
	if _, ok := decks[defaultDeck]; !ok {
		return nil, fmt.Errorf("default deck %q is not configured", defaultDeck)
	}

	s := &Server{
		decks:       decks,
		defaultDeck: defaultDeck,
		router:      http.NewServeMux(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	s.handler = withRequestID(accessLog(s.logger, s.router))
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /api/health", s.handleHealth())
	s.router.HandleFunc("GET /api/cards/next", s.handleNextCard())
	s.router.HandleFunc("POST /api/cards/{id}/rate", s.rateLimited(s.handleRateCard()))
	s.router.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type rateRequest struct {
	Rating string `json:"rating" validate:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: s.now().UTC()})
	}
}

// handleNextCard returns the head of the selected deck's queue.
func (s *Server) handleNextCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.deck(r).NextCard())
	}
}

// handleRateCard applies a rating and returns the next card.
func (s *Server) handleRateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := scheduler.ParseCardID(r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var req rateRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object with a string rating"})
			return
		}
		if err := s.validate.Struct(req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "rating is required"})
			return
		}

		resp, err := s.deck(r).RateCard(r.Context(), id, req.Rating)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) deck(r *http.Request) Deck {
	if d, ok := s.decks[r.URL.Query().Get("deck")]; ok {
		return d
	}
	return s.decks[s.defaultDeck]
}

func statusFor(err error) int {
	switch {
	case scheduler.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrCardNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
		msg = "unexpected server error"
	}
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
