package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolqueue/internal/domain"
	"github.com/conorfennell/knolqueue/internal/scheduler"
	"github.com/conorfennell/knolqueue/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newDeck(t *testing.T, name string, n int) *scheduler.Scheduler {
	t.Helper()
	cards := make([]domain.Card, n)
	for i := range cards {
		cards[i] = domain.Card{ID: i + 1, Question: name + " Q" + strconv.Itoa(i+1), Answer: "A"}
	}
	store := storage.NewFileStore(filepath.Join(t.TempDir(), name+".json"))
	s, err := scheduler.New(context.Background(), cards, store, scheduler.WithName(name), scheduler.WithLogger(discard))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	decks := map[string]Deck{
		"social": newDeck(t, "social", 3),
		"vocab":  newDeck(t, "vocab", 50),
	}
	srv, err := NewServer(decks, "social", append([]Option{WithLogger(discard)}, opts...)...)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "timestamp")
}

func TestNextCardSelectsDeck(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		target    string
		wantTotal int
		wantQ     string
	}{
		{"/api/cards/next", 3, "social Q1"},
		{"/api/cards/next?deck=vocab", 50, "vocab Q1"},
		{"/api/cards/next?deck=missing", 3, "social Q1"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code)
			p := decode[scheduler.Projection](t, rec)
			require.NotNil(t, p.Card)
			assert.Equal(t, tt.wantQ, p.Card.Question)
			assert.Equal(t, tt.wantTotal, p.Meta.Total)
			assert.Nil(t, p.Rated)
		})
	}
}

func TestRateCard(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/cards/1/rate", `{"rating":"Hard"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[scheduler.Projection](t, rec)
	require.NotNil(t, p.Rated)
	assert.Equal(t, 1, p.Rated.ID)
	assert.Equal(t, domain.Hard, p.Rated.Rating)
	assert.Equal(t, 2, p.Rated.QueueIndex)
	assert.Equal(t, 3, p.Rated.QueuePosition)
	require.NotNil(t, p.Card)
	assert.Equal(t, 2, p.Card.ID)
}

func TestRateCardErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"unknown card", "/api/cards/999/rate?deck=vocab", `{"rating":"easy"}`, http.StatusNotFound},
		{"fractional id", "/api/cards/1.5/rate", `{"rating":"easy"}`, http.StatusNotFound},
		{"non-numeric id", "/api/cards/abc/rate", `{"rating":"easy"}`, http.StatusBadRequest},
		{"unsupported rating", "/api/cards/1/rate", `{"rating":"again"}`, http.StatusBadRequest},
		{"missing rating", "/api/cards/1/rate", `{}`, http.StatusBadRequest},
		{"empty body", "/api/cards/1/rate", "", http.StatusBadRequest},
		{"numeric rating", "/api/cards/1/rate", `{"rating":3}`, http.StatusBadRequest},
		{"malformed json", "/api/cards/1/rate", `{"rating":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			body := decode[errorResponse](t, rec)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decode[errorResponse](t, rec).Error)
}

type failingDeck struct{}

func (failingDeck) NextCard() scheduler.Projection { return scheduler.Projection{} }

func (failingDeck) RateCard(context.Context, int, string) (scheduler.Projection, error) {
	return scheduler.Projection{}, &storage.StoreError{Op: "save", Path: "/secret/state.json", Err: errors.New("disk full")}
}

func TestStoreFailureIsInternal(t *testing.T) {
	srv, err := NewServer(map[string]Deck{"d": failingDeck{}}, "d", WithLogger(discard))
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPost, "/api/cards/1/rate", `{"rating":"easy"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := decode[errorResponse](t, rec).Error
	assert.NotContains(t, msg, "/secret")
}

func TestNewServerRequiresDefaultDeck(t *testing.T) {
	_, err := NewServer(map[string]Deck{"a": failingDeck{}}, "b")
	assert.Error(t, err)
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, WithLimiter(NewLimiter(0.001, 2)))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := do(t, srv, http.MethodPost, "/api/cards/1/rate", `{"rating":"easy"}`)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Reads are never limited.
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/cards/next", "").Code)
}
