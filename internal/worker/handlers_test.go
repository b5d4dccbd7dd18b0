package worker

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/tastetrainer/internal/analysis"
	"github.com/thebtf/tastetrainer/internal/candidates"
	"github.com/thebtf/tastetrainer/internal/config"
	"github.com/thebtf/tastetrainer/internal/scoring"
	"github.com/thebtf/tastetrainer/internal/snapshot"
	"github.com/thebtf/tastetrainer/internal/trainer"
)

// testTrainer builds a bootstrapped trainer over the builtin catalog.
func testTrainer(t *testing.T) *trainer.Trainer {
	t.Helper()

	catalog, err := candidates.NewCatalog(candidates.WithSeed(1))
	require.NoError(t, err)

	repo := snapshot.NewRepository(snapshot.NewMemoryStore(), "test")
	tr := trainer.New(trainer.DefaultConfig(), scoring.DefaultConfig(), catalog, analysis.Disabled{}, repo)
	require.NoError(t, tr.Bootstrap(context.Background()))
	t.Cleanup(tr.Close)
	return tr
}

func testService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default().Server
	cfg.RateLimit = 0
	svc := NewService("test-version", cfg, testTrainer(t))
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc
}

type WorkerSuite struct {
	suite.Suite
	svc *Service
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.svc = testService(s.T())
	s.svc.MarkReady(nil)
}

func (s *WorkerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.svc.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *WorkerSuite) decode(rec *httptest.ResponseRecorder, out any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func (s *WorkerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, rec.Code)

	var body map[string]any
	s.decode(rec, &body)
	s.Equal("ready", body["status"])
	s.Equal("test-version", body["version"])
}

func (s *WorkerSuite) TestState() {
	rec := s.do(http.MethodGet, "/api/state", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var st trainer.State
	s.decode(rec, &st)
	s.Equal(trainer.StatusReady, st.Status)
	s.Equal(20, st.DeckSize)
	s.Len(st.VisibleDeck, 3)
	s.Require().NotNil(st.CurrentDish)
	s.Equal(0, st.TotalSwipes)
	s.False(st.CanUndo)
}

func (s *WorkerSuite) TestSwipeAndUndo() {
	before := s.svc.trainer.State()

	rec := s.do(http.MethodPost, "/api/swipe", `{"action":"like"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var resp SwipeResponse
	s.decode(rec, &resp)
	s.Equal(before.CurrentDish.Name, resp.Event.Dish.Name)
	s.Equal(1, resp.State.TotalSwipes)
	s.Equal(19, resp.State.DeckSize)
	s.True(resp.State.CanUndo)
	s.Contains(resp.State.RecentLikes, before.CurrentDish.Name)

	rec = s.do(http.MethodPost, "/api/undo", "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var undo UndoResponse
	s.decode(rec, &undo)
	s.Equal(before.CurrentDish.Name, undo.Undone.Dish.Name)
	s.Equal(0, undo.State.TotalSwipes)
	s.Equal(20, undo.State.DeckSize)
	s.Equal(before.CurrentDish.Name, undo.State.CurrentDish.Name)
}

func (s *WorkerSuite) TestSwipe_BadRequests() {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"unknown action", `{"action":"love"}`, "invalid_action"},
		{"malformed json", `{"action":`, "bad_request"},
		{"empty action", `{}`, "invalid_action"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodPost, "/api/swipe", tt.body)
			s.Equal(http.StatusBadRequest, rec.Code)
			var er ErrorResponse
			s.decode(rec, &er)
			s.Equal(tt.code, er.Code)
		})
	}
	s.Equal(0, s.svc.trainer.State().TotalSwipes)
}

func (s *WorkerSuite) TestSwipe_RejectsNonJSON() {
	req := httptest.NewRequest(http.MethodPost, "/api/swipe", strings.NewReader("action=like"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.svc.Handler().ServeHTTP(rec, req)
	s.Equal(http.StatusUnsupportedMediaType, rec.Code)
}

func (s *WorkerSuite) TestUndo_NothingToUndo() {
	rec := s.do(http.MethodPost, "/api/undo", "")
	s.Equal(http.StatusConflict, rec.Code)

	var er ErrorResponse
	s.decode(rec, &er)
	s.Equal("nothing_to_undo", er.Code)
}

func (s *WorkerSuite) TestRefreshAnalysis_NotEnoughSwipes() {
	rec := s.do(http.MethodPost, "/api/analysis/refresh", "")
	s.Equal(http.StatusConflict, rec.Code)

	var er ErrorResponse
	s.decode(rec, &er)
	s.Equal("not_enough_swipes", er.Code)
}

func (s *WorkerSuite) TestReset() {
	for _, action := range []string{"like", "dislike", "neutral"} {
		rec := s.do(http.MethodPost, "/api/swipe", `{"action":"`+action+`"}`)
		s.Require().Equal(http.StatusOK, rec.Code)
	}

	rec := s.do(http.MethodPost, "/api/reset", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ResetResponse
	s.decode(rec, &resp)
	s.Empty(resp.DeckError)
	s.Equal(0, resp.State.TotalSwipes)
	s.Equal(20, resp.State.DeckSize)
	s.Equal(uint64(1), resp.State.Epoch)
	s.Empty(resp.State.PositiveInsights)
	s.False(resp.State.CanUndo)
}

func (s *WorkerSuite) TestInsightsAndContext() {
	for range 3 {
		rec := s.do(http.MethodPost, "/api/swipe", `{"action":"like"}`)
		s.Require().Equal(http.StatusOK, rec.Code)
	}

	rec := s.do(http.MethodGet, "/api/insights?limit=2", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var ins InsightsResponse
	s.decode(rec, &ins)
	s.LessOrEqual(len(ins.Positive), 2)
	s.NotNil(ins.Negative)

	rec = s.do(http.MethodGet, "/api/context", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var tc map[string]any
	s.decode(rec, &tc)
	s.EqualValues(3, tc["total_swipes"])
}

func (s *WorkerSuite) TestHistory() {
	for _, action := range []string{"like", "dislike"} {
		s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/api/swipe", `{"action":"`+action+`"}`).Code)
	}

	rec := s.do(http.MethodGet, "/api/history?limit=1", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var events []map[string]any
	s.decode(rec, &events)
	s.Require().Len(events, 1)
	s.Equal("dislike", events[0]["action"])

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/history?limit=zero", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/api/history?limit=-1", "").Code)
}

func (s *WorkerSuite) TestSecurityHeadersAndRequestID() {
	rec := s.do(http.MethodGet, "/api/state", "")
	s.Equal("DENY", rec.Header().Get("X-Frame-Options"))
	s.Equal("nosniff", rec.Header().Get("X-Content-Type-Options"))
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func (s *WorkerSuite) TestMetricsEndpoint() {
	s.do(http.MethodGet, "/api/state", "")
	rec := s.do(http.MethodGet, "/metrics", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "taste_api_requests_total")
}

func TestRequireReady(t *testing.T) {
	svc := testService(t)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"starting"`)

	svc.MarkReady(assert.AnError)
	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	svc.MarkReady(nil)
	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := config.Default().Server
	cfg.RateLimit = 2
	svc := NewService("test", cfg, testTrainer(t))
	svc.MarkReady(nil)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/undo", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		svc.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusConflict, http.StatusConflict, http.StatusTooManyRequests}, codes)
}

func TestEventsStream(t *testing.T) {
	svc := testService(t)
	svc.MarkReady(nil)

	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if line := lines.Text(); strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
		return ""
	}

	assert.Contains(t, next(), `"connected"`)

	swipe, err := http.Post(srv.URL+"/api/swipe", "application/json", strings.NewReader(`{"action":"dislike"}`))
	require.NoError(t, err)
	_ = swipe.Body.Close()
	require.Equal(t, http.StatusOK, swipe.StatusCode)

	var ev trainer.Event
	require.NoError(t, json.Unmarshal([]byte(next()), &ev))
	assert.Equal(t, trainer.EventSwiped, ev.Type)
	assert.Equal(t, "dislike", ev.Message)
	assert.Equal(t, 1, ev.TotalSwipes)
}

func TestHealth_StorageAndBreaker(t *testing.T) {
	cfg := config.Default().Server
	storage := StorageHealth{Driver: "sqlite", Status: HealthHealthy}
	svc := NewService("test", cfg, testTrainer(t),
		WithStorageHealth(func(context.Context) StorageHealth { return storage }),
		WithBreakerState(func() string { return "open" }),
	)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	svc.MarkReady(nil)

	get := func() map[string]any {
		rec := httptest.NewRecorder()
		svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	body := get()
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "open", body["analysis_breaker"])
	require.IsType(t, map[string]any{}, body["storage"])
	assert.Equal(t, "sqlite", body["storage"].(map[string]any)["driver"])
	assert.Equal(t, HealthHealthy, body["storage"].(map[string]any)["status"])

	storage = StorageHealth{Driver: "sqlite", Status: HealthUnhealthy, Error: "database is closed"}
	body = get()
	assert.Equal(t, HealthDegraded, body["status"])
	assert.Equal(t, "database is closed", body["storage"].(map[string]any)["error"])
}

func TestTrainerError_LogsRequestID(t *testing.T) {
	var buf strings.Builder
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	req := httptest.NewRequest(http.MethodPost, "/api/undo", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTrainerError(w, r, errors.New("store offline"))
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
	assert.Contains(t, buf.String(), `"path":"/api/undo"`)
}
