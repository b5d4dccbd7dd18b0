package analysis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/tastetrainer/internal/backend"
	"github.com/thebtf/tastetrainer/pkg/models"
)

func sampleRequest() Request {
	return Request{
		TotalSwipes: 15,
		TopPositive: []models.FeatureScore{{Feature: "spicy", Score: 0.8}, {Feature: "beef", Score: 0.5}},
		TopNegative: []models.FeatureScore{{Feature: "sweet", Score: -0.6}},
		RecentEvents: []models.RecentEvent{
			{DishName: "Boiled Beef", Action: "like", Features: []string{"spicy", "beef", "numbing"}},
		},
	}
}

func TestRecentEventsFrom(t *testing.T) {
	dish, err := models.NewDishCandidate("Hot Pot", "", map[models.FeatureID]float64{
		models.FeatureSpicy: 0.9, models.FeatureNumbing: 0.8, models.FeatureBeef: 0.7,
		models.FeatureBrothy: 0.6, models.FeatureTofu: 0.5, models.FeatureMushroom: 0.4,
	}, nil, "")
	require.NoError(t, err)

	events := make([]models.SwipeEvent, 25)
	for i := range events {
		events[i] = models.NewSwipeEvent(dish, models.ActionLike, time.Now())
	}

	got := RecentEventsFrom(events, MaxRecentEvents)
	require.Len(t, got, MaxRecentEvents)
	assert.Equal(t, "Hot Pot", got[0].DishName)
	assert.Equal(t, "like", got[0].Action)
	assert.Equal(t, []string{"spicy", "numbing", "beef", "brothy", "tofu"}, got[0].Features)

	assert.Empty(t, RecentEventsFrom(nil, 20))
	assert.Empty(t, RecentEventsFrom(events, -1))
}

func TestRemote_Analyze(t *testing.T) {
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/taste/analyze", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"summary":"Loves heat","avoid":"Skip desserts","strategy":"Order Sichuan","source":"gemini"}`))
	}))
	defer server.Close()

	req := sampleRequest()
	req.TopNegative = nil
	res, err := NewRemote(backend.NewClient(server.URL, time.Second)).Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Loves heat", res.Summary)
	assert.Equal(t, "Skip desserts", res.Avoid)
	assert.Equal(t, "Order Sichuan", res.Strategy)
	assert.Equal(t, "gemini", res.Source)
	assert.False(t, res.CreatedAt.IsZero())

	assert.Equal(t, 15, got.TotalSwipes)
	assert.NotNil(t, got.TopNegative)
	require.Len(t, got.RecentEvents, 1)
	assert.Equal(t, "Boiled Beef", got.RecentEvents[0].DishName)
}

func TestRemote_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewRemote(backend.NewClient(server.URL, time.Second)).Analyze(context.Background(), sampleRequest())
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "remote", ae.Provider)
	assert.Equal(t, http.StatusBadGateway, ae.StatusCode)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Analyze(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrNotConfigured)
	var ae *Error
	assert.True(t, errors.As(err, &ae))
}

func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Len(t, req.Messages, 2)

		if status != http.StatusOK {
			http.Error(w, "rate limited", status)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestChat_Analyze(t *testing.T) {
	long := strings.Repeat("辣", 200)
	reply := "Sure! ```json\n{\"summary\": \"" + long + "\", \"avoid\": \"\", \"strategy\": \"Order mapo tofu\"}\n```"
	server := chatServer(t, reply, http.StatusOK)
	defer server.Close()

	chat, err := NewChat(ChatConfig{BaseURL: server.URL, APIKey: "key", Model: "test-model"})
	require.NoError(t, err)

	res, err := chat.Analyze(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, MaxSummaryRunes, len([]rune(res.Summary)))
	assert.Equal(t, placeholderAvoid, res.Avoid)
	assert.Equal(t, "Order mapo tofu", res.Strategy)
	assert.Equal(t, "chat:test-model", res.Source)
}

func TestChat_Errors(t *testing.T) {
	server := chatServer(t, "", http.StatusTooManyRequests)
	defer server.Close()

	chat, err := NewChat(ChatConfig{BaseURL: server.URL, APIKey: "key", Model: "test-model"})
	require.NoError(t, err)
	_, err = chat.Analyze(context.Background(), sampleRequest())
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusTooManyRequests, ae.StatusCode)

	noJSON := chatServer(t, "I cannot help with that.", http.StatusOK)
	defer noJSON.Close()
	chat, err = NewChat(ChatConfig{BaseURL: noJSON.URL, APIKey: "key", Model: "test-model"})
	require.NoError(t, err)
	_, err = chat.Analyze(context.Background(), sampleRequest())
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "chat", ae.Provider)

	_, err = NewChat(ChatConfig{Model: "m"})
	assert.Error(t, err)
	_, err = NewChat(ChatConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	req := sampleRequest()
	for i := 0; i < 30; i++ {
		req.RecentEvents = append(req.RecentEvents, models.RecentEvent{DishName: "Filler", Action: "dislike"})
	}
	system, user := BuildPrompt(req)

	assert.Contains(t, system, "JSON")
	assert.Contains(t, user, "total_swipes: 15")
	assert.Contains(t, user, "Spicy(0.80)")
	assert.Contains(t, user, "- like: Boiled Beef (Spicy, Beef, Numbing)")
	assert.Contains(t, user, "- dislike: Filler (none)")
	assert.Equal(t, maxPromptEvents, strings.Count(user, "\n- like:")+strings.Count(user, "\n- dislike:"))

	_, empty := BuildPrompt(Request{})
	assert.Contains(t, empty, "top_positive: none")
	assert.Contains(t, empty, "- none")
}

func TestExtractJSON(t *testing.T) {
	got, err := extractJSON(`noise {"a": {"b": 1}} trailing`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, got)

	_, err = extractJSON("nothing here")
	assert.Error(t, err)
	_, err = extractJSON("} backwards {")
	assert.Error(t, err)
}

type countingAnalyzer struct {
	calls atomic.Int32
	err   error
}

func (c *countingAnalyzer) Analyze(context.Context, Request) (models.TasteAnalysisResult, error) {
	c.calls.Add(1)
	if c.err != nil {
		return models.TasteAnalysisResult{}, c.err
	}
	return models.TasteAnalysisResult{Summary: "ok"}, nil
}

func TestBreaker(t *testing.T) {
	inner := &countingAnalyzer{err: errors.New("boom")}
	var states []string
	b := NewBreaker(inner, BreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Hour,
		OnStateChange:    func(s string) { states = append(states, s) },
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Analyze(ctx, Request{})
		require.Error(t, err)
	}
	assert.Equal(t, "open", b.State())
	assert.Equal(t, []string{"open"}, states)

	_, err := b.Analyze(ctx, Request{})
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestBreaker_PassesThrough(t *testing.T) {
	b := NewBreaker(&countingAnalyzer{}, BreakerConfig{})
	res, err := b.Analyze(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Summary)
	assert.Equal(t, "closed", b.State())
}
