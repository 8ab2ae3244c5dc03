package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/devquery/backend/internal/config"
	"github.com/emilythestrangee/devquery/backend/internal/database/databasetest"
	"github.com/emilythestrangee/devquery/backend/internal/handlers"
	"github.com/emilythestrangee/devquery/backend/internal/ledger"
	"github.com/emilythestrangee/devquery/backend/internal/ledger/gormstore"
	"github.com/emilythestrangee/devquery/backend/internal/middleware"
)

type staticHealth map[string]string

func (h staticHealth) Health() map[string]string { return h }

func testConfig() config.Config {
	return config.Config{
		Port:               "0",
		GinMode:            gin.TestMode,
		JWTSecret:          "server-test-secret",
		JWTTTL:             time.Hour,
		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
		InternalAPIKey:     "internal-key",
	}
}

func request(t *testing.T, r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		stats  staticHealth
		status int
	}{
		{"up", staticHealth{"status": "up"}, http.StatusOK},
		{"down", staticHealth{"status": "down", "error": "db down"}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testConfig(), tt.stats, handlers.NewHandler(handlers.Deps{}), nil)
			defer s.Close()

			w := request(t, s.RegisterRoutes(), http.MethodGet, "/health", "", "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, string(tt.stats["status"]), jsonBody(t, w)["status"])
		})
	}
}

func TestProtectedRoutesRejectAnonymousCallers(t *testing.T) {
	s := New(testConfig(), staticHealth{"status": "up"}, handlers.NewHandler(handlers.Deps{}), nil)
	defer s.Close()
	r := s.RegisterRoutes()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/me"},
		{http.MethodPost, "/api/questions"},
		{http.MethodPatch, "/api/questions/1"},
		{http.MethodDelete, "/api/questions/1"},
		{http.MethodPost, "/api/questions/1/vote"},
		{http.MethodPost, "/api/questions/1/answers"},
		{http.MethodPost, "/api/answers/1/vote"},
		{http.MethodPost, "/api/answers/1/accept"},
		{http.MethodDelete, "/api/answers/1"},
		{http.MethodPut, "/api/users/1"},
	} {
		w := request(t, r, tc.method, tc.path, "", "{}")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestInternalRoutesRequireKey(t *testing.T) {
	s := New(testConfig(), staticHealth{"status": "up"}, handlers.NewHandler(handlers.Deps{}), nil)
	defer s.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/internal/questions/1/ai-answer", strings.NewReader(`{"content":"x"}`))
	req.Header.Set(middleware.InternalKeyHeader, "wrong")
	w := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIIsRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 2
	s := New(cfg, staticHealth{"status": "up"}, handlers.NewHandler(handlers.Deps{}), nil)
	defer s.Close()
	r := s.RegisterRoutes()

	for i := 0; i < 2; i++ {
		w := request(t, r, http.MethodGet, "/api/me", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}
	w := request(t, r, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// /health sits outside the limited group.
	w = request(t, r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

type account struct {
	id    int
	token string
}

func register(t *testing.T, r http.Handler, name string) account {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"email":"%s@example.com","password":"hunter22"}`, name, name)
	w := request(t, r, http.MethodPost, "/api/register", "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	out := jsonBody(t, w)
	user := out["user"].(map[string]any)
	return account{id: int(user["id"].(float64)), token: out["token"].(string)}
}

func reputation(t *testing.T, r http.Handler, id int) int {
	t.Helper()
	w := request(t, r, http.MethodGet, fmt.Sprintf("/api/users/%d", id), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	user := jsonBody(t, w)["user"].(map[string]any)
	return int(user["reputation"].(float64))
}

func TestQuestionAnswerFlow(t *testing.T) {
	db := databasetest.Start(t)
	cfg := testConfig()

	svc := ledger.NewService(gormstore.New(db.GetDB(), nil), ledger.Options{})
	h := handlers.NewHandler(handlers.Deps{
		DB:        db.GetDB(),
		Ledger:    svc,
		JWTSecret: []byte(cfg.JWTSecret),
		JWTTTL:    cfg.JWTTTL,
	})
	s := New(cfg, db, h, nil)
	defer s.Close()
	r := s.RegisterRoutes()

	asker := register(t, r, "asker")
	answerer := register(t, r, "answerer")

	w := request(t, r, http.MethodPost, "/api/login", "", `{"email":"asker@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = request(t, r, http.MethodPost, "/api/login", "", `{"email":"asker@example.com","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(t, r, http.MethodPost, "/api/questions", asker.token, `{"title":"Why is my index unused?","body":"EXPLAIN shows a seq scan on orders.customer_id."}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	questionID := int(jsonBody(t, w)["id"].(float64))

	w = request(t, r, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers", questionID), answerer.token, `{"content":"Run ANALYZE first so the planner has fresh statistics."}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	answerID := int(jsonBody(t, w)["id"].(float64))

	// Self votes are refused.
	w = request(t, r, http.MethodPost, fmt.Sprintf("/api/answers/%d/vote", answerID), answerer.token, `{"voteType":"up"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = request(t, r, http.MethodPost, fmt.Sprintf("/api/answers/%d/vote", answerID), asker.token, `{"voteType":"up"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	vote := jsonBody(t, w)
	assert.EqualValues(t, 1, vote["votes"])
	assert.Equal(t, "up", vote["userVote"])
	assert.Equal(t, ledger.AnswerUpvoteReputation, reputation(t, r, answerer.id))

	// Only the asker may accept.
	w = request(t, r, http.MethodPost, fmt.Sprintf("/api/answers/%d/accept", answerID), answerer.token, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = request(t, r, http.MethodPost, fmt.Sprintf("/api/answers/%d/accept", answerID), asker.token, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, jsonBody(t, w)["accepted"])
	assert.Equal(t, ledger.AnswerUpvoteReputation+ledger.AcceptedAnswerReputation, reputation(t, r, answerer.id))

	w = request(t, r, http.MethodGet, fmt.Sprintf("/api/questions/%d", questionID), asker.token, "")
	require.Equal(t, http.StatusOK, w.Code)
	q := jsonBody(t, w)
	assert.EqualValues(t, answerID, q["accepted_answer_id"])
	answers := q["answers"].([]any)
	require.Len(t, answers, 1)
	first := answers[0].(map[string]any)
	assert.Equal(t, true, first["is_accepted"])
	assert.Equal(t, "up", first["user_vote"])

	w = request(t, r, http.MethodDelete, fmt.Sprintf("/api/answers/%d", answerID), answerer.token, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(t, r, http.MethodGet, fmt.Sprintf("/api/questions/%d", questionID), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	q = jsonBody(t, w)
	assert.Nil(t, q["accepted_answer_id"])
	assert.Empty(t, q["answers"])

	// The bonus stays with the author unless reversal is configured.
	assert.Equal(t, ledger.AnswerUpvoteReputation+ledger.AcceptedAnswerReputation, reputation(t, r, answerer.id))

	w = request(t, r, http.MethodPost, fmt.Sprintf("/api/answers/%d/vote", answerID), asker.token, `{"voteType":"down"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAIAnswerCannotBeAccepted(t *testing.T) {
	db := databasetest.Start(t)
	cfg := testConfig()

	h := handlers.NewHandler(handlers.Deps{
		DB:        db.GetDB(),
		Ledger:    ledger.NewService(gormstore.New(db.GetDB(), nil), ledger.Options{}),
		JWTSecret: []byte(cfg.JWTSecret),
	})
	s := New(cfg, db, h, nil)
	defer s.Close()
	r := s.RegisterRoutes()

	asker := register(t, r, "curious")
	w := request(t, r, http.MethodPost, "/api/questions", asker.token, `{"title":"What is MVCC in Postgres?","body":"How do concurrent readers avoid blocking writers?"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	questionID := int(jsonBody(t, w)["id"].(float64))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/internal/questions/%d/ai-answer", questionID), strings.NewReader(`{"content":"Multi-version concurrency control."}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.InternalKeyHeader, cfg.InternalAPIKey)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ai := jsonBody(t, w)
	assert.Equal(t, true, ai["is_ai_generated"])
	assert.Nil(t, ai["author_id"])
	aiID := int(ai["id"].(float64))

	w = request(t, r, http.MethodPost, fmt.Sprintf("/api/answers/%d/accept", aiID), asker.token, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, r, http.MethodPost, fmt.Sprintf("/api/answers/%d/vote", aiID), asker.token, `{"voteType":"up"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, jsonBody(t, w)["votes"])

	w = request(t, r, http.MethodGet, fmt.Sprintf("/api/questions/%d", questionID), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, jsonBody(t, w)["ai_answer_generated"])
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e ledger.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func TestQuestionTagsPagingAndEdits(t *testing.T) {
	db := databasetest.Start(t)
	cfg := testConfig()

	events := &recordingNotifier{}
	h := handlers.NewHandler(handlers.Deps{
		DB:        db.GetDB(),
		Ledger:    ledger.NewService(gormstore.New(db.GetDB(), nil), ledger.Options{Notifier: events}),
		JWTSecret: []byte(cfg.JWTSecret),
	})
	s := New(cfg, db, h, nil)
	defer s.Close()
	r := s.RegisterRoutes()

	author := register(t, r, "tagger")
	other := register(t, r, "editor")
	assert.Equal(t, []string{ledger.EventUserCreated, ledger.EventUserCreated}, events.types())

	body := "The planner ignores my partial index on a boolean column."
	w := request(t, r, http.MethodPost, "/api/questions", author.token,
		`{"title":"Partial index not used by planner","body":"`+body+`","tags":["PostgreSQL","query planner","postgresql"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := jsonBody(t, w)
	assert.Equal(t, []any{"postgresql", "query-planner"}, created["tags"])
	firstID := int(created["id"].(float64))

	for _, title := range []string{"Second question about indexes", "Third question about indexes"} {
		w = request(t, r, http.MethodPost, "/api/questions", author.token,
			`{"title":"`+title+`","body":"`+body+`","tags":["postgresql"]}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	var usage int
	require.NoError(t, db.GetDB().Raw("SELECT usage_count FROM tags WHERE name = ?", "postgresql").Scan(&usage).Error)
	assert.Equal(t, 3, usage)

	w = request(t, r, http.MethodGet, "/api/questions?limit=2", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := jsonBody(t, w)
	assert.EqualValues(t, 3, list["total"])
	assert.EqualValues(t, 2, list["totalPages"])
	items := list["questions"].([]any)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Contains(t, item.(map[string]any)["tags"], "postgresql")
	}

	path := fmt.Sprintf("/api/questions/%d", firstID)
	w = request(t, r, http.MethodPatch, path, other.token, `{"title":"Hijacked question title here"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = request(t, r, http.MethodPatch, path, author.token, `{"title":"  Partial index ignored by the planner  "}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := jsonBody(t, w)
	assert.Equal(t, "Partial index ignored by the planner", edited["title"])
	assert.Equal(t, body, edited["body"])

	w = request(t, r, http.MethodGet, path, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := jsonBody(t, w)
	assert.Equal(t, "Partial index ignored by the planner", got["title"])
	assert.Equal(t, []any{"postgresql", "query-planner"}, got["tags"])

	w = request(t, r, http.MethodDelete, path, author.token, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = request(t, r, http.MethodPatch, path, author.token, `{"body":"`+body+` Edited after deletion."}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, []string{
		ledger.EventUserCreated, ledger.EventUserCreated,
		ledger.EventQuestionCreated, ledger.EventQuestionCreated, ledger.EventQuestionCreated,
	}, events.types())
}
