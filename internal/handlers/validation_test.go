package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/devquery/backend/internal/middleware"
)

// Every case here is rejected before the handler touches the database.
func contentRouter() *gin.Engine {
	q := NewQuestionHandler(nil, &fakeLedger{}, nil)
	a := NewAnswerHandler(nil, &fakeLedger{}, nil)

	r := gin.New()
	protected := r.Group("/api", middleware.AuthMiddleware(testSecret))
	protected.POST("/questions", q.CreateQuestion)
	protected.PATCH("/questions/:id", q.UpdateQuestion)
	protected.POST("/questions/:id/answers", a.CreateAnswer)
	r.POST("/api/internal/questions/:id/ai-answer", a.CreateAIAnswer)
	return r
}

func TestContentLengthLimits(t *testing.T) {
	r := contentRouter()
	auth := bearer(t, 1)
	okTitle := "How do I read an EXPLAIN plan?"
	okBody := strings.Repeat("b", minBodyLength)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   string
	}{
		{"short title", http.MethodPost, "/api/questions", `{"title":"Too short","body":"` + okBody + `"}`, ""},
		{"title padded to length", http.MethodPost, "/api/questions", `{"title":"   Too short     ","body":"` + okBody + `"}`, "title must be between"},
		{"long title", http.MethodPost, "/api/questions", `{"title":"` + strings.Repeat("t", maxTitleLength+1) + `","body":"` + okBody + `"}`, ""},
		{"short body", http.MethodPost, "/api/questions", `{"title":"` + okTitle + `","body":"EXPLAIN shows a seq scan."}`, ""},
		{"body padded to length", http.MethodPost, "/api/questions", `{"title":"` + okTitle + `","body":"  EXPLAIN shows a seq scan.       "}`, "body must be at least"},
		{"too many tags", http.MethodPost, "/api/questions", `{"title":"` + okTitle + `","body":"` + okBody + `","tags":["a","b","c","d","e","f"]}`, ""},
		{"bad tag", http.MethodPost, "/api/questions", `{"title":"` + okTitle + `","body":"` + okBody + `","tags":["sql;drop"]}`, "invalid tag"},
		{"edit short title", http.MethodPatch, "/api/questions/1", `{"title":"Too short"}`, ""},
		{"edit short body", http.MethodPatch, "/api/questions/1", `{"body":"  ` + strings.Repeat("b", minBodyLength-1) + `  "}`, "body must be at least"},
		{"edit nothing", http.MethodPatch, "/api/questions/1", `{}`, "Nothing to update"},
		{"short answer", http.MethodPost, "/api/questions/1/answers", `{"content":"Run ANALYZE first."}`, ""},
		{"answer padded to length", http.MethodPost, "/api/questions/1/answers", `{"content":"   Run ANALYZE first.            "}`, "answer must be at least"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, auth, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			if tt.want != "" {
				assert.Contains(t, decode(t, w)["error"], tt.want)
			}
		})
	}

	w := do(t, r, http.MethodPost, "/api/internal/questions/1/ai-answer", "", `{"content":"    Use an index.                  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNormalizeTags(t *testing.T) {
	tags, err := normalizeTags([]string{" PostgreSQL ", "node.js", "postgresql", "Query Planner", "c#", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"c#", "node.js", "postgresql", "query-planner"}, tags)

	tags, err = normalizeTags(nil)
	require.NoError(t, err)
	assert.Empty(t, tags)

	_, err = normalizeTags([]string{"go", "rust", "zig", "c", "c++", "java"})
	assert.ErrorContains(t, err, "at most 5 tags")

	_, err = normalizeTags([]string{strings.Repeat("x", maxTagNameLength+1)})
	assert.ErrorContains(t, err, "invalid tag")

	_, err = normalizeTags([]string{"ünïcode"})
	assert.ErrorContains(t, err, "invalid tag")
}
