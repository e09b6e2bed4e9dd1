package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGemini serves generateContent with a fixed status and body and keeps
// the last decoded request body.
type fakeGemini struct {
	status int
	body   string
	last   map[string]any
	path   string
	apiKey string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.path = r.URL.Path
	f.apiKey = r.Header.Get("x-goog-api-key")
	f.last = nil
	_ = json.NewDecoder(r.Body).Decode(&f.last)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

func newTestGemini(t *testing.T, f *fakeGemini) *Gemini {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	g, err := NewGemini(context.Background(), "test-key", "gemini-test", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)
	return g
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "gemini-test")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestGemini_GenerateText(t *testing.T) {
	f := &fakeGemini{
		status: http.StatusOK,
		body:   `{"candidates":[{"content":{"role":"model","parts":[{"text":"Estimated delivery: 2 business days."}]}}]}`,
	}
	g := newTestGemini(t, f)

	resp, err := g.Generate(context.Background(), Request{
		System:  "You are the support orchestrator.",
		History: []Turn{UserText("when will 02115 arrive?")},
		Tools: []Declaration{{
			Name:        "shipping_eta",
			Description: "Estimate delivery time.",
			Params:      []Param{{Name: "zipcode", Required: true}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Estimated delivery: 2 business days.", resp.Text)
	assert.Empty(t, resp.Calls)

	assert.True(t, strings.HasSuffix(f.path, "models/gemini-test:generateContent"), f.path)
	assert.Equal(t, "test-key", f.apiKey)
	assert.Contains(t, f.last, "systemInstruction")
	assert.Contains(t, f.last, "tools")
	contents, ok := f.last["contents"].([]any)
	require.True(t, ok)
	assert.Len(t, contents, 1)
}

func TestGemini_GenerateFunctionCall(t *testing.T) {
	f := &fakeGemini{
		status: http.StatusOK,
		body:   `{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"start_risk_scan","args":{"order_id":"42"}}}]}}]}`,
	}
	g := newTestGemini(t, f)

	resp, err := g.Generate(context.Background(), Request{History: []Turn{UserText("scan order 42")}})
	require.NoError(t, err)
	require.Len(t, resp.Calls, 1)
	assert.Equal(t, "start_risk_scan", resp.Calls[0].Name)
	assert.Equal(t, "start_risk_scan", resp.Calls[0].ID, "missing IDs fall back to the function name")
	assert.Equal(t, "42", resp.Calls[0].Args["order_id"])
}

func TestGemini_APIErrorBecomesStatusError(t *testing.T) {
	f := &fakeGemini{
		status: http.StatusTooManyRequests,
		body:   `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`,
	}
	g := newTestGemini(t, f)

	_, err := g.Generate(context.Background(), Request{History: []Turn{UserText("hi")}})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 429, se.Code)
	assert.True(t, DefaultRetryPolicy.Retryable(err))
}

func TestGemini_RejectsEmptyHistory(t *testing.T) {
	g := newTestGemini(t, &fakeGemini{status: http.StatusOK, body: `{}`})
	_, err := g.Generate(context.Background(), Request{})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

func TestToGeminiContents(t *testing.T) {
	history := []Turn{
		UserText("scan order 42"),
		{Role: RoleModel, Calls: []FunctionCall{{ID: "c1", Name: "start_risk_scan", Args: map[string]any{"order_id": "42"}}}},
		{Role: RoleUser, Responses: []FunctionResponse{{ID: "c1", Name: "start_risk_scan", Response: map[string]any{"status": "STARTED"}}}},
		{Role: RoleModel},
	}

	contents := toGeminiContents(history)
	require.Len(t, contents, 3, "empty turns are dropped")
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "start_risk_scan", contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, "STARTED", contents[2].Parts[0].FunctionResponse.Response["status"])
}

func TestToGeminiDeclarations(t *testing.T) {
	decls := toGeminiDeclarations([]Declaration{{
		Name: "check_country_vat",
		Params: []Param{
			{Name: "country", Required: true},
			{Name: "vat_id", Required: true},
			{Name: "strict", Type: "boolean"},
		},
	}})
	require.Len(t, decls, 1)
	assert.Equal(t, []string{"country", "vat_id"}, decls[0].Parameters.Required)
	assert.Len(t, decls[0].Parameters.Properties, 3)
	assert.Equal(t, "BOOLEAN", string(decls[0].Parameters.Properties["strict"].Type))
}

func TestRequest_ValidateDuplicateTools(t *testing.T) {
	req := Request{
		History: []Turn{UserText("x")},
		Tools:   []Declaration{{Name: "a"}, {Name: "a"}},
	}
	assert.ErrorContains(t, req.Validate(), "duplicate")
}
