package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dusk-indust/ordercopilot/internal/agent"
	"github.com/dusk-indust/ordercopilot/internal/longrun"
	"github.com/dusk-indust/ordercopilot/internal/metrics"
	"github.com/dusk-indust/ordercopilot/internal/session"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// echoRunner records the prompts it receives.
type echoRunner struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (e *echoRunner) Run(_ context.Context, sess, text string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompts = append(e.prompts, text)
	if e.err != nil {
		return "", e.err
	}
	return "echo(" + sess + "): " + text, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// ---------------------------------------------------------------------------
// POST /chat
// ---------------------------------------------------------------------------

func TestServer_Chat(t *testing.T) {
	runner := &echoRunner{}
	reg := prometheus.NewRegistry()
	s := NewServer(runner,
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(metrics.NewCollector(reg), reg),
	)
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/chat", `{"session_id":"alice","text":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "echo(alice): hi", decodeBody[ChatResponse](t, w).Response)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	w = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ordercopilot_chat_requests_total{status="200"} 1`)
}

func TestServer_ChatValidation(t *testing.T) {
	h := NewServer(&echoRunner{}).Handler()

	for name, body := range map[string]string{
		"missing session": `{"text":"hi"}`,
		"missing text":    `{"session_id":"a","text":"  "}`,
		"not json":        `hello`,
	} {
		t.Run(name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/chat", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decodeBody[map[string]string](t, w)["error"])
		})
	}

	w := do(t, h, http.MethodGet, "/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_ChatRunnerError(t *testing.T) {
	h := NewServer(&echoRunner{err: errors.New("model down")}).Handler()

	w := do(t, h, http.MethodPost, "/chat", `{"session_id":"a","text":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeBody[map[string]string](t, w)["error"], "model down")
}

func TestServer_ChatKeepsHistory(t *testing.T) {
	runner := &echoRunner{}
	store := session.NewMemoryStore(10, time.Hour)
	h := NewServer(runner, WithSessions(store, 2)).Handler()

	for _, text := range []string{"scan order 42", "resume last"} {
		w := do(t, h, http.MethodPost, "/chat", `{"session_id":"alice","text":"`+text+`"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	require.Len(t, runner.prompts, 2)
	assert.Equal(t, "scan order 42", runner.prompts[0])
	assert.Equal(t, session.Prompt([]session.Turn{
		{Role: session.RoleUser, Text: "scan order 42"},
		{Role: session.RoleAgent, Text: "echo(alice): scan order 42"},
	}, "resume last"), runner.prompts[1])

	history, err := store.History(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)
	assert.Equal(t, "resume last", history[2].Text, "the raw text is stored, not the prompt")

	w := do(t, h, http.MethodDelete, "/sessions/alice", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	history, _ = store.History(context.Background(), "alice", 0)
	assert.Empty(t, history)
}

// ---------------------------------------------------------------------------
// /operations
// ---------------------------------------------------------------------------

func TestServer_Operations(t *testing.T) {
	tr := longrun.New(longrun.WithDelay(0), longrun.WithWork(func(_ context.Context, p string) (any, error) {
		return strings.ToUpper(p), nil
	}))
	t.Cleanup(tr.Close)
	h := NewServer(&echoRunner{}, WithTracker(tr)).Handler()

	w := do(t, h, http.MethodPost, "/operations", `{"payload":"order 42","session_id":"alice"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	started := decodeBody[longrun.Reply](t, w)
	assert.Equal(t, longrun.StatusStarted, started.Status)
	require.NotEmpty(t, started.Handle)

	var reply longrun.Reply
	require.Eventually(t, func() bool {
		w = do(t, h, http.MethodGet, "/operations/last?session_id=alice", "")
		reply = decodeBody[longrun.Reply](t, w)
		return w.Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, longrun.StatusOK, reply.Status)
	assert.Equal(t, "order 42", reply.Payload)
	assert.Equal(t, "ORDER 42", reply.Result)

	w = do(t, h, http.MethodGet, "/operations/"+started.Handle, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, longrun.MessageNoSuchHandle, decodeBody[longrun.Reply](t, w).Message)

	w = do(t, h, http.MethodGet, "/operations/last?session_id=bob", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, longrun.MessageMissingHandle, decodeBody[longrun.Reply](t, w).Message)
}

func TestServer_OperationPending(t *testing.T) {
	tr := longrun.New(longrun.WithDelay(time.Hour))
	t.Cleanup(tr.Close)
	h := NewServer(&echoRunner{}, WithTracker(tr)).Handler()

	w := do(t, h, http.MethodPost, "/operations", `{"payload":"x"}`)
	handle := decodeBody[longrun.Reply](t, w).Handle

	w = do(t, h, http.MethodGet, "/operations/"+handle, "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	reply := decodeBody[longrun.Reply](t, w)
	assert.Equal(t, longrun.StatusPending, reply.Status)
	assert.Equal(t, longrun.MessageNotReady, reply.Message)
}

func TestServer_NoTrackerNoOperations(t *testing.T) {
	h := NewServer(&echoRunner{}).Handler()
	w := do(t, h, http.MethodPost, "/operations", `{"payload":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestServer_StartStop(t *testing.T) {
	s := NewServer(agent.RunnerFunc(func(context.Context, string, string) (string, error) {
		return "ok", nil
	}), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, s.Start(context.Background(), "127.0.0.1:0"))

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	assert.Error(t, s.Start(context.Background(), "256.0.0.1:0"))
}
