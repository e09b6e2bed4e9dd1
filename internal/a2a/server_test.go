package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Mock Handler
// ---------------------------------------------------------------------------

type mockHandler struct {
	sendMessage   func(ctx context.Context, req SendMessageRequest) (*Task, error)
	streamMessage func(ctx context.Context, req SendMessageRequest, emit func(StreamEvent) error) error
	getTask       func(ctx context.Context, req GetTaskRequest) (*Task, error)
	listTasks     func(ctx context.Context, req ListTasksRequest) (*ListTasksResponse, error)
	cancelTask    func(ctx context.Context, req CancelTaskRequest) (*Task, error)
}

func (m *mockHandler) HandleSendMessage(ctx context.Context, req SendMessageRequest) (*Task, error) {
	if m.sendMessage != nil {
		return m.sendMessage(ctx, req)
	}
	return nil, errors.New("sendMessage not implemented")
}

func (m *mockHandler) HandleStreamMessage(ctx context.Context, req SendMessageRequest, emit func(StreamEvent) error) error {
	if m.streamMessage != nil {
		return m.streamMessage(ctx, req, emit)
	}
	return errors.New("streamMessage not implemented")
}

func (m *mockHandler) HandleGetTask(ctx context.Context, req GetTaskRequest) (*Task, error) {
	if m.getTask != nil {
		return m.getTask(ctx, req)
	}
	return nil, errors.New("getTask not implemented")
}

func (m *mockHandler) HandleListTasks(ctx context.Context, req ListTasksRequest) (*ListTasksResponse, error) {
	if m.listTasks != nil {
		return m.listTasks(ctx, req)
	}
	return nil, errors.New("listTasks not implemented")
}

func (m *mockHandler) HandleCancelTask(ctx context.Context, req CancelTaskRequest) (*Task, error) {
	if m.cancelTask != nil {
		return m.cancelTask(ctx, req)
	}
	return nil, errors.New("cancelTask not implemented")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testCard() AgentCard {
	return AgentCard{
		Name:         "product_catalog_agent",
		Description:  "Vendor product catalog (price/stock/specs).",
		Version:      "0.1.0",
		Capabilities: AgentCapabilities{Streaming: true},
		Skills: []AgentSkill{{
			ID:          "get_product_info",
			Name:        "get_product_info",
			Description: "Look up a product",
			Tags:        []string{"catalog"},
		}},
	}
}

func newTestServer(t *testing.T, h Handler) string {
	t.Helper()
	ts := httptest.NewServer(NewServer(testCard(), h).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func postRaw(t *testing.T, url, body string) JSONRPCResponse {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func completedTask(id, contextID, text string) *Task {
	return &Task{
		ID:        id,
		ContextID: contextID,
		Status:    TaskStatus{State: TaskStateCompleted, Timestamp: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)},
		Artifacts: []Artifact{TextArtifact("response", text)},
	}
}

// ---------------------------------------------------------------------------
// Server + client round trips
// ---------------------------------------------------------------------------

func TestServer_AgentCardDiscovery(t *testing.T) {
	url := newTestServer(t, &mockHandler{})

	card, err := NewHTTPClient().DiscoverAgent(context.Background(), url+"/")
	require.NoError(t, err)
	assert.Equal(t, "product_catalog_agent", card.Name)
	assert.True(t, card.Capabilities.Streaming)
	require.Len(t, card.Skills, 1)
}

func TestServer_SendMessageRoundTrip(t *testing.T) {
	h := &mockHandler{
		sendMessage: func(_ context.Context, req SendMessageRequest) (*Task, error) {
			assert.Equal(t, RoleUser, req.Message.Role)
			assert.Equal(t, "session-1", req.Message.ContextID)
			return completedTask("task-1", req.Message.ContextID, "Product: "+MessageText(req.Message)), nil
		},
	}
	url := newTestServer(t, h)

	task, err := NewHTTPClient().SendMessage(context.Background(), url, SendMessageRequest{
		Message:       NewMessage(RoleUser, "session-1", "dell xps 15"),
		Configuration: &SendMessageConfig{Blocking: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, TaskStateCompleted, task.Status.State)
	assert.Equal(t, "Product: dell xps 15", ArtifactText(task))
}

func TestServer_TaskMethods(t *testing.T) {
	h := &mockHandler{
		getTask: func(_ context.Context, req GetTaskRequest) (*Task, error) {
			if req.ID != "task-1" {
				return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, req.ID)
			}
			return completedTask("task-1", "c", "ok"), nil
		},
		listTasks: func(_ context.Context, req ListTasksRequest) (*ListTasksResponse, error) {
			return &ListTasksResponse{Tasks: []Task{*completedTask("task-1", req.ContextID, "ok")}, TotalSize: 1}, nil
		},
		cancelTask: func(_ context.Context, req CancelTaskRequest) (*Task, error) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotCancelable, req.ID)
		},
	}
	url := newTestServer(t, h)
	c := NewHTTPClient()
	ctx := context.Background()

	task, err := c.GetTask(ctx, url, GetTaskRequest{ID: "task-1"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)

	_, err = c.GetTask(ctx, url, GetTaskRequest{ID: "nope"})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeTaskNotFound, rpcErr.Code)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	list, err := c.ListTasks(ctx, url, ListTasksRequest{ContextID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalSize)
	assert.Equal(t, "alice", list.Tasks[0].ContextID)

	_, err = c.CancelTask(ctx, url, CancelTaskRequest{ID: "task-1"})
	assert.ErrorIs(t, err, ErrTaskNotCancelable)
}

func TestServer_HandlerErrorIsInternal(t *testing.T) {
	url := newTestServer(t, &mockHandler{
		sendMessage: func(context.Context, SendMessageRequest) (*Task, error) {
			return nil, errors.New("model exploded")
		},
	})

	_, err := NewHTTPClient().SendMessage(context.Background(), url, SendMessageRequest{Message: NewMessage(RoleUser, "", "hi")})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeInternal, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "model exploded")
}

func TestServer_ProtocolErrors(t *testing.T) {
	url := newTestServer(t, &mockHandler{})

	resp := postRaw(t, url, `{not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParse, resp.Error.Code)

	resp = postRaw(t, url, `{"jsonrpc":"2.0","id":7,"method":"tasks/explode"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
	assert.EqualValues(t, 7, resp.ID)

	resp = postRaw(t, url, `{"jsonrpc":"2.0","id":8,"method":"tasks/get","params":"oops"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

func TestServer_StreamMessage(t *testing.T) {
	h := &mockHandler{
		streamMessage: func(_ context.Context, req SendMessageRequest, emit func(StreamEvent) error) error {
			ctxID := req.Message.ContextID
			assert.NoError(t, emit(StreamEvent{StatusUpdate: &TaskStatusUpdateEvent{TaskID: "t", ContextID: ctxID, Status: TaskStatus{State: TaskStateWorking}}}))
			assert.NoError(t, emit(StreamEvent{ArtifactUpdate: &TaskArtifactUpdateEvent{TaskID: "t", ContextID: ctxID, Artifact: TextArtifact("response", "COMPLIANT: VAT format OK."), LastChunk: true}}))
			return emit(StreamEvent{StatusUpdate: &TaskStatusUpdateEvent{TaskID: "t", ContextID: ctxID, Status: TaskStatus{State: TaskStateCompleted}, Final: true}})
		},
	}
	url := newTestServer(t, h)

	events, err := NewHTTPClient().StreamMessage(context.Background(), url, SendMessageRequest{Message: NewMessage(RoleUser, "s", "belgium BE0123456789")})
	require.NoError(t, err)

	var got []StreamEvent
	for ev := range events {
		require.NoError(t, ev.Err)
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	assert.Equal(t, TaskStateWorking, got[0].StatusUpdate.Status.State)
	assert.Equal(t, "COMPLIANT: VAT format OK.", partsText(got[1].ArtifactUpdate.Artifact.Parts))
	assert.True(t, got[2].StatusUpdate.Final)
}

func TestServer_StreamHandlerErrorArrivesAsEvent(t *testing.T) {
	h := &mockHandler{
		streamMessage: func(_ context.Context, _ SendMessageRequest, emit func(StreamEvent) error) error {
			_ = emit(StreamEvent{StatusUpdate: &TaskStatusUpdateEvent{TaskID: "t", Status: TaskStatus{State: TaskStateWorking}}})
			return fmt.Errorf("%w: t", ErrTaskNotFound)
		},
	}
	url := newTestServer(t, h)

	events, err := NewHTTPClient().StreamMessage(context.Background(), url, SendMessageRequest{Message: NewMessage(RoleUser, "s", "x")})
	require.NoError(t, err)

	var errs []error
	for ev := range events {
		if ev.Err != nil {
			errs = append(errs, ev.Err)
		}
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrTaskNotFound)
}

func TestClient_StreamInvalidParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeJSONRPCError(w, 1, ErrCodeInvalidParams, "bad params")
	}))
	defer ts.Close()

	_, err := NewHTTPClient().StreamMessage(context.Background(), ts.URL, SendMessageRequest{})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeInvalidParams, rpcErr.Code)
}

func TestClient_HTTPErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer ts.Close()
	c := NewHTTPClient(WithTimeout(time.Second))

	_, err := c.SendMessage(context.Background(), ts.URL, SendMessageRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")

	_, err = c.DiscoverAgent(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discover agent")
}

func TestClient_SendsSequentialIDs(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []float64
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		ids = append(ids, req.ID.(float64))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		writeJSONRPCResult(w, req.ID, completedTask("t", "", "ok"))
	}))
	defer ts.Close()

	c := NewHTTPClient()
	for i := 0; i < 3; i++ {
		_, err := c.GetTask(context.Background(), ts.URL, GetTaskRequest{ID: "t"})
		require.NoError(t, err)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{1, 2, 3}, ids)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestServer_StartReportsBindErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(testCard(), &mockHandler{})
	err = srv.Start(context.Background(), ln.Addr().String())
	assert.Error(t, err, "port already in use")
}

func TestServer_StartServesAndStops(t *testing.T) {
	srv := NewServer(testCard(), &mockHandler{})
	require.NoError(t, srv.Start(context.Background(), "127.0.0.1:0"))

	card, err := NewHTTPClient().DiscoverAgent(context.Background(), "http://"+srv.Addr())
	require.NoError(t, err)
	assert.Equal(t, "product_catalog_agent", card.Name)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	_, err = http.Post("http://"+srv.Addr(), "application/json", bytes.NewReader([]byte(`{}`)))
	assert.Error(t, err)
}

func TestServer_StopBeforeStart(t *testing.T) {
	assert.NoError(t, NewServer(testCard(), &mockHandler{}).Stop(context.Background()))
}
