package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/ordercopilot/internal/longrun"
)

var _ longrun.Observer = (*Collector)(nil)

func TestCollector_OperationLifecycle(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.Started()
	c.Started()
	c.Started()
	c.Resumed("pending")
	c.Resumed("completed")
	c.Expired(1)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.opsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.opsResumed.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.opsResumed.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.opsExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.opsInflight))
}

func TestCollector_ExpiredIgnoresZero(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.Expired(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.opsExpired))
}

func TestCollector_RequestCounters(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ChatRequest("200", 20*time.Millisecond)
	c.ChatRequest("200", 40*time.Millisecond)
	c.LLMRequest("gemini-2.5-flash-lite", "ok", time.Second)
	c.ToolCall("shipping_eta", "ok")
	c.ToolCall("shipping_eta", "error")
	c.Notified()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.chatRequests.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequests.WithLabelValues("gemini-2.5-flash-lite", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("shipping_eta", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifications))
}

func TestCollector_RegistersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.Started()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ordercopilot_operations_started_total"])
	assert.True(t, names["ordercopilot_operations_inflight"])
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Started()
		c.Resumed("completed")
		c.Expired(3)
		c.ChatRequest("500", time.Second)
		c.LLMRequest("m", "error", time.Second)
		c.ToolCall("t", "ok")
		c.Notified()
	})
}
