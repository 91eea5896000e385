package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesComponentRequestIDAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "debug", "json")
	t.Cleanup(func() { Setup("info", "json") })

	ctx := WithRequestID(context.Background(), "req-1")
	New("orders").With("service").InfoContext(ctx, "Order created", Fields{"order_id": 7})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Order created", entry["msg"])
	assert.Equal(t, "orders.service", entry["component"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, float64(7), entry["order_id"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "warn", "text")
	t.Cleanup(func() { Setup("info", "json") })

	l := New("test")
	l.Info("hidden")
	l.Debug("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown", Fields{"k": "v"})
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "k=v")
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
	assert.Equal(t, "abc", RequestID(WithRequestID(context.Background(), "abc")))
}
