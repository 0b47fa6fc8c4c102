package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mattbonnell/tq"
	"github.com/mattbonnell/tq/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterShouldServeHealthAndMetrics(t *testing.T) {
	q, err := tq.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer q.Close()

	srv := httptest.NewServer(newRouter(q))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestHandleSensor(t *testing.T) {
	ctx := context.Background()
	good, err := tq.NewMessage(uuid.New(), "sensor", SensorReading{Sensor: "boiler", Value: 71.5, Unit: "C", TakenAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, handleSensor(ctx, good))

	unnamed, err := tq.NewMessage(uuid.New(), "sensor", SensorReading{Value: 1})
	require.NoError(t, err)
	require.Error(t, handleSensor(ctx, unnamed))

	garbage, err := tq.NewMessage(uuid.New(), "sensor", "not a reading")
	require.NoError(t, err)
	require.Error(t, handleSensor(ctx, garbage))
}

func TestCommandsShouldRoundTrip(t *testing.T) {
	cfg := &config.Config{
		Driver:        "sqlite3",
		DSN:           t.TempDir() + "/tq.db",
		MaxRetries:    5,
		KeepMessages:  10,
		PruneInterval: 100,
	}
	run := func(args ...string) string {
		var out bytes.Buffer
		cmd := newRoot(cfg)
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		require.NoError(t, cmd.ExecuteContext(context.Background()))
		return out.String()
	}

	run("put", "--task", "log", "--payload", `{"msg":"hi"}`)
	run("put", "--task", "log", "--delay", "1h")
	assert.Equal(t, "1\n", run("size"))
	assert.Equal(t, "0\n", run("size", "--deadletter"))
	assert.Equal(t, "requeued 0 messages\n", run("requeue"))
	assert.Equal(t, "pruned 0 messages\n", run("prune"))
}

func TestPutCommandShouldFail_InvalidPayload(t *testing.T) {
	cfg := &config.Config{Driver: "sqlite3", DSN: ":memory:", PruneInterval: 1}
	cmd := newRoot(cfg)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"put", "--task", "log", "--payload", "{"})
	require.Error(t, cmd.ExecuteContext(context.Background()))
}
