package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	databus "github.com/jilio/shapes"
	"github.com/jilio/shapes/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type square struct {
	Color string `json:"color"`
}

func (s square) InstanceKey() string { return s.Color }

func TestSetupDisabled(t *testing.T) {
	obs, shutdown, err := Setup(config.TelemetryConfig{Enabled: false}, "shapes-test", "dev")
	require.NoError(t, err)
	assert.Nil(t, obs)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupRequiresFile(t *testing.T) {
	_, _, err := Setup(config.TelemetryConfig{Enabled: true}, "shapes-test", "dev")
	assert.ErrorContains(t, err, "file is required")
}

func TestSetupBadFile(t *testing.T) {
	_, _, err := Setup(config.TelemetryConfig{Enabled: true, File: t.TempDir()}, "shapes-test", "dev")
	assert.ErrorContains(t, err, "telemetry: open")
}

func TestSetupExportsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")

	obs, shutdown, err := Setup(config.TelemetryConfig{Enabled: true, File: path}, "shapes-test", "dev")
	require.NoError(t, err)
	require.NotNil(t, obs)

	ctx := context.Background()
	bus := databus.New(databus.WithObservability(obs))
	topic, err := databus.NewTopic[square](bus, "Square")
	require.NoError(t, err)
	require.NoError(t, databus.NewWriter(topic).Write(ctx, square{Color: "RED"}))

	require.NoError(t, shutdown(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "databus.write: Square")
	assert.Contains(t, string(data), "databus.write.count")
	assert.Contains(t, string(data), "shapes-test")
}

func TestSetupExportsOverOTLP(t *testing.T) {
	var mu sync.Mutex
	paths := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths[r.URL.Path]++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	obs, shutdown, err := Setup(config.TelemetryConfig{Enabled: true, Endpoint: srv.Listener.Addr().String()}, "shapes-test", "dev")
	require.NoError(t, err)
	require.NotNil(t, obs)

	ctx := context.Background()
	bus := databus.New(databus.WithObservability(obs))
	topic, err := databus.NewTopic[square](bus, "Square")
	require.NoError(t, err)
	require.NoError(t, databus.NewWriter(topic).Write(ctx, square{Color: "BLUE"}))

	require.NoError(t, shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, paths["/v1/traces"])
	assert.Positive(t, paths["/v1/metrics"])
}
