package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/NAinfini/guildhall/internal/config"
	"github.com/NAinfini/guildhall/internal/push"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:               "test",
		Port:                 "0",
		LogLevel:             "error",
		LogFormat:            "text",
		DefaultEntities:      []string{"events", "wars", "members", "gallery"},
		SSEKeepAliveInterval: 50 * time.Millisecond,
		SSEMaxLifetime:       5 * time.Second,
		CleanupInterval:      time.Hour,
		MaxConnections:       100,
		MaxConnectionsPerIP:  100,
		ConnectionRate:       1000,
		ConnectionBurst:      1000,
	}
}

type testHarness struct {
	server      *Server
	coordinator *push.Coordinator
	http        *httptest.Server
}

func newTestHarness(t *testing.T, cfg *config.Config) *testHarness {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}

	coordinator := push.NewCoordinator(push.NewMemoryStore(), clockwork.NewRealClock(), cfg.CleanupInterval)
	t.Cleanup(coordinator.Stop)

	srv := NewServer(cfg, coordinator, nil, clockwork.NewRealClock())
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	return &testHarness{server: srv, coordinator: coordinator, http: ts}
}
