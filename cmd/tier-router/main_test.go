package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/tier-router/app"
	"github.com/upb/tier-router/config"
	"github.com/upb/tier-router/middleware"
	"github.com/upb/tier-router/routes"
)

// rejectAllValidator rejects all tokens for testing (unauthenticated requests get 401)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, assert.AnError
}

// scopedValidator accepts any token and grants the configured scopes.
type scopedValidator struct{ scopes []string }

func (v *scopedValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return &middleware.Claims{Sub: "scanner-7", Scopes: v.scopes}, nil
}

func TestMain(m *testing.M) {
	os.Setenv("ENVIRONMENT", "test")
	os.Setenv("LOG_LEVEL", "error")

	os.Exit(m.Run())
}

func TestInitLogger(t *testing.T) {
	t.Run("default json logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "info")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("development console logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FORMAT", "console")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "invalid")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("invalid log format", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "info")
		t.Setenv("LOG_FORMAT", "xml")

		_, err := initLogger()
		assert.ErrorContains(t, err, "invalid log format")
	})

	t.Run("defaults when not set", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "")
		t.Setenv("LOG_FORMAT", "")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	t.Run("health check returns healthy", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		body := decodeData(t, resp)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("readiness reports templates and database", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/readyz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeData(t, resp)
		checks := body["checks"].(map[string]interface{})
		assert.Equal(t, "not_configured", checks["database"])
		assert.Equal(t, "healthy", checks["templates"])
	})

	t.Run("status endpoint returns version info", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/status")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeData(t, resp)
		assert.Equal(t, "test-version", body["version"])
		assert.Equal(t, "test", body["environment"])
		assert.Equal(t, "memory", body["decisionLog"])
		assert.Equal(t, []interface{}{"oct"}, body["modalities"])
		assert.Len(t, body["gates"], 6)
	})
}

func TestReadinessWithoutTemplates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Narrative.TemplatesDir = t.TempDir()
	ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decodeData(t, resp)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestPlacementEndpoints(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	t.Run("decide on defaults", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/placement/decide?base=default", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeData(t, resp)
		assert.Equal(t, "workstation", body["target"])
		assert.Equal(t, "privacy", body["gate"])
		assert.Equal(t, "processing_local", body["privacyBadge"])
		assert.NotEmpty(t, body["id"])
	})

	t.Run("decide with overrides", func(t *testing.T) {
		payload := []byte(`{"privacy":"deidentified","slaMs":40,"model":{"tier":"tiny"}}`)
		resp, err := http.Post(ts.URL+"/api/v1/placement/decide?base=default", "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeData(t, resp)
		assert.Equal(t, "edge", body["target"])
		assert.Equal(t, "sla", body["gate"])
	})

	t.Run("unknown privacy is rejected", func(t *testing.T) {
		payload := []byte(`{"privacy":"secret"}`)
		resp, err := http.Post(ts.URL+"/api/v1/placement/decide?base=default", "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("recent decisions are listed", func(t *testing.T) {
		require.Eventually(t, func() bool {
			resp, err := http.Get(ts.URL + "/api/v1/placement/decisions")
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			body := decodeData(t, resp)
			return body["count"].(float64) >= 2
		}, 2*time.Second, 20*time.Millisecond)
	})
}

func TestNarrativeEventEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	resp, err := http.Post(ts.URL+"/api/v1/narrative/oct/events", "application/json",
		bytes.NewReader([]byte(`{"step":"capture_left","progress":40}`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeData(t, resp)
	assert.Equal(t, "capture_left", body["step"])
	assert.Equal(t, float64(40), body["progress"])
}

func TestAPIEndpointsRequireAuth(t *testing.T) {
	cfg := testConfig(t)
	logger := zaptest.NewLogger(t)

	deps, err := app.NewDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })
	deps.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, logger)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	defer ts.Close()

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"decide", "POST", "/api/v1/placement/decide", http.StatusUnauthorized},
		{"explain", "POST", "/api/v1/placement/explain", http.StatusUnauthorized},
		{"defaults", "GET", "/api/v1/placement/defaults", http.StatusUnauthorized},
		{"list decisions", "GET", "/api/v1/placement/decisions", http.StatusUnauthorized},
		{"status is public", "GET", "/api/v1/status", http.StatusOK},
		{"not found", "GET", "/api/v1/nonexistent", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
		})
	}
}

func TestDecideRequiresScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		want   int
	}{
		{"read only token", []string{"placement:read"}, http.StatusForbidden},
		{"decide token", []string{middleware.ScopeDecide}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := zaptest.NewLogger(t)
			deps, err := app.NewDependencies(context.Background(), testConfig(t), logger)
			require.NoError(t, err)
			t.Cleanup(func() { _ = deps.Close(context.Background()) })
			deps.AuthMiddleware = middleware.NewAuthMiddleware(&scopedValidator{scopes: tt.scopes}, logger)

			ts := httptest.NewServer(routes.SetupRoutes(deps))
			defer ts.Close()

			req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/placement/decide?base=default", nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer anything")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)

			gates, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/placement/gates", nil)
			require.NoError(t, err)
			gates.Header.Set("Authorization", "Bearer anything")
			resp2, err := http.DefaultClient.Do(gates)
			require.NoError(t, err)
			defer resp2.Body.Close()
			assert.Equal(t, http.StatusOK, resp2.StatusCode, "reads need no scope")
		})
	}
}

func TestPlacementRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 2}
	ts := newTestServer(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/api/v1/placement/defaults")
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			assert.NotEmpty(t, resp.Header.Get("Retry-After"))
		}
		resp.Body.Close()
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "status is not throttled")
}

func TestCORSMiddleware(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	req, err := http.NewRequest("OPTIONS", ts.URL+"/api/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "endpoint not found", body["error"])
}

// Test helpers

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	t.Cleanup(func() {
		ts.Close()
		_ = deps.Close(context.Background())
	})
	return ts
}

func decodeData(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join("..", "..", "templates", "oct.v1.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oct.v1.yaml"), src, 0o644))

	return &config.Config{
		Environment: "test",
		Version:     "test-version",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			AllowedOrigins:  []string{"http://localhost:*"},
		},
		Narrative: config.NarrativeConfig{
			TemplatesDir:    dir,
			DefaultLanguage: "en",
			DefaultModality: "oct",
			CacheSize:       8,
			WSReadLimit:     32 * 1024,
		},
		Audit: config.AuditConfig{
			BufferSize:      16,
			Workers:         1,
			MemoryCapacity:  100,
			ShutdownTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "error",
			LogFormat: "json",
		},
	}
}
