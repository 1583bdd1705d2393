package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-learn/internal/platform/config"
)

const testCourse = `
id: intro
title: "Intro"
settings:
  passing_threshold: 50
  max_attempts: 2
  visibility: public
modules:
  - id: m1
    title: "Start"
    order: 1
    is_required: true
    nodes:
      - id: welcome
        title: "Welcome"
        type: clip
        order: 1
        is_required: true
        estimated_duration: 3
`

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "intro.yaml"), []byte(testCourse), 0o600); err != nil {
		t.Fatalf("write course: %v", err)
	}
	return &config.Config{
		Server:     config.ServerConfig{Port: 8080},
		Storage:    config.StorageMemory,
		CoursePath: dir,
		Progress:   config.ProgressConfig{RefreshIntervalMinutes: 0, AttemptLockTTLSeconds: 30},
		Log:        config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestHealthEndpoints(t *testing.T) {
	a, err := newApp(t.Context(), memoryConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			a.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestNewApp_ServesCourses(t *testing.T) {
	a, err := newApp(t.Context(), memoryConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/courses/intro/learners/u1/nodes/welcome/complete", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body.String())
	}
	var st struct {
		Completed bool `json:"completed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Completed {
		t.Error("single-node course should be completed")
	}
}

func TestNewApp_MissingCoursePath(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.CoursePath = filepath.Join(t.TempDir(), "missing")
	if _, err := newApp(t.Context(), cfg); err == nil {
		t.Fatal("newApp() should fail for a missing course directory")
	}
}

func TestNewApp_UnreachableCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}
	cfg := memoryConfig(t)
	cfg.Cache.URL = "redis://localhost:59999"
	if _, err := newApp(t.Context(), cfg); err == nil {
		t.Fatal("newApp() should fail when the cache is unreachable")
	}
}

func TestStartScheduler(t *testing.T) {
	a, err := newApp(t.Context(), memoryConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	if err := a.startScheduler(t.Context(), 0); err != nil {
		t.Fatalf("startScheduler(0) error = %v", err)
	}
	if a.scheduler != nil {
		t.Error("zero interval should not start a scheduler")
	}
	if err := a.startScheduler(t.Context(), time.Hour); err != nil {
		t.Fatalf("startScheduler() error = %v", err)
	}
	if a.scheduler == nil {
		t.Error("scheduler should be running")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantDebug bool
		wantJSON  bool
	}{
		{"json info", config.LogConfig{Level: "info", Format: "json"}, false, true},
		{"text debug", config.LogConfig{Level: "debug", Format: "text"}, true, false},
		{"unknown level falls back to info", config.LogConfig{Level: "loud", Format: "json"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(tt.cfg, &buf)
			logger.Debug("debug line")
			logger.Info("info line", "learner_id", "u1")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.HasPrefix(out, "{"); got != tt.wantJSON {
				t.Errorf("json output = %v, want %v: %q", got, tt.wantJSON, out)
			}
		})
	}
}
