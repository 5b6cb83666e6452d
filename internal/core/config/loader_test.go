package config

import (
	"os"
	"testing"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoad_EnvSubstitution(t *testing.T) {
	os.Setenv("TEST_REDIS_URL", "redis://localhost:6380/2")
	defer os.Unsetenv("TEST_REDIS_URL")

	path := writeConfig(t, `
redis:
  url: ${TEST_REDIS_URL}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Redis.URL != "redis://localhost:6380/2" {
		t.Errorf("Expected URL redis://localhost:6380/2, got %s", cfg.Redis.URL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
workers:
  - role: task
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Supervisor.ReconcileInterval != 30*time.Second {
		t.Errorf("Expected default reconcile interval 30s, got %s", cfg.Supervisor.ReconcileInterval)
	}
	if cfg.Router.ResultQueue != "result_queue" {
		t.Errorf("Expected default result queue, got %s", cfg.Router.ResultQueue)
	}
	if cfg.Workers[0].Queue != "task_queue" {
		t.Errorf("Expected default worker queue, got %s", cfg.Workers[0].Queue)
	}
	if cfg.Workers[0].Target != 1 {
		t.Errorf("Expected default worker target 1, got %d", cfg.Workers[0].Target)
	}
}

func TestLoad_Workers(t *testing.T) {
	path := writeConfig(t, `
workers:
  - role: task
    queue: task_queue
    target: 3
    pattern: "foreman worker --role task"
    start_command: ["foreman", "worker", "--role", "task"]
    handlers:
      shell: "/usr/local/bin/run-shell-task"
  - role: dialog
supervisor:
  protected_patterns:
    - claude
  keep_newest: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	w := cfg.Workers[0]
	if w.Role != domain.RoleTask {
		t.Errorf("Expected role task, got %s", w.Role)
	}
	if w.Target != 3 {
		t.Errorf("Expected target 3, got %d", w.Target)
	}
	if w.Handlers["shell"] != "/usr/local/bin/run-shell-task" {
		t.Errorf("Unexpected handler command: %q", w.Handlers["shell"])
	}
	if len(cfg.Supervisor.ProtectedPatterns) != 1 || cfg.Supervisor.ProtectedPatterns[0] != "claude" {
		t.Errorf("Unexpected protected patterns: %v", cfg.Supervisor.ProtectedPatterns)
	}
	if !cfg.Supervisor.KeepNewest {
		t.Error("Expected keep_newest true")
	}

	dialog := cfg.Workers[1]
	if dialog.Queue != "dialog_task_queue" {
		t.Errorf("Expected dialog default queue, got %s", dialog.Queue)
	}
	if dialog.ResultQueue != "dialog_response_queue" {
		t.Errorf("Expected dialog default result queue, got %s", dialog.ResultQueue)
	}
}
