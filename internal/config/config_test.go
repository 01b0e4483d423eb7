package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("RequestTimeout() = %v, want 30s", cfg.RequestTimeout())
	}
	if cfg.UndoWindow() != 10*time.Second {
		t.Fatalf("UndoWindow() = %v, want 10s", cfg.UndoWindow())
	}
	if cfg.Backend != BackendHTTP {
		t.Fatalf("Backend = %q, want %q", cfg.Backend, BackendHTTP)
	}
	if cfg.BaseDir != tmpDir {
		t.Fatalf("BaseDir = %q, want %q", cfg.BaseDir, tmpDir)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	body := `{"extraction_url": "https://extract.example.com", "request_timeout_seconds": 5, "undo_window_seconds": 20}`
	if err := os.WriteFile(configPath, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ExtractionURL != "https://extract.example.com" {
		t.Fatalf("ExtractionURL = %q", cfg.ExtractionURL)
	}
	if cfg.RequestTimeoutSeconds != 5 {
		t.Fatalf("RequestTimeoutSeconds = %d, want 5", cfg.RequestTimeoutSeconds)
	}
	if cfg.UndoWindowSeconds != 20 {
		t.Fatalf("UndoWindowSeconds = %d, want 20", cfg.UndoWindowSeconds)
	}
	if cfg.ProbeIntervalSeconds != 15 {
		t.Fatalf("ProbeIntervalSeconds = %d, want default 15", cfg.ProbeIntervalSeconds)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DotEnvOverlay(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"extraction_url": "https://file.example.com"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	dotenv := "LEADCAP_EXTRACTION_URL=https://dotenv.example.com\nLEADCAP_EXTRACTION_KEY=secret\nGEMINI_API_KEY=gem-key\n"
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte(dotenv), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ExtractionURL != "https://dotenv.example.com" {
		t.Fatalf("ExtractionURL = %q, want .env value", cfg.ExtractionURL)
	}
	if cfg.ExtractionKey != "secret" {
		t.Fatalf("ExtractionKey = %q, want secret", cfg.ExtractionKey)
	}
	if cfg.GeminiAPIKey != "gem-key" {
		t.Fatalf("GeminiAPIKey = %q, want gem-key", cfg.GeminiAPIKey)
	}
}

func TestLoad_EnvironmentBeatsDotEnv(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("LEADCAP_BACKEND=http\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("LEADCAP_BACKEND", "GEMINI")
	t.Setenv("LEADCAP_RATE_LIMIT_RPS", "2.5")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != BackendGemini {
		t.Fatalf("Backend = %q, want %q", cfg.Backend, BackendGemini)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("RateLimitRPS = %v, want 2.5", cfg.RateLimitRPS)
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"disabled_tools": ["queue_clear", "lead_delete"]}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools len = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "queue_clear" || cfg.DisabledTools[1] != "lead_delete" {
		t.Fatalf("DisabledTools = %v", cfg.DisabledTools)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{RequestTimeoutSeconds: 30, Backend: BackendHTTP}
	overlay := &Config{RequestTimeoutSeconds: 10}

	result := Merge(base, overlay)
	if result.RequestTimeoutSeconds != 10 {
		t.Errorf("RequestTimeoutSeconds = %d, want 10", result.RequestTimeoutSeconds)
	}
	if result.Backend != BackendHTTP {
		t.Errorf("Backend = %q, want base value", result.Backend)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{AllowUnsafePaths: true}, &Config{})
	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true when base is true")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{AllowedPaths: []string{"/a", "/b"}}
	overlay := &Config{AllowedPaths: []string{"/b", " /c "}}

	result := Merge(base, overlay)
	want := []string{"/a", "/b", "/c"}
	if len(result.AllowedPaths) != len(want) {
		t.Fatalf("AllowedPaths = %v, want %v", result.AllowedPaths, want)
	}
	for i := range want {
		if result.AllowedPaths[i] != want[i] {
			t.Errorf("AllowedPaths[%d] = %q, want %q", i, result.AllowedPaths[i], want[i])
		}
	}
}

func TestFromEnv_IgnoresBadRate(t *testing.T) {
	cfg := FromEnv(map[string]string{"LEADCAP_RATE_LIMIT_RPS": "fast"})
	if cfg.RateLimitRPS != 0 {
		t.Errorf("RateLimitRPS = %v, want 0", cfg.RateLimitRPS)
	}
}

func TestBackupInterval(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BackupInterval() != 7*24*time.Hour {
		t.Errorf("BackupInterval() = %v, want 168h", cfg.BackupInterval())
	}
}
