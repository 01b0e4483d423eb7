package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Extraction backends.
const (
	BackendHTTP   = "http"
	BackendGemini = "gemini"
)

// Config holds application configuration.
type Config struct {
	// BaseDir is the data directory the config was loaded from. Not persisted.
	BaseDir string `json:"-"`

	// ExtractionURL is the base URL of the extraction service
	// (POST /transcribe, /extract-card, /extract-lead, GET /health).
	ExtractionURL string `json:"extraction_url,omitempty"`

	// ExtractionKey is sent as a bearer token to the extraction service.
	ExtractionKey string `json:"extraction_key,omitempty"`

	// Backend selects the extraction backend: "http" (default) or "gemini".
	Backend string `json:"backend,omitempty"`

	// GeminiModel is the model used by the gemini backend.
	GeminiModel string `json:"gemini_model,omitempty"`

	// GeminiAPIKey is only read from the environment (GEMINI_API_KEY).
	GeminiAPIKey string `json:"-"`

	// RequestTimeoutSeconds bounds every remote extraction call.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// RateLimitRPS caps outbound extraction calls per second. 0 disables limiting.
	RateLimitRPS float64 `json:"rate_limit_rps,omitempty"`

	// ProbeIntervalSeconds is how often the connectivity monitor pings the service.
	ProbeIntervalSeconds int `json:"probe_interval_seconds,omitempty"`

	// UndoWindowSeconds is how long the last capture can be undone.
	UndoWindowSeconds int `json:"undo_window_seconds,omitempty"`

	// BackupIntervalDays is how long after the last export a backup reminder is due.
	BackupIntervalDays int `json:"backup_interval_days,omitempty"`

	// AllowedPaths is an allowlist of directories for export.
	// Paths outside <base>/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export and import.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes disables every MCP tool of a type ("capture", "append", "lead", "queue").
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:               BackendHTTP,
		GeminiModel:           "gemini-2.5-flash",
		RequestTimeoutSeconds: 30,
		ProbeIntervalSeconds:  15,
		UndoWindowSeconds:     10,
		BackupIntervalDays:    7,
	}
}

// DefaultBaseDir returns $XDG_DATA_HOME/leadcap.
func DefaultBaseDir() string {
	return filepath.Join(xdg.DataHome, "leadcap")
}

// RequestTimeout returns the per-call extraction timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ProbeInterval returns the connectivity probe interval.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// UndoWindow returns how long a capture stays undoable.
func (c *Config) UndoWindow() time.Duration {
	return time.Duration(c.UndoWindowSeconds) * time.Second
}

// BackupInterval returns the backup reminder interval.
func (c *Config) BackupInterval() time.Duration {
	return time.Duration(c.BackupIntervalDays) * 24 * time.Hour
}

// Load loads configuration from baseDir/config.json, then overlays
// baseDir/.env and the process environment.
// Returns default config if neither file exists.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	env, err := loadEnv(filepath.Join(baseDir, ".env"), os.LookupEnv)
	if err != nil {
		return nil, err
	}
	cfg = Merge(cfg, FromEnv(env))
	if key := env["GEMINI_API_KEY"]; key != "" {
		cfg.GeminiAPIKey = key
	}
	cfg.BaseDir = baseDir
	return cfg, nil
}

// envKeys are the variables read from .env and the environment.
var envKeys = []string{
	"LEADCAP_EXTRACTION_URL",
	"LEADCAP_EXTRACTION_KEY",
	"LEADCAP_BACKEND",
	"LEADCAP_RATE_LIMIT_RPS",
	"GEMINI_API_KEY",
	"GEMINI_MODEL",
}

// loadEnv reads envPath (if present) and lets the process environment win.
func loadEnv(envPath string, lookup func(string) (string, bool)) (map[string]string, error) {
	env := make(map[string]string)
	fileEnv, err := godotenv.Read(envPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, k := range envKeys {
		if v, ok := fileEnv[k]; ok {
			env[k] = strings.TrimSpace(v)
		}
		if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
			env[k] = strings.TrimSpace(v)
		}
	}
	return env, nil
}

// FromEnv builds an overlay config from environment values.
func FromEnv(env map[string]string) *Config {
	cfg := &Config{
		ExtractionURL: env["LEADCAP_EXTRACTION_URL"],
		ExtractionKey: env["LEADCAP_EXTRACTION_KEY"],
		Backend:       strings.ToLower(env["LEADCAP_BACKEND"]),
		GeminiModel:   env["GEMINI_MODEL"],
	}
	if v := env["LEADCAP_RATE_LIMIT_RPS"]; v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil && rps > 0 {
			cfg.RateLimitRPS = rps
		}
	}
	return cfg
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		BaseDir:      firstString(overlay.BaseDir, base.BaseDir),
		GeminiAPIKey: firstString(overlay.GeminiAPIKey, base.GeminiAPIKey),
	}

	result.ExtractionURL = firstString(overlay.ExtractionURL, base.ExtractionURL)
	result.ExtractionKey = firstString(overlay.ExtractionKey, base.ExtractionKey)
	result.Backend = firstString(overlay.Backend, base.Backend)
	result.GeminiModel = firstString(overlay.GeminiModel, base.GeminiModel)

	result.RequestTimeoutSeconds = firstInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)
	result.ProbeIntervalSeconds = firstInt(overlay.ProbeIntervalSeconds, base.ProbeIntervalSeconds)
	result.UndoWindowSeconds = firstInt(overlay.UndoWindowSeconds, base.UndoWindowSeconds)
	result.BackupIntervalDays = firstInt(overlay.BackupIntervalDays, base.BackupIntervalDays)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.RateLimitRPS = overlay.RateLimitRPS
	if result.RateLimitRPS == 0 {
		result.RateLimitRPS = base.RateLimitRPS
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
