// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from four layers (highest
precedence last):

  0. Built-in defaults (see defaults below).
  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `USERS_`, where `__` maps to “.”
     (e.g., `USERS_API__BASE_URL → api.base_url`).

After merging, `vault:` references are resolved, the tree is unmarshalled
into strongly-typed structs, validated, enriched with the runtime root path,
and cached in an `atomic.Pointer` for lock-free reads.

Instrumentation
---------------
  • DEBUG spans: root discovery, YAML read, env overlay.
  • ERROR spans: YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span:  final “config loaded” with key highlights.
  • Logs use the global sugared logger (`zap.S()`) so early boot issues
    surface before the file logger is installed.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`; this
    lets `go run ./cmd/web` work from any sub-directory.
*/
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/adept-users/internal/database"
	"github.com/yanizio/adept-users/internal/form"
)

// EnvPrefix marks environment overrides.
const EnvPrefix = "USERS_"

var current atomic.Pointer[Config]

// defaults seed the tree before any file is read.
func defaults() map[string]any {
	up := form.DefaultUploadLimits()
	pw := form.DefaultPasswordPolicy
	return map[string]any{
		"http.listen_addr":        ":8080",
		"api.timeout":             "15s",
		"password.min_length":     pw.MinLength,
		"password.require_digit":  pw.RequireDigit,
		"password.require_upper":  pw.RequireUpper,
		"password.require_lower":  pw.RequireLower,
		"password.require_symbol": pw.RequireSymbol,
		"upload.max_image_bytes":  up.MaxBytes,
		"upload.allowed_types":    up.AllowedTypes,
		"sessions.idle_ttl":       "30m",
		"sessions.max_entries":    1000,
		"sessions.evict_interval": "1m",
		"sessions.max_age":        "12h",
		"database.max_open":       database.DefaultMaxOpen,
		"database.max_idle":       database.DefaultMaxIdle,
		"log.dir":                 "logs",
		"log.level":               "info",
		"roles.dir":               "conf/roles",
	}
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves USERS_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to executable heuristic for production layout.
func rootDir() string {
	if r := os.Getenv(EnvPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads defaults, .env, YAML, and env overrides, resolves secrets,
// validates, and caches Config.  secrets may be nil when no value uses a
// `vault:` reference.
func Load(ctx context.Context, secrets ResolverFactory) (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")
	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, err
		}
	}

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: USERS_API__BASE_URL → api.base_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, secrets); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	cfg.Log.Dir = cfg.abs(cfg.Log.Dir)
	cfg.Roles.Dir = cfg.abs(cfg.Roles.Dir)
	if cfg.Geo.DBPath != "" {
		cfg.Geo.DBPath = cfg.abs(cfg.Geo.DBPath)
	}

	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"api", cfg.API.BaseURL,
		"audit", cfg.Database.Enabled(),
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// abs anchors a relative path at the root directory.
func (c *Config) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.Root, p)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// Get returns the most recently loaded Config, or nil before Load.
func Get() *Config { return current.Load() }

// Reload re-runs Load and swaps the cached pointer on success.
func Reload(ctx context.Context, secrets ResolverFactory) error {
	_, err := Load(ctx, secrets)
	return err
}

// SessionSecret returns the configured signing key, or nil for a random one.
func (c *Config) SessionSecret() []byte {
	if c.Sessions.Secret == "" {
		return nil
	}
	return []byte(c.Sessions.Secret)
}
