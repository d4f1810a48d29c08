// internal/config/model.go
//
// Typed configuration model for Adept Users.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                         – dotenv values,
//   • `conf/global.yaml`                      – primary static file,
//   • `USERS_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the secret resolver *before* unmarshalling (see secrets.go), so the
// model never stores Vault references, only plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`.  Durations accept Go syntax ("15s").
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/yanizio/adept-users/internal/form"
)

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
	// MetricsAddr serves /metrics on a separate listener.  Empty mounts it
	// on the main router.
	MetricsAddr string `koanf:"metrics_addr" validate:"omitempty,hostname_port"`
}

// API points at the remote user-creation service.
type API struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"  validate:"gte=0"`
}

// Sessions tunes the open-form store.
type Sessions struct {
	IdleTTL       time.Duration `koanf:"idle_ttl"       validate:"gte=0"`
	MaxEntries    int           `koanf:"max_entries"    validate:"gte=0"`
	EvictInterval time.Duration `koanf:"evict_interval" validate:"gte=0"`
	MaxAge        time.Duration `koanf:"max_age"        validate:"gte=0"`
	// Secret signs form handles.  Empty means a random per-process key.
	Secret string `koanf:"secret" validate:"omitempty,min=32"`
}

// Database holds the audit store DSN.
//
// The *template* (`DSN`) is kept in YAML so operators can tweak host, port,
// or flags without touching Vault.  When it contains one `%s` verb the
// `Password` (usually a Vault reference) is substituted at runtime.  An empty
// DSN disables auditing.  MaxOpen and MaxIdle size the connection pool.
type Database struct {
	DSN      string `koanf:"dsn"`
	Password string `koanf:"password"`
	MaxOpen  int    `koanf:"max_open" validate:"gte=0"`
	MaxIdle  int    `koanf:"max_idle" validate:"gte=0"`
}

// Enabled reports whether an audit database is configured.
func (d Database) Enabled() bool { return d.DSN != "" }

// FormattedDSN returns the DSN with the password substituted.
func (d Database) FormattedDSN() string {
	if strings.Count(d.DSN, "%s") == 1 {
		return fmt.Sprintf(d.DSN, d.Password)
	}
	return d.DSN
}

// Geo locates the optional GeoLite2-City database.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

// Log configures the file logger.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Roles locates the role override directory.
type Roles struct {
	Dir string `koanf:"dir"`
}

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // USERS_ROOT or discovered parent
}

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP     HTTP                `koanf:"http"`
	API      API                 `koanf:"api"`
	Password form.PasswordPolicy `koanf:"password"`
	Upload   form.UploadLimits   `koanf:"upload"`
	Sessions Sessions            `koanf:"sessions"`
	Database Database            `koanf:"database"`
	Geo      Geo                 `koanf:"geo"`
	Log      Log                 `koanf:"log"`
	Roles    Roles               `koanf:"roles"`
	Paths    Paths               `koanf:"-"`
}
