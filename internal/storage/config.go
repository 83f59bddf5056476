package storage

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ratevault/pipeline/internal/config"
)

const (
	defaultBusyTimeout = 5 * time.Second
)

// ErrDatabasePathEmpty is returned when the configured database file path is
// an empty string.
var ErrDatabasePathEmpty = errors.New("database path cannot be empty")

// Config holds SQLite connection configuration. Unlike a pooled server
// database, a single-file SQLite store has no meaningful open/idle
// connection pool — WAL mode and a busy timeout are what let ingestion
// writes and read-only queries coexist without a pool to tune.
type Config struct {
	path string

	// WALMode enables journal_mode=WAL.
	WALMode bool

	// BusyTimeout bounds how long a writer waits on a locked database
	// before failing, translated to the `busy_timeout` pragma in
	// milliseconds.
	BusyTimeout time.Duration

	// ForeignKeys enables `PRAGMA foreign_keys = ON`.
	ForeignKeys bool
}

// LoadConfig loads SQLite configuration from environment variables. There
// is no fallback-to-default for the database path itself — only the
// secondary pragmas have defaults, matching the "no hardcoded business
// defaults" rule for functional parameters while keeping bootstrap
// ergonomics for process-level plumbing.
func LoadConfig() *Config {
	return &Config{
		path:        config.GetEnvStr("DATABASE_PATH", ""),
		WALMode:     config.GetEnvBool("DATABASE_WAL_MODE", true),
		BusyTimeout: config.GetEnvDuration("DATABASE_BUSY_TIMEOUT", defaultBusyTimeout),
		ForeignKeys: config.GetEnvBool("DATABASE_FOREIGN_KEYS", true),
	}
}

// Validate checks that the SQLite configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.path) == "" {
		return ErrDatabasePathEmpty
	}

	return nil
}

// Path returns the configured database file path.
func (c *Config) Path() string {
	return c.path
}

// ApplyFileOverride fills in the database path from the CLI's optional
// --config bootstrap file when DATABASE_PATH was not set in the
// environment. The environment always wins when both are present.
func (c *Config) ApplyFileOverride(path string) {
	if c.path == "" && strings.TrimSpace(path) != "" {
		c.path = path
	}
}

// DSN builds the go-sqlite3 data source name, encoding the configured
// pragmas as query parameters so they're applied on every new connection
// the driver opens — mattn/go-sqlite3 has no separate pool-level pragma
// hook.
func (c *Config) DSN() string {
	// _txlock=immediate makes every BeginTx issue BEGIN IMMEDIATE instead
	// of SQLite's default deferred BEGIN, so a transaction that will write
	// acquires the write lock up front rather than discovering a
	// conflicting writer only after doing read work inside it.
	dsn := c.path + "?_busy_timeout=" + itoaMillis(c.BusyTimeout) + "&_txlock=immediate"

	if c.WALMode {
		dsn += "&_journal_mode=WAL"
	}

	if c.ForeignKeys {
		dsn += "&_foreign_keys=on"
	}

	return dsn
}

func itoaMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
