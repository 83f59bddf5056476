package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrConfigLoadFailed signals that a named parameter was absent from the
// category, aborting the whole load. There is deliberately no
// fallback-to-default path — every functional parameter must come from
// unified_config, never a hardcoded default in code.
var ErrConfigLoadFailed = errors.New("CONFIG_LOAD_FAILED")

// Category is a typed map of config keys to values, scoped to one
// unified_config.category. Loaded wholesale by Loader.Load.
type Category map[string]Value

// Loader reads category-scoped configuration from the unified_config table.
//
//	CREATE TABLE unified_config (
//	    category     TEXT NOT NULL,
//	    config_key   TEXT NOT NULL,
//	    config_value TEXT NOT NULL,
//	    config_type  TEXT NOT NULL, -- number|boolean|string|json
//	    is_active    INTEGER NOT NULL DEFAULT 1,
//	    PRIMARY KEY (category, config_key)
//	);
type Loader struct {
	db *sql.DB
}

// NewLoader constructs a Loader over an open database handle.
func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// Load fetches every active row for category and returns it as a Category
// map. required lists the keys that must be present; any missing key fails
// the whole load with ErrConfigLoadFailed naming every missing key, not just
// the first one found, so a misconfigured deployment can be fixed in one
// pass instead of one error at a time.
func (l *Loader) Load(ctx context.Context, category string, required []string) (Category, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT config_key, config_value, config_type
		   FROM unified_config
		  WHERE category = ? AND is_active = 1`, category)
	if err != nil {
		return nil, fmt.Errorf("%w: query category %q: %w", ErrConfigLoadFailed, category, err)
	}
	defer rows.Close()

	cat := make(Category)

	for rows.Next() {
		var key, value, typeTag string
		if err := rows.Scan(&key, &value, &typeTag); err != nil {
			return nil, fmt.Errorf("%w: scan category %q: %w", ErrConfigLoadFailed, category, err)
		}

		cat[key] = NewValue(value, ValueType(typeTag))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate category %q: %w", ErrConfigLoadFailed, category, err)
	}

	var missing []string

	for _, key := range required {
		if _, ok := cat[key]; !ok {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: category %q missing required keys: %v", ErrConfigLoadFailed, category, missing)
	}

	return cat, nil
}
