// Package sqlite provides the SQLite adapter. Importing it registers the
// "sqlite" driver type with the registry:
//
//	import _ "github.com/asaidimu/activesql/pkg/sqlite"
package sqlite

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/asaidimu/activesql/pkg/config"
	"github.com/asaidimu/activesql/pkg/db"
)

func init() {
	if err := db.RegisterDriver("sqlite", New); err != nil {
		panic(err)
	}
}

// New constructs a SQLite adapter. The config map needs a "path" (a file path
// or ":memory:").
func New(configKey string, cfg map[string]any) (db.Adapter, error) {
	path, _ := cfg["path"].(string)
	if path == "" {
		return nil, &config.Error{Key: configKey, Reason: "sqlite connection needs a \"path\""}
	}

	handle, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}
	return db.NewConn(handle, configKey, "SELECT last_insert_rowid()"), nil
}
