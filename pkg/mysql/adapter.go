// Package mysql provides the MySQL adapter. Importing it registers the
// "mysql" driver type with the registry:
//
//	import _ "github.com/asaidimu/activesql/pkg/mysql"
package mysql

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/asaidimu/activesql/pkg/config"
	"github.com/asaidimu/activesql/pkg/db"
)

func init() {
	if err := db.RegisterDriver("mysql", New); err != nil {
		panic(err)
	}
}

// New constructs a MySQL adapter. Required config keys: host, username,
// database. Optional: password, port (default 3306), charset (default utf8mb4).
func New(configKey string, cfg map[string]any) (db.Adapter, error) {
	for _, key := range []string{"host", "username", "database"} {
		if s, _ := cfg[key].(string); s == "" {
			return nil, &config.Error{Key: configKey, Reason: fmt.Sprintf("mysql connection needs %q", key)}
		}
	}

	handle, err := sqlx.Open("mysql", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open mysql database for %q: %w", configKey, err)
	}
	return db.NewConn(handle, configKey, "SELECT LAST_INSERT_ID()"), nil
}

func dsn(cfg map[string]any) string {
	host, _ := cfg["host"].(string)
	username, _ := cfg["username"].(string)
	password, _ := cfg["password"].(string)
	database, _ := cfg["database"].(string)

	port := 3306
	switch p := cfg["port"].(type) {
	case int:
		port = p
	case float64: // JSON numbers decode as float64
		port = int(p)
	}

	charset, _ := cfg["charset"].(string)
	if charset == "" {
		charset = "utf8mb4"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true",
		username, password, host, port, database, charset)
}
