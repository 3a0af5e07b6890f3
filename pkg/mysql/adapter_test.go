package mysql

import (
	"errors"
	"testing"

	"github.com/asaidimu/activesql/pkg/config"
)

func TestDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  map[string]any
		want string
	}{
		{
			name: "defaults",
			cfg: map[string]any{
				"host": "db.local", "username": "app", "database": "main",
			},
			want: "app:@tcp(db.local:3306)/main?charset=utf8mb4&parseTime=true",
		},
		{
			name: "full",
			cfg: map[string]any{
				"host": "db.local", "username": "app", "password": "s3cret",
				"database": "main", "port": 3307, "charset": "latin1",
			},
			want: "app:s3cret@tcp(db.local:3307)/main?charset=latin1&parseTime=true",
		},
		{
			name: "json decoded port",
			cfg: map[string]any{
				"host": "db.local", "username": "app", "database": "main",
				"port": float64(3308),
			},
			want: "app:@tcp(db.local:3308)/main?charset=utf8mb4&parseTime=true",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := dsn(c.cfg); got != c.want {
				t.Errorf("dsn = %q, want %q", got, c.want)
			}
		})
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	for _, missing := range []string{"host", "username", "database"} {
		cfg := map[string]any{"host": "h", "username": "u", "database": "d"}
		delete(cfg, missing)
		_, err := New("main", cfg)
		var cfgErr *config.Error
		if !errors.As(err, &cfgErr) {
			t.Errorf("missing %q: err = %v, want *config.Error", missing, err)
		}
	}
}
