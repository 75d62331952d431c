package database_test

import (
	"strings"
	"testing"

	"github.com/JaimeStill/docflow/pkg/database"
)

func TestConfig_Finalize(t *testing.T) {
	env := &database.Env{Host: "TEST_DB_HOST", Port: "TEST_DB_PORT", AutoMigrate: "TEST_DB_MIGRATE"}

	tests := []struct {
		name    string
		cfg     database.Config
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, c *database.Config)
	}{
		{
			name: "defaults",
			cfg:  database.Config{Name: "docflow", User: "docflow"},
			check: func(t *testing.T, c *database.Config) {
				if c.Host != "localhost" || c.Port != 5432 || c.SSLMode != "disable" {
					t.Errorf("defaults = %s:%d %s", c.Host, c.Port, c.SSLMode)
				}
			},
		},
		{
			name: "env override",
			cfg:  database.Config{Name: "docflow", User: "docflow"},
			env:  map[string]string{"TEST_DB_HOST": "db", "TEST_DB_PORT": "6543", "TEST_DB_MIGRATE": "true"},
			check: func(t *testing.T, c *database.Config) {
				if c.Host != "db" || c.Port != 6543 || !c.AutoMigrate {
					t.Errorf("env = %s:%d migrate=%v", c.Host, c.Port, c.AutoMigrate)
				}
			},
		},
		{name: "missing name", cfg: database.Config{User: "docflow"}, wantErr: true},
		{name: "missing user", cfg: database.Config{Name: "docflow"}, wantErr: true},
		{
			name:    "bad timeout",
			cfg:     database.Config{Name: "docflow", User: "docflow", ConnTimeout: "soon"},
			wantErr: true,
		},
		{
			name:    "idle exceeds open",
			cfg:     database.Config{Name: "docflow", User: "docflow", MaxOpenConns: 2, MaxIdleConns: 4},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := tt.cfg
			err := cfg.Finalize(env)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Finalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, &cfg)
			}
		})
	}
}

func TestConfig_Merge(t *testing.T) {
	base := database.Config{Host: "localhost", Port: 5432, Name: "docflow"}
	base.Merge(&database.Config{Host: "replica", AutoMigrate: true})

	if base.Host != "replica" || base.Port != 5432 || !base.AutoMigrate {
		t.Errorf("Merge() = %+v", base)
	}
}

func TestConfig_URL(t *testing.T) {
	cfg := database.Config{Host: "db", Port: 5432, Name: "docflow", User: "svc", Password: "p@ss", SSLMode: "disable"}

	got := cfg.URL()
	if !strings.HasPrefix(got, "postgres://svc:") || !strings.HasSuffix(got, "@db:5432/docflow?sslmode=disable") {
		t.Errorf("URL() = %s", got)
	}
	if !strings.Contains(cfg.Dsn(), "dbname=docflow") {
		t.Errorf("Dsn() = %s", cfg.Dsn())
	}
}
