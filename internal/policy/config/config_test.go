package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 50051, cfg.GRPCPort)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "policy.notifications", cfg.NotificationsTopic)
	assert.Equal(t, "MON 08:00", cfg.ReminderWeeklyAt)
	assert.True(t, cfg.SeedDemo)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "JWT_SECRET: s\nDB_DRIVER: sqlite\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "insurecrm.db", cfg.DBPath)
	assert.Equal(t, "policy.events", cfg.EventsTopic)
	assert.Equal(t, "09:00", cfg.ReminderDailyAt)
	assert.Equal(t, 30, cfg.ReminderHorizonDays)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "JWT_SECRET: file-secret\nDB_DRIVER: sqlite\nHTTP_PORT: 9000\n")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SEED_DEMO", "true")
	t.Setenv("TIMEZONE", "Europe/Berlin")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWTSecret)
	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.SeedDemo)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr []string
	}{
		{
			name:    "missing secret and database",
			content: "DB_DRIVER: postgres\n",
			wantErr: []string{"JWT_SECRET is required", "DB_HOST is required", "DB_USER is required", "DB_NAME is required"},
		},
		{
			name:    "unknown driver",
			content: "JWT_SECRET: s\nDB_DRIVER: mysql\n",
			wantErr: []string{"DB_DRIVER must be"},
		},
		{
			name:    "bad port",
			content: "JWT_SECRET: s\nDB_DRIVER: sqlite\nHTTP_PORT: 70000\n",
			wantErr: []string{"HTTP_PORT must be a valid port"},
		},
		{
			name:    "bad timezone",
			content: "JWT_SECRET: s\nDB_DRIVER: sqlite\nTIMEZONE: Mars/Olympus\n",
			wantErr: []string{"TIMEZONE"},
		},
		{
			name:    "non-numeric env",
			content: "JWT_SECRET: s\nDB_DRIVER: sqlite\n",
			env:     map[string]string{"GRPC_PORT": "abc"},
			wantErr: []string{"GRPC_PORT"},
		},
		{
			name:    "malformed yaml",
			content: "JWT_SECRET: [\n",
			wantErr: []string{"failed to parse config"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, Path())

	t.Setenv("CONFIG_PATH", "/etc/insurecrm.yaml")
	assert.Equal(t, "/etc/insurecrm.yaml", Path())
}
