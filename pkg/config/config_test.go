package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
backup_dir: `+filepath.Join(root, "backups")+`
project_root: `+root+`
database_path: `+filepath.Join(root, "backend", "database", "database.sqlite")+`
jwt_secret_key: test-secret
staging_dir: `+t.TempDir()+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIPort, cfg.APIPort)
	assert.Equal(t, PolicyWarn, cfg.PreRestorePolicy)
	assert.Equal(t, DefaultStepPollInterval, cfg.StepPollInterval)
	assert.Equal(t, time.Hour, cfg.Cache.RoundRobinTTL)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, filepath.Join(root, "backend"), cfg.BackendRoot())
	assert.Equal(t, filepath.Join(root, "frontend"), cfg.FrontendRoot())
	assert.Equal(t, DefaultConfigFiles, cfg.ConfigFiles)

	require.Len(t, cfg.PostRestore.Backend, 3)
	assert.Equal(t, "Composer Install", cfg.PostRestore.Backend[0].Label)
	require.Len(t, cfg.PostRestore.Frontend, 2)
	assert.Equal(t, 900*time.Second, cfg.PostRestore.Frontend[1].Timeout)
	assert.Equal(t, "Restart Backend (PM2)", cfg.PostRestore.RestartBackend.Label)
	assert.Equal(t, DefaultBuildMarker, cfg.PostRestore.BuildMarker)
}

func TestLoadCustomPlan(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
backup_dir: /srv/backups
project_root: `+root+`
database_path: /srv/app.sqlite
jwt_secret_key: s
staging_dir: `+t.TempDir()+`
pre_restore_policy: require
post_restore:
  backend:
    - label: Migrate
      command: ["php", "artisan", "migrate", "--force"]
      dir: backend
      timeout: 5m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, PolicyRequire, cfg.PreRestorePolicy)
	require.Len(t, cfg.PostRestore.Backend, 1)
	assert.Equal(t, "Migrate", cfg.PostRestore.Backend[0].Label)
	assert.Equal(t, 5*time.Minute, cfg.PostRestore.Backend[0].Timeout)
	assert.Len(t, cfg.PostRestore.Frontend, 2)
}

func TestLoadEnvOverride(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
backup_dir: /srv/backups
project_root: `+root+`
database_path: /srv/app.sqlite
jwt_secret_key: s
staging_dir: `+t.TempDir()+`
`)
	t.Setenv("SITECALM_API_PORT", "9100")
	t.Setenv("SITECALM_CACHE_DRIVER", "badger")
	t.Setenv("SITECALM_CACHE_BADGER_PATH", filepath.Join(root, "kv"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.APIPort)
	assert.Equal(t, "badger", cfg.Cache.Driver)
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	base := func() *Config {
		cfg := &Config{
			BackupDir:        "/srv/backups",
			ProjectRoot:      root,
			DatabasePath:     "/srv/app.sqlite",
			JWTSecretKey:     "s",
			BackendDir:       "backend",
			FrontendDir:      "frontend",
			StateDBPath:      "/srv/state.sqlite3",
			StagingDir:       "/tmp",
			PreRestorePolicy: PolicyWarn,
			StepPollInterval: DefaultStepPollInterval,
			APIPort:          DefaultAPIPort,
			LogFormat:        DefaultLogFormat,
			JWTAlgorithm:     DefaultJWTAlgorithm,
			Cache: CacheConfig{
				Driver:        "sqlite",
				RoundRobinTTL: time.Hour,
				Breaker:       BreakerConfig{FailureThreshold: 5},
			},
		}
		cfg.applyPlanDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing backup dir", mutate: func(c *Config) { c.BackupDir = "" }, wantErr: true},
		{name: "bad policy", mutate: func(c *Config) { c.PreRestorePolicy = "maybe" }, wantErr: true},
		{name: "staging inside backend", mutate: func(c *Config) { c.StagingDir = filepath.Join(root, "backend", "tmp") }, wantErr: true},
		{name: "staging equals frontend", mutate: func(c *Config) { c.StagingDir = filepath.Join(root, "frontend") }, wantErr: true},
		{name: "badger without path", mutate: func(c *Config) { c.Cache.Driver = "badger" }, wantErr: true},
		{name: "offsite without bucket", mutate: func(c *Config) { c.Offsite.Enabled = true }, wantErr: true},
		{name: "ssl half configured", mutate: func(c *Config) { c.SSLCert = "/etc/cert.pem" }, wantErr: true},
		{name: "relative project root", mutate: func(c *Config) { c.ProjectRoot = "app" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsWithin(t *testing.T) {
	assert.True(t, IsWithin("/a/b/c", "/a/b"))
	assert.True(t, IsWithin("/a/b", "/a/b"))
	assert.False(t, IsWithin("/a/bc", "/a/b"))
	assert.False(t, IsWithin("/tmp", "/a/b"))
}
