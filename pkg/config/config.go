package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// Required fields
	BackupDir    string `mapstructure:"backup_dir" validate:"required"`
	ProjectRoot  string `mapstructure:"project_root" validate:"required"`
	DatabasePath string `mapstructure:"database_path" validate:"required"`
	JWTSecretKey string `mapstructure:"jwt_secret_key" validate:"required"`

	// Project layout, relative to ProjectRoot
	BackendDir  string   `mapstructure:"backend_dir" validate:"required"`
	FrontendDir string   `mapstructure:"frontend_dir"`
	ConfigFiles []string `mapstructure:"config_files"`

	// Own state (process records, restore jobs, round-robin cursors)
	StateDBPath string `mapstructure:"state_db_path" validate:"required"`
	StagingDir  string `mapstructure:"staging_dir" validate:"required"`

	// Used to build download links in catalog listings
	BaseURL string `mapstructure:"base_url"`

	// Snapshot and restore rules
	BackendExclusions  []string `mapstructure:"backend_exclusions"`
	FrontendExclusions []string `mapstructure:"frontend_exclusions"`
	BackendKeep        []string `mapstructure:"backend_keep"`
	FrontendKeep       []string `mapstructure:"frontend_keep"`
	PreservePaths      []string `mapstructure:"preserve_paths"`
	PreRestorePolicy   string   `mapstructure:"pre_restore_policy" validate:"oneof=warn require"`

	PostRestore      PostRestoreConfig `mapstructure:"post_restore"`
	StepPollInterval time.Duration     `mapstructure:"step_poll_interval" validate:"gt=0"`

	// Optional API settings
	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port" validate:"gt=0,lte=65535"`
	// Zero lets synchronous restores hold the response for the whole rebuild
	RestoreRequestTimeout time.Duration `mapstructure:"restore_request_timeout" validate:"gte=0"`

	// Optional SSL settings
	SSLCert string `mapstructure:"ssl_cert"`
	SSLKey  string `mapstructure:"ssl_key"`

	// Optional CORS settings
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Optional logging settings
	LogFile   string `mapstructure:"log_file"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`

	// Optional JWT settings
	JWTAlgorithm string `mapstructure:"jwt_algorithm" validate:"oneof=HS256 HS384 HS512"`

	Cache     CacheConfig     `mapstructure:"cache"`
	Retention RetentionConfig `mapstructure:"retention"`
	Offsite   OffsiteConfig   `mapstructure:"offsite"`

	// Static paths
	ConfigPath string `mapstructure:"-"`
}

// StepConfig describes one post-restore command. Dir is "backend" or
// "frontend" and selects the working directory.
type StepConfig struct {
	Label   string        `mapstructure:"label" validate:"required"`
	Command []string      `mapstructure:"command" validate:"min=1"`
	Dir     string        `mapstructure:"dir" validate:"oneof=backend frontend"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type PostRestoreConfig struct {
	Backend         []StepConfig `mapstructure:"backend" validate:"dive"`
	Frontend        []StepConfig `mapstructure:"frontend" validate:"dive"`
	RestartBackend  StepConfig   `mapstructure:"restart_backend"`
	RestartFrontend StepConfig   `mapstructure:"restart_frontend"`
	// BuildMarker is checked relative to the frontend root after the build.
	BuildMarker string `mapstructure:"build_marker"`
}

type CacheConfig struct {
	Driver        string        `mapstructure:"driver" validate:"oneof=sqlite badger"`
	BadgerPath    string        `mapstructure:"badger_path"`
	RoundRobinTTL time.Duration `mapstructure:"round_robin_ttl" validate:"gt=0"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold" validate:"gt=0"`
}

type RetentionConfig struct {
	KeepLast       int           `mapstructure:"keep_last" validate:"gte=0"`
	KeepPreRestore int           `mapstructure:"keep_pre_restore" validate:"gte=0"`
	MaxAge         time.Duration `mapstructure:"max_age" validate:"gte=0"`
}

type OffsiteConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
}

const (
	DefaultConfigPath       = "/etc/sitecalm/config.yml"
	DefaultStateDBPath      = "/var/lib/sitecalm/state.sqlite3"
	DefaultStagingDir       = "/tmp"
	DefaultBackendDir       = "backend"
	DefaultFrontendDir      = "frontend"
	DefaultAPIHost          = "0.0.0.0"
	DefaultAPIPort          = 8336
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultJWTAlgorithm     = "HS256"
	DefaultPreRestorePolicy = "warn"
	DefaultStepPollInterval = 150 * time.Millisecond
	DefaultRoundRobinTTL    = time.Hour
	DefaultBuildMarker      = ".next/server/middleware-manifest.json"

	PolicyWarn    = "warn"
	PolicyRequire = "require"

	DirBackend  = "backend"
	DirFrontend = "frontend"
)

var (
	DefaultConfigFiles = []string{
		"nginx_preview.totan.in.conf",
		"auth_response.json",
		"campaign_response.json",
		"preview_watch.sql",
	}
	DefaultBackendExclusions = []string{
		"vendor",
		"node_modules",
		"storage/logs",
		"storage/framework/cache",
		"storage/framework/sessions",
		"storage/framework/views",
		"storage/app/backups",
		".git",
	}
	DefaultFrontendExclusions = []string{
		"node_modules",
		".next",
		".git",
		"dist",
		"build",
	}
	DefaultBackendKeep  = []string{"vendor", "node_modules", "storage/logs", "bootstrap/cache"}
	DefaultFrontendKeep = []string{"node_modules"}
	DefaultPreserve     = []string{".env", "storage/logs"}
)

// DefaultBackendSteps mirrors the Laravel deployment sequence.
func DefaultBackendSteps() []StepConfig {
	return []StepConfig{
		{Label: "Composer Install", Command: []string{"composer", "install", "--no-dev", "--optimize-autoloader", "--no-interaction"}, Dir: DirBackend, Timeout: 600 * time.Second},
		{Label: "Laravel Optimize", Command: []string{"php", "artisan", "optimize"}, Dir: DirBackend, Timeout: 600 * time.Second},
		{Label: "Laravel Cache Clear", Command: []string{"php", "artisan", "cache:clear"}, Dir: DirBackend, Timeout: 120 * time.Second},
	}
}

// DefaultFrontendSteps mirrors the Next.js deployment sequence.
func DefaultFrontendSteps() []StepConfig {
	return []StepConfig{
		{Label: "NPM Install", Command: []string{"npm", "install", "--no-audit", "--no-fund"}, Dir: DirFrontend, Timeout: 600 * time.Second},
		{Label: "Next Build", Command: []string{"npm", "run", "build"}, Dir: DirFrontend, Timeout: 900 * time.Second},
	}
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	// Allow environment variable overrides
	v.SetEnvPrefix("SITECALM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ConfigPath = configPath
	cfg.applyPlanDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend_dir", DefaultBackendDir)
	v.SetDefault("frontend_dir", DefaultFrontendDir)
	v.SetDefault("state_db_path", DefaultStateDBPath)
	v.SetDefault("staging_dir", DefaultStagingDir)
	v.SetDefault("config_files", DefaultConfigFiles)
	v.SetDefault("backend_exclusions", DefaultBackendExclusions)
	v.SetDefault("frontend_exclusions", DefaultFrontendExclusions)
	v.SetDefault("backend_keep", DefaultBackendKeep)
	v.SetDefault("frontend_keep", DefaultFrontendKeep)
	v.SetDefault("preserve_paths", DefaultPreserve)
	v.SetDefault("pre_restore_policy", DefaultPreRestorePolicy)
	v.SetDefault("step_poll_interval", DefaultStepPollInterval)
	v.SetDefault("api_host", DefaultAPIHost)
	v.SetDefault("api_port", DefaultAPIPort)
	v.SetDefault("restore_request_timeout", 0)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
	v.SetDefault("jwt_algorithm", DefaultJWTAlgorithm)
	v.SetDefault("post_restore.build_marker", DefaultBuildMarker)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.badger_path", "")
	v.SetDefault("cache.round_robin_ttl", DefaultRoundRobinTTL)
	v.SetDefault("cache.breaker.max_requests", 1)
	v.SetDefault("cache.breaker.interval", time.Minute)
	v.SetDefault("cache.breaker.timeout", 30*time.Second)
	v.SetDefault("cache.breaker.failure_threshold", 5)
	v.SetDefault("offsite.region", "us-east-1")
}

// applyPlanDefaults fills the post-restore plan when the file leaves it out.
func (c *Config) applyPlanDefaults() {
	if len(c.PostRestore.Backend) == 0 {
		c.PostRestore.Backend = DefaultBackendSteps()
	}
	if len(c.PostRestore.Frontend) == 0 {
		c.PostRestore.Frontend = DefaultFrontendSteps()
	}
	if c.PostRestore.RestartBackend.Label == "" {
		c.PostRestore.RestartBackend = StepConfig{Label: "Restart Backend (PM2)", Command: []string{"pm2", "restart", "backend"}, Dir: DirBackend, Timeout: 60 * time.Second}
	}
	if c.PostRestore.RestartFrontend.Label == "" {
		c.PostRestore.RestartFrontend = StepConfig{Label: "Restart Frontend (PM2)", Command: []string{"pm2", "restart", "frontend"}, Dir: DirFrontend, Timeout: 60 * time.Second}
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if !filepath.IsAbs(c.ProjectRoot) {
		return fmt.Errorf("project_root must be absolute: %s", c.ProjectRoot)
	}
	if _, err := os.Stat(c.ProjectRoot); os.IsNotExist(err) {
		return fmt.Errorf("project_root does not exist: %s", c.ProjectRoot)
	}

	// Staging inside a source root would copy a snapshot into itself
	for _, root := range c.SourceRoots() {
		if IsWithin(c.StagingDir, root) {
			return fmt.Errorf("staging_dir %s must not be inside source root %s", c.StagingDir, root)
		}
	}

	if c.Cache.Driver == "badger" && c.Cache.BadgerPath == "" {
		return fmt.Errorf("cache.badger_path is required when cache.driver is badger")
	}

	// Validate SSL config if provided
	if c.SSLCert != "" || c.SSLKey != "" {
		if c.SSLCert == "" || c.SSLKey == "" {
			return fmt.Errorf("both ssl_cert and ssl_key must be provided")
		}
		if _, err := os.Stat(c.SSLCert); os.IsNotExist(err) {
			return fmt.Errorf("ssl_cert file does not exist: %s", c.SSLCert)
		}
		if _, err := os.Stat(c.SSLKey); os.IsNotExist(err) {
			return fmt.Errorf("ssl_key file does not exist: %s", c.SSLKey)
		}
	}

	return nil
}

func (c *Config) BackendRoot() string {
	return filepath.Join(c.ProjectRoot, c.BackendDir)
}

// FrontendRoot returns "" when no frontend is configured.
func (c *Config) FrontendRoot() string {
	if c.FrontendDir == "" {
		return ""
	}
	return filepath.Join(c.ProjectRoot, c.FrontendDir)
}

func (c *Config) SourceRoots() []string {
	roots := []string{c.BackendRoot()}
	if fr := c.FrontendRoot(); fr != "" {
		roots = append(roots, fr)
	}
	return roots
}

func (c *Config) IsDevMode() bool {
	return os.Getenv("SITECALM_DEV_MODE") == "1"
}

// IsWithin reports whether path equals root or lies below it.
func IsWithin(path, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
