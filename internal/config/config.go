package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loykin/launchcheck/internal/auth"
	"github.com/loykin/launchcheck/internal/cron"
	"github.com/loykin/launchcheck/internal/detector"
	"github.com/loykin/launchcheck/internal/logger"
	"github.com/loykin/launchcheck/internal/orchestrator"
	"github.com/loykin/launchcheck/internal/sysproc"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LAUNCHCHECK_MAX_WAIT_SECONDS or LAUNCHCHECK_LOG_LEVEL.
const EnvPrefix = "LAUNCHCHECK"

var ErrInvalidConfig = errors.New("invalid config")

// Config is the top-level file structure (TOML or YAML).
type Config struct {
	MaxWaitSeconds         float64 `mapstructure:"max_wait_seconds"`
	PollIntervalSeconds    float64 `mapstructure:"poll_interval_seconds"`
	PostDetectPauseSeconds float64 `mapstructure:"post_detect_pause_seconds"`
	AdditionalWaitSeconds  float64 `mapstructure:"additional_wait_seconds"`
	PostCloseSettleSeconds float64 `mapstructure:"post_close_settle_seconds"`
	InterTestDelaySeconds  float64 `mapstructure:"inter_test_delay_seconds"`
	TerminateGraceSeconds  float64 `mapstructure:"terminate_grace_seconds"`

	ExecutableAliases  []string `mapstructure:"executable_aliases"`
	ProtectedProcesses []string `mapstructure:"protected_processes"`
	UACProcessName     string   `mapstructure:"uac_process_name"`
	ReportOutput       string   `mapstructure:"report_output"`
	SampleResources    bool     `mapstructure:"sample_resources"`

	Log       LogConfig       `mapstructure:"log"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	History   []string        `mapstructure:"history"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Schedule  string          `mapstructure:"schedule"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// InventoryConfig locates the two aligned list files and the launcher
// roots walked by "collect".
type InventoryConfig struct {
	Launchers   string   `mapstructure:"launchers"`
	Executables string   `mapstructure:"executables"`
	Roots       []string `mapstructure:"roots"`
	Extensions  []string `mapstructure:"extensions"`
}

// ServerConfig drives "serve". An empty AuthSecret leaves the control
// API open, which is only sensible on a loopback listener.
type ServerConfig struct {
	Listen        string        `mapstructure:"listen"`
	BasePath      string        `mapstructure:"base_path"`
	AuthSecret    string        `mapstructure:"auth_secret"`
	TokenTTLHours float64       `mapstructure:"token_ttl_hours"`
	Clients       []auth.Client `mapstructure:"clients"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// DefaultProtectedProcesses are never closed or terminated.
func DefaultProtectedProcesses() []string {
	return []string{
		"explorer.exe", "svchost.exe", "csrss.exe", "winlogon.exe",
		"services.exe", "lsass.exe", "smss.exe", "wininit.exe", "dwm.exe",
		"system", "systemd", "init", "xorg", "xwayland", "gnome-shell",
		"plasmashell", "kwin_x11", "kwin_wayland",
	}
}

func defaultAliasEntries() []string {
	a := detector.DefaultAliases()
	out := make([]string, 0, len(a))
	for from, to := range a {
		out = append(out, from+"="+to)
	}
	sort.Strings(out)
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_wait_seconds", 20)
	v.SetDefault("poll_interval_seconds", 2)
	v.SetDefault("post_detect_pause_seconds", 2)
	v.SetDefault("additional_wait_seconds", 5)
	v.SetDefault("post_close_settle_seconds", 2)
	v.SetDefault("inter_test_delay_seconds", 1)
	v.SetDefault("terminate_grace_seconds", 5)
	v.SetDefault("executable_aliases", defaultAliasEntries())
	v.SetDefault("protected_processes", DefaultProtectedProcesses())
	v.SetDefault("uac_process_name", "consent.exe")
	v.SetDefault("report_output", "launch_test_results.csv")
	v.SetDefault("sample_resources", false)

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("inventory.launchers", "shortcuts.txt")
	v.SetDefault("inventory.executables", "executables.txt")
	v.SetDefault("inventory.roots", []string{})
	v.SetDefault("inventory.extensions", []string{})

	v.SetDefault("history", []string{})
	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.auth_secret", "")
	v.SetDefault("server.token_ttl_hours", 24)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("schedule", "")
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return cfg
}

// Load reads path (TOML unless the extension says YAML), applies
// LAUNCHCHECK_* environment overrides and validates the result. An empty
// path yields defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// Validate rejects timings that would stall or spin the detection loop,
// malformed alias entries and unparsable schedules.
func (c *Config) Validate() error {
	positive := []struct {
		key string
		val float64
	}{
		{"max_wait_seconds", c.MaxWaitSeconds},
		{"poll_interval_seconds", c.PollIntervalSeconds},
		{"terminate_grace_seconds", c.TerminateGraceSeconds},
	}
	for _, p := range positive {
		if !(p.val > 0) {
			return fmt.Errorf("%w: %s must be > 0, got %v", ErrInvalidConfig, p.key, p.val)
		}
	}
	nonNegative := []struct {
		key string
		val float64
	}{
		{"post_detect_pause_seconds", c.PostDetectPauseSeconds},
		{"additional_wait_seconds", c.AdditionalWaitSeconds},
		{"post_close_settle_seconds", c.PostCloseSettleSeconds},
		{"inter_test_delay_seconds", c.InterTestDelaySeconds},
	}
	for _, p := range nonNegative {
		if !(p.val >= 0) {
			return fmt.Errorf("%w: %s must be >= 0, got %v", ErrInvalidConfig, p.key, p.val)
		}
	}
	if _, err := detector.ParseAliases(c.ExecutableAliases); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(c.Schedule) != "" {
		if _, err := cron.ParseSchedule(c.Schedule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	for _, cl := range c.Server.Clients {
		if cl.ID == "" || cl.SecretHash == "" {
			return fmt.Errorf("%w: server.clients entries need id and secret_hash", ErrInvalidConfig)
		}
	}
	if c.Server.TokenTTLHours < 0 {
		return fmt.Errorf("%w: server.token_ttl_hours must be >= 0, got %v", ErrInvalidConfig, c.Server.TokenTTLHours)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// InterTestDelay is the pause between consecutive cases.
func (c *Config) InterTestDelay() time.Duration { return seconds(c.InterTestDelaySeconds) }

// Settings converts the file form into the runtime settings of a run.
func (c *Config) Settings() (orchestrator.Settings, error) {
	aliases, err := detector.ParseAliases(c.ExecutableAliases)
	if err != nil {
		return orchestrator.Settings{}, err
	}
	return orchestrator.Settings{
		Detector: detector.Settings{
			MaxWait:         seconds(c.MaxWaitSeconds),
			PollInterval:    seconds(c.PollIntervalSeconds),
			PostDetectPause: seconds(c.PostDetectPauseSeconds),
			Aliases:         aliases,
			UACProcessName:  c.UACProcessName,
		},
		AdditionalWait:  seconds(c.AdditionalWaitSeconds),
		PostCloseSettle: seconds(c.PostCloseSettleSeconds),
		TerminateGrace:  seconds(c.TerminateGraceSeconds),
		Protected:       sysproc.NewNameSet(c.ProtectedProcesses...),
		SampleResources: c.SampleResources,
	}, nil
}

// Auth returns the token service of the control API, or nil when no
// secret is configured.
func (c *Config) Auth() (*auth.Service, error) {
	if c.Server.AuthSecret == "" {
		return nil, nil
	}
	svc, err := auth.New(c.Server.AuthSecret, time.Duration(c.Server.TokenTTLHours*float64(time.Hour)))
	if err != nil {
		return nil, err
	}
	return svc.WithClients(c.Server.Clients), nil
}

// LoggerConfig maps the [log] section onto the logger package.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		File:       c.Log.File,
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		Color:      c.Log.Color,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}
