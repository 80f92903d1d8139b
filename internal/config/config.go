package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/bringup/internal/env"
	"github.com/loykin/bringup/internal/logger"
	"github.com/loykin/bringup/internal/process"
	"github.com/loykin/bringup/internal/supervisor"
)

// Config represents the top-level TOML structure of bringup.toml.
type Config struct {
	SettleDelay       time.Duration `toml:"settle_delay" mapstructure:"settle_delay"`
	GraceTimeout      time.Duration `toml:"grace_timeout" mapstructure:"grace_timeout"`
	ReclaimPorts      bool          `toml:"reclaim_ports" mapstructure:"reclaim_ports"`
	ExtraReclaimPorts []int         `toml:"extra_reclaim_ports" mapstructure:"extra_reclaim_ports"`
	OnLaunchFailure   string        `toml:"on_launch_failure" mapstructure:"on_launch_failure"`
	UseOSEnv          bool          `toml:"use_os_env" mapstructure:"use_os_env"`
	Env               []string      `toml:"env" mapstructure:"env"`
	EnvFiles          []string      `toml:"env_files" mapstructure:"env_files"`
	PidFile           string        `toml:"pid_file" mapstructure:"pid_file"`

	Log      *LogConfig      `toml:"log" mapstructure:"log"`
	Server   ServerConfig    `toml:"server" mapstructure:"server"`
	Metrics  MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Store    StoreConfig     `toml:"store" mapstructure:"store"`
	History  HistoryConfig   `toml:"history" mapstructure:"history"`
	Services []ServiceConfig `toml:"services" mapstructure:"services"`
}

// LogConfig covers both planes: the supervisor's own slog output
// (level/format/color/source) and the default file destinations for
// captured child output.
type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
	Color  bool   `toml:"color" mapstructure:"color"`
	Source bool   `toml:"source" mapstructure:"source"`

	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type StoreConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// ServiceConfig is one [[services]] entry, in start order.
type ServiceConfig struct {
	Name      string   `toml:"name" mapstructure:"name"`
	Command   string   `toml:"command" mapstructure:"command"`
	Args      []string `toml:"args" mapstructure:"args"`
	WorkDir   string   `toml:"workdir" mapstructure:"workdir"`
	Host      string   `toml:"host" mapstructure:"host"`
	Port      int      `toml:"port" mapstructure:"port"`
	StdoutLog string   `toml:"stdout_log" mapstructure:"stdout_log"`
	StderrLog string   `toml:"stderr_log" mapstructure:"stderr_log"`
	Env       []string `toml:"env" mapstructure:"env"`
}

// Load reads and validates a bringup TOML file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetDefault("settle_delay", "1s")
	v.SetDefault("grace_timeout", "10s")
	v.SetDefault("on_launch_failure", supervisor.PolicyContinue)
	v.SetDefault("server.listen", "127.0.0.1:8642")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("metrics.listen", "127.0.0.1:9090")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations that must not reach the launch loop.
func (c *Config) Validate() error {
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative: %s", c.SettleDelay)
	}
	if c.GraceTimeout <= 0 {
		return fmt.Errorf("grace_timeout must be positive: %s", c.GraceTimeout)
	}
	switch c.OnLaunchFailure {
	case "", supervisor.PolicyContinue, supervisor.PolicyAbort:
	default:
		return fmt.Errorf("on_launch_failure must be %q or %q, got %q",
			supervisor.PolicyContinue, supervisor.PolicyAbort, c.OnLaunchFailure)
	}
	for _, p := range c.ExtraReclaimPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("extra_reclaim_ports entry out of range: %d", p)
		}
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("no services defined")
	}
	seen := make(map[string]struct{}, len(c.Services))
	for i, sc := range c.Services {
		name := strings.TrimSpace(sc.Name)
		if name == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate service name %q", name)
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(sc.Command) == "" {
			return fmt.Errorf("service %q: command is required", name)
		}
		if sc.Port < 0 || sc.Port > 65535 {
			return fmt.Errorf("service %q: port out of range: %d", name, sc.Port)
		}
	}
	return nil
}

// Specs builds the launch descriptors in config order, applying the
// top-level log defaults to services without their own destinations.
func (c *Config) Specs() []process.Spec {
	base := c.ChildLogDefaults()
	specs := make([]process.Spec, 0, len(c.Services))
	for _, sc := range c.Services {
		logCfg := base
		if sc.StdoutLog != "" {
			logCfg.StdoutPath = sc.StdoutLog
		}
		if sc.StderrLog != "" {
			logCfg.StderrPath = sc.StderrLog
		}
		specs = append(specs, process.Spec{
			Name:    strings.TrimSpace(sc.Name),
			Command: sc.Command,
			Args:    sc.Args,
			WorkDir: sc.WorkDir,
			Host:    sc.Host,
			Port:    sc.Port,
			Env:     sc.Env,
			Log:     logCfg,
		})
	}
	return specs
}

// ChildLogDefaults is the file-capture config shared by all services.
func (c *Config) ChildLogDefaults() logger.Config {
	if c.Log == nil {
		return logger.Config{}
	}
	return logger.Config{
		Dir:        c.Log.Dir,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// SlogConfig is the supervisor's own log output config.
func (c *Config) SlogConfig() logger.SlogConfig {
	if c.Log == nil {
		return logger.SlogConfig{}
	}
	return logger.SlogConfig{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Color:  c.Log.Color,
		Source: c.Log.Source,
	}
}

// BuildEnv assembles the shared child environment: OS base when enabled,
// then env_files in order, then the top-level env list.
func (c *Config) BuildEnv() (*env.Env, error) {
	e := env.New()
	if c.UseOSEnv {
		e.UseOS()
	}
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		e.SetPairs(pairs)
	}
	e.SetPairs(c.Env)
	return e, nil
}

// DeclaredPorts lists every port the supervisor may touch: each service's
// declared port plus the extra reclaim ports, deduplicated in order.
func (c *Config) DeclaredPorts() []int {
	var ports []int
	seen := make(map[int]struct{})
	add := func(p int) {
		if p <= 0 {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		ports = append(ports, p)
	}
	for _, sc := range c.Services {
		add(sc.Port)
	}
	for _, p := range c.ExtraReclaimPorts {
		add(p)
	}
	return ports
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export,
// no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) ([]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	var pairs []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			pairs = append(pairs, k+"="+v)
		}
	}
	return pairs, nil
}
