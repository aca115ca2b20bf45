// Package config loads gemini-acp settings from defaults, a YAML file,
// GEMINI_ACP_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/zhubert/gemini-acp/gemini"
	"github.com/zhubert/gemini-acp/paths"
	"github.com/zhubert/gemini-acp/tracing"
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "GEMINI_ACP"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration. It is read once at startup.
type Config struct {
	Executable     string         `yaml:"executable" mapstructure:"executable"`           // Gemini CLI command or path
	Debug          bool           `yaml:"debug" mapstructure:"debug"`                     // Debug level logging
	PermissionMode string         `yaml:"permission_mode" mapstructure:"permission_mode"` // default, auto_edit or yolo
	LogFile        string         `yaml:"log_file" mapstructure:"log_file"`               // Empty selects the state dir default
	Tracing        tracing.Config `yaml:"tracing" mapstructure:"tracing"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Executable:     "gemini",
		Debug:          false,
		PermissionMode: string(gemini.PermissionDefault),
		Tracing:        tracing.DefaultConfig(),
	}
}

// SetDefaults registers every default on v so environment variables can
// override keys that appear in no config file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("executable", d.Executable)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("permission_mode", d.PermissionMode)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Load reads the configuration into a Config.
//
// configFile names an explicit YAML file, which must exist. When empty,
// config.yaml in the config directory is used if present.
// Flags must already be bound to v by the caller.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		dir, err := paths.ConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Executable) == "" {
		return fmt.Errorf("%w: executable must not be empty", ErrInvalidConfig)
	}
	if _, err := gemini.ParsePermissionMode(c.PermissionMode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Tracing.Exporter {
	case "", "none", "file", "stderr", "otlp":
	default:
		return fmt.Errorf("%w: unknown tracing exporter %q", ErrInvalidConfig, c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("%w: tracing sample_rate must be between 0 and 1, got %v", ErrInvalidConfig, c.Tracing.SampleRate)
	}
	return nil
}

// Mode returns the parsed permission mode. Call Validate first.
func (c *Config) Mode() gemini.PermissionMode {
	mode, err := gemini.ParsePermissionMode(c.PermissionMode)
	if err != nil {
		return gemini.PermissionDefault
	}
	return mode
}

// TracingConfig returns the tracing settings with the traces file resolved.
func (c *Config) TracingConfig() (tracing.Config, error) {
	tc := c.Tracing
	if tc.Enabled && tc.Exporter == "file" && tc.FilePath == "" {
		p, err := paths.TracesFilePath()
		if err != nil {
			return tc, fmt.Errorf("failed to resolve traces path: %w", err)
		}
		tc.FilePath = p
	}
	if tc.ServiceName == "" {
		tc.ServiceName = tracing.DefaultServiceName
	}
	return tc, nil
}
