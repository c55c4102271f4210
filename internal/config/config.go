// Package config loads orm-check settings from a YAML file, the environment
// and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"orm-check/internal/auditor"
	"orm-check/internal/model"

	"github.com/spf13/viper"
)

const (
	EnvPrefix = "ORMCHECK"
	fileName  = "orm-check"
)

type Configuration struct {
	Analyzers struct {
		Joins struct {
			MaxRecommended int `mapstructure:"max_recommended"`
			MaxCritical    int `mapstructure:"max_critical"`
			MinQueries     int `mapstructure:"min_queries"`
		} `mapstructure:"joins"`
		LazyLoading struct {
			Threshold     int      `mapstructure:"threshold"`
			MaxMeanGap    float64  `mapstructure:"max_mean_gap"`
			TablePrefixes []string `mapstructure:"table_prefixes"`
		} `mapstructure:"lazy_loading"`
		SlowQuery struct {
			ThresholdMs float64 `mapstructure:"threshold_ms"`
		} `mapstructure:"slow_query"`
		FindAll struct {
			RowThreshold int `mapstructure:"row_threshold"`
		} `mapstructure:"find_all"`
		Composition struct {
			ChildPatterns       []string `mapstructure:"child_patterns"`
			IndependentPatterns []string `mapstructure:"independent_patterns"`
		} `mapstructure:"composition"`
		Disabled []string `mapstructure:"disabled"`
	} `mapstructure:"analyzers"`
	Input struct {
		JSONArrayPath string   `mapstructure:"json_array_path"`
		Exclude       []string `mapstructure:"exclude"`
		Workers       int      `mapstructure:"workers"`
	} `mapstructure:"input"`
	Report struct {
		Format string `mapstructure:"format"`
		Output string `mapstructure:"output"`
		FailOn string `mapstructure:"fail_on"`
	} `mapstructure:"report"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

var (
	ReportFormats = []string{"console", "json"}
	LogLevels     = []string{"debug", "info", "warn", "error"}
	LogFormats    = []string{"text", "json"}
)

// FailOnNone disables the severity-based exit status.
const FailOnNone = "none"

// DefaultConfigDir is $XDG_CONFIG_HOME/orm-check, or ./ when the user config
// dir cannot be determined.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, fileName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analyzers.joins.max_recommended", auditor.DefaultMaxJoinsRecommended)
	v.SetDefault("analyzers.joins.max_critical", auditor.DefaultMaxJoinsCritical)
	v.SetDefault("analyzers.joins.min_queries", auditor.DefaultMinJoinQueries)
	v.SetDefault("analyzers.lazy_loading.threshold", auditor.DefaultLazyLoadingThreshold)
	v.SetDefault("analyzers.lazy_loading.max_mean_gap", auditor.DefaultMaxMeanGap)
	v.SetDefault("analyzers.lazy_loading.table_prefixes", []string{"tbl_"})
	v.SetDefault("analyzers.slow_query.threshold_ms", auditor.DefaultSlowQueryThresholdMs)
	v.SetDefault("analyzers.find_all.row_threshold", auditor.DefaultFindAllRowThreshold)
	v.SetDefault("analyzers.composition.child_patterns", auditor.DefaultChildPatterns)
	v.SetDefault("analyzers.composition.independent_patterns", auditor.DefaultIndependentPatterns)
	v.SetDefault("analyzers.disabled", []string{})
	v.SetDefault("input.json_array_path", "")
	v.SetDefault("input.exclude", []string{".git", "vendor"})
	v.SetDefault("input.workers", 4)
	v.SetDefault("report.format", "console")
	v.SetDefault("report.output", "")
	v.SetDefault("report.fail_on", FailOnNone)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load builds the configuration. An explicit cfgFile must exist; otherwise
// ./orm-check.yaml and DefaultConfigDir() are searched and a missing file
// just means defaults and environment.
func Load(cfgFile string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultConfigDir())
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Configuration) normalize() {
	c.Report.Format = strings.ToLower(strings.TrimSpace(c.Report.Format))
	c.Report.FailOn = strings.ToLower(strings.TrimSpace(c.Report.FailOn))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// Validate checks the enumerated settings. Analyzer ranges are checked by
// the analyzer constructors themselves.
func (c *Configuration) Validate() error {
	if !slices.Contains(ReportFormats, c.Report.Format) {
		return fmt.Errorf("%w: report.format must be one of %v, got %q", model.ErrInvalidConfig, ReportFormats, c.Report.Format)
	}
	if c.Report.FailOn != FailOnNone {
		if _, err := model.ParseSeverity(c.Report.FailOn); err != nil {
			return fmt.Errorf("report.fail_on: %w", err)
		}
	}
	if !slices.Contains(LogLevels, c.Logging.Level) {
		return fmt.Errorf("%w: logging.level must be one of %v, got %q", model.ErrInvalidConfig, LogLevels, c.Logging.Level)
	}
	if !slices.Contains(LogFormats, c.Logging.Format) {
		return fmt.Errorf("%w: logging.format must be one of %v, got %q", model.ErrInvalidConfig, LogFormats, c.Logging.Format)
	}
	if c.Input.Workers < 1 {
		return fmt.Errorf("%w: input.workers must be at least 1, got %d", model.ErrInvalidConfig, c.Input.Workers)
	}
	return nil
}

// Disabled reports whether the named analyzer was switched off.
func (c *Configuration) Disabled(name string) bool {
	return slices.Contains(c.Analyzers.Disabled, name)
}

// FailOn returns the severity floor for a failing exit status, or "" when
// disabled.
func (c *Configuration) FailOn() model.Severity {
	if c.Report.FailOn == FailOnNone {
		return ""
	}
	return model.Severity(c.Report.FailOn)
}
