package config

import (
	"os"
	"path/filepath"
	"testing"

	"orm-check/internal/auditor"
	"orm-check/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orm-check.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, auditor.DefaultMaxJoinsRecommended, cfg.Analyzers.Joins.MaxRecommended)
	assert.Equal(t, auditor.DefaultMaxJoinsCritical, cfg.Analyzers.Joins.MaxCritical)
	assert.Equal(t, auditor.DefaultLazyLoadingThreshold, cfg.Analyzers.LazyLoading.Threshold)
	assert.Equal(t, auditor.DefaultMaxMeanGap, cfg.Analyzers.LazyLoading.MaxMeanGap)
	assert.Equal(t, auditor.DefaultSlowQueryThresholdMs, cfg.Analyzers.SlowQuery.ThresholdMs)
	assert.Equal(t, auditor.DefaultChildPatterns, cfg.Analyzers.Composition.ChildPatterns)
	assert.Equal(t, "console", cfg.Report.Format)
	assert.Equal(t, 4, cfg.Input.Workers)
	assert.Equal(t, model.Severity(""), cfg.FailOn())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
analyzers:
  joins:
    max_recommended: 3
    max_critical: 6
  lazy_loading:
    table_prefixes: [tbl_]
  disabled: [slow_query]
report:
  format: JSON
  fail_on: warning
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Analyzers.Joins.MaxRecommended)
	assert.Equal(t, 6, cfg.Analyzers.Joins.MaxCritical)
	assert.Equal(t, auditor.DefaultMinJoinQueries, cfg.Analyzers.Joins.MinQueries)
	assert.Equal(t, []string{"tbl_"}, cfg.Analyzers.LazyLoading.TablePrefixes)
	assert.True(t, cfg.Disabled("slow_query"))
	assert.False(t, cfg.Disabled("lazy_loading"))
	assert.Equal(t, "json", cfg.Report.Format)
	assert.Equal(t, model.SeverityWarning, cfg.FailOn())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("ORMCHECK_ANALYZERS_SLOW_QUERY_THRESHOLD_MS", "250")
	t.Setenv("ORMCHECK_LOGGING_FORMAT", "json")

	cfg, err := Load(writeConfig(t, "report:\n  format: console\n"))
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.Analyzers.SlowQuery.ThresholdMs)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit config file must exist")

	tests := []struct {
		name    string
		content string
	}{
		{"unknown report format", "report:\n  format: html\n"},
		{"unknown fail_on", "report:\n  fail_on: fatal\n"},
		{"unknown log level", "logging:\n  level: verbose\n"},
		{"unknown log format", "logging:\n  format: xml\n"},
		{"no workers", "input:\n  workers: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, model.ErrInvalidConfig)
		})
	}
}
