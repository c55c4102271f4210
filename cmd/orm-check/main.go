package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"orm-check/internal/config"
	"orm-check/internal/logging"

	"github.com/spf13/cobra"
)

var (
	queriesPath  string
	metadataPath string
	schemaPath   string
	cfgFile      string
	reportFmt    string
	outputFile   string
	excludes     []string
	failOn       string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "orm-check",
	Short: "A static analysis tool for ORM query logs and entity mappings",
	Long: `orm-check reads captured query executions and entity association
metadata, and reports ORM anti-patterns: N+1 lazy loading, oversized or
unused joins, unbounded reads, slow queries, unguarded division and risky
cascade / orphan-removal mappings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
		return run(cmd.Context(), cfg, inputs{
			Queries:  queriesPath,
			Metadata: metadataPath,
			Schema:   schemaPath,
		}, logger, os.Stdout)
	},
}

var analyzersCmd = &cobra.Command{
	Use:   "analyzers",
	Short: "List the available analyzers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return listAnalyzers(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./orm-check.yaml or "+config.DefaultConfigDir()+"/orm-check.yaml)")
	rootCmd.Flags().StringVarP(&queriesPath, "queries", "q", "", "Query log file or directory of query logs")
	rootCmd.Flags().StringVarP(&metadataPath, "metadata", "m", "", "Entity metadata snapshot (YAML)")
	rootCmd.Flags().StringVarP(&schemaPath, "schema", "S", "", "Path to database schema SQL file")
	rootCmd.Flags().StringVarP(&reportFmt, "report", "r", "console", "Report format ("+strings.Join(config.ReportFormats, ", ")+")")
	rootCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output file path (default: stdout)")
	rootCmd.Flags().StringSliceVarP(&excludes, "exclude", "e", nil, "Glob patterns to exclude from the query log scan")
	rootCmd.Flags().StringVar(&failOn, "fail-on", config.FailOnNone, "Exit with status 2 when issues at or above this severity are found (none, info, warning, critical)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level ("+strings.Join(config.LogLevels, ", ")+")")
	rootCmd.AddCommand(analyzersCmd)
}

// loadConfig layers changed flags over the file/env configuration.
func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("report") {
		cfg.Report.Format = strings.ToLower(reportFmt)
	}
	if flags.Changed("out") {
		cfg.Report.Output = outputFile
	}
	if flags.Changed("exclude") {
		cfg.Input.Exclude = excludes
	}
	if flags.Changed("fail-on") {
		cfg.Report.FailOn = strings.ToLower(failOn)
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = strings.ToLower(logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errFailOn) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
