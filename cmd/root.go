// =============================================================================
// Insurance Report ETL - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (etl)
//   ├── processCmd (etl process cga | ftusa)
//   ├── processAllCGACmd / processAllFTUSACmd (etl process-all-cga, ...)
//   ├── loadCmd (etl load)
//   └── versionCmd (etl version)
//
// CONFIGURATION:
//   The root command owns the global flags (--config, --verbose). Commands
//   call loadConfig to read the configuration and build the logger.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/insurance-report-etl/internal/config"
	"github.com/ginjaninja78/insurance-report-etl/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
// This can be overridden using the --config flag.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "etl",
	Short: "Insurance report ETL - clean extracted report tables and load the warehouse",
	Long: `The insurance report ETL turns tables extracted from regulator (CGA) and
federation (FTUSA) PDF reports into clean spreadsheets, then loads them into a
star-schema workbook (company, branch and time dimensions plus yearly KPIs).

Key Features:
  - Header reconstruction from multi-row and title-block layouts
  - Idempotent batch cleaning with an append-only processing log
  - Concurrent cleaning with per-file failure isolation
  - Fuzzy reconciliation of company names across source tables
  - Stable surrogate keys and upserts in the warehouse

Example Usage:
  etl process cga                      # Clean every extracted CGA table
  etl process ftusa --dry-run          # Show what would be cleaned
  etl load --year 2023                 # Load 2023 into the warehouse
  etl load --year 2023 --config my.yaml`,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config and builds the
// logger; --verbose forces the debug level.
func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	return cfg, logging.New(os.Stderr, level), nil
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	// --config flag: Allows the user to specify a custom configuration file.
	// A missing file means built-in defaults.
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file (default is config.yaml)",
	)

	// --verbose flag: Enables debug logging.
	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}
