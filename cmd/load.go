// =============================================================================
// Insurance Report ETL - Load Command
// =============================================================================
//
// This file defines the 'load' command, which loads one processing year of
// cleaned tables into the star-schema workbook.
//
// COMMAND USAGE:
//   etl load --year 2023 [flags]
//
// FLAGS:
//   --year               : Processing year (required)
//   --revenue            : Revenue by branch table (overrides the pattern)
//   --indicators         : Company indicators table
//   --technical-result   : Technical result by branch table
//   --claims-paid        : Claims paid by branch table
//   --operating-account  : Market operating account table
//   --workbook           : Star-schema workbook (overrides the configuration)
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/insurance-report-etl/internal/logging"
	"github.com/ginjaninja78/insurance-report-etl/internal/warehouse"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	loadYear     int
	loadSources  warehouse.Sources
	loadWorkbook string
)

// =============================================================================
// LOAD COMMAND DEFINITION
// =============================================================================

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load one year of cleaned tables into the warehouse",
	Long: `The load command reads the five cleaned tables of one year (revenue,
indicators, technical result, claims paid and operating account), reconciles
company names across them and appends the year's facts to the star-schema
workbook.

Tables are located through the warehouse.sources patterns of the
configuration; each can be given explicitly with its own flag. A year already
loaded from the same indicators file is skipped.`,
	Args: cobra.NoArgs,
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	f := loadCmd.Flags()
	f.IntVar(&loadYear, "year", 0, "Processing year (required)")
	f.StringVar(&loadSources.Revenue, "revenue", "", "Revenue by branch table")
	f.StringVar(&loadSources.Indicators, "indicators", "", "Company indicators table")
	f.StringVar(&loadSources.TechnicalResult, "technical-result", "", "Technical result by branch table")
	f.StringVar(&loadSources.ClaimsPaid, "claims-paid", "", "Claims paid by branch table")
	f.StringVar(&loadSources.OperatingAccount, "operating-account", "", "Market operating account table")
	f.StringVar(&loadWorkbook, "workbook", "", "Star-schema workbook (overrides the configuration)")
	_ = loadCmd.MarkFlagRequired("year")
}

// runLoad resolves the sources of the year and runs the loader.
func runLoad(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if loadYear < 1900 || loadYear > 2999 {
		return fmt.Errorf("invalid year %d", loadYear)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if loadWorkbook != "" {
		cfg.Warehouse.WorkbookPath = loadWorkbook
	}
	logger = logging.With(logger, "year", fmt.Sprint(loadYear))

	src, err := warehouse.ResolveSources(cfg.Warehouse, loadYear, loadSources)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "=== Loading %d into %s ===\n", loadYear, cfg.Warehouse.WorkbookPath)

	report, err := warehouse.NewLoader(cfg, logger).Run(cmd.Context(), loadYear, src)
	if errors.Is(err, warehouse.ErrAlreadyLoaded) {
		fmt.Fprintf(out, "Year %d is already loaded from %s; nothing to do.\n", loadYear, src.Indicators)
		return nil
	}
	if err != nil {
		if len(report.States) > 0 {
			fmt.Fprintf(out, "Stopped after %s\n", report.States[len(report.States)-1])
		}
		return err
	}

	fmt.Fprintln(out, "\n=== Load Complete ===")
	fmt.Fprintf(out, "Period ID:         %d\n", report.TimeID)
	fmt.Fprintf(out, "Companies added:   %d\n", report.CompaniesAdded)
	fmt.Fprintf(out, "Branches added:    %d\n", report.BranchesAdded)
	fmt.Fprintf(out, "Facts appended:    %d\n", report.FactsAppended)
	fmt.Fprintf(out, "Facts updated:     %d\n", report.FactsUpdated)
	if report.FactsReplaced > 0 {
		fmt.Fprintf(out, "Facts replaced:    %d\n", report.FactsReplaced)
	}
	fmt.Fprintf(out, "Skipped rows:      %d\n", report.Skipped())
	if report.Skipped() > 0 {
		names := make([]string, 0, len(report.SkippedRows))
		for name := range report.SkippedRows {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%d", name, report.SkippedRows[name]))
		}
		fmt.Fprintf(out, "  (%s)\n", strings.Join(parts, ", "))
	}
	return nil
}
