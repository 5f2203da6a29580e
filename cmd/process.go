// =============================================================================
// Insurance Report ETL - Process Command
// =============================================================================
//
// This file defines the 'process' command, which cleans every extracted raw
// table of one report family.
//
// COMMAND USAGE:
//   etl process cga [flags]      (alias: etl process-all-cga)
//   etl process ftusa [flags]    (alias: etl process-all-ftusa)
//
// FLAGS:
//   --dry-run     : Clean without writing output files or the processing log
//   --input       : Override the input directory of the family
//   --output      : Override the output directory of the family
//
// PROCESSING PIPELINE:
//   1. Load configuration
//   2. Discover .xlsx files in the input directory (recursively)
//   3. Open the processing log; already processed files are skipped
//   4. Clean the remaining files concurrently (cleaner.RunBatch)
//   5. Record outcomes in the processing log
//   6. Print the summary
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/insurance-report-etl/internal/cleaner"
	"github.com/ginjaninja78/insurance-report-etl/internal/config"
	"github.com/ginjaninja78/insurance-report-etl/internal/ledger"
	"github.com/ginjaninja78/insurance-report-etl/internal/logging"
	"github.com/ginjaninja78/insurance-report-etl/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// dryRun cleans without writing anything.
var dryRun bool

// inputDir overrides the configured input directory.
var inputDir string

// outputDir overrides the configured output directory.
var outputDir string

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

// processCmd represents the 'process' command.
var processCmd = &cobra.Command{
	Use:       "process [cga|ftusa]",
	Short:     "Clean extracted report tables",
	ValidArgs: []string{"cga", "ftusa"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Long: `The process command walks the input directory of one report family, cleans
every extracted table not already in the processing log and writes one
cleaned spreadsheet per table to the output directory.

Cleaning is done concurrently (max_concurrency). A file that fails is logged
as FAILED and does not stop the others. A file is cleaned again only when it
was modified after its last log entry.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		variant, err := cleaner.ParseVariant(args[0])
		if err != nil {
			return err
		}
		return runProcess(cmd, variant)
	},
}

// processAllCGACmd and processAllFTUSACmd keep the historical command names.
var processAllCGACmd = &cobra.Command{
	Use:   "process-all-cga",
	Short: "Clean every extracted CGA table (same as 'process cga')",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd, cleaner.VariantCGA)
	},
}

var processAllFTUSACmd = &cobra.Command{
	Use:   "process-all-ftusa",
	Short: "Clean every extracted FTUSA table (same as 'process ftusa')",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd, cleaner.VariantFTUSA)
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	for _, c := range []*cobra.Command{processCmd, processAllCGACmd, processAllFTUSACmd} {
		rootCmd.AddCommand(c)

		c.Flags().BoolVar(&dryRun, "dry-run", false,
			"Clean without writing output files or the processing log")
		c.Flags().StringVar(&inputDir, "input", "",
			"Input directory (overrides the configuration)")
		c.Flags().StringVar(&outputDir, "output", "",
			"Output directory (overrides the configuration)")
	}
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// runProcess cleans every pending table of one report family.
func runProcess(cmd *cobra.Command, variant cleaner.Variant) error {
	out := cmd.OutOrStdout()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger = logging.With(logger, "family", string(variant))

	dirs := familyDirs(cfg, variant)
	fmt.Fprintf(out, "=== Cleaning %s tables ===\n", variant)
	fmt.Fprintf(out, "Input:  %s\nOutput: %s\n", dirs.InputDir, dirs.OutputDir)

	// =========================================================================
	// STEP 2: DISCOVER INPUT FILES
	// =========================================================================

	fm := utils.NewFileManager(dirs.InputDir, dirs.OutputDir)
	if !dryRun {
		if err := config.EnsureDirectories(dirs); err != nil {
			return err
		}
	}
	files, err := fm.DiscoverInputFilesRecursive(".xlsx")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(out, "Input directory %s does not exist.\n", dirs.InputDir)
			return nil
		}
		return fmt.Errorf("failed to discover input files: %w", err)
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No .xlsx files found in the input directory.")
		return nil
	}
	fmt.Fprintf(out, "Found %d file(s)\n", len(files))

	// =========================================================================
	// STEP 3: OPEN THE PROCESSING LOG
	// =========================================================================

	var led cleaner.Ledger
	if dryRun {
		// Consult an existing log without creating one.
		if utils.FileExists(dirs.LedgerFile) {
			l, err := ledger.Open(dirs.LedgerFile)
			if err != nil {
				return err
			}
			led = l
		}
	} else {
		l, err := ledger.Open(dirs.LedgerFile)
		if err != nil {
			return err
		}
		led = l
	}

	// =========================================================================
	// STEP 4-5: CLEAN AND RECORD
	// =========================================================================

	opts := cleaner.OptionsFromConfig(cfg, variant)
	opts.OutputDir = dirs.OutputDir
	opts.DryRun = dryRun
	c := cleaner.New(variant, opts, logger)

	summary, batchErr := cleaner.RunBatch(cmd.Context(), files, c, led, cleaner.BatchOptions{
		MaxConcurrency: cfg.MaxConcurrency,
		SummaryDir:     dirs.OutputDir,
	})

	// =========================================================================
	// STEP 6: PRINT SUMMARY
	// =========================================================================

	for _, r := range summary.Results {
		if r.Success {
			fmt.Fprintf(out, "  ✓ %s -> %s\n", filepath.Base(r.FilePath), r.OutputFile)
		} else {
			fmt.Fprintf(out, "  ✗ %s: %v\n", filepath.Base(r.FilePath), r.Error)
		}
	}

	fmt.Fprintln(out, "\n=== Processing Complete ===")
	fmt.Fprintf(out, "Total files:     %d\n", summary.Total)
	fmt.Fprintf(out, "Cleaned:         %d\n", summary.Processed)
	fmt.Fprintf(out, "Skipped:         %d\n", summary.Skipped)
	fmt.Fprintf(out, "Errors:          %d\n", summary.Failed)
	fmt.Fprintf(out, "Time elapsed:    %s\n", summary.End.Sub(summary.Start))
	if summary.SummaryLog != "" {
		fmt.Fprintf(out, "Summary log:     %s\n", summary.SummaryLog)
	}

	return batchErr
}

// familyDirs returns the directories of one family with the command-line
// overrides applied.
func familyDirs(cfg *config.Config, variant cleaner.Variant) config.SourceDirs {
	dirs := cfg.CGA
	if variant == cleaner.VariantFTUSA {
		dirs = cfg.FTUSA
	}
	if inputDir != "" {
		dirs.InputDir = inputDir
	}
	if outputDir != "" {
		ledgerName := filepath.Base(dirs.LedgerFile)
		if filepath.Dir(dirs.LedgerFile) == filepath.Clean(dirs.OutputDir) {
			dirs.LedgerFile = filepath.Join(outputDir, ledgerName)
		}
		dirs.OutputDir = outputDir
	}
	return dirs
}
