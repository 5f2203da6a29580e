// =============================================================================
// Insurance Report ETL - Table Cleaner
// =============================================================================
//
// This module contains the core cleaning logic. It turns one raw extracted
// table into one cleaned table file.
//
// CLEANING PIPELINE:
//   1. Read the raw grid from the extracted spreadsheet
//   2. Normalize the grid (annex rows, narrative truncation)
//   3. Synthesize the header (CGA or FTUSA layout)
//   4. Apply the variant rules (FTUSA: first column rename, integer coercion)
//   5. Reserve the output name (name.xlsx, name_1.xlsx, ...)
//   6. Write the cleaned table atomically
//
// VARIANTS:
//   CGA   - regulator tables: title row, unit row, multi-row headers.
//           Normalized with both filters.
//   FTUSA - federation tables: title block, blank separator, one header row.
//           Only annex rows below the header are dropped: the title block
//           is prose and often names the annex itself.
//
// CONCURRENCY:
//   Run only reads its input and writes its own output file. Output name
//   reservation goes through a shared NameReserver, so one Cleaner may be
//   used by many goroutines.
//
// =============================================================================

package cleaner

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ginjaninja78/insurance-report-etl/internal/config"
	"github.com/ginjaninja78/insurance-report-etl/internal/grid"
	"github.com/ginjaninja78/insurance-report-etl/internal/header"
	"github.com/ginjaninja78/insurance-report-etl/internal/logging"
	"github.com/ginjaninja78/insurance-report-etl/internal/types"
	"github.com/ginjaninja78/insurance-report-etl/internal/xlsxparser"
	"github.com/ginjaninja78/insurance-report-etl/internal/xlsxwriter"
	"github.com/ginjaninja78/insurance-report-etl/pkg/utils"
)

// =============================================================================
// VARIANTS
// =============================================================================

// Variant selects the source-specific cleaning rules.
type Variant string

const (
	VariantCGA   Variant = "CGA"
	VariantFTUSA Variant = "FTUSA"
)

// ParseVariant maps a command-line name ("cga", "FTUSA") to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(VariantCGA):
		return VariantCGA, nil
	case string(VariantFTUSA):
		return VariantFTUSA, nil
	default:
		return "", fmt.Errorf("unknown report family %q (want cga or ftusa)", s)
	}
}

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of cleaning a single file.
type Result struct {
	// FilePath is the path to the input file that was processed.
	FilePath string

	// OutputFile is the name (not path) of the cleaned file. Empty on failure.
	OutputFile string

	// OutputPath is the full path of the cleaned file. Empty on failure and
	// in dry-run mode.
	OutputPath string

	// Success indicates whether the processing was successful.
	Success bool

	// Error contains the error if processing failed.
	Error error

	// Stats contains processing statistics.
	Stats Stats
}

// Stats contains statistics about one cleaned table.
type Stats struct {
	// RawRows is the number of rows of the extracted grid.
	RawRows int

	// Rows is the number of data rows written.
	Rows int

	// Columns is the header width.
	Columns int

	// HeaderRows is the number of rows merged into the header (CGA).
	HeaderRows int

	// SeparatorFound is false when the FTUSA row-0 fallback was used.
	SeparatorFound bool

	// ProcessingTime is the time taken to process the file.
	ProcessingTime time.Duration
}

// =============================================================================
// CLEANER STRUCTURE
// =============================================================================

// Options configures a Cleaner.
type Options struct {
	// OutputDir receives the cleaned tables.
	OutputDir string

	// DryRun cleans without writing anything.
	DryRun bool

	// MaxWordsPerRow, MaxHeaderRows and MaxNameLength tune the structure
	// heuristics.
	MaxWordsPerRow int
	MaxHeaderRows  int
	MaxNameLength  int

	// CompanySampleRows and KnownCompanyTokens drive the FTUSA first column
	// rename.
	CompanySampleRows  int
	KnownCompanyTokens []string
}

// OptionsFromConfig builds the options of one report family.
func OptionsFromConfig(cfg *config.Config, v Variant) Options {
	dirs := cfg.CGA
	if v == VariantFTUSA {
		dirs = cfg.FTUSA
	}
	h := cfg.Heuristics
	return Options{
		OutputDir:          dirs.OutputDir,
		MaxWordsPerRow:     h.MaxWordsPerRow,
		MaxHeaderRows:      h.MaxHeaderRows,
		MaxNameLength:      h.MaxFilenameLength,
		CompanySampleRows:  h.CompanySampleRows,
		KnownCompanyTokens: h.KnownCompanyTokens,
	}
}

// Cleaner cleans raw tables of one report family.
type Cleaner struct {
	variant Variant
	opts    Options
	names   *utils.NameReserver
	logger  logging.Logger
}

// New creates a Cleaner. A nil logger discards messages.
func New(variant Variant, opts Options, logger logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Cleaner{
		variant: variant,
		opts:    opts,
		names:   utils.NewNameReserver(),
		logger:  logger,
	}
}

// Variant returns the report family handled by c.
func (c *Cleaner) Variant() Variant { return c.variant }

// Options returns the options c was built with.
func (c *Cleaner) Options() Options { return c.opts }

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the cleaning pipeline for one file.
//
// PARAMETERS:
//   - path: The extracted raw table.
//
// RETURNS:
//   - A Result struct containing the outcome of the processing. Run never
//     panics on bad input: every failure is reported through Result.Error.
func (c *Cleaner) Run(path string) Result {
	startTime := time.Now()
	result := Result{FilePath: path}

	c.logger.Info("Processing file: %s", path)

	// =========================================================================
	// STEP 1: READ RAW GRID
	// =========================================================================

	raw, err := xlsxparser.ReadGrid(path)
	if err != nil {
		result.Error = fmt.Errorf("failed to read spreadsheet: %w", err)
		return result
	}
	c.logger.Debug("Read %d raw rows from %s", len(raw), path)

	// =========================================================================
	// STEP 2-4: NORMALIZE, SYNTHESIZE HEADER, APPLY VARIANT RULES
	// =========================================================================

	table, stats := c.Clean(raw, filepath.Base(path))
	result.Stats = stats
	if c.variant == VariantFTUSA && !stats.SeparatorFound {
		c.logger.Warn("No blank separator row in %s, using first row as separator", filepath.Base(path))
	}

	// =========================================================================
	// STEP 5: CHOOSE OUTPUT NAME
	// =========================================================================

	// Inputs may share a title (one table across report years).
	name := c.names.Reserve(c.opts.OutputDir, table.Name)
	result.OutputFile = name

	if c.opts.DryRun {
		c.logger.Info("[dry-run] %s -> %s (%d rows, %d columns)", filepath.Base(path), name, stats.Rows, stats.Columns)
		result.Success = true
		result.Stats.ProcessingTime = time.Since(startTime)
		return result
	}

	// =========================================================================
	// STEP 6: WRITE OUTPUT FILE
	// =========================================================================

	outputPath := filepath.Join(c.opts.OutputDir, name)
	if err := xlsxwriter.WriteTable(outputPath, table); err != nil {
		c.names.Release(c.opts.OutputDir, name)
		result.OutputFile = ""
		result.Error = fmt.Errorf("failed to write output: %w", err)
		return result
	}

	result.OutputPath = outputPath
	result.Success = true
	result.Stats.ProcessingTime = time.Since(startTime)
	c.logger.Info("Saved %s as %s", filepath.Base(path), name)
	return result
}

// Clean turns a raw grid into a cleaned table without touching the
// filesystem. sourceName is the input file name, used for the fallback
// output name. The table's Name is the proposed output name before any
// collision avoidance.
func (c *Cleaner) Clean(raw types.Grid, sourceName string) (*types.Table, Stats) {
	stats := Stats{RawRows: len(raw)}
	hopts := header.Options{MaxHeaderRows: c.opts.MaxHeaderRows, MaxNameLength: c.opts.MaxNameLength}

	var table *types.Table
	switch c.variant {
	case VariantFTUSA:
		// Annex rows are dropped below the header only; titles often read
		// "ANNEXE N°...".
		h := header.SynthesizeFTUSA(raw, hopts)
		body := grid.DropAnnexRows(raw[min(h.DataStart, len(raw)):])
		table = &types.Table{
			Header: h.Header,
			Rows:   header.DataRows(body, 0, len(h.Header)),
			Name:   h.FileName,
		}
		RenameFirstColumn(table, c.opts.KnownCompanyTokens, c.opts.CompanySampleRows)
		CoerceIntegers(table)
		stats.HeaderRows = 1
		if h.Empty {
			stats.HeaderRows = 0
		}
		stats.SeparatorFound = h.SeparatorFound

	default:
		g := grid.Normalize(raw, grid.Options{MaxWordsPerRow: c.opts.MaxWordsPerRow})
		h := header.SynthesizeCGA(g, hopts)
		table = &types.Table{
			Header: h.Header,
			Rows:   header.DataRows(g, h.DataStart, len(h.Header)),
			Name:   cgaOutputName(h.ProposedName, sourceName, c.opts.MaxNameLength),
		}
		stats.HeaderRows = h.HeaderRows
	}

	stats.Rows = len(table.Rows)
	stats.Columns = len(table.Header)
	return table, stats
}

// cgaOutputName is the proposed title when one was found, else the sanitized
// input name.
func cgaOutputName(proposed, sourceName string, maxLen int) string {
	if proposed != "" {
		return proposed + ".xlsx"
	}
	stem := strings.TrimSuffix(sourceName, filepath.Ext(sourceName))
	if s := header.SanitizeFileName(stem, maxLen); s != "" {
		return s + ".xlsx"
	}
	return header.DefaultTableName + ".xlsx"
}
