// =============================================================================
// Insurance Report ETL - Configuration Module
// =============================================================================
//
// This module loads and validates the single YAML configuration file that
// drives every command. Nothing in the pipeline reads a hard-coded path, sheet
// name or threshold: they are all fields of Config and are passed explicitly
// into each component.
//
// CONFIGURATION SOURCES (later wins):
//   1. Built-in defaults (applyDefaults)
//   2. The YAML file given by --config (default: config.yaml)
//   3. A .env file in the working directory, if present
//   4. ETL_* environment variables (see applyEnvOverrides)
//
// A missing config file is not an error: the defaults describe the standard
// directory layout of the pipeline.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the whole application configuration.
type Config struct {
	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// MaxConcurrency is the number of raw tables cleaned in parallel.
	// Set to 1 for sequential processing.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// CGA holds the directories of the CGA (regulator) table cleaning.
	CGA SourceDirs `yaml:"cga"`

	// FTUSA holds the directories of the FTUSA (federation) table cleaning.
	FTUSA SourceDirs `yaml:"ftusa"`

	// Heuristics holds the tuned constants of the table reconstruction.
	Heuristics Heuristics `yaml:"heuristics"`

	// Warehouse holds the star-schema loader settings.
	Warehouse Warehouse `yaml:"warehouse"`
}

// SourceDirs describes where one report family is read from and written to.
type SourceDirs struct {
	// InputDir is walked recursively for raw extracted .xlsx tables.
	InputDir string `yaml:"input_dir"`

	// OutputDir receives one cleaned .xlsx per raw table.
	OutputDir string `yaml:"output_dir"`

	// LedgerFile is the append-only processing log.
	// Default: <output_dir>/log_cleaning_<family>.txt
	LedgerFile string `yaml:"ledger_file"`
}

// =============================================================================
// HEURISTICS
// =============================================================================

// Heuristics are the empirically tuned constants of the table reconstruction.
// They were tuned on the 2019-2023 report layouts and may need retuning for
// a new layout.
type Heuristics struct {
	// MaxWordsPerRow: a row with more whitespace-separated words than this is
	// prose, and the table is truncated before it.
	// Default: 15
	MaxWordsPerRow int `yaml:"max_words_per_row"`

	// MaxHeaderRows is the maximum number of rows merged into a CGA header.
	// Default: 3
	MaxHeaderRows int `yaml:"max_header_rows"`

	// CompanySampleRows is how many first-column values are inspected to decide
	// whether an FTUSA table is indexed by company.
	// Default: 50
	CompanySampleRows int `yaml:"company_sample_rows"`

	// KnownCompanyTokens are first-column values that identify a
	// company-indexed FTUSA table.
	// Default: [STAR, MAGHREBIA, GAT]
	KnownCompanyTokens []string `yaml:"known_company_tokens"`

	// SimilarityCutoff is the minimum name similarity (0..1) for two company
	// labels to be reconciled.
	// Default: 0.8
	SimilarityCutoff float64 `yaml:"similarity_cutoff"`

	// MaxFilenameLength caps synthesized output names (without extension).
	// Default: 100
	MaxFilenameLength int `yaml:"max_filename_length"`
}

// =============================================================================
// WAREHOUSE
// =============================================================================

// Warehouse configures the dimensional loader.
type Warehouse struct {
	// WorkbookPath is the persisted star-schema workbook.
	// Default: "./entrepot/entrepot_assurance.xlsx"
	WorkbookPath string `yaml:"workbook_path"`

	// RunLedgerPath is the workbook listing (year, indicators file) loads.
	// Default: "./entrepot/historique_chargements.xlsx"
	RunLedgerPath string `yaml:"run_ledger_path"`

	// IndicatorScale multiplies monetary values of the indicators table,
	// which the regulator reports in millions of dinars.
	// Default: 1000000
	IndicatorScale float64 `yaml:"indicator_scale"`

	// Sheets names the four sheets of the workbook.
	Sheets SheetNames `yaml:"sheets"`

	// MarketName is the display name of the whole-market company (ID 0).
	// Default: "Marché"
	MarketName string `yaml:"market_name"`

	// AllBranchesName is the display name of the all-branches rollup (ID 0).
	// Default: "Toutes_Branches"
	AllBranchesName string `yaml:"all_branches_name"`

	// MarketTokens identify rows that stand for the whole market
	// ("Total", "Ensemble du marché", ...). Compared after normalization.
	MarketTokens []string `yaml:"market_tokens"`

	// TotalTokens identify total columns of by-branch tables.
	TotalTokens []string `yaml:"total_tokens"`

	// LifeBranchKeywords mark a branch as life insurance.
	LifeBranchKeywords []string `yaml:"life_branch_keywords"`

	// NonLifeMarkers override LifeBranchKeywords ("non vie").
	NonLifeMarkers []string `yaml:"non_life_markers"`

	// CompanyGroups maps a company display name to its parent group.
	CompanyGroups map[string]string `yaml:"company_groups"`

	// Columns lists the header/row keywords used to locate each measure.
	Columns MeasureKeywords `yaml:"columns"`

	// Sources lists, for each source category, candidate paths with a {year}
	// placeholder. Globs are allowed. The first existing match wins.
	Sources SourcePatterns `yaml:"sources"`
}

// SheetNames names the persisted sheets.
type SheetNames struct {
	Company string `yaml:"company"`
	Branch  string `yaml:"branch"`
	Time    string `yaml:"time"`
	Fact    string `yaml:"fact"`
}

// MeasureKeywords lists, per measure, the keywords that identify its column
// (indicators table) or row (operating account). Keywords are compared after
// accent/case/punctuation normalization; any keyword matching is enough.
type MeasureKeywords struct {
	NetPremiums         []string `yaml:"net_premiums"`
	CededPremiums       []string `yaml:"ceded_premiums"`
	TechnicalProvisions []string `yaml:"technical_provisions"`
	NetResult           []string `yaml:"net_result"`
	EquityCapital       []string `yaml:"equity_capital"`
	EarnedPremiums      []string `yaml:"earned_premiums"`
	ClaimsCharges       []string `yaml:"claims_charges"`
	AcquisitionCharges  []string `yaml:"acquisition_charges"`
}

// SourcePatterns lists candidate locations of the five yearly source tables.
type SourcePatterns struct {
	Revenue          []string `yaml:"revenue"`
	Indicators       []string `yaml:"indicators"`
	TechnicalResult  []string `yaml:"technical_result"`
	ClaimsPaid       []string `yaml:"claims_paid"`
	OperatingAccount []string `yaml:"operating_account"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Load reads the configuration file, applies defaults and environment
// overrides, and validates the result.
//
// PARAMETERS:
//   - configPath: The path to the YAML configuration file. A missing file
//     yields the default configuration.
//
// RETURNS:
//   - A pointer to the Config struct.
//   - An error if the file cannot be parsed or the result is invalid.
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// A missing .env is the normal case.
	_ = godotenv.Load()

	ApplyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyDefaults sets default values for any unset configuration options.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 4
	}

	applyDirDefaults(&cfg.CGA, "extracted_tables_CGA", "fully_cleaned_tables_CGA", "log_cleaning_CGA.txt")
	applyDirDefaults(&cfg.FTUSA, "extracted_tables_FTUSA", "fully_cleaned_tables_FTUSA", "log_cleaning_FTUSA.txt")

	h := &cfg.Heuristics
	if h.MaxWordsPerRow == 0 {
		h.MaxWordsPerRow = 15
	}
	if h.MaxHeaderRows == 0 {
		h.MaxHeaderRows = 3
	}
	if h.CompanySampleRows == 0 {
		h.CompanySampleRows = 50
	}
	if len(h.KnownCompanyTokens) == 0 {
		h.KnownCompanyTokens = []string{"STAR", "MAGHREBIA", "GAT"}
	}
	if h.SimilarityCutoff == 0 {
		h.SimilarityCutoff = 0.8
	}
	if h.MaxFilenameLength == 0 {
		h.MaxFilenameLength = 100
	}

	w := &cfg.Warehouse
	if w.WorkbookPath == "" {
		w.WorkbookPath = filepath.Join("entrepot", "entrepot_assurance.xlsx")
	}
	if w.RunLedgerPath == "" {
		w.RunLedgerPath = filepath.Join("entrepot", "historique_chargements.xlsx")
	}
	if w.IndicatorScale == 0 {
		w.IndicatorScale = 1_000_000
	}
	if w.Sheets.Company == "" {
		w.Sheets.Company = "Dim_Compagnie"
	}
	if w.Sheets.Branch == "" {
		w.Sheets.Branch = "Dim_Branche"
	}
	if w.Sheets.Time == "" {
		w.Sheets.Time = "Dim_Temps"
	}
	if w.Sheets.Fact == "" {
		w.Sheets.Fact = "Fait_Indicateurs"
	}
	if w.MarketName == "" {
		w.MarketName = "Marché"
	}
	if w.AllBranchesName == "" {
		w.AllBranchesName = "Toutes_Branches"
	}
	if len(w.MarketTokens) == 0 {
		w.MarketTokens = []string{"total", "total marche", "total secteur", "ensemble", "ensemble du marche", "marche", "secteur"}
	}
	if len(w.TotalTokens) == 0 {
		w.TotalTokens = []string{"total", "ensemble", "total general"}
	}
	if len(w.LifeBranchKeywords) == 0 {
		w.LifeBranchKeywords = []string{"vie", "capitalisation", "deces"}
	}
	if len(w.NonLifeMarkers) == 0 {
		w.NonLifeMarkers = []string{"non vie", "nonvie"}
	}
	if w.CompanyGroups == nil {
		w.CompanyGroups = map[string]string{}
	}

	c := &w.Columns
	defaultKeywords(&c.NetPremiums, "primes emises", "chiffre d affaires", "primes nettes")
	defaultKeywords(&c.CededPremiums, "primes cedees", "cessions")
	defaultKeywords(&c.TechnicalProvisions, "provisions techniques")
	defaultKeywords(&c.NetResult, "resultat net")
	defaultKeywords(&c.EquityCapital, "fonds propres", "capitaux propres")
	defaultKeywords(&c.EarnedPremiums, "primes acquises")
	defaultKeywords(&c.ClaimsCharges, "charges de sinistres", "charge des sinistres", "sinistres")
	defaultKeywords(&c.AcquisitionCharges, "frais d acquisition", "frais de gestion", "charges d acquisition", "charges de gestion")

	s := &w.Sources
	defaultKeywords(&s.Revenue,
		filepath.Join("fully_cleaned_tables_FTUSA", "CHIFFRES D*AFFAIRES PAR BRANCHE & PAR ENTREPRISE*{year}*.xlsx"))
	defaultKeywords(&s.Indicators,
		filepath.Join("fully_cleaned_tables_CGA", "PRINCIPAUX_INDICATEURS*PAR_COMPAGNIE*.xlsx"))
	defaultKeywords(&s.TechnicalResult,
		filepath.Join("fully_cleaned_tables_FTUSA", "RESULTAT TECHNIQUE PAR BRANCHE & PAR ENTREPRISE*{year}*.xlsx"))
	defaultKeywords(&s.ClaimsPaid,
		filepath.Join("fully_cleaned_tables_FTUSA", "SINISTRES REGLES PAR BRANCHE & PAR ENTREPRISE*{year}*.xlsx"))
	defaultKeywords(&s.OperatingAccount,
		filepath.Join("fully_cleaned_tables_CGA", "COMPTE_D*EXPLOITATION*{year}*.xlsx"))
}

// applyDirDefaults fills the directories of one report family.
func applyDirDefaults(d *SourceDirs, input, output, ledger string) {
	if d.InputDir == "" {
		d.InputDir = input
	}
	if d.OutputDir == "" {
		d.OutputDir = output
	}
	if d.LedgerFile == "" {
		d.LedgerFile = filepath.Join(d.OutputDir, ledger)
	}
}

func defaultKeywords(dst *[]string, values ...string) {
	if len(*dst) == 0 {
		*dst = values
	}
}

// applyEnvOverrides lets deployment environments override selected fields.
//
// SUPPORTED VARIABLES:
//   - ETL_LOG_LEVEL
//   - ETL_MAX_CONCURRENCY
//   - ETL_WORKBOOK_PATH
//   - ETL_RUN_LEDGER_PATH
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("ETL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ETL_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ETL_MAX_CONCURRENCY: %w", err)
		}
		cfg.MaxConcurrency = n
	}
	if v := os.Getenv("ETL_WORKBOOK_PATH"); v != "" {
		cfg.Warehouse.WorkbookPath = v
	}
	if v := os.Getenv("ETL_RUN_LEDGER_PATH"); v != "" {
		cfg.Warehouse.RunLedgerPath = v
	}
	return nil
}

// Validate checks value ranges. It does not touch the filesystem.
func Validate(cfg *Config) error {
	if cfg.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", cfg.MaxConcurrency)
	}
	h := cfg.Heuristics
	if h.SimilarityCutoff <= 0 || h.SimilarityCutoff > 1 {
		return fmt.Errorf("similarity_cutoff must be in (0, 1], got %v", h.SimilarityCutoff)
	}
	if h.MaxHeaderRows < 1 {
		return fmt.Errorf("max_header_rows must be at least 1, got %d", h.MaxHeaderRows)
	}
	if h.MaxWordsPerRow < 1 {
		return fmt.Errorf("max_words_per_row must be at least 1, got %d", h.MaxWordsPerRow)
	}
	if cfg.Warehouse.IndicatorScale <= 0 {
		return fmt.Errorf("indicator_scale must be positive, got %v", cfg.Warehouse.IndicatorScale)
	}
	sheets := map[string]bool{}
	for _, name := range []string{cfg.Warehouse.Sheets.Company, cfg.Warehouse.Sheets.Branch, cfg.Warehouse.Sheets.Time, cfg.Warehouse.Sheets.Fact} {
		if sheets[name] {
			return fmt.Errorf("sheet name %q used twice", name)
		}
		sheets[name] = true
	}
	return nil
}

// EnsureDirectories creates the directories a cleaning run writes into.
func EnsureDirectories(d SourceDirs) error {
	dirs := []string{d.InputDir, d.OutputDir, filepath.Dir(d.LedgerFile)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
