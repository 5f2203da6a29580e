package warehouse

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ginjaninja78/insurance-report-etl/internal/config"
)

// ErrMissingSources is returned when a source category has no file.
var ErrMissingSources = errors.New("missing source tables")

// Sources are the five cleaned tables of one processing year.
type Sources struct {
	Revenue          string
	Indicators       string
	TechnicalResult  string
	ClaimsPaid       string
	OperatingAccount string
}

// Source category names, used in logs and skipped-row counts.
const (
	SourceRevenue          = "revenue"
	SourceIndicators       = "indicators"
	SourceTechnicalResult  = "technical_result"
	SourceClaimsPaid       = "claims_paid"
	SourceOperatingAccount = "operating_account"
)

func (s *Sources) fields() []struct {
	name string
	path *string
} {
	return []struct {
		name string
		path *string
	}{
		{SourceRevenue, &s.Revenue},
		{SourceIndicators, &s.Indicators},
		{SourceTechnicalResult, &s.TechnicalResult},
		{SourceClaimsPaid, &s.ClaimsPaid},
		{SourceOperatingAccount, &s.OperatingAccount},
	}
}

// ResolveSources finds the five source tables of year. Paths already set in
// overrides are kept as given; the others come from the configured patterns,
// where {year} is replaced and globs are expanded. The first existing match
// of the first matching pattern wins.
//
// RETURNS:
//   - The resolved paths.
//   - An error wrapping ErrMissingSources and naming every category left
//     without a file.
func ResolveSources(cfg config.Warehouse, year int, overrides Sources) (Sources, error) {
	resolved := overrides
	patterns := map[string][]string{
		SourceRevenue:          cfg.Sources.Revenue,
		SourceIndicators:       cfg.Sources.Indicators,
		SourceTechnicalResult:  cfg.Sources.TechnicalResult,
		SourceClaimsPaid:       cfg.Sources.ClaimsPaid,
		SourceOperatingAccount: cfg.Sources.OperatingAccount,
	}

	var missing []string
	for _, f := range resolved.fields() {
		if *f.path != "" {
			continue
		}
		path, err := firstMatch(patterns[f.name], year)
		if err != nil {
			return resolved, fmt.Errorf("%s: %w", f.name, err)
		}
		if path == "" {
			missing = append(missing, f.name)
			continue
		}
		*f.path = path
	}

	if len(missing) > 0 {
		return resolved, fmt.Errorf("%w for %d: %s", ErrMissingSources, year, strings.Join(missing, ", "))
	}
	return resolved, nil
}

func firstMatch(patterns []string, year int) (string, error) {
	y := strconv.Itoa(year)
	for _, p := range patterns {
		matches, err := filepath.Glob(strings.ReplaceAll(p, "{year}", y))
		if err != nil {
			return "", fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[0], nil
		}
	}
	return "", nil
}
