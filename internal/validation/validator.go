// =============================================================================
// Insurance Report ETL - Validation Engine
// =============================================================================
//
// This module checks the data the warehouse loader reads and writes:
//   - Source tables: a usable header, a label column, non-empty content
//   - The star schema: surrogate key uniqueness, rollup sentinels, foreign
//     keys of facts, business key uniqueness
//
// ERROR HANDLING:
//   - Errors are collected, not returned one at a time
//   - Each error names the table, the row and the field involved
//   - Errors are warnings (the load continues) or errors (the load stops
//     before anything is written)
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"

	"github.com/ginjaninja78/insurance-report-etl/internal/match"
	"github.com/ginjaninja78/insurance-report-etl/internal/types"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation error.
type ValidationError struct {
	// Severity is SeverityError (fatal) or SeverityWarning.
	Severity string

	// Table is the source table or sheet the error was found in.
	Table string

	// Row is the 0-based data row, or -1 when the error is not row-specific.
	Row int

	// Field is the column involved.
	Field string

	// Value is the offending value.
	Value string

	// Rule is the rule that was violated.
	Rule string

	// Message is a human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	where := e.Table
	if e.Row >= 0 {
		where = fmt.Sprintf("%s, row %d", e.Table, e.Row)
	}
	if e.Field != "" {
		where = fmt.Sprintf("%s, field '%s'", where, e.Field)
	}
	if e.Rule != "" {
		where = fmt.Sprintf("%s (%s)", where, e.Rule)
	}
	return fmt.Sprintf("[%s] %s: %s (value: '%s')", strings.ToUpper(e.Severity), where, e.Message, e.Value)
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no fatal errors.
	IsValid bool

	// Errors contains all validation errors (including warnings).
	Errors []*ValidationError

	// ErrorCount is the number of fatal errors.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int
}

func newResult() *ValidationResult {
	return &ValidationResult{IsValid: true, Errors: make([]*ValidationError, 0)}
}

func (r *ValidationResult) add(e *ValidationError) {
	r.Errors = append(r.Errors, e)
	if e.Severity == SeverityError {
		r.ErrorCount++
		r.IsValid = false
		return
	}
	r.WarningCount++
}

// Merge appends the errors of other to r.
func (r *ValidationResult) Merge(other *ValidationResult) {
	for _, e := range other.Errors {
		r.add(e)
	}
}

// =============================================================================
// SOURCE TABLE VALIDATION
// =============================================================================

// ValidateSourceTable checks that a cleaned table can feed the loader.
//
// PARAMETERS:
//   - name: The source category, used in messages.
//   - t: The cleaned table.
//
// RETURNS:
//   - Errors for a missing header or a blank label column header position,
//     warnings for an empty table or duplicate column labels.
func ValidateSourceTable(name string, t *types.Table) *ValidationResult {
	result := newResult()

	if t == nil || len(t.Header) < 2 {
		result.add(&ValidationError{
			Severity: SeverityError,
			Table:    name,
			Row:      -1,
			Rule:     "header",
			Message:  "table needs a label column and at least one value column",
		})
		return result
	}

	if len(t.Rows) == 0 {
		result.add(&ValidationError{
			Severity: SeverityWarning,
			Table:    name,
			Row:      -1,
			Rule:     "empty",
			Message:  "table has no data rows",
		})
	}

	seen := make(map[string]bool, len(t.Header))
	for _, h := range t.Header[1:] {
		key := match.Normalize(h)
		if key == "" {
			continue
		}
		if seen[key] {
			result.add(&ValidationError{
				Severity: SeverityWarning,
				Table:    name,
				Row:      -1,
				Field:    h,
				Value:    h,
				Rule:     "duplicate_column",
				Message:  "column label appears more than once, only the first is used",
			})
		}
		seen[key] = true
	}

	return result
}

// =============================================================================
// STAR SCHEMA VALIDATION
// =============================================================================

// Sentinels names the rollup records every valid star schema carries.
type Sentinels struct {
	MarketName      string
	AllBranchesName string
}

// ValidateStar checks the invariants of the dimensional model.
//
// RULES:
//   - IDs are unique within each table
//   - Company 0 exists, is the only market aggregate and has the market name
//   - Other company IDs are >= types.FirstCompanyID
//   - Branch 0 exists and has the all-branches name; other IDs are >= 1
//   - Company and branch names and period years are unique
//   - Every fact references existing dimension records
//   - No two facts share a business key
func ValidateStar(s *types.Star, sentinels Sentinels) *ValidationResult {
	result := newResult()
	fail := func(table string, row int, field, value, rule, msg string) {
		result.add(&ValidationError{
			Severity: SeverityError,
			Table:    table,
			Row:      row,
			Field:    field,
			Value:    value,
			Rule:     rule,
			Message:  msg,
		})
	}

	// =========================================================================
	// COMPANY DIMENSION
	// =========================================================================

	companies := make(map[int]bool, len(s.Companies))
	companyNames := make(map[string]bool, len(s.Companies))
	markets := 0
	for i, c := range s.Companies {
		id := fmt.Sprint(c.ID)
		if companies[c.ID] {
			fail("company", i, "ID", id, "unique_id", "duplicate surrogate id")
		}
		companies[c.ID] = true
		if companyNames[c.Name] {
			fail("company", i, "Name", c.Name, "unique_name", "duplicate company name")
		}
		companyNames[c.Name] = true

		if c.IsMarket {
			markets++
		}
		switch {
		case c.ID == types.MarketCompanyID:
			if !c.IsMarket || c.Name != sentinels.MarketName {
				fail("company", i, "ID", id, "market_sentinel",
					fmt.Sprintf("company 0 must be the market aggregate %q", sentinels.MarketName))
			}
		case c.ID < types.FirstCompanyID:
			fail("company", i, "ID", id, "id_range",
				fmt.Sprintf("company ids below %d are reserved", types.FirstCompanyID))
		}
	}
	if !companies[types.MarketCompanyID] {
		fail("company", -1, "ID", "0", "market_sentinel", "market aggregate company 0 is missing")
	}
	if markets > 1 {
		fail("company", -1, "IsMarket", fmt.Sprint(markets), "market_sentinel", "more than one market aggregate")
	}

	// =========================================================================
	// BRANCH DIMENSION
	// =========================================================================

	branches := make(map[int]bool, len(s.Branches))
	branchNames := make(map[string]bool, len(s.Branches))
	for i, b := range s.Branches {
		id := fmt.Sprint(b.ID)
		if branches[b.ID] {
			fail("branch", i, "ID", id, "unique_id", "duplicate surrogate id")
		}
		branches[b.ID] = true
		if branchNames[b.Name] {
			fail("branch", i, "Name", b.Name, "unique_name", "duplicate branch name")
		}
		branchNames[b.Name] = true

		if b.ID == types.AllBranchesID && b.Name != sentinels.AllBranchesName {
			fail("branch", i, "Name", b.Name, "branch_sentinel",
				fmt.Sprintf("branch 0 must be %q", sentinels.AllBranchesName))
		}
		if b.ID < 0 {
			fail("branch", i, "ID", id, "id_range", "negative branch id")
		}
	}
	if !branches[types.AllBranchesID] {
		fail("branch", -1, "ID", "0", "branch_sentinel", "all-branches rollup 0 is missing")
	}

	// =========================================================================
	// TIME DIMENSION
	// =========================================================================

	periods := make(map[int]bool, len(s.Periods))
	years := make(map[int]bool, len(s.Periods))
	for i, p := range s.Periods {
		if periods[p.ID] {
			fail("time", i, "ID", fmt.Sprint(p.ID), "unique_id", "duplicate surrogate id")
		}
		periods[p.ID] = true
		if years[p.Year] {
			fail("time", i, "Year", fmt.Sprint(p.Year), "unique_year", "year appears twice")
		}
		years[p.Year] = true
	}

	// =========================================================================
	// FACTS
	// =========================================================================

	factIDs := make(map[int]bool, len(s.Facts))
	keys := make(map[types.FactKey]bool, len(s.Facts))
	for i, f := range s.Facts {
		if factIDs[f.ID] {
			fail("fact", i, "ID", fmt.Sprint(f.ID), "unique_id", "duplicate surrogate id")
		}
		factIDs[f.ID] = true
		if keys[f.FactKey] {
			fail("fact", i, "key", fmt.Sprintf("%d/%d/%d", f.TimeID, f.CompanyID, f.BranchID),
				"unique_key", "duplicate (time, company, branch)")
		}
		keys[f.FactKey] = true

		if !periods[f.TimeID] {
			fail("fact", i, "TimeID", fmt.Sprint(f.TimeID), "foreign_key", "unknown period")
		}
		if !companies[f.CompanyID] {
			fail("fact", i, "CompanyID", fmt.Sprint(f.CompanyID), "foreign_key", "unknown company")
		}
		if !branches[f.BranchID] {
			fail("fact", i, "BranchID", fmt.Sprint(f.BranchID), "foreign_key", "unknown branch")
		}
	}

	return result
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
//
// PARAMETERS:
//   - errors: The validation errors to format.
//
// RETURNS:
//   - A formatted string containing all errors.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Validation completed with %d error(s):\n\n", len(errors)))
	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}
