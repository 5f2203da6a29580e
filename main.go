// =============================================================================
// Insurance Report ETL - Main Entry Point
// =============================================================================
//
// This is the main entry point for the insurance report ETL CLI. It
// initializes the Cobra CLI framework and delegates command execution to the
// cmd package.
//
// USAGE:
//   etl process cga        - Clean every extracted CGA table
//   etl process ftusa      - Clean every extracted FTUSA table
//   etl load --year 2023   - Load one year into the star-schema workbook
//   etl version            - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Table reconstruction, ledgers and the warehouse loader
//   - pkg/           : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/insurance-report-etl/cmd"
)

// main is the entry point of the application.
func main() {
	cmd.Execute()
}
