package types

import "github.com/shopspring/decimal"

// =============================================================================
// STAR SCHEMA
// =============================================================================

// Surrogate key conventions of the warehouse.
const (
	// MarketCompanyID is the whole-market rollup company.
	MarketCompanyID = 0

	// AllBranchesID is the all-branches rollup branch.
	AllBranchesID = 0

	// FirstCompanyID is the lowest ID of a real company.
	FirstCompanyID = 100
)

// Insurance types of a branch.
const (
	InsuranceLife    = "Vie"
	InsuranceNonLife = "Non-Vie"
)

// Company is a record of the company dimension.
type Company struct {
	ID       int
	Name     string
	Group    string
	IsMarket bool
}

// Branch is a record of the branch dimension.
type Branch struct {
	ID   int
	Name string

	// InsuranceType is InsuranceLife, InsuranceNonLife or "" (rollup).
	InsuranceType string
}

// Period is a record of the time dimension.
type Period struct {
	ID   int
	Year int
}

// Measure indexes the measures of a fact, in fact-sheet column order.
type Measure int

const (
	NetPremiums Measure = iota
	TechnicalResult
	ClaimsPaid
	CededPremiums
	TechnicalProvisions
	NetResult
	EquityCapital
	EarnedPremiums
	ClaimsCharges
	AcquisitionCharges

	NumMeasures
)

// MeasureColumns are the fact-sheet column names of the measures.
var MeasureColumns = [NumMeasures]string{
	"Primes_Nettes",
	"Resultat_Technique",
	"Sinistres_Payes",
	"Primes_Cedees",
	"Provisions_Techniques",
	"Resultat_Net",
	"Fonds_Propres",
	"Primes_Acquises",
	"Charges_Sinistres",
	"Charges_Acquisition_Gestion",
}

func (m Measure) String() string {
	if m < 0 || m >= NumMeasures {
		return "unknown"
	}
	return MeasureColumns[m]
}

// Measures holds one value per Measure. The zero value is all zeros.
type Measures [NumMeasures]decimal.Decimal

// FactKey is the business key of a fact.
type FactKey struct {
	TimeID    int
	CompanyID int
	BranchID  int
}

// Fact is a record of the fact table.
type Fact struct {
	ID int
	FactKey
	Values Measures
}

// Star is the whole dimensional model held in memory during a load.
type Star struct {
	Companies []Company
	Branches  []Branch
	Periods   []Period
	Facts     []Fact
}
