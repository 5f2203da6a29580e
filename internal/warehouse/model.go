package warehouse

import (
	"errors"

	"github.com/ginjaninja78/insurance-report-etl/internal/match"
	"github.com/ginjaninja78/insurance-report-etl/internal/types"
)

// ErrDuplicateFact is returned by FactBuilder.Append for a business key that
// already has a fact.
var ErrDuplicateFact = errors.New("fact already exists for this key")

// =============================================================================
// DIMENSIONS
// =============================================================================

// Dimensions holds the three dimension tables of one load with lookup
// indexes. Records are only ever added; IDs are never reused.
type Dimensions struct {
	Companies []types.Company
	Branches  []types.Branch
	Periods   []types.Period

	companyByKey map[string]int
	branchByKey  map[string]int
	periodByYear map[int]int

	nextCompany int
	nextBranch  int
	nextPeriod  int
}

// NewDimensions indexes the persisted dimensions and makes sure the two
// rollup records exist with their fixed names.
func NewDimensions(star *types.Star, marketName, allBranchesName string) *Dimensions {
	d := &Dimensions{
		companyByKey: make(map[string]int),
		branchByKey:  make(map[string]int),
		periodByYear: make(map[int]int),
		nextCompany:  types.FirstCompanyID,
		nextBranch:   types.AllBranchesID + 1,
		nextPeriod:   1,
	}

	market := types.Company{ID: types.MarketCompanyID, Name: marketName, IsMarket: true}
	d.Companies = append(d.Companies, market)
	for _, c := range star.Companies {
		if c.ID == types.MarketCompanyID {
			// The rollup keeps its fixed identity whatever was persisted.
			d.Companies[0].Group = c.Group
			continue
		}
		c.IsMarket = false
		d.Companies = append(d.Companies, c)
		if c.ID >= d.nextCompany {
			d.nextCompany = c.ID + 1
		}
	}
	for i, c := range d.Companies {
		if key := match.Normalize(c.Name); key != "" {
			if _, dup := d.companyByKey[key]; !dup {
				d.companyByKey[key] = d.Companies[i].ID
			}
		}
	}

	d.Branches = append(d.Branches, types.Branch{ID: types.AllBranchesID, Name: allBranchesName})
	for _, b := range star.Branches {
		if b.ID == types.AllBranchesID {
			continue
		}
		d.Branches = append(d.Branches, b)
		if b.ID >= d.nextBranch {
			d.nextBranch = b.ID + 1
		}
	}
	for _, b := range d.Branches {
		if key := match.Normalize(b.Name); key != "" {
			if _, dup := d.branchByKey[key]; !dup {
				d.branchByKey[key] = b.ID
			}
		}
	}

	for _, p := range star.Periods {
		d.Periods = append(d.Periods, p)
		d.periodByYear[p.Year] = p.ID
		if p.ID >= d.nextPeriod {
			d.nextPeriod = p.ID + 1
		}
	}
	return d
}

// EnsureCompany returns the ID of the company whose normalized name equals
// name's, adding a new company when there is none.
func (d *Dimensions) EnsureCompany(name, group string) (id int, added bool) {
	key := match.Normalize(name)
	if id, ok := d.companyByKey[key]; ok {
		return id, false
	}
	id = d.nextCompany
	d.nextCompany++
	d.Companies = append(d.Companies, types.Company{ID: id, Name: name, Group: group})
	if key != "" {
		d.companyByKey[key] = id
	}
	return id, true
}

// EnsureBranch returns the ID of the branch named name, adding it with the
// given insurance type when unknown.
func (d *Dimensions) EnsureBranch(name, insuranceType string) (id int, added bool) {
	key := match.Normalize(name)
	if id, ok := d.branchByKey[key]; ok {
		return id, false
	}
	id = d.nextBranch
	d.nextBranch++
	d.Branches = append(d.Branches, types.Branch{ID: id, Name: name, InsuranceType: insuranceType})
	if key != "" {
		d.branchByKey[key] = id
	}
	return id, true
}

// EnsurePeriod returns the ID of year, adding it when unknown.
func (d *Dimensions) EnsurePeriod(year int) (id int, added bool) {
	if id, ok := d.periodByYear[year]; ok {
		return id, false
	}
	id = d.nextPeriod
	d.nextPeriod++
	d.Periods = append(d.Periods, types.Period{ID: id, Year: year})
	d.periodByYear[year] = id
	return id, true
}

// =============================================================================
// FACT BUILDER
// =============================================================================

// FactBuilder collects facts in an append-only slice indexed by business
// key. Fact IDs continue from the highest ID ever persisted.
type FactBuilder struct {
	facts  []types.Fact
	index  map[types.FactKey]int
	nextID int
}

// NewFactBuilder starts from the persisted facts.
func NewFactBuilder(existing []types.Fact) *FactBuilder {
	b := &FactBuilder{
		facts:  make([]types.Fact, 0, len(existing)),
		index:  make(map[types.FactKey]int, len(existing)),
		nextID: 1,
	}
	for _, f := range existing {
		if f.ID >= b.nextID {
			b.nextID = f.ID + 1
		}
		if _, dup := b.index[f.FactKey]; dup {
			continue
		}
		b.index[f.FactKey] = len(b.facts)
		b.facts = append(b.facts, f)
	}
	return b
}

// DropPeriod removes every fact of timeID and returns how many were removed.
// IDs of removed facts are not reused.
func (b *FactBuilder) DropPeriod(timeID int) int {
	kept := b.facts[:0]
	removed := 0
	for _, f := range b.facts {
		if f.TimeID == timeID {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	b.facts = kept
	b.index = make(map[types.FactKey]int, len(kept))
	for i, f := range kept {
		b.index[f.FactKey] = i
	}
	return removed
}

// Append adds a fact. It fails with ErrDuplicateFact if the key is taken.
func (b *FactBuilder) Append(key types.FactKey, values types.Measures) (int, error) {
	if _, ok := b.index[key]; ok {
		return 0, ErrDuplicateFact
	}
	id := b.nextID
	b.nextID++
	b.index[key] = len(b.facts)
	b.facts = append(b.facts, types.Fact{ID: id, FactKey: key, Values: values})
	return id, nil
}

// Upsert copies the listed measures of values into the fact of key, or
// inserts a new fact (all of values) when key has none. It reports whether a
// fact was inserted.
func (b *FactBuilder) Upsert(key types.FactKey, values types.Measures, fields ...types.Measure) bool {
	if i, ok := b.index[key]; ok {
		for _, m := range fields {
			b.facts[i].Values[m] = values[m]
		}
		return false
	}
	_, _ = b.Append(key, values)
	return true
}

// Lookup returns the fact of key.
func (b *FactBuilder) Lookup(key types.FactKey) (types.Fact, bool) {
	i, ok := b.index[key]
	if !ok {
		return types.Fact{}, false
	}
	return b.facts[i], true
}

// Len returns the number of facts.
func (b *FactBuilder) Len() int { return len(b.facts) }

// Facts returns the collected facts in insertion order.
func (b *FactBuilder) Facts() []types.Fact {
	out := make([]types.Fact, len(b.facts))
	copy(out, b.facts)
	return out
}
