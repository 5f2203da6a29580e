package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// placeholders are the cell texts that regulators print for "no value".
// They all read as zero.
var placeholders = map[string]struct{}{
	"":     {},
	"..":   {},
	"...":  {},
	"n.d.": {},
	"n.d":  {},
	"nd":   {},
	"nan":  {},
	"--":   {},
	"-":    {},
	"–":    {},
	"—":    {},
}

// IsPlaceholder reports whether s is one of the "no value" markers.
func IsPlaceholder(s string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseAmount converts a report-formatted amount into a decimal.
//
// ACCEPTED FORMATS:
//   - "1 234 567"   (space, NBSP or narrow NBSP thousands separators)
//   - "1 234,56"    (decimal comma)
//   - "1.234.567"   (dot thousands separators)
//   - "1.234,56" / "1,234.56" (the last separator is the decimal one)
//   - "(1 234)"     (negative)
//   - placeholders  -> 0
//
// A single comma is a decimal comma. Anything else returns an error.
func ParseAmount(s string) (decimal.Decimal, error) {
	t := strings.TrimSpace(s)
	if IsPlaceholder(t) {
		return decimal.Zero, nil
	}

	negative := false
	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		negative = true
		t = strings.TrimSpace(t[1 : len(t)-1])
	}

	t = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t':
			return -1
		}
		return r
	}, t)

	commas := strings.Count(t, ",")
	dots := strings.Count(t, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(t, ",") > strings.LastIndex(t, ".") {
			t = strings.ReplaceAll(t, ".", "")
			t = strings.Replace(t, ",", ".", 1)
		} else {
			t = strings.ReplaceAll(t, ",", "")
		}
	case commas > 1:
		t = strings.ReplaceAll(t, ",", "")
	case commas == 1:
		t = strings.Replace(t, ",", ".", 1)
	case dots > 1:
		t = strings.ReplaceAll(t, ".", "")
	}

	d, err := decimal.NewFromString(t)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not an amount: %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// Decimal returns the cell as a decimal, with the same zero rules as Float.
func (v Value) Decimal() decimal.Decimal {
	switch v.Kind {
	case Number:
		return decimal.NewFromFloat(v.Num)
	case Text:
		d, err := ParseAmount(v.Str)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
