// =============================================================================
// Insurance Report ETL - Company Name Matching
// =============================================================================
//
// The five yearly source tables spell company names inconsistently
// ("STAR Assurance", "Star assurances", "STAR"). Names are reconciled by
// comparing normalized forms:
//
//   Normalize: lowercase, accents stripped, every non-alphanumeric removed
//   Similarity: 2*M / (len(a)+len(b)), where M is the number of characters in
//               the matching blocks found by recursively taking the longest
//               common substring (Ratcliff/Obershelp)
//
// A name matches the best canonical candidate whose similarity reaches the
// cutoff. Below the cutoff there is no match and the caller decides what to
// do with the row.
//
// =============================================================================

package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultCutoff is the similarity threshold used when none is configured.
const DefaultCutoff = 0.8

// stripMarks decomposes characters and drops the combining accents.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize reduces a label to its comparison key.
//
//   "STAR Assurance"      -> "starassurance"
//   "Assurances Maghrébia" -> "assurancesmaghrebia"
func Normalize(s string) string {
	folded, _, err := transform.String(stripMarks, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity returns the Ratcliff/Obershelp ratio of a and b, in [0, 1].
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingChars(ra, rb)) / float64(total)
}

// matchingChars sums the lengths of the matching blocks of a and b.
func matchingChars(a, b []rune) int {
	i, j, size := longestCommon(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingChars(a[:i], b[:j]) +
		matchingChars(a[i+size:], b[j+size:])
}

// longestCommon finds the longest common substring of a and b. Among equal
// lengths it returns the one starting earliest in a, then earliest in b.
func longestCommon(a, b []rune) (int, int, int) {
	bestI, bestJ, bestSize := 0, 0, 0
	// prev[j+1] is the length of the common suffix of a[:i] and b[:j+1].
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			if a[i] == b[j] {
				cur[j+1] = prev[j] + 1
				if k := cur[j+1]; k > bestSize {
					bestI, bestJ, bestSize = i-k+1, j-k+1, k
				}
			} else {
				cur[j+1] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, bestSize
}

// =============================================================================
// MATCHER
// =============================================================================

// Matcher resolves labels against a fixed list of canonical names.
type Matcher struct {
	cutoff float64
	keys   []string
	exact  map[string]int
}

// Result describes a successful match.
type Result struct {
	// Index is the position of the canonical name in the list given to
	// NewMatcher.
	Index int

	// Score is the similarity of the normalized forms (1 for exact).
	Score float64
}

// NewMatcher prepares canonical names for matching. A cutoff outside (0, 1]
// falls back to DefaultCutoff.
func NewMatcher(canonical []string, cutoff float64) *Matcher {
	if cutoff <= 0 || cutoff > 1 {
		cutoff = DefaultCutoff
	}
	m := &Matcher{
		cutoff: cutoff,
		keys:   make([]string, len(canonical)),
		exact:  make(map[string]int, len(canonical)),
	}
	for i, name := range canonical {
		key := Normalize(name)
		m.keys[i] = key
		if _, dup := m.exact[key]; !dup && key != "" {
			m.exact[key] = i
		}
	}
	return m
}

// Match returns the best canonical name for label, if any reaches the
// cutoff. Ties keep the earliest canonical name.
func (m *Matcher) Match(label string) (Result, bool) {
	key := Normalize(label)
	if key == "" {
		return Result{}, false
	}
	if i, ok := m.exact[key]; ok {
		return Result{Index: i, Score: 1}, true
	}

	best := Result{Index: -1}
	for i, candidate := range m.keys {
		if candidate == "" {
			continue
		}
		if s := Similarity(key, candidate); s > best.Score {
			best = Result{Index: i, Score: s}
		}
	}
	if best.Index < 0 || best.Score < m.cutoff {
		return Result{}, false
	}
	return best, true
}

// ContainsAny reports whether the normalized label contains one of the
// normalized tokens.
func ContainsAny(label string, tokens []string) bool {
	key := Normalize(label)
	for _, tok := range tokens {
		if t := Normalize(tok); t != "" && strings.Contains(key, t) {
			return true
		}
	}
	return false
}

// EqualsAny reports whether the normalized label equals one of the
// normalized tokens.
func EqualsAny(label string, tokens []string) bool {
	key := Normalize(label)
	if key == "" {
		return false
	}
	for _, tok := range tokens {
		if Normalize(tok) == key {
			return true
		}
	}
	return false
}
