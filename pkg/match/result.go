// Package match holds the result shape shared by the prefix and validity
// engines, plus the sentinel-string convention used at the compatibility
// boundary with older rating collaborators.
package match

import "slices"

const (
	NoMatch         = "NO_MATCH"
	NoValidityMatch = "NO_VALIDITY_MATCH"
)

// Result is either Found (OK reports true) or NotFound. Attributes share
// storage with the engine that produced them and must not be modified.
type Result struct {
	Value      string
	Attributes []string
	found      bool
}

var NotFound = Result{}

func Found(value string, attributes []string) Result {
	return Result{
		Value:      value,
		Attributes: slices.Clip(attributes),
		found:      true,
	}
}

func (r Result) OK() bool {
	return r.found
}

// Strings renders the result as a one-element sequence holding either the
// value or the sentinel.
func (r Result) Strings(sentinel string) []string {
	if !r.found {
		return []string{sentinel}
	}
	return []string{r.Value}
}

// WithChildData renders the value followed by its attributes.
func (r Result) WithChildData(sentinel string) []string {
	if !r.found {
		return []string{sentinel}
	}
	out := make([]string, 0, len(r.Attributes)+1)
	out = append(out, r.Value)
	return append(out, r.Attributes...)
}

// AllStrings renders every result value in order. An empty input yields the
// validity sentinel so callers always receive a non-empty sequence.
func AllStrings(results []Result) []string {
	if len(results) == 0 {
		return []string{NoValidityMatch}
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Value)
	}
	return out
}

func AllWithChildData(results []Result) [][]string {
	if len(results) == 0 {
		return [][]string{{NoValidityMatch}}
	}
	out := make([][]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.WithChildData(NoValidityMatch))
	}
	return out
}

// IsValid reports whether a sentinel-convention result carries a match.
// nil, empty and sentinel-led sequences are invalid.
func IsValid(result []string) bool {
	if len(result) == 0 {
		return false
	}
	return !IsSentinel(result[0])
}

func IsValidNested(results [][]string) bool {
	if len(results) == 0 {
		return false
	}
	return IsValid(results[0])
}

func IsSentinel(s string) bool {
	return s == NoMatch || s == NoValidityMatch
}
