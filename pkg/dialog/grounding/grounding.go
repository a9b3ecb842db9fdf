// Package grounding validates extraction spans against the utterance that
// produced them and maintains the merged, non-overlapping highlight set.
package grounding

import (
	"fmt"
	"sort"
	"strings"
)

// Range is one highlighted span of the source utterance together with the
// parameter names whose evidence it carries.
type Range struct {
	Start          int      `json:"start"`
	End            int      `json:"end"`
	ParameterNames []string `json:"parameter_names"`
}

// Label renders the contributing parameter names comma-joined, in the order
// they were merged in.
func (r Range) Label() string {
	return strings.Join(r.ParameterNames, ",")
}

// ValidateOffsets reports whether [start, end) is a well-formed span into a
// text of the given length: 0 <= start < end <= textLen.
func ValidateOffsets(start, end, textLen int) error {
	if start < 0 || start >= end || end > textLen {
		return fmt.Errorf("invalid span [%d,%d) for text of length %d", start, end, textLen)
	}
	return nil
}

// MergeRanges sorts the spans by start and combines overlapping or adjacent
// spans into one span covering [min(start), max(end)]. The distinct parameter
// names of merged spans are concatenated in encounter order. The operation is
// idempotent: merging an already-merged set returns an equal set.
func MergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	for i, r := range ranges {
		sorted[i] = Range{Start: r.Start, End: r.End, ParameterNames: append([]string(nil), r.ParameterNames...)}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End { // overlapping or touching
			if r.End > last.End {
				last.End = r.End
			}
			last.ParameterNames = appendDistinct(last.ParameterNames, r.ParameterNames)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Coverage returns the fraction of character positions of a text of length
// textLen covered by at least one span, as a float in [0,1]. The spans are
// merged first, so overlapping input does not double-count.
func Coverage(ranges []Range, textLen int) float64 {
	if textLen <= 0 {
		return 0
	}
	covered := 0
	for _, r := range MergeRanges(ranges) {
		start, end := r.Start, r.End
		if start < 0 {
			start = 0
		}
		if end > textLen {
			end = textLen
		}
		if end > start {
			covered += end - start
		}
	}
	return float64(covered) / float64(textLen)
}

func appendDistinct(dst, names []string) []string {
	for _, n := range names {
		seen := false
		for _, have := range dst {
			if have == n {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, n)
		}
	}
	return dst
}
