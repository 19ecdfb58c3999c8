// Package patch applies non-overlapping text replacements to a source buffer
package patch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/poltergeist/wraith/pkg/types"
)

var (
	// ErrInvalidRange indicates a replacement outside 0 <= Start <= End <= len(text)
	ErrInvalidRange = errors.New("invalid replacement range")

	// ErrOverlap indicates two replacements touch the same original bytes
	ErrOverlap = errors.New("overlapping replacements")
)

// Apply returns original with every replacement substituted.
//
// Offsets are byte offsets into original. Replacements are applied in
// decreasing End order (ties: decreasing Start), so the prefix result[:Start]
// is always untouched original text. Only insertions at the same offset can
// tie; they end up in the order they appear in reps.
func Apply(original string, reps []types.Replacement) (string, error) {
	if len(reps) == 0 {
		return original, nil
	}
	if err := Validate(len(original), reps); err != nil {
		return "", err
	}

	sorted := Sorted(reps)

	result := original
	for _, r := range sorted {
		var b strings.Builder
		b.Grow(len(result) - r.Length() + len(r.Text))
		b.WriteString(result[:r.Start])
		b.WriteString(r.Text)
		b.WriteString(result[r.End:])
		result = b.String()
	}
	return result, nil
}

// ApplyTask applies a file task to its original text
func ApplyTask(task *types.FileTask) (string, error) {
	out, err := Apply(task.OriginalText, task.Replacements)
	if err != nil {
		return "", fmt.Errorf("failed to patch %s: %w", task.Path, err)
	}
	return out, nil
}

// Validate checks every range against a buffer of size n, then checks
// replacements pairwise for overlap.
func Validate(n int, reps []types.Replacement) error {
	for i, r := range reps {
		if r.Start < 0 || r.Start > r.End || r.End > n {
			return fmt.Errorf("%w: #%d [%d, %d) in buffer of %d bytes", ErrInvalidRange, i, r.Start, r.End, n)
		}
	}

	// Walk in start order so only neighbours need comparing against the
	// furthest end seen so far.
	idx := make([]int, len(reps))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := reps[idx[a]], reps[idx[b]]
		if ra.Start != rb.Start {
			return ra.Start < rb.Start
		}
		return ra.End < rb.End
	})

	for i := 0; i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			a, b := reps[idx[i]], reps[idx[j]]
			if b.Start > a.End {
				break
			}
			if Conflicts(a, b) {
				return fmt.Errorf("%w: [%d, %d) and [%d, %d)", ErrOverlap, a.Start, a.End, b.Start, b.End)
			}
		}
	}
	return nil
}

// Conflicts reports whether two replacements overlap as half-open ranges.
// Two insertions never conflict. An insertion at p conflicts with a non-empty
// range [s, e) when s <= p < e.
func Conflicts(a, b types.Replacement) bool {
	aEmpty, bEmpty := a.Start == a.End, b.Start == b.End
	switch {
	case aEmpty && bEmpty:
		return false
	case aEmpty:
		return b.Start <= a.Start && a.Start < b.End
	case bEmpty:
		return a.Start <= b.Start && b.Start < a.End
	}
	return a.Start < b.End && b.Start < a.End
}

// Sorted returns a copy of reps in application order. Ties are applied
// last-listed first, which leaves same-offset insertions in listed order.
func Sorted(reps []types.Replacement) []types.Replacement {
	idx := make([]int, len(reps))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ra, rb := reps[idx[a]], reps[idx[b]]
		if ra.End != rb.End {
			return ra.End > rb.End
		}
		if ra.Start != rb.Start {
			return ra.Start > rb.Start
		}
		return idx[a] > idx[b]
	})

	out := make([]types.Replacement, len(reps))
	for i, j := range idx {
		out[i] = reps[j]
	}
	return out
}
