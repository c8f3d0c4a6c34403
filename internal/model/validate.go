package model

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/variantflow/variantflow/internal/bucketing"
	"github.com/variantflow/variantflow/internal/rules"
)

// namePattern restricts environment names to characters that are safe in
// object-store keys and URLs.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ErrInvalidEnvironmentName is returned for environment names that cannot
// appear in an object-store path.
var ErrInvalidEnvironmentName = errors.New("environment name must match ^[a-zA-Z0-9_-]+$")

// ErrInvalidAllocation marks a rejected allocation set. The API boundary
// maps it to 400.
var ErrInvalidAllocation = errors.New("invalid allocations")

// ValidateEnvironmentName checks that a name is non-empty and URL-safe.
func ValidateEnvironmentName(name string) error {
	if !namePattern.MatchString(name) {
		return ErrInvalidEnvironmentName
	}
	return nil
}

// ValidateAllocations checks range bounds, overlap, and variant membership
// for a full allocation set. The set need not cover the whole traffic
// space: uncovered buckets are a holdout.
func ValidateAllocations(allocs []Allocation, variants []Variant) error {
	known := make(map[string]bool, len(variants))
	for _, v := range variants {
		known[v.ID] = true
	}

	for _, a := range allocs {
		if a.RangeStart < 0 || a.RangeEnd >= bucketing.NumBuckets {
			return fmt.Errorf("%w: range [%d, %d] outside [0, %d]", ErrInvalidAllocation, a.RangeStart, a.RangeEnd, bucketing.NumBuckets-1)
		}
		if a.RangeStart > a.RangeEnd {
			return fmt.Errorf("%w: rangeStart %d greater than rangeEnd %d", ErrInvalidAllocation, a.RangeStart, a.RangeEnd)
		}
		if !known[a.VariantID] {
			return fmt.Errorf("%w: unknown variant %q", ErrInvalidAllocation, a.VariantID)
		}
	}

	sorted := make([]Allocation, len(allocs))
	copy(sorted, allocs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RangeStart < sorted[j].RangeStart })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].RangeStart <= sorted[i-1].RangeEnd {
			return fmt.Errorf("%w: ranges [%d, %d] and [%d, %d] overlap",
				ErrInvalidAllocation, sorted[i-1].RangeStart, sorted[i-1].RangeEnd, sorted[i].RangeStart, sorted[i].RangeEnd)
		}
	}
	return nil
}

// ValidateRules rejects rules whose operator is outside the supported set.
// The decision side would treat them as never-matching, which is almost
// certainly not what the editor meant.
func ValidateRules(rs []rules.Rule) error {
	for _, r := range rs {
		for _, c := range r.Conditions {
			if c.Attribute == "" {
				return errors.New("condition attribute must not be empty")
			}
			if !c.Operator.Valid() {
				return fmt.Errorf("unsupported operator %q", c.Operator)
			}
		}
	}
	return nil
}
