package engine

import (
	"github.com/variantflow/variantflow/internal/bucketing"
	"github.com/variantflow/variantflow/internal/snapshot"
)

// Assignment is one experiment's outcome for a user.
type Assignment struct {
	ExperimentKey string         `json:"experiment_key"`
	ExperimentID  string         `json:"experiment_id"`
	VariantKey    string         `json:"variant_key"`
	VariantID     string         `json:"variant_id"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Assign computes the variant assignments for a user across all compiled
// experiments, in snapshot order. A user is assigned to an experiment only
// when they pass the audience filter AND the experiment's own targeting,
// and their bucket falls inside an allocation range. Data-integrity gaps
// (allocation pointing at a missing variant) skip the experiment silently:
// a bad edit must not take down decisioning.
func Assign(experiments []snapshot.Experiment, userKey string, context map[string]any) []Assignment {
	assignments := make([]Assignment, 0, len(experiments))

	for _, exp := range experiments {
		if !Evaluate(exp.AudienceRules, context) {
			continue
		}
		if !Evaluate(exp.TargetingRules, context) {
			continue
		}

		bucket := bucketing.Bucket(userKey, exp.Salt)
		allocation, ok := findAllocation(exp.Allocations, bucket)
		if !ok {
			// Holdout: bucket not covered by any allocation.
			continue
		}
		variant, ok := findVariant(exp.Variants, allocation.VariantID)
		if !ok {
			continue
		}

		assignments = append(assignments, Assignment{
			ExperimentKey: exp.Key,
			ExperimentID:  exp.ID,
			VariantKey:    variant.Key,
			VariantID:     variant.ID,
			Payload:       variant.Payload,
		})
	}
	return assignments
}

func findAllocation(allocations []snapshot.Allocation, bucket int) (snapshot.Allocation, bool) {
	for _, a := range allocations {
		if a.RangeStart <= bucket && bucket <= a.RangeEnd {
			return a, true
		}
	}
	return snapshot.Allocation{}, false
}

func findVariant(variants []snapshot.Variant, id string) (snapshot.Variant, bool) {
	for _, v := range variants {
		if v.ID == id {
			return v, true
		}
	}
	return snapshot.Variant{}, false
}
