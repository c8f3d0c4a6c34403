// Package snapshot defines the compiled config artifact served to decision
// nodes and SDKs, and the projection from control-plane entities into it.
package snapshot

import (
	"time"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/rules"
)

// Variant is the read-optimised projection of a variant: just what the
// assigner needs to emit an assignment.
type Variant struct {
	ID      string         `json:"id"`
	Key     string         `json:"key"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Allocation maps a bucket range to a variant id.
type Allocation struct {
	VariantID  string `json:"variantId"`
	RangeStart int    `json:"rangeStart"`
	RangeEnd   int    `json:"rangeEnd"`
}

// Experiment is one compiled experiment. Audience rules are materialised
// at compile time so the decision side never resolves audiences by id.
type Experiment struct {
	ID             string       `json:"id"`
	Key            string       `json:"key"`
	Salt           string       `json:"salt"`
	AudienceRules  []rules.Rule `json:"audienceRules"`
	TargetingRules []rules.Rule `json:"targetingRules"`
	Variants       []Variant    `json:"variants"`
	Allocations    []Allocation `json:"allocations"`
}

// Snapshot is the published artifact. Once written under a version it is
// immutable; latest.json and version.json are overwritten pointers to it.
type Snapshot struct {
	Version     int          `json:"version"`
	Environment string       `json:"environment"`
	PublishedAt string       `json:"publishedAt"`
	Experiments []Experiment `json:"experiments"`
}

// Compile builds a snapshot from RUNNING experiments. audienceRules maps
// audience id to its materialised rules; experiments whose audience is
// missing from the map compile with no audience filter (matches everyone),
// mirroring a deleted audience after re-publish.
func Compile(version int, envName string, publishedAt time.Time, experiments []model.Experiment, audienceRules map[string][]rules.Rule) *Snapshot {
	compiled := make([]Experiment, 0, len(experiments))
	for _, exp := range experiments {
		if exp.Status != model.StatusRunning {
			continue
		}

		variants := make([]Variant, 0, len(exp.Variants))
		for _, v := range exp.Variants {
			variants = append(variants, Variant{ID: v.ID, Key: v.Key, Payload: v.Payload})
		}
		allocations := make([]Allocation, 0, len(exp.Allocations))
		for _, a := range exp.Allocations {
			allocations = append(allocations, Allocation{VariantID: a.VariantID, RangeStart: a.RangeStart, RangeEnd: a.RangeEnd})
		}

		var audRules []rules.Rule
		if exp.AudienceID != nil {
			audRules = audienceRules[*exp.AudienceID]
		}
		if audRules == nil {
			audRules = []rules.Rule{}
		}
		targeting := exp.TargetingRules
		if targeting == nil {
			targeting = []rules.Rule{}
		}

		compiled = append(compiled, Experiment{
			ID:             exp.ID,
			Key:            exp.Key,
			Salt:           exp.Salt,
			AudienceRules:  audRules,
			TargetingRules: targeting,
			Variants:       variants,
			Allocations:    allocations,
		})
	}

	return &Snapshot{
		Version:     version,
		Environment: envName,
		PublishedAt: publishedAt.UTC().Format(time.RFC3339),
		Experiments: compiled,
	}
}
