// Package model defines the control-plane entities and their invariants.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/variantflow/variantflow/internal/rules"
)

// Environment is the root of isolation; every other entity is scoped to
// exactly one environment. Names are unique and appear in object-store
// paths, so they are restricted to URL-safe characters.
type Environment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Audience is a reusable list of targeting rules scoped to an environment.
// (environmentId, name) is unique. An empty rule list matches everyone.
type Audience struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	EnvironmentID string       `json:"environmentId"`
	Rules         []rules.Rule `json:"rules"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Variant is a named branch of an experiment. Payload, when present, is a
// JSON object (never an array or scalar). (experimentId, key) is unique.
type Variant struct {
	ID           string         `json:"id"`
	Key          string         `json:"key"`
	Name         string         `json:"name"`
	Payload      map[string]any `json:"payload,omitempty"`
	ExperimentID string         `json:"experimentId"`
}

// Allocation maps a bucket range to one variant. Ranges within an
// experiment must not overlap; buckets not covered by any allocation are a
// holdout.
type Allocation struct {
	ID           string `json:"id"`
	VariantID    string `json:"variantId"`
	RangeStart   int    `json:"rangeStart"`
	RangeEnd     int    `json:"rangeEnd"`
	ExperimentID string `json:"experimentId"`
}

// Experiment is the editable definition of one A/B test. Salt is fixed at
// creation; re-creating an experiment under the same key gets a fresh salt
// and therefore a fresh shuffle. (environmentId, key) is unique.
type Experiment struct {
	ID             string       `json:"id"`
	Key            string       `json:"key"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Salt           string       `json:"salt"`
	Status         Status       `json:"status"`
	EnvironmentID  string       `json:"environmentId"`
	AudienceID     *string      `json:"audienceId,omitempty"`
	TargetingRules []rules.Rule `json:"targetingRules"`
	Variants       []Variant    `json:"variants"`
	Allocations    []Allocation `json:"allocations"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// ConfigVersion is one row of the append-only publish audit. Version is
// per-environment, gap-free, starting at 1. Snapshot embeds the full
// published artifact.
type ConfigVersion struct {
	ID            string          `json:"id"`
	EnvironmentID string          `json:"environmentId"`
	Version       int             `json:"version"`
	Snapshot      json.RawMessage `json:"snapshot"`
	CreatedAt     time.Time       `json:"createdAt"`
}

const saltByteSize = 16

// NewSalt returns a random hex salt for a new experiment. 128 bits keeps
// bucket assignments independent across experiments.
func NewSalt() string {
	b := make([]byte, saltByteSize)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in much worse trouble
		// than a weak salt; fall back to the timestamp.
		return hex.EncodeToString([]byte(time.Now().UTC().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(b)
}
