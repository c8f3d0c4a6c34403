// Package store provides control-plane persistence over environments,
// audiences, experiments, variants, allocations, and the config-version
// audit. The relational store is the source of truth; published snapshots
// are derived from it.
package store

import (
	"context"
	"errors"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/rules"
)

// Sentinel errors shared by all implementations. Callers classify with
// errors.Is and map them onto HTTP statuses at the API boundary.
var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on uniqueness collisions (environment name,
	// experiment key per environment, variant key per experiment,
	// audience name per environment).
	ErrConflict = errors.New("already exists")
	// ErrCrossEnvironment is returned when an experiment references an
	// audience from a different environment.
	ErrCrossEnvironment = errors.New("audience belongs to a different environment")
)

// Page is a 1-based pagination request.
type Page struct {
	Number int
	Size   int
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// CreateAudienceParams contains the fields for a new audience.
type CreateAudienceParams struct {
	Name          string
	EnvironmentID string
	Rules         []rules.Rule
}

// UpdateAudienceParams is a partial audience update; nil fields are left
// unchanged.
type UpdateAudienceParams struct {
	Name  *string
	Rules *[]rules.Rule
}

// CreateExperimentParams contains the fields for a new experiment. Salt is
// supplied by the caller and immutable afterwards.
type CreateExperimentParams struct {
	Key            string
	Name           string
	Description    string
	Salt           string
	EnvironmentID  string
	AudienceID     *string
	TargetingRules []rules.Rule
}

// UpdateExperimentParams is a partial experiment update. SetAudience
// distinguishes "leave the audience alone" from "set it to AudienceID",
// where a nil AudienceID with SetAudience detaches the audience.
type UpdateExperimentParams struct {
	Name           *string
	Description    *string
	SetAudience    bool
	AudienceID     *string
	TargetingRules *[]rules.Rule
}

// ExperimentFilter narrows experiment listings.
type ExperimentFilter struct {
	EnvironmentID string
	Status        model.Status
}

// CreateVariantParams contains the fields for a new variant.
type CreateVariantParams struct {
	Key     string
	Name    string
	Payload map[string]any
}

// UpdateVariantParams is a partial variant update. ClearPayload
// distinguishes "leave the payload alone" from "set it to null".
type UpdateVariantParams struct {
	Name         *string
	Payload      map[string]any
	ClearPayload bool
}

// BatchVariantUpdate pairs a variant id with its partial update.
type BatchVariantUpdate struct {
	ID string
	UpdateVariantParams
}

// VariantBatch is a single transactional mutation over an experiment's
// variants: creations, updates, and deletions applied together or not at
// all.
type VariantBatch struct {
	Create []CreateVariantParams
	Update []BatchVariantUpdate
	Delete []string
}

// AllocationRange is one requested bucket range for ReplaceAllocations.
type AllocationRange struct {
	VariantID  string
	RangeStart int
	RangeEnd   int
}

// Store is the control-plane persistence contract. Implementations must be
// safe for concurrent use.
type Store interface {
	// Environments.
	CreateEnvironment(ctx context.Context, name string) (model.Environment, error)
	GetEnvironment(ctx context.Context, id string) (model.Environment, error)
	ListEnvironments(ctx context.Context, page Page) ([]model.Environment, int, error)

	// Audiences.
	CreateAudience(ctx context.Context, params CreateAudienceParams) (model.Audience, error)
	GetAudience(ctx context.Context, id string) (model.Audience, error)
	ListAudiences(ctx context.Context, environmentID string, page Page) ([]model.Audience, int, error)
	UpdateAudience(ctx context.Context, id string, params UpdateAudienceParams) (model.Audience, error)
	DeleteAudience(ctx context.Context, id string) error

	// Experiments. Get and List return experiments with variants and
	// allocations attached.
	CreateExperiment(ctx context.Context, params CreateExperimentParams) (model.Experiment, error)
	GetExperiment(ctx context.Context, id string) (model.Experiment, error)
	ListExperiments(ctx context.Context, filter ExperimentFilter, page Page) ([]model.Experiment, int, error)
	UpdateExperiment(ctx context.Context, id string, params UpdateExperimentParams) (model.Experiment, error)
	UpdateExperimentStatus(ctx context.Context, id string, status model.Status) (model.Experiment, error)
	DeleteExperiment(ctx context.Context, id string) error

	// ListRunningExperiments returns every RUNNING experiment in an
	// environment with variants and allocations attached; the publisher's
	// read path.
	ListRunningExperiments(ctx context.Context, environmentID string) ([]model.Experiment, error)
	// HasRunningExperimentsForAudience reports whether at least one
	// RUNNING experiment references the audience; drives implicit publish
	// on audience mutations.
	HasRunningExperimentsForAudience(ctx context.Context, audienceID string) (bool, error)

	// Variants.
	CreateVariant(ctx context.Context, experimentID string, params CreateVariantParams) (model.Variant, error)
	UpdateVariant(ctx context.Context, experimentID, variantID string, params UpdateVariantParams) (model.Variant, error)
	DeleteVariant(ctx context.Context, experimentID, variantID string) error
	// ApplyVariantBatch applies the whole batch transactionally.
	ApplyVariantBatch(ctx context.Context, experimentID string, batch VariantBatch) ([]model.Variant, error)

	// ReplaceAllocations swaps the experiment's full allocation set in one
	// transaction (delete-then-insert).
	ReplaceAllocations(ctx context.Context, experimentID string, ranges []AllocationRange) ([]model.Allocation, error)

	// Config-version audit.
	MaxConfigVersion(ctx context.Context, environmentID string) (int, error)
	AppendConfigVersion(ctx context.Context, cv model.ConfigVersion) error

	// Close releases any resources held by the store.
	Close() error
}
