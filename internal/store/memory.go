package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/rules"
)

// MemoryStore is an in-memory implementation of the Store interface,
// suitable for development and tests. All returned entities are deep
// copies; callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	environments map[string]model.Environment
	audiences    map[string]model.Audience
	experiments  map[string]model.Experiment

	// Insertion order per entity keeps list pagination stable.
	envOrder []string
	audOrder []string
	expOrder []string

	configVersions map[string][]model.ConfigVersion // environmentID -> append-only
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		environments:   make(map[string]model.Environment),
		audiences:      make(map[string]model.Audience),
		experiments:    make(map[string]model.Experiment),
		configVersions: make(map[string][]model.ConfigVersion),
	}
}

// --- Environments ---

func (m *MemoryStore) CreateEnvironment(ctx context.Context, name string) (model.Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, env := range m.environments {
		if env.Name == name {
			return model.Environment{}, fmt.Errorf("environment %q: %w", name, ErrConflict)
		}
	}
	now := time.Now().UTC()
	env := model.Environment{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	m.environments[env.ID] = env
	m.envOrder = append(m.envOrder, env.ID)
	return env, nil
}

func (m *MemoryStore) GetEnvironment(ctx context.Context, id string) (model.Environment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	env, ok := m.environments[id]
	if !ok {
		return model.Environment{}, fmt.Errorf("environment %q: %w", id, ErrNotFound)
	}
	return env, nil
}

func (m *MemoryStore) ListEnvironments(ctx context.Context, page Page) ([]model.Environment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]model.Environment, 0, len(m.envOrder))
	for _, id := range m.envOrder {
		all = append(all, m.environments[id])
	}
	return paginate(all, page), len(all), nil
}

// --- Audiences ---

func (m *MemoryStore) CreateAudience(ctx context.Context, params CreateAudienceParams) (model.Audience, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.environments[params.EnvironmentID]; !ok {
		return model.Audience{}, fmt.Errorf("environment %q: %w", params.EnvironmentID, ErrNotFound)
	}
	for _, aud := range m.audiences {
		if aud.EnvironmentID == params.EnvironmentID && aud.Name == params.Name {
			return model.Audience{}, fmt.Errorf("audience %q: %w", params.Name, ErrConflict)
		}
	}
	now := time.Now().UTC()
	aud := model.Audience{
		ID:            uuid.NewString(),
		Name:          params.Name,
		EnvironmentID: params.EnvironmentID,
		Rules:         cloneRules(params.Rules),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.audiences[aud.ID] = aud
	m.audOrder = append(m.audOrder, aud.ID)
	return cloneAudience(aud), nil
}

func (m *MemoryStore) GetAudience(ctx context.Context, id string) (model.Audience, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	aud, ok := m.audiences[id]
	if !ok {
		return model.Audience{}, fmt.Errorf("audience %q: %w", id, ErrNotFound)
	}
	return cloneAudience(aud), nil
}

func (m *MemoryStore) ListAudiences(ctx context.Context, environmentID string, page Page) ([]model.Audience, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]model.Audience, 0, len(m.audOrder))
	for _, id := range m.audOrder {
		aud := m.audiences[id]
		if environmentID != "" && aud.EnvironmentID != environmentID {
			continue
		}
		all = append(all, cloneAudience(aud))
	}
	return paginate(all, page), len(all), nil
}

func (m *MemoryStore) UpdateAudience(ctx context.Context, id string, params UpdateAudienceParams) (model.Audience, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	aud, ok := m.audiences[id]
	if !ok {
		return model.Audience{}, fmt.Errorf("audience %q: %w", id, ErrNotFound)
	}
	if params.Name != nil {
		for _, other := range m.audiences {
			if other.ID != id && other.EnvironmentID == aud.EnvironmentID && other.Name == *params.Name {
				return model.Audience{}, fmt.Errorf("audience %q: %w", *params.Name, ErrConflict)
			}
		}
		aud.Name = *params.Name
	}
	if params.Rules != nil {
		aud.Rules = cloneRules(*params.Rules)
	}
	aud.UpdatedAt = time.Now().UTC()
	m.audiences[id] = aud
	return cloneAudience(aud), nil
}

func (m *MemoryStore) DeleteAudience(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.audiences[id]; !ok {
		return fmt.Errorf("audience %q: %w", id, ErrNotFound)
	}
	delete(m.audiences, id)
	m.audOrder = removeID(m.audOrder, id)
	// Experiments keep a dangling audienceId; the compiler treats it as
	// "no audience filter" and re-publish makes the rules disappear.
	for expID, exp := range m.experiments {
		if exp.AudienceID != nil && *exp.AudienceID == id {
			exp.AudienceID = nil
			m.experiments[expID] = exp
		}
	}
	return nil
}

// --- Experiments ---

func (m *MemoryStore) CreateExperiment(ctx context.Context, params CreateExperimentParams) (model.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.environments[params.EnvironmentID]; !ok {
		return model.Experiment{}, fmt.Errorf("environment %q: %w", params.EnvironmentID, ErrNotFound)
	}
	for _, exp := range m.experiments {
		if exp.EnvironmentID == params.EnvironmentID && exp.Key == params.Key {
			return model.Experiment{}, fmt.Errorf("experiment %q: %w", params.Key, ErrConflict)
		}
	}
	if params.AudienceID != nil {
		aud, ok := m.audiences[*params.AudienceID]
		if !ok {
			return model.Experiment{}, fmt.Errorf("audience %q: %w", *params.AudienceID, ErrNotFound)
		}
		if aud.EnvironmentID != params.EnvironmentID {
			return model.Experiment{}, ErrCrossEnvironment
		}
	}

	now := time.Now().UTC()
	exp := model.Experiment{
		ID:             uuid.NewString(),
		Key:            params.Key,
		Name:           params.Name,
		Description:    params.Description,
		Salt:           params.Salt,
		Status:         model.StatusDraft,
		EnvironmentID:  params.EnvironmentID,
		AudienceID:     cloneStringPtr(params.AudienceID),
		TargetingRules: cloneRules(params.TargetingRules),
		Variants:       []model.Variant{},
		Allocations:    []model.Allocation{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.experiments[exp.ID] = exp
	m.expOrder = append(m.expOrder, exp.ID)
	return cloneExperiment(exp), nil
}

func (m *MemoryStore) GetExperiment(ctx context.Context, id string) (model.Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.experiments[id]
	if !ok {
		return model.Experiment{}, fmt.Errorf("experiment %q: %w", id, ErrNotFound)
	}
	return cloneExperiment(exp), nil
}

func (m *MemoryStore) ListExperiments(ctx context.Context, filter ExperimentFilter, page Page) ([]model.Experiment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]model.Experiment, 0, len(m.expOrder))
	for _, id := range m.expOrder {
		exp := m.experiments[id]
		if filter.EnvironmentID != "" && exp.EnvironmentID != filter.EnvironmentID {
			continue
		}
		if filter.Status != "" && exp.Status != filter.Status {
			continue
		}
		all = append(all, cloneExperiment(exp))
	}
	return paginate(all, page), len(all), nil
}

func (m *MemoryStore) UpdateExperiment(ctx context.Context, id string, params UpdateExperimentParams) (model.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[id]
	if !ok {
		return model.Experiment{}, fmt.Errorf("experiment %q: %w", id, ErrNotFound)
	}
	if params.Name != nil {
		exp.Name = *params.Name
	}
	if params.Description != nil {
		exp.Description = *params.Description
	}
	if params.SetAudience {
		if params.AudienceID != nil {
			aud, ok := m.audiences[*params.AudienceID]
			if !ok {
				return model.Experiment{}, fmt.Errorf("audience %q: %w", *params.AudienceID, ErrNotFound)
			}
			if aud.EnvironmentID != exp.EnvironmentID {
				return model.Experiment{}, ErrCrossEnvironment
			}
		}
		exp.AudienceID = cloneStringPtr(params.AudienceID)
	}
	if params.TargetingRules != nil {
		exp.TargetingRules = cloneRules(*params.TargetingRules)
	}
	exp.UpdatedAt = time.Now().UTC()
	m.experiments[id] = exp
	return cloneExperiment(exp), nil
}

func (m *MemoryStore) UpdateExperimentStatus(ctx context.Context, id string, status model.Status) (model.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[id]
	if !ok {
		return model.Experiment{}, fmt.Errorf("experiment %q: %w", id, ErrNotFound)
	}
	exp.Status = status
	exp.UpdatedAt = time.Now().UTC()
	m.experiments[id] = exp
	return cloneExperiment(exp), nil
}

func (m *MemoryStore) DeleteExperiment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[id]; !ok {
		return fmt.Errorf("experiment %q: %w", id, ErrNotFound)
	}
	// Variants and allocations live inside the experiment; the delete
	// cascades by construction.
	delete(m.experiments, id)
	m.expOrder = removeID(m.expOrder, id)
	return nil
}

func (m *MemoryStore) ListRunningExperiments(ctx context.Context, environmentID string) ([]model.Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.environments[environmentID]; !ok {
		return nil, fmt.Errorf("environment %q: %w", environmentID, ErrNotFound)
	}
	running := make([]model.Experiment, 0)
	for _, id := range m.expOrder {
		exp := m.experiments[id]
		if exp.EnvironmentID == environmentID && exp.Status == model.StatusRunning {
			running = append(running, cloneExperiment(exp))
		}
	}
	return running, nil
}

func (m *MemoryStore) HasRunningExperimentsForAudience(ctx context.Context, audienceID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, exp := range m.experiments {
		if exp.Status == model.StatusRunning && exp.AudienceID != nil && *exp.AudienceID == audienceID {
			return true, nil
		}
	}
	return false, nil
}

// --- Variants ---

func (m *MemoryStore) CreateVariant(ctx context.Context, experimentID string, params CreateVariantParams) (model.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[experimentID]
	if !ok {
		return model.Variant{}, fmt.Errorf("experiment %q: %w", experimentID, ErrNotFound)
	}
	for _, v := range exp.Variants {
		if v.Key == params.Key {
			return model.Variant{}, fmt.Errorf("variant %q: %w", params.Key, ErrConflict)
		}
	}
	variant := model.Variant{
		ID:           uuid.NewString(),
		Key:          params.Key,
		Name:         params.Name,
		Payload:      clonePayload(params.Payload),
		ExperimentID: experimentID,
	}
	exp.Variants = append(exp.Variants, variant)
	exp.UpdatedAt = time.Now().UTC()
	m.experiments[experimentID] = exp
	return cloneVariant(variant), nil
}

func (m *MemoryStore) UpdateVariant(ctx context.Context, experimentID, variantID string, params UpdateVariantParams) (model.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[experimentID]
	if !ok {
		return model.Variant{}, fmt.Errorf("experiment %q: %w", experimentID, ErrNotFound)
	}
	updated, err := applyVariantUpdate(&exp, variantID, params)
	if err != nil {
		return model.Variant{}, err
	}
	exp.UpdatedAt = time.Now().UTC()
	m.experiments[experimentID] = exp
	return cloneVariant(updated), nil
}

func (m *MemoryStore) DeleteVariant(ctx context.Context, experimentID, variantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[experimentID]
	if !ok {
		return fmt.Errorf("experiment %q: %w", experimentID, ErrNotFound)
	}
	if !deleteVariantFrom(&exp, variantID) {
		return fmt.Errorf("variant %q: %w", variantID, ErrNotFound)
	}
	exp.UpdatedAt = time.Now().UTC()
	m.experiments[experimentID] = exp
	return nil
}

func (m *MemoryStore) ApplyVariantBatch(ctx context.Context, experimentID string, batch VariantBatch) ([]model.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.experiments[experimentID]
	if !ok {
		return nil, fmt.Errorf("experiment %q: %w", experimentID, ErrNotFound)
	}

	// Work on a copy; commit only if the whole batch applies.
	exp := cloneExperiment(stored)
	for _, del := range batch.Delete {
		if !deleteVariantFrom(&exp, del) {
			return nil, fmt.Errorf("variant %q: %w", del, ErrNotFound)
		}
	}
	for _, upd := range batch.Update {
		if _, err := applyVariantUpdate(&exp, upd.ID, upd.UpdateVariantParams); err != nil {
			return nil, err
		}
	}
	for _, create := range batch.Create {
		for _, v := range exp.Variants {
			if v.Key == create.Key {
				return nil, fmt.Errorf("variant %q: %w", create.Key, ErrConflict)
			}
		}
		exp.Variants = append(exp.Variants, model.Variant{
			ID:           uuid.NewString(),
			Key:          create.Key,
			Name:         create.Name,
			Payload:      clonePayload(create.Payload),
			ExperimentID: experimentID,
		})
	}

	exp.UpdatedAt = time.Now().UTC()
	m.experiments[experimentID] = exp
	result := cloneExperiment(exp)
	return result.Variants, nil
}

// --- Allocations ---

func (m *MemoryStore) ReplaceAllocations(ctx context.Context, experimentID string, ranges []AllocationRange) ([]model.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.experiments[experimentID]
	if !ok {
		return nil, fmt.Errorf("experiment %q: %w", experimentID, ErrNotFound)
	}

	allocations := make([]model.Allocation, 0, len(ranges))
	for _, r := range ranges {
		allocations = append(allocations, model.Allocation{
			ID:           uuid.NewString(),
			VariantID:    r.VariantID,
			RangeStart:   r.RangeStart,
			RangeEnd:     r.RangeEnd,
			ExperimentID: experimentID,
		})
	}
	if err := model.ValidateAllocations(allocations, exp.Variants); err != nil {
		return nil, err
	}

	exp.Allocations = allocations
	exp.UpdatedAt = time.Now().UTC()
	m.experiments[experimentID] = exp
	result := cloneExperiment(exp)
	return result.Allocations, nil
}

// --- Config versions ---

func (m *MemoryStore) MaxConfigVersion(ctx context.Context, environmentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	max := 0
	for _, cv := range m.configVersions[environmentID] {
		if cv.Version > max {
			max = cv.Version
		}
	}
	return max, nil
}

func (m *MemoryStore) AppendConfigVersion(ctx context.Context, cv model.ConfigVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Same uniqueness the schema enforces with UNIQUE (environment_id, version).
	for _, existing := range m.configVersions[cv.EnvironmentID] {
		if existing.Version == cv.Version {
			return fmt.Errorf("config version %d: %w", cv.Version, ErrConflict)
		}
	}
	m.configVersions[cv.EnvironmentID] = append(m.configVersions[cv.EnvironmentID], cv)
	return nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

// --- helpers ---

func paginate[T any](all []T, page Page) []T {
	start := page.Offset()
	if start >= len(all) {
		return []T{}
	}
	end := start + page.Size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func applyVariantUpdate(exp *model.Experiment, variantID string, params UpdateVariantParams) (model.Variant, error) {
	for i, v := range exp.Variants {
		if v.ID != variantID {
			continue
		}
		if params.Name != nil {
			v.Name = *params.Name
		}
		if params.ClearPayload {
			v.Payload = nil
		} else if params.Payload != nil {
			v.Payload = clonePayload(params.Payload)
		}
		exp.Variants[i] = v
		return v, nil
	}
	return model.Variant{}, fmt.Errorf("variant %q: %w", variantID, ErrNotFound)
}

func deleteVariantFrom(exp *model.Experiment, variantID string) bool {
	for i, v := range exp.Variants {
		if v.ID == variantID {
			exp.Variants = append(exp.Variants[:i], exp.Variants[i+1:]...)
			// Drop allocations pointing at the removed variant.
			kept := exp.Allocations[:0]
			for _, a := range exp.Allocations {
				if a.VariantID != variantID {
					kept = append(kept, a)
				}
			}
			exp.Allocations = kept
			return true
		}
	}
	return false
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneRules(rs []rules.Rule) []rules.Rule {
	if rs == nil {
		return []rules.Rule{}
	}
	out := make([]rules.Rule, len(rs))
	for i, r := range rs {
		conditions := make([]rules.Condition, len(r.Conditions))
		copy(conditions, r.Conditions)
		out[i] = rules.Rule{Conditions: conditions}
	}
	return out
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func cloneVariant(v model.Variant) model.Variant {
	v.Payload = clonePayload(v.Payload)
	return v
}

func cloneAudience(a model.Audience) model.Audience {
	a.Rules = cloneRules(a.Rules)
	return a
}

func cloneExperiment(e model.Experiment) model.Experiment {
	e.AudienceID = cloneStringPtr(e.AudienceID)
	e.TargetingRules = cloneRules(e.TargetingRules)
	variants := make([]model.Variant, len(e.Variants))
	for i, v := range e.Variants {
		variants[i] = cloneVariant(v)
	}
	e.Variants = variants
	allocations := make([]model.Allocation, len(e.Allocations))
	copy(allocations, e.Allocations)
	e.Allocations = allocations
	return e
}
