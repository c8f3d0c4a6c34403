package store

import (
	"context"
	"errors"
	"testing"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/rules"
)

func newEnv(t *testing.T, m *MemoryStore, name string) model.Environment {
	t.Helper()
	env, err := m.CreateEnvironment(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateEnvironment: %v", err)
	}
	return env
}

func newExperiment(t *testing.T, m *MemoryStore, envID, key string) model.Experiment {
	t.Helper()
	exp, err := m.CreateExperiment(context.Background(), CreateExperimentParams{
		Key: key, Name: key, Salt: "salt-" + key, EnvironmentID: envID,
	})
	if err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	return exp
}

func TestMemoryStore_EnvironmentUniqueness(t *testing.T) {
	m := NewMemoryStore()
	newEnv(t, m, "prod")
	if _, err := m.CreateEnvironment(context.Background(), "prod"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate name: got %v, want ErrConflict", err)
	}
}

func TestMemoryStore_ExperimentKeyUniquePerEnvironment(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	env1 := newEnv(t, m, "env1")
	env2 := newEnv(t, m, "env2")

	newExperiment(t, m, env1.ID, "exp-A")
	if _, err := m.CreateExperiment(ctx, CreateExperimentParams{Key: "exp-A", Salt: "s", EnvironmentID: env1.ID}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate key in same env: got %v, want ErrConflict", err)
	}
	// Same key in a different environment is fine.
	if _, err := m.CreateExperiment(ctx, CreateExperimentParams{Key: "exp-A", Salt: "s", EnvironmentID: env2.ID}); err != nil {
		t.Fatalf("same key in other env: %v", err)
	}
}

func TestMemoryStore_CrossEnvironmentAudience(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	env1 := newEnv(t, m, "env1")
	env2 := newEnv(t, m, "env2")

	aud, err := m.CreateAudience(ctx, CreateAudienceParams{Name: "us-users", EnvironmentID: env2.ID, Rules: []rules.Rule{}})
	if err != nil {
		t.Fatalf("CreateAudience: %v", err)
	}

	_, err = m.CreateExperiment(ctx, CreateExperimentParams{
		Key: "exp-x", Salt: "s", EnvironmentID: env1.ID, AudienceID: &aud.ID,
	})
	if !errors.Is(err, ErrCrossEnvironment) {
		t.Fatalf("got %v, want ErrCrossEnvironment", err)
	}

	exp := newExperiment(t, m, env1.ID, "exp-y")
	_, err = m.UpdateExperiment(ctx, exp.ID, UpdateExperimentParams{SetAudience: true, AudienceID: &aud.ID})
	if !errors.Is(err, ErrCrossEnvironment) {
		t.Fatalf("update: got %v, want ErrCrossEnvironment", err)
	}
}

func TestMemoryStore_AudienceDeleteDetachesExperiments(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	env := newEnv(t, m, "env")
	aud, _ := m.CreateAudience(ctx, CreateAudienceParams{Name: "a", EnvironmentID: env.ID, Rules: []rules.Rule{}})

	exp, err := m.CreateExperiment(ctx, CreateExperimentParams{Key: "e", Salt: "s", EnvironmentID: env.ID, AudienceID: &aud.ID})
	if err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	if err := m.DeleteAudience(ctx, aud.ID); err != nil {
		t.Fatalf("DeleteAudience: %v", err)
	}
	got, _ := m.GetExperiment(ctx, exp.ID)
	if got.AudienceID != nil {
		t.Fatal("experiment must be detached from the deleted audience")
	}
}

func TestMemoryStore_VariantLifecycle(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	env := newEnv(t, m, "env")
	exp := newExperiment(t, m, env.ID, "exp")

	v, err := m.CreateVariant(ctx, exp.ID, CreateVariantParams{Key: "control", Name: "Control", Payload: map[string]any{"color": "blue"}})
	if err != nil {
		t.Fatalf("CreateVariant: %v", err)
	}
	if _, err := m.CreateVariant(ctx, exp.ID, CreateVariantParams{Key: "control"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate variant key: got %v, want ErrConflict", err)
	}

	newName := "Control v2"
	updated, err := m.UpdateVariant(ctx, exp.ID, v.ID, UpdateVariantParams{Name: &newName, ClearPayload: true})
	if err != nil {
		t.Fatalf("UpdateVariant: %v", err)
	}
	if updated.Name != newName || updated.Payload != nil {
		t.Fatalf("update not applied: %+v", updated)
	}

	if err := m.DeleteVariant(ctx, exp.ID, v.ID); err != nil {
		t.Fatalf("DeleteVariant: %v", err)
	}
	if err := m.DeleteVariant(ctx, exp.ID, v.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_VariantBatchIsAtomic(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	env := newEnv(t, m, "env")
	exp := newExperiment(t, m, env.ID, "exp")
	m.CreateVariant(ctx, exp.ID, CreateVariantParams{Key: "control"})

	// Second create collides with an existing key: the whole batch must
	// roll back, including the valid first create.
	_, err := m.ApplyVariantBatch(ctx, exp.ID, VariantBatch{
		Create: []CreateVariantParams{{Key: "treatment"}, {Key: "control"}},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
	got, _ := m.GetExperiment(ctx, exp.ID)
	if len(got.Variants) != 1 {
		t.Fatalf("batch must be atomic; experiment has %d variants", len(got.Variants))
	}
}

func TestMemoryStore_VariantDeleteDropsAllocations(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	env := newEnv(t, m, "env")
	exp := newExperiment(t, m, env.ID, "exp")
	v, _ := m.CreateVariant(ctx, exp.ID, CreateVariantParams{Key: "control"})
	if _, err := m.ReplaceAllocations(ctx, exp.ID, []AllocationRange{{VariantID: v.ID, RangeStart: 0, RangeEnd: 9999}}); err != nil {
		t.Fatalf("ReplaceAllocations: %v", err)
	}
	if err := m.DeleteVariant(ctx, exp.ID, v.ID); err != nil {
		t.Fatalf("DeleteVariant: %v", err)
	}
	got, _ := m.GetExperiment(ctx, exp.ID)
	if len(got.Allocations) != 0 {
		t.Fatal("allocations for the deleted variant must be dropped")
	}
}

func TestMemoryStore_ReplaceAllocationsValidation(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	env := newEnv(t, m, "env")
	exp := newExperiment(t, m, env.ID, "exp")
	v, _ := m.CreateVariant(ctx, exp.ID, CreateVariantParams{Key: "control"})

	tests := []struct {
		name   string
		ranges []AllocationRange
		wantOK bool
	}{
		{"valid holdout", []AllocationRange{{VariantID: v.ID, RangeStart: 0, RangeEnd: 4999}}, true},
		{"full coverage", []AllocationRange{{VariantID: v.ID, RangeStart: 0, RangeEnd: 9999}}, true},
		{"out of range", []AllocationRange{{VariantID: v.ID, RangeStart: 0, RangeEnd: 10000}}, false},
		{"inverted", []AllocationRange{{VariantID: v.ID, RangeStart: 100, RangeEnd: 50}}, false},
		{"overlap", []AllocationRange{
			{VariantID: v.ID, RangeStart: 0, RangeEnd: 5000},
			{VariantID: v.ID, RangeStart: 5000, RangeEnd: 9999},
		}, false},
		{"unknown variant", []AllocationRange{{VariantID: "nope", RangeStart: 0, RangeEnd: 10}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ReplaceAllocations(ctx, exp.ID, tt.ranges)
			if (err == nil) != tt.wantOK {
				t.Fatalf("err = %v, wantOK = %v", err, tt.wantOK)
			}
		})
	}
}

func TestMemoryStore_ConfigVersions(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	env := newEnv(t, m, "env")

	max, err := m.MaxConfigVersion(ctx, env.ID)
	if err != nil || max != 0 {
		t.Fatalf("MaxConfigVersion on empty env = %d, %v", max, err)
	}
	for i := 1; i <= 3; i++ {
		if err := m.AppendConfigVersion(ctx, model.ConfigVersion{EnvironmentID: env.ID, Version: i}); err != nil {
			t.Fatalf("AppendConfigVersion: %v", err)
		}
	}
	if max, _ = m.MaxConfigVersion(ctx, env.ID); max != 3 {
		t.Fatalf("MaxConfigVersion = %d, want 3", max)
	}
}

func TestMemoryStore_AppendConfigVersionRejectsDuplicate(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	env := newEnv(t, m, "env")

	if err := m.AppendConfigVersion(ctx, model.ConfigVersion{EnvironmentID: env.ID, Version: 1}); err != nil {
		t.Fatalf("AppendConfigVersion: %v", err)
	}
	if err := m.AppendConfigVersion(ctx, model.ConfigVersion{EnvironmentID: env.ID, Version: 1}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate version: got %v, want ErrConflict", err)
	}
	if max, _ := m.MaxConfigVersion(ctx, env.ID); max != 1 {
		t.Fatalf("MaxConfigVersion = %d, want 1", max)
	}
}

func TestMemoryStore_HasRunningExperimentsForAudience(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	env := newEnv(t, m, "env")
	aud, _ := m.CreateAudience(ctx, CreateAudienceParams{Name: "a", EnvironmentID: env.ID, Rules: []rules.Rule{}})
	exp, _ := m.CreateExperiment(ctx, CreateExperimentParams{Key: "e", Salt: "s", EnvironmentID: env.ID, AudienceID: &aud.ID})

	if got, _ := m.HasRunningExperimentsForAudience(ctx, aud.ID); got {
		t.Fatal("DRAFT experiment must not count as running")
	}
	m.UpdateExperimentStatus(ctx, exp.ID, model.StatusRunning)
	if got, _ := m.HasRunningExperimentsForAudience(ctx, aud.ID); !got {
		t.Fatal("RUNNING experiment must count")
	}
}

func TestMemoryStore_Pagination(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		newEnv(t, m, name)
	}
	page1, total, err := m.ListEnvironments(ctx, Page{Number: 1, Size: 2})
	if err != nil || total != 5 || len(page1) != 2 {
		t.Fatalf("page 1: %d items, total %d, err %v", len(page1), total, err)
	}
	page3, _, _ := m.ListEnvironments(ctx, Page{Number: 3, Size: 2})
	if len(page3) != 1 {
		t.Fatalf("page 3: %d items, want 1", len(page3))
	}
	page4, _, _ := m.ListEnvironments(ctx, Page{Number: 4, Size: 2})
	if len(page4) != 0 {
		t.Fatalf("page 4: %d items, want 0", len(page4))
	}
}
