package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/variantflow/variantflow/internal/api"
	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/objstore"
	"github.com/variantflow/variantflow/internal/publisher"
	"github.com/variantflow/variantflow/internal/store"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	st := store.NewMemoryStore()
	objects := objstore.NewMemoryStore()
	srv := api.NewServer(st, publisher.New(st, objects, zerolog.Nop()), zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return New(ts.URL)
}

func TestClientExperimentFlow(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	env, err := c.CreateEnvironment(ctx, "test")
	if err != nil {
		t.Fatalf("CreateEnvironment: %v", err)
	}

	exp, err := c.CreateExperiment(ctx, CreateExperimentParams{Key: "exp-A", EnvironmentID: env.ID})
	if err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	if exp.Status != model.StatusDraft {
		t.Fatalf("status = %s, want DRAFT", exp.Status)
	}

	v, outcome, err := c.CreateVariant(ctx, exp.ID, CreateVariantParams{Key: "control"})
	if err != nil {
		t.Fatalf("CreateVariant: %v", err)
	}
	if outcome.Attempted {
		t.Fatal("variant create on DRAFT experiment must not publish")
	}

	if _, _, err := c.ReplaceAllocations(ctx, exp.ID, []AllocationRange{
		{VariantID: v.ID, RangeStart: 0, RangeEnd: 9999},
	}); err != nil {
		t.Fatalf("ReplaceAllocations: %v", err)
	}

	_, outcome, err = c.UpdateExperimentStatus(ctx, exp.ID, model.StatusRunning)
	if err != nil {
		t.Fatalf("UpdateExperimentStatus: %v", err)
	}
	if !outcome.Attempted || !outcome.Succeeded {
		t.Fatalf("transition outcome = %+v, want attempted and succeeded", outcome)
	}

	snap, err := c.Publish(ctx, exp.ID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if snap.Environment != "test" || len(snap.Experiments) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	experiments, meta, err := c.ListExperiments(ctx, env.ID, "RUNNING", 1, 20)
	if err != nil {
		t.Fatalf("ListExperiments: %v", err)
	}
	if len(experiments) != 1 || meta.Total != 1 {
		t.Fatalf("list = %d rows, meta %+v", len(experiments), meta)
	}
}

func TestClientAPIError(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, err := c.GetExperiment(ctx, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 404 || apiErr.Message == "" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}
