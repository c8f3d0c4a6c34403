package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/objstore"
	"github.com/variantflow/variantflow/internal/publisher"
	"github.com/variantflow/variantflow/internal/store"
)

type testServer struct {
	handler http.Handler
	store   *store.MemoryStore
	objects *objstore.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	objects := objstore.NewMemoryStore()
	srv := NewServer(st, publisher.New(st, objects, zerolog.Nop()), zerolog.Nop())
	return &testServer{handler: srv.Router(), store: st, objects: objects}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
	return v
}

func (ts *testServer) createEnvironment(t *testing.T, name string) model.Environment {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/environments", map[string]string{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create environment: %d %s", rec.Code, rec.Body.String())
	}
	return decodeBody[model.Environment](t, rec)
}

func (ts *testServer) createExperiment(t *testing.T, envID, key string) model.Experiment {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/experiments", map[string]any{
		"key": key, "name": key, "environmentId": envID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create experiment: %d %s", rec.Code, rec.Body.String())
	}
	return decodeBody[model.Experiment](t, rec)
}

func (ts *testServer) createVariant(t *testing.T, expID, key string) model.Variant {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/experiments/"+expID+"/variants", map[string]any{"key": key})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create variant: %d %s", rec.Code, rec.Body.String())
	}
	return decodeBody[model.Variant](t, rec)
}

func (ts *testServer) runExperiment(t *testing.T, expID, variantID string) {
	t.Helper()
	rec := ts.do(t, http.MethodPut, "/v1/experiments/"+expID+"/allocations", []map[string]any{
		{"variantId": variantID, "rangeStart": 0, "rangeEnd": 9999},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("set allocations: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPatch, "/v1/experiments/"+expID+"/status", map[string]string{"status": "RUNNING"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start experiment: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateEnvironment(t *testing.T) {
	ts := newTestServer(t)

	env := ts.createEnvironment(t, "prod")
	if env.ID == "" || env.Name != "prod" {
		t.Fatalf("unexpected environment %+v", env)
	}

	rec := ts.do(t, http.MethodPost, "/v1/environments", map[string]string{"name": "prod"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate name = %d, want 409", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/v1/environments", map[string]string{"name": "bad name/"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid name = %d, want 400", rec.Code)
	}
}

func TestPagination(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 25; i++ {
		ts.createEnvironment(t, fmt.Sprintf("env-%02d", i))
	}

	rec := ts.do(t, http.MethodGet, "/v1/environments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	resp := decodeBody[struct {
		Data       []model.Environment `json:"data"`
		Pagination pageMeta            `json:"pagination"`
	}](t, rec)
	if len(resp.Data) != 20 {
		t.Fatalf("default page size returned %d rows, want 20", len(resp.Data))
	}
	want := pageMeta{Page: 1, PageSize: 20, Total: 25, TotalPages: 2}
	if resp.Pagination != want {
		t.Fatalf("pagination = %+v, want %+v", resp.Pagination, want)
	}

	rec = ts.do(t, http.MethodGet, "/v1/environments?page=2&pageSize=20", nil)
	resp = decodeBody[struct {
		Data       []model.Environment `json:"data"`
		Pagination pageMeta            `json:"pagination"`
	}](t, rec)
	if len(resp.Data) != 5 {
		t.Fatalf("second page returned %d rows, want 5", len(resp.Data))
	}

	for _, q := range []string{"?page=2", "?pageSize=10", "?page=0&pageSize=10", "?page=1&pageSize=101"} {
		rec := ts.do(t, http.MethodGet, "/v1/environments"+q, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("list%s = %d, want 400", q, rec.Code)
		}
	}
}

func TestExperimentLifecycle(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	exp := ts.createExperiment(t, env.ID, "exp-A")
	if exp.Status != model.StatusDraft || exp.Salt == "" {
		t.Fatalf("new experiment = %+v, want DRAFT with salt", exp)
	}
	v := ts.createVariant(t, exp.ID, "control")

	rec := ts.do(t, http.MethodPut, "/v1/experiments/"+exp.ID+"/allocations", []map[string]any{
		{"variantId": v.ID, "rangeStart": 0, "rangeEnd": 9999},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("allocations = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPatch, "/v1/experiments/"+exp.ID+"/status", map[string]string{"status": "RUNNING"})
	if rec.Code != http.StatusOK {
		t.Fatalf("transition = %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("x-publish-attempted"); got != "true" {
		t.Fatalf("x-publish-attempted = %q, want true", got)
	}
	if got := rec.Header().Get("x-publish-succeeded"); got != "true" {
		t.Fatalf("x-publish-succeeded = %q, want true", got)
	}
	if _, ok := ts.objects.Object(objstore.LatestKey("test")); !ok {
		t.Fatal("transition did not publish a snapshot")
	}

	rec = ts.do(t, http.MethodPatch, "/v1/experiments/"+exp.ID+"/status", map[string]string{"status": "DRAFT"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("illegal transition = %d, want 422", rec.Code)
	}

	rec = ts.do(t, http.MethodPatch, "/v1/experiments/"+exp.ID+"/status", map[string]string{"status": "SHIPPED"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status = %d, want 400", rec.Code)
	}
}

func TestUpdateExperimentPublishTrigger(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	exp := ts.createExperiment(t, env.ID, "exp-A")

	// Targeting edits on a DRAFT experiment do not publish.
	rec := ts.do(t, http.MethodPatch, "/v1/experiments/"+exp.ID, map[string]any{
		"targetingRules": []map[string]any{{"conditions": []map[string]any{
			{"attribute": "plan", "operator": "eq", "value": "pro"},
		}}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("x-publish-attempted"); got != "false" {
		t.Fatalf("x-publish-attempted on draft = %q, want false", got)
	}

	v := ts.createVariant(t, exp.ID, "control")
	ts.runExperiment(t, exp.ID, v.ID)

	rec = ts.do(t, http.MethodPatch, "/v1/experiments/"+exp.ID, map[string]any{
		"targetingRules": []map[string]any{},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("x-publish-attempted"); got != "true" {
		t.Fatalf("x-publish-attempted on running = %q, want true", got)
	}

	// Name-only edits never publish.
	rec = ts.do(t, http.MethodPatch, "/v1/experiments/"+exp.ID, map[string]any{"name": "renamed"})
	if got := rec.Header().Get("x-publish-attempted"); got != "false" {
		t.Fatalf("x-publish-attempted on rename = %q, want false", got)
	}
}

func TestUpdateExperimentDetachAudience(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	rec := ts.do(t, http.MethodPost, "/v1/audiences", map[string]any{
		"name": "everyone", "environmentId": env.ID, "rules": []any{},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create audience = %d %s", rec.Code, rec.Body.String())
	}
	aud := decodeBody[model.Audience](t, rec)

	exp := ts.createExperiment(t, env.ID, "exp-A")
	rec = ts.do(t, http.MethodPatch, "/v1/experiments/"+exp.ID, map[string]any{"audienceId": aud.ID})
	got := decodeBody[model.Experiment](t, rec)
	if got.AudienceID == nil || *got.AudienceID != aud.ID {
		t.Fatalf("audience not attached: %+v", got.AudienceID)
	}

	// Explicit null detaches; an absent field leaves the link alone.
	rec = ts.do(t, http.MethodPatch, "/v1/experiments/"+exp.ID, map[string]any{"audienceId": nil})
	got = decodeBody[model.Experiment](t, rec)
	if got.AudienceID != nil {
		t.Fatalf("audience not detached: %+v", got.AudienceID)
	}
}

func TestAudiencePublishTriggers(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	rec := ts.do(t, http.MethodPost, "/v1/audiences", map[string]any{
		"name": "pro-users", "environmentId": env.ID,
		"rules": []map[string]any{{"conditions": []map[string]any{
			{"attribute": "plan", "operator": "eq", "value": "pro"},
		}}},
	})
	aud := decodeBody[model.Audience](t, rec)

	// No running experiment references it yet.
	rec = ts.do(t, http.MethodPatch, "/v1/audiences/"+aud.ID, map[string]any{"rules": []any{}})
	if got := rec.Header().Get("x-publish-attempted"); got != "false" {
		t.Fatalf("x-publish-attempted without running refs = %q, want false", got)
	}

	exp := ts.createExperiment(t, env.ID, "exp-A")
	ts.do(t, http.MethodPatch, "/v1/experiments/"+exp.ID, map[string]any{"audienceId": aud.ID})
	v := ts.createVariant(t, exp.ID, "control")
	ts.runExperiment(t, exp.ID, v.ID)

	rec = ts.do(t, http.MethodPatch, "/v1/audiences/"+aud.ID, map[string]any{
		"rules": []map[string]any{{"conditions": []map[string]any{
			{"attribute": "plan", "operator": "in", "value": []string{"pro", "team"}},
		}}},
	})
	if got := rec.Header().Get("x-publish-attempted"); got != "true" {
		t.Fatalf("x-publish-attempted with running refs = %q, want true", got)
	}

	// Name-only update never publishes.
	rec = ts.do(t, http.MethodPatch, "/v1/audiences/"+aud.ID, map[string]any{"name": "renamed"})
	if got := rec.Header().Get("x-publish-attempted"); got != "false" {
		t.Fatalf("x-publish-attempted on rename = %q, want false", got)
	}

	rec = ts.do(t, http.MethodDelete, "/v1/audiences/"+aud.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete audience = %d", rec.Code)
	}
	if got := rec.Header().Get("x-publish-attempted"); got != "true" {
		t.Fatalf("x-publish-attempted on delete with running refs = %q, want true", got)
	}
}

func TestVariantBatchRejectsConflictingIDs(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	exp := ts.createExperiment(t, env.ID, "exp-A")
	v := ts.createVariant(t, exp.ID, "control")

	rec := ts.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/variants/batch", map[string]any{
		"update": []map[string]any{{"id": v.ID, "name": "renamed"}},
		"delete": []string{v.ID},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("conflicting batch = %d, want 400", rec.Code)
	}
}

func TestVariantBatchTransactional(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	exp := ts.createExperiment(t, env.ID, "exp-A")
	ts.createVariant(t, exp.ID, "control")

	// The second create collides with the existing key; the first must
	// roll back with it.
	rec := ts.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/variants/batch", map[string]any{
		"create": []map[string]any{{"key": "treatment"}, {"key": "control"}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("conflicting create = %d, want 409", rec.Code)
	}
	got, err := ts.store.GetExperiment(t.Context(), exp.ID)
	if err != nil {
		t.Fatalf("GetExperiment: %v", err)
	}
	if len(got.Variants) != 1 || got.Variants[0].Key != "control" {
		t.Fatalf("batch was not atomic: %+v", got.Variants)
	}
}

func TestVariantBatchRecreatesDeletedKey(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	exp := ts.createExperiment(t, env.ID, "exp-A")
	v := ts.createVariant(t, exp.ID, "control")

	// Deletes apply before creates, so one batch can swap the variant
	// behind a key.
	rec := ts.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/variants/batch", map[string]any{
		"create": []map[string]any{{"key": "control", "name": "replacement"}},
		"delete": []string{v.ID},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("swap batch = %d: %s", rec.Code, rec.Body.String())
	}
	got, err := ts.store.GetExperiment(t.Context(), exp.ID)
	if err != nil {
		t.Fatalf("GetExperiment: %v", err)
	}
	if len(got.Variants) != 1 || got.Variants[0].Key != "control" {
		t.Fatalf("swap result: %+v", got.Variants)
	}
	if got.Variants[0].ID == v.ID || got.Variants[0].Name != "replacement" {
		t.Fatalf("old variant survived the swap: %+v", got.Variants[0])
	}
}

func TestReplaceAllocationsValidation(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	exp := ts.createExperiment(t, env.ID, "exp-A")
	v := ts.createVariant(t, exp.ID, "control")

	cases := []struct {
		name string
		body []map[string]any
	}{
		{"overlap", []map[string]any{
			{"variantId": v.ID, "rangeStart": 0, "rangeEnd": 5000},
			{"variantId": v.ID, "rangeStart": 5000, "rangeEnd": 9999},
		}},
		{"out of bounds", []map[string]any{{"variantId": v.ID, "rangeStart": 0, "rangeEnd": 10000}}},
		{"inverted", []map[string]any{{"variantId": v.ID, "rangeStart": 100, "rangeEnd": 50}}},
		{"unknown variant", []map[string]any{{"variantId": "nope", "rangeStart": 0, "rangeEnd": 10}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPut, "/v1/experiments/"+exp.ID+"/allocations", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("code = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestImplicitPublishFailureDoesNotFailMutation(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	exp := ts.createExperiment(t, env.ID, "exp-A")
	v := ts.createVariant(t, exp.ID, "control")
	ts.runExperiment(t, exp.ID, v.ID)

	ts.objects.FailPuts = true
	rec := ts.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/variants", map[string]any{"key": "treatment"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("mutation = %d, want 201 despite publish failure", rec.Code)
	}
	if got := rec.Header().Get("x-publish-attempted"); got != "true" {
		t.Fatalf("x-publish-attempted = %q, want true", got)
	}
	if got := rec.Header().Get("x-publish-succeeded"); got != "false" {
		t.Fatalf("x-publish-succeeded = %q, want false", got)
	}
	if msg := rec.Header().Get("x-publish-error"); msg == "" || len(msg) > 512 {
		t.Fatalf("x-publish-error = %q", msg)
	}
}

func TestExplicitPublish(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	exp := ts.createExperiment(t, env.ID, "exp-A")
	v := ts.createVariant(t, exp.ID, "control")
	ts.runExperiment(t, exp.ID, v.ID)

	rec := ts.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/publish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish = %d %s", rec.Code, rec.Body.String())
	}
	snap := decodeBody[struct {
		Version     int    `json:"version"`
		Environment string `json:"environment"`
	}](t, rec)
	if snap.Environment != "test" || snap.Version < 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	ts.objects.FailPuts = true
	rec = ts.do(t, http.MethodPost, "/v1/experiments/"+exp.ID+"/publish", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("failed publish = %d, want 500", rec.Code)
	}
}

func TestDeleteExperimentAlwaysPublishes(t *testing.T) {
	ts := newTestServer(t)
	env := ts.createEnvironment(t, "test")
	exp := ts.createExperiment(t, env.ID, "exp-A")

	rec := ts.do(t, http.MethodDelete, "/v1/experiments/"+exp.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("x-publish-attempted"); got != "true" {
		t.Fatalf("x-publish-attempted = %q, want true", got)
	}

	rec = ts.do(t, http.MethodDelete, "/v1/experiments/"+exp.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d, want 404", rec.Code)
	}
}

func TestNotFoundAndBadBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/experiments/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing experiment = %d, want 404", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Fatalf("error body = %s", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/environments", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body = %d, want 400", w.Code)
	}
}

func TestHeaderLine(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	if got := headerLine(string(long)); len(got) != 512 {
		t.Fatalf("len = %d, want 512", len(got))
	}
	if got := headerLine("  put failed:\r\nconnection reset  "); got != "put failed:  connection reset" {
		t.Fatalf("got %q", got)
	}
}
