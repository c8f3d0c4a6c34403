// Package client is a typed HTTP client for the control-plane API, used
// by expctl and by services that script experiment changes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/rules"
	"github.com/variantflow/variantflow/internal/snapshot"
)

// Client is an HTTP client for the control-plane API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates an API client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the control plane.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// PublishOutcome is the implicit-publish metadata a mutation reports via
// response headers.
type PublishOutcome struct {
	Attempted bool
	Succeeded bool
	Error     string
}

func publishOutcome(h http.Header) PublishOutcome {
	attempted, _ := strconv.ParseBool(h.Get("x-publish-attempted"))
	succeeded, _ := strconv.ParseBool(h.Get("x-publish-succeeded"))
	return PublishOutcome{
		Attempted: attempted,
		Succeeded: succeeded,
		Error:     h.Get("x-publish-error"),
	}
}

// ListMeta is the pagination block of a list response.
type ListMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var wire struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		msg := string(raw)
		if json.Unmarshal(raw, &wire) == nil && wire.Error != "" {
			msg = wire.Error
		}
		return resp.Header, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.Header, nil
}

// CreateEnvironment creates an environment.
func (c *Client) CreateEnvironment(ctx context.Context, name string) (model.Environment, error) {
	var env model.Environment
	_, err := c.do(ctx, http.MethodPost, "/v1/environments", map[string]string{"name": name}, &env)
	return env, err
}

// ListEnvironments lists environments for one page.
func (c *Client) ListEnvironments(ctx context.Context, page, pageSize int) ([]model.Environment, ListMeta, error) {
	var resp struct {
		Data       []model.Environment `json:"data"`
		Pagination ListMeta            `json:"pagination"`
	}
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/environments?page=%d&pageSize=%d", page, pageSize), nil, &resp)
	return resp.Data, resp.Pagination, err
}

// CreateAudienceParams are the fields for a new audience.
type CreateAudienceParams struct {
	Name          string       `json:"name"`
	EnvironmentID string       `json:"environmentId"`
	Rules         []rules.Rule `json:"rules"`
}

// CreateAudience creates an audience.
func (c *Client) CreateAudience(ctx context.Context, params CreateAudienceParams) (model.Audience, error) {
	if params.Rules == nil {
		params.Rules = []rules.Rule{}
	}
	var aud model.Audience
	_, err := c.do(ctx, http.MethodPost, "/v1/audiences", params, &aud)
	return aud, err
}

// CreateExperimentParams are the fields for a new experiment.
type CreateExperimentParams struct {
	Key            string       `json:"key"`
	Name           string       `json:"name,omitempty"`
	Description    string       `json:"description,omitempty"`
	EnvironmentID  string       `json:"environmentId"`
	AudienceID     *string      `json:"audienceId,omitempty"`
	TargetingRules []rules.Rule `json:"targetingRules,omitempty"`
}

// CreateExperiment creates an experiment in DRAFT.
func (c *Client) CreateExperiment(ctx context.Context, params CreateExperimentParams) (model.Experiment, error) {
	var exp model.Experiment
	_, err := c.do(ctx, http.MethodPost, "/v1/experiments", params, &exp)
	return exp, err
}

// GetExperiment fetches one experiment with variants and allocations.
func (c *Client) GetExperiment(ctx context.Context, id string) (model.Experiment, error) {
	var exp model.Experiment
	_, err := c.do(ctx, http.MethodGet, "/v1/experiments/"+url.PathEscape(id), nil, &exp)
	return exp, err
}

// ListExperiments lists experiments, optionally filtered by environment and
// status.
func (c *Client) ListExperiments(ctx context.Context, environmentID, status string, page, pageSize int) ([]model.Experiment, ListMeta, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	if environmentID != "" {
		q.Set("environmentId", environmentID)
	}
	if status != "" {
		q.Set("status", status)
	}

	var resp struct {
		Data       []model.Experiment `json:"data"`
		Pagination ListMeta           `json:"pagination"`
	}
	_, err := c.do(ctx, http.MethodGet, "/v1/experiments?"+q.Encode(), nil, &resp)
	return resp.Data, resp.Pagination, err
}

// UpdateExperimentStatus transitions the experiment lifecycle and reports
// the implicit-publish outcome.
func (c *Client) UpdateExperimentStatus(ctx context.Context, id string, status model.Status) (model.Experiment, PublishOutcome, error) {
	var exp model.Experiment
	h, err := c.do(ctx, http.MethodPatch, "/v1/experiments/"+url.PathEscape(id)+"/status",
		map[string]model.Status{"status": status}, &exp)
	return exp, publishOutcome(h), err
}

// DeleteExperiment deletes the experiment and reports the re-publish
// outcome.
func (c *Client) DeleteExperiment(ctx context.Context, id string) (PublishOutcome, error) {
	h, err := c.do(ctx, http.MethodDelete, "/v1/experiments/"+url.PathEscape(id), nil, nil)
	return publishOutcome(h), err
}

// Publish explicitly compiles and publishes the experiment's environment
// snapshot.
func (c *Client) Publish(ctx context.Context, experimentID string) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	_, err := c.do(ctx, http.MethodPost, "/v1/experiments/"+url.PathEscape(experimentID)+"/publish", nil, &snap)
	return snap, err
}

// CreateVariantParams are the fields for a new variant.
type CreateVariantParams struct {
	Key     string         `json:"key"`
	Name    string         `json:"name,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// CreateVariant creates a variant and reports the implicit-publish
// outcome.
func (c *Client) CreateVariant(ctx context.Context, experimentID string, params CreateVariantParams) (model.Variant, PublishOutcome, error) {
	var v model.Variant
	h, err := c.do(ctx, http.MethodPost, "/v1/experiments/"+url.PathEscape(experimentID)+"/variants", params, &v)
	return v, publishOutcome(h), err
}

// AllocationRange is one requested bucket range.
type AllocationRange struct {
	VariantID  string `json:"variantId"`
	RangeStart int    `json:"rangeStart"`
	RangeEnd   int    `json:"rangeEnd"`
}

// ReplaceAllocations swaps the experiment's full allocation set and
// reports the implicit-publish outcome.
func (c *Client) ReplaceAllocations(ctx context.Context, experimentID string, ranges []AllocationRange) ([]model.Allocation, PublishOutcome, error) {
	var resp struct {
		Allocations []model.Allocation `json:"allocations"`
	}
	h, err := c.do(ctx, http.MethodPut, "/v1/experiments/"+url.PathEscape(experimentID)+"/allocations", ranges, &resp)
	return resp.Allocations, publishOutcome(h), err
}
