package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/rules"
)

const uniqueViolation = "23505"

// PostgresStore is a PostgreSQL implementation of the Store interface.
// Rules and payloads are stored as jsonb; cascades mirror the ownership
// model (environments own audiences and experiments, experiments own
// variants and allocations, audience deletion detaches experiments).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func marshalRules(rs []rules.Rule) ([]byte, error) {
	if rs == nil {
		rs = []rules.Rule{}
	}
	return json.Marshal(rs)
}

func unmarshalRules(b []byte) ([]rules.Rule, error) {
	rs := []rules.Rule{}
	if len(b) == 0 {
		return rs, nil
	}
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return rs, nil
}

// --- Environments ---

func (p *PostgresStore) CreateEnvironment(ctx context.Context, name string) (model.Environment, error) {
	env := model.Environment{ID: uuid.NewString(), Name: name}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO environments (id, name) VALUES ($1, $2) RETURNING created_at, updated_at`,
		env.ID, name,
	).Scan(&env.CreatedAt, &env.UpdatedAt)
	if isUniqueViolation(err) {
		return model.Environment{}, fmt.Errorf("environment %q: %w", name, ErrConflict)
	}
	if err != nil {
		return model.Environment{}, err
	}
	return env, nil
}

func (p *PostgresStore) GetEnvironment(ctx context.Context, id string) (model.Environment, error) {
	var env model.Environment
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM environments WHERE id = $1`, id,
	).Scan(&env.ID, &env.Name, &env.CreatedAt, &env.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Environment{}, fmt.Errorf("environment %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Environment{}, err
	}
	return env, nil
}

func (p *PostgresStore) ListEnvironments(ctx context.Context, page Page) ([]model.Environment, int, error) {
	var total int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM environments`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, created_at, updated_at FROM environments ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		page.Size, page.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	envs := []model.Environment{}
	for rows.Next() {
		var env model.Environment
		if err := rows.Scan(&env.ID, &env.Name, &env.CreatedAt, &env.UpdatedAt); err != nil {
			return nil, 0, err
		}
		envs = append(envs, env)
	}
	return envs, total, rows.Err()
}

// --- Audiences ---

func (p *PostgresStore) CreateAudience(ctx context.Context, params CreateAudienceParams) (model.Audience, error) {
	if _, err := p.GetEnvironment(ctx, params.EnvironmentID); err != nil {
		return model.Audience{}, err
	}
	rulesJSON, err := marshalRules(params.Rules)
	if err != nil {
		return model.Audience{}, err
	}
	aud := model.Audience{
		ID:            uuid.NewString(),
		Name:          params.Name,
		EnvironmentID: params.EnvironmentID,
		Rules:         params.Rules,
	}
	err = p.pool.QueryRow(ctx,
		`INSERT INTO audiences (id, environment_id, name, rules) VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		aud.ID, aud.EnvironmentID, aud.Name, rulesJSON,
	).Scan(&aud.CreatedAt, &aud.UpdatedAt)
	if isUniqueViolation(err) {
		return model.Audience{}, fmt.Errorf("audience %q: %w", params.Name, ErrConflict)
	}
	if err != nil {
		return model.Audience{}, err
	}
	return aud, nil
}

func (p *PostgresStore) GetAudience(ctx context.Context, id string) (model.Audience, error) {
	var aud model.Audience
	var rulesJSON []byte
	err := p.pool.QueryRow(ctx,
		`SELECT id, environment_id, name, rules, created_at, updated_at FROM audiences WHERE id = $1`, id,
	).Scan(&aud.ID, &aud.EnvironmentID, &aud.Name, &rulesJSON, &aud.CreatedAt, &aud.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Audience{}, fmt.Errorf("audience %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Audience{}, err
	}
	if aud.Rules, err = unmarshalRules(rulesJSON); err != nil {
		return model.Audience{}, err
	}
	return aud, nil
}

func (p *PostgresStore) ListAudiences(ctx context.Context, environmentID string, page Page) ([]model.Audience, int, error) {
	var total int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM audiences WHERE ($1 = '' OR environment_id::text = $1)`, environmentID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, environment_id, name, rules, created_at, updated_at FROM audiences
		 WHERE ($1 = '' OR environment_id::text = $1)
		 ORDER BY created_at, id LIMIT $2 OFFSET $3`,
		environmentID, page.Size, page.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	audiences := []model.Audience{}
	for rows.Next() {
		var aud model.Audience
		var rulesJSON []byte
		if err := rows.Scan(&aud.ID, &aud.EnvironmentID, &aud.Name, &rulesJSON, &aud.CreatedAt, &aud.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if aud.Rules, err = unmarshalRules(rulesJSON); err != nil {
			return nil, 0, err
		}
		audiences = append(audiences, aud)
	}
	return audiences, total, rows.Err()
}

func (p *PostgresStore) UpdateAudience(ctx context.Context, id string, params UpdateAudienceParams) (model.Audience, error) {
	current, err := p.GetAudience(ctx, id)
	if err != nil {
		return model.Audience{}, err
	}
	if params.Name != nil {
		current.Name = *params.Name
	}
	if params.Rules != nil {
		current.Rules = *params.Rules
	}
	rulesJSON, err := marshalRules(current.Rules)
	if err != nil {
		return model.Audience{}, err
	}
	err = p.pool.QueryRow(ctx,
		`UPDATE audiences SET name = $2, rules = $3, updated_at = now() WHERE id = $1 RETURNING updated_at`,
		id, current.Name, rulesJSON,
	).Scan(&current.UpdatedAt)
	if isUniqueViolation(err) {
		return model.Audience{}, fmt.Errorf("audience %q: %w", current.Name, ErrConflict)
	}
	if err != nil {
		return model.Audience{}, err
	}
	return current, nil
}

func (p *PostgresStore) DeleteAudience(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM audiences WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("audience %q: %w", id, ErrNotFound)
	}
	// experiments.audience_id is ON DELETE SET NULL; nothing else to do.
	return nil
}

// --- Experiments ---

func (p *PostgresStore) CreateExperiment(ctx context.Context, params CreateExperimentParams) (model.Experiment, error) {
	if _, err := p.GetEnvironment(ctx, params.EnvironmentID); err != nil {
		return model.Experiment{}, err
	}
	if params.AudienceID != nil {
		aud, err := p.GetAudience(ctx, *params.AudienceID)
		if err != nil {
			return model.Experiment{}, err
		}
		if aud.EnvironmentID != params.EnvironmentID {
			return model.Experiment{}, ErrCrossEnvironment
		}
	}
	rulesJSON, err := marshalRules(params.TargetingRules)
	if err != nil {
		return model.Experiment{}, err
	}

	exp := model.Experiment{
		ID:             uuid.NewString(),
		Key:            params.Key,
		Name:           params.Name,
		Description:    params.Description,
		Salt:           params.Salt,
		Status:         model.StatusDraft,
		EnvironmentID:  params.EnvironmentID,
		AudienceID:     params.AudienceID,
		TargetingRules: params.TargetingRules,
		Variants:       []model.Variant{},
		Allocations:    []model.Allocation{},
	}
	if exp.TargetingRules == nil {
		exp.TargetingRules = []rules.Rule{}
	}
	err = p.pool.QueryRow(ctx,
		`INSERT INTO experiments (id, environment_id, key, name, description, salt, status, audience_id, targeting_rules)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		exp.ID, exp.EnvironmentID, exp.Key, exp.Name, exp.Description, exp.Salt, string(exp.Status), exp.AudienceID, rulesJSON,
	).Scan(&exp.CreatedAt, &exp.UpdatedAt)
	if isUniqueViolation(err) {
		return model.Experiment{}, fmt.Errorf("experiment %q: %w", params.Key, ErrConflict)
	}
	if err != nil {
		return model.Experiment{}, err
	}
	return exp, nil
}

func (p *PostgresStore) GetExperiment(ctx context.Context, id string) (model.Experiment, error) {
	exps, err := p.queryExperiments(ctx, `WHERE e.id = $1`, id)
	if err != nil {
		return model.Experiment{}, err
	}
	if len(exps) == 0 {
		return model.Experiment{}, fmt.Errorf("experiment %q: %w", id, ErrNotFound)
	}
	return exps[0], nil
}

func (p *PostgresStore) ListExperiments(ctx context.Context, filter ExperimentFilter, page Page) ([]model.Experiment, int, error) {
	where := `WHERE ($1 = '' OR e.environment_id::text = $1) AND ($2 = '' OR e.status = $2)`
	var total int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM experiments e `+where, filter.EnvironmentID, string(filter.Status),
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	exps, err := p.queryExperiments(ctx,
		where+` ORDER BY e.created_at, e.id LIMIT $3 OFFSET $4`,
		filter.EnvironmentID, string(filter.Status), page.Size, page.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	return exps, total, nil
}

func (p *PostgresStore) UpdateExperiment(ctx context.Context, id string, params UpdateExperimentParams) (model.Experiment, error) {
	current, err := p.GetExperiment(ctx, id)
	if err != nil {
		return model.Experiment{}, err
	}
	if params.Name != nil {
		current.Name = *params.Name
	}
	if params.Description != nil {
		current.Description = *params.Description
	}
	if params.SetAudience {
		if params.AudienceID != nil {
			aud, err := p.GetAudience(ctx, *params.AudienceID)
			if err != nil {
				return model.Experiment{}, err
			}
			if aud.EnvironmentID != current.EnvironmentID {
				return model.Experiment{}, ErrCrossEnvironment
			}
		}
		current.AudienceID = params.AudienceID
	}
	if params.TargetingRules != nil {
		current.TargetingRules = *params.TargetingRules
	}
	rulesJSON, err := marshalRules(current.TargetingRules)
	if err != nil {
		return model.Experiment{}, err
	}
	err = p.pool.QueryRow(ctx,
		`UPDATE experiments SET name = $2, description = $3, audience_id = $4, targeting_rules = $5, updated_at = now()
		 WHERE id = $1 RETURNING updated_at`,
		id, current.Name, current.Description, current.AudienceID, rulesJSON,
	).Scan(&current.UpdatedAt)
	if err != nil {
		return model.Experiment{}, err
	}
	return current, nil
}

func (p *PostgresStore) UpdateExperimentStatus(ctx context.Context, id string, status model.Status) (model.Experiment, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE experiments SET status = $2, updated_at = now() WHERE id = $1`, id, string(status),
	)
	if err != nil {
		return model.Experiment{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Experiment{}, fmt.Errorf("experiment %q: %w", id, ErrNotFound)
	}
	return p.GetExperiment(ctx, id)
}

func (p *PostgresStore) DeleteExperiment(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM experiments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("experiment %q: %w", id, ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) ListRunningExperiments(ctx context.Context, environmentID string) ([]model.Experiment, error) {
	if _, err := p.GetEnvironment(ctx, environmentID); err != nil {
		return nil, err
	}
	return p.queryExperiments(ctx,
		`WHERE e.environment_id = $1 AND e.status = $2 ORDER BY e.created_at, e.id`,
		environmentID, string(model.StatusRunning),
	)
}

func (p *PostgresStore) HasRunningExperimentsForAudience(ctx context.Context, audienceID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM experiments WHERE audience_id = $1 AND status = $2)`,
		audienceID, string(model.StatusRunning),
	).Scan(&exists)
	return exists, err
}

// queryExperiments loads experiments matching the WHERE clause, then
// attaches variants and allocations in two follow-up queries.
func (p *PostgresStore) queryExperiments(ctx context.Context, where string, args ...any) ([]model.Experiment, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT e.id, e.environment_id, e.key, e.name, e.description, e.salt, e.status, e.audience_id, e.targeting_rules, e.created_at, e.updated_at
		 FROM experiments e `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exps := []model.Experiment{}
	index := map[string]int{}
	for rows.Next() {
		var exp model.Experiment
		var status string
		var rulesJSON []byte
		if err := rows.Scan(&exp.ID, &exp.EnvironmentID, &exp.Key, &exp.Name, &exp.Description, &exp.Salt,
			&status, &exp.AudienceID, &rulesJSON, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
			return nil, err
		}
		exp.Status = model.Status(status)
		if exp.TargetingRules, err = unmarshalRules(rulesJSON); err != nil {
			return nil, err
		}
		exp.Variants = []model.Variant{}
		exp.Allocations = []model.Allocation{}
		index[exp.ID] = len(exps)
		exps = append(exps, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(exps) == 0 {
		return exps, nil
	}

	ids := make([]string, 0, len(exps))
	for _, exp := range exps {
		ids = append(ids, exp.ID)
	}

	vrows, err := p.pool.Query(ctx,
		`SELECT id, experiment_id, key, name, payload FROM variants WHERE experiment_id::text = ANY($1) ORDER BY key`, ids)
	if err != nil {
		return nil, err
	}
	defer vrows.Close()
	for vrows.Next() {
		var v model.Variant
		var payload []byte
		if err := vrows.Scan(&v.ID, &v.ExperimentID, &v.Key, &v.Name, &payload); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &v.Payload); err != nil {
				return nil, fmt.Errorf("decode variant payload: %w", err)
			}
		}
		i := index[v.ExperimentID]
		exps[i].Variants = append(exps[i].Variants, v)
	}
	if err := vrows.Err(); err != nil {
		return nil, err
	}

	arows, err := p.pool.Query(ctx,
		`SELECT id, experiment_id, variant_id, range_start, range_end FROM allocations WHERE experiment_id::text = ANY($1) ORDER BY range_start`, ids)
	if err != nil {
		return nil, err
	}
	defer arows.Close()
	for arows.Next() {
		var a model.Allocation
		if err := arows.Scan(&a.ID, &a.ExperimentID, &a.VariantID, &a.RangeStart, &a.RangeEnd); err != nil {
			return nil, err
		}
		i := index[a.ExperimentID]
		exps[i].Allocations = append(exps[i].Allocations, a)
	}
	return exps, arows.Err()
}

// --- Variants ---

func (p *PostgresStore) CreateVariant(ctx context.Context, experimentID string, params CreateVariantParams) (model.Variant, error) {
	if _, err := p.GetExperiment(ctx, experimentID); err != nil {
		return model.Variant{}, err
	}
	payload, err := marshalPayload(params.Payload)
	if err != nil {
		return model.Variant{}, err
	}
	v := model.Variant{
		ID:           uuid.NewString(),
		Key:          params.Key,
		Name:         params.Name,
		Payload:      params.Payload,
		ExperimentID: experimentID,
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO variants (id, experiment_id, key, name, payload) VALUES ($1, $2, $3, $4, $5)`,
		v.ID, experimentID, v.Key, v.Name, payload,
	)
	if isUniqueViolation(err) {
		return model.Variant{}, fmt.Errorf("variant %q: %w", params.Key, ErrConflict)
	}
	if err != nil {
		return model.Variant{}, err
	}
	return v, nil
}

func (p *PostgresStore) UpdateVariant(ctx context.Context, experimentID, variantID string, params UpdateVariantParams) (model.Variant, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return model.Variant{}, err
	}
	defer tx.Rollback(ctx)

	v, err := updateVariantTx(ctx, tx, experimentID, variantID, params)
	if err != nil {
		return model.Variant{}, err
	}
	return v, tx.Commit(ctx)
}

func (p *PostgresStore) DeleteVariant(ctx context.Context, experimentID, variantID string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM variants WHERE id = $1 AND experiment_id = $2`, variantID, experimentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("variant %q: %w", variantID, ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) ApplyVariantBatch(ctx context.Context, experimentID string, batch VariantBatch) ([]model.Variant, error) {
	if _, err := p.GetExperiment(ctx, experimentID); err != nil {
		return nil, err
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for _, del := range batch.Delete {
		tag, err := tx.Exec(ctx, `DELETE FROM variants WHERE id = $1 AND experiment_id = $2`, del, experimentID)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("variant %q: %w", del, ErrNotFound)
		}
	}
	for _, upd := range batch.Update {
		if _, err := updateVariantTx(ctx, tx, experimentID, upd.ID, upd.UpdateVariantParams); err != nil {
			return nil, err
		}
	}
	for _, create := range batch.Create {
		payload, err := marshalPayload(create.Payload)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO variants (id, experiment_id, key, name, payload) VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), experimentID, create.Key, create.Name, payload,
		)
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("variant %q: %w", create.Key, ErrConflict)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	exp, err := p.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return exp.Variants, nil
}

func updateVariantTx(ctx context.Context, tx pgx.Tx, experimentID, variantID string, params UpdateVariantParams) (model.Variant, error) {
	var v model.Variant
	var payload []byte
	err := tx.QueryRow(ctx,
		`SELECT id, experiment_id, key, name, payload FROM variants WHERE id = $1 AND experiment_id = $2 FOR UPDATE`,
		variantID, experimentID,
	).Scan(&v.ID, &v.ExperimentID, &v.Key, &v.Name, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Variant{}, fmt.Errorf("variant %q: %w", variantID, ErrNotFound)
	}
	if err != nil {
		return model.Variant{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &v.Payload); err != nil {
			return model.Variant{}, fmt.Errorf("decode variant payload: %w", err)
		}
	}

	if params.Name != nil {
		v.Name = *params.Name
	}
	if params.ClearPayload {
		v.Payload = nil
	} else if params.Payload != nil {
		v.Payload = params.Payload
	}
	newPayload, err := marshalPayload(v.Payload)
	if err != nil {
		return model.Variant{}, err
	}
	_, err = tx.Exec(ctx, `UPDATE variants SET name = $2, payload = $3 WHERE id = $1`, v.ID, v.Name, newPayload)
	if err != nil {
		return model.Variant{}, err
	}
	return v, nil
}

func marshalPayload(p map[string]any) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// --- Allocations ---

func (p *PostgresStore) ReplaceAllocations(ctx context.Context, experimentID string, ranges []AllocationRange) ([]model.Allocation, error) {
	exp, err := p.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
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

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM allocations WHERE experiment_id = $1`, experimentID); err != nil {
		return nil, err
	}
	for _, a := range allocations {
		_, err := tx.Exec(ctx,
			`INSERT INTO allocations (id, experiment_id, variant_id, range_start, range_end) VALUES ($1, $2, $3, $4, $5)`,
			a.ID, a.ExperimentID, a.VariantID, a.RangeStart, a.RangeEnd,
		)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return allocations, nil
}

// --- Config versions ---

func (p *PostgresStore) MaxConfigVersion(ctx context.Context, environmentID string) (int, error) {
	var max int
	err := p.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM config_versions WHERE environment_id = $1`, environmentID,
	).Scan(&max)
	return max, err
}

func (p *PostgresStore) AppendConfigVersion(ctx context.Context, cv model.ConfigVersion) error {
	if cv.ID == "" {
		cv.ID = uuid.NewString()
	}
	if cv.CreatedAt.IsZero() {
		cv.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO config_versions (id, environment_id, version, snapshot, created_at) VALUES ($1, $2, $3, $4, $5)`,
		cv.ID, cv.EnvironmentID, cv.Version, []byte(cv.Snapshot), cv.CreatedAt,
	)
	return err
}

// Close closes the underlying connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
