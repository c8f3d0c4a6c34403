// Package publisher compiles the running experiments of one environment
// into an immutable, versioned config snapshot and publishes it to the
// object store.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/variantflow/variantflow/internal/model"
	"github.com/variantflow/variantflow/internal/objstore"
	"github.com/variantflow/variantflow/internal/rules"
	"github.com/variantflow/variantflow/internal/snapshot"
	"github.com/variantflow/variantflow/internal/store"
	"github.com/variantflow/variantflow/internal/telemetry"
	"github.com/variantflow/variantflow/internal/webhook"
)

// Notifier receives an event after each successful publish.
type Notifier interface {
	Dispatch(event webhook.Event)
}

// Publisher compiles and publishes config snapshots.
type Publisher struct {
	store    store.Store
	writer   objstore.Writer
	log      zerolog.Logger
	now      func() time.Time
	notifier Notifier

	mu       sync.Mutex
	envLocks map[string]*sync.Mutex
}

// New creates a publisher.
func New(st store.Store, writer objstore.Writer, log zerolog.Logger) *Publisher {
	return &Publisher{
		store:    st,
		writer:   writer,
		log:      log,
		now:      time.Now,
		envLocks: make(map[string]*sync.Mutex),
	}
}

// WithNotifier attaches a webhook notifier for successful publishes.
func (p *Publisher) WithNotifier(n Notifier) *Publisher {
	p.notifier = n
	return p
}

// Publish compiles the environment's RUNNING experiments into the next
// snapshot version and writes the three config objects plus the audit row.
// The three object writes run concurrently; if any fails the publish fails
// as a whole and will be redone by the next trigger. There is no
// cross-object atomicity; readers defend with the monotonic-install rule.
func (p *Publisher) Publish(ctx context.Context, environmentID string) (*snapshot.Snapshot, error) {
	// One publish per environment at a time. Version allocation is a
	// read-then-write over the audit table and the versioned object key
	// embeds the number, so two racing publishes would mint the same
	// version and overwrite each other's snapshot.
	unlock := p.lockEnvironment(environmentID)
	defer unlock()

	env, err := p.store.GetEnvironment(ctx, environmentID)
	if err != nil {
		return nil, err
	}
	experiments, err := p.store.ListRunningExperiments(ctx, environmentID)
	if err != nil {
		return nil, fmt.Errorf("load running experiments: %w", err)
	}
	audienceRules, err := p.resolveAudiences(ctx, experiments)
	if err != nil {
		return nil, err
	}

	maxVersion, err := p.store.MaxConfigVersion(ctx, environmentID)
	if err != nil {
		return nil, fmt.Errorf("read config versions: %w", err)
	}
	nextVersion := maxVersion + 1

	snap := snapshot.Compile(nextVersion, env.Name, p.now().UTC(), experiments, audienceRules)

	// Serialise once; the same bytes go to the versioned object and the
	// latest pointer.
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	versionJSON, err := json.Marshal(map[string]int{"version": nextVersion})
	if err != nil {
		return nil, fmt.Errorf("encode version index: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.writer.Put(gctx, objstore.SnapshotKey(env.Name, nextVersion), snapJSON) })
	g.Go(func() error { return p.writer.Put(gctx, objstore.LatestKey(env.Name), snapJSON) })
	g.Go(func() error { return p.writer.Put(gctx, objstore.VersionKey(env.Name), versionJSON) })
	if err := g.Wait(); err != nil {
		telemetry.PublishTotal.WithLabelValues(env.Name, "error").Inc()
		p.log.Error().Err(err).Str("environment", env.Name).Int("version", nextVersion).Msg("snapshot publish failed")
		return nil, fmt.Errorf("publish snapshot v%d for %s: %w", nextVersion, env.Name, err)
	}

	if err := p.store.AppendConfigVersion(ctx, model.ConfigVersion{
		EnvironmentID: environmentID,
		Version:       nextVersion,
		Snapshot:      snapJSON,
		CreatedAt:     p.now().UTC(),
	}); err != nil {
		telemetry.PublishTotal.WithLabelValues(env.Name, "error").Inc()
		return nil, fmt.Errorf("append config version audit: %w", err)
	}

	telemetry.PublishTotal.WithLabelValues(env.Name, "ok").Inc()
	if p.notifier != nil {
		p.notifier.Dispatch(webhook.Event{
			Type:        webhook.EventConfigPublished,
			Timestamp:   p.now().UTC(),
			Environment: env.Name,
			Version:     nextVersion,
			Experiments: len(snap.Experiments),
		})
	}
	p.log.Info().
		Str("environment", env.Name).
		Int("version", nextVersion).
		Int("experiments", len(snap.Experiments)).
		Msg("snapshot published")
	return snap, nil
}

func (p *Publisher) lockEnvironment(environmentID string) func() {
	p.mu.Lock()
	l, ok := p.envLocks[environmentID]
	if !ok {
		l = &sync.Mutex{}
		p.envLocks[environmentID] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// resolveAudiences materialises the rules for every audience referenced by
// a running experiment. A dangling reference (audience deleted since the
// experiment was edited) compiles as no audience filter.
func (p *Publisher) resolveAudiences(ctx context.Context, experiments []model.Experiment) (map[string][]rules.Rule, error) {
	resolved := make(map[string][]rules.Rule)
	for _, exp := range experiments {
		if exp.AudienceID == nil {
			continue
		}
		id := *exp.AudienceID
		if _, ok := resolved[id]; ok {
			continue
		}
		aud, err := p.store.GetAudience(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolve audience %s: %w", id, err)
		}
		resolved[id] = aud.Rules
	}
	return resolved, nil
}
