// Package sdk embeds variant assignment in a Go service: it polls the
// published config objects and evaluates experiments in-process, so the
// hot path never leaves the caller's memory.
package sdk

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/variantflow/variantflow/internal/configstore"
	"github.com/variantflow/variantflow/internal/engine"
	"github.com/variantflow/variantflow/internal/objstore"
)

// ErrNoConfig is returned when no snapshot is available for the requested
// environment yet.
var ErrNoConfig = configstore.ErrNoConfig

// Assignment is one experiment's outcome for a user.
type Assignment = engine.Assignment

// Options configure an SDK instance.
type Options struct {
	// BaseURL is the public URL serving the config objects, e.g. the
	// bucket endpoint. Required.
	BaseURL string
	// Environments to track from the start; others register lazily on
	// first use.
	Environments []string
	// PollInterval defaults to 5s.
	PollInterval time.Duration
	// FetchTimeout bounds each config fetch; defaults to 3s.
	FetchTimeout time.Duration
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// SDK holds the background poller and the in-memory snapshots.
type SDK struct {
	configs *configstore.Store
	cancel  context.CancelFunc
}

// New creates an SDK instance and starts its poll loop. Call Close to stop
// it.
func New(opts Options) (*SDK, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("sdk: BaseURL is required")
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 3 * time.Second
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	fetcher := objstore.NewHTTPFetcher(opts.BaseURL, opts.FetchTimeout)
	configs := configstore.New(fetcher, opts.PollInterval, opts.Environments, log)

	ctx, cancel := context.WithCancel(context.Background())
	go configs.Run(ctx)

	return &SDK{configs: configs, cancel: cancel}, nil
}

// Assign returns the user's assignments across all running experiments in
// the environment. Attributes feed audience and targeting rules; nil means
// no attributes.
func (s *SDK) Assign(ctx context.Context, environment, userKey string, attributes map[string]any) ([]Assignment, error) {
	snap, err := s.configs.GetConfig(ctx, environment)
	if err != nil {
		return nil, err
	}
	if attributes == nil {
		attributes = map[string]any{}
	}
	return engine.Assign(snap.Experiments, userKey, attributes), nil
}

// Variant returns the user's assignment for one experiment key, with ok
// reporting whether the user is in the experiment at all (holdout, failed
// targeting, and unknown keys all return ok=false).
func (s *SDK) Variant(ctx context.Context, environment, experimentKey, userKey string, attributes map[string]any) (Assignment, bool, error) {
	assignments, err := s.Assign(ctx, environment, userKey, attributes)
	if err != nil {
		return Assignment{}, false, err
	}
	for _, a := range assignments {
		if a.ExperimentKey == experimentKey {
			return a, true, nil
		}
	}
	return Assignment{}, false, nil
}

// ConfigVersions reports the installed snapshot version per tracked
// environment, nil for environments not yet loaded.
func (s *SDK) ConfigVersions() map[string]*int {
	return s.configs.Versions()
}

// Close stops the poll loop.
func (s *SDK) Close() {
	s.cancel()
}
