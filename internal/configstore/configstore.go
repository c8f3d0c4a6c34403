// Package configstore keeps the latest published config snapshot per
// environment in memory on a decision node (and inside SDK consumers). It
// polls the small version index, fetches the full snapshot only on a
// version bump, and keeps serving the last-known-good snapshot through
// object-store outages.
package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/variantflow/variantflow/internal/objstore"
	"github.com/variantflow/variantflow/internal/snapshot"
	"github.com/variantflow/variantflow/internal/telemetry"
)

// ErrNoConfig is returned when an environment has no snapshot available
// yet; the decision surface maps it to 503.
var ErrNoConfig = errors.New("no config available for environment")

// DefaultPollInterval bounds how long a publish can stay invisible.
const DefaultPollInterval = 5 * time.Second

// Store is the per-process snapshot cache. The snapshot pointer per
// environment is the only shared mutable state on the decision path; it
// is swapped whole under the write lock, so readers always see a complete
// snapshot.
type Store struct {
	fetcher  objstore.Fetcher
	interval time.Duration
	log      zerolog.Logger

	mu        sync.RWMutex
	snapshots map[string]*snapshot.Snapshot // environment -> installed snapshot
	known     map[string]bool               // registered environments, snapshot or not
}

// New creates a config store tracking the given initial environments.
// The list may be empty; environments register lazily on first request.
func New(fetcher objstore.Fetcher, interval time.Duration, environments []string, log zerolog.Logger) *Store {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s := &Store{
		fetcher:   fetcher,
		interval:  interval,
		log:       log,
		snapshots: make(map[string]*snapshot.Snapshot),
		known:     make(map[string]bool),
	}
	for _, env := range environments {
		s.known[env] = true
	}
	return s
}

// Run performs the initial load for pre-registered environments, then
// polls until the context is cancelled. Call it in its own goroutine.
func (s *Store) Run(ctx context.Context) {
	for _, env := range s.environments() {
		s.initialLoad(ctx, env)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

// GetConfig returns the installed snapshot for an environment. An unknown
// environment is registered and loaded synchronously before this returns;
// subsequent polls keep it fresh. Returns ErrNoConfig when no snapshot
// could be installed yet.
func (s *Store) GetConfig(ctx context.Context, environment string) (*snapshot.Snapshot, error) {
	s.mu.RLock()
	snap, installed := s.snapshots[environment]
	tracked := s.known[environment]
	s.mu.RUnlock()

	if installed {
		return snap, nil
	}
	if !tracked {
		s.register(environment)
	}
	if err := s.loadLatest(ctx, environment); err != nil {
		s.log.Warn().Err(err).Str("environment", environment).Msg("lazy config load failed")
	}
	s.mu.RLock()
	snap, installed = s.snapshots[environment]
	s.mu.RUnlock()
	if installed {
		return snap, nil
	}
	return nil, fmt.Errorf("%s: %w", environment, ErrNoConfig)
}

// Versions reports the installed snapshot version per tracked environment,
// nil for environments with no snapshot yet. Used by the health endpoint.
func (s *Store) Versions() map[string]*int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := make(map[string]*int, len(s.known))
	for env := range s.known {
		if snap, ok := s.snapshots[env]; ok {
			v := snap.Version
			versions[env] = &v
		} else {
			versions[env] = nil
		}
	}
	return versions
}

func (s *Store) register(environment string) {
	s.mu.Lock()
	s.known[environment] = true
	s.mu.Unlock()
}

func (s *Store) environments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	envs := make([]string, 0, len(s.known))
	for env := range s.known {
		envs = append(envs, env)
	}
	return envs
}

// initialLoad fetches latest.json with a short capped backoff so a node
// booting during a transient object-store blip still comes up warm. The
// poll loop never retries within a tick; only startup does.
func (s *Store) initialLoad(ctx context.Context, environment string) {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.loadLatest(ctx, environment)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		s.log.Warn().Err(err).Str("environment", environment).Msg("initial config load failed; will retry on poll")
	}
}

// pollOnce checks the version index of every tracked environment and
// installs newer snapshots. Failures log and leave state unchanged.
func (s *Store) pollOnce(ctx context.Context) {
	for _, env := range s.environments() {
		if err := s.pollEnvironment(ctx, env); err != nil {
			telemetry.PollErrors.WithLabelValues(env).Inc()
			s.log.Warn().Err(err).Str("environment", env).Msg("config poll failed")
		}
	}
}

func (s *Store) pollEnvironment(ctx context.Context, environment string) error {
	body, err := s.fetcher.Fetch(ctx, objstore.VersionKey(environment))
	if err != nil {
		return err
	}
	var index struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(body, &index); err != nil {
		return fmt.Errorf("parse version index: %w", err)
	}

	if index.Version <= s.installedVersion(environment) {
		return nil
	}
	return s.loadLatest(ctx, environment)
}

// loadLatest fetches the full latest snapshot and attempts to install it.
// Install re-checks the monotonic rule: version.json may race ahead of
// latest.json (or the store may return a stale body), and an older
// snapshot must never replace a newer one.
func (s *Store) loadLatest(ctx context.Context, environment string) error {
	body, err := s.fetcher.Fetch(ctx, objstore.LatestKey(environment))
	if err != nil {
		return err
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}

	if s.install(environment, &snap) {
		s.log.Info().
			Str("environment", environment).
			Int("version", snap.Version).
			Int("experiments", len(snap.Experiments)).
			Msg("config snapshot installed")
	}
	return nil
}

// install applies the monotonic-install rule: a snapshot is installed only
// if its version is strictly greater than the currently installed one.
func (s *Store) install(environment string, snap *snapshot.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.snapshots[environment]; ok && snap.Version <= current.Version {
		return false
	}
	s.snapshots[environment] = snap
	s.known[environment] = true
	telemetry.InstalledConfigVersion.WithLabelValues(environment).Set(float64(snap.Version))
	return true
}

func (s *Store) installedVersion(environment string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if snap, ok := s.snapshots[environment]; ok {
		return snap.Version
	}
	return 0
}
