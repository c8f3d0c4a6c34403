// Package objstore handles the published config artifacts in an
// S3-compatible object store: the control plane writes them, decision
// nodes and SDKs fetch them over plain HTTP.
package objstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

const contentTypeJSON = "application/json"

// Writer puts objects; the control-plane side of the store.
type Writer interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Fetcher gets objects; the decision side of the store.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Key layout under the bucket. {version}.json objects are immutable;
// latest.json and version.json are overwritten pointers.

// SnapshotKey is the immutable historical copy of one published version.
func SnapshotKey(env string, version int) string {
	return fmt.Sprintf("configs/%s/snapshots/%d.json", env, version)
}

// LatestKey is the overwritten pointer to the full latest snapshot.
func LatestKey(env string) string {
	return fmt.Sprintf("configs/%s/snapshots/latest.json", env)
}

// VersionKey is the small version index polled by readers.
func VersionKey(env string) string {
	return fmt.Sprintf("configs/%s/version.json", env)
}
