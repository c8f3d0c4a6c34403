// Package bucketing provides deterministic user bucketing for experiment
// traffic allocation.
package bucketing

import (
	"github.com/twmb/murmur3"
)

// NumBuckets is the size of the traffic space. 10 000 buckets set the
// minimum allocation granularity at 0.01%.
const NumBuckets = 10000

// Bucket returns a deterministic bucket in [0, NumBuckets) for the given
// user key and experiment salt. The same (userKey, salt) pair always maps
// to the same bucket, across processes, restarts, and SDK languages.
//
// The hash is MurmurHash3 (32-bit, seed 0) over "userKey:salt". Changing
// it would silently reshuffle every running experiment, so it never changes.
func Bucket(userKey, salt string) int {
	h := murmur3.Sum32([]byte(userKey + ":" + salt))
	// Double modulo keeps the result non-negative in languages where the
	// hash is held in a signed integer; in Go it is a no-op for uint32.
	return ((int(h) % NumBuckets) + NumBuckets) % NumBuckets
}
