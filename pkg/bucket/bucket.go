package bucket

import (
	"github.com/spaolacci/murmur3"
)

// BucketCount is the number of rollout buckets. Percentages map directly onto
// buckets: a rule at N% enables buckets [0,N).
const BucketCount = 100

// Bucket returns the deterministic rollout bucket in [0,100) for the given
// user and flag. It never fails; empty strings are valid inputs and hash like
// any other value.
//
// The composition "{userID}:{flagKey}" and the MurmurHash3 x86 32-bit
// algorithm are a cross-language compatibility contract with the client SDKs.
// Do not change them.
func Bucket(userID, flagKey string) int {
	h := murmur3.Sum32([]byte(userID + ":" + flagKey))
	return int(h % BucketCount)
}
