package replicator

import (
	"crypto/md5" // nolint:gosec // protocol compatibility, not a security use of MD5
	"encoding/hex"
)

// DeriveReplicationID computes the replication identity for a source/target
// pair: the lowercase hex MD5 digest of the concatenation of their server
// UUIDs, no separator, no trailing newline. It depends only on the two
// identities, so a re-run against the same endpoints always yields the same
// id.
//
// Database names are deliberately not mixed in: two replications between the
// same server instances collapse to the same identity. That is acceptable
// for this engine's one-shot, single-database scope.
func DeriveReplicationID(sourceUUID, targetUUID string) string {
	sum := md5.Sum([]byte(sourceUUID + targetUUID)) // nolint:gosec
	return hex.EncodeToString(sum[:])
}
