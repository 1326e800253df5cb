// Package checkpoint implements the replication checkpoint reconciler: a
// pure function of two replication logs that decides whether a run can
// resume incrementally or must perform a full replication.
package checkpoint

import "github.com/rouchdb/replicator/couchdb"

// CommonAncestor returns the sequence a replication should resume from,
// given the checkpoint documents most recently written to the source and
// target. It accepts a resumption point only when both ends agree they last
// checkpointed together: same session_id, same source_last_seq. Any
// mismatch — absent fields, differing sessions, differing sequences —
// forces a full replication, reported as ok=false.
//
// This is intentionally strict: it prefers redundant work over skipping
// revisions that might not actually be shared history.
func CommonAncestor(source, target *couchdb.ReplicationLog) (since string, ok bool) {
	if source == nil || target == nil {
		return "", false
	}
	if source.SessionID == "" || target.SessionID == "" {
		return "", false
	}
	if source.SessionID != target.SessionID {
		return "", false
	}
	if source.SourceLastSeq == "" || target.SourceLastSeq == "" {
		return "", false
	}
	if source.SourceLastSeq != target.SourceLastSeq {
		return "", false
	}
	return source.SourceLastSeq, true
}
