package replicator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rouchdb/replicator/checkpoint"
	"github.com/rouchdb/replicator/couchdb"
	"github.com/rouchdb/replicator/logger"
)

// batchResult reports what one batch accomplished, used by the driver loop
// to detect end-of-stream.
type batchResult struct {
	LastSeq  string
	RowCount int
}

// runBatch executes stages 1-8 of one batch: allocate a session, reconcile
// checkpoints, pull one page of changes, negotiate missing revisions, fetch
// and install them, then advance checkpoints on both ends. A batch is a
// closed unit — it either completes through checkpoint or it fails without
// mutating checkpoints.
func runBatch(ctx context.Context, source, target *couchdb.Client, replicationID string, log logger.Logger) (*batchResult, error) {
	// Stage 1: allocate a fresh session.
	sessionID := uuid.New().String()

	// Stage 2: load checkpoints from both ends, in parallel.
	var sourceLog, targetLog *couchdb.ReplicationLog
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := source.GetReplicationLog(gctx, replicationID)
		if err != nil {
			return fmt.Errorf("load source checkpoint: %w", err)
		}
		sourceLog = l
		return nil
	})
	g.Go(func() error {
		l, err := target.GetReplicationLog(gctx, replicationID)
		if err != nil {
			return fmt.Errorf("load target checkpoint: %w", err)
		}
		targetLog = l
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stage 3: resume point.
	since, resumed := checkpoint.CommonAncestor(sourceLog, targetLog)
	if resumed {
		log.Debugf("resuming since %q", since)
	} else {
		log.Debug("no common checkpoint, full replication")
	}

	// Stage 4: changes.
	changes, err := source.GetChanges(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("get changes: %w", err)
	}
	log.Debugf("changes: %d rows, last_seq %q", len(changes.Results), changes.LastSeq)

	revs := make(couchdb.RevsDiffRequest, len(changes.Results))
	for _, row := range changes.Results {
		for _, c := range row.Changes {
			revs[row.ID] = append(revs[row.ID], c.Rev)
		}
	}

	// Stage 5: diff.
	diff, err := target.GetRevsDiff(ctx, revs)
	if err != nil {
		return nil, fmt.Errorf("get revs diff: %w", err)
	}

	var pairs []couchdb.DocRef
	for id, entry := range diff {
		for _, rev := range entry.Missing {
			pairs = append(pairs, couchdb.DocRef{ID: id, Rev: rev})
		}
	}
	log.Debugf("missing: %d revisions across %d documents", len(pairs), len(diff))

	// Stage 6 & 7: fetch and install, only if anything is missing.
	if len(pairs) > 0 {
		results, err := source.GetDocs(ctx, pairs)
		if err != nil {
			return nil, fmt.Errorf("get docs: %w", err)
		}

		docs, err := flattenAndVerify(pairs, results)
		if err != nil {
			return nil, fmt.Errorf("verify fetched docs: %w", err)
		}

		if err := target.SaveDocs(ctx, docs); err != nil {
			return nil, fmt.Errorf("save docs: %w", err)
		}
	}

	// Stage 8: advance checkpoints on both ends, in parallel. Both must
	// succeed; if either fails the checkpoint is divergent, which is safe
	// because installation is idempotent under new_edits=false and the
	// reconciler will force a full re-scan on the next run.
	sourceLog.SessionID, sourceLog.SourceLastSeq = sessionID, changes.LastSeq
	targetLog.SessionID, targetLog.SourceLastSeq = sessionID, changes.LastSeq

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := source.SaveReplicationLog(gctx, sourceLog); err != nil {
			return fmt.Errorf("save source checkpoint: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := target.SaveReplicationLog(gctx, targetLog); err != nil {
			return fmt.Errorf("save target checkpoint: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &batchResult{LastSeq: changes.LastSeq, RowCount: len(changes.Results)}, nil
}

// flattenAndVerify flattens each result's ok entries into a single document
// list, preserving the response's nesting order, and checks that every
// requested (id, rev) pair was actually satisfied — a document observed in a
// changes batch and reported missing must be installed or the batch aborts;
// it is never silently dropped.
func flattenAndVerify(requested []couchdb.DocRef, results []couchdb.BulkGetResult) ([]json.RawMessage, error) {
	satisfied := make(map[string]bool, len(requested))
	docs := make([]json.RawMessage, 0, len(requested))

	for _, result := range results {
		for _, rev := range result.Docs {
			id, docRev, revisionIDs, err := rev.Identity()
			if err != nil {
				return nil, &couchdb.DecodeError{Op: "bulk_get_entry", Err: err}
			}
			if len(revisionIDs) == 0 {
				return nil, &couchdb.ProtocolError{Op: "get_docs", Msg: fmt.Sprintf("document %q missing _revisions", id)}
			}
			satisfied[id+"/"+docRev] = true
			docs = append(docs, rev.Raw)
		}
	}

	for _, ref := range requested {
		if !satisfied[ref.ID+"/"+ref.Rev] {
			return nil, &couchdb.ProtocolError{
				Op:  "get_docs",
				Msg: fmt.Sprintf("no ok entry returned for %s@%s", ref.ID, ref.Rev),
			}
		}
	}

	return docs, nil
}
