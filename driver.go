// Package replicator implements the CouchDB pull-replication protocol
// engine: replication-id derivation, checkpoint-aware batch pipeline, and
// the top-level driver loop that runs batches until the source is drained.
// https://docs.couchdb.org/en/stable/replication/protocol.html
package replicator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rouchdb/replicator/couchdb"
	"github.com/rouchdb/replicator/logger"
)

// Replicator drives one pull replication from a source URL to a target URL.
type Replicator struct {
	source, target *couchdb.Client
	logger         logger.Logger

	sourceInfo, targetInfo     *couchdb.ServerInfo
	sourceDBInfo, targetDBInfo *couchdb.DatabaseInfo
}

// New constructs a Replicator for the given source and target database
// URLs. Neither endpoint is contacted yet.
func New(sourceURL, targetURL string) (*Replicator, error) {
	source, err := couchdb.New(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("source endpoint: %w", err)
	}

	target, err := couchdb.New(targetURL)
	if err != nil {
		return nil, fmt.Errorf("target endpoint: %w", err)
	}

	return &Replicator{
		source: source,
		target: target,
		logger: new(logger.Noop),
	}, nil
}

// SetLogger installs a logger used across the driver and both endpoint
// clients.
func (r *Replicator) SetLogger(l logger.Logger) {
	r.logger = l
	r.source.SetLogger(l)
	r.target.SetLogger(l)
}

func (r *Replicator) logErrf(stage string, err error) error {
	wrapped := fmt.Errorf("%s: %w", stage, err)
	r.logger.Error(wrapped.Error())
	return wrapped
}

// Pull runs a one-shot pull replication: it verifies both peers, derives the
// replication id, then drives batches until the source is drained (a batch
// reports fewer rows than the changes-feed page limit, or makes no further
// progress).
func (r *Replicator) Pull(ctx context.Context) error {
	r.logger.Debug("get peers information")
	if err := r.getPeersInformation(ctx); err != nil {
		return r.logErrf("get peers information", err)
	}

	id, err := r.replicationID(ctx)
	if err != nil {
		return r.logErrf("derive replication id", err)
	}
	r.logger.Debugf("replication id %q", id)

	var priorLastSeq string
	for {
		result, err := runBatch(ctx, r.source, r.target, id, r.logger)
		if err != nil {
			return r.logErrf("run batch", err)
		}

		r.logger.Debugf("batch done: %d rows, last_seq %q", result.RowCount, result.LastSeq)

		if result.RowCount < couchdb.ChangesLimit {
			return nil
		}
		if result.LastSeq == priorLastSeq {
			return nil
		}
		priorLastSeq = result.LastSeq
	}
}

// getPeersInformation fetches ServerInfo and DatabaseInfo for both
// endpoints, all four calls in parallel. Any failure is fatal.
func (r *Replicator) getPeersInformation(ctx context.Context) error {
	var sourceInfo, targetInfo *couchdb.ServerInfo
	var sourceDBInfo, targetDBInfo *couchdb.DatabaseInfo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sourceInfo, err = r.source.GetServerInfo(gctx)
		return err
	})
	g.Go(func() (err error) {
		targetInfo, err = r.target.GetServerInfo(gctx)
		return err
	})
	g.Go(func() (err error) {
		sourceDBInfo, err = r.source.GetDatabaseInfo(gctx)
		return err
	})
	g.Go(func() (err error) {
		targetDBInfo, err = r.target.GetDatabaseInfo(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if sourceInfo == nil || targetInfo == nil {
		return errors.New("missing server info")
	}

	r.sourceInfo, r.targetInfo = sourceInfo, targetInfo
	r.sourceDBInfo, r.targetDBInfo = sourceDBInfo, targetDBInfo
	return nil
}

// replicationID derives the stable replication identity for this
// source/target pair from their server UUIDs.
func (r *Replicator) replicationID(ctx context.Context) (string, error) {
	if r.sourceInfo == nil || r.targetInfo == nil {
		if err := r.getPeersInformation(ctx); err != nil {
			return "", err
		}
	}
	return DeriveReplicationID(r.sourceInfo.UUID, r.targetInfo.UUID), nil
}
