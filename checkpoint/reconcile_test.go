package checkpoint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rouchdb/replicator/checkpoint"
	"github.com/rouchdb/replicator/couchdb"
)

func TestCommonAncestor(t *testing.T) {
	tests := []struct {
		name        string
		source      *couchdb.ReplicationLog
		target      *couchdb.ReplicationLog
		wantSince   string
		wantResumed bool
	}{
		{
			name:        "nil logs force full replication",
			source:      nil,
			target:      &couchdb.ReplicationLog{},
			wantResumed: false,
		},
		{
			name:        "matching session and seq resumes",
			source:      &couchdb.ReplicationLog{SessionID: "s1", SourceLastSeq: "5-g1"},
			target:      &couchdb.ReplicationLog{SessionID: "s1", SourceLastSeq: "5-g1"},
			wantSince:   "5-g1",
			wantResumed: true,
		},
		{
			name:        "divergent session forces full replication",
			source:      &couchdb.ReplicationLog{SessionID: "s1", SourceLastSeq: "5-g1"},
			target:      &couchdb.ReplicationLog{SessionID: "s2", SourceLastSeq: "5-g1"},
			wantResumed: false,
		},
		{
			name:        "divergent seq forces full replication",
			source:      &couchdb.ReplicationLog{SessionID: "s1", SourceLastSeq: "5-g1"},
			target:      &couchdb.ReplicationLog{SessionID: "s1", SourceLastSeq: "3-g1"},
			wantResumed: false,
		},
		{
			name:        "missing session id on one side forces full replication",
			source:      &couchdb.ReplicationLog{SourceLastSeq: "5-g1"},
			target:      &couchdb.ReplicationLog{SessionID: "s1", SourceLastSeq: "5-g1"},
			wantResumed: false,
		},
		{
			name:        "missing seq on one side forces full replication",
			source:      &couchdb.ReplicationLog{SessionID: "s1"},
			target:      &couchdb.ReplicationLog{SessionID: "s1", SourceLastSeq: "5-g1"},
			wantResumed: false,
		},
		{
			name:        "first run, both fresh, forces full replication",
			source:      &couchdb.ReplicationLog{ID: "_local/abc"},
			target:      &couchdb.ReplicationLog{ID: "_local/abc"},
			wantResumed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			since, ok := checkpoint.CommonAncestor(tt.source, tt.target)
			assert.Equal(t, tt.wantResumed, ok)
			if tt.wantResumed {
				assert.Equal(t, tt.wantSince, since)
			}
		})
	}
}
