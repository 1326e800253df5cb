package couchdb

import "encoding/json"

// ServerInfo identifies a running instance. Two endpoints backed by the same
// instance report the same UUID.
type ServerInfo struct {
	UUID string `json:"uuid"`
}

// DatabaseInfo carries the opaque per-database sequence token.
type DatabaseInfo struct {
	UpdateSeq string `json:"update_seq"`
}

// ReplicationLog is the local (non-replicated) checkpoint document keyed
// _local/<replication_id>. Rev and the checkpoint fields are empty on a
// first-run document.
type ReplicationLog struct {
	ID            string `json:"_id"`
	Rev           string `json:"_rev,omitempty"`
	SourceLastSeq string `json:"source_last_seq,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
}

// Changes is one page of the changes feed.
type Changes struct {
	LastSeq string       `json:"last_seq"`
	Results []ChangesRow `json:"results"`
}

// ChangesRow is a single document revision event.
type ChangesRow struct {
	Seq     string       `json:"seq"`
	ID      string       `json:"id"`
	Changes []ChangesRev `json:"changes"`
	Deleted bool         `json:"deleted,omitempty"`
}

// ChangesRev names one leaf revision touched by a ChangesRow.
type ChangesRev struct {
	Rev string `json:"rev"`
}

// RevsDiffRequest maps a document id to the revisions the source has seen
// for it; it is the body posted to _revs_diff.
type RevsDiffRequest map[string][]string

// RevsDiffResponse maps a document id to the revisions the target reports
// missing. An id absent from the response means the target already has
// every rev listed for it.
type RevsDiffResponse map[string]RevsDiffEntry

// RevsDiffEntry lists the revisions of one document the target is missing.
type RevsDiffEntry struct {
	Missing []string `json:"missing"`
}

// DocRef is one (id, rev) pair requested from _bulk_get.
type DocRef struct {
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// bulkGetRequest is the body posted to _bulk_get.
type bulkGetRequest struct {
	Docs []DocRef `json:"docs"`
}

// BulkGetResult is one entry of a _bulk_get response: the id requested and
// every revision returned for it.
type BulkGetResult struct {
	ID   string          `json:"id"`
	Docs []BulkGetRevDoc `json:"docs"`
}

// BulkGetRevDoc wraps one returned revision. Raw carries the document
// byte-for-byte as received so it can be resubmitted to _bulk_docs without
// loss of numeric precision or unicode normalisation (see spec §9, "raw
// value" type). Identity decodes _id, _rev and the _revisions ids out of Raw
// purely for bookkeeping (verifying fetched revisions); they are never used to
// reconstruct the document for re-submission.
type BulkGetRevDoc struct {
	Raw json.RawMessage `json:"ok"`
}

// bulkGetResponse is the body returned by _bulk_get.
type bulkGetResponse struct {
	Results []BulkGetResult `json:"results"`
}

// docIdentity is the subset of a document's fields needed to verify protocol
// invariants after a fetch, decoded out of BulkGetRevDoc.Raw on demand.
type docIdentity struct {
	ID        string `json:"_id"`
	Rev       string `json:"_rev"`
	Revisions struct {
		Start int      `json:"start"`
		IDs   []string `json:"ids"`
	} `json:"_revisions"`
}

// Identity decodes the bookkeeping fields out of a raw fetched document.
func (d BulkGetRevDoc) Identity() (id, rev string, revisionIDs []string, err error) {
	var doc docIdentity
	if err := json.Unmarshal(d.Raw, &doc); err != nil {
		return "", "", nil, err
	}
	return doc.ID, doc.Rev, doc.Revisions.IDs, nil
}

// bulkDocsRequest is the body posted to _bulk_docs. NewEdits is always false:
// it instructs the target to store the given _rev/_revisions verbatim
// instead of minting new revisions, which is what preserves replicated
// history.
type bulkDocsRequest struct {
	Docs     []json.RawMessage `json:"docs"`
	NewEdits bool              `json:"new_edits"`
}
