package couchdb_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rouchdb/replicator/couchdb"
)

func TestGetServerInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		json.NewEncoder(w).Encode(couchdb.ServerInfo{UUID: "abc123"}) // nolint: errcheck
	}))
	defer srv.Close()

	c, err := couchdb.New(srv.URL + "/mydb")
	require.NoError(t, err)

	info, err := c.GetServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", info.UUID)
}

func TestGetReplicationLogNotFoundIsFreshLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mydb/_local/rep1", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := couchdb.New(srv.URL + "/mydb")
	require.NoError(t, err)

	log, err := c.GetReplicationLog(context.Background(), "rep1")
	require.NoError(t, err)
	assert.Equal(t, "_local/rep1", log.ID)
	assert.Empty(t, log.SourceLastSeq)
	assert.Empty(t, log.SessionID)
}

func TestGetReplicationLogUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom")) // nolint: errcheck
	}))
	defer srv.Close()

	c, err := couchdb.New(srv.URL + "/mydb")
	require.NoError(t, err)

	_, err = c.GetReplicationLog(context.Background(), "rep1")
	require.Error(t, err)

	var upErr *couchdb.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusInternalServerError, upErr.Status)
}

func TestSaveReplicationLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/mydb/_local/rep1", r.URL.Path)

		var log couchdb.ReplicationLog
		require.NoError(t, json.NewDecoder(r.Body).Decode(&log))
		assert.Equal(t, "sess-1", log.SessionID)

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := couchdb.New(srv.URL + "/mydb")
	require.NoError(t, err)

	err = c.SaveReplicationLog(context.Background(), &couchdb.ReplicationLog{
		ID:            "_local/rep1",
		SessionID:     "sess-1",
		SourceLastSeq: "5-g1",
	})
	require.NoError(t, err)
}

func TestGetChangesIncludesSinceOnlyWhenSet(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(couchdb.Changes{LastSeq: "1-x"}) // nolint: errcheck
	}))
	defer srv.Close()

	c, err := couchdb.New(srv.URL + "/mydb")
	require.NoError(t, err)

	_, err = c.GetChanges(context.Background(), "")
	require.NoError(t, err)
	assert.NotContains(t, gotQuery, "since=")
	assert.Contains(t, gotQuery, "limit=1000")

	_, err = c.GetChanges(context.Background(), "5-g1")
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "since=5-g1")
}

func TestGetRevsDiff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mydb/_revs_diff", r.URL.Path)

		var req couchdb.RevsDiffRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"1-a"}, req["doc1"])

		json.NewEncoder(w).Encode(couchdb.RevsDiffResponse{ // nolint: errcheck
			"doc1": {Missing: []string{"1-a"}},
		})
	}))
	defer srv.Close()

	c, err := couchdb.New(srv.URL + "/mydb")
	require.NoError(t, err)

	diff, err := c.GetRevsDiff(context.Background(), couchdb.RevsDiffRequest{"doc1": {"1-a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"1-a"}, diff["doc1"].Missing)
}

func TestGetDocsAndSaveDocsRoundTrip(t *testing.T) {
	doc := `{"_id":"doc1","_rev":"1-a","_revisions":{"start":1,"ids":["a"]},"value":42}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/mydb/_bulk_get":
			assert.Equal(t, "true", r.URL.Query().Get("revs"))
			assert.Equal(t, "true", r.URL.Query().Get("attachments"))
			w.Write([]byte(`{"results":[{"id":"doc1","docs":[{"ok":` + doc + `}]}]}`)) // nolint: errcheck
		case "/mydb/_bulk_docs":
			var body map[string]json.RawMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.JSONEq(t, "false", string(body["new_edits"]))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c, err := couchdb.New(srv.URL + "/mydb")
	require.NoError(t, err)

	results, err := c.GetDocs(context.Background(), []couchdb.DocRef{{ID: "doc1", Rev: "1-a"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Docs, 1)

	id, rev, revIDs, err := results[0].Docs[0].Identity()
	require.NoError(t, err)
	assert.Equal(t, "doc1", id)
	assert.Equal(t, "1-a", rev)
	assert.Equal(t, []string{"a"}, revIDs)

	err = c.SaveDocs(context.Background(), []json.RawMessage{results[0].Docs[0].Raw})
	require.NoError(t, err)
}
