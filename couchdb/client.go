// Package couchdb implements a typed client for the subset of the CouchDB
// HTTP replication protocol this replicator needs: server/database info,
// local-doc checkpoints, the changes feed, revs_diff, bulk_get and
// bulk_docs. It does not retry; retry policy belongs to the caller.
package couchdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rouchdb/replicator/logger"
)

// Client is an immutable handle on one database URL. It owns no connection
// state of its own; the underlying http.Client may pool connections and is
// safe to share across goroutines.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger logger.Logger
}

// New constructs a Client for the database identified by rawURL. The URL's
// existing path is treated as the database prefix: operations append
// segments to it, they never replace it.
func New(rawURL string) (*Client, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("couchdb: parse endpoint url: %w", err)
	}

	return &Client{
		base:   base,
		http:   http.DefaultClient,
		logger: new(logger.Noop),
	}, nil
}

// SetLogger installs a logger used for request tracing.
func (c *Client) SetLogger(l logger.Logger) {
	c.logger = l
}

// BaseURL returns the database base URL as configured.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

func (c *Client) serverRoot() *url.URL {
	root := *c.base
	root.Path = "/"
	root.RawQuery = ""
	return &root
}

func (c *Client) dbURL(segments ...string) *url.URL {
	u := *c.base
	u.RawQuery = ""
	return u.JoinPath(segments...)
}

func (c *Client) do(ctx context.Context, op, method string, u *url.URL, body io.Reader, query url.Values) (*http.Response, error) {
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debugf("HTTP [%s] %s -> %s", method, u, err)
		return nil, &TransportError{Op: op, Err: err}
	}

	c.logger.Debugf("HTTP [%s] %s -> %d", method, u, resp.StatusCode)
	return resp, nil
}

func readJSON(op string, resp *http.Response, out interface{}) error {
	defer resp.Body.Close() // nolint: errcheck
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}

func upstreamError(op string, resp *http.Response) error {
	defer resp.Body.Close() // nolint: errcheck
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &UpstreamError{Op: op, Status: resp.StatusCode, Body: string(body)}
}

// GetServerInfo fetches the identity of the server instance backing this
// endpoint. GET against the absolute root, not the database path.
func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	const op = "get_server_info"

	resp, err := c.do(ctx, op, http.MethodGet, c.serverRoot(), nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(op, resp)
	}

	var info ServerInfo
	if err := readJSON(op, resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetDatabaseInfo fetches the database's opaque sequence token.
func (c *Client) GetDatabaseInfo(ctx context.Context) (*DatabaseInfo, error) {
	const op = "get_database_info"

	resp, err := c.do(ctx, op, http.MethodGet, c.dbURL(), nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(op, resp)
	}

	var info DatabaseInfo
	if err := readJSON(op, resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetReplicationLog fetches the checkpoint document for replicationID. A 404
// is a normal first-run condition: it returns a fresh, otherwise-empty log
// rather than an error.
func (c *Client) GetReplicationLog(ctx context.Context, replicationID string) (*ReplicationLog, error) {
	const op = "get_replication_log"

	id := "_local/" + replicationID
	resp, err := c.do(ctx, op, http.MethodGet, c.dbURL(id), nil, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close() // nolint: errcheck
		return &ReplicationLog{ID: id}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(op, resp)
	}

	var log ReplicationLog
	if err := readJSON(op, resp, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// SaveReplicationLog persists a checkpoint document. 409 (revision conflict)
// is reported as an UpstreamError; the caller does not attempt to resolve it.
func (c *Client) SaveReplicationLog(ctx context.Context, log *ReplicationLog) error {
	const op = "save_replication_log"

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(log); err != nil {
		return &DecodeError{Op: op, Err: err}
	}

	resp, err := c.do(ctx, op, http.MethodPut, c.dbURL(log.ID), &buf, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return upstreamError(op, resp)
	}
	resp.Body.Close() // nolint: errcheck
	return nil
}

// ChangesLimit is the page size requested from the changes feed. limit=1000
// is contractual: callers use it to detect end-of-stream (fewer than 1000
// rows returned).
const ChangesLimit = 1000

// GetChanges fetches one page of the changes feed. since is opaque; pass ""
// for a full scan from the beginning.
func (c *Client) GetChanges(ctx context.Context, since string) (*Changes, error) {
	const op = "get_changes"

	q := url.Values{}
	q.Set("feed", "normal")
	q.Set("style", "all_docs")
	q.Set("limit", fmt.Sprintf("%d", ChangesLimit))
	if since != "" {
		q.Set("since", since)
	}

	resp, err := c.do(ctx, op, http.MethodGet, c.dbURL("_changes"), nil, q)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(op, resp)
	}

	var changes Changes
	if err := readJSON(op, resp, &changes); err != nil {
		return nil, err
	}
	return &changes, nil
}

// GetRevsDiff asks the endpoint which of the given revisions it is missing.
func (c *Client) GetRevsDiff(ctx context.Context, req RevsDiffRequest) (RevsDiffResponse, error) {
	const op = "get_revs_diff"

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}

	resp, err := c.do(ctx, op, http.MethodPost, c.dbURL("_revs_diff"), &buf, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(op, resp)
	}

	var diff RevsDiffResponse
	if err := readJSON(op, resp, &diff); err != nil {
		return nil, err
	}
	return diff, nil
}

// GetDocs fetches the given (id, rev) pairs with their ancestry.
// revs=true is mandatory: without it responses would not carry
// _revisions, and new_edits=false installation could not reconstruct
// revision identity. attachments=true inlines attachment content as base64
// rather than requiring a second multipart fetch.
func (c *Client) GetDocs(ctx context.Context, refs []DocRef) ([]BulkGetResult, error) {
	const op = "get_docs"

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(bulkGetRequest{Docs: refs}); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}

	q := url.Values{}
	q.Set("revs", "true")
	q.Set("attachments", "true")

	resp, err := c.do(ctx, op, http.MethodPost, c.dbURL("_bulk_get"), &buf, q)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(op, resp)
	}

	var body bulkGetResponse
	if err := readJSON(op, resp, &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

// SaveDocs installs docs on the target with new_edits=false, preserving
// _rev/_revisions verbatim instead of minting new revisions.
func (c *Client) SaveDocs(ctx context.Context, docs []json.RawMessage) error {
	const op = "save_docs"

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(bulkDocsRequest{Docs: docs, NewEdits: false}); err != nil {
		return &DecodeError{Op: op, Err: err}
	}

	resp, err := c.do(ctx, op, http.MethodPost, c.dbURL("_bulk_docs"), &buf, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return upstreamError(op, resp)
	}
	resp.Body.Close() // nolint: errcheck
	return nil
}
