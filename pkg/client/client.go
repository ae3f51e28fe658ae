// Package client provides a Go client for the kektorplan HTTP API.
//
// It covers query planning and execution, statistics, and maintenance of
// the served graph (nodes, links, entity lookups). The client handles HTTP
// communication, JSON serialization and standardized error handling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sanonone/kektorplan/pkg/graph"
	"github.com/sanonone/kektorplan/pkg/optimizer"
	"github.com/sanonone/kektorplan/pkg/query"
	"github.com/sanonone/kektorplan/pkg/stats"
)

// --- Custom Errors ---

// APIError represents an error returned by the API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// --- JSON Structs ---

// Node is a graph node to add.
type Node struct {
	ID               string         `json:"id"`
	Type             string         `json:"type,omitempty"`
	Vector           []float32      `json:"vector,omitempty"`
	Properties       map[string]any `json:"properties,omitempty"`
	ContentAddressed bool           `json:"content_addressed,omitempty"`
}

type linkPayload struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight,omitempty"`
}

// Execution is the outcome of Execute.
type Execution struct {
	Results []graph.Result          `json:"results"`
	Info    optimizer.ExecutionInfo `json:"execution"`
}

// Stats models GET /stats.
type Stats struct {
	Queries          stats.Snapshot   `json:"queries"`
	EdgeObservations map[string]int64 `json:"edge_observations"`
	GraphNodes       int              `json:"graph_nodes"`
}

// --- Client ---

// Client talks to a kektorplan server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the server at host:port. apiKey may be empty
// when the server runs without authentication.
func New(host string, port int, apiKey string) *Client {
	return NewFromURL(fmt.Sprintf("http://%s:%d", host, port), apiKey)
}

// NewFromURL creates a client for a full base URL such as
// "https://plan.internal:9091".
func NewFromURL(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// jsonRequest executes a request against the API. It handles JSON
// serialization, authentication and error decoding; out may be nil.
func (c *Client) jsonRequest(ctx context.Context, method, endpoint string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// --- Queries ---

// Optimize returns the plan the server would execute for q.
func (c *Client) Optimize(ctx context.Context, q query.Query) (query.Plan, error) {
	var plan query.Plan
	err := c.jsonRequest(ctx, http.MethodPost, "/query/optimize", q, &plan)
	return plan, err
}

// Execute plans and runs q against the served graph.
func (c *Client) Execute(ctx context.Context, q query.Query) (*Execution, error) {
	var exec Execution
	if err := c.jsonRequest(ctx, http.MethodPost, "/query/execute", q, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// --- Statistics ---

// Stats returns the server's query statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.jsonRequest(ctx, http.MethodGet, "/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// TopEntities returns the n entities with the highest memoized importance.
func (c *Client) TopEntities(ctx context.Context, n int) ([]stats.EntityScore, error) {
	var resp struct {
		Entities []stats.EntityScore `json:"entities"`
	}
	endpoint := "/entities/top?n=" + strconv.Itoa(n)
	if err := c.jsonRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entities, nil
}

// --- Graph ---

// AddNode adds or replaces a node and returns its CID when it is
// content-addressed.
func (c *Client) AddNode(ctx context.Context, n Node) (string, error) {
	var resp struct {
		CID string `json:"cid"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/graph/nodes", n, &resp)
	return resp.CID, err
}

// Link creates or updates the edge source -[relation]-> target.
func (c *Client) Link(ctx context.Context, source, target, relation string, weight float64) error {
	return c.jsonRequest(ctx, http.MethodPost, "/graph/links", linkPayload{source, target, relation, weight}, nil)
}

// Unlink removes an edge and reports whether it existed.
func (c *Client) Unlink(ctx context.Context, source, target, relation string) (bool, error) {
	var resp struct {
		Removed bool `json:"removed"`
	}
	err := c.jsonRequest(ctx, http.MethodDelete, "/graph/links", linkPayload{Source: source, Target: target, Relation: relation}, &resp)
	return resp.Removed, err
}

// Entity describes a node and its connections.
func (c *Client) Entity(ctx context.Context, id string) (*graph.EntityInfo, error) {
	var info graph.EntityInfo
	if err := c.jsonRequest(ctx, http.MethodGet, "/graph/entities/"+url.PathEscape(id), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
