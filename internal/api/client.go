// Package api provides the client for the flow-task backend REST and job-queue API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leapstack-labs/flowtask/internal/flow"
)

// DefaultTimeout bounds a single request to the backend.
const DefaultTimeout = 30 * time.Second

// ErrNotFound is matched by a *StatusError carrying a 404.
var ErrNotFound = errors.New("not found")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server error: %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether the failure is on the server side.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsRetryable reports whether err is worth a retry: transport failures and
// server-side errors. Client errors and cancellation are final.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var de *DecodeError
	return !errors.As(err, &de)
}

// DecodeError wraps a malformed response body.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decoding response: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Client talks to the flow-task backend.
type Client struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client

	logger *slog.Logger
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AuthToken: token,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger,
	}
}

// --- Wire types ---

// GraphResponse is the stored graph of a flow task.
type GraphResponse struct {
	Nodes     []flow.Node `json:"nodes_json"`
	Edges     []flow.Edge `json:"edges_json"`
	UpdatedAt string      `json:"updated_at,omitempty"`
}

// Graph returns the response as a flow graph with non-nil slices.
func (r GraphResponse) Graph() flow.Graph {
	g := flow.Graph{Nodes: r.Nodes, Edges: r.Edges}
	if g.Nodes == nil {
		g.Nodes = []flow.Node{}
	}
	if g.Edges == nil {
		g.Edges = []flow.Edge{}
	}
	return g
}

type graphRequest struct {
	Nodes []flow.Node `json:"nodes"`
	Edges []flow.Edge `json:"edges"`
}

// PreviewRequest asks the backend to execute the chain up to NodeID.
type PreviewRequest struct {
	NodeID string      `json:"node_id"`
	Nodes  []flow.Node `json:"nodes"`
	Edges  []flow.Edge `json:"edges"`
	Limit  int         `json:"limit"`
}

type previewResponse struct {
	TaskID string `json:"task_id"`
}

// SchemaRequest asks the backend for the output columns of NodeID.
type SchemaRequest struct {
	NodeID string      `json:"node_id"`
	Nodes  []flow.Node `json:"nodes"`
	Edges  []flow.Edge `json:"edges"`
}

type schemaResponse struct {
	Columns []flow.Column `json:"columns"`
}

type runResponse struct {
	TaskID string `json:"celery_task_id"`
}

// Task states reported by the job queue.
const (
	TaskPending = "PENDING"
	TaskRunning = "RUNNING"
	TaskSuccess = "SUCCESS"
	TaskFailure = "FAILURE"
	TaskRevoked = "REVOKED"
)

// TaskStatus is the state of a backend job.
type TaskStatus struct {
	State  string          `json:"state"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (s TaskStatus) Done() bool {
	switch s.State {
	case TaskSuccess, TaskFailure, TaskRevoked:
		return true
	}
	return false
}

// ErrorResponse is returned by the backend for API errors.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// --- API Methods ---

// GetGraph loads the stored graph. A task without a graph yields ErrNotFound.
func (c *Client) GetGraph(ctx context.Context, flowTaskID string) (*GraphResponse, error) {
	var out GraphResponse
	if err := c.do(ctx, http.MethodGet, c.taskPath(flowTaskID, "graph"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveGraph persists a new version of the graph.
func (c *Client) SaveGraph(ctx context.Context, flowTaskID string, g flow.Graph) error {
	return c.do(ctx, http.MethodPut, c.taskPath(flowTaskID, "graph"), graphRequest(g), nil)
}

// SubmitPreview starts a preview job and returns its id.
func (c *Client) SubmitPreview(ctx context.Context, flowTaskID string, req PreviewRequest) (string, error) {
	var out previewResponse
	if err := c.do(ctx, http.MethodPost, c.taskPath(flowTaskID, "preview"), req, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", &DecodeError{Err: errors.New("missing task_id")}
	}
	return out.TaskID, nil
}

// ResolveSchema runs a zero-row probe and returns the output columns.
func (c *Client) ResolveSchema(ctx context.Context, flowTaskID string, req SchemaRequest) ([]flow.Column, error) {
	var out schemaResponse
	if err := c.do(ctx, http.MethodPost, c.taskPath(flowTaskID, "schema"), req, &out); err != nil {
		return nil, err
	}
	if out.Columns == nil {
		out.Columns = []flow.Column{}
	}
	return out.Columns, nil
}

// TaskStatus polls a job.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var out TaskStatus
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID)+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitRun starts a full pipeline run and returns its job id.
func (c *Client) SubmitRun(ctx context.Context, flowTaskID string) (string, error) {
	var out runResponse
	if err := c.do(ctx, http.MethodPost, c.taskPath(flowTaskID, "run"), nil, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", &DecodeError{Err: errors.New("missing celery_task_id")}
	}
	return out.TaskID, nil
}

// CancelRun asks the backend to stop the running pipeline.
func (c *Client) CancelRun(ctx context.Context, flowTaskID string) error {
	return c.do(ctx, http.MethodPost, c.taskPath(flowTaskID, "run/cancel"), nil, nil)
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// --- Helper methods ---

func (c *Client) taskPath(flowTaskID, suffix string) string {
	return "/flow-tasks/" + url.PathEscape(flowTaskID) + "/" + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	se := &StatusError{StatusCode: resp.StatusCode}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Error != "" && errResp.Detail != "":
			se.Message = errResp.Error + ": " + errResp.Detail
		case errResp.Error != "":
			se.Message = errResp.Error
		case errResp.Detail != "":
			se.Message = errResp.Detail
		}
		return se
	}
	se.Message = strings.TrimSpace(string(body))
	return se
}
