package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/docq/internal/model"
)

// HTTPClient implements Client using the docq HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func collectionPath(collection string) string {
	return "/v1/collections/" + url.PathEscape(collection)
}

func documentPath(collection, id string) string {
	return collectionPath(collection) + "/" + url.PathEscape(id)
}

func queryPath(name string) string {
	return "/v1/queries/" + url.PathEscape(name)
}

// --- Documents ---

// ListDocuments runs a filter query (JSON text, may be empty) against a
// collection.
func (c *HTTPClient) ListDocuments(ctx context.Context, collection, query string) (*model.ListResult, error) {
	path := collectionPath(collection)
	if query != "" {
		path += "?" + url.Values{"query": {query}}.Encode()
	}
	var res model.ListResult
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) CreateDocument(ctx context.Context, collection string, doc model.Document) (model.Document, error) {
	var out model.Document
	if err := c.doJSON(ctx, http.MethodPost, collectionPath(collection), doc, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetDocument(ctx context.Context, collection, id string) (model.Document, error) {
	var out model.Document
	if err := c.doJSON(ctx, http.MethodGet, documentPath(collection, id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) UpdateDocument(ctx context.Context, collection, id string, doc model.Document) (model.Document, error) {
	var out model.Document
	if err := c.doJSON(ctx, http.MethodPut, documentPath(collection, id), doc, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) DeleteDocument(ctx context.Context, collection, id string) error {
	return c.doJSON(ctx, http.MethodDelete, documentPath(collection, id), nil, nil)
}

// --- Named queries ---

func (c *HTTPClient) RegisterQuery(ctx context.Context, q *model.NamedQuery) (*model.NamedQuery, error) {
	var out model.NamedQuery
	if err := c.doJSON(ctx, http.MethodPut, queryPath(q.Name), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetQuery(ctx context.Context, name string) (*model.NamedQuery, error) {
	var out model.NamedQuery
	if err := c.doJSON(ctx, http.MethodGet, queryPath(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListQueries(ctx context.Context) ([]*model.NamedQuery, error) {
	var resp struct {
		Queries []*model.NamedQuery `json:"queries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/queries", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Queries, nil
}

func (c *HTTPClient) DeleteQuery(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodDelete, queryPath(name), nil, nil)
}

// ExecuteNamedQuery runs a registered query. A nil req executes with no
// parameters or options.
func (c *HTTPClient) ExecuteNamedQuery(ctx context.Context, name string, req *model.ExecutionRequest) (*model.ExecutionResult, error) {
	if req == nil {
		req = &model.ExecutionRequest{}
	}
	var out model.ExecutionResult
	if err := c.doJSON(ctx, http.MethodPost, queryPath(name)+"/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- Events ---

// Event is one message from the server-sent event stream.
type Event struct {
	ID    string
	Topic string
	Data  json.RawMessage
}

// StreamEvents follows GET /v1/events/stream, calling fn for each event until
// ctx is done, the server closes the stream, or fn returns an error. topics
// are NATS-style patterns; lastID resumes after a previously seen event.
func (c *HTTPClient) StreamEvents(ctx context.Context, topics []string, lastID string, fn func(Event) error) error {
	path := "/v1/events/stream"
	if len(topics) > 0 {
		path += "?" + url.Values{"topics": {strings.Join(topics, ",")}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var evt Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if evt.Data != nil {
				if err := fn(evt); err != nil {
					return err
				}
			}
			evt = Event{}
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "id":
				evt.ID = value
			case "event":
				evt.Topic = value
			case "data":
				evt.Data = json.RawMessage(value)
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
