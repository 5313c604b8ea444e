package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// Client talks to the retrieval HTTP API.
type Client struct {
	baseURL    string
	token      string
	storeName  string
	httpClient *http.Client
}

// New creates a retrieval API client. token is the bearer token for the
// targeted store.
func New(baseURL, token string, opts ...Option) *Client {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		storeName:  cfg.storeName,
		httpClient: hc,
	}
}

// Upsert stores documents and returns their IDs in input order.
func (c *Client) Upsert(ctx context.Context, docs []Document) ([]string, error) {
	var resp struct {
		IDs []string `json:"ids"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/upsert",
		map[string]any{"documents": docs}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// UpsertFile uploads a file and stores its extracted text as a single
// document. meta is optional.
func (c *Client) UpsertFile(
	ctx context.Context, filename string, content io.Reader, meta *DocumentMetadata,
) ([]string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("retrieval: create form file: %w", err)
	}
	if _, err := io.Copy(fw, content); err != nil {
		return nil, fmt.Errorf("retrieval: write form file: %w", err)
	}

	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("retrieval: marshal metadata: %w", err)
		}
		if err := mw.WriteField("metadata", string(raw)); err != nil {
			return nil, fmt.Errorf("retrieval: write metadata field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("retrieval: close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upsert-file", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		IDs []string `json:"ids"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// Query runs semantic queries against the targeted store. The response
// has one result entry per query, in input order.
func (c *Client) Query(ctx context.Context, queries []Query) ([]QueryResult, error) {
	return c.query(ctx, "/query", queries)
}

// SubQuery runs queries against the server's default store while
// authenticating against the targeted store.
func (c *Client) SubQuery(ctx context.Context, queries []Query) ([]QueryResult, error) {
	return c.query(ctx, "/sub/query", queries)
}

func (c *Client) query(ctx context.Context, path string, queries []Query) ([]QueryResult, error) {
	var resp struct {
		Results []QueryResult `json:"results"`
	}
	err := c.doJSON(ctx, http.MethodPost, path,
		map[string]any{"queries": queries}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Delete removes chunks by IDs, by filter, or everything when deleteAll
// is set. At least one selector is required.
func (c *Client) Delete(
	ctx context.Context, ids []string, filter *MetadataFilter, deleteAll bool,
) (bool, error) {
	body := map[string]any{}
	if len(ids) > 0 {
		body["ids"] = ids
	}
	if filter != nil {
		body["filter"] = filter
	}
	if deleteAll {
		body["delete_all"] = true
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/delete", body, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("retrieval: marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, method, path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("retrieval: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.storeName != "" {
		req.Header.Set("pinecone_name", c.storeName)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("retrieval: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("retrieval: decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var body struct {
		Detail string `json:"detail"`
	}
	detail := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Detail != "" {
		detail = body.Detail
	}

	return &APIError{StatusCode: resp.StatusCode, Detail: detail}
}
