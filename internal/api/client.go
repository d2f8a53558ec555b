// Package api implements the typed client for the tenant HTTP API. It shapes
// requests and responses only; retry and recovery policy belongs to callers.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/partcli/internal/models"
)

// Sentinel errors callers can test with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

const defaultPageSize = 100

// TokenSource supplies a bearer token for outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token. Used in tests and by
// the token subcommand.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Client is a tenant API client.
type Client struct {
	baseURL    string
	tenant     string
	tokens     TokenSource
	httpClient *http.Client
	pageSize   int
	userAgent  string
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets a logger for request debug output.
func WithLogger(l *zap.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// WithPageSize sets the page size used when accumulating paged listings.
func WithPageSize(n int) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.pageSize = n
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.httpClient.Timeout = d }
}

// NewClient creates a client for one tenant.
func NewClient(baseURL, tenant string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		tenant:     tenant,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 180 * time.Second},
		pageSize:   defaultPageSize,
		userAgent:  "partcli",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tenant returns the tenant this client talks to.
func (c *Client) Tenant() string { return c.tenant }

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-TENANT-ID", c.tenant)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executes req and decodes a JSON response into out (when non-nil).
// HTTP error statuses are mapped to the package sentinels.
func (c *Client) do(req *http.Request, out interface{}) error {
	if c.logger != nil {
		c.logger.Debug("api request", zap.String("method", req.Method), zap.String("url", req.URL.String()))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	case http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrNotFound)
	case http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrUnauthorized)
	case http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrForbidden)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: unexpected status %s: %s", req.Method, req.URL.Path, resp.Status, bytes.TrimSpace(body))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// Folders lists all folders in the tenant.
func (c *Client) Folders(ctx context.Context) (models.FolderList, error) {
	var resp struct {
		Folders models.FolderList `json:"folders"`
	}
	if err := c.get(ctx, "/v2/folders", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Folders, nil
}

// CreateFolder creates a folder with the given name.
func (c *Client) CreateFolder(ctx context.Context, name string) (models.Folder, error) {
	var resp struct {
		Folder models.Folder `json:"folder"`
	}
	payload := map[string]string{"name": name}
	if err := c.sendJSON(ctx, http.MethodPost, "/v2/folders", payload, &resp); err != nil {
		return models.Folder{}, err
	}
	return resp.Folder, nil
}

// DeleteFolder removes a folder by ID.
func (c *Client) DeleteFolder(ctx context.Context, id uint32) error {
	path := "/v2/folders/" + strconv.FormatUint(uint64(id), 10)
	return c.sendJSON(ctx, http.MethodDelete, path, nil, nil)
}

// Models lists models, restricted to folderIDs when non-empty and filtered by
// the optional search term. All pages are accumulated.
func (c *Client) Models(ctx context.Context, folderIDs []uint32, search string) ([]models.Model, error) {
	var out []models.Model
	for page := 1; ; page++ {
		query := url.Values{}
		for _, id := range folderIDs {
			query.Add("folderIds", strconv.FormatUint(uint64(id), 10))
		}
		if search != "" {
			query.Set("search", search)
		}
		query.Set("perPage", strconv.Itoa(c.pageSize))
		query.Set("page", strconv.Itoa(page))

		var resp models.ModelPage
		if err := c.get(ctx, "/v2/models", query, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Models...)
		if !resp.PageData.HasNext() {
			return out, nil
		}
	}
}

// Model returns a single model record.
func (c *Client) Model(ctx context.Context, id uuid.UUID) (*models.Model, error) {
	var resp struct {
		Model models.Model `json:"model"`
	}
	if err := c.get(ctx, "/v2/models/"+id.String(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Model, nil
}

// DeleteModel removes a model.
func (c *Client) DeleteModel(ctx context.Context, id uuid.UUID) error {
	return c.sendJSON(ctx, http.MethodDelete, "/v2/models/"+id.String(), nil, nil)
}

// ReprocessModel queues a model for geometric reprocessing. The reprocess
// endpoint lives on the v1 surface and takes the model id as a form part.
func (c *Client) ReprocessModel(ctx context.Context, id uuid.UUID) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("uuid", id.String())
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to build reprocess form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/"+c.tenant+"/models/reprocess", nil, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, nil)
}

// AssemblyTree returns the raw assembly tree for a model.
func (c *Client) AssemblyTree(ctx context.Context, id uuid.UUID) (*models.AssemblyTreeNode, error) {
	var resp models.AssemblyTreeNode
	if err := c.get(ctx, "/v2/models/"+id.String()+"/assembly-tree", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Matches runs a part-to-part match query at the given threshold and
// accumulates all pages. threshold is a fraction in [0, 1].
func (c *Client) Matches(ctx context.Context, id uuid.UUID, threshold float64) ([]models.ModelMatch, error) {
	var out []models.ModelMatch
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("threshold", strconv.FormatFloat(threshold, 'f', -1, 64))
		query.Set("perPage", strconv.Itoa(c.pageSize))
		query.Set("page", strconv.Itoa(page))

		var resp models.MatchPage
		if err := c.get(ctx, "/v2/models/"+id.String()+"/part-to-part-matches", query, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Matches...)
		if !resp.PageData.HasNext() {
			return out, nil
		}
	}
}

// ModelMetadata lists the metadata properties of a model.
func (c *Client) ModelMetadata(ctx context.Context, id uuid.UUID) ([]models.Property, error) {
	var resp struct {
		Metadata []models.Property `json:"metadata"`
	}
	if err := c.get(ctx, "/v2/models/"+id.String()+"/metadata", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Metadata, nil
}

// MetadataKeys lists the tenant-wide metadata key definitions.
func (c *Client) MetadataKeys(ctx context.Context) ([]models.PropertyKey, error) {
	var resp struct {
		MetadataKeys []models.PropertyKey `json:"metadataKeys"`
	}
	if err := c.get(ctx, "/v2/metadata-keys", nil, &resp); err != nil {
		return nil, err
	}
	return resp.MetadataKeys, nil
}

// CreateMetadataKey registers a metadata key name and returns its definition.
// Creating an existing key returns the existing definition.
func (c *Client) CreateMetadataKey(ctx context.Context, name string) (models.PropertyKey, error) {
	var resp struct {
		MetadataKey models.PropertyKey `json:"metadataKey"`
	}
	payload := map[string]string{"name": name}
	if err := c.sendJSON(ctx, http.MethodPost, "/v2/metadata-keys", payload, &resp); err != nil {
		return models.PropertyKey{}, err
	}
	return resp.MetadataKey, nil
}

// SetProperty sets a metadata property on a model, registering the key when
// it does not exist yet.
func (c *Client) SetProperty(ctx context.Context, modelID uuid.UUID, name, value string) (models.Property, error) {
	key, err := c.resolveKey(ctx, name, true)
	if err != nil {
		return models.Property{}, err
	}
	var resp struct {
		Metadata models.Property `json:"metadata"`
	}
	path := fmt.Sprintf("/v2/models/%s/metadata/%d", modelID, key.ID)
	payload := map[string]string{"value": value}
	if err := c.sendJSON(ctx, http.MethodPut, path, payload, &resp); err != nil {
		return models.Property{}, err
	}
	return resp.Metadata, nil
}

// DeleteProperty removes a metadata property from a model. Deleting a
// property whose key is unknown to the tenant is a no-op.
func (c *Client) DeleteProperty(ctx context.Context, modelID uuid.UUID, name string) error {
	key, err := c.resolveKey(ctx, name, false)
	if err != nil {
		return err
	}
	if key.ID == 0 {
		return nil
	}
	path := fmt.Sprintf("/v2/models/%s/metadata/%d", modelID, key.ID)
	return c.sendJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) resolveKey(ctx context.Context, name string, create bool) (models.PropertyKey, error) {
	keys, err := c.MetadataKeys(ctx)
	if err != nil {
		return models.PropertyKey{}, err
	}
	for _, k := range keys {
		if k.Name == name {
			return k, nil
		}
	}
	if !create {
		return models.PropertyKey{}, nil
	}
	return c.CreateMetadataKey(ctx, name)
}

// UploadModel uploads a model file into a folder. units is the model's unit
// of measure (e.g. "mm"). batch groups multiple uploads under one source tag.
func (c *Client) UploadModel(ctx context.Context, folderID uint32, path, units, batch string) (*models.Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	_ = mw.WriteField("containerId", strconv.FormatUint(uint64(folderID), 10))
	_ = mw.WriteField("units", units)
	_ = mw.WriteField("sourceId", filepath.Base(path))
	if batch != "" {
		_ = mw.WriteField("batch", batch)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/"+c.tenant+"/models", nil, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		Model models.Model `json:"model"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp.Model, nil
}
