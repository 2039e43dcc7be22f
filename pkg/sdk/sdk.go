// Package sdk is the typed Go client for the EasyBits REST API. It is used by
// the easybits CLI and is importable by external Go consumers. The client
// authenticates every request with an API key via the Authorization header and
// talks to the /api/v2 surface.
//
// Two separate HTTP clients are used — one for API calls (30-second timeout)
// and one for object transfers (10-minute timeout). API calls should fail
// quickly if the server is misconfigured or unreachable, while uploads of
// large objects legitimately take minutes on slow links.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/easybits/easybits/pkg/checksum"
)

// Client is an EasyBits API client bound to one base URL and API key.
type Client struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client // For API requests (short timeout)
	TransferClient *http.Client // For object uploads and downloads (longer timeout)
}

// New creates a client for the given server base URL and API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		TransferClient: &http.Client{
			Timeout: 10 * time.Minute, // Longer timeout for large object bodies
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("easybits: server returned %d: %s", e.StatusCode, e.Message)
}

// File is one stored object's metadata as returned by the API.
type File struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	AssetID     *string         `json:"asset_id,omitempty"`
	Name        string          `json:"name"`
	StorageKey  string          `json:"storage_key"`
	ContentType string          `json:"content_type"`
	Size        int64           `json:"size"`
	Status      string          `json:"status"`
	Access      string          `json:"access"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

// Provider is a custom storage provider as returned by the API. Credential
// fields are never included in API responses.
type Provider struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Region    string    `json:"region"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Bucket    string    `json:"bucket"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage is an owner's aggregate storage usage.
type Usage struct {
	FileCount    int   `json:"file_count"`
	TotalBytes   int64 `json:"total_bytes"`
	DeletedCount int   `json:"deleted_count"`
}

// FilePage is one page of a file listing.
type FilePage struct {
	Files  []File `json:"files"`
	Cursor string `json:"cursor"`
}

// ListFilesOptions narrows a file listing. The zero value lists the first
// page of live files with the server's default page size.
type ListFilesOptions struct {
	Cursor  string
	Limit   int
	Deleted bool
}

// ListFiles returns one page of the caller's files.
func (c *Client) ListFiles(ctx context.Context, opts ListFilesOptions) (*FilePage, error) {
	q := url.Values{}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Deleted {
		q.Set("deleted", "true")
	}
	path := "/api/v2/files"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page FilePage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetFile returns one file's metadata.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	if err := c.doJSON(ctx, http.MethodGet, "/api/v2/files/"+url.PathEscape(fileID), nil, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// UploadInput describes one object to upload. Body must be seekable because
// the payload is read twice — once to compute its checksum and once to send it.
type UploadInput struct {
	Name        string
	ContentType string
	Size        int64
	Access      string // "public" or "private"; the server defaults empty to private
	Body        io.ReadSeeker
}

// uploadGrant mirrors the server's response to POST /api/v2/files.
type uploadGrant struct {
	File      File   `json:"file"`
	UploadURL string `json:"upload_url"`
	ExpiresIn int    `json:"expires_in"`
}

// Upload registers a file, sends its payload to the granted URL, and confirms
// the upload. The returned file is the post-confirmation record.
func (c *Client) Upload(ctx context.Context, in UploadInput) (*File, error) {
	sum, err := checksum.CalculateSHA256(in.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum payload: %w", err)
	}
	if _, err := in.Body.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind payload: %w", err)
	}

	meta, err := json.Marshal(map[string]string{"sha256": sum})
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	createReq := map[string]any{
		"name":         in.Name,
		"content_type": in.ContentType,
		"size":         in.Size,
		"metadata":     json.RawMessage(meta),
	}
	if in.Access != "" {
		createReq["access"] = in.Access
	}

	var grant uploadGrant
	if err := c.doJSON(ctx, http.MethodPost, "/api/v2/files", createReq, &grant); err != nil {
		return nil, err
	}

	if err := c.putObject(ctx, grant.UploadURL, in.ContentType, in.Size, in.Body); err != nil {
		return nil, err
	}

	var confirmed File
	if err := c.doJSON(ctx, http.MethodPost, "/api/v2/files/"+url.PathEscape(grant.File.ID)+"/confirm", nil, &confirmed); err != nil {
		return nil, err
	}
	return &confirmed, nil
}

// DeleteFile soft-deletes a file. Deleting an already-deleted file succeeds.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v2/files/"+url.PathEscape(fileID), nil, nil)
}

// DownloadURL returns a short-lived signed URL for a file's content.
func (c *Client) DownloadURL(ctx context.Context, fileID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v2/files/"+url.PathEscape(fileID)+"/download", nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// ListProviders returns the caller's custom storage providers.
func (c *Client) ListProviders(ctx context.Context) ([]Provider, error) {
	var out struct {
		Providers []Provider `json:"providers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v2/providers", nil, &out); err != nil {
		return nil, err
	}
	return out.Providers, nil
}

// GetUsage returns the caller's aggregate storage usage.
func (c *Client) GetUsage(ctx context.Context) (*Usage, error) {
	var usage Usage
	if err := c.doJSON(ctx, http.MethodGet, "/api/v2/usage", nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// doJSON performs one authenticated API request. A non-nil body is encoded as
// JSON; a non-nil out receives the decoded response body.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// putObject streams a payload to a granted upload URL. The URL is already
// signed, so no Authorization header is sent.
func (c *Client) putObject(ctx context.Context, uploadURL, contentType string, size int64, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = size

	resp, err := c.TransferClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(snippet))}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(snippet, &parsed); err == nil && parsed.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: parsed.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(snippet))}
}
