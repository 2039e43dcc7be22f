// Package local implements a filesystem storage backend for development and
// single-node deployments. "Presigned" URLs are HMAC-signed links served by
// the API process itself (see the /local routes in internal/api/router.go),
// so the Client contract — direct-to-storage transfer authorized by a
// time-limited URL — holds even without a cloud backend. Not suitable for
// horizontally scaled deployments.
package local

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easybits/easybits/internal/storage"
)

func init() {
	storage.Register("local", func(cfg storage.BackendConfig) (storage.Client, error) {
		return New(cfg)
	})
}

// Client implements the storage.Client interface over a local directory.
type Client struct {
	basePath  string
	baseURL   string
	namespace string
	secret    []byte
}

// New creates a local filesystem storage client rooted at cfg.BasePath.
func New(cfg storage.BackendConfig) (*Client, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local storage base path is required")
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("local storage signing secret is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Client{
		basePath:  cfg.BasePath,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		namespace: cfg.KeyNamespace,
		secret:    []byte(cfg.SigningSecret),
	}, nil
}

func (c *Client) objectKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + "/" + key
}

func (c *Client) fullPath(key string) string {
	return filepath.Join(c.basePath, filepath.FromSlash(c.objectKey(key)))
}

// sign computes the HMAC over method, key, and expiry timestamp.
func (c *Client) sign(method, key string, expiresAt int64) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", method, key, expiresAt)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signed URL's signature and expiry. It is called by
// the /local HTTP handlers that serve the signed URLs this client mints.
func (c *Client) VerifySignature(method, key string, expiresAt int64, signature string) bool {
	if time.Now().Unix() > expiresAt {
		return false
	}
	expected := c.sign(method, key, expiresAt)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) signedURL(method, key string, expires time.Duration) string {
	if expires <= 0 {
		expires = storage.DefaultURLExpiry
	}
	expiresAt := time.Now().Add(expires).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expiresAt, 10))
	q.Set("signature", c.sign(method, key, expiresAt))
	return fmt.Sprintf("%s/local/%s?%s", c.baseURL, url.PathEscape(key), q.Encode())
}

// PresignPut returns a signed URL accepting one PUT of the object.
func (c *Client) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	return c.signedURL("PUT", key, expires), nil
}

// PresignGet returns a signed URL accepting GETs of the object.
func (c *Client) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	return c.signedURL("GET", key, expires), nil
}

// PutObject stores the object bytes; called by the signed-URL PUT handler.
func (c *Client) PutObject(ctx context.Context, key string, r io.Reader) error {
	full := c.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(full)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// GetObject opens the object for reading; called by the signed-URL GET handler.
func (c *Client) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(c.fullPath(key))
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// DeleteObject removes the object; a missing object is success.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	err := os.Remove(c.fullPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// CopyObject copies srcKey to dstKey.
func (c *Client) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	src, err := os.Open(c.fullPath(srcKey))
	if err != nil {
		return fmt.Errorf("failed to open source object: %w", err)
	}
	defer src.Close()
	return c.PutObject(ctx, dstKey, src)
}

// partDir returns the staging directory for an open multipart session. It
// lives under the same namespace as regular objects so the signed part URLs
// (whose keys are ".multipart/{uploadID}/{n}") resolve to the same location.
func (c *Client) partDir(uploadID string) string {
	return filepath.Join(c.basePath, filepath.FromSlash(c.objectKey(".multipart/"+uploadID)))
}

// CreateMultipart opens a multipart session backed by a staging directory.
func (c *Client) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	uploadID := uuid.New().String()
	if err := os.MkdirAll(c.partDir(uploadID), 0750); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrBackendUnavailable, err)
	}
	return uploadID, nil
}

// PresignPutPart returns a signed URL for one part upload.
func (c *Client) PresignPutPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	partKey := fmt.Sprintf(".multipart/%s/%d", uploadID, partNumber)
	return c.signedURL("PUT", partKey, expires), nil
}

// CompleteMultipart concatenates the staged parts into the final object.
func (c *Client) CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) error {
	if !storage.OrderedParts(parts) {
		return storage.ErrIncompleteParts
	}

	dir := c.partDir(uploadID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("multipart session not found: %w", err)
	}
	if len(entries) < len(parts) {
		return storage.ErrIncompleteParts
	}

	names := make([]int, 0, len(entries))
	for _, e := range entries {
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		names = append(names, n)
	}
	sort.Ints(names)

	full := c.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create object: %w", err)
	}
	defer out.Close()

	for _, n := range names {
		part, err := os.Open(filepath.Join(dir, strconv.Itoa(n)))
		if err != nil {
			return storage.ErrIncompleteParts
		}
		_, err = io.Copy(out, part)
		part.Close()
		if err != nil {
			return fmt.Errorf("failed to assemble part %d: %w", n, err)
		}
	}

	return os.RemoveAll(dir)
}

// AbortMultipart discards the staging directory.
func (c *Client) AbortMultipart(ctx context.Context, key, uploadID string) error {
	return os.RemoveAll(c.partDir(uploadID))
}

// EnsureCORS is a no-op: the local URLs are served by the API process, which
// already carries the application's CORS middleware.
func (c *Client) EnsureCORS(ctx context.Context, origins []string) error {
	return nil
}

// Ping verifies the base directory is writable.
func (c *Client) Ping(ctx context.Context) error {
	probe := filepath.Join(c.basePath, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrBackendUnavailable, err)
	}
	return os.Remove(probe)
}
