package files

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/easybits/easybits/internal/auth"
	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/events"
	"github.com/easybits/easybits/internal/middleware"
	"github.com/easybits/easybits/internal/services"
	"github.com/easybits/easybits/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type stubClient struct {
	putURL string
	getURL string
}

func (s *stubClient) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	return s.putURL, nil
}
func (s *stubClient) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	return s.getURL, nil
}
func (s *stubClient) DeleteObject(ctx context.Context, key string) error          { return nil }
func (s *stubClient) CopyObject(ctx context.Context, srcKey, dstKey string) error { return nil }
func (s *stubClient) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	return "mp-1", nil
}
func (s *stubClient) PresignPutPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	return s.putURL, nil
}
func (s *stubClient) CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) error {
	return nil
}
func (s *stubClient) AbortMultipart(ctx context.Context, key, uploadID string) error { return nil }
func (s *stubClient) EnsureCORS(ctx context.Context, origins []string) error         { return nil }
func (s *stubClient) Ping(ctx context.Context) error                                 { return nil }

type stubResolver struct{ client storage.Client }

func (r *stubResolver) Resolve(ctx context.Context, userID, providerID string) (storage.Client, *models.StorageProvider, error) {
	return r.client, nil, nil
}
func (r *stubResolver) ResolveForFile(ctx context.Context, file *models.File) (storage.Client, error) {
	return r.client, nil
}

// newTestRouter builds a gin engine with the file routes registered the way
// the real router registers them, authenticated as user-1.
func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := services.NewFileService(
		repositories.NewFileRepository(db),
		repositories.NewShareTokenRepository(sqlx.NewDb(db, "postgres")),
		&stubResolver{client: &stubClient{putURL: "https://backend/put", getURL: "https://backend/get"}},
		events.NewBus(),
		slog.New(slog.DiscardHandler),
	)
	h := NewHandlers(svc)

	r := gin.New()
	authed := r.Group("/api/v2", func(c *gin.Context) {
		c.Set(middleware.CtxUserID, "user-1")
	})
	authed.GET("/files", h.List)
	authed.POST("/files", h.Create)
	authed.GET("/files/search", h.Search)
	authed.POST("/files/bulk-delete", h.BulkDelete)
	authed.POST("/files/bulk-upload", h.BulkUpload)
	authed.POST("/files/multipart", h.CreateMultipart)
	authed.POST("/files/multipart/complete", h.CompleteMultipart)
	authed.POST("/files/multipart/abort", h.AbortMultipart)
	authed.GET("/files/:fileId", h.Get)
	authed.PATCH("/files/:fileId", h.Update)
	authed.DELETE("/files/:fileId", h.Delete)
	authed.GET("/files/:fileId/download", h.Download)
	authed.POST("/files/:fileId/restore", h.Restore)
	authed.POST("/files/:fileId/confirm", h.Confirm)
	authed.POST("/files/:fileId/duplicate", h.Duplicate)
	authed.POST("/files/:fileId/optimize", h.Optimize)
	authed.POST("/files/:fileId/share-token", h.CreateShareToken)
	authed.GET("/files/:fileId/permissions", h.Permissions)
	authed.GET("/share-tokens", h.ListShareTokens)
	authed.DELETE("/share-tokens/:tokenId", h.RevokeShareToken)
	authed.GET("/usage", h.Usage)
	r.GET("/api/v2/shared/:token", h.SharedDownload)
	r.POST("/api/v2/shared/:token/upload", h.SharedUpload)
	r.DELETE("/api/v2/shared/:token", h.SharedDelete)
	return r, mock
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

var fileCols = []string{
	"id", "owner_id", "asset_id", "name", "storage_key", "content_type", "size",
	"status", "access", "storage_provider_id", "metadata", "upload_id",
	"part_count", "version", "created_at", "updated_at", "deleted_at",
}

func fileRow(id, owner, status string, version int) *sqlmock.Rows {
	return sqlmock.NewRows(fileCols).
		AddRow(id, owner, nil, "report.pdf", "u/"+owner+"/key", "application/pdf",
			int64(2048), status, models.FileAccessPrivate, nil, nil, nil,
			nil, version, time.Now(), time.Now(), nil)
}

var shareCols = []string{
	"id", "file_id", "token_hash", "target_email", "can_read", "can_write",
	"can_delete", "source", "expires_at", "created_at",
}

// ---------------------------------------------------------------------------
// Uploads and reads
// ---------------------------------------------------------------------------

func TestCreate_IssuesGrant(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectExec("INSERT INTO files").WillReturnResult(sqlmock.NewResult(1, 1))

	w := doJSON(r, http.MethodPost, "/api/v2/files",
		`{"name":"report.pdf","content_type":"application/pdf","size":2048}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var grant services.UploadGrant
	if err := json.Unmarshal(w.Body.Bytes(), &grant); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if grant.UploadURL != "https://backend/put" {
		t.Errorf("upload_url = %q", grant.UploadURL)
	}
	if grant.File.Status != models.FileStatusWaiting {
		t.Errorf("status = %q, want WAITING", grant.File.Status)
	}
}

func TestCreate_InvalidBody(t *testing.T) {
	r, _ := newTestRouter(t)
	if w := doJSON(r, http.MethodPost, "/api/v2/files", `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreate_ValidationError(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/api/v2/files", `{"name":"","size":10}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestGet_OwnerFetch(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusDone, 1))

	w := doJSON(r, http.MethodGet, "/api/v2/files/file-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestGet_MetadataStaysJSON(t *testing.T) {
	r, mock := newTestRouter(t)
	rows := sqlmock.NewRows(fileCols).
		AddRow("file-1", "user-1", nil, "clip.mp4", "u/user-1/key", "video/mp4",
			int64(2048), models.FileStatusDone, models.FileAccessPrivate, nil,
			[]byte(`{"sha256":"abc123","codec":"h264"}`), nil,
			nil, 1, time.Now(), time.Now(), nil)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").WillReturnRows(rows)

	w := doJSON(r, http.MethodGet, "/api/v2/files/file-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	// metadata must come back as the object that was stored, not a base64 blob
	var body struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Metadata["sha256"] != "abc123" || body.Metadata["codec"] != "h264" {
		t.Errorf("metadata did not round-trip as JSON: %s", w.Body.String())
	}
}

func TestGet_StrangerPrivateIs404(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "someone-else", models.FileStatusDone, 1))

	if w := doJSON(r, http.MethodGet, "/api/v2/files/file-1", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestList_ReturnsCursor(t *testing.T) {
	r, mock := newTestRouter(t)
	rows := sqlmock.NewRows(fileCols)
	for _, id := range []string{"f-1", "f-2"} {
		rows.AddRow(id, "user-1", nil, "a.txt", "u/user-1/"+id, "text/plain",
			int64(1), models.FileStatusDone, models.FileAccessPrivate, nil, nil, nil,
			nil, 1, time.Now(), time.Now(), nil)
	}
	mock.ExpectQuery("SELECT .* FROM files WHERE owner_id").WillReturnRows(rows)

	w := doJSON(r, http.MethodGet, "/api/v2/files?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Files  []json.RawMessage `json:"files"`
		Cursor string            `json:"cursor"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Files) != 2 || resp.Cursor != "f-2" {
		t.Errorf("files = %d, cursor = %q", len(resp.Files), resp.Cursor)
	}
}

func TestDownload_ReturnsPresignedURL(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusDone, 1))

	w := doJSON(r, http.MethodGet, "/api/v2/files/file-1/download", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "https://backend/get") {
		t.Errorf("body missing presigned URL: %s", w.Body.String())
	}
}

func TestSearch_RequiresQuery(t *testing.T) {
	r, _ := newTestRouter(t)
	if w := doJSON(r, http.MethodGet, "/api/v2/files/search", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for empty query", w.Code)
	}
}

func TestUsage(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum", "deleted"}).AddRow(12, int64(4096), 3))

	w := doJSON(r, http.MethodGet, "/api/v2/usage", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var stats repositories.UsageStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.FileCount != 12 || stats.TotalBytes != 4096 || stats.DeletedCount != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestConfirm_MovesWaitingToDone(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusWaiting, 1))
	mock.ExpectExec("UPDATE files SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusDone, 2))

	w := doJSON(r, http.MethodPost, "/api/v2/files/file-1/confirm", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), models.FileStatusDone) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestConfirm_NotWaitingIs409(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusDone, 1))

	if w := doJSON(r, http.MethodPost, "/api/v2/files/file-1/confirm", ""); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestDelete_SoftDeletes(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusDone, 1))
	mock.ExpectExec("UPDATE files").WillReturnResult(sqlmock.NewResult(0, 1))

	if w := doJSON(r, http.MethodDelete, "/api/v2/files/file-1", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestRestore_AfterRetentionIs410(t *testing.T) {
	r, mock := newTestRouter(t)
	old := time.Now().Add(-31 * 24 * time.Hour)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(sqlmock.NewRows(fileCols).
			AddRow("file-1", "user-1", nil, "report.pdf", "u/user-1/key", "application/pdf",
				int64(2048), models.FileStatusDeleted, models.FileAccessPrivate, nil, nil, nil,
				nil, 2, time.Now(), time.Now(), old))

	if w := doJSON(r, http.MethodPost, "/api/v2/files/file-1/restore", ""); w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", w.Code)
	}
}

func TestOptimize_MarksWorking(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusDone, 1))
	mock.ExpectExec("UPDATE files SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusWorking, 2))

	w := doJSON(r, http.MethodPost, "/api/v2/files/file-1/optimize", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Multipart
// ---------------------------------------------------------------------------

func TestCreateMultipart_ReturnsPartURLs(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectExec("INSERT INTO files").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE files SET upload_id").WillReturnResult(sqlmock.NewResult(0, 1))

	// 20 MiB needs three 8 MiB parts.
	w := doJSON(r, http.MethodPost, "/api/v2/files/multipart",
		`{"name":"video.mp4","content_type":"video/mp4","size":20971520}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var grant services.MultipartGrant
	if err := json.Unmarshal(w.Body.Bytes(), &grant); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if grant.UploadID != "mp-1" || len(grant.PartURLs) != 3 {
		t.Errorf("upload_id = %q, parts = %d, want mp-1/3", grant.UploadID, len(grant.PartURLs))
	}
}

func TestCompleteMultipart_PartCountMismatch(t *testing.T) {
	r, mock := newTestRouter(t)
	uploadID := "mp-1"
	parts := 3
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(sqlmock.NewRows(fileCols).
			AddRow("file-1", "user-1", nil, "video.mp4", "u/user-1/key", "video/mp4",
				int64(20971520), models.FileStatusWaiting, models.FileAccessPrivate, nil, nil, &uploadID,
				&parts, 1, time.Now(), time.Now(), nil))

	w := doJSON(r, http.MethodPost, "/api/v2/files/multipart/complete",
		`{"file_id":"file-1","upload_id":"mp-1","parts":[{"partNumber":1,"eTag":"a"}]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestCompleteMultipart_MissingFields(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/api/v2/files/multipart/complete", `{"file_id":"file-1"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Bulk
// ---------------------------------------------------------------------------

func TestBulkDelete_PerItemResults(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusDone, 1))
	mock.ExpectExec("UPDATE files").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(sqlmock.NewRows(fileCols)) // second id unknown

	w := doJSON(r, http.MethodPost, "/api/v2/files/bulk-delete",
		`{"file_ids":["file-1","file-missing"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Results []services.BulkResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 2 || !resp.Results[0].OK || resp.Results[1].OK {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestBulkUpload_TooManyItems(t *testing.T) {
	r, _ := newTestRouter(t)
	items := make([]string, maxBulkItems+1)
	for i := range items {
		items[i] = `{"name":"f.txt","size":1}`
	}
	body := `{"items":[` + strings.Join(items, ",") + `]}`
	if w := doJSON(r, http.MethodPost, "/api/v2/files/bulk-upload", body); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Share tokens
// ---------------------------------------------------------------------------

func TestCreateShareToken_RawShownOnce(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusDone, 1))
	mock.ExpectExec("INSERT INTO share_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	w := doJSON(r, http.MethodPost, "/api/v2/files/file-1/share-token", `{"can_read":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var grant services.ShareGrant
	if err := json.Unmarshal(w.Body.Bytes(), &grant); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.HasPrefix(grant.RawToken, auth.ShareTokenPrefix) {
		t.Errorf("raw token = %q, want %s prefix", grant.RawToken, auth.ShareTokenPrefix)
	}
}

func TestListShareTokens_RequiresFileID(t *testing.T) {
	r, _ := newTestRouter(t)
	if w := doJSON(r, http.MethodGet, "/api/v2/share-tokens", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPermissions_ListsTokens(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "user-1", models.FileStatusDone, 1))
	mock.ExpectQuery("SELECT \\* FROM share_tokens WHERE file_id").
		WillReturnRows(sqlmock.NewRows(shareCols).
			AddRow("tok-1", "file-1", "hash", nil, true, false, false, models.ShareSourceSDK, nil, time.Now()))

	w := doJSON(r, http.MethodGet, "/api/v2/files/file-1/permissions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "hash") {
		t.Errorf("token hash leaked in response: %s", w.Body.String())
	}
}

func TestSharedDownload_Ladder(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name string
		rows *sqlmock.Rows
		want int
	}{
		{"unknown token", sqlmock.NewRows(shareCols), http.StatusNotFound},
		{"expired token", sqlmock.NewRows(shareCols).
			AddRow("tok-1", "file-1", "h", nil, true, false, false, models.ShareSourceSDK, &past, time.Now()),
			http.StatusGone},
		{"no read capability", sqlmock.NewRows(shareCols).
			AddRow("tok-1", "file-1", "h", nil, false, true, false, models.ShareSourceSDK, nil, time.Now()),
			http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newTestRouter(t)
			mock.ExpectQuery("SELECT \\* FROM share_tokens WHERE token_hash").
				WillReturnRows(tt.rows)

			if w := doJSON(r, http.MethodGet, "/api/v2/shared/eb_st_whatever", ""); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestSharedDownload_Success(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT \\* FROM share_tokens WHERE token_hash").
		WillReturnRows(sqlmock.NewRows(shareCols).
			AddRow("tok-1", "file-1", "h", nil, true, false, false, models.ShareSourceSDK, nil, time.Now()))
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "owner-9", models.FileStatusDone, 1))

	w := doJSON(r, http.MethodGet, "/api/v2/shared/eb_st_whatever", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "https://backend/get") {
		t.Errorf("body missing download URL: %s", w.Body.String())
	}
}

func TestSharedUpload_WriteOnlyToken(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT \\* FROM share_tokens WHERE token_hash").
		WillReturnRows(sqlmock.NewRows(shareCols).
			AddRow("tok-1", "file-1", "h", nil, false, true, false, models.ShareSourceSDK, nil, time.Now()))
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "owner-9", models.FileStatusDone, 1))

	w := doJSON(r, http.MethodPost, "/api/v2/shared/eb_st_whatever/upload", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "https://backend/put") {
		t.Errorf("body missing upload URL: %s", w.Body.String())
	}
}

func TestSharedUpload_ReadOnlyTokenIs403(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT \\* FROM share_tokens WHERE token_hash").
		WillReturnRows(sqlmock.NewRows(shareCols).
			AddRow("tok-1", "file-1", "h", nil, true, false, false, models.ShareSourceSDK, nil, time.Now()))

	if w := doJSON(r, http.MethodPost, "/api/v2/shared/eb_st_whatever/upload", ""); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestSharedDelete_DeleteCapability(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT \\* FROM share_tokens WHERE token_hash").
		WillReturnRows(sqlmock.NewRows(shareCols).
			AddRow("tok-1", "file-1", "h", nil, false, false, true, models.ShareSourceSDK, nil, time.Now()))
	mock.ExpectQuery("SELECT .* FROM files WHERE id").
		WillReturnRows(fileRow("file-1", "owner-9", models.FileStatusDone, 1))
	mock.ExpectExec("(?s)UPDATE files.+SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if w := doJSON(r, http.MethodDelete, "/api/v2/shared/eb_st_whatever", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSharedDelete_WithoutCapabilityIs403(t *testing.T) {
	r, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT \\* FROM share_tokens WHERE token_hash").
		WillReturnRows(sqlmock.NewRows(shareCols).
			AddRow("tok-1", "file-1", "h", nil, true, true, false, models.ShareSourceSDK, nil, time.Now()))

	if w := doJSON(r, http.MethodDelete, "/api/v2/shared/eb_st_whatever", ""); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}
