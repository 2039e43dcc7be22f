package webhooks

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/events"
	"github.com/easybits/easybits/internal/services"
	"github.com/easybits/easybits/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubClient struct{}

func (stubClient) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	return "https://backend/put", nil
}
func (stubClient) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://backend/get", nil
}
func (stubClient) DeleteObject(ctx context.Context, key string) error          { return nil }
func (stubClient) CopyObject(ctx context.Context, srcKey, dstKey string) error { return nil }
func (stubClient) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	return "mp-1", nil
}
func (stubClient) PresignPutPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	return "https://backend/put-part", nil
}
func (stubClient) CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) error {
	return nil
}
func (stubClient) AbortMultipart(ctx context.Context, key, uploadID string) error { return nil }
func (stubClient) EnsureCORS(ctx context.Context, origins []string) error         { return nil }
func (stubClient) Ping(ctx context.Context) error                                 { return nil }

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, userID, providerID string) (storage.Client, *models.StorageProvider, error) {
	return stubClient{}, nil, nil
}
func (stubResolver) ResolveForFile(ctx context.Context, file *models.File) (storage.Client, error) {
	return stubClient{}, nil
}

const testSecret = "hook-secret"

func newWebhookRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	files := services.NewFileService(
		repositories.NewFileRepository(db),
		repositories.NewShareTokenRepository(sqlx.NewDb(db, "postgres")),
		stubResolver{},
		events.NewBus(),
		logger,
	)
	h := NewConversionHandler(files, repositories.NewEventRepository(db), testSecret, logger)

	r := gin.New()
	r.POST("/api/webhooks/conversion", h.Handle)
	return r, mock
}

func deliver(r *gin.Engine, secret, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/conversion", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	r.ServeHTTP(w, req)
	return w
}

var fileCols = []string{
	"id", "owner_id", "asset_id", "name", "storage_key", "content_type", "size",
	"status", "access", "storage_provider_id", "metadata", "upload_id",
	"part_count", "version", "created_at", "updated_at", "deleted_at",
}

func fileRow(id, status string, version int) *sqlmock.Rows {
	return sqlmock.NewRows(fileCols).
		AddRow(id, "user-1", nil, "video.mp4", "u/user-1/key", "video/mp4",
			int64(4096), status, models.FileAccessPrivate, nil, nil, nil,
			nil, version, time.Now(), time.Now(), nil)
}

func TestHandle_RejectsBadSecret(t *testing.T) {
	r, _ := newWebhookRouter(t)
	w := deliver(r, "wrong", `{"eventId":"evt-1","fileId":"file-1","status":"DONE"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandle_RejectsMissingFields(t *testing.T) {
	r, _ := newWebhookRouter(t)
	if w := deliver(r, testSecret, `{"eventId":"evt-1"}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandle_AppliesStatus(t *testing.T) {
	r, mock := newWebhookRouter(t)
	mock.ExpectExec("INSERT INTO processed_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("(?s)SELECT .+ FROM files.+WHERE id").WillReturnRows(fileRow("file-1", models.FileStatusWorking, 3))
	mock.ExpectQuery("(?s)SELECT .+ FROM files.+WHERE id").WillReturnRows(fileRow("file-1", models.FileStatusWorking, 3))
	mock.ExpectExec("UPDATE files").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("(?s)SELECT .+ FROM files.+WHERE id").WillReturnRows(fileRow("file-1", models.FileStatusDone, 4))

	w := deliver(r, testSecret, `{"eventId":"evt-1","fileId":"file-1","status":"DONE"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"DONE"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandle_DuplicateDeliveryIsNoop(t *testing.T) {
	r, mock := newWebhookRouter(t)
	// ON CONFLICT DO NOTHING: zero rows affected means already processed
	mock.ExpectExec("INSERT INTO processed_events").WillReturnResult(sqlmock.NewResult(0, 0))

	w := deliver(r, testSecret, `{"eventId":"evt-1","fileId":"file-1","status":"DONE"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "already processed") {
		t.Errorf("body = %s", w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHandle_PlaylistMergedIntoMetadata(t *testing.T) {
	r, mock := newWebhookRouter(t)
	mock.ExpectExec("INSERT INTO processed_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("(?s)SELECT .+ FROM files.+WHERE id").WillReturnRows(fileRow("file-1", models.FileStatusWorking, 3))
	mock.ExpectExec("UPDATE files").
		WithArgs("file-1", sqlmock.AnyArg(), []byte(`{"playlist":{"variants":3}}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("(?s)SELECT .+ FROM files.+WHERE id").WillReturnRows(fileRow("file-1", models.FileStatusWorking, 3))
	mock.ExpectExec("UPDATE files").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("(?s)SELECT .+ FROM files.+WHERE id").WillReturnRows(fileRow("file-1", models.FileStatusDone, 4))

	w := deliver(r, testSecret, `{"eventId":"evt-2","fileId":"file-1","status":"DONE","playlist":{"variants":3}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHandle_InvalidTransitionIs409(t *testing.T) {
	r, mock := newWebhookRouter(t)
	mock.ExpectExec("INSERT INTO processed_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("(?s)SELECT .+ FROM files.+WHERE id").WillReturnRows(fileRow("file-1", models.FileStatusDone, 5))
	mock.ExpectQuery("(?s)SELECT .+ FROM files.+WHERE id").WillReturnRows(fileRow("file-1", models.FileStatusDone, 5))

	w := deliver(r, testSecret, `{"eventId":"evt-3","fileId":"file-1","status":"WORKING"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409: %s", w.Code, w.Body.String())
	}
}
