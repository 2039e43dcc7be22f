package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/config"
	"github.com/easybits/easybits/internal/db/repositories"
)

func newAuditRepo(t *testing.T) (*repositories.AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewAuditRepository(db), mock
}

func newAuditRouter(repo *repositories.AuditRepository, cfg *config.AuditConfig, userID string) *gin.Engine {
	r := gin.New()
	if userID != "" {
		r.Use(func(c *gin.Context) {
			c.Set(CtxUserID, userID)
			c.Next()
		})
	}
	r.Use(Audit(repo, cfg))
	r.POST("/api/v2/files/:fileId", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v2/files/:fileId", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

// waitForExpectations polls for the async audit insert to land.
func waitForExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mock.ExpectationsWereMet() == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("audit insert not observed: %v", mock.ExpectationsWereMet())
}

func TestAudit_WriteOperationLogged(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "user-1", "POST", "/api/v2/files/:fileId", "file-1",
			http.StatusOK, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := newAuditRouter(repo, nil, "user-1")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v2/files/file-1", nil)
	r.ServeHTTP(w, req)

	waitForExpectations(t, mock)
}

func TestAudit_ReadSkippedByDefault(t *testing.T) {
	repo, mock := newAuditRepo(t)
	// No expectations: a GET must not produce an insert.

	r := newAuditRouter(repo, nil, "user-1")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v2/files/file-1", nil)
	r.ServeHTTP(w, req)

	time.Sleep(50 * time.Millisecond)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected DB activity for GET: %v", err)
	}
}

func TestAudit_ReadLoggedWhenConfigured(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := &config.AuditConfig{Enabled: true, LogReadOperations: true}
	r := newAuditRouter(repo, cfg, "user-1")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v2/files/file-1", nil)
	r.ServeHTTP(w, req)

	waitForExpectations(t, mock)
}

func TestAudit_DisabledSkipsEverything(t *testing.T) {
	repo, mock := newAuditRepo(t)

	cfg := &config.AuditConfig{Enabled: false}
	r := newAuditRouter(repo, cfg, "user-1")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v2/files/file-1", nil)
	r.ServeHTTP(w, req)

	time.Sleep(50 * time.Millisecond)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected DB activity when audit disabled: %v", err)
	}
}

func TestAudit_AnonymousRequestHasNilUser(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), nil, "POST", "/api/v2/files/:fileId", "file-1",
			http.StatusOK, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := newAuditRouter(repo, nil, "")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v2/files/file-1", nil)
	r.ServeHTTP(w, req)

	waitForExpectations(t, mock)
}

func TestResourceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var got string
	r.DELETE("/providers/:providerId", func(c *gin.Context) {
		got = resourceID(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/providers/prov-9", nil)
	r.ServeHTTP(w, req)

	if got != "prov-9" {
		t.Errorf("resourceID = %q, want prov-9", got)
	}
}
