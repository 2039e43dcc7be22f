package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/auth"
	"github.com/easybits/easybits/internal/db/repositories"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var authAPIKeyCols = []string{
	"id", "user_id", "name", "key_prefix", "key_hash",
	"scopes", "status", "expires_at", "last_used_at", "created_at",
}

var authUserCols = []string{"id", "email", "name", "created_at"}

func newTestAPIKeyRepo(t *testing.T) (*repositories.APIKeyRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewAPIKeyRepository(db), mock
}

func newTestUserRepo(t *testing.T) (*repositories.UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New (user): %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewUserRepository(db), mock
}

func newAPIKeyRouter(repo *repositories.APIKeyRepository) *gin.Engine {
	r := gin.New()
	r.Use(APIKeyAuth(repo))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doAuthRequest(r *gin.Engine, authHeader string) int {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w.Code
}

// activeKeyRow returns a row for an active key whose digest matches rawKey.
func activeKeyRow(rawKey, userID string) *sqlmock.Rows {
	return sqlmock.NewRows(authAPIKeyCols).AddRow(
		"key-1", userID, "Test Key", rawKey[:10], auth.HashAPIKey(rawKey),
		[]byte(`["READ","WRITE"]`), "active", nil, nil, time.Now(),
	)
}

// ---------------------------------------------------------------------------
// APIKeyAuth — early-exit paths (no repository calls needed)
// ---------------------------------------------------------------------------

func TestAPIKeyAuth_MissingHeader(t *testing.T) {
	if code := doAuthRequest(newAPIKeyRouter(nil), ""); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestAPIKeyAuth_NonBearerPrefix(t *testing.T) {
	if code := doAuthRequest(newAPIKeyRouter(nil), "Basic dXNlcjpwYXNz"); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestAPIKeyAuth_EmptyToken(t *testing.T) {
	// "Bearer " with only whitespace → trimmed to empty → 401
	if code := doAuthRequest(newAPIKeyRouter(nil), "Bearer   "); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

// ---------------------------------------------------------------------------
// APIKeyAuth — digest lookup paths
// ---------------------------------------------------------------------------

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	repo, mock := newTestAPIKeyRepo(t)
	rawKey := "eb_sk_live_middleware_test"

	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WithArgs(auth.HashAPIKey(rawKey)).
		WillReturnRows(activeKeyRow(rawKey, "user-1"))

	r := gin.New()
	r.Use(APIKeyAuth(repo))
	r.GET("/", func(c *gin.Context) {
		if got := UserID(c); got != "user-1" {
			t.Errorf("UserID = %q, want user-1", got)
		}
		c.Status(http.StatusOK)
	})

	if code := doAuthRequest(r, "Bearer "+rawKey); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}

func TestAPIKeyAuth_UnknownKey(t *testing.T) {
	repo, mock := newTestAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WillReturnRows(sqlmock.NewRows(authAPIKeyCols))

	if code := doAuthRequest(newAPIKeyRouter(repo), "Bearer eb_sk_live_unknown"); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestAPIKeyAuth_DBError(t *testing.T) {
	repo, mock := newTestAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WillReturnError(errors.New("db error"))

	if code := doAuthRequest(newAPIKeyRouter(repo), "Bearer eb_sk_live_some_key"); code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", code)
	}
}

func TestAPIKeyAuth_ExpiredKey(t *testing.T) {
	repo, mock := newTestAPIKeyRepo(t)
	rawKey := "eb_sk_live_expired_key"
	expiredAt := time.Now().Add(-time.Hour)

	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WillReturnRows(sqlmock.NewRows(authAPIKeyCols).AddRow(
			"key-1", "user-1", "Expired Key", rawKey[:10], auth.HashAPIKey(rawKey),
			[]byte(`["READ"]`), "active", &expiredAt, nil, time.Now(),
		))

	if code := doAuthRequest(newAPIKeyRouter(repo), "Bearer "+rawKey); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestAPIKeyAuth_RevokedKey(t *testing.T) {
	repo, mock := newTestAPIKeyRepo(t)
	rawKey := "eb_sk_live_revoked_key"

	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WillReturnRows(sqlmock.NewRows(authAPIKeyCols).AddRow(
			"key-1", "user-1", "Revoked Key", rawKey[:10], auth.HashAPIKey(rawKey),
			[]byte(`["READ"]`), "revoked", nil, nil, time.Now(),
		))

	if code := doAuthRequest(newAPIKeyRouter(repo), "Bearer "+rawKey); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

// ---------------------------------------------------------------------------
// OptionalAPIKeyAuth — never aborts
// ---------------------------------------------------------------------------

func TestOptionalAPIKeyAuth_MissingHeader(t *testing.T) {
	r := gin.New()
	r.Use(OptionalAPIKeyAuth(nil))
	r.GET("/", func(c *gin.Context) {
		if got := UserID(c); got != "" {
			t.Errorf("UserID = %q, want empty for anonymous request", got)
		}
		c.Status(http.StatusOK)
	})

	if code := doAuthRequest(r, ""); code != http.StatusOK {
		t.Errorf("status = %d, want 200 (optional auth passes through)", code)
	}
}

func TestOptionalAPIKeyAuth_ValidKey_SetsContext(t *testing.T) {
	repo, mock := newTestAPIKeyRepo(t)
	rawKey := "eb_sk_live_optional_key"

	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WillReturnRows(activeKeyRow(rawKey, "user-2"))

	r := gin.New()
	r.Use(OptionalAPIKeyAuth(repo))
	r.GET("/", func(c *gin.Context) {
		if got := UserID(c); got != "user-2" {
			t.Errorf("UserID = %q, want user-2", got)
		}
		c.Status(http.StatusOK)
	})

	if code := doAuthRequest(r, "Bearer "+rawKey); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}

func TestOptionalAPIKeyAuth_UnknownKey_PassesThrough(t *testing.T) {
	repo, mock := newTestAPIKeyRepo(t)
	mock.ExpectQuery("SELECT.*FROM api_keys WHERE key_hash").
		WillReturnRows(sqlmock.NewRows(authAPIKeyCols))

	r := gin.New()
	r.Use(OptionalAPIKeyAuth(repo))
	r.GET("/", func(c *gin.Context) {
		if got := UserID(c); got != "" {
			t.Errorf("UserID = %q, want empty when key unknown", got)
		}
		c.Status(http.StatusOK)
	})

	if code := doAuthRequest(r, "Bearer eb_sk_live_nomatch"); code != http.StatusOK {
		t.Errorf("status = %d, want 200 (no key found, passes through)", code)
	}
}

// ---------------------------------------------------------------------------
// SessionAuth
// ---------------------------------------------------------------------------

func generateTestSession(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateSessionToken(userID, "test@example.com")
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}
	return token
}

func newSessionRouter(repo *repositories.UserRepository) *gin.Engine {
	r := gin.New()
	r.Use(SessionAuth(repo))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestSessionAuth_ValidUser(t *testing.T) {
	repo, mock := newTestUserRepo(t)
	token := generateTestSession(t, "user-1")

	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows(authUserCols).
			AddRow("user-1", "test@example.com", "Test User", time.Now()))

	if code := doAuthRequest(newSessionRouter(repo), "Bearer "+token); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
}

func TestSessionAuth_UserNotFound(t *testing.T) {
	repo, mock := newTestUserRepo(t)
	token := generateTestSession(t, "nobody")

	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows(authUserCols))

	if code := doAuthRequest(newSessionRouter(repo), "Bearer "+token); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestSessionAuth_GarbageToken(t *testing.T) {
	if code := doAuthRequest(newSessionRouter(nil), "Bearer not-a-jwt"); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestSessionAuth_DBError(t *testing.T) {
	repo, mock := newTestUserRepo(t)
	token := generateTestSession(t, "user-1")

	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WillReturnError(errors.New("db error"))

	if code := doAuthRequest(newSessionRouter(repo), "Bearer "+token); code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", code)
	}
}

// ---------------------------------------------------------------------------
// RequireScope
// ---------------------------------------------------------------------------

func scopeRouter(scopes []string, required auth.Scope) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if scopes != nil {
			c.Set(CtxScopes, scopes)
		}
		c.Next()
	})
	r.Use(RequireScope(required))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name     string
		scopes   []string
		required auth.Scope
		want     int
	}{
		{"scope present", []string{"READ", "WRITE"}, auth.ScopeWrite, http.StatusOK},
		{"scope missing", []string{"READ"}, auth.ScopeDelete, http.StatusForbidden},
		{"admin wildcard", []string{"ADMIN"}, auth.ScopeDelete, http.StatusOK},
		{"no scopes in context", nil, auth.ScopeRead, http.StatusForbidden},
		{"empty scopes", []string{}, auth.ScopeRead, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := doAuthRequest(scopeRouter(tt.scopes, tt.required), ""); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}
