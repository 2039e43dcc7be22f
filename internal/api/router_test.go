package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/config"
	"github.com/easybits/easybits/internal/storage"
	"github.com/easybits/easybits/internal/storage/local"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Storage: config.StorageConfig{
			PlatformBackend: "local",
			Local: config.LocalStorageConfig{
				BasePath:      t.TempDir(),
				SigningSecret: "router-test-signing-secret",
			},
		},
		Auth: config.AuthConfig{
			APIKeys: config.APIKeyConfig{Enabled: true, ExpirySweepIntervalHours: 1},
			Encryption: config.EncryptionConfig{
				Passphrase: "router-test-passphrase",
				Salt:       "0123456789abcdef",
				Iterations: 1000,
			},
			CronSecret:    "cron-secret",
			WebhookSecret: "hook-secret",
		},
		Security: config.SecurityConfig{
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			},
		},
		Logging: config.LoggingConfig{Level: "error", Format: "json"},
		Jobs:    config.JobsConfig{PurgeEnabled: false, PurgeIntervalHours: 24},
	}
}

func newRouterForTest(t *testing.T) (*gin.Engine, *config.Config) {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := testConfig(t)
	router, bg := NewRouter(cfg, db)
	t.Cleanup(bg.Shutdown)
	return router, cfg
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newRouterForTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestDataPlaneRequiresAPIKey(t *testing.T) {
	router, _ := newRouterForTest(t)

	paths := []string{"/api/v2/files", "/api/v2/providers", "/api/v2/usage", "/api/v2/websites"}
	for _, path := range paths {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without key: status = %d, want 401", path, w.Code)
		}
	}
}

func TestMCPRequiresAPIKey(t *testing.T) {
	router, _ := newRouterForTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/mcp", strings.NewReader(`{}`)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestCronRequiresSecret(t *testing.T) {
	router, _ := newRouterForTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cron/purge-files", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestWebhookRequiresSecret(t *testing.T) {
	router, _ := newRouterForTest(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/conversion",
		strings.NewReader(`{"eventId":"e","fileId":"f","status":"DONE"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLocalObjectRoundtrip(t *testing.T) {
	router, cfg := newRouterForTest(t)

	client, err := local.New(storage.BackendConfig{
		Type:          "local",
		BasePath:      cfg.Storage.Local.BasePath,
		SigningSecret: cfg.Storage.Local.SigningSecret,
		BaseURL:       cfg.Server.BaseURL,
	})
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}

	putURL, err := client.PresignPut(t.Context(), "u/user-1/hello.txt", "text/plain", time.Minute)
	if err != nil {
		t.Fatalf("PresignPut: %v", err)
	}
	u, err := url.Parse(putURL)
	if err != nil {
		t.Fatalf("parse put url: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, u.Path+"?"+u.RawQuery, strings.NewReader("hello world"))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body.String())
	}

	getURL, err := client.PresignGet(t.Context(), "u/user-1/hello.txt", time.Minute)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	u, err = url.Parse(getURL)
	if err != nil {
		t.Fatalf("parse get url: %v", err)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, u.Path+"?"+u.RawQuery, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "hello world" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestLocalObjectRejectsBadSignature(t *testing.T) {
	router, _ := newRouterForTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/local/u%2Fuser-1%2Fhello.txt?expires=9999999999&signature=forged", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}
