// Package api wires together all HTTP routes for the EasyBits storage service.
//
// Route grouping:
//   - /api/v2 is the API-key data plane: files, providers, websites, usage,
//     the SSE event stream, and share-token management. Every route declares
//     the scope it needs.
//   - /api/v2/keys is session-authenticated (dashboard JWT); API keys cannot
//     mint or revoke other API keys.
//   - /api/v2/shared/:token routes are public: the token itself is the
//     credential, and each verb requires the matching capability flag.
//   - /api/mcp, /api/health, /api/cron/purge-files, /api/webhooks/conversion,
//     and /api/login sit outside the v2 group; each carries its own auth.
//   - /local object routes exist only when the platform backend is local;
//     they serve the HMAC-signed URLs the local backend mints in place of
//     cloud presigned URLs.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	eventsapi "github.com/easybits/easybits/internal/api/events"
	"github.com/easybits/easybits/internal/api/files"
	"github.com/easybits/easybits/internal/api/keys"
	"github.com/easybits/easybits/internal/api/mcp"
	"github.com/easybits/easybits/internal/api/providers"
	"github.com/easybits/easybits/internal/api/system"
	"github.com/easybits/easybits/internal/api/webhooks"
	"github.com/easybits/easybits/internal/api/websites"
	"github.com/easybits/easybits/internal/audit"
	"github.com/easybits/easybits/internal/auth"
	"github.com/easybits/easybits/internal/config"
	"github.com/easybits/easybits/internal/crypto"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/events"
	"github.com/easybits/easybits/internal/jobs"
	"github.com/easybits/easybits/internal/middleware"
	"github.com/easybits/easybits/internal/services"
	"github.com/easybits/easybits/internal/storage"
	"github.com/easybits/easybits/internal/storage/local"

	// Import the s3 backend to register it (local registers itself via the
	// named import above)
	_ "github.com/easybits/easybits/internal/storage/s3"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	purger       *jobs.FilePurger
	sweeper      *jobs.KeySweeper
	rateLimiters []*middleware.RateLimiter
	auditShipper *audit.MultiShipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.purger != nil {
		bg.purger.Stop()
	}
	if bg.sweeper != nil {
		bg.sweeper.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Error("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize the platform storage backend
	platformCfg := platformBackendConfig(cfg)
	platformClient, err := storage.NewClient(platformCfg)
	if err != nil {
		log.Fatalf("Failed to initialize platform storage backend: %v", err)
	}
	log.Printf("Initialized platform storage backend: %s", cfg.Storage.PlatformBackend)

	// Push the allowed origins to the backend so browsers can PUT directly
	// against presigned URLs.
	if err := platformClient.EnsureCORS(context.Background(), cfg.Security.CORS.AllowedOrigins); err != nil {
		slog.Warn("could not configure backend CORS", "error", err)
	}

	if cfg.Auth.Encryption.Passphrase == "" {
		log.Fatal("auth.encryption.passphrase (or ENCRYPTION_KEY) must be set for provider credential sealing")
	}
	cipher, err := crypto.DeriveSecretCipher(
		cfg.Auth.Encryption.Passphrase,
		[]byte(cfg.Auth.Encryption.Salt),
		cfg.Auth.Encryption.Iterations,
	)
	if err != nil {
		log.Fatalf("Failed to initialize secret cipher: %v", err)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	fileRepo := repositories.NewFileRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	eventRepo := repositories.NewEventRepository(db)

	// Wrap *sql.DB with sqlx for the newer repositories
	sqlxDB := sqlx.NewDb(db, "postgres")
	providerRepo := repositories.NewProviderRepository(sqlxDB)
	shareRepo := repositories.NewShareTokenRepository(sqlxDB)
	websiteRepo := repositories.NewWebsiteRepository(sqlxDB)

	// Initialize services
	logger := slog.Default()
	resolver := services.NewResolver(providerRepo, cipher, platformCfg)
	bus := events.NewBus()
	fileSvc := services.NewFileService(fileRepo, shareRepo, resolver, bus, logger)
	providerSvc := services.NewProviderService(providerRepo, fileRepo, cipher, cfg.Storage.KeyNamespace, logger)
	websiteSvc := services.NewWebsiteService(websiteRepo, fileRepo, fileSvc, logger)

	// Background jobs
	purger := jobs.NewFilePurger(fileRepo, resolver, cfg.Jobs.PurgeIntervalHours, logger)
	if cfg.Jobs.PurgeEnabled {
		go purger.Start(context.Background())
	}
	sweeper := jobs.NewKeySweeper(apiKeyRepo, cfg.Auth.APIKeys.ExpirySweepIntervalHours, logger)
	go sweeper.Start(context.Background())

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.CORS(cfg.Security.CORS.AllowedOrigins, cfg.Security.CORS.AllowedMethods))
	router.Use(middleware.SecurityHeaders(middleware.APISecurityHeadersConfig()))

	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	// Initialize handlers
	filesH := files.NewHandlers(fileSvc)
	keysH := keys.NewHandlers(apiKeyRepo)
	providersH := providers.NewHandlers(providerSvc)
	websitesH := websites.NewHandlers(websiteSvc)
	eventsH := eventsapi.NewHandlers(bus)
	mcpH := mcp.NewHandlers(fileSvc)
	systemH := system.NewHandlers(db, platformClient, userRepo, purger)
	conversionH := webhooks.NewConversionHandler(fileSvc, eventRepo, cfg.Auth.WebhookSecret, logger)

	// Initialize rate limiters
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	authRateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	shareRateLimiter := middleware.NewRateLimiter(middleware.ShareRateLimitConfig())

	// Operational endpoints, each with its own authentication
	router.GET("/api/health", systemH.Health)
	router.GET("/api/cron/purge-files", middleware.CronAuth(cfg.Auth.CronSecret), systemH.CronPurge)
	router.POST("/api/webhooks/conversion", conversionH.Handle)
	router.POST("/api/login", middleware.RateLimitMiddleware(authRateLimiter), systemH.Login)

	// MCP endpoint: Bearer API key, one JSON-RPC request per POST
	mcpGroup := router.Group("/api/mcp", middleware.APIKeyAuth(apiKeyRepo))
	{
		mcpGroup.GET("", mcpH.Get)
		mcpGroup.POST("", mcpH.Post)
	}

	v2 := router.Group("/api/v2")

	// Public share-token exchanges: the token is the credential, and each
	// verb checks its own capability flag
	v2.GET("/shared/:token",
		middleware.RateLimitMiddleware(shareRateLimiter),
		filesH.SharedDownload)
	v2.POST("/shared/:token/upload",
		middleware.RateLimitMiddleware(shareRateLimiter),
		filesH.SharedUpload)
	v2.DELETE("/shared/:token",
		middleware.RateLimitMiddleware(shareRateLimiter),
		filesH.SharedDelete)

	// Optional external audit destinations (SIEM webhook, append-only file)
	auditShipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		log.Fatalf("Failed to initialize audit shippers: %v", err)
	}

	// API-key data plane
	authed := v2.Group("")
	authed.Use(middleware.APIKeyAuth(apiKeyRepo))
	authed.Use(middleware.RateLimitMiddleware(generalRateLimiter))
	authed.Use(middleware.Audit(auditRepo, &cfg.Audit, auditShipper))
	{
		// Files
		authed.GET("/files", middleware.RequireScope(auth.ScopeRead), filesH.List)
		authed.POST("/files", middleware.RequireScope(auth.ScopeWrite), filesH.Create)
		authed.GET("/files/search", middleware.RequireScope(auth.ScopeRead), filesH.Search)
		authed.POST("/files/bulk-delete", middleware.RequireScope(auth.ScopeDelete), filesH.BulkDelete)
		authed.POST("/files/bulk-upload", middleware.RequireScope(auth.ScopeWrite), filesH.BulkUpload)
		authed.POST("/files/multipart", middleware.RequireScope(auth.ScopeWrite), filesH.CreateMultipart)
		authed.POST("/files/multipart/complete", middleware.RequireScope(auth.ScopeWrite), filesH.CompleteMultipart)
		authed.POST("/files/multipart/abort", middleware.RequireScope(auth.ScopeWrite), filesH.AbortMultipart)
		authed.GET("/files/:fileId", middleware.RequireScope(auth.ScopeRead), filesH.Get)
		authed.PATCH("/files/:fileId", middleware.RequireScope(auth.ScopeWrite), filesH.Update)
		authed.DELETE("/files/:fileId", middleware.RequireScope(auth.ScopeDelete), filesH.Delete)
		authed.GET("/files/:fileId/download", middleware.RequireScope(auth.ScopeRead), filesH.Download)
		authed.POST("/files/:fileId/restore", middleware.RequireScope(auth.ScopeWrite), filesH.Restore)
		authed.POST("/files/:fileId/confirm", middleware.RequireScope(auth.ScopeWrite), filesH.Confirm)
		authed.POST("/files/:fileId/duplicate", middleware.RequireScope(auth.ScopeWrite), filesH.Duplicate)
		authed.POST("/files/:fileId/optimize", middleware.RequireScope(auth.ScopeWrite), filesH.Optimize)
		authed.POST("/files/:fileId/transform", middleware.RequireScope(auth.ScopeWrite), filesH.Transform)

		// Share tokens
		authed.POST("/files/:fileId/share-token", middleware.RequireScope(auth.ScopeWrite), filesH.CreateShareToken)
		authed.POST("/files/:fileId/share", middleware.RequireScope(auth.ScopeWrite), filesH.Share)
		authed.GET("/files/:fileId/permissions", middleware.RequireScope(auth.ScopeRead), filesH.Permissions)
		authed.GET("/share-tokens", middleware.RequireScope(auth.ScopeRead), filesH.ListShareTokens)
		authed.DELETE("/share-tokens/:tokenId", middleware.RequireScope(auth.ScopeDelete), filesH.RevokeShareToken)

		// Usage and live updates
		authed.GET("/usage", middleware.RequireScope(auth.ScopeRead), filesH.Usage)
		authed.GET("/events", middleware.RequireScope(auth.ScopeRead), eventsH.Stream)

		// Storage providers
		authed.GET("/providers", middleware.RequireScope(auth.ScopeRead), providersH.List)
		authed.POST("/providers", middleware.RequireScope(auth.ScopeWrite), providersH.Create)
		authed.GET("/providers/:providerId", middleware.RequireScope(auth.ScopeRead), providersH.Get)
		authed.POST("/providers/:providerId/default", middleware.RequireScope(auth.ScopeWrite), providersH.SetDefault)
		authed.DELETE("/providers/:providerId", middleware.RequireScope(auth.ScopeDelete), providersH.Delete)

		// Websites
		authed.GET("/websites", middleware.RequireScope(auth.ScopeRead), websitesH.List)
		authed.POST("/websites", middleware.RequireScope(auth.ScopeWrite), websitesH.Create)
		authed.GET("/websites/:websiteId", middleware.RequireScope(auth.ScopeRead), websitesH.Get)
		authed.PATCH("/websites/:websiteId", middleware.RequireScope(auth.ScopeWrite), websitesH.Update)
		authed.GET("/websites/:websiteId/files", middleware.RequireScope(auth.ScopeRead), websitesH.ListFiles)
		authed.DELETE("/websites/:websiteId/files", middleware.RequireScope(auth.ScopeDelete), websitesH.DeleteFiles)
		authed.DELETE("/websites/:websiteId", middleware.RequireScope(auth.ScopeDelete), websitesH.Delete)
	}

	// Key management is session-only: an API key must never mint API keys
	keysGroup := v2.Group("/keys")
	keysGroup.Use(middleware.SessionAuth(userRepo))
	keysGroup.Use(middleware.RateLimitMiddleware(authRateLimiter))
	{
		keysGroup.GET("", keysH.List)
		keysGroup.POST("", keysH.Create)
		keysGroup.DELETE("/:keyId", keysH.Revoke)
	}

	// Object routes for the local backend's signed URLs
	if localClient, ok := platformClient.(*local.Client); ok {
		registerLocalObjectRoutes(router, localClient)
	}

	bg := &BackgroundServices{
		purger:       purger,
		sweeper:      sweeper,
		rateLimiters: []*middleware.RateLimiter{generalRateLimiter, authRateLimiter, shareRateLimiter},
		auditShipper: auditShipper,
	}

	return router, bg
}

// platformBackendConfig maps the storage section of the config onto the
// backend factory's input.
func platformBackendConfig(cfg *config.Config) storage.BackendConfig {
	bc := storage.BackendConfig{
		Type:         cfg.Storage.PlatformBackend,
		KeyNamespace: cfg.Storage.KeyNamespace,
	}
	switch cfg.Storage.PlatformBackend {
	case "local":
		bc.BasePath = cfg.Storage.Local.BasePath
		bc.SigningSecret = cfg.Storage.Local.SigningSecret
		bc.BaseURL = cfg.Server.GetPublicURL()
	default:
		bc.Region = cfg.Storage.S3.Region
		bc.Endpoint = cfg.Storage.S3.Endpoint
		bc.Bucket = cfg.Storage.S3.Bucket
		bc.AccessKeyID = cfg.Storage.S3.AccessKeyID
		bc.SecretAccessKey = cfg.Storage.S3.SecretAccessKey
	}
	return bc
}

// registerLocalObjectRoutes serves the object PUT/GET routes behind the local
// backend's HMAC-signed URLs. Objects get the stricter object security
// headers since response bodies are user-supplied content.
func registerLocalObjectRoutes(router *gin.Engine, client *local.Client) {
	group := router.Group("/local", middleware.SecurityHeaders(middleware.ObjectSecurityHeadersConfig()))

	verify := func(c *gin.Context, method string) (string, bool) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		expiresAt, err := strconv.ParseInt(c.Query("expires"), 10, 64)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid signed url"})
			return "", false
		}
		if time.Now().Unix() > expiresAt {
			c.JSON(http.StatusForbidden, gin.H{"error": "url expired"})
			return "", false
		}
		if !client.VerifySignature(method, key, expiresAt, c.Query("signature")) {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return "", false
		}
		return key, true
	}

	group.PUT("/*key", func(c *gin.Context) {
		key, ok := verify(c, http.MethodPut)
		if !ok {
			return
		}
		if err := client.PutObject(c.Request.Context(), key, c.Request.Body); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
			return
		}
		c.Status(http.StatusOK)
	})

	group.GET("/*key", func(c *gin.Context) {
		key, ok := verify(c, http.MethodGet)
		if !ok {
			return
		}
		rc, err := client.GetObject(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read failed"})
			return
		}
		defer rc.Close()
		c.Header("Content-Type", "application/octet-stream")
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, rc); err != nil {
			slog.Warn("object stream interrupted", "key", key, "error", err)
		}
	})
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// slog emits text or JSON depending on the handler telemetry.SetupLogger
		// installed; the attrs are the same either way.
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
