// Package system implements the operational endpoints outside /api/v2:
// health, the cron-triggered purge, and dashboard login.
package system

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/auth"
	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/jobs"
	"github.com/easybits/easybits/internal/storage"
)

// Handlers bundles the system endpoints.
type Handlers struct {
	db       *sql.DB
	platform storage.Client
	users    *repositories.UserRepository
	purger   *jobs.FilePurger
	started  time.Time
}

// NewHandlers creates the system handlers. platform may be nil when no
// platform backend is configured; the health probe then reports only the
// database.
func NewHandlers(db *sql.DB, platform storage.Client, users *repositories.UserRepository, purger *jobs.FilePurger) *Handlers {
	return &Handlers{
		db:       db,
		platform: platform,
		users:    users,
		purger:   purger,
		started:  time.Now(),
	}
}

// Health handles GET /api/health. Reports 503 when the database or the
// platform storage backend is unreachable.
func (h *Handlers) Health(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	checks := gin.H{}

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.platform != nil {
		if err := h.platform.Ping(ctx); err != nil {
			checks["storage"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	}

	healthy := status == http.StatusOK
	c.JSON(status, gin.H{
		"healthy": healthy,
		"checks":  checks,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// CronPurge handles GET /api/cron/purge-files. Authentication is enforced by
// the cron middleware; the handler runs one purge pass synchronously.
func (h *Handlers) CronPurge(c *gin.Context) {
	purged, err := h.purger.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purge run failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": purged})
}

type loginRequest struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name"`
}

// Login handles POST /api/login. Unknown emails get an account created on
// first login; the response carries a 24h session JWT for the dashboard
// surface.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetByEmail(ctx, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if user == nil {
		user = &models.User{Email: email, Name: req.Name}
		if err := h.users.Create(ctx, user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
	}

	token, err := auth.GenerateSessionToken(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}
