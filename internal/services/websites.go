// websites.go implements WebsiteService: static-site bundles whose content is
// ordinary Files sharing a sites/{id}/ name prefix. Deleting a website
// soft-deletes the bundle through the normal file lifecycle.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Website status values.
const (
	WebsiteStatusActive   = "active"
	WebsiteStatusDisabled = "disabled"
)

// WebsiteService manages website records and their file bundles.
type WebsiteService struct {
	websites *repositories.WebsiteRepository
	files    *repositories.FileRepository
	fileSvc  *FileService
	logger   *slog.Logger
}

// NewWebsiteService creates a WebsiteService.
func NewWebsiteService(websites *repositories.WebsiteRepository, files *repositories.FileRepository, fileSvc *FileService, logger *slog.Logger) *WebsiteService {
	return &WebsiteService{websites: websites, files: files, fileSvc: fileSvc, logger: logger}
}

// CreateWebsiteInput is the request to register a website.
type CreateWebsiteInput struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Create registers a website. The slug must be unique across the deployment.
func (s *WebsiteService) Create(ctx context.Context, userID string, in CreateWebsiteInput) (*models.Website, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !slugPattern.MatchString(in.Slug) {
		return nil, fmt.Errorf("%w: slug must be lowercase alphanumerics and hyphens", ErrValidation)
	}

	existing, err := s.websites.GetBySlug(ctx, in.Slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: slug %q is taken", ErrConflict, in.Slug)
	}

	// The id is minted here rather than in the repository because the file
	// prefix derives from it.
	id := uuid.New().String()
	site := &models.Website{
		ID:      id,
		OwnerID: userID,
		Name:    in.Name,
		Slug:    in.Slug,
		Prefix:  fmt.Sprintf("sites/%s/", id),
		Status:  WebsiteStatusActive,
	}
	if err := s.websites.Create(ctx, site); err != nil {
		return nil, fmt.Errorf("storing website: %w", err)
	}

	s.logger.Info("website created", "website_id", site.ID, "slug", in.Slug, "user_id", userID)
	return site, nil
}

// Get returns an owned website.
func (s *WebsiteService) Get(ctx context.Context, userID, websiteID string) (*models.Website, error) {
	site, err := s.websites.GetByID(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	if site == nil || site.OwnerID != userID {
		return nil, ErrNotFound
	}
	return site, nil
}

// List returns the user's websites.
func (s *WebsiteService) List(ctx context.Context, userID string) ([]*models.Website, error) {
	return s.websites.ListByOwner(ctx, userID)
}

// UpdateWebsiteInput is a partial website update.
type UpdateWebsiteInput struct {
	Name   *string `json:"name,omitempty"`
	Status *string `json:"status,omitempty"`
}

// Update applies a partial update to an owned website.
func (s *WebsiteService) Update(ctx context.Context, userID, websiteID string, in UpdateWebsiteInput) (*models.Website, error) {
	site, err := s.Get(ctx, userID, websiteID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		site.Name = *in.Name
	}
	if in.Status != nil {
		if *in.Status != WebsiteStatusActive && *in.Status != WebsiteStatusDisabled {
			return nil, fmt.Errorf("%w: status must be active or disabled", ErrValidation)
		}
		site.Status = *in.Status
	}

	if err := s.websites.Update(ctx, site); err != nil {
		return nil, fmt.Errorf("updating website: %w", err)
	}
	return site, nil
}

// ListFiles returns the website's file bundle.
func (s *WebsiteService) ListFiles(ctx context.Context, userID, websiteID string) ([]*models.File, error) {
	site, err := s.Get(ctx, userID, websiteID)
	if err != nil {
		return nil, err
	}
	return s.files.ListByPrefix(ctx, userID, site.Prefix)
}

// DeleteFiles soft-deletes the website's file bundle, leaving the website
// record in place so the site can be redeployed under the same slug. File
// deletions continue past individual failures so one bad row cannot strand
// the rest. Returns the number of files deleted.
func (s *WebsiteService) DeleteFiles(ctx context.Context, userID, websiteID string) (int, error) {
	site, err := s.Get(ctx, userID, websiteID)
	if err != nil {
		return 0, err
	}

	bundle, err := s.files.ListByPrefix(ctx, userID, site.Prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, f := range bundle {
		if err := s.fileSvc.Delete(ctx, userID, f.ID); err != nil {
			s.logger.Warn("website file delete failed", "website_id", websiteID, "file_id", f.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Delete removes a website and soft-deletes its file bundle.
func (s *WebsiteService) Delete(ctx context.Context, userID, websiteID string) error {
	deleted, err := s.DeleteFiles(ctx, userID, websiteID)
	if err != nil {
		return err
	}

	ok, err := s.websites.Delete(ctx, websiteID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	s.logger.Info("website deleted", "website_id", websiteID, "user_id", userID, "files", deleted)
	return nil
}
