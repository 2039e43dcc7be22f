package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/easybits/easybits/internal/db/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newProviderRepo(t *testing.T) (*ProviderRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewProviderRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var providerCols = []string{
	"id", "user_id", "name", "type", "region", "endpoint", "bucket",
	"access_key_id", "secret_access_key", "is_default", "created_at",
}

func sampleProviderRow() *sqlmock.Rows {
	return sqlmock.NewRows(providerCols).
		AddRow("prov-1", "user-1", "My Tigris", models.ProviderTypeTigris, "auto",
			"https://fly.storage.tigris.dev", "my-bucket", "AKIA123", "sealed-secret",
			true, time.Now())
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateProvider_Default_ClearsPrevious(t *testing.T) {
	repo, mock := newProviderRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE storage_providers SET is_default = false").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO storage_providers").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p := &models.StorageProvider{
		UserID:    "user-1",
		Name:      "My Tigris",
		Type:      models.ProviderTypeTigris,
		Bucket:    "my-bucket",
		IsDefault: true,
	}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateProvider_NonDefault_SkipsClear(t *testing.T) {
	repo, mock := newProviderRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO storage_providers").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p := &models.StorageProvider{UserID: "user-1", Name: "Backup", Type: models.ProviderTypeS3}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestGetProviderByID_Found(t *testing.T) {
	repo, mock := newProviderRepo(t)
	mock.ExpectQuery("SELECT \\* FROM storage_providers WHERE id").
		WithArgs("prov-1").
		WillReturnRows(sampleProviderRow())

	p, err := repo.GetByID(context.Background(), "prov-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected provider, got nil")
	}
	if p.Type != models.ProviderTypeTigris {
		t.Errorf("Type = %s, want tigris", p.Type)
	}
}

func TestGetProviderByID_NotFound(t *testing.T) {
	repo, mock := newProviderRepo(t)
	mock.ExpectQuery("SELECT \\* FROM storage_providers WHERE id").
		WillReturnRows(sqlmock.NewRows(providerCols))

	p, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Error("expected nil, got non-nil")
	}
}

// ---------------------------------------------------------------------------
// SetDefault
// ---------------------------------------------------------------------------

func TestSetDefault_Applied(t *testing.T) {
	repo, mock := newProviderRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE storage_providers SET is_default = false").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE storage_providers SET is_default = true").
		WithArgs("prov-2", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := repo.SetDefault(context.Background(), "prov-2", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected default to apply")
	}
}

func TestSetDefault_UnknownProvider(t *testing.T) {
	repo, mock := newProviderRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE storage_providers SET is_default = false").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE storage_providers SET is_default = true").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := repo.SetDefault(context.Background(), "missing", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no default change")
	}
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestDeleteProvider(t *testing.T) {
	repo, mock := newProviderRepo(t)
	mock.ExpectExec("DELETE FROM storage_providers").
		WithArgs("prov-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Delete(context.Background(), "prov-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected delete to apply")
	}
}
