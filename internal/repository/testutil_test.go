package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/timmy/photovault/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory SQLite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// One connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type assetOpt func(*domain.Asset)

func withDuplicate(id string) assetOpt {
	return func(a *domain.Asset) { a.DuplicateID = &id }
}

func withVisibility(v domain.AssetVisibility) assetOpt {
	return func(a *domain.Asset) { a.Visibility = v }
}

func withStatus(s domain.AssetStatus) assetOpt {
	return func(a *domain.Asset) { a.Status = s }
}

func withStack(id string) assetOpt {
	return func(a *domain.Asset) { a.StackID = &id }
}

func insertAsset(t *testing.T, db *gorm.DB, owner, checksum string, opts ...assetOpt) *domain.Asset {
	t.Helper()
	now := time.Now().UTC()
	a := &domain.Asset{
		ID:               uuid.NewString(),
		OwnerID:          owner,
		Checksum:         []byte(checksum),
		Type:             domain.AssetTypeImage,
		OriginalPath:     "upload/" + owner + "/" + checksum + ".jpg",
		OriginalFileName: checksum + ".jpg",
		FileCreatedAt:    now,
		FileModifiedAt:   now,
		LocalDateTime:    now,
		Visibility:       domain.AssetVisibilityTimeline,
		Status:           domain.AssetStatusActive,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("insert asset: %v", err)
	}
	return a
}

func insertEmbedding(t *testing.T, db *gorm.DB, assetID string, vec []float32, updatedAt time.Time) {
	t.Helper()
	row := &domain.SmartSearch{AssetID: assetID, Embedding: pgvector.NewVector(vec), Model: "test", UpdatedAt: updatedAt}
	if err := NewAssetRepository(db).UpsertSmartSearch(context.Background(), row); err != nil {
		t.Fatalf("insert embedding: %v", err)
	}
}

func duplicateIDOf(t *testing.T, db *gorm.DB, assetID string) *string {
	t.Helper()
	var a domain.Asset
	if err := db.First(&a, "id = ?", assetID).Error; err != nil {
		t.Fatalf("load asset %s: %v", assetID, err)
	}
	return a.DuplicateID
}
