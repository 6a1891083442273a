package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/makeasinger/stems/internal/config"
)

// ErrAssetNotFound is returned when no asset row matches the id
var ErrAssetNotFound = errors.New("asset not found")

// AssetLookup resolves a human-readable title for a subject
type AssetLookup interface {
	LookupTitle(ctx context.Context, subjectID string) (string, error)
}

// Asset is the read-only slice of the platform's assets table used here
type Asset struct {
	ID    string `gorm:"primaryKey"`
	Title string
}

// TableName keeps gorm on the platform's table name
func (Asset) TableName() string {
	return "assets"
}

// AssetRepository implements AssetLookup on top of the platform database
type AssetRepository struct {
	db *gorm.DB
}

// NewAssetRepository wraps an open gorm connection
func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// OpenAssetRepository connects to postgres using the configured DSN
func OpenAssetRepository(cfg *config.DatabaseConfig) (*AssetRepository, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL not configured")
	}

	// record-not-found is an expected outcome of a lookup, keep it out of the log
	dbLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewAssetRepository(db), nil
}

// LookupTitle returns the asset title, or ErrAssetNotFound
func (r *AssetRepository) LookupTitle(ctx context.Context, subjectID string) (string, error) {
	var asset Asset
	err := r.db.WithContext(ctx).Select("id", "title").Where("id = ?", subjectID).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrAssetNotFound
		}
		return "", fmt.Errorf("failed to look up asset: %w", err)
	}
	return asset.Title, nil
}
