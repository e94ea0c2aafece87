package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orbithq/orbit/internal/config"
)

// documentRow is the single-row blob table behind GormBackend. The
// whole-document replace model needs exactly one row; the fixed primary
// key plus an upsert keeps it that way.
type documentRow struct {
	ID        uint   `gorm:"primaryKey"`
	Payload   []byte `gorm:"type:longblob"`
	UpdatedAt time.Time
}

func (documentRow) TableName() string { return "documents" }

const documentRowID = 1

// GormBackend stores the blob in a relational database, MySQL when a
// DSN is configured and SQLite otherwise. Atomic replace comes from the
// database's own transactional single-statement upsert.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend opens the configured database and migrates the blob
// table.
func NewGormBackend(cfg *config.Config) (*GormBackend, error) {
	var dialector gorm.Dialector
	if cfg.DB.DSN != "" {
		dialector = mysql.Open(cfg.DB.DSN)
	} else {
		dialector = sqlite.Open(cfg.DB.SQLitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormBackend{db: db}, nil
}

// NewGormBackendWithDB wraps an already-open connection; used by tests
// with in-memory SQLite.
func NewGormBackendWithDB(db *gorm.DB) (*GormBackend, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormBackend{db: db}, nil
}

func (g *GormBackend) Read(ctx context.Context) ([]byte, error) {
	var row documentRow
	err := g.db.WithContext(ctx).First(&row, documentRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.Payload, nil
}

func (g *GormBackend) Write(ctx context.Context, data []byte) error {
	row := documentRow{ID: documentRowID, Payload: data}
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&row).Error
}

func (g *GormBackend) Clear(ctx context.Context) error {
	return g.db.WithContext(ctx).Delete(&documentRow{}, documentRowID).Error
}
