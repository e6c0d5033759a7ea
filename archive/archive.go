// Package archive keeps a SQLite history of generated transaction reports.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/neverDefined/regtest-report/report"
)

// Record is one archived report. Amounts are stored in satoshis.
type Record struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`

	TxID             string `gorm:"index"`
	InputAddress     string
	InputSats        int64
	RecipientAddress string
	RecipientSats    int64
	ChangeAddress    string
	ChangeSats       int64
	FeeSats          int64
	BlockHeight      int32
	BlockHash        string
}

// TableName keeps the table name stable regardless of gorm's naming rules.
func (Record) TableName() string {
	return "reports"
}

// Report converts the row back into a TransactionReport.
func (r *Record) Report() *report.TransactionReport {
	return &report.TransactionReport{
		TxID:             r.TxID,
		InputAddress:     r.InputAddress,
		InputAmount:      btcutil.Amount(r.InputSats),
		RecipientAddress: r.RecipientAddress,
		RecipientAmount:  btcutil.Amount(r.RecipientSats),
		ChangeAddress:    r.ChangeAddress,
		ChangeAmount:     btcutil.Amount(r.ChangeSats),
		Fee:              btcutil.Amount(r.FeeSats),
		BlockHeight:      r.BlockHeight,
		BlockHash:        r.BlockHash,
	}
}

// Store wraps the archive database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the archive at path and migrates it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save appends rep to the archive.
func (s *Store) Save(ctx context.Context, rep *report.TransactionReport) (*Record, error) {
	rec := &Record{
		TxID:             rep.TxID,
		InputAddress:     rep.InputAddress,
		InputSats:        int64(rep.InputAmount),
		RecipientAddress: rep.RecipientAddress,
		RecipientSats:    int64(rep.RecipientAmount),
		ChangeAddress:    rep.ChangeAddress,
		ChangeSats:       int64(rep.ChangeAmount),
		FeeSats:          int64(rep.Fee),
		BlockHeight:      rep.BlockHeight,
		BlockHash:        rep.BlockHash,
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to save report %s: %w", rep.TxID, err)
	}
	return rec, nil
}

// List returns up to limit records, newest first. A non-positive limit
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []Record
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return recs, nil
}
