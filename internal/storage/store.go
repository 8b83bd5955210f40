// Package storage persists parameter-sweep results to SQLite so runs can
// be compared across invocations and served to the dashboard.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ResultRow is one simulation outcome in the results table.
type ResultRow struct {
	gorm.Model
	RunID            string    `gorm:"index"`
	Period           string    `gorm:"index"`
	DeltaBand        string    `gorm:"index"`
	RSIThreshold     float64   `gorm:"index"`
	Start            time.Time
	End              time.Time
	TotalReturn      float64
	AnnualReturn     float64
	SharpeRatio      float64
	MaxDrawdown      float64
	WinRate          float64
	TotalTrades      int
	FinalValue       float64
	PremiumCollected float64
	Assignments      int
	FailureReason    string
}

// Store wraps the results database.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Open creates or opens the SQLite database at dbPath and migrates the
// results schema.
func Open(dbPath string, logger *logrus.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.AutoMigrate(&ResultRow{}); err != nil {
		return nil, fmt.Errorf("migrating results schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// SaveResults batch-inserts the rows of one sweep.
func (s *Store) SaveResults(rows []ResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.Create(&rows).Error; err != nil {
		return fmt.Errorf("saving results: %w", err)
	}
	s.logger.WithField("count", len(rows)).Info("sweep results saved")
	return nil
}

// Results returns every stored row, newest run first.
func (s *Store) Results() ([]ResultRow, error) {
	var rows []ResultRow
	if err := s.db.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading results: %w", err)
	}
	return rows, nil
}

// TopByReturn returns the n best rows by total return.
func (s *Store) TopByReturn(n int) ([]ResultRow, error) {
	var rows []ResultRow
	if err := s.db.Order("total_return DESC").Limit(n).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading top results: %w", err)
	}
	return rows, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
