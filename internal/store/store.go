// Package store journals pipeline events to SQLite. It subscribes to the
// event bus and writes on its own goroutine; the trading path never waits
// on the database.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // pure-Go driver; the build runs with CGO_ENABLED=0

	"riptide/internal/logger"
)

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&OrderModel{}, &EventModel{}, &PositionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP reads, low lock contention
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) upsertOrder(ctx context.Context, m *OrderModel) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(m).Error
}

func (s *Store) upsertPosition(ctx context.Context, m *PositionModel) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		UpdateAll: true,
	}).Create(m).Error
}

func (s *Store) insertEvent(ctx context.Context, m *EventModel) error {
	return s.db.WithContext(ctx).Create(m).Error
}

// RecentOrders returns the latest journaled orders, newest first.
func (s *Store) RecentOrders(ctx context.Context, limit int) ([]OrderModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []OrderModel
	err := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// RecentEvents returns the latest journaled events, newest first,
// optionally filtered by kind.
func (s *Store) RecentEvents(ctx context.Context, kind string, limit int) ([]EventModel, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("at DESC").Limit(limit)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var out []EventModel
	err := q.Find(&out).Error
	return out, err
}

// Positions returns the journaled position rows.
func (s *Store) Positions(ctx context.Context) ([]PositionModel, error) {
	var out []PositionModel
	err := s.db.WithContext(ctx).Order("symbol").Find(&out).Error
	return out, err
}

// purgeEvents drops journaled events older than the retention window.
func (s *Store) purgeEvents(ctx context.Context, olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)
	res := s.db.WithContext(ctx).Where("at < ?", cutoff).Delete(&EventModel{})
	if res.Error != nil {
		logger.Warnf("event purge: %v", res.Error)
	} else if res.RowsAffected > 0 {
		logger.Debugf("event purge removed %d rows", res.RowsAffected)
	}
}
