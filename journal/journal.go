// Package journal keeps a queryable record of every event the controller
// dispatched.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nodepilot/node"
)

// Entry is one dispatched event.
type Entry struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind          string    `gorm:"index;not null"`
	Payload       string    `gorm:"type:text;not null"`
	Offer         string
	Outcome       string `gorm:"index"`
	Error         string
	HandledAt     time.Time `gorm:"index"`
	DispatchMicro int64
}

// Journal appends entries to a SQL database.
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to dsn. postgres:// and postgresql:// URLs use the postgres
// driver; anything else is treated as a sqlite path or URI.
func Open(dsn string) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("journal: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: db required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// AutoMigrate performs the journal schema migration.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Record describes the outcome of one dispatch.
type Record struct {
	Event    node.Event
	Offer    node.Offer
	Err      error
	Duration time.Duration
}

// Append stores rec. A nil journal discards the record.
func (j *Journal) Append(ctx context.Context, rec Record) error {
	if j == nil {
		return nil
	}
	if rec.Event == nil {
		return errors.New("journal: event required")
	}
	payload, err := node.MarshalEvent(rec.Event)
	if err != nil {
		return fmt.Errorf("journal: encode event: %w", err)
	}
	entry := Entry{
		ID:            uuid.New(),
		Kind:          rec.Event.Kind(),
		Payload:       string(payload),
		Offer:         string(rec.Offer),
		Outcome:       "success",
		HandledAt:     j.now().UTC(),
		DispatchMicro: rec.Duration.Microseconds(),
	}
	if rec.Err != nil {
		entry.Outcome = "error"
		entry.Error = rec.Err.Error()
	}
	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	err := j.db.WithContext(ctx).Order("handled_at desc").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return entries, nil
}

// Event decodes the stored payload.
func (e Entry) Event() (node.Event, error) {
	return node.UnmarshalEvent([]byte(e.Payload))
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
