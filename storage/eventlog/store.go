package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"potchain/core/types"
)

const defaultQueryLimit = 100

// ErrUnsupportedDriver is returned by Open for unknown driver names.
var ErrUnsupportedDriver = errors.New("eventlog: unsupported driver")

// Record is the persisted form of an emitted event. ID is the stable cursor;
// the hub sequence restarts with the process.
type Record struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Sequence   uint64    `gorm:"index"`
	Type       string    `gorm:"size:96;index"`
	Attributes string    `gorm:"type:text"`
	RecordedAt time.Time `gorm:"index"`
}

// TableName pins the table name.
func (Record) TableName() string { return "pot_events" }

// Entry is an indexed event returned by queries.
type Entry struct {
	ID         uint64      `json:"id"`
	RecordedAt time.Time   `json:"recordedAt"`
	Event      types.Event `json:"event"`
}

// Filter narrows Query. Zero values match everything.
type Filter struct {
	Type    string
	AfterID uint64
	Limit   int
}

// Open connects to the event index database. Driver is "sqlite" or
// "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// Store appends events into the index and serves history queries.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New migrates the schema and returns the store.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("eventlog: database required")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Append persists one event.
func (s *Store) Append(ctx context.Context, evt types.Event) (uint64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("eventlog: store not initialised")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return 0, fmt.Errorf("eventlog: encode attributes: %w", err)
	}
	record := Record{
		Sequence:   evt.Sequence,
		Type:       evt.Type,
		Attributes: string(encoded),
		RecordedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return 0, fmt.Errorf("eventlog: insert %s: %w", evt.Type, err)
	}
	return record.ID, nil
}

// Query returns events after the cursor in insertion order.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("eventlog: store not initialised")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultQueryLimit
	}
	query := s.db.WithContext(ctx).Model(&Record{}).Where("id > ?", filter.AfterID)
	if kind := strings.TrimSpace(filter.Type); kind != "" {
		query = query.Where("type = ?", kind)
	}
	var records []Record
	if err := query.Order("id ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	out := make([]Entry, 0, len(records))
	for _, record := range records {
		attrs := map[string]string{}
		if err := json.Unmarshal([]byte(record.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("eventlog: decode record %d: %w", record.ID, err)
		}
		out = append(out, Entry{
			ID:         record.ID,
			RecordedAt: record.RecordedAt,
			Event:      types.Event{Sequence: record.Sequence, Type: record.Type, Attributes: attrs},
		})
	}
	return out, nil
}

// Consume appends events from the channel until it closes or ctx is done.
// Insert failures are passed to onError and do not stop consumption.
func (s *Store) Consume(ctx context.Context, events <-chan types.Event, onError func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if _, err := s.Append(ctx, evt); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
