// Package history is the persistence adapter for BSS sightings and link
// connection events, built on GORM over SQLite.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/net80211/station/internal/core/domain"
)

// BSSSighting is an append-only projection of a BSS entry update,
// independent of the live reference-counted BSS entry the core keeps.
type BSSSighting struct {
	ID           string `gorm:"primaryKey"`
	Link         string `gorm:"index"`
	BSSID        string `gorm:"index"`
	SSID         string `gorm:"column:ssid;index"`
	Channel      int
	RSSI         int
	Capabilities uint16
	ObservedAt   time.Time `gorm:"index"`
}

// ConnectionEvent is one row of link lifecycle history: join-start,
// associated, handshake-complete, deauth, timeout.
type ConnectionEvent struct {
	ID        string `gorm:"primaryKey"`
	Link      string `gorm:"index"`
	Kind      string `gorm:"index"`
	BSSID     string
	Detail    string
	Timestamp time.Time `gorm:"index"`
}

// Store implements persistence for BSS sightings and connection
// events.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the SQLite history database at path
// and migrates its schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&BSSSighting{}, &ConnectionEvent{}); err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	db.Exec("CREATE INDEX IF NOT EXISTS idx_sightings_ssid ON bss_sightings(ssid)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_events_kind ON connection_events(kind)")

	return &Store{db: db}, nil
}

// RecordSighting persists one BSS table insert/update. The caller is
// expected to call this off the link lock.
func (s *Store) RecordSighting(ctx context.Context, link string, desc domain.BSSDescriptor) error {
	row := BSSSighting{
		ID:           uuid.NewString(),
		Link:         link,
		BSSID:        macString(desc.BSSID),
		SSID:         desc.SSID,
		Channel:      desc.Channel,
		RSSI:         desc.RSSI,
		Capabilities: desc.Capabilities,
		ObservedAt:   time.Now(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// RecordEvent persists one connection lifecycle event.
func (s *Store) RecordEvent(ctx context.Context, link, kind, bssid, detail string) error {
	row := ConnectionEvent{
		ID:        uuid.NewString(),
		Link:      link,
		Kind:      kind,
		BSSID:     bssid,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// RecentSightings returns the most recently observed BSS sightings, most
// recent first, for the control surface's `/api/history` query and the
// PDF report.
func (s *Store) RecentSightings(ctx context.Context, limit int) ([]BSSSighting, error) {
	var rows []BSSSighting
	err := s.db.WithContext(ctx).Order("observed_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// RecentEvents returns the most recent connection events, most recent
// first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]ConnectionEvent, error) {
	var rows []ConnectionEvent
	err := s.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&rows).Error
	return rows, err
}

func macString(m [6]byte) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 0, 17)
	for i, c := range m {
		if i > 0 {
			b = append(b, ':')
		}
		b = append(b, hex[c>>4], hex[c&0xf])
	}
	return string(b)
}
