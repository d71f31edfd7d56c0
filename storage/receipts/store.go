package receipts

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"
)

// Outcome classifies how a call ended.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeReverted  Outcome = "reverted"
	OutcomeFailed    Outcome = "failed"
)

// ErrNotFound is returned by Get for an unknown receipt id.
var ErrNotFound = errors.New("receipts: not found")

// Receipt is the journal row written for every pool or ledger call, whether
// it committed or not.
type Receipt struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Operation string    `gorm:"index;not null"`
	Caller    string    `gorm:"index"`
	Asset     string
	Amount    string
	Outcome   Outcome `gorm:"index;not null"`
	ErrorKind string
	Reason    string
	Events    int
	Digest    string    `gorm:"size:64;index"`
	CreatedAt time.Time `gorm:"index"`
}

// Entry is what the caller knows about a finished call.
type Entry struct {
	Operation string
	Caller    string
	Asset     string
	Amount    string
	// ErrorKind is empty for committed calls and "internal" for
	// infrastructure failures.
	ErrorKind string
	Reason    string
	Events    int
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Operation string
	Caller    string
	Outcome   Outcome
	Since     time.Time
	Limit     int
}

const defaultLimit = 100

// Store persists receipts through gorm.
type Store struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// Open connects to dsn. postgres:// URLs use the postgres driver, anything
// else is treated as a sqlite path; an empty dsn opens a private in-memory
// database.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(dialector(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("receipts: open: %w", err)
	}
	return New(db)
}

func dialector(dsn string) gorm.Dialector {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return postgres.Open(trimmed)
	case trimmed == "":
		return sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	default:
		return sqlite.Open(trimmed)
	}
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("receipts: nil database")
	}
	if err := db.AutoMigrate(&Receipt{}); err != nil {
		return nil, fmt.Errorf("receipts: migrate: %w", err)
	}
	return &Store{db: db, nowFn: time.Now}, nil
}

// SetNowFunc overrides the clock used to stamp receipts.
func (s *Store) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.nowFn = now
}

func outcomeOf(kind string) Outcome {
	switch kind {
	case "":
		return OutcomeCommitted
	case "internal":
		return OutcomeFailed
	default:
		return OutcomeReverted
	}
}

// Digest returns the blake3 fingerprint of a receipt's identifying fields.
func Digest(r *Receipt) string {
	h := blake3.New(32, nil)
	for _, field := range []string{
		r.ID.String(),
		r.Operation,
		r.Caller,
		r.Asset,
		r.Amount,
		string(r.Outcome),
		r.ErrorKind,
		r.Reason,
		strconv.FormatInt(r.CreatedAt.UnixNano(), 10),
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Record appends a receipt for entry.
func (s *Store) Record(ctx context.Context, entry Entry) (*Receipt, error) {
	op := strings.TrimSpace(entry.Operation)
	if op == "" {
		return nil, fmt.Errorf("receipts: operation required")
	}
	r := &Receipt{
		ID:        uuid.New(),
		Operation: op,
		Caller:    entry.Caller,
		Asset:     entry.Asset,
		Amount:    entry.Amount,
		Outcome:   outcomeOf(entry.ErrorKind),
		ErrorKind: entry.ErrorKind,
		Reason:    entry.Reason,
		Events:    entry.Events,
		CreatedAt: s.nowFn().UTC(),
	}
	r.Digest = Digest(r)
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("receipts: insert: %w", err)
	}
	return r, nil
}

// Get loads one receipt.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	var r Receipt
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("receipts: get: %w", err)
	}
	return &r, nil
}

// List returns receipts matching filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Receipt, error) {
	q := s.db.WithContext(ctx).Model(&Receipt{})
	if filter.Operation != "" {
		q = q.Where("operation = ?", filter.Operation)
	}
	if filter.Caller != "" {
		q = q.Where("caller = ?", filter.Caller)
	}
	if filter.Outcome != "" {
		q = q.Where("outcome = ?", filter.Outcome)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since.UTC())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	var out []Receipt
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("receipts: list: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
