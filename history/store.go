package history

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("history record not found")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("history store closed")
)

// Record describes one received file.
type Record struct {
	ID         string `gorm:"primaryKey;size:36"`
	SenderName string
	FileName   string `gorm:"index"`
	Size       int64
	Digest     string `gorm:"size:64"`
	SavedPath  string
	ReceivedAt time.Time `gorm:"index"`
}

// Store persists received-file records in SQLite. It is safe for concurrent
// use, including Close racing other calls.
type Store struct {
	db *gorm.DB
	mu sync.RWMutex
}

// Digest returns the hex BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewRecord builds a record for data received from sender and saved at path.
func NewRecord(sender, fileName string, data []byte, path string, receivedAt time.Time) *Record {
	return &Record{
		ID:         uuid.NewString(),
		SenderName: sender,
		FileName:   fileName,
		Size:       int64(len(data)),
		Digest:     Digest(data),
		SavedPath:  path,
		ReceivedAt: receivedAt,
	}
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a throwaway store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database %s: %w", path, err)
	}

	// An in-memory database exists per connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access history database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "history.Open",
		"path":     path,
	}).Debug("Opened history store")

	return &Store{db: db}, nil
}

// Add stores a record. An empty ID is filled with a fresh UUID.
func (s *Store) Add(ctx context.Context, rec *Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Store.Add",
		"id":        rec.ID,
		"file_name": rec.FileName,
		"size":      rec.Size,
	}).Debug("Recorded received file")
	return nil
}

// List returns up to limit records, newest first. A limit of zero or less
// returns every record.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	var records []Record
	q := s.db.WithContext(ctx).Order("received_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}
	return records, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	var rec Record
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get history record: %w", err)
	}
	return &rec, nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	res := s.db.WithContext(ctx).Delete(&Record{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete history record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close releases the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
