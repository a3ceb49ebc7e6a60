// Package ledger persists the identities of files that were uploaded, so a
// later run can skip them.
//
// The ledger table has no primary key. Duplicate rows are avoided by the
// candidate query in pkg/source, which never returns a file whose identity
// is already recorded.
package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	errs "davmigrate/pkg/errors"
	"davmigrate/pkg/logger"
	"davmigrate/pkg/models"
)

// Entry is one row of the ledger table
type Entry struct {
	Entity   string `gorm:"column:Entity;size:450"`
	EntityID string `gorm:"column:EntityId;size:450"`
	FileID   string `gorm:"column:FileId;size:450"`
	Version  string `gorm:"column:Version;size:450"`
	Data     []byte `gorm:"column:Data"`
}

// Identity returns the identity tuple recorded by the entry
func (e Entry) Identity() models.Identity {
	return models.Identity{Entity: e.Entity, EntityID: e.EntityID, FileID: e.FileID, Version: e.Version}
}

func entryFor(f models.FileRecord) Entry {
	return Entry{
		Entity:   f.Entity,
		EntityID: f.EntityID,
		FileID:   f.FileID,
		Version:  f.Version,
		Data:     f.Data,
	}
}

// Store reads and writes the ledger table
type Store struct {
	db        *gorm.DB
	table     string
	batchSize int
	log       logger.Logger
}

// NewStore creates a Store over the named table
func NewStore(db *gorm.DB, table string, batchSize int, log logger.Logger) *Store {
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{
		db:        db,
		table:     table,
		batchSize: batchSize,
		log:       log.WithField("ledger_table", table),
	}
}

// Table returns the ledger table name
func (s *Store) Table() string {
	return s.table
}

// Migrate creates the ledger table if it does not exist. An existing table
// is left untouched.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if db.Migrator().HasTable(s.table) {
		return nil
	}
	if err := db.Table(s.table).AutoMigrate(&Entry{}); err != nil {
		s.log.WithError(err).Error("failed to migrate ledger table")
		return errs.Persistence("migrate ledger table", err)
	}
	return nil
}

// HasEntries reports whether the ledger holds at least one entry
func (s *Store) HasEntries(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of ledger entries
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		return tx.Table(s.table).Count(&n).Error
	})
	if err != nil {
		s.log.WithError(err).Error("failed to count ledger entries")
		return 0, errs.Persistence("count ledger entries", err)
	}
	return n, nil
}

// List returns up to limit entries without their payload. limit <= 0
// returns every entry.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		q := tx.Table(s.table).Select("Entity", "EntityId", "FileId", "Version")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&entries).Error
	})
	if err != nil {
		s.log.WithError(err).Error("failed to list ledger entries")
		return nil, errs.Persistence("list ledger entries", err)
	}
	return entries, nil
}

// Clear deletes every ledger entry
func (s *Store) Clear(ctx context.Context) error {
	var deleted int64
	err := s.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Table(s.table).Delete(&Entry{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		s.log.WithError(err).Error("failed to clear ledger")
		return errs.Persistence("clear ledger", err)
	}
	s.log.InfoWithFields("ledger cleared", map[string]interface{}{"deleted": deleted})
	return nil
}

// PersistEntries records one entry per file that has every identity field.
// All rows are written in one transaction. If the store reports fewer rows
// than expected the transaction is rolled back and ErrIncompleteCheckpoint
// is returned.
func (s *Store) PersistEntries(ctx context.Context, files []models.FileRecord) error {
	eligible := models.FilterRequired(files)
	if skipped := len(files) - len(eligible); skipped > 0 {
		s.log.WarnWithFields("skipping files with missing identity fields", map[string]interface{}{
			"skipped": skipped,
		})
	}
	if len(eligible) == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(eligible))
	for _, f := range eligible {
		entries = append(entries, entryFor(f))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(s.table).CreateInBatches(&entries, s.batchSize)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(entries)) {
			return fmt.Errorf("%w: inserted %d of %d", errs.ErrIncompleteCheckpoint, res.RowsAffected, len(entries))
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).ErrorWithFields("failed to persist ledger entries", map[string]interface{}{
			"expected": len(entries),
		})
		return errs.Persistence("persist ledger entries", err)
	}

	s.log.InfoWithFields("ledger entries persisted", map[string]interface{}{"count": len(entries)})
	return nil
}
