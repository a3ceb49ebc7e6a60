// Package source reads candidate files from the record store.
package source

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	errs "davmigrate/pkg/errors"
	"davmigrate/pkg/logger"
	"davmigrate/pkg/models"
)

type candidateRow struct {
	Entity    string    `gorm:"column:entity"`
	EntityID  string    `gorm:"column:entity_id"`
	FileID    string    `gorm:"column:file_id"`
	Version   string    `gorm:"column:version"`
	Data      []byte    `gorm:"column:data"`
	CreatedOn time.Time `gorm:"column:created_on"`
}

// Repository returns files that still need uploading
type Repository struct {
	db          *gorm.DB
	registry    *Registry
	ledgerTable string
	maxRows     int
	log         logger.Logger
}

// NewRepository creates a Repository. Files recorded in ledgerTable are
// excluded. maxRows <= 0 returns every candidate.
func NewRepository(db *gorm.DB, registry *Registry, ledgerTable string, maxRows int, log logger.Logger) *Repository {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Repository{
		db:          db,
		registry:    registry,
		ledgerTable: ledgerTable,
		maxRows:     maxRows,
		log:         log,
	}
}

// Entities lists the entity kinds the repository can query
func (r *Repository) Entities() []string {
	return r.registry.Entities()
}

// GetCandidateFiles returns the entity's files that are not in the ledger
// at their current version, oldest first, capped at maxRows.
func (r *Repository) GetCandidateFiles(ctx context.Context, entity string) ([]models.FileRecord, error) {
	log := r.log.WithField("entity", entity)

	strategy, err := r.registry.Lookup(entity)
	if err != nil {
		log.Error("unknown entity kind")
		return nil, err
	}

	var rows []candidateRow
	err = r.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		entityID, fileID, version := strategy.Identity()

		uploaded := tx.Session(&gorm.Session{NewDB: true}).
			Table(r.ledgerTable+" l").
			Select("1").
			Where(fmt.Sprintf("l.Entity = ? AND l.EntityId = %s AND l.FileId = %s AND l.Version = %s",
				entityID, fileID, version), strategy.Entity())

		q := strategy.Base(tx.Session(&gorm.Session{NewDB: true})).
			Where("NOT EXISTS (?)", uploaded).
			Order("f.CreatedOn ASC")
		if r.maxRows > 0 {
			q = q.Limit(r.maxRows)
		}
		return q.Scan(&rows).Error
	})
	if err != nil {
		log.WithError(err).Error("failed to query candidate files")
		return nil, errs.Repository(fmt.Sprintf("query %s files", entity), err)
	}

	files := make([]models.FileRecord, 0, len(rows))
	for _, row := range rows {
		files = append(files, models.FileRecord{
			Entity:    row.Entity,
			EntityID:  row.EntityID,
			FileID:    row.FileID,
			Version:   row.Version,
			Data:      row.Data,
			CreatedOn: row.CreatedOn,
		})
	}

	log.InfoWithFields("candidate files loaded", map[string]interface{}{
		"count":    len(files),
		"max_rows": r.maxRows,
	})
	return files, nil
}
