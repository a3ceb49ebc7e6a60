package source

import (
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	errs "davmigrate/pkg/errors"
)

// QueryStrategy builds the candidate query for one entity kind.
//
// Base must select from the entity's file table aliased as f and return
// the columns entity, entity_id, file_id, version, data and created_on.
// Identity returns the SQL expressions for the owner id, file id and
// effective version, which the repository matches against the ledger.
type QueryStrategy interface {
	Entity() string
	Base(db *gorm.DB) *gorm.DB
	Identity() (entityID, fileID, version string)
}

// IdentityWidth is the maximum length of an owner id, file id or version.
// It matches the ledger columns; longer values are truncated on both sides.
const IdentityWidth = 450

func asText(expr string) string {
	return fmt.Sprintf("CAST(%s AS VARCHAR(%d))", expr, IdentityWidth)
}

// DirectQuery reads files straight from <Kind>File, whose rows carry their
// own version and payload.
type DirectQuery struct {
	Kind string
	// Table defaults to Kind + "File"
	Table string
	// OwnerColumn defaults to Kind + "Id"
	OwnerColumn string
}

func (q DirectQuery) Entity() string { return q.Kind }

func (q DirectQuery) table() string {
	if q.Table != "" {
		return q.Table
	}
	return q.Kind + "File"
}

func (q DirectQuery) owner() string {
	if q.OwnerColumn != "" {
		return "f." + q.OwnerColumn
	}
	return "f." + q.Kind + "Id"
}

func (q DirectQuery) Identity() (string, string, string) {
	return asText(q.owner()), asText("f.Id"), asText("f.Version")
}

func (q DirectQuery) Base(db *gorm.DB) *gorm.DB {
	entityID, fileID, version := q.Identity()
	return db.Table(q.table()+" f").
		Select(fmt.Sprintf("? AS entity, %s AS entity_id, %s AS file_id, %s AS version, f.Data AS data, f.CreatedOn AS created_on",
			entityID, fileID, version), q.Kind).
		Where(q.owner() + " IS NOT NULL").
		Where("f.Id IS NOT NULL").
		Where("f.Data IS NOT NULL")
}

// VersionedQuery reads files whose content lives in a version history
// table. Version and payload come from the history row joined on file id.
type VersionedQuery struct {
	Kind        string
	Table       string
	OwnerColumn string
	// VersionTable defaults to PTFileVersion with columns PTFile,
	// PTVersion and PTData.
	VersionTable  string
	FileColumn    string
	VersionColumn string
	DataColumn    string
}

func (q VersionedQuery) Entity() string { return q.Kind }

func (q VersionedQuery) direct() DirectQuery {
	return DirectQuery{Kind: q.Kind, Table: q.Table, OwnerColumn: q.OwnerColumn}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func (q VersionedQuery) Identity() (string, string, string) {
	d := q.direct()
	return asText(d.owner()), asText("f.Id"), asText("fv." + orDefault(q.VersionColumn, "PTVersion"))
}

func (q VersionedQuery) Base(db *gorm.DB) *gorm.DB {
	d := q.direct()
	entityID, fileID, version := q.Identity()
	data := "fv." + orDefault(q.DataColumn, "PTData")

	return db.Table(d.table()+" f").
		Joins(fmt.Sprintf("JOIN %s fv ON fv.%s = f.Id",
			orDefault(q.VersionTable, "PTFileVersion"), orDefault(q.FileColumn, "PTFile"))).
		Select(fmt.Sprintf("? AS entity, %s AS entity_id, %s AS file_id, %s AS version, %s AS data, f.CreatedOn AS created_on",
			entityID, fileID, version, data), q.Kind).
		Where(d.owner() + " IS NOT NULL").
		Where("f.Id IS NOT NULL").
		Where("f.Data IS NOT NULL").
		Where(data + " IS NOT NULL")
}

// Registry maps entity kind names to their query strategy
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]QueryStrategy
}

// NewRegistry creates a registry holding the given strategies
func NewRegistry(strategies ...QueryStrategy) *Registry {
	r := &Registry{strategies: make(map[string]QueryStrategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// DefaultRegistry knows Account and Contact files, and Contract files with
// their PTFileVersion history.
func DefaultRegistry() *Registry {
	return NewRegistry(
		DirectQuery{Kind: "Account"},
		DirectQuery{Kind: "Contact"},
		VersionedQuery{Kind: "Contract"},
	)
}

// Register adds or replaces the strategy for s.Entity()
func (r *Registry) Register(s QueryStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Entity()] = s
}

// Lookup returns the strategy for entity or ErrUnknownEntity
func (r *Registry) Lookup(entity string) (QueryStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[entity]
	if !ok {
		return nil, errs.Repository(fmt.Sprintf("entity %q", entity), errs.ErrUnknownEntity)
	}
	return s, nil
}

// Entities returns the registered kinds in alphabetical order
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
