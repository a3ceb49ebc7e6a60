package models

import (
	"fmt"
	"time"
)

// FileRecord is a single attachment read from the record store.
// Values are passed around by copy and never mutated after the query.
type FileRecord struct {
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	FileID    string    `json:"file_id"`
	Version   string    `json:"version"`
	Data      []byte    `json:"-"`
	CreatedOn time.Time `json:"created_on"`
}

// Identity is the ledger key of a file. Two records that differ only in
// Version are different identities.
type Identity struct {
	Entity   string
	EntityID string
	FileID   string
	Version  string
}

// String renders the identity as entity/entity_id/file_id@version
func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s@%s", id.Entity, id.EntityID, id.FileID, id.Version)
}

// Identity returns the ledger identity of the record
func (f FileRecord) Identity() Identity {
	return Identity{
		Entity:   f.Entity,
		EntityID: f.EntityID,
		FileID:   f.FileID,
		Version:  f.Version,
	}
}

// HasRequiredFields reports whether every identity field is populated.
// Records without them can be uploaded but are never written to the ledger.
func (f FileRecord) HasRequiredFields() bool {
	return f.Entity != "" && f.EntityID != "" && f.FileID != "" && f.Version != ""
}

// Size returns the payload length in bytes
func (f FileRecord) Size() int64 {
	return int64(len(f.Data))
}

// IndexOf returns the position of the first record in files whose identity
// matches id, or -1.
func IndexOf(files []FileRecord, id Identity) int {
	for i, f := range files {
		if f.Identity() == id {
			return i
		}
	}
	return -1
}

// FilterRequired returns the records that have all required fields, in order.
func FilterRequired(files []FileRecord) []FileRecord {
	out := make([]FileRecord, 0, len(files))
	for _, f := range files {
		if f.HasRequiredFields() {
			out = append(out, f)
		}
	}
	return out
}
