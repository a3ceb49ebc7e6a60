package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	errs "davmigrate/pkg/errors"
	"davmigrate/pkg/ledger"
	"davmigrate/pkg/logger"
	"davmigrate/pkg/models"
)

const ledgerTable = "LastFileUploadedToNextCloud"

type accountFile struct {
	ID        string    `gorm:"column:Id;primaryKey"`
	AccountID *string   `gorm:"column:AccountId"`
	Version   string    `gorm:"column:Version"`
	Data      []byte    `gorm:"column:Data"`
	CreatedOn time.Time `gorm:"column:CreatedOn"`
}

func (accountFile) TableName() string { return "AccountFile" }

type contractFile struct {
	ID         string    `gorm:"column:Id;primaryKey"`
	ContractID *string   `gorm:"column:ContractId"`
	Version    string    `gorm:"column:Version"`
	Data       []byte    `gorm:"column:Data"`
	CreatedOn  time.Time `gorm:"column:CreatedOn"`
}

func (contractFile) TableName() string { return "ContractFile" }

type fileVersion struct {
	ID        string `gorm:"column:Id;primaryKey"`
	PTFile    string `gorm:"column:PTFile"`
	PTVersion string `gorm:"column:PTVersion"`
	PTData    []byte `gorm:"column:PTData"`
}

func (fileVersion) TableName() string { return "PTFileVersion" }

var base = time.Date(2023, 5, 1, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

type fixture struct {
	db     *gorm.DB
	ledger *ledger.Store
	log    *logger.TestLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "crm.db")), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	require.NoError(t, db.AutoMigrate(&accountFile{}, &contractFile{}, &fileVersion{}))

	tl := logger.NewTestLogger()
	store := ledger.NewStore(db, ledgerTable, 100, tl)
	require.NoError(t, store.Migrate(context.Background()))

	return &fixture{db: db, ledger: store, log: tl}
}

func (f *fixture) repo(maxRows int) *Repository {
	return NewRepository(f.db, DefaultRegistry(), ledgerTable, maxRows, f.log)
}

func (f *fixture) addAccountFile(t *testing.T, owner *string, id, version string, data []byte, created time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&accountFile{ID: id, AccountID: owner, Version: version, Data: data, CreatedOn: created}).Error)
}

func fileIDs(files []models.FileRecord) []string {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.FileID)
	}
	return ids
}

func TestGetCandidateFilesExcludesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addAccountFile(t, strPtr("A1"), "F1", "v1", []byte("one"), base)
	f.addAccountFile(t, strPtr("A1"), "F2", "v1", []byte("two"), base.Add(time.Minute))

	require.NoError(t, f.ledger.PersistEntries(ctx, []models.FileRecord{
		{Entity: "Account", EntityID: "A1", FileID: "F1", Version: "v1"},
	}))

	files, err := f.repo(0).GetCandidateFiles(ctx, "Account")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, models.FileRecord{
		Entity:    "Account",
		EntityID:  "A1",
		FileID:    "F2",
		Version:   "v1",
		Data:      []byte("two"),
		CreatedOn: base.Add(time.Minute),
	}, normalise(files[0]))
}

// normalise strips the location so times read back from SQLite compare
// equal to the UTC fixtures.
func normalise(f models.FileRecord) models.FileRecord {
	f.CreatedOn = f.CreatedOn.UTC()
	return f
}

func TestNewVersionIsACandidateAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addAccountFile(t, strPtr("A1"), "F1", "v2", []byte("updated"), base)
	require.NoError(t, f.ledger.PersistEntries(ctx, []models.FileRecord{
		{Entity: "Account", EntityID: "A1", FileID: "F1", Version: "v1"},
	}))

	files, err := f.repo(0).GetCandidateFiles(ctx, "Account")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "v2", files[0].Version)
}

func TestLedgerEntriesOfOtherEntitiesDoNotExclude(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addAccountFile(t, strPtr("A1"), "F1", "v1", []byte("one"), base)
	require.NoError(t, f.ledger.PersistEntries(ctx, []models.FileRecord{
		{Entity: "Contact", EntityID: "A1", FileID: "F1", Version: "v1"},
	}))

	files, err := f.repo(0).GetCandidateFiles(ctx, "Account")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestResumeReturnsSetDifference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := f.repo(0)

	for i := 0; i < 6; i++ {
		f.addAccountFile(t, strPtr("A1"), fmt.Sprintf("F%d", i), "v1", []byte{byte(i)}, base.Add(time.Duration(i)*time.Second))
	}

	all, err := repo.GetCandidateFiles(ctx, "Account")
	require.NoError(t, err)
	require.Len(t, all, 6)

	// persist a prefix as a partial checkpoint would
	require.NoError(t, f.ledger.PersistEntries(ctx, all[:4]))

	rest, err := repo.GetCandidateFiles(ctx, "Account")
	require.NoError(t, err)
	assert.Equal(t, []string{"F4", "F5"}, fileIDs(rest))
}

func TestCandidatesOrderedByCreationAndCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addAccountFile(t, strPtr("A1"), "late", "v1", []byte("x"), base.Add(3*time.Hour))
	f.addAccountFile(t, strPtr("A2"), "early", "v1", []byte("x"), base)
	f.addAccountFile(t, strPtr("A3"), "middle", "v1", []byte("x"), base.Add(time.Hour))

	files, err := f.repo(0).GetCandidateFiles(ctx, "Account")
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "middle", "late"}, fileIDs(files))
	for i := 1; i < len(files); i++ {
		assert.False(t, files[i].CreatedOn.Before(files[i-1].CreatedOn), "candidates must be non-decreasing in CreatedOn")
	}

	capped, err := f.repo(2).GetCandidateFiles(ctx, "Account")
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "middle"}, fileIDs(capped))
}

func TestIncompleteRowsAreNotCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addAccountFile(t, nil, "orphan", "v1", []byte("x"), base)
	f.addAccountFile(t, strPtr("A1"), "empty", "v1", nil, base)
	f.addAccountFile(t, strPtr("A1"), "ok", "v1", []byte("x"), base)

	files, err := f.repo(0).GetCandidateFiles(ctx, "Account")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, fileIDs(files))
}

func TestVersionedQueryUsesHistoryTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&contractFile{ID: "CF1", ContractID: strPtr("C1"), Version: "base", Data: []byte("stale"), CreatedOn: base}).Error)
	require.NoError(t, f.db.Create(&contractFile{ID: "CF2", ContractID: strPtr("C1"), Version: "base", Data: []byte("stale"), CreatedOn: base.Add(time.Minute)}).Error)
	require.NoError(t, f.db.Create(&fileVersion{ID: "V1", PTFile: "CF1", PTVersion: "7", PTData: []byte("current")}).Error)
	require.NoError(t, f.db.Create(&fileVersion{ID: "V2", PTFile: "CF2", PTVersion: "3", PTData: nil}).Error)

	repo := f.repo(0)
	files, err := repo.GetCandidateFiles(ctx, "Contract")
	require.NoError(t, err)
	require.Len(t, files, 1, "history rows without payload are not eligible")
	assert.Equal(t, "Contract", files[0].Entity)
	assert.Equal(t, "CF1", files[0].FileID)
	assert.Equal(t, "7", files[0].Version)
	assert.Equal(t, []byte("current"), files[0].Data)

	// the ledger is matched on the history version
	require.NoError(t, f.ledger.PersistEntries(ctx, files))
	files, err = repo.GetCandidateFiles(ctx, "Contract")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestVersionedQueryNeedsBasePayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&contractFile{ID: "CF1", ContractID: strPtr("C1"), Version: "base", Data: nil, CreatedOn: base}).Error)
	require.NoError(t, f.db.Create(&contractFile{ID: "CF2", ContractID: strPtr("C1"), Version: "base", Data: []byte("stale"), CreatedOn: base.Add(time.Minute)}).Error)
	require.NoError(t, f.db.Create(&fileVersion{ID: "V1", PTFile: "CF1", PTVersion: "7", PTData: []byte("current")}).Error)
	require.NoError(t, f.db.Create(&fileVersion{ID: "V2", PTFile: "CF2", PTVersion: "2", PTData: []byte("current")}).Error)

	files, err := f.repo(0).GetCandidateFiles(ctx, "Contract")
	require.NoError(t, err)
	if !assert.Equal(t, []string{"CF2"}, fileIDs(files)) {
		t.Errorf("a contract file without its own data must not be a candidate")
	}
}

func TestLongIdentitiesMatchLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := strings.Repeat("o", 300)
	version := strings.Repeat("v", 300)
	f.addAccountFile(t, strPtr(owner), "F1", version, []byte("one"), base)

	repo := f.repo(0)
	files, err := repo.GetCandidateFiles(ctx, "Account")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, owner, files[0].EntityID)
	assert.Equal(t, version, files[0].Version)

	require.NoError(t, f.ledger.PersistEntries(ctx, files))
	files, err = repo.GetCandidateFiles(ctx, "Account")
	require.NoError(t, err)
	assert.Empty(t, files, "identities longer than 100 characters are still excluded")
}

func TestNewRepositoryWithoutLogger(t *testing.T) {
	f := newFixture(t)
	f.addAccountFile(t, strPtr("A1"), "F1", "v1", []byte("one"), base)

	repo := NewRepository(f.db, nil, ledgerTable, 0, nil)
	files, err := repo.GetCandidateFiles(context.Background(), "Account")
	require.NoError(t, err)
	assert.Equal(t, []string{"F1"}, fileIDs(files))
}

func TestUnknownEntity(t *testing.T) {
	f := newFixture(t)

	_, err := f.repo(0).GetCandidateFiles(context.Background(), "Invoice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUnknownEntity))
	assert.Equal(t, errs.ErrorTypeRepository, errs.TypeOf(err))
	assert.True(t, f.log.HasError())
}

func TestQueryFailureIsRepositoryError(t *testing.T) {
	f := newFixture(t)

	// Contact is registered but the fixture has no ContactFile table
	_, err := f.repo(0).GetCandidateFiles(context.Background(), "Contact")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeRepository, errs.TypeOf(err))
	assert.False(t, errors.Is(err, errs.ErrUnknownEntity))
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"Account", "Contact", "Contract"}, r.Entities())

	r.Register(DirectQuery{Kind: "Lead", Table: "LeadAttachment", OwnerColumn: "LeadRef"})
	s, err := r.Lookup("Lead")
	require.NoError(t, err)
	owner, _, _ := s.Identity()
	assert.Equal(t, "CAST(f.LeadRef AS VARCHAR(450))", owner)

	_, err = r.Lookup("lead")
	assert.ErrorIs(t, err, errs.ErrUnknownEntity)
}
