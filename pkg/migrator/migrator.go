package migrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"davmigrate/internal/uploader"
	errs "davmigrate/pkg/errors"
	"davmigrate/pkg/logger"
	"davmigrate/pkg/models"
	"davmigrate/pkg/storage"
	"davmigrate/pkg/ui"
)

// CandidateSource lists the files of an entity kind that still need uploading
type CandidateSource interface {
	GetCandidateFiles(ctx context.Context, entity string) ([]models.FileRecord, error)
}

// Ledger is the ledger store as seen by a run
type Ledger interface {
	uploader.Ledger
	HasEntries(ctx context.Context) (bool, error)
}

// BatchProgress is notified when an entity batch starts and ends
type BatchProgress interface {
	Reset(entity string, total int)
	Complete()
}

// Config wires a Migrator
type Config struct {
	Source   CandidateSource
	Ledger   Ledger
	Uploader storage.Uploader
	Progress BatchProgress
	Notifier *ui.Notifier
	Logger   logger.Logger
}

// Options control a single run
type Options struct {
	Entities []string
	// Resume continues from the existing ledger
	Resume bool
	// ForceRestart clears the ledger before the first batch
	ForceRestart bool
	ClearAfter   bool
	PersistAfter bool
}

// EntityReport is the outcome of one entity batch
type EntityReport struct {
	Entity     string
	Candidates int
	Uploaded   int
	State      string
	Duration   time.Duration
	Err        error
}

// Report summarizes a run
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Entities []EntityReport
}

// Uploaded returns the number of files that reached the remote store
func (r *Report) Uploaded() int {
	n := 0
	for _, e := range r.Entities {
		n += e.Uploaded
	}
	return n
}

// Succeeded reports whether every batch finished
func (r *Report) Succeeded() bool {
	for _, e := range r.Entities {
		if e.Err != nil {
			return false
		}
	}
	return true
}

// Migrator runs the configured entity kinds one after another, each as a
// single ordered batch.
type Migrator struct {
	source   CandidateSource
	ledger   Ledger
	uploader storage.Uploader
	progress BatchProgress
	notifier *ui.Notifier
	logger   logger.Logger
	newRunID func() string
}

// New creates a Migrator
func New(cfg Config) *Migrator {
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Migrator{
		source:   cfg.Source,
		ledger:   cfg.Ledger,
		uploader: cfg.Uploader,
		progress: cfg.Progress,
		notifier: cfg.Notifier,
		logger:   log,
		newRunID: uuid.NewString,
	}
}

// Run migrates opts.Entities in order and stops at the first entity whose
// batch fails. The returned report is never nil.
func (m *Migrator) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{RunID: m.newRunID(), Started: time.Now()}
	log := m.logger.WithField("run_id", report.RunID)

	if len(opts.Entities) == 0 {
		return report, errs.Config("no entities to migrate", nil)
	}

	if err := m.reconcileLedger(ctx, opts, log); err != nil {
		return report, err
	}

	log.InfoWithFields("starting migration", map[string]interface{}{
		"entities":      opts.Entities,
		"resume":        opts.Resume,
		"clear_after":   opts.ClearAfter,
		"persist_after": opts.PersistAfter,
	})

	var runErr error
	for _, entity := range opts.Entities {
		er := m.runEntity(ctx, entity, opts, log.WithField("entity", entity))
		report.Entities = append(report.Entities, er)
		if er.Err != nil {
			runErr = fmt.Errorf("migrate %s: %w", entity, er.Err)
			break
		}
	}
	report.Duration = time.Since(report.Started)

	fields := map[string]interface{}{
		"uploaded": report.Uploaded(),
		"elapsed":  report.Duration,
	}
	if runErr != nil {
		log.WithError(runErr).ErrorWithFields("migration stopped", fields)
		if m.notifier != nil {
			m.notifier.SendError("Migration failed", runErr.Error())
		}
		return report, runErr
	}

	log.InfoWithFields("migration completed", fields)
	if m.notifier != nil {
		m.notifier.SendSuccess("Migration complete", fmt.Sprintf("%d files uploaded", report.Uploaded()))
	}
	return report, nil
}

// reconcileLedger refuses to start over a non-empty ledger unless the
// caller asked to resume from it or to discard it.
func (m *Migrator) reconcileLedger(ctx context.Context, opts Options, log logger.Logger) error {
	hasEntries, err := m.ledger.HasEntries(ctx)
	if err != nil {
		log.WithError(err).Error("failed to inspect ledger")
		return err
	}
	if !hasEntries {
		return nil
	}

	switch {
	case opts.ForceRestart:
		if err := m.ledger.Clear(ctx); err != nil {
			log.WithError(err).Error("failed to clear ledger for restart")
			return err
		}
		ui.PrintInfo("Force restart", "ledger cleared")
		log.Info("ledger cleared for restart")
	case opts.Resume:
		ui.PrintInfo("Resuming", "files recorded in the ledger are skipped")
		log.Info("resuming from ledger")
	default:
		ui.PrintWarning("Previous run found in the ledger")
		ui.PrintInfo("  Use --resume", "to continue where it left off")
		ui.PrintInfo("  Use --force-restart", "to start fresh")
		log.Warn("ledger not empty, refusing to start")
		return errs.ErrLedgerNotEmpty
	}
	return nil
}

func (m *Migrator) runEntity(ctx context.Context, entity string, opts Options, log logger.Logger) EntityReport {
	start := time.Now()
	er := EntityReport{Entity: entity, State: uploader.StateIdle.String()}

	files, err := m.source.GetCandidateFiles(ctx, entity)
	if err != nil {
		er.Err = err
		er.Duration = time.Since(start)
		return er
	}
	er.Candidates = len(files)

	// an empty batch still goes through UploadAll so the checkpoint
	// policy applies
	showProgress := m.progress != nil && len(files) > 0
	if len(files) == 0 {
		log.Info("nothing to upload")
	} else {
		ui.PrintHighlight(fmt.Sprintf("\n[UPLOADING %d %s FILES]", len(files), entity))
	}
	if showProgress {
		m.progress.Reset(entity, len(files))
	}

	orch := uploader.New(m.uploader, m.ledger, log)
	_, err = orch.UploadAll(ctx, files, opts.ClearAfter, opts.PersistAfter)
	state, _ := orch.State()
	er.State = state.String()
	er.Duration = time.Since(start)

	if showProgress {
		m.progress.Complete()
	}

	if err != nil {
		er.Err = err
		var upErr *errs.UploadError
		if errors.As(err, &upErr) {
			er.Uploaded = upErr.Index
		} else {
			// every Put succeeded, only the checkpoint policy failed
			er.Uploaded = len(files)
		}
		return er
	}
	er.Uploaded = len(files)
	return er
}
