// Package uploader drives the ordered upload of a batch of files and keeps
// the ledger in step with what reached the remote store.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	errs "davmigrate/pkg/errors"
	"davmigrate/pkg/logger"
	"davmigrate/pkg/models"
	"davmigrate/pkg/storage"
)

// State is a step of a single UploadAll run
type State int

const (
	StateIdle State = iota
	StateUploading
	StateFailed
	StatePartialCheckpointed
	StateAborted
	StateAllUploaded
	StateCheckpointPolicyApplied
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateFailed:
		return "failed"
	case StatePartialCheckpointed:
		return "partial_checkpointed"
	case StateAborted:
		return "aborted"
	case StateAllUploaded:
		return "all_uploaded"
	case StateCheckpointPolicyApplied:
		return "checkpoint_policy_applied"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateAborted || s == StateDone
}

// Ledger is the part of the ledger store the orchestrator writes to
type Ledger interface {
	Clear(ctx context.Context) error
	PersistEntries(ctx context.Context, files []models.FileRecord) error
}

// Orchestrator uploads files one at a time in list order. It is not safe
// for concurrent UploadAll calls; State and Progress may be read at any time.
type Orchestrator struct {
	uploader storage.Uploader
	ledger   Ledger
	log      logger.Logger

	mu       sync.Mutex
	state    State
	index    int
	progress int
}

// New creates an Orchestrator
func New(up storage.Uploader, ledger Ledger, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Orchestrator{
		uploader: up,
		ledger:   ledger,
		log:      log,
	}
}

// State returns the last reached state and, for uploading and failed, the
// index of the file concerned.
func (o *Orchestrator) State() (State, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.index
}

// Progress returns how many uploads were attempted in the current run
func (o *Orchestrator) Progress() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

func (o *Orchestrator) transition(s State, index int) {
	o.mu.Lock()
	o.state = s
	o.index = index
	o.mu.Unlock()
}

// UploadAll uploads files in order and stops at the first failure.
//
// On failure every file before the failed one is written to the ledger and
// the upload error is returned. If that write fails too, both errors are
// returned joined. On success the ledger is cleared and/or filled with the
// whole batch according to the two flags.
func (o *Orchestrator) UploadAll(ctx context.Context, files []models.FileRecord, clearLedgerAfter, persistUploadedAfter bool) (bool, error) {
	o.mu.Lock()
	o.state, o.index, o.progress = StateIdle, 0, 0
	o.mu.Unlock()

	start := time.Now()
	if err := o.uploadInOrder(ctx, files); err != nil {
		var upErr *errs.UploadError
		if !errors.As(err, &upErr) {
			o.transition(StateAborted, 0)
			return false, err
		}
		return false, o.checkpointPartial(ctx, files, upErr)
	}
	o.transition(StateAllUploaded, len(files))

	o.log.InfoWithFields("batch uploaded", map[string]interface{}{
		"files":   len(files),
		"elapsed": time.Since(start),
	})

	if err := o.applyPolicy(ctx, files, clearLedgerAfter, persistUploadedAfter); err != nil {
		o.transition(StateAborted, len(files))
		return false, err
	}
	o.transition(StateCheckpointPolicyApplied, len(files))
	o.transition(StateDone, len(files))
	return true, nil
}

// uploadInOrder returns an *errors.UploadError for the first file that
// could not be put.
func (o *Orchestrator) uploadInOrder(ctx context.Context, files []models.FileRecord) error {
	total := len(files)
	for i, file := range files {
		o.transition(StateUploading, i)
		err := o.uploader.Put(ctx, file, i, total)

		o.mu.Lock()
		o.progress++
		o.mu.Unlock()

		if err != nil {
			o.transition(StateFailed, i)
			return &errs.UploadError{Index: i, File: file, Err: err}
		}
	}
	return nil
}

func (o *Orchestrator) checkpointPartial(ctx context.Context, files []models.FileRecord, upErr *errs.UploadError) error {
	log := o.log.WithFields(map[string]interface{}{
		"failed_index": upErr.Index,
		"file":         upErr.File.Identity().String(),
	})
	log.WithError(upErr.Err).Error("upload failed, saving checkpoint")

	pos := models.IndexOf(files, upErr.File.Identity())
	if pos < 0 {
		pos = upErr.Index
	}
	uploaded := files[:pos]

	if len(uploaded) > 0 {
		// record what reached the store even if the run was cancelled
		if err := o.ledger.PersistEntries(context.WithoutCancel(ctx), uploaded); err != nil {
			log.WithError(err).Error("failed to save checkpoint after upload failure")
			o.transition(StateAborted, upErr.Index)
			return errors.Join(upErr, err)
		}
	}

	log.InfoWithFields("checkpoint saved", map[string]interface{}{
		"uploaded": len(uploaded),
		"skipped":  len(uploaded) - len(models.FilterRequired(uploaded)),
	})
	o.transition(StatePartialCheckpointed, upErr.Index)
	o.transition(StateAborted, upErr.Index)
	return upErr
}

func (o *Orchestrator) applyPolicy(ctx context.Context, files []models.FileRecord, clearLedgerAfter, persistUploadedAfter bool) error {
	if clearLedgerAfter {
		if err := o.ledger.Clear(ctx); err != nil {
			o.log.WithError(err).Error("failed to clear ledger after upload")
			return err
		}
	}
	if persistUploadedAfter {
		if err := o.ledger.PersistEntries(ctx, files); err != nil {
			o.log.WithError(err).Error("failed to save uploaded files to ledger")
			return err
		}
		o.log.InfoWithFields("uploaded files saved to ledger", map[string]interface{}{
			"files":   len(files),
			"skipped": len(files) - len(models.FilterRequired(files)),
		})
	}
	return nil
}
