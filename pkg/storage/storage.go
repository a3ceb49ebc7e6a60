package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"davmigrate/pkg/config"
	errs "davmigrate/pkg/errors"
	"davmigrate/pkg/logger"
	"davmigrate/pkg/models"
	"davmigrate/pkg/ratelimit"
)

// Uploader transmits one file to the remote store. Implementations must not
// modify file and must be safe to call again for the same file.
type Uploader interface {
	Put(ctx context.Context, file models.FileRecord, index, total int) error
}

// Connector is implemented by uploaders that can check their endpoint
// before a run starts.
type Connector interface {
	Connect(ctx context.Context) error
}

// ProgressReporter receives per-file progress. index is zero-based.
type ProgressReporter interface {
	UploadStarted(index, total int, file models.FileRecord)
	UploadFinished(index, total int, file models.FileRecord, err error)
}

// Options are shared by all backends
type Options struct {
	Limiter  ratelimit.Limiter
	Progress ProgressReporter
	Logger   logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Limiter == nil {
		o.Limiter = ratelimit.Unlimited{}
	}
	if o.Logger == nil {
		o.Logger = logger.NewNopLogger()
	}
	return o
}

// New returns the uploader selected by cfg.Backend
func New(cfg *config.StorageConfig, opts Options) (Uploader, error) {
	switch strings.ToLower(cfg.Backend) {
	case "webdav", "":
		return NewWebDAVUploader(cfg.WebDAV, cfg.Timeout, opts), nil
	case "minio", "s3":
		return NewMinioUploader(cfg.Minio, opts)
	default:
		return nil, errs.Config(fmt.Sprintf("unsupported storage backend %q", cfg.Backend), nil)
	}
}

// ContentInfo detects the content type and file extension of data
func ContentInfo(data []byte) (contentType, ext string) {
	mt := mimetype.Detect(data)
	return mt.String(), mt.Extension()
}

// RemotePath returns where file is stored below root
func RemotePath(root string, file models.FileRecord) string {
	_, ext := ContentInfo(file.Data)
	name := file.FileID + "_" + file.Version + ext
	return path.Join("/", root, file.Entity, file.EntityID, name)
}

// transfer wraps one backend write with throttling, progress reporting
// and logging. write receives the remote path.
func transfer(ctx context.Context, opts Options, root string, file models.FileRecord, index, total int, write func(remote string) error) error {
	remote := RemotePath(root, file)
	log := opts.Logger.WithFields(map[string]interface{}{
		"file":   file.Identity().String(),
		"remote": remote,
	})

	if err := opts.Limiter.Wait(ctx); err != nil {
		return errs.Transfer("wait for rate limit", err)
	}

	if opts.Progress != nil {
		opts.Progress.UploadStarted(index, total, file)
	}
	log.DebugWithFields("uploading file", map[string]interface{}{
		"position": fmt.Sprintf("%d/%d", index+1, total),
		"bytes":    file.Size(),
	})

	start := time.Now()
	err := ctx.Err()
	if err == nil {
		err = write(remote)
	}
	if err != nil {
		err = errs.Transfer("put "+remote, err)
		log.WithError(err).Error("upload failed")
	} else {
		log.DebugWithFields("file uploaded", map[string]interface{}{
			"elapsed": time.Since(start),
		})
	}

	if opts.Progress != nil {
		opts.Progress.UploadFinished(index, total, file, err)
	}
	return err
}
