package storage

import (
	"context"
	"path"
	"time"

	"github.com/studio-b12/gowebdav"

	"davmigrate/pkg/config"
	errs "davmigrate/pkg/errors"
	"davmigrate/pkg/models"
)

// WebDAVUploader writes files to a WebDAV server
type WebDAVUploader struct {
	client *gowebdav.Client
	root   string
	opts   Options
}

// NewWebDAVUploader creates an uploader for the configured endpoint.
// A zero timeout keeps the client's default.
func NewWebDAVUploader(cfg config.WebDAVConfig, timeout time.Duration, opts Options) *WebDAVUploader {
	client := gowebdav.NewClient(cfg.URL, cfg.Username, cfg.Password)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &WebDAVUploader{
		client: client,
		root:   cfg.RootPath,
		opts:   opts.withDefaults(),
	}
}

// Connect checks that the server is reachable and accepts the credentials
func (u *WebDAVUploader) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := u.client.Connect(); err != nil {
		u.opts.Logger.WithError(err).Error("webdav connection failed")
		return errs.Transfer("connect to webdav server", err)
	}
	return nil
}

// Put creates the parent collection and writes the payload
func (u *WebDAVUploader) Put(ctx context.Context, file models.FileRecord, index, total int) error {
	return transfer(ctx, u.opts, u.root, file, index, total, func(remote string) error {
		if err := u.client.MkdirAll(path.Dir(remote), 0755); err != nil {
			return err
		}
		return u.client.Write(remote, file.Data, 0644)
	})
}

// Read returns the stored payload at remote
func (u *WebDAVUploader) Read(remote string) ([]byte, error) {
	return u.client.Read(remote)
}
