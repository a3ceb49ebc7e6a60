// Package storage puts file payloads into the remote store.
//
// Two backends implement Uploader:
//   - WebDAVUploader writes to a WebDAV collection such as Nextcloud
//   - MinioUploader writes to an S3 compatible bucket
//
// Both place a file at <root>/<Entity>/<EntityID>/<FileID>_<Version><ext>,
// where the extension is detected from the payload. Uploads are throttled
// by an optional rate limiter and reported to an optional ProgressReporter.
// Nothing in this package retries a failed upload.
//
// Usage:
//
//	up, err := storage.New(&cfg.Storage, storage.Options{
//	    Limiter:  ratelimit.PerMinute(cfg.Storage.RequestsPerMinute),
//	    Progress: display,
//	    Logger:   log,
//	})
//	if err != nil {
//	    return err
//	}
//	err = up.Put(ctx, file, i, len(files))
package storage
