package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"davmigrate/pkg/config"
	errs "davmigrate/pkg/errors"
	"davmigrate/pkg/models"
)

// objectStore is the part of *minio.Client the uploader needs
type objectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// MinioUploader writes files to an S3 compatible bucket
type MinioUploader struct {
	client objectStore
	bucket string
	prefix string
	opts   Options
}

// NewMinioUploader creates an uploader for the configured bucket
func NewMinioUploader(cfg config.MinioConfig, opts Options) (*MinioUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errs.Config("create minio client", err)
	}
	return newMinioUploader(client, cfg.Bucket, cfg.Prefix, opts), nil
}

func newMinioUploader(client objectStore, bucket, prefix string, opts Options) *MinioUploader {
	return &MinioUploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		opts:   opts.withDefaults(),
	}
}

// Connect checks that the bucket exists
func (u *MinioUploader) Connect(ctx context.Context) error {
	ok, err := u.client.BucketExists(ctx, u.bucket)
	if err == nil && !ok {
		err = fmt.Errorf("bucket %q does not exist", u.bucket)
	}
	if err != nil {
		u.opts.Logger.WithError(err).Error("minio connection failed")
		return errs.Transfer("connect to minio", err)
	}
	return nil
}

// Put stores the payload under the object key derived from the file
func (u *MinioUploader) Put(ctx context.Context, file models.FileRecord, index, total int) error {
	return transfer(ctx, u.opts, u.prefix, file, index, total, func(remote string) error {
		contentType, _ := ContentInfo(file.Data)
		_, err := u.client.PutObject(ctx, u.bucket, strings.TrimPrefix(remote, "/"),
			bytes.NewReader(file.Data), file.Size(),
			minio.PutObjectOptions{ContentType: contentType})
		return err
	})
}
