// Package s3 implements the FileStorePort (spec.md §4.8) on Amazon S3 or an
// S3-compatible endpoint, as an alternative backend to blobstore/filesystem
// for deployments without a shared local disk. Grounded on the S3 client
// construction and PutObject/GetObject/DeleteObject call shapes in
// marmos91-dittofs's pkg/store/content/s3 package, trimmed to Cinder's
// write-once/read-once/delete blob lifecycle (no multipart upload, range
// reads, or write-at — a sealed ciphertext blob is never modified in
// place).
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/ids"
)

// Config holds the parameters needed to build a Store.
type Config struct {
	Endpoint        string // non-empty for S3-compatible services (e.g. MinIO)
	Region          string
	Bucket          string
	KeyPrefix       string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Store implements the FileStorePort backed by an S3 bucket.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// New builds an S3 client from cfg and verifies bucket access with a
// HeadBucket call.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 blobstore: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, domain.ErrFileStorageError
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, domain.ErrFileStorageError
	}
	return &Store{client: client, bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix}, nil
}

func (s *Store) key(linkID ids.LinkID) string {
	return s.keyPrefix + linkID.String()
}

// Write uploads the ciphertext read from r under a key derived from
// linkID, returning the PathReference (the S3 object key) to persist
// alongside the SecureFile row.
func (s *Store) Write(ctx context.Context, linkID ids.LinkID, r io.Reader) (domain.PathReference, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", domain.ErrFileStorageError
	}
	key := s.key(linkID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", domain.ErrFileStorageError
	}
	return domain.PathReference(key), nil
}

// Open returns a reader for the object at ref.
func (s *Store) Open(ctx context.Context, ref domain.PathReference) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(ref)),
	})
	if err != nil {
		return nil, domain.ErrFileNotFound
	}
	return out.Body, nil
}

// Delete force-removes the object at ref. S3's DeleteObject is idempotent
// by design: deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, ref domain.PathReference) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(ref)),
	})
	if err != nil {
		return domain.ErrFileStorageError
	}
	return nil
}

// List returns every object key under keyPrefix, for the reconciliation
// sweep's orphan detection.
func (s *Store) List(ctx context.Context) ([]domain.PathReference, error) {
	var out []domain.PathReference
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, domain.ErrFileStorageError
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				out = append(out, domain.PathReference(*obj.Key))
			}
		}
	}
	return out, nil
}
