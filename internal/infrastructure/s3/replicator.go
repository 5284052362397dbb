// Package s3 copies finished snapshot archives to an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/martijn/sitecalm/internal/metrics"
	"github.com/martijn/sitecalm/pkg/config"
)

// ObjectAPI is the subset of the S3 client the replicator needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Replicator struct {
	client ObjectAPI
	bucket string
	prefix string
	logger zerolog.Logger
}

// New builds a replicator with a client for cfg's endpoint.
func New(cfg config.OffsiteConfig, logger zerolog.Logger) *Replicator {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}

	return NewWithClient(s3.New(opts), cfg.Bucket, cfg.Prefix, logger)
}

func NewWithClient(client ObjectAPI, bucket, prefix string, logger zerolog.Logger) *Replicator {
	return &Replicator{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "offsite").Str("bucket", bucket).Logger(),
	}
}

// Key is the object key an archive filename is stored under.
func (r *Replicator) Key(filename string) string {
	if r.prefix == "" {
		return filename
	}
	return path.Join(r.prefix, filename)
}

// Upload copies the archive at localPath to the bucket under its base name.
func (r *Replicator) Upload(ctx context.Context, localPath string) (err error) {
	defer func() { metrics.OffsiteUploadsTotal.WithLabelValues("upload", metrics.Result(err)).Inc() }()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	key := r.Key(filepath.Base(localPath))
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	r.logger.Info().Str("key", key).Str("size", humanize.IBytes(uint64(info.Size()))).Msg("archive replicated")
	return nil
}

// Delete removes the replicated copy of filename. Missing objects are not an
// error on S3.
func (r *Replicator) Delete(ctx context.Context, filename string) (err error) {
	defer func() { metrics.OffsiteUploadsTotal.WithLabelValues("delete", metrics.Result(err)).Inc() }()

	key := r.Key(filename)
	_, err = r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	r.logger.Info().Str("key", key).Msg("replicated archive deleted")
	return nil
}
