// Package s3 stores blobs in a single S3 / MinIO bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tbtr/internal/blob/core"
)

// DefaultRegion is used when the configuration names none.
const DefaultRegion = "us-east-1"

// Store implements core.Store on an S3-compatible bucket. Keys map to object keys
// directly.
type Store struct {
	client *s3.Client
	bucket string
}

// Config holds explicit construction parameters. Empty credentials fall back to the
// default AWS credential chain.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string // optional; custom endpoint such as MinIO
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
	// HTTPClient replaces the transport, mostly for tests.
	HTTPClient aws.HTTPClient
}

// Environment variables:
//
//	TBTR_BLOB_DRIVER=s3
//	TBTR_BLOB_S3_BUCKET=<bucket> (required)
//	TBTR_BLOB_S3_REGION=<region> (default us-east-1)
//	TBTR_BLOB_S3_ENDPOINT=<url> (optional, for MinIO)
//	TBTR_BLOB_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates an S3 blob store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// OpenFromEnv constructs an S3 store from the process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	bucket := os.Getenv("TBTR_BLOB_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("TBTR_BLOB_S3_BUCKET required for s3 driver")
	}
	return New(ctx, Config{
		Bucket:          bucket,
		Region:          os.Getenv("TBTR_BLOB_S3_REGION"),
		Endpoint:        os.Getenv("TBTR_BLOB_S3_ENDPOINT"),
		PathStyle:       strings.EqualFold(os.Getenv("TBTR_BLOB_S3_PATH_STYLE"), "true"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
	})
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

// Put implements core.Store. S3 has no create-only write, so existence is checked
// with a HEAD first.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	_, err := s.Head(ctx, key)
	switch {
	case err == nil:
		return core.Info{}, fmt.Errorf("%s: %w", key, core.ErrExists)
	case !errors.Is(err, core.ErrNotFound):
		return core.Info{}, err
	}
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: r}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return core.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	return s.Head(ctx, key)
}

// Get implements core.Store.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return core.Info{}, nil, mapError(key, err)
	}
	info := objectInfo(key, aws.ToInt64(out.ContentLength), out.ContentType, out.ETag, out.Metadata, out.LastModified)
	return info, out.Body, nil
}

// Head implements core.Store.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return core.Info{}, mapError(key, err)
	}
	return objectInfo(key, aws.ToInt64(out.ContentLength), out.ContentType, out.ETag, out.Metadata, out.LastModified), nil
}

// Delete implements core.Store.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.Head(ctx, key); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, mapError(key, err)
	}
	return true, nil
}

// List implements core.Store, following continuation tokens.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var (
		infos []core.Info
		token *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix, ContinuationToken: token})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			infos = append(infos, core.Info{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func mapError(key string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return err
}

func objectInfo(key string, size int64, contentType, etag *string, md map[string]string, lastModified *time.Time) core.Info {
	lm := time.Now().UTC()
	if lastModified != nil {
		lm = *lastModified
	}
	return core.Info{
		Key:          key,
		Size:         size,
		ContentType:  aws.ToString(contentType),
		ETag:         strings.Trim(aws.ToString(etag), "\""),
		Metadata:     md,
		LastModified: lm,
	}
}
