// Package s3ds lists and reads access-log objects under an S3 prefix, which
// is where S3 server access logging delivers them.
package s3ds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"auditlog/internal/datasource"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API is the subset of the S3 client used here. *s3.Client satisfies it.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config locates the log objects and, optionally, overrides client settings.
type Config struct {
	Bucket string
	Prefix string

	// Region, Endpoint and static credentials are optional; empty values fall
	// back to the default AWS configuration chain.
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// ErrNoBucket is returned when Config.Bucket is empty.
var ErrNoBucket = errors.New("s3ds: bucket is required")

// NewClient builds an S3 client from cfg using the default AWS configuration
// chain plus any explicit overrides.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3ds: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Prefix lists the objects under one bucket prefix.
type Prefix struct {
	api    API
	bucket string
	prefix string
}

// NewPrefix returns a lister over bucket/prefix.
func NewPrefix(api API, bucket, prefix string) (*Prefix, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	return &Prefix{api: api, bucket: bucket, prefix: prefix}, nil
}

// List implements datasource.Lister. Entry names are the object keys with
// the prefix removed. Zero-byte "folder" markers are skipped.
func (p *Prefix) List(ctx context.Context) ([]datasource.Entry, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(p.bucket)}
	if p.prefix != "" {
		in.Prefix = aws.String(p.prefix)
	}

	var entries []datasource.Entry
	pager := s3.NewListObjectsV2Paginator(p.api, in)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3ds: list s3://%s/%s: %w", p.bucket, p.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			entries = append(entries, datasource.Entry{
				Name:   strings.TrimPrefix(key, p.prefix),
				Size:   aws.ToInt64(obj.Size),
				Source: &Object{api: p.api, bucket: p.bucket, key: key},
			})
		}
	}
	if entries == nil {
		entries = []datasource.Entry{}
	}
	datasource.SortEntries(entries)
	return entries, nil
}

// Object reads a single S3 object, decompressing .gz and .zst keys.
type Object struct {
	api    API
	bucket string
	key    string
}

// NewObject returns a source for one object.
func NewObject(api API, bucket, key string) *Object {
	return &Object{api: api, bucket: bucket, key: key}
}

// Key returns the object key.
func (o *Object) Key() string { return o.key }

// Open implements datasource.Source.
func (o *Object) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := o.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3ds: get s3://%s/%s: %w", o.bucket, o.key, err)
	}
	return datasource.Decompress(o.key, out.Body)
}
