package droplet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/platinummonkey/stager/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MetadataChecksum is the object metadata key holding the droplet sha256
const MetadataChecksum = "checksum-sha256"

// S3Config configures an S3Store
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string // for MinIO and other S3-compatible stores
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store keeps droplets in an S3 bucket
type S3Store struct {
	client  s3API
	presign presigner
	bucket  string
	tracer  trace.Tracer
}

// NewS3Store creates an S3Store. Static credentials are used when both keys
// are set, otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Store(client, s3.NewPresignClient(client), cfg.Bucket), nil
}

func newS3Store(client s3API, p presigner, bucket string) *S3Store {
	return &S3Store{
		client:  client,
		presign: p,
		bucket:  bucket,
		tracer:  observability.Tracer(),
	}
}

func (s *S3Store) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "droplet.s3."+op, trace.WithAttributes(
		attribute.String("s3.bucket", s.bucket),
		attribute.String("s3.key", key),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Put implements Store
func (s *S3Store) Put(ctx context.Context, key string, a *Archive, meta map[string]string) (*Object, error) {
	ctx, span := s.startSpan(ctx, "put", key)
	defer span.End()
	span.SetAttributes(attribute.Int("droplet.size", len(a.Data)))

	metadata := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		metadata[k] = v
	}
	metadata[MetadataChecksum] = a.Sha256

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(a.Data),
		ContentType: aws.String(ContentType),
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fail(span, fmt.Errorf("%w: %v", ErrUploadFailed, err))
	}

	return &Object{Key: key, Sha256: a.Sha256, Size: int64(len(a.Data)), Metadata: meta}, nil
}

// Get implements Store
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := s.startSpan(ctx, "get", key)
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, fail(span, fmt.Errorf("%w: %s", ErrDropletNotFound, key))
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("%w: %v", ErrDownloadFailed, err))
	}
	return out.Body, nil
}

// Exists implements Store
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := s.startSpan(ctx, "head", key)
	defer span.End()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fail(span, fmt.Errorf("failed to check droplet %s: %w", key, err))
	}
	return true, nil
}

// Delete implements Store
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, span := s.startSpan(ctx, "delete", key)
	defer span.End()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fail(span, fmt.Errorf("failed to delete droplet %s: %w", key, err))
	}
	return nil
}

// URL returns a presigned GET URL valid for ttl
func (s *S3Store) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return req.URL, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
