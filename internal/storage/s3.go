package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"ticketless/internal/config"
	"ticketless/internal/fileutil"
	"ticketless/internal/services"
)

// S3 stores blobs in a bucket. URLs are presigned when a TTL is configured,
// otherwise PublicBaseURL + key or the virtual-hosted bucket URL.
type S3 struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	region     string
	publicBase string
	presignTTL time.Duration
}

// NewS3 builds an S3 store. Static credentials are used when both halves are
// configured; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg config.Storage) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is empty")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
			},
		}))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return &S3{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		publicBase: cfg.PublicBaseURL,
		presignTTL: time.Duration(cfg.PresignTTLSeconds) * time.Second,
	}, nil
}

func (s *S3) Put(ctx context.Context, key, srcPath, contentType string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "storage", "key", "", err)
	}
	file, err := os.Open(srcPath)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "storage", "put", cleaned, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "storage", "put", cleaned, err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(cleaned),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", services.Wrap(services.ErrStorage, "storage", "put", cleaned, err)
	}
	return s.URL(ctx, cleaned)
}

func (s *S3) Fetch(ctx context.Context, key, dstPath string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return services.Wrap(services.ErrStorage, "storage", "key", "", err)
	}
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleaned),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return services.Wrap(services.ErrNotFound, "storage", "fetch", cleaned, err)
		}
		return services.Wrap(services.ErrStorage, "storage", "fetch", cleaned, err)
	}
	defer resp.Body.Close()

	written, err := fileutil.SaveStream(resp.Body, dstPath, 0)
	if err != nil {
		return services.Wrap(services.ErrStorage, "storage", "fetch", cleaned, err)
	}
	if resp.ContentLength != nil && *resp.ContentLength >= 0 && written != *resp.ContentLength {
		_ = os.Remove(dstPath)
		return services.Wrap(services.ErrStorage, "storage", "fetch", cleaned,
			fmt.Errorf("short read: %d of %d bytes: %w", written, *resp.ContentLength, io.ErrUnexpectedEOF))
	}
	return nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return services.Wrap(services.ErrStorage, "storage", "key", "", err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleaned),
	}); err != nil {
		return services.Wrap(services.ErrStorage, "storage", "delete", cleaned, err)
	}
	return nil
}

func (s *S3) URL(ctx context.Context, key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "storage", "key", "", err)
	}
	switch {
	case s.presignTTL > 0:
		req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(cleaned),
		}, s3.WithPresignExpires(s.presignTTL))
		if err != nil {
			return "", services.Wrap(services.ErrStorage, "storage", "presign", cleaned, err)
		}
		return req.URL, nil
	case s.publicBase != "":
		return joinURL(s.publicBase, cleaned), nil
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, cleaned), nil
	}
}

func (s *S3) Describe() string {
	return "s3://" + s.bucket
}
