// Package s3store presigns briefing photo transfers against an S3 bucket.
package s3store

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
)

const defaultPresignExpiry = 15 * time.Minute

type Storage struct {
	bucket    string
	expiry    time.Duration
	presigner *s3.PresignClient
	nowFunc   func() time.Time
}

var _ briefing.PhotoStorage = (*Storage)(nil)

// NewStorage builds the S3 client from conf.Storage. Static keys are optional;
// the default AWS credential chain is used without them.
func NewStorage(ctx context.Context, conf *core.Config) (*Storage, error) {
	sc := conf.Storage
	if sc.Bucket == "" {
		return nil, errors.New("storage bucket is not configured")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(sc.Region)}
	if sc.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AccessKeyID, sc.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS SDK config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			// S3 compatible storage (LocalStack, MinIO, Supabase storage)
			o.BaseEndpoint = aws.String(sc.Endpoint)
			o.UsePathStyle = true
		}
	})

	expiry := sc.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &Storage{
		bucket:    sc.Bucket,
		expiry:    expiry,
		presigner: s3.NewPresignClient(client),
		nowFunc:   time.Now,
	}, nil
}

func (s *Storage) PresignUpload(ctx context.Context, key, contentType string) (string, time.Time, error) {
	expiresAt := s.nowFunc().UTC().Add(s.expiry)
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "presigning put object")
	}
	return req.URL, expiresAt, nil
}

func (s *Storage) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", errors.Wrap(err, "presigning get object")
	}
	return req.URL, nil
}
