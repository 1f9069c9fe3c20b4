package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// FolderRecordings is the default S3 prefix for recording objects.
const FolderRecordings = "recordings"

// ErrObjectNotFound is returned by HeadObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// S3Config holds S3 client configuration.
type S3Config struct {
	Endpoint             string
	Region               string
	Bucket               string
	AccessKeyID          string
	SecretAccessKey      string
	ForcePathStyle       bool
	PresignExpireMinutes int
}

// ObjectInfo is the subset of object metadata the service cares about.
type ObjectInfo struct {
	Size         int64
	ContentType  string
	LastModified time.Time
}

// S3 provides the recordings bucket operations: metadata lookups, presigned downloads, deletes.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	cfg     S3Config
	logger  *zap.Logger
}

// NewS3 creates an S3 client. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("bucket", cfg.Bucket))
	} else {
		logger.Warn("S3 client using default credential chain (S3_KEY_ID/S3_KEY_SECRET not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Bucket returns the recordings bucket name.
func (s *S3) Bucket() string { return s.cfg.Bucket }

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// GeneratePresignedDownloadURL returns a pre-signed GET URL for download.
func (s *S3) GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// HeadObject returns object metadata, or ErrObjectNotFound.
func (s *S3) HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("head object: %w", err)
	}
	info := &ObjectInfo{ContentType: aws.ToString(out.ContentType)}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

// RecordingFilePath returns the object key egress should write for a room recording:
// {prefix}/{RFC3339 UTC time}-{room name}.mp4.
func RecordingFilePath(prefix, roomName string, at time.Time) string {
	if prefix == "" {
		prefix = FolderRecordings
	}
	name := fmt.Sprintf("%s-%s.mp4", at.UTC().Format(time.RFC3339), roomName)
	return path.Join(prefix, name)
}

// ParseLocation splits an artifact location into bucket and key. Accepted forms:
//
//	s3://bucket/key
//	https://bucket.s3.region.amazonaws.com/key
//	https://bucket.s3.amazonaws.com/key
//	https://endpoint/bucket/key (path style; requires fallbackBucket to match the first segment)
func ParseLocation(location, fallbackBucket string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse location: %w", err)
	}
	p := strings.TrimPrefix(u.Path, "/")
	switch u.Scheme {
	case "s3":
		if u.Host == "" || p == "" {
			return "", "", fmt.Errorf("incomplete s3 location %q", location)
		}
		return u.Host, p, nil
	case "http", "https":
		if i := strings.Index(u.Host, ".s3."); i > 0 {
			return u.Host[:i], p, nil
		}
		if i := strings.Index(u.Host, ".s3-"); i > 0 {
			return u.Host[:i], p, nil
		}
		if fallbackBucket != "" && strings.HasPrefix(p, fallbackBucket+"/") {
			return fallbackBucket, strings.TrimPrefix(p, fallbackBucket+"/"), nil
		}
	}
	return "", "", fmt.Errorf("unsupported location %q", location)
}
