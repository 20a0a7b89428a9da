package radwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ArchiverConfig configures the S3 segment archiver.
type ArchiverConfig struct {
	Bucket   string
	Region   string
	Endpoint string // For S3-compatible services (MinIO, etc.)
	// AccessKeyID for authentication. Prefer using IAM roles, instance
	// profiles, or environment variables (AWS_ACCESS_KEY_ID,
	// AWS_SECRET_ACCESS_KEY) instead of setting these directly. DO NOT
	// commit credentials to source control.
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // Key prefix for all uploaded segments
	UsePathStyle    bool   // Use path-style addressing

	// MaxRetries is the max upload attempts per segment (default: 3).
	MaxRetries int

	// Logger for upload events. Defaults to zap.NewNop().
	Logger *zap.Logger
}

// SegmentArchiver uploads recorded session segments to S3 so sessions can
// be replayed off-device. Uploads are independent of ingestion; a failed
// upload leaves the local segment in place.
type SegmentArchiver struct {
	client *s3.Client
	config ArchiverConfig
	logger *zap.Logger
}

// NewSegmentArchiver creates an archiver.
func NewSegmentArchiver(ctx context.Context, cfg ArchiverConfig) (*SegmentArchiver, error) {
	if cfg.Bucket == "" {
		return nil, newConfigError("bucket", "archive bucket required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &SegmentArchiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
		logger: cfg.Logger,
	}, nil
}

// ArchiveSegment uploads one segment file. The object key is the prefix
// plus the file's base name.
func (a *SegmentArchiver) ArchiveSegment(ctx context.Context, path string) error {
	key := a.config.Prefix + filepath.Base(path)

	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open segment: %w", err)
		}
		_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.config.Bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		_ = f.Close()
		if err == nil {
			a.logger.Info("segment archived",
				zap.String("segment", path),
				zap.String("key", key))
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("S3 put object failed after %d attempts: %w", a.config.MaxRetries, lastErr)
}

// ArchiveDir uploads every segment file in a directory, skipping the
// given active segment. Returns the keys uploaded.
func (a *SegmentArchiver) ArchiveDir(ctx context.Context, dir, activeSegment string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segment dir: %w", err)
	}

	var uploaded []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if path == activeSegment {
			continue
		}
		if err := a.ArchiveSegment(ctx, path); err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, a.config.Prefix+entry.Name())
	}
	return uploaded, nil
}
