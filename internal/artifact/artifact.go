// Package artifact stores fetch artifacts (raw HTML, page screenshots,
// cached product images) in an S3-compatible object store, keyed by the
// §6 object-store path contract. "Disabled" means every write is a
// no-op, across the three named buckets this system writes.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/falense/PriceTracker-sub001/internal/config"
	"github.com/falense/PriceTracker-sub001/internal/urlnorm"
)

const (
	bucketArtifacts   = "artifacts"   // HTML
	bucketScreenshots = "screenshots" // PNG
	bucketImages      = "images"      // cached product images
)

// Store writes fetch artifacts to the configured S3-compatible bucket set.
// A disabled Store (no bucket/endpoint configured) makes every write a
// silent no-op (New logs the disabled state once), matching §4.10 step 4's "storage failure is logged but
// non-fatal" — callers never need to branch on Enabled themselves.
type Store struct {
	client  *s3.Client
	enabled bool
	logger  *slog.Logger
}

// New constructs a Store. An empty cfg (Enabled=false) returns a disabled
// Store rather than an error, since object storage is optional (§1 scope).
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		logger.Info("artifact store disabled - no bucket configured")
		return &Store{enabled: false, logger: logger}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("artifact: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	logger.Info("artifact store initialized", "endpoint", cfg.Endpoint, "region", cfg.Region)
	return &Store{client: client, enabled: true, logger: logger}, nil
}

// Enabled reports whether the store is backed by a real bucket.
func (s *Store) Enabled() bool { return s.enabled }

// PutHTML stores the rendered page HTML at the §6 artifacts-bucket path.
func (s *Store) PutHTML(ctx context.Context, pageURL, html string) error {
	key, err := urlnorm.ArtifactPath(pageURL, "html")
	if err != nil {
		return fmt.Errorf("artifact: html path: %w", err)
	}
	return s.put(ctx, bucketArtifacts, key, []byte(html), "text/html; charset=utf-8")
}

// PutScreenshot stores a PNG screenshot at the §6 screenshots-bucket path.
func (s *Store) PutScreenshot(ctx context.Context, pageURL string, png []byte) error {
	key, err := urlnorm.ArtifactPath(pageURL, "png")
	if err != nil {
		return fmt.Errorf("artifact: png path: %w", err)
	}
	return s.put(ctx, bucketScreenshots, key, png, "image/png")
}

// PutImage caches a product image at the §6 images-bucket path. ext is the
// file extension without a leading dot (e.g. "jpg", "png").
func (s *Store) PutImage(ctx context.Context, imageURL string, data []byte, ext, contentType string) error {
	key := urlnorm.ImagePath(imageURL, ext)
	return s.put(ctx, bucketImages, key, data, contentType)
}

func (s *Store) put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if !s.enabled {
		return nil
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("artifact: put %s/%s: %w", bucket, key, err)
	}
	s.logger.Debug("artifact stored", "bucket", bucket, "key", key, "size_bytes", len(body))
	return nil
}
