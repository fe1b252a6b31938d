// Package archive stores captured fingerprint images in S3-compatible object
// storage. It plugs into a forward.Tap as a Sink.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fpbridge/internal/forward"
	"fpbridge/pkg/types"
)

// Config configures the MinIO archive.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every object key.
	Prefix string
}

type objectPutter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIO writes event bitmaps to <prefix><kind>/<task_id>.<ext>.
type MinIO struct {
	bucket string
	prefix string
	client objectPutter
}

// New connects and makes sure the bucket exists.
func New(cfg Config) (*MinIO, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access key / secret key not configured")
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errExists := cli.BucketExists(ctx, cfg.Bucket)
		if errExists != nil || !exists {
			return nil, fmt.Errorf("create/check bucket %s: %w", cfg.Bucket, err)
		}
	}
	return newMinIO(cfg, cli), nil
}

func newMinIO(cfg Config, c objectPutter) *MinIO {
	return &MinIO{bucket: cfg.Bucket, prefix: cfg.Prefix, client: c}
}

// ObjectKey returns the key an event's bitmap is stored under.
func ObjectKey(prefix string, e types.Event) (key, contentType string) {
	ext, ct := "png", "image/png"
	if e.Kind == types.EventImageReceived {
		ext, ct = "jpg", "image/jpeg"
	}
	return fmt.Sprintf("%s%s/%s.%s", prefix, e.Kind, e.TaskID, ext), ct
}

// Send stores the bitmap of m. Events without image bytes are skipped.
func (s *MinIO) Send(ctx context.Context, m forward.Message, _ []byte) error {
	if len(m.Event.Bitmap) == 0 || m.Event.TaskID == "" {
		return nil
	}
	key, ct := ObjectKey(s.prefix, m.Event)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(m.Event.Bitmap), int64(len(m.Event.Bitmap)),
		minio.PutObjectOptions{
			ContentType:  ct,
			UserMetadata: map[string]string{"command": m.Command},
		})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *MinIO) Close() error { return nil }
