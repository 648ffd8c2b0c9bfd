package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/lostfound/chatsync/internal/chat"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const publicURLPrefix = "https://storage.googleapis.com/"

// GCS uploads chat attachments to a Google Cloud Storage bucket. It is an
// alternative to the backend's POST /files endpoint.
type GCS struct {
	client   *storage.Client
	bucket   string
	category string
	now      func() time.Time
	logger   *zap.Logger
}

// NewGCS creates a GCS-backed file store. credentialsPath may be empty to
// use application default credentials.
func NewGCS(ctx context.Context, bucket, category, credentialsPath string, logger *zap.Logger) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCS{client: client, bucket: bucket, category: category, now: time.Now, logger: logger}, nil
}

// Upload writes the file to the bucket and returns its public URL.
func (g *GCS) Upload(ctx context.Context, f chat.Upload, uploadedBy string) (string, error) {
	name := objectName(g.category, f, g.now())
	obj := g.client.Bucket(g.bucket).Object(name)

	wc := obj.NewWriter(ctx)
	wc.ContentType = f.ContentType
	wc.CacheControl = "public, max-age=86400"
	wc.Metadata = map[string]string{
		"uploadedBy": uploadedBy,
		"fileName":   f.FileName,
	}
	if _, err := io.Copy(wc, bytes.NewReader(f.Data)); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("copy to gcs: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer: %w", err)
	}

	g.logger.Info("attachment uploaded",
		zap.String("bucket", g.bucket),
		zap.String("object", name),
		zap.Int("bytes", len(f.Data)),
	)
	return publicURLPrefix + g.bucket + "/" + name, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// objectName builds "<category>/<uuid>-<yyyymmddhhmmss><ext>". The extension is
// taken from the original file name, then from the content type.
func objectName(category string, f chat.Upload, now time.Time) string {
	ext := strings.ToLower(path.Ext(f.FileName))
	if ext == "" {
		switch f.ContentType {
		case "image/jpeg", "image/jpg":
			ext = ".jpg"
		case "image/png":
			ext = ".png"
		case "image/gif":
			ext = ".gif"
		case "application/pdf":
			ext = ".pdf"
		default:
			ext = ".bin"
		}
	}
	return fmt.Sprintf("%s/%s-%s%s", strings.Trim(category, "/"), uuid.New().String(), now.UTC().Format("20060102150405"), ext)
}
