package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/finance-reconciler/internal/gcs"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// Upload writes r to bucket/object and returns the gs:// URI of the new
// object.
func (c *Client) Upload(ctx context.Context, bucket, object string, r io.Reader, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	return gcs.URI(bucket, object), nil
}

// UploadFile uploads a local file to a GCS bucket under the given object name.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
func (c *Client) UploadFile(ctx context.Context, bucket, object, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	return c.Upload(ctx, bucket, object, f, ContentTypeFor(filePath))
}

// ReceiptObjectName returns a unique object name for an uploaded receipt,
// partitioned by upload month: receipts/2025/03/<uuid>-<name>.
func ReceiptObjectName(now time.Time, filename string) string {
	base := strings.ToLower(filepath.Base(filename))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	if base == "" || base == "." || base == "-" {
		base = "receipt"
	}
	return path.Join("receipts", now.UTC().Format("2006/01"), uuid.NewString()+"-"+base)
}

// ContentTypeFor guesses an image content type from a file extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
