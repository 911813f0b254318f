// Package gcs holds the storage port used for receipt images and helpers
// for gs:// URIs.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// Upload writes r to bucket/object and returns its gs:// URI.
	Upload(ctx context.Context, bucket, object string, r io.Reader, contentType string) (string, error)

	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// URI builds a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + strings.TrimPrefix(object, "/")
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.jpg" → "file.jpg"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
