package gcsuploader

import (
	"context"
	"fmt"
	"io"

	"github.com/dvloznov/finance-reconciler/internal/gcs"
)

// maxObjectBytes caps downloads handed to the extractor.
const maxObjectBytes = 20 << 20

// DownloadFile reads bucket/object into memory.
func (c *Client) DownloadFile(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxObjectBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	if len(data) > maxObjectBytes {
		return nil, fmt.Errorf("GCS object %s/%s exceeds %d bytes", bucket, object, maxObjectBytes)
	}
	return data, nil
}

// FetchFromGCS downloads the file bytes from the given GCS URI.
func (c *Client) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := gcs.ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}
	data, err := c.DownloadFile(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: %w", err)
	}
	return data, nil
}
