// Package gcsuploader stores receipt images in Google Cloud Storage and
// reads them back for extraction.
package gcsuploader

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/finance-reconciler/internal/gcs"
)

// StorageService is re-exported from the shared package.
type StorageService = gcs.StorageService

// Client is the concrete StorageService backed by a storage.Client.
type Client struct {
	client *storage.Client
}

// NewClient creates a storage client using Application Default Credentials.
func NewClient(ctx context.Context) (*Client, error) {
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Client{client: c}, nil
}

// NewClientWithStorage wraps an existing storage client.
func NewClientWithStorage(c *storage.Client) *Client {
	return &Client{client: c}
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ StorageService = (*Client)(nil)
