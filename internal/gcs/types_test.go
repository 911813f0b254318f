package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://receipts-prod/2025/03/abc-lulu.jpg")
	require.NoError(t, err)
	assert.Equal(t, "receipts-prod", bucket)
	assert.Equal(t, "2025/03/abc-lulu.jpg", object)

	for _, bad := range []string{"", "s3://bucket/key", "gs://bucket", "gs://bucket/", "gs:///key"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestURIRoundTrip(t *testing.T) {
	uri := URI("receipts", "/2025/01/x.png")
	assert.Equal(t, "gs://receipts/2025/01/x.png", uri)
	assert.Equal(t, "x.png", FilenameFromURI(uri))
	assert.Equal(t, "bucket-only", FilenameFromURI("gs://bucket-only"))
}
