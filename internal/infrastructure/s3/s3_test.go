package s3

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(context.Background(), Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("StaticCredentials", func(t *testing.T) {
		store, err := New(context.Background(), Config{
			Bucket:          "media",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
			Endpoint:        "http://localhost:9000",
			UsePathStyle:    true,
			KeyPrefix:       "/uploads/",
		})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9000/media", store.baseURL)
		assert.Equal(t, "uploads", store.prefix)
	})
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com", publicBaseURL(Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"}))
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com", publicBaseURL(Config{Bucket: "b", Region: "eu-west-1"}))
}

func TestObjectKey(t *testing.T) {
	store := &BlobStore{prefix: "uploads"}
	key := store.objectKey("Photo.JPG")
	assert.True(t, strings.HasPrefix(key, "uploads/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
	assert.NotEqual(t, key, store.objectKey("Photo.JPG"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
}
