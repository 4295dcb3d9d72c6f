package services_test

import (
	"context"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"tryonapi/services"
	"tryonapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadToPresignedURL(t *testing.T) {
	var contentType string
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		contentType = r.Header.Get("Content-Type")
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	aws := &services.AWSService{HTTPClient: server.Client()}
	content := test.PNGBytes(4, 4, color.White)

	_, status, err := aws.UploadToPresignedURL(context.Background(), "bucket", server.URL+"/tryons/a.png", content)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, content, received)

	_, _, err = aws.UploadToPresignedURL(context.Background(), "bucket", server.URL+"/notes.txt", []byte("plain text"))
	assert.ErrorContains(t, err, "unsupported file type")
}

func TestReadFileFromUrl(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	content, err := services.ReadFileFromUrl(context.Background(), server.Client(), server.URL+"/photo.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), content)

	_, err = services.ReadFileFromUrl(context.Background(), server.Client(), server.URL+"/missing.png")
	assert.ErrorContains(t, err, "status code: 404")
}

func TestUploadObjectStoresUnderKey(t *testing.T) {
	storage := test.NewAWSProviderMock()
	key := services.NewObjectKey("packshots", "user-1")
	assert.Regexp(t, regexp.MustCompile(`^packshots/user-1/[0-9a-f-]{36}\.png$`), key)
	assert.NotEqual(t, key, services.NewObjectKey("packshots", "user-1"))

	require.NoError(t, services.UploadObject(context.Background(), storage, "bucket", key, []byte("png")))
	content, ok := storage.Object(key)
	require.True(t, ok)
	assert.Equal(t, []byte("png"), content)
}

func TestURLCacheServicePresignsOnMiss(t *testing.T) {
	cache, err := services.NewURLCacheService(test.NewAWSProviderMock(), "wardrobe")
	require.NoError(t, err)

	url, err := cache.GetReadURL(context.Background(), "uploads/user-1/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.test/wardrobe/uploads/user-1/a.png", url)

	url, err = cache.GetReadURL(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, url)
}
