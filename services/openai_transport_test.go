package services_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"tryonapi/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAITransportSendsCallerCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "Bearer sk-user", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[{"id":"gpt-image-1","object":"model","created":1,"owned_by":"openai"}]}`)
	}))
	defer server.Close()

	transport := services.NewOpenAITransport("gpt-image-1", "gpt-4.1-mini", services.WithOpenAIBaseURL(server.URL+"/v1"))
	ids, err := transport.ListModels(context.Background(), "sk-user")
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-image-1"}, ids)
}

func TestOpenAITransportRejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer server.Close()

	transport := services.NewOpenAITransport("gpt-image-1", "gpt-4.1-mini", services.WithOpenAIBaseURL(server.URL))
	_, err := transport.ListModels(context.Background(), "sk-bad")
	require.Error(t, err)
	assert.Equal(t, services.KindAuth, services.ClassifyFailure(services.OpCheckCredential, err).Kind)
}

func TestOpenAITransportEdit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/edits", r.URL.Path)
		assert.Equal(t, "Bearer sk-user", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "dress them", r.FormValue("prompt"))
		assert.Equal(t, "gpt-image-1", r.FormValue("model"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"created":1,"data":[{"b64_json":"eHl6"}]}`)
	}))
	defer server.Close()

	transport := services.NewOpenAITransport("gpt-image-1", "gpt-4.1-mini", services.WithOpenAIBaseURL(server.URL))
	payload, err := transport.ExtractPackshot(context.Background(), "sk-user", services.ImageEditRequest{
		Images:  []*services.PreparedImage{preparedImage(t, "item", 4, 4)},
		Prompt:  "dress them",
		Quality: "low",
		Size:    services.PackshotSize,
	})
	require.NoError(t, err)
	assert.Equal(t, "eHl6", payload.B64)
	assert.Nil(t, payload.Usage)
}
