package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tryonapi/compositor"
	"tryonapi/services"
	"tryonapi/test"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSubject   = "user-1"
	testServerKey = "sk-server"
)

type testEnv struct {
	e         *echo.Echo
	transport *test.FakeTransport
	wardrobe  *test.WardrobeMock
	storage   *test.AWSProviderMock
	queue     *test.EnqueuerMock
	usage     *services.UsageAccumulator
}

func newTestEnv(t *testing.T, transport *test.FakeTransport, providerURL string) *testEnv {
	if providerURL == "" {
		providerURL = "http://provider.test/v1"
	}
	registry := prometheus.NewRegistry()
	usage, err := services.NewUsageAccumulator().WithMetrics(registry)
	require.NoError(t, err)

	env := &testEnv{
		transport: transport,
		wardrobe:  test.NewWardrobeMock(),
		storage:   test.NewAWSProviderMock(),
		queue:     &test.EnqueuerMock{},
		usage:     usage,
	}
	env.e = SetupServer(ServerDeps{
		Config: &services.Config{
			Transport:     services.TransportDirect,
			OpenAIAPIKey:  testServerKey,
			OpenAIBaseURL: providerURL,
			JWTSecret:     test.GetJWTSecret(),
			R2Bucket:      "tryon-test",
		},
		Generator:  services.NewGenerationClient(transport, usage),
		Usage:      usage,
		Compositor: compositor.New(),
		Wardrobe:   env.wardrobe,
		AWSService: env.storage,
		URLCache:   test.URLCacheMock{},
		Queue:      env.queue,
		Gatherer:   registry,
	})
	return env
}

func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")
	rec := env.serve(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresSubject(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")
	rec := env.serve(test.NewJSONAuthRequest(http.MethodGet, "/api/usage", "", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRejectsForeignToken(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")
	rec := env.serve(test.NewJSONAuthRequestCustomAuth(http.MethodGet, "/api/usage", "Bearer not-a-jwt", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProxyRejectsAnonymousRequests(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer upstream.Close()

	env := newTestEnv(t, &test.FakeTransport{}, upstream.URL+"/v1")
	rec := env.serve(test.NewJSONRequest(http.MethodPost, "/openai/images/generations", map[string]string{"prompt": "a hat"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.serve(test.NewJSONAuthRequestCustomAuth(http.MethodPost, "/openai/images/generations", "Bearer not-a-jwt", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, hits)
}

func TestProxyInjectsServerCredential(t *testing.T) {
	var gotAuth, gotPath, gotAPIKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get(HeaderAPIKey)
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"created":1,"data":[]}`)
	}))
	defer upstream.Close()

	env := newTestEnv(t, &test.FakeTransport{}, upstream.URL+"/v1")
	req := test.NewJSONAuthRequest(http.MethodPost, "/openai/images/generations", testSubject, map[string]string{"prompt": "a hat"})
	req.Header.Set(HeaderAPIKey, "caller-key")
	rec := env.serve(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer "+testServerKey, gotAuth)
	assert.Empty(t, gotAPIKey)
	assert.Equal(t, "/v1/images/generations", gotPath)
}

func TestProxyChecksCallerKeyOnModels(t *testing.T) {
	var gotAuth, gotAPIKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get(HeaderAPIKey)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[{"id":"gpt-image-1"}]}`)
	}))
	defer upstream.Close()

	env := newTestEnv(t, &test.FakeTransport{}, upstream.URL+"/v1")
	req := test.NewJSONAuthRequest(http.MethodGet, "/openai/models", testSubject, nil)
	req.Header.Set(HeaderAPIKey, "caller-key")
	rec := env.serve(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer caller-key", gotAuth)
	assert.Empty(t, gotAPIKey)
	assert.Contains(t, rec.Body.String(), "gpt-image-1")
}

func TestProxyTransportCredentialCheck(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-user" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"message":"Incorrect API key provided"}}`)
			return
		}
		io.WriteString(w, `{"data":[{"id":"gpt-image-1"}]}`)
	}))
	defer upstream.Close()

	env := newTestEnv(t, &test.FakeTransport{}, upstream.URL+"/v1")
	api := httptest.NewServer(env.e)
	defer api.Close()

	token, err := services.NewServiceToken(test.GetJWTSecret())
	require.NoError(t, err)
	client := services.NewGenerationClient(
		services.NewProxyTransport(api.URL+ProxyPrefix, token, "gpt-image-1", "gpt-4.1-mini", nil),
		services.NewUsageAccumulator(),
	)

	ctx := context.Background()
	assert.False(t, client.CheckCredential(ctx, ""))
	assert.False(t, client.CheckCredential(ctx, "garbage"))
	assert.True(t, client.CheckCredential(ctx, "sk-user"))

	anonymous := services.NewGenerationClient(
		services.NewProxyTransport(api.URL+ProxyPrefix, "", "gpt-image-1", "gpt-4.1-mini", nil),
		services.NewUsageAccumulator(),
	)
	assert.False(t, anonymous.CheckCredential(ctx, "sk-user"))
}

func TestProxyUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	upstreamURL := upstream.URL
	upstream.Close()

	env := newTestEnv(t, &test.FakeTransport{}, upstreamURL)
	rec := env.serve(test.NewJSONAuthRequest(http.MethodGet, "/openai/models", testSubject, nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMetricsExposeTokenCounter(t *testing.T) {
	env := newTestEnv(t, &test.FakeTransport{}, "")
	env.usage.Add(services.Usage{ImageTokens: 5})

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tryon_tokens_total{kind="image"} 5`), rec.Body.String())
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "/v1/models", joinPath("/v1", "/models"))
	assert.Equal(t, "/v1/models", joinPath("/v1/", "/models"))
	assert.Equal(t, "/v1/models", joinPath("/v1", "models"))
	assert.Equal(t, "/v1", joinPath("/v1", ""))
}
