package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
)

var _ Transport = (*ProxyTransport)(nil)

// HeaderCallerKey carries the caller's provider key to the proxy's model listing.
const HeaderCallerKey = "X-Api-Key"

// ProxyTransport sends requests through the server-side reverse proxy, authenticated with a
// service token. The proxy attaches the provider credential to generation calls; only the
// model listing carries the caller's key, so that credential checks test the caller.
type ProxyTransport struct {
	baseURL       string
	serviceToken  string
	httpClient    *http.Client
	imageModel    string
	analysisModel string
}

func NewProxyTransport(baseURL, serviceToken, imageModel, analysisModel string, httpClient *http.Client) *ProxyTransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ProxyTransport{
		baseURL:       strings.TrimRight(baseURL, "/"),
		serviceToken:  serviceToken,
		httpClient:    httpClient,
		imageModel:    imageModel,
		analysisModel: analysisModel,
	}
}

func (t *ProxyTransport) ListModels(ctx context.Context, credential string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderCallerKey, credential)
	body, err := t.do(req)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("invalid model listing: %w", err)
	}
	ids := make([]string, 0, len(listing.Data))
	for _, m := range listing.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (t *ProxyTransport) ExtractPackshot(ctx context.Context, _ string, req ImageEditRequest) (*ImagePayload, error) {
	return t.edit(ctx, req)
}

func (t *ProxyTransport) GenerateComposite(ctx context.Context, _ string, req ImageEditRequest) (*ImagePayload, error) {
	return t.edit(ctx, req)
}

// EditForm encodes an image edit as the multipart form the provider accepts.
// Images are attached in slice order.
func EditForm(model string, req ImageEditRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("model", model); err != nil {
		return nil, "", err
	}
	for i, img := range req.Images {
		part, err := w.CreateFormFile("image[]", fmt.Sprintf("image_%d.png", i))
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.PNG); err != nil {
			return nil, "", err
		}
	}
	fields := [][2]string{
		{"prompt", req.Prompt},
		{"n", "1"},
		{"size", req.Size},
		{"quality", req.Quality},
		{"moderation", moderation},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (t *ProxyTransport) edit(ctx context.Context, req ImageEditRequest) (*ImagePayload, error) {
	form, contentType, err := EditForm(t.imageModel, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/images/edits", form)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)

	body, err := t.do(httpReq)
	if err != nil {
		return nil, err
	}

	var resp openai.ImagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindSchema, "decode_response", fmt.Errorf("invalid image response: %w", err))
	}
	return imagePayload(&resp), nil
}

func (t *ProxyTransport) AnalyzeItem(ctx context.Context, _ string, req StructuredRequest) (*StructuredPayload, error) {
	return t.structured(ctx, req)
}

func (t *ProxyTransport) ValidatePhoto(ctx context.Context, _ string, req StructuredRequest) (*StructuredPayload, error) {
	return t.structured(ctx, req)
}

func (t *ProxyTransport) structured(ctx context.Context, req StructuredRequest) (*StructuredPayload, error) {
	payload, err := json.Marshal(structuredParams(t.analysisModel, req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := t.do(httpReq)
	if err != nil {
		return nil, err
	}

	envelope, err := parseEnvelope(body)
	if err != nil {
		return nil, err
	}
	result := &StructuredPayload{Envelope: envelope}
	if envelope.Usage != nil && envelope.Usage.TotalTokens > 0 {
		result.Usage = &Usage{
			TextTokens:   envelope.Usage.InputTokens,
			OutputTokens: envelope.Usage.OutputTokens,
		}
	}
	return result, nil
}

// do executes req and returns the body of a 2xx response, or an *HTTPStatusError.
func (t *ProxyTransport) do(req *http.Request) ([]byte, error) {
	if t.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.serviceToken)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage pulls error.message out of a provider error body, falling back to the raw text.
func errorMessage(body []byte) string {
	var envelope struct {
		Error *EnvelopeError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}
