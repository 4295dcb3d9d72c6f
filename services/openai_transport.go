package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

var _ Transport = (*OpenAITransport)(nil)

// OpenAITransport calls the provider directly with the caller's credential attached to every request.
type OpenAITransport struct {
	client        openai.Client
	imageModel    string
	analysisModel string
}

type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	url    string
	client *http.Client
}

func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.url = url
	}
}

func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(c *openAIConfig) {
		c.client = client
	}
}

func NewOpenAITransport(imageModel, analysisModel string, options ...OpenAIOption) *OpenAITransport {
	cfg := &openAIConfig{url: "https://api.openai.com/v1/", client: http.DefaultClient}
	for _, o := range options {
		o(cfg)
	}

	return &OpenAITransport{
		client: openai.NewClient(
			option.WithBaseURL(strings.TrimRight(cfg.url, "/")+"/"),
			option.WithHTTPClient(cfg.client),
			option.WithMaxRetries(0),
		),
		imageModel:    imageModel,
		analysisModel: analysisModel,
	}
}

func (t *OpenAITransport) ListModels(ctx context.Context, credential string) ([]string, error) {
	page, err := t.client.Models.List(ctx, option.WithAPIKey(credential))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (t *OpenAITransport) ExtractPackshot(ctx context.Context, credential string, req ImageEditRequest) (*ImagePayload, error) {
	return t.edit(ctx, credential, req)
}

func (t *OpenAITransport) GenerateComposite(ctx context.Context, credential string, req ImageEditRequest) (*ImagePayload, error) {
	return t.edit(ctx, credential, req)
}

func (t *OpenAITransport) edit(ctx context.Context, credential string, req ImageEditRequest) (*ImagePayload, error) {
	files := make([]io.Reader, 0, len(req.Images))
	for i, img := range req.Images {
		files = append(files, openai.File(bytes.NewReader(img.PNG), fmt.Sprintf("image_%d.png", i), "image/png"))
	}

	resp, err := t.client.Images.Edit(ctx, openai.ImageEditParams{
		Image:   openai.ImageEditParamsImageUnion{OfFileArray: files},
		Prompt:  req.Prompt,
		Model:   openai.ImageModel(t.imageModel),
		N:       openai.Int(1),
		Quality: openai.ImageEditParamsQuality(req.Quality),
		Size:    openai.ImageEditParamsSize(req.Size),
	}, option.WithAPIKey(credential))
	if err != nil {
		return nil, err
	}
	return imagePayload(resp), nil
}

func (t *OpenAITransport) AnalyzeItem(ctx context.Context, credential string, req StructuredRequest) (*StructuredPayload, error) {
	return t.structured(ctx, credential, req)
}

func (t *OpenAITransport) ValidatePhoto(ctx context.Context, credential string, req StructuredRequest) (*StructuredPayload, error) {
	return t.structured(ctx, credential, req)
}

func (t *OpenAITransport) structured(ctx context.Context, credential string, req StructuredRequest) (*StructuredPayload, error) {
	resp, err := t.client.Responses.New(ctx, structuredParams(t.analysisModel, req), option.WithAPIKey(credential))
	if err != nil {
		return nil, err
	}

	envelope, err := parseEnvelope([]byte(resp.RawJSON()))
	if err != nil {
		return nil, err
	}

	payload := &StructuredPayload{Envelope: envelope}
	if resp.Usage.TotalTokens > 0 {
		payload.Usage = &Usage{
			TextTokens:   resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}
	}
	return payload, nil
}

// structuredParams builds a single user message (prompt, then image) constrained by a strict JSON schema.
func structuredParams(model string, req StructuredRequest) responses.ResponseNewParams {
	message := &responses.ResponseInputItemMessageParam{
		Role: string(responses.ResponseInputMessageItemRoleUser),
		Content: responses.ResponseInputMessageContentListParam{
			{OfInputText: &responses.ResponseInputTextParam{Text: req.Prompt}},
			{OfInputImage: &responses.ResponseInputImageParam{ImageURL: openai.String(req.Image.DataURI())}},
		},
	}

	params := responses.ResponseNewParams{
		Model: model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{{OfInputMessage: message}},
		},
	}
	params.Text.Format = responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   req.Schema.Name,
			Schema: req.Schema.JSONSchema(),
			Strict: openai.Bool(true),
		},
	}
	return params
}

func parseEnvelope(raw []byte) (ResponseEnvelope, error) {
	var envelope ResponseEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return envelope, newError(KindSchema, "decode_response", fmt.Errorf("invalid response envelope: %w", err))
	}
	return envelope, nil
}

func imagePayload(resp *openai.ImagesResponse) *ImagePayload {
	payload := &ImagePayload{}
	if len(resp.Data) > 0 {
		payload.B64 = resp.Data[0].B64JSON
	}
	if resp.Usage.TotalTokens > 0 {
		payload.Usage = &Usage{
			TextTokens:   resp.Usage.InputTokensDetails.TextTokens,
			ImageTokens:  resp.Usage.InputTokensDetails.ImageTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}
	}
	return payload
}
