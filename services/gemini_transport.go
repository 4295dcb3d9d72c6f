package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

var _ Transport = (*GeminiTransport)(nil)

// GeminiTransport runs the generation operations on Gemini models.
// Structured answers are wrapped into a ResponseEnvelope so decoding is shared with the other transports.
type GeminiTransport struct {
	imageModel string
	textModel  string
	baseURL    string
}

func NewGeminiTransport(imageModel, textModel, baseURL string) *GeminiTransport {
	return &GeminiTransport{imageModel: imageModel, textModel: textModel, baseURL: baseURL}
}

func (t *GeminiTransport) newClient(ctx context.Context, credential string) (*genai.Client, error) {
	config := &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	}
	if t.baseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: t.baseURL}
	}
	return genai.NewClient(ctx, config)
}

func (t *GeminiTransport) ListModels(ctx context.Context, credential string) ([]string, error) {
	client, err := t.newClient(ctx, credential)
	if err != nil {
		return nil, err
	}
	page, err := client.Models.List(ctx, &genai.ListModelsConfig{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(page.Items))
	for _, m := range page.Items {
		names = append(names, m.Name)
	}
	return names, nil
}

func (t *GeminiTransport) ExtractPackshot(ctx context.Context, credential string, req ImageEditRequest) (*ImagePayload, error) {
	return t.edit(ctx, credential, req)
}

func (t *GeminiTransport) GenerateComposite(ctx context.Context, credential string, req ImageEditRequest) (*ImagePayload, error) {
	return t.edit(ctx, credential, req)
}

func imageParts(images ...*PreparedImage) []*genai.Part {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: img.PNG}})
	}
	return parts
}

func (t *GeminiTransport) edit(ctx context.Context, credential string, req ImageEditRequest) (*ImagePayload, error) {
	client, err := t.newClient(ctx, credential)
	if err != nil {
		return nil, err
	}

	// [Image1, Image2, ..., Text]
	parts := append(imageParts(req.Images...), genai.NewPartFromText(req.Prompt))
	result, err := client.Models.GenerateContent(ctx, t.imageModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{CandidateCount: 1},
	)
	if err != nil {
		return nil, err
	}
	if err := blockedError(result); err != nil {
		return nil, err
	}

	images, err := GetAllInlineImages(result)
	if err != nil {
		return nil, err
	}
	payload := &ImagePayload{Usage: geminiUsage(result.UsageMetadata)}
	if len(images) > 0 {
		payload.B64 = base64.StdEncoding.EncodeToString(images[0])
	}
	return payload, nil
}

func (t *GeminiTransport) AnalyzeItem(ctx context.Context, credential string, req StructuredRequest) (*StructuredPayload, error) {
	return t.structured(ctx, credential, req)
}

func (t *GeminiTransport) ValidatePhoto(ctx context.Context, credential string, req StructuredRequest) (*StructuredPayload, error) {
	return t.structured(ctx, credential, req)
}

func (t *GeminiTransport) structured(ctx context.Context, credential string, req StructuredRequest) (*StructuredPayload, error) {
	client, err := t.newClient(ctx, credential)
	if err != nil {
		return nil, err
	}

	parts := append([]*genai.Part{genai.NewPartFromText(req.Prompt)}, imageParts(req.Image)...)
	result, err := client.Models.GenerateContent(ctx, t.textModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   req.Schema.GenaiSchema(),
		},
	)
	if err != nil {
		return nil, err
	}
	if err := blockedError(result); err != nil {
		return nil, err
	}

	return &StructuredPayload{
		Envelope: TextEnvelope(result.Text()),
		Usage:    geminiUsage(result.UsageMetadata),
	}, nil
}

func blockedError(result *genai.GenerateContentResponse) error {
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("request rejected by safety filter: %s %s",
			result.PromptFeedback.BlockReason, result.PromptFeedback.BlockReasonMessage)
	}
	return nil
}

// geminiUsage splits prompt tokens by modality. Tokens of unknown modality count as text.
func geminiUsage(meta *genai.GenerateContentResponseUsageMetadata) *Usage {
	if meta == nil || meta.TotalTokenCount == 0 {
		return nil
	}
	usage := &Usage{OutputTokens: int64(meta.CandidatesTokenCount)}
	if len(meta.PromptTokensDetails) == 0 {
		usage.TextTokens = int64(meta.PromptTokenCount)
		return usage
	}
	for _, detail := range meta.PromptTokensDetails {
		if detail == nil {
			continue
		}
		if detail.Modality == genai.MediaModalityImage {
			usage.ImageTokens += int64(detail.TokenCount)
		} else {
			usage.TextTokens += int64(detail.TokenCount)
		}
	}
	return usage
}

// GetAllInlineImages returns every inline image of every candidate, in order.
func GetAllInlineImages(result *genai.GenerateContentResponse) ([][]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("empty generation response")
	}

	var allImageData [][]byte
	for _, cand := range result.Candidates {
		for _, rating := range cand.SafetyRatings {
			if rating.Blocked {
				return nil, fmt.Errorf("content blocked by safety setting: %s", rating.Category)
			}
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/") && len(part.InlineData.Data) > 0 {
				allImageData = append(allImageData, part.InlineData.Data)
			}
		}
	}
	return allImageData, nil
}
