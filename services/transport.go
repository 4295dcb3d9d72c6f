package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// Transport performs the remote side of each generation operation.
// Implementations receive images that are already prepared and prompts that are already built.
type Transport interface {
	// ListModels returns the model ids visible to credential.
	ListModels(ctx context.Context, credential string) ([]string, error)
	ExtractPackshot(ctx context.Context, credential string, req ImageEditRequest) (*ImagePayload, error)
	AnalyzeItem(ctx context.Context, credential string, req StructuredRequest) (*StructuredPayload, error)
	ValidatePhoto(ctx context.Context, credential string, req StructuredRequest) (*StructuredPayload, error)
	GenerateComposite(ctx context.Context, credential string, req ImageEditRequest) (*ImagePayload, error)
}

const generationTimeout = 3 * time.Minute

// NewTransport builds the transport named by cfg.Transport.
func NewTransport(cfg *Config) (Transport, error) {
	httpClient := &http.Client{Timeout: generationTimeout}
	switch cfg.Transport {
	case TransportDirect:
		return NewOpenAITransport(cfg.ImageModel, cfg.AnalysisModel,
			WithOpenAIBaseURL(cfg.OpenAIBaseURL),
			WithOpenAIHTTPClient(httpClient),
		), nil
	case TransportProxy:
		token, err := NewServiceToken(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		return NewProxyTransport(cfg.ProxyURL, token, cfg.ImageModel, cfg.AnalysisModel, httpClient), nil
	case TransportGemini:
		return NewGeminiTransport(cfg.GeminiImageModel, cfg.GeminiTextModel, ""), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// ImageEditRequest is a prompt plus input images in attachment order.
type ImageEditRequest struct {
	Images  []*PreparedImage
	Prompt  string
	Quality string
	Size    string
}

type StructuredRequest struct {
	Image  *PreparedImage
	Prompt string
	Schema OutputSchema
}

// ImagePayload is the base64 image returned by the service. Usage is nil when none was reported.
type ImagePayload struct {
	B64   string
	Usage *Usage
}

type StructuredPayload struct {
	Envelope ResponseEnvelope
	Usage    *Usage
}

type SchemaField struct {
	Name string
	// Type is a JSON schema primitive: string, boolean, integer or number.
	Type string
	Enum []string
}

// OutputSchema describes a flat JSON object where every field is required.
type OutputSchema struct {
	Name   string
	Fields []SchemaField
}

func (s OutputSchema) Required() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// JSONSchema renders s as a strict JSON schema document.
func (s OutputSchema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		prop := map[string]any{"type": f.Type}
		if len(f.Enum) > 0 {
			prop["enum"] = f.Enum
		}
		properties[f.Name] = prop
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             s.Required(),
		"additionalProperties": false,
	}
}

var genaiTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"boolean": genai.TypeBoolean,
	"integer": genai.TypeInteger,
	"number":  genai.TypeNumber,
}

// GenaiSchema renders s as a Gemini response schema.
func (s OutputSchema) GenaiSchema() *genai.Schema {
	properties := make(map[string]*genai.Schema, len(s.Fields))
	for _, f := range s.Fields {
		properties[f.Name] = &genai.Schema{Type: genaiTypes[f.Type], Enum: f.Enum}
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       properties,
		Required:         s.Required(),
		PropertyOrdering: s.Required(),
	}
}

func itemSchema(categories []string) OutputSchema {
	return OutputSchema{
		Name: "clothing_item",
		Fields: []SchemaField{
			{Name: "name", Type: "string"},
			{Name: "category", Type: "string", Enum: categories},
			{Name: "description", Type: "string"},
		},
	}
}

var photoValidationSchema = OutputSchema{
	Name: "photo_validation",
	Fields: []SchemaField{
		{Name: "is_valid", Type: "boolean"},
		{Name: "reason", Type: "string"},
	},
}
