package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// GenerationProvider is the set of try-on operations the HTTP handlers and worker depend on.
type GenerationProvider interface {
	CheckCredential(ctx context.Context, credential string) bool
	ExtractPackshot(ctx context.Context, credential string, image ImageAsset, description, quality string) (string, error)
	AnalyzeItem(ctx context.Context, credential string, image ImageAsset, categories []string) (*ItemMetadata, error)
	ValidatePhoto(ctx context.Context, credential string, image ImageAsset, photoType string) (*PhotoValidation, error)
	GenerateComposite(ctx context.Context, credential string, base ImageAsset, items []ImageAsset, descriptions []string, quality string) (string, error)
}

var _ GenerationProvider = (*GenerationClient)(nil)

type ItemMetadata struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type PhotoValidation struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason"`
}

// Validation outcomes reported by PhotoValidation.Status.
const (
	ValidationOK       = "ok"
	ValidationWarning  = "warning"
	ValidationRejected = "rejected"
)

func (v PhotoValidation) Status() string {
	switch {
	case !v.IsValid:
		return ValidationRejected
	case v.Reason != "":
		return ValidationWarning
	default:
		return ValidationOK
	}
}

// GenerationClient prepares inputs, calls the transport, records usage and classifies failures.
// It holds no per-call state.
type GenerationClient struct {
	transport Transport
	usage     *UsageAccumulator
	logger    zerolog.Logger
	maxDim    int
}

type ClientOption func(*GenerationClient)

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *GenerationClient) {
		c.logger = logger
	}
}

func WithMaxDimension(maxDim int) ClientOption {
	return func(c *GenerationClient) {
		c.maxDim = maxDim
	}
}

func NewGenerationClient(transport Transport, usage *UsageAccumulator, options ...ClientOption) *GenerationClient {
	c := &GenerationClient{
		transport: transport,
		usage:     usage,
		logger:    zerolog.Nop(),
		maxDim:    MaxUploadDimension,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *GenerationClient) Usage() *UsageAccumulator {
	return c.usage
}

// CheckCredential reports whether the service accepts credential. Every failure is reported as false.
func (c *GenerationClient) CheckCredential(ctx context.Context, credential string) bool {
	if credential == "" {
		return false
	}
	start := time.Now()
	models, err := c.transport.ListModels(ctx, credential)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", OpCheckCredential).Dur("duration", time.Since(start)).Msg("credential rejected")
		return false
	}
	c.logger.Debug().Str("op", OpCheckCredential).Int("models", len(models)).Dur("duration", time.Since(start)).Msg("credential checked")
	return len(models) > 0
}

func (c *GenerationClient) ExtractPackshot(ctx context.Context, credential string, image ImageAsset, description, quality string) (string, error) {
	prepared, err := PrepareImage(image, c.maxDim)
	if err != nil {
		return "", withOp(err, OpExtractPackshot)
	}

	start := time.Now()
	payload, err := c.transport.ExtractPackshot(ctx, credential, ImageEditRequest{
		Images:  []*PreparedImage{prepared},
		Prompt:  packshotPrompt(description),
		Quality: MapQuality(quality),
		Size:    PackshotSize,
	})
	if err != nil {
		return "", c.fail(OpExtractPackshot, start, err)
	}
	return c.imageResult(OpExtractPackshot, start, payload)
}

func (c *GenerationClient) AnalyzeItem(ctx context.Context, credential string, image ImageAsset, categories []string) (*ItemMetadata, error) {
	prepared, err := PrepareImage(image, c.maxDim)
	if err != nil {
		return nil, withOp(err, OpAnalyzeItem)
	}

	schema := itemSchema(categories)
	start := time.Now()
	payload, err := c.transport.AnalyzeItem(ctx, credential, StructuredRequest{
		Image:  prepared,
		Prompt: analysisPrompt(categories),
		Schema: schema,
	})
	if err != nil {
		return nil, c.fail(OpAnalyzeItem, start, err)
	}

	metadata, err := DecodeStructured[ItemMetadata](payload.Envelope, schema.Required()...)
	if err != nil {
		return nil, c.fail(OpAnalyzeItem, start, err)
	}
	c.record(OpAnalyzeItem, start, payload.Usage)
	return &metadata, nil
}

func (c *GenerationClient) ValidatePhoto(ctx context.Context, credential string, image ImageAsset, photoType string) (*PhotoValidation, error) {
	prepared, err := PrepareImage(image, c.maxDim)
	if err != nil {
		return nil, withOp(err, OpValidatePhoto)
	}

	start := time.Now()
	payload, err := c.transport.ValidatePhoto(ctx, credential, StructuredRequest{
		Image:  prepared,
		Prompt: validationPrompt(photoType),
		Schema: photoValidationSchema,
	})
	if err != nil {
		return nil, c.fail(OpValidatePhoto, start, err)
	}

	validation, err := DecodeStructured[PhotoValidation](payload.Envelope, photoValidationSchema.Required()...)
	if err != nil {
		return nil, c.fail(OpValidatePhoto, start, err)
	}
	c.record(OpValidatePhoto, start, payload.Usage)
	return &validation, nil
}

// GenerateComposite dresses the person in base with items. Images are prepared concurrently
// but attached base first, then items in caller order.
func (c *GenerationClient) GenerateComposite(ctx context.Context, credential string, base ImageAsset, items []ImageAsset, descriptions []string, quality string) (string, error) {
	if len(items) != len(descriptions) {
		return "", newError(KindContract, OpGenerateComposite,
			fmt.Errorf("%w: %d photos, %d descriptions", ErrLengthMismatch, len(items), len(descriptions)))
	}
	if len(items) == 0 {
		return "", newError(KindContract, OpGenerateComposite, ErrNoItems)
	}

	assets := append([]ImageAsset{base}, items...)
	prepared := make([]*PreparedImage, len(assets))
	g := new(errgroup.Group)
	for i, asset := range assets {
		g.Go(func() error {
			img, err := PrepareImage(asset, c.maxDim)
			if err != nil {
				return err
			}
			prepared[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", withOp(err, OpGenerateComposite)
	}

	start := time.Now()
	payload, err := c.transport.GenerateComposite(ctx, credential, ImageEditRequest{
		Images:  prepared,
		Prompt:  compositePrompt(descriptions),
		Quality: MapQuality(quality),
		Size:    CompositeSize,
	})
	if err != nil {
		return "", c.fail(OpGenerateComposite, start, err)
	}
	return c.imageResult(OpGenerateComposite, start, payload)
}

func (c *GenerationClient) imageResult(op string, start time.Time, payload *ImagePayload) (string, error) {
	if payload == nil || payload.B64 == "" {
		return "", c.fail(op, start, newError(KindSchema, op, ErrNoImageData))
	}
	c.record(op, start, payload.Usage)
	return payload.B64, nil
}

func (c *GenerationClient) record(op string, start time.Time, usage *Usage) {
	event := c.logger.Info().Str("op", op).Dur("duration", time.Since(start))
	if usage != nil {
		c.usage.Add(*usage)
		event = event.Int64("text_tokens", usage.TextTokens).
			Int64("image_tokens", usage.ImageTokens).
			Int64("output_tokens", usage.OutputTokens)
	}
	event.Msg("generation call succeeded")
}

func (c *GenerationClient) fail(op string, start time.Time, err error) *GenerationError {
	genErr := withOp(ClassifyFailure(op, err), op)
	c.logger.Warn().Err(err).Str("op", op).Str("kind", genErr.Kind.String()).Dur("duration", time.Since(start)).Msg("generation call failed")
	return genErr
}

// withOp stamps op on a classified error raised by a helper.
func withOp(err error, op string) *GenerationError {
	genErr := ClassifyFailure(op, err)
	if genErr.Op != op {
		copied := *genErr
		copied.Op = op
		return &copied
	}
	return genErr
}
