package tasks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tryonapi/compositor"
	"tryonapi/models"
	"tryonapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

const (
	TypeTryOnGeneration = "generate:tryon"
	TypeProcessClothing = "generate:process_clothing"

	QueueGenerate = "generate"
	maxRetries    = 3

	packshotQuality    = "standard"
	whitenThreshold    = 235
	whitenBlurSigma    = 3.0
	packshotKeyPrefix  = "packshots"
	tryOnResultsPrefix = "tryons"
)

// DefaultCategories is used to analyze wardrobe items uploaded without a category.
var DefaultCategories = []string{"top", "bottom", "dress", "outerwear", "shoes", "accessory"}

type TryOnGenerationPayload struct {
	TryOnID uint `json:"try_on_id"`
}

type ClothingProcessingPayload struct {
	ClothingID uint `json:"clothing_id"`
}

func NewTryOnGenerationTask(tryOnID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(TryOnGenerationPayload{TryOnID: tryOnID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTryOnGeneration, payload, asynq.MaxRetry(maxRetries), asynq.Queue(QueueGenerate)), nil
}

func NewClothingProcessingTask(clothingID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(ClothingProcessingPayload{ClothingID: clothingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProcessClothing, payload, asynq.MaxRetry(maxRetries), asynq.Queue(QueueGenerate)), nil
}

// Processor runs the generation tasks. Each job gets its own generation client whose
// usage accumulator is scoped to the job and forwards into Usage.
type Processor struct {
	Wardrobe   services.WardrobeProvider
	Storage    services.AWSServiceProvider
	Transport  services.Transport
	Usage      *services.UsageAccumulator
	Compositor *compositor.Compositor

	Bucket        string
	Credential    string
	MaxDimension  int
	LocalFallback bool
}

func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeTryOnGeneration, p.HandleTryOnGenerationTask)
	mux.HandleFunc(TypeProcessClothing, p.HandleProcessClothingTask)
}

func (p *Processor) client(usage *services.UsageAccumulator) *services.GenerationClient {
	maxDim := p.MaxDimension
	if maxDim <= 0 {
		maxDim = services.MaxUploadDimension
	}
	return services.NewGenerationClient(p.Transport, usage,
		services.WithLogger(log.Logger),
		services.WithMaxDimension(maxDim),
	)
}

// retryable reports whether a later attempt can succeed without the caller changing anything.
func retryable(kind services.FailureKind) bool {
	switch kind {
	case services.KindTransport, services.KindQuota, services.KindSchema, services.KindUnknown:
		return true
	default:
		return false
	}
}

// fallsBackToLocal reports whether the remote path is unavailable rather than refusing the input.
func fallsBackToLocal(kind services.FailureKind) bool {
	return kind == services.KindTransport || kind == services.KindQuota
}

func (p *Processor) HandleProcessClothingTask(ctx context.Context, t *asynq.Task) error {
	var payload ClothingProcessingPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("[Clothing] invalid payload %s: %v: %w", string(t.Payload()), err, asynq.SkipRetry)
	}
	logger := log.With().Uint("clothing_id", payload.ClothingID).Logger()
	logger.Info().Msg("start processing clothing")

	item, err := p.Wardrobe.GetItem(ctx, payload.ClothingID)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Clothing: %v] error on retrieving item for processing: %w", payload.ClothingID, err))
		if errors.Is(err, services.ErrNotFound) {
			return fmt.Errorf("[Clothing: %v] %v: %w", payload.ClothingID, err, asynq.SkipRetry)
		}
		return err
	}
	if item.ProcessingStatus == models.StatusCompleted {
		logger.Info().Msg("clothing already processed, skipping")
		return nil
	}

	item.ProcessingStatus = models.StatusGenerating
	if err := p.Wardrobe.SaveItem(ctx, item); err != nil {
		return err
	}

	imageBytes, err := p.Storage.ReadObject(ctx, p.Bucket, item.ImageKey)
	if err != nil {
		return p.failClothing(ctx, item, "Failed to read the uploaded photo, please upload it again.", err, true)
	}
	asset := services.AssetFromBytes(fmt.Sprintf("clothing %d", item.ID), imageBytes)
	client := p.client(p.Usage.Scoped())

	if item.Name == "" || item.Category == "" || item.Description == "" {
		metadata, err := client.AnalyzeItem(ctx, p.Credential, asset, DefaultCategories)
		if err != nil {
			return p.failClothing(ctx, item, services.UserMessage(services.KindOf(err)), err, retryable(services.KindOf(err)))
		}
		if item.Name == "" {
			item.Name = metadata.Name
		}
		if item.Category == "" {
			item.Category = metadata.Category
		}
		if item.Description == "" {
			item.Description = metadata.Description
		}
		logger.Info().Str("name", item.Name).Str("category", item.Category).Msg("clothing analyzed")
	}

	packshot, err := client.ExtractPackshot(ctx, p.Credential, asset, item.Description, packshotQuality)
	if err != nil {
		return p.failClothing(ctx, item, services.UserMessage(services.KindOf(err)), err, retryable(services.KindOf(err)))
	}
	packshotBytes, err := base64.StdEncoding.DecodeString(packshot)
	if err != nil {
		return p.failClothing(ctx, item, services.UserMessage(services.KindSchema), err, true)
	}
	if whitened, err := services.WhitenBackgroundSmooth(packshotBytes, whitenThreshold, whitenBlurSigma); err != nil {
		logger.Warn().Err(err).Msg("background whitening failed, keeping raw packshot")
	} else {
		packshotBytes = whitened
	}

	key := services.NewObjectKey(packshotKeyPrefix, item.OwnerSubject)
	if err := services.UploadObject(ctx, p.Storage, p.Bucket, key, packshotBytes); err != nil {
		return p.failClothing(ctx, item, "Failed to store the packshot, it will be retried.", err, true)
	}

	item.PackshotKey = &key
	item.ProcessingStatus = models.StatusCompleted
	item.ProcessErrorMessage = nil
	if err := p.Wardrobe.SaveItem(ctx, item); err != nil {
		sentry.CaptureException(fmt.Errorf("[Clothing: %v] error on saving processed item: %w", item.ID, err))
		return err
	}
	logger.Info().Str("packshot_key", key).Msg("clothing processed")
	return nil
}

func (p *Processor) HandleTryOnGenerationTask(ctx context.Context, t *asynq.Task) error {
	var payload TryOnGenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("[TryOn] invalid payload %s: %v: %w", string(t.Payload()), err, asynq.SkipRetry)
	}
	logger := log.With().Uint("try_on_id", payload.TryOnID).Logger()
	logger.Info().Msg("start try-on generation")

	generation, err := p.Wardrobe.GetTryOn(ctx, payload.TryOnID)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] error on retrieving generation: %w", payload.TryOnID, err))
		if errors.Is(err, services.ErrNotFound) {
			return fmt.Errorf("[TryOn: %v] %v: %w", payload.TryOnID, err, asynq.SkipRetry)
		}
		return err
	}
	if generation.Status == models.StatusCompleted {
		logger.Info().Msg("try-on already generated, skipping")
		return nil
	}

	generation.Status = models.StatusGenerating
	if err := p.Wardrobe.SaveTryOn(ctx, generation); err != nil {
		return err
	}

	baseBytes, err := p.Storage.ReadObject(ctx, p.Bucket, generation.BasePhotoKey)
	if err != nil {
		return p.failTryOn(ctx, generation, "Failed to read the base photo, please upload it again.", err, true)
	}
	clothing, err := p.Wardrobe.GetItems(ctx, generation.OwnerSubject, generation.ClothingIDs)
	if err != nil {
		return p.failTryOn(ctx, generation, "Some of the selected clothes no longer exist.", err, !errors.Is(err, services.ErrNotFound))
	}

	base := services.AssetFromBytes("base photo", baseBytes)
	items := make([]services.ImageAsset, len(clothing))
	descriptions := make([]string, len(clothing))
	for i, c := range clothing {
		content, err := p.Storage.ReadObject(ctx, p.Bucket, c.DisplayKey())
		if err != nil {
			return p.failTryOn(ctx, generation, "Failed to read clothing photos, it will be retried.", err, true)
		}
		items[i] = services.AssetFromBytes(fmt.Sprintf("clothing %d", c.ID), content)
		descriptions[i] = describe(c)
	}

	start := time.Now()
	usage := p.Usage.Scoped()
	var result string
	if generation.Mode == models.ModeLocal {
		result, err = p.composeLocally(base, items, descriptions)
	} else {
		result, err = p.client(usage).GenerateComposite(ctx, p.Credential, base, items, descriptions, generation.Quality)
		if err != nil && p.LocalFallback && fallsBackToLocal(services.KindOf(err)) {
			logger.Warn().Err(err).Msg("remote generation unavailable, falling back to local compositor")
			generation.FellBackToLocal = true
			result, err = p.composeLocally(base, items, descriptions)
		}
	}
	if err != nil {
		kind := services.KindOf(err)
		return p.failTryOn(ctx, generation, services.UserMessage(kind), err, retryable(kind))
	}

	resultBytes, err := base64.StdEncoding.DecodeString(result)
	if err != nil {
		return p.failTryOn(ctx, generation, services.UserMessage(services.KindSchema), err, true)
	}
	key := services.NewObjectKey(tryOnResultsPrefix, generation.OwnerSubject)
	if err := services.UploadObject(ctx, p.Storage, p.Bucket, key, resultBytes); err != nil {
		return p.failTryOn(ctx, generation, "Failed to store the result, it will be retried.", err, true)
	}

	totals := usage.Totals()
	duration := time.Since(start).Seconds()
	generation.ResultKey = &key
	generation.Duration = &duration
	generation.TextTokens = totals.TextTokens
	generation.ImageTokens = totals.ImageTokens
	generation.OutputTokens = totals.OutputTokens
	generation.Status = models.StatusCompleted
	generation.GenerationErrorMessage = nil
	if err := p.Wardrobe.SaveTryOn(ctx, generation); err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] error on saving generated result: %w", generation.ID, err))
		return err
	}
	logger.Info().
		Str("result_key", key).
		Bool("fell_back_to_local", generation.FellBackToLocal).
		Float64("duration", duration).
		Int64("tokens", totals.Total()).
		Msg("try-on generated")
	return nil
}

func (p *Processor) composeLocally(base services.ImageAsset, items []services.ImageAsset, descriptions []string) (string, error) {
	overlays := make([]compositor.Item, len(items))
	for i := range items {
		overlays[i] = compositor.Item{Image: items[i], Description: descriptions[i]}
	}
	return p.Compositor.Composite(base, overlays)
}

func describe(c models.Clothing) string {
	switch {
	case c.Description != "":
		return c.Description
	case c.Name != "":
		return c.Name
	default:
		return c.Category
	}
}

func (p *Processor) failClothing(ctx context.Context, item *models.Clothing, message string, cause error, shouldRetry bool) error {
	item.ProcessRetryTimes++
	item.ProcessErrorMessage = &message
	// A row marked failed is never picked up again.
	final := !shouldRetry || item.ProcessRetryTimes >= maxRetries
	if final {
		item.ProcessingStatus = models.StatusFailed
	} else {
		item.ProcessingStatus = models.StatusPending
	}
	if err := p.Wardrobe.SaveItem(ctx, item); err != nil {
		sentry.CaptureException(fmt.Errorf("[Fail Clothing %v] error on saving failed status: %w", item.ID, err))
		return err
	}
	return taskError(fmt.Sprintf("[Clothing: %v]", item.ID), cause, !final)
}

func (p *Processor) failTryOn(ctx context.Context, generation *models.TryOnGeneration, message string, cause error, shouldRetry bool) error {
	generation.GenerationRetryTimes++
	generation.GenerationErrorMessage = &message
	final := !shouldRetry || generation.GenerationRetryTimes >= maxRetries
	if final {
		generation.Status = models.StatusFailed
	} else {
		generation.Status = models.StatusPending
	}
	if err := p.Wardrobe.SaveTryOn(ctx, generation); err != nil {
		sentry.CaptureException(fmt.Errorf("[Fail TryOn %v] error on saving failed status: %w", generation.ID, err))
		return err
	}
	return taskError(fmt.Sprintf("[TryOn: %v]", generation.ID), cause, !final)
}

func taskError(prefix string, cause error, shouldRetry bool) error {
	kind := services.KindOf(cause)
	if kind == services.KindUnknown || kind == services.KindTransport {
		sentry.CaptureException(fmt.Errorf("%s %w", prefix, cause))
	}
	log.Warn().Err(cause).Str("kind", kind.String()).Bool("retry", shouldRetry).Msg(prefix + " task failed")
	if !shouldRetry {
		return fmt.Errorf("%s %w: %w", prefix, cause, asynq.SkipRetry)
	}
	return fmt.Errorf("%s %w", prefix, cause)
}
