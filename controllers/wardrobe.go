package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"tryonapi/models"
	"tryonapi/services"
	"tryonapi/tasks"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const (
	uploadsPrefix    = "uploads"
	basePhotosPrefix = "photos"
)

type WardrobeController struct {
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
	Bucket     string
}

func (controller *WardrobeController) WardrobeRoutes(g *echo.Group) {
	g.POST("/wardrobe", controller.AddItem)
	g.GET("/wardrobe", controller.ListItems)
	g.POST("/tryon/jobs", controller.CreateTryOnJob)
	g.GET("/tryon/jobs/:id", controller.GetTryOnJob)
}

func wardrobeFromContext(c echo.Context) (services.WardrobeProvider, bool) {
	wardrobe, ok := c.Get("__wardrobe").(services.WardrobeProvider)
	return wardrobe, ok && wardrobe != nil
}

func queueFromContext(c echo.Context) (TaskEnqueuer, bool) {
	queue, ok := c.Get("__asynqclient").(TaskEnqueuer)
	return queue, ok && queue != nil
}

// storeImage uploads the raw bytes of asset under prefix/subject.
func (controller *WardrobeController) storeImage(ctx context.Context, prefix, subject string, asset services.ImageAsset) (string, error) {
	content, err := asset.Bytes()
	if err != nil {
		return "", err
	}
	key := services.NewObjectKey(prefix, subject)
	if err := services.UploadObject(ctx, controller.AWSService, controller.Bucket, key, content); err != nil {
		return "", err
	}
	return key, nil
}

func (controller *WardrobeController) AddItem(c echo.Context) error {
	var req models.WardrobeItemIn
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	subject, ok := currentSubject(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	wardrobe, ok := wardrobeFromContext(c)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	ctx := c.Request().Context()

	asset := services.AssetFromBase64("clothing photo", req.Image)
	if _, err := services.DecodeAsset(asset); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": services.UserMessage(services.KindDecode)})
	}
	key, err := controller.storeImage(ctx, uploadsPrefix, subject, asset)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Wardrobe %s] upload failed: %w", subject, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to store the photo, please try again"})
	}

	item := models.Clothing{
		OwnerSubject:     subject,
		Name:             req.Name,
		Category:         req.Category,
		Description:      req.Description,
		ImageKey:         key,
		ProcessingStatus: models.StatusIdle,
	}
	if _, err := wardrobe.AddItem(ctx, &item); err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save clothing, please try again"})
	}

	if req.Process {
		queue, ok := queueFromContext(c)
		if !ok {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Service is not available, please try again a bit later"})
		}
		item.ProcessingStatus = models.StatusPending
		if err := wardrobe.SaveItem(ctx, &item); err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update clothing status, please try again"})
		}
		task, err := tasks.NewClothingProcessingTask(item.ID)
		if err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not process clothing, please try again"})
		}
		info, err := queue.Enqueue(task)
		if err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not process clothing, please try again"})
		}
		log.Info().Uint("clothing_id", item.ID).Str("task_id", info.ID).Msg("[Queue] process clothing task submitted")
	}

	return c.JSON(http.StatusCreated, controller.populatePresignedImages(ctx, []models.Clothing{item})[0])
}

func (controller *WardrobeController) ListItems(c echo.Context) error {
	subject, ok := currentSubject(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	wardrobe, ok := wardrobeFromContext(c)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	items, err := wardrobe.List(c.Request().Context(), subject)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch clothes"})
	}
	return c.JSON(http.StatusOK, controller.populatePresignedImages(c.Request().Context(), items))
}

// readURL resolves a presigned URL through the cache, going to storage directly when the cache fails.
func (controller *WardrobeController) readURL(ctx context.Context, objectKey string) string {
	if objectKey == "" {
		return ""
	}
	url, err := controller.URLCache.GetReadURL(ctx, objectKey)
	if err == nil {
		return url
	}
	log.Warn().Err(err).Str("key", objectKey).Msg("url cache failed, presigning directly")
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("failure_type", "cache_system")
		scope.SetExtra("objectKey", objectKey)
		sentry.CaptureException(err)
	})

	fallbackURL, err := controller.AWSService.GetPresignedR2FileReadURL(ctx, controller.Bucket, objectKey)
	if err != nil {
		log.Error().Err(err).Str("key", objectKey).Msg("direct presign also failed")
		sentry.CaptureException(err)
		return ""
	}
	return fallbackURL
}

func (controller *WardrobeController) populatePresignedImages(ctx context.Context, items []models.Clothing) []models.WardrobeItemOut {
	out := make([]models.WardrobeItemOut, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = models.WardrobeItemOut{
				ID:               item.ID,
				Name:             item.Name,
				Category:         item.Category,
				Description:      item.Description,
				ProcessingStatus: item.ProcessingStatus,
				ImageURL:         controller.readURL(ctx, item.DisplayKey()),
				CreatedAt:        formatTime(item.CreatedAt),
			}
		}()
	}
	wg.Wait()
	return out
}

func (controller *WardrobeController) CreateTryOnJob(c echo.Context) error {
	var req models.TryOnJobIn
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	subject, ok := currentSubject(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	wardrobe, ok := wardrobeFromContext(c)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	queue, ok := queueFromContext(c)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Service is not available, please try again a bit later"})
	}
	ctx := c.Request().Context()

	if _, err := wardrobe.GetItems(ctx, subject, req.ClothingIDs); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Some of the selected clothes were not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch clothes"})
	}

	asset := services.AssetFromBase64("base photo", req.BasePhoto)
	if _, err := services.DecodeAsset(asset); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": services.UserMessage(services.KindDecode)})
	}
	key, err := controller.storeImage(ctx, basePhotosPrefix, subject, asset)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn %s] base photo upload failed: %w", subject, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to store the photo, please try again"})
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeRemote
	}
	generation := models.TryOnGeneration{
		OwnerSubject: subject,
		BasePhotoKey: key,
		ClothingIDs:  pq.Int64Array(req.ClothingIDs),
		Mode:         mode,
		Quality:      req.Quality,
		Status:       models.StatusPending,
	}
	if _, err := wardrobe.CreateTryOn(ctx, &generation); err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate try-on, please try again"})
	}

	task, err := tasks.NewTryOnGenerationTask(generation.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not start generation, please try again"})
	}
	info, err := queue.Enqueue(task)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not start generation, please try again"})
	}
	log.Info().Uint("try_on_id", generation.ID).Str("task_id", info.ID).Msg("[Queue] try-on generation task submitted")

	return c.JSON(http.StatusCreated, models.TryOnJobOut{
		ID:     generation.ID,
		Status: generation.Status,
		Mode:   generation.Mode,
	})
}

func (controller *WardrobeController) GetTryOnJob(c echo.Context) error {
	subject, ok := currentSubject(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	wardrobe, ok := wardrobeFromContext(c)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid try-on id"})
	}

	generation, err := wardrobe.GetTryOn(c.Request().Context(), uint(id))
	if errors.Is(err, services.ErrNotFound) || (err == nil && generation.OwnerSubject != subject) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Try-on not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch try-on"})
	}

	out := models.TryOnJobOut{
		ID:              generation.ID,
		Status:          generation.Status,
		Mode:            generation.Mode,
		FellBackToLocal: generation.FellBackToLocal,
		ErrorMessage:    generation.GenerationErrorMessage,
	}
	if generation.ResultKey != nil {
		out.ResultURL = controller.readURL(c.Request().Context(), *generation.ResultKey)
	}
	return c.JSON(http.StatusOK, out)
}
