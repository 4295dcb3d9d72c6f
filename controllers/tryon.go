package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"tryonapi/compositor"
	"tryonapi/models"
	"tryonapi/services"

	"github.com/labstack/echo/v4"
)

type TryOnController struct {
	Generator  services.GenerationProvider
	Usage      *services.UsageAccumulator
	Compositor *compositor.Compositor
	// DefaultCredential is used when the request has no X-Api-Key.
	DefaultCredential string
}

func (controller *TryOnController) TryOnRoutes(g *echo.Group) {
	g.POST("/credentials/check", controller.CheckCredential)
	g.POST("/packshot", controller.ExtractPackshot)
	g.POST("/items/analyze", controller.AnalyzeItem)
	g.POST("/photos/validate", controller.ValidatePhoto)
	g.POST("/tryon", controller.TryOn)
	g.POST("/tryon/local", controller.TryOnLocal)
	g.GET("/usage", controller.GetUsage)
}

// bindAndValidate returns the message to answer with on a bad request.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.New("Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return fmt.Errorf("%v", httpErr.Message)
		}
		return err
	}
	return nil
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// CheckCredential only tests the key it is given, it never falls back to the server key.
func (controller *TryOnController) CheckCredential(c echo.Context) error {
	var req models.CredentialCheckIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	credential := req.APIKey
	if credential == "" {
		credential = c.Request().Header.Get(HeaderAPIKey)
	}
	valid := controller.Generator.CheckCredential(c.Request().Context(), credential)
	return c.JSON(http.StatusOK, models.CredentialCheckOut{Valid: valid})
}

func (controller *TryOnController) ExtractPackshot(c echo.Context) error {
	var req models.PackshotIn
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	image, err := controller.Generator.ExtractPackshot(
		c.Request().Context(),
		callerCredential(c, controller.DefaultCredential),
		services.AssetFromBase64("item photo", req.Image),
		req.Description,
		req.Quality,
	)
	if err != nil {
		return generationErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, models.ImageOut{Image: image, Mode: models.ModeRemote})
}

func (controller *TryOnController) AnalyzeItem(c echo.Context) error {
	var req models.AnalyzeItemIn
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	metadata, err := controller.Generator.AnalyzeItem(
		c.Request().Context(),
		callerCredential(c, controller.DefaultCredential),
		services.AssetFromBase64("item photo", req.Image),
		req.Categories,
	)
	if err != nil {
		return generationErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, metadata)
}

func (controller *TryOnController) ValidatePhoto(c echo.Context) error {
	var req models.ValidatePhotoIn
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	validation, err := controller.Generator.ValidatePhoto(
		c.Request().Context(),
		callerCredential(c, controller.DefaultCredential),
		services.AssetFromBase64("photo", req.Image),
		req.PhotoType,
	)
	if err != nil {
		return generationErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, models.ValidatePhotoOut{
		IsValid: validation.IsValid,
		Reason:  validation.Reason,
		Status:  validation.Status(),
	})
}

func (controller *TryOnController) TryOn(c echo.Context) error {
	var req models.TryOnIn
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	if req.Mode == models.ModeLocal {
		return controller.composeLocally(c, req)
	}

	base, items := tryOnAssets(req)
	image, err := controller.Generator.GenerateComposite(
		c.Request().Context(),
		callerCredential(c, controller.DefaultCredential),
		base,
		items,
		req.ItemDescriptions,
		req.Quality,
	)
	if err != nil {
		return generationErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, models.ImageOut{Image: image, Mode: models.ModeRemote})
}

func (controller *TryOnController) TryOnLocal(c echo.Context) error {
	var req models.TryOnIn
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	return controller.composeLocally(c, req)
}

func (controller *TryOnController) composeLocally(c echo.Context, req models.TryOnIn) error {
	if len(req.ItemPhotos) != len(req.ItemDescriptions) {
		return generationErrorJSON(c, &services.GenerationError{
			Kind:    services.KindContract,
			Op:      compositor.OpLocalComposite,
			Message: services.UserMessage(services.KindContract),
			Err: fmt.Errorf("%w: %d photos, %d descriptions",
				services.ErrLengthMismatch, len(req.ItemPhotos), len(req.ItemDescriptions)),
		})
	}

	base, assets := tryOnAssets(req)
	items := make([]compositor.Item, len(assets))
	for i, asset := range assets {
		items[i] = compositor.Item{Image: asset, Description: req.ItemDescriptions[i]}
	}
	image, err := controller.Compositor.Composite(base, items)
	if err != nil {
		return generationErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, models.ImageOut{Image: image, Mode: models.ModeLocal})
}

func tryOnAssets(req models.TryOnIn) (services.ImageAsset, []services.ImageAsset) {
	items := make([]services.ImageAsset, len(req.ItemPhotos))
	for i, photo := range req.ItemPhotos {
		items[i] = services.AssetFromBase64(fmt.Sprintf("clothing item %d", i+1), photo)
	}
	return services.AssetFromBase64("base photo", req.BasePhoto), items
}

func (controller *TryOnController) GetUsage(c echo.Context) error {
	return c.JSON(http.StatusOK, controller.Usage.Totals())
}
