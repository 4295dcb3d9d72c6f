package models

// Images travel as base64 strings, a data URI prefix is accepted.

type CredentialCheckIn struct {
	APIKey string `json:"api_key"`
}

type CredentialCheckOut struct {
	Valid bool `json:"valid"`
}

type PackshotIn struct {
	Image       string `json:"image" validate:"required"`
	Description string `json:"description" validate:"max=500"`
	Quality     string `json:"quality" validate:"quality"`
}

type ImageOut struct {
	Image string `json:"image"`
	Mode  string `json:"mode,omitempty"`
}

type AnalyzeItemIn struct {
	Image      string   `json:"image" validate:"required"`
	Categories []string `json:"categories" validate:"required,min=1,dive,required,max=50"`
}

type ValidatePhotoIn struct {
	Image     string `json:"image" validate:"required"`
	PhotoType string `json:"photo_type" validate:"required,photo_type"`
}

type ValidatePhotoOut struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason"`
	Status  string `json:"status"`
}

// TryOnIn keeps photos and descriptions as parallel arrays, a length mismatch is rejected.
type TryOnIn struct {
	BasePhoto        string   `json:"base_photo" validate:"required"`
	ItemPhotos       []string `json:"item_photos" validate:"required,min=1"`
	ItemDescriptions []string `json:"item_descriptions"`
	Quality          string   `json:"quality" validate:"quality"`
	Mode             string   `json:"mode" validate:"omitempty,oneof=remote local"`
}

type WardrobeItemIn struct {
	Name        string `json:"name" validate:"max=100"`
	Category    string `json:"category" validate:"max=50"`
	Description string `json:"description" validate:"max=500"`
	Image       string `json:"image" validate:"required"`
	// Process runs analysis and packshot extraction in the worker.
	Process bool `json:"process"`
}

type WardrobeItemOut struct {
	ID               uint   `json:"id"`
	Name             string `json:"name"`
	Category         string `json:"category"`
	Description      string `json:"description"`
	ProcessingStatus string `json:"processing_status"`
	ImageURL         string `json:"image_url,omitempty"`
	CreatedAt        string `json:"created_at"`
}

type TryOnJobIn struct {
	BasePhoto   string  `json:"base_photo" validate:"required"`
	ClothingIDs []int64 `json:"clothing_ids" validate:"required,min=1,max=6"`
	Quality     string  `json:"quality" validate:"quality"`
	Mode        string  `json:"mode" validate:"omitempty,oneof=remote local"`
}

type TryOnJobOut struct {
	ID              uint    `json:"id"`
	Status          string  `json:"status"`
	Mode            string  `json:"mode"`
	ResultURL       string  `json:"result_url,omitempty"`
	FellBackToLocal bool    `json:"fell_back_to_local"`
	ErrorMessage    *string `json:"error_message,omitempty"`
}
