package models

import "github.com/lib/pq"

// Processing and generation statuses.
const (
	StatusIdle       = "idle"
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Try-on modes: remote uses the image service, local draws overlays on the server.
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

type Clothing struct {
	JsonModel
	OwnerSubject        string  `gorm:"index" json:"-"`
	Name                string  `json:"name"`
	Category            string  `json:"category"`
	Description         string  `gorm:"type:text" json:"description"`
	ImageKey            string  `json:"-"`
	PackshotKey         *string `json:"-"`
	ProcessingStatus    string  `json:"processing_status"` // idle, pending, generating, completed, failed
	ProcessRetryTimes   int     `json:"process_retry_times"`
	ProcessErrorMessage *string `json:"process_error_message"`
}

// DisplayKey is the best image to show for the item: the packshot once it exists.
func (c Clothing) DisplayKey() string {
	if c.PackshotKey != nil && *c.PackshotKey != "" {
		return *c.PackshotKey
	}
	return c.ImageKey
}

type TryOnGeneration struct {
	JsonModel
	OwnerSubject string        `gorm:"index" json:"-"`
	BasePhotoKey string        `json:"-"`
	ClothingIDs  pq.Int64Array `gorm:"type:integer[]" json:"clothing_ids"`
	Mode         string        `json:"mode"`
	Quality      string        `json:"quality"`
	Status       string        `json:"status"` // pending, generating, completed, failed

	ResultKey *string  `json:"-"`
	Duration  *float64 `json:"duration"` // seconds

	TextTokens   int64 `json:"text_tokens"`
	ImageTokens  int64 `json:"image_tokens"`
	OutputTokens int64 `json:"output_tokens"`

	// set when the remote path failed and the local compositor produced the result
	FellBackToLocal bool `json:"fell_back_to_local"`

	GenerationRetryTimes   int     `json:"generation_retry_times"`
	GenerationErrorMessage *string `json:"generation_error_message"`
}
