package models

import (
	"regexp"

	"github.com/go-playground/validator"
)

var photoTypeRule = regexp.MustCompile(`^(face|torso|full-body)$`)

func ValidatePhotoType(fl validator.FieldLevel) bool {
	return photoTypeRule.MatchString(fl.Field().String())
}

// Unknown quality tiers are rejected at the API edge even though the client maps them to "auto".
var qualityRule = regexp.MustCompile(`^(draft|low|standard|medium|hd|high|auto)$`)

func ValidateQuality(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	// optional field
	if value == "" {
		return true
	}
	return qualityRule.MatchString(value)
}
