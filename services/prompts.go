package services

import (
	"fmt"
	"strings"
)

// Photo types accepted by ValidatePhoto.
const (
	PhotoTypeFace     = "face"
	PhotoTypeTorso    = "torso"
	PhotoTypeFullBody = "full-body"
)

const (
	PackshotSize  = "1024x1024"
	CompositeSize = "1024x1536"
	moderation    = "low"
)

// MapQuality converts a caller quality tier to one the image service accepts.
func MapQuality(quality string) string {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case "draft", "low":
		return "low"
	case "standard", "medium":
		return "medium"
	case "hd", "high":
		return "high"
	default:
		return "auto"
	}
}

func packshotPrompt(description string) string {
	item := strings.TrimSpace(description)
	if item == "" {
		item = "the main clothing item"
	}
	return fmt.Sprintf(
		"Create a professional e-commerce packshot of %s from this photo. "+
			"Isolate only that item, remove the person, hangers, hands and any other objects. "+
			"Show the full item front-facing and centered on a pure white (#FFFFFF) background, "+
			"flat even studio lighting, no shadows, no text or watermarks. "+
			"Keep the exact colors, fabric texture, prints and details of the original item. "+
			"Square 1024x1024 output.", item)
}

func analysisPrompt(categories []string) string {
	return "Analyze the clothing item in this photo. Return a short product name, " +
		"the best matching category from: " + strings.Join(categories, ", ") + ", " +
		"and a one sentence description covering color, material and style."
}

var validationRubrics = map[string]string{
	PhotoTypeFace: "Check that this photo is usable as a face reference for virtual try-on: " +
		"exactly one person, face clearly visible and facing the camera, eyes open, " +
		"no sunglasses or objects covering the face, good lighting, not blurry.",
	PhotoTypeTorso: "Check that this photo is usable as an upper-body reference for virtual try-on: " +
		"exactly one person, head, shoulders and torso down to the waist visible, " +
		"arms not crossed over the chest, facing the camera, good lighting, not blurry.",
	PhotoTypeFullBody: "Check that this photo is usable as a full-body reference for virtual try-on: " +
		"exactly one person standing, visible from head to feet, facing the camera, " +
		"arms relaxed at the sides, plain background preferred, good lighting, not blurry.",
}

const defaultRubric = "Check that this photo is usable as a reference for virtual try-on: " +
	"exactly one person clearly visible, good lighting, not blurry."

func validationPrompt(photoType string) string {
	rubric, ok := validationRubrics[photoType]
	if !ok {
		rubric = defaultRubric
	}
	return rubric + " Set is_valid to false if the photo cannot be used. " +
		"If it can be used but something could be better, set is_valid to true and explain in reason. " +
		"If it fully meets every requirement, set is_valid to true and leave reason empty."
}

func compositePrompt(descriptions []string) string {
	var b strings.Builder
	b.WriteString("Edit the first image so the same person is wearing the clothing items shown in the following images. ")
	b.WriteString("Keep the person's face, identity, body shape, pose and the background unchanged. ")
	b.WriteString("Items:\n")
	for i, description := range descriptions {
		fmt.Fprintf(&b, "Item %d: %s\n", i+1, strings.TrimSpace(description))
	}
	b.WriteString("Fit each item naturally with realistic folds, lighting and shadows. Photorealistic result.")
	return b.String()
}
