package compositor

import "strings"

type GarmentType string

const (
	GarmentJacket GarmentType = "jacket"
	GarmentPants  GarmentType = "pants"
	GarmentDress  GarmentType = "dress"
	GarmentShirt  GarmentType = "shirt"
)

var garmentKeywords = []struct {
	garment  GarmentType
	keywords []string
}{
	{GarmentJacket, []string{"jacket", "blazer"}},
	{GarmentPants, []string{"pants", "jeans"}},
	{GarmentDress, []string{"dress"}},
}

// ClassifyGarment picks the first garment whose keyword appears in description, shirt otherwise.
func ClassifyGarment(description string) GarmentType {
	lower := strings.ToLower(description)
	for _, g := range garmentKeywords {
		for _, keyword := range g.keywords {
			if strings.Contains(lower, keyword) {
				return g.garment
			}
		}
	}
	return GarmentShirt
}

type Rect struct {
	X, Y, W, H float64
}

// BodyRegions is a fixed-ratio approximation of where a body sits inside a photo.
// No detection is performed, every value derives from the photo's bounding box.
type BodyRegions struct {
	Photo Rect

	ShoulderWidth float64
	TorsoHeight   float64
	WaistWidth    float64
	LegWidth      float64

	ShoulderLine float64
	ChestLine    float64
	WaistLine    float64
	HipLine      float64
}

const (
	shoulderWidthRatio = 0.45
	torsoHeightRatio   = 0.35
	waistWidthRatio    = 0.35
	legWidthRatio      = 0.20

	shoulderLineRatio = 0.15
	chestLineRatio    = 0.25
	waistLineRatio    = 0.45
	hipLineRatio      = 0.55
)

func EstimateBodyRegions(photo Rect) BodyRegions {
	return BodyRegions{
		Photo:         photo,
		ShoulderWidth: photo.W * shoulderWidthRatio,
		TorsoHeight:   photo.H * torsoHeightRatio,
		WaistWidth:    photo.W * waistWidthRatio,
		LegWidth:      photo.W * legWidthRatio,
		ShoulderLine:  photo.Y + photo.H*shoulderLineRatio,
		ChestLine:     photo.Y + photo.H*chestLineRatio,
		WaistLine:     photo.Y + photo.H*waistLineRatio,
		HipLine:       photo.Y + photo.H*hipLineRatio,
	}
}

func (b BodyRegions) centerX() float64 {
	return b.Photo.X + b.Photo.W/2
}

const (
	jacketWidening = 1.1
	layerOffset    = 5.0
)

type Overlay struct {
	Index       int
	Garment     GarmentType
	Description string
	Rect        Rect
}

// PlanOverlays computes one overlay rectangle per description, horizontally centered on the body.
func PlanOverlays(regions BodyRegions, descriptions []string) []Overlay {
	overlays := make([]Overlay, 0, len(descriptions))
	for i, description := range descriptions {
		garment := ClassifyGarment(description)

		var r Rect
		switch garment {
		case GarmentPants:
			r.W = regions.LegWidth * 2
			r.H = regions.Photo.H * 0.4
			r.Y = regions.HipLine
		case GarmentDress:
			r.W = regions.ShoulderWidth
			r.H = regions.Photo.H * 0.5
			r.Y = regions.ShoulderLine
		default:
			r.W = regions.ShoulderWidth
			if garment == GarmentJacket {
				r.W *= jacketWidening
			}
			r.H = regions.TorsoHeight
			r.Y = regions.ShoulderLine + float64(i)*layerOffset
		}
		r.X = regions.centerX() - r.W/2

		overlays = append(overlays, Overlay{Index: i, Garment: garment, Description: description, Rect: r})
	}
	return overlays
}
