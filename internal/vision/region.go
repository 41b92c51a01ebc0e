package vision

import (
	"context"
	"image"
)

// Keypoint is a facial landmark in relative (0-1) frame coordinates.
type Keypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FaceRegion is an axis-aligned face bounding box in pixel coordinates.
type FaceRegion struct {
	X          int        `json:"x"`
	Y          int        `json:"y"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Confidence float64    `json:"confidence"`
	Keypoints  []Keypoint `json:"keypoints,omitempty"`
}

// Area returns width*height, or 0 for degenerate boxes.
func (r FaceRegion) Area() int {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Rect returns the region as an image.Rectangle.
func (r FaceRegion) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Localizer finds faces in a frame. No faces is an empty slice, not an error.
type Localizer interface {
	Locate(ctx context.Context, frame *Frame) ([]FaceRegion, error)
}

// PrimaryRegion selects the region with the largest area.
// Ties keep the region seen first. ok is false when regions is empty.
func PrimaryRegion(regions []FaceRegion) (primary FaceRegion, ok bool) {
	if len(regions) == 0 {
		return FaceRegion{}, false
	}
	primary = regions[0]
	for _, r := range regions[1:] {
		if r.Area() > primary.Area() {
			primary = r
		}
	}
	return primary, true
}
