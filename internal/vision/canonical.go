package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kozaktomas/lab-access/internal/constants"
	"golang.org/x/image/draw"
)

var (
	// ErrInvalidRegion is returned for degenerate or out-of-frame regions.
	ErrInvalidRegion = errors.New("invalid face region")

	// ErrNoFaceDetected is returned by enrollment when the frame has no face.
	ErrNoFaceDetected = errors.New("no face detected")
)

// Normalization is the per-channel (R, G, B) transform applied to pixel
// values scaled to [0, 1] before they reach the embedding model.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// CanonicalFace is a square RGB face crop at the model input size.
type CanonicalFace struct {
	img *image.RGBA
}

// NewCanonicalFace wraps a square RGBA image.
func NewCanonicalFace(img *image.RGBA) (*CanonicalFace, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dx() != b.Dy() {
		return nil, fmt.Errorf("canonical face must be square, got %dx%d", b.Dx(), b.Dy())
	}
	return &CanonicalFace{img: img}, nil
}

// Size returns the edge length in pixels.
func (c *CanonicalFace) Size() int {
	return c.img.Bounds().Dx()
}

// Image returns the underlying raster.
func (c *CanonicalFace) Image() *image.RGBA {
	return c.img
}

// Encode returns the JPEG form that is persisted as the stored representation.
func (c *CanonicalFace) Encode(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, c.img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding canonical face: %w", err)
	}
	return buf.Bytes(), nil
}

// Tensor returns the face as a CHW float32 tensor: value/255, then (v-mean)/std.
func (c *CanonicalFace) Tensor(n Normalization) []float32 {
	size := c.Size()
	plane := size * size
	out := make([]float32, 3*plane)
	for y := range size {
		for x := range size {
			o := c.img.PixOffset(x, y)
			for ch := range 3 {
				v := float32(c.img.Pix[o+ch]) / 255
				out[ch*plane+y*size+x] = (v - n.Mean[ch]) / n.Std[ch]
			}
		}
	}
	return out
}

// DecodeCanonical decodes a stored representation and brings it to size.
func DecodeCanonical(data []byte, size int) (*CanonicalFace, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding stored face: %w", err)
	}
	return NewCanonicalFace(resize(img, size))
}

// Canonicalizer crops a face region and resizes it to the model input size.
// Faces it produces are persisted as JPEG at its quality setting.
type Canonicalizer struct {
	size    int
	quality int
}

// NewCanonicalizer creates a canonicalizer for the given input size.
func NewCanonicalizer(size int) *Canonicalizer {
	if size <= 0 {
		size = constants.DefaultCanonicalSize
	}
	return &Canonicalizer{size: size, quality: constants.JPEGQuality}
}

// WithJPEGQuality sets the quality of stored faces. Values outside 1-100
// keep the current setting.
func (c *Canonicalizer) WithJPEGQuality(quality int) *Canonicalizer {
	if quality >= 1 && quality <= 100 {
		c.quality = quality
	}
	return c
}

// Size returns the configured edge length.
func (c *Canonicalizer) Size() int {
	return c.size
}

// JPEGQuality returns the quality used by Encode.
func (c *Canonicalizer) JPEGQuality() int {
	return c.quality
}

// Encode returns the stored representation of face.
func (c *Canonicalizer) Encode(face *CanonicalFace) ([]byte, error) {
	return face.Encode(c.quality)
}

// Canonicalize crops region out of frame, converts it to RGB and resizes it.
func (c *Canonicalizer) Canonicalize(frame *Frame, region FaceRegion) (*CanonicalFace, error) {
	if frame == nil || len(frame.Pix) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidRegion)
	}
	if region.Width <= 0 || region.Height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidRegion, region.Width, region.Height)
	}
	rect := region.Rect()
	if !rect.In(frame.Bounds()) {
		return nil, fmt.Errorf("%w: %v outside frame %dx%d", ErrInvalidRegion, rect, frame.Width, frame.Height)
	}

	crop := frame.SubImage(rect)
	return NewCanonicalFace(resize(crop, c.size))
}

func resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
