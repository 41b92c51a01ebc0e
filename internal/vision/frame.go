// Package vision holds the image side of the pipeline: frames, face regions,
// primary region selection and canonicalization.
package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"strings"

	"github.com/kozaktomas/lab-access/internal/constants"
	_ "golang.org/x/image/bmp" // register BMP decoder
)

// ErrInvalidFrame is returned when a raw buffer does not describe a frame.
var ErrInvalidFrame = errors.New("invalid frame")

// ColorOrder is the channel layout of a frame's pixel buffer.
type ColorOrder int

const (
	OrderRGB ColorOrder = iota
	OrderBGR
	OrderGray
)

// Channels returns the number of bytes per pixel.
func (o ColorOrder) Channels() int {
	if o == OrderGray {
		return 1
	}
	return 3
}

func (o ColorOrder) String() string {
	switch o {
	case OrderRGB:
		return "rgb"
	case OrderBGR:
		return "bgr"
	case OrderGray:
		return "gray"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// ParseColorOrder parses "rgb", "bgr" or "gray".
func ParseColorOrder(s string) (ColorOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rgb":
		return OrderRGB, nil
	case "bgr":
		return OrderBGR, nil
	case "gray", "grey":
		return OrderGray, nil
	default:
		return 0, fmt.Errorf("%w: unknown color order %q", ErrInvalidFrame, s)
	}
}

// Frame is a raster image with tightly packed rows.
type Frame struct {
	Width  int
	Height int
	Order  ColorOrder
	Pix    []byte
}

// NewFrame wraps a raw pixel buffer. The buffer is not copied.
func NewFrame(width, height int, order ColorOrder, pix []byte) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFrame, width, height)
	}
	if err := checkPixels(width, height); err != nil {
		return nil, err
	}
	if order < OrderRGB || order > OrderGray {
		return nil, fmt.Errorf("%w: unknown color order %d", ErrInvalidFrame, order)
	}
	if want := width * height * order.Channels(); len(pix) != want {
		return nil, fmt.Errorf("%w: buffer has %d bytes, want %d", ErrInvalidFrame, len(pix), want)
	}
	return &Frame{Width: width, Height: height, Order: order, Pix: pix}, nil
}

// FrameFromImage converts any image to an RGB frame.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			pix = append(pix, c.R, c.G, c.B)
		}
	}
	return &Frame{Width: w, Height: h, Order: OrderRGB, Pix: pix}
}

func checkPixels(width, height int) error {
	if width > constants.MaxFramePixels/height {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidFrame, width, height, constants.MaxFramePixels)
	}
	return nil
}

// DecodeFrame decodes an encoded image (JPEG, PNG, GIF or BMP) into an RGB frame.
// The header is read first so oversized images are refused before decoding.
func DecodeFrame(data []byte) (*Frame, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image header: %v", ErrInvalidFrame, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidFrame)
	}
	if err := checkPixels(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrInvalidFrame, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidFrame)
	}
	return FrameFromImage(img), nil
}

// RGBAt returns the pixel at (x, y) in RGB order regardless of the frame layout.
func (f *Frame) RGBAt(x, y int) (r, g, b uint8) {
	ch := f.Order.Channels()
	i := (y*f.Width + x) * ch
	switch f.Order {
	case OrderBGR:
		return f.Pix[i+2], f.Pix[i+1], f.Pix[i]
	case OrderGray:
		v := f.Pix[i]
		return v, v, v
	default:
		return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
	}
}

// SubImage copies the rectangle r of the frame into an RGBA image.
// r must lie within the frame.
func (f *Frame) SubImage(r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			red, green, blue := f.RGBAt(x, y)
			o := dst.PixOffset(x-r.Min.X, y-r.Min.Y)
			dst.Pix[o] = red
			dst.Pix[o+1] = green
			dst.Pix[o+2] = blue
			dst.Pix[o+3] = 0xff
		}
	}
	return dst
}

// Bounds returns the frame rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// EncodeJPEG encodes the whole frame as JPEG.
func (f *Frame) EncodeJPEG(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.SubImage(f.Bounds()), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}
