//go:build !dlib

package inference

import (
	"context"
	"errors"

	"github.com/kozaktomas/lab-access/internal/vision"
)

// DlibAvailable reports whether the binary was built with the dlib backend.
const DlibAvailable = false

// ErrDlibUnavailable is returned when the dlib backend was not compiled in.
var ErrDlibUnavailable = errors.New("dlib backend not available: rebuild with -tags dlib")

// DlibRecognizer is a placeholder; build with -tags dlib for the real backend.
type DlibRecognizer struct{}

// NewDlibRecognizer always fails without the dlib build tag.
func NewDlibRecognizer(string) (*DlibRecognizer, error) {
	return nil, ErrDlibUnavailable
}

func (r *DlibRecognizer) Name() string { return "dlib-resnet" }
func (r *DlibRecognizer) Dim() int     { return 128 }

func (r *DlibRecognizer) Locate(context.Context, *vision.Frame) ([]vision.FaceRegion, error) {
	return nil, ErrDlibUnavailable
}

func (r *DlibRecognizer) Embed(context.Context, *vision.CanonicalFace) ([]float32, error) {
	return nil, ErrDlibUnavailable
}

func (r *DlibRecognizer) Close() error { return nil }
