//go:build dlib

package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/vision"
)

// DlibAvailable reports whether the binary was built with the dlib backend.
const DlibAvailable = true

// dlibDim is the length of a dlib ResNet face descriptor.
const dlibDim = 128

// DlibRecognizer runs detection and embedding in process with dlib.
// All calls are serialized because the dlib recognizer is not thread-safe.
type DlibRecognizer struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewDlibRecognizer loads the dlib models from modelsDir.
func NewDlibRecognizer(modelsDir string) (*DlibRecognizer, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models: %w", err)
	}
	return &DlibRecognizer{rec: rec}, nil
}

// Name returns the model name.
func (r *DlibRecognizer) Name() string {
	return "dlib-resnet"
}

// Dim returns the descriptor length.
func (r *DlibRecognizer) Dim() int {
	return dlibDim
}

// Locate detects faces. dlib reports no confidence, so every face gets 1.
func (r *DlibRecognizer) Locate(_ context.Context, frame *vision.Frame) ([]vision.FaceRegion, error) {
	data, err := frame.EncodeJPEG(constants.JPEGQuality)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == nil {
		return nil, errors.New("dlib recognizer is closed")
	}
	faces, err := r.rec.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	regions := make([]vision.FaceRegion, 0, len(faces))
	for _, f := range faces {
		rect := f.Rectangle.Intersect(frame.Bounds())
		if rect.Empty() {
			continue
		}
		regions = append(regions, vision.FaceRegion{
			X:          rect.Min.X,
			Y:          rect.Min.Y,
			Width:      rect.Dx(),
			Height:     rect.Dy(),
			Confidence: 1,
		})
	}
	return regions, nil
}

// Embed computes the dlib descriptor of a canonical face.
func (r *DlibRecognizer) Embed(_ context.Context, c *vision.CanonicalFace) ([]float32, error) {
	data, err := c.Encode(constants.JPEGQuality)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == nil {
		return nil, errors.New("dlib recognizer is closed")
	}
	f, err := r.rec.RecognizeSingle(data)
	if err != nil {
		return nil, fmt.Errorf("face recognition failed: %w", err)
	}
	if f == nil {
		return nil, vision.ErrNoFaceDetected
	}

	out := make([]float32, dlibDim)
	copy(out, f.Descriptor[:])
	return out, nil
}

// Close releases the dlib models.
func (r *DlibRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		r.rec.Close()
		r.rec = nil
	}
	return nil
}
