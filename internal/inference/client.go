// Package inference provides face localization and embedding backends.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/lab-access/internal/config"
	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/facematch"
	"github.com/kozaktomas/lab-access/internal/vision"
)

const (
	defaultInferenceURL = "http://localhost:8000"
	defaultTimeout      = 30 * time.Second
)

// Client talks to the inference server for both face detection and embedding.
// It is safe for concurrent use.
type Client struct {
	baseURL  string
	profile  config.ModelProfile
	minScore float64
	client   *http.Client
}

// NewClient creates a new inference client for the given model profile
func NewClient(baseURL string, profile config.ModelProfile, minScore float64) *Client {
	if baseURL == "" {
		baseURL = defaultInferenceURL
	}
	if minScore <= 0 {
		minScore = constants.MinDetectionScore
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		profile:  profile,
		minScore: minScore,
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

// faceDetection represents a single detected face in pixel coordinates
type faceDetection struct {
	BBox      []float64   `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64     `json:"det_score"`
	Keypoints [][]float64 `json:"keypoints"`
}

// detectResponse represents the response from the face detection endpoint
type detectResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
}

// embedRequest carries a normalized CHW tensor of one canonical face
type embedRequest struct {
	Model  string    `json:"model"`
	Size   int       `json:"size"`
	Layout string    `json:"layout"`
	Tensor []float32 `json:"tensor"`
}

// embeddingResponse represents the response from the embedding endpoint
type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Name returns the model profile name.
func (c *Client) Name() string {
	return c.profile.Name
}

// Dim returns the embedding length of the profile.
func (c *Client) Dim() int {
	return c.profile.EmbeddingDim
}

// do sends the request and returns the body of a 200 response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// postMultipartImage posts imageData as the "file" form field.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// Locate detects faces in the frame.
func (c *Client) Locate(ctx context.Context, frame *vision.Frame) ([]vision.FaceRegion, error) {
	data, err := frame.EncodeJPEG(constants.JPEGQuality)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, "/detect/face", data)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return c.toRegions(resp.Faces, frame.Width, frame.Height), nil
}

// toRegions clamps detections to the frame, drops weak and duplicate ones,
// and converts the rest to regions in detector order.
func (c *Client) toRegions(faces []faceDetection, width, height int) []vision.FaceRegion {
	var kept []faceDetection
	var boxes [][]float64
	for _, f := range faces {
		if f.DetScore < c.minScore || len(f.BBox) != 4 {
			continue
		}
		box := []float64{
			min(max(f.BBox[0], 0), float64(width)),
			min(max(f.BBox[1], 0), float64(height)),
			min(max(f.BBox[2], 0), float64(width)),
			min(max(f.BBox[3], 0), float64(height)),
		}
		if box[2] <= box[0] || box[3] <= box[1] {
			continue
		}
		kept = append(kept, f)
		boxes = append(boxes, box)
	}

	regions := make([]vision.FaceRegion, 0, len(kept))
	for _, i := range facematch.SuppressOverlapping(boxes, constants.OverlapIoU) {
		x, y, w, h, ok := facematch.CornerBBoxToRect(boxes[i])
		if !ok || w <= 0 || h <= 0 {
			continue
		}
		region := vision.FaceRegion{X: x, Y: y, Width: w, Height: h, Confidence: kept[i].DetScore}
		for _, kp := range kept[i].Keypoints {
			if len(kp) < 2 {
				continue
			}
			nx, ny := facematch.NormalizePoint(kp[0], kp[1], width, height)
			region.Keypoints = append(region.Keypoints, vision.Keypoint{X: nx, Y: ny})
		}
		regions = append(regions, region)
	}
	return regions
}

// Embed computes the embedding of a canonical face.
func (c *Client) Embed(ctx context.Context, face *vision.CanonicalFace) ([]float32, error) {
	norm := vision.Normalization{Mean: c.profile.Mean, Std: c.profile.Std}
	body, err := c.postJSON(ctx, "/embed/face", embedRequest{
		Model:  c.profile.Name,
		Size:   face.Size(),
		Layout: "chw",
		Tensor: face.Tensor(norm),
	})
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return resp.Embedding, nil
}

// Health checks that the inference server responds.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	_, err = c.do(req)
	return err
}

// Close is a no-op; the client holds no model resources.
func (c *Client) Close() error {
	return nil
}
