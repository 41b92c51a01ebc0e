package inference

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/lab-access/internal/config"
	"github.com/kozaktomas/lab-access/internal/vision"
)

func testProfile() config.ModelProfile {
	return config.ModelProfile{
		Name:         "facenet-vggface2",
		InputSize:    4,
		EmbeddingDim: 3,
		Mean:         [3]float32{0.5, 0.5, 0.5},
		Std:          [3]float32{0.5, 0.5, 0.5},
	}
}

func grayFrame(t *testing.T, w, h int) *vision.Frame {
	t.Helper()
	f, err := vision.NewFrame(w, h, vision.OrderGray, make([]byte, w*h))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", testProfile(), 0)
	if c.baseURL != defaultInferenceURL {
		t.Errorf("expected default URL, got %q", c.baseURL)
	}
	if c.minScore != 0.5 {
		t.Errorf("expected default min score, got %v", c.minScore)
	}

	c = NewClient("http://inference:9000/", testProfile(), 0.8)
	if c.baseURL != "http://inference:9000" {
		t.Errorf("expected trailing slash trimmed, got %q", c.baseURL)
	}
	if c.Name() != "facenet-vggface2" || c.Dim() != 3 {
		t.Errorf("unexpected name/dim: %s %d", c.Name(), c.Dim())
	}
}

func TestClient_Locate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect/face" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		if _, _, err := image.Decode(strings.NewReader(string(data))); err != nil {
			http.Error(w, "not an image", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"faces_count":4,"faces":[
			{"bbox":[10,10,50,60],"det_score":0.98,"keypoints":[[20,20],[40,20],[200,-5]]},
			{"bbox":[12,11,50,61],"det_score":0.90},
			{"bbox":[-10,70,30,120],"det_score":0.95},
			{"bbox":[60,60,80,80],"det_score":0.2}
		]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, testProfile(), 0.5)
	regions, err := c.Locate(context.Background(), grayFrame(t, 100, 100))
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}

	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d: %+v", len(regions), regions)
	}

	first := regions[0]
	if first.X != 10 || first.Y != 10 || first.Width != 40 || first.Height != 50 {
		t.Errorf("unexpected first region: %+v", first)
	}
	if len(first.Keypoints) != 3 {
		t.Fatalf("expected 3 keypoints, got %d", len(first.Keypoints))
	}
	if first.Keypoints[0].X != 0.2 || first.Keypoints[0].Y != 0.2 {
		t.Errorf("unexpected keypoint: %+v", first.Keypoints[0])
	}
	if first.Keypoints[2].X != 1 || first.Keypoints[2].Y != 0 {
		t.Errorf("keypoint not clamped: %+v", first.Keypoints[2])
	}

	// clamped to the frame
	second := regions[1]
	if second.X != 0 || second.Y != 70 || second.Width != 30 || second.Height != 30 {
		t.Errorf("unexpected clamped region: %+v", second)
	}
	if !second.Rect().In(image.Rect(0, 0, 100, 100)) {
		t.Errorf("region %v outside frame", second.Rect())
	}
}

func TestClient_LocateNoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces_count":0,"faces":[]}`))
	}))
	defer server.Close()

	regions, err := NewClient(server.URL, testProfile(), 0).Locate(context.Background(), grayFrame(t, 8, 8))
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("expected no regions, got %d", len(regions))
	}
}

func TestClient_LocateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, testProfile(), 0).Locate(context.Background(), grayFrame(t, 8, 8))
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestClient_Embed(t *testing.T) {
	var got embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"dim":3,"embedding":[0.1,0.2,0.3],"model":"facenet-vggface2"}`))
	}))
	defer server.Close()

	face, err := vision.NewCanonicalFace(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatal(err)
	}

	emb, err := NewClient(server.URL, testProfile(), 0).Embed(context.Background(), face)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(emb) != 3 || emb[2] != 0.3 {
		t.Errorf("unexpected embedding: %v", emb)
	}

	if got.Size != 4 || got.Layout != "chw" || got.Model != "facenet-vggface2" {
		t.Errorf("unexpected request: %+v", got)
	}
	if len(got.Tensor) != 3*4*4 {
		t.Fatalf("expected tensor of %d values, got %d", 3*4*4, len(got.Tensor))
	}
	// black pixels normalize to (0 - 0.5) / 0.5
	if got.Tensor[0] != -1 {
		t.Errorf("expected normalized value -1, got %v", got.Tensor[0])
	}
}

func TestClient_EmbedEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dim":0,"embedding":[]}`))
	}))
	defer server.Close()

	face, _ := vision.NewCanonicalFace(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if _, err := NewClient(server.URL, testProfile(), 0).Embed(context.Background(), face); err == nil {
		t.Error("expected error for empty embedding")
	}
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Write([]byte(`{"status":"ok"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	if err := NewClient(server.URL, testProfile(), 0).Health(context.Background()); err != nil {
		t.Errorf("Health() error: %v", err)
	}
}

func TestDlibUnavailableWithoutTag(t *testing.T) {
	if DlibAvailable {
		t.Skip("built with dlib")
	}
	if _, err := NewDlibRecognizer("/nonexistent"); err == nil {
		t.Error("expected error without dlib build tag")
	}
}
