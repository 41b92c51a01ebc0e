package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/lab-access/internal/access"
	"github.com/kozaktomas/lab-access/internal/config"
	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/database/mock"
	"github.com/kozaktomas/lab-access/internal/embedding"
	"github.com/kozaktomas/lab-access/internal/matcher"
	"github.com/kozaktomas/lab-access/internal/vision"
	"github.com/kozaktomas/lab-access/internal/web/handlers"
	"github.com/kozaktomas/lab-access/internal/web/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noFaces struct{}

func (noFaces) Locate(context.Context, *vision.Frame) ([]vision.FaceRegion, error) {
	return nil, nil
}

type constModel struct{}

func (constModel) Name() string { return "const" }
func (constModel) Dim() int     { return 2 }
func (constModel) Embed(context.Context, *vision.CanonicalFace) ([]float32, error) {
	return []float32{1, 0}, nil
}

func newTestServer(t *testing.T, passcode string) *Server {
	t.Helper()
	store := mock.NewMockStore()
	store.AddLab(database.Lab{ID: 1, Name: "Robotics"})

	profile := config.ModelProfile{Name: "const", InputSize: 8, EmbeddingDim: 2}
	extractor, err := embedding.NewExtractor(constModel{}, profile)
	require.NoError(t, err)
	svc, err := access.NewService(access.Options{
		Store:         store,
		Localizer:     noFaces{},
		Canonicalizer: vision.NewCanonicalizer(profile.InputSize),
		Embedder:      extractor,
		Matcher:       matcher.NewLinear(extractor, 0),
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Access: config.AccessConfig{AdminPasscode: passcode},
		Web:    config.WebConfig{Host: "127.0.0.1", Port: 0},
	}
	checks := map[string]handlers.HealthChecker{
		"database": handlers.HealthFunc(func(context.Context) error { return nil }),
	}
	return NewServer(cfg, svc, store, checks)
}

func serve(s *Server, method, path, passcode string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if passcode != "" {
		req.Header.Set(middleware.AdminPasscodeHeader, passcode)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_PublicRoutes(t *testing.T) {
	s := newTestServer(t, "letmein")

	rec := serve(s, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	// A frame without a face is still a scan: denied, not an HTTP error.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/labs/1/scan?width=2&height=2&order=gray", strings.NewReader("abcd"))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), access.ReasonNoFaceDetected)
}

func TestServer_AdminRoutes(t *testing.T) {
	routes := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/v1/labs", ""},
		{http.MethodPost, "/api/v1/labs", `{"name":"Bio"}`},
		{http.MethodGet, "/api/v1/labs/1/members", ""},
		{http.MethodGet, "/api/v1/members", ""},
		{http.MethodGet, "/api/v1/events", ""},
	}

	tests := []struct {
		name       string
		configured string
		given      string
		wantStatus int
	}{
		{"no passcode given", "letmein", "", http.StatusUnauthorized},
		{"wrong passcode", "letmein", "guess", http.StatusUnauthorized},
		{"admin disabled", "", "anything", http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, tc.configured)
			for _, rt := range routes {
				rec := serve(s, rt.method, rt.path, tc.given, rt.body)
				assert.Equal(t, tc.wantStatus, rec.Code, "%s %s", rt.method, rt.path)
			}
		})
	}

	s := newTestServer(t, "letmein")
	for _, rt := range routes {
		rec := serve(s, rt.method, rt.path, "letmein", rt.body)
		assert.Less(t, rec.Code, 300, "%s %s: %s", rt.method, rt.path, rec.Body.String())
	}
}

func TestServer_NotFound(t *testing.T) {
	s := newTestServer(t, "letmein")
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/v1/nope", "", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/v1/members/3", "letmein", "").Code)
}
