package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/lab-access/internal/access"
	"github.com/kozaktomas/lab-access/internal/config"
	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/database/mock"
	"github.com/kozaktomas/lab-access/internal/embedding"
	"github.com/kozaktomas/lab-access/internal/matcher"
	"github.com/kozaktomas/lab-access/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// squareLocalizer reports the bounding box of the non-black pixels.
type squareLocalizer struct{}

func (squareLocalizer) Locate(_ context.Context, f *vision.Frame) ([]vision.FaceRegion, error) {
	minX, minY, maxX, maxY := f.Width, f.Height, -1, -1
	for y := range f.Height {
		for x := range f.Width {
			if r, g, b := f.RGBAt(x, y); r|g|b == 0 {
				continue
			}
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	if maxX < 0 {
		return nil, nil
	}
	return []vision.FaceRegion{{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1, Confidence: 0.9}}, nil
}

// meanColor embeds a face as its mean color in [0, 1].
type meanColor struct{}

func (meanColor) Name() string { return "mean-color" }
func (meanColor) Dim() int     { return 3 }

func (meanColor) Embed(_ context.Context, face *vision.CanonicalFace) ([]float32, error) {
	img := face.Image()
	var sum [3]float64
	n := float64(len(img.Pix) / 4)
	for i := 0; i < len(img.Pix); i += 4 {
		for ch := range 3 {
			sum[ch] += float64(img.Pix[i+ch])
		}
	}
	return []float32{float32(sum[0] / n / 255), float32(sum[1] / n / 255), float32(sum[2] / n / 255)}, nil
}

type testAPI struct {
	router http.Handler
	store  *mock.MockStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := mock.NewMockStore()
	store.AddLab(database.Lab{ID: 1, Name: "Robotics", Building: "EIEAB", Room: "2.126"})
	store.AddLab(database.Lab{ID: 2, Name: "Optics", Building: "EIEAB", Room: "3.001"})

	profile := config.ModelProfile{Name: "mean-color", InputSize: 16, EmbeddingDim: 3}
	extractor, err := embedding.NewExtractor(meanColor{}, profile)
	require.NoError(t, err)

	svc, err := access.NewService(access.Options{
		Store:         store,
		Localizer:     squareLocalizer{},
		Canonicalizer: vision.NewCanonicalizer(profile.InputSize),
		Embedder:      extractor,
		Matcher:       matcher.NewLinear(extractor, constants.DefaultDistanceThreshold),
	})
	require.NoError(t, err)

	scan := NewScanHandler(svc)
	labs := NewLabsHandler(store)
	members := NewMembersHandler(svc, store)
	events := NewEventsHandler(store)

	r := chi.NewRouter()
	r.Post("/labs/{labID}/scan", scan.Scan)
	r.Get("/labs", labs.List)
	r.Post("/labs", labs.Create)
	r.Get("/labs/{labID}/members", labs.Members)
	r.Get("/members", members.List)
	r.Post("/members", members.Enroll)
	r.Get("/members/{memberID}", members.Get)
	r.Put("/members/{memberID}", members.Update)
	r.Delete("/members/{memberID}", members.Remove)
	r.Get("/members/{memberID}/face", members.Face)
	r.Get("/events", events.List)

	return &testAPI{router: r, store: store}
}

func (a *testAPI) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// squarePNG draws a colored square on a black 40x40 image.
func squarePNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := range 40 {
		for x := range 40 {
			img.SetRGBA(x, y, color.RGBA{A: 0xff})
		}
	}
	for y := 10; y < 30; y++ {
		for x := 12; x < 32; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var (
	red  = color.RGBA{R: 220, G: 30, B: 30, A: 0xff}
	blue = color.RGBA{R: 20, G: 40, B: 230, A: 0xff}
)

func (a *testAPI) enroll(t *testing.T, fields map[string]string, c color.RGBA) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, squarePNG(t, c))
	req := httptest.NewRequest(http.MethodPost, "/members", body)
	req.Header.Set("Content-Type", contentType)
	return a.do(t, req)
}

func (a *testAPI) scan(t *testing.T, lab string, c color.RGBA) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/labs/"+lab+"/scan", bytes.NewReader(squarePNG(t, c)))
	req.Header.Set("Content-Type", "image/png")
	return a.do(t, req)
}

func decodeDecision(t *testing.T, rec *httptest.ResponseRecorder) access.Decision {
	t.Helper()
	var d access.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	return d
}

func TestScan_GrantedThenWelcomeBack(t *testing.T) {
	api := newTestAPI(t)
	rec := api.enroll(t, map[string]string{"first_name": "Alice", "last_name": "Smith", "lab_id": "1"}, red)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.scan(t, "1", red)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decodeDecision(t, rec)
	assert.True(t, d.Granted)
	assert.Equal(t, access.ReasonMatched, d.Reason)
	assert.Equal(t, "Welcome to the lab, Alice Smith!", d.Message)

	d = decodeDecision(t, api.scan(t, "1", red))
	assert.Equal(t, "Welcome back, Alice Smith!", d.Message)
	assert.Len(t, api.store.Events(), 2)
}

func TestScan_Denials(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated,
		api.enroll(t, map[string]string{"first_name": "Alice", "last_name": "Smith", "lab_id": "1"}, red).Code)

	tests := []struct {
		name       string
		lab        string
		color      color.RGBA
		wantReason string
	}{
		{"stranger", "1", blue, access.ReasonNoMatch},
		{"other lab", "2", red, access.ReasonNoMatch},
		{"black frame", "1", color.RGBA{A: 0xff}, access.ReasonNoFaceDetected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.scan(t, tc.lab, tc.color)
			require.Equal(t, http.StatusOK, rec.Code)
			d := decodeDecision(t, rec)
			assert.False(t, d.Granted)
			assert.Equal(t, tc.wantReason, d.Reason)
			assert.Nil(t, d.MemberID)
		})
	}
}

func TestScan_BadInput(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, api.scan(t, "abc", red).Code)
	assert.Empty(t, api.store.Events(), "no lab, no scan")

	tests := []struct {
		name        string
		target      string
		contentType string
		body        []byte
	}{
		{"undecodable image", "/labs/1/scan", "image/jpeg", []byte("junk")},
		{"short raw buffer", "/labs/1/scan?width=40&height=40&order=rgb", "application/octet-stream", make([]byte, 40*40*3-1)},
		{"raw without dimensions", "/labs/1/scan", "application/octet-stream", make([]byte, 12)},
	}

	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.target, bytes.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			rec := api.do(t, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			d := decodeDecision(t, rec)
			assert.False(t, d.Granted)
			assert.Equal(t, access.ReasonInternalError, d.Reason)

			events := api.store.Events()
			require.Len(t, events, i+1)
			assert.Equal(t, access.ReasonInternalError, events[i].Reason)
			assert.Equal(t, int64(1), events[i].LabID)
		})
	}
}

func TestScan_AuditFailure(t *testing.T) {
	api := newTestAPI(t)
	api.store.RecordError = assert.AnError

	assert.Equal(t, http.StatusInternalServerError, api.scan(t, "1", red).Code)
}

func TestEnroll(t *testing.T) {
	api := newTestAPI(t)

	rec := api.enroll(t, map[string]string{"member_id": "42", "first_name": "Bob", "last_name": "Jones", "lab_id": "2"}, blue)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tpl database.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tpl))
	assert.Equal(t, int64(42), tpl.MemberID)
	assert.NotEmpty(t, tpl.FaceHash)

	tests := []struct {
		name       string
		fields     map[string]string
		color      color.RGBA
		wantStatus int
	}{
		{"duplicate id", map[string]string{"member_id": "42", "first_name": "B", "last_name": "J", "lab_id": "2"}, blue, http.StatusConflict},
		{"unknown lab", map[string]string{"first_name": "C", "last_name": "D", "lab_id": "99"}, red, http.StatusNotFound},
		{"missing lab", map[string]string{"first_name": "C", "last_name": "D"}, red, http.StatusBadRequest},
		{"bad member id", map[string]string{"member_id": "x", "first_name": "C", "last_name": "D", "lab_id": "1"}, red, http.StatusBadRequest},
		{"missing name", map[string]string{"last_name": "D", "lab_id": "1"}, red, http.StatusBadRequest},
		{"no face", map[string]string{"first_name": "C", "last_name": "D", "lab_id": "1"}, color.RGBA{A: 0xff}, http.StatusUnprocessableEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.enroll(t, tc.fields, tc.color)
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestMembers_Roster(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated,
		api.enroll(t, map[string]string{"member_id": "1", "first_name": "Alice", "last_name": "Smith", "lab_id": "1"}, red).Code)
	require.Equal(t, http.StatusCreated,
		api.enroll(t, map[string]string{"member_id": "2", "first_name": "Bob", "last_name": "Jones", "lab_id": "2"}, blue).Code)

	var list []database.Template
	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/members", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/members?name=ali", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Alice", list[0].FirstName)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/labs/2/members", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].MemberID)

	assert.Equal(t, http.StatusNotFound, api.do(t, httptest.NewRequest(http.MethodGet, "/labs/7/members", nil)).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, httptest.NewRequest(http.MethodGet, "/members/9", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, httptest.NewRequest(http.MethodGet, "/members/zero", nil)).Code)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/members/1/face", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.NotZero(t, rec.Body.Len())
}

func TestMembers_UpdateAndRemove(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated,
		api.enroll(t, map[string]string{"member_id": "1", "first_name": "Alice", "last_name": "Smith", "lab_id": "1"}, red).Code)

	rec := api.do(t, httptest.NewRequest(http.MethodPut, "/members/1", strings.NewReader(`{"last_name":"Jones","lab_id":2}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tpl database.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tpl))
	assert.Equal(t, "Jones", tpl.LastName)
	assert.Equal(t, int64(2), tpl.LabID)

	d := decodeDecision(t, api.scan(t, "2", red))
	assert.True(t, d.Granted, "moved member is admitted to the new lab")

	assert.Equal(t, http.StatusNotFound,
		api.do(t, httptest.NewRequest(http.MethodPut, "/members/1", strings.NewReader(`{"lab_id":99}`))).Code)
	assert.Equal(t, http.StatusBadRequest,
		api.do(t, httptest.NewRequest(http.MethodPut, "/members/1", strings.NewReader(`{`))).Code)

	assert.Equal(t, http.StatusNoContent, api.do(t, httptest.NewRequest(http.MethodDelete, "/members/1", nil)).Code)
	assert.Equal(t, http.StatusNoContent, api.do(t, httptest.NewRequest(http.MethodDelete, "/members/1", nil)).Code)

	d = decodeDecision(t, api.scan(t, "2", red))
	assert.False(t, d.Granted, "removed member is denied")
}

func TestEvents_List(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated,
		api.enroll(t, map[string]string{"member_id": "5", "first_name": "Alice", "last_name": "Smith", "lab_id": "1"}, red).Code)
	api.scan(t, "1", red)
	api.scan(t, "1", blue)
	api.scan(t, "2", red)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLen    int
	}{
		{"all", "", http.StatusOK, 3},
		{"by lab", "?lab_id=1", http.StatusOK, 2},
		{"by member", "?member_id=5", http.StatusOK, 1},
		{"limit", "?limit=1", http.StatusOK, 1},
		{"bad lab", "?lab_id=x", http.StatusBadRequest, 0},
		{"negative limit", "?limit=-1", http.StatusBadRequest, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(t, httptest.NewRequest(http.MethodGet, "/events"+tc.query, nil))
			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus != http.StatusOK {
				return
			}
			var events []database.AccessEvent
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
			assert.Len(t, events, tc.wantLen)
		})
	}
}

func TestLabs(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, httptest.NewRequest(http.MethodPost, "/labs", strings.NewReader(`{"name":" Bio ","building":"B1","room":"101"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var lab database.Lab
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lab))
	assert.Equal(t, "Bio", lab.Name)
	assert.NotZero(t, lab.ID)

	assert.Equal(t, http.StatusBadRequest,
		api.do(t, httptest.NewRequest(http.MethodPost, "/labs", strings.NewReader(`{"name":"  "}`))).Code)
	assert.Equal(t, http.StatusBadRequest,
		api.do(t, httptest.NewRequest(http.MethodPost, "/labs", strings.NewReader(`nope`))).Code)

	var labs []database.Lab
	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/labs", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &labs))
	assert.Len(t, labs, 3)
}
