package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/cxr-api/internal/imaging"
	"github.com/Brownie44l1/cxr-api/internal/model"
	"github.com/Brownie44l1/cxr-api/internal/report"
	"github.com/Brownie44l1/cxr-api/internal/session"
)

type fakeNetwork struct {
	scores []float32
}

func (f *fakeNetwork) Run([]float32) ([]float32, error) {
	return append([]float32(nil), f.scores...), nil
}

func (f *fakeNetwork) Close() error { return nil }

type testServer struct {
	router    *mux.Router
	store     *session.MemoryStore
	reportDir string
	cookie    *http.Cookie
}

func mustClassifier(t *testing.T) *model.Classifier {
	t.Helper()
	classifier, err := model.NewClassifier(
		model.Metadata{ClassNames: []string{"Atelectasis", "Effusion", "Mass"}, ImageSize: 8},
		[]float64{0.5, 0.5, 0.5},
		nil,
		&fakeNetwork{scores: []float32{0.62, 0.1, 0.9}},
	)
	require.NoError(t, err)
	return classifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	classifier := mustClassifier(t)

	dir := t.TempDir()
	store := session.NewMemoryStore()
	h := NewHandler(classifier, store, report.NewRenderer(), Options{
		MaxUploadBytes: 1 << 20,
		ReportDir:      dir,
	})

	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return &testServer{router: r, store: store, reportDir: dir}
}

// do serves req, carrying the session cookie across calls.
func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			s.cookie = c
		}
	}
	return w
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, field, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, float64(3), response["classes"])
}

func TestClassesEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/classes", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var classes []classInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&classes))
	require.Len(t, classes, 3)
	assert.Equal(t, "Atelectasis", classes[0].Name)
	assert.Equal(t, 0.5, classes[0].Threshold)
}

func TestPredictRawArray(t *testing.T) {
	s := newTestServer(t)

	body, err := json.Marshal(model.PredictionRequest{Image: make([]float32, 3*8*8)})
	require.NoError(t, err)

	w := s.do(httptest.NewRequest(http.MethodPost, "/api/predict", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	var p model.Prediction
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	require.Len(t, p.Detections, 2)
	assert.Equal(t, "Mass", p.Detections[0].Disease)
	assert.Equal(t, "Atelectasis", p.Detections[1].Disease)
	assert.Len(t, p.AllScores, 3)
}

func TestPredictRawArrayErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"image": [0.1, 0.2]}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictRawArrayBodyLimit(t *testing.T) {
	s := newTestServer(t)

	body := `{"image": [` + strings.Repeat("0.5,", 400_000) + `0.5]}`
	require.Greater(t, len(body), 1<<20)

	w := s.do(httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPredictFromImage(t *testing.T) {
	s := newTestServer(t)

	w := s.do(multipartRequest(t, "/api/predict/image", "image", "xray.png", pngBytes(t), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var p model.Prediction
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	require.Len(t, p.Detections, 2)
	assert.Equal(t, "Mass", p.Detections[0].Disease)
	assert.InDelta(t, 0.9, p.Detections[0].Confidence, 1e-6)
}

func TestPredictFromImageRejectsBadUploads(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]*http.Request{
		"missing field": multipartRequest(t, "/api/predict/image", "", "", nil, map[string]string{"x": "y"}),
		"wrong field":   multipartRequest(t, "/api/predict/image", "file", "xray.png", pngBytes(t), nil),
		"text file":     multipartRequest(t, "/api/predict/image", "image", "notes.txt", []byte("hello"), nil),
		"corrupt png":   multipartRequest(t, "/api/predict/image", "image", "xray.png", []byte("not a png"), nil),
		"not multipart": httptest.NewRequest(http.MethodPost, "/api/predict/image", strings.NewReader("raw")),
	}
	for name, req := range cases {
		w := s.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)

		var response map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response), name)
		assert.NotEmpty(t, response["error"], name)
	}
}

func TestPredictFromImageRejectsTooManyPixels(t *testing.T) {
	defer func(prev int) { imaging.MaxPixels = prev }(imaging.MaxPixels)
	imaging.MaxPixels = 100

	s := newTestServer(t)
	w := s.do(multipartRequest(t, "/api/predict/image", "image", "xray.png", pngBytes(t), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response["error"], "megapixel")
}

func TestReportEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := multipartRequest(t, "/api/report", "image", "xray.png", pngBytes(t), map[string]string{
		"report_id":    "CXR/42",
		"patient_name": "Sam Roe",
	})
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "chest_xray_report_CXR_42.pdf")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	entries, err := os.ReadDir(s.reportDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "report and upload should be removed")
}

func TestDashboardInitialPage(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Upload a chest X-ray image")
	require.NotNil(t, s.cookie, "session cookie should be issued")
}

func TestDashboardGetDoesNotStoreSessions(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 0, s.store.Len())

	s.do(httptest.NewRequest(http.MethodPost, "/theme", nil))
	assert.Equal(t, 1, s.store.Len())
	s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, s.store.Len())
}

func TestDashboardAnalyzeAndViews(t *testing.T) {
	s := newTestServer(t)
	s.do(httptest.NewRequest(http.MethodGet, "/", nil))

	w := s.do(multipartRequest(t, "/analyze", "image", "xray.png", pngBytes(t), nil))
	require.Equal(t, http.StatusSeeOther, w.Code)

	page := s.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, "Predicted Diseases")
	assert.Contains(t, page, `<div class="disease-badge"`)
	assert.Less(t, strings.Index(page, ">Mass<"), strings.Index(page, ">Atelectasis<"), "badges follow confidence order")
	assert.NotContains(t, page, "Detailed Results (All")

	w = s.do(httptest.NewRequest(http.MethodPost, "/view/table", nil))
	require.Equal(t, http.StatusSeeOther, w.Code)
	page = s.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, "Detailed Results (All 3 Classes)")
	assert.Contains(t, page, "0.9000")
	assert.Contains(t, page, "0.5000")
	assert.Contains(t, page, "YES")
	assert.Contains(t, page, "NO")
	assert.NotContains(t, page, "<svg")

	s.do(httptest.NewRequest(http.MethodPost, "/view/chart", nil))
	page = s.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, "<svg")
	assert.Contains(t, page, colorAbove)
	assert.Contains(t, page, colorBelow)
	assert.NotContains(t, page, "Detailed Results (All")

	s.do(httptest.NewRequest(http.MethodPost, "/view/none", nil))
	page = s.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.NotContains(t, page, "<svg")
}

func TestDashboardUnknownView(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodPost, "/view/pie", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardAnalyzeBadUpload(t *testing.T) {
	s := newTestServer(t)
	s.do(httptest.NewRequest(http.MethodGet, "/", nil))

	w := s.do(multipartRequest(t, "/analyze", "image", "xray.png", []byte("garbage"), nil))
	require.Equal(t, http.StatusSeeOther, w.Code)

	page := s.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, "Could not process image")
	assert.NotContains(t, page, "Predicted Diseases")

	page = s.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.NotContains(t, page, "Could not process image", "error is shown once")
}

func TestDashboardThemeToggle(t *testing.T) {
	s := newTestServer(t)

	page := s.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, `<body class="light">`)

	s.do(httptest.NewRequest(http.MethodPost, "/theme", nil))
	page = s.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, `<body class="dark">`)
}

func TestSessionsAreIsolated(t *testing.T) {
	a := newTestServer(t)
	a.do(httptest.NewRequest(http.MethodGet, "/", nil))
	a.do(httptest.NewRequest(http.MethodPost, "/theme", nil))

	// A second browser on the same router gets its own state.
	b := &testServer{router: a.router}
	page := b.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, `<body class="light">`)
	assert.NotEqual(t, a.cookie.Value, b.cookie.Value)
}

func TestUploadedImage(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	data := pngBytes(t)
	s.do(multipartRequest(t, "/analyze", "image", "xray.png", data, nil))

	w = s.do(httptest.NewRequest(http.MethodGet, "/upload", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, data, w.Body.Bytes())
}

func TestSessionReport(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodPost, "/report", nil))
	require.Equal(t, http.StatusSeeOther, w.Code)
	page := s.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, "Analyze an image before exporting a report")

	s.do(multipartRequest(t, "/analyze", "image", "xray.png", pngBytes(t), nil))

	req := httptest.NewRequest(http.MethodPost, "/report", strings.NewReader("patient_id=P-7&age=61"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestSessionReportRenderFailureLeavesNoFiles(t *testing.T) {
	s := newTestServer(t)
	s.do(multipartRequest(t, "/analyze", "image", "xray.png", pngBytes(t), nil))

	defer func(prev int) { imaging.MaxPixels = prev }(imaging.MaxPixels)
	imaging.MaxPixels = 1

	w := s.do(httptest.NewRequest(http.MethodPost, "/report", nil))
	require.Equal(t, http.StatusSeeOther, w.Code)

	page := s.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	assert.Contains(t, page, "Report generation failed")

	entries, err := os.ReadDir(s.reportDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed render should leave no upload or report behind")
}

func TestReportKeptWhenConfigured(t *testing.T) {
	s := newTestServer(t)
	h := NewHandler(mustClassifier(t), session.NewMemoryStore(), report.NewRenderer(), Options{
		ReportDir:   s.reportDir,
		KeepReports: true,
	})
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/report", "image", "xray.png", pngBytes(t), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	entries, err := os.ReadDir(s.reportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the PDF is kept")
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".pdf"))
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	s.router.Use(CORS)

	w := s.do(httptest.NewRequest(http.MethodOptions, "/api/predict", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAttachmentName(t *testing.T) {
	assert.Equal(t, "chest_xray_report_CXR-1A2B.pdf", attachmentName("CXR-1A2B"))
	assert.Equal(t, "chest_xray_report_______etc.pdf", attachmentName("../../etc"))
	assert.True(t, strings.HasPrefix(newReportID(), "CXR-"))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&uploadError{http.StatusBadRequest, "bad"}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", imaging.ErrTooLarge), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("wrap: %w", imaging.ErrDecode), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", model.ErrInference), http.StatusInternalServerError},
		{fmt.Errorf("%w: %w", report.ErrRender, imaging.ErrTooLarge), http.StatusInternalServerError},
		{os.ErrNotExist, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, msg := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
}
