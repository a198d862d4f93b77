package handlers

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/Brownie44l1/cxr-api/internal/imaging"
	"github.com/Brownie44l1/cxr-api/internal/model"
	"github.com/Brownie44l1/cxr-api/internal/report"
	"github.com/Brownie44l1/cxr-api/internal/session"
)

const defaultMaxUploadBytes = 10 << 20

// Options controls upload limits and report output.
type Options struct {
	MaxUploadBytes int64
	ReportDir      string
	KeepReports    bool
}

type Handler struct {
	model    *model.Classifier
	sessions session.Store
	renderer *report.Renderer
	opts     Options
}

func NewHandler(classifier *model.Classifier, sessions session.Store, renderer *report.Renderer, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if renderer == nil {
		renderer = report.NewRenderer()
	}
	return &Handler{
		model:    classifier,
		sessions: sessions,
		renderer: renderer,
		opts:     opts,
	}
}

// RegisterRoutes mounts the dashboard at / and the JSON API under /api.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.Dashboard).Methods(http.MethodGet)
	r.HandleFunc("/analyze", h.Analyze).Methods(http.MethodPost)
	r.HandleFunc("/view/{mode}", h.SetView).Methods(http.MethodPost)
	r.HandleFunc("/theme", h.ToggleTheme).Methods(http.MethodPost)
	r.HandleFunc("/upload", h.UploadedImage).Methods(http.MethodGet)
	r.HandleFunc("/report", h.SessionReport).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	api.HandleFunc("/classes", h.Classes).Methods(http.MethodGet)
	api.HandleFunc("/predict", h.Predict).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/predict/image", h.PredictFromImage).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/report", h.Report).Methods(http.MethodPost, http.MethodOptions)
}

// CORS allows browser clients on other origins to call the JSON API.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Logging prints one line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// upload is a decoded image file taken from a multipart form.
type upload struct {
	data     []byte
	filename string
	img      image.Image
}

// uploadError carries the HTTP status and user-facing message for a rejected upload.
type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

// bodyTooLarge reports a body cut off by http.MaxBytesReader, or nil for any other error.
func (h *Handler) bodyTooLarge(err error) *uploadError {
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		return nil
	}
	return &uploadError{http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Image exceeds the %d MB upload limit", h.opts.MaxUploadBytes>>20)}
}

// readUpload parses the multipart form and decodes its "image" field.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		if ue := h.bodyTooLarge(err); ue != nil {
			return nil, ue
		}
		return nil, &uploadError{http.StatusBadRequest, "Failed to parse form"}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, "No image file provided. Use 'image' as the form field name"}
	}
	defer file.Close()

	log.Printf("Received file: %s, size: %d bytes", header.Filename, header.Size)

	if !imaging.IsSupported(header.Filename) {
		return nil, &uploadError{http.StatusBadRequest, "Unsupported file type. Supported: PNG, JPG, JPEG"}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, "Failed to read uploaded file"}
	}

	img, format, err := imaging.Decode(data)
	if err != nil {
		log.Printf("Decode error: %v", err)
		if errors.Is(err, imaging.ErrTooLarge) {
			return nil, &uploadError{http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Image exceeds the %d megapixel limit", imaging.MaxPixels/1_000_000)}
		}
		return nil, &uploadError{http.StatusBadRequest, "Could not process image. Supported: PNG, JPG, JPEG"}
	}

	log.Printf("Image format: %s, dimensions: %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())

	return &upload{data: data, filename: header.Filename, img: img}, nil
}

// statusFor maps a prediction or report error onto an HTTP status and message.
func statusFor(err error) (int, string) {
	var ue *uploadError
	switch {
	case errors.As(err, &ue):
		return ue.status, ue.message
	case errors.Is(err, report.ErrRender):
		return http.StatusInternalServerError, "Report generation failed"
	case errors.Is(err, imaging.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "Image too large"
	case errors.Is(err, imaging.ErrDecode):
		return http.StatusBadRequest, "Could not process image"
	case errors.Is(err, model.ErrInference):
		return http.StatusInternalServerError, "Prediction failed"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
