package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/Brownie44l1/cxr-api/internal/model"
	"github.com/Brownie44l1/cxr-api/internal/report"
)

type classInfo struct {
	Name      string  `json:"name"`
	Threshold float64 `json:"threshold"`
	Weight    float32 `json:"weight,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"classes": len(h.model.Catalog()),
	})
}

// Classes lists the catalog with the threshold in force for each class.
func (h *Handler) Classes(w http.ResponseWriter, r *http.Request) {
	catalog := h.model.Catalog()
	thresholds := h.model.Thresholds()
	weights := h.model.ClassWeights()

	out := make([]classInfo, len(catalog))
	for i, name := range catalog {
		out[i] = classInfo{Name: name, Threshold: thresholds[i]}
		if len(weights) == len(catalog) {
			out[i].Weight = weights[i]
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// Predict runs the network on an already preprocessed input array.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	var req model.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if ue := h.bodyTooLarge(err); ue != nil {
			respondError(w, ue.status, ue.message)
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	expected := h.model.InputLen()
	if len(req.Image) != expected {
		respondError(w, http.StatusBadRequest, "Invalid image size")
		log.Printf("Expected %d values, got %d", expected, len(req.Image))
		return
	}

	result, err := h.model.PredictTensor(req.Image, true)
	if err != nil {
		log.Printf("Prediction error: %v", err)
		status, msg := statusFor(err)
		respondError(w, status, msg)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// PredictFromImage accepts a multipart upload in the "image" field.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		status, msg := statusFor(err)
		respondError(w, status, msg)
		return
	}

	result, err := h.model.Predict(up.img, true)
	if err != nil {
		log.Printf("Prediction error: %v", err)
		status, msg := statusFor(err)
		respondError(w, status, msg)
		return
	}

	log.Printf("Detections: %d of %d classes", len(result.Detections), len(h.model.Catalog()))
	respondJSON(w, http.StatusOK, result)
}

// Report predicts on the uploaded image and returns the PDF report. Patient fields
// are read from the same form.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r)
	if err != nil {
		status, msg := statusFor(err)
		respondError(w, status, msg)
		return
	}

	result, err := h.model.Predict(up.img, false)
	if err != nil {
		log.Printf("Prediction error: %v", err)
		status, msg := statusFor(err)
		respondError(w, status, msg)
		return
	}

	info := patientInfo(r)
	if err := h.serveReport(w, result.Detections, up.data, up.filename, info); err != nil {
		log.Printf("Report error: %v", err)
		status, msg := statusFor(err)
		respondError(w, status, msg)
	}
}

func patientInfo(r *http.Request) report.PatientInfo {
	return report.PatientInfo{
		ReportID:    r.FormValue("report_id"),
		Date:        r.FormValue("date"),
		PatientID:   r.FormValue("patient_id"),
		PatientName: r.FormValue("patient_name"),
		Age:         r.FormValue("age"),
		Sex:         r.FormValue("sex"),
	}
}
