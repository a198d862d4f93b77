package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Brownie44l1/cxr-api/internal/model"
	"github.com/Brownie44l1/cxr-api/internal/session"
)

// SessionCookie names the cookie carrying the dashboard session ID.
const SessionCookie = "cxr_session"

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
}).ParseFS(templateFS, "templates/*.html"))

type resultRow struct {
	Disease   string
	Score     string
	Threshold string
	Detected  bool
}

type dashboardView struct {
	Theme      session.Theme
	View       session.View
	Error      string
	Filename   string
	HasResult  bool
	Detections []model.Detection
	Classes    int
	Rows       []resultRow
	Chart      *barChart
}

// loadState returns the caller's session, issuing a cookie when it is new.
func (h *Handler) loadState(w http.ResponseWriter, r *http.Request) (*session.State, error) {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}

	st, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}

	if st.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    st.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return st, nil
}

// update loads the session, applies fn, saves and redirects back to the dashboard.
func (h *Handler) update(w http.ResponseWriter, r *http.Request, fn func(*session.State)) {
	st, err := h.loadState(w, r)
	if err != nil {
		log.Printf("Session error: %v", err)
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}

	fn(st)
	h.saveAndReturn(w, r, st)
}

// saveAndReturn stores st and redirects back to the dashboard.
func (h *Handler) saveAndReturn(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := h.sessions.Save(r.Context(), st); err != nil {
		log.Printf("Session error: %v", err)
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Dashboard renders the upload form, the last result and the selected details panel.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadState(w, r)
	if err != nil {
		log.Printf("Session error: %v", err)
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}

	// Reading the page only changes the session when it consumes a pending error.
	consumed := st.Error != ""
	view := h.buildView(st)
	if consumed {
		if err := h.sessions.Save(r.Context(), st); err != nil {
			log.Printf("Session error: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "dashboard.html", view); err != nil {
		log.Printf("Template error: %v", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("Error writing page: %v", err)
	}
}

func (h *Handler) buildView(st *session.State) dashboardView {
	view := dashboardView{
		Theme:    st.Theme,
		View:     st.View,
		Error:    st.TakeError(),
		Filename: st.Filename,
		Classes:  len(h.model.Catalog()),
	}
	if st.Result == nil {
		return view
	}

	view.HasResult = true
	view.Detections = st.Result.Detections

	catalog := h.model.Catalog()
	thresholds := h.model.Thresholds()
	switch st.View {
	case session.ViewTable:
		view.Rows = make([]resultRow, len(catalog))
		for i, name := range catalog {
			score := st.Result.AllScores[name]
			view.Rows[i] = resultRow{
				Disease:   name,
				Score:     fmt.Sprintf("%.4f", score),
				Threshold: fmt.Sprintf("%.4f", thresholds[i]),
				Detected:  score >= thresholds[i],
			}
		}
	case session.ViewChart:
		view.Chart = newBarChart(catalog, st.Result.AllScores, thresholds)
	}
	return view
}

// Analyze runs the classifier on an uploaded image and stores the result in the session.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	up, uploadErr := h.readUpload(w, r)

	h.update(w, r, func(st *session.State) {
		if uploadErr != nil {
			_, msg := statusFor(uploadErr)
			st.Fail(msg)
			return
		}

		result, err := h.model.Predict(up.img, true)
		if err != nil {
			log.Printf("Prediction error: %v", err)
			_, msg := statusFor(err)
			st.Fail("Analysis error: " + msg)
			return
		}

		log.Printf("Session %s: %d detections for %s", st.ID, len(result.Detections), up.filename)
		st.SetResult(up.data, up.filename, result)
	})
}

// SetView switches the details panel between table, chart and none.
func (h *Handler) SetView(w http.ResponseWriter, r *http.Request) {
	v, ok := session.ParseView(mux.Vars(r)["mode"])
	if !ok {
		http.Error(w, "Unknown view", http.StatusBadRequest)
		return
	}

	h.update(w, r, func(st *session.State) {
		st.SetView(v)
	})
}

func (h *Handler) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(st *session.State) {
		st.ToggleTheme()
	})
}

// UploadedImage serves the image behind the session's last result.
func (h *Handler) UploadedImage(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadState(w, r)
	if err != nil {
		log.Printf("Session error: %v", err)
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}
	if len(st.Upload) == 0 {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(st.Upload))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(st.Upload); err != nil {
		log.Printf("Error writing image: %v", err)
	}
}

// SessionReport exports the session's last result as a PDF.
func (h *Handler) SessionReport(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadState(w, r)
	if err != nil {
		log.Printf("Session error: %v", err)
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}

	if st.Result == nil || len(st.Upload) == 0 {
		st.Error = "Analyze an image before exporting a report"
		h.saveAndReturn(w, r, st)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	if err := h.serveReport(w, st.Result.Detections, st.Upload, st.Filename, patientInfo(r)); err != nil {
		log.Printf("Report error: %v", err)
		_, st.Error = statusFor(err)
		h.saveAndReturn(w, r, st)
	}
}
