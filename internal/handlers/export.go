package handlers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Brownie44l1/cxr-api/internal/model"
	"github.com/Brownie44l1/cxr-api/internal/report"
)

// serveReport renders results and the uploaded image to a PDF in the report
// directory and streams it back as an attachment.
func (h *Handler) serveReport(w http.ResponseWriter, results []model.Detection, data []byte, filename string, info report.PatientInfo) error {
	if info.ReportID == "" {
		info.ReportID = newReportID()
	}

	dir := h.opts.ReportDir
	if dir == "" {
		dir = os.TempDir()
	}

	imagePath, err := writeTemp(dir, filename, data)
	if err != nil {
		return err
	}
	defer os.Remove(imagePath)

	outputPath := filepath.Join(dir, "report-"+uuid.NewString()+".pdf")
	if !h.opts.KeepReports {
		defer os.Remove(outputPath)
	}
	if _, err := h.renderer.Render(results, imagePath, info, outputPath); err != nil {
		return err
	}

	pdf, err := os.ReadFile(outputPath)
	if err != nil {
		return errors.Wrap(err, "read report")
	}

	log.Printf("Report %s written to %s (%d bytes)", info.ReportID, outputPath, len(pdf))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachmentName(info.ReportID)))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		log.Printf("Error writing report: %v", err)
	}
	return nil
}

// writeTemp stores the upload under dir, keeping its extension so the decoder
// sees the same file type.
func writeTemp(dir, filename string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", errors.Wrap(err, "create upload file")
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, "write upload file")
	}
	return f.Name(), nil
}

func newReportID() string {
	return "CXR-" + strings.ToUpper(uuid.NewString()[:8])
}

// attachmentName keeps only filename-safe characters of the report ID.
func attachmentName(reportID string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, reportID)
	return "chest_xray_report_" + clean + ".pdf"
}
