// Package report renders a prediction into a printable PDF report.
package report

import (
	"fmt"
	"time"

	"github.com/Brownie44l1/cxr-api/internal/model"
)

// DateLayout is how the report date is printed when none is supplied.
const DateLayout = "January 02, 2006 at 03:04 PM"

const (
	Title             = "CHEST X-RAY ANALYSIS REPORT"
	FindingsTitle     = "AI-ASSISTED DIAGNOSTIC FINDINGS"
	ImageTitle        = "CHEST X-RAY IMAGE"
	InterpretTitle    = "CLINICAL INTERPRETATION"
	RecommendTitle    = "RECOMMENDATIONS"
	NoFindingsLead    = "No abnormalities detected."
	NoFindingsDetail  = " The AI analysis did not identify any significant pathological findings."
	interpretation    = "This report is generated using a DenseNet121-based deep learning model trained on the NIH Chest X-ray14 dataset. The model provides probability scores for 14 different thoracic diseases. "
	interpretationKey = "This is an AI-assisted screening tool and should be reviewed by a qualified radiologist before making any clinical decisions."
	footer            = "This report is computer-generated and does not replace professional medical advice. For questions or concerns, please consult your healthcare provider."
)

// Recommendations are printed whenever at least one finding is present.
var Recommendations = []string{
	"Follow-up with a board-certified radiologist for comprehensive evaluation",
	"Clinical correlation with patient history and symptoms recommended",
	"Consider additional imaging studies if clinically indicated",
	"Correlate findings with physical examination and laboratory results",
}

// FindingColumns heads the findings table.
var FindingColumns = []string{"Disease", "Confidence", "Threshold", "Status"}

// PatientInfo is the optional header data. Empty fields print as defaults.
type PatientInfo struct {
	ReportID    string `json:"report_id"`
	Date        string `json:"date"`
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	Age         string `json:"age"`
	Sex         string `json:"sex"`
}

// Field is one label/value row of the header table.
type Field struct {
	Label string
	Value string
}

// Document is the fixed section plan of a report, in print order. Lead and Detail
// are the emphasised and plain parts of Summary. Rows is the findings table body and
// is nil when nothing was detected.
type Document struct {
	Title           string
	Header          []Field
	Summary         string
	Lead            string
	Detail          string
	Rows            [][]string
	Interpretation  string
	Key             string
	Recommendations []string
	Footer          string
}

// Layout maps results and patient data onto the report sections.
func Layout(results []model.Detection, info PatientInfo, now time.Time) Document {
	date := info.Date
	if date == "" {
		date = now.Format(DateLayout)
	}

	doc := Document{
		Title: Title,
		Header: []Field{
			{"Report ID:", orDefault(info.ReportID, "N/A")},
			{"Date:", date},
			{"Patient ID:", orDefault(info.PatientID, "N/A")},
			{"Patient Name:", orDefault(info.PatientName, "Anonymous")},
			{"Age/Sex:", fmt.Sprintf("%s / %s", orDefault(info.Age, "N/A"), orDefault(info.Sex, "N/A"))},
		},
		Interpretation: interpretation,
		Key:            interpretationKey,
		Footer:         footer,
	}

	if len(results) == 0 {
		doc.Lead = NoFindingsLead
		doc.Detail = NoFindingsDetail
		doc.Summary = NoFindingsLead + NoFindingsDetail
		return doc
	}

	doc.Lead = fmt.Sprintf("Found %d potential abnormality(ies):", len(results))
	doc.Summary = doc.Lead
	doc.Rows = make([][]string, 0, len(results))
	for _, r := range results {
		status := "Not Detected"
		if r.Detected {
			status = "DETECTED"
		}
		doc.Rows = append(doc.Rows, []string{
			r.Disease,
			Percent(r.Confidence),
			Percent(r.Threshold),
			status,
		})
	}
	doc.Recommendations = append([]string(nil), Recommendations...)
	return doc
}

// Percent formats a [0,1] value as a percentage with one decimal.
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
