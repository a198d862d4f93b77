package report

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/Brownie44l1/cxr-api/internal/imaging"
	"github.com/Brownie44l1/cxr-api/internal/model"
)

// ErrRender is returned when the image cannot be read or the PDF cannot be written.
// A partially written file may be left at the output path.
var ErrRender = errors.New("report render failed")

const (
	margin     = 0.75
	imageSide  = 4.0
	fontFamily = "Helvetica"
)

// Renderer writes reports as Letter-size PDFs.
type Renderer struct {
	// Now supplies the report date when the patient info has none.
	Now func() time.Time
	// Compress toggles stream compression in the output file.
	Compress bool
}

func NewRenderer() *Renderer {
	return &Renderer{Now: time.Now, Compress: true}
}

// Render lays out results, patient info and the X-ray at imagePath, writes the PDF to
// outputPath and returns outputPath.
func (r *Renderer) Render(results []model.Detection, imagePath string, info PatientInfo, outputPath string) (string, error) {
	img, err := imaging.DecodeFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}

	// Re-encode so every accepted upload reaches the PDF as 8-bit RGB.
	var xray bytes.Buffer
	if err := jpeg.Encode(&xray, img, &jpeg.Options{Quality: 95}); err != nil {
		return "", fmt.Errorf("%w: encode image: %w", ErrRender, err)
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	doc := Layout(results, info, now())

	pdf := fpdf.New("P", "in", "Letter", "")
	pdf.SetCompression(r.Compress)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("cxr-api", true)
	pdf.AddPage()

	w := &writer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	w.title(doc.Title)
	w.header(doc.Header)
	pdf.Ln(0.3)

	w.section(FindingsTitle)
	pdf.Ln(0.1)
	w.emphasised(doc.Lead, doc.Detail, false)
	if doc.Rows != nil {
		pdf.Ln(0.1)
		w.findings(doc.Rows)
	}
	pdf.Ln(0.3)

	w.section(ImageTitle)
	pdf.Ln(0.1)
	w.image(xray.Bytes())
	pdf.Ln(0.3)

	w.section(InterpretTitle)
	w.emphasised(doc.Interpretation, doc.Key, true)
	pdf.Ln(0.2)

	if len(doc.Recommendations) > 0 {
		w.section(RecommendTitle)
		w.bullets(doc.Recommendations)
	}
	pdf.Ln(0.4)

	w.footer(doc.Footer)

	if pdf.Err() {
		return "", fmt.Errorf("%w: %w", ErrRender, pdf.Error())
	}
	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}
	return outputPath, nil
}

type writer struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (w *writer) title(text string) {
	w.pdf.SetFont(fontFamily, "B", 24)
	w.pdf.SetTextColor(0x1e, 0x3a, 0x8a)
	w.pdf.CellFormat(0, 0.45, w.tr(text), "", 1, "C", false, 0, "")
	w.pdf.Ln(0.2)
}

func (w *writer) header(fields []Field) {
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.SetDrawColor(128, 128, 128)
	w.pdf.SetLineWidth(0.5 / 72)
	for _, f := range fields {
		w.pdf.SetFont(fontFamily, "B", 10)
		w.pdf.CellFormat(1.5, 0.3, w.tr(f.Label), "1", 0, "L", false, 0, "")
		w.pdf.SetFont(fontFamily, "", 10)
		w.pdf.CellFormat(4.5, 0.3, w.tr(f.Value), "1", 1, "L", false, 0, "")
	}
}

func (w *writer) section(text string) {
	w.pdf.Ln(0.1)
	w.pdf.SetFont(fontFamily, "B", 16)
	w.pdf.SetTextColor(0x25, 0x63, 0xeb)
	w.pdf.CellFormat(0, 0.3, w.tr(text), "", 1, "L", false, 0, "")
	w.pdf.SetTextColor(0, 0, 0)
}

// emphasised writes first and second as one paragraph. first is bold unless boldLast
// is set, in which case second is.
func (w *writer) emphasised(first, second string, boldLast bool) {
	firstStyle, secondStyle := "B", ""
	if boldLast {
		firstStyle, secondStyle = "", "B"
	}
	w.pdf.SetFont(fontFamily, firstStyle, 11)
	w.pdf.Write(0.2, w.tr(first))
	if second != "" {
		w.pdf.SetFont(fontFamily, secondStyle, 11)
		w.pdf.Write(0.2, w.tr(second))
	}
	w.pdf.Ln(0.3)
}

func (w *writer) findings(rows [][]string) {
	widths := []float64{2.5, 1.3, 1.3, 1.5}

	w.pdf.SetDrawColor(0, 0, 0)
	w.pdf.SetLineWidth(1.0 / 72)
	w.pdf.SetFillColor(0x25, 0x63, 0xeb)
	w.pdf.SetTextColor(0xf5, 0xf5, 0xf5)
	w.pdf.SetFont(fontFamily, "B", 11)
	for i, col := range FindingColumns {
		w.pdf.CellFormat(widths[i], 0.35, w.tr(col), "1", 0, "C", true, 0, "")
	}
	w.pdf.Ln(-1)

	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.SetFont(fontFamily, "", 10)
	for r, row := range rows {
		if r%2 == 0 {
			w.pdf.SetFillColor(0xff, 0xff, 0xff)
		} else {
			w.pdf.SetFillColor(0xd3, 0xd3, 0xd3)
		}
		for i, cell := range row {
			w.pdf.CellFormat(widths[i], 0.3, w.tr(cell), "1", 0, "C", true, 0, "")
		}
		w.pdf.Ln(-1)
	}
}

func (w *writer) image(data []byte) {
	pageW, pageH := w.pdf.GetPageSize()
	if w.pdf.GetY()+imageSide > pageH-margin {
		w.pdf.AddPage()
	}

	opts := fpdf.ImageOptions{ImageType: "jpg"}
	w.pdf.RegisterImageOptionsReader("xray", opts, bytes.NewReader(data))

	x := (pageW - imageSide) / 2
	y := w.pdf.GetY()
	w.pdf.ImageOptions("xray", x, y, imageSide, imageSide, false, opts, 0, "")
	w.pdf.SetY(y + imageSide)
}

func (w *writer) bullets(items []string) {
	w.pdf.SetFont(fontFamily, "", 11)
	for _, item := range items {
		w.pdf.MultiCell(0, 0.2, w.tr("• "+item), "", "L", false)
	}
}

func (w *writer) footer(text string) {
	pageW, _ := w.pdf.GetPageSize()
	y := w.pdf.GetY()
	w.pdf.SetDrawColor(0, 0, 0)
	w.pdf.SetLineWidth(0.5 / 72)
	w.pdf.Line(margin, y, pageW-margin, y)
	w.pdf.Ln(0.15)

	w.pdf.SetFont(fontFamily, "I", 9)
	w.pdf.SetTextColor(128, 128, 128)
	w.pdf.MultiCell(0, 0.17, w.tr(text), "", "C", false)
}
