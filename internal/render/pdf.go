// Package render lays out certificate PDFs.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

// ErrEmptyDocument is returned when the PDF writer produced no bytes.
var ErrEmptyDocument = errors.New("render produced an empty document")

// Certificate holds the display fields printed on the document.
type Certificate struct {
	SubjectName  string
	Course       string
	Grade        string // optional; the grade line is omitted when empty
	Institution  string
	IssuerName   string
	CredentialID string
	IssueDate    time.Time
}

// PDFRenderer draws a single landscape A4 page.  It holds no state between
// calls and is safe for concurrent use.
type PDFRenderer struct {
	// Title is the heading printed at the top of the page.
	Title string
}

// NewPDFRenderer returns a renderer with the default heading.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Title: "Certificate of Completion"}
}

// Render returns the complete document or an error; partial output is never
// returned.
func (r *PDFRenderer) Render(c Certificate) ([]byte, error) {
	doc := r.layout(c)
	if doc.Err() {
		return nil, fmt.Errorf("layout: %w", doc.Error())
	}
	return collect(doc.Output)
}

func (r *PDFRenderer) layout(c Certificate) *fpdf.Fpdf {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(r.Title+" - "+c.SubjectName), false)
	pdf.SetAuthor(tr(c.IssuerName), false)
	pdf.SetCreator("certichain", false)
	pdf.SetCreationDate(c.IssueDate)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	w, h := pdf.GetPageSize()
	content := w - 40

	// double frame
	pdf.SetDrawColor(139, 0, 0)
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, w-28, h-28, "D")

	pdf.SetTextColor(30, 30, 30)
	if c.Institution != "" {
		pdf.SetXY(20, 24)
		pdf.SetFont("Helvetica", "B", 16)
		pdf.CellFormat(content, 8, tr(c.Institution), "", 1, "C", false, 0, "")
	}

	pdf.SetXY(20, 38)
	pdf.SetFont("Helvetica", "B", 34)
	pdf.CellFormat(content, 16, tr(r.Title), "", 1, "C", false, 0, "")

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 18)
	pdf.CellFormat(content, 10, "This is to certify that", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 28)
	pdf.CellFormat(content, 14, tr(c.SubjectName), "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 18)
	pdf.CellFormat(content, 10, "has successfully completed the course", "", 1, "C", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(content, 12, tr(c.Course), "", 1, "C", false, 0, "")

	if c.Grade != "" {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "", 18)
		pdf.CellFormat(content, 10, tr(fmt.Sprintf("with a grade of %q.", c.Grade)), "", 1, "C", false, 0, "")
	}

	// footer: date left, issuer right, credential id centred below
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetXY(30, h-50)
	pdf.CellFormat(content/2, 8, "Issued on: "+c.IssueDate.Format("January 2, 2006"), "", 0, "L", false, 0, "")
	pdf.SetXY(w/2, h-50)
	pdf.CellFormat(content/2-10, 8, tr("Issuing Authority: "+c.IssuerName), "", 0, "R", false, 0, "")

	pdf.SetFont("Courier", "", 10)
	pdf.SetXY(20, h-32)
	pdf.CellFormat(content, 6, "Credential ID: "+c.CredentialID, "", 0, "C", false, 0, "")
	return pdf
}

// collect runs out against a buffer and guards against empty output.
func collect(out func(io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := out(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	if buf.Len() == 0 {
		return nil, ErrEmptyDocument
	}
	return buf.Bytes(), nil
}
