package export

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

const fontFamily = "Helvetica"

type fpdfMeasurer struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (m fpdfMeasurer) Width(text string, size float64, bold bool) float64 {
	m.pdf.SetFont(fontFamily, fontStyle(bold), size)
	return m.pdf.GetStringWidth(m.tr(text))
}

func fontStyle(bold bool) string {
	if bold {
		return "B"
	}
	return ""
}

// RenderPDF renders one document to PDF bytes.
func RenderPDF(title, content string) ([]byte, error) {
	return renderPDF(title, content, true)
}

func renderPDF(title, content string, compress bool) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(compress)
	pdf.SetTitle(title, true)
	// Core fonts are cp1252; the translator maps the bullet and other UTF-8 runes.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	layout := Compose(title, content, fpdfMeasurer{pdf: pdf, tr: tr})
	for _, page := range layout.Pages {
		pdf.AddPage()
		for _, l := range page.Lines {
			pdf.SetFont(fontFamily, fontStyle(l.Bold), l.Size)
			pdf.Text(l.X, l.Y, tr(l.Text))
		}
		pdf.SetFont(fontFamily, "", page.Footer.Size)
		pdf.Text(page.Footer.X, page.Footer.Y, tr(page.Footer.Text))
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
