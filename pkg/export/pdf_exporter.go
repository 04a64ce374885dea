package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets into a tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with the dataset title and table body.
// Column widths follow the dataset's weights; with grouping enabled a
// leading-column value repeated on consecutive rows prints once.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	widths := columnWidths(data)
	pdf.SetFont("Arial", "B", 10)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	previousLead := ""
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			value := row[header]
			if i == 0 && data.GroupByLeadingColumn {
				if value == previousLead {
					value = ""
				} else {
					previousLead = row[header]
				}
			}
			pdf.CellFormat(widths[i], 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths distributes the printable A4 width across the headers
// proportionally to their weights.
func columnWidths(data Dataset) []float64 {
	const tableWidth = 190.0
	weights := make([]float64, len(data.Headers))
	total := 0.0
	for i, header := range data.Headers {
		weight := 1.0
		if custom, ok := data.ColumnWeights[header]; ok && custom > 0 {
			weight = custom
		}
		weights[i] = weight
		total += weight
	}
	widths := make([]float64, len(weights))
	for i, weight := range weights {
		widths[i] = tableWidth * weight / total
	}
	return widths
}
