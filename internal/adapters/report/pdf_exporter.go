// Package report generates a PDF diagnostic summary of the BSS table and
// connection history.
package report

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/net80211/station/internal/adapters/history"
)

// Summary is the input to Exporter.Export: a snapshot of the BSS table and
// recent connection history for one link, assembled by the control
// surface before handing off to the report generator.
type Summary struct {
	Link        string
	GeneratedAt string
	Sightings   []history.BSSSighting
	Events      []history.ConnectionEvent
}

// Exporter renders a Summary to PDF.
type Exporter struct{}

// NewExporter creates a new PDF exporter instance.
func NewExporter() *Exporter { return &Exporter{} }

// Export generates a diagnostic PDF report from a Summary.
func (e *Exporter) Export(summary *Summary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, summary)
	e.addSightings(pdf, summary)
	e.addEvents(pdf, summary)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) addHeader(pdf *gofpdf.Fpdf, summary *Summary) {
	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 12, fmt.Sprintf("Station Report: %s", summary.Link), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", summary.GeneratedAt), "", 1, "L", false, 0, "")
	pdf.Ln(8)
}

func (e *Exporter) addSightings(pdf *gofpdf.Fpdf, summary *Summary) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, "BSS Sightings", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, h := range []string{"SSID", "BSSID", "Channel", "RSSI", "Observed"} {
		pdf.CellFormat(38, 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, s := range summary.Sightings {
		pdf.CellFormat(38, 6, s.SSID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(38, 6, s.BSSID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(38, 6, fmt.Sprintf("%d", s.Channel), "1", 0, "L", false, 0, "")
		pdf.CellFormat(38, 6, fmt.Sprintf("%d dBm", s.RSSI), "1", 0, "L", false, 0, "")
		pdf.CellFormat(38, 6, s.ObservedAt.Format("15:04:05"), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func (e *Exporter) addEvents(pdf *gofpdf.Fpdf, summary *Summary) {
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "Connection History", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, h := range []string{"Kind", "BSSID", "Detail", "Timestamp"} {
		pdf.CellFormat(47, 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, ev := range summary.Events {
		pdf.CellFormat(47, 6, ev.Kind, "1", 0, "L", false, 0, "")
		pdf.CellFormat(47, 6, ev.BSSID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(47, 6, ev.Detail, "1", 0, "L", false, 0, "")
		pdf.CellFormat(47, 6, ev.Timestamp.Format("15:04:05"), "1", 1, "L", false, 0, "")
	}
}
