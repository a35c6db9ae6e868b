package escrow

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

// WritePDF renders a snapshot as a printable document: summary, properties,
// roles, flags and the milestone table. It is a pure rendering of the
// already-computed display model; nothing is recomputed here.
func WritePDF(w io.Writer, snap *Snapshot) error {
	if snap == nil || snap.Escrow == nil {
		return fmt.Errorf("escrow: no snapshot to render")
	}
	esc := snap.Escrow

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Escrow "+snap.ContractID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, esc.Title, "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 5, esc.Description, "", "L", false)
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	writeKV := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(45, 6, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 6, value, "", "L", false)
	}

	section := func(title string) {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 7, title, "B", 1, "L", false, 0, "")
		pdf.Ln(1)
	}

	section("Summary")
	writeKV("Network", snap.Network)
	writeKV("Type", string(esc.EscrowType))
	writeKV("Progress", fmt.Sprintf("%.0f%%", esc.Progress))
	for _, key := range sortedKeys(esc.Properties) {
		writeKV(key, esc.Properties[key])
	}

	section("Roles")
	if len(esc.Roles) == 0 {
		writeKV("roles", NotAvailable)
	}
	for _, key := range sortedKeys(esc.Roles) {
		writeKV(key, esc.Roles[key])
	}

	section("Status")
	for _, key := range sortedKeys(esc.Flags) {
		writeKV(key, esc.Flags[key])
	}

	section("Milestones")
	if len(esc.Milestones) == 0 {
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 6, "No milestones defined.", "", "L", false)
	}
	for _, ms := range esc.Milestones {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, fmt.Sprintf("%d. %s", ms.ID+1, ms.Title), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, ms.Description, "", "L", false)
		line := "status: " + ms.Status
		if ms.Approved {
			line += " | approved"
		}
		if esc.EscrowType == TypeMultiRelease && ms.Amount != "" {
			line += " | amount: " + ms.Amount
		}
		pdf.MultiCell(0, 5, line, "", "L", false)
		pdf.Ln(1)
	}

	return pdf.Output(w)
}
