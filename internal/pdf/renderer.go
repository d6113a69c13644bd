package pdf

import (
	"fmt"
	"os"
	"path/filepath"

	"backend/internal/model"

	"github.com/jung-kurt/gofpdf"
)

// Renderer writes printable PDF artifacts for converted documents into an
// output directory. Callers treat rendering as best-effort.
type Renderer struct {
	outputDir string
}

func NewRenderer(outputDir string) (*Renderer, error) {
	if outputDir == "" {
		outputDir = "attachments"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}
	return &Renderer{outputDir: outputDir}, nil
}

func (r *Renderer) RenderOrder(order *model.SalesOrder) error {
	doc := newDocument("Sales Order", order.OrderNo)
	writeItems(doc, order.Items)
	writeTotals(doc, totalsRow{
		Subtotal: order.Subtotal.StringFixed(2),
		Discount: order.Discount.StringFixed(2),
		Shipping: order.Shipping.StringFixed(2),
		CGST:     order.CGST.StringFixed(2),
		SGST:     order.SGST.StringFixed(2),
		IGST:     order.IGST.StringFixed(2),
		Total:    order.Total.StringFixed(2),
	})
	return r.save(doc, fmt.Sprintf("order-%s.pdf", order.OrderNo))
}

func (r *Renderer) RenderInvoice(invoice *model.Invoice) error {
	doc := newDocument("Invoice", invoice.InvoiceNo)
	if invoice.DueDate != nil {
		doc.SetFont("Helvetica", "", 10)
		doc.CellFormat(0, 6, "Due: "+invoice.DueDate.Format("02/01/2006"), "", 1, "L", false, 0, "")
	}
	if invoice.DeliveryNotes != "" {
		doc.SetFont("Helvetica", "I", 9)
		doc.MultiCell(0, 5, invoice.DeliveryNotes, "", "L", false)
	}
	writeItems(doc, invoice.Items)
	writeTotals(doc, totalsRow{
		Subtotal: invoice.Subtotal.StringFixed(2),
		Discount: invoice.Discount.StringFixed(2),
		Shipping: invoice.Shipping.StringFixed(2),
		CGST:     invoice.CGST.StringFixed(2),
		SGST:     invoice.SGST.StringFixed(2),
		IGST:     invoice.IGST.StringFixed(2),
		Total:    invoice.Total.StringFixed(2),
	})
	return r.save(doc, fmt.Sprintf("invoice-%s.pdf", invoice.InvoiceNo))
}

func newDocument(title, number string) *gofpdf.Fpdf {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 10, fmt.Sprintf("%s %s", title, number), "", 1, "L", false, 0, "")
	doc.Ln(2)
	return doc
}

func writeItems(doc *gofpdf.Fpdf, items []model.LineItem) {
	doc.SetFont("Helvetica", "B", 10)
	doc.CellFormat(90, 7, "Description", "1", 0, "L", false, 0, "")
	doc.CellFormat(30, 7, "Qty", "1", 0, "R", false, 0, "")
	doc.CellFormat(35, 7, "Unit Price", "1", 0, "R", false, 0, "")
	doc.CellFormat(35, 7, "Subtotal", "1", 1, "R", false, 0, "")

	doc.SetFont("Helvetica", "", 10)
	for _, item := range items {
		doc.CellFormat(90, 7, item.Description, "1", 0, "L", false, 0, "")
		doc.CellFormat(30, 7, item.Quantity.StringFixed(2), "1", 0, "R", false, 0, "")
		doc.CellFormat(35, 7, item.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		doc.CellFormat(35, 7, item.Subtotal.StringFixed(2), "1", 1, "R", false, 0, "")
	}
	doc.Ln(3)
}

type totalsRow struct {
	Subtotal string
	Discount string
	Shipping string
	CGST     string
	SGST     string
	IGST     string
	Total    string
}

func writeTotals(doc *gofpdf.Fpdf, t totalsRow) {
	rows := []struct {
		label string
		value string
		bold  bool
	}{
		{"Subtotal", t.Subtotal, false},
		{"Discount", t.Discount, false},
		{"Shipping", t.Shipping, false},
		{"CGST", t.CGST, false},
		{"SGST", t.SGST, false},
		{"IGST", t.IGST, false},
		{"Total", t.Total, true},
	}
	for _, row := range rows {
		style := ""
		if row.bold {
			style = "B"
		}
		doc.SetFont("Helvetica", style, 10)
		doc.CellFormat(155, 6, row.label, "", 0, "R", false, 0, "")
		doc.CellFormat(35, 6, row.value, "", 1, "R", false, 0, "")
	}
}

func (r *Renderer) save(doc *gofpdf.Fpdf, filename string) error {
	path := filepath.Join(r.outputDir, filename)
	if err := doc.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
