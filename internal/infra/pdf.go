package infra

// Receipt PDF generation with go-pdf/fpdf. Thermal-paper sized tickets:
// header, sale number and timestamp, item table, discount line when present,
// bold grand total, payment breakdown and the fiscal number once assigned.
// Output goes to storagePath/receipt_{number}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"flowzen/internal/model"
)

// GenerateReceiptPDF writes a PDF receipt for a recorded sale and returns
// the absolute path of the generated file.
func GenerateReceiptPDF(sale *model.Sale, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("receipt_%d.pdf", sale.Number)
	filePath := filepath.Join(storagePath, fileName)

	// 74mm x 105mm — close to thermal receipt paper.
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 74, Ht: 105},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(contentW, 7, "Flowzen", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, "Sales Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Receipt #%d", sale.Number), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, sale.CreatedAt.Format("02/01/2006  15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	// Item table
	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(contentW*0.55, 4, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(contentW*0.15, 4, "Qty", "B", 0, "C", false, 0, "")
	pdf.CellFormat(contentW*0.30, 4, "Amount", "B", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	for _, item := range sale.Items {
		pdf.CellFormat(contentW*0.55, 4, item.Description, "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.15, 4, fmt.Sprintf("%d", item.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(contentW*0.30, 4, item.Subtotal.StringFixed(2), "", 1, "R", false, 0, "")
	}
	pdf.Ln(1)

	if !sale.Discount.IsZero() {
		pdf.CellFormat(contentW*0.70, 4, "Discount", "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.30, 4, "-"+sale.Discount.StringFixed(2), "", 1, "R", false, 0, "")
	}
	if !sale.Tax.IsZero() {
		pdf.CellFormat(contentW*0.70, 4, "Tax", "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.30, 4, sale.Tax.StringFixed(2), "", 1, "R", false, 0, "")
	}
	if !sale.Tip.IsZero() {
		pdf.CellFormat(contentW*0.70, 4, "Tip", "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.30, 4, sale.Tip.StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(contentW*0.55, 6, "TOTAL", "T", 0, "L", false, 0, "")
	pdf.CellFormat(contentW*0.45, 6, sale.GrandTotal.StringFixed(2), "T", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	for _, p := range sale.Payments {
		pdf.CellFormat(contentW*0.70, 4, p.Method, "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.30, 4, p.Amount.StringFixed(2), "", 1, "R", false, 0, "")
	}

	if sale.Fiscal.Number != nil {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "", 6)
		pdf.CellFormat(contentW, 4, "Fiscal No. "+*sale.Fiscal.Number, "", 1, "C", false, 0, "")
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write %s: %w", filePath, err)
	}
	return filePath, nil
}
