package receipt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"salesdesk/internal/domain"
)

// FPDFRenderer lays the receipt out on an A4 page with go-pdf/fpdf.
type FPDFRenderer struct{}

func (FPDFRenderer) RenderPDF(r domain.Receipt, header string, code []byte) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(Title(r), true)
	pdf.SetCreator("salesdesk", true)
	stamp := r.CreatedAt
	if stamp.IsZero() {
		stamp = time.Unix(0, 0)
	}
	pdf.SetCreationDate(stamp.UTC())
	pdf.SetModificationDate(stamp.UTC())
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	if header != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(header), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(Title(r)), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	meta := [][2]string{
		{"Date", r.Date},
		{"Counterparty", r.CounterpartyName},
		{"Warehouse", r.WarehouseName},
		{"Issued by", r.IssuedBy},
	}
	if r.Kind == domain.ReceiptReturn {
		meta = append(meta, [2]string{"Condition", string(r.Condition)}, [2]string{"Status", string(r.Status)})
	}
	for _, row := range meta {
		pdf.CellFormat(35, 6, row[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	widths := []float64{80, 20, 35, 35}
	headers := []string{"Product", "Qty", "Price", "Amount"}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for i, h := range headers {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 7, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range r.Lines {
		name := line.ProductName
		if line.Defective {
			name += " (defective)"
		}
		pdf.CellFormat(widths[0], 7, tr(name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, fmt.Sprintf("%d", line.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, Money(line.Price), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, Money(line.Amount()), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(widths[0]+widths[1]+widths[2], 7, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[3], 7, Money(r.TotalSum), "1", 1, "R", false, 0, "")

	if len(code) > 0 {
		name := "code-" + r.Code()
		opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(code))
		pdf.Ln(6)
		pdf.ImageOptions(name, pdf.GetX(), pdf.GetY(), 35, 35, true, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
