package receipt

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"salesdesk/internal/domain"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatPNG, "qr":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported receipt format %q", raw)
	}
}

// PDFRenderer turns a resolved receipt into a PDF document. code is the PNG
// produced by the CodeGenerator and may be nil.
type PDFRenderer interface {
	RenderPDF(r domain.Receipt, header string, code []byte) ([]byte, error)
}

// CodeGenerator encodes content as a scannable PNG image.
type CodeGenerator interface {
	PNG(content string) ([]byte, error)
}

type Artifact struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Exporter renders receipts. It only reads the receipt it is given.
type Exporter struct {
	header string
	pdf    PDFRenderer
	codes  CodeGenerator
}

func NewExporter(header string, pdf PDFRenderer, codes CodeGenerator) *Exporter {
	if pdf == nil {
		pdf = FPDFRenderer{}
	}
	if codes == nil {
		codes = QRGenerator{}
	}
	return &Exporter{header: header, pdf: pdf, codes: codes}
}

func (e *Exporter) Export(r domain.Receipt, format Format) (Artifact, error) {
	if !r.Kind.Valid() || r.SaleID <= 0 {
		return Artifact{}, errors.New("receipt is not resolved")
	}
	base := "receipt-" + r.Code()

	switch format {
	case FormatHTML:
		body, err := e.HTML(r)
		if err != nil {
			return Artifact{}, err
		}
		return Artifact{ContentType: "text/html; charset=utf-8", Filename: base + ".html", Body: body}, nil
	case FormatPDF:
		code, err := e.codes.PNG(r.Code())
		if err != nil {
			return Artifact{}, fmt.Errorf("render code: %w", err)
		}
		body, err := e.pdf.RenderPDF(r, e.header, code)
		if err != nil {
			return Artifact{}, fmt.Errorf("render pdf: %w", err)
		}
		return Artifact{ContentType: "application/pdf", Filename: base + ".pdf", Body: body}, nil
	case FormatPNG:
		body, err := e.codes.PNG(r.Code())
		if err != nil {
			return Artifact{}, fmt.Errorf("render code: %w", err)
		}
		return Artifact{ContentType: "image/png", Filename: base + ".png", Body: body}, nil
	default:
		return Artifact{}, fmt.Errorf("unsupported receipt format %q", format)
	}
}

type htmlView struct {
	Header  string
	Title   string
	Receipt domain.Receipt
	Lines   []htmlLine
	Total   string
	CodeURI template.URL
}

type htmlLine struct {
	Name      string
	Quantity  int
	Price     string
	Amount    string
	Defective bool
}

func (e *Exporter) HTML(r domain.Receipt) ([]byte, error) {
	view := htmlView{
		Header:  e.header,
		Title:   Title(r),
		Receipt: r,
		Lines:   make([]htmlLine, 0, len(r.Lines)),
		Total:   Money(r.TotalSum),
	}
	for _, line := range r.Lines {
		view.Lines = append(view.Lines, htmlLine{
			Name:      line.ProductName,
			Quantity:  line.Quantity,
			Price:     Money(line.Price),
			Amount:    Money(line.Amount()),
			Defective: line.Defective,
		})
	}
	if code, err := e.codes.PNG(r.Code()); err == nil {
		view.CodeURI = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(code))
	}

	var buf bytes.Buffer
	if err := receiptHTMLTmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

func Title(r domain.Receipt) string {
	if r.Kind == domain.ReceiptReturn {
		return fmt.Sprintf("Return Request #%d", r.SaleID)
	}
	return fmt.Sprintf("Sale #%d", r.SaleID)
}

var receiptHTMLTmpl = template.Must(template.New("receipt").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Title}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    .code { margin-top: 16px; }
    @media print { .noprint { display: none; } }
  </style>
</head>
<body onload="window.print()">
  {{if .Header}}<h3>{{.Header}}</h3>{{end}}
  <h2>{{.Title}}</h2>
  <p>Date: {{.Receipt.Date}}</p>
  <p>Counterparty: {{.Receipt.CounterpartyName}}</p>
  <p>Warehouse: {{.Receipt.WarehouseName}}</p>
  <p>Issued by: {{.Receipt.IssuedBy}}</p>
  {{if .Receipt.Condition}}<p>Condition: {{.Receipt.Condition}} | Status: {{.Receipt.Status}}</p>{{end}}
  <table>
    <thead><tr><th>Product</th><th>Qty</th><th>Price</th><th>Amount</th>{{if .Receipt.Condition}}<th>Defective</th>{{end}}</tr></thead>
    <tbody>{{range .Lines}}<tr><td>{{.Name}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.Price}}</td><td class="num">{{.Amount}}</td>{{if $.Receipt.Condition}}<td>{{if .Defective}}yes{{else}}no{{end}}</td>{{end}}</tr>{{end}}</tbody>
    <tfoot><tr><th colspan="3">Total</th><th class="num">{{.Total}}</th>{{if .Receipt.Condition}}<th></th>{{end}}</tr></tfoot>
  </table>
  {{if .CodeURI}}<div class="code"><img src="{{.CodeURI}}" alt="{{.Receipt.Code}}" width="128" height="128" /></div>{{end}}
</body>
</html>
`))
