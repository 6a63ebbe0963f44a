package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"salesdesk/internal/domain"
)

func SalesToCSV(report domain.SalesReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,from,%s", report.From),
		fmt.Sprintf("summary,to,%s", report.To),
		fmt.Sprintf("summary,sales,%d", report.Sales),
		fmt.Sprintf("summary,items,%d", report.Items),
		fmt.Sprintf("summary,total_sum,%s", report.TotalSum.StringFixed(2)),
	}
	for _, day := range report.ByDay {
		lines = append(lines, fmt.Sprintf("day,%s_sales,%d", day.Date, day.Sales))
		lines = append(lines, fmt.Sprintf("day,%s_total_sum,%s", day.Date, day.TotalSum.StringFixed(2)))
	}
	for _, party := range report.ByCounterparty {
		lines = append(lines, fmt.Sprintf("counterparty,%s_sales,%d", csvField(party.Name), party.Sales))
		lines = append(lines, fmt.Sprintf("counterparty,%s_total_sum,%s", csvField(party.Name), party.TotalSum.StringFixed(2)))
	}
	return strings.Join(lines, "\n") + "\n"
}

func BalancesToCSV(balances []domain.Balance) string {
	lines := []string{"counterparty_id,name,sales_total,returns_total,payments_total,outstanding"}
	for _, b := range balances {
		lines = append(lines, fmt.Sprintf("%d,%s,%s,%s,%s,%s",
			b.CounterpartyID,
			csvField(b.Name),
			b.SalesTotal.StringFixed(2),
			b.ReturnsTotal.StringFixed(2),
			b.PaymentsTotal.StringFixed(2),
			b.Outstanding.StringFixed(2),
		))
	}
	return strings.Join(lines, "\n") + "\n"
}

// csvField strips separators from free-text names; spreadsheet formula
// prefixes are neutralised.
func csvField(s string) string {
	s = strings.NewReplacer(",", " ", "\n", " ", "\r", " ", "\"", "'").Replace(strings.TrimSpace(s))
	if s != "" && strings.ContainsRune("=+-@", rune(s[0])) {
		s = "'" + s
	}
	return s
}

var salesReportHTMLTmpl = template.Must(template.New("sales-report").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Sales Report {{.From}} - {{.To}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Sales Report {{.From}} - {{.To}}</h2>
  <p>Sales: {{.Sales}} | Items: {{.Items}} | Total: {{money .TotalSum}}</p>

  <h3>By Day</h3>
  <table>
    <thead><tr><th>Date</th><th>Sales</th><th>Items</th><th>Total</th></tr></thead>
    <tbody>{{range .ByDay}}<tr><td>{{.Date}}</td><td style="text-align:right;">{{.Sales}}</td><td style="text-align:right;">{{.Items}}</td><td style="text-align:right;">{{money .TotalSum}}</td></tr>{{end}}</tbody>
  </table>

  <h3>By Counterparty</h3>
  <table>
    <thead><tr><th>Counterparty</th><th>Sales</th><th>Total</th></tr></thead>
    <tbody>{{range .ByCounterparty}}<tr><td>{{.Name}}</td><td style="text-align:right;">{{.Sales}}</td><td style="text-align:right;">{{money .TotalSum}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func SalesToPrintableHTML(report domain.SalesReport) string {
	var buf bytes.Buffer
	if err := salesReportHTMLTmpl.Execute(&buf, report); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}
