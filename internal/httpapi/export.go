package httpapi

import (
	"bytes"
	"encoding/csv"
	"html/template"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
)

var monthlyReportHeader = []string{"year", "month", "sales_count", "revenue", "payments", "outstanding"}

func monthlyReportToCSV(year int, rows []domain.MonthlyRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	records := [][]string{monthlyReportHeader}
	for _, row := range rows {
		records = append(records, []string{
			strconv.Itoa(year),
			strconv.Itoa(row.Month),
			strconv.Itoa(row.SalesCount),
			row.Revenue.String(),
			row.Payments.String(),
			row.Outstanding.String(),
		})
	}
	if err := writer.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const monthlySheet = "Sheet1"

func monthlyReportToXLSX(year int, rows []domain.MonthlyRow) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := make([]any, 0, len(monthlyReportHeader))
	for _, h := range monthlyReportHeader {
		header = append(header, h)
	}
	if err := f.SetSheetRow(monthlySheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{
			year,
			row.Month,
			row.SalesCount,
			row.Revenue.InexactFloat64(),
			row.Payments.InexactFloat64(),
			row.Outstanding.InexactFloat64(),
		}
		if err := f.SetSheetRow(monthlySheet, cell, &values); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var monthlyReportHTMLTmpl = template.Must(template.New("monthly-report").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Monthly Report {{.Year}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
  </style>
</head>
<body>
  <h2>Monthly Report {{.Year}}</h2>
  <table>
    <thead><tr><th>Month</th><th>Sales</th><th>Revenue</th><th>Payments</th><th>Outstanding</th></tr></thead>
    <tbody>{{range .Rows}}<tr><td>{{.Month}}</td><td style="text-align:right;">{{.SalesCount}}</td><td style="text-align:right;">{{.Revenue}}</td><td style="text-align:right;">{{.Payments}}</td><td style="text-align:right;">{{.Outstanding}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func monthlyReportToPrintableHTML(year int, rows []domain.MonthlyRow) string {
	var buf bytes.Buffer
	data := struct {
		Year int
		Rows []domain.MonthlyRow
	}{Year: year, Rows: rows}
	if err := monthlyReportHTMLTmpl.Execute(&buf, data); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}
