package service

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"customs-ledger/internal/domain"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type ReportFormat string

const (
	ReportHTML ReportFormat = "html"
	ReportPDF  ReportFormat = "pdf"
	ReportXLSX ReportFormat = "xlsx"
)

func ParseReportFormat(s string) (ReportFormat, error) {
	switch ReportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReportHTML:
		return ReportHTML, nil
	case ReportPDF:
		return ReportPDF, nil
	case ReportXLSX:
		return ReportXLSX, nil
	}
	return "", domain.NewValidationError("format", "format must be one of html, pdf, xlsx")
}

func (f ReportFormat) ContentType() string {
	switch f {
	case ReportPDF:
		return "application/pdf"
	case ReportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/html; charset=utf-8"
}

func (f ReportFormat) Ext() string {
	return string(f)
}

type RenderedReport struct {
	FileName    string
	ContentType string
	Data        []byte
}

func RenderReport(r *domain.PaymentReport, f ReportFormat) ([]byte, error) {
	switch f {
	case ReportHTML:
		return renderReportHTML(r)
	case ReportPDF:
		return renderReportPDF(r)
	case ReportXLSX:
		return renderReportXLSX(r)
	}
	return nil, domain.NewValidationError("format", "unsupported report format %q", f)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

//go:embed templates/payment_report.html
var reportTemplateSource string

var reportTemplate = template.Must(template.New("payment_report").
	Funcs(template.FuncMap{"money": money}).
	Parse(reportTemplateSource))

func renderReportHTML(r *domain.PaymentReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("render html report: %w", err)
	}
	return buf.Bytes(), nil
}

// the core PDF fonts are cp1252; Turkish letters outside it are folded first
var pdfFolder = strings.NewReplacer("ğ", "g", "Ğ", "G", "ş", "s", "Ş", "S", "ı", "i", "İ", "I")

func renderReportPDF(r *domain.PaymentReport) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string { return tr(pdfFolder.Replace(s)) }

	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	pdf.Cell(0, 8, "Payment Distribution Report")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", r.GeneratedAt.Format("2006-01-02 15:04:05")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Currency: %s", r.Currency))
	pdf.Ln(8)

	summary := [][2]string{
		{"Total received", money(r.Summary.TotalReceived)},
		{"Total distributed", money(r.Summary.TotalDistributed)},
		{"Total pending", money(r.Summary.TotalPending)},
		{"Procedures with distributions", fmt.Sprint(r.Summary.ProceduresWithDistribution)},
		{"Procedures with remaining balance", fmt.Sprint(r.Summary.ProceduresWithRemaining)},
	}
	for _, line := range summary {
		pdf.CellFormat(70, 6, line[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, line[1], "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 6, "Incoming payments")
	pdf.Ln(7)
	pdf.SetFont("Arial", "B", 9)
	paymentWidths := []float64{35, 25, 65, 30, 30, 30, 15, 45}
	for i, h := range []string{"Payment", "Received", "Payer", "Total", "Distributed", "Remaining", "Rows", "Status"} {
		pdf.CellFormat(paymentWidths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range r.Payments {
		p := row.Payment
		pdf.CellFormat(paymentWidths[0], 6, text(p.PaymentID), "1", 0, "L", false, 0, "")
		pdf.CellFormat(paymentWidths[1], 6, p.DateReceived.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(paymentWidths[2], 6, text(p.PayerInfo), "1", 0, "L", false, 0, "")
		pdf.CellFormat(paymentWidths[3], 6, money(p.TotalAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(paymentWidths[4], 6, money(p.AmountDistributed), "1", 0, "R", false, 0, "")
		pdf.CellFormat(paymentWidths[5], 6, money(p.RemainingBalance), "1", 0, "R", false, 0, "")
		pdf.CellFormat(paymentWidths[6], 6, fmt.Sprint(row.DistributionCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(paymentWidths[7], 6, row.StatusLabel, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 6, "Procedures")
	pdf.Ln(7)
	pdf.SetFont("Arial", "B", 9)
	procWidths := []float64{50, 15, 30, 30, 30, 35, 30, 40}
	for i, h := range []string{"Reference", "Rows", "Advance", "Balance", "Distributed", "Total expenses", "Remaining", "Status"} {
		pdf.CellFormat(procWidths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range r.Procedures {
		expenses, remaining := "n/a", "n/a"
		if row.ExpenseAvailable {
			expenses, remaining = money(row.TotalExpenses), money(row.RemainingBalance)
		}
		pdf.CellFormat(procWidths[0], 6, text(row.Reference), "1", 0, "L", false, 0, "")
		pdf.CellFormat(procWidths[1], 6, fmt.Sprint(row.DistributionCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(procWidths[2], 6, money(row.AdvanceAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(procWidths[3], 6, money(row.BalanceAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(procWidths[4], 6, money(row.DistributedAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(procWidths[5], 6, expenses, "1", 0, "R", false, 0, "")
		pdf.CellFormat(procWidths[6], 6, remaining, "1", 0, "R", false, 0, "")
		pdf.CellFormat(procWidths[7], 6, row.StatusLabel, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf report: %w", err)
	}
	return buf.Bytes(), nil
}

func renderReportXLSX(r *domain.PaymentReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "Summary"
	paymentsSheet := "Payments"
	proceduresSheet := "Procedures"
	f.SetSheetName(f.GetSheetName(0), summarySheet)
	if _, err := f.NewSheet(paymentsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(proceduresSheet); err != nil {
		return nil, err
	}

	summary := [][]any{
		{"Payment Distribution Report"},
		{"Generated", r.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Currency", r.Currency},
		{},
		{"Total received", r.Summary.TotalReceived.InexactFloat64()},
		{"Total distributed", r.Summary.TotalDistributed.InexactFloat64()},
		{"Total pending", r.Summary.TotalPending.InexactFloat64()},
		{"Procedures with distributions", r.Summary.ProceduresWithDistribution},
		{"Procedures with remaining balance", r.Summary.ProceduresWithRemaining},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}

	headers := []any{"Payment", "Received", "Payer", "Currency", "Total", "Distributed", "Remaining", "Rows", "Status"}
	if err := f.SetSheetRow(paymentsSheet, "A1", &headers); err != nil {
		return nil, err
	}
	for i, row := range r.Payments {
		p := row.Payment
		values := []any{
			p.PaymentID,
			p.DateReceived.Format("2006-01-02"),
			p.PayerInfo,
			p.Currency,
			p.TotalAmount.InexactFloat64(),
			p.AmountDistributed.InexactFloat64(),
			p.RemainingBalance.InexactFloat64(),
			row.DistributionCount,
			row.StatusLabel,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(paymentsSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	headers = []any{"Reference", "Rows", "Advance", "Balance", "Distributed", "Total expenses", "Remaining", "Status"}
	if err := f.SetSheetRow(proceduresSheet, "A1", &headers); err != nil {
		return nil, err
	}
	for i, row := range r.Procedures {
		var expenses, remaining any = "n/a", "n/a"
		if row.ExpenseAvailable {
			expenses, remaining = row.TotalExpenses.InexactFloat64(), row.RemainingBalance.InexactFloat64()
		}
		values := []any{
			row.Reference,
			row.DistributionCount,
			row.AdvanceAmount.InexactFloat64(),
			row.BalanceAmount.InexactFloat64(),
			row.DistributedAmount.InexactFloat64(),
			expenses,
			remaining,
			row.StatusLabel,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(proceduresSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx report: %w", err)
	}
	return buf.Bytes(), nil
}
