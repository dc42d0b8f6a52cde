package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"customs-ledger/internal/domain"
	"customs-ledger/internal/repository"
)

func seedReport(t *testing.T) (*ledgerFixture, *ReportService) {
	t.Helper()
	f := newLedgerFixture(t)

	a := f.payment(t, "PAY-A", "1000")
	b := f.payment(t, "PAY-B", "500")
	f.payment(t, "PAY-C", "75.25")

	for _, d := range []struct{ payment, ref, amount, kind string }{
		{a.ID, "IMP-2024/001", "600", "advance"},
		{a.ID, "IMP-2024/002", "400", "balance"},
		{b.ID, "IMP-2024/001", "150", "balance"},
		{b.ID, "IMP-2024/003", "20", "advance"},
	} {
		_, err := f.svc.CreateDistribution(context.Background(), CreateDistributionInput{
			IncomingPaymentID:  d.payment,
			ProcedureReference: d.ref,
			DistributedAmount:  dec(d.amount),
			PaymentType:        d.kind,
		})
		if err != nil {
			t.Fatalf("distribute %s -> %s: %v", d.amount, d.ref, err)
		}
	}

	// 001 is short of its expenses, 002 fully covered, 003 has no procedure-side figure
	f.procedures.SetFinancials(domain.ProcedureFinancials{Reference: "IMP-2024/001", TotalExpenses: dec("1000")})
	f.procedures.SetFinancials(domain.ProcedureFinancials{Reference: "IMP-2024/002", TotalExpenses: dec("400")})

	return f, NewReportService(f.store, f.procedures, "USD")
}

func TestReportBuild_GroupingsAgree(t *testing.T) {
	_, svc := seedReport(t)

	r, err := svc.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if !r.DistributedByPayments().Equal(r.DistributedByProcedures()) {
		t.Fatalf("groupings disagree: payments %s, procedures %s", r.DistributedByPayments(), r.DistributedByProcedures())
	}
	if !r.Summary.TotalDistributed.Equal(dec("1170")) {
		t.Fatalf("expected 1170 distributed, got %s", r.Summary.TotalDistributed)
	}
	if !r.Summary.TotalReceived.Equal(dec("1575.25")) || !r.Summary.TotalPending.Equal(dec("405.25")) {
		t.Fatalf("unexpected totals %+v", r.Summary)
	}
	if r.Summary.ProceduresWithDistribution != 3 || r.Summary.ProceduresWithRemaining != 1 {
		t.Fatalf("unexpected procedure counts %+v", r.Summary)
	}

	want := map[string]domain.ProcedurePaymentStatus{
		"IMP-2024/001": domain.ProcedurePartiallyPaid,
		"IMP-2024/002": domain.ProcedureFullyPaid,
		"IMP-2024/003": domain.ProcedureFullyPaid,
	}
	for _, row := range r.Procedures {
		if row.Status != want[row.Reference] {
			t.Fatalf("%s: expected %s, got %s", row.Reference, want[row.Reference], row.Status)
		}
	}
	first := r.Procedures[0]
	if first.Reference != "IMP-2024/001" || !first.AdvanceAmount.Equal(dec("600")) || !first.BalanceAmount.Equal(dec("150")) {
		t.Fatalf("unexpected first procedure row %+v", first)
	}
	if !first.RemainingBalance.Equal(dec("250")) || first.StatusLabel != "Partially Paid" {
		t.Fatalf("unexpected remaining/label %s %q", first.RemainingBalance, first.StatusLabel)
	}
	if r.Procedures[2].ExpenseAvailable {
		t.Fatalf("IMP-2024/003 has no financials and must report ExpenseAvailable=false")
	}
}

func TestBuildPaymentReport_Empty(t *testing.T) {
	r := BuildPaymentReport(&repository.LedgerSnapshot{}, nil, "USD", time.Now())
	if len(r.Payments) != 0 || len(r.Procedures) != 0 || !r.Summary.TotalPending.IsZero() {
		t.Fatalf("unexpected empty report %+v", r)
	}
}

func TestReportGenerate_Formats(t *testing.T) {
	_, svc := seedReport(t)
	ctx := context.Background()

	cases := []struct {
		format ReportFormat
		prefix []byte
		ctype  string
	}{
		{ReportHTML, []byte("<!DOCTYPE html>"), "text/html; charset=utf-8"},
		{ReportPDF, []byte("%PDF"), "application/pdf"},
		{ReportXLSX, []byte("PK"), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	}
	for _, c := range cases {
		out, err := svc.Generate(ctx, c.format)
		if err != nil {
			t.Fatalf("%s: %v", c.format, err)
		}
		if !bytes.HasPrefix(out.Data, c.prefix) {
			t.Fatalf("%s: unexpected document start %q", c.format, out.Data[:8])
		}
		if out.ContentType != c.ctype || !strings.HasSuffix(out.FileName, "."+string(c.format)) {
			t.Fatalf("%s: unexpected meta %q %q", c.format, out.ContentType, out.FileName)
		}
	}

	html, _ := svc.Generate(ctx, ReportHTML)
	for _, s := range []string{"PAY-A", "IMP-2024/003", "1170.00", "Partially Paid"} {
		if !bytes.Contains(html.Data, []byte(s)) {
			t.Fatalf("html report missing %q", s)
		}
	}
}

func TestParseReportFormat(t *testing.T) {
	if f, err := ParseReportFormat(""); err != nil || f != ReportHTML {
		t.Fatalf("empty format should default to html, got %q %v", f, err)
	}
	if f, err := ParseReportFormat("PDF"); err != nil || f != ReportPDF {
		t.Fatalf("expected pdf, got %q %v", f, err)
	}
	if _, err := ParseReportFormat("docx"); err == nil {
		t.Fatalf("expected error for docx")
	}
}
