package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"customs-ledger/internal/domain"
	"customs-ledger/internal/metrics"
	"customs-ledger/internal/repository"

	"github.com/shopspring/decimal"
)

type LedgerSnapshotter interface {
	Snapshot(ctx context.Context) (*repository.LedgerSnapshot, error)
}

type FinancialsLookup interface {
	FinancialSummaries(ctx context.Context, references []string) (map[string]domain.ProcedureFinancials, error)
}

type ReportService struct {
	ledger     LedgerSnapshotter
	procedures FinancialsLookup
	currency   string
	now        func() time.Time
}

func NewReportService(ledger LedgerSnapshotter, procedures FinancialsLookup, currency string) *ReportService {
	return &ReportService{ledger: ledger, procedures: procedures, currency: currency, now: time.Now}
}

// Build assembles the payment report from one ledger snapshot.
func (s *ReportService) Build(ctx context.Context) (*domain.PaymentReport, error) {
	snap, err := s.ledger.Snapshot(ctx)
	if err != nil {
		log.Printf("[REPORT] snapshot: %v", err)
		return nil, fmt.Errorf("ledger snapshot: %w", err)
	}

	refs := make([]string, 0)
	seen := make(map[string]bool)
	for _, d := range snap.Distributions {
		if !seen[d.ProcedureReference] {
			seen[d.ProcedureReference] = true
			refs = append(refs, d.ProcedureReference)
		}
	}
	sort.Strings(refs)

	financials, err := s.procedures.FinancialSummaries(ctx, refs)
	if err != nil {
		log.Printf("[REPORT] financial summaries for %d references: %v", len(refs), err)
		return nil, fmt.Errorf("procedure financials: %w", err)
	}

	generatedAt := snap.TakenAt
	if generatedAt.IsZero() {
		generatedAt = s.now()
	}
	return BuildPaymentReport(snap, financials, s.currency, generatedAt), nil
}

// Generate builds the report and renders it in the requested format.
func (s *ReportService) Generate(ctx context.Context, format ReportFormat) (*RenderedReport, error) {
	report, err := s.Build(ctx)
	if err != nil {
		metrics.IncReportGenerate(string(format), metrics.ResultError)
		return nil, err
	}
	data, err := RenderReport(report, format)
	if err != nil {
		metrics.IncReportGenerate(string(format), metrics.ResultError)
		log.Printf("[REPORT] render %s: %v", format, err)
		return nil, err
	}
	metrics.IncReportGenerate(string(format), metrics.ResultSuccess)

	return &RenderedReport{
		FileName:    fmt.Sprintf("payment_report_%s.%s", report.GeneratedAt.Format("20060102_150405"), format.Ext()),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// BuildPaymentReport groups one snapshot by payment and by procedure. Rows
// whose payment is missing from the snapshot are left out of both groupings.
func BuildPaymentReport(snap *repository.LedgerSnapshot, financials map[string]domain.ProcedureFinancials, currency string, generatedAt time.Time) *domain.PaymentReport {
	report := &domain.PaymentReport{
		GeneratedAt: generatedAt,
		Currency:    currency,
		Payments:    make([]domain.PaymentReportRow, 0, len(snap.Payments)),
		Procedures:  []domain.ProcedureReportRow{},
	}

	paymentIdx := make(map[string]int, len(snap.Payments))
	for _, p := range snap.Payments {
		paymentIdx[p.ID] = len(report.Payments)
		report.Payments = append(report.Payments, domain.PaymentReportRow{
			Payment:             p,
			StatusLabel:         p.DistributionStatus.Label(),
			DistributedFromRows: decimal.Zero,
		})
		report.Summary.TotalReceived = report.Summary.TotalReceived.Add(p.TotalAmount)
	}

	byRef := make(map[string]*domain.ProcedureReportRow)
	var refs []string
	for _, d := range snap.Distributions {
		i, ok := paymentIdx[d.IncomingPaymentID]
		if !ok {
			log.Printf("[REPORT] distribution %s references unknown payment %s", d.ID, d.IncomingPaymentID)
			continue
		}
		row := &report.Payments[i]
		row.DistributionCount++
		row.DistributedFromRows = row.DistributedFromRows.Add(d.DistributedAmount)

		pr, ok := byRef[d.ProcedureReference]
		if !ok {
			pr = &domain.ProcedureReportRow{Reference: d.ProcedureReference}
			byRef[d.ProcedureReference] = pr
			refs = append(refs, d.ProcedureReference)
		}
		pr.DistributionCount++
		pr.DistributedAmount = pr.DistributedAmount.Add(d.DistributedAmount)
		switch d.PaymentType {
		case domain.PaymentTypeAdvance:
			pr.AdvanceAmount = pr.AdvanceAmount.Add(d.DistributedAmount)
		case domain.PaymentTypeBalance:
			pr.BalanceAmount = pr.BalanceAmount.Add(d.DistributedAmount)
		default:
			log.Printf("[REPORT] distribution %s has unknown payment type %q", d.ID, d.PaymentType)
		}
	}

	sort.Strings(refs)
	for _, ref := range refs {
		pr := byRef[ref]
		if f, ok := financials[ref]; ok && f.Available {
			pr.ExpenseAvailable = true
			pr.TotalExpenses = f.TotalExpenses
			pr.RemainingBalance = f.TotalExpenses.Sub(pr.DistributedAmount)
			pr.Status = domain.DeriveProcedurePaymentStatus(pr.DistributedAmount, f.TotalExpenses)
		} else {
			// unknown expense: anything distributed counts as paid
			pr.Status = domain.ProcedureUnpaid
			if pr.DistributedAmount.Sign() > 0 {
				pr.Status = domain.ProcedureFullyPaid
			}
		}
		pr.StatusLabel = pr.Status.Label()

		if pr.RemainingBalance.Sign() > 0 {
			report.Summary.ProceduresWithRemaining++
		}
		report.Procedures = append(report.Procedures, *pr)
	}

	report.Summary.TotalDistributed = report.DistributedByPayments()
	report.Summary.TotalPending = report.Summary.TotalReceived.Sub(report.Summary.TotalDistributed)
	report.Summary.ProceduresWithDistribution = len(report.Procedures)
	return report
}
