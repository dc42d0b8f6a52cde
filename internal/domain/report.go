package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentReportRow struct {
	Payment           IncomingPayment `json:"payment"`
	StatusLabel       string          `json:"statusLabel"`
	DistributionCount int             `json:"distributionCount"`
	// DistributedFromRows is the sum of the distribution rows seen in the report snapshot.
	DistributedFromRows decimal.Decimal `json:"distributedFromRows"`
}

type ProcedureReportRow struct {
	Reference         string                 `json:"reference"`
	DistributionCount int                    `json:"distributionCount"`
	AdvanceAmount     decimal.Decimal        `json:"advanceAmount"`
	BalanceAmount     decimal.Decimal        `json:"balanceAmount"`
	DistributedAmount decimal.Decimal        `json:"distributedAmount"`
	TotalExpenses     decimal.Decimal        `json:"totalExpenses"`
	ExpenseAvailable  bool                   `json:"expenseAvailable"`
	RemainingBalance  decimal.Decimal        `json:"remainingBalance"`
	Status            ProcedurePaymentStatus `json:"status"`
	StatusLabel       string                 `json:"statusLabel"`
}

type ReportSummary struct {
	TotalReceived              decimal.Decimal `json:"totalReceived"`
	TotalDistributed           decimal.Decimal `json:"totalDistributed"`
	TotalPending               decimal.Decimal `json:"totalPending"`
	ProceduresWithDistribution int             `json:"proceduresWithDistribution"`
	ProceduresWithRemaining    int             `json:"proceduresWithRemaining"`
}

type PaymentReport struct {
	GeneratedAt time.Time            `json:"generatedAt"`
	Currency    string               `json:"currency"`
	Payments    []PaymentReportRow   `json:"payments"`
	Procedures  []ProcedureReportRow `json:"procedures"`
	Summary     ReportSummary        `json:"summary"`
}

// DistributedByPayments sums the payment grouping.
func (r *PaymentReport) DistributedByPayments() decimal.Decimal {
	total := decimal.Zero
	for _, row := range r.Payments {
		total = total.Add(row.DistributedFromRows)
	}
	return total
}

// DistributedByProcedures sums the procedure grouping.
func (r *PaymentReport) DistributedByProcedures() decimal.Decimal {
	total := decimal.Zero
	for _, row := range r.Procedures {
		total = total.Add(row.DistributedAmount)
	}
	return total
}
