package domain

import "github.com/shopspring/decimal"

// Procedure is the subset of the external procedure record the ledger and
// the reconciliation engine read. Fields holds reconcilable columns keyed by
// canonical field name; a nil value is a NULL column.
type Procedure struct {
	ID        string
	Reference string
	Amount    *decimal.Decimal
	Currency  *string
	Fields    map[string]*string
}

func (p *Procedure) Field(name string) *string {
	if p.Fields == nil {
		return nil
	}
	return p.Fields[name]
}

// ProcedureFinancials is the procedure-side money figure. Available is false
// when no procedure row backs the reference.
type ProcedureFinancials struct {
	Reference     string
	InvoiceAmount decimal.Decimal
	TotalExpenses decimal.Decimal
	Available     bool
}

type ProcedurePaymentStatus string

const (
	ProcedureUnpaid        ProcedurePaymentStatus = "unpaid"
	ProcedurePartiallyPaid ProcedurePaymentStatus = "partially_paid"
	ProcedureFullyPaid     ProcedurePaymentStatus = "fully_paid"
)

func (s ProcedurePaymentStatus) Label() string {
	switch s {
	case ProcedureUnpaid:
		return "Unpaid"
	case ProcedurePartiallyPaid:
		return "Partially Paid"
	case ProcedureFullyPaid:
		return "Fully Paid"
	}
	return "Unknown (" + string(s) + ")"
}

func (s ProcedurePaymentStatus) Tone() string {
	switch s {
	case ProcedureUnpaid:
		return "danger"
	case ProcedurePartiallyPaid:
		return "warning"
	case ProcedureFullyPaid:
		return "success"
	}
	return "neutral"
}

// DeriveProcedurePaymentStatus compares what was distributed to a procedure
// against its expense figure.
func DeriveProcedurePaymentStatus(distributed, expenses decimal.Decimal) ProcedurePaymentStatus {
	switch {
	case distributed.Sign() <= 0:
		return ProcedureUnpaid
	case distributed.GreaterThanOrEqual(expenses):
		return ProcedureFullyPaid
	default:
		return ProcedurePartiallyPaid
	}
}
