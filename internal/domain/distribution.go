package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentTypeAdvance PaymentType = "advance"
	PaymentTypeBalance PaymentType = "balance"
)

func ParsePaymentType(s string) (PaymentType, error) {
	switch PaymentType(s) {
	case PaymentTypeAdvance, PaymentTypeBalance:
		return PaymentType(s), nil
	}
	return "", NewValidationError("paymentType", "paymentType must be %q or %q", PaymentTypeAdvance, PaymentTypeBalance)
}

func (t PaymentType) Label() string {
	switch t {
	case PaymentTypeAdvance:
		return "Advance"
	case PaymentTypeBalance:
		return "Balance"
	}
	return "Unknown (" + string(t) + ")"
}

type PaymentDistribution struct {
	ID                 string          `json:"id"`
	IncomingPaymentID  string          `json:"incomingPaymentId"`
	ProcedureReference string          `json:"procedureReference"`
	DistributedAmount  decimal.Decimal `json:"distributedAmount"`
	PaymentType        PaymentType     `json:"paymentType"`
	DistributionDate   time.Time       `json:"distributionDate"`
	CreatedBy          string          `json:"createdBy"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// DistributionView is a distribution joined with its owning payment header.
type DistributionView struct {
	PaymentDistribution
	Payment *PaymentHeader `json:"payment,omitempty"`
}
