package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type DistributionStatus string

const (
	StatusPendingDistribution  DistributionStatus = "pending_distribution"
	StatusPartiallyDistributed DistributionStatus = "partially_distributed"
	StatusFullyDistributed     DistributionStatus = "fully_distributed"
)

func ParseDistributionStatus(s string) (DistributionStatus, error) {
	switch DistributionStatus(s) {
	case StatusPendingDistribution, StatusPartiallyDistributed, StatusFullyDistributed:
		return DistributionStatus(s), nil
	}
	return "", NewValidationError("distributionStatus", "unknown distribution status %q", s)
}

func (s DistributionStatus) Label() string {
	switch s {
	case StatusPendingDistribution:
		return "Pending Distribution"
	case StatusPartiallyDistributed:
		return "Partially Distributed"
	case StatusFullyDistributed:
		return "Fully Distributed"
	}
	return "Unknown (" + string(s) + ")"
}

// Tone is the badge colour used by rendered reports.
func (s DistributionStatus) Tone() string {
	switch s {
	case StatusPendingDistribution:
		return "neutral"
	case StatusPartiallyDistributed:
		return "warning"
	case StatusFullyDistributed:
		return "success"
	}
	return "danger"
}

// DeriveStatus is the only place a distribution status is decided.
func DeriveStatus(total, remaining decimal.Decimal) DistributionStatus {
	switch {
	case remaining.Equal(total):
		return StatusPendingDistribution
	case remaining.Sign() <= 0:
		return StatusFullyDistributed
	default:
		return StatusPartiallyDistributed
	}
}

type IncomingPayment struct {
	ID                 string             `json:"id"`
	PaymentID          string             `json:"paymentId"`
	DateReceived       time.Time          `json:"dateReceived"`
	PayerInfo          string             `json:"payerInfo"`
	TotalAmount        decimal.Decimal    `json:"totalAmount"`
	Currency           string             `json:"currency"`
	AmountDistributed  decimal.Decimal    `json:"amountDistributed"`
	RemainingBalance   decimal.Decimal    `json:"remainingBalance"`
	DistributionStatus DistributionStatus `json:"distributionStatus"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// ApplyDistributed sets the derived fields from the sum of persisted distributions.
func (p *IncomingPayment) ApplyDistributed(sum decimal.Decimal) error {
	if sum.Sign() < 0 || sum.GreaterThan(p.TotalAmount) {
		return fmt.Errorf("%w: payment %s distributed %s of %s",
			ErrLedgerInconsistent, p.ID, sum.StringFixed(2), p.TotalAmount.StringFixed(2))
	}
	p.AmountDistributed = sum
	p.RemainingBalance = p.TotalAmount.Sub(sum)
	p.DistributionStatus = DeriveStatus(p.TotalAmount, p.RemainingBalance)
	return nil
}

// ResetDistributed puts the payment back into the "no distribution" state.
func (p *IncomingPayment) ResetDistributed() {
	p.AmountDistributed = decimal.Zero
	p.RemainingBalance = p.TotalAmount
	p.DistributionStatus = StatusPendingDistribution
}

func (p *IncomingPayment) Header() *PaymentHeader {
	return &PaymentHeader{
		ID:                 p.ID,
		PaymentID:          p.PaymentID,
		DateReceived:       p.DateReceived,
		PayerInfo:          p.PayerInfo,
		TotalAmount:        p.TotalAmount,
		Currency:           p.Currency,
		DistributionStatus: p.DistributionStatus,
	}
}

type PaymentHeader struct {
	ID                 string             `json:"id"`
	PaymentID          string             `json:"paymentId"`
	DateReceived       time.Time          `json:"dateReceived"`
	PayerInfo          string             `json:"payerInfo"`
	TotalAmount        decimal.Decimal    `json:"totalAmount"`
	Currency           string             `json:"currency"`
	DistributionStatus DistributionStatus `json:"distributionStatus"`
}
