package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDeriveStatus(t *testing.T) {
	total := dec("1000")

	if got := DeriveStatus(total, dec("1000")); got != StatusPendingDistribution {
		t.Fatalf("expected pending, got %s", got)
	}
	if got := DeriveStatus(total, dec("0.01")); got != StatusPartiallyDistributed {
		t.Fatalf("expected partially, got %s", got)
	}
	if got := DeriveStatus(total, dec("0")); got != StatusFullyDistributed {
		t.Fatalf("expected fully, got %s", got)
	}
}

func TestApplyDistributed(t *testing.T) {
	p := &IncomingPayment{ID: "p1", TotalAmount: dec("1000")}

	if err := p.ApplyDistributed(dec("700")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !p.RemainingBalance.Equal(dec("300")) {
		t.Fatalf("expected remaining 300, got %s", p.RemainingBalance)
	}
	if p.DistributionStatus != StatusPartiallyDistributed {
		t.Fatalf("expected partially, got %s", p.DistributionStatus)
	}

	err := p.ApplyDistributed(dec("1000.01"))
	if !errors.Is(err, ErrLedgerInconsistent) {
		t.Fatalf("expected ErrLedgerInconsistent, got %v", err)
	}
	// failed apply must not touch the previous values
	if !p.AmountDistributed.Equal(dec("700")) {
		t.Fatalf("expected distributed to stay 700, got %s", p.AmountDistributed)
	}

	p.ResetDistributed()
	if !p.RemainingBalance.Equal(p.TotalAmount) || p.DistributionStatus != StatusPendingDistribution {
		t.Fatalf("reset left %s / %s", p.RemainingBalance, p.DistributionStatus)
	}
}

func TestParsePaymentType(t *testing.T) {
	if _, err := ParsePaymentType("advance"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_, err := ParsePaymentType("refund")
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "paymentType" {
		t.Fatalf("expected validation error on paymentType, got %v", err)
	}
}

func TestDeriveProcedurePaymentStatus(t *testing.T) {
	if got := DeriveProcedurePaymentStatus(dec("0"), dec("500")); got != ProcedureUnpaid {
		t.Fatalf("expected unpaid, got %s", got)
	}
	if got := DeriveProcedurePaymentStatus(dec("200"), dec("500")); got != ProcedurePartiallyPaid {
		t.Fatalf("expected partially paid, got %s", got)
	}
	if got := DeriveProcedurePaymentStatus(dec("600"), dec("500")); got != ProcedureFullyPaid {
		t.Fatalf("expected fully paid, got %s", got)
	}
	if got := ProcedurePartiallyPaid.Label(); got != "Partially Paid" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestPersonalAccessTokenHasAbility(t *testing.T) {
	tok := &PersonalAccessToken{Abilities: `["ledger", "admin"]`}
	if !tok.HasAbility("admin") {
		t.Fatal("expected admin ability")
	}
	if tok.HasAbility("reports") {
		t.Fatal("unexpected reports ability")
	}
	if !(&PersonalAccessToken{Abilities: `["*"]`}).HasAbility("admin") {
		t.Fatal("wildcard should grant every ability")
	}
}
