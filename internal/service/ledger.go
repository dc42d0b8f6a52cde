package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"customs-ledger/internal/domain"
	"customs-ledger/internal/metrics"
	"customs-ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// money columns are NUMERIC(18,2)
const moneyScale = 2

// maxMoney is the first value NUMERIC(18,2) cannot hold.
var maxMoney = decimal.New(1, 18-moneyScale)

type LedgerStore interface {
	RunInTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error
	GetPayment(ctx context.Context, id string) (*domain.IncomingPayment, error)
	ListPayments(ctx context.Context, f repository.PaymentsFilter) ([]domain.IncomingPayment, error)
	GetDistribution(ctx context.Context, id string) (*domain.PaymentDistribution, error)
	ListDistributionsByPayment(ctx context.Context, paymentID string) ([]domain.PaymentDistribution, error)
	ListDistributionsByProcedure(ctx context.Context, reference string) ([]domain.DistributionView, error)
}

type ProcedureLookup interface {
	FindByReference(ctx context.Context, reference string) (*domain.Procedure, error)
}

// IdempotencyKeys is implemented by clients.IdempotencyStore.
type IdempotencyKeys interface {
	Reserve(ctx context.Context, key, fingerprint string) (string, error)
	Bind(ctx context.Context, key, fingerprint, distributionID string) error
	Release(ctx context.Context, key string) error
}

type CreateDistributionInput struct {
	IncomingPaymentID  string
	ProcedureReference string
	DistributedAmount  decimal.Decimal
	PaymentType        string
	DistributionDate   *time.Time
	CreatedBy          string
	IdempotencyKey     string
}

type DistributionResult struct {
	Distribution *domain.PaymentDistribution `json:"distribution"`
	Payment      *domain.IncomingPayment     `json:"payment"`
	// Replayed is set when an Idempotency-Key matched an earlier request.
	Replayed bool `json:"replayed"`
}

type CreatePaymentInput struct {
	PaymentID    string
	DateReceived *time.Time
	PayerInfo    string
	TotalAmount  decimal.Decimal
	Currency     string
}

type ResetResult struct {
	DistributionsRemoved int64 `json:"count"`
	PaymentsReset        int   `json:"paymentsReset"`
}

type LedgerService struct {
	store      LedgerStore
	procedures ProcedureLookup
	idem       IdempotencyKeys
	currency   string

	now   func() time.Time
	newID func() string
}

func NewLedgerService(store LedgerStore, procedures ProcedureLookup, idem IdempotencyKeys, currency string) *LedgerService {
	if currency == "" {
		currency = "USD"
	}
	return &LedgerService{
		store:      store,
		procedures: procedures,
		idem:       idem,
		currency:   strings.ToUpper(currency),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (s *LedgerService) Currency() string {
	return s.currency
}

func observe(op string, start time.Time, err error) {
	result := metrics.ResultSuccess
	switch {
	case err == nil:
	case domain.IsConflict(err):
		result = metrics.ResultConflict
	case domain.IsNotFound(err), isValidation(err):
		result = metrics.ResultRejected
	default:
		result = metrics.ResultError
	}
	metrics.ObserveOperation(op, result, time.Since(start))
}

func isValidation(err error) bool {
	var vErr *domain.ValidationError
	return errors.As(err, &vErr)
}

// unexpected reports whether err is neither a domain rejection nor a validation error.
func unexpected(err error) bool {
	return err != nil && !domain.IsConflict(err) && !domain.IsNotFound(err) && !isValidation(err)
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validateMoney(field string, v decimal.Decimal) error {
	if v.Sign() <= 0 {
		return domain.NewValidationError(field, "%s must be greater than 0", field)
	}
	if !v.Equal(v.Round(moneyScale)) {
		return domain.NewValidationError(field, "%s must have at most %d decimal places", field, moneyScale)
	}
	if v.GreaterThanOrEqual(maxMoney) {
		return domain.NewValidationError(field, "%s must be less than %s", field, maxMoney.String())
	}
	return nil
}

// recompute re-derives the payment's totals from the persisted rows. It must
// run under the payment lock.
func recompute(ctx context.Context, tx repository.LedgerTx, p *domain.IncomingPayment) error {
	sum, _, err := tx.SumDistributed(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("sum distributions of %s: %w", p.ID, err)
	}
	if err := p.ApplyDistributed(sum); err != nil {
		return err
	}
	return tx.SavePaymentTotals(ctx, p)
}

func (s *LedgerService) CreateDistribution(ctx context.Context, in CreateDistributionInput) (res *DistributionResult, err error) {
	start := time.Now()
	defer func() { observe("create_distribution", start, err) }()

	pType, err := domain.ParsePaymentType(in.PaymentType)
	if err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(in.ProcedureReference)
	if reference == "" {
		return nil, domain.NewValidationError("procedureReference", "procedureReference is required")
	}
	if strings.TrimSpace(in.IncomingPaymentID) == "" {
		return nil, domain.NewValidationError("incomingPaymentId", "incomingPaymentId is required")
	}
	if err := validateMoney("distributedAmount", in.DistributedAmount); err != nil {
		return nil, err
	}
	if !validUUID(in.IncomingPaymentID) {
		return nil, domain.ErrPaymentNotFound
	}

	if _, err := s.procedures.FindByReference(ctx, reference); err != nil {
		if errors.Is(err, domain.ErrProcedureNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProcedureNotFound, reference)
		}
		log.Printf("[LEDGER] create_distribution payment=%s reference=%q: procedure lookup: %v", in.IncomingPaymentID, reference, err)
		return nil, fmt.Errorf("procedure lookup: %w", err)
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	fingerprint := distributionFingerprint(in.IncomingPaymentID, reference, in.DistributedAmount, pType)
	if key != "" && s.idem != nil {
		boundID, err := s.idem.Reserve(ctx, key, fingerprint)
		if err != nil {
			return nil, err
		}
		if boundID != "" {
			return s.replay(ctx, boundID)
		}
	}

	date := s.now()
	if in.DistributionDate != nil {
		date = *in.DistributionDate
	}

	dist := &domain.PaymentDistribution{
		ID:                 s.newID(),
		IncomingPaymentID:  in.IncomingPaymentID,
		ProcedureReference: reference,
		DistributedAmount:  in.DistributedAmount,
		PaymentType:        pType,
		DistributionDate:   date,
		CreatedBy:          in.CreatedBy,
	}

	var payment *domain.IncomingPayment
	err = s.store.RunInTx(ctx, func(tx repository.LedgerTx) error {
		p, err := tx.LockPayment(ctx, in.IncomingPaymentID)
		if err != nil {
			return err
		}

		sum, _, err := tx.SumDistributed(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("sum distributions of %s: %w", p.ID, err)
		}
		remaining := p.TotalAmount.Sub(sum)
		if dist.DistributedAmount.GreaterThan(remaining) {
			return fmt.Errorf("%w: requested %s, remaining %s",
				domain.ErrOverAllocation, dist.DistributedAmount.StringFixed(moneyScale), remaining.StringFixed(moneyScale))
		}

		if err := tx.InsertDistribution(ctx, dist); err != nil {
			return fmt.Errorf("insert distribution: %w", err)
		}
		if err := recompute(ctx, tx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})

	if key != "" && s.idem != nil {
		if err != nil {
			if relErr := s.idem.Release(ctx, key); relErr != nil {
				log.Printf("[LEDGER] release idempotency key %q: %v", key, relErr)
			}
		} else {
			s.bindKey(ctx, key, fingerprint, dist.ID)
		}
	}

	if err != nil {
		if unexpected(err) {
			log.Printf("[LEDGER] create_distribution payment=%s reference=%q amount=%s: %v",
				in.IncomingPaymentID, reference, in.DistributedAmount.String(), err)
		}
		return nil, err
	}

	log.Printf("[LEDGER] distribution %s: %s -> %q amount=%s status=%s",
		dist.ID, payment.ID, reference, dist.DistributedAmount.StringFixed(moneyScale), payment.DistributionStatus)
	return &DistributionResult{Distribution: dist, Payment: payment}, nil
}

// distributionFingerprint identifies the request body an Idempotency-Key was
// first used with.
func distributionFingerprint(paymentID, reference string, amount decimal.Decimal, pType domain.PaymentType) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		paymentID, reference, amount.StringFixed(moneyScale), string(pType),
	}, "\x00")))
	return hex.EncodeToString(sum[:])
}

// bindKey records the created distribution under key. A key that cannot be
// bound is released rather than left pending until its TTL runs out.
func (s *LedgerService) bindKey(ctx context.Context, key, fingerprint, distributionID string) {
	err := s.idem.Bind(ctx, key, fingerprint, distributionID)
	if err == nil {
		return
	}
	log.Printf("[LEDGER] bind idempotency key %q to %s: %v; retrying", key, distributionID, err)
	if err = s.idem.Bind(ctx, key, fingerprint, distributionID); err == nil {
		return
	}
	log.Printf("[LEDGER] bind idempotency key %q to %s: %v; releasing", key, distributionID, err)
	if relErr := s.idem.Release(ctx, key); relErr != nil {
		log.Printf("[LEDGER] release idempotency key %q: %v", key, relErr)
	}
}

func (s *LedgerService) replay(ctx context.Context, distributionID string) (*DistributionResult, error) {
	dist, err := s.store.GetDistribution(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	payment, err := s.store.GetPayment(ctx, dist.IncomingPaymentID)
	if err != nil {
		return nil, err
	}
	return &DistributionResult{Distribution: dist, Payment: payment, Replayed: true}, nil
}

// DeleteDistribution removes one distribution and returns the owning
// payment with its totals recomputed.
func (s *LedgerService) DeleteDistribution(ctx context.Context, id string) (payment *domain.IncomingPayment, err error) {
	start := time.Now()
	defer func() { observe("delete_distribution", start, err) }()

	if !validUUID(id) {
		return nil, domain.ErrDistributionNotFound
	}

	err = s.store.RunInTx(ctx, func(tx repository.LedgerTx) error {
		d, err := tx.GetDistribution(ctx, id)
		if err != nil {
			return err
		}
		// payment lock first, then the row; the same order create and reset use
		p, err := tx.LockPayment(ctx, d.IncomingPaymentID)
		if err != nil {
			return err
		}
		deleted, err := tx.DeleteDistribution(ctx, id, p.ID)
		if err != nil {
			return fmt.Errorf("delete distribution: %w", err)
		}
		if !deleted {
			return domain.ErrDistributionNotFound
		}
		if err := recompute(ctx, tx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		if unexpected(err) {
			log.Printf("[LEDGER] delete_distribution id=%s: %v", id, err)
		}
		return nil, err
	}
	return payment, nil
}

func (s *LedgerService) DeletePayment(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { observe("delete_payment", start, err) }()

	if !validUUID(id) {
		return domain.ErrPaymentNotFound
	}

	err = s.store.RunInTx(ctx, func(tx repository.LedgerTx) error {
		p, err := tx.LockPayment(ctx, id)
		if err != nil {
			return err
		}
		_, count, err := tx.SumDistributed(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("count distributions of %s: %w", p.ID, err)
		}
		switch p.DistributionStatus {
		case domain.StatusPendingDistribution:
		case domain.StatusPartiallyDistributed, domain.StatusFullyDistributed:
			return fmt.Errorf("%w: status %s", domain.ErrPaymentHasDistributions, p.DistributionStatus)
		default:
			return fmt.Errorf("%w: payment %s has status %q", domain.ErrLedgerInconsistent, p.ID, p.DistributionStatus)
		}
		if count > 0 {
			return fmt.Errorf("%w: %d rows", domain.ErrPaymentHasDistributions, count)
		}
		return tx.DeletePayment(ctx, p.ID)
	})
	if unexpected(err) {
		log.Printf("[LEDGER] delete_payment id=%s: %v", id, err)
	}
	return err
}

// ResetAllDistributions deletes every distribution and puts every payment
// back to pending. It cannot be undone.
func (s *LedgerService) ResetAllDistributions(ctx context.Context, actor string) (res *ResetResult, err error) {
	start := time.Now()
	defer func() { observe("reset_distributions", start, err) }()

	res = &ResetResult{}
	err = s.store.RunInTx(ctx, func(tx repository.LedgerTx) error {
		payments, err := tx.LockAllPayments(ctx)
		if err != nil {
			return fmt.Errorf("lock payments: %w", err)
		}
		ids := make([]string, len(payments))
		for i := range payments {
			ids[i] = payments[i].ID
		}
		// a payment created after the lock keeps its rows and its totals
		n, err := tx.DeleteDistributionsOf(ctx, ids)
		if err != nil {
			return fmt.Errorf("delete distributions: %w", err)
		}
		for i := range payments {
			p := &payments[i]
			p.ResetDistributed()
			if err := tx.SavePaymentTotals(ctx, p); err != nil {
				return fmt.Errorf("reset payment %s: %w", p.ID, err)
			}
		}
		res.DistributionsRemoved = n
		res.PaymentsReset = len(payments)
		return nil
	})
	if err != nil {
		log.Printf("[LEDGER] reset_distributions by=%s: %v", actor, err)
		return nil, err
	}

	log.Printf("[LEDGER] reset_distributions by=%s removed=%d payments=%d", actor, res.DistributionsRemoved, res.PaymentsReset)
	return res, nil
}

func (s *LedgerService) CreatePayment(ctx context.Context, in CreatePaymentInput) (payment *domain.IncomingPayment, err error) {
	start := time.Now()
	defer func() { observe("create_payment", start, err) }()

	ref := strings.TrimSpace(in.PaymentID)
	if ref == "" {
		return nil, domain.NewValidationError("paymentId", "paymentId is required")
	}
	if err := validateMoney("totalAmount", in.TotalAmount); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.currency
	}
	if currency != s.currency {
		return nil, domain.NewValidationError("currency", "currency must be %s", s.currency)
	}

	received := s.now()
	if in.DateReceived != nil {
		received = *in.DateReceived
	}

	p := &domain.IncomingPayment{
		ID:           s.newID(),
		PaymentID:    ref,
		DateReceived: received,
		PayerInfo:    strings.TrimSpace(in.PayerInfo),
		TotalAmount:  in.TotalAmount,
		Currency:     currency,
	}
	p.ResetDistributed()

	err = s.store.RunInTx(ctx, func(tx repository.LedgerTx) error {
		return tx.InsertPayment(ctx, p)
	})
	if err != nil {
		if unexpected(err) {
			log.Printf("[LEDGER] create_payment paymentId=%q: %v", ref, err)
		}
		return nil, err
	}
	return p, nil
}

func (s *LedgerService) GetPayment(ctx context.Context, id string) (*domain.IncomingPayment, error) {
	if !validUUID(id) {
		return nil, domain.ErrPaymentNotFound
	}
	return s.store.GetPayment(ctx, id)
}

func (s *LedgerService) ListPayments(ctx context.Context, status string) ([]domain.IncomingPayment, error) {
	f := repository.PaymentsFilter{}
	if status != "" {
		st, err := domain.ParseDistributionStatus(status)
		if err != nil {
			return nil, err
		}
		f.Status = &st
	}
	return s.store.ListPayments(ctx, f)
}

func (s *LedgerService) ListDistributionsByPayment(ctx context.Context, paymentID string) ([]domain.PaymentDistribution, error) {
	if _, err := s.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.store.ListDistributionsByPayment(ctx, paymentID)
}

func (s *LedgerService) ListDistributionsByProcedure(ctx context.Context, reference string) ([]domain.DistributionView, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.NewValidationError("reference", "reference is required")
	}
	return s.store.ListDistributionsByProcedure(ctx, reference)
}
