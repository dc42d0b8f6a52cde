package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"customs-ledger/internal/domain"
	"customs-ledger/internal/repository"

	"github.com/shopspring/decimal"
)

type ledgerState struct {
	payments      map[string]domain.IncomingPayment
	distributions map[string]domain.PaymentDistribution
}

func (s *ledgerState) clone() *ledgerState {
	c := &ledgerState{
		payments:      make(map[string]domain.IncomingPayment, len(s.payments)),
		distributions: make(map[string]domain.PaymentDistribution, len(s.distributions)),
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.distributions {
		c.distributions[k] = v
	}
	return c
}

// Ledger is an in-memory ledger store. Transactions run one at a time and
// work on a copy of the state that replaces the committed state only when
// the transaction function succeeds.
type Ledger struct {
	writeMu sync.Mutex

	mu    sync.RWMutex
	state *ledgerState
	now   func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		state: &ledgerState{
			payments:      make(map[string]domain.IncomingPayment),
			distributions: make(map[string]domain.PaymentDistribution),
		},
		now: time.Now,
	}
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.RLock()
	work := l.state.clone()
	l.mu.RUnlock()

	if err := fn(&ledgerTx{state: work, now: l.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.state = work
	l.mu.Unlock()
	return nil
}

func (l *Ledger) GetPayment(ctx context.Context, id string) (*domain.IncomingPayment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.state.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &p, nil
}

func (l *Ledger) ListPayments(ctx context.Context, f repository.PaymentsFilter) ([]domain.IncomingPayment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []domain.IncomingPayment{}
	for _, p := range l.state.payments {
		if f.Status != nil && p.DistributionStatus != *f.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateReceived.Equal(out[j].DateReceived) {
			return out[i].DateReceived.After(out[j].DateReceived)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (l *Ledger) GetDistribution(ctx context.Context, id string) (*domain.PaymentDistribution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	d, ok := l.state.distributions[id]
	if !ok {
		return nil, domain.ErrDistributionNotFound
	}
	return &d, nil
}

func (l *Ledger) ListDistributionsByPayment(ctx context.Context, paymentID string) ([]domain.PaymentDistribution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []domain.PaymentDistribution{}
	for _, d := range l.state.distributions {
		if d.IncomingPaymentID == paymentID {
			out = append(out, d)
		}
	}
	sortDistributions(out)
	return out, nil
}

func (l *Ledger) ListDistributionsByProcedure(ctx context.Context, reference string) ([]domain.DistributionView, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows := []domain.PaymentDistribution{}
	for _, d := range l.state.distributions {
		if d.ProcedureReference == reference {
			rows = append(rows, d)
		}
	}
	sortDistributions(rows)

	out := make([]domain.DistributionView, 0, len(rows))
	for _, d := range rows {
		v := domain.DistributionView{PaymentDistribution: d}
		if p, ok := l.state.payments[d.IncomingPaymentID]; ok {
			v.Payment = p.Header()
		}
		out = append(out, v)
	}
	return out, nil
}

func (l *Ledger) Snapshot(ctx context.Context) (*repository.LedgerSnapshot, error) {
	l.mu.RLock()
	state := l.state.clone()
	l.mu.RUnlock()

	snap := &repository.LedgerSnapshot{TakenAt: l.now()}
	for _, p := range state.payments {
		snap.Payments = append(snap.Payments, p)
	}
	sort.Slice(snap.Payments, func(i, j int) bool {
		return snap.Payments[i].ID < snap.Payments[j].ID
	})
	for _, d := range state.distributions {
		snap.Distributions = append(snap.Distributions, d)
	}
	sortDistributions(snap.Distributions)
	return snap, nil
}

func sortDistributions(ds []domain.PaymentDistribution) {
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].DistributionDate.Equal(ds[j].DistributionDate) {
			return ds[i].DistributionDate.Before(ds[j].DistributionDate)
		}
		return ds[i].ID < ds[j].ID
	})
}

type ledgerTx struct {
	state *ledgerState
	now   func() time.Time
}

func (t *ledgerTx) LockPayment(ctx context.Context, id string) (*domain.IncomingPayment, error) {
	p, ok := t.state.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &p, nil
}

func (t *ledgerTx) LockAllPayments(ctx context.Context) ([]domain.IncomingPayment, error) {
	out := make([]domain.IncomingPayment, 0, len(t.state.payments))
	for _, p := range t.state.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *ledgerTx) SumDistributed(ctx context.Context, paymentID string) (decimal.Decimal, int, error) {
	sum := decimal.Zero
	count := 0
	for _, d := range t.state.distributions {
		if d.IncomingPaymentID == paymentID {
			sum = sum.Add(d.DistributedAmount)
			count++
		}
	}
	return sum, count, nil
}

func (t *ledgerTx) GetDistribution(ctx context.Context, id string) (*domain.PaymentDistribution, error) {
	d, ok := t.state.distributions[id]
	if !ok {
		return nil, domain.ErrDistributionNotFound
	}
	return &d, nil
}

func (t *ledgerTx) InsertDistribution(ctx context.Context, d *domain.PaymentDistribution) error {
	if _, ok := t.state.payments[d.IncomingPaymentID]; !ok {
		return domain.ErrPaymentNotFound
	}
	now := t.now()
	d.CreatedAt = &now
	t.state.distributions[d.ID] = *d
	return nil
}

func (t *ledgerTx) DeleteDistribution(ctx context.Context, id, paymentID string) (bool, error) {
	d, ok := t.state.distributions[id]
	if !ok || d.IncomingPaymentID != paymentID {
		return false, nil
	}
	delete(t.state.distributions, id)
	return true, nil
}

func (t *ledgerTx) DeleteDistributionsOf(ctx context.Context, paymentIDs []string) (int64, error) {
	owners := make(map[string]bool, len(paymentIDs))
	for _, id := range paymentIDs {
		owners[id] = true
	}
	var n int64
	for id, d := range t.state.distributions {
		if owners[d.IncomingPaymentID] {
			delete(t.state.distributions, id)
			n++
		}
	}
	return n, nil
}

func (t *ledgerTx) SavePaymentTotals(ctx context.Context, p *domain.IncomingPayment) error {
	cur, ok := t.state.payments[p.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	now := t.now()
	cur.AmountDistributed = p.AmountDistributed
	cur.RemainingBalance = p.RemainingBalance
	cur.DistributionStatus = p.DistributionStatus
	cur.UpdatedAt = &now
	t.state.payments[p.ID] = cur
	p.UpdatedAt = &now
	return nil
}

func (t *ledgerTx) InsertPayment(ctx context.Context, p *domain.IncomingPayment) error {
	for _, existing := range t.state.payments {
		if existing.PaymentID == p.PaymentID {
			return domain.ErrDuplicatePaymentRef
		}
	}
	now := t.now()
	p.CreatedAt = &now
	p.UpdatedAt = &now
	t.state.payments[p.ID] = *p
	return nil
}

func (t *ledgerTx) DeletePayment(ctx context.Context, id string) error {
	if _, ok := t.state.payments[id]; !ok {
		return domain.ErrPaymentNotFound
	}
	for _, d := range t.state.distributions {
		if d.IncomingPaymentID == id {
			// mirrors the ON DELETE RESTRICT foreign key
			return domain.ErrPaymentHasDistributions
		}
	}
	delete(t.state.payments, id)
	return nil
}
