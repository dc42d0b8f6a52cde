package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"customs-ledger/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

type PaymentsFilter struct {
	Status *domain.DistributionStatus
	Limit  int
}

// LedgerTx is the set of writes the ledger performs inside one transaction.
// Implementations must hold the payment lock taken by LockPayment or
// LockAllPayments until the transaction ends.
type LedgerTx interface {
	LockPayment(ctx context.Context, id string) (*domain.IncomingPayment, error)
	LockAllPayments(ctx context.Context) ([]domain.IncomingPayment, error)
	SumDistributed(ctx context.Context, paymentID string) (decimal.Decimal, int, error)
	GetDistribution(ctx context.Context, id string) (*domain.PaymentDistribution, error)
	InsertDistribution(ctx context.Context, d *domain.PaymentDistribution) error
	DeleteDistribution(ctx context.Context, id, paymentID string) (bool, error)
	// DeleteDistributionsOf removes the distributions of the given payments only;
	// callers pass the ids they locked.
	DeleteDistributionsOf(ctx context.Context, paymentIDs []string) (int64, error)
	SavePaymentTotals(ctx context.Context, p *domain.IncomingPayment) error
	InsertPayment(ctx context.Context, p *domain.IncomingPayment) error
	DeletePayment(ctx context.Context, id string) error
}

// LedgerSnapshot is a consistent read of both ledger tables.
type LedgerSnapshot struct {
	TakenAt       time.Time
	Payments      []domain.IncomingPayment
	Distributions []domain.PaymentDistribution
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const paymentColumns = `id, payment_id, date_received, payer_info, total_amount, currency,
	amount_distributed, remaining_balance, distribution_status, created_at, updated_at`

const distributionColumns = `id, incoming_payment_id, procedure_reference, distributed_amount,
	payment_type, distribution_date, created_by, created_at`

func scanPayment(s rowScanner) (*domain.IncomingPayment, error) {
	var (
		p         domain.IncomingPayment
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := s.Scan(
		&p.ID,
		&p.PaymentID,
		&p.DateReceived,
		&p.PayerInfo,
		&p.TotalAmount,
		&p.Currency,
		&p.AmountDistributed,
		&p.RemainingBalance,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	p.DistributionStatus = domain.DistributionStatus(status)
	p.CreatedAt = &createdAt
	p.UpdatedAt = &updatedAt
	return &p, nil
}

func scanDistribution(s rowScanner) (*domain.PaymentDistribution, error) {
	var (
		d         domain.PaymentDistribution
		pType     string
		createdAt time.Time
	)
	if err := s.Scan(
		&d.ID,
		&d.IncomingPaymentID,
		&d.ProcedureReference,
		&d.DistributedAmount,
		&pType,
		&d.DistributionDate,
		&d.CreatedBy,
		&createdAt,
	); err != nil {
		return nil, err
	}
	d.PaymentType = domain.PaymentType(pType)
	d.CreatedAt = &createdAt
	return &d, nil
}

func listPayments(ctx context.Context, q queryer, f PaymentsFilter) ([]domain.IncomingPayment, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.Status != nil {
		where = append(where, fmt.Sprintf("distribution_status = $%d", i))
		args = append(args, string(*f.Status))
		i++
	}

	query := `SELECT ` + paymentColumns + ` FROM incoming_payments WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date_received DESC, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.IncomingPayment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func listDistributions(ctx context.Context, q queryer, where string, args ...any) ([]domain.PaymentDistribution, error) {
	query := `SELECT ` + distributionColumns + ` FROM payment_distributions`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY distribution_date, created_at, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PaymentDistribution{}
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// RunInTx runs fn inside a READ COMMITTED transaction. fn's error rolls the
// transaction back and is returned unchanged.
func (r *LedgerRepository) RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&pgLedgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetPayment(ctx context.Context, id string) (*domain.IncomingPayment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM incoming_payments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	return p, err
}

func (r *LedgerRepository) ListPayments(ctx context.Context, f PaymentsFilter) ([]domain.IncomingPayment, error) {
	return listPayments(ctx, r.db, f)
}

func (r *LedgerRepository) GetDistribution(ctx context.Context, id string) (*domain.PaymentDistribution, error) {
	d, err := scanDistribution(r.db.QueryRowContext(ctx,
		`SELECT `+distributionColumns+` FROM payment_distributions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDistributionNotFound
	}
	return d, err
}

func (r *LedgerRepository) ListDistributionsByPayment(ctx context.Context, paymentID string) ([]domain.PaymentDistribution, error) {
	return listDistributions(ctx, r.db, "incoming_payment_id = $1", paymentID)
}

func (r *LedgerRepository) ListDistributionsByProcedure(ctx context.Context, reference string) ([]domain.DistributionView, error) {
	query := `
		SELECT d.id, d.incoming_payment_id, d.procedure_reference, d.distributed_amount,
		       d.payment_type, d.distribution_date, d.created_by, d.created_at,
		       p.id, p.payment_id, p.date_received, p.payer_info, p.total_amount, p.currency,
		       p.distribution_status
		FROM payment_distributions d
		JOIN incoming_payments p ON p.id = d.incoming_payment_id
		WHERE d.procedure_reference = $1
		ORDER BY d.distribution_date, d.created_at, d.id
	`

	rows, err := r.db.QueryContext(ctx, query, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.DistributionView{}
	for rows.Next() {
		var (
			v         domain.DistributionView
			h         domain.PaymentHeader
			pType     string
			status    string
			createdAt time.Time
		)
		if err := rows.Scan(
			&v.ID,
			&v.IncomingPaymentID,
			&v.ProcedureReference,
			&v.DistributedAmount,
			&pType,
			&v.DistributionDate,
			&v.CreatedBy,
			&createdAt,
			&h.ID,
			&h.PaymentID,
			&h.DateReceived,
			&h.PayerInfo,
			&h.TotalAmount,
			&h.Currency,
			&status,
		); err != nil {
			return nil, err
		}
		v.PaymentType = domain.PaymentType(pType)
		v.CreatedAt = &createdAt
		h.DistributionStatus = domain.DistributionStatus(status)
		v.Payment = &h
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot reads payments and distributions from one REPEATABLE READ,
// read-only transaction so both lists describe the same moment.
func (r *LedgerRepository) Snapshot(ctx context.Context) (*LedgerSnapshot, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var takenAt time.Time
	if err := tx.QueryRowContext(ctx, `SELECT NOW()`).Scan(&takenAt); err != nil {
		return nil, err
	}

	payments, err := listPayments(ctx, tx, PaymentsFilter{})
	if err != nil {
		return nil, fmt.Errorf("snapshot payments: %w", err)
	}
	distributions, err := listDistributions(ctx, tx, "")
	if err != nil {
		return nil, fmt.Errorf("snapshot distributions: %w", err)
	}

	return &LedgerSnapshot{TakenAt: takenAt, Payments: payments, Distributions: distributions}, nil
}

type pgLedgerTx struct {
	tx *sql.Tx
}

func (t *pgLedgerTx) LockPayment(ctx context.Context, id string) (*domain.IncomingPayment, error) {
	p, err := scanPayment(t.tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM incoming_payments WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	return p, err
}

func (t *pgLedgerTx) LockAllPayments(ctx context.Context) ([]domain.IncomingPayment, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM incoming_payments ORDER BY id FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.IncomingPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (t *pgLedgerTx) SumDistributed(ctx context.Context, paymentID string) (decimal.Decimal, int, error) {
	var (
		sum   decimal.Decimal
		count int
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(distributed_amount), 0), COUNT(*)
		FROM payment_distributions
		WHERE incoming_payment_id = $1
	`, paymentID).Scan(&sum, &count)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return sum, count, nil
}

func (t *pgLedgerTx) GetDistribution(ctx context.Context, id string) (*domain.PaymentDistribution, error) {
	d, err := scanDistribution(t.tx.QueryRowContext(ctx,
		`SELECT `+distributionColumns+` FROM payment_distributions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDistributionNotFound
	}
	return d, err
}

func (t *pgLedgerTx) InsertDistribution(ctx context.Context, d *domain.PaymentDistribution) error {
	var createdAt time.Time
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO payment_distributions
			(id, incoming_payment_id, procedure_reference, distributed_amount, payment_type, distribution_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`,
		d.ID,
		d.IncomingPaymentID,
		d.ProcedureReference,
		d.DistributedAmount,
		string(d.PaymentType),
		d.DistributionDate,
		d.CreatedBy,
	).Scan(&createdAt)
	if err != nil {
		return err
	}
	d.CreatedAt = &createdAt
	return nil
}

func (t *pgLedgerTx) DeleteDistribution(ctx context.Context, id, paymentID string) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM payment_distributions WHERE id = $1 AND incoming_payment_id = $2`, id, paymentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *pgLedgerTx) DeleteDistributionsOf(ctx context.Context, paymentIDs []string) (int64, error) {
	if len(paymentIDs) == 0 {
		return 0, nil
	}
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM payment_distributions WHERE incoming_payment_id = ANY($1)`, paymentIDs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *pgLedgerTx) SavePaymentTotals(ctx context.Context, p *domain.IncomingPayment) error {
	var updatedAt time.Time
	err := t.tx.QueryRowContext(ctx, `
		UPDATE incoming_payments
		SET amount_distributed = $2,
		    remaining_balance = $3,
		    distribution_status = $4,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.AmountDistributed, p.RemainingBalance, string(p.DistributionStatus)).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrPaymentNotFound
	}
	if err != nil {
		return err
	}
	p.UpdatedAt = &updatedAt
	return nil
}

func (t *pgLedgerTx) InsertPayment(ctx context.Context, p *domain.IncomingPayment) error {
	var createdAt, updatedAt time.Time
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO incoming_payments
			(id, payment_id, date_received, payer_info, total_amount, currency,
			 amount_distributed, remaining_balance, distribution_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`,
		p.ID,
		p.PaymentID,
		p.DateReceived,
		p.PayerInfo,
		p.TotalAmount,
		p.Currency,
		p.AmountDistributed,
		p.RemainingBalance,
		string(p.DistributionStatus),
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrDuplicatePaymentRef, p.PaymentID)
		}
		return err
	}
	p.CreatedAt = &createdAt
	p.UpdatedAt = &updatedAt
	return nil
}

func (t *pgLedgerTx) DeletePayment(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM incoming_payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}
