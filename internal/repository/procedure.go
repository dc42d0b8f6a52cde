package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"customs-ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// reconcilable columns and the SQL type each new value is cast to
var procedureFieldTypes = map[string]string{
	"invoice_no":        "text",
	"invoice_date":      "text",
	"amount":            "numeric",
	"currency":          "text",
	"shipper":           "text",
	"package":           "integer",
	"piece":             "integer",
	"kg":                "numeric",
	"arrival_date":      "text",
	"awb_number":        "text",
	"carrier":           "text",
	"customs":           "text",
	"import_dec_number": "text",
	"import_dec_date":   "text",
	"usdtl_rate":        "numeric",
	"color":             "text",
}

var procedureFieldOrder = []string{
	"invoice_no", "invoice_date", "amount", "currency", "shipper", "package", "piece", "kg",
	"arrival_date", "awb_number", "carrier", "customs", "import_dec_number", "import_dec_date",
	"usdtl_rate", "color",
}

func procedureSelect() string {
	cols := make([]string, 0, len(procedureFieldOrder))
	for _, f := range procedureFieldOrder {
		cols = append(cols, f+"::text")
	}
	return `SELECT id, reference, ` + strings.Join(cols, ", ") + ` FROM procedures`
}

func scanProcedure(s rowScanner) (*domain.Procedure, error) {
	values := make([]sql.NullString, len(procedureFieldOrder))
	dest := make([]any, 0, len(values)+2)

	var p domain.Procedure
	dest = append(dest, &p.ID, &p.Reference)
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	p.Fields = make(map[string]*string, len(procedureFieldOrder))
	for i, f := range procedureFieldOrder {
		if values[i].Valid {
			v := values[i].String
			p.Fields[f] = &v
		} else {
			p.Fields[f] = nil
		}
	}
	if amount := p.Fields["amount"]; amount != nil {
		if d, err := decimal.NewFromString(*amount); err == nil {
			p.Amount = &d
		}
	}
	p.Currency = p.Fields["currency"]
	return &p, nil
}

type ProcedureRepository struct {
	db *sql.DB
}

func NewProcedureRepository(db *sql.DB) *ProcedureRepository {
	return &ProcedureRepository{db: db}
}

func (r *ProcedureRepository) FindByReference(ctx context.Context, reference string) (*domain.Procedure, error) {
	p, err := scanProcedure(r.db.QueryRowContext(ctx, procedureSelect()+` WHERE reference = $1`, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProcedureNotFound
	}
	return p, err
}

func (r *ProcedureRepository) GetByID(ctx context.Context, id string) (*domain.Procedure, error) {
	p, err := scanProcedure(r.db.QueryRowContext(ctx, procedureSelect()+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProcedureNotFound
	}
	return p, err
}

// ListForMatching returns every procedure with the columns reconciliation compares.
func (r *ProcedureRepository) ListForMatching(ctx context.Context) ([]domain.Procedure, error) {
	rows, err := r.db.QueryContext(ctx, procedureSelect()+` ORDER BY reference`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
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

// FinancialSummaries returns the expense figure per reference. References
// without a procedure row are absent from the result.
func (r *ProcedureRepository) FinancialSummaries(ctx context.Context, references []string) (map[string]domain.ProcedureFinancials, error) {
	out := make(map[string]domain.ProcedureFinancials, len(references))
	if len(references) == 0 {
		return out, nil
	}

	query := `
		SELECT p.reference,
		       COALESCE(p.amount, 0),
		       COALESCE((SELECT SUM(t.amount) FROM taxes t WHERE t.procedure_reference = p.reference), 0)
		     + COALESCE((SELECT SUM(e.amount) FROM import_expenses e WHERE e.procedure_reference = p.reference), 0)
		     + COALESCE((SELECT SUM(s.amount) FROM import_service_invoices s WHERE s.procedure_reference = p.reference), 0)
		FROM procedures p
		WHERE p.reference = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, references)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		f := domain.ProcedureFinancials{Available: true}
		if err := rows.Scan(&f.Reference, &f.InvoiceAmount, &f.TotalExpenses); err != nil {
			return nil, err
		}
		out[f.Reference] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FillFields writes the given values only into columns that are still NULL
// or empty, and returns the fields it actually filled. Unknown fields are
// rejected before anything is written.
func (r *ProcedureRepository) FillFields(ctx context.Context, id string, changes []domain.FieldValue) ([]string, error) {
	for _, c := range changes {
		if _, ok := procedureFieldTypes[c.Field]; !ok {
			return nil, domain.NewValidationError(c.Field, "field %q cannot be reconciled", c.Field)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := scanProcedure(tx.QueryRowContext(ctx, procedureSelect()+` WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProcedureNotFound
	}
	if err != nil {
		return nil, err
	}

	set := []string{}
	args := []any{id}
	filled := []string{}
	seen := map[string]bool{}
	i := 2

	for _, c := range changes {
		if seen[c.Field] {
			continue
		}
		seen[c.Field] = true

		if old := current.Field(c.Field); old != nil && strings.TrimSpace(*old) != "" {
			continue
		}
		set = append(set, fmt.Sprintf(
			"%[1]s = CASE WHEN %[1]s IS NULL OR %[1]s::text = '' THEN CAST($%[2]d::text AS %[3]s) ELSE %[1]s END",
			c.Field, i, procedureFieldTypes[c.Field]))
		args = append(args, c.NewValue)
		filled = append(filled, c.Field)
		i++
	}

	if len(set) == 0 {
		return filled, nil
	}

	set = append(set, "updated_at = NOW()")
	query := `UPDATE procedures SET ` + strings.Join(set, ", ") + ` WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return filled, nil
}
