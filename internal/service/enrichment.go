package service

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"customs-ledger/internal/domain"
	"customs-ledger/internal/matching"
	"customs-ledger/internal/metrics"

	"github.com/shopspring/decimal"
)

// amounts closer than this are the same amount
var amountEpsilon = decimal.New(1, -2)

var (
	numericFields = map[string]bool{"amount": true, "kg": true, "usdtl_rate": true}
	integerFields = map[string]bool{"package": true, "piece": true}
)

type ProcedureStore interface {
	ListForMatching(ctx context.Context) ([]domain.Procedure, error)
	GetByID(ctx context.Context, id string) (*domain.Procedure, error)
	FillFields(ctx context.Context, id string, changes []domain.FieldValue) ([]string, error)
}

type EnrichmentService struct {
	procedures ProcedureStore
	dict       *matching.Dictionary
}

func NewEnrichmentService(procedures ProcedureStore, dict *matching.Dictionary) *EnrichmentService {
	return &EnrichmentService{procedures: procedures, dict: dict}
}

type amountCandidate struct {
	procedure *domain.Procedure
	amount    decimal.Decimal
}

type procedureIndex struct {
	byInvoice map[string]*domain.Procedure
	amounts   []amountCandidate
}

func buildIndex(procs []domain.Procedure) *procedureIndex {
	idx := &procedureIndex{byInvoice: make(map[string]*domain.Procedure, len(procs))}
	for i := range procs {
		p := &procs[i]
		if inv := p.Field("invoice_no"); inv != nil {
			key := matching.NormalizeInvoiceNo(*inv)
			if _, seen := idx.byInvoice[key]; key != "" && !seen {
				idx.byInvoice[key] = p
			}
		}
		amount := p.Amount
		if amount == nil {
			if raw := p.Field("amount"); raw != nil {
				if d, ok := matching.ParseAmount(*raw); ok {
					amount = &d
				}
			}
		}
		if amount != nil {
			idx.amounts = append(idx.amounts, amountCandidate{procedure: p, amount: *amount})
		}
	}
	return idx
}

// match runs the cascade: exact invoice number first, then the closest
// amount inside the epsilon. Ties on amount keep the earlier procedure.
func (idx *procedureIndex) match(invoice string, amount decimal.Decimal, hasAmount bool) (*domain.Procedure, domain.MatchMethod) {
	if invoice != "" {
		if p, ok := idx.byInvoice[invoice]; ok {
			return p, domain.MatchByInvoiceNo
		}
	}
	if !hasAmount {
		return nil, ""
	}

	var (
		best     *domain.Procedure
		bestDiff decimal.Decimal
	)
	for _, c := range idx.amounts {
		diff := c.amount.Sub(amount).Abs()
		if !diff.LessThan(amountEpsilon) {
			continue
		}
		if best == nil || diff.LessThan(bestDiff) {
			best, bestDiff = c.procedure, diff
		}
	}
	if best == nil {
		return nil, ""
	}
	return best, domain.MatchByAmount
}

// Preview matches the uploaded rows to procedures and proposes values for
// their empty fields. Nothing is written.
func (s *EnrichmentService) Preview(ctx context.Context, fileName string, r io.Reader) (preview *domain.ReconciliationPreview, err error) {
	start := time.Now()
	defer func() { observe("enrichment_preview", start, err) }()

	rows, err := readSheet(fileName, r)
	if err != nil {
		return nil, err
	}

	headerAt := -1
	for i, row := range rows {
		if !isBlankRow(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, domain.NewValidationError("file", "file has no header row")
	}

	cols := s.dict.ResolveColumns(rows[headerAt])
	if !cols.Has("invoice_no") && !cols.Has("amount") {
		return nil, domain.NewValidationError("file", "no invoice number or amount column found in header")
	}

	procs, err := s.procedures.ListForMatching(ctx)
	if err != nil {
		log.Printf("[ENRICH] preview %q: list procedures: %v", fileName, err)
		return nil, err
	}
	idx := buildIndex(procs)

	preview = &domain.ReconciliationPreview{Matches: []domain.ReconciliationMatch{}}
	proposed := make(map[string]map[string]bool)

	for i := headerAt + 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		preview.Stats.Rows++

		invoice := matching.NormalizeInvoiceNo(cols.Value(row, "invoice_no"))
		amount, hasAmount := matching.ParseAmount(cols.Value(row, "amount"))
		if invoice == "" && !hasAmount {
			preview.Stats.Skipped++
			continue
		}

		p, method := idx.match(invoice, amount, hasAmount)
		if p == nil {
			preview.Stats.Unmatched++
			continue
		}
		preview.Stats.Matched++

		seen := proposed[p.ID]
		if seen == nil {
			seen = make(map[string]bool)
			proposed[p.ID] = seen
		}
		changes := s.diff(p, row, cols, method, seen)
		if len(changes) == 0 {
			preview.Stats.MatchedWithoutChanges++
			continue
		}
		preview.Matches = append(preview.Matches, domain.ReconciliationMatch{
			ProcedureID: p.ID,
			Reference:   p.Reference,
			MatchMethod: method,
			RowNumber:   i + 1,
			Changes:     changes,
		})
	}

	metrics.AddEnrichmentRows("matched", preview.Stats.Matched)
	metrics.AddEnrichmentRows("unmatched", preview.Stats.Unmatched)
	metrics.AddEnrichmentRows("skipped", preview.Stats.Skipped)

	log.Printf("[ENRICH] preview %q: rows=%d matched=%d with_changes=%d unmatched=%d skipped=%d",
		fileName, preview.Stats.Rows, preview.Stats.Matched, len(preview.Matches), preview.Stats.Unmatched, preview.Stats.Skipped)
	return preview, nil
}

// diff proposes a value only for fields the procedure has empty. seen holds
// the fields already proposed for this procedure by earlier rows.
func (s *EnrichmentService) diff(p *domain.Procedure, row []string, cols matching.Columns, method domain.MatchMethod, seen map[string]bool) []domain.ReconciliationChange {
	var changes []domain.ReconciliationChange
	for _, field := range matching.CanonicalFields {
		if !cols.Has(field) || seen[field] {
			continue
		}
		value, ok := s.coerce(field, cols.Value(row, field))
		if !ok {
			continue
		}
		existing := p.Field(field)
		if existing != nil && strings.TrimSpace(*existing) != "" {
			continue
		}

		var old *string
		if existing != nil {
			v := *existing
			old = &v
		}
		seen[field] = true
		changes = append(changes, domain.ReconciliationChange{
			ProcedureID: p.ID,
			Field:       field,
			OldValue:    old,
			NewValue:    value,
			MatchMethod: method,
		})
	}
	return changes
}

func (s *EnrichmentService) coerce(field, raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	switch {
	case s.dict.IsDateField(field):
		v := matching.CoerceDate(raw)
		return v, v != ""
	case numericFields[field]:
		d, ok := matching.ParseAmount(raw)
		if !ok {
			return "", false
		}
		return d.String(), true
	case integerFields[field]:
		d, ok := matching.ParseAmount(raw)
		if !ok || !d.IsInteger() {
			return "", false
		}
		return d.String(), true
	}
	return raw, true
}

// validateChange rejects values the procedure column could not hold.
func validateChange(c domain.FieldValue) error {
	if !matching.IsCanonical(c.Field) {
		return domain.NewValidationError(c.Field, "field %q cannot be reconciled", c.Field)
	}
	v := strings.TrimSpace(c.NewValue)
	if v == "" {
		return domain.NewValidationError(c.Field, "%s: value is empty", c.Field)
	}
	switch {
	case numericFields[c.Field]:
		if _, err := decimal.NewFromString(v); err != nil {
			return domain.NewValidationError(c.Field, "%s: %q is not a number", c.Field, v)
		}
	case integerFields[c.Field]:
		d, err := decimal.NewFromString(v)
		if err != nil || !d.IsInteger() {
			return domain.NewValidationError(c.Field, "%s: %q is not an integer", c.Field, v)
		}
	}
	return nil
}

// Apply writes the confirmed changes one procedure at a time. A failing
// record is reported and the batch continues.
func (s *EnrichmentService) Apply(ctx context.Context, updates []domain.ProcedureUpdate) []domain.ApplyResult {
	start := time.Now()
	results := make([]domain.ApplyResult, 0, len(updates))
	failed := false

	for _, u := range updates {
		res := s.applyOne(ctx, u)
		if res.Status == domain.ApplyFailed {
			failed = true
		}
		metrics.AddEnrichmentRows("apply_"+string(res.Status), 1)
		results = append(results, res)
	}

	result := metrics.ResultSuccess
	if failed {
		result = metrics.ResultError
	}
	metrics.ObserveOperation("enrichment_apply", result, time.Since(start))
	return results
}

func (s *EnrichmentService) applyOne(ctx context.Context, u domain.ProcedureUpdate) domain.ApplyResult {
	id := strings.TrimSpace(u.ProcedureID)
	res := domain.ApplyResult{ID: id}
	if id == "" {
		res.Status = domain.ApplyInvalid
		res.Message = "procedureId is required"
		return res
	}
	if len(u.Changes) == 0 {
		res.Status = domain.ApplyUnchanged
		return res
	}

	changes := make([]domain.FieldValue, 0, len(u.Changes))
	for _, c := range u.Changes {
		c.NewValue = strings.TrimSpace(c.NewValue)
		if err := validateChange(c); err != nil {
			res.Status = domain.ApplyInvalid
			res.Message = err.Error()
			return res
		}
		changes = append(changes, c)
	}

	if _, err := s.procedures.GetByID(ctx, id); err != nil {
		if errors.Is(err, domain.ErrProcedureNotFound) {
			res.Status = domain.ApplyNotFound
			return res
		}
		log.Printf("[ENRICH] apply procedure=%s: lookup: %v", id, err)
		res.Status = domain.ApplyFailed
		res.Message = "lookup failed"
		return res
	}

	filled, err := s.procedures.FillFields(ctx, id, changes)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrProcedureNotFound):
		res.Status = domain.ApplyNotFound
		return res
	case isValidation(err):
		res.Status = domain.ApplyInvalid
		res.Message = err.Error()
		return res
	default:
		log.Printf("[ENRICH] apply procedure=%s: %v", id, err)
		res.Status = domain.ApplyFailed
		res.Message = "update failed"
		return res
	}

	if len(filled) == 0 {
		res.Status = domain.ApplyUnchanged
		return res
	}
	res.Status = domain.ApplyUpdated
	res.Fields = filled
	return res
}
