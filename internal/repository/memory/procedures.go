package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"customs-ledger/internal/domain"
	"customs-ledger/internal/matching"
)

// Procedures is an in-memory procedure collaborator.
type Procedures struct {
	mu         sync.RWMutex
	byID       map[string]*domain.Procedure
	financials map[string]domain.ProcedureFinancials
}

func NewProcedures() *Procedures {
	return &Procedures{
		byID:       make(map[string]*domain.Procedure),
		financials: make(map[string]domain.ProcedureFinancials),
	}
}

// Put stores a copy of p, replacing any procedure with the same id.
func (r *Procedures) Put(p domain.Procedure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = cloneProcedure(&p)
}

// SetFinancials records the expense figure reported for reference.
func (r *Procedures) SetFinancials(f domain.ProcedureFinancials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.Available = true
	r.financials[f.Reference] = f
}

func (r *Procedures) FindByReference(ctx context.Context, reference string) (*domain.Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.Reference == reference {
			return cloneProcedure(p), nil
		}
	}
	return nil, domain.ErrProcedureNotFound
}

func (r *Procedures) GetByID(ctx context.Context, id string) (*domain.Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrProcedureNotFound
	}
	return cloneProcedure(p), nil
}

func (r *Procedures) ListForMatching(ctx context.Context) ([]domain.Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Procedure, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, *cloneProcedure(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	return out, nil
}

func (r *Procedures) FinancialSummaries(ctx context.Context, references []string) (map[string]domain.ProcedureFinancials, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.ProcedureFinancials, len(references))
	for _, ref := range references {
		if f, ok := r.financials[ref]; ok {
			out[ref] = f
		}
	}
	return out, nil
}

func (r *Procedures) FillFields(ctx context.Context, id string, changes []domain.FieldValue) ([]string, error) {
	for _, c := range changes {
		if !matching.IsCanonical(c.Field) {
			return nil, domain.NewValidationError(c.Field, "field %q cannot be reconciled", c.Field)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrProcedureNotFound
	}
	if p.Fields == nil {
		p.Fields = make(map[string]*string)
	}

	filled := []string{}
	for _, c := range changes {
		if old := p.Fields[c.Field]; old != nil && strings.TrimSpace(*old) != "" {
			continue
		}
		v := c.NewValue
		p.Fields[c.Field] = &v
		filled = append(filled, c.Field)
	}
	return filled, nil
}

func cloneProcedure(p *domain.Procedure) *domain.Procedure {
	c := *p
	if p.Fields != nil {
		c.Fields = make(map[string]*string, len(p.Fields))
		for k, v := range p.Fields {
			if v == nil {
				c.Fields[k] = nil
				continue
			}
			s := *v
			c.Fields[k] = &s
		}
	}
	return &c
}
