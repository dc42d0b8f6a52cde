package domain

type MatchMethod string

const (
	MatchByInvoiceNo MatchMethod = "invoice_no"
	MatchByAmount    MatchMethod = "amount"
)

type ReconciliationChange struct {
	ProcedureID string      `json:"procedureId"`
	Field       string      `json:"field"`
	OldValue    *string     `json:"oldValue"`
	NewValue    string      `json:"newValue"`
	MatchMethod MatchMethod `json:"matchMethod"`
}

type ReconciliationMatch struct {
	ProcedureID string                 `json:"procedureId"`
	Reference   string                 `json:"reference"`
	MatchMethod MatchMethod            `json:"matchMethod"`
	RowNumber   int                    `json:"rowNumber"`
	Changes     []ReconciliationChange `json:"changes"`
}

type PreviewStats struct {
	Rows                  int `json:"rows"`
	Matched               int `json:"matched"`
	MatchedWithoutChanges int `json:"matchedWithoutChanges"`
	Unmatched             int `json:"unmatched"`
	Skipped               int `json:"skipped"`
}

type ReconciliationPreview struct {
	Matches []ReconciliationMatch `json:"matches"`
	Stats   PreviewStats          `json:"stats"`
}

type FieldValue struct {
	Field    string `json:"field"`
	NewValue string `json:"newValue"`
}

// ProcedureUpdate is one caller-confirmed entry of an apply batch.
type ProcedureUpdate struct {
	ProcedureID string       `json:"procedureId"`
	Changes     []FieldValue `json:"changes"`
}

type ApplyStatus string

const (
	ApplyUpdated   ApplyStatus = "updated"
	ApplyUnchanged ApplyStatus = "unchanged"
	ApplyNotFound  ApplyStatus = "not_found"
	ApplyInvalid   ApplyStatus = "invalid"
	ApplyFailed    ApplyStatus = "failed"
)

type ApplyResult struct {
	ID      string      `json:"id"`
	Status  ApplyStatus `json:"status"`
	Fields  []string    `json:"fields,omitempty"`
	Message string      `json:"message,omitempty"`
}
