package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"customs-ledger/internal/domain"
	"customs-ledger/internal/service"

	"github.com/shopspring/decimal"
)

var errInvalidJSON = errors.New("invalid JSON")

// decodeJSON keeps numbers as json.Number so money values are read exactly.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return errInvalidJSON
	}
	return nil
}

func toDecimal(field string, v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, domain.NewValidationError(field, "%s is required", field)
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, domain.NewValidationError(field, "%s must be a number", field)
		}
		return d, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero, domain.NewValidationError(field, "%s must be a number", field)
		}
		return d, nil
	default:
		return decimal.Zero, domain.NewValidationError(field, "%s must be a number", field)
	}
}

func toDatePtr(field string, v interface{}) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return &parsed, nil
			}
		}
	}
	return nil, domain.NewValidationError(field, "%s must be a date (YYYY-MM-DD or RFC 3339)", field)
}

func toString(field string, v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", domain.NewValidationError(field, "%s must be a string", field)
	}
}

type rawCreateDistributionRequest struct {
	IncomingPaymentID  interface{} `json:"incomingPaymentId"`
	ProcedureReference interface{} `json:"procedureReference"`
	DistributedAmount  interface{} `json:"distributedAmount"`
	PaymentType        interface{} `json:"paymentType"`
	DistributionDate   interface{} `json:"distributionDate"`
}

func ValidateCreateDistributionRequest(r *http.Request) (*service.CreateDistributionInput, error) {
	var raw rawCreateDistributionRequest
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}

	paymentID, err := toString("incomingPaymentId", raw.IncomingPaymentID)
	if err != nil {
		return nil, err
	}
	if paymentID == "" {
		return nil, domain.NewValidationError("incomingPaymentId", "incomingPaymentId is required")
	}
	reference, err := toString("procedureReference", raw.ProcedureReference)
	if err != nil {
		return nil, err
	}
	if reference == "" {
		return nil, domain.NewValidationError("procedureReference", "procedureReference is required")
	}
	amount, err := toDecimal("distributedAmount", raw.DistributedAmount)
	if err != nil {
		return nil, err
	}
	paymentType, err := toString("paymentType", raw.PaymentType)
	if err != nil {
		return nil, err
	}
	date, err := toDatePtr("distributionDate", raw.DistributionDate)
	if err != nil {
		return nil, err
	}

	return &service.CreateDistributionInput{
		IncomingPaymentID:  paymentID,
		ProcedureReference: reference,
		DistributedAmount:  amount,
		PaymentType:        paymentType,
		DistributionDate:   date,
		IdempotencyKey:     strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}, nil
}

type rawCreatePaymentRequest struct {
	PaymentID    interface{} `json:"paymentId"`
	DateReceived interface{} `json:"dateReceived"`
	PayerInfo    interface{} `json:"payerInfo"`
	TotalAmount  interface{} `json:"totalAmount"`
	Currency     interface{} `json:"currency"`
}

func ValidateCreatePaymentRequest(r *http.Request) (*service.CreatePaymentInput, error) {
	var raw rawCreatePaymentRequest
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}

	paymentID, err := toString("paymentId", raw.PaymentID)
	if err != nil {
		return nil, err
	}
	if paymentID == "" {
		return nil, domain.NewValidationError("paymentId", "paymentId is required")
	}
	received, err := toDatePtr("dateReceived", raw.DateReceived)
	if err != nil {
		return nil, err
	}
	payer, err := toString("payerInfo", raw.PayerInfo)
	if err != nil {
		return nil, err
	}
	total, err := toDecimal("totalAmount", raw.TotalAmount)
	if err != nil {
		return nil, err
	}
	currency, err := toString("currency", raw.Currency)
	if err != nil {
		return nil, err
	}

	return &service.CreatePaymentInput{
		PaymentID:    paymentID,
		DateReceived: received,
		PayerInfo:    payer,
		TotalAmount:  total,
		Currency:     currency,
	}, nil
}

type ApplyRequest struct {
	Updates []domain.ProcedureUpdate `json:"updates"`
}

func ValidateApplyRequest(r *http.Request) (*ApplyRequest, error) {
	var req ApplyRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return nil, errInvalidJSON
	}
	if len(req.Updates) == 0 {
		return nil, domain.NewValidationError("updates", "updates is required and must be a non-empty array")
	}
	return &req, nil
}

type ReportExportRequest struct {
	Format string `json:"format"`
}

func ValidateReportExportRequest(r *http.Request) (*ReportExportRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errInvalidJSON
	}
	var req ReportExportRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, errInvalidJSON
		}
	}
	if _, err := service.ParseReportFormat(req.Format); err != nil {
		return nil, err
	}
	return &req, nil
}

// badRequest answers validation failures; other errors go through ErrorFrom.
func badRequest(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, errInvalidJSON) {
		ErrorBadRequest(w, "invalid JSON")
		return
	}
	ErrorFrom(w, op, err)
}

func describeSize(n int64) string {
	return fmt.Sprintf("%d MB", n>>20)
}
