package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	in, err := ValidateCreatePaymentRequest(r)
	if err != nil {
		badRequest(w, "createPayment", err)
		return
	}

	payment, err := h.ledger.CreatePayment(r.Context(), *in)
	if err != nil {
		ErrorFrom(w, "createPayment", err)
		return
	}
	SuccessCreated(w, "incoming payment created", payment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.ledger.ListPayments(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		ErrorFrom(w, "listPayments", err)
		return
	}
	Success(w, "", map[string]interface{}{"payments": payments})
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.ledger.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		ErrorFrom(w, "getPayment", err)
		return
	}
	Success(w, "", payment)
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeletePayment(r.Context(), chi.URLParam(r, "id")); err != nil {
		ErrorFrom(w, "deletePayment", err)
		return
	}
	Success(w, "incoming payment deleted", map[string]interface{}{"ok": true})
}
