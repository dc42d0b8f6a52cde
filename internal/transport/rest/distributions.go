package rest

import (
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"customs-ledger/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

const procedureRoutePrefix = "/payment-distributions/procedure/"

func (h *Handler) createDistribution(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.GetIdentity(r.Context())
	if !ok {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	in, err := ValidateCreateDistributionRequest(r)
	if err != nil {
		badRequest(w, "createDistribution", err)
		return
	}
	in.CreatedBy = strconv.FormatInt(identity.UserID, 10)

	res, err := h.ledger.CreateDistribution(r.Context(), *in)
	if err != nil {
		ErrorFrom(w, "createDistribution", err)
		return
	}

	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		Success(w, "distribution already created", res)
		return
	}
	SuccessCreated(w, "distribution created", res)
}

func (h *Handler) listDistributionsByPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	rows, err := h.ledger.ListDistributionsByPayment(r.Context(), paymentID)
	if err != nil {
		ErrorFrom(w, "listDistributionsByPayment", err)
		return
	}
	Success(w, "", map[string]interface{}{"distributions": rows})
}

func (h *Handler) listDistributionsByProcedure(w http.ResponseWriter, r *http.Request) {
	// chi hands back an already decoded wildcard unless the path carried %2F,
	// so the reference is taken from the escaped path and decoded once here
	raw := r.URL.EscapedPath()
	i := strings.Index(raw, procedureRoutePrefix)
	if i < 0 {
		ErrorBadRequest(w, "invalid procedure reference")
		return
	}
	reference, err := url.PathUnescape(raw[i+len(procedureRoutePrefix):])
	if err != nil {
		ErrorBadRequest(w, "invalid procedure reference encoding")
		return
	}

	rows, err := h.ledger.ListDistributionsByProcedure(r.Context(), reference)
	if err != nil {
		ErrorFrom(w, "listDistributionsByProcedure", err)
		return
	}
	Success(w, "", map[string]interface{}{"distributions": rows})
}

func (h *Handler) deleteDistribution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	payment, err := h.ledger.DeleteDistribution(r.Context(), id)
	if err != nil {
		ErrorFrom(w, "deleteDistribution", err)
		return
	}
	Success(w, "distribution deleted", map[string]interface{}{"ok": true, "payment": payment})
}

func (h *Handler) resetDistributions(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.GetIdentity(r.Context())
	if !ok {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}
	if !identity.Admin {
		ErrorForbidden(w, "resetting all distributions requires admin rights")
		return
	}

	actor := strconv.FormatInt(identity.UserID, 10)
	res, err := h.ledger.ResetAllDistributions(r.Context(), actor)
	if err != nil {
		ErrorFrom(w, "resetDistributions", err)
		return
	}

	if h.resets != nil {
		if err := h.resets.BroadcastLedgerReset(r.Context(), res.DistributionsRemoved); err != nil {
			log.Printf("[HTTP] resetDistributions notify error: %v", err)
		}
	}
	Success(w, "all distributions removed; this cannot be undone", res)
}
