package rest

import (
	"context"
	"log"
	"net/http"
	"strings"

	"customs-ledger/internal/domain"
	"customs-ledger/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

type ExportListService interface {
	GetExports(ctx context.Context, userID int64) ([]map[string]any, error)
	GetExport(ctx context.Context, exportID string, userID int64) (map[string]any, error)
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	exports, err := h.exportList.GetExports(r.Context(), userID)
	if err != nil {
		log.Printf("[HTTP] listExports error: %v", err)
		ErrorInternal(w, "failed to get exports")
		return
	}

	Success(w, "", exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	exportID := chi.URLParam(r, "export_id")
	if exportID == "" {
		ErrorBadRequest(w, "export_id is required")
		return
	}
	// both the bare uuid and the full key are accepted
	if !strings.Contains(exportID, ":") {
		exportID = h.opts.ExportPrefix + ":" + exportID
	}

	export, err := h.exportList.GetExport(r.Context(), exportID, userID)
	if err != nil {
		if !domain.IsNotFound(err) {
			log.Printf("[HTTP] getExport error: %v", err)
		}
		ErrorNotFound(w, "export not found")
		return
	}

	Success(w, "", export)
}
