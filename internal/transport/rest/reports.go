package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"customs-ledger/internal/service"
	"customs-ledger/internal/transport/auth"
)

func (h *Handler) generateReport(w http.ResponseWriter, r *http.Request) {
	format, err := service.ParseReportFormat(r.URL.Query().Get("format"))
	if err != nil {
		ErrorFrom(w, "generateReport", err)
		return
	}

	report, err := h.reports.Generate(r.Context(), format)
	if err != nil {
		ErrorFrom(w, "generateReport", err)
		return
	}

	disposition := "attachment"
	if format == service.ReportHTML {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, report.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report.Data)
}

func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateReportExportRequest(r)
	if err != nil {
		badRequest(w, "exportReport", err)
		return
	}

	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	exportID, err := h.exporter.StartExport(r.Context(), req.Format, userID)
	if err != nil {
		ErrorFrom(w, "exportReport", err)
		return
	}

	SuccessAccepted(w, "export queued", map[string]interface{}{"export_id": exportID})
}
