package rest

import (
	"errors"
	"net/http"
)

func (h *Handler) previewEnrichment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorTooLarge(w, "file exceeds "+describeSize(h.opts.MaxUploadBytes))
			return
		}
		ErrorBadRequest(w, "invalid form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		ErrorBadRequest(w, "file is required")
		return
	}
	defer file.Close()

	preview, err := h.enrichment.Preview(r.Context(), header.Filename, file)
	if err != nil {
		ErrorFrom(w, "previewEnrichment", err)
		return
	}
	Success(w, "", preview)
}

func (h *Handler) applyEnrichment(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateApplyRequest(r)
	if err != nil {
		badRequest(w, "applyEnrichment", err)
		return
	}

	results := h.enrichment.Apply(r.Context(), req.Updates)
	Success(w, "", map[string]interface{}{"results": results})
}
