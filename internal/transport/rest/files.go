package rest

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"customs-ledger/internal/clients"

	"github.com/go-chi/chi/v5"
)

// FilesHandler serves generated files from local storage. It is mounted
// outside the authenticated router.
func FilesHandler(storage *clients.StorageClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file := chi.URLParam(r, "file")
		path, err := storage.Path(file)
		if err != nil {
			if errors.Is(err, clients.ErrFileNotFound) {
				http.NotFound(w, r)
				return
			}
			log.Printf("[HTTP] serve file %q: %v", file, err)
			http.Error(w, "failed to access file", http.StatusInternalServerError)
			return
		}

		// prefer original filename in Content-Disposition (strip random prefix)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", clients.OriginalName(file)))
		http.ServeFile(w, r, path)
	}
}
