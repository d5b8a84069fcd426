package handlers

import (
	"errors"
	"net/http"
	"sort"
)

type uploadedFile struct {
	Field    string `json:"field"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Upload accepts a multipart form and reports what it received. Storage is
// out of scope for the gateway.
// @Summary Upload files
// @Tags uploads
// @Accept mpfd
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 413 {object} map[string]interface{}
// @Router /api/uploads [post]
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	fields := make([]string, 0, len(r.MultipartForm.File))
	for field := range r.MultipartForm.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	files := make([]uploadedFile, 0)
	var total int64
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			files = append(files, uploadedFile{Field: field, Filename: fh.Filename, Size: fh.Size})
			total += fh.Size
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"files":      files,
		"totalBytes": total,
	})
}
