package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ttsites/facturemanager/internal/settings"
	"github.com/ttsites/facturemanager/internal/tariff"
)

const maxUploadBytes = 32 << 20

func (s *server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.Get(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var st tariff.Settings
	if err := decodeJSON(w, r, &st); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.settings.Update(r.Context(), st); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleImportPDF accepts either a multipart upload in the "file" field or a
// raw application/pdf body.
func (s *server) handleImportPDF(w http.ResponseWriter, r *http.Request) {
	if s.uploadDir == "" {
		s.fail(w, r, fmt.Errorf("%w: uploads are disabled", errBadRequest))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: missing file field: %v", errBadRequest, err))
			return
		}
		defer f.Close()
		body = f
	}

	path, err := settings.SaveUpload(s.uploadDir, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.settings.ImportPDF(r.Context(), path)
	if err != nil {
		s.log.Warn("tariff import failed", zap.String("path", path), zap.Error(err))
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
