package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ttsites/facturemanager/internal/storage"
	"github.com/ttsites/facturemanager/internal/tariff"
)

// meterRequest updates a meter. Omitted fields keep their stored value; an
// explicit empty previous_indexes object clears the prior readings.
type meterRequest struct {
	Building        *string          `json:"building"`
	Label           *string          `json:"label"`
	Regime          string           `json:"regime"`
	PreviousIndexes map[string]int64 `json:"previous_indexes"`
}

func (s *server) handleListMeters(w http.ResponseWriter, r *http.Request) {
	meters, err := s.store.ListMeters(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if meters == nil {
		meters = []storage.Meter{}
	}
	writeJSON(w, http.StatusOK, meters)
}

func (s *server) handleGetMeter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, err := s.store.GetMeter(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if m == nil {
		s.fail(w, r, fmt.Errorf("meter %s: %w", id, errNotFound))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *server) handlePutMeter(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	var req meterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	existing, err := s.store.GetMeter(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m := storage.Meter{ID: id}
	if existing != nil {
		m = *existing
	}
	m.UpdatedAt = time.Now().UTC()

	if req.Building != nil {
		m.Building = *req.Building
	}
	if req.Label != nil {
		m.Label = *req.Label
	}
	if req.Regime != "" {
		regime, err := tariff.ParseRegime(req.Regime)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		m.Regime = string(regime)
	}
	switch {
	case req.PreviousIndexes == nil:
	case len(req.PreviousIndexes) == 0:
		m.PreviousIndexes = nil
	default:
		raw, err := json.Marshal(req.PreviousIndexes)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		m.PreviousIndexes = raw
	}
	if err := s.store.UpsertMeter(r.Context(), m); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *server) handleGetPowerTier(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pt, err := s.settings.PowerTier(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if pt == nil {
		s.fail(w, r, fmt.Errorf("power tier for meter %s: %w", id, errNotFound))
		return
	}
	writeJSON(w, http.StatusOK, pt)
}

func (s *server) handlePutPowerTier(w http.ResponseWriter, r *http.Request) {
	var pt tariff.PowerTier
	if err := decodeJSON(w, r, &pt); err != nil {
		s.fail(w, r, err)
		return
	}
	pt.MeterID = r.PathValue("id")
	if err := s.settings.SetPowerTier(r.Context(), pt); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pt)
}
