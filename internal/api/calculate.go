package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ttsites/facturemanager/internal/form"
	"github.com/ttsites/facturemanager/internal/metrics"
	"github.com/ttsites/facturemanager/internal/tariff"
)

type calculationResponse struct {
	tariff.Result
	AmountDueDisplay string `json:"amount_due_display"`
}

type recomputeRequest struct {
	form.Form
	// MeterID, when set, prefills empty previous-index fields from the meter.
	MeterID string `json:"meter_id,omitempty"`
}

type recomputeResponse struct {
	form.Outcome
	AmountDueDisplay string   `json:"amount_due_display"`
	Prefilled        []string `json:"prefilled,omitempty"`
}

// calculate validates in and prices it with the current settings.
func (s *server) calculate(ctx context.Context, in tariff.BillCalculationInput) (tariff.Result, error) {
	if err := in.Validate(); err != nil {
		metrics.ObserveCalculation(string(in.Regime), 0, false, err)
		return tariff.Result{}, err
	}
	st, err := s.settings.Get(ctx)
	if err != nil {
		return tariff.Result{}, fmt.Errorf("load settings: %w", err)
	}
	res, err := tariff.Calculate(in, st)
	metrics.ObserveCalculation(string(in.Regime), res.AmountDue, res.Rollover, err)
	return res, err
}

func (s *server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var in tariff.BillCalculationInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.calculate(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calculationResponse{
		Result:           res,
		AmountDueDisplay: tariff.FormatMillimes(res.AmountDue),
	})
}

func (s *server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if !req.Regime.Valid() {
		s.fail(w, r, fmt.Errorf("%w: %q", tariff.ErrUnknownRegime, req.Regime))
		return
	}

	var prefilled []string
	if req.MeterID != "" {
		previous, err := s.previousIndexes(r.Context(), req.MeterID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		prefilled = req.Prefill(previous)
	}

	st, err := s.settings.Get(r.Context())
	if err != nil {
		s.fail(w, r, fmt.Errorf("load settings: %w", err))
		return
	}
	out, err := req.Recompute(st)
	metrics.ObserveCalculation(string(req.Regime), out.Result.AmountDue, out.Result.Rollover, err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recomputeResponse{
		Outcome:          out,
		AmountDueDisplay: tariff.FormatMillimes(out.AmountDue),
		Prefilled:        prefilled,
	})
}

// previousIndexes returns the prefill values recorded on a meter. An unknown
// meter has none.
func (s *server) previousIndexes(ctx context.Context, meterID string) (map[string]int64, error) {
	m, err := s.store.GetMeter(ctx, meterID)
	if err != nil {
		return nil, fmt.Errorf("get meter %s: %w", meterID, err)
	}
	if m == nil || len(m.PreviousIndexes) == 0 {
		return nil, nil
	}
	var out map[string]int64
	if err := json.Unmarshal(m.PreviousIndexes, &out); err != nil {
		s.log.Warn("ignoring malformed previous indexes", zap.String("meter_id", meterID), zap.Error(err))
		return nil, nil
	}
	return out, nil
}
