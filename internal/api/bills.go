package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ttsites/facturemanager/internal/form"
	"github.com/ttsites/facturemanager/internal/metrics"
	"github.com/ttsites/facturemanager/internal/storage"
	"github.com/ttsites/facturemanager/internal/tariff"
)

// billRequest carries either an engine input or a form. A form keeps the
// user's hand-entered consumption and amount; an input is priced as is.
type billRequest struct {
	ID      string                       `json:"id,omitempty"`
	MeterID string                       `json:"meter_id"`
	Period  string                       `json:"period,omitempty"`
	Input   *tariff.BillCalculationInput `json:"input,omitempty"`
	Form    *form.Form                   `json:"form,omitempty"`
}

type billResponse struct {
	storage.Bill
	AmountDueDisplay string `json:"amount_due_display"`
}

func newBillResponse(b storage.Bill) billResponse {
	return billResponse{Bill: b, AmountDueDisplay: tariff.FormatMillimes(b.AmountDue)}
}

func (s *server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.MeterID = strings.TrimSpace(req.MeterID)
	if req.MeterID == "" {
		s.fail(w, r, fmt.Errorf("%w: meter_id is required", errBadRequest))
		return
	}
	if (req.Input == nil) == (req.Form == nil) {
		s.fail(w, r, fmt.Errorf("%w: exactly one of input or form is required", errBadRequest))
		return
	}

	bill, in, err := s.priceBill(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.SaveBill(r.Context(), bill); err != nil {
		s.fail(w, r, fmt.Errorf("save bill: %w", err))
		return
	}

	if err := s.advanceMeter(r.Context(), req.MeterID, in); err != nil {
		// the bill is stored; a stale prefill is not worth failing the request
		s.log.Warn("update meter previous indexes failed", zap.String("meter_id", req.MeterID), zap.Error(err))
	}

	s.log.Info("bill saved",
		zap.String("bill_id", bill.ID),
		zap.String("meter_id", bill.MeterID),
		zap.String("regime", bill.Regime),
		zap.Float64("amount_due", bill.AmountDue),
		zap.Bool("amount_overridden", bill.AmountOverridden))
	writeJSON(w, http.StatusCreated, newBillResponse(bill))
}

func (s *server) priceBill(ctx context.Context, req billRequest) (storage.Bill, tariff.BillCalculationInput, error) {
	now := time.Now().UTC()
	b := storage.Bill{
		ID:        req.ID,
		MeterID:   req.MeterID,
		Period:    req.Period,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	var in tariff.BillCalculationInput
	if req.Input != nil {
		res, err := s.calculate(ctx, *req.Input)
		if err != nil {
			return storage.Bill{}, tariff.BillCalculationInput{}, err
		}
		in = *req.Input
		b.ConsumptionKWh = res.ConsumptionKWh
		b.AmountDue = res.AmountDue
		b.Rollover = res.Rollover
	} else {
		f := req.Form
		if !f.Regime.Valid() {
			return storage.Bill{}, tariff.BillCalculationInput{}, fmt.Errorf("%w: %q", tariff.ErrUnknownRegime, f.Regime)
		}
		previous, err := s.previousIndexes(ctx, req.MeterID)
		if err != nil {
			return storage.Bill{}, tariff.BillCalculationInput{}, err
		}
		f.Prefill(previous)
		st, err := s.settings.Get(ctx)
		if err != nil {
			return storage.Bill{}, tariff.BillCalculationInput{}, fmt.Errorf("load settings: %w", err)
		}
		out, err := f.Recompute(st)
		metrics.ObserveCalculation(string(f.Regime), out.Result.AmountDue, out.Result.Rollover, err)
		if err != nil {
			return storage.Bill{}, tariff.BillCalculationInput{}, err
		}
		in = out.Input
		b.ConsumptionKWh = out.ConsumptionKWh
		b.AmountDue = out.AmountDue
		b.ConsumptionOverridden = out.ConsumptionOverridden
		b.AmountOverridden = out.AmountOverridden
		b.Rollover = out.Result.Rollover
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return storage.Bill{}, tariff.BillCalculationInput{}, fmt.Errorf("encode bill input: %w", err)
	}
	b.Input = raw
	b.Regime = string(in.Regime)
	return b, in, nil
}

// advanceMeter records the bill's current indexes as the meter's next
// previous indexes, creating the meter when it is not in the directory yet.
func (s *server) advanceMeter(ctx context.Context, meterID string, in tariff.BillCalculationInput) error {
	m, err := s.store.GetMeter(ctx, meterID)
	if err != nil {
		return err
	}
	if m == nil {
		m = &storage.Meter{ID: meterID}
	}
	previous := map[string]int64{}
	if len(m.PreviousIndexes) > 0 {
		_ = json.Unmarshal(m.PreviousIndexes, &previous)
	}
	for k, v := range form.NextPreviousIndexes(in) {
		previous[k] = v
	}
	raw, err := json.Marshal(previous)
	if err != nil {
		return err
	}
	m.PreviousIndexes = raw
	if m.Regime == "" {
		m.Regime = string(in.Regime)
	}
	m.UpdatedAt = time.Now().UTC()
	return s.store.UpsertMeter(ctx, *m)
}

func (s *server) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.store.ListBills(r.Context(), r.URL.Query().Get("meter"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]billResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, newBillResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, err := s.store.GetBill(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if b == nil {
		s.fail(w, r, fmt.Errorf("bill %s: %w", id, errNotFound))
		return
	}
	writeJSON(w, http.StatusOK, newBillResponse(*b))
}
