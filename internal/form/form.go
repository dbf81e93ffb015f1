package form

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ttsites/facturemanager/internal/tariff"
)

var ErrReadOnlyField = errors.New("field is computed and cannot be edited")

// Form is the editable state of one bill: raw field strings as typed, and the
// set of fields the user has edited by hand.
type Form struct {
	Regime  tariff.Regime     `json:"regime"`
	Values  map[string]string `json:"values"`
	Touched []string          `json:"touched,omitempty"`

	touched map[string]bool
}

// Outcome is the result of a recompute. ConsumptionKWh and AmountDue are the
// effective figures: the computed ones unless the user overrode them.
type Outcome struct {
	Input                 tariff.BillCalculationInput `json:"input"`
	Result                tariff.Result               `json:"result"`
	ConsumptionKWh        float64                     `json:"consumption_kwh"`
	AmountDue             float64                     `json:"amount_due"`
	ConsumptionOverridden bool                        `json:"consumption_overridden"`
	AmountOverridden      bool                        `json:"amount_overridden"`
	Values                map[string]string           `json:"values"`
}

func New(r tariff.Regime) *Form {
	return &Form{Regime: r, Values: map[string]string{}}
}

func (f *Form) init() {
	if f.Values == nil {
		f.Values = map[string]string{}
	}
	if f.touched == nil {
		f.touched = make(map[string]bool, len(f.Touched))
		for _, name := range f.Touched {
			if !readOnly[name] {
				f.touched[name] = true
			}
		}
	}
}

// Set records a user edit.
func (f *Form) Set(field, raw string) error {
	if readOnly[field] {
		return fmt.Errorf("%s: %w", field, ErrReadOnlyField)
	}
	f.init()
	f.Values[field] = raw
	if !f.touched[field] {
		f.touched[field] = true
		f.Touched = append(f.Touched, field)
	}
	return nil
}

// IsTouched reports whether the user edited field.
func (f *Form) IsTouched(field string) bool {
	f.init()
	return f.touched[field]
}

// Prefill fills previous-index fields from a meter's prior readings. Fields
// that already hold a value or were edited are left alone. It returns the
// fields it filled.
func (f *Form) Prefill(previous map[string]int64) []string {
	f.init()
	var filled []string
	for _, name := range PreviousIndexFields(f.Regime) {
		v, ok := previous[name]
		if !ok || f.touched[name] || strings.TrimSpace(f.Values[name]) != "" {
			continue
		}
		f.Values[name] = strconv.FormatInt(v, 10)
		filled = append(filled, name)
	}
	return filled
}

func (f *Form) value(field string) string {
	return f.Values[field]
}

func (f *Form) reading(prefix string) tariff.MeterReading {
	return tariff.MeterReading{
		PreviousIndex: CoerceIndex(f.value(prefix + FieldPreviousIndex)),
		CurrentIndex:  CoerceIndex(f.value(prefix + FieldCurrentIndex)),
	}
}

// Input builds the engine input from the raw values.
func (f *Form) Input() (tariff.BillCalculationInput, error) {
	f.init()
	in := tariff.BillCalculationInput{Regime: f.Regime}
	switch f.Regime {
	case tariff.RegimeLowVoltage:
		lv := &tariff.LowVoltageInput{
			Reading:       f.reading(""),
			MonthsCovered: CoerceMonths(f.value(FieldMonthsCovered)),
		}
		for i := range lv.Overrides.TierUnitPrices {
			lv.Overrides.TierUnitPrices[i] = coerceOptional(f.value(TierPriceField(i + 1)))
		}
		lv.Overrides.FixedFee = coerceOptional(f.value(FieldFixedFee))
		lv.Overrides.VATPercent = coerceOptional(f.value(FieldVATPercent))
		lv.Overrides.MunicipalSurchargePerKWh = coerceOptional(f.value(FieldMunicipalSurchargePerKWh))
		lv.Overrides.EnergyTransitionFeePerKWh = coerceOptional(f.value(FieldEnergyTransitionFeePerKWh))
		in.LowVoltage = lv

	case tariff.RegimeMediumVoltageTimeOfUse:
		tou := &tariff.TimeOfUseInput{
			PowerPremium:         Coerce(f.value(FieldPowerPremium)),
			Overage:              Coerce(f.value(FieldOverage)),
			Rental:               Coerce(f.value(FieldRental)),
			Intervention:         Coerce(f.value(FieldIntervention)),
			Reminder:             Coerce(f.value(FieldReminder)),
			LatePayment:          Coerce(f.value(FieldLatePayment)),
			ConsumptionVAT:       Coerce(f.value(FieldConsumptionVAT)),
			FeeVAT:               Coerce(f.value(FieldFeeVAT)),
			RTTContribution:      Coerce(f.value(FieldRTTContribution)),
			MunicipalSurcharge:   Coerce(f.value(FieldMunicipalSurcharge)),
			CosPhi:               Coerce(f.value(FieldCosPhi)),
			K:                    Coerce(f.value(FieldK)),
			AdvanceOnConsumption: Coerce(f.value(FieldAdvanceOnConsumption)),
		}
		channels := map[tariff.Channel]*tariff.ChannelReading{
			tariff.ChannelDay:     &tou.Day,
			tariff.ChannelPeak:    &tou.Peak,
			tariff.ChannelEvening: &tou.Evening,
			tariff.ChannelNight:   &tou.Night,
		}
		for c, cr := range channels {
			cr.Reading = f.reading(string(c) + "_")
			cr.Coefficient = coerceOptional(f.value(ChannelField(c, "coefficient")))
			cr.UnitPrice = coerceOptional(f.value(ChannelField(c, FieldUnitPrice)))
		}
		in.TimeOfUse = tou

	case tariff.RegimeMediumVoltageFlatRate:
		in.FlatRate = &tariff.FlatRateInput{
			Reading:               f.reading(""),
			MultiplierCoefficient: coerceOptional(f.value(FieldMultiplierCoefficient)),
			NoLoadLoss:            coerceOptional(f.value(FieldNoLoadLoss)),
			UnitPrice:             coerceOptional(f.value(FieldUnitPrice)),
			PowerPremium:          Coerce(f.value(FieldPowerPremium)),
			Rental:                Coerce(f.value(FieldRental)),
			Intervention:          Coerce(f.value(FieldIntervention)),
			Reminder:              Coerce(f.value(FieldReminder)),
			LatePayment:           Coerce(f.value(FieldLatePayment)),
			ConsumptionVATPercent: coerceOptional(f.value(FieldConsumptionVATPercent)),
			FeeVATPercent:         coerceOptional(f.value(FieldFeeVATPercent)),
			RTTContribution:       Coerce(f.value(FieldRTTContribution)),
			MunicipalSurcharge:    Coerce(f.value(FieldMunicipalSurcharge)),
			CosPhi:                Coerce(f.value(FieldCosPhi)),
			K:                     Coerce(f.value(FieldK)),
			ConsumptionAdvance:    Coerce(f.value(FieldConsumptionAdvance)),
		}

	default:
		return in, fmt.Errorf("%w: %q", tariff.ErrUnknownRegime, f.Regime)
	}
	return in, nil
}

// Recompute rebuilds the input, runs the engine and writes the derived fields
// back into Values. Consumption and amount keep the user's value when
// touched; the flat-rate load loss is always rewritten.
func (f *Form) Recompute(s tariff.Settings) (Outcome, error) {
	in, err := f.Input()
	if err != nil {
		return Outcome{}, err
	}
	res, err := tariff.Calculate(in, s)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Input:          in,
		Result:         res,
		ConsumptionKWh: res.ConsumptionKWh,
		AmountDue:      res.AmountDue,
	}

	if in.LowVoltage != nil {
		f.Values[FieldMonthsCovered] = strconv.Itoa(in.LowVoltage.MonthsCovered)
	}
	if in.FlatRate != nil {
		f.Values[FieldLoadLoss] = formatNumber(tariff.LoadLoss(in.FlatRate.Reading.Consumption()))
	}

	if f.touched[FieldConsumption] {
		out.ConsumptionKWh = Coerce(f.value(FieldConsumption))
		out.ConsumptionOverridden = true
	} else {
		f.Values[FieldConsumption] = formatNumber(res.ConsumptionKWh)
	}
	if f.touched[FieldAmountDue] {
		out.AmountDue = Coerce(f.value(FieldAmountDue))
		out.AmountOverridden = true
	} else {
		f.Values[FieldAmountDue] = formatNumber(res.AmountDue)
	}

	out.Values = make(map[string]string, len(f.Values))
	for k, v := range f.Values {
		out.Values[k] = v
	}
	return out, nil
}
