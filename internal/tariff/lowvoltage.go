package tariff

import (
	"fmt"
	"math"
)

func init() {
	RegisterCalculator(CalculatorConfig{
		Regime: RegimeLowVoltage,
		Calculate: func(in BillCalculationInput, s Settings) (Result, error) {
			if in.LowVoltage == nil {
				return Result{}, fmt.Errorf("%w: %s", ErrMissingInput, in.Regime)
			}
			return CalculateLowVoltage(*in.LowVoltage, s.BasseTension), nil
		},
	})
}

// LowVoltageInput is a "Basse Tension" bill.
type LowVoltageInput struct {
	Reading       MeterReading        `json:"reading"`
	MonthsCovered int                 `json:"months_covered"`
	Overrides     LowVoltageOverrides `json:"overrides"`
}

// LowVoltageOverrides replace individual settings for a single bill. Nil
// fields keep the settings value.
type LowVoltageOverrides struct {
	TierUnitPrices            [4]*float64 `json:"tier_unit_prices"`
	FixedFee                  *float64    `json:"fixed_fee,omitempty"`
	VATPercent                *float64    `json:"vat_percent,omitempty"`
	MunicipalSurchargePerKWh  *float64    `json:"municipal_surcharge_per_kwh,omitempty"`
	EnergyTransitionFeePerKWh *float64    `json:"energy_transition_fee_per_kwh,omitempty"`
}

// Apply returns s with the non-nil overrides substituted.
func (o LowVoltageOverrides) Apply(s BasseTensionSettings) BasseTensionSettings {
	out := s
	for i, p := range o.TierUnitPrices {
		out.TierUnitPrices[i] = valueOr(p, s.TierUnitPrices[i])
	}
	out.FixedFee = valueOr(o.FixedFee, s.FixedFee)
	out.VATPercent = valueOr(o.VATPercent, s.VATPercent)
	out.MunicipalSurchargePerKWh = valueOr(o.MunicipalSurchargePerKWh, s.MunicipalSurchargePerKWh)
	out.EnergyTransitionFeePerKWh = valueOr(o.EnergyTransitionFeePerKWh, s.EnergyTransitionFeePerKWh)
	return out
}

// CalculateLowVoltage prices a low-voltage bill. Tiers apply to the monthly
// average so that a bill covering several months is priced as that many
// single-month bills; the per-kWh surcharges apply to the whole period.
func CalculateLowVoltage(in LowVoltageInput, s BasseTensionSettings) Result {
	p := in.Overrides.Apply(s)
	months := in.MonthsCovered
	if months < 1 {
		months = 1
	}

	total := float64(in.Reading.Consumption())
	monthly := total / float64(months)

	lines := make([]Line, 0, 8)
	tieredTotal := 0.0
	for i, qty := range SplitTiers(monthly, p.TierBounds) {
		amount := qty * p.TierUnitPrices[i] * float64(months)
		tieredTotal += amount
		lines = append(lines, Line{
			Code:      fmt.Sprintf("tier_%d", i+1),
			Quantity:  qty * float64(months),
			UnitPrice: p.TierUnitPrices[i],
			Amount:    amount,
		})
	}

	municipal := total * p.MunicipalSurchargePerKWh
	transition := total * p.EnergyTransitionFeePerKWh
	subtotal := tieredTotal + p.FixedFee + municipal + transition
	vat := subtotal * (p.VATPercent / 100)

	lines = append(lines,
		Line{Code: "fixed_fee", Amount: p.FixedFee},
		Line{Code: "municipal_surcharge", Quantity: total, UnitPrice: p.MunicipalSurchargePerKWh, Amount: municipal},
		Line{Code: "energy_transition_fee", Quantity: total, UnitPrice: p.EnergyTransitionFeePerKWh, Amount: transition},
		Line{Code: "vat", Quantity: subtotal, UnitPrice: p.VATPercent / 100, Amount: vat},
	)

	return Result{
		ConsumptionKWh: total,
		AmountDue:      subtotal + vat,
		Lines:          lines,
		Rollover:       in.Reading.RolledOver(),
	}
}

// SplitTiers distributes a monthly consumption over the four progressive
// tiers delimited by bounds. Tier 4 has no upper bound.
func SplitTiers(monthly float64, bounds [3]float64) [4]float64 {
	var out [4]float64
	remaining := monthly
	lower := 0.0
	for i := range out {
		width := math.Inf(1)
		if i < len(bounds) {
			width = bounds[i] - lower
			lower = bounds[i]
		}
		qty := math.Min(remaining, width)
		if qty <= 0 {
			break
		}
		out[i] = qty
		remaining -= qty
	}
	return out
}
