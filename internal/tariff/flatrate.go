package tariff

import (
	"fmt"
	"math"
)

func init() {
	RegisterCalculator(CalculatorConfig{
		Regime: RegimeMediumVoltageFlatRate,
		Calculate: func(in BillCalculationInput, s Settings) (Result, error) {
			if in.FlatRate == nil {
				return Result{}, fmt.Errorf("%w: %s", ErrMissingInput, in.Regime)
			}
			return CalculateFlatRate(*in.FlatRate, s.MoyenTensionForfaitaire), nil
		},
	})
}

// LoadLossRate is the technical-loss allowance billed on top of the recorded
// index difference of a flat-rate meter.
const LoadLossRate = 0.02

// LoadLoss returns the load loss derived from an index difference.
func LoadLoss(indexDifference int64) float64 {
	return math.Round(float64(indexDifference) * LoadLossRate)
}

// FlatRateInput is a "Moyen Tension Forfaitaire" bill. The load loss is not
// an input: it is always derived from the index difference.
type FlatRateInput struct {
	Reading               MeterReading `json:"reading"`
	MultiplierCoefficient *float64     `json:"multiplier_coefficient,omitempty"`
	NoLoadLoss            *float64     `json:"no_load_loss,omitempty"`
	UnitPrice             *float64     `json:"unit_price,omitempty"`

	PowerPremium float64 `json:"power_premium"`
	Rental       float64 `json:"rental"`
	Intervention float64 `json:"intervention"`
	Reminder     float64 `json:"reminder"`
	LatePayment  float64 `json:"late_payment"`

	ConsumptionVATPercent *float64 `json:"consumption_vat_percent,omitempty"`
	FeeVATPercent         *float64 `json:"fee_vat_percent,omitempty"`
	RTTContribution       float64  `json:"rtt_contribution"`
	MunicipalSurcharge    float64  `json:"municipal_surcharge"`

	CosPhi float64 `json:"cos_phi"`
	K      float64 `json:"k"`
	// ConsumptionAdvance is a signed manual adjustment entered on the bill.
	ConsumptionAdvance float64 `json:"consumption_advance"`
}

// MiscFeesTotal sums the flat fees subject to the fee VAT.
func (in FlatRateInput) MiscFeesTotal() float64 {
	return in.PowerPremium + in.Rental + in.Intervention + in.Reminder + in.LatePayment
}

// CalculateFlatRate prices a flat-rate medium-voltage bill.
func CalculateFlatRate(in FlatRateInput, s MoyenTensionForfaitaireSettings) Result {
	multiplier := valueOr(in.MultiplierCoefficient, s.MultiplierCoefficient)
	noLoadLoss := valueOr(in.NoLoadLoss, s.NoLoadLoss)
	unitPrice := valueOr(in.UnitPrice, s.UnitPrice)
	consumptionVATPct := valueOr(in.ConsumptionVATPercent, s.ConsumptionVATPercent)
	feeVATPct := valueOr(in.FeeVATPercent, s.FeeVATPercent)

	diff := in.Reading.Consumption()
	recorded := float64(diff) * multiplier
	loadLoss := LoadLoss(diff)
	billable := recorded + loadLoss + noLoadLoss

	energy := billable * unitPrice
	adjustment := PowerFactorAdjustment(energy, in.CosPhi, in.K)
	total1 := energy + adjustment

	misc := in.MiscFeesTotal()
	total2 := total1 + misc

	consumptionVAT := total1 * (consumptionVATPct / 100)
	feeVAT := misc * (feeVATPct / 100)
	total3 := total2 + consumptionVAT + feeVAT + in.RTTContribution + in.MunicipalSurcharge

	lines := []Line{
		{Code: "recorded_energy", Quantity: float64(diff), UnitPrice: multiplier, Amount: recorded},
		{Code: "load_loss", Amount: loadLoss},
		{Code: "no_load_loss", Amount: noLoadLoss},
		{Code: "energy", Quantity: billable, UnitPrice: unitPrice, Amount: energy},
		{Code: "power_factor_adjustment", Quantity: energy, UnitPrice: in.K, Amount: adjustment},
		{Code: "misc_fees", Amount: misc},
		{Code: "consumption_vat", Quantity: total1, UnitPrice: consumptionVATPct / 100, Amount: consumptionVAT},
		{Code: "fee_vat", Quantity: misc, UnitPrice: feeVATPct / 100, Amount: feeVAT},
		{Code: "rtt_contribution", Amount: in.RTTContribution},
		{Code: "municipal_surcharge", Amount: in.MunicipalSurcharge},
		{Code: "consumption_advance", Amount: in.ConsumptionAdvance},
	}

	return Result{
		ConsumptionKWh: billable,
		AmountDue:      total3 + in.ConsumptionAdvance,
		Lines:          lines,
		Rollover:       in.Reading.RolledOver(),
	}
}
