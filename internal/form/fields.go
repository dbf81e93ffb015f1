package form

import (
	"strconv"

	"github.com/ttsites/facturemanager/internal/tariff"
)

// Field names shared by every regime.
const (
	FieldPreviousIndex = "previous_index"
	FieldCurrentIndex  = "current_index"
	FieldConsumption   = "consumption_kwh"
	FieldAmountDue     = "amount_due"

	FieldCosPhi = "cos_phi"
	FieldK      = "k"

	FieldPowerPremium       = "power_premium"
	FieldRental             = "rental"
	FieldIntervention       = "intervention"
	FieldReminder           = "reminder"
	FieldLatePayment        = "late_payment"
	FieldRTTContribution    = "rtt_contribution"
	FieldMunicipalSurcharge = "municipal_surcharge"
)

// Low voltage.
const (
	FieldMonthsCovered             = "months_covered"
	FieldFixedFee                  = "fixed_fee"
	FieldVATPercent                = "vat_percent"
	FieldMunicipalSurchargePerKWh  = "municipal_surcharge_per_kwh"
	FieldEnergyTransitionFeePerKWh = "energy_transition_fee_per_kwh"
)

// Time of use.
const (
	FieldOverage              = "overage"
	FieldConsumptionVAT       = "consumption_vat"
	FieldFeeVAT               = "fee_vat"
	FieldAdvanceOnConsumption = "advance_on_consumption"
)

// Flat rate.
const (
	FieldMultiplierCoefficient = "multiplier_coefficient"
	FieldNoLoadLoss            = "no_load_loss"
	FieldUnitPrice             = "unit_price"
	FieldLoadLoss              = "load_loss"
	FieldConsumptionVATPercent = "consumption_vat_percent"
	FieldFeeVATPercent         = "fee_vat_percent"
	FieldConsumptionAdvance    = "consumption_advance"
)

// TierPriceField names the low-voltage unit price override of tier n (1..4).
func TierPriceField(n int) string {
	return "tier_" + strconv.Itoa(n) + "_unit_price"
}

// ChannelField names a per-channel time-of-use field, e.g. "jour_current_index".
func ChannelField(c tariff.Channel, field string) string {
	return string(c) + "_" + field
}

// readOnly fields are always recomputed and never accept edits.
var readOnly = map[string]bool{FieldLoadLoss: true}

// PreviousIndexFields lists the fields a meter's prior readings prefill for a
// regime.
func PreviousIndexFields(r tariff.Regime) []string {
	if r == tariff.RegimeMediumVoltageTimeOfUse {
		out := make([]string, 0, len(tariff.Channels))
		for _, c := range tariff.Channels {
			out = append(out, ChannelField(c, FieldPreviousIndex))
		}
		return out
	}
	return []string{FieldPreviousIndex}
}

// NextPreviousIndexes maps each previous-index field of the following bill to
// the current index recorded on in.
func NextPreviousIndexes(in tariff.BillCalculationInput) map[string]int64 {
	out := map[string]int64{}
	switch in.Regime {
	case tariff.RegimeLowVoltage:
		if in.LowVoltage != nil {
			out[FieldPreviousIndex] = in.LowVoltage.Reading.CurrentIndex
		}
	case tariff.RegimeMediumVoltageTimeOfUse:
		if in.TimeOfUse != nil {
			for _, c := range tariff.Channels {
				out[ChannelField(c, FieldPreviousIndex)] = in.TimeOfUse.Channel(c).Reading.CurrentIndex
			}
		}
	case tariff.RegimeMediumVoltageFlatRate:
		if in.FlatRate != nil {
			out[FieldPreviousIndex] = in.FlatRate.Reading.CurrentIndex
		}
	}
	return out
}
