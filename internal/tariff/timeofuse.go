package tariff

import "fmt"

func init() {
	RegisterCalculator(CalculatorConfig{
		Regime: RegimeMediumVoltageTimeOfUse,
		Calculate: func(in BillCalculationInput, s Settings) (Result, error) {
			if in.TimeOfUse == nil {
				return Result{}, fmt.Errorf("%w: %s", ErrMissingInput, in.Regime)
			}
			return CalculateTimeOfUse(*in.TimeOfUse, s.MoyenTensionHoraire), nil
		},
	})
}

// Channel is one of the four time-of-use counters of a medium-voltage meter.
type Channel string

const (
	ChannelDay     Channel = "jour"
	ChannelPeak    Channel = "pointe"
	ChannelEvening Channel = "soir"
	ChannelNight   Channel = "nuit"
)

// Channels lists the time-of-use channels in bill order.
var Channels = []Channel{ChannelDay, ChannelPeak, ChannelEvening, ChannelNight}

// ChannelReading is one channel's counter with optional per-bill coefficient
// and unit price.
type ChannelReading struct {
	Reading     MeterReading `json:"reading"`
	Coefficient *float64     `json:"coefficient,omitempty"`
	UnitPrice   *float64     `json:"unit_price,omitempty"`
}

// TimeOfUseInput is a "Moyen Tension Tranche Horaire" bill. All fee and tax
// fields are flat amounts copied from the paper bill.
type TimeOfUseInput struct {
	Day     ChannelReading `json:"jour"`
	Peak    ChannelReading `json:"pointe"`
	Evening ChannelReading `json:"soir"`
	Night   ChannelReading `json:"nuit"`

	// Group 1.
	PowerPremium float64 `json:"power_premium"`
	Overage      float64 `json:"overage"`
	Rental       float64 `json:"rental"`
	Intervention float64 `json:"intervention"`
	Reminder     float64 `json:"reminder"`
	LatePayment  float64 `json:"late_payment"`

	// Group 2.
	ConsumptionVAT     float64 `json:"consumption_vat"`
	FeeVAT             float64 `json:"fee_vat"`
	RTTContribution    float64 `json:"rtt_contribution"`
	MunicipalSurcharge float64 `json:"municipal_surcharge"`

	CosPhi float64 `json:"cos_phi"`
	K      float64 `json:"k"`
	// AdvanceOnConsumption is a signed manual adjustment entered on the bill.
	AdvanceOnConsumption float64 `json:"advance_on_consumption"`
}

// Channel returns the reading of c.
func (in TimeOfUseInput) Channel(c Channel) ChannelReading {
	switch c {
	case ChannelDay:
		return in.Day
	case ChannelPeak:
		return in.Peak
	case ChannelEvening:
		return in.Evening
	case ChannelNight:
		return in.Night
	}
	return ChannelReading{}
}

// Group1Total sums the flat fees billed before the power-factor adjustment.
func (in TimeOfUseInput) Group1Total() float64 {
	return in.PowerPremium + in.Overage + in.Rental + in.Intervention + in.Reminder + in.LatePayment
}

// Group2Total sums the flat taxes billed after the power-factor adjustment.
func (in TimeOfUseInput) Group2Total() float64 {
	return in.ConsumptionVAT + in.FeeVAT + in.RTTContribution + in.MunicipalSurcharge
}

// CalculateTimeOfUse prices a time-of-use bill. The reported consumption is
// the coefficient-weighted sum over channels, not the raw meter kWh.
func CalculateTimeOfUse(in TimeOfUseInput, s MoyenTensionHoraireSettings) Result {
	lines := make([]Line, 0, len(Channels)+4)
	consumption := 0.0
	energy := 0.0
	rollover := false

	for _, c := range Channels {
		cr := in.Channel(c)
		cs := s.Channel(c)
		coef := valueOr(cr.Coefficient, cs.Coefficient)
		price := valueOr(cr.UnitPrice, cs.UnitPrice)

		weighted := float64(cr.Reading.Consumption()) * coef
		amount := weighted * price
		consumption += weighted
		energy += amount
		rollover = rollover || cr.Reading.RolledOver()

		lines = append(lines, Line{
			Code:      "energy_" + string(c),
			Quantity:  weighted,
			UnitPrice: price,
			Amount:    amount,
		})
	}

	group1 := in.Group1Total()
	adjustment := PowerFactorAdjustment(energy, in.CosPhi, in.K)
	group2 := in.Group2Total()

	lines = append(lines,
		Line{Code: "fees_group_1", Amount: group1},
		Line{Code: "power_factor_adjustment", Quantity: energy, UnitPrice: in.K, Amount: adjustment},
		Line{Code: "taxes_group_2", Amount: group2},
		Line{Code: "advance_on_consumption", Amount: in.AdvanceOnConsumption},
	)

	return Result{
		ConsumptionKWh: consumption,
		AmountDue:      energy + group1 + adjustment + group2 + in.AdvanceOnConsumption,
		Lines:          lines,
		Rollover:       rollover,
	}
}
