package tariff

import (
	"errors"
	"fmt"
)

// Settings holds the regime-wide pricing defaults. The engine only reads
// them; they change through the settings provider.
type Settings struct {
	BasseTension            BasseTensionSettings            `json:"basse_tension" yaml:"basse_tension"`
	MoyenTensionHoraire     MoyenTensionHoraireSettings     `json:"moyen_tension_horaire" yaml:"moyen_tension_horaire"`
	MoyenTensionForfaitaire MoyenTensionForfaitaireSettings `json:"moyen_tension_forfaitaire" yaml:"moyen_tension_forfaitaire"`
}

// BasseTensionSettings prices the low-voltage progressive tiers.
type BasseTensionSettings struct {
	// TierUnitPrices are the per-kWh prices of the four tiers, lowest first.
	TierUnitPrices [4]float64 `json:"tier_unit_prices" yaml:"tier_unit_prices"`
	// TierBounds are the monthly kWh upper bounds of tiers 1 to 3. Tier 4 is
	// open ended.
	TierBounds                [3]float64 `json:"tier_bounds" yaml:"tier_bounds"`
	FixedFee                  float64    `json:"fixed_fee" yaml:"fixed_fee"`
	VATPercent                float64    `json:"vat_percent" yaml:"vat_percent"`
	MunicipalSurchargePerKWh  float64    `json:"municipal_surcharge_per_kwh" yaml:"municipal_surcharge_per_kwh"`
	EnergyTransitionFeePerKWh float64    `json:"energy_transition_fee_per_kwh" yaml:"energy_transition_fee_per_kwh"`
}

// ChannelSettings weights and prices one time-of-use channel.
type ChannelSettings struct {
	Coefficient float64 `json:"coefficient" yaml:"coefficient"`
	UnitPrice   float64 `json:"unit_price" yaml:"unit_price"`
}

type MoyenTensionHoraireSettings struct {
	Day     ChannelSettings `json:"jour" yaml:"jour"`
	Peak    ChannelSettings `json:"pointe" yaml:"pointe"`
	Evening ChannelSettings `json:"soir" yaml:"soir"`
	Night   ChannelSettings `json:"nuit" yaml:"nuit"`
}

// Channel returns the settings of c. Unknown channels get the zero value.
func (s MoyenTensionHoraireSettings) Channel(c Channel) ChannelSettings {
	switch c {
	case ChannelDay:
		return s.Day
	case ChannelPeak:
		return s.Peak
	case ChannelEvening:
		return s.Evening
	case ChannelNight:
		return s.Night
	}
	return ChannelSettings{}
}

type MoyenTensionForfaitaireSettings struct {
	MultiplierCoefficient float64 `json:"multiplier_coefficient" yaml:"multiplier_coefficient"`
	NoLoadLoss            float64 `json:"no_load_loss" yaml:"no_load_loss"`
	UnitPrice             float64 `json:"unit_price" yaml:"unit_price"`
	ConsumptionVATPercent float64 `json:"consumption_vat_percent" yaml:"consumption_vat_percent"`
	FeeVATPercent         float64 `json:"fee_vat_percent" yaml:"fee_vat_percent"`
}

// PowerTier carries the subscribed power parameters of a medium-voltage
// meter. They are shown on the bill but do not enter the amount formula.
type PowerTier struct {
	MeterID string  `json:"meter_id" yaml:"meter_id"`
	PPH     float64 `json:"pph" yaml:"pph"`
	PPE     float64 `json:"ppe" yaml:"ppe"`
	PJ      float64 `json:"pj" yaml:"pj"`
	PS      float64 `json:"ps" yaml:"ps"`
	PI      float64 `json:"pi" yaml:"pi"`
}

// DefaultSettings returns the built-in tariff schedule used when no settings
// have been stored or loaded from file. The evening channel has no agreed
// default and is left unpriced; deployments supply it through settings.
func DefaultSettings() Settings {
	return Settings{
		BasseTension: BasseTensionSettings{
			TierUnitPrices:            [4]float64{0.195, 0.239, 0.330, 0.408},
			TierBounds:                [3]float64{200, 300, 500},
			FixedFee:                  28.0,
			VATPercent:                19,
			MunicipalSurchargePerKWh:  0.005,
			EnergyTransitionFeePerKWh: 0.005,
		},
		MoyenTensionHoraire: MoyenTensionHoraireSettings{
			Day:     ChannelSettings{Coefficient: 1, UnitPrice: 0.222},
			Peak:    ChannelSettings{Coefficient: 1, UnitPrice: 0.305},
			Evening: ChannelSettings{Coefficient: 1, UnitPrice: 0},
			Night:   ChannelSettings{Coefficient: 1, UnitPrice: 0.160},
		},
		MoyenTensionForfaitaire: MoyenTensionForfaitaireSettings{
			MultiplierCoefficient: 1,
			NoLoadLoss:            0,
			UnitPrice:             0.245,
			ConsumptionVATPercent: 19,
			FeeVATPercent:         19,
		},
	}
}

// Validate checks the settings for values no tariff schedule can carry.
func (s Settings) Validate() error {
	var errs []error
	bt := s.BasseTension
	for i, p := range bt.TierUnitPrices {
		if p < 0 {
			errs = append(errs, fmt.Errorf("basse_tension.tier_unit_prices[%d] is negative", i))
		}
	}
	prev := 0.0
	for i, b := range bt.TierBounds {
		if b <= prev {
			errs = append(errs, fmt.Errorf("basse_tension.tier_bounds[%d] must be greater than %v", i, prev))
		}
		prev = b
	}
	errs = append(errs,
		checkNonNegative("basse_tension.fixed_fee", bt.FixedFee),
		checkPercent("basse_tension.vat_percent", bt.VATPercent),
		checkNonNegative("basse_tension.municipal_surcharge_per_kwh", bt.MunicipalSurchargePerKWh),
		checkNonNegative("basse_tension.energy_transition_fee_per_kwh", bt.EnergyTransitionFeePerKWh),
	)
	for _, c := range Channels {
		cs := s.MoyenTensionHoraire.Channel(c)
		errs = append(errs,
			checkNonNegative("moyen_tension_horaire."+string(c)+".coefficient", cs.Coefficient),
			checkNonNegative("moyen_tension_horaire."+string(c)+".unit_price", cs.UnitPrice),
		)
	}
	f := s.MoyenTensionForfaitaire
	errs = append(errs,
		checkNonNegative("moyen_tension_forfaitaire.multiplier_coefficient", f.MultiplierCoefficient),
		checkNonNegative("moyen_tension_forfaitaire.no_load_loss", f.NoLoadLoss),
		checkNonNegative("moyen_tension_forfaitaire.unit_price", f.UnitPrice),
		checkPercent("moyen_tension_forfaitaire.consumption_vat_percent", f.ConsumptionVATPercent),
		checkPercent("moyen_tension_forfaitaire.fee_vat_percent", f.FeeVATPercent),
	)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

func checkNonNegative(field string, v float64) error {
	if v < 0 {
		return fmt.Errorf("%s is negative", field)
	}
	return nil
}

func checkPercent(field string, v float64) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("%s must be within 0..100", field)
	}
	return nil
}
