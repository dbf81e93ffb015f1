package tariff

import "fmt"

// BillCalculationInput bundles everything needed to price one bill. Only the
// section matching Regime is read.
type BillCalculationInput struct {
	Regime     Regime          `json:"regime"`
	LowVoltage *LowVoltageInput `json:"basse_tension,omitempty"`
	TimeOfUse  *TimeOfUseInput  `json:"mt_horaire,omitempty"`
	FlatRate   *FlatRateInput   `json:"mt_forfaitaire,omitempty"`
}

// Validate reports inputs that the calculators would otherwise silently
// repair. API callers use it to reject requests; the form layer repairs
// instead.
func (in BillCalculationInput) Validate() error {
	if !in.Regime.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRegime, in.Regime)
	}
	switch in.Regime {
	case RegimeLowVoltage:
		if in.LowVoltage == nil {
			return fmt.Errorf("%w: %s", ErrMissingInput, in.Regime)
		}
		if in.LowVoltage.MonthsCovered < 1 {
			return ErrInvalidMonths
		}
		return checkReading("", in.LowVoltage.Reading)
	case RegimeMediumVoltageTimeOfUse:
		if in.TimeOfUse == nil {
			return fmt.Errorf("%w: %s", ErrMissingInput, in.Regime)
		}
		for _, c := range Channels {
			if err := checkReading(string(c)+".", in.TimeOfUse.Channel(c).Reading); err != nil {
				return err
			}
		}
	case RegimeMediumVoltageFlatRate:
		if in.FlatRate == nil {
			return fmt.Errorf("%w: %s", ErrMissingInput, in.Regime)
		}
		return checkReading("", in.FlatRate.Reading)
	}
	return nil
}

func checkReading(prefix string, r MeterReading) error {
	if r.PreviousIndex < 0 {
		return fmt.Errorf("%w: %sprevious_index=%d", ErrInvalidIndex, prefix, r.PreviousIndex)
	}
	if r.CurrentIndex < 0 {
		return fmt.Errorf("%w: %scurrent_index=%d", ErrInvalidIndex, prefix, r.CurrentIndex)
	}
	return nil
}

// Calculate prices a bill with the calculator registered for its regime.
func Calculate(in BillCalculationInput, s Settings) (Result, error) {
	calc, ok := GetCalculator(in.Regime)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownRegime, in.Regime)
	}
	return calc.Calculate(in, s)
}
