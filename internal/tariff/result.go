package tariff

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownRegime   = errors.New("unknown tariff regime")
	ErrMissingInput    = errors.New("missing regime input")
	ErrInvalidMonths   = errors.New("months covered must be at least 1")
	ErrInvalidIndex    = errors.New("meter index must not be negative")
	ErrInvalidSettings = errors.New("invalid tariff settings")
)

// Result is the outcome of pricing one bill. ConsumptionKWh and AmountDue are
// the two headline figures persisted on the bill; Lines break the amount down
// in the order it was built.
type Result struct {
	ConsumptionKWh float64 `json:"consumption_kwh"`
	AmountDue      float64 `json:"amount_due"`
	Lines          []Line  `json:"lines,omitempty"`
	// Rollover is set when at least one counter wrapped during the period.
	Rollover bool `json:"rollover"`
}

// Line is one component of the amount due.
type Line struct {
	Code      string  `json:"code"`
	Quantity  float64 `json:"quantity,omitempty"`
	UnitPrice float64 `json:"unit_price,omitempty"`
	Amount    float64 `json:"amount"`
}

// Line returns the first line with the given code.
func (r Result) Line(code string) (Line, bool) {
	for _, l := range r.Lines {
		if l.Code == code {
			return l, true
		}
	}
	return Line{}, false
}

// RoundMillimes rounds an amount to the dinar's three minor-unit digits for
// display. The calculators never call it.
func RoundMillimes(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(3).InexactFloat64()
}

// FormatMillimes renders an amount with exactly three decimals.
func FormatMillimes(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(3)
}
