package tariff

import (
	"fmt"
	"strings"
)

// Regime identifies one of the mutually exclusive tariff regimes a bill is
// priced under.
type Regime string

const (
	RegimeLowVoltage             Regime = "basse_tension"
	RegimeMediumVoltageTimeOfUse Regime = "mt_horaire"
	RegimeMediumVoltageFlatRate  Regime = "mt_forfaitaire"
)

var regimeLabels = map[Regime]string{
	RegimeLowVoltage:             "Basse Tension",
	RegimeMediumVoltageTimeOfUse: "Moyen Tension Tranche Horaire",
	RegimeMediumVoltageFlatRate:  "Moyen Tension Forfaitaire",
}

// Label returns the name printed on the utility bill.
func (r Regime) Label() string {
	if l, ok := regimeLabels[r]; ok {
		return l
	}
	return string(r)
}

func (r Regime) Valid() bool {
	_, ok := regimeLabels[r]
	return ok
}

// ParseRegime accepts either the wire value or the printed label, case
// insensitively.
func ParseRegime(s string) (Regime, error) {
	v := strings.TrimSpace(s)
	for r, label := range regimeLabels {
		if strings.EqualFold(v, string(r)) || strings.EqualFold(v, label) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRegime, s)
}
