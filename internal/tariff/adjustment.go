package tariff

// PowerFactorThreshold is the cos φ above which reactive-power behaviour
// earns a rebate instead of a surcharge.
const PowerFactorThreshold = 0.8

// PowerFactorAdjustment returns the bonus (negative) or penalty (positive)
// applied to an energy amount. The magnitude is always k * base.
func PowerFactorAdjustment(base, cosPhi, k float64) float64 {
	if cosPhi > PowerFactorThreshold {
		return -k * base
	}
	return k * base
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
