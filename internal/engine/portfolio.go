package engine

// EqualWeightTargets converts a complete cross-symbol signal snapshot into
// target position weights. Every symbol with signal 1 receives
// min(1/active, maxPositionFraction); inactive symbols receive 0.
//
// The snapshot must cover all traded symbols at the current timestamp.
// Sizing from a partial snapshot would make weights depend on symbol
// iteration order.
func EqualWeightTargets(signals map[string]int, maxPositionFraction float64) map[string]float64 {
	active := 0
	for _, v := range signals {
		if v == 1 {
			active++
		}
	}

	targets := make(map[string]float64, len(signals))
	if active == 0 {
		for sym := range signals {
			targets[sym] = 0
		}
		return targets
	}

	weight := 1 / float64(active)
	if maxPositionFraction < weight {
		weight = maxPositionFraction
	}
	for sym, v := range signals {
		if v == 1 {
			targets[sym] = weight
		} else {
			targets[sym] = 0
		}
	}
	return targets
}
