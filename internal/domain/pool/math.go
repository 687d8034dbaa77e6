package pool

// Fat and SNF percentages cannot be averaged across volumes; everything is
// converted to units (liters × percent), summed, and the ratio re-derived.

// UnitsOf converts a volume at a given percent into fat/SNF units.
func UnitsOf(liters, percent float64) float64 {
	return liters * percent
}

// WeightedAverage derives a percent back from units. A drained pool (zero
// liters) reports 0, never NaN.
func WeightedAverage(units, liters float64) float64 {
	if liters <= 0 {
		return 0
	}
	return units / liters
}

// MaxFeasiblePercent is the ceiling for a withdrawal's manual percent: a draw
// of useLiters cannot carry more units per liter than remain on average.
func MaxFeasiblePercent(remainingUnits, useLiters float64) float64 {
	if useLiters <= 0 {
		return 0
	}
	return remainingUnits / useLiters
}

// clampUnits floors a remainder at zero. A draw at the exact feasible ceiling
// recomputes useLiters*(remainingUnits/useLiters), which can round one ulp
// above the stored remainder and leave a negative residue after subtraction.
func clampUnits(units float64) float64 {
	if units < 0 {
		return 0
	}
	return units
}
