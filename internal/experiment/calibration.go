package experiment

// CalibrationModel maps raw sensor readings to a physical reference
// quantity via a fitted linear relation.
type CalibrationModel struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// IdentityModel is the default mapping used when no persisted calibration
// exists: readings pass through unchanged.
func IdentityModel() CalibrationModel {
	return CalibrationModel{Slope: 1, Intercept: 0}
}

// Apply converts a raw reading into calibrated units.
func (m CalibrationModel) Apply(raw float64) float64 {
	return m.Slope*raw + m.Intercept
}

// calibrationPoint is one (raw reading, known reference) pair collected
// during CALIBRATING.
type calibrationPoint struct {
	raw       float64
	reference float64
}

// fitLinear computes the least-squares line through the collected points,
// mapping raw readings to reference values.
func fitLinear(points []calibrationPoint) (CalibrationModel, error) {
	if len(points) < 2 {
		return CalibrationModel{}, ErrNotEnoughPoints
	}

	var sumX, sumY, sumXX, sumXY float64
	for _, p := range points {
		sumX += p.raw
		sumY += p.reference
		sumXX += p.raw * p.raw
		sumXY += p.raw * p.reference
	}

	n := float64(len(points))
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		// All raw readings identical; no line is determined.
		return CalibrationModel{}, ErrNotEnoughPoints
	}

	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	return CalibrationModel{Slope: slope, Intercept: intercept}, nil
}
