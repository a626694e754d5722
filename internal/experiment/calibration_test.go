package experiment

import (
	"errors"
	"math"
	"testing"
)

const fitTolerance = 1e-9

func TestIdentityModel(t *testing.T) {
	m := IdentityModel()
	if m.Apply(3.7) != 3.7 {
		t.Errorf("identity Apply(3.7) = %v, want 3.7", m.Apply(3.7))
	}
}

func TestFitLinearExact(t *testing.T) {
	// Two points determine the line exactly: ref = 5*raw + 0.
	points := []calibrationPoint{
		{raw: 1.0, reference: 5.0},
		{raw: 4.0, reference: 20.0},
	}

	model, err := fitLinear(points)
	if err != nil {
		t.Fatalf("fitLinear() error = %v", err)
	}

	for _, p := range points {
		if got := model.Apply(p.raw); math.Abs(got-p.reference) > fitTolerance {
			t.Errorf("Apply(%v) = %v, want %v", p.raw, got, p.reference)
		}
	}
}

func TestFitLinearLeastSquares(t *testing.T) {
	// Overdetermined: exact line ref = 2*raw + 1 with a symmetric pair of
	// off-line points that cancel in the fit.
	points := []calibrationPoint{
		{raw: 0, reference: 1},
		{raw: 1, reference: 3},
		{raw: 2, reference: 5.1},
		{raw: 2, reference: 4.9},
		{raw: 3, reference: 7},
	}

	model, err := fitLinear(points)
	if err != nil {
		t.Fatalf("fitLinear() error = %v", err)
	}

	if math.Abs(model.Slope-2.0) > 1e-6 {
		t.Errorf("Slope = %v, want 2.0", model.Slope)
	}
	if math.Abs(model.Intercept-1.0) > 1e-6 {
		t.Errorf("Intercept = %v, want 1.0", model.Intercept)
	}
}

func TestFitLinearDegenerate(t *testing.T) {
	if _, err := fitLinear(nil); !errors.Is(err, ErrNotEnoughPoints) {
		t.Errorf("fitLinear(nil) error = %v, want ErrNotEnoughPoints", err)
	}

	if _, err := fitLinear([]calibrationPoint{{raw: 1, reference: 5}}); !errors.Is(err, ErrNotEnoughPoints) {
		t.Errorf("fitLinear(1 point) error = %v, want ErrNotEnoughPoints", err)
	}

	// Identical raw readings: vertical line, no fit.
	same := []calibrationPoint{{raw: 2, reference: 5}, {raw: 2, reference: 9}}
	if _, err := fitLinear(same); !errors.Is(err, ErrNotEnoughPoints) {
		t.Errorf("fitLinear(identical raws) error = %v, want ErrNotEnoughPoints", err)
	}
}
