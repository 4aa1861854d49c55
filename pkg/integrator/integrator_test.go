package integrator

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"
)

func TestSetIntegralThenZeroRateIsStable(t *testing.T) {
	integ := New(4, 5*time.Millisecond)
	seed := mat.NewVecDense(4, []float64{0.1, -0.2, 0.3, 1e-9})
	if err := integ.SetIntegral(seed); err != nil {
		t.Fatalf("SetIntegral failed: %v", err)
	}

	zero := mat.NewVecDense(4, nil)
	for i := 0; i < 1000; i++ {
		if err := integ.Integrate(zero); err != nil {
			t.Fatalf("Integrate failed: %v", err)
		}
	}

	if !mat.EqualApprox(integ.GetIntegral(), seed, 1e-15) {
		t.Errorf("Expected integral to stay at seed, got %v", mat.Formatted(integ.GetIntegral().T()))
	}
}

func TestIntegrateAccumulatesRateTimesPeriod(t *testing.T) {
	integ := New(2, 10*time.Millisecond)
	rate := mat.NewVecDense(2, []float64{1, -2})

	for i := 0; i < 100; i++ {
		if err := integ.Integrate(rate); err != nil {
			t.Fatalf("Integrate failed: %v", err)
		}
	}

	got := integ.GetIntegral()
	if math.Abs(got.AtVec(0)-1) > 1e-9 || math.Abs(got.AtVec(1)+2) > 1e-9 {
		t.Errorf("Expected [1 -2] after one second, got %v", mat.Formatted(got.T()))
	}
}

func TestResetAndCopySemantics(t *testing.T) {
	integ := New(3, time.Millisecond)
	if err := integ.SetIntegral(mat.NewVecDense(3, []float64{1, 2, 3})); err != nil {
		t.Fatalf("SetIntegral failed: %v", err)
	}

	snapshot := integ.GetIntegral()
	snapshot.SetVec(0, 99)
	if integ.GetIntegral().AtVec(0) != 1 {
		t.Errorf("GetIntegral must return a copy")
	}

	integ.Reset()
	for i := 0; i < 3; i++ {
		if integ.GetIntegral().AtVec(i) != 0 {
			t.Errorf("Expected zero after Reset at %d", i)
		}
	}
}

func TestDimensionMismatch(t *testing.T) {
	integ := New(3, time.Millisecond)
	if err := integ.SetIntegral(mat.NewVecDense(2, nil)); err == nil {
		t.Errorf("Expected error for short seed")
	}
	if err := integ.Integrate(mat.NewVecDense(4, nil)); err == nil {
		t.Errorf("Expected error for long rate")
	}
}
