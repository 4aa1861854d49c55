package kinematics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrSingular = errors.New("kinematics: J*J^T is not invertible")

// PseudoInverse returns the right Moore-Penrose inverse J^T (J J^T)^-1 of a
// full-row-rank matrix.
func PseudoInverse(j mat.Matrix) (*mat.Dense, error) {
	return DampedPseudoInverse(j, 0)
}

// DampedPseudoInverse returns J^T (J J^T + lambda I)^-1.
func DampedPseudoInverse(j mat.Matrix, lambda float64) (*mat.Dense, error) {
	r, _ := j.Dims()

	var jjt mat.Dense
	jjt.Mul(j, j.T())
	for i := 0; i < r; i++ {
		jjt.Set(i, i, jjt.At(i, i)+lambda)
	}

	var inv mat.Dense
	if err := inv.Inverse(&jjt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var out mat.Dense
	out.Mul(j.T(), &inv)
	return &out, nil
}

// ConditionNumber is the 2-norm condition number sigma_max/sigma_min. It is
// +Inf for a rank-deficient matrix.
func ConditionNumber(j mat.Matrix) float64 {
	var svd mat.SVD
	if ok := svd.Factorize(j, mat.SVDNone); !ok {
		return math.Inf(1)
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[len(values)-1] == 0 {
		return math.Inf(1)
	}
	return values[0] / values[len(values)-1]
}

// InversionPolicy picks between the exact and damped pseudo-inverse. The exact
// form is used while cond(J) stays at or below ConditionThreshold; past it,
// or if the exact inverse fails, the damped form is used.
type InversionPolicy struct {
	Damping            float64
	ConditionThreshold float64
}

// Invert applies the policy. damped reports which form was used.
func (p InversionPolicy) Invert(j mat.Matrix) (inv *mat.Dense, damped bool, err error) {
	if ConditionNumber(j) <= p.ConditionThreshold {
		if inv, err = PseudoInverse(j); err == nil {
			return inv, false, nil
		}
	}
	inv, err = DampedPseudoInverse(j, p.Damping)
	return inv, true, err
}
