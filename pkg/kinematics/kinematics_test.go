package kinematics

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

var testGeometry = LegGeometry{
	HipX:             0.277,
	HipY:             0.116,
	HipLateralOffset: 0.041,
	ThighLength:      0.25,
	ShankLength:      0.25,
}

var standingJoints = []float64{
	0.03, 0.4, -0.8,
	-0.03, 0.4, -0.8,
	0.03, -0.4, 0.8,
	-0.03, -0.4, 0.8,
}

func TestJointSlices(t *testing.T) {
	q := mat.NewVecDense(GenCoordDim, nil)
	u := mat.NewVecDense(GenVelDim, nil)
	for i := 0; i < GenCoordDim; i++ {
		q.SetVec(i, float64(i))
	}
	for i := 0; i < GenVelDim; i++ {
		u.SetVec(i, float64(100+i))
	}

	qj, err := JointPositions(q)
	if err != nil {
		t.Fatalf("JointPositions failed: %v", err)
	}
	qjDot, err := JointVelocities(u)
	if err != nil {
		t.Fatalf("JointVelocities failed: %v", err)
	}
	for i := 0; i < NumJoints; i++ {
		if qj.AtVec(i) != float64(BodyPoseDim+i) {
			t.Errorf("q_j[%d]: expected %d, got %v", i, BodyPoseDim+i, qj.AtVec(i))
		}
		if qjDot.AtVec(i) != float64(100+BodyTwistDim+i) {
			t.Errorf("q_j_dot[%d]: expected %d, got %v", i, 100+BodyTwistDim+i, qjDot.AtVec(i))
		}
	}

	if _, err := JointPositions(mat.NewVecDense(18, nil)); !errors.Is(err, ErrDimension) {
		t.Errorf("Expected ErrDimension for short gen_coord, got %v", err)
	}
	if _, err := JointVelocities(mat.NewVecDense(19, nil)); !errors.Is(err, ErrDimension) {
		t.Errorf("Expected ErrDimension for long gen_vel, got %v", err)
	}
}

func TestNeutralBodyState(t *testing.T) {
	q, err := NeutralBodyState(mat.NewVecDense(NumJoints, standingJoints))
	if err != nil {
		t.Fatalf("NeutralBodyState failed: %v", err)
	}
	pose := []float64{0, 0, 0, 1, 0, 0, 0}
	for i, want := range pose {
		if q.AtVec(i) != want {
			t.Errorf("pose[%d]: expected %v, got %v", i, want, q.AtVec(i))
		}
	}
	for i, want := range standingJoints {
		if q.AtVec(BodyPoseDim+i) != want {
			t.Errorf("joint %d: expected %v, got %v", i, want, q.AtVec(BodyPoseDim+i))
		}
	}
}

func TestStripBodyTwist(t *testing.T) {
	full := mat.NewDense(NumFeetCoords, GenVelDim, nil)
	for r := 0; r < NumFeetCoords; r++ {
		for c := 0; c < GenVelDim; c++ {
			full.Set(r, c, float64(r*100+c))
		}
	}
	stripped, err := StripBodyTwist(full)
	if err != nil {
		t.Fatalf("StripBodyTwist failed: %v", err)
	}
	if r, c := stripped.Dims(); r != NumFeetCoords || c != NumJoints {
		t.Fatalf("Expected %dx%d, got %dx%d", NumFeetCoords, NumJoints, r, c)
	}
	if stripped.At(3, 0) != 306 || stripped.At(11, 11) != 1117 {
		t.Errorf("Unexpected stripped entries: %v, %v", stripped.At(3, 0), stripped.At(11, 11))
	}

	if _, err := StripBodyTwist(mat.NewDense(12, 12, nil)); !errors.Is(err, ErrDimension) {
		t.Errorf("Expected ErrDimension, got %v", err)
	}
}

func TestFootPositionsAtZeroJoints(t *testing.T) {
	model := NewQuadruped(testGeometry)
	q, _ := NeutralBodyState(mat.NewVecDense(NumJoints, nil))

	feet, err := model.FootPositions(q)
	if err != nil {
		t.Fatalf("FootPositions failed: %v", err)
	}

	height := -(testGeometry.ThighLength + testGeometry.ShankLength)
	for i, s := range legSigns {
		want := []float64{
			s[0] * testGeometry.HipX,
			s[1] * (testGeometry.HipY + testGeometry.HipLateralOffset),
			height,
		}
		for k := 0; k < 3; k++ {
			if math.Abs(feet.AtVec(3*i+k)-want[k]) > 1e-12 {
				t.Errorf("leg %d coord %d: expected %v, got %v", i, k, want[k], feet.AtVec(3*i+k))
			}
		}
	}
}

func TestFootPositionsRejectsBadInput(t *testing.T) {
	model := NewQuadruped(testGeometry)
	if _, err := model.FootPositions(mat.NewVecDense(12, nil)); !errors.Is(err, ErrDimension) {
		t.Errorf("Expected ErrDimension, got %v", err)
	}
	// All-zero state has no valid orientation
	if _, err := model.StackedFootJacobian(mat.NewVecDense(GenCoordDim, nil)); !errors.Is(err, ErrInvalidOrientation) {
		t.Errorf("Expected ErrInvalidOrientation, got %v", err)
	}
}

func TestJacobianMatchesFiniteDifferences(t *testing.T) {
	model := NewQuadruped(testGeometry)
	q, _ := NeutralBodyState(mat.NewVecDense(NumJoints, standingJoints))
	q.SetVec(0, 0.1)
	q.SetVec(2, 0.45)

	jac, err := model.StackedFootJacobian(q)
	if err != nil {
		t.Fatalf("StackedFootJacobian failed: %v", err)
	}

	const eps = 1e-6
	feetAt := func(q *mat.VecDense) *mat.VecDense {
		f, err := model.FootPositions(q)
		if err != nil {
			t.Fatalf("FootPositions failed: %v", err)
		}
		return f
	}
	checkColumn := func(col int, plus, minus *mat.VecDense) {
		t.Helper()
		var diff mat.VecDense
		diff.SubVec(feetAt(plus), feetAt(minus))
		diff.ScaleVec(1/(2*eps), &diff)
		for r := 0; r < NumFeetCoords; r++ {
			if math.Abs(diff.AtVec(r)-jac.At(r, col)) > 1e-6 {
				t.Errorf("J[%d,%d]: analytic %v, numeric %v", r, col, jac.At(r, col), diff.AtVec(r))
			}
		}
	}

	// Body translation
	for k := 0; k < 3; k++ {
		plus, minus := mat.VecDenseCopyOf(q), mat.VecDenseCopyOf(q)
		plus.SetVec(k, q.AtVec(k)+eps)
		minus.SetVec(k, q.AtVec(k)-eps)
		checkColumn(k, plus, minus)
	}

	// Body rotation about world axis k, starting from identity orientation
	for k := 0; k < 3; k++ {
		plus, minus := mat.VecDenseCopyOf(q), mat.VecDenseCopyOf(q)
		s, c := math.Sincos(eps / 2)
		plus.SetVec(3, c)
		plus.SetVec(4+k, s)
		minus.SetVec(3, c)
		minus.SetVec(4+k, -s)
		checkColumn(3+k, plus, minus)
	}

	// Joints
	for j := 0; j < NumJoints; j++ {
		plus, minus := mat.VecDenseCopyOf(q), mat.VecDenseCopyOf(q)
		plus.SetVec(BodyPoseDim+j, q.AtVec(BodyPoseDim+j)+eps)
		minus.SetVec(BodyPoseDim+j, q.AtVec(BodyPoseDim+j)-eps)
		checkColumn(BodyTwistDim+j, plus, minus)
	}
}

func assertIdentity(t *testing.T, label string, m mat.Matrix, tol float64) {
	t.Helper()
	r, c := m.Dims()
	if r != c {
		t.Fatalf("%s: expected square product, got %dx%d", label, r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(m.At(i, j)-want) > tol {
				t.Errorf("%s[%d,%d]: expected %v, got %v", label, i, j, want, m.At(i, j))
			}
		}
	}
}

func TestPseudoInverseIsRightInverse(t *testing.T) {
	wide := mat.NewDense(3, 5, []float64{
		1, 2, 0, -1, 0.5,
		0, 1, 3, 0.2, -2,
		2, -1, 1, 1, 0,
	})
	pinv, err := PseudoInverse(wide)
	if err != nil {
		t.Fatalf("PseudoInverse failed: %v", err)
	}
	var prod mat.Dense
	prod.Mul(wide, pinv)
	assertIdentity(t, "3x5", &prod, 1e-9)

	model := NewQuadruped(testGeometry)
	q, _ := NeutralBodyState(mat.NewVecDense(NumJoints, standingJoints))
	full, err := model.StackedFootJacobian(q)
	if err != nil {
		t.Fatalf("StackedFootJacobian failed: %v", err)
	}
	jac, _ := StripBodyTwist(full)
	pinv, err = PseudoInverse(jac)
	if err != nil {
		t.Fatalf("PseudoInverse of feet jacobian failed: %v", err)
	}
	prod.Reset()
	prod.Mul(jac, pinv)
	assertIdentity(t, "feet", &prod, 1e-9)
}

func TestInversionPolicy(t *testing.T) {
	policy := InversionPolicy{Damping: 1e-4, ConditionThreshold: 1e3}

	wellConditioned := mat.NewDense(2, 3, []float64{1, 0, 0, 0, 1, 0})
	_, damped, err := policy.Invert(wellConditioned)
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}
	if damped {
		t.Errorf("Expected exact inverse for a well-conditioned matrix")
	}

	rankDeficient := mat.NewDense(2, 3, []float64{1, 2, 3, 1, 2, 3})
	if cond := ConditionNumber(rankDeficient); cond <= policy.ConditionThreshold {
		t.Errorf("Expected huge condition number, got %v", cond)
	}
	inv, damped, err := policy.Invert(rankDeficient)
	if err != nil {
		t.Fatalf("Damped Invert failed: %v", err)
	}
	if !damped {
		t.Errorf("Expected damped inverse for a rank-deficient matrix")
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			if math.IsNaN(inv.At(i, j)) || math.IsInf(inv.At(i, j), 0) {
				t.Fatalf("Damped inverse has non-finite entry at %d,%d", i, j)
			}
		}
	}
}
