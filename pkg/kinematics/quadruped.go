package kinematics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

var ErrInvalidOrientation = errors.New("kinematics: body orientation quaternion has zero norm")

// LegGeometry describes a symmetric quadruped in meters.
type LegGeometry struct {
	HipX             float64
	HipY             float64
	HipLateralOffset float64
	ThighLength      float64
	ShankLength      float64
}

// Leg order is LF, RF, LH, RH; each entry is the (x, y) sign of the hip mount.
var legSigns = [NumLegs][2]float64{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}

type vec3 [3]float64

// Quadruped is an analytic Model. Each leg has HAA about the body x axis
// followed by HFE and KFE about the rotated y axis; at zero angles the thigh
// and shank point straight down.
type Quadruped struct {
	geom    LegGeometry
	hips    [NumLegs]vec3
	lateral [NumLegs]float64
}

var _ Model = (*Quadruped)(nil)

func NewQuadruped(geom LegGeometry) *Quadruped {
	m := &Quadruped{geom: geom}
	for i, s := range legSigns {
		m.hips[i] = vec3{s[0] * geom.HipX, s[1] * geom.HipY, 0}
		m.lateral[i] = s[1] * geom.HipLateralOffset
	}
	return m
}

// leg returns the foot position relative to the hip mount and its partial
// derivatives with respect to (HAA, HFE, KFE).
func (m *Quadruped) leg(i int, haa, hfe, kfe float64) (vec3, [JointsPerLeg]vec3) {
	l1, l2, d := m.geom.ThighLength, m.geom.ShankLength, m.lateral[i]
	sa, ca := math.Sincos(haa)
	sb, cb := math.Sincos(hfe)
	sbc, cbc := math.Sincos(hfe + kfe)

	vx := -l1*sb - l2*sbc
	vz := -l1*cb - l2*cbc

	p := vec3{vx, ca*d - sa*vz, sa*d + ca*vz}
	dp := [JointsPerLeg]vec3{
		{0, -sa*d - ca*vz, ca*d - sa*vz},
		{vz, sa * vx, -ca * vx},
		{-l2 * cbc, -sa * l2 * sbc, ca * l2 * sbc},
	}
	return p, dp
}

func orientation(q mat.Vector) (quat.Number, error) {
	n := quat.Number{Real: q.AtVec(3), Imag: q.AtVec(4), Jmag: q.AtVec(5), Kmag: q.AtVec(6)}
	abs := quat.Abs(n)
	if abs == 0 {
		return quat.Number{}, ErrInvalidOrientation
	}
	return quat.Scale(1/abs, n), nil
}

func rotate(r quat.Number, v vec3) vec3 {
	out := quat.Mul(quat.Mul(r, quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}), quat.Conj(r))
	return vec3{out.Imag, out.Jmag, out.Kmag}
}

func checkGenCoord(q mat.Vector) error {
	if q.Len() != GenCoordDim {
		return fmt.Errorf("%w: gen_coord has %d entries, want %d", ErrDimension, q.Len(), GenCoordDim)
	}
	return nil
}

func jointAngles(q mat.Vector, i int) (float64, float64, float64) {
	base := BodyPoseDim + i*JointsPerLeg
	return q.AtVec(base), q.AtVec(base + 1), q.AtVec(base + 2)
}

// FootPositions implements Model.
func (m *Quadruped) FootPositions(q mat.Vector) (*mat.VecDense, error) {
	if err := checkGenCoord(q); err != nil {
		return nil, err
	}
	r, err := orientation(q)
	if err != nil {
		return nil, err
	}

	feet := mat.NewVecDense(NumFeetCoords, nil)
	for i := 0; i < NumLegs; i++ {
		haa, hfe, kfe := jointAngles(q, i)
		p, _ := m.leg(i, haa, hfe, kfe)
		w := rotate(r, vec3{m.hips[i][0] + p[0], m.hips[i][1] + p[1], m.hips[i][2] + p[2]})
		for k := 0; k < 3; k++ {
			feet.SetVec(3*i+k, q.AtVec(k)+w[k])
		}
	}
	return feet, nil
}

// StackedFootJacobian implements Model. Body angular columns are expressed
// for a world-frame angular velocity.
func (m *Quadruped) StackedFootJacobian(q mat.Vector) (*mat.Dense, error) {
	if err := checkGenCoord(q); err != nil {
		return nil, err
	}
	r, err := orientation(q)
	if err != nil {
		return nil, err
	}

	jac := mat.NewDense(NumFeetCoords, GenVelDim, nil)
	for i := 0; i < NumLegs; i++ {
		row := 3 * i
		haa, hfe, kfe := jointAngles(q, i)
		p, dp := m.leg(i, haa, hfe, kfe)
		w := rotate(r, vec3{m.hips[i][0] + p[0], m.hips[i][1] + p[1], m.hips[i][2] + p[2]})

		for k := 0; k < 3; k++ {
			jac.Set(row+k, k, 1)
		}
		// -[w]x
		jac.Set(row, 4, w[2])
		jac.Set(row, 5, -w[1])
		jac.Set(row+1, 3, -w[2])
		jac.Set(row+1, 5, w[0])
		jac.Set(row+2, 3, w[1])
		jac.Set(row+2, 4, -w[0])

		for k := 0; k < JointsPerLeg; k++ {
			col := BodyTwistDim + i*JointsPerLeg + k
			d := rotate(r, dp[k])
			for a := 0; a < 3; a++ {
				jac.Set(row+a, col, d[a])
			}
		}
	}
	return jac, nil
}
