package trajectory

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	footDims     = 3
	verticalAxis = 2
)

// FeetAtHeight copies a stacked feet vector (x, y, z per foot) and overwrites
// every foot's vertical coordinate with height. Horizontal coordinates are kept.
func FeetAtHeight(feet mat.Vector, height float64) (*mat.VecDense, error) {
	if feet.Len() == 0 || feet.Len()%footDims != 0 {
		return nil, fmt.Errorf("%w: stacked feet vector has %d entries", ErrSampleMismatch, feet.Len())
	}
	out := mat.VecDenseCopyOf(feet)
	for foot := 0; foot < feet.Len()/footDims; foot++ {
		out.SetVec(foot*footDims+verticalAxis, height)
	}
	return out, nil
}
