package poisson

import (
	"fmt"
	"math"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/utils"
)

// Specifications holds the coefficients of L = C*I + div(D grad). C is a
// constant or a cell centered field of depth 1. D is a constant, a side
// centered scalar field, or a side centered field of depth NDIM holding, on
// each side normal to axis d, the row D[d][:] of the diffusion tensor.
type Specifications struct {
	CConstant float64
	CVar      *amr.Variable
	DConstant float64
	DVar      *amr.Variable
}

// NewPoissonSpecifications is the constant coefficient operator C*I + D*Laplacian.
func NewPoissonSpecifications(C, D float64) Specifications {
	return Specifications{CConstant: C, DConstant: D}
}

func (s Specifications) validate(dim int) {
	if s.CVar != nil && (s.CVar.Centering != amr.CellCentered || s.CVar.Depth != 1) {
		panic(fmt.Sprintf("C variable %q must be cell centered with depth 1", s.CVar.Name))
	}
	if s.DVar != nil {
		if s.DVar.Centering != amr.SideCentered {
			panic(fmt.Sprintf("D variable %q must be side centered", s.DVar.Name))
		}
		if s.DVar.Depth != 1 && s.DVar.Depth != dim {
			panic(fmt.Sprintf("D variable %q has depth %d, want 1 or %d", s.DVar.Name, s.DVar.Depth, dim))
		}
	}
}

func (s Specifications) IsTensor() bool { return s.DVar != nil && s.DVar.Depth > 1 }

func (s Specifications) C(p *amr.Patch, q amr.IntVector) float64 {
	if s.CVar == nil {
		return s.CConstant
	}
	return amr.FloatData(p, s.CVar).Arrays[0].Get(q, 0)
}

// D returns D[axis][k] on the side with index q normal to axis.
func (s Specifications) D(p *amr.Patch, axis int, q amr.IntVector, k int) float64 {
	switch {
	case s.DVar == nil:
		if k == axis {
			return s.DConstant
		}
		return 0
	case s.DVar.Depth == 1:
		if k == axis {
			return amr.FloatData(p, s.DVar).Arrays[axis].Get(q, 0)
		}
		return 0
	}
	return amr.FloatData(p, s.DVar).Arrays[axis].Get(q, k)
}

// IsGridAligned reports whether every off diagonal entry of D is within tol
// of zero on the level. Collective.
func (s Specifications) IsGridAligned(c *utils.Comm, level *amr.Level, tol float64) bool {
	if !s.IsTensor() {
		return true
	}
	var (
		dim     = level.Dim()
		aligned = true
	)
	for _, p := range level.LocalPatches(c.Rank()) {
		fd := amr.FloatData(p, s.DVar)
		for axis := 0; axis < dim; axis++ {
			arr := fd.Arrays[axis]
			fd.InteriorBox(axis).ForEach(func(q amr.IntVector) {
				for k := 0; k < dim; k++ {
					if k != axis && math.Abs(arr.Get(q, k)) > tol {
						aligned = false
					}
				}
			})
		}
	}
	return c.AllreduceAnd(aligned)
}
