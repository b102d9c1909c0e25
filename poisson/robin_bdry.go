package poisson

import (
	"github.com/notargets/gofac/amr"
)

// RobinPhysBdryOp fills cell centered ghost values outside the physical
// domain from Robin boundary conditions. A ghost k cells out is paired with
// its mirror k cells in, so the closure uses the distance (2k-1)h. Ghosts
// outside in several directions are extrapolated linearly after the face
// ghosts are set. Bcs holds one condition per depth, or one for all.
type RobinPhysBdryOp struct {
	Bcs         []RobinBcCoefs
	Time        float64
	Homogeneous bool
}

func NewRobinPhysBdryOp(t float64, homogeneous bool, bcs ...RobinBcCoefs) *RobinPhysBdryOp {
	if len(bcs) == 0 {
		panic("no boundary conditions supplied")
	}
	return &RobinPhysBdryOp{Bcs: bcs, Time: t, Homogeneous: homogeneous}
}

func (op *RobinPhysBdryOp) bc(depth int) RobinBcCoefs {
	if depth < len(op.Bcs) {
		return op.Bcs[depth]
	}
	return op.Bcs[0]
}

func (op *RobinPhysBdryOp) SetPhysicalBoundaryConditions(level *amr.Level, fd *amr.FieldData[float64]) {
	if fd.Centering != amr.CellCentered {
		panic("Robin ghost filling is implemented for cell centered data")
	}
	var (
		gg    = level.Geometry()
		ratio = level.Ratio
		dom   = level.DomainBox()
		dx    = level.Dx()
		arr   = fd.Arrays[0]
		multi []amr.IntVector
	)
	arr.Box.ForEach(func(q amr.IntVector) {
		codim, out := gg.BoundaryCodim(q, ratio)
		switch {
		case codim == 0:
			return
		case codim > 1:
			multi = append(multi, q)
			return
		}
		var d int
		for out[d] == 0 {
			d++
		}
		var (
			side   = (out[d] + 1) / 2
			bound  = dom.Lo[d]
			mirror = q
		)
		if side == 1 {
			bound = dom.Hi[d] + 1
		}
		// k-th ghost layer is mirrored onto the k-th interior layer
		k := q[d] - bound + 1
		if side == 0 {
			k = bound - q[d]
		}
		mirror[d] = 2*bound - 1 - q[d]
		mirror[d] = max(fd.Interior.Lo[d], min(fd.Interior.Hi[d], mirror[d]))
		x := gg.CellCenter(q, ratio)
		x[d] = gg.XLower[d] + float64(bound-dom.Lo[d])*dx[d]
		for depth := 0; depth < arr.Depth; depth++ {
			a, b, g := op.bc(depth).Coefs(amr.Location(d, side), x, op.Time)
			if op.Homogeneous {
				g = 0
			}
			alpha, beta := robinClosure(a, b, float64(2*k-1)*dx[d])
			arr.Set(q, depth, alpha*arr.Get(mirror, depth)+beta*g)
		}
	})
	for _, q := range multi {
		for depth := 0; depth < arr.Depth; depth++ {
			arr.Set(q, depth, op.extrapolate(gg, ratio, arr, q, depth))
		}
	}
}

func (op *RobinPhysBdryOp) extrapolate(gg *amr.GridGeometry, ratio amr.IntVector, arr *amr.ArrayData[float64],
	q amr.IntVector, depth int) float64 {
	codim, out := gg.BoundaryCodim(q, ratio)
	if codim <= 1 {
		return arr.Get(q, depth)
	}
	var axes []int
	for d := 0; d < 3 && len(axes) < 2; d++ {
		if out[d] != 0 {
			axes = append(axes, d)
		}
	}
	var (
		e1 = amr.Unit(axes[0]).Scale(-out[axes[0]])
		e2 = amr.Unit(axes[1]).Scale(-out[axes[1]])
	)
	return op.extrapolate(gg, ratio, arr, q.Add(e1), depth) +
		op.extrapolate(gg, ratio, arr, q.Add(e2), depth) -
		op.extrapolate(gg, ratio, arr, q.Add(e1).Add(e2), depth)
}
