package amr

import (
	"fmt"
	"math"
)

// GridGeometry describes the Cartesian domain at level zero.
type GridGeometry struct {
	Dim      int
	XLower   [3]float64
	XUpper   [3]float64
	Domain   Box // level zero index space
	Periodic [3]bool
}

func NewGridGeometry(dim int, xLower, xUpper []float64, nCells []int, periodic ...bool) (gg *GridGeometry) {
	if dim != 2 && dim != 3 {
		panic(fmt.Sprintf("unsupported dimension %d", dim))
	}
	if len(xLower) != dim || len(xUpper) != dim || len(nCells) != dim {
		panic("domain extents must have one entry per dimension")
	}
	gg = &GridGeometry{Dim: dim}
	for d := 0; d < dim; d++ {
		if nCells[d] < 1 || xUpper[d] <= xLower[d] {
			panic(fmt.Sprintf("degenerate domain in axis %d", d))
		}
		gg.XLower[d], gg.XUpper[d] = xLower[d], xUpper[d]
		gg.Domain.Hi[d] = nCells[d] - 1
		if d < len(periodic) {
			gg.Periodic[d] = periodic[d]
		}
	}
	gg.XUpper[2] = gg.XLower[2] + 1
	if dim == 3 {
		gg.XUpper[2] = xUpper[2]
	}
	return
}

// Ratio is the refinement vector r in each active axis and one elsewhere.
func Ratio(dim, r int) (rv IntVector) {
	rv = IntVector{1, 1, 1}
	for d := 0; d < dim; d++ {
		rv[d] = r
	}
	return
}

func (gg *GridGeometry) DomainBox(ratio IntVector) Box {
	return gg.Domain.Refine(ratio)
}

func (gg *GridGeometry) Dx(ratio IntVector) (dx [3]float64) {
	n := gg.DomainBox(ratio).Size()
	for d := 0; d < 3; d++ {
		dx[d] = (gg.XUpper[d] - gg.XLower[d]) / float64(n[d])
	}
	return
}

// CellCenter is the physical position of cell p.
func (gg *GridGeometry) CellCenter(p IntVector, ratio IntVector) (x [3]float64) {
	var (
		dx  = gg.Dx(ratio)
		dlo = gg.DomainBox(ratio).Lo
	)
	for d := 0; d < gg.Dim; d++ {
		x[d] = gg.XLower[d] + (float64(p[d]-dlo[d])+0.5)*dx[d]
	}
	return
}

// SideCenter is the physical position of side p normal to axis.
func (gg *GridGeometry) SideCenter(p IntVector, axis int, ratio IntVector) (x [3]float64) {
	x = gg.CellCenter(p, ratio)
	x[axis] -= 0.5 * gg.Dx(ratio)[axis]
	return
}

// CellIndex returns the cell containing the physical point x.
func (gg *GridGeometry) CellIndex(x []float64, ratio IntVector) (p IntVector) {
	var (
		dx  = gg.Dx(ratio)
		dlo = gg.DomainBox(ratio).Lo
	)
	for d := 0; d < gg.Dim; d++ {
		p[d] = dlo[d] + int(math.Floor((x[d]-gg.XLower[d])/dx[d]))
	}
	return
}

// PeriodicShifts lists every nonzero image offset of the domain in the
// periodic directions.
func (gg *GridGeometry) PeriodicShifts(ratio IntVector) (shifts []IntVector) {
	var (
		n      = gg.DomainBox(ratio).Size()
		ranges [3][]int
	)
	for d := 0; d < 3; d++ {
		ranges[d] = []int{0}
		if d < gg.Dim && gg.Periodic[d] {
			ranges[d] = []int{-1, 0, 1}
		}
	}
	for _, i := range ranges[0] {
		for _, j := range ranges[1] {
			for _, k := range ranges[2] {
				s := IntVector{i * n[0], j * n[1], k * n[2]}
				if !s.IsZero() {
					shifts = append(shifts, s)
				}
			}
		}
	}
	return
}

// Wrap maps p into the domain along periodic directions.
func (gg *GridGeometry) Wrap(p IntVector, ratio IntVector) IntVector {
	dom := gg.DomainBox(ratio)
	n := dom.Size()
	for d := 0; d < gg.Dim; d++ {
		if gg.Periodic[d] {
			p[d] = dom.Lo[d] + floorMod(p[d]-dom.Lo[d], n[d])
		}
	}
	return p
}

// BoundaryCodim counts the non periodic axes in which p lies outside the
// domain; out[d] is -1 or +1 for those axes.
func (gg *GridGeometry) BoundaryCodim(p IntVector, ratio IntVector) (codim int, out IntVector) {
	dom := gg.DomainBox(ratio)
	for d := 0; d < gg.Dim; d++ {
		if gg.Periodic[d] {
			continue
		}
		switch {
		case p[d] < dom.Lo[d]:
			out[d] = -1
			codim++
		case p[d] > dom.Hi[d]:
			out[d] = 1
			codim++
		}
	}
	return
}

// SideBoundaryCodim is the side centered analogue: a side on the domain
// face in its own axis is inside the domain.
func (gg *GridGeometry) SideBoundaryCodim(p IntVector, axis int, ratio IntVector) (codim int, out IntVector) {
	dom := gg.DomainBox(ratio).SideBox(axis)
	for d := 0; d < gg.Dim; d++ {
		if gg.Periodic[d] {
			continue
		}
		switch {
		case p[d] < dom.Lo[d]:
			out[d] = -1
			codim++
		case p[d] > dom.Hi[d]:
			out[d] = 1
			codim++
		}
	}
	return
}

// Location numbers the physical faces 2*axis+side.
func Location(axis, side int) int { return 2*axis + side }
