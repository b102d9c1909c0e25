package poisson

import (
	"fmt"

	"github.com/notargets/gofac/amr"
)

type sideEliminator struct {
	ps    *PatchStencil
	level *amr.Level
	gg    *amr.GridGeometry
	dx    [3]float64
	t     float64
}

// NewSideStencils builds the side centered stencils of C*I + D*Laplacian on
// one patch, one per normal axis. Sides on a non periodic physical face
// normal to their axis are Dirichlet identity rows when b = 0; otherwise the
// ghost beyond them is u_g = u_in + 2h(g - a*u_s)/b with u_in the mirror
// side. Tangential ghosts use the Robin closure. The level must cover the
// domain: side centered coarse-fine interpolation is not available.
func NewSideStencils(patch *amr.Patch, C, D float64, bc RobinBcCoefs, t float64) (stencils []*PatchStencil) {
	var (
		level = patch.Level()
		dim   = level.Dim()
		dx    = level.Dx()
		gg    = level.Geometry()
		dom   = level.DomainBox()
	)
	for axis := 0; axis < dim; axis++ {
		se := &sideEliminator{
			ps:    newPatchStencil(patch, axis, patch.Box.SideBox(axis), StarOffsets(dim), bc),
			level: level,
			gg:    gg,
			dx:    dx,
			t:     t,
		}
		se.ps.Box.ForEach(func(s amr.IntVector) {
			row := se.ps.Row(s)
			if !gg.Periodic[axis] && (s[axis] == dom.Lo[axis] || s[axis] == dom.Hi[axis]+1) {
				side := 0
				if s[axis] != dom.Lo[axis] {
					side = 1
				}
				var (
					loc     = amr.Location(axis, side)
					x       = gg.SideCenter(s, axis, level.Ratio)
					a, b, _ = bc.Coefs(loc, x, t)
				)
				if b == 0 {
					if a == 0 {
						panic(fmt.Sprintf("degenerate boundary condition at location %d", loc))
					}
					row[0] = 1
					se.ps.Boundary = append(se.ps.Boundary, BoundaryTerm{Cell: s, Location: loc, X: x, Coef: 1 / a, Set: true})
					return
				}
			}
			row[0] += C
			for d := 0; d < dim; d++ {
				coef := D / (dx[d] * dx[d])
				for _, sgn := range []int{-1, 1} {
					row[0] -= coef
					se.eliminate(s, s.Add(amr.Unit(d).Scale(sgn)), coef, row)
				}
			}
		})
		stencils = append(stencils, se.ps)
	}
	return
}

func (se *sideEliminator) eliminate(s, q amr.IntVector, w float64, row []float64) {
	axis := se.ps.Component
	codim, out := se.gg.SideBoundaryCodim(q, axis, se.level.Ratio)
	switch {
	case codim == 0:
		if !se.ps.Box.Contains(q) && !se.level.CoversSide(q, axis) {
			panic(fmt.Sprintf("side %v of axis %d is not covered by level %d: side centered operators need a level covering the domain",
				q, axis, se.level.Number))
		}
		row[se.ps.index[q.Sub(s)]] += w
	case codim == 1:
		var d int
		for out[d] == 0 {
			d++
		}
		side := (out[d] + 1) / 2
		loc := amr.Location(d, side)
		if d == axis {
			var (
				x       = se.gg.SideCenter(s, axis, se.level.Ratio)
				a, b, _ = se.ps.Bc.Coefs(loc, x, se.t)
				h       = se.dx[axis]
				mirror  = s.Sub(amr.Unit(d).Scale(out[d]))
			)
			row[se.ps.index[mirror.Sub(s)]] += w
			row[0] -= w * 2 * h * a / b
			se.ps.Boundary = append(se.ps.Boundary, BoundaryTerm{Cell: s, Location: loc, X: x, Coef: w * 2 * h / b})
			return
		}
		var (
			qi = q.Sub(amr.Unit(d).Scale(out[d]))
			x  = se.gg.SideCenter(qi, axis, se.level.Ratio)
		)
		x[d] += float64(out[d]) * 0.5 * se.dx[d]
		a, b, _ := se.ps.Bc.Coefs(loc, x, se.t)
		alpha, beta := robinClosure(a, b, se.dx[d])
		se.ps.Boundary = append(se.ps.Boundary, BoundaryTerm{Cell: s, Location: loc, X: x, Coef: w * beta})
		se.eliminate(s, qi, w*alpha, row)
	default:
		panic(fmt.Sprintf("side %v is outside the domain in %d directions", q, codim))
	}
}
