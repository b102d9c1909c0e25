package poisson

import (
	"fmt"

	"github.com/notargets/gofac/amr"
)

// BoundaryTerm is the part of a row that multiplies a boundary value g once
// the ghost value it came from has been eliminated: rhs -= Coef*g. Set rows
// are identity rows whose right hand side becomes Coef*g.
type BoundaryTerm struct {
	Cell     amr.IntVector
	Location int
	X        [3]float64
	Coef     float64
	Set      bool
}

// CoarseFineTerm couples a row to a cell of the next coarser level through
// a coarse-fine ghost value.
type CoarseFineTerm struct {
	Cell   amr.IntVector
	Coarse amr.IntVector
	Coef   float64
}

// FaceStencil is the part of the row of Cell that comes from its face
// (Axis, Side), with ghosts eliminated as in the row itself. Adding the C
// term to the face stencils of the 2*dim faces gives back the row.
type FaceStencil struct {
	Cell       amr.IntVector
	Axis, Side int
	Coefs      []float64
	Boundary   []BoundaryTerm
	CoarseFine []CoarseFineTerm
	ps         *PatchStencil
}

// CoarseFineFace is one fine face on the coarse-fine interface; the ghost
// across it is interpolated from Coarse.
type CoarseFineFace struct {
	*FaceStencil
	Coarse amr.IntVector
}

// PatchStencil is the discrete operator of one patch after every ghost
// value outside the level has been eliminated. Rows are the points of Box,
// columns are Offsets relative to the row; the zero offset comes first.
type PatchStencil struct {
	Patch      *amr.Patch
	Component  int // normal axis of side centered rows
	Box        amr.Box
	Offsets    []amr.IntVector
	Coefs      [][]float64
	Bc         RobinBcCoefs
	Boundary   []BoundaryTerm
	CoarseFine []CoarseFineTerm
	Faces      []CoarseFineFace
	index      map[amr.IntVector]int
	spec       Specifications
	aligned    bool
	t          float64
}

func newPatchStencil(patch *amr.Patch, comp int, box amr.Box, offsets []amr.IntVector, bc RobinBcCoefs) (ps *PatchStencil) {
	ps = &PatchStencil{
		Patch:     patch,
		Component: comp,
		Box:       box,
		Offsets:   offsets,
		Coefs:     make([][]float64, box.NumPoints()),
		Bc:        bc,
		index:     make(map[amr.IntVector]int, len(offsets)),
	}
	for k, o := range offsets {
		ps.index[o] = k
	}
	for i := range ps.Coefs {
		ps.Coefs[i] = make([]float64, len(offsets))
	}
	return
}

// StarOffsets is the (2*dim+1)-point stencil.
func StarOffsets(dim int) (offsets []amr.IntVector) {
	offsets = []amr.IntVector{{}}
	for d := 0; d < dim; d++ {
		offsets = append(offsets, amr.Unit(d).Scale(-1), amr.Unit(d))
	}
	return
}

// CrossOffsets adds the edge neighbours: 9 points in 2D, 19 in 3D.
func CrossOffsets(dim int) (offsets []amr.IntVector) {
	offsets = StarOffsets(dim)
	for d1 := 0; d1 < dim; d1++ {
		for d2 := d1 + 1; d2 < dim; d2++ {
			for _, s1 := range []int{-1, 1} {
				for _, s2 := range []int{-1, 1} {
					offsets = append(offsets, amr.Unit(d1).Scale(s1).Add(amr.Unit(d2).Scale(s2)))
				}
			}
		}
	}
	return
}

func (ps *PatchStencil) Row(p amr.IntVector) []float64 { return ps.Coefs[ps.Box.Offset(p)] }

func (ps *PatchStencil) OffsetIndex(o amr.IntVector) (k int, ok bool) {
	k, ok = ps.index[o]
	return
}

// Apply evaluates the row of p against u, which must hold every column.
func (ps *PatchStencil) Apply(u *amr.ArrayData[float64], p amr.IntVector, depth int) (sum float64) {
	for k, c := range ps.Row(p) {
		if c != 0 {
			sum += c * u.Get(p.Add(ps.Offsets[k]), depth)
		}
	}
	return
}

// Scale multiplies every coefficient, boundary and coarse-fine term by s.
func (ps *PatchStencil) Scale(s float64) *PatchStencil {
	for _, row := range ps.Coefs {
		for k := range row {
			row[k] *= s
		}
	}
	for i := range ps.Boundary {
		ps.Boundary[i].Coef *= s
	}
	for i := range ps.CoarseFine {
		ps.CoarseFine[i].Coef *= s
	}
	for _, f := range ps.Faces {
		f.scale(s)
	}
	return ps
}

func (fs *FaceStencil) scale(s float64) {
	for k := range fs.Coefs {
		fs.Coefs[k] *= s
	}
	for i := range fs.Boundary {
		fs.Boundary[i].Coef *= s
	}
	for i := range fs.CoarseFine {
		fs.CoarseFine[i].Coef *= s
	}
}

// Apply evaluates the face contribution against u and the coarse values U,
// adding the boundary values unless homogeneous. A nil U stands for zero
// coarse values.
func (fs *FaceStencil) Apply(u, U *amr.ArrayData[float64], homogeneous bool) (sum float64) {
	for k, c := range fs.Coefs {
		if c != 0 {
			sum += c * u.Get(fs.Cell.Add(fs.ps.Offsets[k]), 0)
		}
	}
	if U != nil {
		for _, t := range fs.CoarseFine {
			sum += t.Coef * U.Get(t.Coarse, 0)
		}
	}
	if !homogeneous {
		for _, bt := range fs.Boundary {
			_, _, g := fs.ps.Bc.Coefs(bt.Location, bt.X, fs.ps.t)
			sum += bt.Coef * g
		}
	}
	return
}

// AdjustBoundaryRhsEntries moves the boundary values of the eliminated
// ghosts into rhs.
func AdjustBoundaryRhsEntries(ps *PatchStencil, rhs *amr.ArrayData[float64], depth int, t float64) {
	for _, bt := range ps.Boundary {
		_, _, g := ps.Bc.Coefs(bt.Location, bt.X, t)
		if bt.Set {
			rhs.Set(bt.Cell, depth, bt.Coef*g)
		} else {
			rhs.Set(bt.Cell, depth, rhs.Get(bt.Cell, depth)-bt.Coef*g)
		}
	}
}

type cellEliminator struct {
	ps    *PatchStencil
	level *amr.Level
	gg    *amr.GridGeometry
	dx    [3]float64
	bdry  *[]BoundaryTerm
	cf    *[]CoarseFineTerm
}

func (ps *PatchStencil) eliminator(bdry *[]BoundaryTerm, cf *[]CoarseFineTerm) *cellEliminator {
	level := ps.Patch.Level()
	return &cellEliminator{
		ps:    ps,
		level: level,
		gg:    level.Geometry(),
		dx:    level.Dx(),
		bdry:  bdry,
		cf:    cf,
	}
}

// NewPatchStencil builds the cell centered stencil of C*I + div(D grad) on
// one patch with second order face fluxes. The aligned path uses the star
// stencil and only the diagonal of D; otherwise the cross derivative terms of
// the face fluxes widen it to CrossOffsets.
//
// Ghost values are eliminated as follows: cells covered by the level stay
// columns; ghosts across one physical face use the Robin closure; ghosts
// outside in two or more directions use u(q) = u(q+e1) + u(q+e2) - u(q+e1+e2)
// with inward e1, e2; face ghosts on the coarse-fine interface use
// u_g = (R-1)/(R+1) u_i + 2/(R+1) U(coarsen(g)).
func NewPatchStencil(patch *amr.Patch, spec Specifications, bc RobinBcCoefs, t float64, aligned bool) *PatchStencil {
	dim := patch.Level().Dim()
	spec.validate(dim)
	offsets := StarOffsets(dim)
	if !aligned {
		offsets = CrossOffsets(dim)
	}
	ps := newPatchStencil(patch, 0, patch.Box, offsets, bc)
	ps.spec, ps.aligned, ps.t = spec, aligned, t
	ce := ps.eliminator(&ps.Boundary, &ps.CoarseFine)
	raw := make([]float64, len(offsets))
	patch.Box.ForEach(func(p amr.IntVector) {
		for k := range raw {
			raw[k] = 0
		}
		raw[0] = spec.C(patch, p)
		for d := 0; d < dim; d++ {
			for s := 0; s < 2; s++ {
				ce.addFace(p, d, s, raw)
				if K, ok := ce.coarseFineNeighbour(p, d, s); ok {
					ps.Faces = append(ps.Faces, CoarseFineFace{FaceStencil: ps.FaceStencil(p, d, s), Coarse: K})
				}
			}
		}
		row := ps.Row(p)
		for k, w := range raw {
			ce.eliminate(p, p.Add(offsets[k]), w, row)
		}
	})
	return ps
}

// FaceStencil builds the contribution of face (d, s) of the cell p of the
// patch box.
func (ps *PatchStencil) FaceStencil(p amr.IntVector, d, s int) (fs *FaceStencil) {
	fs = &FaceStencil{
		Cell:  p,
		Axis:  d,
		Side:  s,
		Coefs: make([]float64, len(ps.Offsets)),
		ps:    ps,
	}
	var (
		ce  = ps.eliminator(&fs.Boundary, &fs.CoarseFine)
		raw = make([]float64, len(ps.Offsets))
	)
	ce.addFace(p, d, s, raw)
	for k, w := range raw {
		ce.eliminate(p, p.Add(ps.Offsets[k]), w, fs.Coefs)
	}
	return
}

// addFace adds sigma*F/dx[d] of face (d, s) of p to raw, F being the
// second order flux D grad(u).e(d) on the face.
func (ce *cellEliminator) addFace(p amr.IntVector, d, s int, raw []float64) {
	var (
		ps    = ce.ps
		dim   = ce.level.Dim()
		sigma = float64(2*s - 1)
		face  = p.Add(amr.Unit(d).Scale(s))
		hi    = amr.Unit(d).Scale(s)
		lo    = amr.Unit(d).Scale(s - 1)
		coef  = ps.spec.D(ps.Patch, d, face, d) / (ce.dx[d] * ce.dx[d])
	)
	raw[ps.index[hi]] += sigma * coef
	raw[ps.index[lo]] -= sigma * coef
	if ps.aligned {
		return
	}
	for k := 0; k < dim; k++ {
		if k == d {
			continue
		}
		var (
			ek = amr.Unit(k)
			ck = sigma * ps.spec.D(ps.Patch, d, face, k) / (4 * ce.dx[k] * ce.dx[d])
		)
		raw[ps.index[hi.Add(ek)]] += ck
		raw[ps.index[hi.Sub(ek)]] -= ck
		raw[ps.index[lo.Add(ek)]] += ck
		raw[ps.index[lo.Sub(ek)]] -= ck
	}
}

// coarseFineNeighbour reports whether the cell across face (d, s) of p is a
// coarse-fine ghost and returns the coarse cell under it.
func (ce *cellEliminator) coarseFineNeighbour(p amr.IntVector, d, s int) (K amr.IntVector, ok bool) {
	if ce.level.Number == 0 {
		return
	}
	q := p.Add(amr.Unit(d).Scale(2*s - 1))
	if codim, _ := ce.gg.BoundaryCodim(q, ce.level.Ratio); codim != 0 || ce.ps.Box.Contains(q) || ce.level.CoversCell(q) {
		return
	}
	return q.Coarsen(ce.level.RatioToCoarser), true
}

func (ce *cellEliminator) eliminate(p, q amr.IntVector, w float64, row []float64) {
	if w == 0 {
		return
	}
	codim, out := ce.gg.BoundaryCodim(q, ce.level.Ratio)
	if codim == 0 && (ce.ps.Box.Contains(q) || ce.level.CoversCell(q)) {
		k, ok := ce.ps.index[q.Sub(p)]
		if !ok {
			panic(fmt.Sprintf("cell %v is not in the stencil of %v", q, p))
		}
		row[k] += w
		return
	}
	switch {
	case codim == 1:
		var d int
		for out[d] == 0 {
			d++
		}
		var (
			qi   = q.Sub(amr.Unit(d).Scale(out[d]))
			side = (out[d] + 1) / 2
			x    = ce.gg.CellCenter(qi, ce.level.Ratio)
		)
		x[d] += float64(out[d]) * 0.5 * ce.dx[d]
		loc := amr.Location(d, side)
		a, b, _ := ce.ps.Bc.Coefs(loc, x, ce.ps.t)
		alpha, beta := robinClosure(a, b, ce.dx[d])
		*ce.bdry = append(*ce.bdry, BoundaryTerm{Cell: p, Location: loc, X: x, Coef: w * beta})
		ce.eliminate(p, qi, w*alpha, row)
	case codim >= 2:
		var axes []int
		for d := 0; d < 3 && len(axes) < 2; d++ {
			if out[d] != 0 {
				axes = append(axes, d)
			}
		}
		ce.extrapolate(p, q, axes[0], -out[axes[0]], axes[1], -out[axes[1]], w, row)
	default:
		// inside the domain but not on this level
		diff := q.Sub(p)
		var axes []int
		for d := 0; d < 3; d++ {
			if diff[d] != 0 {
				axes = append(axes, d)
			}
		}
		if len(axes) >= 2 {
			ce.extrapolate(p, q, axes[0], -diff[axes[0]], axes[1], -diff[axes[1]], w, row)
			return
		}
		if ce.level.Number == 0 {
			panic(fmt.Sprintf("cell %v is inside the domain but not covered by level 0", q))
		}
		var (
			d     = axes[0]
			R     = float64(ce.level.RatioToCoarser[d])
			alpha = (R - 1) / (R + 1)
			beta  = 2 / (R + 1)
			K     = q.Coarsen(ce.level.RatioToCoarser)
		)
		row[0] += w * alpha
		*ce.cf = append(*ce.cf, CoarseFineTerm{Cell: p, Coarse: K, Coef: w * beta})
	}
}

// extrapolate eliminates q linearly from its neighbours in the inward
// directions s1*e(d1) and s2*e(d2).
func (ce *cellEliminator) extrapolate(p, q amr.IntVector, d1, s1, d2, s2 int, w float64, row []float64) {
	var (
		e1 = amr.Unit(d1).Scale(s1)
		e2 = amr.Unit(d2).Scale(s2)
	)
	ce.eliminate(p, q.Add(e1), w, row)
	ce.eliminate(p, q.Add(e2), w, row)
	ce.eliminate(p, q.Add(e1).Add(e2), -w, row)
}

// ComplexPatchStencil holds the four blocks of the operator
// (C_r + iC_i) + div((D_r + iD_i) grad) acting on (u_r, u_i): the real row
// is [RR | RI] = [A_r | -A_i] and the imaginary row is [IR | II] = [A_i | A_r].
// Blocks acting on the real part eliminate ghosts with the real boundary
// conditions, those acting on the imaginary part with the imaginary ones.
type ComplexPatchStencil struct {
	RR, RI, IR, II *PatchStencil
}

func NewComplexPatchStencil(patch *amr.Patch, specR, specI Specifications, bcR, bcI RobinBcCoefs,
	t float64, aligned bool) *ComplexPatchStencil {
	return &ComplexPatchStencil{
		RR: NewPatchStencil(patch, specR, bcR, t, aligned),
		RI: NewPatchStencil(patch, specI, bcI, t, aligned).Scale(-1),
		IR: NewPatchStencil(patch, specI, bcR, t, aligned),
		II: NewPatchStencil(patch, specR, bcI, t, aligned),
	}
}
