package fac

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/dofs"
	"github.com/notargets/gofac/utils"
)

// factorPatches builds and factors the operator of every local patch with
// the values outside the patch frozen.
func (ls *levelState) factorPatches() {
	ls.patchLU = make(map[int]*mat.LU)
	for _, p := range ls.level.Patches {
		ps, ok := ls.stencils[p.Number]
		if !ok {
			continue
		}
		var (
			n = p.Box.NumPoints()
			A = mat.NewDense(n, n, nil)
		)
		p.Box.ForEach(func(q amr.IntVector) {
			i := p.Box.Offset(q)
			for k, coef := range ps.Row(q) {
				if qq := q.Add(ps.Offsets[k]); coef != 0 && p.Box.Contains(qq) {
					A.Set(i, p.Box.Offset(qq), A.At(i, p.Box.Offset(qq))+coef)
				}
			}
		})
		lu := &mat.LU{}
		lu.Factorize(A)
		ls.patchLU[p.Number] = lu
	}
}

// smoothingRhs stores r minus the coarse-fine couplings to e on level ln-1
// in the operator's rhs scratch, leaving a level problem with homogeneous
// coarse-fine conditions. Collective.
func (op *Operator) smoothingRhs(c *utils.Comm, ln int, e, r *amr.Variable) {
	var (
		ls     = op.levels[ln]
		coarse = op.coarseValues(c, ln, e)
	)
	ls.forEachPatch(c, func(p *amr.Patch) {
		dst := amr.FloatData(p, op.rhsVar).Arrays[0]
		dst.CopyBox(amr.FloatData(p, r).Arrays[0], p.Box)
		subtractCoarseFine(ls.stencils[p.Number], dst, coarse[p.Number])
	})
}

// SmoothError applies sweeps relaxation sweeps to the error equation
// A e = r on level ln, with coarse-fine ghosts taken from e on level ln-1.
// Post smoothing visits colours and rows in the reverse order of pre
// smoothing so that a V-cycle stays symmetric. Collective.
func (op *Operator) SmoothError(c *utils.Comm, e, r *amr.Variable, ln, sweeps int, pre, post bool) {
	checkVariable(e)
	checkVariable(r)
	op.state(ln)
	if sweeps <= 0 {
		return
	}
	reverse := post && !pre
	op.smoothingRhs(c, ln, e, r)
	switch op.Smoother {
	case RedBlackGaussSeidel:
		op.redBlack(c, ln, e, sweeps, reverse)
	case PatchLocal:
		op.patchLocal(c, ln, e, sweeps)
	case ProcessorGaussSeidel:
		op.processorGaussSeidel(c, ln, e, sweeps, reverse)
	default:
		panic(fmt.Sprintf("unknown smoother %d", op.Smoother))
	}
}

func parity(i int) int { return ((i % 2) + 2) % 2 }

// colour is the checkerboard colour of q for the star stencil, or one of
// 2^dim colours for the cross stencil; points of one colour never share a
// stencil.
func colour(q amr.IntVector, dim int, aligned bool) (col int) {
	if aligned {
		return parity(q[0] + q[1] + q[2])
	}
	for d := 0; d < dim; d++ {
		col |= parity(q[d]) << d
	}
	return
}

func (op *Operator) redBlack(c *utils.Comm, ln int, e *amr.Variable, sweeps int, reverse bool) {
	var (
		ls      = op.levels[ln]
		dim     = ls.level.Dim()
		nColour = 2
		order   []int
	)
	if !ls.aligned {
		nColour = 1 << dim
	}
	for col := 0; col < nColour; col++ {
		order = append(order, col)
	}
	if reverse {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}
	for sweep := 0; sweep < sweeps; sweep++ {
		for _, col := range order {
			ls.fill(e).Fill(c)
			ls.forEachPatch(c, func(p *amr.Patch) {
				var (
					ps = ls.stencils[p.Number]
					u  = amr.FloatData(p, e).Arrays[0]
					f  = amr.FloatData(p, op.rhsVar).Arrays[0]
				)
				p.Box.ForEach(func(q amr.IntVector) {
					if colour(q, dim, ls.aligned) != col {
						return
					}
					var (
						diag = ps.Row(q)[0]
						off  = ps.Apply(u, q, 0) - diag*u.Get(q, 0)
					)
					u.Set(q, 0, (f.Get(q, 0)-off)/diag)
				})
			})
		}
	}
}

func (op *Operator) patchLocal(c *utils.Comm, ln int, e *amr.Variable, sweeps int) {
	ls := op.levels[ln]
	if ls.patchLU == nil {
		ls.factorPatches()
	}
	for sweep := 0; sweep < sweeps; sweep++ {
		ls.fill(e).Fill(c)
		ls.forEachPatch(c, func(p *amr.Patch) {
			var (
				ps = ls.stencils[p.Number]
				u  = amr.FloatData(p, e).Arrays[0]
				f  = amr.FloatData(p, op.rhsVar).Arrays[0]
				b  = mat.NewVecDense(p.Box.NumPoints(), nil)
				x  mat.VecDense
			)
			p.Box.ForEach(func(q amr.IntVector) {
				val := f.Get(q, 0)
				for k, coef := range ps.Row(q) {
					if qq := q.Add(ps.Offsets[k]); coef != 0 && !p.Box.Contains(qq) {
						val -= coef * u.Get(qq, 0)
					}
				}
				b.SetVec(p.Box.Offset(q), val)
			})
			if err := ls.patchLU[p.Number].SolveVecTo(&x, false, b); err != nil {
				if _, ok := err.(mat.Condition); !ok {
					panic(fmt.Errorf("patch %d of level %d: %w", p.Number, ln, err))
				}
			}
			p.Box.ForEach(func(q amr.IntVector) {
				u.Set(q, 0, x.AtVec(p.Box.Offset(q)))
			})
		})
	}
}

// processorGaussSeidel relaxes the rows of the level matrix in DOF order on
// each rank; values owned by other ranks are refreshed once per sweep.
func (op *Operator) processorGaussSeidel(c *utils.Comm, ln int, e *amr.Variable, sweeps int, reverse bool) {
	var (
		ls = op.levels[ln]
		A  = ls.A
		x  = dofs.NewLevelVec(c, ls.ld)
		b  = x.Duplicate()
		n  = A.LocalRows()
	)
	dofs.CopyToPatchLevelVec(c, x, e, ls.ld)
	dofs.CopyToPatchLevelVec(c, b, op.rhsVar, ls.ld)
	rowStart, _ := A.OwnershipRange()
	colStart, _ := A.ColumnOwnershipRange()
	for sweep := 0; sweep < sweeps; sweep++ {
		ghosts := A.GhostValues(c, x)
		for k := 0; k < n; k++ {
			i := k
			if reverse {
				i = n - 1 - k
			}
			var (
				diag, sum                  float64
				dcols, dvals, ocols, ovals = A.LocalRow(i)
			)
			for m, j := range dcols {
				if j+colStart == i+rowStart {
					diag += dvals[m]
					continue
				}
				sum += dvals[m] * x.Data[j]
			}
			for m, j := range ocols {
				sum += ovals[m] * ghosts[j]
			}
			x.Data[i] = (b.Data[i] - sum) / diag
		}
	}
	dofs.CopyFromPatchLevelVec(c, x, e, ls.ld, false, false)
}
