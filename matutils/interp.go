package matutils

import (
	"fmt"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/dofs"
	"github.com/notargets/gofac/linalg"
	"github.com/notargets/gofac/utils"
)

type dofRequest struct {
	Patch int
	Axis  int
	Index amr.IntVector
}

type interpRow struct {
	row     int
	patch   *amr.Patch
	box     amr.Box
	weights []float64
	cols    []int
	axis    int
}

// findPatch picks a patch overlapping cell xIdx, or failing that the cell
// grown by one, preferring patches owned by rank.
func findPatch(rank int, level *amr.Level, xIdx amr.IntVector) *amr.Patch {
	box := amr.NewBox(xIdx, xIdx)
	for grow := 0; grow <= 1; grow++ {
		idx := level.Boxes.FindOverlap(box.Grow(amr.Uniform(level.Dim(), grow)))
		if len(idx) == 0 {
			continue
		}
		for _, i := range idx {
			if level.Patches[i].Owner == rank {
				return level.Patches[i]
			}
		}
		return level.Patches[idx[0]]
	}
	panic(fmt.Sprintf("no patch of level %d overlaps cell %v: the point left the domain", level.Number, xIdx))
}

// interpStencilBox is the index box of the sides normal to axis that carry
// weights for the point x in cell xIdx. Along axis the point lies between
// sides xIdx and xIdx+1; across it the stencil shifts toward the half of the
// cell that holds the point.
func interpStencilBox(gg *amr.GridGeometry, level *amr.Level, x []float64, xIdx amr.IntVector, axis, s int) (box amr.Box) {
	var (
		dx  = level.Dx()
		dlo = level.DomainBox().Lo
	)
	for d := 0; d < gg.Dim; d++ {
		if d == axis {
			box.Lo[d], box.Hi[d] = xIdx[d]-s/2+1, xIdx[d]+s/2
			continue
		}
		xCell := gg.XLower[d] + (float64(xIdx[d]-dlo[d])+0.5)*dx[d]
		if x[d] <= xCell {
			box.Lo[d], box.Hi[d] = xIdx[d]-s/2, xIdx[d]+s/2-1
		} else {
			box.Lo[d], box.Hi[d] = xIdx[d]-s/2+1, xIdx[d]+s/2
		}
	}
	return
}

// ConstructPatchLevelSCInterpOp builds the operator taking side centered
// DOFs on the level to the NDIM velocity components at the local points X
// (NDIM coordinates per point). Row NDIM*k+axis of the local block
// interpolates component axis at point k with the tensor product kernel.
// An odd width is rounded up by one. DOF indices on patches owned elsewhere
// are requested from their owners. Collective.
func ConstructPatchLevelSCInterpOp(c *utils.Comm, kernel InterpKernel, width int, X []float64, ld *dofs.LevelDOFs) *linalg.Mat {
	checkDOFs(ld, amr.SideCentered, 1)
	var (
		level = ld.Level
		gg    = level.Geometry()
		dim   = level.Dim()
		dx    = level.Dx()
		dlo   = level.DomainBox().Lo
		s     = StencilWidth(width)
	)
	if len(X)%dim != 0 {
		panic(fmt.Sprintf("%d coordinates do not form %dD points", len(X), dim))
	}
	var (
		nPoints  = len(X) / dim
		mLocal   = dim * nPoints
		rowLo    int
		rows     = make([]interpRow, 0, mLocal)
		requests = make([][]dofRequest, c.Size())
	)
	for r, n := range c.AllgatherInt(mLocal) {
		if r < c.Rank() {
			rowLo += n
		}
	}
	for k := 0; k < nPoints; k++ {
		var (
			x        = X[dim*k : dim*(k+1)]
			xIdx     = gg.CellIndex(x, level.Ratio)
			patch    = findPatch(c.Rank(), level, xIdx)
			ghostBox = patch.Box.Grow(ld.Var.GhostVector(dim))
		)
		for axis := 0; axis < dim; axis++ {
			box := interpStencilBox(gg, level, x, xIdx, axis, s)
			if !ghostBox.SideBox(axis).ContainsBox(box) {
				panic(fmt.Sprintf("interpolation stencil %v does not fit the DOF ghost region of patch %d: width %d needs more ghosts",
					box, patch.Number, s))
			}
			ir := interpRow{row: rowLo + dim*k + axis, patch: patch, box: box, axis: axis}
			box.ForEach(func(i amr.IntVector) {
				w := 1.
				for d := 0; d < dim; d++ {
					shift := 0.5
					if d == axis {
						shift = 0
					}
					xs := gg.XLower[d] + (float64(i[d]-dlo[d])+shift)*dx[d]
					w *= kernel.Eval((x[d] - xs) / dx[d])
				}
				ir.weights = append(ir.weights, w)
				if patch.Owner != c.Rank() {
					requests[patch.Owner] = append(requests[patch.Owner], dofRequest{Patch: patch.Number, Axis: axis, Index: i})
				}
			})
			rows = append(rows, ir)
		}
	}
	// Answer the requests of the other ranks, then collect ours.
	incoming := utils.AllToAll(c, requests)
	answers := make([][]int, c.Size())
	for r, reqs := range incoming {
		for _, req := range reqs {
			answers[r] = append(answers[r], ld.Data(level.Patches[req.Patch]).Arrays[req.Axis].Get(req.Index, 0))
		}
	}
	replies := utils.AllToAll(c, answers)
	cursor := make([]int, c.Size())
	for n := range rows {
		ir := &rows[n]
		owner := ir.patch.Owner
		if owner == c.Rank() {
			dof := ld.Data(ir.patch).Arrays[ir.axis]
			ir.box.ForEach(func(i amr.IntVector) { ir.cols = append(ir.cols, dof.Get(i, 0)) })
			continue
		}
		nw := len(ir.weights)
		ir.cols = replies[owner][cursor[owner] : cursor[owner]+nw]
		cursor[owner] += nw
	}
	return assemble(c, mLocal, ld.Counts[c.Rank()], rowLo, ld.Layout, linalg.InsertValues,
		func(emit func(row int, cols []int, vals []float64)) {
			for _, ir := range rows {
				emit(ir.row, ir.cols, ir.weights)
			}
		})
}
