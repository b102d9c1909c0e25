package matutils

import (
	"fmt"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/dofs"
	"github.com/notargets/gofac/linalg"
	"github.com/notargets/gofac/poisson"
	"github.com/notargets/gofac/utils"
)

// AlignmentTolerance decides when the off diagonal entries of a tensor D are
// treated as zero.
const AlignmentTolerance = 1.e-12

// rowVisitor calls emit once per owned row. It is run twice, first to count
// the non-zeros of every row and then to insert them, so it must emit the
// same columns both times.
type rowVisitor func(emit func(row int, cols []int, vals []float64))

// countColumns counts the distinct non-negative columns of a row inside and
// outside [lo, hi).
func countColumns(cols []int, lo, hi int) (d, o int) {
	seen := make(map[int]struct{}, len(cols))
	for _, j := range cols {
		if j < 0 {
			continue
		}
		if _, ok := seen[j]; ok {
			continue
		}
		seen[j] = struct{}{}
		if j >= lo && j < hi {
			d++
		} else {
			o++
		}
	}
	return
}

func clamp(v, lo, hi int) int { return max(lo, min(hi, v)) }

// assemble preallocates from a counting pass, inserts in a second pass and
// assembles. Collective.
func assemble(c *utils.Comm, mLocal, nLocal int, rowLo int, colLayout *utils.PartitionMap,
	mode linalg.InsertMode, visit rowVisitor) (m *linalg.Mat) {
	var (
		dnnz, onnz = make([]int, mLocal), make([]int, mLocal)
		lo, hi     = colLayout.GetBucketRange(c.Rank())
		nTotal     = colLayout.MaxIndex
	)
	visit(func(row int, cols []int, _ []float64) {
		d, o := countColumns(cols, lo, hi)
		dnnz[row-rowLo] = clamp(d, 0, nLocal)
		onnz[row-rowLo] = clamp(o, 0, nTotal-nLocal)
	})
	m = linalg.NewMatAIJ(c, mLocal, nLocal, dnnz, onnz)
	visit(func(row int, cols []int, vals []float64) {
		if err := m.SetValues(row, cols, vals, mode); err != nil {
			panic(fmt.Errorf("inserting row %d: %w", row, err))
		}
	})
	m.AssemblyBegin(c)
	m.AssemblyEnd(c)
	return
}

// stencilRow converts the row of p to global columns, keeping the diagonal
// and every non-zero coupling.
func stencilRow(ps *poisson.PatchStencil, dof *amr.ArrayData[int], depth int, p amr.IntVector,
	cols []int, vals []float64) ([]int, []float64) {
	for k, coef := range ps.Row(p) {
		if k != 0 && coef == 0 {
			continue
		}
		cols = append(cols, dof.Get(p.Add(ps.Offsets[k]), depth))
		vals = append(vals, coef)
	}
	return cols, vals
}

func checkDOFs(ld *dofs.LevelDOFs, centering amr.Centering, depth int) {
	ld.CheckCurrent()
	if ld.Var.Centering != centering || ld.Var.Depth != depth {
		panic(fmt.Sprintf("DOF variable %q is %s centered with depth %d, need %s centered with depth %d",
			ld.Var.Name, ld.Var.Centering, ld.Var.Depth, centering, depth))
	}
	if ld.Var.Ghost < 1 {
		panic(fmt.Sprintf("DOF variable %q needs at least one ghost cell", ld.Var.Name))
	}
}

// NewLevelStencils builds the cell centered stencils of the local patches.
// Collective, since alignment is decided across the level.
func NewLevelStencils(c *utils.Comm, level *amr.Level, spec poisson.Specifications, bc poisson.RobinBcCoefs,
	t float64) (stencils map[int]*poisson.PatchStencil, aligned bool) {
	aligned = spec.IsGridAligned(c, level, AlignmentTolerance)
	stencils = make(map[int]*poisson.PatchStencil)
	for _, p := range level.LocalPatches(c.Rank()) {
		stencils[p.Number] = poisson.NewPatchStencil(p, spec, bc, t, aligned)
	}
	return
}

// ConstructPatchLevelCCLaplaceOp assembles C*I + div(D grad) on one level.
// Coarse-fine ghosts are taken as homogeneous. Collective.
func ConstructPatchLevelCCLaplaceOp(c *utils.Comm, spec poisson.Specifications, bc poisson.RobinBcCoefs,
	ld *dofs.LevelDOFs, t float64) *linalg.Mat {
	stencils, _ := NewLevelStencils(c, ld.Level, spec, bc, t)
	return AssembleCCOp(c, ld, stencils)
}

// AssembleCCOp assembles precomputed cell centered stencils. Collective.
func AssembleCCOp(c *utils.Comm, ld *dofs.LevelDOFs, stencils map[int]*poisson.PatchStencil) *linalg.Mat {
	checkDOFs(ld, amr.CellCentered, 1)
	var (
		nLocal = ld.Counts[c.Rank()]
		lo, _  = ld.OwnershipRange(c.Rank())
	)
	return assemble(c, nLocal, nLocal, lo, ld.Layout, linalg.AddValues,
		func(emit func(row int, cols []int, vals []float64)) {
			var (
				cols []int
				vals []float64
			)
			for _, p := range ld.Level.LocalPatches(c.Rank()) {
				var (
					ps  = stencils[p.Number]
					dof = ld.Data(p).Arrays[0]
				)
				p.Box.ForEach(func(q amr.IntVector) {
					cols, vals = stencilRow(ps, dof, 0, q, cols[:0], vals[:0])
					emit(dof.Get(q, 0), cols, vals)
				})
			}
		})
}

// ConstructPatchLevelCCComplexLaplaceOp assembles the complex operator with
// unknowns (u_r, u_i) at depths 0 and 1 of each cell. The real and the
// imaginary row of a cell are inserted separately. Collective.
func ConstructPatchLevelCCComplexLaplaceOp(c *utils.Comm, specR, specI poisson.Specifications,
	bcR, bcI poisson.RobinBcCoefs, ld *dofs.LevelDOFs, t float64) *linalg.Mat {
	checkDOFs(ld, amr.CellCentered, 2)
	var (
		level   = ld.Level
		aligned = specR.IsGridAligned(c, level, AlignmentTolerance)
	)
	aligned = specI.IsGridAligned(c, level, AlignmentTolerance) && aligned
	stencils := make(map[int]*poisson.ComplexPatchStencil)
	for _, p := range level.LocalPatches(c.Rank()) {
		stencils[p.Number] = poisson.NewComplexPatchStencil(p, specR, specI, bcR, bcI, t, aligned)
	}
	var (
		nLocal = ld.Counts[c.Rank()]
		lo, _  = ld.OwnershipRange(c.Rank())
	)
	return assemble(c, nLocal, nLocal, lo, ld.Layout, linalg.AddValues,
		func(emit func(row int, cols []int, vals []float64)) {
			var (
				cols []int
				vals []float64
			)
			for _, p := range level.LocalPatches(c.Rank()) {
				var (
					cps = stencils[p.Number]
					dof = ld.Data(p).Arrays[0]
				)
				p.Box.ForEach(func(q amr.IntVector) {
					cols, vals = stencilRow(cps.RR, dof, 0, q, cols[:0], vals[:0])
					cols, vals = stencilRow(cps.RI, dof, 1, q, cols, vals)
					emit(dof.Get(q, 0), cols, vals)
					cols, vals = stencilRow(cps.IR, dof, 0, q, cols[:0], vals[:0])
					cols, vals = stencilRow(cps.II, dof, 1, q, cols, vals)
					emit(dof.Get(q, 1), cols, vals)
				})
			}
		})
}

// ConstructPatchLevelSCLaplaceOp assembles C*I + D*Laplacian for side
// centered unknowns. Each shared side is inserted by the patch that numbers
// it. Collective.
func ConstructPatchLevelSCLaplaceOp(c *utils.Comm, C, D float64, bc poisson.RobinBcCoefs,
	ld *dofs.LevelDOFs, t float64) *linalg.Mat {
	checkDOFs(ld, amr.SideCentered, 1)
	var (
		level    = ld.Level
		stencils = make(map[int][]*poisson.PatchStencil)
		nLocal   = ld.Counts[c.Rank()]
		lo, _    = ld.OwnershipRange(c.Rank())
	)
	for _, p := range level.LocalPatches(c.Rank()) {
		stencils[p.Number] = poisson.NewSideStencils(p, C, D, bc, t)
	}
	return assemble(c, nLocal, nLocal, lo, ld.Layout, linalg.AddValues,
		func(emit func(row int, cols []int, vals []float64)) {
			var (
				cols []int
				vals []float64
			)
			for _, p := range level.LocalPatches(c.Rank()) {
				for axis, ps := range stencils[p.Number] {
					dof := ld.Data(p).Arrays[axis]
					ps.Box.ForEach(func(s amr.IntVector) {
						if !dofs.OwnsSide(p, s, axis) {
							return
						}
						cols, vals = stencilRow(ps, dof, 0, s, cols[:0], vals[:0])
						emit(dof.Get(s, 0), cols, vals)
					})
				}
			}
		})
}
