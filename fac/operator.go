package fac

import (
	"fmt"
	"log"
	"math"

	"github.com/exascience/pargo/parallel"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/dofs"
	"github.com/notargets/gofac/linalg"
	"github.com/notargets/gofac/matutils"
	"github.com/notargets/gofac/poisson"
	"github.com/notargets/gofac/utils"
	"github.com/notargets/gofac/xfer"
)

// levelState is everything the operator precomputes for one level.
type levelState struct {
	level    *amr.Level
	ld       *dofs.LevelDOFs
	stencils map[int]*poisson.PatchStencil
	aligned  bool
	A        *linalg.Mat
	patchLU  map[int]*mat.LU
	coarseLU *mat.LU
	fills    map[int]*xfer.Schedule
	coarse   map[int]*xfer.CoarseDataSchedule
	restrict map[int]*xfer.CoarsenSchedule
	faces    map[fluxKey]*poisson.FaceStencil
}

// Operator carries out the level operations of a FAC cycle for
// C*u + div(D grad u) = f on cell centered data of depth one. Vectors are
// variables with at least one ghost cell allocated on every level of the
// range.
type Operator struct {
	Config
	Spec poisson.Specifications
	Bc   poisson.RobinBcCoefs
	Time float64

	hierarchy        *amr.Hierarchy
	generation       uuid.UUID
	coarsest, finest int
	homogeneous      bool
	dofVar, rhsVar   *amr.Variable
	savedVar         *amr.Variable
	levels           []*levelState
	bdry             *poisson.RobinPhysBdryOp
}

func NewOperator(cfg Config, spec poisson.Specifications, bc poisson.RobinBcCoefs) *Operator {
	return &Operator{Config: cfg, Spec: spec, Bc: bc, coarsest: -1, finest: -1}
}

// SetHomogeneousBc drops the boundary values g from residuals, as needed for
// error equations.
func (op *Operator) SetHomogeneousBc(homogeneous bool) { op.homogeneous = homogeneous }

func (op *Operator) IsInitialized() bool { return op.levels != nil }

func (op *Operator) LevelRange() (coarsest, finest int) { return op.coarsest, op.finest }

func (op *Operator) LevelMatrix(ln int) *linalg.Mat { return op.state(ln).A }

func (op *Operator) LevelDOFs(ln int) *dofs.LevelDOFs { return op.state(ln).ld }

// IsGridAligned reports whether level ln uses the star stencil.
func (op *Operator) IsGridAligned(ln int) bool { return op.state(ln).aligned }

func (op *Operator) state(ln int) *levelState {
	if !op.IsInitialized() {
		panic("operator state is not initialized")
	}
	if op.hierarchy.Generation() != op.generation {
		panic("the hierarchy changed since the operator state was initialized")
	}
	if ln < op.coarsest || ln > op.finest {
		panic(fmt.Sprintf("level %d is outside the operator range [%d, %d]", ln, op.coarsest, op.finest))
	}
	return op.levels[ln]
}

func (op *Operator) logf(c *utils.Comm, format string, args ...any) {
	if op.Verbose && c.Rank() == 0 {
		log.Printf(format, args...)
	}
}

// InitializeOperatorState numbers the DOFs, builds the patch stencils and
// assembles the level matrices of levels coarsest through finest, and
// factors whatever the configured smoother and coarse solver need.
// Collective.
func (op *Operator) InitializeOperatorState(c *utils.Comm, h *amr.Hierarchy, coarsest, finest int) {
	if coarsest < 0 || finest < coarsest || finest >= h.NumLevels() {
		panic(fmt.Sprintf("invalid level range [%d, %d] for a hierarchy of %d levels", coarsest, finest, h.NumLevels()))
	}
	if op.IsInitialized() {
		op.DeallocateOperatorState(c)
	}
	op.hierarchy, op.generation = h, h.Generation()
	op.coarsest, op.finest = coarsest, finest
	op.dofVar = h.Vars.Register("fac::dof", amr.CellCentered, 1, 1, true)
	op.rhsVar = h.Vars.Register("fac::rhs", amr.CellCentered, 1, 1, false)
	op.savedVar = h.Vars.Register("fac::covered", amr.CellCentered, 1, 0, false)
	op.bdry = poisson.NewRobinPhysBdryOp(op.Time, true, op.Bc)
	op.levels = make([]*levelState, finest+1)
	for ln := coarsest; ln <= finest; ln++ {
		level := h.Level(ln)
		level.Allocate(c.Rank(), op.dofVar, op.rhsVar, op.savedVar)
		ls := &levelState{
			level:    level,
			ld:       dofs.ConstructPatchLevelDOFIndices(c, level, op.dofVar, 1),
			fills:    make(map[int]*xfer.Schedule),
			coarse:   make(map[int]*xfer.CoarseDataSchedule),
			restrict: make(map[int]*xfer.CoarsenSchedule),
			faces:    make(map[fluxKey]*poisson.FaceStencil),
		}
		ls.stencils, ls.aligned = matutils.NewLevelStencils(c, level, op.Spec, op.Bc, op.Time)
		ls.A = matutils.AssembleCCOp(c, ls.ld, ls.stencils)
		if op.Smoother == PatchLocal {
			ls.factorPatches()
		}
		if ln == coarsest && op.CoarseSolver == CoarseLU {
			ls.coarseLU = &mat.LU{}
			ls.coarseLU.Factorize(ls.A.GatherDense(c))
		}
		op.levels[ln] = ls
		op.logf(c, "level %d: %d patches, %d DOFs, aligned = %v", ln, len(level.Patches), ls.ld.Total(), ls.aligned)
	}
}

// DeallocateOperatorState drops every precomputed object. The operator can
// be initialized again afterwards.
func (op *Operator) DeallocateOperatorState(c *utils.Comm) {
	if !op.IsInitialized() {
		return
	}
	if op.hierarchy.Generation() == op.generation {
		for ln := op.coarsest; ln <= op.finest; ln++ {
			op.levels[ln].level.Deallocate(c.Rank(), op.dofVar, op.rhsVar, op.savedVar)
		}
	}
	op.levels = nil
	op.coarsest, op.finest = -1, -1
}

func checkVariable(v *amr.Variable) {
	if v.Centering != amr.CellCentered || v.Depth != 1 || v.IsInt || v.Ghost < 1 {
		panic(fmt.Sprintf("variable %q must be cell centered float data of depth 1 with ghost cells", v.Name))
	}
}

func (ls *levelState) fill(v *amr.Variable) *xfer.Schedule {
	s, ok := ls.fills[v.ID]
	if !ok {
		s = xfer.NewSchedule(ls.level, v, v, xfer.GhostFillPattern{})
		ls.fills[v.ID] = s
	}
	return s
}

// forEachPatch runs f over the local patches of the level in parallel.
func (ls *levelState) forEachPatch(c *utils.Comm, f func(p *amr.Patch)) {
	patches := ls.level.LocalPatches(c.Rank())
	parallel.Range(0, len(patches), 0, func(low, high int) {
		for i := low; i < high; i++ {
			f(patches[i])
		}
	})
}

// coarseValues gathers v from the next coarser level around every local
// patch of level ln; nil on the coarsest level of the range, where
// coarse-fine values are zero. Collective.
func (op *Operator) coarseValues(c *utils.Comm, ln int, v *amr.Variable) map[int]*amr.FieldData[float64] {
	if ln == op.coarsest {
		return nil
	}
	ls := op.levels[ln]
	s, ok := ls.coarse[v.ID]
	if !ok {
		s = xfer.NewCoarseDataSchedule(op.levels[ln-1].level, ls.level, v, 1, op.bdry)
		ls.coarse[v.ID] = s
	}
	return s.Gather(c)
}

// subtractCoarseFine removes the coarse-fine couplings of the rows of p
// from dst.
func subtractCoarseFine(ps *poisson.PatchStencil, dst *amr.ArrayData[float64], coarse *amr.FieldData[float64]) {
	if coarse == nil {
		return
	}
	for _, t := range ps.CoarseFine {
		dst.Set(t.Cell, 0, dst.Get(t.Cell, 0)-t.Coef*coarse.Arrays[0].Get(t.Coarse, 0))
	}
}

// levelResidual sets res = rhs - A sol on level ln, including the coarse-fine
// couplings to sol on level ln-1 and, unless homogeneous, the boundary
// values. The gathered coarse values are returned for refluxing. Collective.
func (op *Operator) levelResidual(c *utils.Comm, ln int, res, sol, rhs *amr.Variable) map[int]*amr.FieldData[float64] {
	ls := op.levels[ln]
	ls.fill(sol).Fill(c)
	coarse := op.coarseValues(c, ln, sol)
	ls.forEachPatch(c, func(p *amr.Patch) {
		var (
			ps = ls.stencils[p.Number]
			u  = amr.FloatData(p, sol).Arrays[0]
			f  = amr.FloatData(p, rhs).Arrays[0]
			r  = amr.FloatData(p, res).Arrays[0]
		)
		r.CopyBox(f, p.Box)
		if !op.homogeneous {
			poisson.AdjustBoundaryRhsEntries(ps, r, 0, op.Time)
		}
		p.Box.ForEach(func(q amr.IntVector) {
			r.Set(q, 0, r.Get(q, 0)-ps.Apply(u, q, 0))
		})
		subtractCoarseFine(ps, r, coarse[p.Number])
	})
	return coarse
}

type fluxMsg struct {
	Patch       int
	K           amr.IntVector
	Axis, Sigma int
	Flux        float64
}

type fluxKey struct {
	patch       int
	K           amr.IntVector
	axis, sigma int
}

// faceStencil is the coarse side of a coarse-fine face.
func (ls *levelState) faceStencil(key fluxKey) *poisson.FaceStencil {
	fs, ok := ls.faces[key]
	if !ok {
		fs = ls.stencils[key.patch].FaceStencil(key.K, key.axis, (key.sigma+1)/2)
		ls.faces[key] = fs
	}
	return fs
}

// reflux replaces, in the residual of the uncovered cells of level ln next to
// level ln+1, the coarse face flux by the average of the fine face fluxes,
// cross derivative terms included. fineCoarse holds the level ln values
// gathered for level ln+1 and coarseCoarse the level ln-1 values gathered
// for level ln. Collective.
func (op *Operator) reflux(c *utils.Comm, ln int, res, sol *amr.Variable, fineCoarse, coarseCoarse map[int]*amr.FieldData[float64]) {
	var (
		coarse = op.levels[ln]
		fine   = op.levels[ln+1]
		gg     = coarse.level.Geometry()
		send   = make([][]fluxMsg, c.Size())
	)
	for _, fp := range fine.level.LocalPatches(c.Rank()) {
		var (
			ps = fine.stencils[fp.Number]
			u  = amr.FloatData(fp, sol).Arrays[0]
			U  = fineCoarse[fp.Number].Arrays[0]
		)
		for _, f := range ps.Faces {
			cp := coarse.level.PatchContaining(f.Coarse)
			if cp == nil {
				panic(fmt.Sprintf("coarse cell %v of a coarse-fine face is not on level %d", f.Coarse, ln))
			}
			send[cp.Owner] = append(send[cp.Owner], fluxMsg{
				Patch: cp.Number,
				K:     gg.Wrap(f.Coarse, coarse.level.Ratio),
				Axis:  f.Axis,
				Sigma: 1 - 2*f.Side,
				Flux:  f.Apply(u, U, op.homogeneous),
			})
		}
	}
	var (
		keys   []fluxKey
		sums   = make(map[fluxKey]float64)
		counts = make(map[fluxKey]int)
	)
	for _, msgs := range utils.AllToAll(c, send) {
		for _, m := range msgs {
			key := fluxKey{patch: m.Patch, K: m.K, axis: m.Axis, sigma: m.Sigma}
			if _, ok := counts[key]; !ok {
				keys = append(keys, key)
			}
			sums[key] += m.Flux
			counts[key]++
		}
	}
	for _, key := range keys {
		var (
			cp    = coarse.level.Patches[key.patch]
			u     = amr.FloatData(cp, sol).Arrays[0]
			r     = amr.FloatData(cp, res).Arrays[0]
			ratio = fine.level.Dx()[key.axis] / coarse.level.Dx()[key.axis]
			U     *amr.ArrayData[float64]
		)
		if cc := coarseCoarse[key.patch]; cc != nil {
			U = cc.Arrays[0]
		}
		old := coarse.faceStencil(key).Apply(u, U, op.homogeneous)
		r.Set(key.K, 0, r.Get(key.K, 0)+old+ratio*sums[key]/float64(counts[key]))
	}
}

func (op *Operator) restrictSchedule(ln int, v *amr.Variable) *xfer.CoarsenSchedule {
	ls := op.levels[ln]
	s, ok := ls.restrict[v.ID]
	if !ok {
		s = xfer.NewCoarsenSchedule(op.levels[ln+1].level, ls.level, v, v)
		ls.restrict[v.ID] = s
	}
	return s
}

// ComputeResidual sets the composite residual res = rhs - L sol on levels
// coarsest through finest. Where a finer level covers a cell, its values take
// precedence: sol is restricted onto the covered cells before the coarser
// level's residual is formed, the fluxes across coarse-fine faces come from
// the fine side and the restricted fine residual replaces the coarse one.
// sol is left as it was. Collective.
func (op *Operator) ComputeResidual(c *utils.Comm, res, sol, rhs *amr.Variable, coarsest, finest int) {
	for _, v := range []*amr.Variable{res, sol, rhs} {
		checkVariable(v)
	}
	op.state(coarsest)
	op.state(finest)
	for ln := coarsest; ln < finest; ln++ {
		op.levels[ln].copyInterior(c, op.savedVar, sol)
	}
	var fineCoarse map[int]*amr.FieldData[float64]
	for ln := finest; ln >= coarsest; ln-- {
		if ln < finest {
			op.restrictSchedule(ln, sol).Coarsen(c)
		}
		coarse := op.levelResidual(c, ln, res, sol, rhs)
		if ln < finest {
			op.reflux(c, ln, res, sol, fineCoarse, coarse)
			op.restrictSchedule(ln, res).Coarsen(c)
		}
		fineCoarse = coarse
	}
	for ln := coarsest; ln < finest; ln++ {
		op.levels[ln].copyInterior(c, sol, op.savedVar)
	}
}

// copyInterior copies src to dst on the local patch boxes.
func (ls *levelState) copyInterior(c *utils.Comm, dst, src *amr.Variable) {
	ls.forEachPatch(c, func(p *amr.Patch) {
		amr.FloatData(p, dst).Arrays[0].CopyBox(amr.FloatData(p, src).Arrays[0], p.Box)
	})
}

// ComputeResidualNorm is the L2 norm of v over the cells of levels coarsest
// through finest that no finer level of the range covers. Collective.
func (op *Operator) ComputeResidualNorm(c *utils.Comm, v *amr.Variable, coarsest, finest int) float64 {
	var sum float64
	for ln := coarsest; ln <= finest; ln++ {
		var (
			ls      = op.state(ln)
			patches = ls.level.LocalPatches(c.Rank())
			finer   *amr.Level
		)
		if ln < finest {
			finer = ls.level.Finer()
		}
		sum += parallel.RangeReduceFloat64(0, len(patches), 0, func(low, high int) (s float64) {
			for _, p := range patches[low:high] {
				arr := amr.FloatData(p, v).Arrays[0]
				p.Box.ForEach(func(q amr.IntVector) {
					if finer != nil && finer.Boxes.Covers(q.Mul(finer.RatioToCoarser)) {
						return
					}
					val := arr.Get(q, 0)
					s += val * val
				})
			}
			return
		}, func(a, b float64) float64 { return a + b })
	}
	return math.Sqrt(c.AllreduceSum(sum))
}

// ProlongErrorAndCorrect adds the linear interpolant of e on level ln-1 to
// e on level ln. Collective.
func (op *Operator) ProlongErrorAndCorrect(c *utils.Comm, e *amr.Variable, ln int) {
	checkVariable(e)
	ls := op.state(ln)
	if ln == op.coarsest {
		panic(fmt.Sprintf("level %d has no coarser level in the operator range", ln))
	}
	coarse := op.coarseValues(c, ln, e)
	ls.forEachPatch(c, func(p *amr.Patch) {
		amr.RefineLinear(coarse[p.Number].Arrays[0], amr.FloatData(p, e).Arrays[0], p.Box,
			ls.level.RatioToCoarser, ls.level.Dim(), true)
	})
}

func setZero(c *utils.Comm, level *amr.Level, v *amr.Variable) {
	for _, p := range level.LocalPatches(c.Rank()) {
		amr.FloatData(p, v).Fill(0)
	}
}
