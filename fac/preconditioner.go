package fac

import (
	"fmt"
	"math"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/utils"
)

// Preconditioner runs multiplicative V-cycles of an Operator over the level
// range it was initialized for.
type Preconditioner struct {
	Op                     *Operator
	ResidualHistory        []float64
	Cycles                 int
	Converged              bool
	hierarchy              *amr.Hierarchy
	resVar, errVar, tmpVar *amr.Variable
	coarseFailures         int
}

func NewPreconditioner(op *Operator) *Preconditioner {
	return &Preconditioner{Op: op}
}

// InitializeSolverState sets up the operator and the cycle's scratch data.
// Collective.
func (pc *Preconditioner) InitializeSolverState(c *utils.Comm, h *amr.Hierarchy, coarsest, finest int) {
	pc.Op.InitializeOperatorState(c, h, coarsest, finest)
	pc.hierarchy = h
	pc.resVar = h.Vars.Register("fac::residual", amr.CellCentered, 1, 1, false)
	pc.errVar = h.Vars.Register("fac::error", amr.CellCentered, 1, 1, false)
	pc.tmpVar = h.Vars.Register("fac::residual_tmp", amr.CellCentered, 1, 1, false)
	for ln := coarsest; ln <= finest; ln++ {
		h.Level(ln).Allocate(c.Rank(), pc.resVar, pc.errVar, pc.tmpVar)
	}
}

func (pc *Preconditioner) DeallocateSolverState(c *utils.Comm) {
	if !pc.Op.IsInitialized() {
		return
	}
	coarsest, finest := pc.Op.LevelRange()
	if pc.hierarchy.NumLevels() > finest {
		for ln := coarsest; ln <= finest; ln++ {
			pc.hierarchy.Level(ln).Deallocate(c.Rank(), pc.resVar, pc.errVar, pc.tmpVar)
		}
	}
	pc.Op.DeallocateOperatorState(c)
}

// SolveSystem improves u towards the solution of L u = f with V-cycles until
// the composite residual drops below the relative or absolute tolerance or
// MaxCycles cycles have run. Collective.
func (pc *Preconditioner) SolveSystem(c *utils.Comm, u, f *amr.Variable) bool {
	var (
		op               = pc.Op
		coarsest, finest = op.LevelRange()
	)
	if !op.IsInitialized() {
		panic("SolveSystem called before InitializeSolverState")
	}
	checkVariable(u)
	checkVariable(f)
	pc.ResidualHistory, pc.Cycles, pc.coarseFailures = nil, 0, 0
	rn := pc.residual(c, u, f)
	tol := math.Max(op.Config.RelTol*rn, op.Config.AbsTol)
	op.logf(c, "cycle %3d: residual %12.6e", 0, rn)
	for pc.Cycles < op.Config.MaxCycles && rn > tol {
		for ln := coarsest; ln <= finest; ln++ {
			setZero(c, pc.hierarchy.Level(ln), pc.errVar)
		}
		op.SetHomogeneousBc(true)
		pc.cycle(c, finest)
		for ln := coarsest; ln <= finest; ln++ {
			for _, p := range pc.hierarchy.Level(ln).LocalPatches(c.Rank()) {
				var (
					uu = amr.FloatData(p, u).Arrays[0]
					e  = amr.FloatData(p, pc.errVar).Arrays[0]
				)
				p.Box.ForEach(func(q amr.IntVector) {
					uu.Set(q, 0, uu.Get(q, 0)+e.Get(q, 0))
				})
			}
		}
		pc.Cycles++
		rn = pc.residual(c, u, f)
		op.logf(c, "cycle %3d: residual %12.6e", pc.Cycles, rn)
	}
	pc.Converged = rn <= tol
	if pc.coarseFailures > 0 {
		op.logf(c, "coarse solver failed to converge %d times", pc.coarseFailures)
	}
	return pc.Converged
}

// residual recomputes the composite residual of the full problem and records
// its norm.
func (pc *Preconditioner) residual(c *utils.Comm, u, f *amr.Variable) (rn float64) {
	var (
		op               = pc.Op
		coarsest, finest = op.LevelRange()
	)
	op.SetHomogeneousBc(false)
	op.ComputeResidual(c, pc.resVar, u, f, coarsest, finest)
	rn = op.ComputeResidualNorm(c, pc.resVar, coarsest, finest)
	if utils.IsNan(rn) {
		panic(fmt.Sprintf("composite residual is NaN after %d cycles", pc.Cycles))
	}
	pc.ResidualHistory = append(pc.ResidualHistory, rn)
	return
}

// cycle is one V-cycle for the error on levels ln and coarser. The
// residual of the error equation on level ln-1 replaces the stored one
// before recursing.
func (pc *Preconditioner) cycle(c *utils.Comm, ln int) {
	var (
		op          = pc.Op
		coarsest, _ = op.LevelRange()
		e, r        = pc.errVar, pc.resVar
	)
	if ln == coarsest {
		if !op.SolveCoarsestLevel(c, e, r, ln) {
			pc.coarseFailures++
		}
		return
	}
	op.SmoothError(c, e, r, ln, op.Config.PreSweeps, true, false)
	op.ComputeResidual(c, pc.tmpVar, e, r, ln-1, ln)
	for _, p := range pc.hierarchy.Level(ln - 1).LocalPatches(c.Rank()) {
		amr.FloatData(p, r).Arrays[0].CopyBox(amr.FloatData(p, pc.tmpVar).Arrays[0], p.Box)
	}
	pc.cycle(c, ln-1)
	op.ProlongErrorAndCorrect(c, e, ln)
	op.SmoothError(c, e, r, ln, op.Config.PostSweeps, false, true)
}

// PrintHistory writes the residual history and the average reduction
// factor per cycle.
func (pc *Preconditioner) PrintHistory() {
	for i, rn := range pc.ResidualHistory {
		fmt.Printf("%4d %12.6e\n", i, rn)
	}
	if n := len(pc.ResidualHistory); n > 1 && pc.ResidualHistory[0] > 0 {
		rate := math.Pow(pc.ResidualHistory[n-1]/pc.ResidualHistory[0], 1/float64(n-1))
		fmt.Printf("Average reduction per cycle = %8.5f, converged = %v\n", rate, pc.Converged)
	}
}
