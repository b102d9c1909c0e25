package fac

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/dofs"
	"github.com/notargets/gofac/linalg"
	"github.com/notargets/gofac/utils"
)

// SolveCoarsestLevel solves A e = r on level ln with the configured coarse
// solver. Failure to converge, or a singular coarse operator, is reported
// as false. Collective.
func (op *Operator) SolveCoarsestLevel(c *utils.Comm, e, r *amr.Variable, ln int) (converged bool) {
	checkVariable(e)
	checkVariable(r)
	ls := op.state(ln)
	op.smoothingRhs(c, ln, e, r)
	switch op.CoarseSolver {
	case CoarseLU:
		converged = op.coarseLU(c, ls, e)
	case CoarseCG:
		converged = op.coarseCG(c, ls, e)
	case CoarseSmoother:
		var (
			x, b = op.levelVecs(c, ls, e)
			r0   = levelResidual(c, ls.A, x, b).Norm2(c)
		)
		switch op.Smoother {
		case RedBlackGaussSeidel:
			op.redBlack(c, ln, e, op.CoarseMaxIterations, false)
		case PatchLocal:
			op.patchLocal(c, ln, e, op.CoarseMaxIterations)
		default:
			op.processorGaussSeidel(c, ln, e, op.CoarseMaxIterations, false)
		}
		dofs.CopyToPatchLevelVec(c, x, e, ls.ld)
		rn := levelResidual(c, ls.A, x, b).Norm2(c)
		converged = rn <= math.Max(op.CoarseRelTol*r0, op.CoarseAbsTol)
	default:
		panic(fmt.Sprintf("unknown coarse solver %d", op.CoarseSolver))
	}
	op.logf(c, "coarse solve on level %d with %s: converged = %v", ln, op.CoarseSolver.Print(), converged)
	return
}

// levelVecs copies e and the smoothing right hand side of the level into
// vectors. Collective.
func (op *Operator) levelVecs(c *utils.Comm, ls *levelState, e *amr.Variable) (x, b *linalg.Vec) {
	x = dofs.NewLevelVec(c, ls.ld)
	b = x.Duplicate()
	dofs.CopyToPatchLevelVec(c, x, e, ls.ld)
	dofs.CopyToPatchLevelVec(c, b, op.rhsVar, ls.ld)
	return
}

// levelResidual returns b - A x. Collective.
func levelResidual(c *utils.Comm, A *linalg.Mat, x, b *linalg.Vec) (r *linalg.Vec) {
	r = b.Duplicate()
	A.Mult(c, x, r)
	r.Aypx(-1, b)
	return
}

func (op *Operator) coarseLU(c *utils.Comm, ls *levelState, e *amr.Variable) bool {
	if ls.coarseLU == nil {
		ls.coarseLU = &mat.LU{}
		ls.coarseLU.Factorize(ls.A.GatherDense(c))
	}
	var (
		_, b   = op.levelVecs(c, ls, e)
		all    = b.Gather(c)
		lo, hi = b.OwnershipRange()
		sol    mat.VecDense
	)
	if len(all) == 0 {
		return true
	}
	rhs := mat.NewVecDense(len(all), all)
	if math.IsInf(ls.coarseLU.Cond(), 1) {
		return false
	}
	if err := ls.coarseLU.SolveVecTo(&sol, false, rhs); err != nil {
		return false
	}
	x := b.Duplicate()
	for i := lo; i < hi; i++ {
		x.Data[i-lo] = sol.AtVec(i)
	}
	dofs.CopyFromPatchLevelVec(c, x, e, ls.ld, false, false)
	return true
}

// coarseCG runs Jacobi preconditioned conjugate gradients from the current
// e. A negative definite operator is solved as -A e = -r.
func (op *Operator) coarseCG(c *utils.Comm, ls *levelState, e *amr.Variable) (converged bool) {
	var (
		A     = ls.A
		x, b  = op.levelVecs(c, ls, e)
		diag  = A.Diagonal()
		sign  = 1.
		apply = func(in, out *linalg.Vec) {
			A.Mult(c, in, out)
			out.Scale(sign)
		}
	)
	if c.AllreduceSum(floats.Sum(diag)) < 0 {
		sign = -1
	}
	b.Scale(sign)
	for i, d := range diag {
		if d == 0 {
			panic(fmt.Sprintf("zero diagonal in row %d of the coarse operator", i))
		}
		diag[i] = sign / d
	}
	var (
		r = b.Duplicate()
		z = b.Duplicate()
		q = b.Duplicate()
	)
	apply(x, r)
	r.Aypx(-1, b)
	var (
		r0  = r.Norm2(c)
		tol = math.Max(op.CoarseRelTol*r0, op.CoarseAbsTol)
	)
	precondition := func() {
		for i := range z.Data {
			z.Data[i] = diag[i] * r.Data[i]
		}
	}
	precondition()
	p := z.Duplicate()
	p.Copy(z)
	rz := r.Dot(c, z)
	converged = r0 <= tol
	for it := 0; it < op.CoarseMaxIterations && !converged; it++ {
		apply(p, q)
		pq := p.Dot(c, q)
		if pq == 0 {
			break
		}
		alpha := rz / pq
		x.Axpy(alpha, p)
		r.Axpy(-alpha, q)
		if r.Norm2(c) <= tol {
			converged = true
			break
		}
		precondition()
		rzNew := r.Dot(c, z)
		p.Aypx(rzNew/rz, z)
		rz = rzNew
	}
	dofs.CopyFromPatchLevelVec(c, x, e, ls.ld, false, false)
	return
}
