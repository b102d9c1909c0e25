package matutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/dofs"
	"github.com/notargets/gofac/linalg"
	"github.com/notargets/gofac/poisson"
	"github.com/notargets/gofac/utils"
)

func tiledLevel(np int, n, tile []int, periodic ...bool) (*amr.Hierarchy, *amr.Level) {
	var (
		dim    = len(n)
		xl, xu = make([]float64, dim), make([]float64, dim)
		maxT   = amr.IntVector{1, 1, 1}
	)
	for d := 0; d < dim; d++ {
		xu[d], maxT[d] = 1, tile[d]
	}
	gg := amr.NewGridGeometry(dim, xl, xu, n, periodic...)
	h := amr.NewHierarchy(gg, np)
	return h, h.AddLevel(amr.TileBox(gg.Domain, maxT), 1, amr.BlockLoadBalancer{})
}

func checkPreallocation(t *testing.T, m *linalg.Mat) {
	for i := 0; i < m.LocalRows(); i++ {
		d, o := m.RowNNZ(i)
		pd, po := m.Preallocation(i)
		assert.Equal(t, pd, d, "local row %d", i)
		assert.Equal(t, po, o, "local row %d", i)
	}
}

func TestCCLaplaceOp(t *testing.T) {
	np := 3
	h, lvl := tiledLevel(np, []int{8, 8}, []int{4, 4})
	// A refined level exercises the coarse-fine eliminated stencils
	fine := h.AddLevel([]amr.Box{amr.NewBox(amr.IntVector{4, 4, 0}, amr.IntVector{11, 11, 0}),
		amr.NewBox(amr.IntVector{4, 12, 0}, amr.IntVector{7, 13, 0})}, 2, amr.RoundRobinLoadBalancer{})
	v := h.Vars.Register("dof", amr.CellCentered, 1, 1, true)
	var (
		spec  = poisson.NewPoissonSpecifications(0, 1)
		dense = make(map[int]float64)
	)
	for _, level := range []*amr.Level{lvl, fine} {
		utils.NewWorld(np).Run(func(c *utils.Comm) {
			var (
				ld = dofs.ConstructPatchLevelDOFIndices(c, level, v, 1)
				m  = ConstructPatchLevelCCLaplaceOp(c, spec, poisson.DirichletBc{}, ld, 0)
				dx = level.Dx()[0]
			)
			checkPreallocation(t, m)
			for i := 0; i < m.LocalRows(); i++ {
				cols, vals := m.GlobalRow(i)
				assert.True(t, len(cols) <= 5, "row %d has %d entries", i, len(cols))
				if len(cols) == 5 {
					var sum float64
					for _, val := range vals {
						sum += val
					}
					assert.InDelta(t, 0, sum*dx*dx, 1.e-12, "interior row %d", i)
				}
			}
			A := m.GatherDense(c)
			n, _ := A.Dims()
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					assert.InDelta(t, A.At(i, j), A.At(j, i), 1.e-9)
				}
			}
			if c.Rank() == 0 && level == lvl {
				dense[0] = A.At(0, 0)
			}
		})
	}
	// Corner cell of the coarsest level with homogeneous Dirichlet faces
	assert.InDelta(t, -6*64., dense[0], 1.e-9)
}

func TestCCComplexLaplaceOp(t *testing.T) {
	np := 2
	h, lvl := tiledLevel(np, []int{6, 4}, []int{3, 2})
	v := h.Vars.Register("cdof", amr.CellCentered, 2, 1, true)
	var (
		specR = poisson.NewPoissonSpecifications(1, 1)
		specI = poisson.NewPoissonSpecifications(2, 0.5)
	)
	utils.NewWorld(np).Run(func(c *utils.Comm) {
		var (
			ld = dofs.ConstructPatchLevelDOFIndices(c, lvl, v, 2)
			m  = ConstructPatchLevelCCComplexLaplaceOp(c, specR, specI, poisson.DirichletBc{}, poisson.DirichletBc{}, ld, 0)
			A  = m.GatherDense(c)
		)
		checkPreallocation(t, m)
		n, _ := A.Dims()
		assert.Equal(t, 2*6*4, n)
		// Depth is innermost, so even indices are real parts
		for i := 0; i < n; i += 2 {
			for j := 0; j < n; j += 2 {
				assert.InDelta(t, A.At(i, j), A.At(i+1, j+1), 1.e-9, "RR and II at %d %d", i, j)
				assert.InDelta(t, A.At(i, j+1), -A.At(i+1, j), 1.e-9, "RI and IR at %d %d", i, j)
			}
		}
		// The imaginary part of an interior cell couples to its real part
		// through C_i and D_i
		var (
			dx   = lvl.Dx()
			want = 2 - 0.5*(2/(dx[0]*dx[0])+2/(dx[1]*dx[1]))
		)
		for i := 0; i < n; i += 2 {
			var nnz int
			for j := 0; j < n; j++ {
				if A.At(i, j) != 0 {
					nnz++
				}
			}
			if nnz == 10 {
				assert.InDelta(t, want, A.At(i+1, i), 1.e-9, "row %d", i)
			}
		}
		for i := 0; i < n; i++ {
			assert.NotEqual(t, 0., A.At(i, i))
		}
	})
}

func TestSCLaplaceOp(t *testing.T) {
	for _, periodic := range []bool{false, true} {
		np := 2
		h, lvl := tiledLevel(np, []int{4, 4}, []int{2, 2}, periodic, false)
		v := h.Vars.Register("sdof", amr.SideCentered, 1, 1, true)
		utils.NewWorld(np).Run(func(c *utils.Comm) {
			var (
				ld = dofs.ConstructPatchLevelDOFIndices(c, lvl, v, 1)
				m  = ConstructPatchLevelSCLaplaceOp(c, 0, 1, poisson.DirichletBc{}, ld, 0)
				A  = m.GatherDense(c)
			)
			checkPreallocation(t, m)
			n, _ := A.Dims()
			var identity int
			for i := 0; i < n; i++ {
				var nnz int
				for j := 0; j < n; j++ {
					if A.At(i, j) != 0 {
						nnz++
					}
				}
				if nnz == 1 && A.At(i, i) == 1 {
					identity++
				}
			}
			if periodic {
				assert.Equal(t, 4*4+4*5, n)
				// Only the y faces carry Dirichlet sides
				assert.Equal(t, 8, identity)
			} else {
				assert.Equal(t, 5*4+4*5, n)
				assert.Equal(t, 16, identity)
			}
		})
	}
}

func TestKernels(t *testing.T) {
	assert.Equal(t, IB4, NewInterpKernel("IB_4"))
	assert.Equal(t, PiecewiseLinear, NewInterpKernel(" piecewise_linear "))
	assert.Equal(t, "BSPLINE_4", BSpline4.Print())
	assert.Panics(t, func() { NewInterpKernel("gaussian") })
	assert.Equal(t, 4, StencilWidth(3))
	assert.Equal(t, 2, StencilWidth(1))
	assert.Equal(t, 6, StencilWidth(6))
	assert.Panics(t, func() { StencilWidth(0) })
	// Every kernel is a partition of unity with zero first moment
	for _, k := range []InterpKernel{PiecewiseLinear, IB3, IB4, BSpline4} {
		for _, r := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9} {
			var sum, moment float64
			for j := -3; j <= 3; j++ {
				w := k.Eval(r - float64(j))
				sum += w
				moment += (r - float64(j)) * w
			}
			assert.InDelta(t, 1, sum, 1.e-12, "%s at %v", k.Print(), r)
			assert.InDelta(t, 0, moment, 1.e-12, "%s at %v", k.Print(), r)
		}
		assert.Equal(t, 0., k.Eval(2))
	}
}

func linearVelocity(x [3]float64, axis int) float64 {
	if axis == 0 {
		return 1 + 2*x[0] + 3*x[1]
	}
	return 4 - x[0] + 0.5*x[1]
}

func TestSCInterpOp(t *testing.T) {
	np := 2
	h, lvl := tiledLevel(np, []int{8, 8}, []int{4, 4})
	var (
		dofVar  = h.Vars.Register("sdof2", amr.SideCentered, 1, 2, true)
		dataVar = h.Vars.Register("u", amr.SideCentered, 1, 2, false)
		gg      = lvl.Geometry()
		points  = [][]float64{
			{0.3, 0.6, 0.55, 0.45},
			{0.7, 0.35},
		}
	)
	for _, k := range []InterpKernel{PiecewiseLinear, IB3, IB4, BSpline4} {
		utils.NewWorld(np).Run(func(c *utils.Comm) {
			var (
				X  = points[c.Rank()]
				ld = dofs.ConstructPatchLevelDOFIndices(c, lvl, dofVar, 1)
				m  = ConstructPatchLevelSCInterpOp(c, k, k.Width(), X, ld)
				u  = dofs.NewLevelVec(c, ld)
				y  = linalg.NewVec(c, len(X))
			)
			checkPreallocation(t, m)
			rows, cols := m.GlobalSize()
			assert.Equal(t, 2*3, rows)
			assert.Equal(t, 2*9*8, cols)
			lvl.Allocate(c.Rank(), dataVar)
			for _, p := range lvl.LocalPatches(c.Rank()) {
				fd := amr.FloatData(p, dataVar)
				for axis, arr := range fd.Arrays {
					arr.Box.ForEach(func(s amr.IntVector) {
						arr.Set(s, 0, linearVelocity(gg.SideCenter(s, axis, lvl.Ratio), axis))
					})
				}
			}
			dofs.CopyToPatchLevelVec(c, u, dataVar, ld)
			m.Mult(c, u, y)
			for kp := 0; kp < len(X)/2; kp++ {
				x := [3]float64{X[2*kp], X[2*kp+1]}
				for axis := 0; axis < 2; axis++ {
					assert.InDelta(t, linearVelocity(x, axis), y.Data[2*kp+axis], 1.e-12,
						"%s point %v axis %d", k.Print(), x, axis)
				}
			}
		})
	}
	{ // An odd width gives the matrix of the next even width
		var dense [2][]float64
		for i, width := range []int{3, 4} {
			utils.NewWorld(np).Run(func(c *utils.Comm) {
				var (
					ld = dofs.ConstructPatchLevelDOFIndices(c, lvl, dofVar, 1)
					A  = ConstructPatchLevelSCInterpOp(c, IB3, width, points[c.Rank()], ld).GatherDense(c)
				)
				if c.Rank() == 0 {
					dense[i] = A.RawMatrix().Data
				}
			})
		}
		require.NotNil(t, dense[0])
		assert.Equal(t, dense[0], dense[1])
	}
	{ // Points must stay in the domain, stencils inside the DOF ghosts
		thin := h.Vars.Register("sdof1", amr.SideCentered, 1, 1, true)
		assert.Panics(t, func() {
			utils.NewWorld(np).Run(func(c *utils.Comm) {
				ld := dofs.ConstructPatchLevelDOFIndices(c, lvl, dofVar, 1)
				ConstructPatchLevelSCInterpOp(c, PiecewiseLinear, 2, []float64{-0.5, -0.5}, ld)
			})
		})
		assert.Panics(t, func() {
			utils.NewWorld(np).Run(func(c *utils.Comm) {
				ld := dofs.ConstructPatchLevelDOFIndices(c, lvl, thin, 1)
				ConstructPatchLevelSCInterpOp(c, IB4, 4, []float64{0.55, 0.55}, ld)
			})
		})
	}
}
