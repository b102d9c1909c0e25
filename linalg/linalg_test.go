package linalg

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/gofac/utils"
)

func TestVecOps(t *testing.T) {
	np := 3
	utils.NewWorld(np).Run(func(c *utils.Comm) {
		v := NewVec(c, c.Rank()+1)
		assert.Equal(t, 6, v.GlobalSize())
		lo, hi := v.OwnershipRange()
		assert.Equal(t, c.Rank()+1, hi-lo)
		for i := range v.Data {
			v.Data[i] = float64(lo + i)
		}
		assert.Equal(t, 55., v.Dot(c, v))
		assert.InDelta(t, math.Sqrt(55), v.Norm2(c), 1.e-14)
		assert.Equal(t, 5., v.NormInf(c))
		w := v.Duplicate()
		w.Set(1)
		w.Axpy(2, v)
		assert.Equal(t, []float64{1, 3, 5, 7, 9, 11}, w.Gather(c))
		w.Aypx(-1, v)
		assert.Equal(t, []float64{-1, -2, -3, -4, -5, -6}, w.Gather(c))
		w.Scale(-1)
		w.Copy(v)
		assert.Equal(t, v.Data, w.Data)
	})
}

// tridiagonal returns the columns and values of row i of the n x n second
// difference matrix.
func tridiagonal(i, n int) (cols []int, vals []float64) {
	for _, j := range []int{i - 1, i, i + 1} {
		if j >= 0 && j < n {
			cols = append(cols, j)
			if j == i {
				vals = append(vals, 2)
			} else {
				vals = append(vals, -1)
			}
		}
	}
	return
}

func TestMatAssemblyAndMult(t *testing.T) {
	var (
		sizes = []int{3, 0, 4}
		n     = 7
	)
	utils.NewWorld(len(sizes)).Run(func(c *utils.Comm) {
		var (
			nl         = sizes[c.Rank()]
			dnnz, onnz = make([]int, nl), make([]int, nl)
			x          = NewVec(c, nl)
			ghosts     = make(map[int]bool)
		)
		lo, hi := x.OwnershipRange()
		for i := lo; i < hi; i++ {
			cols, _ := tridiagonal(i, n)
			for _, j := range cols {
				if j >= lo && j < hi {
					dnnz[i-lo]++
				} else {
					onnz[i-lo]++
					ghosts[j] = true
				}
			}
		}
		m := NewMatAIJ(c, nl, nl, dnnz, onnz)
		for i := lo; i < hi; i++ {
			cols, vals := tridiagonal(i, n)
			// Negative columns are skipped
			assert.NoError(t, m.SetValues(i, append(cols, -1), append(vals, 100), InsertValues))
			// Adding zero to an existing entry needs no new storage
			assert.NoError(t, m.SetValues(i, cols[:1], []float64{0}, AddValues))
		}
		if hi > lo {
			absent := 0
			if lo == 0 {
				absent = n - 1
			}
			err := m.SetValues(lo, []int{absent}, []float64{1}, InsertValues)
			assert.True(t, errors.Is(err, ErrNewNonzeroAllocation), "%v", err)
		}
		m.AssemblyBegin(c)
		m.AssemblyEnd(c)
		assert.True(t, m.Assembled())
		assert.Equal(t, len(ghosts), m.NumGhosts())
		assert.ErrorIs(t, m.SetValues(lo, nil, nil, InsertValues), ErrAssembled)
		for i := 0; i < nl; i++ {
			d, o := m.RowNNZ(i)
			pd, po := m.Preallocation(i)
			assert.Equal(t, pd, d)
			assert.Equal(t, po, o)
		}
		for i := range x.Data {
			x.Data[i] = float64((lo + i) * (lo + i))
		}
		y := x.Duplicate()
		m.Mult(c, x, y)
		for i := lo; i < hi; i++ {
			cols, vals := tridiagonal(i, n)
			var want float64
			for k, j := range cols {
				want += vals[k] * float64(j*j)
			}
			assert.Equal(t, want, y.Data[i-lo])
		}
		for i, d := range m.Diagonal() {
			assert.Equal(t, 2., d, "row %d", i+lo)
		}
		dense := m.GatherDense(c)
		for i := 0; i < n; i++ {
			cols, vals := tridiagonal(i, n)
			for k, j := range cols {
				assert.Equal(t, vals[k], dense.At(i, j))
			}
		}
	})
}

func TestMatOwnership(t *testing.T) {
	assert.Panics(t, func() {
		utils.NewWorld(2).Run(func(c *utils.Comm) {
			m := NewMatAIJ(c, 2, 2, []int{1, 1}, []int{0, 0})
			if c.Rank() == 1 {
				_ = m.SetValues(0, []int{0}, []float64{1}, InsertValues)
			}
			m.Assemble(c)
		})
	})
}
