package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDOK(t *testing.T) {
	m := NewDOK(3, 4)
	m.Set(0, 1, 2)
	m.Add(0, 1, 0.5)
	m.Add(2, 3, -1)
	m.Set(1, 0, 4)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, 3, m.NNZ())
	assert.Equal(t, 2.5, m.At(0, 1))

	csr := m.ToCSR()
	cols, vals := csr.Row(0)
	assert.Equal(t, []int{1}, cols)
	assert.Equal(t, []float64{2.5}, vals)
	cols, _ = csr.Row(1)
	assert.Equal(t, []int{0}, cols)
	assert.Len(t, csr.Data(), 3)
	assert.Equal(t, -1., csr.At(2, 3))

	m.SetReadOnly("staged")
	assert.Panics(t, func() { m.Set(0, 0, 1) })
	assert.Panics(t, func() { m.Add(0, 0, 1) })
}

func TestIsNan(t *testing.T) {
	assert.True(t, IsNan(math.NaN()))
	assert.False(t, IsNan(1.))
	assert.True(t, IsNan([]float64{0, math.NaN()}))
	assert.False(t, IsNan([]float64{0, 1}))
	assert.False(t, IsNan("NaN"))
	assert.NotEmpty(t, GetMemUsage())
}

func TestResidualHistory(t *testing.T) {
	x, f := ResidualHistory([]float64{100, 1, 0})
	assert.Equal(t, []float64{0, 1, 2}, x)
	assert.InDelta(t, 2, f[0], 1.e-14)
	assert.InDelta(t, 0, f[1], 1.e-14)
	assert.True(t, f[2] < -300)
}
