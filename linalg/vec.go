package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gofac/utils"
)

// Vec is a distributed vector; each rank stores the contiguous range given
// by Layout.
type Vec struct {
	Layout *utils.PartitionMap
	Data   []float64
	rank   int
}

// NewVec is collective: the layout is assembled from every rank's size.
func NewVec(c *utils.Comm, nLocal int) *Vec {
	return NewVecWithLayout(c, utils.NewPartitionMapFromCounts(c.AllgatherInt(nLocal)))
}

func NewVecWithLayout(c *utils.Comm, layout *utils.PartitionMap) *Vec {
	if layout.ParallelDegree != c.Size() {
		panic(fmt.Sprintf("layout for %d ranks used with %d ranks", layout.ParallelDegree, c.Size()))
	}
	return &Vec{
		Layout: layout,
		Data:   make([]float64, layout.GetBucketDimension(c.Rank())),
		rank:   c.Rank(),
	}
}

func (v *Vec) Duplicate() *Vec {
	return &Vec{Layout: v.Layout, Data: make([]float64, len(v.Data)), rank: v.rank}
}

func (v *Vec) LocalSize() int  { return len(v.Data) }
func (v *Vec) GlobalSize() int { return v.Layout.MaxIndex }

// OwnershipRange is the half open global range stored on this rank.
func (v *Vec) OwnershipRange() (lo, hi int) { return v.Layout.GetBucketRange(v.rank) }

func (v *Vec) Set(val float64) {
	for i := range v.Data {
		v.Data[i] = val
	}
}

func (v *Vec) Copy(src *Vec) {
	v.checkCompatible(src)
	copy(v.Data, src.Data)
}

// Axpy computes v += alpha*x.
func (v *Vec) Axpy(alpha float64, x *Vec) {
	v.checkCompatible(x)
	floats.AddScaled(v.Data, alpha, x.Data)
}

// Aypx computes v = x + beta*v.
func (v *Vec) Aypx(beta float64, x *Vec) {
	v.checkCompatible(x)
	floats.Scale(beta, v.Data)
	floats.Add(v.Data, x.Data)
}

func (v *Vec) Scale(alpha float64) { floats.Scale(alpha, v.Data) }

// Dot is collective.
func (v *Vec) Dot(c *utils.Comm, x *Vec) float64 {
	v.checkCompatible(x)
	var local float64
	if len(v.Data) != 0 {
		local = floats.Dot(v.Data, x.Data)
	}
	return c.AllreduceSum(local)
}

// Norm2 is collective.
func (v *Vec) Norm2(c *utils.Comm) float64 {
	return math.Sqrt(v.Dot(c, v))
}

// NormInf is collective.
func (v *Vec) NormInf(c *utils.Comm) float64 {
	var local float64
	if len(v.Data) != 0 {
		local = floats.Norm(v.Data, math.Inf(1))
	}
	return c.AllreduceMax(local)
}

// Gather returns the whole vector on every rank. Collective.
func (v *Vec) Gather(c *utils.Comm) (all []float64) {
	all = make([]float64, 0, v.GlobalSize())
	for _, part := range utils.Allgather(c, v.Data) {
		all = append(all, part...)
	}
	return
}

func (v *Vec) checkCompatible(x *Vec) {
	if len(v.Data) != len(x.Data) {
		panic(fmt.Sprintf("vector local sizes differ: %d != %d", len(v.Data), len(x.Data)))
	}
}
