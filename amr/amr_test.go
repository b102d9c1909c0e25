package amr

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBox(t *testing.T) {
	b := NewBox(IntVector{0, 0, 0}, IntVector{3, 1, 0})
	assert.Equal(t, 8, b.NumPoints())
	assert.Equal(t, IntVector{4, 2, 1}, b.Size())
	assert.True(t, b.Contains(IntVector{3, 1, 0}))
	assert.False(t, b.Contains(IntVector{4, 1, 0}))

	var visited []IntVector
	b.ForEach(func(p IntVector) { visited = append(visited, p) })
	assert.Equal(t, IntVector{0, 0, 0}, visited[0])
	assert.Equal(t, IntVector{1, 0, 0}, visited[1]) // first axis fastest
	assert.Equal(t, IntVector{0, 1, 0}, visited[4])
	for i, p := range visited {
		assert.Equal(t, i, b.Offset(p))
	}
	var reversed []IntVector
	b.ForEachReverse(func(p IntVector) { reversed = append(reversed, p) })
	for i := range visited {
		assert.Equal(t, visited[i], reversed[len(reversed)-1-i])
	}

	assert.True(t, b.Intersect(NewBox(IntVector{4, 0, 0}, IntVector{5, 1, 0})).Empty())
	assert.Equal(t, NewBox(IntVector{2, 1, 0}, IntVector{3, 1, 0}),
		b.Intersect(NewBox(IntVector{2, 1, 0}, IntVector{9, 9, 0})))
	assert.Equal(t, NewBox(IntVector{-1, -1, 0}, IntVector{4, 2, 0}), b.Grow(Uniform(2, 1)))
	assert.Equal(t, NewBox(IntVector{0, 0, 0}, IntVector{4, 1, 0}), b.SideBox(0))
	assert.Equal(t, NewBox(IntVector{0, 0, 0}, IntVector{4, 2, 0}), b.NodeBox(2))
	assert.Equal(t, NewBox(IntVector{3, 0, 0}, IntVector{3, 1, 0}), b.Face(0, 1))

	r := Ratio(2, 2)
	assert.Equal(t, NewBox(IntVector{0, 0, 0}, IntVector{7, 3, 0}), b.Refine(r))
	assert.Equal(t, b, b.Refine(r).Coarsen(r))
	assert.True(t, b.Refine(r).IsCoarsenable(r))
	assert.False(t, NewBox(IntVector{1, 0, 0}, IntVector{2, 1, 0}).IsCoarsenable(r))
	assert.Equal(t, IntVector{-1, -1, 0}, IntVector{-1, -2, 0}.Coarsen(r))
}

func TestTileBox(t *testing.T) {
	dom := NewBox(IntVector{0, 0, 0}, IntVector{9, 5, 0})
	tiles := TileBox(dom, IntVector{4, 4, 1})
	assert.Len(t, tiles, 6)
	var total int
	for i, ti := range tiles {
		total += ti.NumPoints()
		assert.True(t, dom.ContainsBox(ti))
		for j := i + 1; j < len(tiles); j++ {
			assert.False(t, ti.Intersects(tiles[j]))
		}
	}
	assert.Equal(t, dom.NumPoints(), total)
}

func TestGeometry(t *testing.T) {
	gg := NewGridGeometry(2, []float64{0, 0}, []float64{1, 2}, []int{4, 8}, true, false)
	r := Ratio(2, 2)
	dx := gg.Dx(r)
	assert.InDelta(t, 0.125, dx[0], 1.e-15)
	assert.InDelta(t, 0.125, dx[1], 1.e-15)
	x := gg.CellCenter(IntVector{0, 3, 0}, r)
	assert.InDelta(t, 0.0625, x[0], 1.e-15)
	assert.InDelta(t, 0.4375, x[1], 1.e-15)
	assert.Equal(t, IntVector{0, 3, 0}, gg.CellIndex(x[:2], r))
	assert.Equal(t, IntVector{7, 3, 0}, gg.Wrap(IntVector{-1, 3, 0}, r))
	assert.Len(t, gg.PeriodicShifts(r), 2)
	codim, out := gg.BoundaryCodim(IntVector{-1, -1, 0}, r)
	assert.Equal(t, 1, codim) // x is periodic
	assert.Equal(t, IntVector{0, -1, 0}, out)
	codim, _ = gg.SideBoundaryCodim(IntVector{3, 16, 0}, 1, r)
	assert.Equal(t, 0, codim)
}

func TestHierarchy(t *testing.T) {
	gg := NewGridGeometry(2, []float64{0, 0}, []float64{1, 1}, []int{8, 8})
	h := NewHierarchy(gg, 2)
	gen := h.Generation()
	l0 := h.AddLevel(TileBox(gg.Domain, IntVector{4, 4, 1}), 1, nil)
	assert.NotEqual(t, gen, h.Generation())
	assert.Len(t, l0.Patches, 4)
	assert.Len(t, l0.LocalPatches(0), 2)
	assert.Len(t, l0.LocalPatches(1), 2)

	fine := []Box{NewBox(IntVector{4, 4, 0}, IntVector{11, 11, 0})}
	l1 := h.AddLevel(fine, 2, nil)
	assert.Equal(t, Ratio(2, 2), l1.Ratio)
	assert.True(t, l1.CoversCell(IntVector{4, 4, 0}))
	assert.False(t, l1.CoversCell(IntVector{3, 4, 0}))
	assert.Equal(t, l0, l1.Coarser())

	// Misaligned and non-nested boxes are rejected
	assert.Panics(t, func() { h.AddLevel([]Box{NewBox(IntVector{1, 0, 0}, IntVector{2, 1, 0})}, 2, nil) })
	assert.Panics(t, func() { h.AddLevel([]Box{NewBox(IntVector{0, 0, 0}, IntVector{3, 3, 0})}, 2, nil) })

	v := h.Vars.Register("u", CellCentered, 1, 1, false)
	assert.Same(t, v, h.Vars.Register("u", CellCentered, 1, 1, false))
	assert.Panics(t, func() { h.Vars.Register("u", SideCentered, 1, 1, false) })
	l0.Allocate(0, v)
	for _, p := range l0.Patches {
		assert.Equal(t, p.Owner == 0, p.IsAllocated(v))
	}
	p := l0.LocalPatches(0)[0]
	fd := FloatData(p, v)
	assert.Equal(t, p.Box.Grow(Uniform(2, 1)), fd.Arrays[0].Box)
	assert.Equal(t, fd.GhostBox(), fd.Arrays[0].Box)
	assert.Panics(t, func() { IntData(p, v) })
}

func TestHierarchyLogging(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	gg := NewGridGeometry(2, []float64{0, 0}, []float64{1, 1}, []int{8, 8})
	h := NewHierarchy(gg, 1)
	h.AddLevel([]Box{gg.Domain}, 1, nil)
	assert.Empty(t, buf.String())
	h.Verbose = true
	h.AddLevel([]Box{NewBox(IntVector{4, 4, 0}, IntVector{11, 11, 0})}, 2, nil)
	assert.Contains(t, buf.String(), "level 1: 1 patches")
}

func TestBalancers(t *testing.T) {
	boxes := TileBox(NewBox(IntVector{0, 0, 0}, IntVector{15, 15, 0}), IntVector{4, 4, 1})
	owners := BlockLoadBalancer{}.Balance(boxes, 3)
	counts := make([]int, 3)
	for i, o := range owners {
		counts[o] += boxes[i].NumPoints()
		if i > 0 {
			assert.GreaterOrEqual(t, o, owners[i-1])
		}
	}
	for _, c := range counts {
		assert.InDelta(t, 256./3., float64(c), 16+1)
	}
	nbrs, weights := Adjacency(boxes, 2)
	assert.Len(t, nbrs[0], 3) // corner tile: right, up and diagonal
	assert.Len(t, weights[5], 8)
}

func TestTransfer(t *testing.T) {
	var (
		dim    = 2
		r      = Ratio(dim, 2)
		coarse = NewArrayData[float64](NewBox(IntVector{-1, -1, 0}, IntVector{4, 4, 0}), 1)
		fine   = NewArrayData[float64](NewBox(IntVector{0, 0, 0}, IntVector{7, 7, 0}), 1)
		lin    = func(x, y float64) float64 { return 3*x - 2*y + 1 }
	)
	// Linear data in cell center coordinates is reproduced exactly
	coarse.Box.ForEach(func(K IntVector) {
		coarse.Set(K, 0, lin(float64(K[0])+0.5, float64(K[1])+0.5))
	})
	RefineLinear(coarse, fine, fine.Box, r, dim, false)
	fine.Box.ForEach(func(p IntVector) {
		assert.InDelta(t, lin((float64(p[0])+0.5)/2, (float64(p[1])+0.5)/2), fine.Get(p, 0), 1.e-12)
	})
	back := NewArrayData[float64](coarse.Box, 1)
	CoarsenAverage(fine, back, NewBox(IntVector{0, 0, 0}, IntVector{3, 3, 0}), r)
	NewBox(IntVector{0, 0, 0}, IntVector{3, 3, 0}).ForEach(func(K IntVector) {
		assert.InDelta(t, coarse.Get(K, 0), back.Get(K, 0), 1.e-12)
	})
	RefineConstant(coarse, fine, fine.Box, r, false)
	assert.Equal(t, coarse.Get(IntVector{1, 2, 0}, 0), fine.Get(IntVector{3, 5, 0}, 0))
}
