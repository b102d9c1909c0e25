package dofs

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/gofac/amr"
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

// ownedIndices collects, per rank, the indices numbered by that rank.
func ownedIndices(c *utils.Comm, ld *LevelDOFs) (idx []int) {
	ld.forEachOwned(c, func(p *amr.Patch, comp int, q amr.IntVector, d, local int) {
		idx = append(idx, ld.Data(p).Arrays[comp].Get(q, d))
	})
	return
}

func checkPartition(t *testing.T, perRank [][]int, counts []int) {
	var (
		all   []int
		start int
	)
	for r, idx := range perRank {
		assert.Len(t, idx, counts[r])
		for _, i := range idx {
			assert.True(t, i >= start && i < start+counts[r], "rank %d index %d", r, i)
		}
		start += counts[r]
		all = append(all, idx...)
	}
	sort.Ints(all)
	for i, v := range all {
		assert.Equal(t, i, v)
	}
}

func TestCCDOFRanges(t *testing.T) {
	for _, np := range []int{1, 3} {
		h, lvl := tiledLevel(np, []int{8, 6}, []int{4, 3})
		v := h.Vars.Register("dof", amr.CellCentered, 2, 1, true)
		var (
			perRank = make([][]int, np)
			counts  []int
		)
		utils.NewWorld(np).Run(func(c *utils.Comm) {
			ld := ConstructPatchLevelDOFIndices(c, lvl, v, 2)
			perRank[c.Rank()] = ownedIndices(c, ld)
			if c.Rank() == 0 {
				counts = ld.Counts
			}
			// The first cell of every local patch starts a depth pair
			for _, p := range lvl.LocalPatches(c.Rank()) {
				arr := ld.Data(p).Arrays[0]
				assert.Equal(t, arr.Get(p.Box.Lo, 0)+1, arr.Get(p.Box.Lo, 1))
				if p.Box.Lo.IsZero() {
					assert.Equal(t, Unset, arr.Get(amr.IntVector{-1, -1, 0}, 0))
				}
			}
		})
		var total int
		for _, n := range counts {
			total += n
		}
		assert.Equal(t, 8*6*2, total)
		checkPartition(t, perRank, counts)
	}
}

func TestSCDOFs(t *testing.T) {
	for _, periodic := range []bool{false, true} {
		np := 2
		h, lvl := tiledLevel(np, []int{4, 4}, []int{2, 2}, periodic)
		v := h.Vars.Register("sdof", amr.SideCentered, 1, 1, true)
		var (
			perRank = make([][]int, np)
			counts  []int
		)
		utils.NewWorld(np).Run(func(c *utils.Comm) {
			ld := ConstructPatchLevelDOFIndices(c, lvl, v, 1)
			perRank[c.Rank()] = ownedIndices(c, ld)
			if c.Rank() == 0 {
				counts = ld.Counts
			}
		})
		nx := 5
		if periodic {
			nx = 4
		}
		assert.Equal(t, nx*4+4*5, counts[0]+counts[1])
		checkPartition(t, perRank, counts)
		// Sides shared by two patches carry one index
		for axis := 0; axis < 2; axis++ {
			seen := make(map[amr.IntVector]int)
			for _, p := range lvl.Patches {
				arr := amr.IntData(p, v).Arrays[axis]
				p.Box.SideBox(axis).ForEach(func(q amr.IntVector) {
					if prev, ok := seen[q]; ok {
						assert.Equal(t, prev, arr.Get(q, 0), "axis %d side %v", axis, q)
					}
					seen[q] = arr.Get(q, 0)
					assert.NotEqual(t, Unset, arr.Get(q, 0))
				})
			}
		}
	}
}

func TestDOFPreconditions(t *testing.T) {
	h, lvl := tiledLevel(1, []int{4, 4}, []int{4, 4})
	v := h.Vars.Register("dof", amr.CellCentered, 1, 0, true)
	assert.Panics(t, func() {
		utils.NewWorld(1).Run(func(c *utils.Comm) { ConstructPatchLevelDOFIndices(c, lvl, v, 2) })
	})
	var ld *LevelDOFs
	utils.NewWorld(1).Run(func(c *utils.Comm) { ld = ConstructPatchLevelDOFIndices(c, lvl, v, 1) })
	assert.NotPanics(t, ld.CheckCurrent)
	h.AddLevel([]amr.Box{amr.NewBox(amr.IntVector{0, 0, 0}, amr.IntVector{3, 3, 0})}, 2, nil)
	assert.Panics(t, ld.CheckCurrent)
}

func TestVectorRoundTrip(t *testing.T) {
	np := 3
	h, lvl := tiledLevel(np, []int{6, 4}, []int{2, 2})
	cases := []struct {
		dof, data *amr.Variable
	}{
		{h.Vars.Register("cdof", amr.CellCentered, 2, 1, true), h.Vars.Register("cdata", amr.CellCentered, 2, 1, false)},
		{h.Vars.Register("sdof", amr.SideCentered, 1, 1, true), h.Vars.Register("sdata", amr.SideCentered, 1, 1, false)},
	}
	for _, tc := range cases {
		utils.NewWorld(np).Run(func(c *utils.Comm) {
			var (
				ld   = ConstructPatchLevelDOFIndices(c, lvl, tc.dof, tc.dof.Depth)
				vec  = NewLevelVec(c, ld)
				rng  = rand.New(rand.NewSource(int64(c.Rank())))
				orig = make(map[int][]float64)
			)
			lvl.Allocate(c.Rank(), tc.data)
			for _, p := range lvl.LocalPatches(c.Rank()) {
				fd := amr.FloatData(p, tc.data)
				for _, arr := range fd.Arrays {
					for i := range arr.Data {
						arr.Data[i] = rng.Float64()
					}
				}
			}
			// Shared sides must agree before the round trip
			CopyToPatchLevelVec(c, vec, tc.data, ld)
			CopyFromPatchLevelVec(c, vec, tc.data, ld, true, false)
			for _, p := range lvl.LocalPatches(c.Rank()) {
				for _, arr := range amr.FloatData(p, tc.data).Arrays {
					orig[p.Number] = append(orig[p.Number], append([]float64{}, arr.Data...)...)
				}
			}
			CopyToPatchLevelVec(c, vec, tc.data, ld)
			for _, p := range lvl.LocalPatches(c.Rank()) {
				amr.FloatData(p, tc.data).Fill(0)
			}
			CopyFromPatchLevelVec(c, vec, tc.data, ld, true, false)
			for _, p := range lvl.LocalPatches(c.Rank()) {
				var (
					fd   = amr.FloatData(p, tc.data)
					want = orig[p.Number]
					k    int
				)
				for comp, arr := range fd.Arrays {
					idx := ld.Data(p).Arrays[comp]
					for i := range arr.Data {
						q := pointOf(arr.Box, i/arr.Depth)
						if fd.InteriorBox(comp).Contains(q) {
							assert.Equal(t, want[k+i], arr.Data[i])
							assert.NotEqual(t, Unset, idx.Get(q, i%arr.Depth))
						}
					}
					k += len(arr.Data)
				}
			}
		})
	}
}

// pointOf inverts Box.Offset.
func pointOf(b amr.Box, offset int) (p amr.IntVector) {
	s := b.Size()
	p[0] = b.Lo[0] + offset%s[0]
	offset /= s[0]
	p[1] = b.Lo[1] + offset%s[1]
	p[2] = b.Lo[2] + offset/s[1]
	return
}
