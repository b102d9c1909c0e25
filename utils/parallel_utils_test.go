package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionMap(t *testing.T) {
	{ // Test PartitionMap
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				maxK := pm.GetBucketDimension(np)
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 10000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Test inverted bucket probe - find bucket that contains index (efficiently)
		for maxIndex := 10; maxIndex < 1000; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				tryCount, bn, min, max := pm.getBucketWithTryCount(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax && tryCount <= 1)
			}
		}
	}
	{ // Ranges built from per-rank counts, including empty ranks
		pm := NewPartitionMapFromCounts([]int{0, 7, 0, 1, 12, 0})
		assert.Equal(t, 20, pm.MaxIndex)
		assert.Equal(t, []int{0, 7, 0, 1, 12, 0}, pm.Counts())
		var next int
		for bn := 0; bn < pm.ParallelDegree; bn++ {
			kMin, kMax := pm.GetBucketRange(bn)
			assert.Equal(t, next, kMin)
			next = kMax
		}
		assert.Equal(t, pm.MaxIndex, next)
		for k := 0; k < pm.MaxIndex; k++ {
			bn, min, max := pm.GetBucket(k)
			require.NotEqual(t, -1, bn)
			assert.True(t, k >= min && k < max)
		}
		bn, _, _ := pm.GetBucket(pm.MaxIndex)
		assert.Equal(t, -1, bn)
	}
}

func TestCollectives(t *testing.T) {
	for _, np := range []int{1, 3, 4} {
		w := NewWorld(np)
		sums := make([]float64, np)
		gathered := make([][]int, np)
		w.Run(func(c *Comm) {
			sums[c.Rank()] = c.AllreduceSum(float64(c.Rank() + 1))
			gathered[c.Rank()] = c.AllgatherInt(10 * c.Rank())
			// Every rank sends its rank number r+1 times to every other rank
			send := make([][]int, c.Size())
			for r := range send {
				for i := 0; i <= c.Rank(); i++ {
					send[r] = append(send[r], c.Rank())
				}
			}
			recv := AllToAll(c, send)
			for sender, msg := range recv {
				assert.Len(t, msg, sender+1)
				for _, v := range msg {
					assert.Equal(t, sender, v)
				}
			}
			c.Barrier()
			assert.Equal(t, float64(np-1), c.AllreduceMax(float64(c.Rank())))
			assert.False(t, c.AllreduceAnd(c.Rank() != 0))
		})
		for r := 0; r < np; r++ {
			assert.Equal(t, float64(np*(np+1)/2), sums[r])
			for s := 0; s < np; s++ {
				assert.Equal(t, 10*s, gathered[r][s])
			}
		}
	}
}

func TestCollectivesOrdering(t *testing.T) {
	// Back to back collectives must not mix their messages
	w := NewWorld(4)
	w.Run(func(c *Comm) {
		for iter := 0; iter < 50; iter++ {
			all := c.AllgatherInt(iter*100 + c.Rank())
			for r, v := range all {
				assert.Equal(t, iter*100+r, v)
			}
		}
	})
}

func TestWorldAbort(t *testing.T) {
	w := NewWorld(3)
	assert.PanicsWithValue(t, "rank 1: broken invariant", func() {
		w.Run(func(c *Comm) {
			if c.Rank() == 1 {
				c.Abort("broken invariant")
			}
			c.Barrier()
		})
	})
}
