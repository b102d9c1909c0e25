package amr

import (
	"github.com/notargets/gofac/utils"
)

// LoadBalancer assigns an owner rank to every box of a new level.
type LoadBalancer interface {
	Balance(boxes []Box, nRanks int) (owners []int)
}

// BlockLoadBalancer splits the cells of the level into contiguous, nearly
// equal ranges in box order; a box belongs to the rank holding its first
// cell.
type BlockLoadBalancer struct{}

func (BlockLoadBalancer) Balance(boxes []Box, nRanks int) (owners []int) {
	var (
		total  int
		starts = make([]int, len(boxes))
	)
	for i, b := range boxes {
		starts[i] = total
		total += b.NumPoints()
	}
	pm := utils.NewPartitionMap(nRanks, total)
	owners = make([]int, len(boxes))
	for i := range boxes {
		// Use the middle cell so a large box lands where most of it is
		owners[i], _, _ = pm.GetBucket(starts[i] + boxes[i].NumPoints()/2)
	}
	return
}

// RoundRobinLoadBalancer deals boxes out to ranks in turn.
type RoundRobinLoadBalancer struct{}

func (RoundRobinLoadBalancer) Balance(boxes []Box, nRanks int) (owners []int) {
	owners = make([]int, len(boxes))
	for i := range boxes {
		owners[i] = i % nRanks
	}
	return
}

// Adjacency lists, for every box, the boxes it touches across a face, edge
// or corner, with the number of shared cell faces as the weight.
func Adjacency(boxes []Box, dim int) (nbrs [][]int, weights [][]int) {
	nbrs = make([][]int, len(boxes))
	weights = make([][]int, len(boxes))
	for i, bi := range boxes {
		grown := bi.Grow(Uniform(dim, 1))
		for j, bj := range boxes {
			if i == j || !grown.Intersects(bj) {
				continue
			}
			w := 0
			for d := 0; d < dim; d++ {
				face := grown.Intersect(bj)
				if face.Size()[d] == 1 && (face.Lo[d] == bi.Hi[d]+1 || face.Hi[d] == bi.Lo[d]-1) {
					w += face.NumPoints()
				}
			}
			nbrs[i] = append(nbrs[i], j)
			weights[i] = append(weights[i], max(w, 1))
		}
	}
	return
}
