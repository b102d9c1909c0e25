//go:build metis
// +build metis

package amr

import (
	"fmt"
	"log"

	metis "github.com/notargets/go-metis"
)

// MetisLoadBalancer partitions the box adjacency graph, weighting boxes by
// cell count and edges by shared faces.
type MetisLoadBalancer struct {
	Dim             int
	ImbalanceFactor float32
}

func (mlb MetisLoadBalancer) Balance(boxes []Box, nRanks int) (owners []int) {
	if nRanks == 1 || len(boxes) <= nRanks {
		return RoundRobinLoadBalancer{}.Balance(boxes, nRanks)
	}
	var (
		nbrs, weights = Adjacency(boxes, mlb.Dim)
		xadj          = make([]int32, len(boxes)+1)
		adjncy        []int32
		adjwgt        []int32
		vwgt          = make([]int32, len(boxes))
	)
	for i, b := range boxes {
		vwgt[i] = int32(b.NumPoints())
		for k, j := range nbrs[i] {
			adjncy = append(adjncy, int32(j))
			adjwgt = append(adjwgt, int32(weights[i][k]))
		}
		xadj[i+1] = int32(len(adjncy))
	}
	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		panic(fmt.Errorf("failed to set METIS options: %w", err))
	}
	opts[metis.OptionObjType] = metis.ObjTypeVol
	imbalance := mlb.ImbalanceFactor
	if imbalance == 0 {
		imbalance = 1.05
	}
	part, objval, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, vwgt, adjwgt,
		int32(nRanks), nil, []float32{imbalance}, opts,
	)
	if err != nil {
		panic(fmt.Errorf("METIS partitioning failed: %w", err))
	}
	log.Printf("METIS balanced %d boxes over %d ranks, communication volume %d", len(boxes), nRanks, objval)
	owners = make([]int, len(boxes))
	for i := range boxes {
		owners[i] = int(part[i])
	}
	return
}
