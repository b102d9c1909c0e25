package amr

import "math"

// CoarsenAverage sets every coarse cell of region to the mean of its fine
// children.
func CoarsenAverage(fine, coarse *ArrayData[float64], region Box, ratio IntVector) {
	var (
		nChild = float64(ratio[0] * ratio[1] * ratio[2])
	)
	region.ForEach(func(K IntVector) {
		children := NewBox(K, K).Refine(ratio)
		for d := 0; d < coarse.Depth; d++ {
			var sum float64
			children.ForEach(func(p IntVector) {
				sum += fine.Get(p, d)
			})
			coarse.Set(K, d, sum/nChild)
		}
	})
}

// RefineConstant injects the coarse value into each fine child of region.
func RefineConstant(coarse, fine *ArrayData[float64], region Box, ratio IntVector, add bool) {
	region.ForEach(func(p IntVector) {
		K := p.Coarsen(ratio)
		for d := 0; d < fine.Depth; d++ {
			v := coarse.Get(K, d)
			if add {
				v += fine.Get(p, d)
			}
			fine.Set(p, d, v)
		}
	})
}

// RefineLinear interpolates cell centered coarse data onto the fine cells of
// region with a tensor product of linear interpolants. The coarse array
// needs one ghost cell around the coarsened region.
func RefineLinear(coarse, fine *ArrayData[float64], region Box, ratio IntVector, dim int, add bool) {
	region.ForEach(func(p IntVector) {
		var (
			K    = p.Coarsen(ratio)
			xi   [3]float64
			side IntVector
		)
		for d := 0; d < dim; d++ {
			xi[d] = (float64(p[d]-K[d]*ratio[d])+0.5)/float64(ratio[d]) - 0.5
			if xi[d] < 0 {
				side[d] = -1
			} else {
				side[d] = 1
			}
		}
		for depth := 0; depth < fine.Depth; depth++ {
			var v float64
			for corner := 0; corner < 1<<dim; corner++ {
				var (
					w = 1.
					q = K
				)
				for d := 0; d < dim; d++ {
					if corner&(1<<d) != 0 {
						w *= math.Abs(xi[d])
						q[d] += side[d]
					} else {
						w *= 1 - math.Abs(xi[d])
					}
				}
				if w != 0 {
					v += w * coarse.Get(q, depth)
				}
			}
			if add {
				v += fine.Get(p, depth)
			}
			fine.Set(p, depth, v)
		}
	})
}
