package xfer

import (
	"fmt"
	"math"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/utils"
)

// CoarsenSchedule replaces coarse cell data under the fine level with the
// average of the fine values.
type CoarsenSchedule struct {
	Fine, Coarse       *amr.Level
	FineVar, CoarseVar *amr.Variable
	txs                []Transaction
}

func NewCoarsenSchedule(fine, coarse *amr.Level, fineVar, coarseVar *amr.Variable) (s *CoarsenSchedule) {
	if fineVar.Centering != amr.CellCentered || coarseVar.Centering != amr.CellCentered {
		panic("coarsening is implemented for cell centered data")
	}
	if fine.Coarser() != coarse {
		panic(fmt.Sprintf("level %d is not the next coarser level of level %d", coarse.Number, fine.Number))
	}
	s = &CoarsenSchedule{Fine: fine, Coarse: coarse, FineVar: fineVar, CoarseVar: coarseVar}
	for _, fp := range fine.Patches {
		cbox := fp.Box.Coarsen(fine.RatioToCoarser)
		for _, cp := range coarse.Patches {
			region := cbox.Intersect(cp.Box)
			if region.Empty() {
				continue
			}
			s.txs = append(s.txs, Transaction{
				SrcOwner: fp.Owner,
				DstOwner: cp.Owner,
				SrcPatch: fp.Number,
				DstPatch: cp.Number,
				Overlap:  Overlap{Region: region, Exclude: amr.EmptyBox},
			})
		}
	}
	return
}

// Coarsen is collective.
func (s *CoarsenSchedule) Coarsen(c *utils.Comm) {
	var (
		ratio    = s.Fine.RatioToCoarser
		averaged = make(map[int]*amr.ArrayData[float64])
	)
	for _, fp := range s.Fine.LocalPatches(c.Rank()) {
		cbox := fp.Box.Coarsen(ratio)
		avg := amr.NewArrayData[float64](cbox, s.CoarseVar.Depth)
		amr.CoarsenAverage(amr.FloatData(fp, s.FineVar).Arrays[0], avg, cbox, ratio)
		averaged[fp.Number] = avg
	}
	execute(c, s.txs, s.CoarseVar.Depth,
		func(tx *Transaction) *amr.ArrayData[float64] { return averaged[tx.SrcPatch] },
		func(tx *Transaction) *amr.ArrayData[float64] {
			return amr.FloatData(s.Coarse.Patches[tx.DstPatch], s.CoarseVar).Arrays[0]
		})
}

// CoarseDataSchedule gathers coarse level values under and around each
// fine patch into a scratch array covering the coarsened fine box grown by
// Ghost cells. It is the source for prolongation and for coarse-fine
// boundary values.
type CoarseDataSchedule struct {
	Fine, Coarse *amr.Level
	CoarseVar    *amr.Variable
	Ghost        int
	Bdry         PhysicalBoundaryStrategy
	txs          []Transaction
}

func NewCoarseDataSchedule(coarse, fine *amr.Level, coarseVar *amr.Variable, ghost int, bdry PhysicalBoundaryStrategy) (s *CoarseDataSchedule) {
	if coarseVar.Centering != amr.CellCentered {
		panic("coarse data gathering is implemented for cell centered data")
	}
	s = &CoarseDataSchedule{Fine: fine, Coarse: coarse, CoarseVar: coarseVar, Ghost: ghost, Bdry: bdry}
	shifts := append([]amr.IntVector{{}}, coarse.PeriodicShifts()...)
	for _, fp := range fine.Patches {
		scratch := s.scratchBox(fp)
		for _, cp := range coarse.Patches {
			for _, shift := range shifts {
				region := scratch.Intersect(cp.Box.Shift(shift))
				if region.Empty() {
					continue
				}
				s.txs = append(s.txs, Transaction{
					SrcOwner: cp.Owner,
					DstOwner: fp.Owner,
					SrcPatch: cp.Number,
					DstPatch: fp.Number,
					Shift:    shift,
					Overlap:  Overlap{Region: region, Exclude: amr.EmptyBox},
				})
			}
		}
	}
	return
}

func (s *CoarseDataSchedule) scratchBox(fp *amr.Patch) amr.Box {
	return fp.Box.Coarsen(s.Fine.RatioToCoarser).Grow(amr.Uniform(s.Fine.Dim(), s.Ghost))
}

// Gather is collective. The result is keyed by local fine patch number.
func (s *CoarseDataSchedule) Gather(c *utils.Comm) (scratch map[int]*amr.FieldData[float64]) {
	var (
		dim   = s.Fine.Dim()
		depth = s.CoarseVar.Depth
	)
	scratch = make(map[int]*amr.FieldData[float64])
	for _, fp := range s.Fine.LocalPatches(c.Rank()) {
		fd := amr.NewFieldData[float64](amr.CellCentered, fp.Box.Coarsen(s.Fine.RatioToCoarser),
			amr.Uniform(dim, s.Ghost), depth, dim)
		fd.Fill(math.NaN())
		scratch[fp.Number] = fd
	}
	execute(c, s.txs, depth,
		func(tx *Transaction) *amr.ArrayData[float64] {
			return amr.FloatData(s.Coarse.Patches[tx.SrcPatch], s.CoarseVar).Arrays[0]
		},
		func(tx *Transaction) *amr.ArrayData[float64] { return scratch[tx.DstPatch].Arrays[0] })
	for _, fd := range scratch {
		if s.Bdry != nil {
			s.Bdry.SetPhysicalBoundaryConditions(s.Coarse, fd)
		}
		fillUncovered(fd)
	}
	return
}

// fillUncovered copies the nearest interior value into scratch cells that no
// coarse patch covered.
func fillUncovered(fd *amr.FieldData[float64]) {
	arr := fd.Arrays[0]
	arr.Box.ForEach(func(p amr.IntVector) {
		for d := 0; d < arr.Depth; d++ {
			if !math.IsNaN(arr.Get(p, d)) {
				continue
			}
			q := p
			for ax := 0; ax < 3; ax++ {
				q[ax] = max(fd.Interior.Lo[ax], min(fd.Interior.Hi[ax], q[ax]))
			}
			arr.Set(p, d, arr.Get(q, d))
		}
	})
}
