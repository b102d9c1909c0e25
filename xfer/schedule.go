package xfer

import (
	"fmt"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/utils"
)

// Transaction moves one overlap from a source array to a destination
// array. The source index of destination point q is q - Shift.
type Transaction struct {
	SrcOwner, DstOwner int
	SrcPatch, DstPatch int
	Shift              amr.IntVector
	Overlap
}

func (tx *Transaction) forEach(f func(q amr.IntVector)) {
	tx.Region.ForEach(func(q amr.IntVector) {
		if !tx.Exclude.Empty() && tx.Exclude.Contains(q) {
			return
		}
		f(q)
	})
}

// execute packs every transaction sourced on this rank, exchanges the
// buffers and unpacks every transaction destined for this rank. All ranks
// hold the same transaction list, so the receiver consumes each sender's
// buffer in the order it was written.
func execute[T amr.Scalar](c *utils.Comm, txs []Transaction, depth int,
	src, dst func(tx *Transaction) *amr.ArrayData[T]) {
	var (
		me   = c.Rank()
		send = make([][]T, c.Size())
	)
	for i := range txs {
		tx := &txs[i]
		if tx.SrcOwner != me {
			continue
		}
		arr := src(tx)
		tx.forEach(func(q amr.IntVector) {
			sp := q.Sub(tx.Shift)
			for d := 0; d < depth; d++ {
				send[tx.DstOwner] = append(send[tx.DstOwner], arr.Get(sp, d))
			}
		})
	}
	recv := utils.AllToAll(c, send)
	cursor := make([]int, c.Size())
	for i := range txs {
		tx := &txs[i]
		if tx.DstOwner != me {
			continue
		}
		var (
			arr = dst(tx)
			buf = recv[tx.SrcOwner]
		)
		tx.forEach(func(q amr.IntVector) {
			for d := 0; d < depth; d++ {
				arr.Set(q, d, buf[cursor[tx.SrcOwner]])
				cursor[tx.SrcOwner]++
			}
		})
	}
	for r, buf := range recv {
		if cursor[r] != len(buf) {
			panic(fmt.Sprintf("rank %d: consumed %d of %d values sent by rank %d", me, cursor[r], len(buf), r))
		}
	}
}

// PhysicalBoundaryStrategy fills ghost values outside the physical domain
// once the same level copies are done.
type PhysicalBoundaryStrategy interface {
	SetPhysicalBoundaryConditions(level *amr.Level, fd *amr.FieldData[float64])
}

// Schedule copies data between the patches of one level according to a
// fill pattern, including periodic images.
type Schedule struct {
	Level    *amr.Level
	Src, Dst *amr.Variable
	Pattern  FillPattern
	Bdry     PhysicalBoundaryStrategy
	txs      []Transaction
}

// NewSchedule builds the transaction list. Construction is local; every rank
// builds the same list from the replicated level geometry.
func NewSchedule(level *amr.Level, dst, src *amr.Variable, pattern FillPattern, bdry ...PhysicalBoundaryStrategy) (s *Schedule) {
	if dst.Centering != src.Centering || dst.Depth != src.Depth || dst.IsInt != src.IsInt {
		panic(fmt.Sprintf("incompatible variables %q and %q", dst.Name, src.Name))
	}
	s = &Schedule{Level: level, Src: src, Dst: dst, Pattern: pattern}
	if len(bdry) != 0 {
		s.Bdry = bdry[0]
	}
	shifts := append([]amr.IntVector{{}}, level.PeriodicShifts()...)
	for _, dp := range level.Patches {
		for _, sp := range level.Patches {
			for _, shift := range shifts {
				for _, ov := range pattern.CalculateOverlap(dp, sp, shift, dst) {
					s.txs = append(s.txs, Transaction{
						SrcOwner: sp.Owner,
						DstOwner: dp.Owner,
						SrcPatch: sp.Number,
						DstPatch: dp.Number,
						Shift:    shift,
						Overlap:  ov,
					})
				}
			}
		}
	}
	return
}

// Fill is collective over all ranks.
func (s *Schedule) Fill(c *utils.Comm) {
	if s.Dst.IsInt {
		fillLevel[int](c, s)
	} else {
		fillLevel[float64](c, s)
	}
	if s.Bdry != nil && !s.Dst.IsInt {
		for _, p := range s.Level.LocalPatches(c.Rank()) {
			s.Bdry.SetPhysicalBoundaryConditions(s.Level, amr.FloatData(p, s.Dst))
		}
	}
}

func fillLevel[T amr.Scalar](c *utils.Comm, s *Schedule) {
	execute(c, s.txs, s.Dst.Depth,
		func(tx *Transaction) *amr.ArrayData[T] {
			return amr.PatchData[T](s.Level.Patches[tx.SrcPatch], s.Src).Arrays[tx.Component]
		},
		func(tx *Transaction) *amr.ArrayData[T] {
			return amr.PatchData[T](s.Level.Patches[tx.DstPatch], s.Dst).Arrays[tx.Component]
		})
}

// NodeSynchronizer runs NodeSynchCopyFillPattern schedules in x, y, z order.
type NodeSynchronizer struct {
	scheds []*Schedule
}

func NewNodeSynchronizer(level *amr.Level, v *amr.Variable) (ns *NodeSynchronizer) {
	if v.Centering != amr.NodeCentered {
		panic(fmt.Sprintf("variable %q is not node centered", v.Name))
	}
	ns = &NodeSynchronizer{}
	for axis := 0; axis < level.Dim(); axis++ {
		ns.scheds = append(ns.scheds, NewSchedule(level, v, v, NodeSynchCopyFillPattern{Axis: axis}))
	}
	return
}

func (ns *NodeSynchronizer) Synchronize(c *utils.Comm) {
	for _, s := range ns.scheds {
		s.Fill(c)
	}
}
