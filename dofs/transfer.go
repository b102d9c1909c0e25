package dofs

import (
	"fmt"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/linalg"
	"github.com/notargets/gofac/utils"
	"github.com/notargets/gofac/xfer"
)

// NewLevelVec creates a distributed vector laid out like the numbering.
// Collective.
func NewLevelVec(c *utils.Comm, ld *LevelDOFs) *linalg.Vec {
	return linalg.NewVecWithLayout(c, ld.Layout)
}

func (ld *LevelDOFs) checkTransfer(c *utils.Comm, vec *linalg.Vec, dataVar *amr.Variable) {
	ld.CheckCurrent()
	if dataVar.Centering != ld.Var.Centering || dataVar.Depth != ld.Var.Depth || dataVar.IsInt {
		panic(fmt.Sprintf("variable %q does not match the DOF numbering %q", dataVar.Name, ld.Var.Name))
	}
	if vec.LocalSize() != ld.Counts[c.Rank()] {
		panic(fmt.Sprintf("vector has %d local entries, the numbering %d", vec.LocalSize(), ld.Counts[c.Rank()]))
	}
}

// forEachOwned visits every point a local patch numbered.
func (ld *LevelDOFs) forEachOwned(c *utils.Comm, f func(p *amr.Patch, comp int, q amr.IntVector, d, local int)) {
	lo, hi := ld.OwnershipRange(c.Rank())
	for _, p := range ld.Level.LocalPatches(c.Rank()) {
		fd := ld.Data(p)
		for comp, arr := range fd.Arrays {
			fd.InteriorBox(comp).ForEach(func(q amr.IntVector) {
				if ld.Var.Centering == amr.SideCentered && !OwnsSide(p, q, comp) {
					return
				}
				for d := 0; d < arr.Depth; d++ {
					if idx := arr.Get(q, d); idx >= lo && idx < hi {
						f(p, comp, q, d, idx-lo)
					}
				}
			})
		}
	}
}

// CopyToPatchLevelVec copies the owned values of dataVar on the level into
// vec.
func CopyToPatchLevelVec(c *utils.Comm, vec *linalg.Vec, dataVar *amr.Variable, ld *LevelDOFs) {
	ld.checkTransfer(c, vec, dataVar)
	ld.forEachOwned(c, func(p *amr.Patch, comp int, q amr.IntVector, d, local int) {
		vec.Data[local] = amr.FloatData(p, dataVar).Arrays[comp].Get(q, d)
	})
}

// CopyFromPatchLevelVec is the inverse of CopyToPatchLevelVec. With synch,
// side values shared between patches are then copied from their owners;
// with ghostFill, ghosts are refreshed from neighbouring patches. Collective
// when either is requested.
func CopyFromPatchLevelVec(c *utils.Comm, vec *linalg.Vec, dataVar *amr.Variable, ld *LevelDOFs, synch, ghostFill bool) {
	ld.checkTransfer(c, vec, dataVar)
	ld.forEachOwned(c, func(p *amr.Patch, comp int, q amr.IntVector, d, local int) {
		amr.FloatData(p, dataVar).Arrays[comp].Set(q, d, vec.Data[local])
	})
	if synch && dataVar.Centering == amr.SideCentered {
		xfer.NewSchedule(ld.Level, dataVar, dataVar, xfer.SideSynchCopyFillPattern{}).Fill(c)
	}
	if ghostFill && dataVar.Ghost > 0 {
		xfer.NewSchedule(ld.Level, dataVar, dataVar, xfer.GhostFillPattern{}).Fill(c)
	}
}
