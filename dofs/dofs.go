package dofs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/utils"
	"github.com/notargets/gofac/xfer"
)

// Unset marks DOF index entries that are ghosts, outside the level, or
// owned by another patch that has not been synchronized.
const Unset = -1

// LevelDOFs is the DOF numbering of one level. Indices on each rank form
// the contiguous range given by Layout.
type LevelDOFs struct {
	Level      *amr.Level
	Var        *amr.Variable
	Counts     []int
	Layout     *utils.PartitionMap
	generation uuid.UUID
}

// CheckCurrent panics when the hierarchy changed after the numbering was
// built.
func (ld *LevelDOFs) CheckCurrent() {
	if ld.Level.Hierarchy().Generation() != ld.generation {
		panic(fmt.Sprintf("DOF indices of level %d are stale: the hierarchy changed", ld.Level.Number))
	}
}

func (ld *LevelDOFs) Total() int { return ld.Layout.MaxIndex }

// OwnershipRange is the half open global range numbered on rank.
func (ld *LevelDOFs) OwnershipRange(rank int) (lo, hi int) { return ld.Layout.GetBucketRange(rank) }

// Data returns the index field of a local patch.
func (ld *LevelDOFs) Data(p *amr.Patch) *amr.FieldData[int] { return amr.IntData(p, ld.Var) }

// OwnsSide reports whether patch p numbers side q normal to axis. A side on
// the upper face of p that is also on the lower face of another patch, or of
// a periodic image, belongs to that patch.
func OwnsSide(p *amr.Patch, q amr.IntVector, axis int) bool {
	if q[axis] != p.Box.Hi[axis]+1 {
		return true
	}
	level := p.Level()
	shifts := append([]amr.IntVector{{}}, level.PeriodicShifts()...)
	for _, other := range level.Patches {
		for _, shift := range shifts {
			if other == p && shift.IsZero() {
				continue
			}
			if other.Box.Shift(shift).SideBox(axis).Face(axis, 0).Contains(q) {
				return false
			}
		}
	}
	return true
}

// ConstructPatchLevelDOFIndices numbers the points of dofVar on level.
// Cell centered indices run lexicographically over each local patch, first
// axis fastest, depth innermost. Side centered indices interleave the axes:
// at each point of the node box every owned side with that index is
// numbered, axis 0 first. Ghost entries receive the numbering of the patch
// that owns them. Collective.
func ConstructPatchLevelDOFIndices(c *utils.Comm, level *amr.Level, dofVar *amr.Variable, depth int) (ld *LevelDOFs) {
	if !dofVar.IsInt {
		panic(fmt.Sprintf("DOF variable %q must be integer valued", dofVar.Name))
	}
	if dofVar.Depth != depth {
		panic(fmt.Sprintf("DOF variable %q has depth %d, expected %d", dofVar.Name, dofVar.Depth, depth))
	}
	if dofVar.Centering == amr.NodeCentered {
		panic("node centered DOF numbering is not supported")
	}
	level.Allocate(c.Rank(), dofVar)
	var (
		dim     = level.Dim()
		patches = level.LocalPatches(c.Rank())
		local   int
	)
	// First pass counts so the global offset is known before numbering.
	for pass := 0; pass < 2; pass++ {
		var offset int
		if pass == 1 {
			ld = &LevelDOFs{
				Level:      level,
				Var:        dofVar,
				Counts:     c.AllgatherInt(local),
				generation: level.Hierarchy().Generation(),
			}
			ld.Layout = utils.NewPartitionMapFromCounts(ld.Counts)
			offset, _ = ld.Layout.GetBucketRange(c.Rank())
		}
		local = 0
		for _, p := range patches {
			fd := amr.IntData(p, dofVar)
			if pass == 1 {
				fd.Fill(Unset)
			}
			number := func(arr *amr.ArrayData[int], q amr.IntVector) {
				for d := 0; d < depth; d++ {
					if pass == 1 {
						arr.Set(q, d, offset+local)
					}
					local++
				}
			}
			switch dofVar.Centering {
			case amr.CellCentered:
				p.Box.ForEach(func(q amr.IntVector) { number(fd.Arrays[0], q) })
			case amr.SideCentered:
				p.Box.NodeBox(dim).ForEach(func(q amr.IntVector) {
					for axis := 0; axis < dim; axis++ {
						if fd.InteriorBox(axis).Contains(q) && OwnsSide(p, q, axis) {
							number(fd.Arrays[axis], q)
						}
					}
				})
			}
		}
	}
	if dofVar.Centering == amr.SideCentered {
		xfer.NewSchedule(level, dofVar, dofVar, xfer.SideSynchCopyFillPattern{}).Fill(c)
	}
	if dofVar.Ghost > 0 {
		xfer.NewSchedule(level, dofVar, dofVar, xfer.GhostFillPattern{}).Fill(c)
	}
	return
}
