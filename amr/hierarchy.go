package amr

import (
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Patch is one box of a level. Field data lives only on the rank that owns
// the patch; other ranks see the geometry alone.
type Patch struct {
	Number int
	Box    Box
	Owner  int
	level  *Level
	data   map[int]any
}

func (p *Patch) Level() *Level { return p.level }

func (p *Patch) IsAllocated(v *Variable) bool {
	_, ok := p.data[v.ID]
	return ok
}

// PatchData returns the field data for v on p. Asking for data that is not
// allocated, or with the wrong element type, is a contract violation.
func PatchData[T Scalar](p *Patch, v *Variable) *FieldData[T] {
	raw, ok := p.data[v.ID]
	if !ok {
		panic(fmt.Sprintf("variable %q not allocated on patch %d of level %d (owner %d)",
			v.Name, p.Number, p.level.Number, p.Owner))
	}
	fd, ok := raw.(*FieldData[T])
	if !ok {
		panic(fmt.Sprintf("variable %q has element type %T", v.Name, raw))
	}
	return fd
}

func FloatData(p *Patch, v *Variable) *FieldData[float64] { return PatchData[float64](p, v) }
func IntData(p *Patch, v *Variable) *FieldData[int]       { return PatchData[int](p, v) }

type Level struct {
	Number         int
	Ratio          IntVector // to level zero
	RatioToCoarser IntVector
	Patches        []*Patch
	Boxes          BoxList
	hierarchy      *Hierarchy
}

func (l *Level) Hierarchy() *Hierarchy       { return l.hierarchy }
func (l *Level) Geometry() *GridGeometry     { return l.hierarchy.Geometry }
func (l *Level) Dim() int                    { return l.hierarchy.Geometry.Dim }
func (l *Level) Dx() [3]float64              { return l.hierarchy.Geometry.Dx(l.Ratio) }
func (l *Level) DomainBox() Box              { return l.hierarchy.Geometry.DomainBox(l.Ratio) }
func (l *Level) PeriodicShifts() []IntVector { return l.hierarchy.Geometry.PeriodicShifts(l.Ratio) }

func (l *Level) Coarser() *Level {
	if l.Number == 0 {
		return nil
	}
	return l.hierarchy.Levels[l.Number-1]
}

func (l *Level) Finer() *Level {
	if l.Number+1 >= len(l.hierarchy.Levels) {
		return nil
	}
	return l.hierarchy.Levels[l.Number+1]
}

func (l *Level) LocalPatches(rank int) (patches []*Patch) {
	for _, p := range l.Patches {
		if p.Owner == rank {
			patches = append(patches, p)
		}
	}
	return
}

func (l *Level) Allocate(rank int, vars ...*Variable) {
	dim := l.Dim()
	for _, p := range l.LocalPatches(rank) {
		for _, v := range vars {
			if p.IsAllocated(v) {
				continue
			}
			if v.IsInt {
				p.data[v.ID] = NewFieldData[int](v.Centering, p.Box, v.GhostVector(dim), v.Depth, dim)
			} else {
				p.data[v.ID] = NewFieldData[float64](v.Centering, p.Box, v.GhostVector(dim), v.Depth, dim)
			}
		}
	}
}

func (l *Level) Deallocate(rank int, vars ...*Variable) {
	for _, p := range l.LocalPatches(rank) {
		for _, v := range vars {
			delete(p.data, v.ID)
		}
	}
}

// CoversCell reports whether the level has a patch over cell p, looking
// through periodic images.
func (l *Level) CoversCell(p IntVector) bool {
	return l.Boxes.Covers(l.Geometry().Wrap(p, l.Ratio))
}

// CoversSide is the side centered analogue of CoversCell.
func (l *Level) CoversSide(p IntVector, axis int) bool {
	// A side on the upper periodic face wraps onto the lower one
	q := l.Geometry().Wrap(p, l.Ratio)
	for _, b := range l.Boxes {
		if b.SideBox(axis).Contains(q) {
			return true
		}
	}
	return false
}

// PatchContaining returns the patch whose box holds cell p, or nil.
func (l *Level) PatchContaining(p IntVector) *Patch {
	q := l.Geometry().Wrap(p, l.Ratio)
	for _, patch := range l.Patches {
		if patch.Box.Contains(q) {
			return patch
		}
	}
	return nil
}

// Hierarchy is built identically on every rank before any SPMD work starts;
// afterwards only field data changes.
type Hierarchy struct {
	Geometry   *GridGeometry
	Levels     []*Level
	Vars       *VariableDatabase
	NP         int
	Verbose    bool
	generation uuid.UUID
}

func NewHierarchy(gg *GridGeometry, NP int) *Hierarchy {
	return &Hierarchy{
		Geometry:   gg,
		Vars:       NewVariableDatabase(),
		NP:         NP,
		generation: uuid.New(),
	}
}

// Generation changes whenever the level structure changes; anything built
// against an older generation is stale.
func (h *Hierarchy) Generation() uuid.UUID { return h.generation }

func (h *Hierarchy) NumLevels() int   { return len(h.Levels) }
func (h *Hierarchy) FinestLevel() int { return len(h.Levels) - 1 }

func (h *Hierarchy) Level(ln int) *Level {
	if ln < 0 || ln >= len(h.Levels) {
		panic(fmt.Sprintf("level %d out of range [0,%d]", ln, len(h.Levels)-1))
	}
	return h.Levels[ln]
}

// AddLevel appends a level finer than the current finest by ratioToCoarser.
func (h *Hierarchy) AddLevel(boxes []Box, ratioToCoarser int, lb LoadBalancer) *Level {
	var (
		dim = h.Geometry.Dim
		lvl = &Level{
			Number:    len(h.Levels),
			Boxes:     append(BoxList{}, boxes...),
			hierarchy: h,
		}
	)
	if lvl.Number == 0 {
		lvl.Ratio, lvl.RatioToCoarser = Ratio(dim, 1), Ratio(dim, 1)
	} else {
		if ratioToCoarser < 2 {
			panic(fmt.Sprintf("refinement ratio %d must be at least 2", ratioToCoarser))
		}
		lvl.RatioToCoarser = Ratio(dim, ratioToCoarser)
		lvl.Ratio = h.Levels[lvl.Number-1].Ratio.Mul(lvl.RatioToCoarser)
	}
	h.validateBoxes(lvl)
	if lb == nil {
		lb = BlockLoadBalancer{}
	}
	owners := lb.Balance(boxes, h.NP)
	for i, b := range boxes {
		lvl.Patches = append(lvl.Patches, &Patch{
			Number: i,
			Box:    b,
			Owner:  owners[i],
			level:  lvl,
			data:   make(map[int]any),
		})
	}
	h.Levels = append(h.Levels, lvl)
	h.generation = uuid.New()
	if h.Verbose {
		log.Printf("level %d: %d patches, ratio %v", lvl.Number, len(boxes), lvl.Ratio)
	}
	return lvl
}

// RemoveLevels drops levels ln and finer.
func (h *Hierarchy) RemoveLevels(ln int) {
	if ln < len(h.Levels) {
		h.Levels = h.Levels[:ln]
		h.generation = uuid.New()
	}
}

func (h *Hierarchy) validateBoxes(lvl *Level) {
	var (
		dim    = h.Geometry.Dim
		domain = h.Geometry.DomainBox(lvl.Ratio)
	)
	if len(lvl.Boxes) == 0 {
		panic(fmt.Sprintf("level %d has no boxes", lvl.Number))
	}
	for i, b := range lvl.Boxes {
		if b.Empty() || !domain.ContainsBox(b) {
			panic(fmt.Sprintf("box %v of level %d is empty or outside the domain %v", b, lvl.Number, domain))
		}
		if dim == 2 && (b.Lo[2] != 0 || b.Hi[2] != 0) {
			panic(fmt.Sprintf("box %v has a third dimension in a 2D hierarchy", b))
		}
		for j := i + 1; j < len(lvl.Boxes); j++ {
			if b.Intersects(lvl.Boxes[j]) {
				panic(fmt.Sprintf("boxes %v and %v of level %d overlap", b, lvl.Boxes[j], lvl.Number))
			}
		}
		if lvl.Number == 0 {
			continue
		}
		if !b.IsCoarsenable(lvl.RatioToCoarser) {
			panic(fmt.Sprintf("box %v of level %d is not aligned with ratio %v", b, lvl.Number, lvl.RatioToCoarser))
		}
		coarser := h.Levels[lvl.Number-1]
		b.Coarsen(lvl.RatioToCoarser).ForEach(func(p IntVector) {
			if !coarser.Boxes.Covers(p) {
				panic(fmt.Sprintf("box %v of level %d is not nested in level %d", b, lvl.Number, coarser.Number))
			}
		})
	}
}

// TileBox chops box into pieces no larger than maxSize.
func TileBox(box Box, maxSize IntVector) (tiles []Box) {
	var starts [3][]int
	for d := 0; d < 3; d++ {
		step := maxSize[d]
		if step < 1 {
			step = box.Size()[d]
		}
		for s := box.Lo[d]; s <= box.Hi[d]; s += step {
			starts[d] = append(starts[d], s)
		}
	}
	for _, k := range starts[2] {
		for _, j := range starts[1] {
			for _, i := range starts[0] {
				lo := IntVector{i, j, k}
				hi := lo.Add(maxSize).Sub(IntVector{1, 1, 1})
				for d := 0; d < 3; d++ {
					if maxSize[d] < 1 || hi[d] > box.Hi[d] {
						hi[d] = box.Hi[d]
					}
				}
				tiles = append(tiles, NewBox(lo, hi))
			}
		}
	}
	return
}
