package amr

import "fmt"

type Centering uint8

const (
	CellCentered Centering = iota
	SideCentered
	NodeCentered
)

func (c Centering) String() string {
	switch c {
	case CellCentered:
		return "cell"
	case SideCentered:
		return "side"
	case NodeCentered:
		return "node"
	}
	return "unknown"
}

type Scalar interface {
	~float64 | ~int
}

// ArrayData stores depth components over a box, depth fastest.
type ArrayData[T Scalar] struct {
	Box   Box
	Depth int
	Data  []T
}

func NewArrayData[T Scalar](box Box, depth int) *ArrayData[T] {
	if depth < 1 {
		panic(fmt.Sprintf("invalid depth %d", depth))
	}
	return &ArrayData[T]{
		Box:   box,
		Depth: depth,
		Data:  make([]T, box.NumPoints()*depth),
	}
}

func (a *ArrayData[T]) Index(p IntVector, d int) int {
	return a.Box.Offset(p)*a.Depth + d
}

func (a *ArrayData[T]) Get(p IntVector, d int) T {
	return a.Data[a.Index(p, d)]
}

func (a *ArrayData[T]) Set(p IntVector, d int, v T) {
	a.Data[a.Index(p, d)] = v
}

func (a *ArrayData[T]) Fill(v T) {
	for i := range a.Data {
		a.Data[i] = v
	}
}

// FillBox sets every component inside region.
func (a *ArrayData[T]) FillBox(region Box, v T) {
	region.Intersect(a.Box).ForEach(func(p IntVector) {
		for d := 0; d < a.Depth; d++ {
			a.Set(p, d, v)
		}
	})
}

// CopyBox copies src over region; both arrays must contain it.
func (a *ArrayData[T]) CopyBox(src *ArrayData[T], region Box) {
	region.Intersect(a.Box).Intersect(src.Box).ForEach(func(p IntVector) {
		for d := 0; d < a.Depth; d++ {
			a.Set(p, d, src.Get(p, d))
		}
	})
}

// FieldData holds one ArrayData per component: one for cell and node data,
// one per axis for side data.
type FieldData[T Scalar] struct {
	Centering Centering
	Interior  Box // cell box of the patch
	Ghost     IntVector
	Depth     int
	Dim       int
	Arrays    []*ArrayData[T]
}

func NewFieldData[T Scalar](centering Centering, interior Box, ghost IntVector, depth, dim int) (fd *FieldData[T]) {
	fd = &FieldData[T]{
		Centering: centering,
		Interior:  interior,
		Ghost:     ghost,
		Depth:     depth,
		Dim:       dim,
	}
	for comp := 0; comp < NumComponents(centering, dim); comp++ {
		fd.Arrays = append(fd.Arrays, NewArrayData[T](ComponentBox(centering, interior.Grow(ghost), comp, dim), depth))
	}
	return
}

func NumComponents(centering Centering, dim int) int {
	if centering == SideCentered {
		return dim
	}
	return 1
}

// ComponentBox maps a cell box to the index box of one component.
func ComponentBox(centering Centering, cells Box, comp, dim int) Box {
	switch centering {
	case SideCentered:
		return cells.SideBox(comp)
	case NodeCentered:
		return cells.NodeBox(dim)
	}
	return cells
}

func (fd *FieldData[T]) GhostBox() Box { return fd.Interior.Grow(fd.Ghost) }

// InteriorBox is the component index box without ghosts.
func (fd *FieldData[T]) InteriorBox(comp int) Box {
	return ComponentBox(fd.Centering, fd.Interior, comp, fd.Dim)
}

func (fd *FieldData[T]) Fill(v T) {
	for _, a := range fd.Arrays {
		a.Fill(v)
	}
}
