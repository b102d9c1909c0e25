package amr

import "fmt"

// IntVector is a cell, side or node index. Two dimensional problems leave
// the third component at zero.
type IntVector [3]int

func Unit(axis int) (e IntVector) {
	e[axis] = 1
	return
}

// Uniform returns v in the first dim components and zero elsewhere.
func Uniform(dim, v int) (iv IntVector) {
	for d := 0; d < dim; d++ {
		iv[d] = v
	}
	return
}

func (a IntVector) Add(b IntVector) IntVector {
	return IntVector{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func (a IntVector) Sub(b IntVector) IntVector {
	return IntVector{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func (a IntVector) Scale(s int) IntVector {
	return IntVector{s * a[0], s * a[1], s * a[2]}
}

func (a IntVector) Mul(b IntVector) IntVector {
	return IntVector{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// Coarsen divides by r rounding toward minus infinity.
func (a IntVector) Coarsen(r IntVector) (c IntVector) {
	for d := 0; d < 3; d++ {
		c[d] = floorDiv(a[d], r[d])
	}
	return
}

func (a IntVector) IsZero() bool { return a == IntVector{} }

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - b*floorDiv(a, b)
}

// Box is an inclusive index range.
type Box struct {
	Lo, Hi IntVector
}

func NewBox(lo, hi IntVector) Box { return Box{Lo: lo, Hi: hi} }

// EmptyBox has Hi < Lo in every component.
var EmptyBox = Box{Lo: IntVector{0, 0, 0}, Hi: IntVector{-1, -1, -1}}

func (b Box) String() string {
	return fmt.Sprintf("[(%d,%d,%d),(%d,%d,%d)]", b.Lo[0], b.Lo[1], b.Lo[2], b.Hi[0], b.Hi[1], b.Hi[2])
}

func (b Box) Empty() bool {
	return b.Hi[0] < b.Lo[0] || b.Hi[1] < b.Lo[1] || b.Hi[2] < b.Lo[2]
}

func (b Box) Size() (s IntVector) {
	if b.Empty() {
		return
	}
	return b.Hi.Sub(b.Lo).Add(IntVector{1, 1, 1})
}

func (b Box) NumPoints() int {
	s := b.Size()
	return s[0] * s[1] * s[2]
}

func (b Box) Contains(p IntVector) bool {
	return p[0] >= b.Lo[0] && p[0] <= b.Hi[0] &&
		p[1] >= b.Lo[1] && p[1] <= b.Hi[1] &&
		p[2] >= b.Lo[2] && p[2] <= b.Hi[2]
}

func (b Box) ContainsBox(o Box) bool {
	if o.Empty() {
		return true
	}
	return b.Contains(o.Lo) && b.Contains(o.Hi)
}

func (b Box) Intersect(o Box) (r Box) {
	for d := 0; d < 3; d++ {
		r.Lo[d] = max(b.Lo[d], o.Lo[d])
		r.Hi[d] = min(b.Hi[d], o.Hi[d])
	}
	if r.Empty() {
		return EmptyBox
	}
	return
}

func (b Box) Intersects(o Box) bool { return !b.Intersect(o).Empty() }

func (b Box) Grow(g IntVector) Box {
	return Box{Lo: b.Lo.Sub(g), Hi: b.Hi.Add(g)}
}

func (b Box) Shift(s IntVector) Box {
	return Box{Lo: b.Lo.Add(s), Hi: b.Hi.Add(s)}
}

func (b Box) Coarsen(r IntVector) Box {
	return Box{Lo: b.Lo.Coarsen(r), Hi: b.Hi.Coarsen(r)}
}

func (b Box) Refine(r IntVector) Box {
	return Box{Lo: b.Lo.Mul(r), Hi: b.Hi.Add(IntVector{1, 1, 1}).Mul(r).Sub(IntVector{1, 1, 1})}
}

// SideBox is the box of side indices normal to axis; side i sits on the
// lower face of cell i.
func (b Box) SideBox(axis int) Box {
	b.Hi[axis]++
	return b
}

// NodeBox is the box of node indices; node i sits on the lower corner of
// cell i.
func (b Box) NodeBox(dim int) Box {
	for d := 0; d < dim; d++ {
		b.Hi[d]++
	}
	return b
}

// Face returns the single layer of b at the given side of axis.
func (b Box) Face(axis, side int) Box {
	if side == 0 {
		b.Hi[axis] = b.Lo[axis]
	} else {
		b.Lo[axis] = b.Hi[axis]
	}
	return b
}

// Offset is the lexicographic position of p in b, first axis fastest.
func (b Box) Offset(p IntVector) int {
	s := b.Size()
	return (p[0] - b.Lo[0]) + s[0]*((p[1]-b.Lo[1])+s[1]*(p[2]-b.Lo[2]))
}

// ForEach visits the points of b in lexicographic order, first axis fastest.
func (b Box) ForEach(f func(p IntVector)) {
	if b.Empty() {
		return
	}
	var p IntVector
	for p[2] = b.Lo[2]; p[2] <= b.Hi[2]; p[2]++ {
		for p[1] = b.Lo[1]; p[1] <= b.Hi[1]; p[1]++ {
			for p[0] = b.Lo[0]; p[0] <= b.Hi[0]; p[0]++ {
				f(p)
			}
		}
	}
}

// ForEachReverse visits the points of b in the opposite order to ForEach.
func (b Box) ForEachReverse(f func(p IntVector)) {
	if b.Empty() {
		return
	}
	var p IntVector
	for p[2] = b.Hi[2]; p[2] >= b.Lo[2]; p[2]-- {
		for p[1] = b.Hi[1]; p[1] >= b.Lo[1]; p[1]-- {
			for p[0] = b.Hi[0]; p[0] >= b.Lo[0]; p[0]-- {
				f(p)
			}
		}
	}
}

// IsCoarsenable reports whether b is aligned with ratio r.
func (b Box) IsCoarsenable(r IntVector) bool {
	for d := 0; d < 3; d++ {
		if floorMod(b.Lo[d], r[d]) != 0 || floorMod(b.Hi[d]+1, r[d]) != 0 {
			return false
		}
	}
	return true
}

type BoxList []Box

// Covers reports whether p lies in one of the boxes.
func (bl BoxList) Covers(p IntVector) bool {
	for _, b := range bl {
		if b.Contains(p) {
			return true
		}
	}
	return false
}

// FindOverlap returns the indices of the boxes that intersect b.
func (bl BoxList) FindOverlap(b Box) (idx []int) {
	for i, o := range bl {
		if o.Intersects(b) {
			idx = append(idx, i)
		}
	}
	return
}
