package xfer

import (
	"github.com/notargets/gofac/amr"
)

// Overlap is one region of one data component that a destination patch
// receives from a source patch. Region is in destination index space;
// points inside Exclude are skipped.
type Overlap struct {
	Component int
	Region    amr.Box
	Exclude   amr.Box
}

// FillPattern decides which part of a destination patch is filled from a
// source patch whose box has been shifted by shift (nonzero for periodic
// images).
type FillPattern interface {
	CalculateOverlap(dst, src *amr.Patch, shift amr.IntVector, v *amr.Variable) []Overlap
	Name() string
}

// GhostFillPattern fills the ghost region of the destination from the
// interiors of its neighbours. Values the destination owns are never
// overwritten.
type GhostFillPattern struct{}

func (GhostFillPattern) Name() string { return "GHOST_FILL_PATTERN" }

func (GhostFillPattern) CalculateOverlap(dst, src *amr.Patch, shift amr.IntVector, v *amr.Variable) (ovs []Overlap) {
	if dst == src && shift.IsZero() {
		return
	}
	var (
		dim   = dst.Level().Dim()
		ghost = dst.Box.Grow(v.GhostVector(dim))
	)
	for comp := 0; comp < amr.NumComponents(v.Centering, dim); comp++ {
		var (
			dstGhost    = amr.ComponentBox(v.Centering, ghost, comp, dim)
			dstInterior = amr.ComponentBox(v.Centering, dst.Box, comp, dim)
			srcInterior = amr.ComponentBox(v.Centering, src.Box, comp, dim).Shift(shift)
			region      = dstGhost.Intersect(srcInterior)
		)
		if region.Empty() || dstInterior.ContainsBox(region) {
			continue
		}
		ovs = append(ovs, Overlap{Component: comp, Region: region, Exclude: dstInterior})
	}
	return
}

// NodeSynchCopyFillPattern copies node values on the upper face of the
// destination in Axis from the patch that abuts it from above. A node can be
// shared by more than two patches, so synchronization runs one axis at a
// time; after the x, y, (z) passes every shared node holds the value of the
// uppermost patch that contains it.
type NodeSynchCopyFillPattern struct {
	Axis int
}

func (NodeSynchCopyFillPattern) Name() string { return "NODE_SYNCH_COPY_FILL_PATTERN" }

func (nsp NodeSynchCopyFillPattern) CalculateOverlap(dst, src *amr.Patch, shift amr.IntVector, v *amr.Variable) (ovs []Overlap) {
	if dst == src && shift.IsZero() {
		return
	}
	var (
		dim      = dst.Level().Dim()
		dstFace  = dst.Box.NodeBox(dim).Face(nsp.Axis, 1)
		srcLower = src.Box.NodeBox(dim).Shift(shift).Face(nsp.Axis, 0)
		region   = dstFace.Intersect(srcLower)
	)
	if !region.Empty() {
		ovs = append(ovs, Overlap{Component: 0, Region: region, Exclude: amr.EmptyBox})
	}
	return
}

// SideSynchCopyFillPattern copies, for every axis, the sides on the upper
// face of the destination from the patch that abuts it there. The abutting
// patch owns those sides.
type SideSynchCopyFillPattern struct{}

func (SideSynchCopyFillPattern) Name() string { return "SIDE_SYNCH_COPY_FILL_PATTERN" }

func (SideSynchCopyFillPattern) CalculateOverlap(dst, src *amr.Patch, shift amr.IntVector, v *amr.Variable) (ovs []Overlap) {
	if dst == src && shift.IsZero() {
		return
	}
	dim := dst.Level().Dim()
	for axis := 0; axis < dim; axis++ {
		var (
			dstFace  = dst.Box.SideBox(axis).Face(axis, 1)
			srcLower = src.Box.SideBox(axis).Shift(shift).Face(axis, 0)
			region   = dstFace.Intersect(srcLower)
		)
		if !region.Empty() {
			ovs = append(ovs, Overlap{Component: axis, Region: region, Exclude: amr.EmptyBox})
		}
	}
	return
}
