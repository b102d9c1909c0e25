package matutils

import (
	"fmt"
	"math"
	"strings"
)

type InterpKernel uint8

const (
	PiecewiseLinear InterpKernel = iota
	IB3
	IB4
	BSpline4
)

var (
	KernelNames = map[string]InterpKernel{
		"piecewise_linear": PiecewiseLinear,
		"ib_3":             IB3,
		"ib_4":             IB4,
		"bspline_4":        BSpline4,
	}
	KernelPrintNames = []string{"PIECEWISE_LINEAR", "IB_3", "IB_4", "BSPLINE_4"}
	kernelWidths     = []int{2, 3, 4, 4}
)

func (k InterpKernel) Print() (txt string) {
	txt = KernelPrintNames[k]
	return
}

func NewInterpKernel(label string) (k InterpKernel) {
	var (
		ok  bool
		err error
	)
	label = strings.ToLower(strings.TrimSpace(label))
	if k, ok = KernelNames[label]; !ok {
		err = fmt.Errorf("unable to use interpolation kernel named [%s]", label)
		panic(err)
	}
	return
}

// Width is the support of the kernel in grid cells.
func (k InterpKernel) Width() int { return kernelWidths[k] }

// Eval returns the 1D kernel weight at distance r, in grid cells.
func (k InterpKernel) Eval(r float64) float64 {
	r = math.Abs(r)
	switch k {
	case PiecewiseLinear:
		if r < 1 {
			return 1 - r
		}
	case IB3:
		switch {
		case r < 0.5:
			return (1 + math.Sqrt(1-3*r*r)) / 3
		case r < 1.5:
			return (5 - 3*r - math.Sqrt(-2+6*r-3*r*r)) / 6
		}
	case IB4:
		switch {
		case r < 1:
			return (3 - 2*r + math.Sqrt(1+4*r-4*r*r)) / 8
		case r < 2:
			return (5 - 2*r - math.Sqrt(-7+12*r-4*r*r)) / 8
		}
	case BSpline4:
		switch {
		case r < 1:
			return 2./3 - r*r + r*r*r/2
		case r < 2:
			return (2 - r) * (2 - r) * (2 - r) / 6
		}
	}
	return 0
}

// StencilWidth rounds an odd requested width up to the next even width.
func StencilWidth(width int) int {
	if width%2 == 1 {
		width++
	}
	if width < 2 {
		panic(fmt.Sprintf("unsupported interpolation stencil width %d", width))
	}
	return width
}
