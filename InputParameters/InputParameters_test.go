package InputParameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gofac/fac"
	"github.com/notargets/gofac/matutils"
)

func TestParse(t *testing.T) {
	fileInput := []byte(`
Title: Test Case
NP: 3
NCells: [8, 8, 4]
Levels:
  - Ratio: 2
    Boxes: [[[4, 4, 0], [11, 11, 7]]]
BCs:
  z+:
      a: 0.
      b: 1.
Smoother: Patch_Local
CoarseSolver: CG
PreSweeps: 3
InterpKernel: bspline_4
`)
	ip := NewFACParameters()
	require.NoError(t, ip.Parse(fileInput))
	ip.Print()
	assert.Equal(t, 3, ip.Dim())
	assert.Equal(t, []float64{1, 1, 1}, ip.XUpper)
	cfg := ip.Config()
	assert.Equal(t, fac.PatchLocal, cfg.Smoother)
	assert.Equal(t, fac.CoarseCG, cfg.CoarseSolver)
	assert.Equal(t, 3, cfg.PreSweeps)
	// unset knobs keep their defaults
	assert.Equal(t, fac.DefaultConfig().PostSweeps, cfg.PostSweeps)
	assert.Equal(t, matutils.BSpline4, ip.Kernel())
	a, b := ip.RobinCoefs(5)
	assert.Equal(t, 0., a)
	assert.Equal(t, 1., b)
	a, b = ip.RobinCoefs(0)
	assert.Equal(t, 1., a)
	assert.Equal(t, 0., b)

	h := ip.NewHierarchy()
	require.Equal(t, 2, h.NumLevels())
	assert.Len(t, h.Level(0).Patches, 1)
	assert.Equal(t, 8*8*8, h.Level(1).Boxes[0].NumPoints())

	bad := NewFACParameters()
	assert.Error(t, bad.Parse([]byte("NCells: [8]")))
	bad = NewFACParameters()
	assert.Error(t, bad.Parse([]byte("Levels:\n  - Ratio: 1\n")))
	bad = NewFACParameters()
	bad.Smoother = "jacobi"
	assert.Panics(t, func() { bad.Config() })
}
