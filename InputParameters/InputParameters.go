package InputParameters

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"

	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/fac"
	"github.com/notargets/gofac/matutils"
)

// LevelParameters describes one refined level: its ratio to the next coarser
// level and its boxes as inclusive [lo, hi] corners in the level's index space.
type LevelParameters struct {
	Ratio int        `yaml:"Ratio"`
	Boxes [][2][]int `yaml:"Boxes"`
}

// Parameters obtained from the YAML input file
type FACParameters struct {
	Title               string                        `yaml:"Title"`
	NP                  int                           `yaml:"NP"`
	NCells              []int                         `yaml:"NCells"`
	XLower              []float64                     `yaml:"XLower"`
	XUpper              []float64                     `yaml:"XUpper"`
	Periodic            []bool                        `yaml:"Periodic"`
	MaxPatchSize        int                           `yaml:"MaxPatchSize"`
	Levels              []LevelParameters             `yaml:"Levels"`
	C                   float64                       `yaml:"C"`
	D                   float64                       `yaml:"D"`
	Wavenumber          float64                       `yaml:"Wavenumber"`
	BCs                 map[string]map[string]float64 `yaml:"BCs"` // Key is the face, "x-", "x+", "y-"..., values are "a" and "b"
	Smoother            string                        `yaml:"Smoother"`
	CoarseSolver        string                        `yaml:"CoarseSolver"`
	CoarseRelTol        float64                       `yaml:"CoarseRelTol"`
	CoarseAbsTol        float64                       `yaml:"CoarseAbsTol"`
	CoarseMaxIterations int                           `yaml:"CoarseMaxIterations"`
	PreSweeps           int                           `yaml:"PreSweeps"`
	PostSweeps          int                           `yaml:"PostSweeps"`
	MaxCycles           int                           `yaml:"MaxCycles"`
	RelTol              float64                       `yaml:"RelTol"`
	AbsTol              float64                       `yaml:"AbsTol"`
	InterpKernel        string                        `yaml:"InterpKernel"`
	InterpWidth         int                           `yaml:"InterpWidth"`
	Verbose             bool                          `yaml:"Verbose"`
}

// NewFACParameters returns the defaults that a partial input file overrides.
func NewFACParameters() (ip *FACParameters) {
	cfg := fac.DefaultConfig()
	ip = &FACParameters{
		Title:               "FAC",
		NP:                  1,
		NCells:              []int{32, 32},
		MaxPatchSize:        16,
		C:                   0,
		D:                   1,
		Wavenumber:          1,
		Smoother:            "red_black_gauss_seidel",
		CoarseSolver:        "lu",
		CoarseRelTol:        cfg.CoarseRelTol,
		CoarseAbsTol:        cfg.CoarseAbsTol,
		CoarseMaxIterations: cfg.CoarseMaxIterations,
		PreSweeps:           cfg.PreSweeps,
		PostSweeps:          cfg.PostSweeps,
		MaxCycles:           cfg.MaxCycles,
		RelTol:              cfg.RelTol,
		AbsTol:              cfg.AbsTol,
		InterpKernel:        "ib_4",
		InterpWidth:         4,
	}
	return
}

func (ip *FACParameters) Parse(data []byte) (err error) {
	if err = yaml.Unmarshal(data, ip); err != nil {
		return
	}
	return ip.Validate()
}

func (ip *FACParameters) Dim() int { return len(ip.NCells) }

// Validate checks the geometry and fills the unit box when no bounds are given.
func (ip *FACParameters) Validate() error {
	dim := ip.Dim()
	if dim < 2 || dim > 3 {
		return fmt.Errorf("NCells must have 2 or 3 entries, have %d", dim)
	}
	if ip.XLower == nil {
		ip.XLower = make([]float64, dim)
	}
	if ip.XUpper == nil {
		ip.XUpper = make([]float64, dim)
		for d := range ip.XUpper {
			ip.XUpper[d] = 1
		}
	}
	if len(ip.XLower) != dim || len(ip.XUpper) != dim {
		return fmt.Errorf("XLower and XUpper must have %d entries", dim)
	}
	if ip.Periodic != nil && len(ip.Periodic) != dim {
		return fmt.Errorf("Periodic must have %d entries", dim)
	}
	if ip.NP < 1 {
		return fmt.Errorf("NP must be positive, is %d", ip.NP)
	}
	for ln, lp := range ip.Levels {
		if lp.Ratio < 2 {
			return fmt.Errorf("level %d: ratio %d must be at least 2", ln+1, lp.Ratio)
		}
		for _, b := range lp.Boxes {
			if len(b[0]) != dim || len(b[1]) != dim {
				return fmt.Errorf("level %d: box %v needs %d coordinates per corner", ln+1, b, dim)
			}
		}
	}
	return nil
}

// Config converts the solver knobs; unknown smoother or coarse solver names
// panic.
func (ip *FACParameters) Config() (cfg fac.Config) {
	cfg = fac.Config{
		Smoother:            fac.NewSmootherType(ip.Smoother),
		CoarseSolver:        fac.NewCoarseSolverType(ip.CoarseSolver),
		CoarseRelTol:        ip.CoarseRelTol,
		CoarseAbsTol:        ip.CoarseAbsTol,
		CoarseMaxIterations: ip.CoarseMaxIterations,
		PreSweeps:           ip.PreSweeps,
		PostSweeps:          ip.PostSweeps,
		MaxCycles:           ip.MaxCycles,
		RelTol:              ip.RelTol,
		AbsTol:              ip.AbsTol,
		Verbose:             ip.Verbose,
	}
	return
}

func (ip *FACParameters) Kernel() matutils.InterpKernel { return matutils.NewInterpKernel(ip.InterpKernel) }

// NewHierarchy builds the grid: level zero tiled into patches of at most
// MaxPatchSize cells, then the refined levels as given.
func (ip *FACParameters) NewHierarchy() (h *amr.Hierarchy) {
	var (
		dim  = ip.Dim()
		gg   = amr.NewGridGeometry(dim, ip.XLower, ip.XUpper, ip.NCells, ip.Periodic...)
		maxT = amr.IntVector{1, 1, 1}
	)
	for d := 0; d < dim; d++ {
		maxT[d] = ip.MaxPatchSize
	}
	h = amr.NewHierarchy(gg, ip.NP)
	h.Verbose = ip.Verbose
	h.AddLevel(amr.TileBox(gg.Domain, maxT), 1, amr.BlockLoadBalancer{})
	for _, lp := range ip.Levels {
		boxes := make([]amr.Box, len(lp.Boxes))
		for i, b := range lp.Boxes {
			var lo, hi amr.IntVector
			copy(lo[:], b[0])
			copy(hi[:], b[1])
			boxes[i] = amr.NewBox(lo, hi)
		}
		h.AddLevel(boxes, lp.Ratio, amr.RoundRobinLoadBalancer{})
	}
	return
}

var faceNames = []string{"x-", "x+", "y-", "y+", "z-", "z+"}

// RobinCoefs returns the (a, b) pair of a face location, Dirichlet when the
// face is not listed.
func (ip *FACParameters) RobinCoefs(location int) (a, b float64) {
	bc, ok := ip.BCs[faceNames[location]]
	if !ok {
		return 1, 0
	}
	return bc["a"], bc["b"]
}

func (ip *FACParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("%d\t\t\t= Ranks\n", ip.NP)
	fmt.Printf("%v\t\t= Cells on level 0\n", ip.NCells)
	fmt.Printf("%d\t\t\t= Refined levels\n", len(ip.Levels))
	fmt.Printf("%8.5f\t\t= C\n", ip.C)
	fmt.Printf("%8.5f\t\t= D\n", ip.D)
	fmt.Printf("[%s]\t= Smoother\n", ip.Smoother)
	fmt.Printf("[%s]\t\t\t= Coarse Solver\n", ip.CoarseSolver)
	fmt.Printf("[%d/%d]\t\t\t= Sweeps (pre/post)\n", ip.PreSweeps, ip.PostSweeps)
	fmt.Printf("[%s, %d]\t\t= Interpolation Kernel\n", ip.InterpKernel, ip.InterpWidth)
	keys := make([]string, len(ip.BCs))
	i := 0
	for k := range ip.BCs {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("BCs[%s] = %v\n", key, ip.BCs[key])
	}
}
