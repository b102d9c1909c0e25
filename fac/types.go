package fac

import (
	"fmt"
	"strings"
)

type SmootherType uint8

const (
	PatchLocal SmootherType = iota
	ProcessorGaussSeidel
	RedBlackGaussSeidel
)

var (
	SmootherNames = map[string]SmootherType{
		"patch_local":            PatchLocal,
		"processor_gauss_seidel": ProcessorGaussSeidel,
		"red_black_gauss_seidel": RedBlackGaussSeidel,
	}
	SmootherPrintNames = []string{"PATCH_LOCAL", "PROCESSOR_GAUSS_SEIDEL", "RED_BLACK_GAUSS_SEIDEL"}
)

func (st SmootherType) Print() (txt string) {
	txt = SmootherPrintNames[st]
	return
}

func NewSmootherType(label string) (st SmootherType) {
	var (
		ok  bool
		err error
	)
	label = strings.ToLower(strings.TrimSpace(label))
	if st, ok = SmootherNames[label]; !ok {
		err = fmt.Errorf("unable to use smoother named [%s]", label)
		panic(err)
	}
	return
}

type CoarseSolverType uint8

const (
	CoarseLU CoarseSolverType = iota
	CoarseCG
	CoarseSmoother
)

var (
	CoarseSolverNames = map[string]CoarseSolverType{
		"lu":       CoarseLU,
		"cg":       CoarseCG,
		"smoother": CoarseSmoother,
	}
	CoarseSolverPrintNames = []string{"LU", "CG", "SMOOTHER"}
)

func (cs CoarseSolverType) Print() (txt string) {
	txt = CoarseSolverPrintNames[cs]
	return
}

func NewCoarseSolverType(label string) (cs CoarseSolverType) {
	var (
		ok  bool
		err error
	)
	label = strings.ToLower(strings.TrimSpace(label))
	if cs, ok = CoarseSolverNames[label]; !ok {
		err = fmt.Errorf("unable to use coarse solver named [%s]", label)
		panic(err)
	}
	return
}

// Config holds the knobs of the operator and the cycle driving it.
type Config struct {
	Smoother            SmootherType
	CoarseSolver        CoarseSolverType
	CoarseRelTol        float64
	CoarseAbsTol        float64
	CoarseMaxIterations int
	PreSweeps           int
	PostSweeps          int
	MaxCycles           int
	RelTol              float64
	AbsTol              float64
	Verbose             bool
}

func DefaultConfig() Config {
	return Config{
		Smoother:            RedBlackGaussSeidel,
		CoarseSolver:        CoarseLU,
		CoarseRelTol:        1.e-5,
		CoarseAbsTol:        1.e-50,
		CoarseMaxIterations: 10,
		PreSweeps:           2,
		PostSweeps:          2,
		MaxCycles:           20,
		RelTol:              1.e-8,
		AbsTol:              1.e-50,
	}
}

func (cfg Config) Print() {
	fmt.Printf("Smoother                   = %s\n", cfg.Smoother.Print())
	fmt.Printf("Coarse Solver              = %s\n", cfg.CoarseSolver.Print())
	fmt.Printf("Coarse Tolerance (rel/abs) = %8.3e / %8.3e\n", cfg.CoarseRelTol, cfg.CoarseAbsTol)
	fmt.Printf("Coarse Max Iterations      = %d\n", cfg.CoarseMaxIterations)
	fmt.Printf("Sweeps (pre/post)          = %d / %d\n", cfg.PreSweeps, cfg.PostSweeps)
	fmt.Printf("Max Cycles                 = %d\n", cfg.MaxCycles)
	fmt.Printf("Tolerance (rel/abs)        = %8.3e / %8.3e\n", cfg.RelTol, cfg.AbsTol)
}
