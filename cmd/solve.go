/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gofac/InputParameters"
	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/fac"
	"github.com/notargets/gofac/poisson"
	"github.com/notargets/gofac/utils"
)

type SolveModel struct {
	ICFile  string
	CSVFile string
	Graph   bool
	Delay   time.Duration
	Profile bool
	Perf    bool
}

type SolveResult struct {
	History        []float64
	Cycles         int
	Converged      bool
	RMSErr, MaxErr float64
	FinestCells    int
}

// SolveCmd represents the solve command
var SolveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a manufactured problem on the grid given in the input file",
	Long: `
Solves C*u + div(D grad u) = f with u = prod(sin(k*pi*x_d)) and Robin data
taken from u, then reports the residual history and the discretization error.

gofac solve -I input.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		fmt.Println("solve called")
		sm := &SolveModel{}
		if sm.ICFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
			panic(err)
		}
		sm.CSVFile, _ = cmd.Flags().GetString("csvFile")
		sm.Graph, _ = cmd.Flags().GetBool("graph")
		dr, _ := cmd.Flags().GetInt("delay")
		sm.Delay = time.Duration(dr) * time.Millisecond
		sm.Profile, _ = cmd.Flags().GetBool("profile")
		sm.Perf, _ = cmd.Flags().GetBool("perf")
		ip := processInput(sm.ICFile)
		ip.Print()
		if sm.Profile {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		var (
			res *SolveResult
			ran bool
		)
		solve := func() error {
			ran = true
			res = RunSolve(ip)
			return nil
		}
		if sm.Perf {
			var count uint64
			if count, err = countInstructions(solve); err != nil {
				fmt.Printf("unable to read hardware counters: %s\n", err.Error())
			} else {
				fmt.Printf("CPU instructions = %d\n", count)
			}
		}
		if !ran {
			_ = solve()
		}
		report(ip, res)
		if len(sm.CSVFile) != 0 {
			if err = appendCSV(sm.CSVFile, ip, res); err != nil {
				fmt.Printf("error: %s\n", err.Error())
			}
		}
		if sm.Graph {
			utils.PlotResidualHistory(res.History, sm.Delay)
			utils.SleepFor(int(sm.Delay / time.Millisecond))
		}
	},
}

func init() {
	rootCmd.AddCommand(SolveCmd)
	SolveCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- NCells\n\t- Levels\n\t- Smoother")
	SolveCmd.Flags().StringP("csvFile", "c", "", "append the errors to this file for a convergence study")
	SolveCmd.Flags().BoolP("graph", "g", false, "display the residual history")
	SolveCmd.Flags().IntP("delay", "d", 0, "milliseconds to keep the graph up")
	SolveCmd.Flags().Bool("profile", false, "write a CPU profile of the solve")
	SolveCmd.Flags().Bool("perf", false, "count the CPU instructions of the solve")
}

func processInput(icFile string) (ip *InputParameters.FACParameters) {
	var (
		err  error
		data []byte
	)
	if len(icFile) == 0 {
		err = fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile)")
		fmt.Printf("error: %s\n", err.Error())
		exampleFile := `
########################################
Title: "Refined center"
NP: 2
NCells: [32, 32]
MaxPatchSize: 16
Levels:
  - Ratio: 2
    Boxes: [[[16, 16], [47, 47]]]
C: 0.
D: 1.
Wavenumber: 1
BCs:
  x-: {a: 1, b: 0}
  x+: {a: 0, b: 1}
Smoother: red_black_gauss_seidel # or patch_local, processor_gauss_seidel
CoarseSolver: lu # or cg, smoother
MaxCycles: 20
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		os.Exit(1)
	}
	if data, err = os.ReadFile(icFile); err != nil {
		panic(err)
	}
	ip = InputParameters.NewFACParameters()
	if err = ip.Parse(data); err != nil {
		panic(err)
	}
	if np := viper.GetInt("np"); np > 0 {
		ip.NP = np
	}
	if viper.GetBool("verbose") {
		ip.Verbose = true
	}
	return
}

// exactSolution is prod_d sin(k*pi*x_d) and its gradient.
type exactSolution struct {
	dim   int
	omega float64
}

func newExactSolution(ip *InputParameters.FACParameters) exactSolution {
	return exactSolution{dim: ip.Dim(), omega: ip.Wavenumber * math.Pi}
}

func (es exactSolution) u(x [3]float64) (u float64) {
	u = 1
	for d := 0; d < es.dim; d++ {
		u *= math.Sin(es.omega * x[d])
	}
	return
}

func (es exactSolution) du(x [3]float64, axis int) (du float64) {
	du = es.omega
	for d := 0; d < es.dim; d++ {
		if d == axis {
			du *= math.Cos(es.omega * x[d])
		} else {
			du *= math.Sin(es.omega * x[d])
		}
	}
	return
}

func (es exactSolution) bc(ip *InputParameters.FACParameters) poisson.RobinBcFunc {
	return func(location int, x [3]float64, t float64) (a, b, g float64) {
		a, b = ip.RobinCoefs(location)
		dudn := es.du(x, location/2)
		if location%2 == 0 {
			dudn = -dudn
		}
		g = a*es.u(x) + b*dudn
		return
	}
}

// RunSolve sets up the hierarchy and the manufactured problem, runs the
// preconditioner to convergence and measures the error on the cells no finer
// level covers.
func RunSolve(ip *InputParameters.FACParameters) (res *SolveResult) {
	var (
		h      = ip.NewHierarchy()
		es     = newExactSolution(ip)
		u      = h.Vars.Register("u", amr.CellCentered, 1, 1, false)
		f      = h.Vars.Register("f", amr.CellCentered, 1, 1, false)
		spec   = poisson.NewPoissonSpecifications(ip.C, ip.D)
		finest = h.FinestLevel()
		lambda = ip.C - ip.D*float64(ip.Dim())*es.omega*es.omega
	)
	res = &SolveResult{FinestCells: h.Level(finest).DomainBox().Size()[0]}
	utils.NewWorld(ip.NP).Run(func(c *utils.Comm) {
		for _, level := range h.Levels {
			level.Allocate(c.Rank(), u, f)
			for _, p := range level.LocalPatches(c.Rank()) {
				var (
					uu = amr.FloatData(p, u)
					ff = amr.FloatData(p, f).Arrays[0]
				)
				uu.Fill(0)
				p.Box.ForEach(func(q amr.IntVector) {
					ff.Set(q, 0, lambda*es.u(h.Geometry.CellCenter(q, level.Ratio)))
				})
			}
		}
		pc := fac.NewPreconditioner(fac.NewOperator(ip.Config(), spec, es.bc(ip)))
		pc.InitializeSolverState(c, h, 0, finest)
		converged := pc.SolveSystem(c, u, f)
		var (
			sum, maxErr float64
			n           int
		)
		for ln, level := range h.Levels {
			for _, p := range level.LocalPatches(c.Rank()) {
				arr := amr.FloatData(p, u).Arrays[0]
				p.Box.ForEach(func(q amr.IntVector) {
					if ln < finest && h.Level(ln+1).Boxes.Covers(q.Mul(h.Level(ln+1).RatioToCoarser)) {
						return
					}
					e := math.Abs(arr.Get(q, 0) - es.u(h.Geometry.CellCenter(q, level.Ratio)))
					sum += e * e
					maxErr = math.Max(maxErr, e)
					n++
				})
			}
		}
		var (
			total = c.AllreduceSumInt(n)
			rms   = math.Sqrt(c.AllreduceSum(sum) / float64(total))
		)
		maxErr = c.AllreduceMax(maxErr)
		pc.DeallocateSolverState(c)
		if c.Rank() == 0 {
			res.History, res.Cycles, res.Converged = pc.ResidualHistory, pc.Cycles, converged
			res.RMSErr, res.MaxErr = rms, maxErr
		}
	})
	return
}

func report(ip *InputParameters.FACParameters, res *SolveResult) {
	fmt.Printf("Residual history for %s\n", ip.Title)
	for i, rn := range res.History {
		fmt.Printf("%4d %12.6e\n", i, rn)
	}
	if n := len(res.History); n > 1 && res.History[0] > 0 {
		rate := math.Pow(res.History[n-1]/res.History[0], 1/float64(n-1))
		fmt.Printf("Average reduction per cycle = %8.5f, converged = %v\n", rate, res.Converged)
	}
	fmt.Printf("Error RMS = %12.6e, Max = %12.6e\n", res.RMSErr, res.MaxErr)
	fmt.Println(utils.GetMemUsage())
}

// appendCSV adds one line of a convergence study, writing the header for a
// new file.
func appendCSV(fileName string, ip *InputParameters.FACParameters, res *SolveResult) (err error) {
	var (
		file  *os.File
		isNew bool
	)
	if _, err = os.Stat(fileName); os.IsNotExist(err) {
		isNew = true
	}
	if file, err = os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err != nil {
		return fmt.Errorf("unable to open %s: %w", fileName, err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if isNew {
		_ = w.Write([]string{"Title", "FinestCells", "Levels", "Smoother", "Cycles", "RMS", "MAX"})
	}
	_ = w.Write([]string{
		ip.Title,
		strconv.Itoa(res.FinestCells),
		strconv.Itoa(len(ip.Levels) + 1),
		ip.Smoother,
		strconv.Itoa(res.Cycles),
		strconv.FormatFloat(res.RMSErr, 'e', 8, 64),
		strconv.FormatFloat(res.MaxErr, 'e', 8, 64),
	})
	w.Flush()
	return w.Error()
}
