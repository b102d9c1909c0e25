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
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/notargets/gofac/InputParameters"
	"github.com/notargets/gofac/amr"
	"github.com/notargets/gofac/dofs"
	"github.com/notargets/gofac/linalg"
	"github.com/notargets/gofac/matutils"
	"github.com/notargets/gofac/readfiles"
	"github.com/notargets/gofac/utils"
)

// InterpCmd represents the interp command
var InterpCmd = &cobra.Command{
	Use:   "interp",
	Short: "Interpolate a side centered field to the points of a vertex file",
	Long: `
Builds the point to grid interpolation operator for the markers of a .vertex
file on level 0 and applies it to the gradient of the manufactured solution.

gofac interp -I input.yaml -V markers.vertex`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
			X   []float64
		)
		fmt.Println("interp called")
		icFile, _ := cmd.Flags().GetString("inputConditionsFile")
		vertexFile, _ := cmd.Flags().GetString("vertexFile")
		ip := processInput(icFile)
		ip.Print()
		if X, err = readfiles.ReadVertexFile(vertexFile, ip.Dim()); err != nil {
			panic(err)
		}
		values, maxErr := RunInterp(ip, X)
		dim := ip.Dim()
		for k := 0; k < len(X)/dim; k++ {
			fmt.Printf("%v -> %v\n", X[dim*k:dim*(k+1)], values[dim*k:dim*(k+1)])
		}
		fmt.Printf("Max interpolation error = %12.6e\n", maxErr)
	},
}

func init() {
	rootCmd.AddCommand(InterpCmd)
	InterpCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for the grid and the interpolation kernel")
	InterpCmd.Flags().StringP("vertexFile", "V", "", "marker points in .vertex format")
}

// RunInterp interpolates the side centered gradient of the manufactured
// solution to X, holding dim coordinates per point. Points are dealt to the
// ranks in turn; the values come back in the order of X with the largest
// deviation from the exact gradient.
func RunInterp(ip *InputParameters.FACParameters, X []float64) (values []float64, maxErr float64) {
	var (
		dim    = ip.Dim()
		h      = ip.NewHierarchy()
		level  = h.Level(0)
		es     = newExactSolution(ip)
		kernel = ip.Kernel()
		ghost  = matutils.StencilWidth(ip.InterpWidth) / 2
		dofVar = h.Vars.Register("interp::dof", amr.SideCentered, 1, ghost, true)
		grad   = h.Vars.Register("interp::grad", amr.SideCentered, 1, 0, false)
		nPts   = len(X) / dim
	)
	values = make([]float64, len(X))
	utils.NewWorld(ip.NP).Run(func(c *utils.Comm) {
		var mine []int
		for k := c.Rank(); k < nPts; k += c.Size() {
			mine = append(mine, k)
		}
		local := make([]float64, 0, dim*len(mine))
		for _, k := range mine {
			local = append(local, X[dim*k:dim*(k+1)]...)
		}
		var (
			ld = dofs.ConstructPatchLevelDOFIndices(c, level, dofVar, 1)
			A  = matutils.ConstructPatchLevelSCInterpOp(c, kernel, ip.InterpWidth, local, ld)
			g  = dofs.NewLevelVec(c, ld)
			y  = linalg.NewVec(c, len(local))
		)
		level.Allocate(c.Rank(), grad)
		for _, p := range level.LocalPatches(c.Rank()) {
			for axis, arr := range amr.FloatData(p, grad).Arrays {
				arr.Box.ForEach(func(s amr.IntVector) {
					arr.Set(s, 0, es.du(h.Geometry.SideCenter(s, axis, level.Ratio), axis))
				})
			}
		}
		dofs.CopyToPatchLevelVec(c, g, grad, ld)
		A.Mult(c, g, y)
		var (
			maxE float64
			sent = make([]float64, 0, len(local))
		)
		for i, k := range mine {
			var x [3]float64
			copy(x[:], X[dim*k:dim*(k+1)])
			for axis := 0; axis < dim; axis++ {
				v := y.Data[dim*i+axis]
				maxE = math.Max(maxE, math.Abs(v-es.du(x, axis)))
				sent = append(sent, v)
			}
		}
		all := utils.Allgather(c, sent)
		maxE = c.AllreduceMax(maxE)
		level.Deallocate(c.Rank(), grad)
		if c.Rank() == 0 {
			for r, vals := range all {
				for i := 0; i < len(vals)/dim; i++ {
					k := r + i*c.Size()
					copy(values[dim*k:dim*(k+1)], vals[dim*i:dim*(i+1)])
				}
			}
			maxErr = maxE
		}
	})
	return
}
