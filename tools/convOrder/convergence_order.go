package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
)

var (
	csvFile string
)

func main() {
	csvFilePtr := flag.String("csvFile", csvFile, "file containing entries of a convergence study, as written by gofac solve -c")
	flag.Parse()
	csvFile = *csvFilePtr
	if len(csvFile) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	fmt.Printf("Input file: %v\n", csvFile)
	studies, err := readCSV(csvFile)
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
	keys := make([]string, 0, len(studies))
	for k := range studies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cs := studies[key]
		cs.Sort()
		fmt.Printf("Title = %s, Levels = %d, Smoother = %s\n", cs.title, cs.levels, cs.smoother)
		rmsOrder, maxOrder := cs.Orders()
		for i := range cs.cells {
			fmt.Printf("%d, %d, %v, %v", cs.cells[i], cs.cycles[i], cs.rms[i], cs.maxErr[i])
			if i > 0 {
				fmt.Printf(", order %5.2f, %5.2f", rmsOrder[i-1], maxOrder[i-1])
			}
			fmt.Println()
		}
	}
}

type ConvergenceStudy struct {
	title       string
	levels      int
	smoother    string
	cells       []int
	cycles      []int
	rms, maxErr []float64
}

func NewConvergenceStudy(title string, levels int, smoother string) *ConvergenceStudy {
	return &ConvergenceStudy{
		title:    title,
		levels:   levels,
		smoother: smoother,
	}
}

func (cs *ConvergenceStudy) Add(cells, cycles int, rms, maxErr float64) {
	cs.cells = append(cs.cells, cells)
	cs.cycles = append(cs.cycles, cycles)
	cs.rms = append(cs.rms, rms)
	cs.maxErr = append(cs.maxErr, maxErr)
}

func (cs *ConvergenceStudy) Len() int           { return len(cs.cells) }
func (cs *ConvergenceStudy) Less(i, j int) bool { return cs.cells[i] < cs.cells[j] }
func (cs *ConvergenceStudy) Swap(i, j int) {
	cs.cells[i], cs.cells[j] = cs.cells[j], cs.cells[i]
	cs.cycles[i], cs.cycles[j] = cs.cycles[j], cs.cycles[i]
	cs.rms[i], cs.rms[j] = cs.rms[j], cs.rms[i]
	cs.maxErr[i], cs.maxErr[j] = cs.maxErr[j], cs.maxErr[i]
}

// Sort orders the runs by resolution.
func (cs *ConvergenceStudy) Sort() { sort.Sort(cs) }

// Orders returns the observed orders of accuracy between successive runs.
func (cs *ConvergenceStudy) Orders() (rmsOrder, maxOrder []float64) {
	for i := 1; i < len(cs.cells); i++ {
		ratio := math.Log(float64(cs.cells[i]) / float64(cs.cells[i-1]))
		rmsOrder = append(rmsOrder, math.Log(cs.rms[i-1]/cs.rms[i])/ratio)
		maxOrder = append(maxOrder, math.Log(cs.maxErr[i-1]/cs.maxErr[i])/ratio)
	}
	return
}

func readCSV(csvFile string) (studies map[string]*ConvergenceStudy, err error) {
	var (
		records     [][]string
		f           *os.File
		ok          bool
		cs          *ConvergenceStudy
		rms, maxErr float64
	)
	studies = make(map[string]*ConvergenceStudy)
	if f, err = os.Open(csvFile); err != nil {
		return
	}
	defer f.Close()
	r := csv.NewReader(bufio.NewReader(f))
	if records, err = r.ReadAll(); err != nil {
		return
	}
	for i, rec := range records {
		if i == 0 {
			continue
		}
		if len(rec) < 7 {
			return nil, fmt.Errorf("line %d has %d fields, want 7", i+1, len(rec))
		}
		title, cellstxt, levelstxt, smoother := rec[0], rec[1], rec[2], rec[3]
		cells, _ := strconv.Atoi(cellstxt)
		levels, _ := strconv.Atoi(levelstxt)
		cycles, _ := strconv.Atoi(rec[4])
		combTitle := title + levelstxt + smoother
		if cs, ok = studies[combTitle]; !ok {
			cs = NewConvergenceStudy(title, levels, smoother)
			studies[combTitle] = cs
		}
		_, _ = fmt.Sscanf(rec[5], "%g", &rms)
		_, _ = fmt.Sscanf(rec[6], "%g", &maxErr)
		cs.Add(cells, cycles, rms, maxErr)
	}
	return
}
