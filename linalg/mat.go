package linalg

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofac/utils"
)

type InsertMode uint8

const (
	InsertValues InsertMode = iota
	AddValues
)

var (
	ErrNewNonzeroAllocation = errors.New("new nonzero beyond the preallocated row length")
	ErrAssembled            = errors.New("matrix is already assembled")
	ErrColumnOutOfRange     = errors.New("column index out of range")
)

// Mat is a row distributed sparse matrix. Each rank owns a contiguous block
// of rows; within it the columns owned by the same rank form the diagonal
// block and all others the off-diagonal block. Storage is preallocated per
// row for both blocks and any entry beyond it is an error.
type Mat struct {
	RowLayout, ColLayout *utils.PartitionMap
	rank                 int
	rStart, rEnd         int
	cStart, cEnd         int
	dnnz, onnz           []int

	// staging, before assembly
	diag    utils.DOK
	off     utils.DOK
	rowCols []map[int]struct{}
	dCount  []int
	oCount  []int

	// after assembly
	assembled bool
	A, B      utils.CSR // diagonal block, off-diagonal block over garray
	garray    []int     // off-diagonal column -> global column
	sendIdx   [][]int   // local x entries each rank needs from this one
	recvCount []int
	pending   [][]int
}

// NewMatAIJ is collective. dnnz and onnz give the number of distinct
// columns each local row may hold in the diagonal and off-diagonal blocks.
func NewMatAIJ(c *utils.Comm, mLocal, nLocal int, dnnz, onnz []int) (m *Mat) {
	if len(dnnz) != mLocal || len(onnz) != mLocal {
		panic(fmt.Sprintf("preallocation arrays have length %d/%d for %d local rows", len(dnnz), len(onnz), mLocal))
	}
	m = &Mat{
		RowLayout: utils.NewPartitionMapFromCounts(c.AllgatherInt(mLocal)),
		ColLayout: utils.NewPartitionMapFromCounts(c.AllgatherInt(nLocal)),
		rank:      c.Rank(),
		dnnz:      append([]int{}, dnnz...),
		onnz:      append([]int{}, onnz...),
		rowCols:   make([]map[int]struct{}, mLocal),
		dCount:    make([]int, mLocal),
		oCount:    make([]int, mLocal),
	}
	m.rStart, m.rEnd = m.RowLayout.GetBucketRange(m.rank)
	m.cStart, m.cEnd = m.ColLayout.GetBucketRange(m.rank)
	for i := range m.rowCols {
		m.rowCols[i] = make(map[int]struct{}, dnnz[i]+onnz[i])
	}
	m.diag = utils.NewDOK(max(mLocal, 1), max(nLocal, 1))
	m.off = utils.NewDOK(max(mLocal, 1), max(m.ColLayout.MaxIndex, 1))
	return
}

func (m *Mat) OwnershipRange() (lo, hi int)       { return m.rStart, m.rEnd }
func (m *Mat) ColumnOwnershipRange() (lo, hi int) { return m.cStart, m.cEnd }
func (m *Mat) LocalRows() int                     { return m.rEnd - m.rStart }
func (m *Mat) GlobalSize() (rows, cols int)       { return m.RowLayout.MaxIndex, m.ColLayout.MaxIndex }
func (m *Mat) Assembled() bool                    { return m.assembled }

// Preallocation returns the diagonal and off-diagonal allowance of a local row.
func (m *Mat) Preallocation(localRow int) (d, o int) { return m.dnnz[localRow], m.onnz[localRow] }

// RowNNZ returns the number of distinct diagonal and off-diagonal columns
// stored in a local row.
func (m *Mat) RowNNZ(localRow int) (d, o int) { return m.dCount[localRow], m.oCount[localRow] }

// SetValues writes one row. Negative column indices are ignored. Only rows
// owned by the calling rank may be set.
func (m *Mat) SetValues(row int, cols []int, vals []float64, mode InsertMode) error {
	if m.assembled {
		return ErrAssembled
	}
	if row < m.rStart || row >= m.rEnd {
		panic(fmt.Sprintf("rank %d: row %d outside owned range [%d,%d)", m.rank, row, m.rStart, m.rEnd))
	}
	if len(cols) != len(vals) {
		panic(fmt.Sprintf("%d columns for %d values", len(cols), len(vals)))
	}
	i := row - m.rStart
	for k, col := range cols {
		if col < 0 {
			continue
		}
		if col >= m.ColLayout.MaxIndex {
			return fmt.Errorf("%w: row %d column %d of %d", ErrColumnOutOfRange, row, col, m.ColLayout.MaxIndex)
		}
		isDiag := col >= m.cStart && col < m.cEnd
		if _, present := m.rowCols[i][col]; !present {
			if isDiag {
				if m.dCount[i] == m.dnnz[i] {
					return fmt.Errorf("%w: row %d column %d, diagonal block allows %d", ErrNewNonzeroAllocation, row, col, m.dnnz[i])
				}
				m.dCount[i]++
			} else {
				if m.oCount[i] == m.onnz[i] {
					return fmt.Errorf("%w: row %d column %d, off-diagonal block allows %d", ErrNewNonzeroAllocation, row, col, m.onnz[i])
				}
				m.oCount[i]++
			}
			m.rowCols[i][col] = struct{}{}
		}
		store, j := m.off, col
		if isDiag {
			store, j = m.diag, col-m.cStart
		}
		if mode == AddValues {
			store.Add(i, j, vals[k])
		} else {
			store.Set(i, j, vals[k])
		}
	}
	return nil
}

// AssemblyBegin is collective: it fixes the off-diagonal column set and tells
// each owner which of its vector entries this rank will need.
func (m *Mat) AssemblyBegin(c *utils.Comm) {
	if m.assembled {
		return
	}
	ghostSet := make(map[int]struct{})
	for i := range m.rowCols {
		for col := range m.rowCols[i] {
			if col < m.cStart || col >= m.cEnd {
				ghostSet[col] = struct{}{}
			}
		}
	}
	m.garray = make([]int, 0, len(ghostSet))
	for col := range ghostSet {
		m.garray = append(m.garray, col)
	}
	sort.Ints(m.garray)
	requests := make([][]int, c.Size())
	m.recvCount = make([]int, c.Size())
	for _, col := range m.garray {
		owner, _, _ := m.ColLayout.GetBucket(col)
		requests[owner] = append(requests[owner], col)
		m.recvCount[owner]++
	}
	m.pending = utils.AllToAll(c, requests)
}

// AssemblyEnd is collective; afterwards the matrix is read only.
func (m *Mat) AssemblyEnd(c *utils.Comm) {
	if m.assembled {
		return
	}
	m.sendIdx = make([][]int, c.Size())
	for r, cols := range m.pending {
		for _, col := range cols {
			m.sendIdx[r] = append(m.sendIdx[r], col-m.cStart)
		}
	}
	m.pending = nil
	compact := make(map[int]int, len(m.garray))
	for k, col := range m.garray {
		compact[col] = k
	}
	off := utils.NewDOK(max(m.LocalRows(), 1), max(len(m.garray), 1))
	m.off.M.DoNonZero(func(i, j int, v float64) {
		off.Set(i, compact[j], v)
	})
	m.diag.SetReadOnly("diagonal block")
	m.A = m.diag.ToCSR()
	m.B = off.ToCSR()
	m.off = utils.DOK{}
	m.assembled = true
	c.Barrier()
}

// Assemble runs both assembly phases.
func (m *Mat) Assemble(c *utils.Comm) {
	m.AssemblyBegin(c)
	m.AssemblyEnd(c)
}

func (m *Mat) checkAssembled() {
	if !m.assembled {
		panic("matrix used before assembly")
	}
}

func (m *Mat) NumGhosts() int { return len(m.garray) }

// GhostValues collects the off-rank entries of x referenced by this rank's
// rows, in off-diagonal column order. Collective.
func (m *Mat) GhostValues(c *utils.Comm, x *Vec) (ghosts []float64) {
	m.checkAssembled()
	send := make([][]float64, c.Size())
	for r, idx := range m.sendIdx {
		for _, k := range idx {
			send[r] = append(send[r], x.Data[k])
		}
	}
	ghosts = make([]float64, 0, len(m.garray))
	for r, vals := range utils.AllToAll(c, send) {
		if len(vals) != m.recvCount[r] {
			panic(fmt.Sprintf("rank %d: expected %d ghost values from rank %d, got %d", m.rank, m.recvCount[r], r, len(vals)))
		}
		ghosts = append(ghosts, vals...)
	}
	return
}

// LocalRow exposes a local row: diagonal block columns are local column
// indices, off-diagonal columns index the ghost array.
func (m *Mat) LocalRow(i int) (dcols []int, dvals []float64, ocols []int, ovals []float64) {
	m.checkAssembled()
	dcols, dvals = m.A.Row(i)
	ocols, ovals = m.B.Row(i)
	return
}

// Diagonal returns the local part of the main diagonal.
func (m *Mat) Diagonal() (diag []float64) {
	diag = make([]float64, m.LocalRows())
	for i := range diag {
		dcols, dvals, _, _ := m.LocalRow(i)
		for k, j := range dcols {
			if j+m.cStart == i+m.rStart {
				diag[i] += dvals[k]
			}
		}
	}
	return
}

// Mult computes y = M x. Collective.
func (m *Mat) Mult(c *utils.Comm, x, y *Vec) {
	ghosts := m.GhostValues(c, x)
	for i := 0; i < m.LocalRows(); i++ {
		var (
			sum                        float64
			dcols, dvals, ocols, ovals = m.LocalRow(i)
		)
		for k, j := range dcols {
			sum += dvals[k] * x.Data[j]
		}
		for k, j := range ocols {
			sum += ovals[k] * ghosts[j]
		}
		y.Data[i] = sum
	}
}

// GlobalRow returns a local row with global column indices.
func (m *Mat) GlobalRow(i int) (cols []int, vals []float64) {
	dcols, dvals, ocols, ovals := m.LocalRow(i)
	for k, j := range dcols {
		cols = append(cols, j+m.cStart)
		vals = append(vals, dvals[k])
	}
	for k, j := range ocols {
		cols = append(cols, m.garray[j])
		vals = append(vals, ovals[k])
	}
	return
}

type entry struct {
	I, J int
	V    float64
}

// GatherDense replicates the whole matrix on every rank. Collective; meant
// for small coarse grid operators.
func (m *Mat) GatherDense(c *utils.Comm) *mat.Dense {
	var mine []entry
	for i := 0; i < m.LocalRows(); i++ {
		cols, vals := m.GlobalRow(i)
		for k, j := range cols {
			mine = append(mine, entry{I: i + m.rStart, J: j, V: vals[k]})
		}
	}
	nr, nc := m.GlobalSize()
	dense := mat.NewDense(max(nr, 1), max(nc, 1), nil)
	for _, part := range utils.Allgather(c, mine) {
		for _, e := range part {
			dense.Set(e.I, e.J, dense.At(e.I, e.J)+e.V)
		}
	}
	return dense
}
