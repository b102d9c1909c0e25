package utils

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var errAborted = errors.New("rank aborted after a failure on another rank")

// World runs an SPMD body with one goroutine per rank. Ranks share nothing
// but the mailbox: data owned by another rank is reached only through the
// collectives below.
type World struct {
	NP int
}

func NewWorld(NP int) *World {
	if NP < 1 {
		panic(fmt.Sprintf("invalid number of ranks: %d", NP))
	}
	return &World{NP: NP}
}

// Run blocks until every rank returns. A panic on any rank releases ranks
// blocked in a collective and is re-raised here.
func (w *World) Run(body func(c *Comm)) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		once    sync.Once
		failure any
		abort   = make(chan struct{})
		mb      = NewMailBox[any](w.NP)
	)
	for rank := 0; rank < w.NP; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					if r != errAborted {
						mu.Lock()
						if failure == nil {
							failure = r
						}
						mu.Unlock()
					}
					once.Do(func() { close(abort) })
				}
			}()
			body(&Comm{rank: rank, np: w.NP, mb: mb, abort: abort})
		}(rank)
	}
	wg.Wait()
	if failure != nil {
		panic(failure)
	}
}

// Comm is the execution context handed to every rank.
type Comm struct {
	rank, np int
	mb       *MailBox[any]
	abort    chan struct{}
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.np }

// AllToAll sends send[r] to rank r and returns what every rank sent to the
// caller, indexed by sender. Every rank must call it.
func AllToAll[T any](c *Comm, send [][]T) (recv [][]T) {
	if len(send) != c.np {
		panic(fmt.Sprintf("AllToAll: %d buffers for %d ranks", len(send), c.np))
	}
	for target := 0; target < c.np; target++ {
		c.mb.PostMessage(c.rank, target, send[target])
	}
	c.mb.DeliverMyMessages(c.rank, c.abort)
	recv = make([][]T, c.np)
	for sender := 0; sender < c.np; sender++ {
		msg := c.mb.ReceiveFrom(c.rank, sender, c.abort)
		recv[sender] = msg.([]T)
	}
	return
}

// Allgather returns every rank's contribution, indexed by rank.
func Allgather[T any](c *Comm, mine []T) [][]T {
	send := make([][]T, c.np)
	for r := range send {
		send[r] = mine
	}
	return AllToAll(c, send)
}

func (c *Comm) Barrier() {
	AllToAll(c, make([][]struct{}, c.np))
}

func (c *Comm) AllgatherInt(v int) (all []int) {
	all = make([]int, c.np)
	for r, vals := range Allgather(c, []int{v}) {
		all[r] = vals[0]
	}
	return
}

func (c *Comm) AllgatherFloat64(v float64) (all []float64) {
	all = make([]float64, c.np)
	for r, vals := range Allgather(c, []float64{v}) {
		all[r] = vals[0]
	}
	return
}

// Sums are accumulated in rank order so that every rank sees the same bits.
func (c *Comm) AllreduceSum(v float64) (sum float64) {
	for _, x := range c.AllgatherFloat64(v) {
		sum += x
	}
	return
}

func (c *Comm) AllreduceMax(v float64) (max float64) {
	max = math.Inf(-1)
	for _, x := range c.AllgatherFloat64(v) {
		max = math.Max(max, x)
	}
	return
}

func (c *Comm) AllreduceSumInt(v int) (sum int) {
	for _, x := range c.AllgatherInt(v) {
		sum += x
	}
	return
}

// AllreduceAnd is true when v is true on every rank.
func (c *Comm) AllreduceAnd(v bool) bool {
	var iv int
	if !v {
		iv = 1
	}
	return c.AllreduceSumInt(iv) == 0
}

// Abort fails the whole world from one rank.
func (c *Comm) Abort(format string, args ...any) {
	panic(fmt.Sprintf("rank %d: %s", c.rank, fmt.Sprintf(format, args...)))
}
