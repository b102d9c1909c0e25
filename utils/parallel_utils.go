package utils

import (
	"fmt"
	"sort"
)

type DynBuffer[T any] struct {
	cells []T
}

func NewDynBuffer[T any](capacity int) *DynBuffer[T] {
	return &DynBuffer[T]{cells: make([]T, 0, capacity)}
}

func (db *DynBuffer[T]) Add(c T)    { db.cells = append(db.cells, c) }
func (db *DynBuffer[T]) Cells() []T { return db.cells }
func (db *DynBuffer[T]) Len() int   { return len(db.cells) }
func (db *DynBuffer[T]) Reset()     { db.cells = db.cells[:0] }

// MailBox carries messages between ranks. Each (sender, receiver) pair has
// its own channel, so messages between a pair arrive in posting order.
type MailBox[T any] struct {
	NP           int
	MessageChans [][]chan T              // [sender][receiver]
	PostMsgQs    []map[int]*DynBuffer[T] // One for each thread, key is target thread
	MailFlag     []bool                  // MyThread has messages in outbox
}

const mailBoxDepth = 8

func NewMailBox[T any](NP int) *MailBox[T] {
	mb := &MailBox[T]{
		NP:           NP,
		MessageChans: make([][]chan T, NP),
		PostMsgQs:    make([]map[int]*DynBuffer[T], NP),
		MailFlag:     make([]bool, NP),
	}
	for n := 0; n < NP; n++ {
		mb.MessageChans[n] = make([]chan T, NP)
		for m := 0; m < NP; m++ {
			mb.MessageChans[n][m] = make(chan T, mailBoxDepth)
		}
		mb.PostMsgQs[n] = make(map[int]*DynBuffer[T])
	}
	return mb
}

func (mb *MailBox[T]) PostMessage(myThread, targetThread int, msg T) {
	if targetThread < 0 || targetThread > mb.NP-1 {
		panic(fmt.Sprintf("Target thread %d out of bounds", targetThread))
	}
	tgt, exists := mb.PostMsgQs[myThread][targetThread]
	if !exists {
		tgt = NewDynBuffer[T](1)
		mb.PostMsgQs[myThread][targetThread] = tgt
	}
	tgt.Add(msg)
	mb.MailFlag[myThread] = true
}

// DeliverMyMessages pushes the outbox of myThread onto the pair channels. A
// close of abort unblocks a sender stuck on a full channel.
func (mb *MailBox[T]) DeliverMyMessages(myThread int, abort <-chan struct{}) {
	if !mb.MailFlag[myThread] {
		return
	}
	for targetThread, msgBuffer := range mb.PostMsgQs[myThread] {
		for _, msg := range msgBuffer.Cells() {
			select {
			case mb.MessageChans[myThread][targetThread] <- msg:
			case <-abort:
				panic(errAborted)
			}
		}
		msgBuffer.Reset()
	}
	mb.MailFlag[myThread] = false
}

// ReceiveFrom blocks until the next message from sender arrives.
func (mb *MailBox[T]) ReceiveFrom(myThread, sender int, abort <-chan struct{}) (msg T) {
	select {
	case msg = <-mb.MessageChans[sender][myThread]:
	case <-abort:
		panic(errAborted)
	}
	return
}

type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

// NewPartitionMapFromCounts lays the ranges out back to back in rank order.
func NewPartitionMapFromCounts(counts []int) (pm *PartitionMap) {
	pm = &PartitionMap{
		ParallelDegree: len(counts),
		Partitions:     make([][2]int, len(counts)),
	}
	var start int
	for n, cnt := range counts {
		if cnt < 0 {
			panic(fmt.Sprintf("negative count %d for partition %d", cnt, n))
		}
		pm.Partitions[n] = [2]int{start, start + cnt}
		start += cnt
	}
	pm.MaxIndex = start
	return
}

func (pm *PartitionMap) GetBucket(kDim int) (bucketNum, min, max int) {
	_, bucketNum, min, max = pm.getBucketWithTryCount(kDim)
	return
}

func (pm *PartitionMap) getBucketWithTryCount(kDim int) (tryCount, bucketNum, min, max int) {
	if kDim < 0 || kDim >= pm.MaxIndex {
		return 0, -1, 0, 0
	}
	// Initial guess
	bucketNum = int(float64(pm.ParallelDegree*kDim) / float64(pm.MaxIndex))
	for !(pm.Partitions[bucketNum][0] <= kDim && pm.Partitions[bucketNum][1] > kDim) {
		if pm.Partitions[bucketNum][0] > kDim {
			bucketNum--
		} else {
			bucketNum++
		}
		if bucketNum == -1 || bucketNum == pm.ParallelDegree {
			return 0, -1, 0, 0
		}
		tryCount++
		if tryCount > 2 {
			// Badly skewed counts, fall back to bisection
			bucketNum = sort.Search(pm.ParallelDegree, func(i int) bool {
				return pm.Partitions[i][1] > kDim
			})
			break
		}
	}
	min, max = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	if bn == -1 {
		kMax = pm.MaxIndex
		return
	}
	var (
		k1, k2 = pm.GetBucketRange(bn)
	)
	kMax = k2 - k1
	return
}

func (pm *PartitionMap) Counts() (counts []int) {
	counts = make([]int, pm.ParallelDegree)
	for n := range counts {
		counts[n] = pm.GetBucketDimension(n)
	}
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into c.ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}
