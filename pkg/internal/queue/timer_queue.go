package queue

import (
	"container/heap"
	"sync"
	"time"
)

// Item is a scheduled entry in a TimerQueue
type Item struct {
	Value    interface{} // Payload, usually a timer record
	Deadline time.Time   // When this item becomes due
	Seq      uint64      // Insertion order, breaks deadline ties
	Index    int         // Index in the heap
}

// TimerQueue orders items by deadline, then by insertion order
type TimerQueue struct {
	items itemHeap
	seq   uint64
	mu    sync.Mutex
}

// NewTimerQueue creates an empty timer queue
func NewTimerQueue() *TimerQueue {
	tq := &TimerQueue{
		items: make(itemHeap, 0),
	}
	heap.Init(&tq.items)
	return tq
}

// Push schedules value at deadline and returns the queued item
func (tq *TimerQueue) Push(value interface{}, deadline time.Time) *Item {
	tq.mu.Lock()
	defer tq.mu.Unlock()

	tq.seq++
	item := &Item{
		Value:    value,
		Deadline: deadline,
		Seq:      tq.seq,
	}
	heap.Push(&tq.items, item)
	return item
}

// Remove drops a previously pushed item. It is a no-op if the item already left the queue.
func (tq *TimerQueue) Remove(item *Item) {
	tq.mu.Lock()
	defer tq.mu.Unlock()

	if item == nil || item.Index < 0 || item.Index >= len(tq.items) || tq.items[item.Index] != item {
		return
	}
	heap.Remove(&tq.items, item.Index)
}

// Peek returns the earliest item without removing it
func (tq *TimerQueue) Peek() *Item {
	tq.mu.Lock()
	defer tq.mu.Unlock()

	if tq.items.Len() == 0 {
		return nil
	}
	return tq.items[0]
}

// PopDue removes and returns the earliest item whose deadline is not after now
func (tq *TimerQueue) PopDue(now time.Time) *Item {
	tq.mu.Lock()
	defer tq.mu.Unlock()

	if tq.items.Len() == 0 {
		return nil
	}
	if now.Before(tq.items[0].Deadline) {
		return nil
	}
	return heap.Pop(&tq.items).(*Item)
}

// Len returns the number of items in the queue
func (tq *TimerQueue) Len() int {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	return tq.items.Len()
}

// Clear removes all items
func (tq *TimerQueue) Clear() {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	for _, it := range tq.items {
		it.Index = -1
	}
	tq.items = make(itemHeap, 0)
	heap.Init(&tq.items)
}

// itemHeap implements heap.Interface
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if !h[i].Deadline.Equal(h[j].Deadline) {
		return h[i].Deadline.Before(h[j].Deadline)
	}
	return h[i].Seq < h[j].Seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].Index = i
	h[j].Index = j
}

func (h *itemHeap) Push(x interface{}) {
	item := x.(*Item)
	item.Index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	*h = old[0 : n-1]
	return item
}
