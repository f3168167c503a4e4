package graph

import "container/heap"

// frontier holds discovered but not yet settled nodes.
type frontier interface {
	push(id string, cost HopCost)
	pop() (queueItem, bool)
}

type queueItem struct {
	id    string
	cost  HopCost
	index int
}

// fifoQueue gives breadth-first order.
type fifoQueue struct {
	items []queueItem
	head  int
}

func (q *fifoQueue) push(id string, cost HopCost) {
	q.items = append(q.items, queueItem{id: id, cost: cost})
}

func (q *fifoQueue) pop() (queueItem, bool) {
	if q.head >= len(q.items) {
		return queueItem{}, false
	}
	it := q.items[q.head]
	q.head++
	return it, true
}

// priorityQueue is a min-heap on (cost, id). Stale entries left behind by
// relaxation are skipped by the caller.
type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].id < pq[j].id
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

type costQueue struct {
	pq priorityQueue
}

func (q *costQueue) push(id string, cost HopCost) {
	heap.Push(&q.pq, &queueItem{id: id, cost: cost})
}

func (q *costQueue) pop() (queueItem, bool) {
	if q.pq.Len() == 0 {
		return queueItem{}, false
	}
	return *heap.Pop(&q.pq).(*queueItem), true
}

func newFrontier(unweighted bool) frontier {
	if unweighted {
		return &fifoQueue{}
	}
	return &costQueue{}
}
