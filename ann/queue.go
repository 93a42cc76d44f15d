package ann

import "container/heap"

// candidate is a graph node paired with its distance to the current query.
type candidate struct {
	node uint32
	dist float32
}

// nearQueue pops the nearest candidate first.
type nearQueue []candidate

func (q nearQueue) Len() int           { return len(q) }
func (q nearQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q nearQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nearQueue) Push(x any)        { *q = append(*q, x.(candidate)) }
func (q *nearQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// farQueue pops the farthest candidate first. It holds the bounded result
// set during a layer search, so its top is the current worst result.
type farQueue []candidate

func (q farQueue) Len() int           { return len(q) }
func (q farQueue) Less(i, j int) bool { return q[i].dist > q[j].dist }
func (q farQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *farQueue) Push(x any)        { *q = append(*q, x.(candidate)) }
func (q *farQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (q farQueue) top() candidate { return q[0] }

// pushBounded adds c and evicts the worst entry when more than limit remain.
func (q *farQueue) pushBounded(c candidate, limit int) {
	heap.Push(q, c)
	if q.Len() > limit {
		heap.Pop(q)
	}
}

// drainAscending empties the queue and returns its contents nearest first.
func (q *farQueue) drainAscending() []candidate {
	out := make([]candidate, q.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(q).(candidate)
	}
	return out
}
