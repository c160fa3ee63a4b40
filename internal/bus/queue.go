package bus

import "container/heap"

// envelopeHeap orders Envelopes by descending Priority, then ascending seq
// (insertion order) so that equal-priority envelopes stay FIFO. It backs
// Bus's main queue the way container/heap backs any Go priority queue.
type envelopeHeap []Envelope

func (h envelopeHeap) Len() int { return len(h) }

func (h envelopeHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h envelopeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *envelopeHeap) Push(x any) {
	*h = append(*h, x.(Envelope))
}

func (h *envelopeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*envelopeHeap)(nil)
