// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"container/heap"

	"github.com/google/statefuzz/pkg/message"
)

// fitnessItem is one entry in the bounded top-K min-heap TopK builds,
// generic the way the teacher's pkg/fuzzer/prio_queue.go wraps an
// arbitrary payload around a priority.
type fitnessItem[K comparable, SK comparable, SV comparable] struct {
	seq *message.MessageSequence[K, SK, SV]
}

// fitnessHeap is a container/heap.Interface min-heap over fitness, used by
// TopK to keep only the K fittest members seen so far without sorting the
// whole corpus.
type fitnessHeap[K comparable, SK comparable, SV comparable] []fitnessItem[K, SK, SV]

func (h fitnessHeap[K, SK, SV]) Len() int { return len(h) }
func (h fitnessHeap[K, SK, SV]) Less(i, j int) bool {
	return h[i].seq.Fitness < h[j].seq.Fitness
}
func (h fitnessHeap[K, SK, SV]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *fitnessHeap[K, SK, SV]) Push(x any) {
	*h = append(*h, x.(fitnessItem[K, SK, SV]))
}

func (h *fitnessHeap[K, SK, SV]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK returns the k fittest members of the corpus, highest fitness first.
// It is the bounded-priority-queue idiom the teacher's job scheduler uses
// (container/heap over a generic payload), applied here to reporting
// rather than job dispatch: a campaign's end-of-run summary logs the top
// sequences without sorting the entire corpus.
func (c *Corpus[K, SK, SV]) TopK(k int) []*message.MessageSequence[K, SK, SV] {
	if k <= 0 || len(c.Members) == 0 {
		return nil
	}
	h := &fitnessHeap[K, SK, SV]{}
	heap.Init(h)
	for _, seq := range c.Members {
		heap.Push(h, fitnessItem[K, SK, SV]{seq: seq})
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	out := make([]*message.MessageSequence[K, SK, SV], h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(fitnessItem[K, SK, SV]).seq
	}
	return out
}
