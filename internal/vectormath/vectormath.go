// Package vectormath implements the cosine similarity and bounded top-k
// selection shared by ingestion-time validation and query-time retrieval.
// It has no knowledge of collections, models, or the on-disk format —
// just fixed-dimension float32 vectors.
package vectormath

import (
	"container/heap"
	"math"
	"sort"

	"github.com/nhlutterodt/localrag/internal/apperr"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 if either vector has zero magnitude. Fails with InputValidation
// if either vector is nil or their lengths differ.
func CosineSimilarity(a, b []float32) (float32, error) {
	if a == nil || b == nil {
		return 0, apperr.InputValidation("cosine similarity requires non-nil vectors", nil)
	}
	if len(a) != len(b) {
		return 0, apperr.InputValidation("cosine similarity requires equal-length vectors", nil)
	}

	var dot, magA, magB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		magA += ai * ai
		magB += bi * bi
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB))), nil
}

// scoredIndex is one entry in the bounded min-heap used by TopK.
type scoredIndex struct {
	score float32
	index int
}

// minHeap keeps the k highest scores seen so far, with the smallest on top
// so a new, larger score can evict it in O(log k).
type minHeap []scoredIndex

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	// Tie-break: keep the heap ordered so that, among equal scores, the
	// larger index is evicted first — preserving ascending-index order
	// among ties in the final descending-score output.
	return h[i].index > h[j].index
}
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(scoredIndex)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK returns the indices of the min(k, len(scores)) largest values in
// scores, sorted by score descending with ties broken by ascending index.
// Uses a bounded min-heap so the cost is O(N log k) rather than O(N log N).
func TopK(scores []float32, k int) []int {
	if k <= 0 || len(scores) == 0 {
		return nil
	}
	if k > len(scores) {
		k = len(scores)
	}

	h := make(minHeap, 0, k)
	heap.Init(&h)
	for i, s := range scores {
		if len(h) < k {
			heap.Push(&h, scoredIndex{score: s, index: i})
			continue
		}
		if s > h[0].score || (s == h[0].score && i < h[0].index) {
			heap.Pop(&h)
			heap.Push(&h, scoredIndex{score: s, index: i})
		}
	}

	items := make([]scoredIndex, len(h))
	copy(items, h)
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].index < items[j].index
	})

	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.index
	}
	return out
}
