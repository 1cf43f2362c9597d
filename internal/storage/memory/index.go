package memory

import (
	"sort"

	"github.com/yndnr/retrostate-go/internal/core/domain"
)

// span is a non-empty region in the index. seq is its submission position.
type span struct {
	start int64
	end   int64
	seq   int
}

// regionIndex answers "which regions intersect [start, end)" for one state.
// It is built once and never modified.
type regionIndex struct {
	spans  []span  // sorted by start, then seq
	maxEnd []int64 // maxEnd[i] = max(spans[0..i].end)
}

func newRegionIndex(regions []domain.MemoryRegion) *regionIndex {
	ix := &regionIndex{spans: make([]span, 0, len(regions))}
	for i, r := range regions {
		if r.Length == 0 {
			continue
		}
		ix.spans = append(ix.spans, span{start: r.Start, end: r.End(), seq: i})
	}
	sort.Slice(ix.spans, func(i, j int) bool {
		if ix.spans[i].start != ix.spans[j].start {
			return ix.spans[i].start < ix.spans[j].start
		}
		return ix.spans[i].seq < ix.spans[j].seq
	})

	ix.maxEnd = make([]int64, len(ix.spans))
	var m int64
	for i, s := range ix.spans {
		if i == 0 || s.end > m {
			m = s.end
		}
		ix.maxEnd[i] = m
	}
	return ix
}

// overlapping returns the submission positions of every region that
// intersects [start, end), in ascending order.
func (ix *regionIndex) overlapping(start, end int64) []int {
	if start >= end {
		return nil
	}
	// spans[hi:] begin at or after end.
	hi := sort.Search(len(ix.spans), func(i int) bool {
		return ix.spans[i].start >= end
	})
	// spans[:lo] all end at or before start.
	lo := sort.Search(hi, func(i int) bool {
		return ix.maxEnd[i] > start
	})

	var seqs []int
	for _, s := range ix.spans[lo:hi] {
		if s.end > start {
			seqs = append(seqs, s.seq)
		}
	}
	sort.Ints(seqs)
	return seqs
}

// readRange fills a zeroed buffer of length bytes from regions, applying
// them in submission order so later regions overwrite earlier ones.
func (ix *regionIndex) readRange(regions []domain.MemoryRegion, start, length int64) []byte {
	buf := make([]byte, length)
	end := start + length
	for _, seq := range ix.overlapping(start, end) {
		r := regions[seq]
		lo := max(r.Start, start)
		hi := min(r.End(), end)
		copy(buf[lo-start:hi-start], r.Data[lo-r.Start:hi-r.Start])
	}
	return buf
}
