package upload

import "sort"

// byteRange is a half-open interval [Start, End) of staged bytes.
type byteRange struct {
	Start uint64
	End   uint64
}

// rangeSet tracks which byte ranges of an upload have been staged. Ranges
// are kept sorted and non-adjacent; adding merges overlaps and neighbors.
//
// Not safe for concurrent use; the coordinator holds the session lock.
type rangeSet struct {
	ranges []byteRange
}

// add merges [start, end) into the set.
func (rs *rangeSet) add(start, end uint64) {
	if end <= start {
		return
	}

	merged := make([]byteRange, 0, len(rs.ranges)+1)
	inserted := byteRange{Start: start, End: end}

	for _, r := range rs.ranges {
		switch {
		case r.End < inserted.Start:
			merged = append(merged, r)
		case inserted.End < r.Start:
			merged = append(merged, inserted)
			inserted = r
		default:
			if r.Start < inserted.Start {
				inserted.Start = r.Start
			}
			if r.End > inserted.End {
				inserted.End = r.End
			}
		}
	}
	merged = append(merged, inserted)

	sort.Slice(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	rs.ranges = merged
}

// covered returns the total number of staged bytes.
func (rs *rangeSet) covered() uint64 {
	var total uint64
	for _, r := range rs.ranges {
		total += r.End - r.Start
	}
	return total
}

// complete reports whether [0, size) is covered contiguously.
func (rs *rangeSet) complete(size uint64) bool {
	if size == 0 {
		return true
	}
	return len(rs.ranges) == 1 && rs.ranges[0].Start == 0 && rs.ranges[0].End >= size
}

// overlap returns the intersection of [start, end) with the staged ranges.
func (rs *rangeSet) overlap(start, end uint64) []byteRange {
	var out []byteRange
	for _, r := range rs.ranges {
		lo, hi := max64(r.Start, start), min64(r.End, end)
		if lo < hi {
			out = append(out, byteRange{Start: lo, End: hi})
		}
	}
	return out
}

// missing returns the gaps in [0, size) not yet staged.
func (rs *rangeSet) missing(size uint64) []byteRange {
	var out []byteRange
	var cursor uint64
	for _, r := range rs.ranges {
		if r.Start > cursor {
			out = append(out, byteRange{Start: cursor, End: min64(r.Start, size)})
		}
		if r.End > cursor {
			cursor = r.End
		}
	}
	if cursor < size {
		out = append(out, byteRange{Start: cursor, End: size})
	}
	return out
}

// snapshot returns a copy of the staged ranges.
func (rs *rangeSet) snapshot() []byteRange {
	return append([]byteRange(nil), rs.ranges...)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
