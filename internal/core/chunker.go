package core

// RowRange is a half-open range [Start, End) of row indices.
type RowRange struct {
	Start int
	End   int
}

func (r RowRange) Len() int {
	return r.End - r.Start
}

// SplitRows partitions [0, totalRows) into contiguous, ordered ranges of
// roughly chunkSize rows each. Sizes are balanced to within one row, except
// that a tail chunk smaller than half of chunkSize is merged into its
// neighbors, trading exact chunk size for fewer, more even chunks. The same
// input always produces the same partition.
func SplitRows(totalRows, chunkSize int) []RowRange {
	if totalRows <= 0 {
		return nil
	}
	if chunkSize <= 0 || totalRows <= chunkSize {
		return []RowRange{{Start: 0, End: totalRows}}
	}

	numChunks := (totalRows + chunkSize - 1) / chunkSize
	if numChunks > 1 {
		tail := totalRows % chunkSize
		if tail > 0 && tail*2 < chunkSize {
			numChunks--
		}
	}

	base := totalRows / numChunks
	remainder := totalRows % numChunks

	ranges := make([]RowRange, 0, numChunks)
	start := 0
	for i := 0; i < numChunks; i++ {
		size := base
		if i < remainder {
			size++
		}
		ranges = append(ranges, RowRange{Start: start, End: start + size})
		start += size
	}
	return ranges
}
