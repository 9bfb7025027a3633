package transfer

// ChunkRange is a contiguous byte range [Start, End) of a file.
type ChunkRange struct {
	Index int
	Start int64
	End   int64
}

// Size returns the number of bytes covered by the range.
func (r ChunkRange) Size() int64 {
	return r.End - r.Start
}

// PartNumber returns the 1-based part number used on the wire.
func (r ChunkRange) PartNumber() int {
	return r.Index + 1
}

// Plan partitions totalSize bytes into ordered ranges of at most chunkSize bytes.
// A zero-length file yields an empty plan.
func Plan(totalSize, chunkSize int64) ([]ChunkRange, error) {
	if totalSize < 0 {
		return nil, &InvalidConfigurationError{Field: "totalSize", Reason: "must not be negative"}
	}

	if chunkSize <= 0 {
		return nil, &InvalidConfigurationError{Field: "chunkSize", Reason: "must be positive"}
	}

	count := ChunkCount(totalSize, chunkSize)
	ranges := make([]ChunkRange, 0, count)

	for i := 0; i < count; i++ {
		start := int64(i) * chunkSize
		end := min(totalSize, start+chunkSize)

		ranges = append(ranges, ChunkRange{Index: i, Start: start, End: end})
	}

	return ranges, nil
}

// ChunkCount returns ceil(totalSize/chunkSize).
func ChunkCount(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}

	return int((totalSize + chunkSize - 1) / chunkSize)
}
