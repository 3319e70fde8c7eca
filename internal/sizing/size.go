// Package sizing provides safe size arithmetic and conversions for on-disk offsets.
package sizing

import (
	"io"
	"math"
)

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// BlockOffset computes headerSize + index*blockSize, returning false on overflow.
func BlockOffset(headerSize, index, blockSize uint64) (uint64, bool) {
	if blockSize != 0 && index > (math.MaxUint64-headerSize)/blockSize {
		return 0, false
	}
	return headerSize + index*blockSize, true
}

// Within reports whether [off, off+length) lies inside a file of the given size.
func Within(off, length uint64, size int64) bool {
	if size < 0 {
		return false
	}
	end, ok := AddUint64(off, length)
	if !ok {
		return false
	}
	return end <= uint64(size)
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
// A maxSize of 0 disables the limit.
func ReadAllWithLimit(r io.Reader, maxSize uint64, overflowErr error) ([]byte, error) {
	if maxSize == 0 {
		return io.ReadAll(r)
	}
	if maxSize > uint64(math.MaxInt-1) {
		return nil, overflowErr
	}
	limit := int64(maxSize) + 1 //nolint:gosec // checked above
	lr := &io.LimitedReader{R: r, N: limit}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize { //nolint:gosec // len is always non-negative
		return nil, overflowErr
	}
	return data, nil
}
