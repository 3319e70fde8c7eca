package blockfile

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/meigma/chromecache/internal/cachetype"
)

const (
	// Magic identifies a block file.
	Magic = 0xC104CAC3

	// HeaderSize is the size of a block-file header; records start right after it.
	HeaderSize = 8192

	// bitmapWords is the number of uint32 words in the allocation bitmap.
	bitmapWords = 2028

	// MaxBlocks is the number of blocks the allocation bitmap can describe.
	MaxBlocks = bitmapWords * 32
)

// Supported block-file versions.
const (
	Version2 = 0x20000
	Version3 = 0x30000
)

// Header field offsets.
const (
	offMagic      = 0
	offVersion    = 4
	offThisFile   = 8
	offNextFile   = 10
	offEntrySize  = 12
	offNumEntries = 16
	offMaxEntries = 20
	offEmpty      = 24
	offHints      = 40
	offUpdating   = 56
	offUser       = 60
	offBitmap     = 80
)

// Header is the decoded header of a data_N block file.
type Header struct {
	Magic      uint32
	Version    uint32
	ThisFile   int16
	NextFile   int16
	EntrySize  int32
	NumEntries int32
	MaxEntries int32
	Empty      [4]int32
	Hints      [4]int32
	Updating   int32
	User       [5]int32

	bitmap [bitmapWords]uint32
}

// ParseHeader decodes and validates a block-file header.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: block header is %d bytes, need %d", cachetype.ErrFormat, len(buf), HeaderSize)
	}
	le := binary.LittleEndian
	i32 := func(off int) int32 {
		return int32(le.Uint32(buf[off:])) //nolint:gosec // on-disk int32
	}

	h := &Header{
		Magic:   le.Uint32(buf[offMagic:]),
		Version: le.Uint32(buf[offVersion:]),
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: block file magic %#x", cachetype.ErrFormat, h.Magic)
	}
	if h.Version != Version2 && h.Version != Version3 {
		return nil, fmt.Errorf("%w: unsupported block file version %#x", cachetype.ErrFormat, h.Version)
	}

	h.ThisFile = int16(le.Uint16(buf[offThisFile:])) //nolint:gosec // on-disk int16
	h.NextFile = int16(le.Uint16(buf[offNextFile:])) //nolint:gosec // on-disk int16
	h.EntrySize = i32(offEntrySize)
	h.NumEntries = i32(offNumEntries)
	h.MaxEntries = i32(offMaxEntries)
	for i := range h.Empty {
		h.Empty[i] = i32(offEmpty + i*4)
		h.Hints[i] = i32(offHints + i*4)
	}
	h.Updating = i32(offUpdating)
	for i := range h.User {
		h.User[i] = i32(offUser + i*4)
	}
	for i := range h.bitmap {
		h.bitmap[i] = le.Uint32(buf[offBitmap+i*4:])
	}
	return h, nil
}

// Allocated reports whether every block in [block, block+count) is marked
// used in the allocation bitmap.
func (h *Header) Allocated(block, count uint32) bool {
	if count == 0 || uint64(block)+uint64(count) > MaxBlocks {
		return false
	}
	for b := block; b < block+count; b++ {
		if h.bitmap[b/32]&(1<<(b%32)) == 0 {
			return false
		}
	}
	return true
}

// UsedBlocks returns the number of blocks marked used in the bitmap.
func (h *Header) UsedBlocks() int {
	n := 0
	for _, w := range h.bitmap {
		n += bits.OnesCount32(w)
	}
	return n
}
