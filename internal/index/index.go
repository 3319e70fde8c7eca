// Package index reads the index file of a blockfile disk cache: a fixed
// 368-byte header followed by a power-of-two table of raw entry addresses.
package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"math/bits"
	"os"
	"time"

	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/cachetype"
)

const (
	// Magic identifies an index file.
	Magic = 0xC103CAC3

	// HeaderSize is the size of the index header (92 x 4 bytes).
	HeaderSize = 92 * 4

	// DefaultTableSize is used when the header records a table length of zero.
	DefaultTableSize = 0x10000

	// SlotSize is the size of one raw address in the table.
	SlotSize = 4
)

// Supported index versions.
const (
	Version2   = 0x20000
	Version2_1 = 0x20001
	Version3   = 0x30000
)

// Header field offsets.
const (
	offMagic      = 0
	offVersion    = 4
	offNumEntries = 8
	offNumBytesV2 = 12
	offLastFile   = 16
	offThisID     = 20
	offStats      = 24
	offTableLen   = 28
	offCrash      = 32
	offExperiment = 36
	offCreateTime = 40
	offNumBytesV3 = 48
)

// Index provides access to the hash table of an index file.
//
// Slot reads go straight to the underlying file so lookups never load the
// whole table.
type Index struct {
	src       io.ReaderAt
	closer    io.Closer
	header    cachetype.IndexHeader
	tableSize uint32
}

type config struct {
	tickResolution time.Duration
}

// Option configures how an index is opened.
type Option func(*config)

// WithTickResolution sets the duration of one header timestamp tick.
func WithTickResolution(d time.Duration) Option {
	return func(c *config) {
		c.tickResolution = d
	}
}

// Open opens and validates the index file at path.
func Open(path string, opts ...Option) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	idx, err := New(f, info.Size(), opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	idx.closer = f
	return idx, nil
}

// New validates an index read from src, which must hold size bytes.
// The caller keeps ownership of src.
func New(src io.ReaderAt, size int64, opts ...Option) (*Index, error) {
	cfg := config{tickResolution: cachetype.DefaultTickResolution}
	for _, opt := range opts {
		opt(&cfg)
	}

	if size < HeaderSize {
		return nil, fmt.Errorf("%w: index is %d bytes, header needs %d", cachetype.ErrFormat, size, HeaderSize)
	}
	buf := make([]byte, HeaderSize)
	if _, err := src.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read index header: %w", err)
	}

	header, err := parseHeader(buf, cfg.tickResolution)
	if err != nil {
		return nil, err
	}

	tableSize := uint32(header.TableLen) //nolint:gosec // validated non-negative in parseHeader
	if tableSize == 0 {
		tableSize = DefaultTableSize
	}
	if bits.OnesCount32(tableSize) != 1 {
		return nil, fmt.Errorf("%w: table size %d is not a power of two", cachetype.ErrFormat, tableSize)
	}
	if need := int64(HeaderSize) + int64(tableSize)*SlotSize; size < need {
		return nil, fmt.Errorf("%w: index is %d bytes, table needs %d", cachetype.ErrFormat, size, need)
	}

	return &Index{
		src:       src,
		header:    header,
		tableSize: tableSize,
	}, nil
}

func parseHeader(buf []byte, resolution time.Duration) (cachetype.IndexHeader, error) {
	le := binary.LittleEndian
	h := cachetype.IndexHeader{
		Magic:   le.Uint32(buf[offMagic:]),
		Version: le.Uint32(buf[offVersion:]),
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("%w: index magic %#x", cachetype.ErrFormat, h.Magic)
	}
	switch h.Version {
	case Version2, Version2_1, Version3:
	default:
		return h, fmt.Errorf("%w: unsupported index version %#x", cachetype.ErrFormat, h.Version)
	}

	i32 := func(off int) int32 {
		return int32(le.Uint32(buf[off:])) //nolint:gosec // on-disk int32
	}
	h.NumEntries = i32(offNumEntries)
	if h.Version == Version3 {
		h.NumBytes = int64(le.Uint64(buf[offNumBytesV3:])) //nolint:gosec // on-disk int64
	} else {
		h.NumBytes = int64(i32(offNumBytesV2))
	}
	h.LastFile = i32(offLastFile)
	h.ThisID = i32(offThisID)
	h.Stats = addr.Decode(le.Uint32(buf[offStats:]))
	h.TableLen = i32(offTableLen)
	h.Crash = i32(offCrash)
	h.Experiment = i32(offExperiment)
	h.CreateTime = cachetype.TicksToTime(le.Uint64(buf[offCreateTime:]), resolution)

	if h.TableLen < 0 {
		return h, fmt.Errorf("%w: negative table length %d", cachetype.ErrFormat, h.TableLen)
	}
	return h, nil
}

// Header returns the decoded index header.
func (idx *Index) Header() cachetype.IndexHeader {
	return idx.header
}

// TableSize returns the number of slots in the hash table.
func (idx *Index) TableSize() uint32 {
	return idx.tableSize
}

// SlotForHash returns the slot a hash maps to.
func (idx *Index) SlotForHash(hash uint32) uint32 {
	return hash & (idx.tableSize - 1)
}

// SlotAddress reads the raw address stored in slot.
func (idx *Index) SlotAddress(slot uint32) (uint32, error) {
	if slot >= idx.tableSize {
		return 0, fmt.Errorf("%w: slot %d of %d", cachetype.ErrOutOfRange, slot, idx.tableSize)
	}
	var buf [SlotSize]byte
	off := int64(HeaderSize) + int64(slot)*SlotSize
	if _, err := idx.src.ReadAt(buf[:], off); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read slot %d: %w", slot, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Slot is one table cell: its position and the raw address stored there.
type Slot struct {
	Index uint32
	Raw   uint32
}

// Slots returns an iterator over every slot in slot order. If the table
// cannot be read, the final pair carries the first unreadable slot's
// position and an ErrOutOfRange error.
func (idx *Index) Slots() iter.Seq2[Slot, error] {
	return func(yield func(Slot, error) bool) {
		section := io.NewSectionReader(idx.src, HeaderSize, int64(idx.tableSize)*SlotSize)
		r := bufio.NewReaderSize(section, 64<<10)
		var buf [SlotSize]byte
		for slot := range idx.tableSize {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				yield(Slot{Index: slot}, fmt.Errorf("%w: index table unreadable from slot %d: %w",
					cachetype.ErrOutOfRange, slot, err))
				return
			}
			if !yield(Slot{Index: slot, Raw: binary.LittleEndian.Uint32(buf[:])}, nil) {
				return
			}
		}
	}
}

// Close releases the index file when it was opened by Open.
func (idx *Index) Close() error {
	if idx.closer == nil {
		return nil
	}
	err := idx.closer.Close()
	idx.closer = nil
	return err
}
