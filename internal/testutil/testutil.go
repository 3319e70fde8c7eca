// Package testutil builds synthetic blockfile cache directories for tests.
package testutil

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/blockfile"
	"github.com/meigma/chromecache/internal/entry"
	"github.com/meigma/chromecache/internal/index"
	"github.com/meigma/chromecache/internal/superfasthash"
)

// CountingReaderAt implements io.ReaderAt over a byte slice and counts reads.
type CountingReaderAt struct {
	data  []byte
	reads atomic.Int64
}

// NewCountingReaderAt returns a reader backed by data.
func NewCountingReaderAt(data []byte) *CountingReaderAt {
	return &CountingReaderAt{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *CountingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if off+int64(n) >= int64(len(m.data)) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *CountingReaderAt) Size() int64 {
	return int64(len(m.data))
}

// Reads returns how many ReadAt calls were made.
func (m *CountingReaderAt) Reads() int64 {
	return m.reads.Load()
}

// blockFileNumber maps a block kind to the data_N file the builder uses.
func blockFileNumber(kind addr.Kind) uint32 {
	return uint32(kind) - 1
}

type blockFile struct {
	kind   addr.Kind
	blocks map[uint32][]byte
	used   map[uint32]bool
	next   uint32
}

// Builder assembles an index, the four standard block files and separate
// files, and writes them to a directory.
type Builder struct {
	tb         testing.TB
	tableSize  uint32
	tableLen   int32
	version    uint32
	numEntries int32
	table      []uint32
	files      map[addr.Kind]*blockFile
	separate   map[uint32][]byte
	nextFile   uint32
	skipFiles  map[string]bool
}

// NewBuilder returns a Builder for an index with tableSize slots.
func NewBuilder(tb testing.TB, tableSize uint32) *Builder {
	tb.Helper()
	b := &Builder{
		tb:        tb,
		tableSize: tableSize,
		tableLen:  int32(tableSize), //nolint:gosec // test table sizes are small
		version:   index.Version2_1,
		table:     make([]uint32, tableSize),
		files:     make(map[addr.Kind]*blockFile),
		separate:  make(map[uint32][]byte),
		nextFile:  1,
		skipFiles: make(map[string]bool),
	}
	for _, k := range []addr.Kind{addr.Rankings, addr.Block256, addr.Block1K, addr.Block4K} {
		b.files[k] = &blockFile{kind: k, blocks: make(map[uint32][]byte), used: make(map[uint32]bool)}
	}
	return b
}

// SetVersion overrides the index version written to the header.
func (b *Builder) SetVersion(v uint32) *Builder {
	b.version = v
	return b
}

// SetTableLen overrides the table length written to the header without
// changing the number of slots written.
func (b *Builder) SetTableLen(n int32) *Builder {
	b.tableLen = n
	return b
}

// Skip omits a file (e.g. "data_2" or "f_000001") when writing.
func (b *Builder) Skip(name string) *Builder {
	b.skipFiles[name] = true
	return b
}

// SetSlot stores a raw address in a table slot.
func (b *Builder) SetSlot(slot uint32, a addr.Address) {
	b.table[slot] = a.Encode()
}

// Alloc reserves n contiguous blocks of kind and returns their address.
func (b *Builder) Alloc(kind addr.Kind, n uint32) addr.Address {
	f := b.files[kind]
	a := addr.NewBlock(kind, blockFileNumber(kind), f.next, n)
	for i := range n {
		f.used[f.next+i] = true
	}
	f.next += n
	return a
}

// PutBlock writes data at the blocks of a. Data longer than the record is
// truncated.
func (b *Builder) PutBlock(a addr.Address, data []byte) {
	f := b.files[a.Kind]
	buf := make([]byte, a.Length())
	copy(buf, data)
	bs := a.BlockSize()
	for i := range a.ContiguousBlocks {
		f.blocks[a.BlockIndex+i] = buf[i*bs : (i+1)*bs]
		f.used[a.BlockIndex+i] = true
	}
}

// PutSeparate stores data as a new f_XXXXXX file and returns its address.
func (b *Builder) PutSeparate(data []byte) addr.Address {
	a := addr.NewSeparate(b.nextFile)
	b.nextFile++
	b.separate[a.FileNumber] = data
	return a
}

// PutData stores a stream payload in the smallest block kind that fits, or
// in a separate file when it exceeds four 4 KiB blocks.
func (b *Builder) PutData(data []byte) addr.Address {
	for _, k := range []addr.Kind{addr.Block256, addr.Block1K, addr.Block4K} {
		bs := int(k.BlockSize())
		if len(data) <= bs*addr.MaxContiguousBlocks {
			n := uint32((len(data) + bs - 1) / bs) //nolint:gosec // at most 4
			if n == 0 {
				n = 1
			}
			a := b.Alloc(k, n)
			b.PutBlock(a, data)
			return a
		}
	}
	return b.PutSeparate(data)
}

// EntrySpec describes an entry to add with AddEntry or SetEntry.
type EntrySpec struct {
	Key string

	// Hash overrides the key hash. Zero uses SuperFastHash of Key.
	Hash uint32

	Next          addr.Address
	State         uint32
	CreationTicks uint64
	ReuseCount    uint32
	RefetchCount  uint32
	Flags         uint32

	// Streams are stored with PutData; a nil stream leaves the slot empty.
	Streams [][]byte

	// LongKey forces the key into a separate file.
	LongKey bool
}

// HashOf returns the hash AddEntry records for spec.
func HashOf(spec EntrySpec) uint32 {
	if spec.Hash != 0 {
		return spec.Hash
	}
	return superfasthash.Sum32(spec.Key)
}

// ReserveEntry allocates an entry record without writing it.
func (b *Builder) ReserveEntry() addr.Address {
	return b.Alloc(addr.Block256, 1)
}

// AddEntry allocates and writes an entry, returning its address.
func (b *Builder) AddEntry(spec EntrySpec) addr.Address {
	a := b.ReserveEntry()
	b.SetEntry(a, spec)
	return a
}

// SetEntry writes an entry record at a reserved address.
func (b *Builder) SetEntry(a addr.Address, spec EntrySpec) {
	rec := EntryRecord{
		Hash:          HashOf(spec),
		Next:          spec.Next,
		ReuseCount:    spec.ReuseCount,
		RefetchCount:  spec.RefetchCount,
		State:         spec.State,
		CreationTicks: spec.CreationTicks,
		KeyLength:     uint32(len(spec.Key)), //nolint:gosec // test keys are small
		Flags:         spec.Flags,
	}
	if spec.LongKey || len(spec.Key) > entry.InlineKeyCapacity(a.ContiguousBlocks) {
		rec.LongKey = b.PutSeparate([]byte(spec.Key))
	} else {
		rec.InlineKey = []byte(spec.Key)
	}
	for i, s := range spec.Streams {
		if s == nil || i >= 4 {
			continue
		}
		rec.DataAddrs[i] = b.PutData(s)
		rec.DataSizes[i] = uint32(len(s)) //nolint:gosec // test payloads are small
	}
	b.PutBlock(a, EncodeEntry(rec, a.ContiguousBlocks))
	b.numEntries++
}

// Insert adds an entry and links it into the bucket its hash maps to,
// as the new chain head. It returns the entry address.
func (b *Builder) Insert(spec EntrySpec) addr.Address {
	slot := HashOf(spec) & (b.tableSize - 1)
	spec.Next = addr.Decode(b.table[slot])
	a := b.AddEntry(spec)
	b.table[slot] = a.Encode()
	return a
}

// Write writes the cache files into dir.
func (b *Builder) Write(dir string) {
	b.tb.Helper()
	write := func(name string, data []byte) {
		if b.skipFiles[name] {
			return
		}
		require.NoError(b.tb, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}

	write("index", b.indexBytes())
	for _, f := range b.files {
		write(addr.NewBlock(f.kind, blockFileNumber(f.kind), 0, 1).FileName(), b.blockFileBytes(f))
	}
	for n, data := range b.separate {
		write(addr.NewSeparate(n).FileName(), data)
	}
}

// WriteTemp writes the cache into a fresh temporary directory.
func (b *Builder) WriteTemp() string {
	b.tb.Helper()
	dir := b.tb.TempDir()
	b.Write(dir)
	return dir
}

func (b *Builder) indexBytes() []byte {
	buf := make([]byte, index.HeaderSize+len(b.table)*index.SlotSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], index.Magic)
	le.PutUint32(buf[4:], b.version)
	le.PutUint32(buf[8:], uint32(b.numEntries)) //nolint:gosec // non-negative count
	le.PutUint32(buf[16:], b.nextFile-1)
	le.PutUint32(buf[28:], uint32(b.tableLen)) //nolint:gosec // raw header value
	for i, raw := range b.table {
		le.PutUint32(buf[index.HeaderSize+i*index.SlotSize:], raw)
	}
	return buf
}

func (b *Builder) blockFileBytes(f *blockFile) []byte {
	bs := int(f.kind.BlockSize())
	buf := make([]byte, blockfile.HeaderSize+int(f.next)*bs)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], blockfile.Magic)
	le.PutUint32(buf[4:], blockfile.Version2)
	le.PutUint16(buf[8:], uint16(blockFileNumber(f.kind))) //nolint:gosec // 0..3
	le.PutUint32(buf[12:], uint32(bs))                     //nolint:gosec // block sizes are small
	le.PutUint32(buf[16:], uint32(len(f.used)))            //nolint:gosec // small
	le.PutUint32(buf[20:], f.next)
	for blk := range f.used {
		word := 80 + int(blk/32)*4
		le.PutUint32(buf[word:], le.Uint32(buf[word:])|1<<(blk%32))
	}
	for blk, data := range f.blocks {
		copy(buf[blockfile.HeaderSize+int(blk)*bs:], data)
	}
	return buf
}

// RawHeaderBlock encodes an HTTP header block as NUL-separated segments:
// the status line, then each header as "Name: value", then an empty segment.
func RawHeaderBlock(statusLine string, headers ...string) []byte {
	var out []byte
	out = append(out, statusLine...)
	out = append(out, 0)
	for i := 0; i+1 < len(headers); i += 2 {
		out = append(out, headers[i]...)
		out = append(out, ": "...)
		out = append(out, headers[i+1]...)
		out = append(out, 0)
	}
	return append(out, 0)
}

// PickledHeaderBlock wraps RawHeaderBlock in the response-info preamble
// written in front of the header text in stream 0.
func PickledHeaderBlock(statusLine string, headers ...string) []byte {
	raw := RawHeaderBlock(statusLine, headers...)
	le := binary.LittleEndian
	buf := make([]byte, 28, 28+len(raw))
	le.PutUint32(buf[0:], uint32(24+len(raw))) //nolint:gosec // small
	le.PutUint32(buf[4:], 0x10)
	le.PutUint64(buf[8:], 13_300_000_000_000_000)
	le.PutUint64(buf[16:], 13_300_000_000_100_000)
	le.PutUint32(buf[24:], uint32(len(raw))) //nolint:gosec // small
	return append(buf, raw...)
}
