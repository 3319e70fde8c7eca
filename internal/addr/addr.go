// Package addr decodes and encodes the packed 32-bit cache addresses that
// reference every record of a blockfile disk cache.
//
// Bit layout:
//
//	31     initialized flag
//	28-30  kind (file type)
//
// Separate-file addresses use bits 0-27 as the file sequence number. Block
// addresses split the remaining bits into:
//
//	26-27  reserved
//	24-25  contiguous block count minus one
//	16-23  block file number
//	0-15   first block index
package addr

import "fmt"

const (
	initializedMask = 0x80000000
	kindMask        = 0x70000000
	kindShift       = 28
	fileNameMask    = 0x0FFFFFFF
	reservedMask    = 0x0C000000
	reservedShift   = 26
	numBlocksMask   = 0x03000000
	numBlocksShift  = 24
	fileNumMask     = 0x00FF0000
	fileNumShift    = 16
	blockIndexMask  = 0x0000FFFF
)

// MaxContiguousBlocks is the largest record span a block address can describe.
const MaxContiguousBlocks = 4

// Kind identifies the storage class an address points into.
type Kind uint8

const (
	// Separate addresses name a standalone f_XXXXXX file.
	Separate Kind = iota
	// Rankings is block file type 0 (36-byte records).
	Rankings
	// Block256 is block file type 1 (256-byte records, entries live here).
	Block256
	// Block1K is block file type 2 (1 KiB records).
	Block1K
	// Block4K is block file type 3 (4 KiB records).
	Block4K
	// BlockFiles, BlockEntries and BlockEvicted are newer file types that
	// only exist so that every 3-bit kind value decodes.
	BlockFiles
	BlockEntries
	BlockEvicted
)

var blockSizes = [...]uint32{
	Separate:     0,
	Rankings:     36,
	Block256:     256,
	Block1K:      1024,
	Block4K:      4096,
	BlockFiles:   8,
	BlockEntries: 104,
	BlockEvicted: 48,
}

var kindNames = [...]string{
	Separate:     "separate",
	Rankings:     "rankings",
	Block256:     "block-256",
	Block1K:      "block-1k",
	Block4K:      "block-4k",
	BlockFiles:   "block-files",
	BlockEntries: "block-entries",
	BlockEvicted: "block-evicted",
}

// BlockSize returns the record size of block files of this kind.
// Separate files have no block size and return 0.
func (k Kind) BlockSize() uint32 {
	if int(k) >= len(blockSizes) {
		return 0
	}
	return blockSizes[k]
}

func (k Kind) String() string {
	if int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Address is a decoded cache address.
type Address struct {
	Initialized bool
	Kind        Kind

	// FileNumber is the f_XXXXXX sequence number for separate files and
	// the data_N selector for block files.
	FileNumber uint32

	// BlockIndex is the first block of the record. Zero for separate files.
	BlockIndex uint32

	// ContiguousBlocks is the record span, 1..4. Zero for separate files.
	ContiguousBlocks uint32

	// Reserved holds bits 26-27 of block addresses so encoding is exact.
	Reserved uint32
}

// Decode unpacks a raw address. It never fails: every bit pattern maps to
// an Address whose Encode returns the same value.
func Decode(raw uint32) Address {
	a := Address{
		Initialized: raw&initializedMask != 0,
		Kind:        Kind((raw & kindMask) >> kindShift),
	}
	if a.Kind == Separate {
		a.FileNumber = raw & fileNameMask
		return a
	}
	a.Reserved = (raw & reservedMask) >> reservedShift
	a.ContiguousBlocks = ((raw & numBlocksMask) >> numBlocksShift) + 1
	a.FileNumber = (raw & fileNumMask) >> fileNumShift
	a.BlockIndex = raw & blockIndexMask
	return a
}

// Encode packs the address back into its raw form.
func (a Address) Encode() uint32 {
	var raw uint32
	if a.Initialized {
		raw |= initializedMask
	}
	raw |= (uint32(a.Kind) << kindShift) & kindMask
	if a.Kind == Separate {
		return raw | a.FileNumber&fileNameMask
	}
	raw |= (a.Reserved << reservedShift) & reservedMask
	if a.ContiguousBlocks > 0 {
		raw |= ((a.ContiguousBlocks - 1) << numBlocksShift) & numBlocksMask
	}
	raw |= (a.FileNumber << fileNumShift) & fileNumMask
	raw |= a.BlockIndex & blockIndexMask
	return raw
}

// IsSeparate reports whether the address names a standalone file.
func (a Address) IsSeparate() bool {
	return a.Kind == Separate
}

// BlockSize returns the record size for the address kind.
func (a Address) BlockSize() uint32 {
	return a.Kind.BlockSize()
}

// Length returns the byte length of a block record (blocks * block size).
func (a Address) Length() uint64 {
	return uint64(a.ContiguousBlocks) * uint64(a.BlockSize())
}

// FileName returns the on-disk name of the file the address points into.
func (a Address) FileName() string {
	if a.Kind == Separate {
		return fmt.Sprintf("f_%06x", a.FileNumber)
	}
	return fmt.Sprintf("data_%d", a.FileNumber)
}

// NewBlock builds an initialized block address.
func NewBlock(kind Kind, fileNumber, blockIndex, blocks uint32) Address {
	return Address{
		Initialized:      true,
		Kind:             kind,
		FileNumber:       fileNumber,
		BlockIndex:       blockIndex,
		ContiguousBlocks: blocks,
	}
}

// NewSeparate builds an initialized separate-file address.
func NewSeparate(fileNumber uint32) Address {
	return Address{
		Initialized: true,
		Kind:        Separate,
		FileNumber:  fileNumber,
	}
}

func (a Address) String() string {
	if !a.Initialized {
		return fmt.Sprintf("0x%08x(uninitialized)", a.Encode())
	}
	if a.Kind == Separate {
		return fmt.Sprintf("0x%08x(%s)", a.Encode(), a.FileName())
	}
	return fmt.Sprintf("0x%08x(%s block=%d n=%d)", a.Encode(), a.FileName(), a.BlockIndex, a.ContiguousBlocks)
}
