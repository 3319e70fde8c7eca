// Package entry decodes the fixed-layout entry records stored in the
// 256-byte block file.
//
// Record layout (little endian):
//
//	0   hash            uint32
//	4   next            address
//	8   rankings node   address
//	12  reuse count     int32
//	16  refetch count   int32
//	20  state           int32
//	24  creation time   uint64
//	32  key length      int32
//	36  long key        address
//	40  data sizes      4 x int32
//	56  data addresses  4 x address
//	72  flags           uint32
//	76  padding         4 x int32
//	92  self hash       uint32
//	96  key             inline key bytes to the end of the record
package entry

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/cachetype"
)

// RecordSize is the size of one entry block.
const RecordSize = 256

// Field offsets.
const (
	OffHash         = 0
	OffNext         = 4
	OffRankings     = 8
	OffReuseCount   = 12
	OffRefetchCount = 16
	OffState        = 20
	OffCreationTime = 24
	OffKeyLength    = 32
	OffLongKey      = 36
	OffDataSizes    = 40
	OffDataAddrs    = 56
	OffFlags        = 72
	OffSelfHash     = 92
	OffKey          = 96
)

// InlineKeyCapacity returns how many key bytes fit in a record spanning
// blocks entry blocks, leaving room for the terminating NUL.
func InlineKeyCapacity(blocks uint32) int {
	if blocks == 0 {
		blocks = 1
	}
	return int(blocks)*RecordSize - OffKey - 1
}

// Decoder decodes entry records.
type Decoder struct {
	tickResolution time.Duration
}

// NewDecoder returns a Decoder that converts timestamps with the given tick
// resolution. A zero resolution selects cachetype.DefaultTickResolution.
func NewDecoder(tickResolution time.Duration) *Decoder {
	if tickResolution <= 0 {
		tickResolution = cachetype.DefaultTickResolution
	}
	return &Decoder{tickResolution: tickResolution}
}

// Decode parses record, which must be at least RecordSize bytes long.
//
// Field values are surfaced as found, so partially overwritten records still
// decode. The only rejected content is an unknown state: the entry is still
// returned alongside an error wrapping cachetype.ErrInvalidState.
//
// Inline keys are copied out of record. When the key lives elsewhere,
// Entry.LongKey is initialized and Entry.Key is left empty.
func (d *Decoder) Decode(record []byte) (*cachetype.Entry, error) {
	if len(record) < RecordSize {
		return nil, fmt.Errorf("%w: entry record is %d bytes, need %d", cachetype.ErrOutOfRange, len(record), RecordSize)
	}
	le := binary.LittleEndian
	u32 := func(off int) uint32 { return le.Uint32(record[off:]) }
	ad := func(off int) addr.Address { return addr.Decode(u32(off)) }

	e := &cachetype.Entry{
		Hash:          u32(OffHash),
		Next:          ad(OffNext),
		RankingsNode:  ad(OffRankings),
		ReuseCount:    u32(OffReuseCount),
		RefetchCount:  u32(OffRefetchCount),
		State:         cachetype.State(u32(OffState)),
		CreationTicks: le.Uint64(record[OffCreationTime:]),
		KeyLength:     u32(OffKeyLength),
		LongKey:       ad(OffLongKey),
		Flags:         cachetype.Flags(u32(OffFlags)),
		SelfHash:      u32(OffSelfHash),
	}
	e.CreationTime = cachetype.TicksToTime(e.CreationTicks, d.tickResolution)
	for i := range cachetype.NumStreams {
		e.DataSizes[i] = u32(OffDataSizes + i*4)
		e.DataAddrs[i] = ad(OffDataAddrs + i*4)
	}

	if !e.LongKey.Initialized {
		e.Key = inlineKey(record, e.KeyLength)
	}

	if !e.State.Valid() {
		return e, fmt.Errorf("%w: %d", cachetype.ErrInvalidState, uint32(e.State))
	}
	return e, nil
}

// inlineKey copies up to keyLength bytes of key from the record tail.
func inlineKey(record []byte, keyLength uint32) []byte {
	avail := record[OffKey:]
	n := len(avail)
	if uint64(keyLength) < uint64(n) {
		n = int(keyLength)
	}
	key := make([]byte, n)
	copy(key, avail[:n])
	return key
}
