package testutil

import (
	"encoding/binary"

	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/entry"
)

// EntryRecord describes the raw fields of an entry record.
type EntryRecord struct {
	Hash          uint32
	Next          addr.Address
	RankingsNode  addr.Address
	ReuseCount    uint32
	RefetchCount  uint32
	State         uint32
	CreationTicks uint64
	KeyLength     uint32
	LongKey       addr.Address
	DataSizes     [4]uint32
	DataAddrs     [4]addr.Address
	Flags         uint32
	SelfHash      uint32

	// InlineKey is copied to the key area of the record.
	InlineKey []byte
}

// EncodeEntry lays out rec as a record spanning blocks entry blocks.
func EncodeEntry(rec EntryRecord, blocks uint32) []byte {
	if blocks == 0 {
		blocks = 1
	}
	buf := make([]byte, int(blocks)*entry.RecordSize)
	le := binary.LittleEndian
	le.PutUint32(buf[entry.OffHash:], rec.Hash)
	le.PutUint32(buf[entry.OffNext:], rec.Next.Encode())
	le.PutUint32(buf[entry.OffRankings:], rec.RankingsNode.Encode())
	le.PutUint32(buf[entry.OffReuseCount:], rec.ReuseCount)
	le.PutUint32(buf[entry.OffRefetchCount:], rec.RefetchCount)
	le.PutUint32(buf[entry.OffState:], rec.State)
	le.PutUint64(buf[entry.OffCreationTime:], rec.CreationTicks)
	le.PutUint32(buf[entry.OffKeyLength:], rec.KeyLength)
	le.PutUint32(buf[entry.OffLongKey:], rec.LongKey.Encode())
	for i := range 4 {
		le.PutUint32(buf[entry.OffDataSizes+i*4:], rec.DataSizes[i])
		le.PutUint32(buf[entry.OffDataAddrs+i*4:], rec.DataAddrs[i].Encode())
	}
	le.PutUint32(buf[entry.OffFlags:], rec.Flags)
	le.PutUint32(buf[entry.OffSelfHash:], rec.SelfHash)
	copy(buf[entry.OffKey:], rec.InlineKey)
	return buf
}
