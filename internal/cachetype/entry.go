// Package cachetype holds the value types and sentinel errors shared by the
// cache decoding packages.
package cachetype

import (
	"fmt"
	"time"

	"github.com/meigma/chromecache/internal/addr"
)

// NumStreams is the number of data streams an entry can reference.
const NumStreams = 4

// State is the lifecycle state recorded in an entry.
type State uint32

const (
	StateNormal State = iota
	StateEvicted
	StateDoomed
)

// Valid reports whether the state is one of the known values.
func (s State) Valid() bool {
	return s <= StateDoomed
}

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateEvicted:
		return "evicted"
	case StateDoomed:
		return "doomed"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Flags are the entry flag bits.
type Flags uint32

const (
	// FlagParent marks the parent entry of a sparse resource.
	FlagParent Flags = 1 << iota
	// FlagChild marks a child (range) entry of a sparse resource.
	FlagChild
)

// Entry is a decoded entry record.
type Entry struct {
	// Address is where the record was read from.
	Address addr.Address

	Hash         uint32
	Next         addr.Address
	RankingsNode addr.Address

	// ReuseCount and RefetchCount are the reuse and usage counters.
	ReuseCount   uint32
	RefetchCount uint32

	State State

	// CreationTicks is the raw timestamp; CreationTime is its UTC conversion.
	CreationTicks uint64
	CreationTime  time.Time

	KeyLength uint32

	// LongKey is initialized when the key is stored outside the record.
	LongKey addr.Address

	// Key holds the key bytes. It is empty until a long key has been
	// materialized.
	Key []byte

	DataSizes [NumStreams]uint32
	DataAddrs [NumStreams]addr.Address

	Flags    Flags
	SelfHash uint32
}

// KeyString returns the key as text.
func (e *Entry) KeyString() string {
	return string(e.Key)
}

// HasInlineKey reports whether the key was stored inside the record.
func (e *Entry) HasInlineKey() bool {
	return !e.LongKey.Initialized
}

// IndexHeader is the decoded header of the index file.
type IndexHeader struct {
	Magic      uint32
	Version    uint32
	NumEntries int32
	NumBytes   int64
	LastFile   int32
	ThisID     int32
	Stats      addr.Address
	TableLen   int32
	Crash      int32
	Experiment int32
	CreateTime time.Time
}
