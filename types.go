package chromecache

import (
	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/cachetype"
	"github.com/meigma/chromecache/internal/walk"
)

// --- Re-exports from internal packages ---

// Address is a decoded cache address.
type Address = addr.Address

// AddressKind selects the file type an address points into.
type AddressKind = addr.Kind

// Entry is a decoded entry record.
type Entry = cachetype.Entry

// State is the lifecycle state recorded in an entry.
type State = cachetype.State

// Flags are the entry flag bits.
type Flags = cachetype.Flags

// IndexHeader is the decoded header of the index file.
type IndexHeader = cachetype.IndexHeader

// Data is the decoded content of one entry stream.
type Data = cachetype.Data

// DataKind tags the content of a decoded stream.
type DataKind = cachetype.DataKind

// HTTPHeader is a parsed response header block.
type HTTPHeader = cachetype.HTTPHeader

// Header is one HTTP header line.
type Header = cachetype.Header

// Diagnostic describes an item that was skipped or only partially decoded.
type Diagnostic = walk.Diagnostic

// ScanResult is the outcome of a full-table scan.
type ScanResult = walk.ScanResult

// LookupResult holds one Match per distinct requested key.
type LookupResult = walk.LookupResult

// Match is the lookup result for one key.
type Match = walk.Match

// Outcome is the result of looking up one key.
type Outcome = walk.Outcome

// Hasher maps a key to the hash that places it in the index table.
type Hasher = walk.Hasher

// Address kinds.
const (
	KindSeparate     = addr.Separate
	KindRankings     = addr.Rankings
	KindBlock256     = addr.Block256
	KindBlock1K      = addr.Block1K
	KindBlock4K      = addr.Block4K
	KindBlockFiles   = addr.BlockFiles
	KindBlockEntries = addr.BlockEntries
	KindBlockEvicted = addr.BlockEvicted
)

// Entry states.
const (
	StateNormal  = cachetype.StateNormal
	StateEvicted = cachetype.StateEvicted
	StateDoomed  = cachetype.StateDoomed
)

// Entry flags.
const (
	FlagParent = cachetype.FlagParent
	FlagChild  = cachetype.FlagChild
)

// Data kinds.
const (
	DataRaw        = cachetype.DataRaw
	DataHTTPHeader = cachetype.DataHTTPHeader
)

// Lookup outcomes.
const (
	NotFound = walk.NotFound
	Found    = walk.Found
	Failed   = walk.Failed
)

// NumStreams is the number of data streams an entry can reference.
const NumStreams = cachetype.NumStreams

// NoStream marks a diagnostic that is not tied to an entry stream.
const NoStream = walk.NoStream

// DecodeAddress decodes a raw 32-bit cache address.
func DecodeAddress(raw uint32) Address {
	return addr.Decode(raw)
}
