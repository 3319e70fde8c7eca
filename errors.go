package chromecache

import "github.com/meigma/chromecache/internal/cachetype"

// Sentinel errors re-exported from internal/cachetype.
var (
	// ErrFormat is returned when a file header has the wrong magic, version or size.
	ErrFormat = cachetype.ErrFormat

	// ErrMissingFile is returned when an address names a file that does not exist.
	ErrMissingFile = cachetype.ErrMissingFile

	// ErrOutOfRange is returned when an address points past the end of its file.
	ErrOutOfRange = cachetype.ErrOutOfRange

	// ErrCorruptChain is returned when a bucket chain revisits an address.
	ErrCorruptChain = cachetype.ErrCorruptChain

	// ErrInvalidState is returned when an entry holds an unknown state value.
	ErrInvalidState = cachetype.ErrInvalidState

	// ErrBadAddress is returned when an address kind cannot hold the record asked for.
	ErrBadAddress = cachetype.ErrBadAddress

	// ErrChainTooLong is returned when a chain exceeds the configured length ceiling.
	ErrChainTooLong = cachetype.ErrChainTooLong

	// ErrEntryLimit is returned when a walk reaches the configured entry ceiling.
	ErrEntryLimit = cachetype.ErrEntryLimit

	// ErrInconsistentStream is returned when a stream size and address disagree.
	ErrInconsistentStream = cachetype.ErrInconsistentStream

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = cachetype.ErrSizeOverflow

	// ErrUnsupportedEncoding is returned for Content-Encoding values that cannot be decoded.
	ErrUnsupportedEncoding = cachetype.ErrUnsupportedEncoding
)
