package cachetype

import "errors"

// Sentinel errors for cache decoding.
var (
	// ErrFormat is returned when a file header has the wrong magic, version or size.
	ErrFormat = errors.New("chromecache: invalid format")

	// ErrMissingFile is returned when an address names a file that does not exist.
	ErrMissingFile = errors.New("chromecache: missing file")

	// ErrOutOfRange is returned when an address points past the end of its file.
	ErrOutOfRange = errors.New("chromecache: address out of range")

	// ErrCorruptChain is returned when a bucket chain revisits an address.
	ErrCorruptChain = errors.New("chromecache: corrupt chain")

	// ErrInvalidState is returned when an entry holds an unknown state value.
	ErrInvalidState = errors.New("chromecache: invalid entry state")

	// ErrBadAddress is returned when an address kind cannot hold the record asked for.
	ErrBadAddress = errors.New("chromecache: bad address")

	// ErrChainTooLong is returned when a chain exceeds the configured length ceiling.
	ErrChainTooLong = errors.New("chromecache: chain too long")

	// ErrEntryLimit is returned when a walk reaches the configured entry ceiling.
	ErrEntryLimit = errors.New("chromecache: entry limit reached")

	// ErrInconsistentStream is returned when a stream size and address disagree.
	ErrInconsistentStream = errors.New("chromecache: inconsistent stream")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("chromecache: size overflow")

	// ErrUnsupportedEncoding is returned for Content-Encoding values that cannot be decoded.
	ErrUnsupportedEncoding = errors.New("chromecache: unsupported content encoding")
)
