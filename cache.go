package chromecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/meigma/chromecache/internal/blockfile"
	"github.com/meigma/chromecache/internal/contentenc"
	"github.com/meigma/chromecache/internal/index"
	"github.com/meigma/chromecache/internal/walk"
)

// IndexFileName is the name of the index file inside a cache directory.
const IndexFileName = "index"

// Cache is an open cache directory.
//
// A Cache owns the file handles it opens; Close releases them. It is safe
// for concurrent use.
type Cache struct {
	dir     string
	session string
	idx     *index.Index
	store   *blockfile.Store
	walker  *walk.Walker
	bodies  *contentenc.Decoder

	logger         *slog.Logger
	hasher         Hasher
	workers        int
	maxChain       int
	maxEntries     int
	maxDataSize    uint64
	tickResolution time.Duration
}

// Open opens the cache in dir and validates its index header.
//
// A missing index fails with ErrMissingFile; a malformed one with ErrFormat.
// Block files are opened lazily as entries reference them.
func Open(dir string, opts ...Option) (*Cache, error) {
	c := &Cache{
		dir:         dir,
		session:     uuid.NewString(),
		maxDataSize: DefaultMaxDataSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.log().With("session", c.session)

	path := filepath.Join(dir, IndexFileName)
	idx, err := index.Open(path, index.WithTickResolution(c.tickResolution))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrMissingFile, err)
		}
		return nil, err
	}

	c.idx = idx
	c.store = blockfile.New(dir, blockfile.WithLogger(c.logger))
	c.walker = walk.New(idx, c.store,
		walk.WithLogger(c.logger),
		walk.WithHasher(c.hasher),
		walk.WithWorkers(c.workers),
		walk.WithMaxChainLength(c.maxChain),
		walk.WithMaxEntries(c.maxEntries),
		walk.WithTickResolution(c.tickResolution),
	)
	c.bodies = contentenc.New(c.maxDataSize)

	h := idx.Header()
	c.logger.Debug("opened cache",
		"dir", dir,
		"version", fmt.Sprintf("%#x", h.Version),
		"entries", h.NumEntries,
		"table_size", idx.TableSize(),
	)
	return c, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Cache) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Logger returns the logger used by the cache, tagged with the session.
func (c *Cache) Logger() *slog.Logger {
	return c.log()
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Session returns the identifier attached to this session's log records.
func (c *Cache) Session() string {
	return c.session
}

// Header returns the decoded index header.
func (c *Cache) Header() IndexHeader {
	return c.idx.Header()
}

// TableSize returns the number of hash table slots.
func (c *Cache) TableSize() uint32 {
	return c.idx.TableSize()
}

// Hash returns the hash Lookup uses for key.
func (c *Cache) Hash(key string) uint32 {
	return c.walker.Hash(key)
}

// Entries returns a lazy iterator over every entry in slot order.
//
// Entries are yielded with a nil error, or with a *Diagnostic when they
// decoded only partially. A chain that ends early yields (nil, *Diagnostic)
// and iteration continues. An index table that cannot be read to the end
// yields a final (nil, *Diagnostic) wrapping ErrOutOfRange. Context
// cancellation and ErrEntryLimit end the sequence with (nil, err). Ranging
// again restarts the scan.
func (c *Cache) Entries(ctx context.Context) iter.Seq2[*Entry, error] {
	return c.walker.Entries(ctx)
}

// Scan walks the whole table and collects entries and diagnostics.
// Only context cancellation fails the call.
func (c *Cache) Scan(ctx context.Context) (*ScanResult, error) {
	return c.walker.Scan(ctx)
}

// Lookup finds the entry for each key. A key with no entry yields a
// NotFound match; a chain that could not be followed yields Failed.
// Only context cancellation fails the call.
func (c *Cache) Lookup(ctx context.Context, keys ...string) (*LookupResult, error) {
	return c.walker.Lookup(ctx, keys...)
}

// Close releases every file handle held by the cache.
func (c *Cache) Close() error {
	return errors.Join(c.store.Close(), c.idx.Close())
}
