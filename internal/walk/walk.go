// Package walk traverses the index table and the bucket chains hanging off
// it, producing decoded entries.
//
// A chain is followed address by address with an explicit visited set, so
// a corrupt chain that loops back on itself ends with ErrCorruptChain
// instead of running forever. Failures that only affect one chain are
// reported as Diagnostics and the walk moves on to the next slot.
package walk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/blockfile"
	"github.com/meigma/chromecache/internal/cachetype"
	"github.com/meigma/chromecache/internal/entry"
	"github.com/meigma/chromecache/internal/index"
	"github.com/meigma/chromecache/internal/superfasthash"
)

const (
	// DefaultMaxChainLength bounds how many entries one bucket chain may hold.
	DefaultMaxChainLength = 1 << 12

	// DefaultMaxEntries bounds how many entries a single scan may produce.
	DefaultMaxEntries = 1 << 22
)

// Hasher maps a key to the hash used to place it in the index table.
type Hasher func(key string) uint32

// Walker walks one cache session. It is safe for concurrent use.
type Walker struct {
	idx        *index.Index
	store      *blockfile.Store
	decoder    *entry.Decoder
	hash       Hasher
	maxChain   int
	maxEntries int
	workers    int
	logger     *slog.Logger
}

// Option configures a Walker.
type Option func(*Walker)

// WithLogger sets the logger for walk progress and diagnostics.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		w.logger = logger
	}
}

// WithHasher replaces the key hash used by Lookup.
// The default is SuperFastHash.
func WithHasher(h Hasher) Option {
	return func(w *Walker) {
		if h != nil {
			w.hash = h
		}
	}
}

// WithMaxChainLength sets the per-chain entry ceiling.
// Values <= 0 keep the default.
func WithMaxChainLength(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.maxChain = n
		}
	}
}

// WithMaxEntries sets the ceiling on entries produced by one scan.
// Values < 0 disable the ceiling; zero keeps the default.
func WithMaxEntries(n int) Option {
	return func(w *Walker) {
		if n != 0 {
			w.maxEntries = n
		}
	}
}

// WithWorkers sets how many slots are walked concurrently by Scan and
// Lookup. Values <= 1 walk sequentially.
func WithWorkers(n int) Option {
	return func(w *Walker) {
		w.workers = n
	}
}

// WithTickResolution sets the duration of one creation-time tick.
func WithTickResolution(d time.Duration) Option {
	return func(w *Walker) {
		w.decoder = entry.NewDecoder(d)
	}
}

// New returns a Walker over idx whose addresses resolve through store.
func New(idx *index.Index, store *blockfile.Store, opts ...Option) *Walker {
	w := &Walker{
		idx:        idx,
		store:      store,
		decoder:    entry.NewDecoder(0),
		hash:       superfasthash.Sum32,
		maxChain:   DefaultMaxChainLength,
		maxEntries: DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// log returns the logger, falling back to a discard logger if nil.
func (w *Walker) log() *slog.Logger {
	if w.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.logger
}

// Hash returns the hash the walker uses for key.
func (w *Walker) Hash(key string) uint32 {
	return w.hash(key)
}

// ReadEntry loads and decodes the entry record at a.
//
// A non-nil entry may come back with a non-nil error: the record decoded
// but holds an unknown state or its long key could not be read. A nil
// entry means the record itself was unreadable.
func (w *Walker) ReadEntry(a addr.Address) (*cachetype.Entry, error) {
	if a.Initialized && a.Kind != addr.Block256 {
		return nil, fmt.Errorf("%w: entry at %s is outside the entry block file", cachetype.ErrBadAddress, a)
	}
	r, err := w.store.Resolve(a)
	if err != nil {
		return nil, err
	}
	if !r.Allocated {
		w.log().Debug("entry block not marked allocated", "address", a.String())
	}
	rec, err := r.ReadAll(0)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", a, err)
	}

	e, decodeErr := w.decoder.Decode(rec)
	if e == nil {
		return nil, decodeErr
	}
	e.Address = a

	errs := []error{decodeErr}
	if !e.HasInlineKey() {
		if err := w.loadLongKey(e); err != nil {
			errs = append(errs, fmt.Errorf("long key %s: %w", e.LongKey, err))
		}
	}
	return e, errors.Join(errs...)
}

// loadLongKey reads a key stored outside the entry record.
func (w *Walker) loadLongKey(e *cachetype.Entry) error {
	r, err := w.store.Lookup(e.LongKey)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	n := r.Length
	if int64(e.KeyLength) < n {
		n = int64(e.KeyLength)
	}
	key := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(r.Section(), 0, n), key); err != nil {
		return fmt.Errorf("%w: %v", cachetype.ErrOutOfRange, err)
	}
	e.Key = key
	return nil
}

// entryBudget counts entries against the scan ceiling.
type entryBudget struct {
	limit int64
	used  atomic.Int64
}

func (w *Walker) newBudget() *entryBudget {
	if w.maxEntries < 0 {
		return nil
	}
	return &entryBudget{limit: int64(w.maxEntries)}
}

// take reserves one entry, reporting false once the ceiling is reached.
func (b *entryBudget) take() bool {
	if b == nil {
		return true
	}
	return b.used.Add(1) <= b.limit
}

// visitFunc receives each decoded entry along with a diagnostic for a soft
// failure on that entry. Returning true stops the chain.
type visitFunc func(e *cachetype.Entry, soft *Diagnostic) bool

// walkChain follows the bucket chain starting at head.
//
// The returned diagnostic, if any, is the failure that ended the chain
// early. The returned error aborts the whole walk and is either a context
// error or ErrEntryLimit.
func (w *Walker) walkChain(ctx context.Context, slot uint32, head addr.Address, budget *entryBudget, visit visitFunc) (*Diagnostic, error) {
	visited := make(map[uint32]struct{})
	cur := head
	for n := 0; cur.Initialized; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if n >= w.maxChain {
			return newDiagnostic(slot, cur, fmt.Errorf("%w: more than %d entries", cachetype.ErrChainTooLong, w.maxChain)), nil
		}
		raw := cur.Encode()
		if _, seen := visited[raw]; seen {
			return newDiagnostic(slot, cur, fmt.Errorf("%w: %s revisited after %d entries", cachetype.ErrCorruptChain, cur, n)), nil
		}
		visited[raw] = struct{}{}

		e, err := w.ReadEntry(cur)
		if e == nil {
			return newDiagnostic(slot, cur, err), nil
		}
		if !budget.take() {
			return nil, fmt.Errorf("%w: %d entries", cachetype.ErrEntryLimit, budget.limit)
		}

		var soft *Diagnostic
		if err != nil {
			soft = newDiagnostic(slot, cur, err)
			soft.Key = e.KeyString()
		}
		w.log().Debug("chain step", "slot", slot, "address", cur.String(), "hash", e.Hash, "next", e.Next.String())
		if visit(e, soft) {
			return nil, nil
		}
		cur = e.Next
	}
	return nil, nil
}
