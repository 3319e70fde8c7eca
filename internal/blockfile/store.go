// Package blockfile resolves cache addresses to byte ranges inside data_N
// block files and standalone f_XXXXXX files.
//
// A Store owns every handle it opens. Handles live until Close, so a Store
// should be scoped to a single cache session.
package blockfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/cachetype"
	"github.com/meigma/chromecache/internal/sizing"
)

// Range is a resolved byte range inside one file.
type Range struct {
	// Path is the file the range lives in.
	Path string

	Offset int64
	Length int64

	// Allocated reports whether the allocation bitmap marks the blocks as
	// used. Always true for separate files.
	Allocated bool

	src    io.ReaderAt
	closer io.Closer
}

// Section returns a reader bounded to the range.
func (r Range) Section() *io.SectionReader {
	return io.NewSectionReader(r.src, r.Offset, r.Length)
}

// ReadAll reads the full range, failing with ErrSizeOverflow when it is
// larger than limit. A limit of 0 disables the check.
func (r Range) ReadAll(limit uint64) ([]byte, error) {
	return sizing.ReadAllWithLimit(r.Section(), limit, cachetype.ErrSizeOverflow)
}

// Close releases a handle owned by the range. Ranges inside block files
// share the store's handle and Close is a no-op for them.
func (r Range) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// handle is an open block file with its parsed header.
type handle struct {
	f      *os.File
	size   int64
	header *Header
}

// Store resolves addresses against the files of one cache directory.
// It is safe for concurrent use.
type Store struct {
	dir       string
	mu        sync.Mutex
	files     map[uint32]*handle
	openGroup singleflight.Group
	closed    bool
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for file operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store rooted at dir. Files are opened lazily.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:   dir,
		files: make(map[uint32]*handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Lookup resolves an address of any kind.
func (s *Store) Lookup(a addr.Address) (Range, error) {
	if a.IsSeparate() {
		return s.ResolveSeparate(a)
	}
	return s.Resolve(a)
}

// Resolve maps a block address to its record range.
func (s *Store) Resolve(a addr.Address) (Range, error) {
	if !a.Initialized {
		return Range{}, fmt.Errorf("%w: %s is not initialized", cachetype.ErrBadAddress, a)
	}
	if a.IsSeparate() {
		return Range{}, fmt.Errorf("%w: %s is not a block address", cachetype.ErrBadAddress, a)
	}
	if a.ContiguousBlocks < 1 || a.ContiguousBlocks > addr.MaxContiguousBlocks {
		return Range{}, fmt.Errorf("%w: %s spans %d blocks", cachetype.ErrBadAddress, a, a.ContiguousBlocks)
	}

	h, err := s.blockFile(a.FileNumber)
	if err != nil {
		return Range{}, err
	}
	path := filepath.Join(s.dir, a.FileName())

	if uint32(h.header.EntrySize) != a.BlockSize() { //nolint:gosec // compared as raw on-disk value
		return Range{}, fmt.Errorf("%w: %s holds %d-byte blocks, address %s expects %d",
			cachetype.ErrFormat, path, h.header.EntrySize, a, a.BlockSize())
	}
	if uint64(a.BlockIndex)+uint64(a.ContiguousBlocks) > MaxBlocks {
		return Range{}, fmt.Errorf("%w: %s block %d beyond bitmap", cachetype.ErrOutOfRange, path, a.BlockIndex)
	}

	off, ok := sizing.BlockOffset(HeaderSize, uint64(a.BlockIndex), uint64(a.BlockSize()))
	if !ok {
		return Range{}, fmt.Errorf("%w: %s offset", cachetype.ErrSizeOverflow, a)
	}
	length := a.Length()
	if !sizing.Within(off, length, h.size) {
		return Range{}, fmt.Errorf("%w: %s [%d,+%d) past end of %s (%d bytes)",
			cachetype.ErrOutOfRange, a, off, length, path, h.size)
	}

	return Range{
		Path:      path,
		Offset:    int64(off),    //nolint:gosec // bounded by file size
		Length:    int64(length), //nolint:gosec // at most 4 x 4096
		Allocated: h.header.Allocated(a.BlockIndex, a.ContiguousBlocks),
		src:       h.f,
	}, nil
}

// ResolveSeparate opens the standalone file named by a and returns its full
// contents. The caller must Close the returned range.
func (s *Store) ResolveSeparate(a addr.Address) (Range, error) {
	if !a.Initialized || !a.IsSeparate() {
		return Range{}, fmt.Errorf("%w: %s is not a separate-file address", cachetype.ErrBadAddress, a)
	}
	path := filepath.Join(s.dir, a.FileName())
	f, err := os.Open(path)
	if err != nil {
		return Range{}, wrapOpenError(path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return Range{}, fmt.Errorf("stat %s: %w", path, err)
	}
	s.log().Debug("opened separate file", "path", path, "size", info.Size())
	return Range{
		Path:      path,
		Offset:    0,
		Length:    info.Size(),
		Allocated: true,
		src:       f,
		closer:    f,
	}, nil
}

// Header returns the parsed header of data_<fileNumber>.
func (s *Store) Header(fileNumber uint32) (*Header, error) {
	h, err := s.blockFile(fileNumber)
	if err != nil {
		return nil, err
	}
	return h.header, nil
}

// OpenFiles returns the number of block files currently held open.
func (s *Store) OpenFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Close releases every handle. The store cannot be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for n, h := range s.files {
		if err := h.f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.files, n)
	}
	s.closed = true
	return errors.Join(errs...)
}

// blockFile returns the cached handle for data_<n>, opening it on first use.
// Concurrent first opens of the same file share one open.
func (s *Store) blockFile(n uint32) (*handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fs.ErrClosed
	}
	if h, ok := s.files[n]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	v, err, _ := s.openGroup.Do(fmt.Sprint(n), func() (any, error) {
		s.mu.Lock()
		if h, ok := s.files[n]; ok {
			s.mu.Unlock()
			return h, nil
		}
		s.mu.Unlock()

		h, err := s.openBlockFile(n)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			_ = h.f.Close()
			return nil, fs.ErrClosed
		}
		s.files[n] = h
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*handle), nil //nolint:forcetypeassert // the group func only returns *handle
}

func (s *Store) openBlockFile(n uint32) (*handle, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("data_%d", n))
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapOpenError(path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, HeaderSize), buf); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: short header: %v", cachetype.ErrFormat, path, err)
	}
	header, err := ParseHeader(buf)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s.log().Debug("opened block file",
		"path", path,
		"entry_size", header.EntrySize,
		"num_entries", header.NumEntries,
		"size", info.Size(),
	)
	return &handle{f: f, size: info.Size(), header: header}, nil
}

func wrapOpenError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", cachetype.ErrMissingFile, path)
	}
	return fmt.Errorf("open %s: %w", path, err)
}
