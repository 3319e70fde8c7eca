// Package extract writes decoded stream payloads to a directory, one file
// per distinct content digest.
package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o755
	defaultFilePerm       = 0o644
)

// ErrDigestMismatch is returned when content does not match the digest it
// is stored under.
var ErrDigestMismatch = errors.New("extract: digest mismatch")

// Store lays payloads out as <dir>/<algorithm>/<shard>/<hex>. Identical
// payloads share one file. The store is safe for concurrent use.
type Store struct {
	dir            string       // root directory
	shardPrefixLen int          // number of hex chars for subdirectory sharding
	dirPerm        os.FileMode  // permissions for created directories
	maxBytes       int64        // maximum bytes written (0 = unlimited)
	bytes          atomic.Int64 // bytes written so far
}

// Option configures a Store.
type Option func(*Store)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(s *Store) {
		s.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions used for created directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// WithMaxBytes caps the total bytes the store writes. Payloads that would
// exceed the cap are skipped. Use 0 to disable the cap.
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		s.maxBytes = n
	}
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("extract: output dir is empty")
	}
	s := &Store{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.shardPrefixLen < 0 {
		return nil, errors.New("extract: shard prefix length must be >= 0")
	}
	if s.maxBytes < 0 {
		return nil, errors.New("extract: max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns where content with digest d is stored.
func (s *Store) Path(d digest.Digest) (string, error) {
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	hexPart := d.Encoded()
	if s.shardPrefixLen <= 0 {
		return filepath.Join(s.dir, d.Algorithm().String(), hexPart), nil
	}
	prefixLen := min(s.shardPrefixLen, len(hexPart))
	return filepath.Join(s.dir, d.Algorithm().String(), hexPart[:prefixLen], hexPart), nil
}

// Has reports whether content with digest d is already stored.
func (s *Store) Has(d digest.Digest) bool {
	path, err := s.Path(d)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Put stores content under digest d and returns its path. stored is false
// when the content was already present or did not fit under the cap; in
// the latter case path is empty.
func (s *Store) Put(d digest.Digest, content []byte) (path string, stored bool, err error) {
	path, err = s.Path(d)
	if err != nil {
		return "", false, err
	}
	if d.Algorithm().Available() {
		v := d.Verifier()
		_, _ = v.Write(content)
		if !v.Verified() {
			return "", false, fmt.Errorf("%w: %s", ErrDigestMismatch, d)
		}
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return path, false, nil
	}
	size := int64(len(content))
	if !s.reserve(size) {
		return "", false, nil
	}

	dir := filepath.Dir(path)
	if mkdirErr := os.MkdirAll(dir, s.dirPerm); mkdirErr != nil {
		s.bytes.Add(-size)
		return "", false, mkdirErr
	}
	tmp, err := os.CreateTemp(dir, "extract-*")
	if err != nil {
		s.bytes.Add(-size)
		return "", false, err
	}
	tmpPath := tmp.Name()
	if err := writeAndClose(tmp, content); err != nil {
		_ = os.Remove(tmpPath)
		s.bytes.Add(-size)
		return "", false, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		s.bytes.Add(-size)
		if _, statErr := os.Stat(path); statErr == nil {
			return path, false, nil
		}
		return "", false, err
	}
	return path, true, nil
}

// SizeBytes returns the number of bytes written so far.
func (s *Store) SizeBytes() int64 {
	return s.bytes.Load()
}

// reserve accounts for size bytes, reporting false when they do not fit.
func (s *Store) reserve(size int64) bool {
	if s.maxBytes <= 0 {
		s.bytes.Add(size)
		return true
	}
	for {
		cur := s.bytes.Load()
		if cur+size > s.maxBytes {
			return false
		}
		if s.bytes.CompareAndSwap(cur, cur+size) {
			return true
		}
	}
}

func writeAndClose(f *os.File, content []byte) error {
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(defaultFilePerm); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteTo copies the content stored under d to w.
func (s *Store) WriteTo(d digest.Digest, w io.Writer) (int64, error) {
	path, err := s.Path(d)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path) //nolint:gosec // path is derived from a validated digest
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}
