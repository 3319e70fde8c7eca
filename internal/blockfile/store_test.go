package blockfile_test

import (
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/blockfile"
	"github.com/meigma/chromecache/internal/cachetype"
	"github.com/meigma/chromecache/internal/testutil"
)

func newStore(tb testing.TB, dir string) *blockfile.Store {
	tb.Helper()
	s := blockfile.New(dir)
	tb.Cleanup(func() { _ = s.Close() })
	return s
}

func TestResolveBlock(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4)
	first := b.PutData([]byte("hello"))
	second := b.PutData(make([]byte, 700)) // three 256-byte blocks
	dir := b.WriteTemp()
	s := newStore(t, dir)

	r, err := s.Resolve(first)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data_1"), r.Path)
	assert.Equal(t, int64(blockfile.HeaderSize), r.Offset)
	assert.Equal(t, int64(256), r.Length)
	assert.True(t, r.Allocated)

	data, err := r.ReadAll(0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data[:5]))

	r, err = s.Resolve(second)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), second.ContiguousBlocks)
	assert.Equal(t, int64(blockfile.HeaderSize+256), r.Offset)
	assert.Equal(t, int64(768), r.Length)

	assert.Equal(t, 1, s.OpenFiles())
}

func TestResolveUsesKindBlockSize(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4)
	b.Alloc(addr.Block4K, 2)
	a := b.PutData(make([]byte, 5000)) // 1K blocks x 4 would not fit, so two 4K blocks
	dir := b.WriteTemp()
	s := newStore(t, dir)

	r, err := s.Resolve(a)
	require.NoError(t, err)
	assert.Equal(t, addr.Block4K, a.Kind)
	assert.Equal(t, int64(blockfile.HeaderSize+2*4096), r.Offset)
	assert.Equal(t, int64(2*4096), r.Length)
}

func TestResolveMissingFile(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4).Skip("data_2")
	dir := b.WriteTemp()
	s := newStore(t, dir)

	_, err := s.Resolve(addr.NewBlock(addr.Block1K, 2, 0, 1))
	assert.ErrorIs(t, err, cachetype.ErrMissingFile)

	_, err = s.ResolveSeparate(addr.NewSeparate(77))
	assert.ErrorIs(t, err, cachetype.ErrMissingFile)
}

func TestResolveOutOfRange(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4)
	b.PutData([]byte("x"))
	dir := b.WriteTemp()
	s := newStore(t, dir)

	_, err := s.Resolve(addr.NewBlock(addr.Block256, 1, 50, 1))
	assert.ErrorIs(t, err, cachetype.ErrOutOfRange)

	_, err = s.Resolve(addr.NewBlock(addr.Block256, 1, blockfile.MaxBlocks-1, 2))
	assert.ErrorIs(t, err, cachetype.ErrOutOfRange)
}

func TestResolveRejectsBadAddresses(t *testing.T) {
	t.Parallel()

	s := newStore(t, testutil.NewBuilder(t, 4).WriteTemp())

	_, err := s.Resolve(addr.Address{})
	assert.ErrorIs(t, err, cachetype.ErrBadAddress)

	_, err = s.Resolve(addr.NewSeparate(1))
	assert.ErrorIs(t, err, cachetype.ErrBadAddress)

	_, err = s.ResolveSeparate(addr.NewBlock(addr.Block256, 1, 0, 1))
	assert.ErrorIs(t, err, cachetype.ErrBadAddress)
}

func TestResolveEntrySizeMismatch(t *testing.T) {
	t.Parallel()

	dir := testutil.NewBuilder(t, 4).WriteTemp()
	// data_1 holds 256-byte blocks; claim a 1K address inside it.
	a := addr.Address{Initialized: true, Kind: addr.Block1K, FileNumber: 1, ContiguousBlocks: 1}
	_, err := newStore(t, dir).Resolve(a)
	assert.ErrorIs(t, err, cachetype.ErrFormat)
}

func TestResolveBadBlockHeader(t *testing.T) {
	t.Parallel()

	dir := testutil.NewBuilder(t, 4).WriteTemp()
	path := filepath.Join(dir, "data_1")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[0:], 0)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = newStore(t, dir).Resolve(addr.NewBlock(addr.Block256, 1, 0, 1))
	assert.ErrorIs(t, err, cachetype.ErrFormat)
}

func TestResolveSeparate(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4)
	payload := []byte("separate payload")
	a := b.PutSeparate(payload)
	dir := b.WriteTemp()
	s := newStore(t, dir)

	r, err := s.ResolveSeparate(a)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	assert.Equal(t, filepath.Join(dir, "f_000001"), r.Path)
	assert.Equal(t, int64(len(payload)), r.Length)

	got, err := io.ReadAll(r.Section())
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = r.ReadAll(4)
	assert.ErrorIs(t, err, cachetype.ErrSizeOverflow)

	r2, err := s.Lookup(a)
	require.NoError(t, err)
	require.NoError(t, r2.Close())
}

func TestUnallocatedBlock(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4)
	b.PutData([]byte("a"))
	b.PutData([]byte("b"))
	dir := b.WriteTemp()

	// Clear block 1 in the data_1 bitmap.
	path := filepath.Join(dir, "data_1")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[80:], 0x1)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s := newStore(t, dir)
	r, err := s.Resolve(addr.NewBlock(addr.Block256, 1, 1, 1))
	require.NoError(t, err)
	assert.False(t, r.Allocated)

	h, err := s.Header(1)
	require.NoError(t, err)
	assert.Equal(t, 1, h.UsedBlocks())
	assert.True(t, h.Allocated(0, 1))
	assert.False(t, h.Allocated(0, 2))
	assert.False(t, h.Allocated(blockfile.MaxBlocks, 1))
}

func TestConcurrentResolveOpensOnce(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4)
	a := b.PutData([]byte("shared"))
	s := newStore(t, b.WriteTemp())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.Resolve(a)
			assert.NoError(t, err)
			data, err := r.ReadAll(0)
			assert.NoError(t, err)
			assert.Equal(t, "shared", string(data[:6]))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.OpenFiles())
}

func TestClose(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4)
	a := b.PutData([]byte("x"))
	s := blockfile.New(b.WriteTemp())

	_, err := s.Resolve(a)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.OpenFiles())

	_, err = s.Resolve(a)
	assert.ErrorIs(t, err, fs.ErrClosed)
}
