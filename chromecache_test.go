package chromecache_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/chromecache"
	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/testutil"
)

func openCache(tb testing.TB, b *testutil.Builder, opts ...chromecache.Option) *chromecache.Cache {
	tb.Helper()
	c, err := chromecache.Open(b.WriteTemp(), opts...)
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = c.Close() })
	return c
}

func gzipBytes(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(tb, err)
	require.NoError(tb, w.Close())
	return buf.Bytes()
}

func TestOpen(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 16)
	b.Insert(testutil.EntrySpec{Key: "http://a/"})
	c := openCache(t, b)

	assert.Equal(t, uint32(16), c.TableSize())
	assert.Equal(t, int32(1), c.Header().NumEntries)
	_, err := uuid.Parse(c.Session())
	assert.NoError(t, err)
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	_, err := chromecache.Open(t.TempDir())
	assert.ErrorIs(t, err, chromecache.ErrMissingFile)

	dir := testutil.NewBuilder(t, 4).WriteTemp()
	path := filepath.Join(dir, chromecache.IndexFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data, 0)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = chromecache.Open(dir)
	assert.ErrorIs(t, err, chromecache.ErrFormat)
}

func TestScanAndReadEntryData(t *testing.T) {
	t.Parallel()

	header := testutil.PickledHeaderBlock("HTTP/1.1 200 OK", "Content-Type", "text/html")
	body := []byte(strings.Repeat("<html></html>", 200))
	b := testutil.NewBuilder(t, 8)
	b.Insert(testutil.EntrySpec{Key: "http://example.com/", Streams: [][]byte{header, body}})
	c := openCache(t, b)

	res, err := c.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	e := res.Entries[0]
	assert.Equal(t, "http://example.com/", e.KeyString())

	streams := c.ReadEntryData(e)
	require.Len(t, streams, chromecache.NumStreams)

	require.NoError(t, streams[0].Err)
	assert.Equal(t, chromecache.DataHTTPHeader, streams[0].Data.Kind)
	ct, ok := streams[0].Data.Header.Get("content-type")
	require.True(t, ok)
	assert.Equal(t, "text/html", ct)

	require.NoError(t, streams[1].Err)
	assert.Equal(t, chromecache.DataRaw, streams[1].Data.Kind)
	assert.Equal(t, body, streams[1].Data.Raw)
	assert.Equal(t, chromecache.KindBlock1K, streams[1].Address.Kind)

	for _, s := range streams[2:] {
		assert.True(t, s.Empty())
		assert.Nil(t, s.Data)
		assert.NoError(t, s.Err)
	}
}

func TestReadEntryDataLargeStream(t *testing.T) {
	t.Parallel()

	body := bytes.Repeat([]byte("z"), 20000)
	b := testutil.NewBuilder(t, 4)
	b.Insert(testutil.EntrySpec{Key: "k", Hash: 1, Streams: [][]byte{nil, body}})
	c := openCache(t, b)

	scan, err := c.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, scan.Entries, 1)
	streams := c.ReadEntryData(scan.Entries[0])
	require.NoError(t, streams[1].Err)
	assert.True(t, streams[1].Address.IsSeparate())
	assert.Equal(t, body, streams[1].Data.Raw)
}

func TestReadEntryDataInconsistentStreams(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4)
	a := b.ReserveEntry()
	b.PutBlock(a, testutil.EncodeEntry(testutil.EntryRecord{
		Hash:      1,
		KeyLength: 1,
		InlineKey: []byte("k"),
		DataSizes: [4]uint32{0, 10, 5000},
		DataAddrs: [4]addr.Address{
			addr.NewBlock(addr.Block256, 1, 0, 1),
			{},
			addr.NewBlock(addr.Block1K, 2, 0, 1),
		},
	}, 1))
	b.Alloc(addr.Block1K, 1)
	b.SetSlot(1, a)
	c := openCache(t, b)

	res, err := c.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)

	streams := c.ReadEntryData(res.Entries[0])
	assert.ErrorIs(t, streams[0].Err, chromecache.ErrInconsistentStream)
	assert.ErrorIs(t, streams[1].Err, chromecache.ErrInconsistentStream)
	assert.ErrorIs(t, streams[2].Err, chromecache.ErrInconsistentStream)
	assert.NoError(t, streams[3].Err)

	var d *chromecache.Diagnostic
	require.ErrorAs(t, streams[1].Err, &d)
	assert.Equal(t, 1, d.Stream)
	assert.Equal(t, "k", d.Key)
	assert.Equal(t, uint32(1), d.Slot)
}

func TestReadEntryDataMissingFile(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4).Skip("data_2")
	b.Insert(testutil.EntrySpec{
		Key:     "k",
		Hash:    2,
		Streams: [][]byte{testutil.RawHeaderBlock("HTTP/1.1 200 OK"), make([]byte, 2000)},
	})
	c := openCache(t, b)

	res, err := c.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	streams := c.ReadEntryData(res.Entries[0])
	assert.NoError(t, streams[0].Err)
	assert.ErrorIs(t, streams[1].Err, chromecache.ErrMissingFile)
	assert.Nil(t, streams[1].Data)
}

func TestReadEntryDataSizeLimit(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4)
	b.Insert(testutil.EntrySpec{Key: "k", Hash: 1, Streams: [][]byte{nil, make([]byte, 3000)}})
	c := openCache(t, b, chromecache.WithMaxDataSize(1024))

	res, err := c.Scan(context.Background())
	require.NoError(t, err)
	streams := c.ReadEntryData(res.Entries[0])
	assert.ErrorIs(t, streams[1].Err, chromecache.ErrSizeOverflow)
}

func TestBody(t *testing.T) {
	t.Parallel()

	plain := []byte(strings.Repeat("cached body ", 100))
	b := testutil.NewBuilder(t, 4)
	b.Insert(testutil.EntrySpec{
		Key:  "http://gz/",
		Hash: 1,
		Streams: [][]byte{
			testutil.PickledHeaderBlock("HTTP/1.1 200 OK", "Content-Encoding", "gzip"),
			gzipBytes(t, plain),
		},
	})
	b.Insert(testutil.EntrySpec{Key: "http://raw/", Hash: 2, Streams: [][]byte{nil, plain}})
	c := openCache(t, b)

	res, err := c.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)

	h, err := c.HTTPHeader(res.Entries[0])
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, 200, h.StatusCode)

	got, err := c.Body(res.Entries[0])
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	h, err = c.HTTPHeader(res.Entries[1])
	require.NoError(t, err)
	assert.Nil(t, h)
	got, err = c.Body(res.Entries[1])
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	plain := []byte("hello")
	got, err := chromecache.DecodeBody(plain, nil)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	h := &chromecache.HTTPHeader{Headers: []chromecache.Header{{Name: "content-encoding", Value: "gzip"}}}
	got, err = chromecache.DecodeBody(gzipBytes(t, plain), h)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	h.Headers[0].Value = "br"
	_, err = chromecache.DecodeBody(plain, h)
	assert.ErrorIs(t, err, chromecache.ErrUnsupportedEncoding)
}

func TestBodyWithUnreadableHeader(t *testing.T) {
	t.Parallel()

	// The 2000-byte header lands in data_2, which is not written; the body
	// stays in data_1.
	header := append(testutil.RawHeaderBlock("HTTP/1.1 200 OK", "Content-Encoding", "gzip"), make([]byte, 2000)...)
	b := testutil.NewBuilder(t, 4).Skip("data_2")
	b.Insert(testutil.EntrySpec{Key: "k", Hash: 1, Streams: [][]byte{header, []byte("raw body")}})
	c := openCache(t, b)

	res, err := c.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)

	got, err := c.Body(res.Entries[0])
	assert.Equal(t, []byte("raw body"), got)
	require.Error(t, err)
	assert.ErrorIs(t, err, chromecache.ErrMissingFile)
	var d *chromecache.Diagnostic
	require.ErrorAs(t, err, &d)
	assert.Equal(t, chromecache.HeaderStream, d.Stream)
}

func TestEncodingSupported(t *testing.T) {
	t.Parallel()

	assert.True(t, chromecache.EncodingSupported(""))
	assert.True(t, chromecache.EncodingSupported("gzip, deflate"))
	assert.False(t, chromecache.EncodingSupported("br"))

	assert.Equal(t, "", chromecache.ContentEncoding(nil))
	h := &chromecache.HTTPHeader{Headers: []chromecache.Header{
		{Name: "Content-Encoding", Value: "gzip"},
		{Name: "content-encoding", Value: "zstd"},
	}}
	assert.Equal(t, "gzip,zstd", chromecache.ContentEncoding(h))
}

func TestBlockFiles(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 4).Skip("data_2")
	b.Insert(testutil.EntrySpec{Key: "a", Hash: 1})
	b.Insert(testutil.EntrySpec{Key: "b", Hash: 2})
	dir := b.WriteTemp()

	// Chain data_1 to a copy at data_4 whose next link points back to data_1.
	data1, err := os.ReadFile(filepath.Join(dir, "data_1"))
	require.NoError(t, err)
	data4 := bytes.Clone(data1)
	binary.LittleEndian.PutUint16(data4[8:], 4)
	binary.LittleEndian.PutUint16(data4[10:], 1)
	binary.LittleEndian.PutUint16(data1[10:], 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_1"), data1, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_4"), data4, 0o644))

	c, err := chromecache.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	files, err := c.BlockFiles()
	require.NoError(t, err)
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"data_0", "data_1", "data_4", "data_3"}, names)

	assert.Equal(t, uint32(4), files[1].NextFile)
	assert.Equal(t, int32(256), files[1].EntrySize)
	assert.Equal(t, 2, files[1].UsedBlocks)
	assert.Equal(t, int32(2), files[1].NumEntries)
	assert.Equal(t, uint32(1), files[2].NextFile)
	assert.Equal(t, 0, files[0].UsedBlocks)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 32)
	b.Insert(testutil.EntrySpec{Key: "http://a/"})
	c := openCache(t, b, chromecache.WithWorkers(4))

	res, err := c.Lookup(context.Background(), "http://a/", "http://nope/")
	require.NoError(t, err)
	m, ok := res.Get("http://a/")
	require.True(t, ok)
	assert.Equal(t, chromecache.Found, m.Outcome)
	assert.Equal(t, c.Hash("http://a/"), m.Entry.Hash)
	m, _ = res.Get("http://nope/")
	assert.Equal(t, chromecache.NotFound, m.Outcome)
}

func TestEntries(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 8)
	b.Insert(testutil.EntrySpec{Key: "one", Hash: 1})
	b.Insert(testutil.EntrySpec{Key: "two", Hash: 2})
	c := openCache(t, b)

	var got []string
	for e, err := range c.Entries(context.Background()) {
		require.NoError(t, err)
		got = append(got, e.KeyString())
	}
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestParse(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 16)
	b.Insert(testutil.EntrySpec{
		Key:     "http://a/",
		Streams: [][]byte{testutil.RawHeaderBlock("HTTP/1.1 204 No Content")},
	})
	b.Insert(testutil.EntrySpec{Key: "http://b/"})
	dir := b.WriteTemp()
	ctx := context.Background()

	all, err := chromecache.Parse(ctx, dir, nil)
	require.NoError(t, err)
	assert.Len(t, all.Records, 2)
	assert.Empty(t, all.NotFound)

	some, err := chromecache.Parse(ctx, dir, []string{"http://a/", "http://missing/"})
	require.NoError(t, err)
	require.Len(t, some.Records, 1)
	r := some.Records[0]
	assert.Equal(t, "http://a/", r.Entry.KeyString())
	require.Len(t, r.Streams, chromecache.NumStreams)
	assert.Equal(t, 204, r.Streams[0].Data.Header.StatusCode)
	assert.Equal(t, []string{"http://missing/"}, some.NotFound)

	_, err = chromecache.Parse(ctx, t.TempDir(), nil)
	assert.ErrorIs(t, err, chromecache.ErrMissingFile)
}

func TestLoggerCarriesSession(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b := testutil.NewBuilder(t, 4)
	b.SetSlot(0, addr.NewBlock(addr.Block256, 9, 0, 1))
	c := openCache(t, b, chromecache.WithLogger(logger))

	res, err := c.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.ErrorIs(t, res.Diagnostics[0], chromecache.ErrMissingFile)

	out := buf.String()
	assert.Contains(t, out, "session="+c.Session())
	assert.Contains(t, out, "skipped cache item")
}

func TestCollect(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 8)
	b.Insert(testutil.EntrySpec{Key: "one", Hash: 1, Streams: [][]byte{nil, []byte("body")}})
	b.SetSlot(5, addr.NewBlock(addr.Block256, 1, 200, 1))
	c := openCache(t, b)

	res, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, []byte("body"), res.Records[0].Streams[chromecache.BodyStream].Data.Raw)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, uint32(5), res.Diagnostics[0].Slot)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
