package snapshot_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/chromecache"
	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/fb"
	"github.com/meigma/chromecache/internal/testutil"
	"github.com/meigma/chromecache/snapshot"
)

func openCache(tb testing.TB, b *testutil.Builder) *chromecache.Cache {
	tb.Helper()
	c, err := chromecache.Open(b.WriteTemp())
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBuildAndLoad(t *testing.T) {
	t.Parallel()

	body := []byte("<html></html>")
	b := testutil.NewBuilder(t, 16)
	b.Insert(testutil.EntrySpec{
		Key:        "http://b/",
		Hash:       3,
		ReuseCount: 2,
		Streams:    [][]byte{testutil.PickledHeaderBlock("HTTP/1.1 404 Not Found"), body},
	})
	b.Insert(testutil.EntrySpec{Key: "http://a/", Hash: 5})
	b.SetSlot(9, addr.NewBlock(addr.Block256, 7, 0, 1))
	c := openCache(t, b)

	buf, err := snapshot.Build(context.Background(), c)
	require.NoError(t, err)

	s, err := snapshot.Load(buf)
	require.NoError(t, err)
	assert.Equal(t, c.Session(), s.Session())
	assert.Equal(t, c.Dir(), s.Dir())
	assert.False(t, s.Truncated())
	assert.Equal(t, 2, s.Len())

	var keys []string
	for r := range s.Records() {
		keys = append(keys, r.Key())
	}
	assert.Equal(t, []string{"http://a/", "http://b/"}, keys)

	r, ok := s.Find("http://b/")
	require.True(t, ok)
	assert.Equal(t, uint32(3), r.Hash())
	assert.Equal(t, uint32(3), r.Slot())
	assert.Equal(t, uint32(2), r.ReuseCount())
	assert.Equal(t, chromecache.StateNormal, r.State())
	assert.Equal(t, chromecache.KindBlock256, r.Address().Kind)

	streams := slices.Collect(r.Streams())
	require.Len(t, streams, 2)
	assert.Equal(t, 0, streams[0].Index())
	assert.Equal(t, chromecache.DataHTTPHeader, streams[0].Kind())
	assert.Equal(t, 404, streams[0].StatusCode())
	assert.Equal(t, 1, streams[1].Index())
	assert.Equal(t, chromecache.DataRaw, streams[1].Kind())
	assert.Equal(t, digest.FromBytes(body), streams[1].Digest())
	assert.Equal(t, uint32(len(body)), streams[1].Size())
	assert.Empty(t, streams[1].Err())

	_, ok = s.Find("http://missing/")
	assert.False(t, ok)

	diags := s.Diagnostics()
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0], "slot 9")
}

func TestBuildLookup(t *testing.T) {
	t.Parallel()

	b := testutil.NewBuilder(t, 8)
	b.Insert(testutil.EntrySpec{Key: "one"})
	b.Insert(testutil.EntrySpec{Key: "two"})
	c := openCache(t, b)

	buf, err := snapshot.Build(context.Background(), c, "two")
	require.NoError(t, err)
	s, err := snapshot.Load(buf)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	_, ok := s.Find("two")
	assert.True(t, ok)
	_, ok = s.Find("one")
	assert.False(t, ok)
}

func TestMarshalRecordsStreamErrors(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &chromecache.Entry{
		Key:          []byte("k"),
		Hash:         0x11,
		Address:      addr.NewBlock(addr.Block256, 1, 4, 1),
		CreationTime: created,
		Flags:        chromecache.FlagParent,
	}
	streams := make([]chromecache.Stream, chromecache.NumStreams)
	for i := range streams {
		streams[i].Index = i
	}
	streams[2] = chromecache.Stream{
		Index:   2,
		Address: addr.NewBlock(addr.Block1K, 2, 0, 1),
		Size:    10,
		Err:     chromecache.ErrMissingFile,
	}
	res := &chromecache.ParseResult{
		Records:   []chromecache.Record{{Entry: e, Streams: streams}},
		Truncated: true,
	}

	s, err := snapshot.Load(snapshot.Marshal(res, snapshot.Meta{TableSize: 16}))
	require.NoError(t, err)
	assert.True(t, s.Truncated())
	assert.Empty(t, s.Diagnostics())

	r, ok := s.Find("k")
	require.True(t, ok)
	assert.Equal(t, uint32(1), r.Slot())
	assert.Equal(t, created, r.CreationTime())
	assert.Equal(t, chromecache.FlagParent, r.Flags())

	got := slices.Collect(r.Streams())
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Index())
	assert.Equal(t, chromecache.ErrMissingFile.Error(), got[0].Err())
	assert.Empty(t, got[0].Digest())
}

func TestMarshalZeroCreationTime(t *testing.T) {
	t.Parallel()

	res := &chromecache.ParseResult{
		Records: []chromecache.Record{{Entry: &chromecache.Entry{Key: []byte("k")}}},
	}
	s, err := snapshot.Load(snapshot.Marshal(res, snapshot.Meta{}))
	require.NoError(t, err)
	r, ok := s.Find("k")
	require.True(t, ok)
	assert.True(t, r.CreationTime().IsZero())
	assert.Equal(t, uint32(0), r.Slot())
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := snapshot.Load(nil)
	require.Error(t, err)

	_, err = snapshot.Load([]byte{0xff, 0xff, 0xff, 0x7f})
	require.Error(t, err)

	buf := snapshot.Marshal(&chromecache.ParseResult{}, snapshot.Meta{})
	require.True(t, fb.GetRootAsSnapshot(buf, 0).MutateVersion(snapshot.Version+1))
	_, err = snapshot.Load(buf)
	require.ErrorContains(t, err, "unsupported version")
}
