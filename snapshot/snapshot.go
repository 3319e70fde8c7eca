// Package snapshot stores decoded cache contents in a FlatBuffers file.
//
// A snapshot keeps entry metadata, per-stream digests and the diagnostics
// of one scan or lookup so that a cache directory can be compared or
// queried later without its block files. Records are sorted by key,
// giving O(log n) lookups.
package snapshot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/chromecache"
	"github.com/meigma/chromecache/internal/fb"
)

// Version is the snapshot format version written by Marshal.
const Version = 1

// Meta describes where a snapshot was taken.
type Meta struct {
	Session string
	Dir     string

	// TableSize is used to record each entry's slot. Zero records slot 0.
	TableSize uint32
}

// Build collects entries from c (all of them, or those for keys) and
// encodes them together with the cache's session and directory.
func Build(ctx context.Context, c *chromecache.Cache, keys ...string) ([]byte, error) {
	res, err := c.Collect(ctx, keys...)
	if err != nil {
		return nil, err
	}
	return Marshal(res, Meta{
		Session:   c.Session(),
		Dir:       c.Dir(),
		TableSize: c.TableSize(),
	}), nil
}

// Marshal encodes res into the snapshot format.
func Marshal(res *chromecache.ParseResult, meta Meta) []byte {
	records := slices.Clone(res.Records)
	slices.SortStableFunc(records, func(a, b chromecache.Record) int {
		return cmp.Compare(a.Entry.KeyString(), b.Entry.KeyString())
	})

	builder := flatbuffers.NewBuilder(1024)

	// Build records in reverse order (FlatBuffers requirement)
	recordOffsets := make([]flatbuffers.UOffsetT, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		recordOffsets[i] = buildRecord(builder, records[i], meta.TableSize)
	}
	fb.SnapshotStartRecordsVector(builder, len(records))
	for i := len(recordOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(recordOffsets[i])
	}
	recordsOffset := builder.EndVector(len(records))

	diagOffsets := make([]flatbuffers.UOffsetT, len(res.Diagnostics))
	for i, d := range res.Diagnostics {
		diagOffsets[i] = builder.CreateString(d.Error())
	}
	fb.SnapshotStartDiagnosticsVector(builder, len(diagOffsets))
	for i := len(diagOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(diagOffsets[i])
	}
	diagnosticsOffset := builder.EndVector(len(diagOffsets))

	sessionOffset := builder.CreateString(meta.Session)
	dirOffset := builder.CreateString(meta.Dir)

	fb.SnapshotStart(builder)
	fb.SnapshotAddVersion(builder, Version)
	fb.SnapshotAddSession(builder, sessionOffset)
	fb.SnapshotAddDir(builder, dirOffset)
	fb.SnapshotAddRecords(builder, recordsOffset)
	fb.SnapshotAddDiagnostics(builder, diagnosticsOffset)
	fb.SnapshotAddTruncated(builder, res.Truncated)
	builder.Finish(fb.SnapshotEnd(builder))
	return builder.FinishedBytes()
}

func buildRecord(builder *flatbuffers.Builder, r chromecache.Record, tableSize uint32) flatbuffers.UOffsetT {
	e := r.Entry

	var streamOffsets []flatbuffers.UOffsetT
	for i := len(r.Streams) - 1; i >= 0; i-- {
		s := r.Streams[i]
		if s.Empty() {
			continue
		}
		streamOffsets = append(streamOffsets, buildStream(builder, s))
	}
	// streamOffsets holds streams last to first, which is prepend order.
	fb.RecordStartStreamsVector(builder, len(streamOffsets))
	for _, off := range streamOffsets {
		builder.PrependUOffsetT(off)
	}
	streamsOffset := builder.EndVector(len(streamOffsets))

	keyOffset := builder.CreateByteString(e.Key)

	var slot uint32
	if tableSize > 0 {
		slot = e.Hash & (tableSize - 1)
	}
	var created int64
	if !e.CreationTime.IsZero() {
		created = e.CreationTime.UnixNano()
	}

	fb.RecordStart(builder)
	fb.RecordAddKey(builder, keyOffset)
	fb.RecordAddHash(builder, e.Hash)
	fb.RecordAddSlot(builder, slot)
	fb.RecordAddAddress(builder, e.Address.Encode())
	fb.RecordAddState(builder, uint32(e.State))
	fb.RecordAddFlags(builder, uint32(e.Flags))
	fb.RecordAddCreationTimeNs(builder, created)
	fb.RecordAddReuseCount(builder, e.ReuseCount)
	fb.RecordAddRefetchCount(builder, e.RefetchCount)
	fb.RecordAddStreams(builder, streamsOffset)
	return fb.RecordEnd(builder)
}

func buildStream(builder *flatbuffers.Builder, s chromecache.Stream) flatbuffers.UOffsetT {
	var digestOffset, errOffset flatbuffers.UOffsetT
	kind := fb.DataKindRaw
	var status int32
	if s.Data != nil {
		digestOffset = builder.CreateString(s.Data.Digest.String())
		if s.Data.Kind == chromecache.DataHTTPHeader && s.Data.Header != nil {
			kind = fb.DataKindHTTPHeader
			status = int32(s.Data.Header.StatusCode) //nolint:gosec // status codes are three digits
		}
	}
	if s.Err != nil {
		errOffset = builder.CreateString(s.Err.Error())
	}

	fb.StreamStart(builder)
	fb.StreamAddIndex(builder, int32(s.Index)) //nolint:gosec // stream index is 0-3
	fb.StreamAddAddress(builder, s.Address.Encode())
	fb.StreamAddSize(builder, s.Size)
	fb.StreamAddKind(builder, kind)
	fb.StreamAddStatusCode(builder, status)
	if digestOffset != 0 {
		fb.StreamAddDigest(builder, digestOffset)
	}
	if errOffset != 0 {
		fb.StreamAddError(builder, errOffset)
	}
	return fb.StreamEnd(builder)
}

// Snapshot is a loaded snapshot. Accessors return views that alias the
// underlying buffer.
type Snapshot struct {
	data []byte
	root *fb.Snapshot
}

// Load parses a snapshot. The data is retained; callers must not modify it
// after calling Load.
func Load(data []byte) (s *Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("snapshot: failed to parse: %v", r)
		}
	}()
	if len(data) == 0 {
		return nil, errors.New("snapshot: empty data")
	}
	root := fb.GetRootAsSnapshot(data, 0)
	if v := root.Version(); v != Version {
		return nil, fmt.Errorf("snapshot: unsupported version %d", v)
	}
	// Touch every record once so corrupt offsets fail here instead of in
	// a later accessor.
	var rec fb.Record
	for i := range root.RecordsLength() {
		if root.Records(&rec, i) {
			_ = rec.Key()
			_ = rec.StreamsLength()
		}
	}
	return &Snapshot{data: data, root: root}, nil
}

// Session returns the session identifier of the run that took the snapshot.
func (s *Snapshot) Session() string {
	return string(s.root.Session())
}

// Dir returns the cache directory the snapshot was taken from.
func (s *Snapshot) Dir() string {
	return string(s.root.Dir())
}

// Truncated reports whether the scan stopped at its entry ceiling.
func (s *Snapshot) Truncated() bool {
	return s.root.Truncated()
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	return s.root.RecordsLength()
}

// Find returns the record for key.
func (s *Snapshot) Find(key string) (RecordView, bool) {
	var rec fb.Record
	if !s.root.RecordsByKey(&rec, key) {
		return RecordView{}, false
	}
	return RecordView{rec: rec}, true
}

// Records returns an iterator over all records in key order.
func (s *Snapshot) Records() iter.Seq[RecordView] {
	return func(yield func(RecordView) bool) {
		var rec fb.Record
		for i := range s.root.RecordsLength() {
			if !s.root.Records(&rec, i) {
				return
			}
			if !yield(RecordView{rec: rec}) {
				return
			}
		}
	}
}

// Diagnostics returns the recorded diagnostic messages in order.
func (s *Snapshot) Diagnostics() []string {
	n := s.root.DiagnosticsLength()
	out := make([]string, 0, n)
	for i := range n {
		out = append(out, string(s.root.Diagnostics(i)))
	}
	return out
}

// RecordView is a read-only view of one snapshot record.
type RecordView struct {
	rec fb.Record
}

// Key returns the entry key.
func (v RecordView) Key() string { return string(v.rec.Key()) }

// Hash returns the entry hash.
func (v RecordView) Hash() uint32 { return v.rec.Hash() }

// Slot returns the table slot the entry hashes to.
func (v RecordView) Slot() uint32 { return v.rec.Slot() }

// Address returns where the entry record was stored.
func (v RecordView) Address() chromecache.Address {
	return chromecache.DecodeAddress(v.rec.Address())
}

// State returns the entry state.
func (v RecordView) State() chromecache.State { return chromecache.State(v.rec.State()) }

// Flags returns the entry flags.
func (v RecordView) Flags() chromecache.Flags { return chromecache.Flags(v.rec.Flags()) }

// ReuseCount returns the entry reuse counter.
func (v RecordView) ReuseCount() uint32 { return v.rec.ReuseCount() }

// RefetchCount returns the entry refetch counter.
func (v RecordView) RefetchCount() uint32 { return v.rec.RefetchCount() }

// CreationTime returns the entry creation time in UTC, or the zero time
// when none was recorded.
func (v RecordView) CreationTime() time.Time {
	ns := v.rec.CreationTimeNs()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Streams returns the non-empty streams of the record in index order.
func (v RecordView) Streams() iter.Seq[StreamView] {
	return func(yield func(StreamView) bool) {
		var st fb.Stream
		for i := range v.rec.StreamsLength() {
			if !v.rec.Streams(&st, i) {
				return
			}
			if !yield(StreamView{st: st}) {
				return
			}
		}
	}
}

// StreamView is a read-only view of one recorded stream.
type StreamView struct {
	st fb.Stream
}

// Index returns the stream position.
func (v StreamView) Index() int { return int(v.st.Index()) }

// Address returns the stream address.
func (v StreamView) Address() chromecache.Address {
	return chromecache.DecodeAddress(v.st.Address())
}

// Size returns the recorded stream size.
func (v StreamView) Size() uint32 { return v.st.Size() }

// Kind returns how the stream was classified.
func (v StreamView) Kind() chromecache.DataKind {
	if v.st.Kind() == fb.DataKindHTTPHeader {
		return chromecache.DataHTTPHeader
	}
	return chromecache.DataRaw
}

// StatusCode returns the HTTP status of a header stream, or 0.
func (v StreamView) StatusCode() int { return int(v.st.StatusCode()) }

// Digest returns the digest of the stream bytes. It is empty when the
// stream could not be read.
func (v StreamView) Digest() digest.Digest { return digest.Digest(v.st.Digest()) }

// Err returns the message recorded for an unreadable stream.
func (v StreamView) Err() string { return string(v.st.Error()) }
