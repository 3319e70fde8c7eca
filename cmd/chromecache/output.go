package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/meigma/chromecache"
	"github.com/meigma/chromecache/snapshot"
)

type streamLine struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Size    uint32 `json:"size"`
	Kind    string `json:"kind,omitempty"`
	Status  int    `json:"status,omitempty"`
	Digest  string `json:"digest,omitempty"`
	Error   string `json:"error,omitempty"`
}

type recordLine struct {
	Key          string       `json:"key"`
	Found        *bool        `json:"found,omitempty"`
	Hash         uint32       `json:"hash"`
	Address      string       `json:"address,omitempty"`
	State        string       `json:"state,omitempty"`
	Created      *time.Time   `json:"created,omitempty"`
	ReuseCount   uint32       `json:"reuse_count"`
	RefetchCount uint32       `json:"refetch_count"`
	Streams      []streamLine `json:"streams,omitempty"`
}

type extractLine struct {
	Key      string `json:"key"`
	Encoding string `json:"encoding,omitempty"`
	Digest   string `json:"digest,omitempty"`
	Path     string `json:"path,omitempty"`
	Size     int    `json:"size"`
	Stored   bool   `json:"stored"`
	Reason   string `json:"reason,omitempty"`
}

type indexLine struct {
	Version    string     `json:"version"`
	NumEntries int32      `json:"num_entries"`
	NumBytes   int64      `json:"num_bytes"`
	TableSize  uint32     `json:"table_size"`
	Created    *time.Time `json:"created,omitempty"`
}

type blockFileLine struct {
	Name       string `json:"file"`
	EntrySize  int32  `json:"entry_size"`
	NumEntries int32  `json:"num_entries"`
	MaxEntries int32  `json:"max_entries"`
	UsedBlocks int    `json:"used_blocks"`
	NextFile   uint32 `json:"next_file,omitempty"`
}

type lineWriter struct {
	enc *json.Encoder
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{enc: json.NewEncoder(w)}
}

func (w *lineWriter) write(v any) error {
	return w.enc.Encode(v)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func recordFromParse(r chromecache.Record) recordLine {
	e := r.Entry
	line := recordLine{
		Key:          e.KeyString(),
		Hash:         e.Hash,
		Address:      e.Address.String(),
		State:        e.State.String(),
		Created:      timePtr(e.CreationTime),
		ReuseCount:   e.ReuseCount,
		RefetchCount: e.RefetchCount,
	}
	for _, s := range r.Streams {
		if s.Empty() {
			continue
		}
		sl := streamLine{Index: s.Index, Address: s.Address.String(), Size: s.Size}
		if s.Data != nil {
			sl.Kind = s.Data.Kind.String()
			sl.Digest = s.Data.Digest.String()
			if s.Data.Header != nil {
				sl.Status = s.Data.Header.StatusCode
			}
		}
		if s.Err != nil {
			sl.Error = s.Err.Error()
		}
		line.Streams = append(line.Streams, sl)
	}
	return line
}

func recordFromSnapshot(v snapshot.RecordView) recordLine {
	line := recordLine{
		Key:          v.Key(),
		Hash:         v.Hash(),
		Address:      v.Address().String(),
		State:        v.State().String(),
		Created:      timePtr(v.CreationTime()),
		ReuseCount:   v.ReuseCount(),
		RefetchCount: v.RefetchCount(),
	}
	for s := range v.Streams() {
		line.Streams = append(line.Streams, streamLine{
			Index:   s.Index(),
			Address: s.Address().String(),
			Size:    s.Size(),
			Kind:    s.Kind().String(),
			Status:  s.StatusCode(),
			Digest:  s.Digest().String(),
			Error:   s.Err(),
		})
	}
	return line
}
