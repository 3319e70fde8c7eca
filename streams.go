package chromecache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/meigma/chromecache/internal/contentenc"
	"github.com/meigma/chromecache/internal/data"
	"github.com/meigma/chromecache/internal/walk"
)

// Stream is one of an entry's data streams.
type Stream struct {
	// Index is the stream position, 0 to NumStreams-1.
	Index int

	Address Address
	Size    uint32

	// Data is the decoded stream; nil for empty or unreadable streams.
	Data *Data

	// Err is a *Diagnostic when the stream could not be read.
	Err error
}

// Empty reports whether the entry has no data in this stream.
func (s Stream) Empty() bool {
	return !s.Address.Initialized && s.Size == 0
}

// HeaderStream and BodyStream are the stream positions used by HTTP
// responses.
const (
	HeaderStream = 0
	BodyStream   = 1
)

// ReadEntryData reads and decodes every stream of e. The result always has
// NumStreams elements, aligned with e.DataAddrs.
//
// Stream 0 is decoded as an HTTP header block when it carries one. A
// stream whose address and size disagree gets ErrInconsistentStream; a
// stream that cannot be read gets the resolution error. Neither stops the
// remaining streams.
func (c *Cache) ReadEntryData(e *Entry) []Stream {
	streams := make([]Stream, NumStreams)
	for i := range streams {
		streams[i] = c.readStream(e, i)
		if s := streams[i]; s.Err != nil {
			c.log().Warn("unreadable stream",
				"key", e.KeyString(),
				"stream", i,
				"address", s.Address.String(),
				"error", s.Err,
			)
		}
	}
	return streams
}

func (c *Cache) readStream(e *Entry, i int) Stream {
	s := Stream{Index: i, Address: e.DataAddrs[i], Size: e.DataSizes[i]}
	if s.Empty() {
		return s
	}
	fail := func(err error) Stream {
		s.Err = walk.NewStreamDiagnostic(c.idx.SlotForHash(e.Hash), s.Address, e.KeyString(), i, err)
		return s
	}
	if !s.Address.Initialized || s.Size == 0 {
		return fail(fmt.Errorf("%w: address %s with size %d", ErrInconsistentStream, s.Address, s.Size))
	}

	r, err := c.store.Lookup(s.Address)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = r.Close() }()

	if r.Length < int64(s.Size) {
		return fail(fmt.Errorf("%w: %d bytes recorded in a %d-byte record", ErrInconsistentStream, s.Size, r.Length))
	}
	d, err := data.Decode(r.Section(), i == HeaderStream, s.Size, c.maxDataSize)
	if err != nil {
		return fail(err)
	}
	s.Data = d
	return s
}

// HTTPHeader returns the response header stored in stream 0 of e.
// It returns (nil, nil) when stream 0 does not hold a header block.
func (c *Cache) HTTPHeader(e *Entry) (*HTTPHeader, error) {
	s := c.readStream(e, HeaderStream)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Data == nil || s.Data.Header == nil {
		return nil, nil
	}
	return s.Data.Header, nil
}

// Body returns the response body stored in stream 1 of e with its
// Content-Encoding removed.
//
// When stream 0 cannot be read the encoding is unknown. Body then returns
// the undecoded stream 1 bytes together with stream 0's *Diagnostic, so a
// non-nil body can come with a non-nil error.
func (c *Cache) Body(e *Entry) ([]byte, error) {
	h, headerErr := c.HTTPHeader(e)
	s := c.readStream(e, BodyStream)
	if s.Err != nil {
		if headerErr != nil {
			return nil, errors.Join(headerErr, s.Err)
		}
		return nil, s.Err
	}
	if s.Data == nil {
		return nil, headerErr
	}
	if headerErr != nil {
		return s.Data.Raw, headerErr
	}
	return decodeBody(c.bodies, s.Data.Raw, h)
}

func decodeBody(dec *contentenc.Decoder, raw []byte, h *HTTPHeader) ([]byte, error) {
	enc := ContentEncoding(h)
	if enc == "" {
		return raw, nil
	}
	out, err := dec.Decode(raw, enc)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return out, nil
}

// ContentEncoding returns the Content-Encoding values in h joined with
// commas, or "" when h is nil or names none.
func ContentEncoding(h *HTTPHeader) string {
	if h == nil {
		return ""
	}
	return strings.Join(h.Values("Content-Encoding"), ",")
}

// EncodingSupported reports whether DecodeBody can remove every coding in
// a Content-Encoding value.
func EncodingSupported(encoding string) bool {
	return contentenc.Supported(encoding)
}

// DecodeBody removes the Content-Encoding named in h from a raw body.
// Bodies without a header or without an encoding are returned unchanged.
// Supported codings are gzip, deflate and zstd; others fail with
// ErrUnsupportedEncoding.
func DecodeBody(raw []byte, h *HTTPHeader) ([]byte, error) {
	return decodeBody(contentenc.New(0), raw, h)
}
