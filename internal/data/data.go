// Package data decodes entry streams into raw payloads or parsed HTTP
// response header blocks.
package data

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/chromecache/internal/cachetype"
)

const (
	// signature marks the start of a response header block.
	signature = "HTTP/"

	// maxPreamble is how far into stream 0 the signature may appear. The
	// response-info record carries a short binary preamble before the text.
	maxPreamble = 64
)

// Decode reads a stream range and classifies it.
//
// At most sizeHint bytes are read; a zero hint reads the whole range. When
// isFirstSlot is set and the bytes carry a header signature, the result is a
// DataHTTPHeader; everything else is DataRaw. A non-zero limit bounds the
// number of bytes read and yields ErrSizeOverflow when exceeded.
func Decode(src *io.SectionReader, isFirstSlot bool, sizeHint uint32, limit uint64) (*cachetype.Data, error) {
	n := src.Size()
	if sizeHint > 0 && int64(sizeHint) < n {
		n = int64(sizeHint)
	}
	if limit > 0 && uint64(n) > limit { //nolint:gosec // section sizes are non-negative
		return nil, fmt.Errorf("%w: stream of %d bytes exceeds limit %d", cachetype.ErrSizeOverflow, n, limit)
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(src, 0, n), raw); err != nil {
		return nil, fmt.Errorf("%w: read stream: %v", cachetype.ErrOutOfRange, err)
	}
	return Classify(raw, isFirstSlot), nil
}

// Classify wraps bytes that are already in memory.
func Classify(raw []byte, isFirstSlot bool) *cachetype.Data {
	d := &cachetype.Data{
		Kind:   cachetype.DataRaw,
		Raw:    raw,
		Digest: digest.FromBytes(raw),
	}
	if !isFirstSlot {
		return d
	}
	if h, ok := ParseHeader(raw); ok {
		d.Kind = cachetype.DataHTTPHeader
		d.Header = h
	}
	return d
}

// ParseHeader parses a NUL-separated response header block. It reports
// false when no signature is found near the start of raw.
//
// The first segment is the status line. Following segments are either
// "Name: value" pairs or a bare name followed by its value in the next
// segment. An empty segment ends the block.
func ParseHeader(raw []byte) (*cachetype.HTTPHeader, bool) {
	start := headerStart(raw)
	if start < 0 {
		return nil, false
	}
	segs := segments(raw[start:])

	h := &cachetype.HTTPHeader{}
	h.Version, h.Status, h.StatusCode = parseStatusLine(segs[0])

	for i := 1; i < len(segs); i++ {
		seg := segs[i]
		if seg == "" {
			break
		}
		if name, value, ok := strings.Cut(seg, ":"); ok {
			h.Headers = append(h.Headers, cachetype.Header{
				Name:  strings.TrimSpace(name),
				Value: strings.TrimSpace(value),
			})
			continue
		}
		var value string
		if i+1 < len(segs) {
			i++
			value = segs[i]
		}
		h.Headers = append(h.Headers, cachetype.Header{Name: strings.TrimSpace(seg), Value: strings.TrimSpace(value)})
		if value == "" {
			break
		}
	}
	return h, true
}

func headerStart(raw []byte) int {
	window := raw
	if len(window) > maxPreamble+len(signature) {
		window = window[:maxPreamble+len(signature)]
	}
	return bytes.Index(window, []byte(signature))
}

func segments(b []byte) []string {
	var out []string
	for {
		i := bytes.IndexByte(b, 0)
		if i < 0 {
			out = append(out, string(b))
			return out
		}
		out = append(out, string(b[:i]))
		b = b[i+1:]
	}
}

// parseStatusLine splits "HTTP/1.1 200 OK" into "1.1", "200 OK" and 200.
func parseStatusLine(line string) (version, status string, code int) {
	line = strings.TrimPrefix(line, signature)
	version, status, _ = strings.Cut(line, " ")
	status = strings.TrimSpace(status)
	codeText, _, _ := strings.Cut(status, " ")
	if c, err := strconv.Atoi(codeText); err == nil {
		code = c
	}
	return version, status, code
}
