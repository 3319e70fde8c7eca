// Package contentenc undoes the Content-Encoding applied to cached
// response bodies.
package contentenc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/meigma/chromecache/internal/cachetype"
	"github.com/meigma/chromecache/internal/sizing"
)

// Decoder decodes response bodies. It is safe for concurrent use.
type Decoder struct {
	maxSize uint64
	zstd    *zstdPool
}

// New returns a Decoder whose output is capped at maxSize bytes.
// A maxSize of 0 disables the cap.
func New(maxSize uint64) *Decoder {
	return &Decoder{
		maxSize: maxSize,
		zstd:    newZstdPool(maxSize),
	}
}

// Supported reports whether every coding in a Content-Encoding value can
// be decoded.
func Supported(encoding string) bool {
	for _, c := range codings(encoding) {
		if !known(c) {
			return false
		}
	}
	return true
}

// Decode removes the codings listed in encoding, last applied first.
// Unknown codings fail with ErrUnsupportedEncoding.
func (d *Decoder) Decode(body []byte, encoding string) ([]byte, error) {
	cs := codings(encoding)
	for i := len(cs) - 1; i >= 0; i-- {
		var err error
		body, err = d.decodeOne(body, cs[i])
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (d *Decoder) decodeOne(body []byte, coding string) ([]byte, error) {
	switch coding {
	case "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer func() { _ = zr.Close() }()
		return d.readAll(coding, zr)
	case "deflate":
		return d.inflate(body)
	case "zstd":
		dec, release, err := d.zstd.get(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer release()
		return d.readAll(coding, dec)
	default:
		return nil, fmt.Errorf("%w: %q", cachetype.ErrUnsupportedEncoding, coding)
	}
}

// inflate handles "deflate", which servers send either zlib-wrapped or as
// a bare deflate stream.
func (d *Decoder) inflate(body []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
		out, err := d.readAll("deflate", zr)
		_ = zr.Close()
		if err == nil || errors.Is(err, cachetype.ErrSizeOverflow) {
			return out, err
		}
	}
	fr := flate.NewReader(bytes.NewReader(body))
	defer func() { _ = fr.Close() }()
	return d.readAll("deflate", fr)
}

func (d *Decoder) readAll(coding string, r io.Reader) ([]byte, error) {
	out, err := sizing.ReadAllWithLimit(r, d.maxSize, cachetype.ErrSizeOverflow)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", coding, err)
	}
	return out, nil
}

func codings(encoding string) []string {
	var out []string
	for _, c := range strings.Split(encoding, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func known(coding string) bool {
	switch coding {
	case "identity", "gzip", "x-gzip", "deflate", "zstd":
		return true
	default:
		return false
	}
}
