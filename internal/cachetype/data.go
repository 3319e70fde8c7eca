package cachetype

import (
	"strings"

	"github.com/opencontainers/go-digest"
)

// DataKind tags the content of a decoded stream.
type DataKind uint8

const (
	DataRaw DataKind = iota
	DataHTTPHeader
)

func (k DataKind) String() string {
	switch k {
	case DataRaw:
		return "raw"
	case DataHTTPHeader:
		return "http-header"
	default:
		return "unknown"
	}
}

// Data is the content of one entry stream.
type Data struct {
	Kind DataKind

	// Raw holds the stream bytes for both kinds.
	Raw []byte

	// Header is set when Kind is DataHTTPHeader.
	Header *HTTPHeader

	// Digest is the sha256 digest of Raw.
	Digest digest.Digest
}

// Header is one HTTP header line.
type Header struct {
	Name  string
	Value string
}

// HTTPHeader is a parsed response header block.
// Headers keep their on-disk order; duplicate names are not merged.
type HTTPHeader struct {
	// Version is the protocol version without the "HTTP/" prefix, e.g. "1.1".
	Version string

	// Status is the status text following the version, e.g. "200 OK".
	Status string

	// StatusCode is the numeric status, or 0 when it does not parse.
	StatusCode int

	Headers []Header
}

// Get returns the first value for name, compared case-insensitively.
func (h *HTTPHeader) Get(name string) (string, bool) {
	for _, hdr := range h.Headers {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Values returns every value for name in order.
func (h *HTTPHeader) Values(name string) []string {
	var out []string
	for _, hdr := range h.Headers {
		if strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr.Value)
		}
	}
	return out
}

// StatusLine returns "HTTP/<version> <status>".
func (h *HTTPHeader) StatusLine() string {
	if h.Status == "" {
		return "HTTP/" + h.Version
	}
	return "HTTP/" + h.Version + " " + h.Status
}
