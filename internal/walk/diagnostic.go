package walk

import (
	"fmt"
	"strings"

	"github.com/meigma/chromecache/internal/addr"
)

// NoStream marks a diagnostic that is not tied to an entry stream.
const NoStream = -1

// Diagnostic describes an item that was skipped or only partially decoded.
// It unwraps to the underlying sentinel error.
type Diagnostic struct {
	// Slot is the index table slot whose chain held the item.
	Slot uint32

	// Address is the record or stream address that failed.
	Address addr.Address

	// Key is the entry key when it was known.
	Key string

	// Stream is the stream index, or NoStream.
	Stream int

	Err error
}

func newDiagnostic(slot uint32, a addr.Address, err error) *Diagnostic {
	return &Diagnostic{Slot: slot, Address: a, Stream: NoStream, Err: err}
}

func (d *Diagnostic) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "slot %d", d.Slot)
	if d.Address.Initialized {
		fmt.Fprintf(&b, " at %s", d.Address)
	}
	if d.Key != "" {
		fmt.Fprintf(&b, " key %q", d.Key)
	}
	if d.Stream != NoStream {
		fmt.Fprintf(&b, " stream %d", d.Stream)
	}
	if d.Err != nil {
		b.WriteString(": ")
		b.WriteString(d.Err.Error())
	}
	return b.String()
}

func (d *Diagnostic) Unwrap() error {
	return d.Err
}

// NewStreamDiagnostic returns a diagnostic for stream i of an entry.
func NewStreamDiagnostic(slot uint32, a addr.Address, key string, stream int, err error) *Diagnostic {
	return &Diagnostic{Slot: slot, Address: a, Key: key, Stream: stream, Err: err}
}

// asError converts a possibly nil diagnostic to an error without producing
// a non-nil interface around a nil pointer.
func asError(d *Diagnostic) error {
	if d == nil {
		return nil
	}
	return d
}
