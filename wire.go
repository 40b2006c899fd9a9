package tftp

import (
	"bytes"

	"github.com/pkg/errors"
)

// Wire helpers over byte slices. All helpers take absolute positions and
// return the position after the encoded/decoded item so callers can pre-size
// buffers and compose fields without intermediate allocations. Integers are
// network byte order.

func putUint16(b []byte, at int, v uint16) int {
	b[at] = byte(v >> 8)
	b[at+1] = byte(v)
	return at + 2
}

func uint16At(b []byte, at int) (uint16, int) {
	return uint16(b[at])<<8 | uint16(b[at+1]), at + 2
}

// putString copies the raw bytes of s into b at the given position. The
// terminator is the caller's business.
func putString(b []byte, at int, s string) int {
	return at + copy(b[at:], s)
}

// putCString copies s followed by one NUL byte.
func putCString(b []byte, at int, s string) int {
	at = putString(b, at, s)
	b[at] = 0
	return at + 1
}

// cstringAt extracts the NUL-terminated string starting at the given
// position. It fails if no terminator is found before the end of the buffer.
func cstringAt(b []byte, at int) (string, int, error) {
	i := bytes.IndexByte(b[at:], 0)
	if i < 0 {
		return "", at, errors.Wrap(ErrInvalidPacket, "string not null terminated")
	}
	return string(b[at : at+i]), at + i + 1, nil
}
