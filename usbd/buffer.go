package usbd

import (
	"github.com/tinybridge/usbd/pkg"
)

// Bytes is implemented by buffer-like values whose backing memory can
// participate in a transfer. [bytes.Buffer] satisfies it.
type Bytes interface {
	Bytes() []byte
}

// bufferMode selects the access the controller needs to the extracted
// region.
type bufferMode int

const (
	bufferRead bufferMode = iota // Controller only reads the region
	bufferRW                     // Controller writes into the region
)

// peekBuffer extracts a contiguous byte region from an opaque handler
// or caller value without copying, validating that the value is
// compatible with mode. Strings are the one exception: they are
// immutable, so read-only access goes through a conversion.
//
// Holding v (not the returned slice) in the buffer table is what keeps
// the region alive across an asynchronous controller operation.
func peekBuffer(v any, mode bufferMode) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, pkg.ErrNotABuffer
	case []byte:
		return b, nil
	case string:
		if mode == bufferRW {
			return nil, pkg.ErrBufferReadOnly
		}
		return []byte(b), nil
	case Bytes:
		return b.Bytes(), nil
	}
	return nil, pkg.ErrNotABuffer
}

// retain stores buffer in the table slot for (num, dir), keeping it
// alive until release. A slot is occupied exactly while a controller
// transfer is outstanding on that endpoint and direction.
func (u *USBD) retain(num uint8, dir int, buffer any) {
	u.xferData[num][dir] = buffer
}

// release clears the table slot for (num, dir). Called exactly once per
// retained buffer: on completion, bus reset, or teardown.
func (u *USBD) release(num uint8, dir int) {
	u.xferData[num][dir] = nil
}
