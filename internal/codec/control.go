package codec

import (
	"encoding/binary"

	"tickerplant/internal/schema"
)

const maxControlString = int(^uint16(0))

// EncodeControl serializes a control command.
func EncodeControl(dst []byte, c schema.Control) ([]byte, bool) {
	if len(c.Command) > maxControlString || len(c.Args) > maxControlString {
		return nil, false
	}
	size := 2 + len(c.Command) + 2
	for _, arg := range c.Args {
		if len(arg) > maxControlString {
			return nil, false
		}
		size += 2 + len(arg)
	}
	if cap(dst) < size {
		dst = make([]byte, size)
	} else {
		dst = dst[:size]
	}
	off := 0
	binary.LittleEndian.PutUint16(dst[off:off+2], uint16(len(c.Command)))
	off += 2
	copy(dst[off:], c.Command)
	off += len(c.Command)
	binary.LittleEndian.PutUint16(dst[off:off+2], uint16(len(c.Args)))
	off += 2
	for _, arg := range c.Args {
		binary.LittleEndian.PutUint16(dst[off:off+2], uint16(len(arg)))
		off += 2
		copy(dst[off:], arg)
		off += len(arg)
	}
	return dst, true
}

// DecodeControl parses a control command payload.
func DecodeControl(src []byte) (schema.Control, bool) {
	if len(src) < 2 {
		return schema.Control{}, false
	}
	off := 0
	cmdLen := int(binary.LittleEndian.Uint16(src[off : off+2]))
	off += 2
	if len(src) < off+cmdLen+2 {
		return schema.Control{}, false
	}
	cmd := string(src[off : off+cmdLen])
	off += cmdLen
	argc := int(binary.LittleEndian.Uint16(src[off : off+2]))
	off += 2
	var args []string
	for i := 0; i < argc; i++ {
		if len(src) < off+2 {
			return schema.Control{}, false
		}
		argLen := int(binary.LittleEndian.Uint16(src[off : off+2]))
		off += 2
		if len(src) < off+argLen {
			return schema.Control{}, false
		}
		args = append(args, string(src[off:off+argLen]))
		off += argLen
	}
	return schema.Control{Command: cmd, Args: args}, true
}
