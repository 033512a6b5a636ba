// Package codec serializes canonical records into the transport wire
// format. Payloads are little-endian and fixed-size except for order book
// snapshots and control frames, which carry explicit counts.
package codec

import (
	"encoding/binary"

	"tickerplant/internal/schema"
)

const HeaderSize = 32

// EncodeHeader serializes an event header into a fixed-size prefix.
func EncodeHeader(dst []byte, h schema.EventHeader) []byte {
	if cap(dst) < HeaderSize {
		dst = make([]byte, HeaderSize)
	} else {
		dst = dst[:HeaderSize]
	}
	binary.LittleEndian.PutUint16(dst[0:2], uint16(h.Type))
	binary.LittleEndian.PutUint16(dst[2:4], h.Version)
	binary.LittleEndian.PutUint16(dst[4:6], h.Source)
	binary.LittleEndian.PutUint16(dst[6:8], h.Flags)
	binary.LittleEndian.PutUint64(dst[8:16], h.Seq)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(h.TsEvent))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(h.TsRecv))
	return dst
}

// DecodeHeader parses a fixed-size header prefix.
func DecodeHeader(src []byte) (schema.EventHeader, bool) {
	if len(src) < HeaderSize {
		return schema.EventHeader{}, false
	}
	return schema.EventHeader{
		Type:    schema.EventType(binary.LittleEndian.Uint16(src[0:2])),
		Version: binary.LittleEndian.Uint16(src[2:4]),
		Source:  binary.LittleEndian.Uint16(src[4:6]),
		Flags:   binary.LittleEndian.Uint16(src[6:8]),
		Seq:     binary.LittleEndian.Uint64(src[8:16]),
		TsEvent: int64(binary.LittleEndian.Uint64(src[16:24])),
		TsRecv:  int64(binary.LittleEndian.Uint64(src[24:32])),
	}, true
}
