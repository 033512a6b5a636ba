// Package pubsub implements the topic-addressed transport between the
// blotter and strategy runtimes over Unix domain sockets. Delivery is
// at-most-once: the publisher never blocks on a subscriber, a slow
// subscriber drops records, and a late joiner only sees records published
// after it attached.
package pubsub

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"tickerplant/internal/schema"

	"tickerplant/internal/codec"
)

// ControlTopic carries operator commands to every subscriber.
const ControlTopic = "__control__"

const (
	modeSubscribe byte = 0x01
	modeProduce   byte = 0x02

	ackOK  byte = 0x00
	ackErr byte = 0x01

	maxTopicLen  = 64
	maxTopics    = int(^uint16(0))
	maxFrameSize = 1 << 20

	unixNetwork = "unix"
)

var (
	ErrInvalidHandshake = errors.New("pubsub: invalid handshake")
	ErrTopicTooLong     = errors.New("pubsub: topic name too long")
	ErrFrameTooLarge    = errors.New("pubsub: frame too large")
	ErrHandshakeDenied  = errors.New("pubsub: handshake denied")
	ErrEmptySocketPath  = errors.New("pubsub: socket path is empty")
	ErrNotListening     = errors.New("pubsub: not listening")
	ErrPathNotSocket    = errors.New("pubsub: path exists and is not a socket")
)

// frame layout: u32 length | u8 topicLen | topic | header | payload.
func encodeFrame(dst []byte, topic string, header schema.EventHeader, payload []byte) ([]byte, error) {
	if len(topic) > maxTopicLen {
		return nil, ErrTopicTooLong
	}
	body := 1 + len(topic) + codec.HeaderSize + len(payload)
	if body > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	size := 4 + body
	if cap(dst) < size {
		dst = make([]byte, size)
	} else {
		dst = dst[:size]
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(body))
	dst[4] = byte(len(topic))
	off := 5
	copy(dst[off:], topic)
	off += len(topic)
	codec.EncodeHeader(dst[off:off:off+codec.HeaderSize], header)
	off += codec.HeaderSize
	copy(dst[off:], payload)
	return dst, nil
}

// readFrame reads one frame from the stream. The returned payload aliases
// the provided buffer and is only valid until the next call.
func readFrame(r io.Reader, buf *[]byte) (topic string, header schema.EventHeader, payload []byte, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return "", schema.EventHeader{}, nil, err
	}
	body := int(binary.LittleEndian.Uint32(lenBuf[:]))
	if body < 1+codec.HeaderSize || body > maxFrameSize {
		return "", schema.EventHeader{}, nil, ErrFrameTooLarge
	}
	if cap(*buf) < body {
		*buf = make([]byte, body)
	}
	*buf = (*buf)[:body]
	if _, err = io.ReadFull(r, *buf); err != nil {
		return "", schema.EventHeader{}, nil, err
	}
	topicLen := int((*buf)[0])
	if topicLen > maxTopicLen || 1+topicLen+codec.HeaderSize > body {
		return "", schema.EventHeader{}, nil, ErrInvalidHandshake
	}
	topic = string((*buf)[1 : 1+topicLen])
	header, ok := codec.DecodeHeader((*buf)[1+topicLen:])
	if !ok {
		return "", schema.EventHeader{}, nil, ErrInvalidHandshake
	}
	payload = (*buf)[1+topicLen+codec.HeaderSize:]
	return topic, header, payload, nil
}

// subscribe request: u8 mode | u16 topic count | (u8 len + topic)...
func encodeSubscribeRequest(topics []string) ([]byte, error) {
	if len(topics) > maxTopics {
		return nil, fmt.Errorf("pubsub: too many topics: %d", len(topics))
	}
	size := 3
	for _, t := range topics {
		if len(t) > maxTopicLen {
			return nil, ErrTopicTooLong
		}
		size += 1 + len(t)
	}
	out := make([]byte, size)
	out[0] = modeSubscribe
	binary.LittleEndian.PutUint16(out[1:3], uint16(len(topics)))
	off := 3
	for _, t := range topics {
		out[off] = byte(len(t))
		off++
		copy(out[off:], t)
		off += len(t)
	}
	return out, nil
}

func readSubscribeTopics(r io.Reader) ([]string, error) {
	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	count := int(binary.LittleEndian.Uint16(countBuf[:]))
	topics := make([]string, 0, count)
	var nameBuf [maxTopicLen]byte
	for i := 0; i < count; i++ {
		var lenBuf [1]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}
		n := int(lenBuf[0])
		if n == 0 || n > maxTopicLen {
			return nil, ErrTopicTooLong
		}
		if _, err := io.ReadFull(r, nameBuf[:n]); err != nil {
			return nil, err
		}
		topics = append(topics, string(nameBuf[:n]))
	}
	return topics, nil
}
