package schema

// SchemaVersion is the current wire schema version.
const SchemaVersion uint16 = 1

// EventType is the type tag carried by every transport message.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventTick
	EventQuote
	EventOrderBook
	EventBar
	EventControl
)

// Header flag bits.
const (
	// FlagOutOfOrder marks a record whose event timestamp went backwards
	// for its instrument. The record is still delivered; resamplers fold
	// it without re-evaluating bar boundaries.
	FlagOutOfOrder uint16 = 1 << 0
)

// EventHeader is the common metadata attached to every published record.
type EventHeader struct {
	Type    EventType
	Version uint16
	Source  uint16
	Flags   uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, source uint16, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}

// OutOfOrder reports whether the out-of-order flag is set.
func (h EventHeader) OutOfOrder() bool {
	return h.Flags&FlagOutOfOrder != 0
}
