package payload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
	"strings"
)

// TLV record tags with known meaning. All other tags are opaque.
const (
	TagDevice byte = 0x01 // NUL-padded device identifier slot
	TagGroup  byte = 0x02 // nested record list
)

const (
	tlvVersion   = 0x01
	tlvHeaderLen = 3
	tlvRecordHdr = 3 // tag + uint16 length
	tlvMaxDepth  = 16
)

var tlvMagic = []byte{'L', 'P'}

// TLV is the codec for the vendor's tag-length-value payloads.
//
// Layout: "LP" 0x01 followed by records of tag(1) | length(uint16 BE) | value.
// Identifier slots have a fixed width given by their record length; shorter
// identifiers are padded with NUL bytes.
type TLV struct{}

// Name implements Codec.
func (TLV) Name() string { return "tlv" }

// Scan implements Codec.
func (c TLV) Scan(payload []byte) iter.Seq2[Occurrence, error] {
	return func(yield func(Occurrence, error) bool) {
		if len(payload) < tlvHeaderLen {
			yield(Occurrence{}, c.errorf(0, "payload is %d bytes, shorter than header", len(payload)))
			return
		}
		if !bytes.Equal(payload[:2], tlvMagic) {
			yield(Occurrence{}, c.errorf(0, "bad magic %q", payload[:2]))
			return
		}
		if payload[2] != tlvVersion {
			yield(Occurrence{}, c.errorf(2, "unsupported version %d", payload[2]))
			return
		}
		c.walk(payload, tlvHeaderLen, len(payload), 0, yield)
	}
}

// walk yields slots between pos and end. It returns false once the
// sequence must stop, either because the consumer stopped or on error.
func (c TLV) walk(p []byte, pos, end, depth int, yield func(Occurrence, error) bool) bool {
	for pos < end {
		if end-pos < tlvRecordHdr {
			yield(Occurrence{}, c.errorf(pos, "truncated record header"))
			return false
		}
		tag := p[pos]
		n := int(binary.BigEndian.Uint16(p[pos+1 : pos+tlvRecordHdr]))
		val := pos + tlvRecordHdr
		if val+n > end {
			yield(Occurrence{}, c.errorf(pos, "record length %d overruns enclosing block", n))
			return false
		}

		switch tag {
		case TagDevice:
			if n == 0 {
				yield(Occurrence{}, c.errorf(pos, "zero-width identifier slot"))
				return false
			}
			id := strings.TrimRight(string(p[val:val+n]), "\x00")
			if !yield(Occurrence{Offset: val, Length: n, Identifier: id}, nil) {
				return false
			}
		case TagGroup:
			if depth >= tlvMaxDepth {
				yield(Occurrence{}, c.errorf(pos, "groups nested deeper than %d", tlvMaxDepth))
				return false
			}
			if !c.walk(p, val, val+n, depth+1, yield) {
				return false
			}
		}
		pos = val + n
	}
	return true
}

// Encode implements Codec. The identifier is NUL-padded to the slot width.
func (c TLV) Encode(id string, slot Occurrence) ([]byte, error) {
	switch {
	case id == "":
		return nil, c.errorf(slot.Offset, "empty identifier")
	case strings.IndexByte(id, 0) >= 0:
		return nil, c.errorf(slot.Offset, "identifier %q contains NUL", id)
	case len(id) > slot.Length:
		err := c.errorf(slot.Offset, "identifier %q is %d bytes, slot holds %d", id, len(id), slot.Length)
		err.Err = ErrSlotWidth
		return nil, err
	}
	out := make([]byte, slot.Length)
	copy(out, id)
	return out, nil
}

// Rewrite implements Codec.
func (c TLV) Rewrite(payload []byte, replacements map[int]string) ([]byte, error) {
	return rewrite(c, payload, replacements)
}

func (c TLV) errorf(offset int, format string, args ...any) *FormatError {
	return &FormatError{Codec: c.Name(), Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// Record is one TLV record used to build payloads.
type Record struct {
	Tag   byte
	Value []byte
}

// DeviceRecord returns an identifier slot record of the given width.
func DeviceRecord(id string, width int) Record {
	v := make([]byte, width)
	copy(v, id)
	return Record{Tag: TagDevice, Value: v}
}

// GroupRecord returns a nested record list.
func GroupRecord(children ...Record) Record {
	return Record{Tag: TagGroup, Value: appendRecords(nil, children)}
}

// BuildTLV assembles a complete TLV payload from records.
func BuildTLV(records ...Record) []byte {
	out := append([]byte{}, tlvMagic...)
	out = append(out, tlvVersion)
	return appendRecords(out, records)
}

func appendRecords(out []byte, records []Record) []byte {
	for _, r := range records {
		out = append(out, r.Tag)
		out = binary.BigEndian.AppendUint16(out, uint16(len(r.Value)))
		out = append(out, r.Value...)
	}
	return out
}
