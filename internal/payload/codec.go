package payload

import (
	"errors"
	"fmt"
	"iter"
	"sort"
)

// Occurrence is one identifier slot inside a payload.
type Occurrence struct {
	// Offset is the byte offset of the slot within the payload.
	Offset int `json:"offset"`

	// Length is the fixed width of the slot in bytes.
	Length int `json:"length"`

	// Identifier is the identifier currently stored in the slot,
	// without any padding.
	Identifier string `json:"identifier"`
}

// Codec locates and rewrites identifier slots in one payload format.
type Codec interface {
	// Name returns the codec name used in catalog entries.
	Name() string

	// Scan yields every identifier slot in payload, in offset order.
	// A malformed payload yields a *FormatError and stops the sequence.
	Scan(payload []byte) iter.Seq2[Occurrence, error]

	// Encode returns the bytes that store id in slot. The result is
	// always exactly slot.Length bytes long.
	Encode(id string, slot Occurrence) ([]byte, error)

	// Rewrite returns a copy of payload with the slots at the given
	// offsets replaced by new identifiers.
	Rewrite(payload []byte, replacements map[int]string) ([]byte, error)
}

// ErrSlotWidth is wrapped by a *FormatError when a replacement identifier
// does not encode to its slot's fixed width.
var ErrSlotWidth = errors.New("identifier does not fit slot width")

// FormatError reports a payload that does not follow its codec's format,
// or a replacement identifier that does not fit its slot.
type FormatError struct {
	Codec  string
	Offset int
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("PayloadFormatError: %s payload at offset %d: %s", e.Codec, e.Offset, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// UnknownOccurrenceError reports a rewrite offset that Scan never produced.
type UnknownOccurrenceError struct {
	Codec  string
	Offset int
}

func (e *UnknownOccurrenceError) Error() string {
	return fmt.Sprintf("UnknownOccurrence: %s payload has no identifier slot at offset %d", e.Codec, e.Offset)
}

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsUnknownOccurrence reports whether err is or wraps an *UnknownOccurrenceError.
func IsUnknownOccurrence(err error) bool {
	var ue *UnknownOccurrenceError
	return errors.As(err, &ue)
}

// identifierChecker is implemented by codecs whose slots cannot hold every
// identifier.
type identifierChecker interface {
	CheckIdentifier(id string) error
}

// CheckIdentifier reports whether c can store and find id at all,
// independent of any slot width. Codecs without restrictions accept every
// identifier.
func CheckIdentifier(c Codec, id string) error {
	if ic, ok := c.(identifierChecker); ok {
		return ic.CheckIdentifier(id)
	}
	return nil
}

// Collect drains a codec scan into a slice.
func Collect(c Codec, payload []byte) ([]Occurrence, error) {
	var out []Occurrence
	for occ, err := range c.Scan(payload) {
		if err != nil {
			return nil, err
		}
		out = append(out, occ)
	}
	return out, nil
}

// rewrite is the shared Rewrite implementation: every offset must be a
// scanned slot and every encoding must match its slot width.
func rewrite(c Codec, payload []byte, replacements map[int]string) ([]byte, error) {
	occs, err := Collect(c, payload)
	if err != nil {
		return nil, err
	}
	slots := make(map[int]Occurrence, len(occs))
	for _, occ := range occs {
		slots[occ.Offset] = occ
	}

	offsets := make([]int, 0, len(replacements))
	for off := range replacements {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)

	out := make([]byte, len(payload))
	copy(out, payload)
	for _, off := range offsets {
		slot, ok := slots[off]
		if !ok {
			return nil, &UnknownOccurrenceError{Codec: c.Name(), Offset: off}
		}
		enc, err := c.Encode(replacements[off], slot)
		if err != nil {
			return nil, err
		}
		if len(enc) != slot.Length {
			return nil, &FormatError{
				Codec:  c.Name(),
				Offset: off,
				Reason: fmt.Sprintf("encoded identifier is %d bytes, slot is %d", len(enc), slot.Length),
				Err:    ErrSlotWidth,
			}
		}
		copy(out[off:off+slot.Length], enc)
	}
	return out, nil
}
