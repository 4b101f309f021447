package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// FieldMode says how an identifier is stored in a JSON string field.
type FieldMode string

const (
	// ModeWhole: the whole string value is the identifier ("deviceId").
	ModeWhole FieldMode = "whole"
	// ModePrefix: the identifier is the part before Separator ("slotId").
	ModePrefix FieldMode = "prefix"
)

// Field names one identifier-bearing key in a JSON payload.
type Field struct {
	Key       string
	Mode      FieldMode
	Separator string
}

// DefaultJSONFields matches the vendor's assignment documents: slot ids of
// the form "<device>_<button>" plus plain device id references.
var DefaultJSONFields = []Field{
	{Key: "slotId", Mode: ModePrefix, Separator: "_"},
	{Key: "deviceId", Mode: ModeWhole},
}

// JSON is the codec for JSON documents stored in blob columns. Identifier
// slots are rewritten in place; the document is never re-serialised.
type JSON struct {
	fields     map[string]Field
	separators []string
}

// NewJSON returns a JSON codec for the given fields, or for
// DefaultJSONFields when none are given.
func NewJSON(fields ...Field) *JSON {
	if len(fields) == 0 {
		fields = DefaultJSONFields
	}
	c := &JSON{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if f.Mode == "" {
			f.Mode = ModeWhole
		}
		if f.Mode == ModePrefix && f.Separator == "" {
			f.Separator = "_"
		}
		c.fields[f.Key] = f
		if f.Mode == ModePrefix {
			c.separators = append(c.separators, f.Separator)
		}
	}
	return c
}

// Name implements Codec.
func (*JSON) Name() string { return "json" }

type jsonFrame struct {
	object    bool
	expectKey bool
	key       string
}

// Scan implements Codec. Only string values of configured keys are
// reported; the same key inside arrays of objects is found at any depth.
func (c *JSON) Scan(payload []byte) iter.Seq2[Occurrence, error] {
	return func(yield func(Occurrence, error) bool) {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		var stack []jsonFrame

		for {
			start := int(dec.InputOffset())
			tok, err := dec.Token()
			if errors.Is(err, io.EOF) {
				if len(stack) > 0 {
					yield(Occurrence{}, c.errorf(start, "unexpected end of document"))
				}
				return
			}
			if err != nil {
				yield(Occurrence{}, c.errorf(start, "%v", err))
				return
			}
			end := int(dec.InputOffset())

			var top *jsonFrame
			if len(stack) > 0 {
				top = &stack[len(stack)-1]
			}

			switch t := tok.(type) {
			case json.Delim:
				switch t {
				case '{', '[':
					if top != nil && top.object {
						top.expectKey = true
					}
					stack = append(stack, jsonFrame{object: t == '{', expectKey: t == '{'})
				default:
					stack = stack[:len(stack)-1]
				}
			case string:
				if top == nil || !top.object {
					continue
				}
				if top.expectKey {
					top.key = t
					top.expectKey = false
					continue
				}
				top.expectKey = true
				f, ok := c.fields[top.key]
				if !ok {
					continue
				}
				occ, found, err := c.slot(payload, start, end, t, f)
				if err != nil {
					yield(Occurrence{}, err)
					return
				}
				if found && !yield(occ, nil) {
					return
				}
			default:
				if top != nil && top.object {
					top.expectKey = true
				}
			}
		}
	}
}

// slot maps a decoded string value back to its raw bytes. start and end
// bracket the token in payload; the literal ends at end.
func (c *JSON) slot(payload []byte, start, end int, value string, f Field) (Occurrence, bool, error) {
	id := value
	if f.Mode == ModePrefix {
		i := strings.Index(value, f.Separator)
		if i <= 0 {
			return Occurrence{}, false, nil
		}
		id = value[:i]
	}
	if id == "" {
		return Occurrence{}, false, nil
	}

	q := bytes.IndexByte(payload[start:end], '"')
	if q < 0 {
		return Occurrence{}, false, c.errorf(start, "string literal for %q not found", f.Key)
	}
	off := start + q + 1
	raw := payload[off : end-1]
	if !bytes.HasPrefix(raw, []byte(id)) || (f.Mode == ModeWhole && len(raw) != len(id)) {
		return Occurrence{}, false, c.errorf(off, "identifier in %q uses escape sequences", f.Key)
	}
	return Occurrence{Offset: off, Length: len(id), Identifier: id}, true, nil
}

// Encode implements Codec. JSON slots cannot be padded, so the identifier
// must be exactly as long as the one it replaces.
func (c *JSON) Encode(id string, slot Occurrence) ([]byte, error) {
	if id == "" {
		return nil, c.errorf(slot.Offset, "empty identifier")
	}
	if err := c.checkIdentifier(slot.Offset, id); err != nil {
		return nil, err
	}
	if len(id) != slot.Length {
		err := c.errorf(slot.Offset, "identifier %q is %d bytes, slot is exactly %d", id, len(id), slot.Length)
		err.Err = ErrSlotWidth
		return nil, err
	}
	return []byte(id), nil
}

// CheckIdentifier rejects identifiers that need escaping or that contain a
// prefix field's separator: a prefix slot is read up to the first
// separator, so such an identifier would never be found again.
func (c *JSON) CheckIdentifier(id string) error {
	if err := c.checkIdentifier(0, id); err != nil {
		return err
	}
	return nil
}

func (c *JSON) checkIdentifier(offset int, id string) *FormatError {
	for i := 0; i < len(id); i++ {
		if b := id[i]; b == '"' || b == '\\' || b < 0x20 {
			return c.errorf(offset, "identifier %q needs escaping", id)
		}
	}
	for _, sep := range c.separators {
		if strings.Contains(id, sep) {
			return c.errorf(offset, "identifier %q contains slot separator %q", id, sep)
		}
	}
	return nil
}

// Rewrite implements Codec.
func (c *JSON) Rewrite(payload []byte, replacements map[int]string) ([]byte, error) {
	return rewrite(c, payload, replacements)
}

func (c *JSON) errorf(offset int, format string, args ...any) *FormatError {
	return &FormatError{Codec: c.Name(), Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
