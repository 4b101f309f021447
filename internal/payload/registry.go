package payload

import "fmt"

// Codec names accepted by New.
const (
	CodecTLV  = "tlv"
	CodecJSON = "json"
)

// New returns the codec registered under name. Fields configure the JSON
// codec and are ignored by the others.
func New(name string, fields []Field) (Codec, error) {
	switch name {
	case CodecTLV:
		return TLV{}, nil
	case CodecJSON:
		return NewJSON(fields...), nil
	default:
		return nil, fmt.Errorf("unknown payload codec %q", name)
	}
}

// Known reports whether name is a registered codec.
func Known(name string) bool {
	return name == CodecTLV || name == CodecJSON
}
