package payload

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() []byte {
	return BuildTLV(
		Record{Tag: 0x10, Value: []byte("button:5")},
		DeviceRecord("m1", 8),
		GroupRecord(
			Record{Tag: 0x11, Value: []byte{0xde, 0xad}},
			DeviceRecord("kb7", 8),
		),
		Record{Tag: 0x12, Value: nil},
	)
}

func TestTLVScan_FindsTopLevelAndNestedSlots(t *testing.T) {
	p := samplePayload()

	occs, err := Collect(TLV{}, p)
	require.NoError(t, err)
	require.Len(t, occs, 2)

	assert.Equal(t, "m1", occs[0].Identifier)
	assert.Equal(t, 8, occs[0].Length)
	assert.Equal(t, "kb7", occs[1].Identifier)
	assert.Greater(t, occs[1].Offset, occs[0].Offset)

	// Offsets point at the slot bytes themselves.
	assert.Equal(t, []byte("m1\x00\x00\x00\x00\x00\x00"), p[occs[0].Offset:occs[0].Offset+8])
}

func TestTLVScan_Restartable(t *testing.T) {
	p := samplePayload()
	seq := TLV{}.Scan(p)

	var first, second []Occurrence
	for occ, err := range seq {
		require.NoError(t, err)
		first = append(first, occ)
	}
	for occ, err := range seq {
		require.NoError(t, err)
		second = append(second, occ)
	}
	assert.Equal(t, first, second)
}

func TestTLVScan_StopsWhenConsumerStops(t *testing.T) {
	n := 0
	for range TLV{}.Scan(samplePayload()) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestTLVScan_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		offset  int
	}{
		{"short header", []byte{'L'}, 0},
		{"bad magic", []byte{'X', 'P', 1}, 0},
		{"bad version", []byte{'L', 'P', 9}, 2},
		{"truncated record header", []byte{'L', 'P', 1, 0x01, 0x00}, 3},
		{"overrun", []byte{'L', 'P', 1, 0x01, 0x00, 0x09, 'a'}, 3},
		{"zero width slot", []byte{'L', 'P', 1, 0x01, 0x00, 0x00}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Collect(TLV{}, tt.payload)
			require.Error(t, err)
			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.offset, fe.Offset)
			assert.Contains(t, err.Error(), "PayloadFormatError")
		})
	}
}

func TestTLVRewrite_PadsShorterIdentifier(t *testing.T) {
	p := samplePayload()
	occs, err := Collect(TLV{}, p)
	require.NoError(t, err)

	out, err := TLV{}.Rewrite(p, map[int]string{occs[0].Offset: "m2"})
	require.NoError(t, err)
	require.Len(t, out, len(p))

	after, err := Collect(TLV{}, out)
	require.NoError(t, err)
	assert.Equal(t, "m2", after[0].Identifier)
	assert.Equal(t, "kb7", after[1].Identifier)

	// Everything outside the rewritten slot is untouched.
	assert.Equal(t, p[:occs[0].Offset], out[:occs[0].Offset])
	assert.Equal(t, p[occs[0].Offset+8:], out[occs[0].Offset+8:])
}

func TestTLVRewrite_DoesNotMutateInput(t *testing.T) {
	p := samplePayload()
	orig := bytes.Clone(p)
	occs, err := Collect(TLV{}, p)
	require.NoError(t, err)

	_, err = TLV{}.Rewrite(p, map[int]string{occs[0].Offset: "zz"})
	require.NoError(t, err)
	assert.Equal(t, orig, p)
}

func TestTLVRewrite_IdentifierTooWide(t *testing.T) {
	p := samplePayload()
	occs, err := Collect(TLV{}, p)
	require.NoError(t, err)

	_, err = TLV{}.Rewrite(p, map[int]string{occs[0].Offset: "much-too-long"})
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
	assert.ErrorIs(t, err, ErrSlotWidth)
}

func TestTLVRewrite_UnknownOffset(t *testing.T) {
	p := samplePayload()

	_, err := TLV{}.Rewrite(p, map[int]string{1: "m2"})
	require.Error(t, err)
	assert.True(t, IsUnknownOccurrence(err))
	assert.Contains(t, err.Error(), "offset 1")
}

func TestTLVEncode_RejectsEmptyAndNUL(t *testing.T) {
	slot := Occurrence{Offset: 6, Length: 8}

	_, err := TLV{}.Encode("", slot)
	assert.Error(t, err)
	_, err = TLV{}.Encode("a\x00b", slot)
	assert.Error(t, err)

	enc, err := TLV{}.Encode("abc", slot)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc\x00\x00\x00\x00\x00"), enc)
}
