package testutil

// FixedIDs returns the same session id every time, so backup manifests
// compare byte-for-byte across runs.
type FixedIDs struct {
	id string
}

// NewFixedIDs returns a generator for id, or for a zero UUID when id is
// empty.
func NewFixedIDs(id string) *FixedIDs {
	if id == "" {
		id = "00000000-0000-0000-0000-000000000000"
	}
	return &FixedIDs{id: id}
}

// NewID returns the fixed id.
func (g *FixedIDs) NewID() string {
	return g.id
}
