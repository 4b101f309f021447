// Package catalog describes where the vendor store keeps per-device data.
//
// Each catalog entry is a CUE file unified with the #Catalog schema in
// schema.cue. Entries are versioned and may constrain the vendor
// application versions they apply to; Resolve picks the newest entry whose
// tables and columns all exist in a given store. Additional entries can be
// loaded from directories named in the configuration.
package catalog
