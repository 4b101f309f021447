package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/lock"
	"github.com/roach88/devmigrate/internal/payload"
	"github.com/roach88/devmigrate/internal/store"
)

// Kind categorizes migration failures. Every kind is fatal; none is
// retried.
type Kind string

const (
	// KindSchemaMismatch: the catalog does not describe the store.
	KindSchemaMismatch Kind = "SchemaMismatch"

	// KindDeviceNotFound: the identifier owns no rows and is not paired.
	KindDeviceNotFound Kind = "DeviceNotFound"

	// KindPayloadFormat: a blob could not be scanned or rewritten.
	KindPayloadFormat Kind = "PayloadFormatError"

	// KindUnknownOccurrence: a rewrite addressed an offset the scan did
	// not produce.
	KindUnknownOccurrence Kind = "UnknownOccurrence"

	// KindIdentifierWidth: the target identifier does not fit a
	// fixed-width slot that holds the source identifier.
	KindIdentifierWidth Kind = "IdentifierWidthMismatch"

	// KindStoreLocked: another process holds the store.
	KindStoreLocked Kind = "StoreLocked"

	// KindBackupFailed: the pre-write backup could not be made or verified.
	KindBackupFailed Kind = "BackupFailed"

	// KindVerificationFailed: the written graph did not match the plan;
	// the transaction was rolled back.
	KindVerificationFailed Kind = "VerificationFailed"
)

// ErrSameDevice is returned when source and target name the same device.
var ErrSameDevice = errors.New("source and target are the same device")

// Error is a migration failure with enough context to diagnose it
// without the store at hand.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	DeviceID string `json:"device_id,omitempty"`
	Table    string `json:"table,omitempty"`
	Column   string `json:"column,omitempty"`
	RowID    int64  `json:"rowid,omitempty"`
	// Offset is the byte offset inside Column's payload. Only meaningful
	// when Column names a blob.
	Offset int `json:"offset,omitempty"`

	Err error `json:"-"`
}

func (e *Error) Error() string {
	var ctx []string
	if e.DeviceID != "" {
		ctx = append(ctx, "device="+e.DeviceID)
	}
	if e.Table != "" {
		ctx = append(ctx, "table="+e.Table)
	}
	if e.Column != "" {
		ctx = append(ctx, "column="+e.Column, fmt.Sprintf("offset=%d", e.Offset))
	}
	if e.RowID != 0 {
		ctx = append(ctx, fmt.Sprintf("rowid=%d", e.RowID))
	}

	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if len(ctx) > 0 {
		msg += " (" + strings.Join(ctx, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf maps err to its taxonomy kind, looking through the error types of
// the catalog, payload, store and lock packages. It returns "" for errors
// outside the taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	switch {
	case catalog.IsMismatch(err):
		return KindSchemaMismatch
	case payload.IsUnknownOccurrence(err):
		return KindUnknownOccurrence
	case errors.Is(err, payload.ErrSlotWidth):
		return KindIdentifierWidth
	case payload.IsFormatError(err):
		return KindPayloadFormat
	case store.IsLocked(err), lock.IsHeld(err):
		return KindStoreLocked
	}
	return ""
}

// Is reports whether err belongs to kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsStoreLocked reports whether err means another process holds the store.
func IsStoreLocked(err error) bool {
	return Is(err, KindStoreLocked)
}

// payloadError wraps a codec failure with its row context.
func payloadError(table, column string, rowID int64, deviceID string, err error) *Error {
	e := &Error{
		Kind:     KindOf(err),
		Message:  "cannot process payload",
		DeviceID: deviceID,
		Table:    table,
		Column:   column,
		RowID:    rowID,
		Err:      err,
	}
	var fe *payload.FormatError
	var ue *payload.UnknownOccurrenceError
	switch {
	case errors.As(err, &fe):
		e.Offset = fe.Offset
	case errors.As(err, &ue):
		e.Offset = ue.Offset
	}
	if e.Kind == KindIdentifierWidth {
		e.Message = fmt.Sprintf("identifier %q does not fit the payload slot", deviceID)
	}
	if e.Kind == "" {
		e.Kind = KindPayloadFormat
	}
	return e
}
