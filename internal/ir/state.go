package ir

import "fmt"

// RecordState is the lifecycle state of a SyncRecord or ImportRecord.
type RecordState string

const (
	RecordNew              RecordState = "NEW"
	RecordPending          RecordState = "PENDING"
	RecordCommitted        RecordState = "COMMITTED"
	RecordAlreadyCommitted RecordState = "ALREADY_COMMITTED"
	RecordFailed           RecordState = "FAILED"

	// RecordNotSupposedToSync is returned by a receiver that does not accept
	// one of the record's contained types.
	RecordNotSupposedToSync RecordState = "NOT_SUPPOSED_TO_SYNC"

	// RecordRejected is how a sender stores a NOT_SUPPOSED_TO_SYNC verdict.
	RecordRejected RecordState = "REJECTED"
)

// RecordStates lists every record state in declaration order.
var RecordStates = []RecordState{
	RecordNew,
	RecordPending,
	RecordCommitted,
	RecordAlreadyCommitted,
	RecordFailed,
	RecordNotSupposedToSync,
	RecordRejected,
}

// ParseRecordState converts a persisted or user-supplied name to a RecordState.
func ParseRecordState(s string) (RecordState, error) {
	for _, st := range RecordStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown record state %q", s)
}

// Queued reports whether the record still waits to be (re)sent.
func (s RecordState) Queued() bool {
	return s == RecordNew || s == RecordPending
}

// ItemState is the outcome of a single item.
type ItemState string

const (
	ItemUnknown      ItemState = "UNKNOWN"
	ItemSynchronized ItemState = "SYNCHRONIZED"
	ItemConflict     ItemState = "CONFLICT"
	ItemError        ItemState = "ERROR"
)

// ErrorCode classifies why an item did not synchronize.
type ErrorCode string

const (
	// ErrMalformedPayload: the payload could not be decoded.
	ErrMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"

	// ErrUnknownType: the target type is not in the local catalog.
	ErrUnknownType ErrorCode = "UNKNOWN_TYPE"

	// ErrUnsettableProperty: a field could not be coerced or assigned.
	// Args: field name, type name.
	ErrUnsettableProperty ErrorCode = "UNSETTABLE_PROPERTY"

	// ErrNotCommitted: the store rejected the write. Args: type name.
	ErrNotCommitted ErrorCode = "NOT_COMMITTED"

	// ErrGenericFailure: anything unexpected.
	ErrGenericFailure ErrorCode = "GENERIC_FAILURE"
)
