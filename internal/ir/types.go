package ir

import "time"

// SyncRecord is one unit of replication produced by a sending node.
type SyncRecord struct {
	GUID           string      `json:"guid"`
	Items          []SyncItem  `json:"items"`
	RetryCount     int         `json:"retry_count"`
	Timestamp      time.Time   `json:"timestamp"`
	State          RecordState `json:"state"`
	ContainedTypes []string    `json:"contained_types,omitempty"` // Entity types touched by Items
}

// SyncItem is one change within a record. Content is an encoded
// ChangeDescriptor; Key identifies the item's origin within the record.
type SyncItem struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

// ImportRecord is the receiving node's verdict on a SyncRecord with the same guid.
type ImportRecord struct {
	GUID       string       `json:"guid"`
	State      RecordState  `json:"state"`
	RetryCount int          `json:"retry_count"`
	Timestamp  time.Time    `json:"timestamp"`
	Items      []ImportItem `json:"items"`
}

// ImportItem is one item's outcome. Content is the original payload, kept for
// diagnostics.
type ImportItem struct {
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	State     ItemState `json:"state"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
	ErrorArgs []string  `json:"error_args,omitempty"`
}

// Synchronized reports whether every item in the record was applied.
// An import record with no items is trivially synchronized.
func (r ImportRecord) Synchronized() bool {
	for _, item := range r.Items {
		if item.State != ItemSynchronized {
			return false
		}
	}
	return true
}

// ServerRecord is the verdict one server other than the parent returned for
// an outbound record.
type ServerRecord struct {
	RecordGUID string      `json:"record_guid"`
	Server     string      `json:"server"`
	State      RecordState `json:"state"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ChangeDescriptor is the decoded form of a SyncItem payload. It is transient:
// produced by the decoder, consumed by the applier, never persisted.
//
// A descriptor either assigns Fields or, when Collection is set, edits one
// set-valued property of an existing object.
type ChangeDescriptor struct {
	Type       string            `json:"type"`
	GUID       string            `json:"guid"`
	Fields     []Field           `json:"fields"`
	Collection *CollectionChange `json:"collection,omitempty"`
}

// CollectionAction is what a collection change does to the set or to one
// entry. Unknown actions survive decoding and are rejected when applied.
type CollectionAction string

const (
	CollectionUpdate   CollectionAction = "update"   // owner: edit in place; entry: add if absent
	CollectionRecreate CollectionAction = "recreate" // owner only: start from an empty set
	CollectionDelete   CollectionAction = "delete"   // entry only: remove
)

// CollectionChange edits the set field Property of the descriptor's object.
// Entries apply in order.
type CollectionChange struct {
	Property string            `json:"property"`
	Action   CollectionAction  `json:"action"`
	Entries  []CollectionEntry `json:"entries"`
}

// CollectionEntry names one member of a collection change.
type CollectionEntry struct {
	Type   string           `json:"type"`
	GUID   string           `json:"guid"`
	Action CollectionAction `json:"action"`
}

// Field is one (name, raw value) pair of a change descriptor. Null marks an
// explicit clear; Value is empty in that case.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Null  bool   `json:"null,omitempty"`
}

// Entity is a persisted clinical object.
type Entity struct {
	Type           string    `json:"type"`
	GUID           string    `json:"guid"`
	Fields         Object    `json:"fields"`
	LastRecordGUID string    `json:"last_record_guid,omitempty"` // "<record guid>|<node guid>" for replicated writes
	Digest         string    `json:"digest"`
	Version        int64     `json:"version"` // incremented on every durable write
	UpdatedAt      time.Time `json:"updated_at"`
}
