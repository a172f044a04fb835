package testutil

import (
	"time"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/payload"
)

// F builds a field assignment.
func F(name, value string) ir.Field {
	return ir.Field{Name: name, Value: value}
}

// Null builds a field clear.
func Null(name string) ir.Field {
	return ir.Field{Name: name, Null: true}
}

// Change builds a change descriptor.
func Change(typeName, guid string, fields ...ir.Field) ir.ChangeDescriptor {
	if fields == nil {
		fields = []ir.Field{}
	}
	return ir.ChangeDescriptor{Type: typeName, GUID: guid, Fields: fields}
}

// Collection builds a change editing the set field property of (typeName, guid).
func Collection(typeName, guid, property string, action ir.CollectionAction, entries ...ir.CollectionEntry) ir.ChangeDescriptor {
	if entries == nil {
		entries = []ir.CollectionEntry{}
	}
	return ir.ChangeDescriptor{
		Type:       typeName,
		GUID:       guid,
		Fields:     []ir.Field{},
		Collection: &ir.CollectionChange{Property: property, Action: action, Entries: entries},
	}
}

// Entry builds one collection entry.
func Entry(typeName, guid string, action ir.CollectionAction) ir.CollectionEntry {
	return ir.CollectionEntry{Type: typeName, GUID: guid, Action: action}
}

// Item encodes change into a sync item keyed as the index-th item of record.
func Item(record string, index int, change ir.ChangeDescriptor) ir.SyncItem {
	content := payload.MustEncode(change)
	return ir.SyncItem{Key: ir.ItemKey(record, index, content), Content: content}
}

// RawItem wraps an arbitrary payload, well-formed or not.
func RawItem(key, content string) ir.SyncItem {
	return ir.SyncItem{Key: key, Content: content}
}

// Record builds a NEW sync record holding changes in order.
func Record(guid string, changes ...ir.ChangeDescriptor) ir.SyncRecord {
	rec := ir.SyncRecord{
		GUID:      guid,
		State:     ir.RecordNew,
		Timestamp: Epoch,
		Items:     make([]ir.SyncItem, 0, len(changes)),
	}
	seen := make(map[string]bool)
	for i, c := range changes {
		rec.Items = append(rec.Items, Item(guid, i, c))
		if !seen[c.Type] {
			seen[c.Type] = true
			rec.ContainedTypes = append(rec.ContainedTypes, c.Type)
		}
	}
	return rec
}

// RecordOf builds a NEW sync record from prepared items.
func RecordOf(guid string, items ...ir.SyncItem) ir.SyncRecord {
	if items == nil {
		items = []ir.SyncItem{}
	}
	return ir.SyncRecord{GUID: guid, State: ir.RecordNew, Timestamp: Epoch, Items: items}
}

// At returns Epoch shifted by d.
func At(d time.Duration) time.Time {
	return Epoch.Add(d)
}
