package payload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medsync/internal/ir"
)

func TestRoundTripPreservesFieldOrder(t *testing.T) {
	desc := ir.ChangeDescriptor{
		Type: "Concept",
		GUID: "c-1",
		Fields: []ir.Field{
			{Name: "name", Value: "Foo"},
			{Name: "code", Value: "123"},
		},
	}

	raw, err := Encode(desc)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, desc, got)
}

func TestEncodeShape(t *testing.T) {
	raw := MustEncode(ir.ChangeDescriptor{
		Type: "Patient",
		GUID: "p-1",
		Fields: []ir.Field{
			{Name: "gender", Value: "F"},
			{Name: "tribe", Null: true},
			{Name: "note", Value: "<b>&</b>"},
		},
	})

	assert.Equal(t, `{"type":"Patient","guid":"p-1","fields":{"gender":"F","tribe":null,"note":"<b>&</b>"}}`, raw)
}

func TestDecodeScalarValues(t *testing.T) {
	got, err := Decode(`{"guid":"o-1","type":"Obs","fields":{"value":72.50,"voided":false,"count":3,"comment":null}}`)
	require.NoError(t, err)

	assert.Equal(t, "Obs", got.Type)
	assert.Equal(t, "o-1", got.GUID)
	assert.Equal(t, []ir.Field{
		{Name: "value", Value: "72.50"},
		{Name: "voided", Value: "false"},
		{Name: "count", Value: "3"},
		{Name: "comment", Null: true},
	}, got.Fields)
}

func TestDecodeWithoutFields(t *testing.T) {
	got, err := Decode(`{"type":"Location","guid":"l-1"}`)
	require.NoError(t, err)
	assert.NotNil(t, got.Fields)
	assert.Empty(t, got.Fields)
}

func TestDecodeIgnoresUnknownEnvelopeKeys(t *testing.T) {
	got, err := Decode(`{"type":"Location","guid":"l-1","origin":{"node":"n-2"},"fields":{"name":"Ward A"}}`)
	require.NoError(t, err)
	assert.Equal(t, []ir.Field{{Name: "name", Value: "Ward A"}}, got.Fields)
}

func TestCollectionRoundTrip(t *testing.T) {
	desc := ir.ChangeDescriptor{
		Type:   "Concept",
		GUID:   "c-1",
		Fields: []ir.Field{},
		Collection: &ir.CollectionChange{
			Property: "answers",
			Action:   ir.CollectionRecreate,
			Entries: []ir.CollectionEntry{
				{Type: "Concept", GUID: "c-2", Action: ir.CollectionUpdate},
				{Type: "Concept", GUID: "c-3", Action: ir.CollectionDelete},
			},
		},
	}

	raw, err := Encode(desc)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"Concept","guid":"c-1","collection":{"property":"answers","action":"recreate","entries":[`+
		`{"type":"Concept","guid":"c-2","action":"update"},{"type":"Concept","guid":"c-3","action":"delete"}]}}`, raw)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, desc, got)
}

func TestDecodeCollectionKeepsUnknownActions(t *testing.T) {
	got, err := Decode(`{"type":"Concept","guid":"c-1","collection":{"property":"answers","action":"merge","entries":[{"type":"Concept","guid":"c-2","action":"swap"}]}}`)
	require.NoError(t, err)
	require.NotNil(t, got.Collection)
	assert.Equal(t, ir.CollectionAction("merge"), got.Collection.Action)
	assert.Equal(t, ir.CollectionAction("swap"), got.Collection.Entries[0].Action)
	assert.Empty(t, got.Fields)
}

func TestEncodeRejectsFieldsWithCollection(t *testing.T) {
	_, err := Encode(ir.ChangeDescriptor{
		Type:       "Concept",
		GUID:       "c-1",
		Fields:     []ir.Field{{Name: "name", Value: "X"}},
		Collection: &ir.CollectionChange{Property: "answers", Action: ir.CollectionUpdate},
	})
	assert.Error(t, err)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", "empty payload"},
		{"whitespace", "   \n", "empty payload"},
		{"not json", "<Patient/>", "malformed payload"},
		{"array root", `[{"type":"Patient"}]`, "no root object"},
		{"string root", `"Patient"`, "no root object"},
		{"truncated", `{"type":"Patient","guid":"p-1"`, "malformed payload"},
		{"trailing data", `{"type":"Patient","guid":"p-1"} {}`, "trailing data"},
		{"missing type", `{"guid":"p-1","fields":{}}`, "missing type"},
		{"missing guid", `{"type":"Patient","fields":{}}`, "missing guid"},
		{"type not string", `{"type":7,"guid":"p-1"}`, "type must be a string"},
		{"fields not object", `{"type":"Patient","guid":"p-1","fields":["a"]}`, "fields must be an object"},
		{"nested value", `{"type":"Patient","guid":"p-1","fields":{"names":["a"]}}`, `field "names"`},
		{"duplicate field", `{"type":"Patient","guid":"p-1","fields":{"a":"1","a":"2"}}`, `duplicate field "a"`},
		{"fields and collection", `{"type":"Concept","guid":"c-1","fields":{},"collection":{"property":"answers","action":"update"}}`, "exclusive"},
		{"collection without property", `{"type":"Concept","guid":"c-1","collection":{"action":"update"}}`, "missing property"},
		{"collection entry without guid", `{"type":"Concept","guid":"c-1","collection":{"property":"answers","action":"update","entries":[{"type":"Concept"}]}}`, "entry 0"},
		{"collection not object", `{"type":"Concept","guid":"c-1","collection":"answers"}`, "collection:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPayload))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEncodeRequiresTypeAndGUID(t *testing.T) {
	_, err := Encode(ir.ChangeDescriptor{GUID: "x"})
	assert.Error(t, err)

	_, err = Encode(ir.ChangeDescriptor{Type: "Person"})
	assert.Error(t, err)

	assert.Panics(t, func() { MustEncode(ir.ChangeDescriptor{}) })
}
