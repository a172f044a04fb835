// Package payload encodes and decodes the self-describing change payload
// carried by a SyncItem.
//
// A payload is a JSON object:
//
//	{"type":"Patient","guid":"6f1d…","fields":{"gender":"F","tribe":null}}
//
// The order of "fields" is significant and preserved. Field values are raw
// text: strings are taken verbatim, numbers and booleans as their literal
// text, and null marks a field to clear. Nested arrays and objects are not
// allowed.
//
// A payload may instead carry a "collection" edit of one set-valued field:
//
//	{"type":"Concept","guid":"c-1","collection":{"property":"answers",
//	 "action":"recreate","entries":[{"type":"Concept","guid":"c-2","action":"update"}]}}
//
// "fields" and "collection" are mutually exclusive.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/medsync/internal/ir"
)

// ErrMalformedPayload is wrapped by every Decode failure.
var ErrMalformedPayload = errors.New("malformed payload")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// Decode parses one payload into a ChangeDescriptor.
// Decode is pure; it fails with ErrMalformedPayload when the payload is not
// well-formed JSON, has no root object, or lacks a type name or guid.
func Decode(raw string) (ir.ChangeDescriptor, error) {
	var desc ir.ChangeDescriptor

	if strings.TrimSpace(raw) == "" {
		return desc, malformed("empty payload")
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return desc, malformed("%v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return desc, malformed("no root object")
	}

	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return desc, err
		}
		switch key {
		case "type":
			desc.Type, err = readString(dec, key)
		case "guid":
			desc.GUID, err = readString(dec, key)
		case "fields":
			desc.Fields, err = readFields(dec)
		case "collection":
			desc.Collection, err = readCollection(dec)
		default:
			// Unknown envelope keys are ignored so newer senders can add metadata.
			var skip json.RawMessage
			if err = dec.Decode(&skip); err != nil {
				err = malformed("key %q: %v", key, err)
			}
		}
		if err != nil {
			return desc, err
		}
	}

	if _, err := dec.Token(); err != nil {
		return desc, malformed("%v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return desc, malformed("trailing data after root object")
	}

	if desc.Type == "" {
		return desc, malformed("missing type")
	}
	if desc.GUID == "" {
		return desc, malformed("missing guid")
	}
	if desc.Fields != nil && desc.Collection != nil {
		return desc, malformed("fields and collection are exclusive")
	}
	if desc.Fields == nil {
		desc.Fields = []ir.Field{}
	}
	return desc, nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", malformed("%v", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", malformed("expected object key, got %v", tok)
	}
	return key, nil
}

func readString(dec *json.Decoder, key string) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", malformed("%v", err)
	}
	s, ok := tok.(string)
	if !ok {
		return "", malformed("%s must be a string", key)
	}
	return s, nil
}

func readFields(dec *json.Decoder) ([]ir.Field, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, malformed("%v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, malformed("fields must be an object")
	}

	fields := []ir.Field{}
	seen := make(map[string]bool)
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, malformed("duplicate field %q", name)
		}
		seen[name] = true

		tok, err := dec.Token()
		if err != nil {
			return nil, malformed("%v", err)
		}
		field := ir.Field{Name: name}
		switch v := tok.(type) {
		case string:
			field.Value = v
		case json.Number:
			field.Value = v.String()
		case bool:
			if v {
				field.Value = "true"
			} else {
				field.Value = "false"
			}
		case nil:
			field.Null = true
		default:
			return nil, malformed("field %q: nested values are not supported", name)
		}
		fields = append(fields, field)
	}

	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, malformed("%v", err)
	}
	return fields, nil
}

type rawCollection struct {
	Property *string `json:"property"`
	Action   string  `json:"action"`
	Entries  []struct {
		Type   string `json:"type"`
		GUID   string `json:"guid"`
		Action string `json:"action"`
	} `json:"entries"`
}

func readCollection(dec *json.Decoder) (*ir.CollectionChange, error) {
	var raw rawCollection
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("collection: %v", err)
	}
	if raw.Property == nil || *raw.Property == "" {
		return nil, malformed("collection: missing property")
	}

	cc := &ir.CollectionChange{
		Property: *raw.Property,
		Action:   ir.CollectionAction(raw.Action),
		Entries:  make([]ir.CollectionEntry, 0, len(raw.Entries)),
	}
	for i, e := range raw.Entries {
		if e.Type == "" || e.GUID == "" {
			return nil, malformed("collection entry %d: type and guid are required", i)
		}
		cc.Entries = append(cc.Entries, ir.CollectionEntry{Type: e.Type, GUID: e.GUID, Action: ir.CollectionAction(e.Action)})
	}
	return cc, nil
}

// Encode serializes a ChangeDescriptor. Values are always written as JSON
// strings so Decode returns them byte for byte.
func Encode(desc ir.ChangeDescriptor) (string, error) {
	if desc.Type == "" {
		return "", fmt.Errorf("encode payload: missing type")
	}
	if desc.GUID == "" {
		return "", fmt.Errorf("encode payload: missing guid")
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	writeJSONString(&buf, desc.Type)
	buf.WriteString(`,"guid":`)
	writeJSONString(&buf, desc.GUID)
	if desc.Collection != nil {
		if len(desc.Fields) > 0 {
			return "", fmt.Errorf("encode payload: fields and collection are exclusive")
		}
		writeCollection(&buf, desc.Collection)
		buf.WriteByte('}')
		return buf.String(), nil
	}
	buf.WriteString(`,"fields":{`)
	for i, f := range desc.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, f.Name)
		buf.WriteByte(':')
		if f.Null {
			buf.WriteString("null")
			continue
		}
		writeJSONString(&buf, f.Value)
	}
	buf.WriteString("}}")
	return buf.String(), nil
}

func writeCollection(buf *bytes.Buffer, cc *ir.CollectionChange) {
	buf.WriteString(`,"collection":{"property":`)
	writeJSONString(buf, cc.Property)
	buf.WriteString(`,"action":`)
	writeJSONString(buf, string(cc.Action))
	buf.WriteString(`,"entries":[`)
	for i, e := range cc.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"type":`)
		writeJSONString(buf, e.Type)
		buf.WriteString(`,"guid":`)
		writeJSONString(buf, e.GUID)
		buf.WriteString(`,"action":`)
		writeJSONString(buf, string(e.Action))
		buf.WriteByte('}')
	}
	buf.WriteString("]}")
}

func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// json.Encoder appends a newline
	buf.Truncate(buf.Len() - 1)
}

// MustEncode is like Encode but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEncode(desc ir.ChangeDescriptor) string {
	s, err := Encode(desc)
	if err != nil {
		panic(err)
	}
	return s
}
