package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/medsync/internal/ir"
)

// marshalFields converts entity fields to canonical JSON TEXT so equal
// objects are stored byte-identically.
func marshalFields(fields ir.Object) (string, error) {
	if fields == nil {
		fields = ir.Object{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses canonical JSON TEXT back into an Object.
func unmarshalFields(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

// marshalStrings stores a string list as a JSON array. nil is stored as [].
func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := ir.MarshalCanonical(values)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

// unmarshalStrings parses a JSON array. An empty array yields nil so
// round-tripped records compare equal to ones built without the list.
func unmarshalStrings(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	return values, nil
}

func toUnixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
