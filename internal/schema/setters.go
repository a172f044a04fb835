package schema

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/medsync/internal/ir"
)

// DateLayout is the layout dates are stored in, always UTC.
const DateLayout = "2006-01-02T15:04:05.000Z"

// dateLayouts are tried in order when parsing an incoming date.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05", // also takes a trailing fraction of any length
	time.RFC3339Nano,
	"2006-01-02",
}

// References answers whether a referenced entity exists locally under guid
// with any of the given types.
type References interface {
	EntityExists(ctx context.Context, guid string, types ...string) (bool, error)
}

// CoercionError reports a raw value that could not be assigned to a field.
type CoercionError struct {
	Type   string
	Field  string
	Kind   Kind
	Value  string
	Reason string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("%s.%s (%s): %q: %s", e.Type, e.Field, e.Kind, e.Value, e.Reason)
}

// IsCoercionError reports whether err wraps a CoercionError.
func IsCoercionError(err error) bool {
	var ce *CoercionError
	return errors.As(err, &ce)
}

type setter func(ctx context.Context, fd FieldDescriptor, obj ir.Object, raw string, refs References) error

var setters = map[Kind]setter{
	KindString:    setString,
	KindInteger:   setInteger,
	KindDecimal:   setDecimal,
	KindBoolean:   setBoolean,
	KindDate:      setDate,
	KindReference: setReference,
	KindSet:       setSet,
}

func (k Kind) refers() bool {
	return k == KindReference || k == KindSet
}

// Set coerces raw to the field's kind and assigns it on obj under the
// field name. A *CoercionError means the value itself is unusable; any other
// error comes from refs.
func (fd FieldDescriptor) Set(ctx context.Context, typeName string, obj ir.Object, raw string, refs References) error {
	if fd.set == nil {
		return fmt.Errorf("field %q has no setter for kind %q", fd.Name, fd.Kind)
	}
	err := fd.set(ctx, fd, obj, raw, refs)
	var ce *CoercionError
	if errors.As(err, &ce) {
		ce.Type = typeName
	}
	return err
}

// Clear removes the field from obj.
func (fd FieldDescriptor) Clear(obj ir.Object) {
	delete(obj, fd.Name)
}

func coercionError(fd FieldDescriptor, raw, reason string) error {
	return &CoercionError{Field: fd.Name, Kind: fd.Kind, Value: raw, Reason: reason}
}

func setString(_ context.Context, fd FieldDescriptor, obj ir.Object, raw string, _ References) error {
	obj[fd.Name] = ir.String(norm.NFC.String(raw))
	return nil
}

func setInteger(_ context.Context, fd FieldDescriptor, obj ir.Object, raw string, _ References) error {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return coercionError(fd, raw, "not an integer")
	}
	obj[fd.Name] = ir.Int(n)
	return nil
}

// maxDecimalExponent bounds the plain-text rendering of a decimal.
const maxDecimalExponent = 1000

// setDecimal stores the exact decimal in plain notation with trailing zeros
// removed, so "1.50", "1.5" and "15e-1" all store "1.5".
func setDecimal(_ context.Context, fd FieldDescriptor, obj ir.Object, raw string, _ References) error {
	d, _, err := apd.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.Form != apd.Finite {
		return coercionError(fd, raw, "not a finite decimal")
	}
	d.Reduce(d)
	if d.Exponent > maxDecimalExponent || d.Exponent < -maxDecimalExponent {
		return coercionError(fd, raw, "decimal exponent out of range")
	}
	obj[fd.Name] = ir.String(d.Text('f'))
	return nil
}

func setBoolean(_ context.Context, fd FieldDescriptor, obj ir.Object, raw string, _ References) error {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return coercionError(fd, raw, "not a boolean")
	}
	obj[fd.Name] = ir.Bool(b)
	return nil
}

func setDate(_ context.Context, fd FieldDescriptor, obj ir.Object, raw string, _ References) error {
	t, ok := parseDate(strings.TrimSpace(raw))
	if !ok {
		return coercionError(fd, raw, "not a recognized date")
	}
	obj[fd.Name] = ir.String(t.UTC().Format(DateLayout))
	return nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func setReference(ctx context.Context, fd FieldDescriptor, obj ir.Object, raw string, refs References) error {
	guid := strings.TrimSpace(raw)
	if guid == "" {
		return coercionError(fd, raw, "empty reference")
	}
	if refs == nil {
		return fmt.Errorf("resolve %s reference %q: no reference lookup configured", fd.Ref, guid)
	}
	exists, err := refs.EntityExists(ctx, guid, fd.targets...)
	if err != nil {
		return fmt.Errorf("resolve %s reference %q: %w", fd.Ref, guid, err)
	}
	if !exists {
		return coercionError(fd, raw, fmt.Sprintf("referenced %s not found", fd.Ref))
	}
	obj[fd.Name] = ir.String(guid)
	return nil
}

func setSet(_ context.Context, fd FieldDescriptor, _ ir.Object, raw string, _ References) error {
	return coercionError(fd, raw, "set fields change through collection edits")
}

// Members returns the guids held by the set field on obj, in insertion order.
func (fd FieldDescriptor) Members(obj ir.Object) []string {
	arr, _ := obj[fd.Name].(ir.Array)
	guids := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(ir.String); ok {
			guids = append(guids, string(s))
		}
	}
	return guids
}

// AddMember appends guid to the set field on obj unless it is already there.
// The member must exist locally as memberType, which must be the set's ref
// type or a subtype of it. A *CoercionError means the member is unusable; any
// other error comes from refs.
func (fd FieldDescriptor) AddMember(ctx context.Context, typeName string, obj ir.Object, memberType, guid string, refs References) error {
	if fd.Kind != KindSet {
		return &CoercionError{Type: typeName, Field: fd.Name, Kind: fd.Kind, Value: guid, Reason: "not a set field"}
	}
	if !slices.Contains(fd.targets, memberType) {
		return &CoercionError{Type: typeName, Field: fd.Name, Kind: fd.Kind, Value: guid, Reason: fmt.Sprintf("%s is not a %s", memberType, fd.Ref)}
	}
	if refs == nil {
		return fmt.Errorf("resolve %s member %q: no reference lookup configured", fd.Ref, guid)
	}
	exists, err := refs.EntityExists(ctx, guid, memberType)
	if err != nil {
		return fmt.Errorf("resolve %s member %q: %w", fd.Ref, guid, err)
	}
	if !exists {
		return &CoercionError{Type: typeName, Field: fd.Name, Kind: fd.Kind, Value: guid, Reason: fmt.Sprintf("member %s not found", memberType)}
	}

	members := fd.Members(obj)
	if slices.Contains(members, guid) {
		return nil
	}
	obj[fd.Name] = toArray(append(members, guid))
	return nil
}

// RemoveMember drops guid from the set field on obj and reports whether it
// was there.
func (fd FieldDescriptor) RemoveMember(obj ir.Object, guid string) bool {
	members := fd.Members(obj)
	i := slices.Index(members, guid)
	if i < 0 {
		return false
	}
	obj[fd.Name] = toArray(slices.Delete(members, i, i+1))
	return true
}

// Empty replaces the set field on obj with an empty set.
func (fd FieldDescriptor) Empty(obj ir.Object) {
	obj[fd.Name] = ir.Array{}
}

func toArray(guids []string) ir.Array {
	arr := make(ir.Array, len(guids))
	for i, g := range guids {
		arr[i] = ir.String(g)
	}
	return arr
}
