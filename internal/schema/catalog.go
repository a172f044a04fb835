// Package schema holds the catalog of entity types the node can ingest.
//
// The catalog maps a type name to its ordered, assignable field descriptors
// (inherited fields first). Each descriptor carries a setter chosen from its
// kind, so applying a decoded change is a lookup plus typed dispatch.
//
// A Catalog is built once, from CUE, and is read-only afterwards; concurrent
// readers need no locking.
package schema

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownType is wrapped when a type name is not registered.
var ErrUnknownType = errors.New("unknown type")

// Kind is the value kind of a field.
type Kind string

const (
	KindString    Kind = "string"
	KindInteger   Kind = "integer"
	KindDecimal   Kind = "decimal"
	KindBoolean   Kind = "boolean"
	KindDate      Kind = "date"
	KindReference Kind = "reference"
	KindSet       Kind = "set" // ordered guids of Ref entities, edited by collection changes
)

// FieldDescriptor describes one assignable field.
type FieldDescriptor struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Ref      string `json:"ref,omitempty"` // target type, KindReference and KindSet
	Required bool   `json:"required,omitempty"`
	Unique   bool   `json:"unique,omitempty"`
	Owner    string `json:"owner"` // type that declared the field

	set     setter
	targets []string // Subtypes(Ref)
}

// TypeDescriptor describes one entity type.
type TypeDescriptor struct {
	Name    string            `json:"name"`
	Extends string            `json:"extends,omitempty"`
	Fields  []FieldDescriptor `json:"fields"`

	index map[string]int
}

// Field returns the descriptor for name.
func (td *TypeDescriptor) Field(name string) (FieldDescriptor, bool) {
	i, ok := td.index[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return td.Fields[i], true
}

// Catalog is the immutable registry of entity types.
type Catalog struct {
	types    map[string]*TypeDescriptor
	subtypes map[string][]string // type -> itself plus every descendant, sorted
}

// Type returns the descriptor for typeName.
func (c *Catalog) Type(typeName string) (*TypeDescriptor, error) {
	td, ok := c.types[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	return td, nil
}

// Fields returns the ordered assignable fields of typeName, inherited fields
// first. The returned slice is shared and must not be modified.
func (c *Catalog) Fields(typeName string) ([]FieldDescriptor, error) {
	td, err := c.Type(typeName)
	if err != nil {
		return nil, err
	}
	return td.Fields, nil
}

// Has reports whether typeName is registered.
func (c *Catalog) Has(typeName string) bool {
	_, ok := c.types[typeName]
	return ok
}

// Types returns all registered type names, sorted.
func (c *Catalog) Types() []string {
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subtypes returns typeName and every type that extends it, directly or not.
// A reference to a Person may point at a Patient.
func (c *Catalog) Subtypes(typeName string) []string {
	return c.subtypes[typeName]
}
