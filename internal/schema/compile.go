package schema

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// CompileError reports an invalid catalog definition.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// rawType is a type as declared, before inheritance is resolved.
type rawType struct {
	name    string
	extends string
	fields  []FieldDescriptor
	pos     token.Pos
}

// CompileString compiles CUE source into a Catalog. filename is only used in
// error positions.
func CompileString(src, filename string) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// LoadDir loads every CUE file of the package in dir and compiles it.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema dir: not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("schema dir: no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("schema dir: loading CUE files: %w", inst.Err)
	}

	ctx := cuecontext.New()
	return Compile(ctx.BuildInstance(inst))
}

// Compile builds a Catalog from a CUE value holding an "entity" struct:
//
//	entity: Patient: {
//		extends: "Person"
//		fields: {
//			tribe: {kind: "reference", ref: "Tribe"}
//			code:  "string"
//		}
//	}
func Compile(v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, &CompileError{Field: "entity", Message: "no entity definitions", Pos: v.Pos()}
	}

	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	raw := make(map[string]*rawType)
	for iter.Next() {
		rt, err := compileType(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		raw[rt.name] = rt
	}
	if len(raw) == 0 {
		return nil, &CompileError{Field: "entity", Message: "no entity definitions", Pos: entities.Pos()}
	}

	return link(raw)
}

func compileType(name string, v cue.Value) (*rawType, error) {
	rt := &rawType{name: name, pos: v.Pos()}

	if ext := v.LookupPath(cue.ParsePath("extends")); ext.Exists() {
		parent, err := ext.String()
		if err != nil {
			return nil, &CompileError{Field: name + ".extends", Message: "must be a type name", Pos: ext.Pos()}
		}
		rt.extends = parent
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return rt, nil
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		fd, err := compileField(name, iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		rt.fields = append(rt.fields, fd)
	}
	return rt, nil
}

// compileField accepts either a bare kind ("date") or a struct
// {kind, ref?, required?, unique?}.
func compileField(typeName, name string, v cue.Value) (FieldDescriptor, error) {
	fd := FieldDescriptor{Name: name, Owner: typeName}
	path := typeName + "." + name

	if kind, err := v.String(); err == nil {
		fd.Kind = Kind(kind)
	} else {
		kindVal := v.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return fd, &CompileError{Field: path, Message: "kind is required", Pos: v.Pos()}
		}
		kind, err := kindVal.String()
		if err != nil {
			return fd, &CompileError{Field: path, Message: "kind must be a string", Pos: kindVal.Pos()}
		}
		fd.Kind = Kind(kind)

		if refVal := v.LookupPath(cue.ParsePath("ref")); refVal.Exists() {
			if fd.Ref, err = refVal.String(); err != nil {
				return fd, &CompileError{Field: path, Message: "ref must be a type name", Pos: refVal.Pos()}
			}
		}
		if fd.Required, err = optionalBool(v, "required"); err != nil {
			return fd, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
		}
		if fd.Unique, err = optionalBool(v, "unique"); err != nil {
			return fd, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
		}
	}

	set, ok := setters[fd.Kind]
	if !ok {
		return fd, &CompileError{Field: path, Message: fmt.Sprintf("invalid kind %q", fd.Kind), Pos: v.Pos()}
	}
	fd.set = set

	if fd.Kind.refers() && fd.Ref == "" {
		return fd, &CompileError{Field: path, Message: fmt.Sprintf("%s fields need a ref", fd.Kind), Pos: v.Pos()}
	}
	if !fd.Kind.refers() && fd.Ref != "" {
		return fd, &CompileError{Field: path, Message: "ref is only valid on reference and set fields", Pos: v.Pos()}
	}
	if fd.Kind == KindSet && fd.Unique {
		return fd, &CompileError{Field: path, Message: "set fields cannot be unique", Pos: v.Pos()}
	}
	return fd, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(name))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}

// link resolves inheritance, checks references, and freezes the catalog.
func link(raw map[string]*rawType) (*Catalog, error) {
	cat := &Catalog{
		types:    make(map[string]*TypeDescriptor, len(raw)),
		subtypes: make(map[string][]string, len(raw)),
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := resolve(name, raw, cat, map[string]bool{}); err != nil {
			return nil, err
		}
	}

	for _, name := range names {
		for cur := name; cur != ""; cur = raw[cur].extends {
			cat.subtypes[cur] = append(cat.subtypes[cur], name)
		}
	}
	for name := range cat.subtypes {
		sort.Strings(cat.subtypes[name])
	}

	for _, td := range cat.types {
		for i := range td.Fields {
			fd := &td.Fields[i]
			if !fd.Kind.refers() {
				continue
			}
			if _, ok := raw[fd.Ref]; !ok {
				return nil, &CompileError{
					Field:   td.Name + "." + fd.Name,
					Message: fmt.Sprintf("ref %q is not a declared entity", fd.Ref),
					Pos:     raw[fd.Owner].pos,
				}
			}
			fd.targets = cat.subtypes[fd.Ref]
		}
	}
	return cat, nil
}

// resolve builds the TypeDescriptor for name, parents first. visiting
// detects extends cycles.
func resolve(name string, raw map[string]*rawType, cat *Catalog, visiting map[string]bool) (*TypeDescriptor, error) {
	if td, ok := cat.types[name]; ok {
		return td, nil
	}
	rt := raw[name]
	if visiting[name] {
		return nil, &CompileError{Field: name + ".extends", Message: "inheritance cycle", Pos: rt.pos}
	}
	visiting[name] = true

	td := &TypeDescriptor{Name: name, Extends: rt.extends, index: map[string]int{}}
	if rt.extends != "" {
		if _, ok := raw[rt.extends]; !ok {
			return nil, &CompileError{
				Field:   name + ".extends",
				Message: fmt.Sprintf("unknown parent type %q", rt.extends),
				Pos:     rt.pos,
			}
		}
		parent, err := resolve(rt.extends, raw, cat, visiting)
		if err != nil {
			return nil, err
		}
		td.Fields = append(td.Fields, parent.Fields...)
		for i, fd := range td.Fields {
			td.index[fd.Name] = i
		}
	}

	for _, fd := range rt.fields {
		if _, dup := td.index[fd.Name]; dup {
			return nil, &CompileError{Field: name + "." + fd.Name, Message: "redeclares an inherited field", Pos: rt.pos}
		}
		td.index[fd.Name] = len(td.Fields)
		td.Fields = append(td.Fields, fd)
	}

	cat.types[name] = td
	return td, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
