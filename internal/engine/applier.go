package engine

import (
	"context"
	"fmt"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/schema"
)

// Applier assigns decoded field values onto an in-memory object.
type Applier struct {
	refs schema.References
}

// NewApplier creates an applier that checks reference fields against refs.
func NewApplier(refs schema.References) *Applier {
	return &Applier{refs: refs}
}

// Apply assigns fields, in order, onto obj using td's setters. A null field
// clears the property. Fields td does not declare are unsettable.
//
// Apply stops at the first failure; obj may then be partially modified, so
// callers pass a clone of what is stored.
func (a *Applier) Apply(ctx context.Context, td *schema.TypeDescriptor, obj ir.Object, fields []ir.Field) error {
	for _, f := range fields {
		fd, ok := td.Field(f.Name)
		if !ok {
			return NewUnsettablePropertyError(f.Name, td.Name, fmt.Errorf("%s has no field %q", td.Name, f.Name))
		}
		if f.Null {
			fd.Clear(obj)
			continue
		}
		err := fd.Set(ctx, td.Name, obj, f.Value, a.refs)
		if schema.IsCoercionError(err) {
			return NewUnsettablePropertyError(f.Name, td.Name, err)
		}
		if err != nil {
			return NewGenericFailure(fmt.Errorf("set %s.%s: %w", td.Name, f.Name, err))
		}
	}
	return nil
}

// ApplyCollection edits the set field named by cc on obj. recreate starts
// from an empty set and update edits what is stored; entries then apply in
// order. Adding a member that is already there is a no-op. Removing one that
// is not there, or any unknown action, is NOT_COMMITTED.
func (a *Applier) ApplyCollection(ctx context.Context, td *schema.TypeDescriptor, obj ir.Object, cc *ir.CollectionChange) error {
	fd, ok := td.Field(cc.Property)
	if !ok {
		return NewUnsettablePropertyError(cc.Property, td.Name, fmt.Errorf("%s has no field %q", td.Name, cc.Property))
	}
	if fd.Kind != schema.KindSet {
		return NewUnsettablePropertyError(cc.Property, td.Name, fmt.Errorf("%s.%s is not a set", td.Name, cc.Property))
	}

	switch cc.Action {
	case ir.CollectionRecreate:
		fd.Empty(obj)
	case ir.CollectionUpdate:
	default:
		return NewNotCommittedError(td.Name, fmt.Errorf("unknown collection action %q", cc.Action))
	}

	for _, e := range cc.Entries {
		switch e.Action {
		case ir.CollectionUpdate:
			err := fd.AddMember(ctx, td.Name, obj, e.Type, e.GUID, a.refs)
			if schema.IsCoercionError(err) {
				return NewUnsettablePropertyError(cc.Property, td.Name, err)
			}
			if err != nil {
				return NewGenericFailure(fmt.Errorf("add %s.%s member: %w", td.Name, cc.Property, err))
			}
		case ir.CollectionDelete:
			if !fd.RemoveMember(obj, e.GUID) {
				return NewNotCommittedError(td.Name, fmt.Errorf("%s.%s has no member %s/%s", td.Name, cc.Property, e.Type, e.GUID))
			}
		default:
			return NewNotCommittedError(td.Name, fmt.Errorf("unknown entry action %q", e.Action))
		}
	}
	return nil
}
