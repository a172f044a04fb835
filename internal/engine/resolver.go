package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/store"
)

// Resolution is the local object a change applies to.
type Resolution struct {
	Entity ir.Entity
	Exists bool // false: Entity is a fresh, empty object of the requested type
}

// Resolver finds the local object a change descriptor targets.
type Resolver struct {
	objects ObjectStore
}

// NewResolver creates a resolver over objects.
func NewResolver(objects ObjectStore) *Resolver {
	return &Resolver{objects: objects}
}

// Resolve returns the existing (typeName, guid) entity, or a new empty one
// when none exists. A miss is not an error; only store faults are.
func (r *Resolver) Resolve(ctx context.Context, typeName, guid string) (Resolution, error) {
	ent, err := r.objects.GetEntity(ctx, typeName, guid)
	switch {
	case err == nil:
		if ent.Fields == nil {
			ent.Fields = ir.Object{}
		}
		return Resolution{Entity: ent, Exists: true}, nil
	case errors.Is(err, store.ErrNotFound):
		return Resolution{Entity: ir.Entity{Type: typeName, GUID: guid, Fields: ir.Object{}}}, nil
	default:
		return Resolution{}, fmt.Errorf("resolve %s/%s: %w", typeName, guid, err)
	}
}
