package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/metrics"
	"github.com/roach88/medsync/internal/schema"
	"github.com/roach88/medsync/internal/store"
)

// Committer validates an applied object and writes it durably.
type Committer struct {
	objects  ObjectStore
	nodeGUID string
	clock    Clock
	metrics  *metrics.Metrics
}

// NewCommitter creates a committer that stamps writes with nodeGUID. m may
// be nil.
func NewCommitter(objects ObjectStore, nodeGUID string, clock Clock, m *metrics.Metrics) *Committer {
	return &Committer{objects: objects, nodeGUID: nodeGUID, clock: clock, metrics: m}
}

// Commit persists ent as a replicated write from recordGUID. isUpdate says
// whether ent was resolved from a stored object; it labels the write in
// errors and metrics.
//
// Required fields must be present and unique fields must not collide with
// another entity's; either failure, or any store rejection, is NOT_COMMITTED
// and leaves nothing written.
func (c *Committer) Commit(ctx context.Context, td *schema.TypeDescriptor, ent ir.Entity, recordGUID string, isUpdate bool) (ir.Entity, error) {
	op := "create"
	if isUpdate {
		op = "update"
	}

	var keys []store.NaturalKey
	for _, fd := range td.Fields {
		v, ok := ent.Fields[fd.Name]
		if !ok {
			if fd.Required {
				return ir.Entity{}, NewNotCommittedError(td.Name, fmt.Errorf("%s.%s is required", td.Name, fd.Name))
			}
			continue
		}
		if fd.Unique {
			keys = append(keys, store.NaturalKey{Scope: fd.Owner, Field: fd.Name, Value: keyValue(v)})
		}
	}

	ent.Type = td.Name
	ent.LastRecordGUID = OriginMarker(recordGUID, c.nodeGUID)
	ent.UpdatedAt = c.clock.Now()

	stored, err := c.objects.PutEntity(ctx, ent, keys)
	if err != nil {
		return ir.Entity{}, NewNotCommittedError(td.Name, fmt.Errorf("%s %s/%s: %w", op, td.Name, ent.GUID, err))
	}
	c.metrics.IncrementWrite(op)
	return stored, nil
}

// OriginMarker identifies the record and node a replicated write came from.
func OriginMarker(recordGUID, nodeGUID string) string {
	return recordGUID + "|" + nodeGUID
}

func keyValue(v ir.Value) string {
	switch val := v.(type) {
	case ir.String:
		return string(val)
	case ir.Int:
		return strconv.FormatInt(int64(val), 10)
	case ir.Bool:
		return strconv.FormatBool(bool(val))
	default:
		canonical, err := ir.MarshalCanonical(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(canonical)
	}
}
