package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/store"
	"github.com/roach88/medsync/internal/testutil"
)

func TestResolver_MissIsFreshObject(t *testing.T) {
	r := NewResolver(setupTestStore(t))

	res, err := r.Resolve(context.Background(), "Concept", "c1")
	require.NoError(t, err)
	assert.False(t, res.Exists)
	assert.Equal(t, "Concept", res.Entity.Type)
	assert.Equal(t, "c1", res.Entity.GUID)
	assert.NotNil(t, res.Entity.Fields)
	assert.Empty(t, res.Entity.Fields)
}

func TestResolver_Hit(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	_, err := st.PutEntity(ctx, ir.Entity{Type: "Tribe", GUID: "t1", Fields: ir.Object{"name": ir.String("Luo")}}, nil)
	require.NoError(t, err)

	res, err := NewResolver(st).Resolve(ctx, "Tribe", "t1")
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.Equal(t, ir.String("Luo"), res.Entity.Fields["name"])

	// Same guid under another type is a different object.
	res, err = NewResolver(st).Resolve(ctx, "Concept", "t1")
	require.NoError(t, err)
	assert.False(t, res.Exists)
}

type brokenObjects struct {
	ObjectStore
}

func (brokenObjects) GetEntity(context.Context, string, string) (ir.Entity, error) {
	return ir.Entity{}, errors.New("no such table: entities")
}

func TestResolver_StoreFault(t *testing.T) {
	_, err := NewResolver(brokenObjects{}).Resolve(context.Background(), "Concept", "c1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestApplier_AppliesInOrder(t *testing.T) {
	cat := defaultCatalog(t)
	td, err := cat.Type("Concept")
	require.NoError(t, err)

	obj := ir.Object{}
	err = NewApplier(nil).Apply(context.Background(), td, obj, []ir.Field{
		F("name", "first"),
		F("retired", "true"),
		F("name", "second"),
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"name": ir.String("second"), "retired": ir.Bool(true)}, obj)
}

func TestApplier_StopsAtFirstFailure(t *testing.T) {
	cat := defaultCatalog(t)
	td, err := cat.Type("Location")
	require.NoError(t, err)

	obj := ir.Object{}
	err = NewApplier(nil).Apply(context.Background(), td, obj, []ir.Field{
		F("name", "Kisumu"),
		F("latitude", "north-ish"),
		F("longitude", "34.76"),
	})
	require.True(t, IsItemError(err, ir.ErrUnsettableProperty))
	assert.Equal(t, ir.Object{"name": ir.String("Kisumu")}, obj)
}

func TestApplier_ReferenceLookupFaultIsGeneric(t *testing.T) {
	cat := defaultCatalog(t)
	td, err := cat.Type("PersonName")
	require.NoError(t, err)

	err = NewApplier(failingRefs{}).Apply(context.Background(), td, ir.Object{}, []ir.Field{F("person", "p1")})
	assert.True(t, IsItemError(err, ir.ErrGenericFailure))
}

type failingRefs struct{}

func (failingRefs) EntityExists(context.Context, string, ...string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestCommitter_UniqueKeysScopedToOwner(t *testing.T) {
	st := setupTestStore(t)
	cat := defaultCatalog(t)
	ctx := context.Background()
	c := NewCommitter(st, testNode, testutil.NewDeterministicClock(), nil)

	concept, err := cat.Type("Concept")
	require.NoError(t, err)
	tribe, err := cat.Type("Tribe")
	require.NoError(t, err)

	_, err = c.Commit(ctx, concept, ir.Entity{GUID: "x1", Fields: ir.Object{"name": ir.String("Luo")}}, "r1", false)
	require.NoError(t, err)

	// Same name on a different type does not collide.
	stored, err := c.Commit(ctx, tribe, ir.Entity{GUID: "x2", Fields: ir.Object{"name": ir.String("Luo")}}, "r1", false)
	require.NoError(t, err)
	assert.Equal(t, "Tribe", stored.Type)
	assert.Equal(t, "r1|node-a", stored.LastRecordGUID)
	assert.True(t, stored.UpdatedAt.Equal(testutil.Epoch))

	ent, err := st.FindByNaturalKey(ctx, "Tribe", "name", "Luo")
	require.NoError(t, err)
	assert.Equal(t, "x2", ent.GUID)
}

func TestCommitter_LabelsCreateAndUpdate(t *testing.T) {
	st := setupTestStore(t)
	cat := defaultCatalog(t)
	ctx := context.Background()
	c := NewCommitter(st, testNode, testutil.NewDeterministicClock(), nil)
	concept, err := cat.Type("Concept")
	require.NoError(t, err)

	_, err = c.Commit(ctx, concept, ir.Entity{GUID: "x1", Fields: ir.Object{"name": ir.String("Luo")}}, "r1", false)
	require.NoError(t, err)
	_, err = c.Commit(ctx, concept, ir.Entity{GUID: "x2", Fields: ir.Object{"name": ir.String("Kikuyu")}}, "r1", false)
	require.NoError(t, err)

	_, err = c.Commit(ctx, concept, ir.Entity{GUID: "x2", Fields: ir.Object{"name": ir.String("Luo")}}, "r2", true)
	require.Error(t, err)
	assert.True(t, IsItemError(err, ir.ErrNotCommitted))
	assert.Contains(t, err.Error(), "update Concept/x2")

	_, err = c.Commit(ctx, concept, ir.Entity{GUID: "x3", Fields: ir.Object{"name": ir.String("Luo")}}, "r2", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create Concept/x3")
}

func TestItemProcessor_KeepsKeyAndContent(t *testing.T) {
	st := setupTestStore(t)
	p := NewItemProcessor(defaultCatalog(t), st, testNode, testutil.NewDeterministicClock(), nil, discardLogger())
	item := testutil.Item("r1", 0, Change("Concept", "c1", F("name", "WEIGHT")))

	out := p.Process(context.Background(), "r1", item)

	assert.Equal(t, ir.ImportItem{Key: item.Key, Content: item.Content, State: ir.ItemSynchronized}, out)
}

func TestOriginMarker(t *testing.T) {
	assert.Equal(t, "rec-9|node-b", OriginMarker("rec-9", "node-b"))
}
