package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides store access for assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the store.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var msgs []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Store == nil {
			err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
		} else {
			switch assertion.Type {
			case AssertEntity:
				err = assertEntity(actx.Ctx, actx.Store, assertion)
			case AssertEntityAbsent:
				err = assertEntityAbsent(actx.Ctx, actx.Store, assertion)
			case AssertEntityCount:
				err = assertEntityCount(actx.Ctx, actx.Store, assertion)
			case AssertVerdict:
				err = assertVerdict(actx.Ctx, actx.Store, assertion)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}

		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}

	return msgs
}

// assertEntity checks the entity exists and holds every expected field
// (subset semantics). Keys are checked in sorted order for stable messages.
func assertEntity(ctx context.Context, st *store.Store, a Assertion) error {
	ent, err := st.GetEntity(ctx, a.Entity, a.GUID)
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("%s/%s to exist", a.Entity, a.GUID),
			Actual:   "entity not found",
		}
	}
	if err != nil {
		return fmt.Errorf("entity %s/%s: %w", a.Entity, a.GUID, err)
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := a.Expect[key]
		v, ok := ent.Fields[key]
		if !ok {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("%s/%s field %q = %q", a.Entity, a.GUID, key, want),
				Actual:   fmt.Sprintf("field %q not set (fields: %v)", key, ent.Fields.SortedKeys()),
			}
		}
		if got := scalarText(v); got != want {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("%s/%s field %q = %q", a.Entity, a.GUID, key, want),
				Actual:   fmt.Sprintf("field %q = %q", key, got),
			}
		}
	}
	return nil
}

func assertEntityAbsent(ctx context.Context, st *store.Store, a Assertion) error {
	_, err := st.GetEntity(ctx, a.Entity, a.GUID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("entity %s/%s: %w", a.Entity, a.GUID, err)
	}
	return &AssertionError{
		Type:     AssertEntityAbsent,
		Expected: fmt.Sprintf("no %s/%s", a.Entity, a.GUID),
		Actual:   "entity exists",
	}
}

func assertEntityCount(ctx context.Context, st *store.Store, a Assertion) error {
	var n int
	if a.Entity == "" {
		count, err := st.CountEntities(ctx)
		if err != nil {
			return fmt.Errorf("count entities: %w", err)
		}
		n = count
	} else {
		ents, err := st.ListEntities(ctx, a.Entity)
		if err != nil {
			return fmt.Errorf("list %s: %w", a.Entity, err)
		}
		n = len(ents)
	}

	if n != a.Count {
		what := "entities"
		if a.Entity != "" {
			what = a.Entity + " entities"
		}
		return &AssertionError{
			Type:     AssertEntityCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", n, what),
		}
	}
	return nil
}

func assertVerdict(ctx context.Context, st *store.Store, a Assertion) error {
	rec, err := st.GetImportRecord(ctx, a.Record)
	if errors.Is(err, store.ErrNotFound) {
		return &AssertionError{
			Type:     AssertVerdict,
			Expected: fmt.Sprintf("record %s stored as %s", a.Record, a.State),
			Actual:   "no stored verdict",
		}
	}
	if err != nil {
		return fmt.Errorf("verdict %s: %w", a.Record, err)
	}
	if string(rec.State) != a.State {
		return &AssertionError{
			Type:     AssertVerdict,
			Expected: fmt.Sprintf("record %s stored as %s", a.Record, a.State),
			Actual:   string(rec.State),
		}
	}
	return nil
}

// scalarText renders a stored value the way scenarios spell it.
func scalarText(v ir.Value) string {
	switch val := v.(type) {
	case ir.String:
		return string(val)
	case ir.Int:
		return strconv.FormatInt(int64(val), 10)
	case ir.Bool:
		return strconv.FormatBool(bool(val))
	case ir.Null:
		return "null"
	default:
		data, err := ir.MarshalValue(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
