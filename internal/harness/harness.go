package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/medsync/internal/engine"
	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/payload"
	"github.com/roach88/medsync/internal/schema"
	"github.com/roach88/medsync/internal/store"
	"github.com/roach88/medsync/internal/testutil"
)

// DefaultNodeGUID is the receiving node's identity when a scenario names none.
const DefaultNodeGUID = "test-node"

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a frozen clock.
// Execution flow:
// 1. Load the catalog (built-in or scenario.Schema)
// 2. Deliver each record step to engine.Ingestor.ProcessRecord
// 3. Check each step's expect clause against the returned verdict
// 4. Evaluate assertions against the store
//
// A non-nil error means the scenario could not be run at all; failed
// expectations are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	catalog, err := schema.Load(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	nodeGUID := scenario.NodeGUID
	if nodeGUID == "" {
		nodeGUID = DefaultNodeGUID
	}

	ing := engine.New(st, catalog,
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithNodeGUID(nodeGUID),
		engine.WithAcceptTypes(scenario.AcceptTypes...),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in tests
	)

	ctx := context.Background()
	result := NewResult()
	delivered := make(map[string]ir.SyncRecord)

	for i, step := range scenario.Records {
		rec, err := buildRecord(step, delivered)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		delivered[rec.GUID] = rec

		verdict, err := ing.ProcessRecord(ctx, rec)
		if err != nil {
			result.AddError(fmt.Sprintf("records[%d] (%s): %v", i, rec.GUID, err))
		}
		result.Verdicts = append(result.Verdicts, verdict)

		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, verdict) {
				result.AddError(fmt.Sprintf("records[%d] (%s): %s", i, rec.GUID, msg))
			}
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// buildRecord turns a step into the sync record to deliver.
func buildRecord(step RecordStep, delivered map[string]ir.SyncRecord) (ir.SyncRecord, error) {
	if step.Replay != "" {
		rec, ok := delivered[step.Replay]
		if !ok {
			return ir.SyncRecord{}, fmt.Errorf("replay of undelivered record %q", step.Replay)
		}
		rec.RetryCount++
		return rec, nil
	}

	items := make([]ir.SyncItem, 0, len(step.Items))
	for j, item := range step.Items {
		if item.Raw != nil {
			items = append(items, testutil.RawItem(fmt.Sprintf("raw-%d", j), *item.Raw))
			continue
		}
		content, err := payload.Encode(item.Change.descriptor())
		if err != nil {
			return ir.SyncRecord{}, fmt.Errorf("items[%d]: %w", j, err)
		}
		items = append(items, ir.SyncItem{Key: ir.ItemKey(step.GUID, j, content), Content: content})
	}

	rec := testutil.RecordOf(step.GUID, items...)
	rec.RetryCount = step.RetryCount
	return rec, nil
}

func (c *ChangeStep) descriptor() ir.ChangeDescriptor {
	fields := []ir.Field(c.Fields)
	if fields == nil {
		fields = []ir.Field{}
	}
	return ir.ChangeDescriptor{Type: c.Type, GUID: c.GUID, Fields: fields}
}

// checkExpect compares a verdict against its expect clause.
func checkExpect(expect *ExpectClause, verdict ir.ImportRecord) []string {
	var errs []string
	if string(verdict.State) != expect.State {
		errs = append(errs, fmt.Sprintf("expected state %s, got %s", expect.State, verdict.State))
	}

	if expect.Items != nil {
		if len(expect.Items) != len(verdict.Items) {
			errs = append(errs, fmt.Sprintf("expected %d items, got %d", len(expect.Items), len(verdict.Items)))
			return errs
		}
		for j, want := range expect.Items {
			if got := string(verdict.Items[j].State); got != want {
				errs = append(errs, fmt.Sprintf("items[%d]: expected state %s, got %s", j, want, got))
			}
		}
	}

	if expect.Codes != nil {
		if len(expect.Codes) != len(verdict.Items) {
			errs = append(errs, fmt.Sprintf("expected %d codes, got %d items", len(expect.Codes), len(verdict.Items)))
			return errs
		}
		for j, want := range expect.Codes {
			if got := string(verdict.Items[j].ErrorCode); got != want {
				errs = append(errs, fmt.Sprintf("items[%d]: expected code %q, got %q", j, want, got))
			}
		}
	}
	return errs
}
