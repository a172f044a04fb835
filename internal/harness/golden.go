package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/medsync/internal/ir"
)

// Snapshot renders verdicts as canonical JSON for golden comparison.
// Item keys and contents are replaced by item positions and timestamps are
// left out, so the snapshot depends only on verdict semantics.
func Snapshot(scenarioName string, verdicts []ir.ImportRecord) ([]byte, error) {
	list := make([]any, len(verdicts))
	for i, v := range verdicts {
		items := make([]any, len(v.Items))
		for j, item := range v.Items {
			entry := map[string]any{
				"index": j,
				"state": string(item.State),
			}
			if item.ErrorCode != "" {
				entry["error_code"] = string(item.ErrorCode)
			}
			if len(item.ErrorArgs) > 0 {
				entry["error_args"] = item.ErrorArgs
			}
			items[j] = entry
		}
		list[i] = map[string]any{
			"guid":        v.GUID,
			"state":       string(v.State),
			"retry_count": v.RetryCount,
			"items":       items,
		}
	}

	return ir.MarshalCanonical(map[string]any{
		"scenario": scenarioName,
		"verdicts": list,
	})
}

// RunWithGolden executes a scenario and compares its verdicts against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot, err := Snapshot(scenario.Name, result.Verdicts)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)

	return result, nil
}
