package extraction

import (
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// applyRepair hands the isolated span to a general-purpose JSON repairer. It
// is the last resort before the cascade gives up. When the span never closed,
// the repairer completes the truncated tail with values of its own, so the
// document is marked synthesized.
func applyRepair(in Input) ([]byte, bool, error) {
	repaired, err := jsonrepair.JSONRepair(in.Span)
	if err != nil {
		return nil, false, fmt.Errorf("json repair failed: %w", err)
	}
	doc, synthesized, err := ensureRecords([]byte(repaired), in.Schema)
	if err != nil {
		return nil, false, err
	}
	return doc, synthesized || objectEnd(in.Span) < 0, nil
}
