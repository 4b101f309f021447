package migrate

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/store"
)

// Verify re-extracts the target inside q and checks it against the plan:
// per-table row counts match Expected, every retargeted identity is
// present, and no retargeted row still embeds the source identifier. In
// move mode the source must own nothing afterwards.
func Verify(ctx context.Context, schema *catalog.Schema, q store.Querier, plan *Plan) error {
	dst, err := Extract(ctx, schema, q, plan.Target)
	if err != nil {
		return verificationError(plan, "", fmt.Errorf("re-extract target: %w", err))
	}

	var problems []string
	counts := dst.Counts()
	for _, table := range slices.Sorted(maps.Keys(plan.Expected)) {
		if got, want := counts[table], plan.Expected[table]; got != want {
			problems = append(problems, fmt.Sprintf("%s has %d rows, want %d", table, got, want))
		}
	}

	for _, tr := range dst.Tables {
		want := plan.Retargeted[tr.Table.Name]
		found := map[string]bool{}
		for _, row := range tr.Rows {
			if !slices.Contains(want, row.Identity) {
				continue
			}
			found[row.Identity] = true
			if refs := row.SelfRefs(plan.Source); len(refs) > 0 {
				problems = append(problems, fmt.Sprintf("%s rowid %d [%s] still embeds %q at offset %d",
					tr.Table.Name, row.RowID, row.Label, plan.Source, refs[0].Offset))
			}
		}
		if missing := len(want) - len(found); missing > 0 {
			problems = append(problems, fmt.Sprintf("%s is missing %d retargeted rows", tr.Table.Name, missing))
		}
	}

	if plan.Mode == ModeMove {
		src, err := Extract(ctx, schema, q, plan.Source)
		if err != nil {
			return verificationError(plan, "", fmt.Errorf("re-extract source: %w", err))
		}
		if n := src.Len(); n > 0 {
			problems = append(problems, fmt.Sprintf("source still owns %d rows", n))
		}
	}

	if len(problems) > 0 {
		return verificationError(plan, strings.Join(problems, "; "), nil)
	}
	return nil
}

func verificationError(plan *Plan, detail string, err error) *Error {
	msg := "target graph does not match the plan"
	if detail != "" {
		msg += ": " + detail
	}
	return &Error{Kind: KindVerificationFailed, Message: msg, DeviceID: plan.Target, Err: err}
}
