package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/devmigrate/internal/testutil"
)

func opSummary(p *Plan) []string {
	out := make([]string, len(p.Ops))
	for i, op := range p.Ops {
		out[i] = string(op.Kind) + " " + op.Table + " " + op.Label
	}
	return out
}

func TestRetarget_SameDevice(t *testing.T) {
	g := extract(t, standardStore(t), "m1")
	_, err := Retarget(g, g, ModeCopy)
	assert.True(t, IsSameDevice(err))
}

func TestRetarget_CopyPlan(t *testing.T) {
	f := standardStore(t)
	src, dst := extract(t, f, "m1"), extract(t, f, "m2")

	plan, err := Retarget(src, dst, ModeCopy)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"delete gesture_profiles default",
		"insert button_assignments default/c83",
		"insert button_assignments default/c86",
		"insert gesture_profiles default",
		"insert app_overrides chrome",
		"insert override_actions c82",
		"insert override_actions c83",
	}, opSummary(plan))

	assert.Equal(t, map[string]int{
		"button_assignments": 3,
		"gesture_profiles":   1,
		"app_overrides":      1,
		"override_actions":   2,
	}, plan.Expected)
	assert.Len(t, plan.Retargeted["button_assignments"], 3, "the matching default/c82 row is kept")
}

func TestRetarget_InsertRewritesIdentifiers(t *testing.T) {
	f := standardStore(t)
	plan, err := Retarget(extract(t, f, "m1"), extract(t, f, "m2"), ModeCopy)
	require.NoError(t, err)

	op := plan.Ops[1]
	require.Equal(t, OpInsert, op.Kind)
	assert.NotContains(t, op.Columns, "id", "rowid alias is assigned by the store")
	assert.Equal(t, 2, op.Rewrites)

	values := map[string]any{}
	for i, c := range op.Columns {
		values[c] = op.Values[i]
	}
	assert.Equal(t, "m2", values["device_id"])
	assert.Equal(t, testutil.AssignmentPayload("m2", "c83"), values["payload"])
}

func TestRetarget_ChildInsertsReferenceParentOp(t *testing.T) {
	f := standardStore(t)
	plan, err := Retarget(extract(t, f, "m1"), extract(t, f, "m2"), ModeCopy)
	require.NoError(t, err)

	parent := plan.Ops[4]
	require.Equal(t, "app_overrides", parent.Table)
	for _, op := range plan.Ops[5:] {
		assert.Equal(t, 4, op.ParentOp)
		assert.Equal(t, "override_id", op.ParentColumn)
		assert.NotContains(t, op.Columns, "override_id")
	}
}

func TestRetarget_PhasesAreOrdered(t *testing.T) {
	f := standardStore(t)
	// A target override that collides with the source's forces deletes
	// after inserts in discovery order.
	f.AddOverride(t, "m2", "chrome", "c86")
	plan, err := Retarget(extract(t, f, "m1"), extract(t, f, "m2"), ModeCopy)
	require.NoError(t, err)

	last := 0
	for _, op := range plan.Ops {
		require.GreaterOrEqual(t, op.Kind.phase(), last, "ops out of phase order: %v", opSummary(plan))
		last = op.Kind.phase()
	}
	assert.Equal(t, []string{
		"delete gesture_profiles default",
		"delete override_actions c86",
		"delete app_overrides chrome",
	}, opSummary(plan)[:3], "children are deleted before their parent")
	for _, op := range plan.Ops {
		if op.ParentOp >= 0 {
			assert.Equal(t, "app_overrides", plan.Ops[op.ParentOp].Table)
			assert.Equal(t, OpInsert, plan.Ops[op.ParentOp].Kind)
		}
	}
}

func TestRetarget_TargetOnlyRowsUntouched(t *testing.T) {
	f := standardStore(t)
	f.AddAssignment(t, "m2", "default", "c99")

	plan, err := Retarget(extract(t, f, "m1"), extract(t, f, "m2"), ModeCopy)
	require.NoError(t, err)

	for _, op := range plan.Ops {
		assert.NotEqual(t, "default/c99", op.Label)
	}
	assert.Equal(t, 4, plan.Expected["button_assignments"])
}

func TestRetarget_RepeatPlansNothing(t *testing.T) {
	f := standardStore(t)
	plan, err := Retarget(extract(t, f, "m1"), extract(t, f, "k1"), ModeCopy)
	require.NoError(t, err)
	require.False(t, plan.Empty())

	// Hand-apply the plan's effect: a target that already equals the
	// retargeted source.
	f2 := testutil.NewStore(t, testutil.V1)
	testutil.SeedStandard(t, f2)
	for _, b := range []string{"c82", "c83", "c86"} {
		f2.AddAssignment(t, "k1", "default", b)
	}
	f2.AddGesture(t, "k1", "default", 1600)
	f2.AddOverride(t, "k1", "chrome", "c82", "c83")

	plan, err = Retarget(extract(t, f2, "m1"), extract(t, f2, "k1"), ModeCopy)
	require.NoError(t, err)
	assert.True(t, plan.Empty(), "unexpected ops: %v", opSummary(plan))
}

func TestRetarget_ChildDifferenceReplacesParent(t *testing.T) {
	f := standardStore(t)
	f.AddOverride(t, "m2", "chrome", "c82") // same parent content, one child fewer

	plan, err := Retarget(extract(t, f, "m1"), extract(t, f, "m2"), ModeCopy)
	require.NoError(t, err)
	assert.Contains(t, opSummary(plan), "delete app_overrides chrome")
	assert.Contains(t, opSummary(plan), "insert override_actions c83")
}

func TestRetarget_MovePlan(t *testing.T) {
	f := standardStore(t)
	plan, err := Retarget(extract(t, f, "m1"), extract(t, f, "m2"), ModeMove)
	require.NoError(t, err)

	assert.Equal(t, ModeMove, plan.Mode)
	assert.Equal(t, 2, plan.Count(OpDelete))
	assert.Equal(t, 0, plan.Count(OpInsert))
	assert.Equal(t, 7, plan.Count(OpUpdate))
	assert.Equal(t, 5, plan.Count(OpRelink))
	assert.Equal(t, OpRelink, plan.Ops[len(plan.Ops)-1].Kind)
	assert.Equal(t, 3, plan.Expected["button_assignments"])
}

func TestRetarget_IdentifierWidthMismatch(t *testing.T) {
	f := standardStore(t)
	f.AddDevice(t, "m10", "2b034", "MOUSE")

	_, err := Retarget(extract(t, f, "m1"), extract(t, f, "m10"), ModeCopy)
	require.Error(t, err)
	assert.Equal(t, KindIdentifierWidth, KindOf(err))

	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "button_assignments", me.Table)
	assert.Equal(t, "payload", me.Column)
	assert.Equal(t, 11, me.Offset)
	assert.Equal(t, int64(1), me.RowID)
}

func TestRetarget_TLVSlotTooNarrow(t *testing.T) {
	f := testutil.NewStore(t, testutil.V1)
	f.AddDevice(t, "m1", "2b034", "MOUSE")
	long := strings.Repeat("x", testutil.SlotWidth+1)
	f.AddDevice(t, long, "2b034", "MOUSE")
	f.AddGesture(t, "m1", "default", 800)

	_, err := Retarget(extract(t, f, "m1"), extract(t, f, long), ModeCopy)
	require.Error(t, err)
	assert.Equal(t, KindIdentifierWidth, KindOf(err))
	assert.Contains(t, err.Error(), "table=gesture_profiles")
}

func TestRetarget_TLVPadsShorterIdentifier(t *testing.T) {
	f := testutil.NewStore(t, testutil.V1)
	f.AddDevice(t, "mouse-1", "2b034", "MOUSE")
	f.AddDevice(t, "m2", "2b034", "MOUSE")
	f.AddGesture(t, "mouse-1", "default", 800)

	plan, err := Retarget(extract(t, f, "mouse-1"), extract(t, f, "m2"), ModeCopy)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)

	values := map[string]any{}
	for i, c := range plan.Ops[0].Columns {
		values[c] = plan.Ops[0].Values[i]
	}
	assert.Equal(t, testutil.GesturePayload("m2", 800), values["settings"])
}
