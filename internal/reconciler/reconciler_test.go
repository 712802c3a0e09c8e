package reconciler

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fasttrack/services/delivery/internal/normalizer"
)

func strptr(s string) *string { return &s }

func feedRow(dn, sheet string, rowIndex int, fields map[string]*string) normalizer.Row {
	if fields == nil {
		fields = map[string]*string{}
	}
	sheetName := sheet
	idx := strconv.Itoa(rowIndex)
	fields["gs_sheet"] = &sheetName
	fields["gs_row"] = &idx
	return normalizer.Row{DNNumber: dn, Fields: fields, Sheet: sheet, RowIndex: rowIndex}
}

func TestBuildPlanCreates(t *testing.T) {
	rows := []normalizer.Row{
		feedRow("JP25011200001", "Plan MOS W36", 4, map[string]*string{"du_id": strptr("DU-1")}),
		feedRow("JP25011200002", "Plan MOS W36", 5, map[string]*string{"du_id": strptr("DU-2")}),
	}

	plan := BuildPlan(rows, map[string]StoredNote{})
	require.Len(t, plan.Creates, 2)
	require.Empty(t, plan.Updates)
	require.Empty(t, plan.SoftDeletes)
	require.Equal(t, "JP25011200001", plan.Creates[0].DNNumber)
}

func TestBuildPlanLastWinsDedupe(t *testing.T) {
	rows := []normalizer.Row{
		feedRow("JP25011200001", "Plan MOS W36", 4, map[string]*string{"du_id": strptr("first")}),
		feedRow("JP25011200001", "Plan MOS W36", 6, map[string]*string{"du_id": strptr("last")}),
	}

	plan := BuildPlan(rows, map[string]StoredNote{})
	require.Equal(t, 1, plan.Duplicates)
	require.Len(t, plan.Creates, 1)
	require.Equal(t, "last", *plan.Creates[0].Fields["du_id"])
	require.Equal(t, 6, plan.Creates[0].RowIndex)
}

func TestBuildPlanChangedFieldsOnly(t *testing.T) {
	rows := []normalizer.Row{
		feedRow("JP25011200001", "Plan MOS W36", 4, map[string]*string{
			"du_id":           strptr("DU-1"),
			"status_delivery": strptr("POD"),
		}),
	}
	stored := map[string]StoredNote{
		"JP25011200001": {
			IsDeleted: "N",
			Fields: map[string]*string{
				"du_id":           strptr("DU-1"),
				"status_delivery": strptr("ARRIVED AT SITE"),
				"gs_sheet":        strptr("Plan MOS W36"),
				"gs_row":          strptr("4"),
			},
		},
	}

	plan := BuildPlan(rows, stored)
	require.Len(t, plan.Updates, 1)
	change := plan.Updates[0]
	require.True(t, change.ContentChanged)
	require.Len(t, change.Fields, 1)
	require.Equal(t, "POD", *change.Fields["status_delivery"])
}

func TestBuildPlanUnchanged(t *testing.T) {
	rows := []normalizer.Row{
		feedRow("JP25011200001", "Plan MOS W36", 4, map[string]*string{"du_id": strptr("DU-1")}),
	}
	stored := map[string]StoredNote{
		"JP25011200001": {
			IsDeleted: "N",
			Fields: map[string]*string{
				// Trailing whitespace and nil vs empty both count as equal.
				"du_id":    strptr(" DU-1 "),
				"lsp":      nil,
				"gs_sheet": strptr("Plan MOS W36"),
				"gs_row":   strptr("4"),
			},
		},
	}

	plan := BuildPlan(rows, stored)
	require.Empty(t, plan.Updates)
	require.Equal(t, []string{"JP25011200001"}, plan.Unchanged)
}

func TestBuildPlanPositionMoveIsNotContentChange(t *testing.T) {
	rows := []normalizer.Row{
		feedRow("JP25011200001", "Plan MOS W37", 5, map[string]*string{"du_id": strptr("DU-1")}),
	}
	stored := map[string]StoredNote{
		"JP25011200001": {
			IsDeleted: "N",
			Fields: map[string]*string{
				"du_id":    strptr("DU-1"),
				"gs_sheet": strptr("Plan MOS W36"),
				"gs_row":   strptr("4"),
			},
		},
	}

	plan := BuildPlan(rows, stored)
	require.Len(t, plan.Updates, 1)
	change := plan.Updates[0]
	require.False(t, change.ContentChanged)
	require.Equal(t, "Plan MOS W37", *change.Fields["gs_sheet"])
	require.Equal(t, "5", *change.Fields["gs_row"])
}

func TestBuildPlanSoftDeleteAndRestore(t *testing.T) {
	rows := []normalizer.Row{
		feedRow("JP25011200001", "Plan MOS W36", 4, map[string]*string{"du_id": strptr("DU-1")}),
	}
	stored := map[string]StoredNote{
		"JP25011200001": {
			IsDeleted: "Y",
			Fields: map[string]*string{
				"du_id":    strptr("DU-1"),
				"gs_sheet": strptr("Plan MOS W36"),
				"gs_row":   strptr("4"),
			},
		},
		"JP25011200002": {
			IsDeleted: "N",
			Fields:    map[string]*string{"du_id": strptr("DU-2")},
		},
		"JP25011200003": {
			// Already gone, must not be deleted again.
			IsDeleted: "Y",
			Fields:    map[string]*string{},
		},
	}

	plan := BuildPlan(rows, stored)
	require.Len(t, plan.Updates, 1)
	require.True(t, plan.Updates[0].Restore)
	require.Equal(t, []string{"JP25011200002"}, plan.SoftDeletes)
}

func TestBuildPlanRerunOfIdenticalFeedIsNoop(t *testing.T) {
	rows := []normalizer.Row{
		feedRow("JP25011200001", "Plan MOS W36", 4, map[string]*string{"du_id": strptr("DU-1")}),
		feedRow("JP25011200002", "Plan MOS W36", 5, map[string]*string{"du_id": strptr("DU-2"), "status_delivery": strptr("POD")}),
	}

	first := BuildPlan(rows, map[string]StoredNote{})
	require.Len(t, first.Creates, 2)

	// Persisting the first plan and feeding the same rows again must plan
	// nothing but no-ops.
	stored := make(map[string]StoredNote, len(first.Creates))
	for _, c := range first.Creates {
		stored[c.DNNumber] = StoredNote{IsDeleted: "N", Fields: c.Fields}
	}

	second := BuildPlan(rows, stored)
	require.Empty(t, second.Creates)
	require.Empty(t, second.Updates)
	require.Empty(t, second.SoftDeletes)
	require.Len(t, second.Unchanged, 2)
}

func TestBuildPlanContactProtection(t *testing.T) {
	rows := []normalizer.Row{
		feedRow("JP25011200001", "Plan MOS W36", 4, map[string]*string{
			"driver_contact_number": strptr("0800-feed"),
		}),
	}
	stored := map[string]StoredNote{
		"JP25011200001": {
			IsDeleted:   "N",
			UpdateCount: 2,
			Fields: map[string]*string{
				"driver_contact_number": strptr("0800-manual"),
				"gs_sheet":              strptr("Plan MOS W36"),
				"gs_row":                strptr("4"),
			},
		},
	}

	plan := BuildPlan(rows, stored)
	require.Len(t, plan.Updates, 1)
	change := plan.Updates[0]
	require.NotContains(t, change.Fields, "driver_contact_number")
	require.NotNil(t, change.WithheldContact)
	require.Equal(t, "0800-manual", *change.WithheldContact)
}

func TestBuildPlanContactFollowsFeedWithoutManualEdits(t *testing.T) {
	rows := []normalizer.Row{
		feedRow("JP25011200001", "Plan MOS W36", 4, map[string]*string{
			"driver_contact_number": strptr("0800-feed"),
		}),
	}
	stored := map[string]StoredNote{
		"JP25011200001": {
			IsDeleted:   "N",
			UpdateCount: 0,
			Fields: map[string]*string{
				"driver_contact_number": strptr("0800-old"),
				"gs_sheet":              strptr("Plan MOS W36"),
				"gs_row":                strptr("4"),
			},
		},
	}

	plan := BuildPlan(rows, stored)
	require.Len(t, plan.Updates, 1)
	require.Equal(t, "0800-feed", *plan.Updates[0].Fields["driver_contact_number"])
	require.Nil(t, plan.Updates[0].WithheldContact)
}
