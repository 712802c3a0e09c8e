package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fasttrack/services/delivery/internal/localtime"
	"example.com/fasttrack/services/delivery/internal/models"
)

func strptr(s string) *string { return &s }

func localTime(hour, min int) time.Time {
	return time.Date(2025, 9, 14, hour, min, 0, 0, localtime.Zone)
}

func TestNormalizeLSPLabel(t *testing.T) {
	date := strptr("14 Sep 25")

	require.Equal(t, "ACME Logistics", NormalizeLSPLabel(strptr("ACME Logistics"), date))
	require.Equal(t, "Subcon", NormalizeLSPLabel(strptr("SUBCON"), date))
	require.Equal(t, "Subcon", NormalizeLSPLabel(strptr("subcon"), nil))
	require.Equal(t, "NO_LSP", NormalizeLSPLabel(strptr("#N/A"), date))
	require.Equal(t, "NO_LSP", NormalizeLSPLabel(strptr("NO LSP"), date))
	require.Equal(t, "NO_LSP", NormalizeLSPLabel(nil, date))
	require.Equal(t, "NO_LSP_NO_PLAN_MOS_DATE", NormalizeLSPLabel(nil, nil))
	require.Equal(t, "NO_LSP_NO_PLAN_MOS_DATE", NormalizeLSPLabel(strptr(""), strptr("  ")))
}

func TestBuildPointRows(t *testing.T) {
	now := localTime(9, 30)
	date := strptr("14 Sep 25")

	notes := []models.DeliveryNote{
		{DNNumber: "JP25011200001", LSP: strptr("ACME"), PlanMOSDate: date, StatusDelivery: strptr("POD")},
		{DNNumber: "JP25011200002", LSP: strptr("ACME"), PlanMOSDate: date, StatusDelivery: strptr("No Status")},
		{DNNumber: "JP25011200003", LSP: strptr("ACME"), PlanMOSDate: date, StatusDelivery: strptr("CANCEL MOS")},
		{DNNumber: "JP25011200004", LSP: strptr("ACME"), PlanMOSDate: date, StatusDelivery: strptr("REPLAN TO 15 Sep 25")},
		{DNNumber: "JP25011200005", LSP: strptr("OTHER"), PlanMOSDate: date},
	}

	rows := BuildPointRows(now, notes)
	require.Len(t, rows, 2)

	acme := rows[0]
	require.Equal(t, "ACME", acme.LSP)
	require.Equal(t, "14 Sep 25", acme.PlanMOSDate)
	// POD and No Status stay in the pipeline, CANCEL MOS and REPLAN fall out.
	require.Equal(t, 2, acme.TotalDN)
	// Only POD and the excluded pair carry a real status.
	require.Equal(t, 3, acme.StatusNotEmpty)
	require.Equal(t, localTime(9, 0), acme.RecordedAt)

	other := rows[1]
	require.Equal(t, "OTHER", other.LSP)
	require.Equal(t, 1, other.TotalDN)
	require.Equal(t, 0, other.StatusNotEmpty)
}

func recordAt(dn string, t time.Time) models.DeliveryNoteRecord {
	return models.DeliveryNoteRecord{DNNumber: dn, Status: "updated", CreatedAt: t.UTC()}
}

func TestBuildHourlySeriesCarryForward(t *testing.T) {
	now := localTime(6, 45)
	lspByDN := map[string]string{
		"JP25011200001": "ACME",
		"JP25011200002": "ACME",
	}
	records := []models.DeliveryNoteRecord{
		recordAt("JP25011200001", localTime(1, 10)),
		recordAt("JP25011200002", localTime(3, 20)),
		// A later record for the same DN must not double count.
		recordAt("JP25011200002", localTime(3, 50)),
	}

	rows := BuildHourlySeries(now, records, lspByDN)
	require.Len(t, rows, 7) // hours 00..06 for one LSP

	counts := make([]int, 0, len(rows))
	for _, row := range rows {
		require.Equal(t, "ACME", row.LSP)
		require.Equal(t, "2025-09-14", row.BucketDate)
		counts = append(counts, row.UpdatedDN)
	}
	// Hour 0 empty, DN1 lands in hour 1, DN2 in hour 3, then carry forward.
	require.Equal(t, []int{0, 1, 1, 2, 2, 2, 2}, counts)

	// Monotone within the day.
	for i := 1; i < len(counts); i++ {
		require.GreaterOrEqual(t, counts[i], counts[i-1])
	}
}

func TestBuildHourlySeriesMidnightReset(t *testing.T) {
	now := localTime(0, 30)
	lspByDN := map[string]string{"JP25011200001": "ACME"}
	// Only activity from the previous day.
	records := []models.DeliveryNoteRecord{
		recordAt("JP25011200001", localTime(23, 15).AddDate(0, 0, -1)),
	}

	rows := BuildHourlySeries(now, records, lspByDN)
	require.Len(t, rows, 1)
	require.Equal(t, 0, rows[0].UpdatedDN)
	require.Equal(t, "2025-09-14", rows[0].BucketDate)
}

func TestBuildHourlySeriesSameDayOnly(t *testing.T) {
	now := localTime(2, 0)
	lspByDN := map[string]string{
		"JP25011200001": "ACME",
		"JP25011200002": "ACME",
	}
	records := []models.DeliveryNoteRecord{
		recordAt("JP25011200001", localTime(1, 0)),
		// Unknown DNs are ignored.
		recordAt("JP25011299999", localTime(1, 5)),
		// Tomorrow's records never leak in.
		recordAt("JP25011200002", localTime(1, 0).AddDate(0, 0, 1)),
	}

	rows := BuildHourlySeries(now, records, lspByDN)
	counts := make([]int, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, row.UpdatedDN)
	}
	require.Equal(t, []int{0, 1, 1}, counts)
}
