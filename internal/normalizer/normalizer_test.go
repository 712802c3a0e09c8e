package normalizer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDNNumber(t *testing.T) {
	// Full-width digits and letters fold to ASCII, zero-width chars vanish.
	require.Equal(t, "JP25011200001", NormalizeDNNumber(" ｊｐ２５０１１２００００１ "))
	require.Equal(t, "ABC12345678901", NormalizeDNNumber("abc12345678901\u200b"))
	require.Equal(t, "", NormalizeDNNumber("  \ufeff "))
}

func TestValidDNNumber(t *testing.T) {
	require.True(t, ValidDNNumber("JP25011200001"))
	require.True(t, ValidDNNumber("ABCDE1234567890123456"))
	// Legacy and short-form numbers are accepted; only emptiness rejects.
	require.True(t, ValidDNNumber("A-1"))
	require.True(t, ValidDNNumber("8000012345"))
	require.False(t, ValidDNNumber(""))
}

func TestNormalizeStatusDelivery(t *testing.T) {
	require.Equal(t, "No Status", NormalizeStatusDelivery(""))
	require.Equal(t, "No Status", NormalizeStatusDelivery("   "))
	require.Equal(t, "POD", NormalizeStatusDelivery("pod"))
	require.Equal(t, "ARRIVED AT WH", NormalizeStatusDelivery("arrived at wh"))
	require.Equal(t, "ARRIVED AT WH", NormalizeStatusDelivery("Arrive at Warehouse"))
	require.Equal(t, "DEPARTED FROM WH", NormalizeStatusDelivery("Transporting From WH"))
	require.Equal(t, "DEPARTED FROM XD/PM", NormalizeStatusDelivery("transporting from xd/pm"))
	// Unknown values keep their collapsed form.
	require.Equal(t, "WAITING PIC FEEDBACK", NormalizeStatusDelivery("WAITING  PIC   FEEDBACK"))
}

func TestStatusTimestampTriggers(t *testing.T) {
	require.True(t, IsArrivalStatus("ARRIVED AT SITE"))
	require.True(t, IsArrivalStatus("arrived at xd/pm"))
	require.False(t, IsArrivalStatus("ARRIVED AT WH"))
	require.False(t, IsArrivalStatus("POD"))

	require.True(t, IsDepartureStatus("DEPARTED FROM WH"))
	require.True(t, IsDepartureStatus("TRANSPORTING FROM XD/PM"))
	require.False(t, IsDepartureStatus("POD"))
	require.False(t, IsDepartureStatus("ARRIVED AT SITE"))
}

func TestNormalizePlanDate(t *testing.T) {
	require.Equal(t, "05 Jan 25", NormalizePlanDate("5 Jan 2025"))
	require.Equal(t, "05 Jan 25", NormalizePlanDate("5-Jan-2025"))
	require.Equal(t, "14 Sep 25", NormalizePlanDate("14 Sept 2025"))
	require.Equal(t, "03 Oct 25", NormalizePlanDate("3 Okt 2025"))
	require.Equal(t, "07 Feb 25", NormalizePlanDate("2025/02/07"))
	// Unparseable dates pass through trimmed.
	require.Equal(t, "next week", NormalizePlanDate(" next week "))
}

func TestNormalizeRow(t *testing.T) {
	cols := []string{"dn_number", "du_id", "status_delivery", "plan_mos_date", "lsp"}

	row, reject := NormalizeRow("Plan MOS W36", 4, []string{"jp25011200001", "DU-1", "pod", "5 Jan 2025", "  "}, cols)
	require.Empty(t, reject)
	require.Equal(t, "JP25011200001", row.DNNumber)
	require.Equal(t, "DU-1", *row.Fields["du_id"])
	require.Equal(t, "POD", *row.Fields["status_delivery"])
	require.Equal(t, "05 Jan 25", *row.Fields["plan_mos_date"])
	require.Nil(t, row.Fields["lsp"])
	require.Equal(t, "Plan MOS W36", *row.Fields["gs_sheet"])
	require.Equal(t, "4", *row.Fields["gs_row"])
}

func TestNormalizeRowRejections(t *testing.T) {
	cols := []string{"dn_number", "du_id"}

	_, reject := NormalizeRow("Plan MOS W36", 4, []string{"", "DU-1"}, cols)
	require.Equal(t, RejectMissingNumber, reject)

	_, reject = NormalizeRow("Plan MOS W36", 5, []string{"  \uFEFF ", "DU-1"}, cols)
	require.Equal(t, RejectMissingNumber, reject)

	_, reject = NormalizeRow("Plan MOS W36", 6, []string{"JP25011200001", ""}, cols)
	require.Equal(t, RejectEmptyPayload, reject)
}

func TestNormalizeRowAcceptsLegacyNumbers(t *testing.T) {
	cols := []string{"dn_number", "du_id"}

	row, reject := NormalizeRow("Plan MOS W36", 7, []string{"a-1", "DU-7"}, cols)
	require.Empty(t, reject)
	require.Equal(t, "A-1", row.DNNumber)
}

func TestNormalizeRowShortValues(t *testing.T) {
	// Rows shorter than the column list pad with blanks.
	cols := []string{"dn_number", "du_id", "status_delivery"}
	row, reject := NormalizeRow("Plan MOS W36", 9, []string{"JP25011200001", "DU-9"}, cols)
	require.Empty(t, reject)
	require.Nil(t, row.Fields["status_delivery"])
}
