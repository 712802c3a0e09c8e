package normalizer

import (
	"strconv"
	"strings"
	"time"
)

// NoStatusLabel is the defined fallback for blank or unknown delivery
// statuses. Every input maps to exactly one label; this is the catch-all.
const NoStatusLabel = "No Status"

// StandardStatusDelivery is the canonical delivery-status vocabulary in
// pipeline order.
var StandardStatusDelivery = []string{
	"ARRIVED AT WH",
	"DEPARTED FROM WH",
	"ARRIVED AT XD/PM",
	"DEPARTED FROM XD/PM",
	"ARRIVED AT SITE",
	"POD",
}

// statusLookup maps lower-cased inputs (canonical values plus known
// synonyms) to their canonical form.
var statusLookup = map[string]string{}

func init() {
	for _, canonical := range StandardStatusDelivery {
		statusLookup[strings.ToLower(canonical)] = canonical
	}
	for synonym, canonical := range map[string]string{
		"Arrive at Warehouse":     "ARRIVED AT WH",
		"TRANSPORTING FROM WH":    "DEPARTED FROM WH",
		"TRANSPORTING FROM XD/PM": "DEPARTED FROM XD/PM",
	} {
		statusLookup[strings.ToLower(synonym)] = canonical
	}
}

// Statuses that stamp the arrival (ATA) and departure (ATD) fields. POD is
// deliberately not an arrival trigger: it closes the note without moving
// the truck.
var (
	ArrivalStatuses = map[string]struct{}{
		"ARRIVED AT XD/PM": {},
		"ARRIVED AT SITE":  {},
	}
	DepartureStatuses = map[string]struct{}{
		"TRANSPORTING FROM WH":    {},
		"TRANSPORTING FROM XD/PM": {},
		"DEPARTED FROM WH":        {},
		"DEPARTED FROM XD/PM":     {},
	}
)

// IsArrivalStatus reports whether status stamps the arrival field.
// Comparison is case-insensitive.
func IsArrivalStatus(status string) bool {
	_, ok := ArrivalStatuses[strings.ToUpper(strings.TrimSpace(status))]
	return ok
}

// IsDepartureStatus reports whether status stamps the departure field.
func IsDepartureStatus(status string) bool {
	_, ok := DepartureStatuses[strings.ToUpper(strings.TrimSpace(status))]
	return ok
}

// NormalizeDNNumber trims, uppercases and folds full-width characters in a
// raw DN number. It does not validate; see ValidDNNumber.
func NormalizeDNNumber(raw string) string {
	folded := strings.Map(func(r rune) rune {
		switch {
		case r == '\u200b' || r == '\ufeff' || r == '\u200e':
			return -1
		case r >= '０' && r <= '９':
			return '0' + (r - '０')
		case r >= 'Ａ' && r <= 'Ｚ':
			return 'A' + (r - 'Ａ')
		case r >= 'ａ' && r <= 'ｚ':
			return 'a' + (r - 'ａ')
		}
		return r
	}, raw)
	return strings.ToUpper(strings.TrimSpace(folded))
}

// ValidDNNumber reports whether a normalized DN number is usable. Any
// non-empty value passes: the feed mixes carrier formats with legacy
// free-form numbers, so shape is not enforced.
func ValidDNNumber(number string) bool {
	return number != ""
}

// NormalizeStatusDelivery maps a raw delivery-status label to the canonical
// vocabulary. Blank input yields NoStatusLabel; recognized values (case
// insensitive) yield their canonical form; anything else keeps its
// whitespace-collapsed shape so operator free text survives round trips.
func NormalizeStatusDelivery(raw string) string {
	collapsed := strings.Join(strings.Fields(raw), " ")
	if collapsed == "" {
		return NoStatusLabel
	}
	if canonical, ok := statusLookup[strings.ToLower(collapsed)]; ok {
		return canonical
	}
	return collapsed
}

// PlanDateDisplayFormat is the canonical textual form plan MOS dates are
// stored and written back in.
const PlanDateDisplayFormat = "02 Jan 06"

var monthFixes = strings.NewReplacer("Sept", "Sep", "Okt", "Oct")

var dateLayouts = []string{
	"2 Jan 06",
	"2 Jan 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"2Jan",
	"2006/01/02",
}

// ParseDate parses a plan-date string in one of the tolerated textual
// forms. The second return is false when no layout matches.
func ParseDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(monthFixes.Replace(raw))
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizePlanDate re-renders a parseable plan date in the canonical
// display form. Unparseable values pass through untouched so formatting
// stays reproducible in both directions.
func NormalizePlanDate(raw string) string {
	if t, ok := ParseDate(raw); ok {
		return t.Format(PlanDateDisplayFormat)
	}
	return strings.TrimSpace(raw)
}

// RejectReason classifies why a sheet row was not accepted.
type RejectReason string

const (
	RejectMissingNumber RejectReason = "missing_dn_number"
	RejectEmptyPayload  RejectReason = "empty_payload"
)

// Row is one accepted, normalized sheet row. Fields map column names to
// values; nil means the cell was blank. Sheet and RowIndex locate the
// originating worksheet row for back-writes.
type Row struct {
	DNNumber string
	Fields   map[string]*string
	Sheet    string
	RowIndex int
}

// NormalizeRow canonicalizes one raw sheet row against the given column
// order. It is a pure function: the second return carries the rejection
// reason when the row is unusable.
func NormalizeRow(sheet string, rowIndex int, values []string, cols []string) (Row, RejectReason) {
	fields := make(map[string]*string, len(cols))
	var rawNumber string
	hasPayload := false

	for i, col := range cols {
		var raw string
		if i < len(values) {
			raw = values[i]
		}
		if col == "dn_number" {
			rawNumber = raw
			continue
		}

		trimmed := strings.TrimSpace(raw)
		switch col {
		case "plan_mos_date":
			if trimmed != "" {
				trimmed = NormalizePlanDate(trimmed)
			}
		case "status_delivery":
			if trimmed != "" {
				trimmed = NormalizeStatusDelivery(trimmed)
			}
		}

		if trimmed == "" {
			fields[col] = nil
			continue
		}
		hasPayload = true
		v := trimmed
		fields[col] = &v
	}

	number := NormalizeDNNumber(rawNumber)
	if !ValidDNNumber(number) {
		return Row{}, RejectMissingNumber
	}
	if !hasPayload {
		return Row{}, RejectEmptyPayload
	}

	sheetName := sheet
	rowStr := strconv.Itoa(rowIndex)
	fields["gs_sheet"] = &sheetName
	fields["gs_row"] = &rowStr

	return Row{DNNumber: number, Fields: fields, Sheet: sheet, RowIndex: rowIndex}, ""
}
