package localtime

import (
	"fmt"
	"time"
)

// Zone is the fixed GMT+7 (Jakarta) offset used for every user-facing
// timestamp. A fixed zone avoids depending on the host tzdata.
var Zone = time.FixedZone("GMT+7", 7*60*60)

// Now returns the current instant in the Jakarta zone.
func Now() time.Time {
	return time.Now().In(Zone)
}

// In converts t to the Jakarta zone.
func In(t time.Time) time.Time {
	return t.In(Zone)
}

// FloorHour truncates t to the start of its hour, preserving location.
func FloorHour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

// SheetTimestamp renders t the way the sheet expects arrival/departure
// times: month, day and hour without padding, minutes and seconds padded.
func SheetTimestamp(t time.Time) string {
	t = t.In(Zone)
	return fmt.Sprintf("%d/%d/%d %d:%02d:%02d",
		int(t.Month()), t.Day(), t.Year(), t.Hour(), t.Minute(), t.Second())
}

// DayKey renders the local calendar date of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.In(Zone).Format("2006-01-02")
}
