package reconciler

import (
	"strings"

	"example.com/fasttrack/services/delivery/internal/normalizer"
)

// StoredNote is the reconciler's view of one persisted delivery note. It
// carries only what the diff needs: the current column values, the soft
// delete flag and the manual update counter.
type StoredNote struct {
	Fields      map[string]*string
	IsDeleted   string
	UpdateCount int
}

// Change is one planned mutation for a single delivery note. Fields holds
// only the columns whose values differ from what is stored; a nil value
// clears the column. ContentChanged is false for pure position moves,
// which follow the sheet without counting as updates. WithheldContact is
// set when the feed tried to change driver_contact_number on a manually
// updated note: the stored value wins and is pushed back to the sheet
// instead.
type Change struct {
	DNNumber        string
	Sheet           string
	RowIndex        int
	Fields          map[string]*string
	Restore         bool
	ContentChanged  bool
	WithheldContact *string
}

// Plan is the complete set of mutations one feed pass implies. Building it
// touches no storage; applying it is the writer's job.
type Plan struct {
	Creates     []Change
	Updates     []Change
	SoftDeletes []string
	Unchanged   []string
	Duplicates  int
}

// contactColumn is protected once a note has been manually updated.
const contactColumn = "driver_contact_number"

// positional columns always follow the feed, even on otherwise unchanged
// notes, but on their own they do not count as a content change.
var positionalColumns = map[string]bool{
	"gs_sheet": true,
	"gs_row":   true,
}

// BuildPlan diffs normalized feed rows against the stored notes and
// produces the mutations needed to make storage match the feed. Duplicate
// DN numbers in the feed resolve last wins. Stored notes absent from the
// feed are planned for soft deletion; soft-deleted notes that reappear are
// restored.
func BuildPlan(rows []normalizer.Row, stored map[string]StoredNote) Plan {
	var plan Plan

	deduped := make(map[string]normalizer.Row, len(rows))
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, seen := deduped[row.DNNumber]; seen {
			plan.Duplicates++
		} else {
			order = append(order, row.DNNumber)
		}
		deduped[row.DNNumber] = row
	}

	seen := make(map[string]bool, len(deduped))
	for _, dn := range order {
		row := deduped[dn]
		seen[dn] = true

		current, exists := stored[dn]
		if !exists {
			plan.Creates = append(plan.Creates, Change{
				DNNumber: dn,
				Sheet:    row.Sheet,
				RowIndex: row.RowIndex,
				Fields:   row.Fields,
			})
			continue
		}

		change := diffNote(dn, row, current)
		if change.Restore || len(change.Fields) > 0 || change.WithheldContact != nil {
			plan.Updates = append(plan.Updates, change)
		} else {
			plan.Unchanged = append(plan.Unchanged, dn)
		}
	}

	for dn, note := range stored {
		if !seen[dn] && note.IsDeleted != "Y" {
			plan.SoftDeletes = append(plan.SoftDeletes, dn)
		}
	}

	return plan
}

func diffNote(dn string, row normalizer.Row, current StoredNote) Change {
	change := Change{
		DNNumber: dn,
		Sheet:    row.Sheet,
		RowIndex: row.RowIndex,
		Fields:   make(map[string]*string),
		Restore:  current.IsDeleted == "Y",
	}

	for col, incoming := range row.Fields {
		if col == contactColumn && current.UpdateCount > 0 {
			if !valuesEqual(incoming, current.Fields[col]) {
				change.WithheldContact = current.Fields[col]
			}
			continue
		}
		if valuesEqual(incoming, current.Fields[col]) {
			continue
		}
		change.Fields[col] = incoming
		if !positionalColumns[col] {
			change.ContentChanged = true
		}
	}

	return change
}

// valuesEqual compares two optional column values. Missing, nil and
// whitespace-only values are all equivalent to empty.
func valuesEqual(a, b *string) bool {
	return flatten(a) == flatten(b)
}

func flatten(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
