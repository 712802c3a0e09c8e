package writer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/fasttrack/services/delivery/internal/feed"
	"example.com/fasttrack/services/delivery/internal/localtime"
	"example.com/fasttrack/services/delivery/internal/models"
	"example.com/fasttrack/services/delivery/internal/normalizer"
	"example.com/fasttrack/services/delivery/internal/reconciler"
)

// BackWriteNote marks sheet cells the system touched so operators can tell
// computed values from their own edits.
const BackWriteNote = "Modified by Fast Tracker"

// systemUpdatedBy is stamped on history records written by the pipeline.
const systemUpdatedBy = "fast-tracker-sync"

// Store is the persistence surface the writer applies a plan against.
type Store interface {
	Create(ctx context.Context, dn string, fields map[string]*string) error
	Update(ctx context.Context, dn string, fields map[string]*string, restore, bumpCount bool) error
	SoftDelete(ctx context.Context, dns []string) error
}

// Recorder appends history records for applied changes.
type Recorder interface {
	Create(ctx context.Context, record *models.DeliveryNoteRecord) error
}

// Indexer pushes an updated delivery note into the search index.
type Indexer interface {
	IndexDeliveryNote(ctx context.Context, dn string) error
}

// ColumnLocator resolves a column name to its worksheet position.
type ColumnLocator interface {
	ColumnIndex(name string) int
}

// Result counts what one apply pass did.
type Result struct {
	Created   int
	Updated   int
	Restored  int
	Deleted   int
	Ignored   int
	Failed    int
	DNNumbers []string
}

// Writer applies a reconciliation plan entity by entity. One failing note
// is logged and counted without stopping the rest.
type Writer struct {
	store   Store
	records Recorder
	source  feed.Source
	locator ColumnLocator
	indexer Indexer
	clock   func() time.Time
}

// New creates a writer. indexer may be nil when search is disabled; source
// may be nil when the feed is read only.
func New(store Store, records Recorder, source feed.Source, locator ColumnLocator, indexer Indexer) *Writer {
	return &Writer{
		store:   store,
		records: records,
		source:  source,
		locator: locator,
		indexer: indexer,
		clock:   localtime.Now,
	}
}

// Apply executes the plan against the store, stamps movement timestamps,
// and pushes computed values back to the feed.
func (w *Writer) Apply(ctx context.Context, plan reconciler.Plan) Result {
	var result Result
	var backWrites []feed.CellWrite

	for _, change := range plan.Creates {
		backWrites = append(backWrites, w.stampTimestamps(&change)...)
		if err := w.store.Create(ctx, change.DNNumber, change.Fields); err != nil {
			log.Error().Err(err).Str("dn_number", change.DNNumber).Msg("Failed to create delivery note")
			result.Failed++
			continue
		}
		result.Created++
		result.DNNumbers = append(result.DNNumbers, change.DNNumber)
		w.record(ctx, change.DNNumber, "created", change.Fields)
		w.index(ctx, change.DNNumber)
	}

	for _, change := range plan.Updates {
		backWrites = append(backWrites, w.stampTimestamps(&change)...)
		backWrites = append(backWrites, w.contactBackWrite(change)...)

		err := w.store.Update(ctx, change.DNNumber, change.Fields, change.Restore, change.ContentChanged)
		if err != nil {
			log.Error().Err(err).Str("dn_number", change.DNNumber).Msg("Failed to update delivery note")
			result.Failed++
			continue
		}

		switch {
		case change.Restore:
			result.Restored++
			result.Updated++
			result.DNNumbers = append(result.DNNumbers, change.DNNumber)
			w.record(ctx, change.DNNumber, "restored", change.Fields)
		case change.ContentChanged:
			result.Updated++
			result.DNNumbers = append(result.DNNumbers, change.DNNumber)
			w.record(ctx, change.DNNumber, "updated", change.Fields)
		default:
			// Position moves and withheld contacts count as ignored.
			result.Ignored++
		}
		w.index(ctx, change.DNNumber)
	}

	result.Ignored += len(plan.Unchanged)

	if len(plan.SoftDeletes) > 0 {
		if err := w.store.SoftDelete(ctx, plan.SoftDeletes); err != nil {
			log.Error().Err(err).Int("count", len(plan.SoftDeletes)).Msg("Failed to soft delete delivery notes")
			result.Failed += len(plan.SoftDeletes)
		} else {
			result.Deleted = len(plan.SoftDeletes)
			for _, dn := range plan.SoftDeletes {
				w.record(ctx, dn, "deleted", nil)
			}
		}
	}

	w.pushBackWrites(ctx, backWrites)
	return result
}

// stampTimestamps writes the movement timestamp implied by a status change
// into the change itself and returns the matching feed cell writes. Arrival
// statuses stamp the ATA field, departure statuses the ATD field; anything
// else, POD included, stamps neither.
func (w *Writer) stampTimestamps(change *reconciler.Change) []feed.CellWrite {
	status, ok := change.Fields["status_delivery"]
	if !ok || status == nil {
		return nil
	}

	var column string
	switch {
	case normalizer.IsArrivalStatus(*status):
		column = "actual_arrive_time_ata"
	case normalizer.IsDepartureStatus(*status):
		column = "actual_depart_from_start_point_atd"
	default:
		return nil
	}

	stamp := localtime.SheetTimestamp(w.clock())
	change.Fields[column] = &stamp
	return w.cellWrite(change.Sheet, change.RowIndex, column, stamp)
}

// contactBackWrite restores the protected driver contact in the sheet when
// the feed tried to change it.
func (w *Writer) contactBackWrite(change reconciler.Change) []feed.CellWrite {
	if change.WithheldContact == nil {
		return nil
	}
	return w.cellWrite(change.Sheet, change.RowIndex, "driver_contact_number", *change.WithheldContact)
}

func (w *Writer) cellWrite(sheet string, row int, column, value string) []feed.CellWrite {
	if w.source == nil || sheet == "" || row <= 0 {
		return nil
	}
	idx := w.locator.ColumnIndex(column)
	if idx < 0 {
		return nil
	}
	return []feed.CellWrite{{
		Sheet:  sheet,
		Row:    row,
		Column: idx,
		Value:  value,
		Note:   BackWriteNote,
	}}
}

// pushBackWrites sends computed cells to the feed. A failure here is
// logged only: the store change stands and the write is not retried, so
// the next pass reads the sheet's old value and clears the stored stamp.
func (w *Writer) pushBackWrites(ctx context.Context, writes []feed.CellWrite) {
	if w.source == nil || len(writes) == 0 {
		return
	}
	if err := w.source.UpdateCells(ctx, writes); err != nil {
		log.Error().Err(err).Int("cells", len(writes)).Msg("Failed to write computed cells back to feed")
	}
}

func (w *Writer) record(ctx context.Context, dn, status string, fields map[string]*string) {
	updatedBy := systemUpdatedBy
	record := &models.DeliveryNoteRecord{
		DNNumber:  dn,
		Status:    status,
		UpdatedBy: &updatedBy,
	}
	if fields != nil {
		record.StatusDelivery = fields["status_delivery"]
		record.Remark = fields["issue_remark"]
		record.Lng = fields["lng"]
		record.Lat = fields["lat"]
		record.PhotoURL = fields["photo_url"]
	}
	if err := w.records.Create(ctx, record); err != nil {
		log.Error().Err(err).Str("dn_number", dn).Msg("Failed to append delivery note record")
	}
}

func (w *Writer) index(ctx context.Context, dn string) {
	if w.indexer == nil {
		return
	}
	if err := w.indexer.IndexDeliveryNote(ctx, dn); err != nil {
		log.Warn().Err(err).Str("dn_number", dn).Msg("Failed to index delivery note")
	}
}
