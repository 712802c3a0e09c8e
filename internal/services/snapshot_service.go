package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fasttrack/services/delivery/internal/localtime"
	"example.com/fasttrack/services/delivery/internal/models"
	"example.com/fasttrack/services/delivery/internal/normalizer"
	"example.com/fasttrack/services/delivery/internal/tracing"
)

// activeNoteLister loads the active delivery notes.
type activeNoteLister interface {
	ListActive(ctx context.Context) ([]models.DeliveryNote, error)
}

// recordLister loads history records.
type recordLister interface {
	ListSince(ctx context.Context, from time.Time) ([]models.DeliveryNoteRecord, error)
}

// snapshotStore persists and lists both snapshot variants.
type snapshotStore interface {
	UpsertPoint(ctx context.Context, snap *models.LspDateSnapshot) error
	UpsertHourly(ctx context.Context, snap *models.LspHourlySnapshot) error
	ListPoint(ctx context.Context, lsp string, limit int) ([]models.LspDateSnapshot, error)
	ListHourly(ctx context.Context, lsp, bucketDate string, limit int) ([]models.LspHourlySnapshot, error)
}

// SnapshotService captures the hourly per-LSP aggregates.
type SnapshotService struct {
	notes   activeNoteLister
	records recordLister
	store   snapshotStore
	tracer  tracing.Tracer
	clock   func() time.Time
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(notes activeNoteLister, records recordLister, store snapshotStore, tracer tracing.Tracer) *SnapshotService {
	return &SnapshotService{
		notes:   notes,
		records: records,
		store:   store,
		tracer:  tracer,
		clock:   localtime.Now,
	}
}

// Statuses that take a note out of the delivery pipeline for point counts.
var pointExcludedStatuses = map[string]struct{}{
	"CANCEL MOS":           {},
	"CLOSE BY RN":          {},
	"WAITING PIC FEEDBACK": {},
}

// NormalizeLSPLabel maps the raw partner cell to the label snapshots are
// grouped by. Blank or placeholder partners collapse into NO_LSP, and a
// NO_LSP note without a plan date gets its own bucket so planning gaps
// stay visible.
func NormalizeLSPLabel(lsp, planDate *string) string {
	label := ""
	if lsp != nil {
		label = strings.TrimSpace(*lsp)
	}
	if strings.EqualFold(label, "SUBCON") {
		return "Subcon"
	}
	if label == "" || strings.EqualFold(label, "#N/A") || strings.EqualFold(label, "NO LSP") {
		if planDate == nil || strings.TrimSpace(*planDate) == "" {
			return "NO_LSP_NO_PLAN_MOS_DATE"
		}
		return "NO_LSP"
	}
	return label
}

// inPipeline reports whether a status keeps the note in the point count.
func inPipeline(status *string) bool {
	if status == nil {
		return true
	}
	upper := strings.ToUpper(strings.TrimSpace(*status))
	if _, excluded := pointExcludedStatuses[upper]; excluded {
		return false
	}
	return !strings.HasPrefix(upper, "REPLAN")
}

func hasRealStatus(status *string) bool {
	return status != nil && strings.TrimSpace(*status) != "" && *status != normalizer.NoStatusLabel
}

// Capture computes and persists both snapshot variants for the current
// local hour.
func (s *SnapshotService) Capture(ctx context.Context) error {
	txn := s.tracer.StartTransaction("dn-snapshots")
	defer s.tracer.EndTransaction(txn)

	now := s.clock()

	notes, err := s.notes.ListActive(ctx)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load active notes for snapshots")
	}

	pointSpan := s.tracer.StartSpan("point-snapshots", txn)
	points := BuildPointRows(now, notes)
	for i := range points {
		if err := s.store.UpsertPoint(ctx, &points[i]); err != nil {
			pointSpan.End()
			s.tracer.RecordError(txn, err)
			return err
		}
	}
	pointSpan.End()

	dayStart := time.Date(now.In(localtime.Zone).Year(), now.In(localtime.Zone).Month(), now.In(localtime.Zone).Day(),
		0, 0, 0, 0, localtime.Zone)
	records, err := s.records.ListSince(ctx, dayStart)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load history records for snapshots")
	}

	lspByDN := make(map[string]string, len(notes))
	for i := range notes {
		lspByDN[notes[i].DNNumber] = NormalizeLSPLabel(notes[i].LSP, notes[i].PlanMOSDate)
	}

	hourlySpan := s.tracer.StartSpan("hourly-snapshots", txn)
	series := BuildHourlySeries(now, records, lspByDN)
	for i := range series {
		if err := s.store.UpsertHourly(ctx, &series[i]); err != nil {
			hourlySpan.End()
			s.tracer.RecordError(txn, err)
			return err
		}
	}
	hourlySpan.End()

	log.Info().
		Int("point_rows", len(points)).
		Int("hourly_rows", len(series)).
		Str("bucket_date", localtime.DayKey(now)).
		Msg("Snapshots captured")
	return nil
}

// BuildPointRows aggregates active notes into the point snapshot rows for
// the hour containing now.
func BuildPointRows(now time.Time, notes []models.DeliveryNote) []models.LspDateSnapshot {
	hour := localtime.FloorHour(now.In(localtime.Zone))

	type key struct{ lsp, date string }
	totals := make(map[key]*models.LspDateSnapshot)
	var order []key

	for i := range notes {
		note := &notes[i]
		k := key{lsp: NormalizeLSPLabel(note.LSP, note.PlanMOSDate)}
		if note.PlanMOSDate != nil {
			k.date = strings.TrimSpace(*note.PlanMOSDate)
		}

		row, ok := totals[k]
		if !ok {
			row = &models.LspDateSnapshot{
				LSP:         k.lsp,
				PlanMOSDate: k.date,
				RecordedAt:  hour,
			}
			totals[k] = row
			order = append(order, k)
		}
		if inPipeline(note.StatusDelivery) {
			row.TotalDN++
		}
		if hasRealStatus(note.StatusDelivery) {
			row.StatusNotEmpty++
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].lsp != order[j].lsp {
			return order[i].lsp < order[j].lsp
		}
		return order[i].date < order[j].date
	})

	rows := make([]models.LspDateSnapshot, 0, len(order))
	for _, k := range order {
		rows = append(rows, *totals[k])
	}
	return rows
}

// BuildHourlySeries computes the cumulative per-LSP series for the local
// day containing now: for each hour from midnight up to now, the number of
// distinct notes whose latest history record of the day falls at or before
// that hour. Records from other days never count, so the series restarts
// at zero after midnight, and hours without new records repeat the
// previous value.
func BuildHourlySeries(now time.Time, records []models.DeliveryNoteRecord, lspByDN map[string]string) []models.LspHourlySnapshot {
	local := now.In(localtime.Zone)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, localtime.Zone)
	dayKey := localtime.DayKey(now)

	latestByDN := make(map[string]time.Time)
	for i := range records {
		r := &records[i]
		t := localtime.In(r.CreatedAt)
		if t.Before(dayStart) || t.After(local) {
			continue
		}
		if prev, ok := latestByDN[r.DNNumber]; !ok || t.After(prev) {
			latestByDN[r.DNNumber] = t
		}
	}

	labels := make(map[string]struct{})
	for _, label := range lspByDN {
		labels[label] = struct{}{}
	}
	sorted := make([]string, 0, len(labels))
	for label := range labels {
		sorted = append(sorted, label)
	}
	sort.Strings(sorted)

	var rows []models.LspHourlySnapshot
	for h := 0; h <= local.Hour(); h++ {
		bucket := dayStart.Add(time.Duration(h) * time.Hour)
		counts := make(map[string]int)
		for dn, latest := range latestByDN {
			label, known := lspByDN[dn]
			if !known {
				continue
			}
			if !localtime.FloorHour(latest).After(bucket) {
				counts[label]++
			}
		}
		for _, label := range sorted {
			rows = append(rows, models.LspHourlySnapshot{
				LSP:        label,
				BucketDate: dayKey,
				BucketHour: bucket,
				UpdatedDN:  counts[label],
			})
		}
	}
	return rows
}

// SnapshotListing bundles both snapshot variants for the API.
type SnapshotListing struct {
	Point  []models.LspDateSnapshot   `json:"point"`
	Hourly []models.LspHourlySnapshot `json:"hourly"`
}

// List returns recent snapshots of both variants, optionally filtered by
// LSP label.
func (s *SnapshotService) List(ctx context.Context, lsp string, limit int) (*SnapshotListing, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	point, err := s.store.ListPoint(ctx, lsp, limit)
	if err != nil {
		return nil, err
	}
	hourly, err := s.store.ListHourly(ctx, lsp, localtime.DayKey(s.clock()), limit)
	if err != nil {
		return nil, err
	}
	return &SnapshotListing{Point: point, Hourly: hourly}, nil
}
