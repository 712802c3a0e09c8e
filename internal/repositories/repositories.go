package repositories

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/fasttrack/services/delivery/internal/columns"
	"example.com/fasttrack/services/delivery/internal/models"
	"example.com/fasttrack/services/delivery/internal/reconciler"
)

// DeliveryNoteRepository provides access to delivery notes and their
// dynamic-column extras.
type DeliveryNoteRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
	registry   *columns.Registry
}

// NewDeliveryNoteRepository creates a new delivery note repository
func NewDeliveryNoteRepository(db *gorm.DB, readOnlyDB *gorm.DB, registry *columns.Registry) *DeliveryNoteRepository {
	return &DeliveryNoteRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
		registry:   registry,
	}
}

// StoredNotes loads every delivery note, deleted ones included, as the
// column-name views the reconciler diffs against.
func (r *DeliveryNoteRepository) StoredNotes(ctx context.Context) (map[string]reconciler.StoredNote, error) {
	var notes []models.DeliveryNote
	if err := r.readOnlyDB.WithContext(ctx).Find(&notes).Error; err != nil {
		return nil, errors.Wrap(err, "failed to load delivery notes")
	}

	var extras []models.DeliveryNoteExtra
	if err := r.readOnlyDB.WithContext(ctx).Find(&extras).Error; err != nil {
		return nil, errors.Wrap(err, "failed to load delivery note extras")
	}
	extrasByDN := make(map[string][]models.DeliveryNoteExtra)
	for _, e := range extras {
		extrasByDN[e.DNNumber] = append(extrasByDN[e.DNNumber], e)
	}

	views := make(map[string]reconciler.StoredNote, len(notes))
	for i := range notes {
		note := &notes[i]
		views[note.DNNumber] = reconciler.StoredNote{
			Fields:      noteView(note, extrasByDN[note.DNNumber]),
			IsDeleted:   note.IsDeleted,
			UpdateCount: note.UpdateCount,
		}
	}
	return views, nil
}

// noteView flattens a note and its extras into a column-name map.
func noteView(note *models.DeliveryNote, extras []models.DeliveryNoteExtra) map[string]*string {
	fields := make(map[string]*string)
	for _, col := range columns.SheetBaseColumns {
		if col == "dn_number" {
			continue
		}
		if ptr, ok := note.FieldByColumn(col); ok {
			fields[col] = *ptr
		}
	}
	fields["gs_sheet"] = note.GSSheet
	if note.GSRow != nil {
		row := strconv.Itoa(*note.GSRow)
		fields["gs_row"] = &row
	} else {
		fields["gs_row"] = nil
	}
	for _, e := range extras {
		fields[e.ColumnName] = renderExtra(e)
	}
	return fields
}

// GetByNumber gets one delivery note by its DN number.
func (r *DeliveryNoteRepository) GetByNumber(ctx context.Context, dn string) (*models.DeliveryNote, error) {
	var note models.DeliveryNote
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).Where("dn_number = ?", dn).First(&note).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get delivery note by number")
	}
	return &note, nil
}

// ListActive lists all non-deleted delivery notes.
func (r *DeliveryNoteRepository) ListActive(ctx context.Context) ([]models.DeliveryNote, error) {
	var notes []models.DeliveryNote
	err := r.readOnlyDB.WithContext(ctx).
		Where("is_deleted = ?", models.NotDeleted).
		Find(&notes).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active delivery notes")
	}
	return notes, nil
}

// Create inserts a new delivery note from a column-name field map. Base
// columns land on the entity, dynamic columns in the extras table.
func (r *DeliveryNoteRepository) Create(ctx context.Context, dn string, fields map[string]*string) error {
	note := models.DeliveryNote{DNNumber: dn, IsDeleted: models.NotDeleted}
	dynamic := applyFields(&note, fields)

	// Use write DB for writes
	if err := r.db.WithContext(ctx).Create(&note).Error; err != nil {
		return errors.Wrap(err, "failed to create delivery note")
	}
	return r.saveExtras(ctx, dn, dynamic)
}

// Update applies changed fields to an existing note. restore clears the
// soft-delete flag; bumpCount increments the update counter that guards
// manually maintained values.
func (r *DeliveryNoteRepository) Update(ctx context.Context, dn string, fields map[string]*string, restore, bumpCount bool) error {
	var note models.DeliveryNote
	if err := r.db.WithContext(ctx).Where("dn_number = ?", dn).First(&note).Error; err != nil {
		return errors.Wrap(err, "failed to load delivery note for update")
	}

	dynamic := applyFields(&note, fields)
	if restore {
		note.IsDeleted = models.NotDeleted
	}
	if bumpCount {
		note.UpdateCount++
	}

	if err := r.db.WithContext(ctx).Save(&note).Error; err != nil {
		return errors.Wrap(err, "failed to update delivery note")
	}
	return r.saveExtras(ctx, dn, dynamic)
}

// SoftDelete flags the given notes as removed from the feed.
func (r *DeliveryNoteRepository) SoftDelete(ctx context.Context, dns []string) error {
	if len(dns) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryNote{}).
		Where("dn_number IN ?", dns).
		Update("is_deleted", models.Deleted).Error
	return errors.Wrap(err, "failed to soft delete delivery notes")
}

// StatusCount is one row of the live status distribution.
type StatusCount struct {
	StatusDelivery *string `json:"status_delivery"`
	Count          int64   `json:"count"`
}

// StatusDeliveryStats returns the live count of active notes per delivery
// status.
func (r *DeliveryNoteRepository) StatusDeliveryStats(ctx context.Context) ([]StatusCount, error) {
	var stats []StatusCount
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.DeliveryNote{}).
		Select("status_delivery, count(*) as count").
		Where("is_deleted = ?", models.NotDeleted).
		Group("status_delivery").
		Order("count desc").
		Find(&stats).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate status delivery stats")
	}
	return stats, nil
}

// applyFields writes base-column values onto the entity and returns the
// leftover dynamic-column values.
func applyFields(note *models.DeliveryNote, fields map[string]*string) map[string]*string {
	dynamic := make(map[string]*string)
	for col, value := range fields {
		if !columns.Mutable(col) {
			continue
		}
		if col == "gs_row" {
			if value == nil {
				note.GSRow = nil
			} else if n, err := strconv.Atoi(*value); err == nil {
				note.GSRow = &n
			}
			continue
		}
		if ptr, ok := note.FieldByColumn(col); ok {
			*ptr = value
			continue
		}
		dynamic[col] = value
	}
	return dynamic
}

func (r *DeliveryNoteRepository) saveExtras(ctx context.Context, dn string, dynamic map[string]*string) error {
	for col, value := range dynamic {
		kind, known := r.registry.Kind(col)
		if !known {
			continue
		}
		extra := buildExtra(dn, col, kind, value)
		err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "dn_number"}, {Name: "column_name"}},
				DoUpdates: clause.AssignmentColumns([]string{"text_value", "number_value", "bool_value", "date_value", "updated_at"}),
			}).
			Create(&extra).Error
		if err != nil {
			return errors.Wrapf(err, "failed to save extra column %s", col)
		}
	}
	return nil
}

// renderExtra flattens a typed extra back into its textual feed form.
func renderExtra(e models.DeliveryNoteExtra) *string {
	switch {
	case e.NumberValue != nil:
		s := strconv.FormatFloat(*e.NumberValue, 'f', -1, 64)
		return &s
	case e.BoolValue != nil:
		s := strconv.FormatBool(*e.BoolValue)
		return &s
	case e.DateValue != nil:
		s := e.DateValue.Format("2006-01-02")
		return &s
	default:
		return e.TextValue
	}
}

// buildExtra parses a textual value into the typed slot for its column
// kind. Values that do not parse keep their text form.
func buildExtra(dn, col string, kind models.ColumnKind, value *string) models.DeliveryNoteExtra {
	extra := models.DeliveryNoteExtra{DNNumber: dn, ColumnName: col}
	if value == nil {
		return extra
	}
	raw := strings.TrimSpace(*value)
	switch kind {
	case models.ColumnNumber:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			extra.NumberValue = &n
			return extra
		}
	case models.ColumnBoolean:
		if b, err := strconv.ParseBool(strings.ToLower(raw)); err == nil {
			extra.BoolValue = &b
			return extra
		}
	case models.ColumnDate:
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			extra.DateValue = &t
			return extra
		}
	}
	extra.TextValue = &raw
	return extra
}

// RecordRepository provides access to the delivery note history trail.
type RecordRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *gorm.DB, readOnlyDB *gorm.DB) *RecordRepository {
	return &RecordRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create appends one history record.
func (r *RecordRepository) Create(ctx context.Context, record *models.DeliveryNoteRecord) error {
	// Use write DB for writes
	return r.db.WithContext(ctx).Create(record).Error
}

// ListSince returns all history records created at or after the given time.
func (r *RecordRepository) ListSince(ctx context.Context, from time.Time) ([]models.DeliveryNoteRecord, error) {
	var records []models.DeliveryNoteRecord
	err := r.readOnlyDB.WithContext(ctx).
		Where("created_at >= ?", from).
		Order("created_at asc").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list delivery note records")
	}
	return records, nil
}

// SyncRunRepository provides access to the reconciliation run log.
type SyncRunRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewSyncRunRepository creates a new run log repository
func NewSyncRunRepository(db *gorm.DB, readOnlyDB *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create records the start of a run.
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Finalize persists the run's terminal state.
func (r *SyncRunRepository) Finalize(ctx context.Context, run *models.SyncRun) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(run).Error, "failed to finalize sync run")
}

// Latest returns the most recently started run.
func (r *SyncRunRepository) Latest(ctx context.Context) (*models.SyncRun, error) {
	var run models.SyncRun
	err := r.readOnlyDB.WithContext(ctx).Order("started_at desc").First(&run).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest sync run")
	}
	return &run, nil
}

// History lists runs newest first.
func (r *SyncRunRepository) History(ctx context.Context, limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	err := r.readOnlyDB.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sync runs")
	}
	return runs, nil
}

// SnapshotRepository provides access to both snapshot tables.
type SnapshotRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *gorm.DB, readOnlyDB *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// UpsertPoint writes one point snapshot row, overwriting within its hour.
func (r *SnapshotRepository) UpsertPoint(ctx context.Context, snap *models.LspDateSnapshot) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lsp"}, {Name: "plan_mos_date"}, {Name: "recorded_at"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_dn", "status_not_empty"}),
		}).
		Create(snap).Error
	return errors.Wrap(err, "failed to upsert point snapshot")
}

// UpsertHourly writes one cumulative snapshot bucket.
func (r *SnapshotRepository) UpsertHourly(ctx context.Context, snap *models.LspHourlySnapshot) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lsp"}, {Name: "bucket_date"}, {Name: "bucket_hour"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_dn", "updated_at"}),
		}).
		Create(snap).Error
	return errors.Wrap(err, "failed to upsert hourly snapshot")
}

// ListPoint lists point snapshots newest first, optionally filtered by LSP.
func (r *SnapshotRepository) ListPoint(ctx context.Context, lsp string, limit int) ([]models.LspDateSnapshot, error) {
	q := r.readOnlyDB.WithContext(ctx).Order("recorded_at desc, lsp asc")
	if lsp != "" {
		q = q.Where("lsp = ?", lsp)
	}
	var snaps []models.LspDateSnapshot
	if err := q.Limit(limit).Find(&snaps).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list point snapshots")
	}
	return snaps, nil
}

// ListHourly lists cumulative snapshots for one local day, oldest hour
// first, optionally filtered by LSP.
func (r *SnapshotRepository) ListHourly(ctx context.Context, lsp, bucketDate string, limit int) ([]models.LspHourlySnapshot, error) {
	q := r.readOnlyDB.WithContext(ctx).Order("bucket_hour asc, lsp asc")
	if lsp != "" {
		q = q.Where("lsp = ?", lsp)
	}
	if bucketDate != "" {
		q = q.Where("bucket_date = ?", bucketDate)
	}
	var snaps []models.LspHourlySnapshot
	if err := q.Limit(limit).Find(&snaps).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list hourly snapshots")
	}
	return snaps, nil
}

// ColumnDefRepository persists the dynamic column registry.
type ColumnDefRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewColumnDefRepository creates a new column registry repository
func NewColumnDefRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ColumnDefRepository {
	return &ColumnDefRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ListColumnDefs returns all registered dynamic columns.
func (r *ColumnDefRepository) ListColumnDefs(ctx context.Context) ([]models.ColumnDef, error) {
	var defs []models.ColumnDef
	err := r.readOnlyDB.WithContext(ctx).Order("name asc").Find(&defs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list column definitions")
	}
	return defs, nil
}

// CreateColumnDef registers one dynamic column.
func (r *ColumnDefRepository) CreateColumnDef(ctx context.Context, def *models.ColumnDef) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(def).Error, "failed to create column definition")
}
