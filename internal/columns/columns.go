package columns

import (
	"context"
	"regexp"
	"sync"

	"example.com/fasttrack/services/delivery/internal/models"

	"github.com/pkg/errors"
)

// SheetBaseColumns mirrors the worksheet layout left to right. Dynamic
// columns registered at runtime are appended after these.
var SheetBaseColumns = []string{
	"dn_number",
	"du_id",
	"status_wh",
	"lsp",
	"area",
	"mos_given_time",
	"expected_arrival_time_from_project",
	"project_request",
	"distance_poll_mover_to_site",
	"driver_contact_name",
	"driver_contact_number",
	"delivery_type_a_to_b",
	"transportation_time",
	"estimate_depart_from_start_point_etd",
	"estimate_arrive_sites_time_eta",
	"lsp_tracker",
	"hw_tracker",
	"actual_depart_from_start_point_atd",
	"actual_arrive_time_ata",
	"subcon",
	"subcon_receiver_contact_number",
	"status_delivery",
	"issue_remark",
	"mos_attempt_1st_time",
	"mos_attempt_2nd_time",
	"mos_attempt_3rd_time",
	"mos_attempt_4th_time",
	"mos_attempt_5th_time",
	"mos_attempt_6th_time",
	"mos_type",
	"region",
	"plan_mos_date",
}

// Columns the feed is never allowed to overwrite.
var immutableColumns = map[string]struct{}{
	"id":         {},
	"dn_number":  {},
	"created_at": {},
}

var columnNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is the persistence surface the registry needs for dynamic columns.
type Store interface {
	ListColumnDefs(ctx context.Context) ([]models.ColumnDef, error)
	CreateColumnDef(ctx context.Context, def *models.ColumnDef) error
}

// Registry tracks the full column set: the static sheet layout plus the
// dynamic columns registered in the store. Safe for concurrent use.
type Registry struct {
	store Store

	mu      sync.RWMutex
	dynamic []models.ColumnDef
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Refresh reloads the dynamic column list from the store.
func (r *Registry) Refresh(ctx context.Context) error {
	defs, err := r.store.ListColumnDefs(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load dynamic columns")
	}
	r.mu.Lock()
	r.dynamic = defs
	r.mu.Unlock()
	return nil
}

// SheetColumns returns every column name in worksheet order.
func (r *Registry) SheetColumns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(SheetBaseColumns)+len(r.dynamic))
	out = append(out, SheetBaseColumns...)
	for _, def := range r.dynamic {
		out = append(out, def.Name)
	}
	return out
}

// DynamicColumns returns the registered dynamic column definitions.
func (r *Registry) DynamicColumns() []models.ColumnDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ColumnDef, len(r.dynamic))
	copy(out, r.dynamic)
	return out
}

// Kind returns the value kind of a dynamic column. The second return is
// false for unknown names.
func (r *Registry) Kind(name string) (models.ColumnKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, def := range r.dynamic {
		if def.Name == name {
			return def.Kind, true
		}
	}
	return "", false
}

// Mutable reports whether the feed may write the named column.
func Mutable(name string) bool {
	_, immutable := immutableColumns[name]
	return !immutable
}

// ColumnIndex returns the zero-based worksheet position of name, or -1.
func (r *Registry) ColumnIndex(name string) int {
	for i, col := range r.SheetColumns() {
		if col == name {
			return i
		}
	}
	return -1
}

// Extend registers the given column names with the provided kind, skipping
// names that already exist. Returns the names actually added.
func (r *Registry) Extend(ctx context.Context, names []string, kind models.ColumnKind) ([]string, error) {
	if kind == "" {
		kind = models.ColumnText
	}
	switch kind {
	case models.ColumnText, models.ColumnNumber, models.ColumnBoolean, models.ColumnDate:
	default:
		return nil, errors.Errorf("unsupported column kind: %s", kind)
	}

	existing := make(map[string]struct{}, len(SheetBaseColumns))
	for _, col := range r.SheetColumns() {
		existing[col] = struct{}{}
	}

	var added []string
	for _, raw := range names {
		name := raw
		if name == "" {
			continue
		}
		if _, ok := existing[name]; ok {
			continue
		}
		if !columnNamePattern.MatchString(name) {
			return nil, errors.Errorf("invalid column name: %s", name)
		}
		def := &models.ColumnDef{Name: name, Kind: kind}
		if err := r.store.CreateColumnDef(ctx, def); err != nil {
			return nil, errors.Wrapf(err, "failed to register column %s", name)
		}
		existing[name] = struct{}{}
		added = append(added, name)
	}

	if len(added) > 0 {
		if err := r.Refresh(ctx); err != nil {
			return added, err
		}
	}
	return added, nil
}
