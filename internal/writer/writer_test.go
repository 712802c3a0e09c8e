package writer

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/fasttrack/services/delivery/internal/feed"
	"example.com/fasttrack/services/delivery/internal/localtime"
	"example.com/fasttrack/services/delivery/internal/models"
	"example.com/fasttrack/services/delivery/internal/reconciler"
)

// Mock store for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, dn string, fields map[string]*string) error {
	args := m.Called(ctx, dn, fields)
	return args.Error(0)
}

func (m *MockStore) Update(ctx context.Context, dn string, fields map[string]*string, restore, bumpCount bool) error {
	args := m.Called(ctx, dn, fields, restore, bumpCount)
	return args.Error(0)
}

func (m *MockStore) SoftDelete(ctx context.Context, dns []string) error {
	args := m.Called(ctx, dns)
	return args.Error(0)
}

// Mock recorder for testing
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Create(ctx context.Context, record *models.DeliveryNoteRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// Mock feed source for testing
type MockSource struct {
	mock.Mock
}

func (m *MockSource) Worksheets(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSource) ReadRows(ctx context.Context, title string) ([]feed.Row, error) {
	args := m.Called(ctx, title)
	return args.Get(0).([]feed.Row), args.Error(1)
}

func (m *MockSource) UpdateCells(ctx context.Context, writes []feed.CellWrite) error {
	args := m.Called(ctx, writes)
	return args.Error(0)
}

type stubLocator map[string]int

func (s stubLocator) ColumnIndex(name string) int {
	if idx, ok := s[name]; ok {
		return idx
	}
	return -1
}

var testLocator = stubLocator{
	"actual_depart_from_start_point_atd": 17,
	"actual_arrive_time_ata":             18,
	"driver_contact_number":              10,
}

func strptr(s string) *string { return &s }

func fixedClock() time.Time {
	return time.Date(2025, 9, 14, 8, 5, 7, 0, localtime.Zone)
}

func newTestWriter(store *MockStore, records *MockRecorder, source *MockSource) *Writer {
	var src feed.Source
	if source != nil {
		src = source
	}
	w := New(store, records, src, testLocator, nil)
	w.clock = fixedClock
	return w
}

func TestApplyArrivalStampsATAOnly(t *testing.T) {
	store := new(MockStore)
	records := new(MockRecorder)
	source := new(MockSource)

	store.On("Update", mock.Anything, "JP25011200001", mock.Anything, false, true).Return(nil)
	records.On("Create", mock.Anything, mock.AnythingOfType("*models.DeliveryNoteRecord")).Return(nil)
	source.On("UpdateCells", mock.Anything, mock.Anything).Return(nil)

	plan := reconciler.Plan{
		Updates: []reconciler.Change{{
			DNNumber:       "JP25011200001",
			Sheet:          "Plan MOS W37",
			RowIndex:       6,
			ContentChanged: true,
			Fields:         map[string]*string{"status_delivery": strptr("ARRIVED AT SITE")},
		}},
	}

	w := newTestWriter(store, records, source)
	result := w.Apply(context.Background(), plan)

	require.Equal(t, 1, result.Updated)
	require.Equal(t, 0, result.Failed)

	change := plan.Updates[0]
	require.NotNil(t, change.Fields["actual_arrive_time_ata"])
	require.Equal(t, "9/14/2025 8:05:07", *change.Fields["actual_arrive_time_ata"])
	require.Nil(t, change.Fields["actual_depart_from_start_point_atd"])

	source.AssertCalled(t, "UpdateCells", mock.Anything, []feed.CellWrite{{
		Sheet:  "Plan MOS W37",
		Row:    6,
		Column: 18,
		Value:  "9/14/2025 8:05:07",
		Note:   BackWriteNote,
	}})
	store.AssertExpectations(t)
}

func TestApplyDepartureStampsATD(t *testing.T) {
	store := new(MockStore)
	records := new(MockRecorder)

	store.On("Update", mock.Anything, "JP25011200001", mock.Anything, false, true).Return(nil)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	plan := reconciler.Plan{
		Updates: []reconciler.Change{{
			DNNumber:       "JP25011200001",
			ContentChanged: true,
			Fields:         map[string]*string{"status_delivery": strptr("DEPARTED FROM WH")},
		}},
	}

	w := newTestWriter(store, records, nil)
	w.Apply(context.Background(), plan)

	change := plan.Updates[0]
	require.NotNil(t, change.Fields["actual_depart_from_start_point_atd"])
	require.Nil(t, change.Fields["actual_arrive_time_ata"])
}

func TestApplyPODStampsNeither(t *testing.T) {
	store := new(MockStore)
	records := new(MockRecorder)

	store.On("Update", mock.Anything, "JP25011200001", mock.Anything, false, true).Return(nil)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	plan := reconciler.Plan{
		Updates: []reconciler.Change{{
			DNNumber:       "JP25011200001",
			ContentChanged: true,
			Fields:         map[string]*string{"status_delivery": strptr("POD")},
		}},
	}

	w := newTestWriter(store, records, nil)
	w.Apply(context.Background(), plan)

	change := plan.Updates[0]
	require.Nil(t, change.Fields["actual_arrive_time_ata"])
	require.Nil(t, change.Fields["actual_depart_from_start_point_atd"])
}

func TestApplyRestoreKeepsUpdateCounter(t *testing.T) {
	store := new(MockStore)
	records := new(MockRecorder)

	// A restore with no content change re-activates the note without
	// bumping update_count. The history row still gets written.
	store.On("Update", mock.Anything, "JP25011200001", mock.Anything, true, false).Return(nil)
	records.On("Create", mock.Anything, mock.MatchedBy(func(r *models.DeliveryNoteRecord) bool {
		return r.DNNumber == "JP25011200001" && r.Status == "restored"
	})).Return(nil)

	plan := reconciler.Plan{
		Updates: []reconciler.Change{{
			DNNumber: "JP25011200001",
			Restore:  true,
			Fields:   map[string]*string{},
		}},
	}

	w := newTestWriter(store, records, nil)
	result := w.Apply(context.Background(), plan)

	require.Equal(t, 1, result.Restored)
	require.Equal(t, 1, result.Updated)
	store.AssertExpectations(t)
	records.AssertExpectations(t)
}

func TestApplyCreateFailureIsolation(t *testing.T) {
	store := new(MockStore)
	records := new(MockRecorder)

	store.On("Create", mock.Anything, "JP25011200001", mock.Anything).Return(errors.New("insert failed"))
	store.On("Create", mock.Anything, "JP25011200002", mock.Anything).Return(nil)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	plan := reconciler.Plan{
		Creates: []reconciler.Change{
			{DNNumber: "JP25011200001", Fields: map[string]*string{"du_id": strptr("DU-1")}},
			{DNNumber: "JP25011200002", Fields: map[string]*string{"du_id": strptr("DU-2")}},
		},
	}

	w := newTestWriter(store, records, nil)
	result := w.Apply(context.Background(), plan)

	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Created)
	require.Equal(t, []string{"JP25011200002"}, result.DNNumbers)
}

func TestApplyWithheldContactBackWrite(t *testing.T) {
	store := new(MockStore)
	records := new(MockRecorder)
	source := new(MockSource)

	store.On("Update", mock.Anything, "JP25011200001", mock.Anything, false, false).Return(nil)
	source.On("UpdateCells", mock.Anything, mock.Anything).Return(nil)

	plan := reconciler.Plan{
		Updates: []reconciler.Change{{
			DNNumber:        "JP25011200001",
			Sheet:           "Plan MOS W37",
			RowIndex:        9,
			Fields:          map[string]*string{},
			WithheldContact: strptr("0800-manual"),
		}},
	}

	w := newTestWriter(store, records, source)
	result := w.Apply(context.Background(), plan)

	// A withheld contact alone is not a content change.
	require.Equal(t, 0, result.Updated)
	require.Equal(t, 1, result.Ignored)

	source.AssertCalled(t, "UpdateCells", mock.Anything, []feed.CellWrite{{
		Sheet:  "Plan MOS W37",
		Row:    9,
		Column: 10,
		Value:  "0800-manual",
		Note:   BackWriteNote,
	}})
}

func TestApplySoftDeletesAndUnchanged(t *testing.T) {
	store := new(MockStore)
	records := new(MockRecorder)

	store.On("SoftDelete", mock.Anything, []string{"JP25011200001", "JP25011200002"}).Return(nil)
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	plan := reconciler.Plan{
		SoftDeletes: []string{"JP25011200001", "JP25011200002"},
		Unchanged:   []string{"JP25011200003"},
	}

	w := newTestWriter(store, records, nil)
	result := w.Apply(context.Background(), plan)

	require.Equal(t, 2, result.Deleted)
	require.Equal(t, 1, result.Ignored)
	store.AssertExpectations(t)
}
