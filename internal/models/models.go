package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Soft-delete flag values for DeliveryNote. The flag is a character rather
// than gorm.DeletedAt because deleted rows must stay visible to the
// reconciler and be restorable when the DN reappears in the sheet.
const (
	NotDeleted = "N"
	Deleted    = "Y"
)

// DeliveryNote is one delivery-note row, keyed by its business number.
// The sheet is the source of record; gs_sheet/gs_row point back at the
// originating worksheet row so computed values can be written back.
type DeliveryNote struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	DNNumber            string    `gorm:"column:dn_number;not null;uniqueIndex" json:"dn_number"`
	DUID                *string   `gorm:"column:du_id" json:"du_id"`
	StatusWH            *string   `gorm:"column:status_wh" json:"status_wh"`
	StatusDelivery      *string   `json:"status_delivery"`
	StatusSite          *string   `json:"status_site"`
	LSP                 *string   `gorm:"column:lsp;index" json:"lsp"`
	Area                *string   `json:"area"`
	Region              *string   `json:"region"`
	PlanMOSDate         *string   `gorm:"column:plan_mos_date;index" json:"plan_mos_date"`
	MOSGivenTime        *string   `gorm:"column:mos_given_time" json:"mos_given_time"`
	MOSType             *string   `gorm:"column:mos_type" json:"mos_type"`
	ExpectedArrival     *string   `gorm:"column:expected_arrival_time_from_project" json:"expected_arrival_time_from_project"`
	ProjectRequest      *string   `json:"project_request"`
	Distance            *string   `gorm:"column:distance_poll_mover_to_site" json:"distance_poll_mover_to_site"`
	DeliveryType        *string   `gorm:"column:delivery_type_a_to_b" json:"delivery_type_a_to_b"`
	TransportationTime  *string   `json:"transportation_time"`
	EstimateDepartETD   *string   `gorm:"column:estimate_depart_from_start_point_etd" json:"estimate_depart_from_start_point_etd"`
	EstimateArriveETA   *string   `gorm:"column:estimate_arrive_sites_time_eta" json:"estimate_arrive_sites_time_eta"`
	LSPTracker          *string   `gorm:"column:lsp_tracker" json:"lsp_tracker"`
	HWTracker           *string   `gorm:"column:hw_tracker" json:"hw_tracker"`
	Subcon              *string   `json:"subcon"`
	SubconReceiver      *string   `gorm:"column:subcon_receiver_contact_number" json:"subcon_receiver_contact_number"`
	IssueRemark         *string   `json:"issue_remark"`
	DriverContactName   *string   `json:"driver_contact_name"`
	DriverContactNumber *string   `json:"driver_contact_number"`
	MOSAttempt1         *string   `gorm:"column:mos_attempt_1st_time" json:"mos_attempt_1st_time"`
	MOSAttempt2         *string   `gorm:"column:mos_attempt_2nd_time" json:"mos_attempt_2nd_time"`
	MOSAttempt3         *string   `gorm:"column:mos_attempt_3rd_time" json:"mos_attempt_3rd_time"`
	MOSAttempt4         *string   `gorm:"column:mos_attempt_4th_time" json:"mos_attempt_4th_time"`
	MOSAttempt5         *string   `gorm:"column:mos_attempt_5th_time" json:"mos_attempt_5th_time"`
	MOSAttempt6         *string   `gorm:"column:mos_attempt_6th_time" json:"mos_attempt_6th_time"`
	ActualDepartATD     *string   `gorm:"column:actual_depart_from_start_point_atd" json:"actual_depart_from_start_point_atd"`
	ActualArriveATA     *string   `gorm:"column:actual_arrive_time_ata" json:"actual_arrive_time_ata"`
	Lng                 *string   `json:"lng"`
	Lat                 *string   `json:"lat"`
	PhotoURL            *string   `json:"photo_url"`
	LastUpdatedBy       *string   `json:"last_updated_by"`
	GSSheet             *string   `gorm:"column:gs_sheet" json:"gs_sheet"`
	GSRow               *int      `gorm:"column:gs_row" json:"gs_row"`
	IsDeleted           string    `gorm:"not null;default:N;index" json:"is_deleted"`
	UpdateCount         int       `gorm:"not null;default:0" json:"update_count"`
}

// FieldByColumn returns a pointer to the struct field backing a sheet
// column, addressed by its database column name. gs_row is excluded since
// it is an int field; callers handle it separately.
func (n *DeliveryNote) FieldByColumn(name string) (**string, bool) {
	switch name {
	case "du_id":
		return &n.DUID, true
	case "status_wh":
		return &n.StatusWH, true
	case "status_delivery":
		return &n.StatusDelivery, true
	case "status_site":
		return &n.StatusSite, true
	case "lsp":
		return &n.LSP, true
	case "area":
		return &n.Area, true
	case "region":
		return &n.Region, true
	case "plan_mos_date":
		return &n.PlanMOSDate, true
	case "mos_given_time":
		return &n.MOSGivenTime, true
	case "mos_type":
		return &n.MOSType, true
	case "expected_arrival_time_from_project":
		return &n.ExpectedArrival, true
	case "project_request":
		return &n.ProjectRequest, true
	case "distance_poll_mover_to_site":
		return &n.Distance, true
	case "delivery_type_a_to_b":
		return &n.DeliveryType, true
	case "transportation_time":
		return &n.TransportationTime, true
	case "estimate_depart_from_start_point_etd":
		return &n.EstimateDepartETD, true
	case "estimate_arrive_sites_time_eta":
		return &n.EstimateArriveETA, true
	case "lsp_tracker":
		return &n.LSPTracker, true
	case "hw_tracker":
		return &n.HWTracker, true
	case "subcon":
		return &n.Subcon, true
	case "subcon_receiver_contact_number":
		return &n.SubconReceiver, true
	case "issue_remark":
		return &n.IssueRemark, true
	case "driver_contact_name":
		return &n.DriverContactName, true
	case "driver_contact_number":
		return &n.DriverContactNumber, true
	case "mos_attempt_1st_time":
		return &n.MOSAttempt1, true
	case "mos_attempt_2nd_time":
		return &n.MOSAttempt2, true
	case "mos_attempt_3rd_time":
		return &n.MOSAttempt3, true
	case "mos_attempt_4th_time":
		return &n.MOSAttempt4, true
	case "mos_attempt_5th_time":
		return &n.MOSAttempt5, true
	case "mos_attempt_6th_time":
		return &n.MOSAttempt6, true
	case "actual_depart_from_start_point_atd":
		return &n.ActualDepartATD, true
	case "actual_arrive_time_ata":
		return &n.ActualArriveATA, true
	case "lng":
		return &n.Lng, true
	case "lat":
		return &n.Lat, true
	case "photo_url":
		return &n.PhotoURL, true
	case "last_updated_by":
		return &n.LastUpdatedBy, true
	case "gs_sheet":
		return &n.GSSheet, true
	}
	return nil, false
}

// ColumnKind enumerates the value types a runtime-added column may hold.
type ColumnKind string

const (
	ColumnText    ColumnKind = "text"
	ColumnNumber  ColumnKind = "number"
	ColumnBoolean ColumnKind = "boolean"
	ColumnDate    ColumnKind = "date"
)

// ColumnDef registers a dynamic delivery-note column added at runtime.
// Values live in DeliveryNoteExtra so the core entity stays statically typed.
type ColumnDef struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	Name      string     `gorm:"not null;uniqueIndex" json:"name"`
	Kind      ColumnKind `gorm:"not null;default:text" json:"kind"`
}

// DeliveryNoteExtra holds one dynamic-column value for one delivery note.
type DeliveryNoteExtra struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DNNumber    string     `gorm:"column:dn_number;not null;index:idx_extra_dn_column,unique" json:"dn_number"`
	ColumnName  string     `gorm:"not null;index:idx_extra_dn_column,unique" json:"column_name"`
	TextValue   *string    `json:"text_value"`
	NumberValue *float64   `json:"number_value"`
	BoolValue   *bool      `json:"bool_value"`
	DateValue   *time.Time `json:"date_value"`
}

// DeliveryNoteRecord is the append-only history trail for a delivery note.
// Rows are never updated by the reconciliation core.
type DeliveryNoteRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	DNNumber       string    `gorm:"column:dn_number;not null;index" json:"dn_number"`
	Status         string    `gorm:"not null" json:"status"`
	StatusDelivery *string   `json:"status_delivery"`
	Remark         *string   `json:"remark"`
	PhotoURL       *string   `json:"photo_url"`
	Lng            *string   `json:"lng"`
	Lat            *string   `json:"lat"`
	UpdatedBy      *string   `json:"updated_by"`
}

// SyncRun statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// SyncRun records one execution of the sheet reconciliation pipeline.
// A run is created when the feed pull starts and finalized exactly once.
type SyncRun struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	Status        string     `gorm:"not null" json:"status"`
	StartedAt     time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	SyncedCount   int        `gorm:"not null;default:0" json:"synced_count"`
	CreatedCount  int        `gorm:"not null;default:0" json:"created_count"`
	UpdatedCount  int        `gorm:"not null;default:0" json:"updated_count"`
	IgnoredCount  int        `gorm:"not null;default:0" json:"ignored_count"`
	SkippedCount  int        `gorm:"not null;default:0" json:"skipped_count"`
	Message       *string    `json:"message"`
	DNNumbersJSON *string    `gorm:"column:dn_numbers_json" json:"-"`
	ErrorMessage  *string    `json:"error_message"`
	ErrorTrace    *string    `json:"error_trace"`
}

// LspDateSnapshot is the hourly point snapshot: per partner and plan MOS
// date, how many active notes sit in the delivery pipeline and how many of
// those carry a real status. One row per (lsp, plan_mos_date, hour).
type LspDateSnapshot struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	LSP            string    `gorm:"column:lsp;not null;index:idx_lsp_date_hour,unique" json:"lsp"`
	PlanMOSDate    string    `gorm:"column:plan_mos_date;not null;index:idx_lsp_date_hour,unique" json:"plan_mos_date"`
	RecordedAt     time.Time `gorm:"not null;index:idx_lsp_date_hour,unique" json:"recorded_at"`
	TotalDN        int       `gorm:"column:total_dn;not null;default:0" json:"total_dn"`
	StatusNotEmpty int       `gorm:"not null;default:0" json:"status_not_empty"`
}

// LspHourlySnapshot is the cumulative snapshot: per partner, the running
// count of distinct DNs whose latest history entry falls at or before the
// bucket hour of the bucket day. The current day's series is recomputed on
// every capture; within a day it never decreases, and it restarts at zero
// when the local day rolls over.
type LspHourlySnapshot struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	LSP        string    `gorm:"column:lsp;not null;index:idx_lsp_day_hour,unique" json:"lsp"`
	BucketDate string    `gorm:"not null;index:idx_lsp_day_hour,unique" json:"bucket_date"`
	BucketHour time.Time `gorm:"not null;index:idx_lsp_day_hour,unique" json:"bucket_hour"`
	UpdatedDN  int       `gorm:"column:updated_dn;not null;default:0" json:"updated_dn"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&DeliveryNote{},
		&ColumnDef{},
		&DeliveryNoteExtra{},
		&DeliveryNoteRecord{},
		&SyncRun{},
		&LspDateSnapshot{},
		&LspHourlySnapshot{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
