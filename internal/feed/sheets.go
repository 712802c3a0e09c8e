package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsConfig holds the connection settings for a Google Sheets feed.
type SheetsConfig struct {
	SpreadsheetID   string
	APIKey          string
	CredentialsFile string
	WorksheetPrefix string
	HeaderRows      int
	MaxRetries      uint64
}

// SheetsSource reads plan worksheets from a Google spreadsheet.
type SheetsSource struct {
	svc           *sheets.Service
	spreadsheetID string
	prefix        string
	headerRows    int
	maxRetries    uint64
	sheetIDs      map[string]int64
}

// NewSheetsSource builds a Sheets-backed Source. A credentials file takes
// precedence over an API key; back-writes require the former since API
// keys are read only.
func NewSheetsSource(ctx context.Context, cfg SheetsConfig) (*SheetsSource, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	default:
		return nil, errors.New("sheets feed needs an API key or a credentials file")
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sheets client")
	}

	prefix := cfg.WorksheetPrefix
	if prefix == "" {
		prefix = "Plan MOS"
	}
	headerRows := cfg.HeaderRows
	if headerRows <= 0 {
		headerRows = 3
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 4
	}

	return &SheetsSource{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		prefix:        prefix,
		headerRows:    headerRows,
		maxRetries:    retries,
		sheetIDs:      make(map[string]int64),
	}, nil
}

// Worksheets lists the worksheet titles carrying the plan prefix and
// refreshes the title to sheet ID map used for back-writes.
func (s *SheetsSource) Worksheets(ctx context.Context) ([]string, error) {
	var meta *sheets.Spreadsheet
	err := s.retry(ctx, func() error {
		var err error
		meta, err = s.svc.Spreadsheets.Get(s.spreadsheetID).
			Fields("sheets.properties").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list worksheets")
	}

	var titles []string
	for _, sh := range meta.Sheets {
		if sh.Properties == nil {
			continue
		}
		title := sh.Properties.Title
		s.sheetIDs[title] = sh.Properties.SheetId
		if strings.HasPrefix(title, s.prefix) {
			titles = append(titles, title)
		}
	}
	return titles, nil
}

// ReadRows reads the data rows of one worksheet, skipping the header rows.
func (s *SheetsSource) ReadRows(ctx context.Context, title string) ([]Row, error) {
	rng := fmt.Sprintf("'%s'!A%d:AZ", title, s.headerRows+1)

	var resp *sheets.ValueRange
	err := s.retry(ctx, func() error {
		var err error
		resp, err = s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).
			ValueRenderOption("FORMATTED_VALUE").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read worksheet %s", title)
	}

	rows := make([]Row, 0, len(resp.Values))
	for i, raw := range resp.Values {
		values := make([]string, len(raw))
		for j, cell := range raw {
			values[j] = fmt.Sprint(cell)
		}
		rows = append(rows, Row{RowIndex: s.headerRows + 1 + i, Values: values})
	}
	return rows, nil
}

// UpdateCells pushes cell mutations back to the spreadsheet, grouped per
// worksheet in one batch request.
func (s *SheetsSource) UpdateCells(ctx context.Context, writes []CellWrite) error {
	if len(writes) == 0 {
		return nil
	}

	var requests []*sheets.Request
	for _, w := range writes {
		sheetID, ok := s.sheetIDs[w.Sheet]
		if !ok {
			log.Warn().Str("sheet", w.Sheet).Msg("Skipping write to unknown worksheet")
			continue
		}

		value := w.Value
		cell := &sheets.CellData{
			UserEnteredValue: &sheets.ExtendedValue{StringValue: &value},
		}
		fields := "userEnteredValue"
		if w.Note != "" {
			cell.Note = w.Note
			fields = "userEnteredValue,note"
		}

		requests = append(requests, &sheets.Request{
			UpdateCells: &sheets.UpdateCellsRequest{
				Start: &sheets.GridCoordinate{
					SheetId:     sheetID,
					RowIndex:    int64(w.Row - 1),
					ColumnIndex: int64(w.Column),
				},
				Rows:   []*sheets.RowData{{Values: []*sheets.CellData{cell}}},
				Fields: fields,
			},
		})
	}
	if len(requests) == 0 {
		return nil
	}

	err := s.retry(ctx, func() error {
		_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: requests,
		}).Context(ctx).Do()
		return err
	})
	return errors.Wrap(err, "failed to write cells back to spreadsheet")
}

// retry runs op with exponential backoff. Client errors other than rate
// limits are not retried.
func (s *SheetsSource) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 {
			return backoff.Permanent(err)
		}
		log.Warn().Err(err).Msg("Sheets request failed, retrying")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx))
}
