package sink

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"doctools/internal/logger"
	"doctools/pkg/models"
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// SheetsSink appends records to a worksheet with a fixed header row.
// Columns not present in a record are left empty and record fields that are
// not columns are dropped. A children column receives the nested entities as
// JSON. A record that fills no column is skipped.
type SheetsSink struct {
	service       *sheets.Service
	spreadsheetID string
	worksheet     string
	columns       []string
	log           zerolog.Logger
}

// NewSheetsSink creates a sink for the spreadsheet at sheetURL using service
// account credentials from GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.
func NewSheetsSink(ctx context.Context, sheetURL, worksheet string, columns []string) (*SheetsSink, error) {
	const op = "NewSheetsSink"

	var creds []byte
	var err error
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	return NewSheetsSinkWithOptions(ctx, sheetURL, worksheet, columns, option.WithHTTPClient(config.Client(ctx)))
}

// NewSheetsSinkWithOptions creates a sink with explicit client options.
func NewSheetsSinkWithOptions(ctx context.Context, sheetURL, worksheet string, columns []string, opts ...option.ClientOption) (*SheetsSink, error) {
	const op = "NewSheetsSink"

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%s: at least one column is required", op)
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &SheetsSink{
		service:       service,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		columns:       columns,
		log:           logger.WithComponent("sheets"),
	}, nil
}

// extractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

func (s *SheetsSink) Name() string {
	return "sheets:" + s.worksheet
}

// InsertRows appends one row per record in column order.
func (s *SheetsSink) InsertRows(ctx context.Context, records []*models.Record) (int, error) {
	const op = "InsertRows"

	var values [][]interface{}
	for _, r := range records {
		row, ok := s.rowValues(r)
		if !ok {
			s.log.Warn().
				Str("source_file", sourceFile([]*models.Record{r}, 0)).
				Msg("Record has no column in the sheet schema, skipping")
			continue
		}
		values = append(values, row)
	}
	if len(values) == 0 {
		return 0, nil
	}

	if err := s.ensureSheetWithHeaders(ctx); err != nil {
		return 0, fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	_, err := s.service.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.columnRange(),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	s.log.Info().
		Str("sheet", s.worksheet).
		Int("rows_written", len(values)).
		Msg("Rows appended")
	return len(values), nil
}

func (s *SheetsSink) rowValues(r *models.Record) ([]interface{}, bool) {
	row := make([]interface{}, len(s.columns))
	filled := false
	for i, col := range s.columns {
		if col == models.FieldChildren {
			v, _ := childrenJSON(r)
			row[i] = v
			filled = filled || v != ""
			continue
		}
		if v, ok := r.Get(col); ok {
			row[i] = v
			filled = true
		} else {
			row[i] = ""
		}
	}
	return row, filled
}

func (s *SheetsSink) columnRange() string {
	return fmt.Sprintf("%s!A:%s", s.worksheet, columnLetter(len(s.columns)))
}

// ensureSheetWithHeaders creates the worksheet and writes the header row when missing.
func (s *SheetsSink) ensureSheetWithHeaders(ctx context.Context) error {
	const op = "ensureSheetWithHeaders"

	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var sheetID int64
	exists := false
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == s.worksheet {
			exists = true
			sheetID = sheet.Properties.SheetId
			break
		}
	}

	if !exists {
		s.log.Info().Str("sheet", s.worksheet).Msg("Creating new sheet")

		resp, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: s.worksheet}}},
			},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}
		if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil {
			sheetID = resp.Replies[0].AddSheet.Properties.SheetId
		}
	}

	headerRange := fmt.Sprintf("%s!A1:%s1", s.worksheet, columnLetter(len(s.columns)))
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	s.log.Info().Str("sheet", s.worksheet).Msg("Adding headers to sheet")

	headers := make([]interface{}, len(s.columns))
	for i, col := range s.columns {
		headers[i] = col
	}
	_, err = s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		headerRange,
		&sheets.ValueRange{Values: [][]interface{}{headers}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to add headers: %w", op, err)
	}

	if err := s.formatHeaders(ctx, sheetID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
	}
	return nil
}

// formatHeaders makes the header row bold and auto-sizes the columns.
func (s *SheetsSink) formatHeaders(ctx context.Context, sheetID int64) error {
	width := int64(len(s.columns))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   width,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   width,
				},
			},
		},
	}

	_, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("formatHeaders: %w", err)
	}
	return nil
}

// columnLetter returns the A1 column name for a 1-based column number.
func columnLetter(n int) string {
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}
