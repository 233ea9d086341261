package analytics

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsSink appends one row per event to a Google Sheets range.
type SheetsSink struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	writeRange    string
}

// NewSheetsSink builds the Sheets client. With no credentials file the
// client falls back to application default credentials.
func NewSheetsSink(ctx context.Context, spreadsheetID, writeRange, credentialsFile string, opts ...option.ClientOption) (*SheetsSink, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return &SheetsSink{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		writeRange:    writeRange,
	}, nil
}

func (s *SheetsSink) Name() string { return "sheets" }

func (s *SheetsSink) Deliver(ctx context.Context, e Event) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{Row(e)}}
	_, err := s.values.Append(s.spreadsheetID, s.writeRange, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("appending %s row: %w", e.Kind, err)
	}
	return nil
}

// Row flattens an event into spreadsheet cells. Unset optional fields
// become empty cells so every row has the same width.
func Row(e Event) []interface{} {
	return []interface{}{
		e.Timestamp.UTC().Format(time.RFC3339),
		string(e.Kind),
		e.ID.String(),
		e.ClientHash,
		e.IsMobile,
		e.ReferralCode,
		e.Source,
		e.InputMethod,
		e.Platform,
		optInt(e.TextLength, e.TextLength > 0),
		optIntPtr(e.KeywordCount),
		optBool(e.WasAlreadyLimited),
		optBool(e.LimitReachedThisAttempt),
		e.ErrorMessage,
		e.Email,
	}
}

func optInt(v int, ok bool) interface{} {
	if !ok {
		return ""
	}
	return v
}

func optIntPtr(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func optBool(v *bool) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
