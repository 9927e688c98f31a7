package google

import (
	"context"
	"fmt"
	"os"
	"time"

	"salonbot/internal/metrics"

	googleoauth "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// valuesClient is the subset of the Sheets values API the source needs.
type valuesClient interface {
	Get(ctx context.Context, rng string) ([][]interface{}, error)
	Append(ctx context.Context, rng string, rows [][]interface{}) (string, error)
	Update(ctx context.Context, rng string, rows [][]interface{}) error
}

// sheetsValues talks to the real API, throttled to stay under the per-user quota.
type sheetsValues struct {
	srv           *sheets.Service
	spreadsheetID string
	limiter       *rate.Limiter
}

func newSheetsValues(ctx context.Context, credentialsFile, spreadsheetID string, perMinute int) (*sheetsValues, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := googleoauth.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if perMinute <= 0 {
		perMinute = 60
	}
	return &sheetsValues{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		limiter:       rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 5),
	}, nil
}

func (v *sheetsValues) Get(ctx context.Context, rng string) ([][]interface{}, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	defer observe("get", time.Now())

	resp, err := v.srv.Spreadsheets.Values.Get(v.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (v *sheetsValues) Append(ctx context.Context, rng string, rows [][]interface{}) (string, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return "", err
	}
	defer observe("append", time.Now())

	resp, err := v.srv.Spreadsheets.Values.Append(v.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append %s: %w", rng, err)
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

func (v *sheetsValues) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	if err := v.limiter.Wait(ctx); err != nil {
		return err
	}
	defer observe("update", time.Now())

	_, err := v.srv.Spreadsheets.Values.Update(v.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func observe(op string, started time.Time) {
	metrics.ObserveSource("sheets_"+op, time.Since(started).Seconds())
}
