// Package workspace reads candidate rows from the planning spreadsheet.
package workspace

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/timeout"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

// Source yields rows that are ready to ship.
type Source interface {
	FetchCandidateRows(ctx context.Context) ([]types.Row, error)
}

// Sheet columns, left to right.
const (
	colID = iota
	colLink
	colAdSet
	colAdName
	colAngle
	colHook
	colLanding
	colStatus
)

// Statuses that mark a row as ready. An empty status counts as ready.
var readyStatuses = map[string]bool{"": true, "ready": true, "queued": true}

var rangeStart = regexp.MustCompile(`![A-Za-z]+(\d+)`)

// SheetSource reads rows from a Google Sheets range.
type SheetSource struct {
	svc           *sheets.Service
	spreadsheetID string
	readRange     string
	timeouts      *timeout.Manager
	log           logger.Logger
}

// NewSheetSource creates a Sheets-backed source.
func NewSheetSource(ctx context.Context, spreadsheetID, readRange string, timeouts *timeout.Manager, log logger.Logger, opts ...option.ClientOption) (*SheetSource, error) {
	if spreadsheetID == "" {
		return nil, pipeerrors.New(pipeerrors.ErrMissingRequired, "spreadsheet ID is required")
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets client: %w", err)
	}
	return &SheetSource{svc: svc, spreadsheetID: spreadsheetID, readRange: readRange, timeouts: timeouts, log: log}, nil
}

// FetchCandidateRows returns every row with a link and a ready status.
// Rows without an ID column get one from their sheet row number.
func (s *SheetSource) FetchCandidateRows(ctx context.Context) ([]types.Row, error) {
	resp, err := timeout.Call(ctx, s.timeouts, timeout.OpSheets, func(ctx context.Context) (*sheets.ValueRange, error) {
		return s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).Context(ctx).Do()
	})
	if err != nil {
		return nil, pipeerrors.FromGoogleAPI(err, "sheets read")
	}

	first := firstRow(s.readRange)
	var rows []types.Row
	skipped := 0
	for i, values := range resp.Values {
		row, ok := parseRow(values, first+i)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	s.log.Info("Fetched candidate rows",
		logger.String("range", s.readRange),
		logger.Int("candidates", len(rows)),
		logger.Int("skipped", skipped),
	)
	return rows, nil
}

func parseRow(values []any, sheetRow int) (types.Row, bool) {
	cell := func(i int) string {
		if i >= len(values) {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(values[i]))
	}
	if cell(colLink) == "" || !readyStatuses[strings.ToLower(cell(colStatus))] {
		return types.Row{}, false
	}
	id := cell(colID)
	if id == "" {
		id = "row-" + strconv.Itoa(sheetRow)
	}
	return types.Row{
		ID:         id,
		Link:       cell(colLink),
		AdSetName:  cell(colAdSet),
		AdName:     cell(colAdName),
		Angle:      types.CreativeAngle{Name: cell(colAngle), Hook: cell(colHook)},
		LandingURL: cell(colLanding),
	}, true
}

func firstRow(readRange string) int {
	m := rangeStart.FindStringSubmatch(readRange)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1
	}
	return n
}
