package harvest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Column positions of the summary cells; cell 0 is the expand toggle.
const (
	toggleCell      = 0
	categoryCell    = 1
	titleCell       = 2
	eSubmissionCell = 3
	advertisedCell  = 4
	closingCell     = 5
)

// TableReader waits for the table and reads its parent rows.
type TableReader struct {
	page    Page
	sel     Selectors
	timing  Timing
	overlay *OverlaySuppressor
	pacer   *Pacer
	logger  *zap.Logger
}

// NewTableReader wires a reader; the suppressor runs on every readiness poll.
func NewTableReader(page Page, sel Selectors, timing Timing, overlay *OverlaySuppressor, pacer *Pacer, logger *zap.Logger) *TableReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableReader{page: page, sel: sel, timing: timing, overlay: overlay, pacer: pacer, logger: logger}
}

// WaitForReady reports whether at least one row rendered within maxWait.
func (t *TableReader) WaitForReady(ctx context.Context, maxWait time.Duration) bool {
	return RetryUntil(ctx, func(ctx context.Context) bool {
		if t.overlay != nil {
			t.overlay.Suppress(ctx)
		}
		if t.page.Count(ctx, t.sel.Rows) > 0 {
			return true
		}
		if t.page.Count(ctx, t.sel.Table) == 0 {
			return false
		}
		t.pacer.Settle(ctx, t.timing.TableSettle)
		return t.page.Count(ctx, t.sel.Rows) > 0
	}, maxWait, t.timing.ReadyPoll)
}

// ParentRows lists the rows that are not detail rows, in document order.
func (t *TableReader) ParentRows(ctx context.Context) ([]Row, error) {
	classes, err := t.page.RowClasses(ctx, t.sel.Rows)
	if err != nil {
		return nil, fmt.Errorf("read row classes: %w", err)
	}
	rows := make([]Row, 0, len(classes))
	for i, class := range classes {
		if hasClass(class, t.sel.DetailRowClass) {
			continue
		}
		rows = append(rows, Row{Ordinal: len(rows), Index: i})
	}
	return rows, nil
}

// ParentRow re-reads the row list and returns the ordinal-th parent row, so
// a detail row left open by an earlier row does not shift its position.
func (t *TableReader) ParentRow(ctx context.Context, ordinal int) (Row, error) {
	rows, err := t.ParentRows(ctx)
	if err != nil {
		return Row{}, err
	}
	if ordinal < 0 || ordinal >= len(rows) {
		return Row{}, fmt.Errorf("parent row %d of %d: %w", ordinal, len(rows), ErrNotFound)
	}
	return rows[ordinal], nil
}

// ReadColumns reads the summary cells of row. Unreadable cells are "".
func (t *TableReader) ReadColumns(ctx context.Context, row Row) Columns {
	return Columns{
		Category:    t.cell(ctx, row, categoryCell),
		Title:       t.cell(ctx, row, titleCell),
		ESubmission: t.cell(ctx, row, eSubmissionCell),
		Advertised:  t.cell(ctx, row, advertisedCell),
		Closing:     t.cell(ctx, row, closingCell),
	}
}

func (t *TableReader) cell(ctx context.Context, row Row, cell int) string {
	text, err := t.page.CellText(ctx, t.sel.Rows, row.Index, cell)
	if err != nil {
		t.logger.Debug("cell unreadable", zap.Int("row", row.Ordinal), zap.Int("cell", cell), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

// hasClass reports whether the space separated class list contains name.
func hasClass(classList, name string) bool {
	if name == "" {
		return false
	}
	for _, c := range strings.Fields(classList) {
		if c == name {
			return true
		}
	}
	return false
}
