package harvest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(page Page, cfg Config) *TableReader {
	pacer := NewPacer(0, 0)
	overlay := NewOverlaySuppressor(page, cfg.Overlay, pacer, nil)
	return NewTableReader(page, cfg.Selectors, cfg.Timing, overlay, pacer, nil)
}

func TestParentRowsSkipsDetailRows(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	page := newFakePage(cfg.Selectors, pageOf("p1", 3))
	page.open[0] = true
	reader := newTestReader(page, cfg)

	rows, err := reader.ParentRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Row{{Ordinal: 0, Index: 0}, {Ordinal: 1, Index: 2}, {Ordinal: 2, Index: 3}}, rows)
}

func TestParentRowTracksOpenDetailRow(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	page := newFakePage(cfg.Selectors, pageOf("p1", 3))
	reader := newTestReader(page, cfg)
	ctx := context.Background()

	row, err := reader.ParentRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Row{Ordinal: 1, Index: 1}, row)

	page.open[0] = true
	row, err = reader.ParentRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Row{Ordinal: 1, Index: 2}, row)

	_, err = reader.ParentRow(ctx, 3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadColumns(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	page := newFakePage(cfg.Selectors, []fakeRow{
		{cells: []string{"+", " Services ", "\tGuarding\n", "No", "2025-08-01", "2025-09-01"}},
		{cells: []string{"+", "Goods", "Short row"}},
	})
	reader := newTestReader(page, cfg)

	cols := reader.ReadColumns(context.Background(), Row{Ordinal: 0, Index: 0})
	assert.Equal(t, Columns{Category: "Services", Title: "Guarding", ESubmission: "No", Advertised: "2025-08-01", Closing: "2025-09-01"}, cols)

	cols = reader.ReadColumns(context.Background(), Row{Ordinal: 1, Index: 1})
	assert.Equal(t, Columns{Category: "Goods", Title: "Short row"}, cols)
}

func TestWaitForReady(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	page := newFakePage(cfg.Selectors, pageOf("p1", 1))
	reader := newTestReader(page, cfg)
	require.True(t, reader.WaitForReady(context.Background(), time.Second))

	page.tableMissing = true
	start := time.Now()
	require.False(t, reader.WaitForReady(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestHasClass(t *testing.T) {
	t.Parallel()

	assert.True(t, hasClass("odd child", "child"))
	assert.True(t, hasClass(" child ", "child"))
	assert.False(t, hasClass("children", "child"))
	assert.False(t, hasClass("", "child"))
	assert.False(t, hasClass("child", ""))
}

func TestOverlaySuppressorRounds(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	page := newFakePage(cfg.Selectors)
	page.overlayLeft = 2
	s := NewOverlaySuppressor(page, cfg.Overlay, NewPacer(0, 0), nil)
	s.Suppress(context.Background())
	assert.Zero(t, page.overlayLeft)

	page.overlayLeft = 10
	s.Suppress(context.Background())
	assert.Equal(t, 10-cfg.Overlay.MaxRounds, page.overlayLeft)

	var dismissed int
	for _, c := range page.clicks {
		for _, d := range cfg.Overlay.Dismiss {
			if c == d {
				dismissed++
			}
		}
	}
	assert.Equal(t, 2*len(cfg.Overlay.Dismiss), dismissed, "each dismissal control is tried once per pass")
}
