package harvest

import (
	"context"

	"go.uber.org/zap"
)

// Paginator moves the table between pages.
type Paginator struct {
	page   Page
	sel    Selectors
	timing Timing
	table  *TableReader
	pacer  *Pacer
	logger *zap.Logger
}

// NewPaginator wires a paginator that waits on table after every move.
func NewPaginator(page Page, sel Selectors, timing Timing, table *TableReader, pacer *Pacer, logger *zap.Logger) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{page: page, sel: sel, timing: timing, table: table, pacer: pacer, logger: logger}
}

// NextState reads the next control's class list. known is false when the
// control could not be read; callers pick their own default.
func (p *Paginator) NextState(ctx context.Context) (disabled, known bool) {
	class, err := p.page.Attribute(ctx, p.sel.NextContainer, "class")
	if err != nil {
		p.logger.Debug("next control state unknown", zap.Error(err))
		return false, false
	}
	return hasClass(class, p.sel.DisabledClass), true
}

// Advance clicks the first present next candidate and waits for the table.
// It returns false when no candidate could be clicked.
func (p *Paginator) Advance(ctx context.Context) bool {
	for _, sel := range p.sel.NextCandidates {
		if p.page.Count(ctx, sel) == 0 {
			continue
		}
		if err := p.page.Click(ctx, sel, p.timing.NextTimeout); err != nil {
			p.logger.Debug("next candidate click failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		p.pacer.Pause(ctx)
		if !p.table.WaitForReady(ctx, p.timing.ReadyTimeout) {
			p.logger.Warn("table not ready after paging", zap.String("selector", sel))
		}
		return true
	}
	return false
}

// FastForward advances from page from toward page to and returns the page
// reached. An unreadable next control counts as disabled here.
func (p *Paginator) FastForward(ctx context.Context, from, to int) int {
	current := from
	for current < to {
		if ctx.Err() != nil {
			break
		}
		if disabled, known := p.NextState(ctx); disabled || !known {
			p.logger.Info("next page unavailable while resuming", zap.Int("page", current), zap.Int("target", to))
			break
		}
		if !p.Advance(ctx) {
			p.logger.Warn("could not skip ahead", zap.Int("page", current), zap.Int("target", to))
			break
		}
		current++
		p.logger.Info("Skipped to page", zap.Int("page", current))
	}
	return current
}
