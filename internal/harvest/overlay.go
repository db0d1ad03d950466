package harvest

import (
	"context"

	"go.uber.org/zap"
)

// OverlaySuppressor dismisses modals and banners that block the table.
type OverlaySuppressor struct {
	page   Page
	cfg    Overlay
	pacer  *Pacer
	logger *zap.Logger
}

// NewOverlaySuppressor binds the dismissal policy to a page.
func NewOverlaySuppressor(page Page, cfg Overlay, pacer *Pacer, logger *zap.Logger) *OverlaySuppressor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverlaySuppressor{page: page, cfg: cfg, pacer: pacer, logger: logger}
}

// Suppress tries each dismissal control once, then clicks the repeatable
// acknowledgement until it is gone or MaxRounds is reached. Failures are
// expected when no overlay is showing and are never reported.
func (o *OverlaySuppressor) Suppress(ctx context.Context) {
	for _, sel := range o.cfg.Dismiss {
		if err := o.page.Click(ctx, sel, o.cfg.AttemptTimeout); err != nil {
			o.logger.Debug("overlay control not dismissed", zap.String("selector", sel), zap.Error(err))
		}
	}
	if o.cfg.Repeatable == "" {
		return
	}
	for round := 0; round < o.cfg.MaxRounds; round++ {
		if o.page.Count(ctx, o.cfg.Repeatable) == 0 {
			return
		}
		if err := o.page.Click(ctx, o.cfg.Repeatable, o.cfg.AttemptTimeout); err != nil {
			o.logger.Debug("acknowledgement click failed", zap.Int("round", round), zap.Error(err))
		}
		o.pacer.Pause(ctx)
	}
}
