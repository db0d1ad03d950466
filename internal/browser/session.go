// Package browser drives a single Chrome tab through chromedp and exposes it
// as a harvest.Page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-harvester/internal/harvest"
)

// DefaultUserAgent is a desktop Chrome user agent the portal serves normally.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36"

// Config controls the browser session.
type Config struct {
	Headless          bool
	UserAgent         string
	AcceptLanguage    string
	NavigationTimeout time.Duration
	// QueryTimeout bounds reads that should not block, such as Count.
	QueryTimeout time.Duration
	WindowWidth  int
	WindowHeight int
}

const (
	defaultNavigationTimeout = 60 * time.Second
	defaultQueryTimeout      = 5 * time.Second
)

// Session is one browser tab. It is not safe for concurrent use; the
// harvester drives it from a single goroutine.
type Session struct {
	cfg         Config
	logger      *zap.Logger
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	// docStatus is the HTTP status of the last main-document response.
	docStatus atomic.Int64
}

var _ harvest.Page = (*Session)(nil)

// New launches Chrome and opens a tab.
func New(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser")

	opts := chromedp.DefaultExecAllocatorOptions[:]
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	sugar := logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)
	s := &Session{
		cfg:         cfg,
		logger:      logger,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}
	if err := chromedp.Run(tabCtx, s.networkSetupAction()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	chromedp.ListenTarget(tabCtx, s.captureEvent)
	logger.Info("browser session started", zap.Bool("headless", cfg.Headless))
	return s, nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		ua := s.cfg.UserAgent
		if ua == "" {
			ua = DefaultUserAgent
		}
		override := emulation.SetUserAgentOverride(ua)
		if s.cfg.AcceptLanguage != "" {
			override = override.WithAcceptLanguage(s.cfg.AcceptLanguage)
		}
		if err := override.Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if headers := extraHeaders(s.cfg); len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func extraHeaders(cfg Config) network.Headers {
	headers := network.Headers{}
	if cfg.AcceptLanguage != "" {
		headers["Accept-Language"] = cfg.AcceptLanguage
	}
	return headers
}

func (s *Session) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	s.docStatus.Store(resp.Response.Status)
}

// allocatorFlags are the Chrome switches layered over chromedp's defaults.
func allocatorFlags(cfg Config) map[string]any {
	flags := map[string]any{
		"headless":           cfg.Headless,
		"disable-gpu":        true,
		"enable-automation":  false,
		"hide-scrollbars":    cfg.Headless,
		"mute-audio":         true,
		"disable-extensions": true,
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	flags["user-agent"] = ua
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight)
	}
	return flags
}

// Close shuts the tab and the browser down.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	err := chromedp.Cancel(s.tabCtx)
	s.tabCancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// run executes actions on the tab, bounded by timeout and canceled with ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// Open navigates to url and waits for the body. An HTTP error status on the
// main document fails the navigation.
func (s *Session) Open(ctx context.Context, url string) error {
	s.docStatus.Store(0)
	err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := checkStatus(s.docStatus.Load()); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func checkStatus(status int64) error {
	if status >= 400 {
		return fmt.Errorf("document returned HTTP %d", status)
	}
	return nil
}

// Count returns how many elements sel matches right now.
func (s *Session) Count(ctx context.Context, sel string) int {
	nodes, err := s.nodes(ctx, sel)
	if err != nil {
		s.logger.Debug("count failed", zap.String("selector", sel), zap.Error(err))
		return 0
	}
	return len(nodes)
}

func (s *Session) nodes(ctx context.Context, sel string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, s.cfg.QueryTimeout, chromedp.Nodes(querySelector(sel, false), &nodes, queryBy(sel, false), chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Click clicks the first visible match of sel, scrolling it into view.
func (s *Session) Click(ctx context.Context, sel string, timeout time.Duration) error {
	if err := s.run(ctx, timeout, chromedp.Click(querySelector(sel, true), queryBy(sel, true), chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

// Attribute reads an attribute of the first match of sel.
func (s *Session) Attribute(ctx context.Context, sel, name string) (string, error) {
	nodes, err := s.nodes(ctx, sel)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", sel, err)
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("%s: %w", sel, harvest.ErrNotFound)
	}
	value, ok := nodes[0].Attribute(name)
	if !ok {
		return "", fmt.Errorf("%s[%s]: %w", sel, name, harvest.ErrNotFound)
	}
	return value, nil
}

// SelectOption sets a select's value and fires its change event.
func (s *Session) SelectOption(ctx context.Context, sel, value string, timeout time.Duration) error {
	var ok bool
	if err := s.run(ctx, timeout, chromedp.Evaluate(selectOptionScript(sel, value), &ok)); err != nil {
		return fmt.Errorf("select %s: %w", sel, err)
	}
	if !ok {
		return fmt.Errorf("select %s: %w", sel, harvest.ErrNotFound)
	}
	return nil
}

// RowClasses returns the class attribute of every row matched by rowSel.
func (s *Session) RowClasses(ctx context.Context, rowSel string) ([]string, error) {
	var classes []string
	if err := s.run(ctx, s.cfg.QueryTimeout, chromedp.Evaluate(rowClassesScript(rowSel), &classes)); err != nil {
		return nil, fmt.Errorf("row classes %s: %w", rowSel, err)
	}
	return classes, nil
}

// CellText returns the rendered text of the cell-th td of the row-th row.
func (s *Session) CellText(ctx context.Context, rowSel string, row, cell int) (string, error) {
	var text *string
	if err := s.run(ctx, s.cfg.QueryTimeout, chromedp.Evaluate(cellTextScript(rowSel, row, cell), &text)); err != nil {
		return "", fmt.Errorf("cell %d/%d: %w", row, cell, err)
	}
	if text == nil {
		return "", fmt.Errorf("cell %d/%d: %w", row, cell, harvest.ErrNotFound)
	}
	return *text, nil
}

// ClickCell performs a real mouse click on a table cell.
func (s *Session) ClickCell(ctx context.Context, rowSel string, row, cell int, timeout time.Duration) error {
	err := s.run(ctx, timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var rows []*cdp.Node
		if err := chromedp.Nodes(querySelector(rowSel, false), &rows, queryBy(rowSel, false), chromedp.AtLeast(0)).Do(ctx); err != nil {
			return fmt.Errorf("query rows: %w", err)
		}
		if row < 0 || row >= len(rows) {
			return fmt.Errorf("row %d of %d: %w", row, len(rows), harvest.ErrNotFound)
		}
		var cells []*cdp.Node
		if err := chromedp.Nodes(":scope > td", &cells, chromedp.ByQueryAll, chromedp.FromNode(rows[row]), chromedp.AtLeast(0)).Do(ctx); err != nil {
			return fmt.Errorf("query cells: %w", err)
		}
		if cell < 0 || cell >= len(cells) {
			return fmt.Errorf("cell %d of %d: %w", cell, len(cells), harvest.ErrNotFound)
		}
		return chromedp.MouseClickNode(cells[cell]).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("click cell %d/%d: %w", row, cell, err)
	}
	return nil
}

// NextSibling reads the element following the row-th row.
func (s *Session) NextSibling(ctx context.Context, rowSel string, row int) (harvest.Sibling, error) {
	var sib *siblingResult
	if err := s.run(ctx, s.cfg.QueryTimeout, chromedp.Evaluate(nextSiblingScript(rowSel, row), &sib)); err != nil {
		return harvest.Sibling{}, fmt.Errorf("sibling of row %d: %w", row, err)
	}
	if sib == nil {
		return harvest.Sibling{}, fmt.Errorf("sibling of row %d: %w", row, harvest.ErrNotFound)
	}
	return harvest.Sibling{Class: sib.Class, Text: sib.Text, HTML: sib.HTML, BaseURL: sib.BaseURL}, nil
}

// classify maps chromedp failures onto the harvest sentinels. A deadline
// that was not the caller's own is an interaction timeout.
func classify(ctx context.Context, err error) error {
	if ctx != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", harvest.ErrInteractionTimeout, err)
	}
	return err
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
