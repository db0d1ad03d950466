package harvest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// DetailExpander opens and closes the detail panel beneath a parent row.
type DetailExpander struct {
	page   Page
	sel    Selectors
	timing Timing
	pacer  *Pacer
	logger *zap.Logger
}

// NewDetailExpander wires an expander.
func NewDetailExpander(page Page, sel Selectors, timing Timing, pacer *Pacer, logger *zap.Logger) *DetailExpander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailExpander{page: page, sel: sel, timing: timing, pacer: pacer, logger: logger}
}

// Expand clicks the row's toggle cell and reads the panel that appears.
// opened reports whether a detail panel was seen below the row, i.e. whether
// Collapse is due. Any failure yields an empty Detail.
func (d *DetailExpander) Expand(ctx context.Context, row Row) (detail Detail, opened bool) {
	if err := d.page.ClickCell(ctx, d.sel.Rows, row.Index, toggleCell, d.timing.ExpandTimeout); err != nil {
		d.logger.Debug("expand failed", zap.Int("row", row.Ordinal), zap.Error(err))
		return emptyDetail(), false
	}
	d.pacer.Settle(ctx, d.timing.ExpandSettle)

	sib, err := d.page.NextSibling(ctx, d.sel.Rows, row.Index)
	if err != nil {
		d.logger.Debug("detail panel unreadable", zap.Int("row", row.Ordinal), zap.Error(err))
		return emptyDetail(), false
	}
	if !hasClass(sib.Class, d.sel.DetailRowClass) {
		d.logger.Debug("row has no detail panel", zap.Int("row", row.Ordinal), zap.String("class", sib.Class))
		return emptyDetail(), false
	}
	anchors, err := parseAnchors(sib.HTML, sib.BaseURL)
	if err != nil {
		d.logger.Debug("detail anchors unreadable", zap.Int("row", row.Ordinal), zap.Error(err))
		anchors = []DocumentLink{}
	}
	return Detail{Text: sib.Text, Anchors: anchors}, true
}

// Collapse clicks the toggle again so row indices stay stable.
func (d *DetailExpander) Collapse(ctx context.Context, row Row) {
	if err := d.page.ClickCell(ctx, d.sel.Rows, row.Index, toggleCell, d.timing.CollapseTimeout); err != nil {
		d.logger.Debug("collapse failed", zap.Int("row", row.Ordinal), zap.Error(err))
		return
	}
	d.pacer.Settle(ctx, d.timing.CollapseSettle)
}

// parseAnchors returns every a[href] in fragment with trimmed text and the
// href resolved against base.
func parseAnchors(fragment, base string) ([]DocumentLink, error) {
	links := []DocumentLink{}
	if strings.TrimSpace(fragment) == "" {
		return links, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return links, fmt.Errorf("parse detail html: %w", err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		links = append(links, DocumentLink{
			Text: strings.TrimSpace(s.Text()),
			URL:  resolveHref(baseURL, strings.TrimSpace(href)),
		})
	})
	return links, nil
}

func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
