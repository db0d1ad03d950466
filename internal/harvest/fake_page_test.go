package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const testBaseURL = "https://www.etenders.gov.za/Home/opportunities?id=1"

// fakeRow is one parent row of the simulated DataTable.
type fakeRow struct {
	cells      []string
	detail     string
	detailHTML string
	// expandFails makes the toggle click time out.
	expandFails bool
	// collapseFails makes the toggle click time out once the panel is open.
	collapseFails bool
}

// fakePage simulates the paginated table with DataTables-style child rows.
type fakePage struct {
	mu  sync.Mutex
	sel Selectors

	pages   [][]fakeRow
	current int
	// open holds the parent rows whose child row is rendered; like
	// DataTables, several can be open at once.
	open map[int]bool

	openErr      error
	tableMissing bool
	// nextUnknown makes the next control's class unreadable.
	nextUnknown bool
	// nextBroken makes every next candidate click fail.
	nextBroken  bool
	overlayLeft int

	opened    []string
	clicks    []string
	expands   int
	collapses int
	selected  map[string]string
}

func newFakePage(sel Selectors, pages ...[]fakeRow) *fakePage {
	return &fakePage{sel: sel, pages: pages, open: map[int]bool{}, selected: map[string]string{}}
}

func (f *fakePage) rows() []fakeRow {
	if f.tableMissing || f.current >= len(f.pages) {
		return nil
	}
	return f.pages[f.current]
}

func (f *fakePage) lastPage() bool {
	return f.current >= len(f.pages)-1
}

func (f *fakePage) Open(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	return f.openErr
}

func (f *fakePage) Count(_ context.Context, sel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch sel {
	case f.sel.Rows:
		return len(f.rows()) + len(f.open)
	case f.sel.Table:
		if f.tableMissing {
			return 0
		}
		return 1
	case f.sel.NextCandidates[0], f.sel.PageLength:
		return 1
	case repeatableOverlay:
		if f.overlayLeft > 0 {
			return 1
		}
	}
	return 0
}

func (f *fakePage) Click(_ context.Context, sel string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, sel)
	switch sel {
	case f.sel.NextCandidates[0]:
		if f.nextBroken || f.lastPage() {
			return ErrInteractionTimeout
		}
		f.current++
		f.open = map[int]bool{}
		return nil
	case f.sel.EntryLink:
		return nil
	case repeatableOverlay:
		if f.overlayLeft > 0 {
			f.overlayLeft--
			return nil
		}
	}
	return ErrInteractionTimeout
}

func (f *fakePage) Attribute(_ context.Context, sel, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sel != f.sel.NextContainer || name != "class" || f.nextUnknown {
		return "", ErrNotFound
	}
	if f.lastPage() {
		return "paginate_button next disabled", nil
	}
	return "paginate_button next", nil
}

func (f *fakePage) SelectOption(_ context.Context, sel, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected[sel] = value
	return nil
}

// docRows returns the class list of every rendered row, including the open
// child row, and maps document indices back to parent indices.
func (f *fakePage) docRows() ([]string, []int) {
	var classes []string
	var parents []int
	for i := range f.rows() {
		classes = append(classes, "odd")
		parents = append(parents, i)
		if f.open[i] {
			classes = append(classes, "child")
			parents = append(parents, -1)
		}
	}
	return classes, parents
}

func (f *fakePage) RowClasses(_ context.Context, rowSel string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rowSel != f.sel.Rows {
		return nil, ErrNotFound
	}
	classes, _ := f.docRows()
	return classes, nil
}

func (f *fakePage) parentAt(index int) (fakeRow, int, error) {
	_, parents := f.docRows()
	if index < 0 || index >= len(parents) || parents[index] < 0 {
		return fakeRow{}, -1, fmt.Errorf("row %d: %w", index, ErrNotFound)
	}
	return f.rows()[parents[index]], parents[index], nil
}

func (f *fakePage) CellText(_ context.Context, _ string, row, cell int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, _, err := f.parentAt(row)
	if err != nil {
		return "", err
	}
	if cell >= len(r.cells) {
		return "", fmt.Errorf("cell %d: %w", cell, ErrNotFound)
	}
	return r.cells[cell], nil
}

func (f *fakePage) ClickCell(_ context.Context, _ string, row, cell int, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, parent, err := f.parentAt(row)
	if err != nil {
		return err
	}
	if cell != toggleCell || r.expandFails {
		return ErrInteractionTimeout
	}
	if f.open[parent] {
		if r.collapseFails {
			return ErrInteractionTimeout
		}
		delete(f.open, parent)
		f.collapses++
		return nil
	}
	f.open[parent] = true
	f.expands++
	return nil
}

func (f *fakePage) NextSibling(_ context.Context, _ string, row int) (Sibling, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, parent, err := f.parentAt(row)
	if err != nil {
		return Sibling{}, err
	}
	if f.open[parent] {
		r := f.rows()[parent]
		return Sibling{Class: "child", Text: r.detail, HTML: r.detailHTML, BaseURL: testBaseURL}, nil
	}
	if parent+1 < len(f.rows()) {
		return Sibling{Class: "odd", Text: "next parent"}, nil
	}
	return Sibling{}, ErrNotFound
}

func (f *fakePage) Close() error { return nil }

// memStore is an in-memory Store that records every checkpoint written.
type memStore struct {
	mu          sync.Mutex
	records     []TenderRecord
	keys        map[string]struct{}
	resume      *Checkpoint
	checkpoints []Checkpoint
	saves       int
	onAdmit     func(TenderRecord)
}

func newMemStore(resume *Checkpoint, seed ...TenderRecord) *memStore {
	s := &memStore{keys: map[string]struct{}{}, resume: resume}
	for _, r := range seed {
		s.keys[r.Key()] = struct{}{}
		s.records = append(s.records, r)
	}
	return s
}

func (s *memStore) Admit(rec TenderRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onAdmit != nil {
		s.onAdmit(rec)
	}
	if _, ok := s.keys[rec.Key()]; ok {
		return false
	}
	s.keys[rec.Key()] = struct{}{}
	s.records = append(s.records, rec)
	return true
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) Resume() (Checkpoint, bool) {
	if s.resume == nil {
		return Checkpoint{}, false
	}
	return *s.resume, true
}

func (s *memStore) SaveCheckpoint(cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

func (s *memStore) SaveResults(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

func (s *memStore) lastCheckpoint() Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.checkpoints) == 0 {
		return Checkpoint{}
	}
	return s.checkpoints[len(s.checkpoints)-1]
}

func (s *memStore) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Title)
	}
	return out
}

const repeatableOverlay = "#got-it"

// testConfig is DefaultConfig with every wait shrunk to keep tests fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Overlay.Repeatable = repeatableOverlay
	cfg.Overlay.AttemptTimeout = time.Millisecond
	cfg.Timing = Timing{
		ReadyTimeout:    30 * time.Millisecond,
		ReadyPoll:       time.Millisecond,
		EntryTimeout:    time.Millisecond,
		ExpandTimeout:   time.Millisecond,
		CollapseTimeout: time.Millisecond,
		NextTimeout:     time.Millisecond,
	}
	return cfg
}

// tenderRow builds a parent row whose detail panel carries number.
func tenderRow(title, number string) fakeRow {
	detail := ""
	if number != "" {
		detail = "Tender Number: " + number + "\nDepartment: Public Works\nProvince: Gauteng"
	}
	return fakeRow{
		cells:      []string{"+", "Services", title, "Yes", "2025-08-01", "2025-09-01"},
		detail:     detail,
		detailHTML: `<tr class="child"><td><a href="/Documents/` + title + `.pdf"> Bid doc </a></td></tr>`,
	}
}
