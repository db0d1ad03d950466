package harvest

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports that a selector or attribute matched nothing.
	ErrNotFound = errors.New("element not found")
	// ErrInteractionTimeout reports that an element did not become
	// interactable within the allotted time.
	ErrInteractionTimeout = errors.New("interaction timed out")
	// ErrTableNotReady is fatal: the table never rendered any rows.
	ErrTableNotReady = errors.New("table did not become ready")
)

// Sibling is the element that follows a row in the DOM, usually the detail row.
type Sibling struct {
	Class   string
	Text    string
	HTML    string
	BaseURL string
}

// Page is the browser surface the harvester drives. Selectors may be CSS or
// XPath. Row-scoped calls address the n-th element matched by rowSel.
type Page interface {
	Open(ctx context.Context, url string) error
	// Count never blocks; absent elements and errors both yield 0.
	Count(ctx context.Context, sel string) int
	Click(ctx context.Context, sel string, timeout time.Duration) error
	Attribute(ctx context.Context, sel, name string) (string, error)
	SelectOption(ctx context.Context, sel, value string, timeout time.Duration) error
	RowClasses(ctx context.Context, rowSel string) ([]string, error)
	CellText(ctx context.Context, rowSel string, row, cell int) (string, error)
	ClickCell(ctx context.Context, rowSel string, row, cell int, timeout time.Duration) error
	NextSibling(ctx context.Context, rowSel string, row int) (Sibling, error)
	Close() error
}
