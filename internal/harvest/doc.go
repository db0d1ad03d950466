// Package harvest walks a paginated, expandable HTML table and turns each
// parent row plus its detail panel into a TenderRecord.
//
// The package is browser agnostic: every DOM interaction goes through the Page
// interface, which internal/browser implements with chromedp. Progress is
// persisted through a Store after every row so a restarted run resumes at the
// row after its checkpoint.
package harvest
