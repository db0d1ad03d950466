package harvest

import "strings"

// SourceDOMDetails tags records extracted from the table and its detail panel.
const SourceDOMDetails = "dom-details"

// DocumentLink is an anchor found in a detail panel.
type DocumentLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// TenderRecord is one normalized table row. Optional fields serialize as null.
type TenderRecord struct {
	TenderNumber   *string        `json:"tenderNumber"`
	Title          string         `json:"title"`
	Category       string         `json:"category"`
	AdvertisedDate *string        `json:"advertisedDate"`
	ClosingDate    *string        `json:"closingDate"`
	BuyerName      *string        `json:"buyerName"`
	ESubmission    *string        `json:"eSubmission"`
	TenderType     *string        `json:"tenderType"`
	Province       *string        `json:"province"`
	DatePublished  *string        `json:"datePublished"`
	DocumentLinks  []DocumentLink `json:"documentLinks"`
	Source         string         `json:"source"`
}

// Key returns the record's dedup key.
func (r TenderRecord) Key() string {
	return CompositeKey(r.TenderNumber, r.Title)
}

// CompositeKey is the upper-cased tender number (empty when absent), a pipe,
// and the title as-is.
func CompositeKey(tenderNumber *string, title string) string {
	var number string
	if tenderNumber != nil {
		number = *tenderNumber
	}
	return strings.ToUpper(number) + "|" + title
}

// Checkpoint is the durable cursor of the last processed parent row.
// RowIndex -1 means the page was entered but no row finished yet.
type Checkpoint struct {
	Page     int `json:"page"`
	RowIndex int `json:"rowIndex"`
}

// Valid reports whether the checkpoint can drive a resume.
func (c Checkpoint) Valid() bool {
	return c.Page >= 1 && c.RowIndex >= -1
}

// Columns holds the trimmed summary cells of a parent row.
type Columns struct {
	Category    string
	Title       string
	ESubmission string
	Advertised  string
	Closing     string
}

// Detail is what an expanded detail panel yielded. A failed expansion is
// the zero text with an empty, non-nil anchor list.
type Detail struct {
	Text    string
	Anchors []DocumentLink
}

func emptyDetail() Detail {
	return Detail{Anchors: []DocumentLink{}}
}

// Row addresses a parent row on the current page.
type Row struct {
	// Ordinal counts parent rows only and is what checkpoints record.
	Ordinal int
	// Index is the position among all rows matched by the row selector.
	Index int
}
