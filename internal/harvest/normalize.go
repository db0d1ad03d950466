package harvest

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/tender-harvester/internal/labels"
)

const (
	fieldTenderNumber  = "tenderNumber"
	fieldBuyerName     = "buyerName"
	fieldTenderType    = "tenderType"
	fieldProvince      = "province"
	fieldDatePublished = "datePublished"
	fieldClosingDate   = "closingDate"
)

// detailFields is the labeled-field policy for detail panels. Aliases are
// listed in precedence order.
var detailFields = labels.MustNew(
	labels.Field{Name: fieldTenderNumber, Aliases: []string{"Tender Number"}},
	labels.Field{Name: fieldBuyerName, Aliases: []string{"Organ of State", "Department", "Buyer"}},
	labels.Field{Name: fieldTenderType, Aliases: []string{"Tender Type"}},
	labels.Field{Name: fieldProvince, Aliases: []string{"Province"}},
	labels.Field{Name: fieldDatePublished, Aliases: []string{"Date Published"}},
	labels.Field{Name: fieldClosingDate, Aliases: []string{"Closing Date"}},
)

var eSubmissionYes = regexp.MustCompile(`(?i)yes|accept`)

// Normalize merges the summary columns with the labeled fields of the detail
// panel. Detail values win over column values; blanks become nil.
func Normalize(cols Columns, d Detail) TenderRecord {
	fields := detailFields.Extract(d.Text)
	field := func(name string) *string {
		if v, ok := fields[name]; ok {
			return &v
		}
		return nil
	}

	links := d.Anchors
	if links == nil {
		links = []DocumentLink{}
	}
	return TenderRecord{
		TenderNumber:   field(fieldTenderNumber),
		Title:          strings.TrimSpace(cols.Title),
		Category:       strings.TrimSpace(cols.Category),
		AdvertisedDate: firstOf(field(fieldDatePublished), cols.Advertised),
		ClosingDate:    firstOf(field(fieldClosingDate), cols.Closing),
		BuyerName:      field(fieldBuyerName),
		ESubmission:    normalizeESubmission(cols.ESubmission),
		TenderType:     field(fieldTenderType),
		Province:       field(fieldProvince),
		DatePublished:  field(fieldDatePublished),
		DocumentLinks:  links,
		Source:         SourceDOMDetails,
	}
}

func normalizeESubmission(raw string) *string {
	raw = strings.TrimSpace(raw)
	if eSubmissionYes.MatchString(raw) {
		yes := "Yes"
		return &yes
	}
	return optional(raw)
}

func firstOf(primary *string, fallback string) *string {
	if primary != nil {
		return primary
	}
	return optional(fallback)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
