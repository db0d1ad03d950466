package harvest

import "time"

// Config is everything the harvester needs to know about the target table.
type Config struct {
	StartURL   string
	FlushEvery int
	// MaxPages bounds one run; 0 means until the last page.
	MaxPages  int
	Selectors Selectors
	Overlay   Overlay
	Timing    Timing
}

// Selectors locate the table and its controls.
type Selectors struct {
	Table          string   `mapstructure:"table" validate:"required"`
	Rows           string   `mapstructure:"rows" validate:"required"`
	DetailRowClass string   `mapstructure:"detail_row_class" validate:"required"`
	NextContainer  string   `mapstructure:"next_container" validate:"required"`
	DisabledClass  string   `mapstructure:"disabled_class" validate:"required"`
	NextCandidates []string `mapstructure:"next_candidates" validate:"min=1,dive,required"`
	EntryLink      string   `mapstructure:"entry_link"`
	PageLength     string   `mapstructure:"page_length"`
	PageLengthSize string   `mapstructure:"page_length_value"`
}

// Overlay lists the modal and banner controls dismissed before interacting.
type Overlay struct {
	Dismiss        []string      `mapstructure:"dismiss"`
	Repeatable     string        `mapstructure:"repeatable"`
	MaxRounds      int           `mapstructure:"max_rounds" validate:"min=0"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"gt=0"`
}

// Timing holds delays, settle waits and per-interaction timeouts.
type Timing struct {
	HumanDelayMin   time.Duration `mapstructure:"human_delay_min" validate:"min=0"`
	HumanDelayMax   time.Duration `mapstructure:"human_delay_max" validate:"min=0"`
	ReadyTimeout    time.Duration `mapstructure:"ready_timeout" validate:"gt=0"`
	ReadyPoll       time.Duration `mapstructure:"ready_poll" validate:"gt=0"`
	TableSettle     time.Duration `mapstructure:"table_settle" validate:"min=0"`
	EntryTimeout    time.Duration `mapstructure:"entry_timeout" validate:"gt=0"`
	ExpandTimeout   time.Duration `mapstructure:"expand_timeout" validate:"gt=0"`
	ExpandSettle    time.Duration `mapstructure:"expand_settle" validate:"min=0"`
	CollapseTimeout time.Duration `mapstructure:"collapse_timeout" validate:"gt=0"`
	CollapseSettle  time.Duration `mapstructure:"collapse_settle" validate:"min=0"`
	NextTimeout     time.Duration `mapstructure:"next_timeout" validate:"gt=0"`
}

// DefaultStartURL is the eTenders opportunities listing.
const DefaultStartURL = "https://www.etenders.gov.za/Home/opportunities?id=1"

// DefaultSelectors targets the eTenders "tendeList" DataTable.
func DefaultSelectors() Selectors {
	return Selectors{
		Table:          "table#tendeList",
		Rows:           "#tendeList tbody tr",
		DetailRowClass: "child",
		NextContainer:  "#tendeList_paginate .next",
		DisabledClass:  "disabled",
		NextCandidates: []string{
			"#tendeList_paginate .next a",
			"#tendeList_next",
			"a.paginate_button.next",
			`//div[@id="tendeList_paginate"]//a[contains(normalize-space(.), "Next")]`,
			`//a[normalize-space(.)="Next"]`,
		},
		EntryLink:      `//a[contains(normalize-space(.), "Currently Advertised")]`,
		PageLength:     `select[name="tendeList_length"]`,
		PageLengthSize: "100",
	}
}

// DefaultOverlay dismisses the site tour, cookie banners and close buttons.
func DefaultOverlay() Overlay {
	return Overlay{
		Dismiss: []string{
			"#nextButton",
			"#closeButton",
			`//button[contains(translate(normalize-space(.), "CLOSE", "close"), "close")]`,
		},
		Repeatable:     `//*[contains(translate(normalize-space(text()), "GOTIHANKS", "gotihanks"), "got it, thanks!")]`,
		MaxRounds:      4,
		AttemptTimeout: 1500 * time.Millisecond,
	}
}

// DefaultTiming mirrors the pacing the portal tolerates.
func DefaultTiming() Timing {
	return Timing{
		HumanDelayMin:   100 * time.Millisecond,
		HumanDelayMax:   300 * time.Millisecond,
		ReadyTimeout:    60 * time.Second,
		ReadyPoll:       600 * time.Millisecond,
		TableSettle:     800 * time.Millisecond,
		EntryTimeout:    3 * time.Second,
		ExpandTimeout:   3 * time.Second,
		ExpandSettle:    800 * time.Millisecond,
		CollapseTimeout: 2 * time.Second,
		CollapseSettle:  300 * time.Millisecond,
		NextTimeout:     2500 * time.Millisecond,
	}
}

// DefaultConfig returns a Config ready to harvest the eTenders portal.
func DefaultConfig() Config {
	return Config{
		StartURL:   DefaultStartURL,
		FlushEvery: 5,
		Selectors:  DefaultSelectors(),
		Overlay:    DefaultOverlay(),
		Timing:     DefaultTiming(),
	}
}
