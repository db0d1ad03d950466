package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-harvester/internal/progress"
)

// Store owns the result set and the checkpoint.
type Store interface {
	Admit(rec TenderRecord) bool
	Len() int
	Resume() (Checkpoint, bool)
	SaveCheckpoint(cp Checkpoint) error
	SaveResults(ctx context.Context) error
}

// RecordSink receives every newly admitted record.
type RecordSink interface {
	Put(ctx context.Context, runID uuid.UUID, rec TenderRecord) error
}

// Publisher announces the run summary.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Summary describes a finished run.
type Summary struct {
	RunID       uuid.UUID `json:"run_id"`
	StartPage   int       `json:"start_page"`
	LastPage    int       `json:"last_page"`
	RowsSeen    int       `json:"rows_seen"`
	Admitted    int       `json:"admitted"`
	Duplicates  int       `json:"duplicates"`
	Records     int       `json:"records"`
	Completed   bool      `json:"completed"`
	Interrupted bool      `json:"interrupted"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Error       string    `json:"error,omitempty"`
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type v7Generator struct{}

func (v7Generator) NewRawID() (uuid.UUID, error) { return uuid.NewV7() }

// Option customizes a Harvester.
type Option func(*Harvester)

// WithLogger sets the logger; the harvester logs under "harvest".
func WithLogger(logger *zap.Logger) Option {
	return func(h *Harvester) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithEmitter routes progress events to emitter.
func WithEmitter(emitter progress.Emitter) Option {
	return func(h *Harvester) {
		if emitter != nil {
			h.emitter = emitter
		}
	}
}

// WithRecordSinks adds sinks that receive admitted records.
func WithRecordSinks(sinks ...RecordSink) Option {
	return func(h *Harvester) {
		for _, s := range sinks {
			if s != nil {
				h.sinks = append(h.sinks, s)
			}
		}
	}
}

// WithPublisher publishes the run summary to topic when the run ends.
func WithPublisher(pub Publisher, topic string) Option {
	return func(h *Harvester) {
		h.publisher = pub
		h.topic = topic
	}
}

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(h *Harvester) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(ids IDGenerator) Option {
	return func(h *Harvester) {
		if ids != nil {
			h.ids = ids
		}
	}
}

// Harvester drives one table from its start page to its last page.
type Harvester struct {
	cfg       Config
	page      Page
	store     Store
	logger    *zap.Logger
	emitter   progress.Emitter
	sinks     []RecordSink
	publisher Publisher
	topic     string
	clock     Clock
	ids       IDGenerator

	pacer    *Pacer
	overlay  *OverlaySuppressor
	table    *TableReader
	expander *DetailExpander
	pager    *Paginator
}

// New assembles a Harvester around page and store.
func New(cfg Config, page Page, store Store, opts ...Option) *Harvester {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 5
	}
	h := &Harvester{
		cfg:     cfg,
		page:    page,
		store:   store,
		logger:  zap.NewNop(),
		emitter: progress.NopEmitter{},
		clock:   systemClock{},
		ids:     v7Generator{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("harvest")

	h.pacer = NewPacer(cfg.Timing.HumanDelayMin, cfg.Timing.HumanDelayMax)
	h.overlay = NewOverlaySuppressor(page, cfg.Overlay, h.pacer, h.logger)
	h.table = NewTableReader(page, cfg.Selectors, cfg.Timing, h.overlay, h.pacer, h.logger)
	h.expander = NewDetailExpander(page, cfg.Selectors, cfg.Timing, h.pacer, h.logger)
	h.pager = NewPaginator(page, cfg.Selectors, cfg.Timing, h.table, h.pacer, h.logger)
	return h
}

// Run harvests until the last page, MaxPages, or cancellation. Cancellation
// is honored between rows only and is not an error. Failing to open the
// start page or to see the table are the only fatal outcomes.
func (h *Harvester) Run(ctx context.Context) (Summary, error) {
	runID, err := h.ids.NewRawID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	sum := Summary{RunID: runID, StartPage: 1, StartedAt: h.clock.Now()}
	h.emit(progress.Event{Stage: progress.StageRunStart, Row: -1}, &sum)

	resume, resumed := h.store.Resume()
	if resumed {
		sum.StartPage = resume.Page
		h.logger.Info(fmt.Sprintf("Resuming from page %d, row %d", resume.Page, resume.RowIndex+1),
			zap.Int("page", resume.Page), zap.Int("row", resume.RowIndex+1))
	}

	work := context.WithoutCancel(ctx)
	h.logger.Info("Opening start page", zap.String("url", h.cfg.StartURL))
	if err := h.page.Open(ctx, h.cfg.StartURL); err != nil {
		return h.fail(work, sum, fmt.Errorf("open start page: %w", err))
	}
	h.overlay.Suppress(work)
	h.prepareTable(work)
	if !h.table.WaitForReady(ctx, h.cfg.Timing.ReadyTimeout) {
		if ctx.Err() != nil {
			sum.Interrupted = true
			return h.finish(work, sum), nil
		}
		return h.fail(work, sum, ErrTableNotReady)
	}

	current := 1
	if resumed && resume.Page > 1 {
		current = h.pager.FastForward(ctx, 1, resume.Page)
	}
	startRow := 0
	if resumed && current == resume.Page {
		startRow = max(0, resume.RowIndex+1)
	}

	for pagesDone := 1; ; pagesDone++ {
		sum.LastPage = current
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}
		if interrupted := h.harvestPage(ctx, current, startRow, &sum); interrupted {
			sum.Interrupted = true
			break
		}
		if h.cfg.MaxPages > 0 && pagesDone >= h.cfg.MaxPages {
			h.logger.Info("page limit reached", zap.Int("max_pages", h.cfg.MaxPages))
			break
		}
		if disabled, known := h.pager.NextState(work); known && disabled {
			sum.Completed = true
			break
		}
		if !h.pager.Advance(work) {
			h.logger.Warn("Could not move to next page, stopping.", zap.Int("page", current))
			sum.Completed = true
			break
		}
		current++
		startRow = 0
		if err := h.store.SaveCheckpoint(Checkpoint{Page: current, RowIndex: -1}); err != nil {
			h.logger.Error("save checkpoint", zap.Int("page", current), zap.Error(err))
		}
	}
	if sum.Interrupted {
		h.logger.Info("harvest interrupted", zap.Int("page", sum.LastPage))
	}
	return h.finish(work, sum), nil
}

// prepareTable opens the advertised listing and widens the page length.
// Both steps are best effort.
func (h *Harvester) prepareTable(ctx context.Context) {
	sel := h.cfg.Selectors
	if sel.EntryLink != "" {
		if err := h.page.Click(ctx, sel.EntryLink, h.cfg.Timing.EntryTimeout); err != nil {
			h.logger.Debug("entry link not clicked", zap.Error(err))
		}
		h.pacer.Pause(ctx)
	}
	if sel.PageLength != "" && sel.PageLengthSize != "" && h.page.Count(ctx, sel.PageLength) > 0 {
		if err := h.page.SelectOption(ctx, sel.PageLength, sel.PageLengthSize, h.cfg.Timing.EntryTimeout); err != nil {
			h.logger.Debug("page length not set", zap.Error(err))
		}
		h.pacer.Pause(ctx)
	}
}

// harvestPage processes rows from startRow on. It returns true when ctx was
// canceled before the page finished.
func (h *Harvester) harvestPage(ctx context.Context, pageNum, startRow int, sum *Summary) bool {
	work := context.WithoutCancel(ctx)
	began := h.clock.Now()
	h.table.WaitForReady(work, h.cfg.Timing.ReadyTimeout)

	rows, err := h.table.ParentRows(work)
	if err != nil {
		h.logger.Warn("parent rows unreadable", zap.Int("page", pageNum), zap.Error(err))
	}
	h.logger.Info(fmt.Sprintf("Page %d: %d tenders.", pageNum, len(rows)), zap.Int("page", pageNum), zap.Int("rows", len(rows)))
	h.emit(progress.Event{Stage: progress.StagePageStart, Page: pageNum, Row: -1}, sum)

	for i := startRow; i < len(rows); i++ {
		if ctx.Err() != nil {
			return true
		}
		row, err := h.table.ParentRow(work, i)
		if err != nil {
			h.logger.Warn("parent row not re-resolved, using page listing",
				zap.Int("page", pageNum), zap.Int("row", i), zap.Error(err))
			row = rows[i]
		}
		h.harvestRow(work, pageNum, row, sum)
	}

	if err := h.store.SaveResults(work); err != nil {
		h.logger.Error("save results", zap.Int("page", pageNum), zap.Error(err))
	}
	h.logger.Info(fmt.Sprintf("Page %d done. Total so far: %d.", pageNum, h.store.Len()),
		zap.Int("page", pageNum), zap.Int("records", h.store.Len()))
	h.emit(progress.Event{Stage: progress.StagePageDone, Page: pageNum, Row: -1, Dur: h.clock.Now().Sub(began)}, sum)
	return false
}

// harvestRow runs one expand, normalize, admit, checkpoint cycle.
func (h *Harvester) harvestRow(ctx context.Context, pageNum int, row Row, sum *Summary) {
	began := h.clock.Now()
	cols := h.table.ReadColumns(ctx, row)
	detail, opened := h.expander.Expand(ctx, row)
	rec := Normalize(cols, detail)
	if opened {
		h.expander.Collapse(ctx, row)
	}

	sum.RowsSeen++
	outcome := progress.OutcomeDuplicate
	if h.store.Admit(rec) {
		outcome = progress.OutcomeAdmitted
		sum.Admitted++
		h.forward(ctx, sum.RunID, rec)
	} else {
		sum.Duplicates++
	}

	if err := h.store.SaveCheckpoint(Checkpoint{Page: pageNum, RowIndex: row.Ordinal}); err != nil {
		h.logger.Error("save checkpoint", zap.Int("page", pageNum), zap.Int("row", row.Ordinal), zap.Error(err))
	}
	if row.Ordinal%h.cfg.FlushEvery == 0 {
		if err := h.store.SaveResults(ctx); err != nil {
			h.logger.Error("save results", zap.Int("page", pageNum), zap.Error(err))
		}
	}
	h.emit(progress.Event{
		Stage:    progress.StageRowDone,
		Page:     pageNum,
		Row:      row.Ordinal,
		Outcome:  outcome,
		DetailOK: detail.Text != "",
		Dur:      h.clock.Now().Sub(began),
	}, sum)
	h.pacer.Pause(ctx)
}

func (h *Harvester) forward(ctx context.Context, runID uuid.UUID, rec TenderRecord) {
	for _, sink := range h.sinks {
		if err := sink.Put(ctx, runID, rec); err != nil {
			h.logger.Warn("record sink failed", zap.String("key", rec.Key()), zap.Error(err))
		}
	}
}

func (h *Harvester) finish(ctx context.Context, sum Summary) Summary {
	if err := h.store.SaveResults(ctx); err != nil {
		h.logger.Error("save results", zap.Error(err))
	}
	sum.Records = h.store.Len()
	sum.FinishedAt = h.clock.Now()
	note := "completed"
	switch {
	case sum.Interrupted:
		note = "interrupted"
	case !sum.Completed:
		note = "stopped"
	}
	h.emit(progress.Event{Stage: progress.StageRunDone, Row: -1, Dur: sum.FinishedAt.Sub(sum.StartedAt), Note: note}, &sum)
	if sum.Completed {
		h.logger.Info(fmt.Sprintf("Harvest completed. Total tenders: %d.", sum.Records), zap.Int("records", sum.Records))
	}
	h.publish(ctx, sum)
	return sum
}

func (h *Harvester) fail(ctx context.Context, sum Summary, err error) (Summary, error) {
	if saveErr := h.store.SaveResults(ctx); saveErr != nil {
		err = errors.Join(err, fmt.Errorf("save results: %w", saveErr))
	}
	sum.Records = h.store.Len()
	sum.FinishedAt = h.clock.Now()
	sum.Error = err.Error()
	h.emit(progress.Event{Stage: progress.StageRunError, Row: -1, Dur: sum.FinishedAt.Sub(sum.StartedAt), Note: sum.Error}, &sum)
	h.logger.Error("harvest failed", zap.Error(err))
	h.publish(ctx, sum)
	return sum, err
}

func (h *Harvester) publish(ctx context.Context, sum Summary) {
	if h.publisher == nil {
		return
	}
	id, err := h.publisher.Publish(ctx, h.topic, sum)
	if err != nil {
		h.logger.Warn("publish run summary", zap.Error(err))
		return
	}
	h.logger.Debug("run summary published", zap.String("message_id", id))
}

func (h *Harvester) emit(evt progress.Event, sum *Summary) {
	evt.RunID = progress.UUIDToBytes(sum.RunID)
	evt.TS = h.clock.Now()
	evt.Records = h.store.Len()
	h.emitter.Emit(evt)
}
