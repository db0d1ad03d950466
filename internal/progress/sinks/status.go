package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/tender-harvester/internal/progress"
)

// Status is a point-in-time view of the current harvest run.
type Status struct {
	RunID      string         `json:"run_id,omitempty"`
	Running    bool           `json:"running"`
	Stage      progress.Stage `json:"stage,omitempty"`
	Page       int            `json:"page"`
	Row        int            `json:"row"`
	Records    int            `json:"records"`
	Admitted   int            `json:"admitted"`
	Duplicates int            `json:"duplicates"`
	Note       string         `json:"note,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
}

// StatusSink folds events into the latest Status for the ops API.
type StatusSink struct {
	mu     sync.RWMutex
	status Status
}

// NewStatusSink returns an idle StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{status: Status{Row: -1}}
}

// Consume applies the batch in order.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *StatusSink) apply(evt progress.Event) {
	st := &s.status
	if evt.Stage == progress.StageRunStart {
		*st = Status{RunID: evt.RunUUID().String(), Running: true, Row: -1}
	}
	st.Stage = evt.Stage
	st.Records = evt.Records
	st.UpdatedAt = evt.TS
	switch evt.Stage {
	case progress.StagePageStart:
		st.Page = evt.Page
		st.Row = -1
	case progress.StageRowDone:
		st.Page = evt.Page
		st.Row = evt.Row
		if evt.Outcome == progress.OutcomeAdmitted {
			st.Admitted++
		} else {
			st.Duplicates++
		}
	case progress.StageRunDone, progress.StageRunError:
		st.Running = false
		st.Note = evt.Note
	}
}

// Snapshot returns a copy of the latest status.
func (s *StatusSink) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
