package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StagePageStart Stage = "PAGE_START"
	StageRowDone   Stage = "ROW_DONE"
	StagePageDone  Stage = "PAGE_DONE"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
)

// Outcome says what the dedup store did with a harvested row.
type Outcome string

// Row outcomes reported on StageRowDone.
const (
	OutcomeAdmitted  Outcome = "admitted"
	OutcomeDuplicate Outcome = "duplicate"
)

// Event captures a single milestone of a harvest run.
type Event struct {
	// RunID identifies the harvest run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Page is the 1-based table page the event belongs to.
	Page int
	// Row is the parent-row ordinal on Page; -1 when not row scoped.
	Row int
	// Outcome is set on StageRowDone.
	Outcome Outcome
	// DetailOK reports whether the row's detail panel could be read.
	DetailOK bool
	// Records is the result-set size after the event.
	Records int
	// Dur captures row, page, or run latency.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StagePageStart, StagePageDone:
		if e.Page < 1 {
			return fmt.Errorf("%s requires page >= 1", e.Stage)
		}
	case StageRowDone:
		if e.Page < 1 || e.Row < 0 {
			return errors.New("row done requires page >= 1 and row >= 0")
		}
		if e.Outcome != OutcomeAdmitted && e.Outcome != OutcomeDuplicate {
			return fmt.Errorf("row done has unknown outcome %q", e.Outcome)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
