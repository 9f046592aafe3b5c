package models

import "time"

// ExportKind tells which series an export job materializes.
type ExportKind string

const (
	ExportTick ExportKind = "tick"
	ExportOHLC ExportKind = "ohlc"
)

// JobState is a node of the export job state machine.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

func (s JobState) rank() int {
	switch s {
	case JobPending:
		return 0
	case JobProcessing:
		return 1
	case JobCompleted, JobFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether from -> to moves forward along
// pending -> processing -> {completed, failed}. A pending job may fail directly
// but only a processing job completes.
func CanTransition(from, to JobState) bool {
	if from.Terminal() || to.rank() < 0 || from.rank() < 0 {
		return false
	}
	if to == JobCompleted {
		return from == JobProcessing
	}
	return to.rank() > from.rank()
}

// ExportParams are the filter parameters captured when a job is submitted.
type ExportParams struct {
	InstrumentID int64      `json:"instrument_id"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	TimeFrame    TimeFrame  `json:"timeframe,omitempty"`
	PriceType    PriceType  `json:"price_type,omitempty"`
}

// TickFilter converts the params to a tick query filter.
func (p ExportParams) TickFilter() TickFilter {
	return TickFilter{InstrumentID: p.InstrumentID, From: p.From, To: p.To}
}

// OHLCFilter converts the params to an OHLC query filter.
func (p ExportParams) OHLCFilter() OHLCFilter {
	return OHLCFilter{
		InstrumentID: p.InstrumentID,
		From:         p.From,
		To:           p.To,
		TimeFrame:    p.TimeFrame,
		PriceType:    p.PriceType,
	}
}

// ExportJob is the registry's record of one export.
type ExportJob struct {
	ID        string       `json:"id"`
	Kind      ExportKind   `json:"kind"`
	Params    ExportParams `json:"params"`
	State     JobState     `json:"state"`
	FilePath  string       `json:"file_path,omitempty"`
	Error     string       `json:"error,omitempty"`
	Rows      int64        `json:"rows"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// JobPayload is the data attached to a state transition.
type JobPayload struct {
	FilePath string
	Error    string
	Rows     int64
}

// JobEvent is emitted on every state transition.
type JobEvent struct {
	JobID     string     `json:"job_id"`
	Kind      ExportKind `json:"kind"`
	State     JobState   `json:"state"`
	Rows      int64      `json:"rows,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
