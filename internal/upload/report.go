package upload

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the state of a batch.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Event is emitted once per batch when it reaches a terminal status.
type Event struct {
	Seq      int
	Status   Status
	Attempts int
	Records  int
	Err      error
	Elapsed  time.Duration
}

// Observer receives batch events. Observe is called from batch goroutines and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// totalSetter is implemented by observers that want the batch count when it is known upfront.
type totalSetter interface {
	SetTotal(n int)
}

// BatchFailure describes a batch that exhausted its retries or failed permanently.
type BatchFailure struct {
	Seq      int
	Attempts int
	IDs      []string
	Err      error
}

// MarshalJSON renders Err as its message.
func (f BatchFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Seq      int      `json:"seq"`
		Attempts int      `json:"attempts"`
		IDs      []string `json:"ids"`
		Error    string   `json:"error"`
	}{f.Seq, f.Attempts, f.IDs, msg})
}

// Report summarizes an upload once every dispatched batch is terminal.
type Report struct {
	// Total is the number of batches dispatched.
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Records is the number of records in succeeded batches.
	Records int `json:"records"`
	// Unscheduled is the number of records never dispatched because of cancellation or an
	// invalid record.
	Unscheduled int            `json:"unscheduled"`
	Canceled    bool           `json:"canceled"`
	Failures    []BatchFailure `json:"failures,omitempty"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// Err joins the errors of every failed batch, or returns nil.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = fmt.Errorf("batch %d (%d records, %d attempts): %w", f.Seq, len(f.IDs), f.Attempts, f.Err)
	}
	return errors.Join(errs...)
}
