package model

import "time"

// FailureKind classifies why a candidate produced no record.
type FailureKind string

const (
	FailSearchEmpty   FailureKind = "search_empty"
	FailFetch         FailureKind = "fetch_error"
	FailPromptTooLong FailureKind = "prompt_too_long"
	FailTransport     FailureKind = "transport_error"
	FailParse         FailureKind = "parse_error"
)

// AllFailureKinds returns every failure kind in reporting order.
func AllFailureKinds() []FailureKind {
	return []FailureKind{FailSearchEmpty, FailFetch, FailPromptTooLong, FailTransport, FailParse}
}

// ParseFailureKind converts a stored string back into a FailureKind.
func ParseFailureKind(s string) (FailureKind, bool) {
	for _, k := range AllFailureKinds() {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Stage names the pipeline step a failure occurred in.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageFetch   Stage = "fetch"
	StagePrompt  Stage = "prompt"
	StageInvoke  Stage = "invoke"
	StageParse   Stage = "parse"
)

// FailureReport is the terminal failure for a candidate. Only the last
// failure seen is reported.
type FailureReport struct {
	CandidateID string      `json:"candidate_id"`
	Stage       Stage       `json:"stage"`
	Kind        FailureKind `json:"kind"`
	URL         string      `json:"url,omitempty"`
	Rank        int         `json:"rank,omitempty"`
	Message     string      `json:"message,omitempty"`
}

// State is a coordinator state for one candidate.
type State string

const (
	StatePending        State = "pending"
	StateResolving      State = "resolving"
	StateTryingSource   State = "trying_source"
	StateFetchFailed    State = "fetch_failed"
	StatePromptRejected State = "prompt_rejected"
	StateInvokeFailed   State = "invoke_failed"
	StateParseFailed    State = "parse_failed"
	StateDoneRecord     State = "done_record"
	StateDoneFailure    State = "done_failure"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDoneRecord || s == StateDoneFailure
}

// Attempt logs one source trial.
type Attempt struct {
	Rank  int         `json:"rank"`
	URL   string      `json:"url"`
	State State       `json:"state"`
	Kind  FailureKind `json:"kind,omitempty"`
}

// Failed reports whether the trial ended in a failure state.
func (a Attempt) Failed() bool {
	return a.Kind != ""
}

// PipelineOutcome is the single terminal result for a candidate: exactly one
// of Record and Failure is set.
type PipelineOutcome struct {
	RunID      string            `json:"run_id,omitempty"`
	Candidate  Candidate         `json:"candidate"`
	Record     *ExtractionRecord `json:"record,omitempty"`
	Failure    *FailureReport    `json:"failure,omitempty"`
	Attempts   []Attempt         `json:"attempts"`
	Usage      TokenUsage        `json:"usage"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Succeeded reports whether the outcome carries a record.
func (o *PipelineOutcome) Succeeded() bool {
	return o.Record != nil
}

// FailedAttempts counts trials that ended in a failure.
func (o *PipelineOutcome) FailedAttempts() int {
	n := 0
	for _, a := range o.Attempts {
		if a.Failed() {
			n++
		}
	}
	return n
}

// RunStatus represents the current state of an extraction run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one pass of the pipeline over a roster.
type Run struct {
	ID         string     `json:"id"`
	Schema     string     `json:"schema"`
	Status     RunStatus  `json:"status"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Cost       float64    `json:"cost"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// FailureStat is the per-kind aggregate used for data-loss reporting.
type FailureStat struct {
	Kind    FailureKind `json:"kind"`
	Count   int         `json:"count"`
	Percent float64     `json:"percent"`
}
