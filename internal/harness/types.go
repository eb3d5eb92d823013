package harness

// TraceEvent is one executed step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Table   string `json:"table,omitempty"`
	Args    any    `json:"args,omitempty"`
	Outcome string `json:"outcome"` // "ok" or the storage error kind
	Result  any    `json:"result,omitempty"`

	// Digest is the content identity of a created record (record.Digest).
	Digest string `json:"digest,omitempty"`
}

// Outcome of a step that returned no error.
const OutcomeOK = "ok"

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds setup and flow steps in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds failure messages. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}
