package harness

import "github.com/roach88/synchrony/internal/engine"

// Outcome values.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold and the stored batch replays.
	Pass bool `json:"pass"`

	Outcome    string           `json:"outcome"`
	ErrorType  engine.ErrorType `json:"error_type,omitempty"`
	Balances   map[string]int64 `json:"balances"`
	Levels     [][]string       `json:"levels"`
	Committed  []string         `json:"committed"` // commit order
	RolledBack []string         `json:"rolled_back"`
	Conflicts  int              `json:"conflicts"`
	Warnings   []string         `json:"warnings,omitempty"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Batch is the raw engine result, for callers that need more.
	Batch *engine.BatchResult `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Balances:   map[string]int64{},
		Levels:     [][]string{},
		Committed:  []string{},
		RolledBack: []string{},
		Errors:     []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// fromBatch copies the schedule-relevant facts out of an engine result.
func (r *Result) fromBatch(br *engine.BatchResult) {
	r.Batch = br
	r.Outcome = OutcomeCommitted
	if !br.Success {
		r.Outcome = OutcomeFailed
	}
	r.ErrorType = br.ErrorType
	r.Balances = br.FinalStates.Balances()
	for _, level := range br.Levels {
		r.Levels = append(r.Levels, append([]string(nil), level...))
	}
	r.Committed = append(r.Committed, br.Committed()...)
	r.RolledBack = append(r.RolledBack, br.RolledBack()...)
	r.Conflicts = len(br.Conflicts)
	r.Warnings = br.Warnings
}
