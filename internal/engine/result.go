package engine

import (
	"time"

	"github.com/roach88/synchrony/internal/analysis"
	"github.com/roach88/synchrony/internal/commit"
	"github.com/roach88/synchrony/internal/ir"
	"github.com/roach88/synchrony/internal/prover"
)

// TxState is the final disposition of one transaction.
type TxState string

const (
	StatusCommitted  TxState = "COMMITTED"
	StatusRolledBack TxState = "ROLLED_BACK"
)

// TxStatus reports what happened to one transaction.
type TxStatus struct {
	State  TxState `json:"state"`
	Reason string  `json:"reason,omitempty"`
}

// BatchMetrics are the performance figures of one batch.
type BatchMetrics struct {
	Elapsed        time.Duration `json:"elapsed"`
	Groups         int           `json:"groups"`
	WorkersSpawned int           `json:"workers_spawned"`

	// SerialEstimate is the sum of per-transaction execution times, an
	// estimate of how long a purely serial run would take.
	SerialEstimate time.Duration `json:"serial_estimate"`

	// ThroughputImprovement is SerialEstimate / Elapsed; 0 when Elapsed is 0.
	ThroughputImprovement float64 `json:"throughput_improvement"`
}

// BatchResult is the sole externally visible artifact of a batch.
type BatchResult struct {
	Success  bool   `json:"success"`
	BatchID  string `json:"batch_id"`
	BatchSeq int64  `json:"batch_seq"`

	// FinalStates holds every account the batch referenced: post-batch
	// states on success, the untouched pre-batch states otherwise.
	FinalStates ir.StateMap        `json:"final_states"`
	Trace       []ir.TraceEvent    `json:"trace"`
	Levels      [][]string         `json:"levels"`
	Conflicts   []analysis.Conflict `json:"conflicts"`

	ErrorType    ErrorType         `json:"error_type,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Diagnostics  map[string]string `json:"diagnostics,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`

	Statuses map[string]TxStatus `json:"statuses"`
	Phases   []commit.Phase      `json:"phases"`
	Proof    *prover.Proof       `json:"proof,omitempty"`
	Fallback bool                `json:"fallback"`
	Version  uint64              `json:"ledger_version"`

	Metrics BatchMetrics `json:"metrics"`
}

// Err returns the failure as a *BatchError, or nil on success.
func (r *BatchResult) Err() error {
	if r.Success {
		return nil
	}
	return &BatchError{Type: r.ErrorType, Message: r.ErrorMessage, Details: r.Diagnostics}
}

// Committed returns the committed transaction ids in commit order.
func (r *BatchResult) Committed() []string {
	var ids []string
	for _, ev := range r.Trace {
		if ev.Kind == ir.EventCommit && r.Statuses[ev.TxID].State == StatusCommitted {
			ids = append(ids, ev.TxID)
		}
	}
	return ids
}

// RolledBack returns the rolled back transaction ids in sorted order.
func (r *BatchResult) RolledBack() []string {
	var ids []string
	for id, st := range r.Statuses {
		if st.State == StatusRolledBack {
			ids = append(ids, id)
		}
	}
	return sortedStrings(ids)
}

func (r *BatchResult) fail(be *BatchError) {
	r.Success = false
	r.ErrorType = be.Type
	r.ErrorMessage = be.Message
	if len(be.Details) > 0 {
		if r.Diagnostics == nil {
			r.Diagnostics = make(map[string]string, len(be.Details))
		}
		for k, v := range be.Details {
			r.Diagnostics[k] = v
		}
	}
}

func (r *BatchResult) warn(be *BatchError) {
	r.Warnings = append(r.Warnings, be.Error())
	for k, v := range be.Details {
		if r.Diagnostics == nil {
			r.Diagnostics = make(map[string]string)
		}
		r.Diagnostics[k] = v
	}
}
