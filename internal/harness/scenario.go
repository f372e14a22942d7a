package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/synchrony/internal/ir"
)

// Scenario defines a batch test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config tunes the engine for this scenario.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Accounts holds the pre-batch balances. A transaction declares the
	// accounts its ops and postconditions name at these values.
	Accounts map[string]int64 `yaml:"accounts"`

	// Transactions form the batch.
	Transactions []TxStep `yaml:"transactions"`

	// Assertions validate the outcome.
	// Supported types: outcome, final_state, levels, committed,
	// rolled_back, commit_order, conflict_count
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioConfig holds per-scenario engine settings.
type ScenarioConfig struct {
	// Workers is the pool size. Zero means 4.
	Workers int `yaml:"workers,omitempty"`

	// Timeout bounds execution. Zero means 5s.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Atomic makes any transaction fault abort the whole batch.
	Atomic bool `yaml:"atomic,omitempty"`
}

// TxStep is one transaction of the batch.
type TxStep struct {
	ID string `yaml:"id"`

	// Seq is the submission number. Zero means the step's position,
	// starting at 1.
	Seq int64 `yaml:"seq,omitempty"`

	Flow  int64    `yaml:"flow,omitempty"`
	After []string `yaml:"after,omitempty"`

	Ops  []OpStep   `yaml:"ops"`
	Post []CondStep `yaml:"post,omitempty"`

	// Accounts overrides the scenario's pre-batch balances for this
	// transaction only.
	Accounts map[string]int64 `yaml:"accounts,omitempty"`

	// Stall delays the transaction's execution.
	Stall time.Duration `yaml:"stall,omitempty"`
}

// OpStep is an encoded operation.
type OpStep struct {
	Op      string `yaml:"op"`
	Account string `yaml:"account"`
	Amount  int64  `yaml:"amount,omitempty"`
	Value   int64  `yaml:"value,omitempty"`
	Cmp     string `yaml:"cmp,omitempty"`
}

// CondStep is an encoded postcondition.
type CondStep struct {
	Account string `yaml:"account"`
	Cmp     string `yaml:"cmp"`
	Value   int64  `yaml:"value"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "outcome": batch committed or failed, optionally with error_type
	// - "final_state": balances after the batch (subset match)
	// - "levels": exact parallel levels
	// - "committed": exact set of committed transaction ids
	// - "rolled_back": exact set of rolled-back transaction ids
	// - "commit_order": ids commit in this relative order
	// - "conflict_count": number of conflicting pairs
	Type string `yaml:"type"`

	// Outcome is "committed" or "failed" (used by outcome).
	Outcome string `yaml:"outcome,omitempty"`

	// ErrorType is the expected batch error type (used by outcome).
	ErrorType string `yaml:"error_type,omitempty"`

	// Balances are the expected balances (used by final_state).
	Balances map[string]int64 `yaml:"balances,omitempty"`

	// Levels are the expected levels, each as a set (used by levels).
	Levels [][]string `yaml:"levels,omitempty"`

	// IDs are transaction ids (used by committed, rolled_back, commit_order).
	IDs []string `yaml:"ids,omitempty"`

	// Count is the expected conflict count (used by conflict_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome       = "outcome"
	AssertFinalState    = "final_state"
	AssertLevels        = "levels"
	AssertCommitted     = "committed"
	AssertRolledBack    = "rolled_back"
	AssertCommitOrder   = "commit_order"
	AssertConflictCount = "conflict_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file
// name.
func LoadScenarios(dir string) ([]*Scenario, []string, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Config.Workers < 0 {
		return fmt.Errorf("config.workers must be non-negative")
	}
	if s.Config.Timeout < 0 {
		return fmt.Errorf("config.timeout must be non-negative")
	}
	if len(s.Transactions) == 0 {
		return fmt.Errorf("transactions list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Transactions))
	for i, tx := range s.Transactions {
		if tx.ID == "" {
			return fmt.Errorf("transactions[%d]: id is required", i)
		}
		if seen[tx.ID] {
			return fmt.Errorf("transactions[%d]: duplicate id %q", i, tx.ID)
		}
		seen[tx.ID] = true
		if len(tx.Ops) == 0 && len(tx.Post) == 0 {
			return fmt.Errorf("transactions[%d]: ops or post is required", i)
		}
		if tx.Stall < 0 {
			return fmt.Errorf("transactions[%d]: stall must be non-negative", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutcome:
		if a.Outcome != OutcomeCommitted && a.Outcome != OutcomeFailed {
			return fmt.Errorf("assertions[%d]: outcome must be %q or %q", index, OutcomeCommitted, OutcomeFailed)
		}
		if a.Outcome == OutcomeCommitted && a.ErrorType != "" {
			return fmt.Errorf("assertions[%d]: error_type requires outcome %q", index, OutcomeFailed)
		}
	case AssertFinalState:
		if len(a.Balances) == 0 {
			return fmt.Errorf("assertions[%d]: balances is required for final_state", index)
		}
	case AssertLevels:
		if len(a.Levels) == 0 {
			return fmt.Errorf("assertions[%d]: levels is required for levels", index)
		}
	case AssertCommitted, AssertRolledBack:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for %s (use [] for none)", index, a.Type)
		}
	case AssertCommitOrder:
		if len(a.IDs) < 2 {
			return fmt.Errorf("assertions[%d]: commit_order needs at least two ids", index)
		}
	case AssertConflictCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for conflict_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// Build converts the scenario's steps into transactions.
func (s *Scenario) Build() ([]*ir.Transaction, error) {
	txs := make([]*ir.Transaction, 0, len(s.Transactions))
	for i, step := range s.Transactions {
		tx, err := step.build(int64(i+1), s.Accounts)
		if err != nil {
			return nil, fmt.Errorf("transactions[%d]: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (t TxStep) build(defaultSeq int64, accounts map[string]int64) (*ir.Transaction, error) {
	spec := ir.TxSpec{
		ID:        t.ID,
		Seq:       t.Seq,
		Flow:      t.Flow,
		DependsOn: t.After,
		Accounts:  map[string]int64{},
	}
	if spec.Seq == 0 {
		spec.Seq = defaultSeq
	}

	declare := func(acct string) error {
		if _, ok := spec.Accounts[acct]; ok {
			return nil
		}
		if n, ok := t.Accounts[acct]; ok {
			spec.Accounts[acct] = n
			return nil
		}
		if n, ok := accounts[acct]; ok {
			spec.Accounts[acct] = n
			return nil
		}
		return fmt.Errorf("account %q has no pre-batch balance", acct)
	}

	for _, o := range t.Ops {
		op, err := ir.DecodeOp(ir.OpKind(o.Op), o.Account, o.Amount, o.Value, ir.Comparator(o.Cmp))
		if err != nil {
			return nil, err
		}
		if err := declare(o.Account); err != nil {
			return nil, err
		}
		spec.Ops = append(spec.Ops, op)
	}
	for _, c := range t.Post {
		if err := declare(c.Account); err != nil {
			return nil, err
		}
		spec.Postconditions = append(spec.Postconditions, ir.Condition{
			Target: c.Account,
			Cmp:    ir.Comparator(c.Cmp),
			Value:  c.Value,
		})
	}
	return ir.NewTransaction(spec)
}
