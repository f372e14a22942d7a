package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const payrollBatch = `
batch: {
	name: "payroll"
	accounts: {alice: 1000, bob: 500, carol: 300, dave: 200}
	transactions: {
		t1: {
			seq: 1
			ops: [
				{op: "subtract", account: "alice", amount: 100},
				{op: "add", account: "bob", amount: 100},
			]
			post: [{account: "alice", cmp: ">=", value: 0}]
		}
		t2: {
			seq: 2
			ops: [
				{op: "subtract", account: "carol", amount: 50},
				{op: "add", account: "dave", amount: 50},
			]
		}
		t3: {
			seq: 3
			after: ["t1"]
			ops: [
				{op: "subtract", account: "bob", amount: 30},
				{op: "add", account: "carol", amount: 30},
			]
		}
	}
}
`

const overdraftBatch = `
batch: {
	name:   "overdraft"
	atomic: true
	accounts: {alice: 10, bob: 0, carol: 100, dave: 0}
	transactions: {
		t1: {ops: [{op: "subtract", account: "alice", amount: 50}, {op: "add", account: "bob", amount: 50}]}
		t2: {ops: [{op: "subtract", account: "carol", amount: 5}, {op: "add", account: "dave", amount: 5}]}
	}
}
`

const flowMismatchBatch = `
batch: {
	accounts: {alice: 10}
	transactions: {
		t1: {flow: 10, ops: [{op: "add", account: "alice", amount: 5}]}
	}
}
`

const cycleBatch = `
batch: {
	name: "cycle"
	accounts: {x: 0, y: 0}
	transactions: {
		a: {after: ["b"], flow: 1, ops: [{op: "add", account: "x", amount: 1}]}
		b: {after: ["a"], flow: 1, ops: [{op: "add", account: "y", amount: 1}]}
	}
}
`

// writeFile writes content under dir and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decode parses a JSON CLIResponse whose data is decoded into data.
func decode(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

// runPayroll commits the payroll batch into a fresh SQLite database and
// returns the database path.
func runPayroll(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "synchrony.db")
	batch := writeFile(t, dir, "payroll.cue", payrollBatch)
	_, err := execute(t, "run", "--db", db, batch)
	require.NoError(t, err)
	return db
}
