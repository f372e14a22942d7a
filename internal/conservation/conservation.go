// Package conservation checks that a batch preserves total value across the
// accounts it references, up to the external flows its transactions declare.
//
// All sums use exact big-integer arithmetic; there is no tolerance.
package conservation

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/roach88/synchrony/internal/ir"
)

// Movement is the declared and measured value change of one committed
// transaction.
type Movement struct {
	TxID string
	Flow int64    // declared net external inflow (+) or outflow (-)
	Net  *big.Int // measured sum of balance changes, nil counts as zero
}

// Report summarizes a conservation check.
type Report struct {
	PreTotal  *big.Int
	PostTotal *big.Int
	Flow      *big.Int
	Accounts  []string
}

// Delta returns PostTotal - PreTotal - Flow.
func (r *Report) Delta() *big.Int {
	d := new(big.Int).Sub(r.PostTotal, r.PreTotal)
	return d.Sub(d, r.Flow)
}

// Violation is returned when the batch creates or destroys value.
type Violation struct {
	Report
	Offenders []string
}

func (v *Violation) Error() string {
	msg := fmt.Sprintf("conservation violated: delta=%s (pre=%s post=%s declared flow=%s)",
		v.Delta(), v.PreTotal, v.PostTotal, v.Flow)
	if len(v.Offenders) > 0 {
		msg += "; offenders: " + strings.Join(v.Offenders, ", ")
	}
	return msg
}

// IsViolation checks if an error is a Violation.
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}

// Validate compares the total of pre over every referenced account with the
// total of post over the same accounts, allowing for the declared flows of
// committed transactions. The referenced accounts are the union of the keys
// of pre and post; an account missing from one side counts as zero there.
//
// Offenders are movements whose measured net effect differs from their
// declared flow.
func Validate(pre, post ir.StateMap, moves []Movement) (*Report, error) {
	seen := make(map[string]bool, len(pre)+len(post))
	for id := range pre {
		seen[id] = true
	}
	for id := range post {
		seen[id] = true
	}
	accounts := make([]string, 0, len(seen))
	for id := range seen {
		accounts = append(accounts, id)
	}
	sort.Strings(accounts)

	r := &Report{
		PreTotal:  pre.Total(accounts),
		PostTotal: post.Total(accounts),
		Flow:      new(big.Int),
		Accounts:  accounts,
	}
	var offenders []string
	for _, m := range moves {
		flow := big.NewInt(m.Flow)
		r.Flow.Add(r.Flow, flow)
		net := m.Net
		if net == nil {
			net = new(big.Int)
		}
		if net.Cmp(flow) != 0 {
			offenders = append(offenders, m.TxID)
		}
	}

	if r.Delta().Sign() != 0 {
		sort.Strings(offenders)
		return r, &Violation{Report: *r, Offenders: offenders}
	}
	return r, nil
}
