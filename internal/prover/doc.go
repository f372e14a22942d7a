// Package prover checks that a parallel execution is observationally
// equivalent to a serial execution consistent with the precedence graph.
//
// Every account's pre-batch value is a symbolic variable. Both executions are
// replayed symbolically over linear terms; the resulting obligation
//
//	(preconditions) => (parallel[a] == serial[a] for every touched account)
//
// is handed to an Oracle. Any solver that decides linear integer arithmetic
// can serve as the Oracle: LinearOracle decides the obligation in-process,
// ExecOracle sends SMT-LIB 2 to an external binary such as z3.
package prover
