// Package dberror defines the error kinds raised across the
// subscription execution core.
package dberror

import "github.com/pkg/errors"

// Sentinel error kinds. Callers distinguish them with errors.Is;
// call-site context is attached with Wrap/Wrapf, which preserves the
// sentinel in the cause chain.
var (
	// ErrPlannerInvariant signals that a SupportedQuery did not match
	// the invariants its declared kind relies on (wrong source
	// variety, semi-join first operator is not an index-join, or a
	// self-join). Fatal at ExecutionUnit construction.
	ErrPlannerInvariant = errors.New("planner invariant violation")

	// ErrVMCompile signals a deterministic compilation failure in the
	// relational VM. Fatal, wrapped around vm.Compile's error when
	// subscription.New compiles a Select unit's plans.
	ErrVMCompile = errors.New("vm compile error")

	// ErrStorageRead signals a failure reading through a transaction
	// handle during evaluation. Fatal for that evaluation; the caller
	// decides whether to drop delivery or tear down the session.
	ErrStorageRead = errors.New("storage read error")

	// ErrSchemaMismatch signals that the __op_type column was absent
	// from an incremental plan's header. This should be unreachable by
	// construction; it is surfaced as an error rather than panicking
	// only so tests can assert on it without crashing the process.
	ErrSchemaMismatch = errors.New("schema mismatch: missing __op_type column")
)

// Wrap attaches msg as context to err, preserving err's identity for
// errors.Is/errors.As.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with Printf-style formatting.
func Wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}
