package bind

import "fmt"

// BadArgumentError reports an operator-supplied topology or option that the
// manager refuses before attempting to bind anything (spec.md §4.5), e.g.
// registering a Node that already belongs to a DataCenter.
type BadArgumentError struct {
	Reason string
}

func (e *BadArgumentError) Error() string {
	return fmt.Sprintf("bind: bad argument: %s", e.Reason)
}

// BindFailedError reports that a specific node's listener failed to come
// up during Register, triggering an all-or-nothing rollback of the whole
// cluster per spec.md §4.5.
type BindFailedError struct {
	Node    string
	Address string
	Cause   error
}

func (e *BindFailedError) Error() string {
	return fmt.Sprintf("bind: node %s failed to bind %s: %v", e.Node, e.Address, e.Cause)
}

func (e *BindFailedError) Unwrap() error { return e.Cause }

// BindTimeoutError reports that Register's overall timeout budget elapsed
// before every node finished binding.
type BindTimeoutError struct {
	Timeout string
}

func (e *BindTimeoutError) Error() string {
	return fmt.Sprintf("bind: register timed out after %s", e.Timeout)
}
