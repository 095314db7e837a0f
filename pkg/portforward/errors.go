package portforward

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleNotFound is matched by RuleNotFoundError.
	ErrRuleNotFound = errors.New("port-forward rule not found")
	// ErrDuplicateRule is returned when adding a rule the record already holds.
	ErrDuplicateRule = errors.New("port-forward rule already exists")
)

// MalformedRuleError reports a rule spec that does not parse.
type MalformedRuleError struct {
	Spec   string
	Reason string
}

func (e *MalformedRuleError) Error() string {
	return fmt.Sprintf("malformed port-forward rule %q: %s", e.Spec, e.Reason)
}

// RuleNotFoundError reports a remove for a rule the record does not hold.
type RuleNotFoundError struct {
	Container string
	Spec      string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("port-forward rule %q is not registered for container %s", e.Spec, e.Container)
}

func (e *RuleNotFoundError) Is(target error) bool {
	return target == ErrRuleNotFound
}

// InconsistentStateError is returned when the firewall was changed but the
// record could not be persisted. The two now disagree and need manual
// reconciliation.
type InconsistentStateError struct {
	Op        string
	Container string
	Spec      string
	Err       error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("firewall %s of %q succeeded for container %s but the record was not saved: %v",
		e.Op, e.Spec, e.Container, e.Err)
}

func (e *InconsistentStateError) Unwrap() error {
	return e.Err
}
