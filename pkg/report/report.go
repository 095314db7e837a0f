// Package report turns errors into operator-facing messages and process exit
// codes.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/lxt/lxt/pkg/controlplane"
	"github.com/lxt/lxt/pkg/portforward"
	"github.com/lxt/lxt/pkg/shell"
)

// Exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInconsistent = 3
)

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var inconsistent *portforward.InconsistentStateError
	if errors.As(err, &inconsistent) {
		return ExitInconsistent
	}
	return ExitFailure
}

// Hint suggests what the operator can do next, or returns "".
func Hint(err error) string {
	var (
		inconsistent *portforward.InconsistentStateError
		malformed    *portforward.MalformedRuleError
		procErr      *shell.ExternalProcessError
	)
	switch {
	case errors.As(err, &inconsistent):
		return "the firewall and the container record disagree; run `lxt check-pfd` and reconcile by hand"
	case errors.As(err, &malformed):
		return "rules are written protocol:source-port:dest-port, e.g. tcp:8080:80"
	case errors.Is(err, portforward.ErrRuleNotFound):
		return "run `lxt info` to list the registered rules"
	case errors.Is(err, controlplane.ErrAddressUnavailable):
		return "the container has no address yet; make sure it is running and retry"
	case errors.As(err, &procErr):
		return "an external program failed; nothing after it was run"
	}
	return ""
}

// PrintError writes err and a hint to w.
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := Hint(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}
