// Package portforward keeps a container's recorded port-forward rules and the
// host firewall in agreement.
package portforward

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocols accepted in a rule.
var Protocols = []string{"tcp", "udp"}

// Rule forwards host traffic on SourcePort to DestPort inside the container.
type Rule struct {
	Protocol   string
	SourcePort int
	DestPort   int
}

// String formats the rule as proto:sport:dport, the inverse of ParseRule.
func (r Rule) String() string {
	return fmt.Sprintf("%s:%d:%d", r.Protocol, r.SourcePort, r.DestPort)
}

// ParseRule parses a proto:sport:dport specification.
func ParseRule(spec string) (Rule, error) {
	fields := strings.Split(spec, ":")
	if len(fields) != 3 {
		return Rule{}, &MalformedRuleError{Spec: spec, Reason: "expected protocol:source-port:dest-port"}
	}
	for _, f := range fields {
		if f == "" {
			return Rule{}, &MalformedRuleError{Spec: spec, Reason: "empty field"}
		}
	}

	if !validProtocol(fields[0]) {
		return Rule{}, &MalformedRuleError{
			Spec:   spec,
			Reason: fmt.Sprintf("protocol must be one of %s", strings.Join(Protocols, ", ")),
		}
	}
	sport, err := parsePort(fields[1])
	if err != nil {
		return Rule{}, &MalformedRuleError{Spec: spec, Reason: "source port " + err.Error()}
	}
	dport, err := parsePort(fields[2])
	if err != nil {
		return Rule{}, &MalformedRuleError{Spec: spec, Reason: "destination port " + err.Error()}
	}

	return Rule{Protocol: fields[0], SourcePort: sport, DestPort: dport}, nil
}

// ParseStoredRule parses a rule already held in a record. Records written by
// older tools may carry ports with leading zeros; those are accepted here so
// the rule can still be checked and retracted.
func ParseStoredRule(spec string) (Rule, error) {
	rule, err := ParseRule(spec)
	if err == nil {
		return rule, nil
	}
	fields := strings.Split(spec, ":")
	if len(fields) != 3 || !validProtocol(fields[0]) {
		return Rule{}, err
	}
	sport, perr := strconv.Atoi(fields[1])
	if perr != nil || sport < 1 || sport > 65535 {
		return Rule{}, err
	}
	dport, perr := strconv.Atoi(fields[2])
	if perr != nil || dport < 1 || dport > 65535 {
		return Rule{}, err
	}
	return Rule{Protocol: fields[0], SourcePort: sport, DestPort: dport}, nil
}

func validProtocol(p string) bool {
	for _, known := range Protocols {
		if p == known {
			return true
		}
	}
	return false
}

// parsePort only accepts canonical decimal so that formatting a parsed rule
// gives back the original spec.
func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || strconv.Itoa(n) != s {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("%d is out of range 1-65535", n)
	}
	return n, nil
}
