// Package firewall installs the DNAT rules that forward host ports to a
// container.
package firewall

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/lxt/lxt/pkg/portforward"
	"github.com/lxt/lxt/pkg/record"
	"github.com/lxt/lxt/pkg/shell"
)

// FirewallError wraps a failed firewall invocation.
type FirewallError struct {
	Op   string
	Rule portforward.Rule
	Err  error
}

func (e *FirewallError) Error() string {
	return fmt.Sprintf("firewall %s %s: %v", e.Op, e.Rule, e.Err)
}

func (e *FirewallError) Unwrap() error {
	return e.Err
}

// AddressResolver finds the address traffic should be forwarded to.
type AddressResolver interface {
	MainIP(ctx context.Context, name string) (string, error)
}

// IPTables manages rules in the nat table with one iptables call per rule.
type IPTables struct {
	runner   shell.Runner
	resolver AddressResolver
	Binary   string
	Chain    string
}

func NewIPTables(runner shell.Runner, resolver AddressResolver, binary, chain string) *IPTables {
	if binary == "" {
		binary = "iptables"
	}
	if chain == "" {
		chain = "PREROUTING"
	}
	return &IPTables{runner: runner, resolver: resolver, Binary: binary, Chain: chain}
}

func (f *IPTables) Apply(ctx context.Context, rec *record.Record, rule portforward.Rule) error {
	return f.exec(ctx, "-A", "apply", rec, rule)
}

func (f *IPTables) Retract(ctx context.Context, rec *record.Record, rule portforward.Rule) error {
	return f.exec(ctx, "-D", "retract", rec, rule)
}

// Check reports whether rule is installed. iptables -C exits 1 when the rule
// is absent; any other failure is an error.
func (f *IPTables) Check(ctx context.Context, rec *record.Record, rule portforward.Rule) (bool, error) {
	argv, err := f.argv(ctx, "-C", rec, rule)
	if err != nil {
		return false, &FirewallError{Op: "check", Rule: rule, Err: err}
	}
	_, err = f.runner.Run(ctx, shell.Command{Argv: argv})
	if err == nil {
		return true, nil
	}
	if shell.ExitCode(err) == 1 {
		return false, nil
	}
	return false, &FirewallError{Op: "check", Rule: rule, Err: err}
}

func (f *IPTables) exec(ctx context.Context, flag, op string, rec *record.Record, rule portforward.Rule) error {
	argv, err := f.argv(ctx, flag, rec, rule)
	if err != nil {
		return &FirewallError{Op: op, Rule: rule, Err: err}
	}
	if _, err := f.runner.Run(ctx, shell.Command{Argv: argv}); err != nil {
		return &FirewallError{Op: op, Rule: rule, Err: err}
	}
	return nil
}

func (f *IPTables) argv(ctx context.Context, flag string, rec *record.Record, rule portforward.Rule) ([]string, error) {
	ip, err := f.resolver.MainIP(ctx, rec.Name)
	if err != nil {
		return nil, err
	}
	if ip == "" {
		return nil, errors.New("container address is empty")
	}
	return []string{
		f.Binary, "-t", "nat", flag, f.Chain,
		"-p", rule.Protocol,
		"--dport", strconv.Itoa(rule.SourcePort),
		"-j", "DNAT",
		"--to-destination", fmt.Sprintf("%s:%d", ip, rule.DestPort),
	}, nil
}
