package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDrift is returned when recorded port-forwards are missing from the
// firewall.
var ErrDrift = errors.New("recorded port-forwards are missing from the firewall")

type AddPortforward struct {
	Spec string
}

func (c *AddPortforward) Name() string { return ActionAddPortforward }

func (c *AddPortforward) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	if err := env.Sync.Add(ctx, rec, c.Spec); err != nil {
		return err
	}
	env.printf("{green}✓{reset} Added port-forward %s\n", c.Spec)
	return nil
}

type RemovePortforward struct {
	Spec string
}

func (c *RemovePortforward) Name() string { return ActionRemovePortfwd }

func (c *RemovePortforward) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	if err := env.Sync.Remove(ctx, rec, c.Spec); err != nil {
		return err
	}
	env.printf("{green}✓{reset} Removed port-forward %s\n", c.Spec)
	return nil
}

// CheckPortforward audits the record against the live firewall.
type CheckPortforward struct{}

func (c *CheckPortforward) Name() string { return ActionCheckPortfwd }

func (c *CheckPortforward) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	missing, err := env.Sync.Audit(ctx, rec, env.Checker)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		for _, spec := range missing {
			env.printf("{red}✗{reset} missing: %s\n", spec)
		}
		return fmt.Errorf("%w: %s", ErrDrift, strings.Join(missing, ", "))
	}
	env.printf("{green}✓{reset} All %d port-forwards are installed\n", len(rec.Portforwards))
	return nil
}
