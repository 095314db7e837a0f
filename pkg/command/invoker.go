package command

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/lxt/lxt/pkg/logging"
	"github.com/lxt/lxt/pkg/record"
	"github.com/lxt/lxt/pkg/report"
)

// Invoker runs a queue of commands against one container directory. It
// stops at the first failure and does not undo earlier commands.
type Invoker struct {
	path     string
	commands []Command
}

func NewInvoker(path string) *Invoker {
	return &Invoker{path: path}
}

func (i *Invoker) Add(cmd Command) {
	i.commands = append(i.commands, cmd)
}

func (i *Invoker) Len() int {
	return len(i.commands)
}

// Names lists the queued command names in run order.
func (i *Invoker) Names() []string {
	names := make([]string, len(i.commands))
	for n, cmd := range i.commands {
		names[n] = cmd.Name()
	}
	return names
}

// Run loads the container record once and executes the queue in order. A
// missing record is left nil for commands such as Init. The first error is
// reported to env.Err and the logger, then returned.
func (i *Invoker) Run(ctx context.Context, env *Env) error {
	if len(i.commands) == 0 {
		return nil
	}
	logger := env.log()
	ctx = logging.WithContext(ctx, logger)

	if env.Record == nil {
		rec, err := env.Store.Load(i.path)
		switch {
		case err == nil:
			env.Record = rec
		case errors.Is(err, record.ErrNotFound):
			logger.Debug("no container record", logging.WithField("path", i.path))
		default:
			i.report(env, err)
			return err
		}
	}

	for _, cmd := range i.commands {
		logger.Debug("running command", logging.WithField("command", cmd.Name()))
		if err := cmd.Execute(ctx, env); err != nil {
			err = fmt.Errorf("%s: %w", cmd.Name(), err)
			i.report(env, err)
			return err
		}
	}
	return nil
}

func (i *Invoker) report(env *Env, err error) {
	env.log().Error("command failed", logging.WithField("path", i.path), logging.WithError(err))
	w := env.Err
	if w == nil {
		w = os.Stderr
	}
	report.PrintError(w, err)
}
