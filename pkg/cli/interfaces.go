package cli

import (
	"context"

	"github.com/lxt/lxt/pkg/command"
)

// Executor runs one validated instruction to completion.
type Executor interface {
	Execute(ctx context.Context, in command.Instruction) error
}
