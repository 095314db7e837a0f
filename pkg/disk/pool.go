// Package disk grows the file-backed ZFS pool that holds a container's root
// filesystem.
package disk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lxt/lxt/pkg/cleanup"
	"github.com/lxt/lxt/pkg/logging"
	"github.com/lxt/lxt/pkg/shell"
	zfs "github.com/mistifyio/go-zfs/v3"
)

// Inspector reports the size of a pool in bytes.
type Inspector interface {
	Size(pool string) (uint64, error)
}

// ZFSInspector reads pool properties through go-zfs.
type ZFSInspector struct{}

func (ZFSInspector) Size(pool string) (uint64, error) {
	zp, err := zfs.GetZpool(pool)
	if err != nil {
		return 0, err
	}
	return zp.Size, nil
}

// Pool runs the expand sequence against truncate and zpool.
type Pool struct {
	runner    shell.Runner
	inspector Inspector
	logger    *slog.Logger
}

func NewPool(runner shell.Runner, inspector Inspector, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.Default()
	}
	return &Pool{runner: runner, inspector: inspector, logger: logger}
}

// Expand grows image by size (truncate syntax, e.g. 10G) and makes pool claim
// the new space. The steps run in a fixed order and stop at the first
// failure; once autoexpand was switched on it is switched off again even when
// a later step fails.
func (p *Pool) Expand(ctx context.Context, pool, image, size string) (err error) {
	cleaner := cleanup.New(p.logger)
	defer cleaner.CleanupOnError(ctx, &err)

	if err := p.run(ctx, "truncate", "-s", "+"+size, image); err != nil {
		return fmt.Errorf("failed to grow disk image: %w", err)
	}
	if err := p.run(ctx, "zpool", "set", "autoexpand=on", pool); err != nil {
		return fmt.Errorf("failed to enable autoexpand: %w", err)
	}
	cleaner.Add("autoexpand_off", func(ctx context.Context) error {
		return p.run(ctx, "zpool", "set", "autoexpand=off", pool)
	})
	if err := p.run(ctx, "zpool", "online", "-e", pool, image); err != nil {
		return fmt.Errorf("failed to expand pool: %w", err)
	}
	cleaner.Release()
	if err := p.run(ctx, "zpool", "set", "autoexpand=off", pool); err != nil {
		return fmt.Errorf("failed to disable autoexpand: %w", err)
	}

	if p.inspector != nil {
		if total, err := p.inspector.Size(pool); err != nil {
			p.logger.Warn("failed to read pool size", logging.WithField("pool", pool), logging.WithError(err))
		} else {
			p.logger.Info("pool expanded", logging.WithField("pool", pool), logging.WithField("size_bytes", total))
		}
	}
	return nil
}

func (p *Pool) run(ctx context.Context, argv ...string) error {
	_, err := p.runner.Run(ctx, shell.Command{Argv: argv})
	return err
}
