package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lxt/lxt/pkg/command"
	"github.com/lxt/lxt/pkg/config"
	"github.com/lxt/lxt/pkg/controlplane"
	"github.com/lxt/lxt/pkg/disk"
	"github.com/lxt/lxt/pkg/firewall"
	"github.com/lxt/lxt/pkg/logging"
	"github.com/lxt/lxt/pkg/portforward"
	"github.com/lxt/lxt/pkg/record"
	"github.com/lxt/lxt/pkg/shell"
	"github.com/lxt/lxt/pkg/ssh"
)

// QueueExecutor wires the host gateways from configuration and runs the
// command queue for each instruction.
type QueueExecutor struct {
	Config *config.Config
	// Privileged runs lxc, iptables, zpool and truncate.
	Privileged shell.Runner
	// Plain runs the setup script and ssh as the invoking user.
	Plain     shell.Runner
	Inspector disk.Inspector
	Sleep     func(d time.Duration)

	Out    io.Writer
	Err    io.Writer
	Logger *slog.Logger

	factory *command.Factory
}

func NewQueueExecutor(cfg *config.Config, logger *slog.Logger) *QueueExecutor {
	if logger == nil {
		logger = logging.Default()
	}
	return &QueueExecutor{
		Config:     cfg,
		Privileged: shell.NewExecRunner(cfg.UseSudo),
		Plain:      shell.NewExecRunner(false),
		Inspector:  poolInspector(cfg, os.Geteuid()),
		Out:        os.Stdout,
		Err:        os.Stderr,
		Logger:     logger,
		factory:    command.NewFactory(),
	}
}

// poolInspector returns the go-zfs inspector only when zpool can be run
// directly. go-zfs has no sudo hook, so for an unprivileged user behind sudo
// the size report is skipped.
func poolInspector(cfg *config.Config, euid int) disk.Inspector {
	if cfg.UseSudo && euid != 0 {
		return nil
	}
	return disk.ZFSInspector{}
}

func (q *QueueExecutor) Execute(ctx context.Context, in command.Instruction) error {
	return q.factory.Create(in).Run(ctx, q.env())
}

func (q *QueueExecutor) env() *command.Env {
	cfg := q.Config
	lxc := controlplane.NewLXC(q.Privileged, cfg.ControlPlane)
	fw := firewall.NewIPTables(q.Privileged, lxc, cfg.Firewall, cfg.NATChain)
	store := record.NewStore(cfg.RecordSubpath)

	return &command.Env{
		Store:        store,
		ControlPlane: lxc,
		Sync:         portforward.NewSynchronizer(fw, store, q.Logger),
		Checker:      fw,
		Pool:         disk.NewPool(q.Privileged, q.Inspector, q.Logger),
		GenerateKeys: ssh.GenerateKeyPair,
		Runner:       q.Plain,
		SettleDelay:  cfg.SettleDelay,
		SetupCommand: cfg.SetupCommand,
		DiskImage:    cfg.DiskImage,
		PrivateKey:   cfg.PrivateKey,
		SSHUser:      cfg.SSHUser,
		Sleep:        q.Sleep,
		Out:          q.Out,
		Err:          q.Err,
		Logger:       q.Logger,
	}
}
