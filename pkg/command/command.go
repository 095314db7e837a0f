// Package command implements lxt's lifecycle operations as queued units of
// work over one container record.
package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/lxt/lxt/pkg/color"
	"github.com/lxt/lxt/pkg/embed"
	"github.com/lxt/lxt/pkg/logging"
	"github.com/lxt/lxt/pkg/portforward"
	"github.com/lxt/lxt/pkg/record"
	"github.com/lxt/lxt/pkg/shell"
	"github.com/lxt/lxt/pkg/ssh"
)

// ErrNoRecord is returned by commands that need an initialized container.
var ErrNoRecord = errors.New("container is not initialized, run `lxt init` first")

// Command is one lifecycle operation.
type Command interface {
	Name() string
	Execute(ctx context.Context, env *Env) error
}

// ControlPlane is the container virtualization tool.
type ControlPlane interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	ForceDelete(ctx context.Context, name string) error
	Publish(ctx context.Context, name string) error
	Snapshot(ctx context.Context, name, snapshot string) error
	Restore(ctx context.Context, name, snapshot string) error
	DeleteSnapshot(ctx context.Context, name, snapshot string) error
	Exec(ctx context.Context, name string, cmd ...string) error
	PushFile(ctx context.Context, name, src, dst string) error
	Attach(ctx context.Context, name string) error
	MainIP(ctx context.Context, name string) (string, error)
}

// RecordStore loads and persists container records.
type RecordStore interface {
	File(path string) string
	Exists(path string) bool
	Load(path string) (*record.Record, error)
	Save(rec *record.Record) error
	Destroy(rec *record.Record) error
}

// DiskPool grows a container's storage pool.
type DiskPool interface {
	Expand(ctx context.Context, pool, image, size string) error
}

// KeyGenerator writes a key pair to privatePath.
type KeyGenerator func(privatePath, comment string) (*ssh.KeyPair, error)

// Env is everything a command may touch while it runs. Record is owned by the
// running queue: loaded once before the first command and passed to each.
type Env struct {
	Record *record.Record

	Store        RecordStore
	ControlPlane ControlPlane
	Sync         *portforward.Synchronizer
	Checker      portforward.Checker
	Pool         DiskPool
	GenerateKeys KeyGenerator
	// Scaffold writes the starter setup script; nil uses the embedded one.
	Scaffold func(dir string) (bool, error)
	// Runner runs unprivileged host programs: the setup script and ssh.
	Runner shell.Runner

	SettleDelay  time.Duration
	SetupCommand string
	DiskImage    string
	PrivateKey   string
	SSHUser      string

	Now   func() time.Time
	Sleep func(time.Duration)

	Out    io.Writer
	Err    io.Writer
	Logger *slog.Logger
}

func (e *Env) requireRecord() (*record.Record, error) {
	if e.Record == nil {
		return nil, ErrNoRecord
	}
	return e.Record, nil
}

func (e *Env) log() *slog.Logger {
	if e.Logger == nil {
		return logging.Default()
	}
	return e.Logger
}

func (e *Env) scaffold(dir string) (bool, error) {
	if e.Scaffold != nil {
		return e.Scaffold(dir)
	}
	return embed.WriteSetupScript(dir)
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) sleep(d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (e *Env) printf(format string, args ...any) {
	if e.Out != nil {
		color.Fprintf(e.Out, format, args...)
	}
}
