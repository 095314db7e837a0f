package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/lxt/lxt/pkg/cleanup"
	"github.com/lxt/lxt/pkg/embed"
	"github.com/lxt/lxt/pkg/logging"
	"github.com/lxt/lxt/pkg/record"
	"github.com/lxt/lxt/pkg/shell"
)

// SnapshotTimeFormat names snapshots taken without an explicit name.
const SnapshotTimeFormat = "2006-01-02_15:04:05.000000"

// Init creates the container record in Path. It does not start anything.
type Init struct {
	Path          string
	ContainerName string
	Image         string
	// Scaffold writes a starter setup script when the directory has none.
	Scaffold bool
}

func (c *Init) Name() string { return ActionInit }

func (c *Init) Execute(ctx context.Context, env *Env) (err error) {
	if env.Record != nil || env.Store.Exists(c.Path) {
		return fmt.Errorf("container already initialized in %s", c.Path)
	}

	rec := record.New(c.Path, c.ContainerName, c.Image)

	cleaner := cleanup.New(env.log())
	defer cleaner.CleanupOnError(ctx, &err)

	confDir := filepath.Dir(env.Store.File(c.Path))
	if _, statErr := os.Stat(confDir); os.IsNotExist(statErr) {
		cleaner.Add("remove config directory", func(context.Context) error {
			return os.RemoveAll(confDir)
		})
	}

	if err := env.Store.Save(rec); err != nil {
		return fmt.Errorf("failed to save container record: %w", err)
	}
	cleaner.Add("remove container record", func(context.Context) error {
		return env.Store.Destroy(rec)
	})
	if c.Scaffold {
		written, err := env.scaffold(c.Path)
		if err != nil {
			return err
		}
		if written {
			env.printf("{green}✓{reset} Wrote %s\n", embed.SetupScriptName)
		}
	}
	cleaner.Release()

	env.Record = rec
	env.log().Info("container initialized", logging.WithContainer(rec.Name), logging.WithField("image", rec.Image))
	env.printf("{green}✓{reset} Initialized container %s (image %s)\n", rec.Name, rec.Image)
	return nil
}

type Start struct{}

func (c *Start) Name() string { return ActionStart }

func (c *Start) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	if err := env.ControlPlane.Start(ctx, rec.Name); err != nil {
		return err
	}
	env.printf("{green}✓{reset} Started %s\n", rec.Name)
	return nil
}

type Stop struct{}

func (c *Stop) Name() string { return ActionStop }

func (c *Stop) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	if err := env.ControlPlane.Stop(ctx, rec.Name); err != nil {
		return err
	}
	env.printf("{green}✓{reset} Stopped %s\n", rec.Name)
	return nil
}

// Delete removes the container's firewall rules, force-deletes the container
// and destroys its record. Rules are retracted against the live address, so
// the container is left alone when it has rules and no address, or when any
// rule could not be retracted; the record then still lists exactly the rules
// left on the firewall.
type Delete struct{}

func (c *Delete) Name() string { return ActionDelete }

func (c *Delete) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}

	if len(rec.Portforwards) > 0 {
		if _, err := env.ControlPlane.MainIP(ctx, rec.Name); err != nil {
			return fmt.Errorf("cannot retract port-forwards of %s, start it and retry: %w", rec.Name, err)
		}
		if err := env.Sync.DestroyAll(ctx, rec); err != nil {
			env.log().Warn("port-forward cleanup incomplete",
				logging.WithContainer(rec.Name),
				logging.WithField("remaining", rec.PortforwardsSnapshot()),
				logging.WithError(err))
			return fmt.Errorf("container %s kept, rules %s still installed: %w",
				rec.Name, strings.Join(rec.Portforwards, ", "), err)
		}
	}

	if err := env.ControlPlane.ForceDelete(ctx, rec.Name); err != nil {
		return err
	}
	if err := env.Store.Destroy(rec); err != nil {
		return fmt.Errorf("failed to remove container record: %w", err)
	}
	env.Record = nil
	env.printf("{green}✓{reset} Deleted %s\n", rec.Name)
	return nil
}

// Launch starts the container, waits for it to settle and runs the host-side
// setup command from the container directory.
type Launch struct{}

func (c *Launch) Name() string { return ActionLaunch }

func (c *Launch) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	if err := env.ControlPlane.Start(ctx, rec.Name); err != nil {
		return err
	}

	env.log().Debug("waiting for container to settle",
		logging.WithContainer(rec.Name),
		logging.WithField("delay", env.SettleDelay.String()))
	env.sleep(env.SettleDelay)

	argv, err := setupArgv(env.SetupCommand, rec.Name)
	if err != nil {
		return err
	}
	if len(argv) == 0 {
		return nil
	}
	if err := env.Runner.Attach(ctx, shell.Command{Argv: argv, Dir: rec.Path}); err != nil {
		return fmt.Errorf("setup command failed: %w", err)
	}
	env.printf("{green}✓{reset} Launched %s\n", rec.Name)
	return nil
}

func setupArgv(template, name string) ([]string, error) {
	argv, err := shlex.Split(template)
	if err != nil {
		return nil, fmt.Errorf("invalid setup command %q: %w", template, err)
	}
	for i, arg := range argv {
		argv[i] = strings.ReplaceAll(arg, "{name}", name)
	}
	return argv, nil
}

// Publish exports the container as an image aliased by its name. The
// factory brackets it with Stop and Start.
type Publish struct{}

func (c *Publish) Name() string { return "publish" }

func (c *Publish) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	if err := env.ControlPlane.Publish(ctx, rec.Name); err != nil {
		return err
	}
	env.printf("{green}✓{reset} Published image %s\n", rec.Name)
	return nil
}

type TakeSnapshot struct{}

func (c *TakeSnapshot) Name() string { return ActionTakeSnapshot }

func (c *TakeSnapshot) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	snap := "snap_" + env.now().Format(SnapshotTimeFormat)
	if err := env.ControlPlane.Snapshot(ctx, rec.Name, snap); err != nil {
		return err
	}
	env.printf("{green}✓{reset} Created snapshot %s\n", snap)
	return nil
}

type RestoreSnapshot struct {
	Snapshot string
}

func (c *RestoreSnapshot) Name() string { return ActionRestoreSnap }

func (c *RestoreSnapshot) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	if err := env.ControlPlane.Restore(ctx, rec.Name, c.Snapshot); err != nil {
		return err
	}
	env.printf("{green}✓{reset} Restored %s to %s\n", rec.Name, c.Snapshot)
	return nil
}

type DeleteSnapshot struct {
	Snapshot string
}

func (c *DeleteSnapshot) Name() string { return ActionDeleteSnap }

func (c *DeleteSnapshot) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	if err := env.ControlPlane.DeleteSnapshot(ctx, rec.Name, c.Snapshot); err != nil {
		return err
	}
	env.printf("{green}✓{reset} Deleted snapshot %s\n", c.Snapshot)
	return nil
}

// ExpandDisk grows the container's loop-backed pool, which is named after
// the container.
type ExpandDisk struct {
	Size string
}

func (c *ExpandDisk) Name() string { return ActionExpandDisk }

func (c *ExpandDisk) Execute(ctx context.Context, env *Env) error {
	rec, err := env.requireRecord()
	if err != nil {
		return err
	}
	if env.DiskImage == "" {
		return errors.New("no disk image configured")
	}
	image := filepath.Join(rec.Path, env.DiskImage)
	if err := env.Pool.Expand(ctx, rec.Name, image, c.Size); err != nil {
		return err
	}
	env.printf("{green}✓{reset} Expanded pool %s by %s\n", rec.Name, c.Size)
	return nil
}
