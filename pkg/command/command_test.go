package command

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lxt/lxt/pkg/controlplane"
	"github.com/lxt/lxt/pkg/disk"
	"github.com/lxt/lxt/pkg/firewall"
	"github.com/lxt/lxt/pkg/logging"
	"github.com/lxt/lxt/pkg/portforward"
	"github.com/lxt/lxt/pkg/record"
	"github.com/lxt/lxt/pkg/shell"
	"github.com/lxt/lxt/pkg/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var listWeb = []string{"lxc", "list", "web", "--format", "csv", "-c", "4"}

type harness struct {
	env   *Env
	priv  *shell.Recorder
	plain *shell.Recorder
	store *record.Store
	out   *bytes.Buffer
	errs  *bytes.Buffer
	path  string
	slept []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		priv:  shell.NewRecorder(),
		plain: shell.NewRecorder(),
		store: record.NewStore(""),
		out:   &bytes.Buffer{},
		errs:  &bytes.Buffer{},
		path:  filepath.Join(t.TempDir(), "web"),
	}
	lxc := controlplane.NewLXC(h.priv, "")
	fw := firewall.NewIPTables(h.priv, lxc, "", "")
	h.env = &Env{
		Store:        h.store,
		ControlPlane: lxc,
		Sync:         portforward.NewSynchronizer(fw, h.store, logging.Discard()),
		Checker:      fw,
		Pool:         disk.NewPool(h.priv, nil, logging.Discard()),
		GenerateKeys: ssh.GenerateKeyPair,
		Runner:       h.plain,
		SettleDelay:  7 * time.Second,
		SetupCommand: "./setup.sh {name}",
		DiskImage:    ".conf/disk/disk.img",
		PrivateKey:   ".conf/private_key",
		SSHUser:      "ubuntu",
		Now: func() time.Time {
			return time.Date(2024, 3, 9, 14, 5, 7, 123456000, time.UTC)
		},
		Sleep:  func(d time.Duration) { h.slept = append(h.slept, d) },
		Out:    h.out,
		Err:    h.errs,
		Logger: logging.Discard(),
	}
	return h
}

// initialized saves a record for the harness container with rules installed.
func (h *harness) initialized(t *testing.T, rules ...string) *record.Record {
	t.Helper()
	rec := record.New(h.path, "", "ubuntu:22.04")
	rec.Portforwards = append(rec.Portforwards, rules...)
	require.NoError(t, h.store.Save(rec))
	return rec
}

func (h *harness) withAddress() {
	h.priv.Respond("10.0.3.15 (eth0)", listWeb...)
}

func (h *harness) run(t *testing.T, in Instruction) error {
	t.Helper()
	in.ContainerPath = h.path
	require.NoError(t, in.Validate())
	return NewFactory().Create(in).Run(context.Background(), h.env)
}

func dnat(flag, proto, sport, dest string) string {
	return "iptables -t nat " + flag + " PREROUTING -p " + proto + " --dport " + sport + " -j DNAT --to-destination " + dest
}

func TestInit(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, Instruction{Action: ActionInit, Image: "ubuntu:22.04"}))

	rec, err := h.store.Load(h.path)
	require.NoError(t, err)
	assert.Equal(t, "web", rec.Name)
	assert.Equal(t, "ubuntu:22.04", rec.Image)
	assert.Empty(t, rec.Portforwards)
	assert.Empty(t, h.priv.Invocations(), "init must not touch the control plane")
	assert.Contains(t, h.out.String(), "Initialized container web")
}

func TestInit_ExplicitName(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, Instruction{Action: ActionInit, ContainerName: "api", Image: "debian/12"}))

	rec, err := h.store.Load(h.path)
	require.NoError(t, err)
	assert.Equal(t, "api", rec.Name)
}

func TestInit_Scaffold(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, Instruction{Action: ActionInit, Image: "ubuntu:22.04", Scaffold: true}))

	assert.FileExists(t, filepath.Join(h.path, "setup.sh"))
	assert.Contains(t, h.out.String(), "Wrote setup.sh")
}

func TestInit_ScaffoldFailureRemovesRecord(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(filepath.Join(h.path, ".conf", "disk"), 0755))
	h.env.Scaffold = func(string) (bool, error) { return false, errBoom }

	err := h.run(t, Instruction{Action: ActionInit, Image: "ubuntu:22.04", Scaffold: true})
	require.ErrorIs(t, err, errBoom)

	assert.False(t, h.store.Exists(h.path))
	assert.DirExists(t, filepath.Join(h.path, ".conf", "disk"), "pre-existing files must survive")
	assert.Nil(t, h.env.Record)

	h.env.Scaffold = nil
	require.NoError(t, h.run(t, Instruction{Action: ActionInit, Image: "ubuntu:22.04"}))
}

func TestInit_RefusesExistingRecord(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, "tcp:8080:80")

	err := h.run(t, Instruction{Action: ActionInit, Image: "debian/12"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")

	rec, err := h.store.Load(h.path)
	require.NoError(t, err)
	assert.Equal(t, "ubuntu:22.04", rec.Image)
	assert.Equal(t, []string{"tcp:8080:80"}, rec.Portforwards)
}

func TestCommands_RequireRecord(t *testing.T) {
	actions := []Instruction{
		{Action: ActionStart},
		{Action: ActionStop},
		{Action: ActionDelete},
		{Action: ActionInfo},
		{Action: ActionAddPortforward, Portforward: "tcp:8080:80"},
		{Action: ActionTakeSnapshot},
		{Action: ActionExpandDisk, ExpandSize: "5G"},
	}
	for _, in := range actions {
		t.Run(in.Action, func(t *testing.T) {
			h := newHarness(t)
			err := h.run(t, in)
			assert.ErrorIs(t, err, ErrNoRecord)
			assert.Empty(t, h.priv.Invocations())
			assert.Contains(t, h.errs.String(), "Error:")
		})
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)

	require.NoError(t, h.run(t, Instruction{Action: ActionStart}))
	require.NoError(t, h.run(t, Instruction{Action: ActionStop}))

	assert.Equal(t, []string{"lxc start web", "lxc stop web"}, h.priv.Invocations())
}

func TestToImage_StopsPublishesStarts(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)

	require.NoError(t, h.run(t, Instruction{Action: ActionToImage}))

	assert.Equal(t, []string{
		"lxc stop web",
		"lxc publish web --alias web",
		"lxc start web",
	}, h.priv.Invocations())
}

func TestToImage_PublishFailureLeavesContainerStopped(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)
	h.priv.Fail(1, "lxc", "publish", "web", "--alias", "web")

	err := h.run(t, Instruction{Action: ActionToImage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish")
	assert.Equal(t, []string{"lxc stop web", "lxc publish web --alias web"}, h.priv.Invocations())
}

func TestLaunch(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)

	require.NoError(t, h.run(t, Instruction{Action: ActionLaunch}))

	assert.Equal(t, []string{"lxc start web"}, h.priv.Invocations())
	assert.Equal(t, []time.Duration{7 * time.Second}, h.slept)
	require.Len(t, h.plain.Calls, 1)
	assert.Equal(t, []string{"./setup.sh", "web"}, h.plain.Calls[0].Argv)
	assert.Equal(t, h.path, h.plain.Calls[0].Dir)
}

func TestLaunch_StartFailureSkipsSetup(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)
	h.priv.Fail(1, "lxc", "start", "web")

	require.Error(t, h.run(t, Instruction{Action: ActionLaunch}))
	assert.Empty(t, h.slept)
	assert.Empty(t, h.plain.Calls)
}

func TestSetupArgv(t *testing.T) {
	argv, err := setupArgv(`bash -c "./setup.sh {name} --fresh"`, "web")
	require.NoError(t, err)
	assert.Equal(t, []string{"bash", "-c", "./setup.sh web --fresh"}, argv)

	_, err = setupArgv(`./setup.sh "unterminated`, "web")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, "tcp:8080:80", "udp:5353:53")
	h.withAddress()

	require.NoError(t, h.run(t, Instruction{Action: ActionDelete}))

	assert.Equal(t, []string{
		"lxc list web --format csv -c 4",
		"lxc list web --format csv -c 4",
		dnat("-D", "tcp", "8080", "10.0.3.15:80"),
		"lxc list web --format csv -c 4",
		dnat("-D", "udp", "5353", "10.0.3.15:53"),
		"lxc delete --force web",
	}, h.priv.Invocations())
	assert.False(t, h.store.Exists(h.path))
	assert.Nil(t, h.env.Record)
}

func TestDelete_StoppedContainerWithoutRules(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)

	require.NoError(t, h.run(t, Instruction{Action: ActionDelete}))

	assert.Equal(t, []string{"lxc delete --force web"}, h.priv.Invocations())
	assert.False(t, h.store.Exists(h.path))
}

func TestDelete_StoppedContainerWithRulesIsLeftIntact(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, "tcp:8080:80")

	err := h.run(t, Instruction{Action: ActionDelete})
	require.ErrorIs(t, err, controlplane.ErrAddressUnavailable)
	assert.Equal(t, []string{"lxc list web --format csv -c 4"}, h.priv.Invocations())
	assert.Contains(t, h.errs.String(), "make sure it is running")

	rec, loadErr := h.store.Load(h.path)
	require.NoError(t, loadErr)
	assert.Equal(t, []string{"tcp:8080:80"}, rec.Portforwards)

	// Once the container is running again the delete goes through and the
	// directory can be initialized afresh.
	h.withAddress()
	require.NoError(t, h.run(t, Instruction{Action: ActionDelete}))
	assert.Contains(t, h.priv.Invocations(), dnat("-D", "tcp", "8080", "10.0.3.15:80"))
	assert.Contains(t, h.priv.Invocations(), "lxc delete --force web")
	assert.False(t, h.store.Exists(h.path))

	require.NoError(t, h.run(t, Instruction{Action: ActionInit, Image: "ubuntu:22.04"}))
}

func TestDelete_RuleCleanupFailureKeepsContainer(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, "tcp:8080:80", "udp:5353:53")
	h.withAddress()
	h.priv.Fail(2, "iptables", "-t", "nat", "-D", "PREROUTING", "-p", "tcp", "--dport", "8080",
		"-j", "DNAT", "--to-destination", "10.0.3.15:80")

	err := h.run(t, Instruction{Action: ActionDelete})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp:8080:80")

	assert.NotContains(t, h.priv.Invocations(), "lxc delete --force web")
	rec, loadErr := h.store.Load(h.path)
	require.NoError(t, loadErr)
	assert.Equal(t, []string{"tcp:8080:80"}, rec.Portforwards)
}

func TestDelete_ForceDeleteFailureKeepsRecord(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)
	h.priv.Fail(1, "lxc", "delete", "--force", "web")

	require.Error(t, h.run(t, Instruction{Action: ActionDelete}))
	assert.True(t, h.store.Exists(h.path))
}

func TestAddRemovePortforward(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)
	h.withAddress()

	require.NoError(t, h.run(t, Instruction{Action: ActionAddPortforward, Portforward: "tcp:8080:80"}))
	rec, err := h.store.Load(h.path)
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp:8080:80"}, rec.Portforwards)
	assert.Contains(t, h.priv.Invocations(), dnat("-A", "tcp", "8080", "10.0.3.15:80"))

	require.NoError(t, h.run(t, Instruction{Action: ActionRemovePortfwd, Portforward: "tcp:8080:80"}))
	rec, err = h.store.Load(h.path)
	require.NoError(t, err)
	assert.Empty(t, rec.Portforwards)
	assert.Contains(t, h.priv.Invocations(), dnat("-D", "tcp", "8080", "10.0.3.15:80"))
}

func TestAddPortforward_FirewallFailureLeavesRecord(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)
	h.withAddress()
	h.priv.Fail(4, "iptables", "-t", "nat", "-A", "PREROUTING", "-p", "tcp", "--dport", "8080",
		"-j", "DNAT", "--to-destination", "10.0.3.15:80")

	err := h.run(t, Instruction{Action: ActionAddPortforward, Portforward: "tcp:8080:80"})
	require.Error(t, err)

	rec, loadErr := h.store.Load(h.path)
	require.NoError(t, loadErr)
	assert.Empty(t, rec.Portforwards)
}

func TestRemovePortforward_Unknown(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, "tcp:8080:80")

	err := h.run(t, Instruction{Action: ActionRemovePortfwd, Portforward: "tcp:9090:90"})
	assert.ErrorIs(t, err, portforward.ErrRuleNotFound)
	assert.Empty(t, h.priv.Invocations())
	assert.Contains(t, h.errs.String(), "lxt info")
}

func TestCheckPortforward(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, "tcp:8080:80", "udp:5353:53")
	h.withAddress()

	require.NoError(t, h.run(t, Instruction{Action: ActionCheckPortfwd}))
	assert.Contains(t, h.out.String(), "All 2 port-forwards are installed")
}

func TestCheckPortforward_ReportsDrift(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, "tcp:8080:80", "udp:5353:53")
	h.withAddress()
	h.priv.Fail(1, "iptables", "-t", "nat", "-C", "PREROUTING", "-p", "udp", "--dport", "5353",
		"-j", "DNAT", "--to-destination", "10.0.3.15:53")

	err := h.run(t, Instruction{Action: ActionCheckPortfwd})
	assert.ErrorIs(t, err, ErrDrift)
	assert.Contains(t, err.Error(), "udp:5353:53")
	assert.NotContains(t, err.Error(), "tcp:8080:80")

	rec, loadErr := h.store.Load(h.path)
	require.NoError(t, loadErr)
	assert.Len(t, rec.Portforwards, 2, "audit must not modify the record")
}

func TestDelete_LegacyRuleSpec(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, "tcp:080:80")
	h.withAddress()

	require.NoError(t, h.run(t, Instruction{Action: ActionDelete}))
	assert.Contains(t, h.priv.Invocations(), dnat("-D", "tcp", "80", "10.0.3.15:80"))
	assert.False(t, h.store.Exists(h.path))
}

func TestSnapshots(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)

	require.NoError(t, h.run(t, Instruction{Action: ActionTakeSnapshot}))
	require.NoError(t, h.run(t, Instruction{Action: ActionRestoreSnap, SnapName: "snap_a"}))
	require.NoError(t, h.run(t, Instruction{Action: ActionDeleteSnap, SnapName: "snap_a"}))

	assert.Equal(t, []string{
		"lxc snapshot web snap_2024-03-09_14:05:07.123456",
		"lxc restore web snap_a",
		"lxc delete web/snap_a",
	}, h.priv.Invocations())
}

func TestExpandDisk(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)
	image := filepath.Join(h.path, ".conf/disk/disk.img")

	require.NoError(t, h.run(t, Instruction{Action: ActionExpandDisk, ExpandSize: "10G"}))

	assert.Equal(t, []string{
		"truncate -s +10G " + image,
		"zpool set autoexpand=on web",
		"zpool online -e web " + image,
		"zpool set autoexpand=off web",
	}, h.priv.Invocations())
}

func TestGenSSHKey(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)
	keyPath := filepath.Join(h.path, ".conf/private_key")

	require.NoError(t, h.run(t, Instruction{Action: ActionGenSSHKey}))

	assert.FileExists(t, keyPath)
	assert.FileExists(t, keyPath+".pub")
	assert.Equal(t, []string{
		"lxc exec web -- mkdir -p /home/ubuntu/.ssh",
		"lxc file push " + keyPath + ".pub web/home/ubuntu/.ssh/authorized_keys",
		"lxc exec web -- chmod 600 /home/ubuntu/.ssh/authorized_keys",
		"lxc exec web -- chown -R ubuntu:ubuntu /home/ubuntu/.ssh",
	}, h.priv.Invocations())
}

func TestGenSSHKey_InvalidPublicKeyIsNotPushed(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)
	h.env.GenerateKeys = func(privatePath, comment string) (*ssh.KeyPair, error) {
		pub := privatePath + ".pub"
		if err := os.WriteFile(pub, []byte("not-a-key\n"), 0644); err != nil {
			return nil, err
		}
		return &ssh.KeyPair{PrivateKeyPath: privatePath, PublicKeyPath: pub}, nil
	}

	err := h.run(t, Instruction{Action: ActionGenSSHKey})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SSH public key")
	assert.Empty(t, h.priv.Invocations())
}

func TestSSH(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)
	h.withAddress()

	require.NoError(t, h.run(t, Instruction{Action: ActionSSH, SSHUser: "dev"}))

	require.Len(t, h.plain.Calls, 1)
	assert.Equal(t, []string{
		"ssh",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-i", filepath.Join(h.path, ".conf/private_key"),
		"dev@10.0.3.15",
	}, h.plain.Calls[0].Argv)
}

func TestSSH_NoAddress(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)

	err := h.run(t, Instruction{Action: ActionSSH})
	assert.ErrorIs(t, err, controlplane.ErrAddressUnavailable)
	assert.Empty(t, h.plain.Calls)
}

func TestBash(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)

	require.NoError(t, h.run(t, Instruction{Action: ActionBash}))
	assert.Equal(t, []string{"lxc exec web -- /bin/bash"}, h.priv.Invocations())
}

func TestInfo(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, "tcp:8080:80", "udp:5353:53")
	h.withAddress()

	require.NoError(t, h.run(t, Instruction{Action: ActionInfo}))

	out := h.out.String()
	assert.Contains(t, out, "Container: web")
	assert.Contains(t, out, "Image: ubuntu:22.04")
	assert.Contains(t, out, "Address: 10.0.3.15")
	assert.Contains(t, out, "PROTOCOL")
	assert.Regexp(t, `tcp\s+8080\s+80`, out)
	assert.Regexp(t, `udp\s+5353\s+53`, out)
}

func TestInfo_StoppedContainer(t *testing.T) {
	h := newHarness(t)
	h.initialized(t)

	require.NoError(t, h.run(t, Instruction{Action: ActionInfo}))
	assert.Contains(t, h.out.String(), "Address: (unavailable)")
	assert.Contains(t, h.out.String(), "No port-forwards")
}

func TestInstruction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      Instruction
		wantErr bool
	}{
		{"missing path", Instruction{Action: ActionStart}, true},
		{"start", Instruction{Action: ActionStart, ContainerPath: "/ct"}, false},
		{"init without image", Instruction{Action: ActionInit, ContainerPath: "/ct"}, true},
		{"init", Instruction{Action: ActionInit, ContainerPath: "/ct", Image: "ubuntu:22.04"}, false},
		{"add without rule", Instruction{Action: ActionAddPortforward, ContainerPath: "/ct"}, true},
		{"restore without name", Instruction{Action: ActionRestoreSnap, ContainerPath: "/ct"}, true},
		{"expand", Instruction{Action: ActionExpandDisk, ContainerPath: "/ct", ExpandSize: "10G"}, false},
		{"expand bad size", Instruction{Action: ActionExpandDisk, ContainerPath: "/ct", ExpandSize: "ten"}, true},
		{"unknown action", Instruction{Action: "teleport", ContainerPath: "/ct"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

var errBoom = errors.New("boom")
