package firewall

import (
	"context"
	"errors"
	"testing"

	"github.com/lxt/lxt/pkg/portforward"
	"github.com/lxt/lxt/pkg/record"
	"github.com/lxt/lxt/pkg/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) MainIP(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

var httpRule = portforward.Rule{Protocol: "tcp", SourcePort: 8080, DestPort: 80}

func setup() (*IPTables, *shell.Recorder, *MockResolver, *record.Record) {
	runner := shell.NewRecorder()
	resolver := &MockResolver{}
	return NewIPTables(runner, resolver, "", ""), runner, resolver, record.New("/srv/web", "", "img")
}

func TestIPTablesApplyAndRetract(t *testing.T) {
	fw, runner, resolver, rec := setup()
	ctx := context.Background()
	resolver.On("MainIP", ctx, "web").Return("10.0.3.15", nil)

	require.NoError(t, fw.Apply(ctx, rec, httpRule))
	require.NoError(t, fw.Retract(ctx, rec, httpRule))

	assert.Equal(t, []string{
		"iptables -t nat -A PREROUTING -p tcp --dport 8080 -j DNAT --to-destination 10.0.3.15:80",
		"iptables -t nat -D PREROUTING -p tcp --dport 8080 -j DNAT --to-destination 10.0.3.15:80",
	}, runner.Invocations())
}

func TestIPTablesFailure(t *testing.T) {
	fw, runner, resolver, rec := setup()
	ctx := context.Background()
	resolver.On("MainIP", ctx, "web").Return("10.0.3.15", nil)
	runner.Fail(2, "iptables", "-t", "nat", "-A", "PREROUTING", "-p", "tcp", "--dport", "8080",
		"-j", "DNAT", "--to-destination", "10.0.3.15:80")

	err := fw.Apply(ctx, rec, httpRule)
	var fwErr *FirewallError
	require.True(t, errors.As(err, &fwErr))
	assert.Equal(t, "apply", fwErr.Op)
	var procErr *shell.ExternalProcessError
	assert.True(t, errors.As(err, &procErr))
}

func TestIPTablesUnresolvedAddress(t *testing.T) {
	fw, runner, resolver, rec := setup()
	ctx := context.Background()
	resolver.On("MainIP", ctx, "web").Return("", errors.New("no address"))

	err := fw.Apply(ctx, rec, httpRule)
	require.Error(t, err)
	assert.Empty(t, runner.Invocations())
}

func TestIPTablesCheck(t *testing.T) {
	ctx := context.Background()
	checkArgv := []string{"iptables", "-t", "nat", "-C", "PREROUTING", "-p", "tcp", "--dport", "8080",
		"-j", "DNAT", "--to-destination", "10.0.3.15:80"}

	tests := []struct {
		name      string
		exitCode  int
		installed bool
		wantErr   bool
	}{
		{name: "installed", exitCode: 0, installed: true},
		{name: "absent", exitCode: 1, installed: false},
		{name: "broken", exitCode: 4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw, runner, resolver, rec := setup()
			resolver.On("MainIP", ctx, "web").Return("10.0.3.15", nil)
			if tt.exitCode != 0 {
				runner.Fail(tt.exitCode, checkArgv...)
			}

			installed, err := fw.Check(ctx, rec, httpRule)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.installed, installed)
		})
	}
}

func TestIPTablesCustomChain(t *testing.T) {
	runner := shell.NewRecorder()
	resolver := &MockResolver{}
	resolver.On("MainIP", mock.Anything, "web").Return("10.0.3.15", nil)
	fw := NewIPTables(runner, resolver, "/usr/sbin/iptables-legacy", "LXT")

	require.NoError(t, fw.Apply(context.Background(), record.New("/srv/web", "", "img"),
		portforward.Rule{Protocol: "udp", SourcePort: 5353, DestPort: 53}))
	assert.Equal(t, []string{
		"/usr/sbin/iptables-legacy -t nat -A LXT -p udp --dport 5353 -j DNAT --to-destination 10.0.3.15:53",
	}, runner.Invocations())
}
