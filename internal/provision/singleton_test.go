package provision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harismuzaffer/antfleet/internal/control"
	"github.com/harismuzaffer/antfleet/internal/ferrors"
	"github.com/harismuzaffer/antfleet/internal/registry"
)

func TestAddFaucetInstallsSingleton(t *testing.T) {
	settings := newTestSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)
	fetcher := &fakeFetcher{path: stagedBinary(t)}

	err := AddFaucet(context.Background(), FaucetOptions{Version: "0.4.0", ServiceUser: "antnode-user"}, reg, ctl, fetcher, settings)

	require.NoError(t, err)
	require.NotNil(t, reg.Faucet)
	assert.Equal(t, "faucet", reg.Faucet.ServiceName)
	assert.Equal(t, registry.StatusAdded, reg.Faucet.Status)
}

func TestAddFaucetRejectsSecondCall(t *testing.T) {
	settings := newTestSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)

	require.NoError(t, AddFaucet(context.Background(), FaucetOptions{Version: "0.4.0"}, reg, ctl, &fakeFetcher{path: stagedBinary(t)}, settings))

	err := AddFaucet(context.Background(), FaucetOptions{Version: "0.4.0"}, reg, ctl, &fakeFetcher{path: stagedBinary(t)}, settings)
	require.Error(t, err)
	assert.True(t, ferrors.IsPrecondition(err))
}

func TestAddDaemonInstallsSingleton(t *testing.T) {
	settings := newTestSettings(t)
	reg := registry.NewEmpty(settings.RegistryPath)
	ctl := control.NewFakeController(49200)
	fetcher := &fakeFetcher{path: stagedBinary(t)}

	err := AddDaemon(context.Background(), DaemonOptions{Version: "0.4.0", Port: 12000}, reg, ctl, fetcher, settings)

	require.NoError(t, err)
	require.NotNil(t, reg.Daemon)
	assert.Equal(t, "antctld", reg.Daemon.ServiceName)

	ictx, ok := ctl.InstalledContext("antctld")
	require.True(t, ok)
	assert.Contains(t, ictx.Args, "12000")
}
