package pjlink

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProjector(t *testing.T, cfg Config, addrPort netip.AddrPort) *Projector {
	t.Helper()
	pool := NewPool(8)
	pool.Start()
	t.Cleanup(pool.Stop)

	cfg.Address = addrPort.Addr()
	proj, err := NewProjector(cfg, pool)
	require.NoError(t, err)
	proj.port = int(addrPort.Port())
	t.Cleanup(func() { _ = proj.Stop() })
	return proj
}

func TestNewProjectorRejectsInvalidAddress(t *testing.T) {
	pool := NewPool(1)
	_, err := NewProjector(Config{ID: "bad"}, pool)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNewProjectorRejectsNilPool(t *testing.T) {
	_, err := NewProjector(Config{ID: "ok", Address: netip.MustParseAddr("127.0.0.1")}, nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestStartConnectOnStart(t *testing.T) {
	addrPort := startFakeProjector(t, "PJLINK 0\r", nil)
	proj := newTestProjector(t, Config{ID: "p1", ConnectOnStart: true}, addrPort)

	require.NoError(t, proj.Start())
}

func TestStartAllowFailure(t *testing.T) {
	addrPort := netip.MustParseAddrPort("127.0.0.1:1")
	proj := newTestProjector(t, Config{ID: "p2", ConnectOnStart: true, AllowFailure: true}, addrPort)

	assert.NoError(t, proj.Start())
}

func TestStartFailsWithoutAllowFailure(t *testing.T) {
	addrPort := netip.MustParseAddrPort("127.0.0.1:1")
	proj := newTestProjector(t, Config{ID: "p3", ConnectOnStart: true}, addrPort)

	assert.Error(t, proj.Start())
}

func TestSendCreatesConnectionLazily(t *testing.T) {
	addrPort := startFakeProjector(t, "PJLINK 0\r", func(body string) (string, bool) {
		if body == "POWR 1" {
			return "%1POWR=OK\r", true
		}
		return "", false
	})
	proj := newTestProjector(t, Config{ID: "p4"}, addrPort)

	received := make(chan *Command, 1)
	proj.OnResponse(func(cmd *Command) { received <- cmd })

	cmd, err := proj.PowerOn()
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Same(t, cmd, got)
	case <-time.After(time.Second):
		t.Fatal("no response observed")
	}
}

func TestProjectorGetAndSet(t *testing.T) {
	addrPort := startFakeProjector(t, "PJLINK 0\r", func(body string) (string, bool) {
		switch body {
		case "POWR ?":
			return "%1POWR=1\r", true
		case "POWR 0":
			return "%1POWR=OK\r", true
		}
		return "", false
	})
	proj := newTestProjector(t, Config{ID: "p5"}, addrPort)

	received := make(chan *Command, 2)
	proj.OnResponse(func(cmd *Command) { received <- cmd })

	getCmd, err := proj.Get(bodyPower)
	require.NoError(t, err)
	setCmd, err := proj.Set(bodyPower, "0")
	require.NoError(t, err)

	seen := map[*Command]bool{}
	for i := 0; i < 2; i++ {
		select {
		case cmd := <-received:
			seen[cmd] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for responses")
		}
	}
	assert.True(t, seen[getCmd])
	assert.True(t, seen[setCmd])
}

func TestProjectorStopIsNoopWhenNeverStarted(t *testing.T) {
	pool := NewPool(1)
	proj, err := NewProjector(Config{ID: "p6", Address: netip.MustParseAddr("127.0.0.1")}, pool)
	require.NoError(t, err)
	assert.NoError(t, proj.Stop())
}
