package watchdog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteReadRemove(t *testing.T) {
	dir := t.TempDir()
	pf := NewPIDFile(filepath.Join(dir, "engine.pid"))

	require.NoError(t, pf.Write(1234))
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)

	require.NoError(t, pf.Remove())
	_, err = pf.Read()
	assert.Error(t, err)
}

func TestProcessAlive_CurrentProcess(t *testing.T) {
	assert.True(t, processAlive(os.Getpid()))
}

func TestProcessAlive_BogusPID(t *testing.T) {
	assert.False(t, processAlive(0))
	assert.False(t, processAlive(-1))
}

func TestHeartbeat_BeatAndStale(t *testing.T) {
	dir := t.TempDir()
	hb := NewHeartbeat(filepath.Join(dir, "heartbeat"))

	assert.True(t, hb.Stale(time.Second), "never-beaten channel is stale")

	require.NoError(t, hb.Beat())
	assert.False(t, hb.Stale(5*time.Second))

	last, err := hb.LastBeat()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, 2*time.Second)
}

func TestHeartbeat_StaleAfterTimeout(t *testing.T) {
	dir := t.TempDir()
	hb := NewHeartbeat(filepath.Join(dir, "heartbeat"))
	require.NoError(t, hb.Beat())

	assert.True(t, hb.Stale(0), "zero timeout should always be stale relative to wall clock")
}

func TestSupervisor_RestartBudgetEscalatesAfterMaxAttempts(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.BinaryPath = "/bin/true"
	cfg.PIDFilePath = filepath.Join(dir, "engine.pid")
	cfg.HeartbeatPath = filepath.Join(dir, "heartbeat")
	cfg.MaxRestartAttempts = 2
	cfg.RestartCooldown = time.Hour // keep the window open for the whole test

	sup := New(cfg)

	escalated := make(chan string, 1)
	sup.OnEscalate = func(reason string) { escalated <- reason }

	sup.restart() // attempt 1, within budget
	sup.restart() // attempt 2, within budget
	sup.restart() // attempt 3, exceeds MaxRestartAttempts=2

	select {
	case reason := <-escalated:
		assert.Contains(t, reason, "crash-looped")
	case <-time.After(time.Second):
		t.Fatal("expected escalation after exceeding restart budget")
	}
}

func TestSupervisor_RestartBudgetResetsAfterCooldown(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.BinaryPath = "/bin/true"
	cfg.PIDFilePath = filepath.Join(dir, "engine.pid")
	cfg.HeartbeatPath = filepath.Join(dir, "heartbeat")
	cfg.MaxRestartAttempts = 1
	cfg.RestartCooldown = 20 * time.Millisecond

	sup := New(cfg)
	escalated := false
	sup.OnEscalate = func(string) { escalated = true }

	sup.restart() // attempt 1
	time.Sleep(30 * time.Millisecond)
	sup.restart() // window has elapsed, counts as a fresh attempt 1

	assert.False(t, escalated)
}
