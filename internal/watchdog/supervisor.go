package watchdog

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// Config controls the supervisor's polling cadence and restart budget
//.
type Config struct {
	BinaryPath string
	Args       []string

	PIDFilePath       string
	HeartbeatPath     string
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	PollInterval       time.Duration
	MaxRestartAttempts int
	RestartCooldown    time.Duration
}

// DefaultConfig returns the supervision defaults, leaving BinaryPath/Args/
// PIDFilePath/HeartbeatPath for the caller to fill in.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:  time.Second,
		HeartbeatTimeout:   5 * time.Second,
		PollInterval:       time.Second,
		MaxRestartAttempts: 3,
		RestartCooldown:    10 * time.Second,
	}
}

// Supervisor monitors a single engine process, restarting it on crash or
// heartbeat timeout up to a bounded attempt budget, and brokers
// prepare-update binary swaps requested by the engine.
type Supervisor struct {
	cfg       Config
	pidFile   *PIDFile
	heartbeat *Heartbeat

	mu               sync.Mutex
	pid              int
	restartAttempts  int
	windowStart      time.Time
	updatePrepared   bool
	pendingUpdateBin string

	OnEscalate func(reason string) // best-effort notification hook; nil-safe
}

// New constructs a Supervisor, applying Config zero-value defaults.
func New(cfg Config) *Supervisor {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = time.Second
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = 5 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxRestartAttempts == 0 {
		cfg.MaxRestartAttempts = 3
	}
	if cfg.RestartCooldown == 0 {
		cfg.RestartCooldown = 10 * time.Second
	}
	return &Supervisor{
		cfg:       cfg,
		pidFile:   NewPIDFile(cfg.PIDFilePath),
		heartbeat: NewHeartbeat(cfg.HeartbeatPath),
	}
}

// Start launches the engine binary once and records its PID.
func (s *Supervisor) Start() error {
	pid, err := s.spawn()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pid = pid
	s.mu.Unlock()
	return s.pidFile.Write(pid)
}

func (s *Supervisor) spawn() (int, error) {
	cmd := exec.Command(s.cfg.BinaryPath, s.cfg.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, errors.New(errors.ErrCodeInternal, "failed to start engine process", err)
	}
	go func() { _ = cmd.Wait() }() // reap; liveness is polled via signal 0, not Wait
	return cmd.Process.Pid, nil
}

// Run blocks, polling PID liveness and heartbeat freshness every
// PollInterval, until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.checkOnce()
		}
	}
}

func (s *Supervisor) checkOnce() {
	s.mu.Lock()
	prepared := s.updatePrepared
	pid := s.pid
	s.mu.Unlock()

	alive := processAlive(pid)

	if prepared {
		// While an update is prepared, auto-restart is suppressed; the
		// supervisor only watches for the engine's own exit.
		if !alive {
			s.completeUpdate()
		}
		return
	}

	healthy := alive && !s.heartbeat.Stale(s.cfg.HeartbeatTimeout)
	if healthy {
		return
	}

	if alive {
		slog.Warn("engine heartbeat stale, killing unresponsive process", slog.Int("pid", pid))
		if err := killProcess(pid); err != nil {
			slog.Error("failed to kill unresponsive engine", slog.String("error", err.Error()))
		}
	}

	s.restart()
}

// restart enforces the max_restart_attempts-within-restart_cooldown_secs
// budget: attempts reset once the window elapses; exceeding the
// budget inside an active window escalates instead of restarting again.
func (s *Supervisor) restart() {
	s.mu.Lock()
	now := time.Now()
	if s.windowStart.IsZero() || now.Sub(s.windowStart) > s.cfg.RestartCooldown {
		s.windowStart = now
		s.restartAttempts = 0
	}
	s.restartAttempts++
	attempts := s.restartAttempts
	s.mu.Unlock()

	if attempts > s.cfg.MaxRestartAttempts {
		s.escalate()
		return
	}

	pid, err := s.spawn()
	if err != nil {
		slog.Error("failed to restart engine", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.pid = pid
	s.mu.Unlock()
	if err := s.pidFile.Write(pid); err != nil {
		slog.Error("failed to update pidfile after restart", slog.String("error", err.Error()))
	}
	slog.Info("engine restarted", slog.Int("pid", pid), slog.Int("attempt", attempts))
}

// escalate is called once the restart budget is exhausted within the
// cooldown window: stop restarting, surface a persistent notification,
// and let the attempt counter reset on its own at the next cooldown
// boundary rather than retrying immediately.
func (s *Supervisor) escalate() {
	reason := "engine crash-looped past max_restart_attempts"
	slog.Error(reason, slog.Int("max_attempts", s.cfg.MaxRestartAttempts))
	if s.OnEscalate != nil {
		s.OnEscalate(reason)
	}
}

// PrepareUpdate is invoked by the prepare-update IPC listener when the
// engine requests a binary swap. It suppresses auto-restart so the
// supervisor doesn't fight the engine's own planned exit.
func (s *Supervisor) PrepareUpdate(newBinaryPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatePrepared = true
	s.pendingUpdateBin = newBinaryPath
}

// completeUpdate runs once the engine has exited under a prepared update:
// it swaps the new binary into place, keeping the old one as a backup, and
// relaunches. A failed swap rolls back to the backup and resumes
// supervising the original binary.
func (s *Supervisor) completeUpdate() {
	s.mu.Lock()
	newBin := s.pendingUpdateBin
	s.updatePrepared = false
	s.pendingUpdateBin = ""
	s.mu.Unlock()

	backup := s.cfg.BinaryPath + ".bak"
	if err := os.Rename(s.cfg.BinaryPath, backup); err != nil {
		slog.Error("update: failed to back up current binary, aborting swap", slog.String("error", err.Error()))
		s.restart()
		return
	}
	if err := copyFile(newBin, s.cfg.BinaryPath); err != nil {
		slog.Error("update: failed to install new binary, rolling back", slog.String("error", err.Error()))
		_ = os.Remove(s.cfg.BinaryPath)
		_ = os.Rename(backup, s.cfg.BinaryPath)
	}

	pid, err := s.spawn()
	if err != nil {
		slog.Error("update: failed to relaunch engine after swap", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.pid = pid
	s.restartAttempts = 0
	s.windowStart = time.Time{}
	s.mu.Unlock()
	_ = s.pidFile.Write(pid)
	slog.Info("engine relaunched after update", slog.Int("pid", pid))
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.New(errors.ErrCodeFileNotFound, "update binary not found", err)
	}
	info, err := os.Stat(dst + ".bak")
	mode := os.FileMode(0755)
	if err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(dst, data, mode); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to write new binary", err)
	}
	return nil
}
