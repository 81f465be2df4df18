// Package watchdog implements the out-of-process supervisor for the
// engine: it watches the main engine process's PID and
// heartbeat, restarts it within a bounded attempt budget, and coordinates
// binary swap-and-restart updates initiated by the engine itself.
package watchdog

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// PIDFile tracks the supervised engine process's PID on disk so a restarted
// supervisor (or a second invocation of neuralfs-watchdog) can recover which
// process it's responsible for.
type PIDFile struct {
	path string
}

// NewPIDFile returns a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the underlying file path.
func (p *PIDFile) Path() string {
	return p.path
}

// Write records pid to the file, creating parent directories as needed.
func (p *PIDFile) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to create pidfile directory", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to write pidfile", err)
	}
	return nil
}

// Read returns the recorded PID.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.New(errors.ErrCodeFileNotFound, "pidfile not found", err)
		}
		return 0, errors.New(errors.ErrCodeFilePermission, "failed to read pidfile", err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, errors.ValidationError("pidfile contains a non-numeric pid", err)
	}
	return pid, nil
}

// Remove deletes the pidfile. It is not an error if the file is already gone.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errors.New(errors.ErrCodeFilePermission, "failed to remove pidfile", err)
	}
	return nil
}

// processAlive reports whether pid identifies a live process. FindProcess
// always succeeds on Unix, so liveness is checked with signal 0, which the
// OS delivers only if the process exists and is signalable.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// killProcess sends SIGKILL to pid, tolerating an already-dead process.
func killProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := process.Signal(syscall.SIGKILL); err != nil && processAlive(pid) {
		return errors.New(errors.ErrCodeInternal, "failed to kill unresponsive engine process", err)
	}
	return nil
}
