package watchdog

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// Heartbeat is the shared liveness channel between the engine and the
// supervisor: a single 64-bit unsigned epoch-seconds value,
// written by the engine on every tick and read by the supervisor's monitor
// loop. A native shared-memory mapping would also work on platforms that
// have one; a small lock-protected file behaves the same everywhere, so
// the channel uses the same gofrs/flock primitive internal/embed already
// uses to serialize concurrent model downloads.
type Heartbeat struct {
	path string
	lock *flock.Flock
}

// NewHeartbeat returns a Heartbeat bound to path. The file is created on
// first Beat if it doesn't already exist.
func NewHeartbeat(path string) *Heartbeat {
	return &Heartbeat{path: path, lock: flock.New(path + ".lock")}
}

// Beat stamps the channel with the current epoch-seconds time. Called by
// the engine every heartbeat_interval_ms.
func (h *Heartbeat) Beat() error {
	if err := h.lock.Lock(); err != nil {
		return errors.New(errors.ErrCodeFileLocked, "failed to acquire heartbeat lock", err)
	}
	defer func() { _ = h.lock.Unlock() }()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(time.Now().Unix()))
	if err := os.WriteFile(h.path, buf[:], 0644); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to write heartbeat", err)
	}
	return nil
}

// LastBeat returns the epoch-seconds timestamp most recently written, or
// the zero time if the channel has never been stamped.
func (h *Heartbeat) LastBeat() (time.Time, error) {
	if err := h.lock.Lock(); err != nil {
		return time.Time{}, errors.New(errors.ErrCodeFileLocked, "failed to acquire heartbeat lock", err)
	}
	defer func() { _ = h.lock.Unlock() }()

	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, errors.New(errors.ErrCodeFilePermission, "failed to read heartbeat", err)
	}
	if len(data) < 8 {
		return time.Time{}, nil
	}
	return time.Unix(int64(binary.BigEndian.Uint64(data[:8])), 0), nil
}

// Stale reports whether the channel's last beat is older than timeout, or
// was never stamped at all.
func (h *Heartbeat) Stale(timeout time.Duration) bool {
	last, err := h.LastBeat()
	if err != nil || last.IsZero() {
		return true
	}
	return time.Since(last) > timeout
}
