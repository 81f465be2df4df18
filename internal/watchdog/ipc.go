package watchdog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// UpdateRequest is the single message the engine sends over the
// prepare-update IPC endpoint.
type UpdateRequest struct {
	Command       string `json:"command"` // always "prepare_update"
	NewBinaryPath string `json:"new_binary_path"`
}

// UpdateResponse acknowledges an UpdateRequest.
type UpdateResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// IPCListener accepts prepare-update requests on a Unix domain socket, the
// same JSON-over-a-local-socket shape the engine's own command router uses,
// scoped down to the one message this endpoint needs.
type IPCListener struct {
	socketPath string
	supervisor *Supervisor
}

// NewIPCListener returns a listener bound to socketPath that forwards
// prepare-update requests to sup.
func NewIPCListener(socketPath string, sup *Supervisor) *IPCListener {
	return &IPCListener{socketPath: socketPath, supervisor: sup}
}

// Serve accepts connections until ctx is cancelled.
func (l *IPCListener) Serve(ctx context.Context) error {
	_ = os.Remove(l.socketPath)
	listener, err := net.Listen("unix", l.socketPath)
	if err != nil {
		return errors.New(errors.ErrCodeNetworkUnavailable, "failed to bind prepare-update socket", err)
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(l.socketPath)
	}()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Error("prepare-update accept error", slog.String("error", err.Error()))
				continue
			}
		}
		go l.handle(conn)
	}
}

func (l *IPCListener) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	var req UpdateRequest
	resp := UpdateResponse{OK: true}
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		resp = UpdateResponse{OK: false, Error: "malformed request"}
	} else if req.Command != "prepare_update" || req.NewBinaryPath == "" {
		resp = UpdateResponse{OK: false, Error: "unsupported command"}
	} else {
		l.supervisor.PrepareUpdate(req.NewBinaryPath)
	}

	_ = json.NewEncoder(conn).Encode(resp)
}
