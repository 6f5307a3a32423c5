// conn_unix.go implements the device transport on Unix-like systems as a
// Unix domain socket inside the data directory.

//go:build !windows

package ipc

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"path/filepath"

	"tools.zach/dev/safesave/internal/paths"
)

// ///////////////////////////////////////////////
// Connection
// ///////////////////////////////////////////////

// DefaultEndpoint returns the socket path inside dataDir.
func DefaultEndpoint(dataDir string) string {
	return filepath.Join(dataDir, paths.SocketFile)
}

func dial(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", endpoint)
}

// Listen listens on endpoint. A stale socket file left by a crashed server
// is removed first; callers guard against a live one with the PID lock.
func Listen(endpoint string) (net.Listener, error) {
	if err := os.Remove(endpoint); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return net.Listen("unix", endpoint)
}
