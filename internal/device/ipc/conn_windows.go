// conn_windows.go implements the device transport on Windows as a named
// pipe (\\.\pipe\safesave-device) using the go-winio library.

//go:build windows

package ipc

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"

	"tools.zach/dev/safesave/internal/paths"
)

// ///////////////////////////////////////////////
// Connection
// ///////////////////////////////////////////////

// DefaultEndpoint returns the pipe name. Pipes live in their own namespace,
// so dataDir is unused.
func DefaultEndpoint(string) string {
	return `\\.\pipe\` + paths.PipeName
}

func dial(ctx context.Context, endpoint string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, endpoint)
}

// Listen listens on the named pipe endpoint.
func Listen(endpoint string) (net.Listener, error) {
	return winio.ListenPipe(endpoint, nil)
}
