// Unix signal handling for the long-running commands (serve, watch).
//
// This file is compiled on all non-Windows platforms. SIGTERM is what process
// managers and container runtimes send to request a stop.

//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// signalChannel returns a channel receiving SIGINT and SIGTERM. The buffer
// of 1 keeps a signal that arrives while the receiver is busy.
func signalChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}
