// Windows signal handling for the long-running commands (serve, watch).
//
// This file is compiled only on Windows, which has no SIGTERM. The runtime
// maps CTRL_BREAK_EVENT and console close to os.Interrupt.

//go:build windows

package main

import (
	"os"
	"os/signal"
)

// signalChannel returns a channel receiving os.Interrupt.
func signalChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	return ch
}
