//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals stop the server gracefully and cancel a summarize run in flight.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
