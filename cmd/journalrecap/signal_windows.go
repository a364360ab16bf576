//go:build windows

package main

import (
	"os"
)

// terminationSignals stop the server gracefully and cancel a summarize run in flight.
// Windows only delivers os.Interrupt (Ctrl+C).
var terminationSignals = []os.Signal{os.Interrupt}
