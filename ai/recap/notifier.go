package recap

import (
	"fmt"
	"io"
	"sync"
)

// AppName prefixes every notice.
const AppName = "journal-recap"

// Notifier surfaces run progress and outcomes to the user.
type Notifier interface {
	// Progress shows a notice while the remote call is in flight. The returned
	// func hides it and is called exactly once.
	Progress(message string) (hide func())
	// Notify shows a terminal notice.
	Notify(message string)
}

func failureNotice(err *Error) string {
	switch err.Kind {
	case KindMissingCredential:
		return fmt.Sprintf("⛔ %s: You should input your API Key", AppName)
	case KindNoInput:
		return fmt.Sprintf("⛔ %s: no input data", AppName)
	case KindMalformedResponse:
		return fmt.Sprintf("⛔ %s: JSON parsing error - %s", AppName, causeText(err))
	default:
		return fmt.Sprintf("⛔ %s: %s", AppName, causeText(err))
	}
}

func successNotice() string {
	return fmt.Sprintf("✅ %s: summarized", AppName)
}

func progressNotice() string {
	return fmt.Sprintf("%s: Processing..", AppName)
}

func causeText(err *Error) string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Recorder keeps notices in memory. The HTTP API returns them with the run.
type Recorder struct {
	mu       sync.Mutex
	notices  []string
	progress int
}

// Progress implements Notifier.
func (r *Recorder) Progress(message string) func() {
	r.mu.Lock()
	r.progress++
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.progress--
			r.mu.Unlock()
		})
	}
}

// Notify implements Notifier.
func (r *Recorder) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, message)
}

// Notices returns the terminal notices seen so far.
func (r *Recorder) Notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

// Showing reports whether a progress notice is still visible.
func (r *Recorder) Showing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress > 0
}

// WriterNotifier prints notices to a terminal.
type WriterNotifier struct {
	W io.Writer
}

// Progress implements Notifier.
func (n WriterNotifier) Progress(message string) func() {
	fmt.Fprintln(n.W, message)
	return func() {}
}

// Notify implements Notifier.
func (n WriterNotifier) Notify(message string) {
	fmt.Fprintln(n.W, message)
}
