package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

const spinnerInterval = 100 * time.Millisecond

// Spinner shows an animated indicator while a tool is being located or
// fetched. Without a terminal it degrades to printing each message once.
// A Spinner is single-use: once stopped it stays stopped.
type Spinner struct {
	mu      sync.Mutex
	out     io.Writer
	message string
	done    chan struct{}
	stopped bool
	isTTY   bool
}

// NewSpinner returns a spinner writing to out, or os.Stderr when out is nil.
func NewSpinner(out io.Writer) *Spinner {
	if out == nil {
		out = os.Stderr
	}
	return &Spinner{
		out:   out,
		done:  make(chan struct{}),
		isTTY: ShouldShowProgress(),
	}
}

// Start begins the animation with the given message. Without a terminal
// the message is printed once instead.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	s.message = message
	if !s.isTTY {
		fmt.Fprintf(s.out, "%s\n", message)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	go s.animate()
}

// SetMessage swaps the message shown next to the spinner.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.halt("")
}

// StopWithMessage halts the animation and leaves a final line behind.
func (s *Spinner) StopWithMessage(message string) {
	s.halt(message)
}

func (s *Spinner) halt(final string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)

	switch {
	case s.isTTY && final != "":
		fmt.Fprintf(s.out, "\r%s\r%s\n", strings.Repeat(" ", lineWidth), final)
	case s.isTTY:
		fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", lineWidth))
	case final != "":
		fmt.Fprintf(s.out, "%s\n", final)
	}
}

// animate redraws frames until halted. Frame writes hold the mutex so a
// concurrent halt never interleaves output with a half-drawn frame.
func (s *Spinner) animate() {
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.stopped {
				line := fmt.Sprintf("\r%s %s", spinnerFrames[frame%len(spinnerFrames)], s.message)
				if len(line) < lineWidth {
					line += strings.Repeat(" ", lineWidth-len(line))
				}
				fmt.Fprint(s.out, line)
			}
			s.mu.Unlock()
		}
	}
}
