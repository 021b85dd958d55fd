// Package progress reports fetch progress to the terminal, or drops it
// entirely, depending on the coordinator's configured notify mode.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// NotifyMode selects how the coordinator reports fetch activity.
type NotifyMode int

const (
	// Log emits one line per cache decision (hit/miss/stale) via the
	// structured logger; no per-byte progress bars.
	Log NotifyMode = iota
	// Progress drives a MultiBar; requires the response method to be
	// Chunked or Streamed (enforced by the coordinator at configuration
	// time, since Full has no intermediate bytes to report).
	Progress
	// Silent reports nothing.
	Silent
)

// Bars render as "[{msg}] [{bar:40}] {bytes}/{total_bytes} ({eta})".
const barWidth = 40

// MultiBar hands out independent progress-bar handles keyed by entry
// display string, all rendering to the same shared writer so concurrent
// downloads interleave cleanly.
type MultiBar struct {
	mu  sync.Mutex
	out io.Writer
}

// NewMultiBar builds a MultiBar writing to out (typically os.Stderr).
func NewMultiBar(out io.Writer) *MultiBar {
	return &MultiBar{out: out}
}

// Bar returns a new handle for display, sized against total bytes (0 if
// unknown, which schollz/progressbar renders as a spinner instead of a
// percentage).
func (m *MultiBar) Bar(display string, total int64) *progressbar.ProgressBar {
	m.mu.Lock()
	defer m.mu.Unlock()
	if total <= 0 {
		total = -1 // the library's spinner mode
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(m.out),
		progressbar.OptionSetDescription(fmt.Sprintf("[%s]", display)),
		progressbar.OptionSetWidth(barWidth),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(m.out) }),
	)
}
