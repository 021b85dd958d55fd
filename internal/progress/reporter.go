package progress

import "github.com/Moka-Reads/QuickFetch/internal/transport"

// TransportReporter adapts a MultiBar into the transport.Reporter
// interface the Response Reader drives during Chunked/Streamed reads.
type TransportReporter struct {
	bars *MultiBar
}

// NewTransportReporter wraps bars for use as a transport.Reporter.
func NewTransportReporter(bars *MultiBar) *TransportReporter {
	return &TransportReporter{bars: bars}
}

// Bar satisfies transport.Reporter.
func (r *TransportReporter) Bar(display string, total int64) transport.Bar {
	return r.bars.Bar(display, total)
}
