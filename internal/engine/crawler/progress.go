package crawler

// ProgressSink receives push-style crawl progress. Status is called on every
// state transition and page/cell boundary; Log receives non-fatal error
// lines. Implementations must not block: the crawl never waits on its
// consumer.
type ProgressSink interface {
	Status(status, message string, count int)
	Log(line string)
}

// Status labels emitted on the sink.
const (
	StatusLabelStatus = "status"
	StatusLabelError  = "error"
	StatusLabelDone   = "done"
)

// NopSink discards all progress events.
type NopSink struct{}

func (NopSink) Status(status, message string, count int) {}
func (NopSink) Log(line string)                          {}

// SinkFuncs adapts plain functions to a ProgressSink; nil funcs are ignored.
type SinkFuncs struct {
	OnStatus func(status, message string, count int)
	OnLog    func(line string)
}

func (s SinkFuncs) Status(status, message string, count int) {
	if s.OnStatus != nil {
		s.OnStatus(status, message, count)
	}
}

func (s SinkFuncs) Log(line string) {
	if s.OnLog != nil {
		s.OnLog(line)
	}
}
