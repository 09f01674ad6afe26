package ports

import "log"

// ProgressReporter receives coarse progress events from long-running
// stages (matrix fetch, solver search). Implementations must be safe for
// concurrent use.
type ProgressReporter interface {
	Step(stage string, done, total int)
}

// NopReporter discards all progress events.
type NopReporter struct{}

func (NopReporter) Step(string, int, int) {}

// LogReporter writes progress events through the standard logger.
type LogReporter struct{}

func (LogReporter) Step(stage string, done, total int) {
	log.Printf("progress stage=%s done=%d total=%d", stage, done, total)
}
