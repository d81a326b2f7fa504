package backends

import (
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Tracer observes the coarse phases of the pipeline: compile, load, execute.
// Backends and compilers accept one; the zero value of their configs uses
// NopTracer.
type Tracer interface {
	// Start opens a span for one phase. op is the phase name ("compile",
	// "load", "execute"), detail identifies the subject.
	Start(op, detail string) Span
}

// Span is an open trace span. End it exactly once.
type Span interface {
	End(err error)
}

// NopTracer discards all spans.
type NopTracer struct{}

func (NopTracer) Start(op, detail string) Span { return nopSpan{} }

type nopSpan struct{}

func (nopSpan) End(err error) {}

// LogTracer logs spans through klog: span starts at verbosity 2, completions
// at verbosity 1, failures as warnings.
type LogTracer struct{}

func (LogTracer) Start(op, detail string) Span {
	span := &logSpan{
		id:     uuid.NewString()[:8],
		op:     op,
		detail: detail,
		start:  time.Now(),
	}
	klog.V(2).Infof("xrt: [%s] %s started: %s", span.id, op, detail)
	return span
}

type logSpan struct {
	id     string
	op     string
	detail string
	start  time.Time
}

func (s *logSpan) End(err error) {
	elapsed := time.Since(s.start)
	if err != nil {
		klog.Warningf("xrt: [%s] %s failed after %s: %s: %v", s.id, s.op, elapsed, s.detail, err)
		return
	}
	klog.V(1).Infof("xrt: [%s] %s done in %s: %s", s.id, s.op, elapsed, s.detail)
}
