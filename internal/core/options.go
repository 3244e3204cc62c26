package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Option configures a Service.
type Option func(*Service)

// IDGenerator mints identifiers for new people. kind is "root", "child" or
// "parent".
type IDGenerator func(kind string, now time.Time) string

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs an operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer wrapping every write operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder installs an audit sink for write operations.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithForestObserver installs a callback invoked after each rebuild.
func WithForestObserver(observer ForestObserver) Option {
	return func(s *Service) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithIDGenerator overrides how identifiers for new people are minted.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// DefaultIDGenerator returns "<kind>_<unix millis>_<random>". The random
// suffix keeps two writes within the same millisecond apart.
func DefaultIDGenerator(kind string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", kind, now.UnixMilli(), suffix)
}
