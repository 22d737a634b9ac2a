package audit

import (
	"context"
	"fmt"
	"sync"
)

// MultiLogger fans each event out to several destinations, typically
// the database trail plus a log-collector trail. By default the fan-out
// is asynchronous so a slow destination cannot stall request handling.
type MultiLogger struct {
	recorder
	destinations []Logger
	async        bool
	wg           sync.WaitGroup
	errChan      chan error
}

// NewMultiLogger builds an asynchronous fan-out over the given
// destinations.
func NewMultiLogger(destinations ...Logger) *MultiLogger {
	m := &MultiLogger{
		destinations: destinations,
		async:        true,
		errChan:      make(chan error, len(destinations)),
	}
	m.recorder = recorder{sink: m}
	return m
}

// SetAsync switches between asynchronous and synchronous fan-out.
// Synchronous mode surfaces destination errors to the caller.
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log delivers the event to every destination.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.destinations) == 0 {
		return nil
	}
	if m.async {
		m.fanOut(ctx, event)
		return nil
	}
	return m.deliver(ctx, event)
}

// deliver writes synchronously, returning the first failure but still
// attempting every destination.
func (m *MultiLogger) deliver(ctx context.Context, event *AuditEvent) error {
	var firstErr error
	for _, dest := range m.destinations {
		if err := dest.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fanOut writes in the background, parking failures on the error
// channel for later inspection.
func (m *MultiLogger) fanOut(ctx context.Context, event *AuditEvent) {
	for _, dest := range m.destinations {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			if err := l.Log(ctx, event); err != nil {
				select {
				case m.errChan <- err:
				default:
					// Channel full, drop the error.
				}
			}
		}(dest)
	}
}

// Wait blocks until every in-flight background write has finished.
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors drains and returns the background write failures collected
// so far.
func (m *MultiLogger) GetErrors() []error {
	var errs []error
	for {
		select {
		case err := <-m.errChan:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// Close waits out in-flight writes, then closes every destination.
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, dest := range m.destinations {
		if err := dest.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close audit destination: %w", err)
		}
	}
	close(m.errChan)
	return firstErr
}
