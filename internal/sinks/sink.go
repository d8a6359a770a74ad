// Package sinks delivers canonical postback events to downstream stores:
// an S3 document per event, a DynamoDB journal item, a GA4 Measurement
// Protocol hit and an SQS message for asynchronous processing.
package sinks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/pkg/logger"
)

// Sink consumes canonical events.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev *domain.CanonicalEvent) error
}

// DefaultSinkTimeout bounds a single sink delivery inside a Fanout.
const DefaultSinkTimeout = 10 * time.Second

// Fanout sends each event to every sink concurrently.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
}

// NewFanout creates a Fanout. A zero timeout uses DefaultSinkTimeout.
func NewFanout(timeout time.Duration, sinks ...Sink) *Fanout {
	if timeout <= 0 {
		timeout = DefaultSinkTimeout
	}
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &Fanout{sinks: live, timeout: timeout}
}

// Name implements Sink.
func (f *Fanout) Name() string { return "fanout" }

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Send implements Sink. It waits for every sink and joins their errors.
func (f *Fanout) Send(ctx context.Context, ev *domain.CanonicalEvent) error {
	if ev == nil {
		return errors.New("nil event")
	}
	errs := make([]error, len(f.sinks))
	var wg sync.WaitGroup
	for i, s := range f.sinks {
		wg.Add(1)
		go func(i int, s Sink) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			start := time.Now()
			if err := s.Send(sctx, ev); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				logger.Error("sink delivery failed",
					"sink", s.Name(), "event_id", ev.EventID, "platform", ev.Platform, "error", err)
				return
			}
			logger.Debug("sink delivered",
				"sink", s.Name(), "event_id", ev.EventID, "duration_ms", time.Since(start).Milliseconds())
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}
