package delivery

import (
	"context"
	"sync"

	"postbox/internal/logging"
)

// Dispatcher schedules delivery runs without blocking the caller. At most
// one run is in flight per tracking number; a schedule request for an event
// that is already in flight is dropped.
type Dispatcher struct {
	engine *Engine
	log    *logging.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(engine *Engine) *Dispatcher {
	return &Dispatcher{
		engine:   engine,
		log:      logging.New("postbox-dispatcher"),
		inflight: map[string]struct{}{},
	}
}

// Schedule starts a delivery run for trackingNumber on its own goroutine.
// Returns false when a run for the same tracking number is already in
// flight. Runs are detached from the triggering request and always execute
// to a terminal status.
func (d *Dispatcher) Schedule(trackingNumber string) bool {
	d.mu.Lock()
	if _, busy := d.inflight[trackingNumber]; busy {
		d.mu.Unlock()
		d.log.Plain().WithTracking(trackingNumber).Warn("delivery already in flight, dropping schedule")
		return false
	}
	d.inflight[trackingNumber] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.inflight, trackingNumber)
			d.mu.Unlock()
			d.wg.Done()
		}()
		d.engine.Deliver(context.Background(), trackingNumber)
	}()
	return true
}

// WaitIdle blocks until every scheduled run has finished. Used on shutdown
// and in tests.
func (d *Dispatcher) WaitIdle() {
	d.wg.Wait()
}
