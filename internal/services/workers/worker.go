package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	"github.com/killallgit/voxlog/internal/models"
)

// ErrStopped is returned by Submit once the worker is shutting down
var ErrStopped = errors.New("worker stopped")

// EventHandler processes inbound events
type EventHandler interface {
	Handle(ctx context.Context, event models.Event) error
	// HandleImmediate serves events that must bypass the queue and reports whether it did
	HandleImmediate(ctx context.Context, event models.Event) bool
}

// Worker drains the event queue one event at a time, so session mutations never race
type Worker struct {
	id       string
	handler  EventHandler
	queue    chan models.Event
	stopChan chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWorker creates a new worker with a bounded queue
func NewWorker(id string, handler EventHandler, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Worker{
		id:       id,
		handler:  handler,
		queue:    make(chan models.Event, queueSize),
		stopChan: make(chan struct{}),
	}
}

// Start starts the worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop cancels the event in progress, drops queued events and waits for the loop to exit
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		if w.cancel != nil {
			w.cancel()
		}
	})
	w.wg.Wait()
}

// Submit hands an event to the worker. Cancellation requests are served right away so
// they can interrupt the event being processed.
func (w *Worker) Submit(ctx context.Context, event models.Event) error {
	select {
	case <-w.stopChan:
		return ErrStopped
	default:
	}

	if w.handler.HandleImmediate(ctx, event) {
		return nil
	}

	select {
	case w.queue <- event:
		return nil
	case <-w.stopChan:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued events
func (w *Worker) Pending() int {
	return len(w.queue)
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log.Printf("[INFO] Worker %s starting", w.id)
	defer log.Printf("[INFO] Worker %s stopped", w.id)

	for {
		select {
		case <-ctx.Done():
			w.drop()
			return
		case <-w.stopChan:
			w.drop()
			return
		case event := <-w.queue:
			if err := w.process(ctx, event); err != nil {
				log.Printf("[ERROR] Worker %s: error handling %s event from chat %d: %v", w.id, event.Kind, event.ChatID, err)
			}
		}
	}
}

// process runs one event and turns a handler panic into an error
func (w *Worker) process(ctx context.Context, event models.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] Worker %s: panic handling %s event: %v\n%s", w.id, event.Kind, r, debug.Stack())
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return w.handler.Handle(ctx, event)
}

func (w *Worker) drop() {
	if n := len(w.queue); n > 0 {
		log.Printf("[WARN] Worker %s dropping %d queued event(s)", w.id, n)
	}
}
