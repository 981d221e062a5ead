package index

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher applies index actions asynchronously on a single worker
// goroutine. Actions for the same entity are applied in enqueue order.
type Dispatcher struct {
	indexer Indexer
	log     *zap.Logger
	actions chan Action

	closeOnce sync.Once
	done      chan struct{}
	pending   sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given queue depth and starts
// its worker
func NewDispatcher(indexer Indexer, log *zap.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	d := &Dispatcher{
		indexer: indexer,
		log:     log,
		actions: make(chan Action, queueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue submits an action for asynchronous application. It blocks when
// the queue is full rather than dropping work.
func (d *Dispatcher) Enqueue(action Action) {
	select {
	case <-d.done:
		d.log.Warn("index action dropped, dispatcher closed",
			zap.String("op", action.Op.String()),
			zap.String("entityType", action.EntityTypeID))
		return
	default:
	}
	d.pending.Add(1)
	select {
	case d.actions <- action:
	case <-d.done:
		d.pending.Done()
		d.log.Warn("index action dropped, dispatcher closed",
			zap.String("op", action.Op.String()),
			zap.String("entityType", action.EntityTypeID))
	}
}

// Wait blocks until every enqueued action has been applied. Used by tests
// and by rebuild jobs that need a settled index.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Close stops the worker after draining the queue
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.pending.Wait()
		close(d.done)
	})
}

func (d *Dispatcher) run() {
	for {
		select {
		case action := <-d.actions:
			d.apply(action)
		case <-d.done:
			for {
				select {
				case action := <-d.actions:
					d.apply(action)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) apply(action Action) {
	if err := d.indexer.Apply(context.Background(), action); err != nil {
		d.log.Error("index action failed",
			zap.String("op", action.Op.String()),
			zap.String("entityType", action.EntityTypeID),
			zap.Any("entityId", action.EntityID),
			zap.Error(err))
	}
	d.pending.Done()
}
