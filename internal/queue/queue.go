package queue

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"
)

type (
	// Queue runs enqueued tasks with bounded concurrency. Tasks are taken
	// in enqueue order; at most Workers run at once
	Queue struct {
		prod     topic.Producer[Task]
		cons     topic.Consumer[Task]
		name     string
		sem      chan struct{}
		stop     chan struct{}
		stopped  atomic.Bool
		stopOnce sync.Once
		started  sync.Once
		loopWG   sync.WaitGroup
		taskWG   sync.WaitGroup
	}

	Task func()
)

var ErrStopped = errors.New("queue stopped")

// New creates a Queue that runs up to workers tasks concurrently
func New(name string, workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	t := caravan.NewTopic[Task]()
	return &Queue{
		prod: t.NewProducer(),
		cons: t.NewConsumer(),
		name: name,
		sem:  make(chan struct{}, workers),
		stop: make(chan struct{}),
	}
}

// Start begins processing queued tasks
func (q *Queue) Start() {
	q.started.Do(func() {
		q.loopWG.Go(q.loop)
	})
}

// Enqueue adds a task to the queue
func (q *Queue) Enqueue(fn Task) error {
	if q.stopped.Load() {
		return ErrStopped
	}
	if fn != nil {
		message.Send(q.prod, fn)
	}
	return nil
}

// Stop stops taking new tasks and waits for running tasks to finish. Tasks
// still queued are dropped
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.stopped.Store(true)
		close(q.stop)
		q.loopWG.Wait()
		q.taskWG.Wait()
		q.prod.Close()
		q.cons.Close()
	})
}

func (q *Queue) loop() {
	for {
		select {
		case <-q.stop:
			return
		case fn, ok := <-q.cons.Receive():
			if !ok {
				return
			}
			select {
			case q.sem <- struct{}{}:
			case <-q.stop:
				return
			}
			q.taskWG.Go(func() {
				defer func() { <-q.sem }()
				q.runTask(fn)
			})
		}
	}
}

func (q *Queue) runTask(fn Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Queue task panic",
				slog.String("queue", q.name),
				slog.Any("panic", r))
		}
	}()
	fn()
}
