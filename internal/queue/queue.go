// Package queue is an in-process named-task queue with at-least-once delivery.
package queue

import (
	"fmt"
	"log"
	"sync"
)

// Handler executes one named task. Arguments arrive exactly as enqueued.
type Handler func(args ...any) error

// Enqueuer is the task dispatch interface the pipeline depends on.
type Enqueuer interface {
	Enqueue(name string, args ...any)
}

// Registry accepts handler registrations for named tasks.
type Registry interface {
	Register(name string, h Handler)
}

type task struct {
	name    string
	args    []any
	attempt int
}

// Pool runs tasks on a fixed set of workers. A failed task is redelivered
// once before being dropped with a log line; anything stronger is the
// caller's retry policy, not the queue's.
type Pool struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	tasks       chan task
	workerCount int
	wg          sync.WaitGroup
	stopChan    chan struct{}
	pending     sync.WaitGroup
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(workerCount, queueSize int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		handlers:    make(map[string]Handler),
		tasks:       make(chan task, queueSize),
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

// Register binds a handler to a task name. Registrations must happen before
// Start.
func (p *Pool) Register(name string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = h
}

// Enqueue submits a task. It blocks when the queue is full rather than
// dropping pipeline stages.
func (p *Pool) Enqueue(name string, args ...any) {
	p.submit(task{name: name, args: args})
}

func (p *Pool) submit(t task) {
	p.pending.Add(1)
	p.deliver(t)
}

func (p *Pool) deliver(t task) {
	select {
	case p.tasks <- t:
	case <-p.stopChan:
		p.pending.Done()
		log.Printf("queue stopping, dropping task %s", t.name)
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	log.Printf("🚀 Started task queue with %d workers", p.workerCount)
}

// Stop waits for queued tasks to finish and shuts the workers down.
func (p *Pool) Stop() {
	p.pending.Wait()
	close(p.stopChan)
	close(p.tasks)
	p.wg.Wait()
	log.Printf("Stopped task queue")
}

// Wait blocks until every queued task (including redeliveries) has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for t := range p.tasks {
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	defer p.pending.Done()

	p.mu.RLock()
	h, ok := p.handlers[t.name]
	p.mu.RUnlock()

	if !ok {
		log.Printf("⚠️  No handler registered for task %s, dropping", t.name)
		return
	}

	if err := h(t.args...); err != nil {
		if t.attempt == 0 {
			log.Printf("Task %s failed, redelivering once: %v", t.name, err)
			// registered before this task's Done so Wait cannot slip through
			p.pending.Add(1)
			go p.deliver(task{name: t.name, args: t.args, attempt: t.attempt + 1})
			return
		}
		log.Printf("Task %s failed after redelivery, dropping: %v", t.name, err)
	}
}

// Inline executes tasks synchronously in enqueue order. It backs the one-shot
// CLI commands and keeps pipeline tests deterministic.
type Inline struct {
	handlers map[string]Handler
	queue    []task
	running  bool
	failed   []error
}

// NewInline creates an empty inline runner.
func NewInline() *Inline {
	return &Inline{handlers: make(map[string]Handler)}
}

// Register binds a handler to a task name.
func (i *Inline) Register(name string, h Handler) {
	i.handlers[name] = h
}

// Enqueue appends a task. When called from inside a running task the new task
// executes after the current one returns, mirroring the async pool's ordering.
func (i *Inline) Enqueue(name string, args ...any) {
	i.queue = append(i.queue, task{name: name, args: args})
	if i.running {
		return
	}
	i.drain()
}

func (i *Inline) drain() {
	i.running = true
	defer func() { i.running = false }()

	for len(i.queue) > 0 {
		t := i.queue[0]
		i.queue = i.queue[1:]

		h, ok := i.handlers[t.name]
		if !ok {
			i.failed = append(i.failed, fmt.Errorf("no handler registered for task %s", t.name))
			continue
		}
		if err := h(t.args...); err != nil {
			i.failed = append(i.failed, fmt.Errorf("task %s: %w", t.name, err))
		}
	}
}

// Err returns the accumulated task failures, if any.
func (i *Inline) Err() error {
	if len(i.failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d task(s) failed, first: %w", len(i.failed), i.failed[0])
}
