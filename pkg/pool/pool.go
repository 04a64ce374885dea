package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task represents one queued unit of work.
type Task struct {
	ID       string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a task. Returned errors are terminal outcomes the
// handler already dealt with; they are logged, never retried. A panic
// escaping the handler is a worker crash.
type Handler func(context.Context, Task) error

// InitFunc runs once per worker before it signals ready. It is where a
// worker claims resources of its own, e.g. verifying a database
// connection. Failure counts as a startup crash and the worker is
// replaced.
type InitFunc func(ctx context.Context, workerID int) error

// Stats is a point-in-time occupancy snapshot.
type Stats struct {
	Workers int
	Busy    int
	Queued  int
}

// Config configures pool behaviour.
type Config struct {
	Size    int
	Init    InitFunc
	Logger  *zap.Logger
	OnStats func(Stats)
}

type eventKind int

const (
	eventReady eventKind = iota
	eventDone
	eventCrashed
)

type workerEvent struct {
	workerID int
	kind     eventKind
	task     *Task
	cause    interface{}
}

type worker struct {
	id    int
	tasks chan Task
}

// Pool dispatches tasks to a fixed-size set of workers in strict FIFO
// order. All mutable state (the queue, worker states) is owned by a
// single dispatcher goroutine; workers talk to it only via channels. A
// crashed worker is replaced, but the task it held is lost: there is no
// redelivery at this layer.
type Pool struct {
	name    string
	handler Handler
	size    int
	init    InitFunc
	logger  *zap.Logger
	onStats func(Stats)

	baseCtx  context.Context
	submit   chan Task
	events   chan workerEvent
	statsReq chan chan Stats
	quit     chan struct{}
	stopped  chan struct{}
	allReady chan struct{}

	wg       sync.WaitGroup
	mu       sync.Mutex
	stopOnce sync.Once
	started  bool
}

// New builds a pool with the provided handler.
func New(name string, handler Handler, cfg Config) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Pool{
		name:     name,
		handler:  handler,
		size:     cfg.Size,
		init:     cfg.Init,
		logger:   cfg.Logger,
		onStats:  cfg.OnStats,
		submit:   make(chan Task),
		events:   make(chan workerEvent, cfg.Size*4),
		statsReq: make(chan chan Stats),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		allReady: make(chan struct{}),
	}
}

// Start launches the workers and blocks until every one of them has
// signalled ready. No task is accepted before that point. The context
// bounds the wait and is the base context handed to task handlers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("pool %s already started", p.name)
	}
	p.started = true
	p.baseCtx = ctx
	p.mu.Unlock()

	go p.dispatch()

	select {
	case <-p.allReady:
		p.logger.Sugar().Infow("pool started", "pool", p.name, "workers", p.size)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool %s startup: %w", p.name, ctx.Err())
	}
}

// Submit queues a task. It blocks only until the dispatcher has taken
// the task, never until a worker picks it up.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return fmt.Errorf("pool %s not started", p.name)
	}

	if task.Enqueued.IsZero() {
		task.Enqueued = time.Now().UTC()
	}

	select {
	case p.submit <- task:
		return nil
	case <-p.stopped:
		return fmt.Errorf("pool %s stopped", p.name)
	}
}

// Stats returns a snapshot consistent with the dispatcher's view.
func (p *Pool) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case p.statsReq <- reply:
		return <-reply
	case <-p.stopped:
		return Stats{Workers: p.size}
	}
}

// Stop lets in-flight tasks finish, drops anything still queued with a
// warning, and waits for all workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.stopOnce.Do(func() { close(p.quit) })
	<-p.stopped
	p.wg.Wait()
	p.logger.Sugar().Infow("pool stopped", "pool", p.name)
}

// dispatch is the single goroutine that owns the queue and all worker
// state. Workers never touch these; they only send events.
func (p *Pool) dispatch() {
	defer close(p.stopped)

	var queue []Task
	workers := make(map[int]*worker, p.size)
	idle := make([]int, 0, p.size)
	busy := make(map[int]bool, p.size)
	nextID := 0
	readyCount := 0
	gateOpen := false

	spawn := func() {
		nextID++
		w := &worker{id: nextID, tasks: make(chan Task, 1)}
		workers[w.id] = w
		p.wg.Add(1)
		go p.run(w)
	}

	for i := 0; i < p.size; i++ {
		spawn()
	}

	emitStats := func() {
		if p.onStats != nil {
			p.onStats(Stats{Workers: p.size, Busy: len(busy), Queued: len(queue)})
		}
	}

	assign := func() {
		// Nothing is dispatched until every worker has signalled ready,
		// even if tasks are already queued.
		if !gateOpen {
			emitStats()
			return
		}
		for len(queue) > 0 && len(idle) > 0 {
			task := queue[0]
			queue = queue[1:]
			id := idle[0]
			idle = idle[1:]
			busy[id] = true
			workers[id].tasks <- task
		}
		emitStats()
	}

	quit := p.quit
	draining := false
	for {
		select {
		case task := <-p.submit:
			if draining {
				p.logger.Sugar().Warnw("task rejected during shutdown", "pool", p.name, "task_id", task.ID)
				continue
			}
			queue = append(queue, task)
			assign()

		case ev := <-p.events:
			switch ev.kind {
			case eventReady:
				readyCount++
				idle = append(idle, ev.workerID)
				if !gateOpen && readyCount == p.size {
					gateOpen = true
					close(p.allReady)
				}
				assign()
			case eventDone:
				delete(busy, ev.workerID)
				idle = append(idle, ev.workerID)
				assign()
			case eventCrashed:
				delete(busy, ev.workerID)
				delete(workers, ev.workerID)
				if ev.task != nil {
					p.logger.Sugar().Errorw("worker crashed; task lost",
						"pool", p.name, "worker", ev.workerID, "task_id", ev.task.ID, "panic", fmt.Sprint(ev.cause))
				} else {
					p.logger.Sugar().Errorw("worker crashed during startup",
						"pool", p.name, "worker", ev.workerID, "panic", fmt.Sprint(ev.cause))
				}
				if !draining && p.baseCtx.Err() == nil {
					spawn()
				}
				emitStats()
			}

		case reply := <-p.statsReq:
			reply <- Stats{Workers: p.size, Busy: len(busy), Queued: len(queue)}

		case <-quit:
			draining = true
			if n := len(queue); n > 0 {
				p.logger.Sugar().Warnw("dropping queued tasks on shutdown", "pool", p.name, "dropped", n)
				queue = nil
			}
			quit = nil // a nil channel blocks; the closed one would spin
		}

		if draining && len(busy) == 0 {
			for _, w := range workers {
				close(w.tasks)
			}
			return
		}
	}
}

// run is a worker goroutine. It initialises, signals ready, then loops
// over its private task channel. A panic anywhere ends the goroutine
// after reporting the crash; the dispatcher spawns a replacement.
func (p *Pool) run(w *worker) {
	defer p.wg.Done()

	if crashed := p.initialize(w); crashed {
		return
	}
	p.events <- workerEvent{workerID: w.id, kind: eventReady}

	for task := range w.tasks {
		if crashed := p.process(w, task); crashed {
			return
		}
		p.events <- workerEvent{workerID: w.id, kind: eventDone}
	}
}

func (p *Pool) initialize(w *worker) (crashed bool) {
	defer func() {
		if cause := recover(); cause != nil {
			crashed = true
			p.events <- workerEvent{workerID: w.id, kind: eventCrashed, cause: cause}
		}
	}()

	if p.init == nil {
		return false
	}
	if err := p.init(p.baseCtx, w.id); err != nil {
		crashed = true
		// Throttle the respawn cycle when init keeps failing, e.g. the
		// database is unreachable.
		time.Sleep(time.Second)
		p.events <- workerEvent{workerID: w.id, kind: eventCrashed, cause: err}
	}
	return crashed
}

func (p *Pool) process(w *worker, task Task) (crashed bool) {
	defer func() {
		if cause := recover(); cause != nil {
			crashed = true
			p.events <- workerEvent{workerID: w.id, kind: eventCrashed, task: &task, cause: cause}
		}
	}()

	if err := p.handler(p.baseCtx, task); err != nil {
		p.logger.Sugar().Warnw("task handler returned error",
			"pool", p.name, "worker", w.id, "task_id", task.ID, "error", err)
	}
	return false
}
