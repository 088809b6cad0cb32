// Package scheduler runs callbacks at scheduled times from a min-heap and
// drives periodic pipeline runs on top of it.
package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrSchedulerStopped is returned when scheduling on a stopped scheduler
var ErrSchedulerStopped = errors.New("scheduler is stopped")

// Task is a callback scheduled for future execution
type Task struct {
	ID    string
	RunAt time.Time
	Fn    func()
	index int // index in the heap (for heap.Interface)
}

// taskHeap is a min-heap of Tasks ordered by RunAt
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].RunAt.Before(h[j].RunAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	task := x.(*Task)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil  // avoid memory leak
	task.index = -1 // for safety
	*h = old[0 : n-1]
	return task
}

// Scheduler runs each task once at its RunAt time
type Scheduler struct {
	heap    taskHeap
	mu      sync.Mutex
	wakeup  chan struct{}
	tasks   map[string]*Task // for O(1) lookup by ID
	running sync.WaitGroup
	loopWg  sync.WaitGroup
	started bool
	stopped bool
	stopCh  chan struct{}
}

// New creates a scheduler. Call Start to begin dispatching.
func New() *Scheduler {
	s := &Scheduler{
		heap:   make(taskHeap, 0),
		wakeup: make(chan struct{}, 1),
		tasks:  make(map[string]*Task),
		stopCh: make(chan struct{}),
	}
	heap.Init(&s.heap)
	return s
}

// Start starts the dispatch loop
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	s.loopWg.Add(1)
	go s.run()
}

// Stop discards pending tasks and waits for running callbacks to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.heap = s.heap[:0]
	s.tasks = make(map[string]*Task)
	s.mu.Unlock()

	s.loopWg.Wait()
	s.running.Wait()
}

// Schedule adds a task to run at runAt, replacing any pending task with
// the same id
func (s *Scheduler) Schedule(id string, runAt time.Time, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}

	if existing, ok := s.tasks[id]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.tasks, id)
	}

	task := &Task{ID: id, RunAt: runAt, Fn: fn}
	heap.Push(&s.heap, task)
	s.tasks[id] = task

	// Wake up the loop if this is the earliest task
	if s.heap[0] == task {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// Next returns the run time of the pending task id
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return time.Time{}, false
	}
	return task.RunAt, true
}

func (s *Scheduler) run() {
	defer s.loopWg.Done()

	for {
		s.mu.Lock()

		if s.stopped {
			s.mu.Unlock()
			return
		}

		var wait time.Duration
		if s.heap.Len() == 0 {
			// No tasks, wait for a wakeup
			wait = 24 * time.Hour
		} else {
			next := s.heap[0]
			wait = time.Until(next.RunAt)

			if wait <= 0 {
				task := heap.Pop(&s.heap).(*Task)
				delete(s.tasks, task.ID)

				s.running.Add(1)
				go func() {
					defer s.running.Done()
					task.Fn()
				}()

				s.mu.Unlock()
				continue
			}
		}

		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}
