// Package queue implements a lock-protected singly-linked FIFO of pending
// render jobs with a counting-semaphore wake-up: single consumer (the
// render thread), many producers (scheduler tasks running on worker
// goroutines).
package queue

import "sync"

// Job is the minimal capability the queue needs from a render job: just
// something the render thread can execute. renderjob.RenderJob satisfies
// this without queue importing renderjob, keeping the dependency one-way
// (renderer depends on both; queue depends on neither).
type Job interface {
	Execute()
}

type node struct {
	job  Job
	next *node
}

// countingSema is a classic Cond-gated counting semaphore: producers
// signal (increment + wake one waiter), the consumer waits until count > 0
// then decrements.
type countingSema struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

func newCountingSema() *countingSema {
	s := &countingSema{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *countingSema) signal() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *countingSema) wait() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.count--
	s.mu.Unlock()
}

// Queue is the single-consumer/multi-producer FIFO of pending RenderJobs.
type Queue struct {
	mu         sync.Mutex
	head, tail *node
	sema       *countingSema
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{sema: newCountingSema()}
}

// Push appends job under the lock, then signals the consumer semaphore.
// Safe to call from any goroutine.
func (q *Queue) Push(job Job) {
	n := &node{job: job}

	q.mu.Lock()
	if q.tail == nil {
		q.head, q.tail = n, n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.mu.Unlock()

	q.sema.signal()
}

// Pop blocks until a job is available, then detaches and returns the head
// of the queue. Must only be called from the single consumer (the render
// thread). The consumer waits the semaphore, acquires the lock, detaches
// the head, and releases; executing the job outside the lock is the
// caller's responsibility (Pop only detaches; it does not call Execute).
func (q *Queue) Pop() Job {
	q.sema.wait()

	q.mu.Lock()
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.mu.Unlock()

	return n.job
}
