package queue

import (
	"context"
	"sync"
)

// Task is a unit of work submitted to a Queue.
type Task func(ctx context.Context) error

type job struct {
	ctx     context.Context
	task    Task
	result  chan error
	drained chan struct{}
}

// Queue runs submitted tasks one at a time, in submission order. A drain starts
// when the first task arrives on an idle queue and ends once the queue is empty
// again; tasks submitted while a drain is running join it.
type Queue struct {
	mu      sync.Mutex
	jobs    []*job
	running bool
	drained chan struct{}
}

func New() *Queue {
	return &Queue{}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Go enqueues task and returns a channel that receives its result. Ordering
// follows the order of Go calls.
func (q *Queue) Go(ctx context.Context, task Task) <-chan error {
	return q.push(ctx, task).result
}

// Submit enqueues task and waits until the drain it joined is finished, so any
// task queued behind it has also run. It returns the task's own error, or
// ctx.Err() if ctx ends first. Tasks whose ctx has ended before their turn
// are skipped.
func (q *Queue) Submit(ctx context.Context, task Task) error {
	j := q.push(ctx, task)
	select {
	case <-j.drained:
		return <-j.result
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) push(ctx context.Context, task Task) *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		q.running = true
		q.drained = make(chan struct{})
		go q.drain(q.drained)
	}
	j := &job{ctx: ctx, task: task, result: make(chan error, 1), drained: q.drained}
	q.jobs = append(q.jobs, j)
	return j
}

func (q *Queue) pop() *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		q.running = false
		return nil
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	return j
}

func (q *Queue) drain(drained chan struct{}) {
	defer close(drained)
	for j := q.pop(); j != nil; j = q.pop() {
		if err := j.ctx.Err(); err != nil {
			j.result <- err
			continue
		}
		j.result <- j.task(j.ctx)
	}
}
