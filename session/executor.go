package session

import (
	"errors"
	"sync"
)

// ErrExecutorClosed is returned by Submit after the executor was closed.
var ErrExecutorClosed = errors.New("executor is closed")

// Executor runs the I/O tasks issued by session pumps. Each pump operation
// is one task; a pump re-issues itself by submitting a fresh task, so a
// long-lived connection never grows a call stack.
type Executor interface {
	// Submit schedules task for execution without blocking the caller.
	Submit(task func()) error
}

// GoExecutor runs every task on its own goroutine. The zero value is ready
// to use.
type GoExecutor struct {
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewGoExecutor returns a ready GoExecutor.
func NewGoExecutor() *GoExecutor {
	return &GoExecutor{}
}

// Submit implements Executor.
func (e *GoExecutor) Submit(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrExecutorClosed
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		task()
	}()

	return nil
}

// Close rejects further submissions. Running tasks are not interrupted.
func (e *GoExecutor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// Wait blocks until every submitted task has returned.
func (e *GoExecutor) Wait() {
	e.wg.Wait()
}

var defaultExecutor = NewGoExecutor()
