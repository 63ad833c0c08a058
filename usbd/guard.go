package usbd

import (
	"fmt"
)

// maxPendingFailures bounds how many handler failures are stored per
// tick. Failures beyond the bound are summarized by count; a single
// tick can run many callbacks and each of them can fail.
const maxPendingFailures = 2

// PanicError wraps a value recovered from a handler panic.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// DroppedFailures reports how many handler failures exceeded the
// pending queue capacity within one tick. The individual failures are
// not retained, but the overflow is never silent.
type DroppedFailures struct {
	Count int
}

// Error implements the error interface.
func (e *DroppedFailures) Error() string {
	return fmt.Sprintf("%d additional handler failures", e.Count)
}

// invoke calls a handler from inside a controller callback.
//
// No failure may unwind out of the controller's task pump: the pump
// still has state cleanup to do after a callback returns, and
// reporting the failure might itself drive I/O that reenters the task
// loop. So a panic or an error result is captured here, queued, and
// drained by Tick after the pump has exited. The caller sees
// ok == false and no result.
func (u *USBD) invoke(fn func() any) (res any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err, isErr := r.(error)
			if !isErr {
				err = &PanicError{Value: r}
			}
			u.deferFailure(err)
			res, ok = nil, false
		}
	}()
	res = fn()
	if err, isErr := res.(error); isErr {
		u.deferFailure(err)
		return nil, false
	}
	return res, true
}

// deferFailure queues err for reporting after the current tick. Beyond
// capacity only the count is kept.
func (u *USBD) deferFailure(err error) {
	if u.numFailures < maxPendingFailures {
		u.pendFailures[u.numFailures] = err
	}
	u.numFailures++
}
