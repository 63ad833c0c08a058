package usbd

import (
	"time"

	"github.com/tinybridge/usbd/pkg"
)

// Tick runs one iteration of the controller task loop: it pumps the
// controller's internal processing (which dispatches callbacks into
// this bridge), executes a pending re-enumeration, and then drains
// handler failures captured during the pump.
//
// Tick must not be reentered. If a handler invoked during the pump
// calls Tick again — typically because it blocked on an I/O path that
// is itself serviced by this task loop — the inner call returns
// pkg.ErrTaskReentered and touches no state.
func (u *USBD) Tick() error {
	if u.inTask {
		return pkg.ErrTaskReentered
	}
	u.inTask = true

	u.ctrl.TaskPump()

	if u.reenumerate && !u.torndown {
		u.executeReenumerate()
	}

	u.inTask = false

	// Drain after clearing the marker: reporting a failure may drive
	// I/O that recursively calls Tick.
	u.drainFailures()

	return nil
}

// Reenumerate requests a disconnect/reconnect cycle so the host forgets
// and rediscovers the device. The cycle is deferred to the next tick:
// issuing it synchronously could reenter the controller mid-operation,
// while a transfer's buffer is still referenced. Repeated requests
// before execution collapse into one.
func (u *USBD) Reenumerate() {
	if u.torndown {
		return
	}
	u.reenumerate = true
	// Make sure a tick happens soon even if the scheduler is idle.
	u.ctrl.ScheduleTask()
}

// executeReenumerate forces the bus-level disconnect/settle/reconnect
// sequence. Called only from inside Tick, after the pump, while the
// reentrancy marker is still set: the sequence touches connection
// state, not transfer state.
func (u *USBD) executeReenumerate() {
	pkg.LogInfo(pkg.ComponentTask, "re-enumerating", "settle", u.settle)

	if err := u.ctrl.Disconnect(); err != nil {
		pkg.LogError(pkg.ComponentTask, "disconnect failed", "error", err)
	}

	// The host needs the device to stay gone long enough to register
	// the removal, or it won't enumerate again on reconnect.
	if u.settle > 0 {
		time.Sleep(u.settle)
	}

	if err := u.ctrl.Connect(); err != nil {
		pkg.LogError(pkg.ComponentTask, "connect failed", "error", err)
	}

	u.reenumerate = false
}

// drainFailures reports the handler failures captured during the tick,
// in capture order, then the count of any failures beyond queue
// capacity. The pending state is copied out first so that a reporter
// which recursively ticks observes an empty queue.
func (u *USBD) drainFailures() {
	total := u.numFailures
	if total == 0 {
		return
	}

	stored := total
	if stored > maxPendingFailures {
		stored = maxPendingFailures
	}

	var local [maxPendingFailures]error
	for i := 0; i < stored; i++ {
		local[i] = u.pendFailures[i]
		u.pendFailures[i] = nil
	}
	u.numFailures = 0

	for i := 0; i < stored; i++ {
		u.report(local[i])
	}
	if total > maxPendingFailures {
		u.report(&DroppedFailures{Count: total - maxPendingFailures})
	}
}
