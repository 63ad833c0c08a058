// Package usbd implements the runtime bridge between a USB
// device-controller stack and externally supplied handler functions
// that provide device behavior at run time: descriptor generation,
// interface enumeration, control transfers, and data transfers.
//
// The bridge is not a USB protocol implementation. Its job is the
// synchronization and lifetime-safety boundary between the controller
// stack's single-threaded task loop (driven via [hal.Controller]) and
// handler code that may run for unbounded time, may fail, and must
// never corrupt in-flight hardware transfer state.
//
// # Architecture
//
//   - [USBD] owns all bridge state and implements [hal.Driver]
//   - [Handlers] holds the seven externally supplied handler slots
//   - the buffer table keeps every buffer involved in an outstanding
//     transfer alive until its completion callback fires
//   - the invocation guard isolates handler panics and errors, queueing
//     them for reporting after the current [USBD.Tick] completes
//   - [StaticDescriptors] provides the compile-time fallback content
//     and the boundary between statically configured interfaces and
//     interfaces claimed by this bridge
//
// # Threading
//
// The bridge is single-threaded by contract. [USBD.Tick] is the only
// entry point that advances controller state, and it refuses to
// recurse: a handler that reaches back into Tick (directly, or through
// an I/O path that drives the same controller) observes
// [pkg.ErrTaskReentered]. Handler registration and transfer submission
// are expected to happen on the same goroutine as Tick, or strictly
// between ticks.
//
// # Buffer lifetime
//
// Values passed to [USBD.SubmitTransfer] and buffer values returned by
// handlers are retained by the bridge while the controller may still
// read or write their memory, and released exactly once, on transfer
// completion, bus reset, or [USBD.Teardown]. Views passed into handlers
// (the claimed descriptor block, the marshalled control request) are
// valid only for the duration of that call and must not be retained.
package usbd
