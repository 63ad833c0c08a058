package usbd

import (
	"github.com/tinybridge/usbd/hal"
)

// ControlXfer implements [hal.Driver], driving the SETUP → DATA → ACK
// control transfer stages through the ControlXfer handler.
//
// The handler result is interpreted two ways. A buffer compatible with
// the request direction is submitted as the transfer payload and
// retained at endpoint 0 until the transfer's data phase is over.
// Anything else is an accept/stall signal: true continues the transfer,
// everything else (including an unset handler or a failure) stalls it.
// At the ACK stage any retained endpoint 0 buffer for this direction is
// released regardless of outcome.
func (u *USBD) ControlXfer(stage hal.ControlStage, req *hal.SetupPacket) bool {
	if u.torndown {
		return false
	}

	dir := dirOut
	if req.IsDeviceToHost() {
		dir = dirIn
	}

	var res any
	if u.handlers.ControlXfer != nil {
		// The view aliases scratch space reused for every control
		// callback; the handler must not retain it.
		req.MarshalTo(u.controlScratch[:])
		view := u.controlScratch[:hal.SetupPacketSize]
		res, _ = u.invoke(func() any {
			return u.handlers.ControlXfer(stage, view)
		})
	}

	mode := bufferRW
	if dir == dirIn {
		mode = bufferRead
	}
	if raw, err := peekBuffer(res, mode); err == nil {
		submitted := u.ctrl.ControlSubmit(req, raw)
		if submitted {
			// Keep the buffer object alive until the transfer completes.
			u.retain(0, dir, res)
		}
		return submitted
	}

	if stage == hal.ControlStageAck {
		// The data phase is over; let the buffer be collected.
		u.release(0, dir)
	}
	return truthy(res)
}

// truthy interprets a handler result as an accept/stall signal. Only an
// explicit true accepts.
func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
