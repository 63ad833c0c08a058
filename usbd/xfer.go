package usbd

import (
	"github.com/tinybridge/usbd/pkg"
)

// XferComplete implements [hal.Driver]. The transfer on addr is over:
// the buffer table slot is released regardless of what the handler
// does, and a failed invocation reads as false.
func (u *USBD) XferComplete(addr uint8, result pkg.TransferStatus, count uint32) bool {
	if u.torndown {
		return false
	}

	var res any
	if u.handlers.Xfer != nil {
		res, _ = u.invoke(func() any {
			return u.handlers.Xfer(addr, result, count)
		})
	}

	if num := endpointNumber(addr); num < MaxEndpoints {
		u.release(num, directionIndex(addr))
	}

	return truthy(res)
}

// Reset implements [hal.Driver]. A bus reset voids every outstanding
// transfer, so all buffer references are dropped before the Reset
// handler runs.
func (u *USBD) Reset() {
	if u.torndown {
		return
	}

	for num := 0; num < MaxEndpoints; num++ {
		u.xferData[num][dirOut] = nil
		u.xferData[num][dirIn] = nil
	}

	if u.handlers.Reset != nil {
		u.invoke(func() any {
			u.handlers.Reset()
			return nil
		})
	}
}
