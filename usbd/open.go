package usbd

import (
	"github.com/tinybridge/usbd/hal"
	"github.com/tinybridge/usbd/pkg"
)

// Open implements [hal.Driver]. It walks the descriptor records at the
// head of desc, claiming interfaces (and their associated records) that
// are not in the interface number range reserved for statically
// configured drivers, and opening every endpoint described in the
// claimed range.
//
// An endpoint the controller refuses to open stops the walk; records
// claimed up to that point stand. The claimed bytes are passed once to
// the Open handler as a call-scoped view.
func (u *USBD) Open(desc []byte, maxLen int) int {
	if u.torndown {
		return 0
	}

	if maxLen > len(desc) {
		maxLen = len(desc)
	}

	claimed := 0
	for claimed < maxLen {
		rec := desc[claimed:]
		recLen := hal.DescriptorRecordLength(rec)
		if recLen == 0 {
			pkg.LogWarn(pkg.ComponentUSBD, "malformed descriptor record",
				"offset", claimed)
			break
		}

		if hal.DescriptorRecordType(rec) == hal.DescriptorTypeInterface &&
			hal.InterfaceNumber(rec) < u.static.InterfaceMax {
			// This interface belongs to a statically configured driver.
			break
		}

		if hal.DescriptorRecordType(rec) == hal.DescriptorTypeEndpoint {
			if err := u.ctrl.EndpointOpen(rec[:recLen]); err != nil {
				// Report and stop; the partial claim stands.
				pkg.LogError(pkg.ComponentUSBD, "endpoint open rejected",
					"error", err)
				break
			}
		}

		claimed += recLen
	}

	if claimed > 0 && u.handlers.Open != nil {
		view := desc[:claimed]
		u.invoke(func() any {
			u.handlers.Open(view)
			return nil
		})
	}

	return claimed
}
