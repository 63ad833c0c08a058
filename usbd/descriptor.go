package usbd

import (
	"github.com/tinybridge/usbd/pkg"
)

// resolveDescriptor arbitrates one descriptor request between a handler
// and its static fallback. The returned slice is handed to the
// controller, which reads it asynchronously after this call returns, so
// a successful dynamic result is retained in the control IN slot until
// the next result (or reset/teardown) displaces it.
func (u *USBD) resolveDescriptor(handler func() any, static []byte) []byte {
	if u.torndown || handler == nil {
		return static
	}

	res, ok := u.invoke(func() any { return handler() })
	if !ok {
		// Failure in the handler; drop any previously retained result.
		u.retain(0, dirIn, nil)
		return static
	}

	raw, err := peekBuffer(res, bufferRead)
	if err != nil {
		pkg.LogWarn(pkg.ComponentUSBD, "descriptor handler result is not a buffer",
			"error", err)
		u.retain(0, dirIn, res)
		return static
	}

	u.retain(0, dirIn, res)
	return raw
}

// DeviceDescriptor implements [hal.Driver].
func (u *USBD) DeviceDescriptor() []byte {
	return u.resolveDescriptor(u.handlers.DeviceDescriptor, u.static.Device)
}

// ConfigurationDescriptor implements [hal.Driver]. Only a single
// configuration is supported; index is ignored.
func (u *USBD) ConfigurationDescriptor(index uint8) []byte {
	_ = index
	return u.resolveDescriptor(u.handlers.ConfigDescriptor, u.static.Configuration)
}

// StringDescriptor implements [hal.Driver]. Strings have no static
// fallback: an unset handler, a failure, or a non-buffer result all
// yield nil, which the controller reports as an unknown index.
func (u *USBD) StringDescriptor(index uint8) []byte {
	if u.torndown || u.handlers.StringDescriptor == nil {
		return nil
	}

	res, ok := u.invoke(func() any { return u.handlers.StringDescriptor(index) })
	if !ok || res == nil {
		return nil
	}

	raw, err := peekBuffer(res, bufferRead)
	if err != nil {
		pkg.LogWarn(pkg.ComponentUSBD, "string descriptor handler result is not a buffer",
			"index", index, "error", err)
		return nil
	}
	return raw
}
