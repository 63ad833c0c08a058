package usbd

import (
	"time"

	"github.com/tinybridge/usbd/hal"
	"github.com/tinybridge/usbd/pkg"
)

// MaxEndpoints is the number of endpoint numbers the bridge tracks per
// direction. Endpoint numbers at or beyond this bound are rejected
// before any controller call is made.
const MaxEndpoints = 8

// Endpoint direction indices into the buffer table.
const (
	dirOut = 0 // Host to device
	dirIn  = 1 // Device to host
)

// defaultSettleDelay is how long the device stays disconnected during a
// re-enumeration cycle. Hosts need tens of milliseconds to register the
// device as gone before it reappears.
const defaultSettleDelay = 50 * time.Millisecond

// Handlers holds the externally supplied handler slots. A nil slot is
// unset; the bridge falls back to static content or stalls as
// appropriate.
//
// Handler results typed as any must be either a buffer-like value
// ([]byte, string, or a value implementing [Bytes]) or a bool,
// depending on the slot; see each field. A handler signals failure by
// panicking or by returning an error value: either way the failure is
// captured by the bridge and reported after the current tick, never
// propagated into the controller stack.
type Handlers struct {
	// DeviceDescriptor returns the device descriptor as a readable
	// buffer. Non-buffer results fall back to the static descriptor.
	DeviceDescriptor func() any

	// ConfigDescriptor returns the configuration descriptor as a
	// readable buffer. Non-buffer results fall back to the static
	// descriptor.
	ConfigDescriptor func() any

	// StringDescriptor returns the string descriptor for index as a
	// readable buffer, or nil if the index is not provided.
	StringDescriptor func(index uint8) any

	// Open is invoked once per claim during enumeration with a view
	// over exactly the claimed descriptor bytes. The view is only valid
	// for the duration of the call.
	Open func(desc []byte)

	// Reset is invoked on bus reset, after all in-flight buffer
	// references have been dropped.
	Reset func()

	// ControlXfer is invoked at each control transfer stage with a view
	// over the 8-byte setup packet. A buffer result is submitted as the
	// transfer payload; a bool result accepts (true) or stalls (false)
	// the transfer.
	ControlXfer func(stage hal.ControlStage, request []byte) any

	// Xfer is invoked on data transfer completion. A true result lets
	// the endpoint's transfer chain continue.
	Xfer func(addr uint8, result pkg.TransferStatus, count uint32) any
}

// StaticDescriptors is the compile-time descriptor content the bridge
// falls back to, plus the counts of statically reserved interfaces,
// endpoints, and strings that bound what the bridge may claim.
type StaticDescriptors struct {
	// Device is the static device descriptor.
	Device []byte

	// Configuration is the static configuration descriptor.
	Configuration []byte

	// InterfaceMax is the first interface number available to the
	// bridge; interfaces below it belong to statically configured
	// drivers and are never claimed.
	InterfaceMax uint8

	// EndpointMax is the first endpoint number available to the bridge.
	EndpointMax uint8

	// StringMax is the first string index available to the bridge.
	StringMax uint8
}

// FailureReporter receives handler failures drained after each tick.
type FailureReporter func(err error)

// USBD is the bridge between a [hal.Controller] and the registered
// [Handlers]. It implements [hal.Driver].
//
// A USBD is not safe for concurrent use; see the package documentation
// for the threading contract.
type USBD struct {
	ctrl     hal.Controller
	static   StaticDescriptors
	handlers Handlers

	// Pending re-enumerate request, executed inside the next tick.
	reenumerate bool
	settle      time.Duration

	// Buffer references for transfers in progress on each endpoint,
	// kept so the memory stays alive until the transfer completes.
	xferData [MaxEndpoints][2]any

	// Scratch space for the setup packet view passed to control
	// handlers. Repointed per call; never valid after a call returns.
	controlScratch [hal.SetupPacketSize]byte

	// Task loop reentrancy marker.
	inTask bool

	// Failures raised inside handlers, drained after each tick.
	pendFailures [maxPendingFailures]error
	numFailures  int
	report       FailureReporter

	torndown bool
}

var _ hal.Driver = (*USBD)(nil)

// Option configures a USBD.
type Option func(*USBD)

// WithSettleDelay overrides the disconnect settle interval used during
// re-enumeration.
func WithSettleDelay(d time.Duration) Option {
	return func(u *USBD) { u.settle = d }
}

// WithFailureReporter overrides the reporter that receives handler
// failures drained after each tick. The default logs them.
func WithFailureReporter(f FailureReporter) Option {
	return func(u *USBD) { u.report = f }
}

// New creates a bridge for the given controller and static descriptor
// source, and attaches it as the controller's driver.
func New(ctrl hal.Controller, static StaticDescriptors, opts ...Option) *USBD {
	u := &USBD{
		ctrl:   ctrl,
		static: static,
		settle: defaultSettleDelay,
	}
	u.report = func(err error) {
		pkg.LogError(pkg.ComponentTask, "handler failure", "error", err)
	}
	for _, opt := range opts {
		opt(u)
	}
	ctrl.Attach(u)
	return u
}

// Register installs the handler slots. Slots left nil are unset.
// Register must not be called concurrently with Tick.
func (u *USBD) Register(h Handlers) {
	u.handlers = h
}

// SubmitTransfer starts a transfer of buffer on the endpoint address
// addr. The buffer must be readable for IN endpoints and writable for
// OUT endpoints; it is retained by the bridge until the completion
// callback for this endpoint fires.
//
// The returned bool is the controller's accept/reject result. An error
// is returned without any controller call for a non-buffer value, an
// out-of-range endpoint number, or a torn-down bridge, and with
// pkg.ErrBusy if the endpoint already has an outstanding transfer.
func (u *USBD) SubmitTransfer(addr uint8, buffer any) (bool, error) {
	if u.torndown {
		return false, pkg.ErrNoDevice
	}

	mode := bufferRW
	if addr&hal.RequestTypeDirectionMask != 0 {
		mode = bufferRead
	}
	raw, err := peekBuffer(buffer, mode)
	if err != nil {
		return false, err
	}

	num := endpointNumber(addr)
	if num >= MaxEndpoints {
		// The controller API doesn't range check arguments; rejecting
		// here also keeps the buffer table index in bounds.
		return false, pkg.ErrInvalidEndpoint
	}

	if !u.ctrl.EndpointClaim(addr) {
		return false, pkg.ErrBusy
	}

	ok := u.ctrl.SubmitTransfer(addr, raw)
	if ok {
		// Keep the buffer object alive until the transfer completes.
		u.retain(num, directionIndex(addr), buffer)
	}
	return ok, nil
}

// Stalled reports whether the endpoint at addr is stalled.
func (u *USBD) Stalled(addr uint8) bool {
	return u.ctrl.EndpointStalled(addr)
}

// SetStall stalls or clears the stall condition on the endpoint at
// addr, returning the stall state prior to the change.
func (u *USBD) SetStall(addr uint8, stall bool) bool {
	prev := u.ctrl.EndpointStalled(addr)
	if stall {
		u.ctrl.EndpointStall(addr)
	} else {
		u.ctrl.EndpointClearStall(addr)
	}
	return prev
}

// Teardown discards the bridge state. Any endpoint still holding a live
// buffer reference is stalled first, because the controller may still
// be moving data into or out of that memory. After Teardown the
// controller may keep invoking callbacks; they are rejected until a new
// bridge is attached.
func (u *USBD) Teardown() {
	if u.torndown {
		return
	}
	for num := uint8(0); num < MaxEndpoints; num++ {
		for dir := 0; dir < 2; dir++ {
			if u.xferData[num][dir] != nil {
				u.ctrl.EndpointStall(endpointAddr(num, dir))
				u.xferData[num][dir] = nil
			}
		}
	}
	u.reenumerate = false
	u.torndown = true
	pkg.LogDebug(pkg.ComponentUSBD, "bridge torn down")
}

// endpointNumber extracts the endpoint number from an address.
func endpointNumber(addr uint8) uint8 {
	return addr & 0x0F
}

// directionIndex returns the buffer table direction index for an
// endpoint address.
func directionIndex(addr uint8) int {
	if addr&hal.RequestTypeDirectionMask != 0 {
		return dirIn
	}
	return dirOut
}

// endpointAddr builds an endpoint address from a number and a buffer
// table direction index.
func endpointAddr(num uint8, dir int) uint8 {
	if dir == dirIn {
		return num | hal.RequestDirectionDeviceToHost
	}
	return num
}
