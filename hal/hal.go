package hal

import (
	"github.com/tinybridge/usbd/pkg"
)

// ControlStage identifies the stage of a control transfer being
// reported through [Driver.ControlXfer].
type ControlStage uint8

// Control transfer stages.
const (
	ControlStageSetup ControlStage = iota // SETUP packet received
	ControlStageData                      // Data stage in progress
	ControlStageAck                       // Status (acknowledge) stage
)

// String returns a human-readable stage name.
func (s ControlStage) String() string {
	switch s {
	case ControlStageSetup:
		return "setup"
	case ControlStageData:
		return "data"
	case ControlStageAck:
		return "ack"
	default:
		return "unknown"
	}
}

// Driver is the callback side of the controller boundary, implemented
// by the runtime bridge. The controller stack invokes these callbacks
// synchronously from inside [Controller.TaskPump].
//
// Byte slices passed to Open are views over controller-owned memory and
// are only valid for the duration of the call. Byte slices returned by
// the descriptor callbacks alias memory the bridge keeps alive until
// the controller has finished reading them.
type Driver interface {
	// Reset is invoked on bus reset. All in-flight transfer state is void.
	Reset()

	// Open is invoked during enumeration with a block of configuration
	// descriptor records starting at an interface descriptor. It returns
	// the number of bytes of the block the driver claims, or 0 if the
	// block does not belong to it.
	Open(desc []byte, maxLen int) int

	// ControlXfer is invoked at each stage of a control transfer
	// addressed to the driver. Returning false stalls the transfer.
	ControlXfer(stage ControlStage, req *SetupPacket) bool

	// XferComplete is invoked when a transfer previously submitted on a
	// non-control endpoint completes. Returning false tells the
	// controller not to continue the endpoint's transfer chain.
	XferComplete(addr uint8, result pkg.TransferStatus, count uint32) bool

	// DeviceDescriptor returns the device descriptor bytes.
	DeviceDescriptor() []byte

	// ConfigurationDescriptor returns the configuration descriptor bytes
	// for the given configuration index.
	ConfigurationDescriptor(index uint8) []byte

	// StringDescriptor returns the string descriptor bytes for the given
	// string index, or nil if the index is not provided dynamically.
	StringDescriptor(index uint8) []byte
}

// Controller is the operation side of the controller boundary,
// implemented by USB device-controller stacks. The bridge calls these
// primitives; it never drives protocol timing or signaling itself.
//
// A Controller is single-threaded with respect to TaskPump: all Driver
// callbacks fire inside it, and no operation blocks waiting for bus
// activity.
type Controller interface {
	// Attach registers the driver receiving callbacks from the pump.
	Attach(d Driver)

	// TaskPump runs one iteration of the controller's internal
	// processing, dispatching any pending events to the attached driver.
	TaskPump()

	// ScheduleTask requests that the external scheduler run the task
	// loop again soon, waking it if idle.
	ScheduleTask()

	// Connect attaches the device to the bus.
	Connect() error

	// Disconnect detaches the device from the bus. The host registers
	// the device as gone after a settle interval.
	Disconnect() error

	// EndpointOpen opens a hardware endpoint described by a raw endpoint
	// descriptor record. Fails on resource exhaustion.
	EndpointOpen(desc []byte) error

	// EndpointClaim reserves an endpoint for a single transfer. Returns
	// false if the endpoint already has an outstanding transfer.
	EndpointClaim(addr uint8) bool

	// SubmitTransfer starts a transfer on a claimed endpoint. The
	// controller reads or writes buf asynchronously until the completion
	// callback fires; the caller keeps buf alive until then.
	SubmitTransfer(addr uint8, buf []byte) bool

	// ControlSubmit submits buf as the data payload of the control
	// transfer described by req.
	ControlSubmit(req *SetupPacket, buf []byte) bool

	// EndpointStall stalls the endpoint.
	EndpointStall(addr uint8) error

	// EndpointClearStall clears a stall condition on the endpoint.
	EndpointClearStall(addr uint8) error

	// EndpointStalled reports whether the endpoint is stalled.
	EndpointStalled(addr uint8) bool
}
