package pkg

import "errors"

// Bridge errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrBusy indicates the endpoint already has an outstanding transfer.
	ErrBusy = errors.New("endpoint busy")

	// ErrInvalidEndpoint indicates an endpoint number outside the supported range.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrNotABuffer indicates a value that does not expose a contiguous memory region.
	ErrNotABuffer = errors.New("object with contiguous buffer required")

	// ErrBufferReadOnly indicates a read-only value where a writable buffer is required.
	ErrBufferReadOnly = errors.New("writable buffer required")

	// ErrTaskReentered indicates the USB task was entered from inside itself.
	// A handler blocked on the very task loop that is driving it.
	ErrTaskReentered = errors.New("usb task cannot recurse")

	// ErrEndpointOpen indicates the controller rejected an endpoint open.
	ErrEndpointOpen = errors.New("endpoint open rejected")

	// ErrNoDevice indicates the device state has been torn down.
	ErrNoDevice = errors.New("device not present")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")
)

// TransferStatus represents the completion status of a USB transfer,
// as reported by the controller on the completion path.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess TransferStatus = iota // Transfer completed successfully
	TransferStatusError                         // Transfer failed with error
	TransferStatusStall                         // Endpoint stalled
	TransferStatusTimeout                       // Transfer timed out
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusTimeout:
		return ErrTimeout
	default:
		return errors.New("transfer error")
	}
}
