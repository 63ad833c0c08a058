// Package hal defines the boundary between the usbd runtime bridge and
// a USB device-controller stack.
//
// The boundary has two sides. [Controller] is the operation side: the
// set of primitives the bridge calls on the controller stack (endpoint
// open/claim/stall, transfer submission, connect/disconnect, and the
// task pump). [Driver] is the callback side: the set of callbacks the
// controller stack invokes synchronously from inside its task pump
// (descriptor requests, interface open, control transfer stages, and
// transfer completion). The bridge implements Driver; controller
// vendors implement Controller.
//
// All Driver callbacks happen on the single logical thread that drives
// the task pump. A Controller implementation must only invoke them from
// inside TaskPump.
//
// The package also carries the small wire types shared across the
// boundary: the 8-byte SETUP packet codec and the descriptor record
// headers the bridge walks during interface open.
package hal
