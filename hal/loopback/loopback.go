// Package loopback provides an in-memory [hal.Controller] with a
// scripted host side. Host activity (bus reset, enumeration, control
// requests, transfer completions) is queued and replayed during
// TaskPump, so driver callbacks fire exactly where a hardware
// controller would fire them. It backs the usbdemo binary and
// integration tests; there is no bus and no timing.
package loopback

import (
	"github.com/tinybridge/usbd/hal"
	"github.com/tinybridge/usbd/pkg"
)

// maxAddresses covers endpoint numbers 0-15 in both directions.
const maxAddresses = 32

// addrIndex converts an endpoint address to an array index.
// OUT 0x00-0x0F map to 0-15, IN 0x80-0x8F map to 16-31.
func addrIndex(addr uint8) int {
	if addr&0x80 != 0 {
		return int(addr&0x0F) + 16
	}
	return int(addr & 0x0F)
}

// ControlResult records the outcome of one scripted control request.
type ControlResult struct {
	Request  hal.SetupPacket
	Accepted bool   // false means the request was stalled
	Payload  []byte // data submitted by the driver, if any
}

// HAL is an in-memory controller. The zero value is not usable; create
// one with New.
//
// HAL is single-threaded like the hardware it stands in for: all
// methods must be called from the goroutine driving the task loop.
type HAL struct {
	driver hal.Driver

	connected  bool
	scheduled  int
	pendingRun []func()

	stalled [maxAddresses]bool
	claimed [maxAddresses]bool

	// Endpoints opened during enumeration.
	opened []hal.EndpointDescriptor

	// Failure injection for tests and demos.
	OpenErr       error // returned by EndpointOpen when set
	RejectSubmit  bool  // SubmitTransfer returns false
	RejectControl bool  // ControlSubmit returns false

	// Captured driver output.
	DeviceDesc []byte
	ConfigDesc []byte
	Claimed    int // bytes claimed by the driver during enumeration
	Controls   []ControlResult
	Strings    [][]byte // results of scripted string descriptor reads
	submitted  [maxAddresses][]byte
}

// New creates an idle, connected loopback controller.
func New() *HAL {
	return &HAL{connected: true}
}

// Attach implements [hal.Controller].
func (h *HAL) Attach(d hal.Driver) {
	h.driver = d
}

// TaskPump implements [hal.Controller], replaying all queued host
// activity into the attached driver.
func (h *HAL) TaskPump() {
	run := h.pendingRun
	h.pendingRun = nil
	for _, fn := range run {
		fn()
	}
}

// ScheduleTask implements [hal.Controller].
func (h *HAL) ScheduleTask() {
	h.scheduled++
}

// ScheduledTasks returns how many times a task run was requested.
func (h *HAL) ScheduledTasks() int {
	return h.scheduled
}

// Connect implements [hal.Controller].
func (h *HAL) Connect() error {
	h.connected = true
	pkg.LogDebug(pkg.ComponentLoopback, "bus connect")
	return nil
}

// Disconnect implements [hal.Controller].
func (h *HAL) Disconnect() error {
	h.connected = false
	pkg.LogDebug(pkg.ComponentLoopback, "bus disconnect")
	return nil
}

// Connected reports whether the device is attached to the simulated bus.
func (h *HAL) Connected() bool {
	return h.connected
}

// EndpointOpen implements [hal.Controller].
func (h *HAL) EndpointOpen(desc []byte) error {
	if h.OpenErr != nil {
		return h.OpenErr
	}
	var ep hal.EndpointDescriptor
	if err := hal.ParseEndpointDescriptor(desc, &ep); err != nil {
		return err
	}
	h.opened = append(h.opened, ep)
	pkg.LogDebug(pkg.ComponentLoopback, "endpoint opened", "addr", ep.EndpointAddress)
	return nil
}

// OpenedEndpoints returns the endpoints opened during enumeration.
func (h *HAL) OpenedEndpoints() []hal.EndpointDescriptor {
	return h.opened
}

// EndpointClaim implements [hal.Controller].
func (h *HAL) EndpointClaim(addr uint8) bool {
	i := addrIndex(addr)
	if h.claimed[i] {
		return false
	}
	h.claimed[i] = true
	return true
}

// SubmitTransfer implements [hal.Controller].
func (h *HAL) SubmitTransfer(addr uint8, buf []byte) bool {
	if h.RejectSubmit {
		h.claimed[addrIndex(addr)] = false
		return false
	}
	h.submitted[addrIndex(addr)] = buf
	return true
}

// ControlSubmit implements [hal.Controller].
func (h *HAL) ControlSubmit(req *hal.SetupPacket, buf []byte) bool {
	if h.RejectControl {
		return false
	}
	if len(h.Controls) > 0 {
		last := &h.Controls[len(h.Controls)-1]
		last.Payload = append([]byte(nil), buf...)
	}
	return true
}

// EndpointStall implements [hal.Controller].
func (h *HAL) EndpointStall(addr uint8) error {
	h.stalled[addrIndex(addr)] = true
	return nil
}

// EndpointClearStall implements [hal.Controller].
func (h *HAL) EndpointClearStall(addr uint8) error {
	h.stalled[addrIndex(addr)] = false
	return nil
}

// EndpointStalled implements [hal.Controller].
func (h *HAL) EndpointStalled(addr uint8) bool {
	return h.stalled[addrIndex(addr)]
}

// Submitted returns the raw region last submitted on addr, or nil.
func (h *HAL) Submitted(addr uint8) []byte {
	return h.submitted[addrIndex(addr)]
}

// queue schedules fn to run during the next TaskPump.
func (h *HAL) queue(fn func()) {
	h.pendingRun = append(h.pendingRun, fn)
}

// QueueBusReset scripts a bus reset on the next pump.
func (h *HAL) QueueBusReset() {
	h.queue(func() {
		for i := range h.claimed {
			h.claimed[i] = false
		}
		h.driver.Reset()
	})
}

// QueueEnumerate scripts a host enumeration on the next pump: the
// device and configuration descriptors are fetched, then each interface
// in the configuration is offered to the driver to claim.
func (h *HAL) QueueEnumerate() {
	h.queue(func() {
		h.DeviceDesc = h.driver.DeviceDescriptor()
		h.ConfigDesc = h.driver.ConfigurationDescriptor(0)
		h.Claimed = 0

		cfg := h.ConfigDesc
		off := 0
		for off < len(cfg) {
			rec := cfg[off:]
			n := hal.DescriptorRecordLength(rec)
			if n == 0 {
				break
			}
			if hal.DescriptorRecordType(rec) == hal.DescriptorTypeInterface {
				if claimed := h.driver.Open(rec, len(cfg)-off); claimed > 0 {
					h.Claimed += claimed
					off += claimed
					continue
				}
			}
			off += n
		}
	})
}

// QueueControl scripts a control request on the next pump, driving the
// setup, data (when wLength is nonzero), and acknowledge stages through
// the driver. A stage returning false stalls EP0 and ends the request.
func (h *HAL) QueueControl(req hal.SetupPacket) {
	h.queue(func() {
		res := ControlResult{Request: req}
		h.Controls = append(h.Controls, res)
		idx := len(h.Controls) - 1

		stages := []hal.ControlStage{hal.ControlStageSetup}
		if req.Length > 0 {
			stages = append(stages, hal.ControlStageData)
		}
		stages = append(stages, hal.ControlStageAck)

		for _, stage := range stages {
			if !h.driver.ControlXfer(stage, &req) {
				h.stalled[addrIndex(0)] = true
				h.Controls[idx].Accepted = false
				return
			}
		}
		h.Controls[idx].Accepted = true
	})
}

// QueueCompletion scripts the completion of an outstanding transfer on
// addr. The claim is released before the completion callback fires, as
// a controller would do.
func (h *HAL) QueueCompletion(addr uint8, result pkg.TransferStatus, count uint32) {
	h.queue(func() {
		h.claimed[addrIndex(addr)] = false
		h.submitted[addrIndex(addr)] = nil
		h.driver.XferComplete(addr, result, count)
	})
}

// QueueStringRead scripts a string descriptor fetch on the next pump;
// the result is appended to Strings.
func (h *HAL) QueueStringRead(index uint8) {
	h.queue(func() {
		h.Strings = append(h.Strings, h.driver.StringDescriptor(index))
	})
}
