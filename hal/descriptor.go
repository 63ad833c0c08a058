package hal

import (
	"encoding/binary"

	"github.com/tinybridge/usbd/pkg"
)

// USB Descriptor Types (USB 2.0 Spec Table 9-5), the subset handled by
// the runtime bridge.
const (
	DescriptorTypeDevice               = 0x01
	DescriptorTypeConfiguration        = 0x02
	DescriptorTypeString               = 0x03
	DescriptorTypeInterface            = 0x04
	DescriptorTypeEndpoint             = 0x05
	DescriptorTypeInterfaceAssociation = 0x0B
)

// Descriptor record offsets common to every record: byte 0 is bLength,
// byte 1 is bDescriptorType.
const (
	descOffLength = 0
	descOffType   = 1

	// Interface number offset within an interface descriptor record.
	descOffInterfaceNumber = 2

	// MinDescriptorRecord is the smallest well-formed record header.
	MinDescriptorRecord = 2
)

// DescriptorRecordLength returns the length of the record at the head
// of data, or 0 if data does not hold a well-formed record header.
func DescriptorRecordLength(data []byte) int {
	if len(data) < MinDescriptorRecord {
		return 0
	}
	n := int(data[descOffLength])
	if n < MinDescriptorRecord || n > len(data) {
		return 0
	}
	return n
}

// DescriptorRecordType returns the bDescriptorType of the record at the
// head of data, or 0 if data is too short.
func DescriptorRecordType(data []byte) uint8 {
	if len(data) < MinDescriptorRecord {
		return 0
	}
	return data[descOffType]
}

// InterfaceNumber returns the bInterfaceNumber of the interface
// descriptor record at the head of data.
func InterfaceNumber(data []byte) uint8 {
	if len(data) <= descOffInterfaceNumber {
		return 0
	}
	return data[descOffInterfaceNumber]
}

// InterfaceDescriptor represents a USB interface descriptor (9 bytes).
type InterfaceDescriptor struct {
	InterfaceNumber   uint8 // Interface number
	AlternateSetting  uint8 // Alternate setting number
	NumEndpoints      uint8 // Number of endpoints (excluding EP0)
	InterfaceClass    uint8 // Class code
	InterfaceSubClass uint8 // Subclass code
	InterfaceProtocol uint8 // Protocol code
	InterfaceIndex    uint8 // Index of string descriptor
}

// InterfaceDescriptorSize is the size of an interface descriptor in bytes.
const InterfaceDescriptorSize = 9

// MarshalTo serializes the interface descriptor to buf.
// Returns the number of bytes written (always 9 if buf is large enough).
func (i *InterfaceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < InterfaceDescriptorSize {
		return 0
	}
	buf[0] = InterfaceDescriptorSize
	buf[1] = DescriptorTypeInterface
	buf[2] = i.InterfaceNumber
	buf[3] = i.AlternateSetting
	buf[4] = i.NumEndpoints
	buf[5] = i.InterfaceClass
	buf[6] = i.InterfaceSubClass
	buf[7] = i.InterfaceProtocol
	buf[8] = i.InterfaceIndex
	return InterfaceDescriptorSize
}

// EndpointDescriptor represents a USB endpoint descriptor (7 bytes).
type EndpointDescriptor struct {
	EndpointAddress uint8  // Endpoint address (including direction)
	Attributes      uint8  // Endpoint attributes (transfer type, etc.)
	MaxPacketSize   uint16 // Maximum packet size
	Interval        uint8  // Polling interval (for interrupt/isochronous)
}

// EndpointDescriptorSize is the size of an endpoint descriptor in bytes.
const EndpointDescriptorSize = 7

// MarshalTo serializes the endpoint descriptor to buf.
// Returns the number of bytes written (always 7 if buf is large enough).
func (e *EndpointDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < EndpointDescriptorSize {
		return 0
	}
	buf[0] = EndpointDescriptorSize
	buf[1] = DescriptorTypeEndpoint
	buf[2] = e.EndpointAddress
	buf[3] = e.Attributes
	binary.LittleEndian.PutUint16(buf[4:6], e.MaxPacketSize)
	buf[6] = e.Interval
	return EndpointDescriptorSize
}

// StringDescriptorTo writes a USB string descriptor for s to buf.
// The descriptor encodes the string as UTF-16LE. Returns the number of
// bytes written, or 0 if buf is too small.
func StringDescriptorTo(buf []byte, s string) int {
	runes := []rune(s)
	length := 2 + len(runes)*2
	if length > 255 {
		length = 255
		runes = runes[:(length-2)/2]
	}
	if len(buf) < length {
		return 0
	}
	buf[0] = uint8(length)
	buf[1] = DescriptorTypeString
	for i, r := range runes {
		binary.LittleEndian.PutUint16(buf[2+i*2:], uint16(r))
	}
	return length
}

// ParseEndpointDescriptor parses an endpoint descriptor from bytes into out.
// Returns an error if the data is too short or the descriptor type is wrong.
func ParseEndpointDescriptor(data []byte, out *EndpointDescriptor) error {
	if len(data) < EndpointDescriptorSize {
		return pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeEndpoint {
		return pkg.ErrDescriptorTypeMismatch
	}
	out.EndpointAddress = data[2]
	out.Attributes = data[3]
	out.MaxPacketSize = binary.LittleEndian.Uint16(data[4:6])
	out.Interval = data[6]
	return nil
}
