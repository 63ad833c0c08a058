package hal

import (
	"errors"
	"testing"

	"github.com/tinybridge/usbd/pkg"
)

func TestSetupPacket_ParseMarshal(t *testing.T) {
	raw := []byte{0xC0, 0x20, 0x01, 0x00, 0x02, 0x00, 0x10, 0x00}

	var s SetupPacket
	if err := ParseSetupPacket(raw, &s); err != nil {
		t.Fatalf("ParseSetupPacket() error = %v", err)
	}
	if s.RequestType != 0xC0 || s.Request != 0x20 || s.Value != 1 || s.Index != 2 || s.Length != 16 {
		t.Errorf("parsed packet = %+v", s)
	}

	var buf [SetupPacketSize]byte
	if n := s.MarshalTo(buf[:]); n != SetupPacketSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, SetupPacketSize)
	}
	for i := range raw {
		if buf[i] != raw[i] {
			t.Errorf("marshalled byte %d = 0x%02X, want 0x%02X", i, buf[i], raw[i])
		}
	}
}

func TestSetupPacket_TooShort(t *testing.T) {
	var s SetupPacket
	if err := ParseSetupPacket([]byte{0x80, 0x06}, &s); !errors.Is(err, pkg.ErrSetupPacketTooShort) {
		t.Errorf("ParseSetupPacket() error = %v, want %v", err, pkg.ErrSetupPacketTooShort)
	}
	var small [4]byte
	if n := s.MarshalTo(small[:]); n != 0 {
		t.Errorf("MarshalTo(short buf) = %d, want 0", n)
	}
}

func TestSetupPacket_Accessors(t *testing.T) {
	s := SetupPacket{RequestType: RequestDirectionDeviceToHost | RequestTypeVendor | RequestRecipientInterface}

	if !s.IsDeviceToHost() {
		t.Error("IsDeviceToHost() = false")
	}
	if !s.IsVendor() {
		t.Error("IsVendor() = false")
	}
	if got := s.Recipient(); got != RequestRecipientInterface {
		t.Errorf("Recipient() = %d, want %d", got, RequestRecipientInterface)
	}
}

func TestControlStage_String(t *testing.T) {
	tests := []struct {
		stage ControlStage
		want  string
	}{
		{ControlStageSetup, "setup"},
		{ControlStageData, "data"},
		{ControlStageAck, "ack"},
		{ControlStage(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.stage.String(); got != tt.want {
			t.Errorf("ControlStage(%d).String() = %q, want %q", tt.stage, got, tt.want)
		}
	}
}
