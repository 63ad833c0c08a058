package usbd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinybridge/usbd/hal"
)

func vendorIn(length uint16) hal.SetupPacket {
	return hal.SetupPacket{
		RequestType: hal.RequestDirectionDeviceToHost | hal.RequestTypeVendor | hal.RequestRecipientInterface,
		Request:     0x20,
		Value:       0x0001,
		Index:       0x0002,
		Length:      length,
	}
}

func vendorOut(length uint16) hal.SetupPacket {
	return hal.SetupPacket{
		RequestType: hal.RequestTypeVendor | hal.RequestRecipientInterface,
		Request:     0x21,
		Length:      length,
	}
}

func TestControlXfer_NoHandlerStalls(t *testing.T) {
	u := newTestBridge(newMockController())

	req := vendorIn(8)
	for _, stage := range []hal.ControlStage{hal.ControlStageSetup, hal.ControlStageData, hal.ControlStageAck} {
		require.False(t, u.ControlXfer(stage, &req), "stage %v must stall", stage)
	}
}

func TestControlXfer_HandlerSeesMarshalledRequest(t *testing.T) {
	u := newTestBridge(newMockController())

	req := vendorIn(16)
	var got hal.SetupPacket
	u.Register(Handlers{
		ControlXfer: func(stage hal.ControlStage, request []byte) any {
			require.Len(t, request, hal.SetupPacketSize)
			require.NoError(t, hal.ParseSetupPacket(request, &got))
			return true
		},
	})

	require.True(t, u.ControlXfer(hal.ControlStageSetup, &req))
	require.Equal(t, req, got)
}

func TestControlXfer_StageSymmetry(t *testing.T) {
	tests := []struct {
		name      string
		ackResult any
		want      bool
	}{
		{"ack true", true, true},
		{"ack false", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockController()
			u := newTestBridge(m)

			payload := []byte("response data")
			u.Register(Handlers{
				ControlXfer: func(stage hal.ControlStage, request []byte) any {
					switch stage {
					case hal.ControlStageData:
						return payload
					case hal.ControlStageAck:
						return tt.ackResult
					default:
						return true
					}
				},
			})

			req := vendorIn(uint16(len(payload)))
			require.True(t, u.ControlXfer(hal.ControlStageSetup, &req))

			require.True(t, u.ControlXfer(hal.ControlStageData, &req))
			require.NotNil(t, u.xferData[0][dirIn], "payload retained after DATA")
			require.Equal(t, [][]byte{payload}, m.controls)

			got := u.ControlXfer(hal.ControlStageAck, &req)
			require.Equal(t, tt.want, got)
			require.Nil(t, u.xferData[0][dirIn], "endpoint 0 slot cleared after ACK regardless of result")
		})
	}
}

func TestControlXfer_SubmitRejectNotRetained(t *testing.T) {
	m := newMockController()
	m.controlOK = false
	u := newTestBridge(m)

	u.Register(Handlers{
		ControlXfer: func(stage hal.ControlStage, request []byte) any {
			return []byte("payload")
		},
	})

	req := vendorIn(7)
	require.False(t, u.ControlXfer(hal.ControlStageData, &req))
	require.Nil(t, u.xferData[0][dirIn])
}

func TestControlXfer_HandlerFailureStalls(t *testing.T) {
	u := newTestBridge(newMockController())

	u.Register(Handlers{
		ControlXfer: func(stage hal.ControlStage, request []byte) any {
			panic("control handler broke")
		},
	})

	req := vendorIn(4)
	require.False(t, u.ControlXfer(hal.ControlStageSetup, &req))
	require.Equal(t, 1, u.numFailures)
}

func TestControlXfer_OutDirectionNeedsWritableBuffer(t *testing.T) {
	m := newMockController()
	u := newTestBridge(m)

	u.Register(Handlers{
		ControlXfer: func(stage hal.ControlStage, request []byte) any {
			// Read-only value on an OUT request: not a payload, and not
			// an accept signal either.
			return "read-only"
		},
	})

	req := vendorOut(9)
	require.False(t, u.ControlXfer(hal.ControlStageData, &req))
	require.Empty(t, m.controls)

	buf := make([]byte, 9)
	u.Register(Handlers{
		ControlXfer: func(stage hal.ControlStage, request []byte) any {
			return buf
		},
	})
	require.True(t, u.ControlXfer(hal.ControlStageData, &req))
	require.NotNil(t, u.xferData[0][dirOut], "OUT payload retained in the OUT slot")
}

func TestControlXfer_NonBoolNonBufferStalls(t *testing.T) {
	u := newTestBridge(newMockController())

	u.Register(Handlers{
		ControlXfer: func(stage hal.ControlStage, request []byte) any {
			return 3.14
		},
	})

	req := vendorIn(4)
	require.False(t, u.ControlXfer(hal.ControlStageSetup, &req))
}
