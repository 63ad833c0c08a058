package usbd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinybridge/usbd/hal"
	"github.com/tinybridge/usbd/pkg"
)

// mockController implements hal.Controller for testing. Its pump hook
// lets tests fire driver callbacks from inside TaskPump, exactly where
// a hardware controller would fire them.
type mockController struct {
	driver hal.Driver
	pump   func()

	scheduled   int
	connects    int
	disconnects int

	claimFail bool
	submitOK  bool
	controlOK bool
	openErr   error

	claims   []uint8
	opened   [][]byte
	stalls   []uint8
	clears   []uint8
	stalled  map[uint8]bool
	submits  map[uint8][]byte
	controls [][]byte
}

func newMockController() *mockController {
	return &mockController{
		submitOK:  true,
		controlOK: true,
		stalled:   make(map[uint8]bool),
		submits:   make(map[uint8][]byte),
	}
}

func (m *mockController) Attach(d hal.Driver) { m.driver = d }

func (m *mockController) TaskPump() {
	if m.pump != nil {
		m.pump()
	}
}

func (m *mockController) ScheduleTask() { m.scheduled++ }

func (m *mockController) Connect() error {
	m.connects++
	return nil
}

func (m *mockController) Disconnect() error {
	m.disconnects++
	return nil
}

func (m *mockController) EndpointOpen(desc []byte) error {
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = append(m.opened, append([]byte(nil), desc...))
	return nil
}

func (m *mockController) EndpointClaim(addr uint8) bool {
	m.claims = append(m.claims, addr)
	return !m.claimFail
}

func (m *mockController) SubmitTransfer(addr uint8, buf []byte) bool {
	if m.submitOK {
		m.submits[addr] = buf
	}
	return m.submitOK
}

func (m *mockController) ControlSubmit(req *hal.SetupPacket, buf []byte) bool {
	if m.controlOK {
		m.controls = append(m.controls, append([]byte(nil), buf...))
	}
	return m.controlOK
}

func (m *mockController) EndpointStall(addr uint8) error {
	m.stalls = append(m.stalls, addr)
	m.stalled[addr] = true
	return nil
}

func (m *mockController) EndpointClearStall(addr uint8) error {
	m.clears = append(m.clears, addr)
	m.stalled[addr] = false
	return nil
}

func (m *mockController) EndpointStalled(addr uint8) bool {
	return m.stalled[addr]
}

// testStatic is the static descriptor source used across tests.
// Interface numbers 0 and 1 are reserved for static drivers.
func testStatic() StaticDescriptors {
	return StaticDescriptors{
		Device:        []byte{18, hal.DescriptorTypeDevice, 0x00, 0x02},
		Configuration: []byte{9, hal.DescriptorTypeConfiguration, 9, 0, 0, 1, 0, 0x80, 50},
		InterfaceMax:  2,
		EndpointMax:   2,
		StringMax:     4,
	}
}

func newTestBridge(m *mockController, opts ...Option) *USBD {
	opts = append([]Option{WithSettleDelay(0)}, opts...)
	return New(m, testStatic(), opts...)
}

func TestSubmitTransfer_InvalidEndpoint(t *testing.T) {
	m := newMockController()
	u := newTestBridge(m)

	ok, err := u.SubmitTransfer(0x88, make([]byte, 8))
	require.ErrorIs(t, err, pkg.ErrInvalidEndpoint)
	require.False(t, ok)
	require.Empty(t, m.claims, "no controller call for out-of-range endpoint")
}

func TestSubmitTransfer_NotABuffer(t *testing.T) {
	m := newMockController()
	u := newTestBridge(m)

	ok, err := u.SubmitTransfer(0x01, 42)
	require.ErrorIs(t, err, pkg.ErrNotABuffer)
	require.False(t, ok)
	require.Empty(t, m.claims)
}

func TestSubmitTransfer_ReadOnlyBufferOnOutEndpoint(t *testing.T) {
	m := newMockController()
	u := newTestBridge(m)

	// OUT transfers write into the buffer; a string can't serve.
	ok, err := u.SubmitTransfer(0x01, "read-only")
	require.ErrorIs(t, err, pkg.ErrBufferReadOnly)
	require.False(t, ok)
}

func TestSubmitTransfer_Busy(t *testing.T) {
	m := newMockController()
	m.claimFail = true
	u := newTestBridge(m)

	ok, err := u.SubmitTransfer(0x81, make([]byte, 8))
	require.ErrorIs(t, err, pkg.ErrBusy)
	require.False(t, ok)
	require.Empty(t, m.submits)
}

func TestSubmitTransfer_RetainsBufferUntilCompletion(t *testing.T) {
	m := newMockController()
	u := newTestBridge(m)

	buf := make([]byte, 16)
	ok, err := u.SubmitTransfer(0x81, buf)
	require.NoError(t, err)
	require.True(t, ok)

	got, isBytes := u.xferData[1][dirIn].([]byte)
	require.True(t, isBytes)
	require.Same(t, &buf[0], &got[0], "retained buffer must alias the submitted one")

	// Completion releases the slot exactly once.
	u.XferComplete(0x81, pkg.TransferStatusSuccess, 16)
	require.Nil(t, u.xferData[1][dirIn])
}

func TestSubmitTransfer_ControllerReject(t *testing.T) {
	m := newMockController()
	m.submitOK = false
	u := newTestBridge(m)

	ok, err := u.SubmitTransfer(0x01, make([]byte, 8))
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, u.xferData[1][dirOut], "rejected transfer must not retain")
}

func TestSubmitTransfer_BytesValue(t *testing.T) {
	m := newMockController()
	u := newTestBridge(m)

	b := bytes.NewBuffer(make([]byte, 8))
	ok, err := u.SubmitTransfer(0x02, b)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b, u.xferData[2][dirOut])
}

func TestTeardown_StallsLiveEndpoints(t *testing.T) {
	m := newMockController()
	u := newTestBridge(m)

	_, err := u.SubmitTransfer(0x81, make([]byte, 8))
	require.NoError(t, err)
	_, err = u.SubmitTransfer(0x02, make([]byte, 8))
	require.NoError(t, err)

	u.Teardown()
	require.ElementsMatch(t, []uint8{0x81, 0x02}, m.stalls)
	for num := 0; num < MaxEndpoints; num++ {
		require.Nil(t, u.xferData[num][dirOut])
		require.Nil(t, u.xferData[num][dirIn])
	}

	// Teardown is idempotent.
	u.Teardown()
	require.Len(t, m.stalls, 2)
}

func TestTeardown_RejectsCallbacks(t *testing.T) {
	m := newMockController()
	u := newTestBridge(m)
	u.Register(Handlers{
		DeviceDescriptor: func() any { return []byte{0xAA} },
		Xfer: func(addr uint8, result pkg.TransferStatus, count uint32) any {
			return true
		},
	})

	u.Teardown()
	require.Equal(t, testStatic().Device, u.DeviceDescriptor())
	require.False(t, u.XferComplete(0x81, pkg.TransferStatusSuccess, 0))
	require.Zero(t, u.Open([]byte{9, hal.DescriptorTypeInterface, 5, 0, 0, 0, 0, 0, 0}, 9))
	require.False(t, u.ControlXfer(hal.ControlStageSetup, &hal.SetupPacket{}))
}

func TestSetStall(t *testing.T) {
	m := newMockController()
	u := newTestBridge(m)

	require.False(t, u.SetStall(0x01, true), "previous state was not stalled")
	require.True(t, u.Stalled(0x01))
	require.True(t, u.SetStall(0x01, false))
	require.False(t, u.Stalled(0x01))
	require.Equal(t, []uint8{0x01}, m.stalls)
	require.Equal(t, []uint8{0x01}, m.clears)
}

func TestPeekBuffer(t *testing.T) {
	data := []byte{1, 2, 3}

	tests := []struct {
		name    string
		value   any
		mode    bufferMode
		want    []byte
		wantErr error
	}{
		{"bytes read", data, bufferRead, data, nil},
		{"bytes rw", data, bufferRW, data, nil},
		{"string read", "abc", bufferRead, []byte("abc"), nil},
		{"string rw", "abc", bufferRW, nil, pkg.ErrBufferReadOnly},
		{"nil", nil, bufferRead, nil, pkg.ErrNotABuffer},
		{"int", 7, bufferRead, nil, pkg.ErrNotABuffer},
		{"bool", true, bufferRW, nil, pkg.ErrNotABuffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := peekBuffer(tt.value, tt.mode)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPeekBuffer_BytesInterface(t *testing.T) {
	b := bytes.NewBufferString("payload")
	got, err := peekBuffer(b, bufferRW)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}
