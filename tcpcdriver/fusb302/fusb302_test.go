package fusb302_test

import (
	"testing"
	"time"

	"github.com/oxplot/go-pdsink/pdmsg"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302/fusb302sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	ms     uint32
	delays int
}

func (c *fakeClock) Millis() uint32 { return c.ms }

func (c *fakeClock) Delay(d time.Duration) { c.delays++ }

func TestFUSB302Suite(t *testing.T) {
	suite.Run(t, new(FUSB302Suite))
}

type FUSB302Suite struct {
	suite.Suite

	chip  *fusb302sim.Chip
	clock *fakeClock
	sut   *fusb302.FUSB302
}

func (s *FUSB302Suite) BeforeTest(suiteName, testName string) {
	s.chip = fusb302sim.New()
	s.clock = &fakeClock{}
	s.sut = fusb302.New(s.chip, s.clock)
}

func (s *FUSB302Suite) Test_WriteMessageFrame() {
	err := s.sut.WriteMessage(pdmsg.Header(0x0A61), 0x1234ABCD)
	require.NoError(s.T(), err)

	frames := s.chip.TxFrames()
	require.Len(s.T(), frames, 1)
	assert.Equal(s.T(), []byte{
		0x12, 0x12, 0x12, 0x13, // SOP
		0x86,       // packed symbol, 6 bytes follow
		0x61, 0x0A, // header
		0xCD, 0xAB, 0x34, 0x12, // data object
		0xFF, 0x14, 0xFE, 0xA1, // CRC, EOP, TX off, TX on
	}, frames[0])
	assert.Equal(s.T(), 1, s.chip.Writes[fusb302.RegFIFOs])
	assert.Equal(s.T(), 1, s.clock.delays)
}

func (s *FUSB302Suite) Test_WriteMessageControl() {
	require.NoError(s.T(), s.sut.WriteMessage(pdmsg.PackHeader(pdmsg.TypeGetSourceCap, 0, 3)))

	f := s.chip.TxFrames()[0]
	assert.Len(s.T(), f, 11)
	assert.Equal(s.T(), byte(0x82), f[4])
}

func (s *FUSB302Suite) Test_WriteMessageTooMany() {
	err := s.sut.WriteMessage(pdmsg.PackHeader(pdmsg.TypeRequest, 7, 0), 1, 2, 3, 4, 5, 6, 7, 8)

	assert.ErrorIs(s.T(), err, fusb302.ErrTooManyDataObjects)
	assert.Empty(s.T(), s.chip.TxFrames())
}

func (s *FUSB302Suite) Test_WriteMessageMaxLength() {
	data := []uint32{1, 2, 3, 4, 5, 6, 7}
	require.NoError(s.T(), s.sut.WriteMessage(pdmsg.PackHeader(pdmsg.TypeRequest, 7, 0), data...))

	f := s.chip.TxFrames()[0]
	assert.Len(s.T(), f, 4+1+2+4*7+4)
	assert.Equal(s.T(), byte(0x80|30), f[4])
	m, ok := fusb302sim.ParseTxFrame(f)
	require.True(s.T(), ok)
	assert.Equal(s.T(), uint32(7), m.Data[6])
}

func (s *FUSB302Suite) Test_WriteMessageFailure() {
	s.chip.FailWrites(fusb302.RegFIFOs, 1)

	err := s.sut.WriteMessage(pdmsg.PackHeader(pdmsg.TypeRequest, 1, 0), 0)
	assert.ErrorIs(s.T(), err, fusb302sim.ErrInjected)
}

func (s *FUSB302Suite) Test_ReadNextFrameData() {
	m := pdmsg.Message{Header: pdmsg.PackHeaderRoles(pdmsg.TypeSourceCap, 2, 1,
		pdmsg.PowerRoleSource, pdmsg.DataRoleDFP, pdmsg.Revision20)}
	m.Data[0] = 0x0001912C
	m.Data[1] = 0x0002D0C8
	s.chip.QueueMessage(m)

	var b [fusb302.FrameBufferSize]byte
	n, err := s.sut.ReadNextFrame(b[:])
	require.NoError(s.T(), err)

	assert.Equal(s.T(), 10, n)
	assert.Equal(s.T(), m, pdmsg.DecodeMessage(b[:n]))
	assert.Equal(s.T(), 0, s.chip.RxLen())
	assert.Equal(s.T(), 2, s.chip.Reads[fusb302.RegFIFOs])
}

func (s *FUSB302Suite) Test_ReadNextFrameControl() {
	s.chip.QueueMessage(pdmsg.Message{Header: pdmsg.PackHeader(pdmsg.TypeAccept, 0, 4)})
	s.chip.QueueMessage(pdmsg.Message{Header: pdmsg.PackHeader(pdmsg.TypePSReady, 0, 5)})

	var b [fusb302.FrameBufferSize]byte
	n, err := s.sut.ReadNextFrame(b[:])
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, n)
	assert.Equal(s.T(), pdmsg.TypeAccept, pdmsg.DecodeMessage(b[:n]).Header.Type())

	n, err = s.sut.ReadNextFrame(b[:])
	require.NoError(s.T(), err)
	assert.Equal(s.T(), pdmsg.TypePSReady, pdmsg.DecodeMessage(b[:n]).Header.Type())
	assert.Equal(s.T(), 0, s.chip.RxLen())
}

func (s *FUSB302Suite) Test_ReadNextFrameBadSOP() {
	// SOP' token followed by a one object header, object and CRC
	s.chip.QueueRaw(0x40, 0x41, 0x10, 1, 2, 3, 4, 0, 0, 0, 0)

	var b [fusb302.FrameBufferSize]byte
	_, err := s.sut.ReadNextFrame(b[:])

	assert.ErrorIs(s.T(), err, fusb302.ErrBadSOP)
	assert.Equal(s.T(), 1, s.chip.Reads[fusb302.RegFIFOs])
	assert.Equal(s.T(), 8, s.chip.RxLen())
}

func (s *FUSB302Suite) Test_ReadNextFrameShortBuffer() {
	s.chip.QueueMessage(pdmsg.Message{Header: pdmsg.PackHeader(pdmsg.TypeAccept, 0, 0)})

	_, err := s.sut.ReadNextFrame(make([]byte, fusb302.FrameBufferSize-1))

	assert.ErrorIs(s.T(), err, fusb302.ErrShortBuffer)
	assert.Equal(s.T(), 0, s.chip.Reads[fusb302.RegFIFOs])
}

func (s *FUSB302Suite) Test_ReadNextFrameReadFailure() {
	s.chip.QueueMessage(pdmsg.Message{Header: pdmsg.PackHeader(pdmsg.TypeAccept, 0, 0)})
	s.chip.FailReads(fusb302.RegFIFOs, 1)

	var b [fusb302.FrameBufferSize]byte
	_, err := s.sut.ReadNextFrame(b[:])

	assert.ErrorIs(s.T(), err, fusb302sim.ErrInjected)
	assert.Contains(s.T(), err.Error(), "0x43")
}

func (s *FUSB302Suite) Test_Init() {
	require.NoError(s.T(), s.sut.Init())

	assert.Equal(s.T(), byte(fusb302.RegPowerPwrAll), s.chip.Register(fusb302.RegPower))
	assert.Equal(s.T(), 1, s.chip.Writes[fusb302.RegReset])
	assert.Equal(s.T(), 2, s.clock.delays)

	id, err := s.sut.ReadID()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), byte(fusb302sim.DefaultDeviceID), id)
}

func (s *FUSB302Suite) Test_InitFailure() {
	s.chip.FailWrites(fusb302.RegReset, 1)

	assert.ErrorIs(s.T(), s.sut.Init(), fusb302sim.ErrInjected)
	assert.Equal(s.T(), 0, s.chip.Writes[fusb302.RegPower])
}

func (s *FUSB302Suite) Test_EnableTransceiver() {
	require.NoError(s.T(), s.sut.EnableTransceiver(2))

	assert.Equal(s.T(), byte(0x0B), s.chip.Register(fusb302.RegSwitches0))
	assert.Equal(s.T(), byte(0x26), s.chip.Register(fusb302.RegSwitches1))
	assert.Equal(s.T(), byte(0x07), s.chip.Register(fusb302.RegControl3))
	assert.Equal(s.T(), 1, s.chip.Writes[fusb302.RegReset])

	require.NoError(s.T(), s.sut.EnableTransceiver(1))
	assert.Equal(s.T(), byte(0x07), s.chip.Register(fusb302.RegSwitches0))
	assert.Equal(s.T(), byte(0x25), s.chip.Register(fusb302.RegSwitches1))
}

func (s *FUSB302Suite) Test_InvalidCCPin() {
	assert.ErrorIs(s.T(), s.sut.EnableTransceiver(0), fusb302.ErrInvalidCCPin)
	assert.ErrorIs(s.T(), s.sut.SetMeasureCC(3), fusb302.ErrInvalidCCPin)
	assert.Equal(s.T(), 0, s.chip.Writes[fusb302.RegSwitches0])
}

func (s *FUSB302Suite) Test_MeasureCC() {
	s.chip.CCLevel[1] = 1
	s.chip.CCLevel[2] = 3

	require.NoError(s.T(), s.sut.SetMeasureCC(1))
	lvl, err := s.sut.ReadBCLevel()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint8(1), lvl)

	require.NoError(s.T(), s.sut.SetMeasureCC(2))
	lvl, err = s.sut.ReadBCLevel()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint8(3), lvl)
}

func (s *FUSB302Suite) Test_Comparator() {
	s.chip.VbusMv = 5000

	require.NoError(s.T(), s.sut.SetMDAC(10)) // 4620mV
	comp, err := s.sut.ReadComp()
	require.NoError(s.T(), err)
	assert.True(s.T(), comp)

	require.NoError(s.T(), s.sut.SetMDAC(11)) // 5040mV
	comp, err = s.sut.ReadComp()
	require.NoError(s.T(), err)
	assert.False(s.T(), comp)

	assert.Equal(s.T(), byte(0x40|11), s.chip.Register(fusb302.RegMeasure))
}

func (s *FUSB302Suite) Test_RxEmpty() {
	empty, err := s.sut.RxEmpty()
	require.NoError(s.T(), err)
	assert.True(s.T(), empty)

	s.chip.QueueMessage(pdmsg.Message{Header: pdmsg.PackHeader(pdmsg.TypeAccept, 0, 0)})
	empty, err = s.sut.RxEmpty()
	require.NoError(s.T(), err)
	assert.False(s.T(), empty)
}
