package fusb302sim

import (
	"testing"
	"time"

	"github.com/oxplot/go-pdsink/pdmsg"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopClock struct{}

func (nopClock) Millis() uint32        { return 0 }
func (nopClock) Delay(d time.Duration) {}

func readAll(t *testing.T, f *fusb302.FUSB302) []pdmsg.Message {
	var ms []pdmsg.Message
	var b [fusb302.FrameBufferSize]byte
	for {
		empty, err := f.RxEmpty()
		require.NoError(t, err)
		if empty {
			return ms
		}
		n, err := f.ReadNextFrame(b[:])
		require.NoError(t, err)
		ms = append(ms, pdmsg.DecodeMessage(b[:n]))
	}
}

func TestSourceNegotiation(t *testing.T) {
	chip := New()
	src := NewFixedSource([2]uint16{5000, 3000}, [2]uint16{9000, 2000})
	chip.Attach(src)
	f := fusb302.New(chip, nopClock{})

	require.NoError(t, f.EnableTransceiver(1))
	ms := readAll(t, f)
	require.Len(t, ms, 1)
	assert.Equal(t, pdmsg.TypeSourceCap, ms[0].Header.Type())
	assert.Equal(t, uint8(2), ms[0].Header.DataObjectCount())
	assert.Equal(t, uint16(9000), pdmsg.PDO(ms[0].Data[1]).Unpack().VoltageMv)

	require.NoError(t, f.WriteMessage(pdmsg.PackHeader(pdmsg.TypeRequest, 1, 0), uint32(pdmsg.NewFixedRequestDO(2, 1500))))
	ms = readAll(t, f)
	require.Len(t, ms, 3)
	assert.Equal(t, pdmsg.TypeGoodCRC, ms[0].Header.Type())
	assert.Equal(t, pdmsg.TypeAccept, ms[1].Header.Type())
	assert.Equal(t, pdmsg.TypePSReady, ms[2].Header.Type())
	assert.Equal(t, uint8(2), src.Contract)
	assert.Equal(t, uint16(9000), chip.VbusMv)
	assert.Len(t, chip.SentMessages(), 1)
}

func TestSourceRejects(t *testing.T) {
	chip := New()
	src := NewFixedSource([2]uint16{5000, 1500})
	chip.Attach(src)
	f := fusb302.New(chip, nopClock{})

	require.NoError(t, f.WriteMessage(pdmsg.PackHeader(pdmsg.TypeRequest, 1, 0), uint32(pdmsg.NewFixedRequestDO(3, 100))))
	require.NoError(t, f.WriteMessage(pdmsg.PackHeader(pdmsg.TypeRequest, 1, 1), uint32(pdmsg.NewFixedRequestDO(1, 3000))))

	ms := readAll(t, f)
	require.Len(t, ms, 4)
	assert.Equal(t, pdmsg.TypeReject, ms[1].Header.Type())
	assert.Equal(t, pdmsg.TypeReject, ms[3].Header.Type())
	assert.Equal(t, uint8(0), src.Contract)
	assert.Equal(t, 2, src.Requests)
}

func TestSilentSource(t *testing.T) {
	chip := New()
	src := NewFixedSource([2]uint16{5000, 1500})
	src.Silent = true
	chip.Attach(src)
	f := fusb302.New(chip, nopClock{})

	require.NoError(t, f.EnableTransceiver(2))
	assert.Empty(t, readAll(t, f))
}

func TestParseTxFrameRejectsGarbage(t *testing.T) {
	_, ok := ParseTxFrame([]byte{0x12, 0x12})
	assert.False(t, ok)

	_, ok = ParseTxFrame([]byte{0x12, 0x12, 0x12, 0x13, 0x82, 0x41, 0x00, 0xFF, 0x14, 0xFE, 0x00})
	assert.False(t, ok)
}

func TestSoftwareResetClearsRegisters(t *testing.T) {
	chip := New()
	require.NoError(t, chip.WriteRegister(fusb302.RegPower, []byte{0x0F}))
	chip.QueueRaw(1, 2, 3)

	require.NoError(t, chip.WriteRegister(fusb302.RegReset, []byte{fusb302.RegResetSWReset}))

	assert.Equal(t, byte(0), chip.Register(fusb302.RegPower))
	assert.Equal(t, byte(DefaultDeviceID), chip.Register(fusb302.RegDeviceID))
	assert.Equal(t, 0, chip.RxLen())
}
