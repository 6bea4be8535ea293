// Package fusb302 implements type-C port controller driver for FUSB302 from
// ONSemi.
//
// The driver exposes the register primitives, the FIFO framing used to send
// and receive power delivery messages and a handful of chip specific helpers
// used while detecting the CC line and measuring VBUS. Every register
// transaction is followed by a short pause required by the chip between
// bus stop and start conditions.
package fusb302

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/pdmsg"
	"github.com/oxplot/go-pdsink/tcpcdriver"
)

// MPN represents the manufacturer part number
type MPN uint8

// I2CAddress returns the I2C address of the FUSB302.
func (m MPN) I2CAddress() uint8 {
	return uint8(m)
}

// Manufacturer part numbers
const (
	FUSB302BUCX   MPN = 0b100010
	FUSB302BMPX   MPN = 0b100010
	FUSB302VMPX   MPN = 0b100010
	FUSB302B01MPX MPN = 0b100011
	FUSB302B10MPX MPN = 0b100100
	FUSB302B11MPX MPN = 0b100101
)

// Measurement constants of the MDAC in VBUS measurement mode.
const (
	// MDACCounts is the number of MDAC codes, codes range from 0 to
	// MDACCounts-1.
	MDACCounts = 64

	// MDACVbusCountMv is the VBUS voltage represented by one MDAC count. The
	// comparator threshold at code c is (c+1)*MDACVbusCountMv.
	MDACVbusCountMv = 420
)

// StartStopDelay is the pause inserted after every register transaction.
const StartStopDelay = time.Microsecond

// FrameBufferSize is the minimum size of the buffer passed to ReadNextFrame.
const FrameBufferSize = pdmsg.MaxMessageBytes

var (
	// ErrBadSOP is returned by ReadNextFrame when the RX FIFO doesn't start
	// with a start of packet token.
	ErrBadSOP = errors.New("fusb302: rx fifo does not start with SOP")

	// ErrTooManyDataObjects is returned by WriteMessage when more than
	// pdmsg.MaxDataObjects data objects are given.
	ErrTooManyDataObjects = errors.New("fusb302: too many data objects")

	// ErrShortBuffer is returned by ReadNextFrame when the output buffer is
	// smaller than FrameBufferSize.
	ErrShortBuffer = errors.New("fusb302: frame buffer too short")

	// ErrInvalidCCPin is returned for CC pins other than 1 and 2.
	ErrInvalidCCPin = errors.New("fusb302: invalid cc pin")
)

// FUSB302 represents a type-C port controller for FUSB302 IC. It must not be
// used concurrently.
type FUSB302 struct {
	regs  tcpcdriver.Registers
	clock typec.Clock

	// Buffer used for tx and rx, defined once here instead to avoid heap
	// allocations in each method used.
	buf [9 + pdmsg.MaxMessageBytes]byte
}

// New creates a new controller talking to the chip through regs. The clock
// is used for the pauses between transactions.
func New(regs tcpcdriver.Registers, clock typec.Clock) *FUSB302 {
	return &FUSB302{
		regs:  regs,
		clock: clock,
	}
}

// NewI2C creates a new controller for the part mpn on an I2C bus.
//
// I2C port must have <=1Mhz frequency.
func NewI2C(port tcpcdriver.I2C, mpn MPN, clock typec.Clock) *FUSB302 {
	return New(tcpcdriver.NewI2CRegisters(port, uint16(mpn.I2CAddress())), clock)
}

// WriteRegister writes a single register.
func (f *FUSB302) WriteRegister(r uint8, d byte) error {
	f.buf[0] = d
	return f.WriteRegisters(r, f.buf[:1])
}

// WriteRegisters writes d to consecutive registers starting at r, or to the
// same register in case of the FIFO.
func (f *FUSB302) WriteRegisters(r uint8, d []byte) error {
	err := f.regs.WriteRegister(r, d)
	f.clock.Delay(StartStopDelay)
	if err != nil {
		return fmt.Errorf("fusb302: write 0x%02x: %w", r, err)
	}
	return nil
}

// ReadRegister reads a single register.
func (f *FUSB302) ReadRegister(r uint8) (byte, error) {
	var d [1]byte
	err := f.ReadRegisters(r, d[:])
	return d[0], err
}

// ReadRegisters reads len(d) bytes starting at register r.
func (f *FUSB302) ReadRegisters(r uint8, d []byte) error {
	err := f.regs.ReadRegister(r, d)
	f.clock.Delay(StartStopDelay)
	if err != nil {
		return fmt.Errorf("fusb302: read 0x%02x: %w", r, err)
	}
	return nil
}

// ReadID reads the device version and revision ID.
func (f *FUSB302) ReadID() (byte, error) {
	return f.ReadRegister(RegDeviceID)
}

// Init resets the chip and all its registers to default, then powers up all
// of its analog blocks.
func (f *FUSB302) Init() error {
	if err := f.WriteRegister(RegReset, RegResetSWReset|RegResetPDReset); err != nil {
		return err
	}
	return f.WriteRegister(RegPower, RegPowerPwrAll)
}

// SetMeasureCC connects the measure block to the given CC pin with both CC
// pull-downs enabled. BC_LVL in STATUS0 then reflects the level on that pin.
func (f *FUSB302) SetMeasureCC(pin int) error {
	meas, _, err := ccBits(pin)
	if err != nil {
		return err
	}
	return f.WriteRegister(RegSwitches0, RegSwitches0CC1PdEn|RegSwitches0CC2PdEn|meas)
}

// ReadBCLevel returns the BC_LVL field of STATUS0 for the pin being
// measured, from 0 (below 200mV) to 3 (above 1.23V).
func (f *FUSB302) ReadBCLevel() (uint8, error) {
	r, err := f.ReadRegister(RegStatus0)
	return r & RegStatus0BCLvlMask, err
}

// ReadComp returns the COMP bit of STATUS0, true when the measured voltage
// is above the MDAC threshold.
func (f *FUSB302) ReadComp() (bool, error) {
	r, err := f.ReadRegister(RegStatus0)
	return r&RegStatus0Comp != 0, err
}

// SetMDAC switches the measure block to VBUS and sets the comparator
// threshold to code, which is masked to 6 bits.
func (f *FUSB302) SetMDAC(code uint8) error {
	return f.WriteRegister(RegMeasure, RegMeasureVBus|(code&RegMeasureMDACMask))
}

// RxEmpty returns true when the RX FIFO holds no message.
func (f *FUSB302) RxEmpty() (bool, error) {
	r, err := f.ReadRegister(RegStatus1)
	return r&RegStatus1RxEmpty != 0, err
}

// EnableTransceiver routes the given CC pin to the PD transceiver, turns on
// automatic GoodCRC replies and automatic retries, then resets the PD logic.
func (f *FUSB302) EnableTransceiver(pin int) error {
	meas, tx, err := ccBits(pin)
	if err != nil {
		return err
	}
	if err := f.WriteRegister(RegSwitches0, RegSwitches0CC1PdEn|RegSwitches0CC2PdEn|meas); err != nil {
		return err
	}
	if err := f.WriteRegister(RegSwitches1, RegSwitches1SpecRev20|RegSwitches1AutoGCRC|tx); err != nil {
		return err
	}
	if err := f.WriteRegister(RegControl3, RegControl3AutoRetry|RegControl3NRetries3); err != nil {
		return err
	}
	return f.WriteRegister(RegReset, RegResetPDReset)
}

func ccBits(pin int) (meas, tx uint8, err error) {
	switch pin {
	case 1:
		return RegSwitches0MeasCC1, RegSwitches1TxCC1En, nil
	case 2:
		return RegSwitches0MeasCC2, RegSwitches1TxCC2En, nil
	}
	return 0, 0, fmt.Errorf("%w: %d", ErrInvalidCCPin, pin)
}

// WriteMessage writes a message with the given header and data objects to
// the TX FIFO and requests its transmission. The header is sent as is; the
// frame length comes from the number of data objects given. The whole frame
// is written in a single transaction.
func (f *FUSB302) WriteMessage(header pdmsg.Header, data ...uint32) error {
	if len(data) > pdmsg.MaxDataObjects {
		return ErrTooManyDataObjects
	}

	buf := f.buf[:]
	copy(buf, []byte{TokenSync1, TokenSync1, TokenSync1, TokenSync2})
	mlen := 2 + 4*len(data)
	buf[4] = TokenPackSym | byte(mlen)
	binary.LittleEndian.PutUint16(buf[5:], uint16(header))
	for i, d := range data {
		binary.LittleEndian.PutUint32(buf[7+4*i:], d)
	}
	copy(buf[5+mlen:], []byte{TokenJamCRC, TokenEOP, TokenTxOff, TokenTxOn})

	return f.WriteRegisters(RegFIFOs, buf[:9+mlen])
}

// ReadNextFrame reads the next message from the RX FIFO into b, header
// first followed by the data objects, and returns the number of bytes
// written. b must be at least FrameBufferSize long. The trailing CRC has
// already been checked by the chip and is discarded.
//
// The data objects are only read once the start of packet token checks out,
// so a bad frame leaves them in the FIFO.
func (f *FUSB302) ReadNextFrame(b []byte) (int, error) {
	if len(b) < FrameBufferSize {
		return 0, ErrShortBuffer
	}

	// SOP token and header

	if err := f.ReadRegisters(RegFIFOs, f.buf[:3]); err != nil {
		return 0, err
	}
	if f.buf[0]&RxTokenMask != RxTokenSOP {
		return 0, ErrBadSOP
	}
	b[0], b[1] = f.buf[1], f.buf[2]
	n := int(pdmsg.Header(binary.LittleEndian.Uint16(b)).DataObjectCount())

	// Data objects and CRC

	if err := f.ReadRegisters(RegFIFOs, f.buf[:n*4+4]); err != nil {
		return 0, err
	}
	copy(b[2:], f.buf[:n*4])
	return 2 + n*4, nil
}
