// Package fusb302sim simulates the register file of a FUSB302 and,
// optionally, a power delivery source attached to it. It's good enough to
// run the sink stack without hardware and to observe every register
// transaction in tests.
package fusb302sim

import (
	"encoding/binary"
	"errors"

	"github.com/oxplot/go-pdsink/pdmsg"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302"
)

// ErrInjected is returned by register accesses set up to fail with
// FailReads or FailWrites.
var ErrInjected = errors.New("fusb302sim: injected failure")

// DefaultDeviceID is the value of the DEVICE_ID register after reset,
// matching a FUSB302B revision B part.
const DefaultDeviceID = 0x91

// Chip is a simulated FUSB302 register file. It implements
// tcpcdriver.Registers.
type Chip struct {
	regs [256]byte

	// rx holds the bytes waiting in the RX FIFO.
	rx []byte

	// tx holds one entry per write to the FIFO register.
	tx [][]byte

	// CCLevel is the BC_LVL reported for CC1 and CC2 at index 1 and 2.
	CCLevel [3]uint8

	// VbusMv is the simulated VBUS voltage.
	VbusMv uint16

	source *Source

	failReads  map[uint8]int
	failWrites map[uint8]int

	// Reads and Writes count transactions per register.
	Reads  map[uint8]int
	Writes map[uint8]int
}

// New returns a chip in its power-on state.
func New() *Chip {
	c := &Chip{
		failReads:  make(map[uint8]int),
		failWrites: make(map[uint8]int),
		Reads:      make(map[uint8]int),
		Writes:     make(map[uint8]int),
	}
	c.reset()
	return c
}

func (c *Chip) reset() {
	c.regs = [256]byte{}
	c.regs[fusb302.RegDeviceID] = DefaultDeviceID
	c.rx = c.rx[:0]
}

// Attach connects a simulated source to the chip. VBUS is set to the
// source's default 5V.
func (c *Chip) Attach(s *Source) {
	c.source = s
	s.chip = c
	c.VbusMv = 5000
}

// Detach removes the attached source and drops VBUS.
func (c *Chip) Detach() {
	if c.source != nil {
		c.source.chip = nil
	}
	c.source = nil
	c.VbusMv = 0
}

// FailReads makes the next n reads of register reg fail.
func (c *Chip) FailReads(reg uint8, n int) {
	c.failReads[reg] = n
}

// FailWrites makes the next n writes of register reg fail.
func (c *Chip) FailWrites(reg uint8, n int) {
	c.failWrites[reg] = n
}

// Register returns the raw content of a register.
func (c *Chip) Register(reg uint8) byte {
	return c.regs[reg]
}

// QueueRaw appends raw bytes to the RX FIFO.
func (c *Chip) QueueRaw(b ...byte) {
	c.rx = append(c.rx, b...)
}

// QueueMessage appends a received message to the RX FIFO, framed the way
// the chip does it: SOP token, header, data objects and a 4 byte CRC.
func (c *Chip) QueueMessage(m pdmsg.Message) {
	var b [1 + pdmsg.MaxMessageBytes + 4]byte
	b[0] = fusb302.RxTokenSOP
	n := int(m.ToBytes(b[1:]))
	// CRC content is irrelevant, the chip has already checked it.
	c.QueueRaw(b[:1+n+4]...)
}

// RxLen returns the number of bytes waiting in the RX FIFO.
func (c *Chip) RxLen() int {
	return len(c.rx)
}

// TxFrames returns every write made to the FIFO register.
func (c *Chip) TxFrames() [][]byte {
	return c.tx
}

// SentMessages returns the messages transmitted so far.
func (c *Chip) SentMessages() []pdmsg.Message {
	var ms []pdmsg.Message
	for _, f := range c.tx {
		if m, ok := ParseTxFrame(f); ok {
			ms = append(ms, m)
		}
	}
	return ms
}

// ParseTxFrame decodes a frame written to the TX FIFO. It returns false if
// the frame isn't a complete SOP message terminated by TX_ON.
func ParseTxFrame(f []byte) (pdmsg.Message, bool) {
	if len(f) < 9 || f[0] != fusb302.TokenSync1 || f[3] != fusb302.TokenSync2 {
		return pdmsg.Message{}, false
	}
	if f[4]&0xE0 != fusb302.TokenPackSym {
		return pdmsg.Message{}, false
	}
	n := int(f[4] & 0x1F)
	if len(f) != 9+n || f[len(f)-1] != fusb302.TokenTxOn {
		return pdmsg.Message{}, false
	}
	m := pdmsg.DecodeMessage(f[5 : 5+n])
	for i := 0; i < (n-2)/4 && i < pdmsg.MaxDataObjects; i++ {
		m.Data[i] = binary.LittleEndian.Uint32(f[7+4*i:])
	}
	return m, true
}

// ReadRegister implements tcpcdriver.Registers.
func (c *Chip) ReadRegister(reg uint8, p []byte) error {
	c.Reads[reg]++
	if c.failReads[reg] > 0 {
		c.failReads[reg]--
		return ErrInjected
	}
	switch reg {
	case fusb302.RegFIFOs:
		n := copy(p, c.rx)
		c.rx = c.rx[n:]
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		return nil
	}
	for i := range p {
		p[i] = c.read(reg + uint8(i))
	}
	return nil
}

func (c *Chip) read(reg uint8) byte {
	switch reg {
	case fusb302.RegStatus0:
		return c.status0()
	case fusb302.RegStatus1:
		if len(c.rx) == 0 {
			return fusb302.RegStatus1RxEmpty
		}
		return 0
	}
	return c.regs[reg]
}

func (c *Chip) status0() byte {
	var s byte
	sw0 := c.regs[fusb302.RegSwitches0]
	switch {
	case sw0&fusb302.RegSwitches0MeasCC1 != 0:
		s |= c.CCLevel[1] & fusb302.RegStatus0BCLvlMask
	case sw0&fusb302.RegSwitches0MeasCC2 != 0:
		s |= c.CCLevel[2] & fusb302.RegStatus0BCLvlMask
	}
	meas := c.regs[fusb302.RegMeasure]
	if meas&fusb302.RegMeasureVBus != 0 {
		code := uint32(meas & fusb302.RegMeasureMDACMask)
		if uint32(c.VbusMv) > (code+1)*fusb302.MDACVbusCountMv {
			s |= fusb302.RegStatus0Comp
		}
	}
	if c.VbusMv > 4000 {
		s |= fusb302.RegStatus0VBusOK
	}
	return s
}

// WriteRegister implements tcpcdriver.Registers.
func (c *Chip) WriteRegister(reg uint8, p []byte) error {
	c.Writes[reg]++
	if c.failWrites[reg] > 0 {
		c.failWrites[reg]--
		return ErrInjected
	}
	switch reg {
	case fusb302.RegFIFOs:
		f := append([]byte(nil), p...)
		c.tx = append(c.tx, f)
		if m, ok := ParseTxFrame(f); ok && c.source != nil {
			c.source.receive(m)
		}
		return nil
	case fusb302.RegReset:
		// self clearing
		if len(p) > 0 {
			if p[0]&fusb302.RegResetSWReset != 0 {
				c.reset()
			}
			if p[0]&fusb302.RegResetPDReset != 0 {
				c.rx = c.rx[:0]
				if c.source != nil {
					c.source.pdReset()
				}
			}
		}
		return nil
	}
	for i, d := range p {
		c.regs[reg+uint8(i)] = d
	}
	return nil
}
