// Package tcpcdriver defines interfaces and helper functions for implementing
// USB Type-C port controller drivers.
//
// The I2C interface is copied from TinyGo source code.
package tcpcdriver

import "fmt"

// I2C defines a minimum interface to I2C hardware with a single Tx method
// which allows a single driver implementation to work across many different
// µControllers and host platforms. This interface was originally defined in
// TinyGo and is also satisfied by periph.io i2c.Bus.
type I2C interface {

	// Tx performs a write and then a read transfer placing the result in r.
	//
	// Passing a nil value for w or r skips the transfer corresponding to write
	// or read, respectively.
	//
	//  i2c.Tx(addr, nil, r)
	// Performs only a read transfer.
	//
	//  i2c.Tx(addr, w, nil)
	// Performs only a write transfer.
	Tx(addr uint16, w, r []byte) error
}

// Registers is a byte addressed register file, the only way port controller
// drivers talk to their chip. Implementations need not be safe for
// concurrent use.
type Registers interface {
	// ReadRegister reads len(p) bytes starting at register reg.
	ReadRegister(reg uint8, p []byte) error

	// WriteRegister writes p starting at register reg.
	WriteRegister(reg uint8, p []byte) error
}

// maxTransfer is large enough for the longest FIFO burst of any supported
// controller plus the register address.
const maxTransfer = 64

// I2CRegisters accesses the registers of a chip at a fixed I2C address.
type I2CRegisters struct {
	bus  I2C
	addr uint16

	// Buffer used for register address and payload, defined once here to
	// avoid heap allocations on each transfer.
	buf [maxTransfer + 1]byte
}

// NewI2CRegisters returns the register file of the chip at the 7 bit
// address addr on bus.
func NewI2CRegisters(bus I2C, addr uint16) *I2CRegisters {
	return &I2CRegisters{bus: bus, addr: addr}
}

// ReadRegister implements Registers.
func (r *I2CRegisters) ReadRegister(reg uint8, p []byte) error {
	if len(p) > maxTransfer {
		return fmt.Errorf("tcpcdriver: read of %d bytes exceeds %d", len(p), maxTransfer)
	}
	r.buf[0] = reg
	return r.bus.Tx(r.addr, r.buf[:1], p)
}

// WriteRegister implements Registers.
func (r *I2CRegisters) WriteRegister(reg uint8, p []byte) error {
	if len(p) > maxTransfer {
		return fmt.Errorf("tcpcdriver: write of %d bytes exceeds %d", len(p), maxTransfer)
	}
	r.buf[0] = reg
	copy(r.buf[1:], p)
	return r.bus.Tx(r.addr, r.buf[:len(p)+1], nil)
}
