// Package pdmsg defines types to encode and decode USB-C Power Delivery
// Messages.
package pdmsg

import "encoding/binary"

const (
	// MaxDataObjects is the maximum number of data objects that can be stored in
	// a message, as set by the standard.
	MaxDataObjects = 7

	// MaxMessageBytes is the maximum number of bytes in a message which includes
	// the header and the data objects.
	MaxMessageBytes = 2 + 4*MaxDataObjects // 2 bytes header, and 7 data objects, each 32 bits (4 bytes)

	// MaxCapabilities is the number of capabilities a sink keeps from a
	// Source Capabilities message. It's one more than MaxDataObjects as the
	// 3 bit count field could in principle address 8 objects.
	MaxCapabilities = 8
)

// Header is the 16 bit power delivery message header.
type Header uint16

// PackHeader packs a header for a message originated by this node, which is
// always a UFP sink speaking revision 2.0.
func PackHeader(t Type, numDataObjects, id uint8) Header {
	return PackHeaderRoles(t, numDataObjects, id, PowerRoleSink, DataRoleUFP, Revision20)
}

// PackHeaderRoles packs a header with explicit roles and revision. Values are
// masked to their field widths.
func PackHeaderRoles(t Type, numDataObjects, id uint8, pr PowerRole, dr DataRole, r Revision) Header {
	return Header(uint16(numDataObjects&0b111)<<12 |
		uint16(id&0b111)<<9 |
		uint16(pr&1)<<8 |
		uint16(r&0b11)<<6 |
		uint16(dr&1)<<5 |
		uint16(t&0b11111))
}

// IsExtended returns true if the message has its extended flag set.
func (h Header) IsExtended() bool {
	return h&(1<<15) != 0
}

// ID returns the message ID.
func (h Header) ID() uint8 {
	return uint8((h >> 9) & 0b111)
}

// DataObjectCount returns the number of data objects in the message.
func (h Header) DataObjectCount() uint8 {
	return uint8((h >> 12) & 0b111)
}

// IsData returns true of the message is a data message, otherwise it's a
// control message.
func (h Header) IsData() bool {
	return h.DataObjectCount() > 0
}

// Type returns the message type. As data and control messages share the same
// value of some types, the user must check IsData in addition to Type, to
// determine the correct type of the message.
func (h Header) Type() Type {
	return Type(h & 0b11111)
}

// Revision returns the power delivery revision number of the message.
func (h Header) Revision() Revision {
	return Revision((h >> 6) & 0b11)
}

// PowerRole returns the power role of the sender of the message.
func (h Header) PowerRole() PowerRole {
	return PowerRole((h >> 8) & 1)
}

// DataRole returns the data role of the sender of the message.
func (h Header) DataRole() DataRole {
	return DataRole((h >> 5) & 1)
}

// Message represents a power delivery message.
// Decoding of extended messages is not supported.
type Message struct {
	Header Header

	// Data varies depending on the type of the message. For TypeSourceCap the
	// data elements are PDOs, for TypeRequest a single RequestDO.
	//
	// Size of Data is fixed up to maximum allowable message size, to ensure no
	// heap allocations are necessary. To find out how many actual elements are
	// used, use Header.DataObjectCount().
	Data [MaxDataObjects]uint32
}

// ToBytes serializes the message to a byte slice in little-endian wire order
// and returns the number of bytes written.
func (m Message) ToBytes(b []byte) uint8 {
	binary.LittleEndian.PutUint16(b, uint16(m.Header))
	c := m.Header.DataObjectCount()
	for i, d := range m.Data[:c] {
		binary.LittleEndian.PutUint32(b[2+i*4:], d)
	}
	return 2 + c*4
}

// DecodeMessage parses a header followed by its data objects. Data objects
// that don't fit in b are left zero.
func DecodeMessage(b []byte) Message {
	var m Message
	if len(b) < 2 {
		return m
	}
	m.Header = Header(binary.LittleEndian.Uint16(b))
	for i := 0; i < int(m.Header.DataObjectCount()); i++ {
		s := 2 + i*4
		if s+4 > len(b) {
			break
		}
		m.Data[i] = binary.LittleEndian.Uint32(b[s:])
	}
	return m
}

// Type represents the PD message type. For control messages, the value of the
// type is equivalent to that of the PD spec. Actual message type requires
// determining if the message is a control or a data message using IsData().
type Type uint8

// Control message types
const (
	TypeGoodCRC      Type = 0b00001
	TypeGotoMin      Type = 0b00010
	TypeAccept       Type = 0b00011
	TypeReject       Type = 0b00100
	TypePing         Type = 0b00101
	TypePSReady      Type = 0b00110
	TypeGetSourceCap Type = 0b00111
	TypeGetSinkCap   Type = 0b01000
	TypeWait         Type = 0b01100
	TypeSoftReset    Type = 0b01101
)

// Data message types
const (
	TypeSourceCap Type = 0b00001
	TypeRequest   Type = 0b00010
	TypeSinkCap   Type = 0b00100
)

// Revision represents the power delivery revision number of a message.
type Revision uint8

// Power delivery revision numbers.
const (
	Revision10 Revision = 0b00
	Revision20 Revision = 0b01
	Revision30 Revision = 0b10
)

// PowerRole represents the power role of the sender of a message.
type PowerRole uint8

// Power roles of the sender of a message.
const (
	PowerRoleSink   PowerRole = 0
	PowerRoleSource PowerRole = 1
)

// DataRole represents the data role of the sender of a message.
type DataRole uint8

// Data roles of the sender of a message.
const (
	DataRoleUFP DataRole = 0
	DataRoleDFP DataRole = 1
)
