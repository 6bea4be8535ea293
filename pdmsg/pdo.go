package pdmsg

// PDO is a generic Power Data Object as received on the wire.
type PDO uint32

// Type returns the type of the power data object.
func (o PDO) Type() CapabilityType {
	return CapabilityType((o >> 30) & 0b11)
}

// Unpack decodes all fields of the power data object. See UnpackCapability.
func (o PDO) Unpack() Capability {
	return UnpackCapability(uint32(o))
}

// CapabilityType represents the type of a power data object.
type CapabilityType uint8

// Power data object types.
const (
	CapabilityFixedSupply CapabilityType = 0b00
	CapabilityBattery     CapabilityType = 0b01
	CapabilityVariable    CapabilityType = 0b10
	CapabilityAugmented   CapabilityType = 0b11
)

func (t CapabilityType) String() string {
	switch t {
	case CapabilityFixedSupply:
		return "fixed"
	case CapabilityBattery:
		return "battery"
	case CapabilityVariable:
		return "variable"
	case CapabilityAugmented:
		return "augmented"
	default:
		return "INVALID"
	}
}

// Capability is an unpacked power data object. The fields are laid out as
// for a Fixed Supply PDO; for other types they carry no meaning.
type Capability struct {
	Type                               CapabilityType
	DualRolePower                      bool
	USBSuspendSupported                bool
	UnconstrainedPower                 bool
	USBCommunicationsCapable           bool
	DualRoleData                       bool
	UnchunkedExtendedMessagesSupported bool
	PeakCurrent                        uint8  // raw 2 bit code
	VoltageMv                          uint16 // 50mV units on the wire
	MaxCurrentMa                       uint16 // 10mA units on the wire
}

// UnpackCapability decodes a packed power data object.
func UnpackCapability(p uint32) Capability {
	return Capability{
		Type:                               CapabilityType(bits(p, 2, 30)),
		DualRolePower:                      bits(p, 1, 29) != 0,
		USBSuspendSupported:                bits(p, 1, 28) != 0,
		UnconstrainedPower:                 bits(p, 1, 27) != 0,
		USBCommunicationsCapable:           bits(p, 1, 26) != 0,
		DualRoleData:                       bits(p, 1, 25) != 0,
		UnchunkedExtendedMessagesSupported: bits(p, 1, 24) != 0,
		PeakCurrent:                        uint8(bits(p, 2, 20)),
		VoltageMv:                          uint16(bits(p, 10, 10) * 50),
		MaxCurrentMa:                       uint16(bits(p, 10, 0) * 10),
	}
}

func bits(v uint32, n, shift uint8) uint32 {
	return (v >> shift) & (1<<n - 1)
}

// FixedSupplyPDO represents a Fixed Supply Power Data Object
type FixedSupplyPDO uint32

// NewFixedSupplyPDO returns a new blank FixedSupplyPDO.
func NewFixedSupplyPDO() FixedSupplyPDO {
	return FixedSupplyPDO(0)
}

// Voltage returns voltage in millivolts.
func (o FixedSupplyPDO) Voltage() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// SetVoltage will round the given voltage down to a multiple of 50mV.
func (o *FixedSupplyPDO) SetVoltage(v uint16) {
	*o = (*o & ^((FixedSupplyPDO(1)<<10 - 1) << 10)) | ((FixedSupplyPDO(v)/50)&(1<<10-1))<<10
}

// MaxCurrent returns maximum current in milliamps
func (o FixedSupplyPDO) MaxCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetMaxCurrent will round the given current down to a multiple of 10mA.
func (o *FixedSupplyPDO) SetMaxCurrent(v uint16) {
	*o = (*o & ^(FixedSupplyPDO(1)<<10 - 1)) | (FixedSupplyPDO(v)/10)&(1<<10-1)
}

// SetDualRolePower sets the dual-role power flag.
func (o *FixedSupplyPDO) SetDualRolePower(b bool) {
	o.setFlag(29, b)
}

// SetUnconstrainedPower sets the unconstrained power flag.
func (o *FixedSupplyPDO) SetUnconstrainedPower(b bool) {
	o.setFlag(27, b)
}

func (o *FixedSupplyPDO) setFlag(bit uint8, b bool) {
	var v FixedSupplyPDO
	if b {
		v = 1 << bit
	}
	*o = (*o & ^(FixedSupplyPDO(1) << bit)) | v
}

// RequestDO represents a Request Data Object.
type RequestDO uint32

// EmptyRequestDO is returned by device policy managers to indicate that they do
// not accept any of the power profiles supported by the power source.
const EmptyRequestDO RequestDO = 0

// NewFixedRequestDO returns a request for the fixed supply at object
// position pos (starting at 1) with both operating and maximum operating
// current set to currentMa. The No USB Suspend flag is always set.
func NewFixedRequestDO(pos uint8, currentMa uint16) RequestDO {
	var o RequestDO
	o.SetSelectedObjectPosition(pos)
	o.SetNoUSBSuspend(true)
	o.SetFixedOperatingCurrent(currentMa)
	o.SetFixedMaxOperatingCurrent(currentMa)
	return o
}

// SelectedObjectPosition returns the position number of the PDO in the source
// capability message, starting at 1.
func (o RequestDO) SelectedObjectPosition() uint8 {
	return uint8((o >> 28) & 0b111)
}

// SetSelectedObjectPosition sets the position number of the PDO the source
// capability message, starting at 1.
func (o *RequestDO) SetSelectedObjectPosition(p uint8) {
	*o = (*o & ^(RequestDO(0b111) << 28)) | RequestDO(p&0b111)<<28
}

// NoUSBSuspend returns true if the No USB Suspend flag is set.
func (o RequestDO) NoUSBSuspend() bool {
	return o&(1<<24) != 0
}

// SetNoUSBSuspend sets the No USB Suspend flag.
func (o *RequestDO) SetNoUSBSuspend(s bool) {
	var b RequestDO
	if s {
		b = 1 << 24
	}
	*o = (*o & ^(RequestDO(1) << 24)) | b
}

// FixedOperatingCurrent returns current in milliamps for fixed request
// objects.
func (o RequestDO) FixedOperatingCurrent() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 10)
}

// SetFixedOperatingCurrent sets current in milliamps rounded down to 10mA
// for fixed request objects.
func (o *RequestDO) SetFixedOperatingCurrent(c uint16) {
	*o = (*o & ^((RequestDO(1)<<10 - 1) << 10)) | ((RequestDO(c)/10)&(1<<10-1))<<10
}

// FixedMaxOperatingCurrent returns current in milliamps for fixed request
// objects without GiveBack support.
func (o RequestDO) FixedMaxOperatingCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetFixedMaxOperatingCurrent sets current in milliamps rounded down to
// 10mA for fixed request objects without GiveBack support.
func (o *RequestDO) SetFixedMaxOperatingCurrent(c uint16) {
	*o = (*o & ^(RequestDO(1)<<10 - 1)) | ((RequestDO(c) / 10) & (1<<10 - 1))
}
