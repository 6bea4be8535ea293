package fusb302

// Register addresses and bit fields. Only the ones used by the driver and
// by simulators of the chip are listed.
const (
	RegDeviceID = 0x01

	RegSwitches0        = 0x02
	RegSwitches0MeasCC2 = 1 << 3
	RegSwitches0MeasCC1 = 1 << 2
	RegSwitches0CC2PdEn = 1 << 1
	RegSwitches0CC1PdEn = 1 << 0

	RegSwitches1          = 0x03
	RegSwitches1SpecRev20 = 1 << 5
	RegSwitches1AutoGCRC  = 1 << 2
	RegSwitches1TxCC2En   = 1 << 1
	RegSwitches1TxCC1En   = 1 << 0

	RegMeasure         = 0x04
	RegMeasureMDACMask = 0x3F
	RegMeasureVBus     = 1 << 6

	RegControl3          = 0x09
	RegControl3NRetries3 = 0b11 << 1
	RegControl3AutoRetry = 1 << 0

	RegPower       = 0x0B
	RegPowerPwrAll = 0xF

	RegReset        = 0x0C
	RegResetPDReset = 1 << 1
	RegResetSWReset = 1 << 0

	RegStatus0          = 0x40
	RegStatus0VBusOK    = 1 << 7
	RegStatus0Comp      = 1 << 5
	RegStatus0BCLvlMask = 0b11

	RegStatus1        = 0x41
	RegStatus1RxEmpty = 1 << 5

	RegFIFOs = 0x43
)

// TX FIFO tokens.
const (
	TokenTxOn    = 0xA1 // FIFO should be filled with the frame before this is written
	TokenSync1   = 0x12
	TokenSync2   = 0x13
	TokenPackSym = 0x80 // 5 LSBs hold the number of bytes that follow
	TokenJamCRC  = 0xFF
	TokenEOP     = 0x14
	TokenTxOff   = 0xFE
)

// RX FIFO tokens. Only the top 3 bits of the first byte of a received frame
// identify its start of packet type.
const (
	RxTokenMask = 0xE0
	RxTokenSOP  = 0xE0
)
