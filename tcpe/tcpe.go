// Package tcpe provides a USB Type-C power delivery negotiation state
// machine for sink devices using a FUSB302 port controller.
//
// The state machine is polled: Update advances it by one step and must be
// called regularly for timeouts to progress. It never blocks beyond the
// register transactions it performs. UpdateVbus runs an independent VBUS
// measurement on the same chip and may be called on its own cadence.
//
// A StateMachine must not be used concurrently.
package tcpe

import (
	"errors"
	"fmt"

	"github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/logging"
	"github.com/oxplot/go-pdsink/pdmsg"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302"
)

// State is a negotiation state.
type State uint8

// The states, in the order a successful negotiation goes through them.
const (
	StateStart              State = iota // chip not initialized yet
	StateDetectCC                        // alternately measuring CC1 and CC2
	StateEnableTransceiver               // enabling the transceiver on the detected CC pin
	StateWaitSourceCap                   // waiting for the first source capabilities message
	StateConnected                       // capabilities received, accepting requests
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateDetectCC:
		return "Detect CC"
	case StateEnableTransceiver:
		return "Enable Transceiver"
	case StateWaitSourceCap:
		return "Wait Capabilities"
	case StateConnected:
		return "Connected"
	default:
		return "INVALID"
	}
}

// Timer durations in milliseconds.
const (
	timerMeasure            = 1   // CC level settle time after switching pins
	timerTypeCSendSourceCap = 200 // tTypeCSendSourceCap max
)

// ErrInvalidCapability is returned by RequestCapability for object
// positions that can't be encoded in a request.
var ErrInvalidCapability = errors.New("tcpe: invalid capability position")

// StateMachine negotiates power with a source as a sink.
type StateMachine struct {
	pc    *fusb302.FUSB302
	clock typec.Clock
	state State

	// CC detection
	savedCCLevel int8 // level of the other pin, -1 if not yet measured
	measuringCC  int
	ccPin        int    // pin used for communication, 0 if not detected
	stateExpire  uint32 // clock millis at which the current state times out

	nextTxID uint8

	sourceCaps    [pdmsg.MaxCapabilities]uint32
	sourceCapsLen uint8

	requested   uint8 // last requested capability, 0 if none
	current     uint8 // last accepted capability, 0 if none
	powerStable bool

	vbus vbusSearch

	rxBuf [fusb302.FrameBufferSize]byte
}

// New creates a state machine driving the given port controller.
func New(pc *fusb302.FUSB302, clock typec.Clock) *StateMachine {
	sm := &StateMachine{
		pc:    pc,
		clock: clock,
	}
	sm.Reset()
	sm.vbus.reset()
	return sm
}

// Update advances the state machine by one step and returns the resulting
// state. Register failures are logged and leave the state unchanged so the
// step is retried on the next call.
func (sm *StateMachine) Update() State {
	switch sm.state {
	case StateDetectCC:
		sm.detectCC()
	case StateEnableTransceiver:
		if err := sm.pc.EnableTransceiver(sm.ccPin); err != nil {
			logging.Log().Errorf("tcpe: enable transceiver on cc%d: %s", sm.ccPin, err)
			break
		}
		sm.state = StateWaitSourceCap
		sm.startTimer(timerTypeCSendSourceCap)
	case StateWaitSourceCap:
		_ = sm.processRx()
		if sm.sourceCapsLen > 0 {
			sm.state = StateConnected
		} else if sm.timedOut() {
			// common with non-PD sources
			logging.Log().Debug("tcpe: timed out waiting for source capabilities")
			sm.state = StateEnableTransceiver
		}
	case StateConnected:
		_ = sm.processRx()
	default:
		if err := sm.Init(); err != nil {
			break
		}
		if err := sm.pc.SetMeasureCC(1); err != nil {
			logging.Log().Errorf("tcpe: measure cc1: %s", err)
			break
		}
		sm.measuringCC = 1
		sm.savedCCLevel = -1
		sm.state = StateDetectCC
		sm.startTimer(timerMeasure)
	}
	return sm.state
}

func (sm *StateMachine) detectCC() {
	if !sm.timedOut() {
		return
	}
	level, err := sm.pc.ReadBCLevel()
	if err != nil {
		logging.Log().Errorf("tcpe: read cc%d level: %s", sm.measuringCC, err)
		return
	}
	if sm.savedCCLevel != -1 && int8(level) != sm.savedCCLevel {
		if int8(level) > sm.savedCCLevel {
			sm.ccPin = sm.measuringCC
		} else {
			sm.ccPin = otherCC(sm.measuringCC)
		}
		logging.Log().Infof("tcpe: detected cc%d", sm.ccPin)
		sm.state = StateEnableTransceiver
		return
	}
	next := otherCC(sm.measuringCC)
	if err := sm.pc.SetMeasureCC(next); err != nil {
		logging.Log().Errorf("tcpe: measure cc%d: %s", next, err)
		return
	}
	sm.savedCCLevel = int8(level)
	sm.measuringCC = next
	sm.startTimer(timerMeasure)
}

func otherCC(pin int) int {
	if pin == 1 {
		return 2
	}
	return 1
}

func (sm *StateMachine) startTimer(ms uint32) {
	sm.stateExpire = sm.clock.Millis() + ms
}

func (sm *StateMachine) timedOut() bool {
	return int32(sm.clock.Millis()-sm.stateExpire) >= 0
}

// processRx handles every message waiting in the RX FIFO. It stops at the
// first register failure, leaving the rest for the next call.
func (sm *StateMachine) processRx() error {
	for {
		empty, err := sm.pc.RxEmpty()
		if err != nil {
			logging.Log().Errorf("tcpe: read rx status: %s", err)
			return err
		}
		if empty {
			return nil
		}
		n, err := sm.pc.ReadNextFrame(sm.rxBuf[:])
		if err != nil {
			logging.Log().Errorf("tcpe: read rx frame: %s", err)
			return err
		}
		sm.handleMessage(pdmsg.DecodeMessage(sm.rxBuf[:n]))
	}
}

func (sm *StateMachine) handleMessage(m pdmsg.Message) {
	h := m.Header
	if h.IsData() {
		logging.Log().Infof("tcpe: data message: id=%d, type=%d, count=%d", h.ID(), h.Type(), h.DataObjectCount())
		if h.Type() != pdmsg.TypeSourceCap {
			return
		}
		first := sm.sourceCapsLen == 0
		sm.sourceCapsLen = uint8(copy(sm.sourceCaps[:], m.Data[:h.DataObjectCount()]))
		logging.Log().Infof("tcpe: received %d source capabilities", sm.sourceCapsLen)
		if first {
			// Always start with the vSafe5V capability which every source
			// lists first.
			v5 := pdmsg.UnpackCapability(sm.sourceCaps[0])
			_ = sm.sendRequest(1, v5.MaxCurrentMa)
		}
		return
	}

	logging.Log().Infof("tcpe: control message: id=%d, type=%d", h.ID(), h.Type())
	switch h.Type() {
	case pdmsg.TypeAccept:
		sm.current = sm.requested
	case pdmsg.TypeReject:
		sm.requested = sm.current
	case pdmsg.TypePSReady:
		sm.powerStable = true
	}
}

// RequestCapability requests the capability at object position pos
// (starting at 1) of the last received source capabilities, at currentMa
// operating and maximum operating current. It's only meaningful once
// connected. On success the requested capability is updated and power is
// no longer considered stable until the source reports it ready again.
func (sm *StateMachine) RequestCapability(pos uint8, currentMa uint16) error {
	if pos == 0 || pos > pdmsg.MaxDataObjects {
		return fmt.Errorf("%w: %d", ErrInvalidCapability, pos)
	}
	return sm.sendRequest(pos, currentMa)
}

func (sm *StateMachine) sendRequest(pos uint8, currentMa uint16) error {
	h := pdmsg.PackHeader(pdmsg.TypeRequest, 1, sm.nextTxID)
	rdo := pdmsg.NewFixedRequestDO(pos, currentMa)
	if err := sm.pc.WriteMessage(h, uint32(rdo)); err != nil {
		logging.Log().Errorf("tcpe: send request(%d) id=%d: %s", pos, sm.nextTxID, err)
		return err
	}
	logging.Log().Infof("tcpe: sent request(%d) at %dmA id=%d", pos, currentMa, sm.nextTxID)
	sm.requested = pos
	sm.powerStable = false
	sm.nextTxID = (sm.nextTxID + 1) % 8
	return nil
}

// Reset brings the state machine back to StateStart, forgetting the CC pin,
// the source capabilities and any negotiated contract. It doesn't touch the
// chip and doesn't affect the VBUS measurement.
func (sm *StateMachine) Reset() {
	sm.state = StateStart
	sm.ccPin = 0
	sm.measuringCC = 0
	sm.savedCCLevel = -1
	sm.nextTxID = 0
	sm.sourceCapsLen = 0
	sm.requested = 0
	sm.current = 0
	sm.powerStable = false
}

// Init resets and powers up the chip from an unknown state. It must succeed
// before VBUS measurements are valid; Update calls it when leaving
// StateStart. As the chip reset clears the measurement setup, the VBUS
// search starts over.
func (sm *StateMachine) Init() error {
	if err := sm.pc.Init(); err != nil {
		logging.Log().Errorf("tcpe: init: %s", err)
		return err
	}
	sm.vbus.reset()
	return nil
}

// State returns the current state.
func (sm *StateMachine) State() State {
	return sm.state
}

// Capabilities returns the unpacked capabilities of the last source
// capabilities message, in object position order. It's empty until
// connected.
func (sm *StateMachine) Capabilities() []pdmsg.Capability {
	caps := make([]pdmsg.Capability, sm.sourceCapsLen)
	for i := range caps {
		caps[i] = pdmsg.UnpackCapability(sm.sourceCaps[i])
	}
	return caps
}

// CurrentCapability returns the object position of the capability accepted
// by the source, 0 if none.
func (sm *StateMachine) CurrentCapability() uint8 {
	return sm.current
}

// RequestedCapability returns the object position of the last requested
// capability. It falls back to the current capability when a request is
// rejected.
func (sm *StateMachine) RequestedCapability() uint8 {
	return sm.requested
}

// PowerStable returns true once the source has reported the accepted power
// as ready, until the next request.
func (sm *StateMachine) PowerStable() bool {
	return sm.powerStable
}

// CCPin returns the CC pin used for communication (1 or 2), or 0 if not
// detected yet.
func (sm *StateMachine) CCPin() int {
	return sm.ccPin
}
