package tcdpm

import (
	"fmt"

	"github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/logging"
	"github.com/oxplot/go-pdsink/pdmsg"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302"
	"github.com/oxplot/go-pdsink/tcpe"
)

// DefaultVbusPresentMv is the VBUS voltage above which a source is
// considered attached.
const DefaultVbusPresentMv = 4000

// Status is a snapshot of a Manager.
type Status struct {
	ChipID byte
	Failed bool

	State tcpe.State
	CCPin int

	// VbusMv is the last converged VBUS measurement.
	VbusMv uint16

	Capabilities     []pdmsg.Capability
	CapabilitiesText string

	CurrentCapability   uint8
	RequestedCapability uint8
	PowerStable         bool

	// SelectedVoltageMv and SelectedCurrentMa describe the contract once
	// power is stable. Both are zero otherwise.
	SelectedVoltageMv uint16
	SelectedCurrentMa uint16
}

// Manager runs a sink on a FUSB302: it keeps VBUS measured, polls the
// negotiation state machine while a source is attached, resets it when the
// source goes away and, once the default 5V contract is in place, requests
// the capability picked by its policy.
//
// Tick must be called regularly, every few milliseconds, from a single
// goroutine.
type Manager struct {
	pc     *fusb302.FUSB302
	sm     *tcpe.StateMachine
	policy Policy

	// VbusPresentMv is the VBUS threshold in millivolts above which the
	// state machine is run. Defaults to DefaultVbusPresentMv.
	VbusPresentMv uint16

	failed bool
	chipID byte

	lastState  tcpe.State
	lastVbusMv uint16
	attached   bool
	capsText   string
	evaluated  bool

	// last request made by the policy
	requestPos       uint8
	requestCurrentMa uint16

	selectedVoltageMv uint16
	selectedCurrentMa uint16
}

// NewManager returns a manager driving pc. policy may be nil in which case
// the sink stays on the default 5V contract.
func NewManager(pc *fusb302.FUSB302, clock typec.Clock, policy Policy) *Manager {
	return &Manager{
		pc:            pc,
		sm:            tcpe.New(pc, clock),
		policy:        policy,
		VbusPresentMv: DefaultVbusPresentMv,
	}
}

// StateMachine returns the underlying negotiation state machine.
func (m *Manager) StateMachine() *tcpe.StateMachine {
	return m.sm
}

// Setup checks the chip is there by reading its ID, validates the policy
// and initializes the chip so VBUS can be measured before any negotiation.
// On error the manager is marked as failed and Tick does nothing.
func (m *Manager) Setup() error {
	id, err := m.pc.ReadID()
	if err != nil {
		m.failed = true
		logging.Log().Errorf("tcdpm: failed to read chip id: %s", err)
		return fmt.Errorf("tcdpm: read chip id: %w", err)
	}
	m.chipID = id
	logging.Log().Infof("tcdpm: got chip id 0x%02x", id)

	if m.policy != nil {
		if err := m.policy.Validate(); err != nil {
			m.failed = true
			return err
		}
	}

	m.sm.Reset()
	// a failure is retried by the state machine when leaving StateStart
	_ = m.sm.Init()
	return nil
}

// Tick runs one iteration of the sink and returns the events it raised.
func (m *Manager) Tick() typec.Event {
	if m.failed {
		return typec.EventNone
	}
	var ev typec.Event

	if mv, ok := m.sm.UpdateVbus(); ok && mv != m.lastVbusMv {
		m.lastVbusMv = mv
		ev.Add(typec.EventVbus)
	}

	state := tcpe.StateStart
	if m.lastVbusMv > m.VbusPresentMv {
		state = m.sm.Update()
		m.attached = true
	} else {
		// likely the source was disconnected
		m.sm.Reset()
		m.clearSelection()
		if m.attached {
			logging.Log().Infof("tcdpm: source detached, vbus %dmV", m.lastVbusMv)
			m.attached = false
			m.evaluated = false
			m.requestPos, m.requestCurrentMa = 0, 0
			ev.Add(typec.EventDetached)
		}
	}

	prev := m.lastState
	if state != prev {
		logging.Log().Debugf("tcdpm: state %s -> %s", prev, state)
		ev.Add(typec.EventState)
	}
	if (prev < tcpe.StateEnableTransceiver) != (state < tcpe.StateEnableTransceiver) {
		ev.Add(typec.EventCC)
	}
	if prev < tcpe.StateConnected && state >= tcpe.StateConnected {
		m.capsText = FormatCapabilities(m.sm.Capabilities())
		logging.Log().Infof("tcdpm: capabilities %s", m.capsText)
		ev.Add(typec.EventCapabilities)
	} else if prev >= tcpe.StateConnected && state < tcpe.StateConnected {
		m.capsText = ""
		m.evaluated = false
		ev.Add(typec.EventCapabilities)
	}

	if m.selectedVoltageMv == 0 && state == tcpe.StateConnected && m.sm.PowerStable() && m.updateSelection() {
		ev.Add(typec.EventPowerReady)
	}

	// Evaluate the policy a tick after connecting, once the default
	// contract is settled.
	if prev == tcpe.StateConnected && state == tcpe.StateConnected && !m.evaluated &&
		m.sm.CurrentCapability() > 0 && m.sm.RequestedCapability() == m.sm.CurrentCapability() &&
		m.sm.PowerStable() && m.policy != nil {
		m.evaluated = true
		if m.evaluate() {
			ev.Add(typec.EventRequested)
		}
	}

	m.lastState = state
	return ev
}

func (m *Manager) updateSelection() bool {
	cur := m.sm.CurrentCapability()
	caps := m.sm.Capabilities()
	if cur == 0 || int(cur) > len(caps) {
		return false
	}
	c := caps[cur-1]
	m.selectedVoltageMv = c.VoltageMv
	m.selectedCurrentMa = c.MaxCurrentMa
	if cur == m.requestPos {
		m.selectedCurrentMa = m.requestCurrentMa
	}
	logging.Log().Infof("tcdpm: power ready at %dmV %dmA", m.selectedVoltageMv, m.selectedCurrentMa)
	return true
}

func (m *Manager) clearSelection() {
	m.selectedVoltageMv = 0
	m.selectedCurrentMa = 0
}

func (m *Manager) evaluate() bool {
	rdo := m.policy.EvaluateCapabilities(m.sm.Capabilities())
	pos := rdo.SelectedObjectPosition()
	if rdo == pdmsg.EmptyRequestDO || pos == m.sm.CurrentCapability() {
		logging.Log().Debugf("tcdpm: keeping capability %d", m.sm.CurrentCapability())
		return false
	}
	cur := rdo.FixedOperatingCurrent()
	if err := m.sm.RequestCapability(pos, cur); err != nil {
		logging.Log().Errorf("tcdpm: request capability %d at %dmA failed: %s", pos, cur, err)
		return false
	}
	logging.Log().Infof("tcdpm: request capability %d at %dmA", pos, cur)
	m.requestPos, m.requestCurrentMa = pos, cur
	m.clearSelection()
	return true
}

// Status returns a snapshot of the manager and its state machine.
func (m *Manager) Status() Status {
	return Status{
		ChipID:              m.chipID,
		Failed:              m.failed,
		State:               m.lastState,
		CCPin:               m.sm.CCPin(),
		VbusMv:              m.lastVbusMv,
		Capabilities:        m.sm.Capabilities(),
		CapabilitiesText:    m.capsText,
		CurrentCapability:   m.sm.CurrentCapability(),
		RequestedCapability: m.sm.RequestedCapability(),
		PowerStable:         m.sm.PowerStable(),
		SelectedVoltageMv:   m.selectedVoltageMv,
		SelectedCurrentMa:   m.selectedCurrentMa,
	}
}
