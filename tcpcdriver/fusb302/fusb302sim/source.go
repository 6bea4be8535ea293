package fusb302sim

import (
	"github.com/oxplot/go-pdsink/pdmsg"
)

// Source is a minimal simulated power delivery source. It advertises its
// capabilities after every PD reset and answers requests with Accept and
// PS_RDY, or Reject when the request can't be met.
type Source struct {
	caps [pdmsg.MaxDataObjects]uint32
	n    uint8

	chip   *Chip
	nextID uint8

	// RejectAll makes the source reject every request.
	RejectAll bool

	// Silent makes the source never advertise its capabilities, like a
	// non-PD power supply.
	Silent bool

	// Contract is the object position of the last accepted request, 0 if
	// none.
	Contract uint8

	// Requests counts the requests received.
	Requests int
}

// NewSource returns a source advertising the given capabilities. At most
// pdmsg.MaxDataObjects are kept.
func NewSource(caps ...pdmsg.PDO) *Source {
	s := &Source{}
	for i, c := range caps {
		if i == pdmsg.MaxDataObjects {
			break
		}
		s.caps[i] = uint32(c)
		s.n++
	}
	return s
}

// NewFixedSource returns a source advertising fixed supplies given as
// voltage/current pairs in millivolts and milliamps.
func NewFixedSource(pairs ...[2]uint16) *Source {
	caps := make([]pdmsg.PDO, 0, len(pairs))
	for _, p := range pairs {
		fs := pdmsg.NewFixedSupplyPDO()
		fs.SetVoltage(p[0])
		fs.SetMaxCurrent(p[1])
		caps = append(caps, pdmsg.PDO(fs))
	}
	return NewSource(caps...)
}

// Capabilities returns the advertised capabilities.
func (s *Source) Capabilities() []pdmsg.PDO {
	caps := make([]pdmsg.PDO, s.n)
	for i := range caps {
		caps[i] = pdmsg.PDO(s.caps[i])
	}
	return caps
}

// SendCapabilities queues a Source Capabilities message, as a source does
// after a reset or when its capabilities change.
func (s *Source) SendCapabilities() {
	m := s.message(pdmsg.TypeSourceCap, s.n)
	copy(m.Data[:], s.caps[:s.n])
	s.queue(m)
}

func (s *Source) pdReset() {
	s.nextID = 0
	s.Contract = 0
	if !s.Silent {
		s.SendCapabilities()
	}
}

func (s *Source) receive(m pdmsg.Message) {
	// GoodCRC echoes the ID of the message it acknowledges.
	s.queue(pdmsg.Message{Header: pdmsg.PackHeaderRoles(pdmsg.TypeGoodCRC, 0, m.Header.ID(),
		pdmsg.PowerRoleSource, pdmsg.DataRoleDFP, pdmsg.Revision20)})
	if !m.Header.IsData() || m.Header.Type() != pdmsg.TypeRequest {
		return
	}
	s.Requests++
	rdo := pdmsg.RequestDO(m.Data[0])
	pos := rdo.SelectedObjectPosition()
	if s.RejectAll || pos == 0 || pos > s.n {
		s.queue(s.message(pdmsg.TypeReject, 0))
		return
	}
	fs := pdmsg.FixedSupplyPDO(s.caps[pos-1])
	if pdmsg.PDO(fs).Type() != pdmsg.CapabilityFixedSupply || rdo.FixedOperatingCurrent() > fs.MaxCurrent() {
		s.queue(s.message(pdmsg.TypeReject, 0))
		return
	}
	s.Contract = pos
	s.queue(s.message(pdmsg.TypeAccept, 0))
	if s.chip != nil {
		s.chip.VbusMv = fs.Voltage()
	}
	s.queue(s.message(pdmsg.TypePSReady, 0))
}

func (s *Source) message(t pdmsg.Type, n uint8) pdmsg.Message {
	h := pdmsg.PackHeaderRoles(t, n, s.nextID, pdmsg.PowerRoleSource, pdmsg.DataRoleDFP, pdmsg.Revision20)
	s.nextID = (s.nextID + 1) % 8
	return pdmsg.Message{Header: h}
}

func (s *Source) queue(m pdmsg.Message) {
	if s.chip != nil {
		s.chip.QueueMessage(m)
	}
}
