// Package tcdpm implements device policy managers for sinks: policies that
// pick a source capability, and a Manager that drives the negotiation state
// machine the way a host loop would.
package tcdpm

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oxplot/go-pdsink/pdmsg"
)

// Policy picks a capability out of the ones offered by a source.
type Policy interface {
	// Validate returns an error if the policy parameters are invalid.
	Validate() error

	// EvaluateCapabilities returns a request for the best capability, or
	// pdmsg.EmptyRequestDO if none is acceptable. caps is in object position
	// order.
	EvaluateCapabilities(caps []pdmsg.Capability) pdmsg.RequestDO
}

const (
	minVoltage = 3300  // mV
	maxVoltage = 21000 // mV
	maxCurrent = 5000  // mA
	maxPower   = 100000 // mW
)

var (
	ErrBadVoltage            = errors.New("tcdpm: voltage must be >= 3300mV & <= 21000mV")
	ErrBadCurrent            = errors.New("tcdpm: current must be >= 0mA & <= 5000mA")
	ErrBadPower              = errors.New("tcdpm: power must be > 0mW & <= 100000mW")
	ErrMaxVoltageLessThanMin = errors.New("tcdpm: max voltage must be >= min voltage")
)

func validVoltage(v uint16) bool {
	return v >= minVoltage && v <= maxVoltage
}

func validateRange(minV, maxV uint16) error {
	if !validVoltage(minV) || !validVoltage(maxV) {
		return ErrBadVoltage
	}
	if minV > maxV {
		return ErrMaxVoltageLessThanMin
	}
	return nil
}

// TargetPolicy requests the fixed supply with the highest voltage that
// doesn't exceed Voltage, at the maximum current the source offers for it.
// Since every source offers 5V, any target of at least 5V gets a contract.
type TargetPolicy struct {
	// Target voltage in millivolts.
	Voltage uint16
}

// Validate returns an error if the policy parameters are invalid.
func (t TargetPolicy) Validate() error {
	if !validVoltage(t.Voltage) {
		return ErrBadVoltage
	}
	return nil
}

// EvaluateCapabilities implements Policy.
func (t TargetPolicy) EvaluateCapabilities(caps []pdmsg.Capability) pdmsg.RequestDO {
	var best uint16
	rdo := pdmsg.EmptyRequestDO
	for i, c := range caps {
		if c.Type != pdmsg.CapabilityFixedSupply {
			continue
		}
		if c.VoltageMv <= t.Voltage && c.VoltageMv > best {
			rdo = pdmsg.NewFixedRequestDO(uint8(i)+1, c.MaxCurrentMa)
			best = c.VoltageMv
		}
	}
	return rdo
}

// CVPolicy defines a constant voltage policy where the power source is expected
// to maintain the negotiated voltage and to be capable of supplying at least
// the negotiated current. Only fixed supplies are considered.
type CVPolicy struct {

	// Minimum accepted voltage in millivolts.
	MinVoltage uint16

	// Maximum accepted voltage in millivolts.
	MaxVoltage uint16

	// Current in milliamps that the source must be able to supply at the
	// negotiated voltage.
	Current uint16

	// If a source provides multiple profile within the voltage range of a
	// policy, it's possible to prefer lower voltage profiles than the default
	// higher voltage profiles.
	PreferLowerVoltage bool
}

// Validate returns an error if the policy parameters are invalid.
func (c CVPolicy) Validate() error {
	if c.Current > maxCurrent {
		return ErrBadCurrent
	}
	return validateRange(c.MinVoltage, c.MaxVoltage)
}

// EvaluateCapabilities implements Policy.
func (c CVPolicy) EvaluateCapabilities(caps []pdmsg.Capability) pdmsg.RequestDO {
	return bestFixed(caps, c.MinVoltage, c.MaxVoltage, c.PreferLowerVoltage, func(uint16) uint16 {
		return c.Current
	})
}

// CPPolicy defines a constant power policy where the power source is expected
// to be capabale of supplying at the specified power at the negotiated voltage.
// CPPolicy is a special case of CVPolicy where the current is calculated from
// the power and voltage.
type CPPolicy struct {

	// Minimum accepted voltage in millivolts.
	MinVoltage uint16

	// Maximum accepted voltage in millivolts.
	MaxVoltage uint16

	// Power in milliwatts that the source must be able to supply at the
	// negotiated voltage.
	Power uint32

	// If a source provides multiple profile within the voltage range of a
	// policy, it's possible to prefer lower voltage profiles than the default
	// higher voltage profiles.
	PreferLowerVoltage bool
}

// Validate returns an error if the policy parameters are invalid.
func (c CPPolicy) Validate() error {
	if c.Power == 0 || c.Power > maxPower {
		return ErrBadPower
	}
	return validateRange(c.MinVoltage, c.MaxVoltage)
}

// EvaluateCapabilities implements Policy.
func (c CPPolicy) EvaluateCapabilities(caps []pdmsg.Capability) pdmsg.RequestDO {
	return bestFixed(caps, c.MinVoltage, c.MaxVoltage, c.PreferLowerVoltage, func(v uint16) uint16 {
		// round up to the 10mA request resolution so the whole power is covered
		return uint16((c.Power*1000+10*uint32(v)-1)/(10*uint32(v))) * 10
	})
}

// bestFixed returns a request for the fixed supply in [minV, maxV] with the
// highest (or lowest) voltage able to supply current(voltage).
func bestFixed(caps []pdmsg.Capability, minV, maxV uint16, preferLower bool, current func(uint16) uint16) pdmsg.RequestDO {
	var best uint16
	if preferLower {
		best = ^uint16(0)
	}
	rdo := pdmsg.EmptyRequestDO
	for i, c := range caps {
		if c.Type != pdmsg.CapabilityFixedSupply {
			continue
		}
		v := c.VoltageMv
		if v < minV || v > maxV || v == 0 {
			continue
		}
		cur := current(v)
		if c.MaxCurrentMa < cur {
			continue
		}
		if (preferLower && v < best) || (!preferLower && v > best) {
			rdo = pdmsg.NewFixedRequestDO(uint8(i)+1, cur)
			best = v
		}
	}
	return rdo
}

// FormatCapabilities returns a one line summary of caps, such as
// "5.0V 3.0A DR C; 9.0V 2.0A". Fixed supplies show "DR" when dual role and
// "C" when power is constrained. Other types aren't decoded.
func FormatCapabilities(caps []pdmsg.Capability) string {
	var sb strings.Builder
	for i, c := range caps {
		if i > 0 {
			sb.WriteString("; ")
		}
		switch c.Type {
		case pdmsg.CapabilityFixedSupply:
			fmt.Fprintf(&sb, "%d.%dV %d.%dA", c.VoltageMv/1000, c.VoltageMv/100%10, c.MaxCurrentMa/1000, c.MaxCurrentMa/100%10)
			if c.DualRolePower {
				sb.WriteString(" DR")
			}
			if !c.UnconstrainedPower {
				sb.WriteString(" C")
			}
		default:
			fmt.Fprintf(&sb, "unk %s", c.Type)
		}
	}
	return sb.String()
}

// Logger is a passthrough policy that writes a textual description of source
// capabilities to a given io.Writer. It's mostly used for debugging purposes.
type Logger struct {
	w    io.Writer
	sep  string
	base Policy
}

// NewLogger creates a new logger which will write to the given writer and
// optionally passes through the evaluate calls. If no base is provided,
// this policy will respond with pdmsg.EmptyRequestDO when EvaluateCapabilities
// is called. Line separator is written to the writer after each line of
// output. Some common values are "\n", "\r", "\r\n".
func NewLogger(w io.Writer, lineSep string, base Policy) *Logger {
	return &Logger{
		w:    w,
		sep:  lineSep,
		base: base,
	}
}

// Validate returns nil if the policy is valid.
func (l *Logger) Validate() error {
	if l.base != nil {
		return l.base.Validate()
	}
	return nil
}

// EvaluateCapabilities writes out the textual description of the provided
// capabilities and passes them down to the underlying policy and returns its
// response.
func (l *Logger) EvaluateCapabilities(caps []pdmsg.Capability) pdmsg.RequestDO {
	fmt.Fprintf(l.w, "Received %d profiles:%s", len(caps), l.sep)
	for i, c := range caps {
		fmt.Fprintf(l.w, "  %d) ", i+1)
		switch c.Type {
		case pdmsg.CapabilityFixedSupply:
			fmt.Fprintf(l.w, "Fixed %.1fV @ max. %.1fA", float32(c.VoltageMv)/1000, float32(c.MaxCurrentMa)/1000)
			if c.DualRolePower {
				fmt.Fprint(l.w, " (dual role)")
			}
			if c.UnconstrainedPower {
				fmt.Fprint(l.w, " (unconstrained)")
			}
		case pdmsg.CapabilityVariable:
			fmt.Fprint(l.w, "Variable (not supported)")
		case pdmsg.CapabilityBattery:
			fmt.Fprint(l.w, "Battery (not supported)")
		case pdmsg.CapabilityAugmented:
			fmt.Fprint(l.w, "Augmented (not supported)")
		default:
			fmt.Fprint(l.w, "INVALID!")
		}
		fmt.Fprint(l.w, l.sep)
	}
	if l.base != nil {
		return l.base.EvaluateCapabilities(caps)
	}
	return pdmsg.EmptyRequestDO
}
