package main

import (
	"fmt"
	"strings"

	"github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/tcdpm"
	"github.com/oxplot/go-pdsink/tcpcdriver"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302/fusb302sim"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// device is an opened port controller, real or simulated.
type device struct {
	pc    *fusb302.FUSB302
	clock typec.Clock
	close func() error
}

func (d *device) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

func openDevice() (*device, error) {
	clock := typec.NewSystemClock()
	if simulate {
		return openSim(clock)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	b, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}
	if err := b.SetSpeed(cfg.Speed.Frequency); err != nil {
		b.Close()
		return nil, fmt.Errorf("set i2c speed to %s: %w", cfg.Speed, err)
	}
	return &device{
		pc:    fusb302.New(tcpcdriver.NewI2CRegisters(b, cfg.Address), clock),
		clock: clock,
		close: b.Close,
	}, nil
}

func openSim(clock typec.Clock) (*device, error) {
	pairs, err := parseSimCaps(simCaps)
	if err != nil {
		return nil, err
	}
	if simCC != 1 && simCC != 2 {
		return nil, fmt.Errorf("%w: %d", fusb302.ErrInvalidCCPin, simCC)
	}
	chip := fusb302sim.New()
	chip.CCLevel[simCC] = 2
	chip.Attach(fusb302sim.NewFixedSource(pairs...))
	return &device{
		pc:    fusb302.New(chip, clock),
		clock: clock,
	}, nil
}

// parseSimCaps parses a comma separated list of fixed supplies such as
// "5V:3A,9V:2A" into voltage/current pairs in millivolts and milliamps.
func parseSimCaps(s string) ([][2]uint16, error) {
	var pairs [][2]uint16
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		vs, cs, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("sim capability %q: expected voltage:current", item)
		}
		var v physic.ElectricPotential
		if err := v.Set(vs); err != nil {
			return nil, fmt.Errorf("sim capability %q: %w", item, err)
		}
		var c physic.ElectricCurrent
		if err := c.Set(cs); err != nil {
			return nil, fmt.Errorf("sim capability %q: %w", item, err)
		}
		if v <= 0 || v > 50*physic.Volt || c <= 0 || c > 10*physic.Ampere {
			return nil, fmt.Errorf("sim capability %q: out of range", item)
		}
		pairs = append(pairs, [2]uint16{uint16(v / physic.MilliVolt), uint16(c / physic.MilliAmpere)})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no sim capabilities given")
	}
	return pairs, nil
}

// newManager sets up a manager on d running policy, which may be nil.
func newManager(d *device, policy tcdpm.Policy) (*tcdpm.Manager, error) {
	m := tcdpm.NewManager(d.pc, d.clock, policy)
	m.VbusPresentMv = cfg.VbusPresent.Millivolts()
	if err := m.Setup(); err != nil {
		return nil, err
	}
	return m, nil
}
