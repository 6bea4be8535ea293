package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/tcdpm"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Negotiate power and keep the contract until interrupted",
	Long: `Run sets up the port controller, negotiates the capability picked by the
configured policy and keeps polling it, renegotiating whenever the source is
plugged back in. Every event is printed. Stop with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		policy, err := cfg.SinkPolicy()
		if err != nil {
			return err
		}
		dev, err := openDevice()
		if err != nil {
			return err
		}
		defer dev.Close()
		m, err := newManager(dev, policy)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "chip id 0x%02x, policy %s\n", m.Status().ChipID, describePolicy(policy))
		return loop(ctx, m, cfg.Tick, func(ev typec.Event) bool {
			printEvents(out, ev, m.Status())
			return false
		})
	},
}

// loop ticks m every interval until ctx is done or fn returns true. fn is
// called with the events of each tick that raised any.
func loop(ctx context.Context, m *tcdpm.Manager, interval time.Duration, fn func(typec.Event) bool) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if ev := m.Tick(); ev != typec.EventNone && fn(ev) {
				return nil
			}
		}
	}
}

func printEvents(w io.Writer, ev typec.Event, st tcdpm.Status) {
	for e := ev.Pop(); e != typec.EventNone; e = ev.Pop() {
		fmt.Fprintf(w, "%s %s\n", time.Now().Format("15:04:05.000"), describeEvent(e, st))
	}
}

func describeEvent(e typec.Event, st tcdpm.Status) string {
	switch e {
	case typec.EventDetached:
		return "source detached"
	case typec.EventState:
		return "state: " + st.State.String()
	case typec.EventCC:
		if st.CCPin == 0 {
			return "cc: none"
		}
		return fmt.Sprintf("cc: CC%d", st.CCPin)
	case typec.EventCapabilities:
		if st.CapabilitiesText == "" {
			return "capabilities: none"
		}
		return "capabilities: " + st.CapabilitiesText
	case typec.EventRequested:
		return fmt.Sprintf("requested capability %d", st.RequestedCapability)
	case typec.EventPowerReady:
		return fmt.Sprintf("power ready: %s %s", millivolts(st.SelectedVoltageMv), milliamps(st.SelectedCurrentMa))
	case typec.EventVbus:
		return "vbus: " + millivolts(st.VbusMv).String()
	}
	return e.String()
}

func describePolicy(p tcdpm.Policy) string {
	switch p := p.(type) {
	case tcdpm.TargetPolicy:
		return "target " + millivolts(p.Voltage).String()
	case tcdpm.CVPolicy:
		return fmt.Sprintf("constant voltage %s-%s at %s", millivolts(p.MinVoltage), millivolts(p.MaxVoltage), milliamps(p.Current))
	case tcdpm.CPPolicy:
		return fmt.Sprintf("constant power %s-%s at %s", millivolts(p.MinVoltage), millivolts(p.MaxVoltage),
			physic.Power(p.Power)*physic.MilliWatt)
	}
	return "none"
}

func millivolts(mv uint16) physic.ElectricPotential {
	return physic.ElectricPotential(mv) * physic.MilliVolt
}

func milliamps(ma uint16) physic.ElectricCurrent {
	return physic.ElectricCurrent(ma) * physic.MilliAmpere
}
