package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/oxplot/go-pdsink"
	"github.com/oxplot/go-pdsink/tcdpm"
	"github.com/oxplot/go-pdsink/tcpe"
	"github.com/spf13/cobra"
)

var capsTimeout time.Duration

var errNoCapabilities = errors.New("no source capabilities received")

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Print the capabilities of the attached source",
	Long: `Caps waits for the source capabilities, prints them and exits. The sink
stays on the default 5V contract.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), capsTimeout)
		defer cancel()
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		dev, err := openDevice()
		if err != nil {
			return err
		}
		defer dev.Close()
		m, err := newManager(dev, nil)
		if err != nil {
			return err
		}

		var st tcdpm.Status
		err = loop(ctx, m, cfg.Tick, func(ev typec.Event) bool {
			st = m.Status()
			return st.State == tcpe.StateConnected
		})
		if err != nil {
			return err
		}
		if st.State != tcpe.StateConnected {
			return errNoCapabilities
		}
		tcdpm.NewLogger(cmd.OutOrStdout(), "\n", nil).EvaluateCapabilities(st.Capabilities)
		return nil
	},
}

func init() {
	capsCmd.Flags().DurationVar(&capsTimeout, "timeout", 5*time.Second, "How long to wait for the capabilities")
}
