package main

import (
	"fmt"

	"github.com/oxplot/go-pdsink/internal/config"
	"github.com/oxplot/go-pdsink/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	// Global flags
	cfgFile  string
	busName  string
	address  uint16
	target   string
	logFile  string
	verbose  int
	simulate bool
	simCaps  string
	simCC    int

	// Shared state set during PersistentPreRun
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pdsink",
	Short: "USB Power Delivery sink for FUSB302 port controllers",
	Long: `Pdsink drives a FUSB302 USB Type-C port controller over I2C as a power
sink: it detects the CC line, receives the source capabilities and requests
the one picked by the configured policy.

Settings are read from ~/.pdsink/config.yaml and can be overridden with flags.
With --sim no hardware is needed, the port controller and the source are
simulated.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override config with flags
		flags := cmd.Flags()
		if flags.Changed("bus") {
			cfg.Bus = busName
		}
		if flags.Changed("address") {
			cfg.Address = address
		}
		if flags.Changed("target") {
			if err := cfg.Target.Set(target); err != nil {
				return fmt.Errorf("invalid target: %w", err)
			}
		}
		if flags.Changed("log-file") {
			cfg.LogFile = logFile
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logging.SetLogging(newLogger(logWriter(cfg.LogFile, cmd.ErrOrStderr()), verbose))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default ~/.pdsink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&busName, "bus", "", "I2C bus name")
	rootCmd.PersistentFlags().Uint16Var(&address, "address", 0x22, "FUSB302 I2C address")
	rootCmd.PersistentFlags().StringVarP(&target, "target", "t", "", "Target voltage, e.g. 9V")
	rootCmd.PersistentFlags().StringVarP(&logFile, "log-file", "l", "", "Log into a file, rotating after 5MB")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Log more, repeat for even more")

	// Simulation flags
	rootCmd.PersistentFlags().BoolVar(&simulate, "sim", false, "Simulate the port controller and a source")
	rootCmd.PersistentFlags().StringVar(&simCaps, "sim-caps", "5V:3A,9V:3A,15V:3A,20V:2.25A", "Fixed supplies offered by the simulated source")
	rootCmd.PersistentFlags().IntVar(&simCC, "sim-cc", 1, "CC pin the simulated source is attached to")

	rootCmd.AddCommand(runCmd, watchCmd, capsCmd, idCmd, configCmd, versionCmd)
}
