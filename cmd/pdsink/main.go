// Pdsink negotiates power from a USB Power Delivery source through a FUSB302
// port controller on a host I2C bus.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
