package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Read the device ID of the port controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := openDevice()
		if err != nil {
			return err
		}
		defer dev.Close()
		id, err := dev.pc.ReadID()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "device id 0x%02x: version %d, product %d, revision %d\n",
			id, id>>4, (id>>2)&0b11, id&0b11)
		return nil
	},
}
