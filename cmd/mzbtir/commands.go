package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meishild/mzbtir/internal/ble"
)

func scanCmd(a *app) *cobra.Command {
	var seconds int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List nearby BLE devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			fmt.Printf("Scanning for %ds...\n", seconds)
			devices, err := ble.ScanForDevices(a.adapter, "", time.Duration(seconds)*time.Second)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ADDRESS\tRSSI\tNAME")
			for _, d := range devices {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", d.MAC, d.RSSI, d.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&seconds, "seconds", "s", 10, "how long to scan")
	return cmd
}

func readCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <device>",
		Short: "Read temperature, humidity, and battery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			client, err := a.client(args[0])
			if err != nil {
				return err
			}
			if err := client.Update(cmd.Context(), true); err != nil {
				return err
			}
			r, _ := client.Readings()
			fmt.Printf("temperature: %.2f °C\nhumidity:    %.2f %%\nbattery:     %d %%\n",
				r.Temperature, r.Humidity, r.Battery)
			return nil
		},
	}
	return cmd
}

func sendCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <device> <key> <code>",
		Short: "Emit an IR code",
		Long:  "Emit an IR code. key identifies the code on the device; key and code are hex strings.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			client, err := a.client(args[0])
			if err != nil {
				return err
			}
			if err := client.Send(cmd.Context(), args[1], args[2]); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	return cmd
}

func receiveCmd(a *app) *cobra.Command {
	var seconds int

	cmd := &cobra.Command{
		Use:   "receive <device>",
		Short: "Learn an IR code from a remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			client, err := a.client(args[0])
			if err != nil {
				return err
			}

			var timeout time.Duration
			if seconds > 0 {
				timeout = time.Duration(seconds) * time.Second
			}
			fmt.Fprintln(os.Stderr, "Point the remote at the device and press a button...")
			code, err := client.Receive(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(code))
			return nil
		},
	}
	set := timeoutFlag(cmd.Flags(), &seconds, "timeout", "seconds to wait per fragment (default from config)")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if set() && seconds <= 0 {
			return fmt.Errorf("--timeout must be > 0")
		}
		return nil
	}
	return cmd
}
