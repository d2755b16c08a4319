package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/tonylturner/enipctl/internal/discovery"
)

type discoverFlags struct {
	listen    string
	broadcast string
	timeout   time.Duration
	output    string
}

func newDiscoverCmd(global *globalFlags) *cobra.Command {
	flags := &discoverFlags{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover EtherNet/IP devices using ListIdentity",
		Long: `Discover EtherNet/IP devices by broadcasting ListIdentity requests on UDP
port 44818 and collecting the replies.

The broadcast is repeated every discovery.update_rate until the timeout
expires. Each responding device is listed once with its address, vendor,
product and revision.`,
		Example: `  # Discover for 5 seconds on all interfaces
  enipctl discover

  # Broadcast on one subnet and print JSON
  enipctl discover --broadcast 192.168.1.255:44818 --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runDiscover(cmd, global, flags)
		},
	}

	cmd.Flags().StringVar(&flags.listen, "listen", "", "Local UDP address to bind (default from config, 0.0.0.0:51687)")
	cmd.Flags().StringVar(&flags.broadcast, "broadcast", "", "Broadcast address (default from config, 255.255.255.255:44818)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 5*time.Second, "How long to listen for replies")
	cmd.Flags().StringVar(&flags.output, "output", "text", "Output format: text|json")

	return cmd
}

func runDiscover(cmd *cobra.Command, global *globalFlags, flags *discoverFlags) error {
	if err := validateOutput(flags.output); err != nil {
		return err
	}
	rt, err := global.setup(false)
	if err != nil {
		return err
	}
	defer rt.log.Close()

	cfg := rt.cfg.Discovery
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}
	if flags.broadcast != "" {
		cfg.Broadcast = flags.broadcast
	}

	sigCtx, stop := signalContext(cmd)
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, flags.timeout)
	defer cancel()

	browser := discovery.New(cfg, rt.log)
	if err := browser.Start(ctx); err != nil {
		return err
	}
wait:
	for {
		select {
		case ev := <-browser.Events():
			if ev.Type == discovery.EventNewDevice {
				rt.log.Verbose("Found %s at %s", ev.Device.ProductName, ev.Device.Key())
			}
		case <-ctx.Done():
			break wait
		}
	}
	browser.Stop()

	return printDevices(cmd.OutOrStdout(), browser.Devices(), flags.output)
}

func printDevices(out io.Writer, devices []discovery.Device, output string) error {
	if output == "json" {
		data, err := json.MarshalIndent(devices, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintf(out, "%s\n", data)
		return nil
	}

	if len(devices) == 0 {
		fmt.Fprintf(out, "No devices discovered\n")
		return nil
	}
	fmt.Fprintf(out, "Discovered %d device(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Fprintf(out, "Device %d:\n", i+1)
		fmt.Fprintf(out, "  Address:      %s:%d\n", d.Key(), d.SocketAddress.Port)
		fmt.Fprintf(out, "  Product Name: %s\n", d.ProductName)
		fmt.Fprintf(out, "  Vendor ID:    0x%04X\n", d.VendorID)
		fmt.Fprintf(out, "  Device Type:  0x%04X\n", d.DeviceType)
		fmt.Fprintf(out, "  Product Code: 0x%04X\n", d.ProductCode)
		fmt.Fprintf(out, "  Revision:     %s\n", d.Revision)
		fmt.Fprintf(out, "  Serial:       %s\n", d.SerialNumber)
		fmt.Fprintf(out, "  Status:       0x%04X\n", d.Status)
		fmt.Fprintf(out, "  State:        0x%02X\n", d.State)
		if i < len(devices)-1 {
			fmt.Fprintf(out, "\n")
		}
	}
	return nil
}
