// Command usbdemo runs one or more simulated runtime USB devices
// against the loopback controller: each device registers dynamic
// handlers, enumerates, answers a vendor control request, moves a bulk
// transfer, and re-enumerates. It exists to exercise the bridge
// end-to-end without hardware.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/tinybridge/usbd/hal"
	"github.com/tinybridge/usbd/hal/loopback"
	"github.com/tinybridge/usbd/pkg"
	"github.com/tinybridge/usbd/usbd"
)

type options struct {
	logLevel string
	logJSON  bool
	interval time.Duration
	settle   time.Duration
	duration time.Duration
	devices  int
}

func addFlags(fs *pflag.FlagSet, opts *options) {
	fs.StringVar(&opts.logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")
	fs.BoolVar(&opts.logJSON, "log-json", false, "emit JSON logs")
	fs.DurationVar(&opts.interval, "interval", 10*time.Millisecond, "task loop tick interval")
	fs.DurationVar(&opts.settle, "settle", 50*time.Millisecond, "re-enumeration settle delay")
	fs.DurationVar(&opts.duration, "duration", 2*time.Second, "how long each device runs")
	fs.IntVar(&opts.devices, "devices", 1, "number of simulated devices to run concurrently")
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "usbdemo",
		Short: "Simulate runtime USB devices on the loopback controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}
	addFlags(cmd.Flags(), &opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if err := configureLogging(opts); err != nil {
		return err
	}

	// Every device owns its own controller and bridge; goroutines never
	// share hardware-facing state.
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.devices; i++ {
		id := i
		g.Go(func() error {
			return runDevice(ctx, id, opts)
		})
	}
	return g.Wait()
}

func configureLogging(opts options) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
	}
	pkg.SetLogLevel(level)
	if opts.logJSON {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}
	return nil
}

// Endpoint addresses used by the demo interface.
const (
	demoEndpointOut = 0x01
	demoEndpointIn  = 0x81
)

// demoStringIndex is the first dynamic string index.
const demoStringIndex = 4

func runDevice(ctx context.Context, id int, opts options) error {
	hw := loopback.New()
	dev := usbd.New(hw, staticDescriptors(), usbd.WithSettleDelay(opts.settle))

	var strBuf [64]byte
	dev.Register(usbd.Handlers{
		StringDescriptor: func(index uint8) any {
			if index != demoStringIndex {
				return nil
			}
			n := hal.StringDescriptorTo(strBuf[:], fmt.Sprintf("usbdemo device %d", id))
			return strBuf[:n]
		},
		Open: func(desc []byte) {
			pkg.LogInfo(pkg.ComponentUSBD, "interface claimed",
				"device", id, "bytes", len(desc))
		},
		Reset: func() {
			pkg.LogInfo(pkg.ComponentUSBD, "bus reset", "device", id)
		},
		ControlXfer: func(stage hal.ControlStage, request []byte) any {
			var req hal.SetupPacket
			if err := hal.ParseSetupPacket(request, &req); err != nil {
				return err
			}
			if stage == hal.ControlStageSetup && req.IsVendor() && req.IsDeviceToHost() {
				return []byte("loopback-demo")
			}
			return true
		},
		Xfer: func(addr uint8, result pkg.TransferStatus, count uint32) any {
			pkg.LogInfo(pkg.ComponentUSBD, "transfer complete",
				"device", id, "ep", fmt.Sprintf("0x%02X", addr),
				"result", result.String(), "bytes", count)
			return true
		},
	})
	defer dev.Teardown()

	// Script the host side up front; events replay one per tick batch.
	hw.QueueBusReset()
	hw.QueueEnumerate()
	hw.QueueStringRead(demoStringIndex)
	hw.QueueControl(hal.SetupPacket{
		RequestType: hal.RequestDirectionDeviceToHost | hal.RequestTypeVendor | hal.RequestRecipientInterface,
		Request:     0x01,
		Length:      13,
	})

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.duration)
	defer deadline.Stop()

	submitted := false
	reenumerated := false
	bulk := make([]byte, 64)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			pkg.LogInfo(pkg.ComponentUSBD, "device done",
				"device", id,
				"claimed", hw.Claimed,
				"endpoints", len(hw.OpenedEndpoints()),
				"controls", len(hw.Controls))
			return nil
		case <-ticker.C:
			if err := dev.Tick(); err != nil {
				return err
			}

			if !submitted && hw.Claimed > 0 {
				ok, err := dev.SubmitTransfer(demoEndpointOut, bulk)
				if err != nil {
					return err
				}
				if ok {
					hw.QueueCompletion(demoEndpointOut, pkg.TransferStatusSuccess, uint32(len(bulk)))
				}
				submitted = true
			}

			if submitted && !reenumerated && len(hw.Controls) > 0 {
				dev.Reenumerate()
				reenumerated = true
			}
		}
	}
}

// staticDescriptors builds the compile-time fallback content: a vendor
// device with one claimable interface carrying a bulk OUT/IN pair.
func staticDescriptors() usbd.StaticDescriptors {
	device := []byte{
		18, hal.DescriptorTypeDevice,
		0x00, 0x02, // bcdUSB 2.00
		0xFF, 0x00, 0x00, // vendor class
		64,         // bMaxPacketSize0
		0x2E, 0x1B, // idVendor
		0x01, 0x00, // idProduct
		0x00, 0x01, // bcdDevice
		1, 2, 3, // string indices
		1, // bNumConfigurations
	}

	iface := hal.InterfaceDescriptor{
		InterfaceNumber: 0,
		NumEndpoints:    2,
		InterfaceClass:  0xFF,
		InterfaceIndex:  demoStringIndex,
	}
	epOut := hal.EndpointDescriptor{
		EndpointAddress: demoEndpointOut,
		Attributes:      0x02, // bulk
		MaxPacketSize:   64,
	}
	epIn := hal.EndpointDescriptor{
		EndpointAddress: demoEndpointIn,
		Attributes:      0x02, // bulk
		MaxPacketSize:   64,
	}

	total := 9 + hal.InterfaceDescriptorSize + 2*hal.EndpointDescriptorSize
	cfg := make([]byte, 0, total)
	cfg = append(cfg,
		9, hal.DescriptorTypeConfiguration,
		byte(total), byte(total>>8),
		1,    // bNumInterfaces
		1,    // bConfigurationValue
		0,    // iConfiguration
		0x80, // bus powered
		50,   // 100 mA
	)
	var rec [hal.InterfaceDescriptorSize]byte
	cfg = append(cfg, rec[:iface.MarshalTo(rec[:])]...)
	cfg = append(cfg, rec[:epOut.MarshalTo(rec[:])]...)
	cfg = append(cfg, rec[:epIn.MarshalTo(rec[:])]...)

	return usbd.StaticDescriptors{
		Device:        device,
		Configuration: cfg,
		InterfaceMax:  0, // every interface is claimable in the demo
		EndpointMax:   1,
		StringMax:     demoStringIndex,
	}
}
